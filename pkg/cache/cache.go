package cache

import (
	"context"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"
)

// Item represents a cached value with expiration
type Item struct {
	Value     interface{}
	ExpiresAt time.Time
}

// IsExpired checks if the item has expired
func (item *Item) IsExpired(now time.Time) bool {
	return now.After(item.ExpiresAt)
}

// Cache is a thread-safe in-memory cache with TTL support.
// Expired entries are dropped lazily on read and on Invalidate.
type Cache struct {
	mu         sync.RWMutex
	items      map[string]*Item
	defaultTTL time.Duration
	now        func() time.Time
}

// New creates a cache with default TTL
func New(defaultTTL time.Duration) *Cache {
	return &Cache{
		items:      make(map[string]*Item),
		defaultTTL: defaultTTL,
		now:        time.Now,
	}
}

// Get retrieves a live value from cache
func (c *Cache) Get(key string) (interface{}, bool) {
	c.mu.RLock()
	item, ok := c.items[key]
	c.mu.RUnlock()

	if !ok {
		return nil, false
	}
	if item.IsExpired(c.now()) {
		c.mu.Lock()
		if cur, ok := c.items[key]; ok && cur == item {
			delete(c.items, key)
		}
		c.mu.Unlock()
		return nil, false
	}
	return item.Value, true
}

// Set stores a value with the default TTL. A non-positive TTL disables storing.
func (c *Cache) Set(key string, value interface{}) {
	c.SetWithTTL(key, value, c.defaultTTL)
}

// SetWithTTL stores a value with a custom TTL
func (c *Cache) SetWithTTL(key string, value interface{}, ttl time.Duration) {
	if ttl <= 0 {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.items[key] = &Item{Value: value, ExpiresAt: c.now().Add(ttl)}
}

// Delete removes a key from cache
func (c *Cache) Delete(key string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.items, key)
}

// Invalidate removes keys with the given prefix, or only expired keys when prefix is empty.
func (c *Cache) Invalidate(prefix string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.now()
	for key, item := range c.items {
		if prefix == "" {
			if item.IsExpired(now) {
				delete(c.items, key)
			}
			continue
		}
		if strings.HasPrefix(key, prefix) {
			delete(c.items, key)
		}
	}
}

// Size returns the number of stored items, expired ones included
func (c *Cache) Size() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.items)
}

// Loader fronts a Cache with a load function. Concurrent misses on the same key share one load.
type Loader struct {
	cache *Cache
	group singleflight.Group
}

// NewLoader creates a loading cache with the given TTL
func NewLoader(ttl time.Duration) *Loader {
	return &Loader{cache: New(ttl)}
}

// GetOrLoad returns the cached value for key or calls load once and caches its result.
// Errors are never cached.
func (l *Loader) GetOrLoad(ctx context.Context, key string, load func(context.Context) (interface{}, error)) (interface{}, error) {
	if v, ok := l.cache.Get(key); ok {
		return v, nil
	}

	v, err, _ := l.group.Do(key, func() (interface{}, error) {
		if v, ok := l.cache.Get(key); ok {
			return v, nil
		}
		v, err := load(ctx)
		if err != nil {
			return nil, err
		}
		l.cache.Set(key, v)
		return v, nil
	})
	return v, err
}

// Invalidate drops cached entries with the given prefix
func (l *Loader) Invalidate(prefix string) {
	l.cache.Invalidate(prefix)
}
