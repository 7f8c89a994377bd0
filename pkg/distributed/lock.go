package distributed

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// ErrNotHeld is returned when the lock belongs to someone else or has expired.
var ErrNotHeld = errors.New("lock not held")

var (
	unlockScript = redis.NewScript(`
		if redis.call("get", KEYS[1]) == ARGV[1] then
			return redis.call("del", KEYS[1])
		end
		return 0
	`)
	extendScript = redis.NewScript(`
		if redis.call("get", KEYS[1]) == ARGV[1] then
			return redis.call("pexpire", KEYS[1], ARGV[2])
		end
		return 0
	`)
)

// Lock is a Redis lease owned by a single holder value.
type Lock struct {
	client redis.UniversalClient
	key    string
	value  string
}

// NewLock creates a lock on key. Each Lock has its own holder identity.
func NewLock(client redis.UniversalClient, key string) *Lock {
	return &Lock{client: client, key: key, value: generateLockValue()}
}

func generateLockValue() string {
	b := make([]byte, 16)
	if _, err := rand.Read(b); err != nil {
		return fmt.Sprintf("%d", time.Now().UnixNano())
	}
	return hex.EncodeToString(b)
}

// Key returns the Redis key guarded by the lock.
func (l *Lock) Key() string { return l.key }

// TryLock takes the lease for ttl without blocking. It reports false when
// another holder has it.
func (l *Lock) TryLock(ctx context.Context, ttl time.Duration) (bool, error) {
	acquired, err := l.client.SetNX(ctx, l.key, l.value, ttl).Result()
	if err != nil {
		return false, fmt.Errorf("failed to acquire lock %s: %w", l.key, err)
	}
	return acquired, nil
}

// Extend resets the lease ttl if this holder still owns it.
func (l *Lock) Extend(ctx context.Context, ttl time.Duration) error {
	n, err := extendScript.Run(ctx, l.client, []string{l.key}, l.value, ttl.Milliseconds()).Int64()
	if err != nil {
		return fmt.Errorf("failed to extend lock %s: %w", l.key, err)
	}
	if n == 0 {
		return ErrNotHeld
	}
	return nil
}

// Unlock releases the lease if this holder still owns it.
func (l *Lock) Unlock(ctx context.Context) error {
	n, err := unlockScript.Run(ctx, l.client, []string{l.key}, l.value).Int64()
	if err != nil {
		return fmt.Errorf("failed to unlock %s: %w", l.key, err)
	}
	if n == 0 {
		return ErrNotHeld
	}
	return nil
}

// IsLocked checks if any holder currently owns the key.
func (l *Lock) IsLocked(ctx context.Context) (bool, error) {
	exists, err := l.client.Exists(ctx, l.key).Result()
	if err != nil {
		return false, err
	}
	return exists > 0, nil
}

// LockManager hands out locks under a common key prefix
type LockManager struct {
	client redis.UniversalClient
	prefix string
}

// NewLockManager creates a new lock manager
func NewLockManager(client redis.UniversalClient, prefix string) *LockManager {
	return &LockManager{
		client: client,
		prefix: prefix,
	}
}

// Lock returns a lock on prefix+key.
func (lm *LockManager) Lock(key string) *Lock {
	return NewLock(lm.client, lm.prefix+key)
}
