package cache

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCache_SetGetExpire(t *testing.T) {
	c := New(time.Minute)
	now := time.Now()
	c.now = func() time.Time { return now }

	c.Set("overview", 42)
	v, ok := c.Get("overview")
	require.True(t, ok)
	assert.Equal(t, 42, v)

	now = now.Add(2 * time.Minute)
	_, ok = c.Get("overview")
	assert.False(t, ok)
	assert.Equal(t, 0, c.Size())
}

func TestCache_ZeroTTLDisablesStore(t *testing.T) {
	c := New(0)
	c.Set("k", 1)
	_, ok := c.Get("k")
	assert.False(t, ok)
}

func TestCache_InvalidatePrefix(t *testing.T) {
	c := New(time.Minute)
	c.Set("analytics:overview", 1)
	c.Set("analytics:tests", 2)
	c.Set("leaderboard", 3)

	c.Invalidate("analytics:")

	_, ok := c.Get("analytics:overview")
	assert.False(t, ok)
	_, ok = c.Get("leaderboard")
	assert.True(t, ok)
}

func TestLoader_SharesConcurrentLoads(t *testing.T) {
	l := NewLoader(time.Minute)
	var calls int32
	release := make(chan struct{})

	load := func(ctx context.Context) (interface{}, error) {
		atomic.AddInt32(&calls, 1)
		<-release
		return "report", nil
	}

	var wg sync.WaitGroup
	results := make([]interface{}, 8)
	for i := range results {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			v, err := l.GetOrLoad(context.Background(), "analytics:overview", load)
			assert.NoError(t, err)
			results[i] = v
		}(i)
	}

	time.Sleep(20 * time.Millisecond)
	close(release)
	wg.Wait()

	assert.Equal(t, int32(1), atomic.LoadInt32(&calls))
	for _, r := range results {
		assert.Equal(t, "report", r)
	}

	// served from cache afterwards
	_, err := l.GetOrLoad(context.Background(), "analytics:overview", load)
	require.NoError(t, err)
	assert.Equal(t, int32(1), atomic.LoadInt32(&calls))
}

func TestLoader_DoesNotCacheErrors(t *testing.T) {
	l := NewLoader(time.Minute)
	var calls int
	boom := errors.New("boom")

	load := func(ctx context.Context) (interface{}, error) {
		calls++
		if calls == 1 {
			return nil, boom
		}
		return 7, nil
	}

	_, err := l.GetOrLoad(context.Background(), "k", load)
	assert.ErrorIs(t, err, boom)

	v, err := l.GetOrLoad(context.Background(), "k", load)
	require.NoError(t, err)
	assert.Equal(t, 7, v)
	assert.Equal(t, 2, calls)
}
