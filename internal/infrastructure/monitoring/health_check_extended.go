package monitoring

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"
)

// AddStoreCheck adds a check that pings the database.
func (h *HealthChecker) AddStoreCheck(ping func(ctx context.Context) error, timeout time.Duration) {
	h.AddCheck("database", ping, timeout)
}

// AddRedisCheck adds a Redis health check. A nil client registers nothing.
func (h *HealthChecker) AddRedisCheck(client *redis.Client, timeout time.Duration) {
	if client == nil {
		return
	}
	h.AddCheck("redis", func(ctx context.Context) error {
		return client.Ping(ctx).Err()
	}, timeout)
}
