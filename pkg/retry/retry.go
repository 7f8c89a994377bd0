package retry

import (
	"context"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v4"
)

// Config holds retry configuration
type Config struct {
	Enabled      bool
	MaxAttempts  int           // retries after the first call
	InitialDelay time.Duration // delay before the first retry
	MaxDelay     time.Duration
	Multiplier   float64
	// Retryable decides whether err is worth another attempt. Nil retries every error.
	Retryable func(err error) bool
}

// DefaultConfig returns a default retry configuration
func DefaultConfig() Config {
	return Config{
		Enabled:      true,
		MaxAttempts:  3,
		InitialDelay: 100 * time.Millisecond,
		MaxDelay:     5 * time.Second,
		Multiplier:   2.0,
	}
}

// Retry executes fn with exponential backoff. A non-retryable error is
// returned unchanged; exhausting the attempts wraps the last error.
func Retry(ctx context.Context, cfg Config, fn func() error) error {
	if !cfg.Enabled {
		return fn()
	}

	exhausted := false
	attempts := 0
	err := backoff.Retry(func() error {
		attempts++
		err := fn()
		if err == nil {
			return nil
		}
		if cfg.Retryable != nil && !cfg.Retryable(err) {
			return backoff.Permanent(err)
		}
		exhausted = attempts > cfg.MaxAttempts
		return err
	}, newBackOff(ctx, cfg))

	if err != nil && exhausted {
		return fmt.Errorf("max attempts (%d) exceeded: %w", cfg.MaxAttempts, err)
	}
	return err
}

// newBackOff builds a deterministic exponential schedule capped at MaxAttempts retries.
func newBackOff(ctx context.Context, cfg Config) backoff.BackOffContext {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = cfg.InitialDelay
	b.MaxInterval = cfg.MaxDelay
	b.Multiplier = cfg.Multiplier
	if b.Multiplier < 1 {
		b.Multiplier = 1
	}
	b.RandomizationFactor = 0
	b.MaxElapsedTime = 0
	b.Reset()
	return backoff.WithContext(backoff.WithMaxRetries(b, uint64(max(cfg.MaxAttempts, 0))), ctx)
}
