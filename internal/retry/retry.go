// Package retry retries operations that fail transiently, such as opening a
// DuckDB file another process still holds locked.
package retry

import (
	"context"
	"fmt"
	"time"
)

// Config defines the retry behaviour. Attempts and InitialBackoff must be
// greater than zero.
type Config struct {
	// Attempts is the maximum number of calls.
	Attempts int
	// InitialBackoff is the wait before the second call; it doubles after
	// every further failure.
	InitialBackoff time.Duration
	// MaxBackoff caps a single wait. Zero means no cap.
	MaxBackoff time.Duration
}

// ShouldRetryFunc reports whether err is transient. A nil func retries
// every error.
type ShouldRetryFunc func(error) bool

// Do calls fn until it succeeds, returns a permanent error, the attempts
// run out or ctx is done.
func Do(ctx context.Context, cfg Config, fn func() error, shouldRetry ShouldRetryFunc) error {
	var lastErr error
	for attempt := 0; attempt < cfg.Attempts; attempt++ {
		if attempt > 0 {
			timer := time.NewTimer(backoff(cfg, attempt))
			select {
			case <-ctx.Done():
				timer.Stop()
				return ctx.Err()
			case <-timer.C:
			}
		}

		err := fn()
		if err == nil {
			return nil
		}
		if shouldRetry != nil && !shouldRetry(err) {
			return err
		}
		lastErr = err
	}
	return fmt.Errorf("failed after %d attempts: %w", cfg.Attempts, lastErr)
}

// backoff returns the wait before the given attempt (1-based retry count).
func backoff(cfg Config, attempt int) time.Duration {
	d := cfg.InitialBackoff << (attempt - 1)
	if d <= 0 || (cfg.MaxBackoff > 0 && d > cfg.MaxBackoff) {
		d = cfg.MaxBackoff
	}
	return d
}
