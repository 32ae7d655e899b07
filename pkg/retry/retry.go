// Package retry provides retrying of transient failures with configurable backoff.
package retry

import (
	"context"
	"fmt"
	"time"

	"xpromo/pkg/logger"
)

// Config controls retry behavior
type Config struct {
	// MaxAttempts is the total number of attempts (including the first)
	MaxAttempts int
	// Backoff determines the delay between attempts
	Backoff BackoffStrategy
	// RetryIf decides whether an error is worth retrying; nil retries everything
	RetryIf func(error) bool
	// Logger receives per-attempt debug output; nil disables logging
	Logger logger.Logger
}

// DefaultConfig returns a retry config with sensible defaults
func DefaultConfig() *Config {
	return &Config{
		MaxAttempts: 3,
		Backoff:     DefaultExponentialBackoff(),
	}
}

// Do runs fn until it succeeds, the retry budget is exhausted, or the
// context is cancelled. The last error is returned on failure.
func Do(ctx context.Context, cfg *Config, fn func(ctx context.Context) error) error {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	if cfg.MaxAttempts < 1 {
		cfg.MaxAttempts = 1
	}

	var lastErr error
	for attempt := 1; attempt <= cfg.MaxAttempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return err
		}

		lastErr = fn(ctx)
		if lastErr == nil {
			return nil
		}

		if cfg.RetryIf != nil && !cfg.RetryIf(lastErr) {
			return lastErr
		}
		if attempt == cfg.MaxAttempts {
			break
		}

		delay := time.Duration(0)
		if cfg.Backoff != nil {
			delay = cfg.Backoff.NextDelay(attempt)
		}
		if cfg.Logger != nil {
			cfg.Logger.DebugWithFields("Retrying after failure", map[string]interface{}{
				"attempt": attempt,
				"delay":   delay.String(),
				"error":   lastErr.Error(),
			})
		}
		if err := Wait(ctx, delay); err != nil {
			return err
		}
	}

	return fmt.Errorf("all %d attempts failed: %w", cfg.MaxAttempts, lastErr)
}
