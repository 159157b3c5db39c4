package retry

import (
	"context"
	"math/rand/v2"
	"time"
)

// BackoffConfig contains configuration for exponential backoff
type BackoffConfig struct {
	InitialDelay time.Duration `json:"initial_delay"`
	MaxDelay     time.Duration `json:"max_delay"`
	Multiplier   float64       `json:"multiplier"`
	// MaxAttempts bounds the number of calls; zero or less retries until the
	// context is done.
	MaxAttempts int  `json:"max_attempts"`
	Jitter      bool `json:"jitter"`
}

// DefaultBackoffConfig returns a sensible default configuration
func DefaultBackoffConfig() BackoffConfig {
	return BackoffConfig{
		InitialDelay: 100 * time.Millisecond,
		MaxDelay:     30 * time.Second,
		Multiplier:   2.0,
		MaxAttempts:  5,
		Jitter:       true,
	}
}

// FromMillis builds a config from the millisecond settings used in config files.
func FromMillis(initialMs, maxMs, maxAttempts int) BackoffConfig {
	cfg := DefaultBackoffConfig()
	if initialMs > 0 {
		cfg.InitialDelay = time.Duration(initialMs) * time.Millisecond
	}
	if maxMs > 0 {
		cfg.MaxDelay = time.Duration(maxMs) * time.Millisecond
	}
	if maxAttempts > 0 {
		cfg.MaxAttempts = maxAttempts
	}
	return cfg
}

// Backoff implements exponential backoff with optional jitter
type Backoff struct {
	config BackoffConfig
}

// NewBackoff creates a new exponential backoff instance
func NewBackoff(config BackoffConfig) *Backoff {
	if config.Multiplier < 1 {
		config.Multiplier = 1
	}
	if config.MaxDelay < config.InitialDelay {
		config.MaxDelay = config.InitialDelay
	}
	return &Backoff{config: config}
}

// Retry executes the operation until it succeeds, attempts run out or ctx ends.
func (b *Backoff) Retry(ctx context.Context, operation func() error) error {
	return b.RetryWithPredicate(ctx, operation, func(error) bool { return true })
}

// RetryWithPredicate is Retry that stops early on errors isRetryable rejects.
func (b *Backoff) RetryWithPredicate(ctx context.Context, operation func() error, isRetryable func(error) bool) error {
	var lastErr error

	for attempt := 1; b.config.MaxAttempts <= 0 || attempt <= b.config.MaxAttempts; attempt++ {
		if err := ctx.Err(); err != nil {
			if lastErr != nil {
				return lastErr
			}
			return err
		}

		err := operation()
		if err == nil {
			return nil
		}
		lastErr = err

		if !isRetryable(err) {
			return err
		}
		if attempt == b.config.MaxAttempts {
			break
		}

		timer := time.NewTimer(b.Delay(attempt))
		select {
		case <-ctx.Done():
			timer.Stop()
			return lastErr
		case <-timer.C:
		}
	}

	return lastErr
}

// Delay returns the wait after the given 1-based attempt.
func (b *Backoff) Delay(attempt int) time.Duration {
	delay := float64(b.config.InitialDelay)
	for i := 1; i < attempt; i++ {
		delay *= b.config.Multiplier
		if delay >= float64(b.config.MaxDelay) {
			break
		}
	}
	if delay > float64(b.config.MaxDelay) {
		delay = float64(b.config.MaxDelay)
	}

	// +/-25%
	if b.config.Jitter {
		delay += (rand.Float64() - 0.5) * 0.5 * delay
		if delay > float64(b.config.MaxDelay) {
			delay = float64(b.config.MaxDelay)
		}
	}

	return time.Duration(delay)
}
