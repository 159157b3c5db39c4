package retry

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func fastConfig(attempts int) BackoffConfig {
	return BackoffConfig{
		InitialDelay: time.Millisecond,
		MaxDelay:     5 * time.Millisecond,
		Multiplier:   2,
		MaxAttempts:  attempts,
	}
}

func TestBackoff_Retry(t *testing.T) {
	tests := []struct {
		name          string
		failures      int
		maxAttempts   int
		expectErr     bool
		expectedCalls int
	}{
		{"succeeds first time", 0, 3, false, 1},
		{"succeeds after failures", 2, 3, false, 3},
		{"exhausts attempts", 5, 3, true, 3},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			calls := 0
			err := NewBackoff(fastConfig(tt.maxAttempts)).Retry(context.Background(), func() error {
				calls++
				if calls <= tt.failures {
					return errors.New("transient")
				}
				return nil
			})

			if tt.expectErr {
				assert.EqualError(t, err, "transient")
			} else {
				assert.NoError(t, err)
			}
			assert.Equal(t, tt.expectedCalls, calls)
		})
	}
}

func TestBackoff_RetryWithPredicate_StopsOnPermanentError(t *testing.T) {
	permanent := errors.New("permanent")
	calls := 0

	err := NewBackoff(fastConfig(5)).RetryWithPredicate(context.Background(), func() error {
		calls++
		return permanent
	}, func(err error) bool { return !errors.Is(err, permanent) })

	assert.ErrorIs(t, err, permanent)
	assert.Equal(t, 1, calls)
}

func TestBackoff_UnlimitedAttemptsStopOnContext(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Millisecond)
	defer cancel()

	calls := 0
	err := NewBackoff(fastConfig(0)).Retry(ctx, func() error {
		calls++
		return errors.New("still down")
	})

	assert.EqualError(t, err, "still down")
	assert.Greater(t, calls, 1)
}

func TestBackoff_CancelledBeforeFirstCall(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := NewBackoff(fastConfig(3)).Retry(ctx, func() error { return nil })
	assert.ErrorIs(t, err, context.Canceled)
}

func TestBackoff_Delay(t *testing.T) {
	b := NewBackoff(BackoffConfig{InitialDelay: 100 * time.Millisecond, MaxDelay: time.Second, Multiplier: 2})

	assert.Equal(t, 100*time.Millisecond, b.Delay(1))
	assert.Equal(t, 200*time.Millisecond, b.Delay(2))
	assert.Equal(t, 400*time.Millisecond, b.Delay(3))
	assert.Equal(t, time.Second, b.Delay(10))
}

func TestBackoff_DelayWithJitterStaysInRange(t *testing.T) {
	b := NewBackoff(BackoffConfig{InitialDelay: 100 * time.Millisecond, MaxDelay: time.Second, Multiplier: 2, Jitter: true})

	for i := 0; i < 50; i++ {
		d := b.Delay(2)
		assert.GreaterOrEqual(t, d, 150*time.Millisecond)
		assert.LessOrEqual(t, d, 250*time.Millisecond)
	}
}

func TestFromMillis(t *testing.T) {
	cfg := FromMillis(250, 4000, 7)
	assert.Equal(t, 250*time.Millisecond, cfg.InitialDelay)
	assert.Equal(t, 4*time.Second, cfg.MaxDelay)
	assert.Equal(t, 7, cfg.MaxAttempts)

	defaults := FromMillis(0, 0, 0)
	assert.Equal(t, DefaultBackoffConfig(), defaults)
}
