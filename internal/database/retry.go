package database

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"waprofiles/internal/constants"
	"waprofiles/internal/retry"
)

var dbBackoff = retry.BackoffConfig{
	InitialDelay: time.Duration(constants.DefaultRetryBackoffMs) * time.Millisecond,
	MaxDelay:     time.Duration(constants.DefaultMaxBackoffMs) * time.Millisecond,
	Multiplier:   2,
	MaxAttempts:  constants.DefaultDatabaseRetryAttempts,
	Jitter:       true,
}

// withRetry runs a database operation, retrying transient sqlite failures.
func withRetry(ctx context.Context, operationName string, operation func() error) error {
	attempts := 0
	err := retry.NewBackoff(dbBackoff).RetryWithPredicate(ctx, func() error {
		attempts++
		return operation()
	}, isRetryableDBError)
	if err == nil {
		return nil
	}
	if !isRetryableDBError(err) {
		return fmt.Errorf("%s failed (non-retryable): %w", operationName, err)
	}
	return fmt.Errorf("%s failed after %d attempts: %w", operationName, attempts, err)
}

// isRetryableDBError determines if a database error is worth retrying
func isRetryableDBError(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}

	msg := err.Error()
	for _, transient := range []string{"database is locked", "database table is locked", "disk I/O error", "SQLITE_BUSY"} {
		if strings.Contains(msg, transient) {
			return true
		}
	}
	return false
}
