package store

import (
	"context"
	"log/slog"
	"strings"
	"time"
)

// IsSQLiteBusyError checks if the error is a SQLITE_BUSY error.
// This occurs when the database is locked by another connection.
func IsSQLiteBusyError(err error) bool {
	if err == nil {
		return false
	}
	return strings.Contains(err.Error(), "SQLITE_BUSY")
}

// IsSQLiteLockedError checks if the error is a "database is locked" error.
func IsSQLiteLockedError(err error) bool {
	if err == nil {
		return false
	}
	return strings.Contains(err.Error(), "database is locked")
}

// IsSQLiteConflictError checks if the error is either a SQLITE_BUSY or
// "database is locked" error. These typically warrant retry logic.
func IsSQLiteConflictError(err error) bool {
	if err == nil {
		return false
	}
	return IsSQLiteBusyError(err) || IsSQLiteLockedError(err)
}

// RetryPolicy bundles the tuning for WithRetry call sites. The zero value
// falls back to the defaults in Run.
type RetryPolicy struct {
	MaxRetries int
	BaseDelay  time.Duration
}

// Run executes op under the policy.
func (p RetryPolicy) Run(ctx context.Context, op func() error) error {
	retries := p.MaxRetries
	if retries <= 0 {
		retries = 3
	}
	delay := p.BaseDelay
	if delay <= 0 {
		delay = 50 * time.Millisecond
	}
	return WithRetry(ctx, retries, delay, op)
}

// WithRetry runs op, retrying with exponential backoff on SQLite
// concurrency errors. Non-conflict errors return immediately.
func WithRetry(ctx context.Context, maxRetries int, baseDelay time.Duration, op func() error) error {
	var err error
	for i := 0; i < maxRetries; i++ {
		err = op()
		if err == nil {
			return nil
		}

		if !IsSQLiteConflictError(err) || i == maxRetries-1 {
			return err
		}

		delay := baseDelay * time.Duration(1<<i) // exponential backoff: base, 2x, 4x...
		slog.Debug("Database locked, retrying", "attempt", i+1, "delay", delay)

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(delay):
		}
	}
	return err
}
