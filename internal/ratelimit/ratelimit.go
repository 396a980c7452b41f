// Package ratelimit tracks failed login attempts per client IP. The store is
// injected into the auth layer rather than held as package state, so tests
// and multi-instance deployments can swap the backing.
package ratelimit

import (
	"context"
	"time"
)

// Store counts failures within a rolling window.
type Store interface {
	// RecordFailure registers one failed attempt for the key and returns the
	// number of failures currently in the window.
	RecordFailure(ctx context.Context, key string) (int, error)

	// RetryAfter reports how long the key must wait before another attempt
	// is allowed. Zero means the key is not blocked.
	RetryAfter(ctx context.Context, key string) (time.Duration, error)

	// Clear wipes the key's failure count, typically after a successful
	// login.
	Clear(ctx context.Context, key string) error
}
