package shared

import (
	"context"
	"time"
)

// IdempotencyStore remembers client-supplied idempotency keys so that a retried
// request is answered with the result of the first attempt instead of being
// applied twice.
type IdempotencyStore interface {
	// Reserve stores value under key if the key is free.
	// When the key is already taken it returns the stored value and false.
	Reserve(ctx context.Context, key, value string, ttl time.Duration) (existing string, reserved bool, err error)

	// Release frees a key reserved by a request that later failed
	Release(ctx context.Context, key string) error

	// Close closes the store and releases resources
	Close() error
}

// IdempotencyConfig holds configuration for idempotency handling
type IdempotencyConfig struct {
	// TTL is how long a key stays reserved. Default: 24 hours
	TTL time.Duration

	// Enabled determines whether idempotency checking is enabled
	Enabled bool
}

// DefaultIdempotencyConfig returns the default idempotency configuration
func DefaultIdempotencyConfig() IdempotencyConfig {
	return IdempotencyConfig{
		TTL:     24 * time.Hour,
		Enabled: true,
	}
}
