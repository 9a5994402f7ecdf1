package cache

import (
	"context"
	"time"
)

// Store represents a shared cache interface used across the application. It backs the per-email
// OTP request throttle, the HTTP rate limiter and the session denylist.
type Store interface {
	IncrementWithTTL(ctx context.Context, key string, window time.Duration) (int64, time.Duration, error)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
	Get(ctx context.Context, key string) ([]byte, bool, error)
	Delete(ctx context.Context, keys ...string) error
}

// Purger is implemented by stores that need periodic removal of expired entries.
type Purger interface {
	PurgeExpired(ctx context.Context, now time.Time) (int64, error)
}
