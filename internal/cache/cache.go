// Package cache is the key-value collaborator contract consumed by the
// credential cache, the institution directory and the response caches.
package cache

import (
	"context"
	"errors"
	"time"
)

// ErrNotFound is returned by Get when the key is absent or expired.
var ErrNotFound = errors.New("cache: key not found")

// IsNotFound reports whether err is a cache miss rather than a failure.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}

// Store is a TTL-aware key-value store. Values are opaque bytes so every
// implementation round-trips the same way.
type Store interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
	Delete(ctx context.Context, key string) error
}
