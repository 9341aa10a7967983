// Package cache implements the cache-aside layer: a TTL key/value backend,
// a fail-open facade with namespacing, and a get-or-compute coordinator.
package cache

import (
	"context"
	"errors"
	"time"
)

// ErrMiss is returned by a Store when the key is absent or expired.
var ErrMiss = errors.New("cache miss")

// Store is the raw backend. Unlike Cache it reports every failure to the caller.
type Store interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
	Delete(ctx context.Context, key string) (bool, error)
	// DeletePattern removes every key matching a glob and returns how many were removed.
	// Globs follow Redis SCAN MATCH: '*' and '?' also match '/' and a backslash escapes.
	DeletePattern(ctx context.Context, pattern string) (int, error)
}
