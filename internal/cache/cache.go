package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"
)

// Cache is the fail-open face of a Store: backend failures degrade to a miss
// or a skipped write and are logged, never returned.
type Cache struct {
	store      Store
	defaultTTL time.Duration
	logger     *slog.Logger
}

func New(store Store, defaultTTL time.Duration, logger *slog.Logger) *Cache {
	if defaultTTL <= 0 {
		defaultTTL = 5 * time.Minute
	}
	return &Cache{
		store:      store,
		defaultTTL: defaultTTL,
		logger:     logger,
	}
}

// Get decodes the cached value into dest and reports whether it was a hit.
func (c *Cache) Get(ctx context.Context, key, namespace string, dest any) bool {
	fullKey := Key(namespace, key)
	raw, err := c.store.Get(ctx, fullKey)
	if err != nil {
		if !errors.Is(err, ErrMiss) {
			c.logger.Warn("cache get failed", "key", fullKey, "error", err)
		}
		return false
	}
	if err := json.Unmarshal(raw, dest); err != nil {
		c.logger.Warn("cache value undecodable", "key", fullKey, "error", err)
		return false
	}
	return true
}

// Set serializes value and stores it. A non-positive ttl uses the default TTL.
func (c *Cache) Set(ctx context.Context, key string, value any, ttl time.Duration, namespace string) {
	fullKey := Key(namespace, key)
	if ttl <= 0 {
		ttl = c.defaultTTL
	}
	raw, err := json.Marshal(value)
	if err != nil {
		c.logger.Warn("cache value not serializable", "key", fullKey, "error", err)
		return
	}
	if err := c.store.Set(ctx, fullKey, raw, ttl); err != nil {
		c.logger.Warn("cache set failed", "key", fullKey, "error", err)
	}
}

func (c *Cache) Delete(ctx context.Context, key, namespace string) bool {
	fullKey := Key(namespace, key)
	ok, err := c.store.Delete(ctx, fullKey)
	if err != nil {
		c.logger.Warn("cache delete failed", "key", fullKey, "error", err)
		return false
	}
	return ok
}

// DeletePattern deletes the keys in namespace matching pattern. The namespace is
// matched literally, glob characters in it included.
func (c *Cache) DeletePattern(ctx context.Context, pattern, namespace string) int {
	fullPattern := Key(EscapeGlob(namespace), pattern)
	n, err := c.store.DeletePattern(ctx, fullPattern)
	if err != nil {
		c.logger.Warn("cache pattern delete failed", "pattern", fullPattern, "error", err)
	}
	return n
}

// InvalidationResult reports what an invalidation did so the caller can log it.
type InvalidationResult struct {
	Namespace string
	Deleted   int
	Errors    []error
}

func (r InvalidationResult) OK() bool {
	return len(r.Errors) == 0
}

func (r InvalidationResult) Err() error {
	return errors.Join(r.Errors...)
}

func (r InvalidationResult) merge(other InvalidationResult) InvalidationResult {
	r.Deleted += other.Deleted
	r.Errors = append(r.Errors, other.Errors...)
	return r
}

// Invalidate deletes the given keys and patterns in namespace. Every step runs
// even when an earlier one failed; failures are collected in the result.
func (c *Cache) Invalidate(ctx context.Context, namespace string, keys, patterns []string) InvalidationResult {
	res := InvalidationResult{Namespace: namespace}
	for _, key := range keys {
		ok, err := c.store.Delete(ctx, Key(namespace, key))
		if err != nil {
			res.Errors = append(res.Errors, fmt.Errorf("delete %s: %w", Key(namespace, key), err))
			continue
		}
		if ok {
			res.Deleted++
		}
	}
	for _, pattern := range patterns {
		n, err := c.store.DeletePattern(ctx, Key(namespace, pattern))
		res.Deleted += n
		if err != nil {
			res.Errors = append(res.Errors, fmt.Errorf("delete pattern %s: %w", Key(namespace, pattern), err))
		}
	}
	return res
}
