package cache

import (
	"context"
	"log/slog"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/singleflight"
)

// Coordinator implements get-or-compute and mutation invalidation on top of a Cache.
//
// Concurrent misses for the same key within this process share one compute call.
// Nothing coordinates across processes: two processes missing at once may both compute.
//
// Every invalidation bumps the namespace generation. A compute that overlaps a bump
// returns its result to its own callers but never leaves it in the cache, and reads
// issued after the bump do not join it.
type Coordinator struct {
	cache  *Cache
	group  singleflight.Group
	logger *slog.Logger

	mu          sync.Mutex
	generations map[string]*atomic.Int64
}

func NewCoordinator(cache *Cache, logger *slog.Logger) *Coordinator {
	return &Coordinator{
		cache:       cache,
		logger:      logger,
		generations: make(map[string]*atomic.Int64),
	}
}

func (c *Coordinator) generation(namespace string) *atomic.Int64 {
	c.mu.Lock()
	defer c.mu.Unlock()

	gen, ok := c.generations[namespace]
	if !ok {
		gen = &atomic.Int64{}
		c.generations[namespace] = gen
	}
	return gen
}

func (c *Coordinator) Cache() *Cache {
	return c.cache
}

type options struct {
	ttl       time.Duration
	namespace string
}

type Option func(*options)

func WithTTL(ttl time.Duration) Option {
	return func(o *options) {
		o.ttl = ttl
	}
}

func WithNamespace(namespace string) Option {
	return func(o *options) {
		o.namespace = namespace
	}
}

// GetOrSet returns the cached value for key, computing and storing it on a miss.
// Errors from compute are returned; cache failures only cost a recompute.
func GetOrSet[T any](ctx context.Context, c *Coordinator, key string, compute func(ctx context.Context) (T, error), opts ...Option) (T, error) {
	o := options{}
	for _, opt := range opts {
		opt(&o)
	}

	gen := c.generation(o.namespace)
	started := gen.Load()

	var cached T
	if c.cache.Get(ctx, key, o.namespace, &cached) {
		return cached, nil
	}

	flightKey := Key(o.namespace, key) + "#" + strconv.FormatInt(started, 10)
	v, err, _ := c.group.Do(flightKey, func() (any, error) {
		var again T
		if c.cache.Get(ctx, key, o.namespace, &again) {
			return again, nil
		}
		val, err := compute(ctx)
		if err != nil {
			return nil, err
		}
		if gen.Load() != started {
			return val, nil
		}
		c.cache.Set(ctx, key, val, o.ttl, o.namespace)
		// An invalidation may have run its deletes between the check and the Set.
		if gen.Load() != started {
			c.cache.Delete(ctx, key, o.namespace)
		}
		return val, nil
	})
	if err != nil {
		var zero T
		return zero, err
	}
	res, _ := v.(T)
	return res, nil
}

// InvalidateEntity drops the entity's bare key and one key per viewer scope.
func (c *Coordinator) InvalidateEntity(ctx context.Context, namespace, kind, id string, scopes ...string) InvalidationResult {
	keys := make([]string, 0, len(scopes)+1)
	keys = append(keys, EntityKey(kind, id))
	for _, scope := range scopes {
		keys = append(keys, EntityKey(kind, id, scope))
	}
	c.generation(namespace).Add(1)
	return c.cache.Invalidate(ctx, namespace, keys, nil)
}

// InvalidateCollections drops every list and aggregate key in the namespace.
// List keys embed arbitrary filter fingerprints, so they are matched by pattern.
func (c *Coordinator) InvalidateCollections(ctx context.Context, namespace string) InvalidationResult {
	c.generation(namespace).Add(1)
	return c.cache.Invalidate(ctx, namespace, nil, []string{ListPattern, StatsPattern})
}

// InvalidateMutation runs both invalidations a write to one entity requires.
func (c *Coordinator) InvalidateMutation(ctx context.Context, namespace, kind, id string, scopes []string) InvalidationResult {
	res := c.InvalidateEntity(ctx, namespace, kind, id, scopes...)
	return res.merge(c.InvalidateCollections(ctx, namespace))
}
