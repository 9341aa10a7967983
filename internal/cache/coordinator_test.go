package cache

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestCoordinator(store Store) *Coordinator {
	logger := slog.New(slog.DiscardHandler)
	return NewCoordinator(New(store, time.Minute, logger), logger)
}

func TestGetOrSet_ComputesOnceAndCaches(t *testing.T) {
	c := newTestCoordinator(NewMemoryStore())
	ctx := context.Background()
	var calls atomic.Int32
	compute := func(context.Context) (cachedTask, error) {
		calls.Add(1)
		return cachedTask{ID: "1", Title: "from store"}, nil
	}

	first, err := GetOrSet(ctx, c, EntityKey("task", "1"), compute, WithNamespace("tasks"), WithTTL(time.Minute))
	require.NoError(t, err)
	second, err := GetOrSet(ctx, c, EntityKey("task", "1"), compute, WithNamespace("tasks"))
	require.NoError(t, err)

	assert.Equal(t, first, second)
	assert.Equal(t, int32(1), calls.Load())
}

func TestGetOrSet_ConcurrentMissesShareOneCompute(t *testing.T) {
	c := newTestCoordinator(NewMemoryStore())
	ctx := context.Background()
	var calls atomic.Int32
	release := make(chan struct{})
	compute := func(context.Context) (int, error) {
		calls.Add(1)
		<-release
		return 42, nil
	}

	var wg sync.WaitGroup
	results := make([]int, 10)
	for i := range results {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			v, err := GetOrSet(ctx, c, StatsKey("user-1"), compute, WithNamespace("tasks"))
			assert.NoError(t, err)
			results[i] = v
		}(i)
	}
	time.Sleep(20 * time.Millisecond)
	close(release)
	wg.Wait()

	assert.Equal(t, int32(1), calls.Load())
	for _, v := range results {
		assert.Equal(t, 42, v)
	}
}

func TestGetOrSet_ComputeErrorPropagates(t *testing.T) {
	c := newTestCoordinator(NewMemoryStore())
	boom := errors.New("query failed")

	_, err := GetOrSet(context.Background(), c, "task:1", func(context.Context) (cachedTask, error) {
		return cachedTask{}, boom
	})
	assert.ErrorIs(t, err, boom)

	// Nothing cached after a failed compute.
	var got cachedTask
	assert.False(t, c.Cache().Get(context.Background(), "task:1", "", &got))
}

func TestGetOrSet_CacheFailureStillComputes(t *testing.T) {
	c := newTestCoordinator(failingStore{})

	v, err := GetOrSet(context.Background(), c, "task:1", func(context.Context) (string, error) {
		return "fresh", nil
	})
	require.NoError(t, err)
	assert.Equal(t, "fresh", v)
}

func TestCoordinator_InvalidateEntityAllScopes(t *testing.T) {
	store := NewMemoryStore()
	c := newTestCoordinator(store)
	ctx := context.Background()
	cache := c.Cache()
	cache.Set(ctx, EntityKey("task", "1"), cachedTask{ID: "1"}, 0, "tasks")
	cache.Set(ctx, EntityKey("task", "1", "admin"), cachedTask{ID: "1"}, 0, "tasks")
	cache.Set(ctx, EntityKey("task", "1", "user"), cachedTask{ID: "1"}, 0, "tasks")
	cache.Set(ctx, EntityKey("task", "2", "user"), cachedTask{ID: "2"}, 0, "tasks")

	res := c.InvalidateEntity(ctx, "tasks", "task", "1", "admin", "user")

	assert.True(t, res.OK())
	assert.Equal(t, 3, res.Deleted)
	var got cachedTask
	assert.True(t, cache.Get(ctx, EntityKey("task", "2", "user"), "tasks", &got))
}

func TestCoordinator_ConcurrentMutationsLeaveListsCold(t *testing.T) {
	c := newTestCoordinator(NewMemoryStore())
	ctx := context.Background()
	listKey := ListKey(map[string]any{"ownerId": "u1", "page": 1})
	c.Cache().Set(ctx, listKey, []string{"stale"}, 0, "tasks")
	c.Cache().Set(ctx, StatsKey("u1"), map[string]int{"open": 3}, 0, "tasks")

	var wg sync.WaitGroup
	for i := 0; i < 2; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			res := c.InvalidateMutation(ctx, "tasks", "task", "1", []string{"admin", "user"})
			assert.True(t, res.OK())
		}()
	}
	wg.Wait()

	var calls atomic.Int32
	list, err := GetOrSet(ctx, c, listKey, func(context.Context) ([]string, error) {
		calls.Add(1)
		return []string{"fresh"}, nil
	}, WithNamespace("tasks"))
	require.NoError(t, err)
	assert.Equal(t, []string{"fresh"}, list)
	assert.Equal(t, int32(1), calls.Load())

	var stats map[string]int
	assert.False(t, c.Cache().Get(ctx, StatsKey("u1"), "tasks", &stats))
}

func TestCoordinator_ComputeOverlappingInvalidationIsNotCached(t *testing.T) {
	c := newTestCoordinator(NewMemoryStore())
	ctx := context.Background()
	listKey := ListKey(map[string]any{"ownerId": "u1"})

	var source atomic.Value
	source.Store("old")
	var calls atomic.Int32
	started := make(chan struct{})
	release := make(chan struct{})
	compute := func(context.Context) (string, error) {
		v := source.Load().(string)
		if calls.Add(1) == 1 {
			close(started)
			<-release
		}
		return v, nil
	}

	firstDone := make(chan string)
	go func() {
		v, err := GetOrSet(ctx, c, listKey, compute, WithNamespace("tasks"))
		assert.NoError(t, err)
		firstDone <- v
	}()

	<-started
	source.Store("new")
	require.True(t, c.InvalidateCollections(ctx, "tasks").OK())

	second, err := GetOrSet(ctx, c, listKey, compute, WithNamespace("tasks"))
	require.NoError(t, err)
	assert.Equal(t, "new", second)

	close(release)
	assert.Equal(t, "old", <-firstDone)

	var cached string
	require.True(t, c.Cache().Get(ctx, listKey, "tasks", &cached))
	assert.Equal(t, "new", cached)
	assert.Equal(t, int32(2), calls.Load())
}
