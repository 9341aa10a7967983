package worker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/RezaEskandarii/taskfire/custom_errors"
	"github.com/RezaEskandarii/taskfire/internal/jobs"
	"github.com/RezaEskandarii/taskfire/internal/metrics"
	"github.com/RezaEskandarii/taskfire/internal/state"
	"github.com/RezaEskandarii/taskfire/internal/store/memory"
	"github.com/RezaEskandarii/taskfire/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type testClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *testClock) Set(t time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = t
}

type testPool struct {
	*Pool
	jobs     *memory.JobStore
	registry *jobs.Registry
	metrics  *metrics.Registry
}

func newTestPool(t *testing.T, cfg Config) *testPool {
	t.Helper()
	jobStore := memory.NewJobStore()
	registry := jobs.NewRegistry()
	m := metrics.NewRegistry()
	if cfg.PollInterval == 0 {
		cfg.PollInterval = 5 * time.Millisecond
	}
	return &testPool{
		Pool:     NewPool(jobStore, registry, m, slog.New(slog.DiscardHandler), cfg),
		jobs:     jobStore,
		registry: registry,
		metrics:  m,
	}
}

func (tp *testPool) insert(t *testing.T, id string, maxAttempts int, availableAt time.Time) {
	t.Helper()
	created, err := tp.jobs.Insert(context.Background(), &types.Job{
		ID:          id,
		Kind:        types.KindTaskCreated,
		Payload:     json.RawMessage(`{"entityId":"` + id + `","status":"pending"}`),
		MaxAttempts: maxAttempts,
		Backoff:     types.BackoffPolicy{Type: types.BackoffExponential, Base: 2 * time.Second},
		AvailableAt: availableAt,
	})
	require.NoError(t, err)
	require.True(t, created)
}

func (tp *testPool) handle(t *testing.T, fn func(ctx context.Context, p jobs.TaskCreatedPayload) error) {
	t.Helper()
	require.NoError(t, jobs.Register(tp.registry, types.KindTaskCreated, fn))
}

func (tp *testPool) job(t *testing.T, id string) *types.Job {
	t.Helper()
	job, err := tp.jobs.FindByID(context.Background(), id)
	require.NoError(t, err)
	return job
}

func (tp *testPool) countStatus(status state.JobStatus) int {
	counts, _ := tp.jobs.CountByStatus(context.Background())
	return counts[status]
}

func TestPool_SuccessCompletesJob(t *testing.T) {
	tp := newTestPool(t, Config{})
	tp.handle(t, func(context.Context, jobs.TaskCreatedPayload) error { return nil })
	tp.insert(t, "j1", 3, time.Now())

	ran, err := tp.RunOnce(context.Background())
	require.NoError(t, err)
	assert.True(t, ran)

	assert.Equal(t, state.StatusCompleted, tp.job(t, "j1").Status)
	snap := tp.metrics.Snapshot()
	assert.Equal(t, int64(1), snap.Processed)
	assert.Equal(t, int64(0), snap.Failed)
}

func TestPool_RunOnceEmptyQueue(t *testing.T) {
	tp := newTestPool(t, Config{})

	ran, err := tp.RunOnce(context.Background())
	require.NoError(t, err)
	assert.False(t, ran)
}

func TestPool_RetryableFailureReschedulesWithBackoff(t *testing.T) {
	tp := newTestPool(t, Config{})
	clock := &testClock{now: time.Date(2025, 3, 1, 9, 0, 0, 0, time.UTC)}
	tp.now = clock.Now
	tp.handle(t, func(context.Context, jobs.TaskCreatedPayload) error {
		return errors.New("Database timeout")
	})
	tp.insert(t, "j1", 3, clock.Now())

	_, err := tp.RunOnce(context.Background())
	require.NoError(t, err)

	job := tp.job(t, "j1")
	assert.Equal(t, state.StatusPending, job.Status)
	assert.Equal(t, 1, job.AttemptsMade)
	assert.Equal(t, clock.Now().Add(2*time.Second), job.AvailableAt)
	assert.Equal(t, "Database timeout", job.LastError)
	assert.Equal(t, int64(1), tp.metrics.Snapshot().Failed)
}

func TestPool_NonRetryableFailureRunsOnce(t *testing.T) {
	tp := newTestPool(t, Config{})
	var calls atomic.Int32
	tp.handle(t, func(context.Context, jobs.TaskCreatedPayload) error {
		calls.Add(1)
		return custom_errors.Validation("task.created", errors.New("title is required"))
	})
	tp.insert(t, "j1", 3, time.Now())

	for i := 0; i < 3; i++ {
		_, err := tp.RunOnce(context.Background())
		require.NoError(t, err)
	}

	job := tp.job(t, "j1")
	assert.Equal(t, state.StatusFailed, job.Status)
	assert.Equal(t, 1, job.AttemptsMade)
	assert.Equal(t, int32(1), calls.Load())
}

func TestPool_RetriesExhaust(t *testing.T) {
	tp := newTestPool(t, Config{})
	clock := &testClock{now: time.Date(2025, 3, 1, 9, 0, 0, 0, time.UTC)}
	tp.now = clock.Now
	var calls atomic.Int32
	tp.handle(t, func(context.Context, jobs.TaskCreatedPayload) error {
		calls.Add(1)
		return errors.New("connection refused")
	})
	tp.insert(t, "j1", 3, clock.Now())

	var delays []time.Duration
	for {
		before := clock.Now()
		ran, err := tp.RunOnce(context.Background())
		require.NoError(t, err)
		if !ran {
			break
		}
		job := tp.job(t, "j1")
		if job.Status != state.StatusPending {
			break
		}
		delays = append(delays, job.AvailableAt.Sub(before))
		clock.Set(job.AvailableAt)
	}

	job := tp.job(t, "j1")
	assert.Equal(t, state.StatusFailed, job.Status)
	assert.Equal(t, 3, job.AttemptsMade)
	assert.Equal(t, int32(3), calls.Load())
	assert.Equal(t, []time.Duration{2 * time.Second, 4 * time.Second}, delays)
}

func TestPool_InvalidPayloadFailsImmediately(t *testing.T) {
	tp := newTestPool(t, Config{})
	called := false
	tp.handle(t, func(context.Context, jobs.TaskCreatedPayload) error {
		called = true
		return nil
	})
	_, err := tp.jobs.Insert(context.Background(), &types.Job{
		ID:          "j1",
		Kind:        types.KindTaskCreated,
		Payload:     json.RawMessage(`{"status":"pending"}`),
		MaxAttempts: 3,
		AvailableAt: time.Now(),
	})
	require.NoError(t, err)

	_, err = tp.RunOnce(context.Background())
	require.NoError(t, err)

	job := tp.job(t, "j1")
	assert.False(t, called)
	assert.Equal(t, state.StatusFailed, job.Status)
	assert.Equal(t, 1, job.AttemptsMade)
}

func TestPool_UnknownKindFailsImmediately(t *testing.T) {
	tp := newTestPool(t, Config{})
	_, err := tp.jobs.Insert(context.Background(), &types.Job{
		ID:          "j1",
		Kind:        types.KindTaskOverdue,
		Payload:     json.RawMessage(`{}`),
		MaxAttempts: 3,
		AvailableAt: time.Now(),
	})
	require.NoError(t, err)

	_, err = tp.RunOnce(context.Background())
	require.NoError(t, err)

	job := tp.job(t, "j1")
	assert.Equal(t, state.StatusFailed, job.Status)
	assert.Contains(t, job.LastError, "no handler registered")
}

func TestPool_PanicIsAFailure(t *testing.T) {
	tp := newTestPool(t, Config{})
	tp.handle(t, func(context.Context, jobs.TaskCreatedPayload) error {
		panic("nil map")
	})
	tp.insert(t, "j1", 1, time.Now())

	_, err := tp.RunOnce(context.Background())
	require.NoError(t, err)

	job := tp.job(t, "j1")
	assert.Equal(t, state.StatusFailed, job.Status)
	assert.Contains(t, job.LastError, "panic: nil map")
}

func TestPool_ConcurrencyBound(t *testing.T) {
	tp := newTestPool(t, Config{Concurrency: 2})
	var inFlight, peak atomic.Int32
	tp.handle(t, func(context.Context, jobs.TaskCreatedPayload) error {
		n := inFlight.Add(1)
		for {
			p := peak.Load()
			if n <= p || peak.CompareAndSwap(p, n) {
				break
			}
		}
		time.Sleep(20 * time.Millisecond)
		inFlight.Add(-1)
		return nil
	})
	for i := 0; i < 10; i++ {
		tp.insert(t, fmt.Sprintf("j%d", i), 3, time.Now())
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- tp.Start(ctx) }()

	assert.Eventually(t, func() bool { return tp.countStatus(state.StatusCompleted) == 10 }, 5*time.Second, 10*time.Millisecond)
	cancel()
	require.NoError(t, <-done)

	assert.LessOrEqual(t, peak.Load(), int32(2))
	assert.Equal(t, int32(2), peak.Load())
}

func TestPool_RateWindowSpacesDequeues(t *testing.T) {
	tp := newTestPool(t, Config{Concurrency: 5, RateMax: 2, RateWindow: 200 * time.Millisecond})
	tp.handle(t, func(context.Context, jobs.TaskCreatedPayload) error { return nil })
	for i := 0; i < 5; i++ {
		tp.insert(t, fmt.Sprintf("j%d", i), 3, time.Now())
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	started := time.Now()
	go func() { done <- tp.Start(ctx) }()

	assert.Eventually(t, func() bool { return tp.countStatus(state.StatusCompleted) == 5 }, 5*time.Second, 5*time.Millisecond)
	elapsed := time.Since(started)
	cancel()
	require.NoError(t, <-done)

	assert.GreaterOrEqual(t, elapsed, 350*time.Millisecond)
}

func TestPool_ShutdownWaitsForInFlightJobs(t *testing.T) {
	tp := newTestPool(t, Config{})
	var handlerCtxErr atomic.Value
	tp.handle(t, func(ctx context.Context, _ jobs.TaskCreatedPayload) error {
		time.Sleep(100 * time.Millisecond)
		handlerCtxErr.Store(fmt.Sprint(ctx.Err()))
		return nil
	})
	tp.insert(t, "j1", 3, time.Now())

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- tp.Start(ctx) }()

	require.Eventually(t, func() bool { return tp.countStatus(state.StatusActive) == 1 }, time.Second, 5*time.Millisecond)
	cancel()
	require.NoError(t, <-done)

	assert.Equal(t, state.StatusCompleted, tp.job(t, "j1").Status)
	assert.Equal(t, "<nil>", handlerCtxErr.Load())
}

func TestPool_StartReleasesStaleJobs(t *testing.T) {
	tp := newTestPool(t, Config{StaleTimeout: time.Minute})
	tp.handle(t, func(context.Context, jobs.TaskCreatedPayload) error { return nil })
	tp.insert(t, "j1", 3, time.Now().Add(-2*time.Hour))

	_, err := tp.jobs.Claim(context.Background(), "crashed", time.Now().Add(-time.Hour))
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- tp.Start(ctx) }()

	assert.Eventually(t, func() bool { return tp.countStatus(state.StatusCompleted) == 1 }, 2*time.Second, 10*time.Millisecond)
	cancel()
	require.NoError(t, <-done)
}

func TestFailure_Unwrap(t *testing.T) {
	cause := errors.New("connection refused")
	f := &Failure{Err: cause, Attempt: 2}

	assert.ErrorIs(t, f, cause)
	assert.Contains(t, f.Error(), "attempt 2")
}
