package queue

import (
	"context"
	"errors"
	"log/slog"
	"testing"
	"time"

	"github.com/RezaEskandarii/taskfire/custom_errors"
	"github.com/RezaEskandarii/taskfire/internal/state"
	"github.com/RezaEskandarii/taskfire/internal/store"
	"github.com/RezaEskandarii/taskfire/internal/store/memory"
	"github.com/RezaEskandarii/taskfire/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type statusPayload struct {
	EntityID string `json:"entityId"`
	Status   string `json:"status"`
}

func newTestQueue(opts ...Option) (*Queue, *memory.JobStore) {
	jobs := memory.NewJobStore()
	return New(jobs, slog.New(slog.DiscardHandler), opts...), jobs
}

func TestEnqueue_AppliesKindDefaults(t *testing.T) {
	q, jobs := newTestQueue()
	ctx := context.Background()

	res, err := q.Enqueue(ctx, types.KindTaskOverdue, statusPayload{EntityID: "t1", Status: "pending"}, EnqueueOptions{Priority: 10})
	require.NoError(t, err)
	assert.False(t, res.Deduplicated)
	assert.NotEmpty(t, res.JobID)

	job, err := jobs.FindByID(ctx, res.JobID)
	require.NoError(t, err)
	assert.Equal(t, state.StatusPending, job.Status)
	assert.Equal(t, 3, job.MaxAttempts)
	assert.Equal(t, types.BackoffExponential, job.Backoff.Type)
	assert.Equal(t, 5*time.Second, job.Backoff.Base)
	assert.Equal(t, 10, job.Priority)
	assert.JSONEq(t, `{"entityId":"t1","status":"pending"}`, string(job.Payload))
}

func TestEnqueue_MutationKindsUseShortBackoff(t *testing.T) {
	q, _ := newTestQueue()

	for _, kind := range []types.JobKind{types.KindTaskCreated, types.KindTaskStatusChanged} {
		p, ok := q.Policy(kind)
		require.True(t, ok)
		assert.Equal(t, 2*time.Second, p.Backoff.Base, kind)
	}
}

func TestEnqueue_OptionsOverrideDefaults(t *testing.T) {
	q, jobs := newTestQueue()
	ctx := context.Background()
	fixed := types.BackoffPolicy{Type: types.BackoffFixed, Base: time.Second}

	res, err := q.Enqueue(ctx, types.KindTaskCreated, statusPayload{EntityID: "t1"}, EnqueueOptions{
		MaxAttempts: 5,
		Backoff:     &fixed,
		Delay:       time.Hour,
	})
	require.NoError(t, err)

	job, err := jobs.FindByID(ctx, res.JobID)
	require.NoError(t, err)
	assert.Equal(t, 5, job.MaxAttempts)
	assert.Equal(t, fixed, job.Backoff)
	assert.True(t, job.AvailableAt.After(time.Now().Add(59*time.Minute)))
}

func TestEnqueue_Dedupe(t *testing.T) {
	q, _ := newTestQueue()
	ctx := context.Background()
	opts := EnqueueOptions{DedupeID: "status:t1:completed"}

	first, err := q.Enqueue(ctx, types.KindTaskStatusChanged, statusPayload{EntityID: "t1"}, opts)
	require.NoError(t, err)
	second, err := q.Enqueue(ctx, types.KindTaskStatusChanged, statusPayload{EntityID: "t1"}, opts)
	require.NoError(t, err)

	assert.Equal(t, "status:t1:completed", first.JobID)
	assert.False(t, first.Deduplicated)
	assert.Equal(t, first.JobID, second.JobID)
	assert.True(t, second.Deduplicated)
}

func TestEnqueue_UnknownKind(t *testing.T) {
	q, _ := newTestQueue()

	_, err := q.Enqueue(context.Background(), types.JobKind("task.archived"), statusPayload{}, EnqueueOptions{})
	kind, ok := custom_errors.KindOf(err)
	require.True(t, ok)
	assert.Equal(t, custom_errors.KindValidation, kind)
}

func TestEnqueue_RetryPolicyOption(t *testing.T) {
	q, jobs := newTestQueue(WithRetryPolicy(types.KindTaskCreated, RetryPolicy{MaxAttempts: 0}))

	res, err := q.Enqueue(context.Background(), types.KindTaskCreated, statusPayload{}, EnqueueOptions{})
	require.NoError(t, err)

	job, err := jobs.FindByID(context.Background(), res.JobID)
	require.NoError(t, err)
	assert.Equal(t, 1, job.MaxAttempts)
}

type brokenJobStore struct {
	store.JobStore
}

func (brokenJobStore) Insert(context.Context, *types.Job) (bool, error) {
	return false, errors.New("database connection lost")
}

func TestEnqueue_StoreFailureIsInfrastructure(t *testing.T) {
	q := New(brokenJobStore{}, slog.New(slog.DiscardHandler))

	_, err := q.Enqueue(context.Background(), types.KindTaskCreated, statusPayload{}, EnqueueOptions{})
	kind, ok := custom_errors.KindOf(err)
	require.True(t, ok)
	assert.Equal(t, custom_errors.KindInfrastructure, kind)
}
