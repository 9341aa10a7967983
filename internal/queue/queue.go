package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/RezaEskandarii/taskfire/custom_errors"
	"github.com/RezaEskandarii/taskfire/internal/constants"
	"github.com/RezaEskandarii/taskfire/internal/store"
	"github.com/RezaEskandarii/taskfire/types"
	"github.com/google/uuid"
)

// RetryPolicy is the default attempt limit and backoff for one job kind.
type RetryPolicy struct {
	MaxAttempts int
	Backoff     types.BackoffPolicy
}

// DefaultRetryPolicies holds the per-kind retry defaults.
var DefaultRetryPolicies = map[types.JobKind]RetryPolicy{
	types.KindTaskStatusChanged: {
		MaxAttempts: constants.DefaultMaxAttempts,
		Backoff:     types.BackoffPolicy{Type: types.BackoffExponential, Base: constants.MutationBackoffBase},
	},
	types.KindTaskCreated: {
		MaxAttempts: constants.DefaultMaxAttempts,
		Backoff:     types.BackoffPolicy{Type: types.BackoffExponential, Base: constants.MutationBackoffBase},
	},
	types.KindTaskOverdue: {
		MaxAttempts: constants.DefaultMaxAttempts,
		Backoff:     types.BackoffPolicy{Type: types.BackoffExponential, Base: constants.OverdueBackoffBase},
	},
}

// EnqueueOptions overrides the kind's defaults. Zero values take the default.
type EnqueueOptions struct {
	MaxAttempts int
	Backoff     *types.BackoffPolicy
	Priority    int
	// DedupeID becomes the job id. Enqueuing while a job with the same id is
	// still pending or active creates nothing.
	DedupeID string
	Delay    time.Duration
}

type EnqueueResult struct {
	JobID        string
	Deduplicated bool
}

// Enqueuer is the producer side of the queue.
type Enqueuer interface {
	Enqueue(ctx context.Context, kind types.JobKind, payload any, opts EnqueueOptions) (EnqueueResult, error)
}

type Queue struct {
	store    store.JobStore
	policies map[types.JobKind]RetryPolicy
	logger   *slog.Logger
	now      func() time.Time
}

type Option func(*Queue)

// WithRetryPolicy replaces the default retry policy of one kind.
func WithRetryPolicy(kind types.JobKind, policy RetryPolicy) Option {
	return func(q *Queue) {
		q.policies[kind] = policy
	}
}

func New(jobStore store.JobStore, logger *slog.Logger, opts ...Option) *Queue {
	q := &Queue{
		store:    jobStore,
		policies: make(map[types.JobKind]RetryPolicy, len(DefaultRetryPolicies)),
		logger:   logger,
		now:      time.Now,
	}
	for kind, policy := range DefaultRetryPolicies {
		q.policies[kind] = policy
	}
	for _, opt := range opts {
		opt(q)
	}
	return q
}

// Policy returns the effective retry policy of kind.
func (q *Queue) Policy(kind types.JobKind) (RetryPolicy, bool) {
	p, ok := q.policies[kind]
	return p, ok
}

func (q *Queue) Enqueue(ctx context.Context, kind types.JobKind, payload any, opts EnqueueOptions) (EnqueueResult, error) {
	policy, ok := q.policies[kind]
	if !ok {
		return EnqueueResult{}, custom_errors.Validation("enqueue", fmt.Errorf("unknown job kind %q", kind))
	}

	raw, err := json.Marshal(payload)
	if err != nil {
		return EnqueueResult{}, custom_errors.Validation("enqueue", fmt.Errorf("marshal %s payload: %w", kind, err))
	}

	maxAttempts := policy.MaxAttempts
	if opts.MaxAttempts > 0 {
		maxAttempts = opts.MaxAttempts
	}
	if maxAttempts < 1 {
		maxAttempts = 1
	}
	backoff := policy.Backoff
	if opts.Backoff != nil {
		backoff = *opts.Backoff
	}

	id := opts.DedupeID
	if id == "" {
		id = uuid.NewString()
	}

	job := &types.Job{
		ID:          id,
		Kind:        kind,
		Payload:     raw,
		MaxAttempts: maxAttempts,
		Backoff:     backoff,
		Priority:    opts.Priority,
		AvailableAt: q.now().Add(opts.Delay),
	}

	created, err := q.store.Insert(ctx, job)
	if err != nil {
		return EnqueueResult{}, custom_errors.Infrastructure("enqueue", err)
	}
	if !created {
		q.logger.Debug("job deduplicated", "job_id", id, "job_kind", kind)
		return EnqueueResult{JobID: id, Deduplicated: true}, nil
	}

	q.logger.Debug("job enqueued", "job_id", id, "job_kind", kind, "priority", opts.Priority)
	return EnqueueResult{JobID: id}, nil
}
