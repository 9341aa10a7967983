package store

import (
	"context"
	"time"

	"github.com/RezaEskandarii/taskfire/internal/state"
	"github.com/RezaEskandarii/taskfire/types"
)

// JobStore defines the durable backend of the job queue.
// Only the store mutates job records; workers call these operations to move a job
// through its lifecycle.
type JobStore interface {
	// Insert persists a new pending job. When a job with the same ID exists and is not
	// terminal, nothing is written and created is false. A terminal job with the same
	// ID is re-armed with the new payload and options.
	Insert(ctx context.Context, job *types.Job) (created bool, err error)

	// Claim atomically marks the next available pending job active for workerID and returns it.
	// Highest priority wins, then the oldest available_at. Returns nil, nil when nothing is available.
	Claim(ctx context.Context, workerID string, now time.Time) (*types.Job, error)

	// Complete marks an active job completed.
	Complete(ctx context.Context, id string) error

	// Retry returns an active job to pending with the given attempt count and next availability.
	Retry(ctx context.Context, id string, attempts int, availableAt time.Time, errMsg string) error

	// Fail marks an active job failed terminally.
	Fail(ctx context.Context, id string, attempts int, errMsg string) error

	FindByID(ctx context.Context, id string) (*types.Job, error)

	// List returns one page of jobs, newest first. An empty status lists every status.
	List(ctx context.Context, page, pageSize int, status state.JobStatus) (*types.PaginationResult[types.Job], error)

	// CountByStatus counts jobs per status; every known status is present in the result.
	CountByStatus(ctx context.Context) (map[state.JobStatus]int, error)

	// ReleaseStale returns jobs that have been active since before olderThan to pending.
	// It reports how many were released.
	ReleaseStale(ctx context.Context, olderThan time.Time) (int, error)

	Close() error
}
