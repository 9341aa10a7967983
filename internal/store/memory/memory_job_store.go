package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/RezaEskandarii/taskfire/internal/state"
	"github.com/RezaEskandarii/taskfire/internal/store"
	"github.com/RezaEskandarii/taskfire/types"
)

type jobRecord struct {
	job      types.Job
	seq      int64
	lockedAt time.Time
}

// JobStore is an in-process store.JobStore for tests and single-process development.
type JobStore struct {
	mu   sync.Mutex
	jobs map[string]*jobRecord
	seq  int64
	now  func() time.Time
}

func NewJobStore() *JobStore {
	return &JobStore{
		jobs: make(map[string]*jobRecord),
		now:  time.Now,
	}
}

func (s *JobStore) Insert(_ context.Context, job *types.Job) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if existing, ok := s.jobs[job.ID]; ok && !existing.job.Status.IsTerminal() {
		return false, nil
	}

	now := s.now()
	s.seq++
	rec := &jobRecord{job: *job, seq: s.seq}
	rec.job.Status = state.StatusPending
	rec.job.AttemptsMade = 0
	rec.job.LastError = ""
	rec.job.LockedBy = ""
	rec.job.FinishedAt = nil
	rec.job.CreatedAt = now
	rec.job.UpdatedAt = now
	s.jobs[job.ID] = rec
	return true, nil
}

func (s *JobStore) Claim(_ context.Context, workerID string, now time.Time) (*types.Job, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var next *jobRecord
	for _, rec := range s.jobs {
		if rec.job.Status != state.StatusPending || rec.job.AvailableAt.After(now) {
			continue
		}
		if next == nil || claimsBefore(rec, next) {
			next = rec
		}
	}
	if next == nil {
		return nil, nil
	}

	next.job.Status = state.StatusActive
	next.job.LockedBy = workerID
	next.job.UpdatedAt = now
	next.lockedAt = now
	job := next.job
	return &job, nil
}

func claimsBefore(a, b *jobRecord) bool {
	if a.job.Priority != b.job.Priority {
		return a.job.Priority > b.job.Priority
	}
	if !a.job.AvailableAt.Equal(b.job.AvailableAt) {
		return a.job.AvailableAt.Before(b.job.AvailableAt)
	}
	return a.seq < b.seq
}

func (s *JobStore) Complete(_ context.Context, id string) error {
	return s.transition(id, state.StatusCompleted, func(job *types.Job) {
		finished := s.now()
		job.FinishedAt = &finished
	})
}

func (s *JobStore) Retry(_ context.Context, id string, attempts int, availableAt time.Time, errMsg string) error {
	return s.transition(id, state.StatusPending, func(job *types.Job) {
		job.AttemptsMade = attempts
		job.AvailableAt = availableAt
		job.LastError = errMsg
	})
}

func (s *JobStore) Fail(_ context.Context, id string, attempts int, errMsg string) error {
	return s.transition(id, state.StatusFailed, func(job *types.Job) {
		job.AttemptsMade = attempts
		job.LastError = errMsg
		finished := s.now()
		job.FinishedAt = &finished
	})
}

func (s *JobStore) transition(id string, to state.JobStatus, apply func(job *types.Job)) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec, ok := s.jobs[id]
	if !ok {
		return fmt.Errorf("job %s: %w", id, store.ErrNotFound)
	}
	if !state.IsValidTransition(rec.job.Status, to) {
		return fmt.Errorf("job %s %s -> %s: %w", id, rec.job.Status, to, store.ErrInvalidTransition)
	}
	rec.job.Status = to
	rec.job.LockedBy = ""
	rec.job.UpdatedAt = s.now()
	rec.lockedAt = time.Time{}
	apply(&rec.job)
	return nil
}

func (s *JobStore) FindByID(_ context.Context, id string) (*types.Job, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec, ok := s.jobs[id]
	if !ok {
		return nil, fmt.Errorf("job %s: %w", id, store.ErrNotFound)
	}
	job := rec.job
	return &job, nil
}

func (s *JobStore) List(_ context.Context, page, pageSize int, status state.JobStatus) (*types.PaginationResult[types.Job], error) {
	if page < 1 {
		page = 1
	}
	if pageSize < 1 {
		pageSize = 20
	}

	s.mu.Lock()
	matched := make([]*jobRecord, 0, len(s.jobs))
	for _, rec := range s.jobs {
		if status == "" || rec.job.Status == status {
			matched = append(matched, rec)
		}
	}
	sort.Slice(matched, func(i, j int) bool { return matched[i].seq > matched[j].seq })

	var items []types.Job
	for i := (page - 1) * pageSize; i < len(matched) && len(items) < pageSize; i++ {
		items = append(items, matched[i].job)
	}
	s.mu.Unlock()

	return types.NewPaginationResult(items, len(matched), page, pageSize), nil
}

func (s *JobStore) CountByStatus(_ context.Context) (map[state.JobStatus]int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	result := make(map[state.JobStatus]int, len(state.AllStatuses))
	for _, status := range state.AllStatuses {
		result[status] = 0
	}
	for _, rec := range s.jobs {
		result[rec.job.Status]++
	}
	return result, nil
}

func (s *JobStore) ReleaseStale(_ context.Context, olderThan time.Time) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	released := 0
	for _, rec := range s.jobs {
		if rec.job.Status == state.StatusActive && rec.lockedAt.Before(olderThan) {
			rec.job.Status = state.StatusPending
			rec.job.LockedBy = ""
			rec.job.UpdatedAt = s.now()
			rec.lockedAt = time.Time{}
			released++
		}
	}
	return released, nil
}

func (s *JobStore) Close() error {
	return nil
}
