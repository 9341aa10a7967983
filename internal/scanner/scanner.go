package scanner

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/RezaEskandarii/taskfire/internal/constants"
	"github.com/RezaEskandarii/taskfire/internal/jobs"
	"github.com/RezaEskandarii/taskfire/internal/queue"
	"github.com/RezaEskandarii/taskfire/internal/store"
	"github.com/RezaEskandarii/taskfire/types"
	"github.com/robfig/cron/v3"
)

// ErrScanInProgress is returned when a scan is requested while another one is running.
var ErrScanInProgress = errors.New("overdue scan already in progress")

var scheduleParser = cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor)

// ParseSchedule parses a five-field cron expression or a descriptor such as "@hourly".
func ParseSchedule(expr string) (cron.Schedule, error) {
	return scheduleParser.Parse(expr)
}

type Config struct {
	BatchSize int
	// Schedule is the cron expression for Start.
	Schedule string
	// DedupeBucket is the window within which a task is enqueued as overdue at most once.
	DedupeBucket time.Duration
	// ActionableStatuses are the task statuses worth notifying about.
	ActionableStatuses []string
	Priority           int
}

func (c Config) withDefaults() Config {
	if c.BatchSize < 1 {
		c.BatchSize = constants.DefaultScanBatchSize
	}
	if c.Schedule == "" {
		c.Schedule = constants.DefaultScanSchedule
	}
	if c.DedupeBucket <= 0 {
		c.DedupeBucket = constants.DefaultDedupeBucket
	}
	if len(c.ActionableStatuses) == 0 {
		c.ActionableStatuses = []string{"pending", "in_progress"}
	}
	if c.Priority == 0 {
		c.Priority = constants.OverduePriority
	}
	return c
}

// Result is the outcome of one scan.
type Result struct {
	Processed int `json:"processed"`
	Queued    int `json:"queued"`
}

// BatchResult is the outcome of one fetched page.
type BatchResult struct {
	Processed int
	Queued    int
	Failed    int
}

// OverdueScanner pages through overdue work items and enqueues one overdue
// notification job per item. At most one scan runs at a time per scanner.
type OverdueScanner struct {
	tasks   store.TaskStore
	queue   queue.Enqueuer
	logger  *slog.Logger
	cfg     Config
	running atomic.Bool
	now     func() time.Time

	mu   sync.Mutex
	cron *cron.Cron
}

func New(tasks store.TaskStore, q queue.Enqueuer, logger *slog.Logger, cfg Config) *OverdueScanner {
	return &OverdueScanner{
		tasks:  tasks,
		queue:  q,
		logger: logger.With("component", "overdue_scanner"),
		cfg:    cfg.withDefaults(),
		now:    time.Now,
	}
}

// Running reports whether a scan is in progress.
func (s *OverdueScanner) Running() bool {
	return s.running.Load()
}

// Run performs one full scan. It returns ErrScanInProgress without scanning when
// another scan holds the guard. On a fetch failure or a panic it returns the
// counts reached so far together with the error.
func (s *OverdueScanner) Run(ctx context.Context) (res Result, err error) {
	if !s.running.CompareAndSwap(false, true) {
		return Result{}, ErrScanInProgress
	}
	defer s.running.Store(false)

	started := time.Now()
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("overdue scan panicked: %v", r)
		}
		attrs := []any{"processed", res.Processed, "queued", res.Queued, "duration", time.Since(started)}
		if err != nil {
			s.logger.Error("overdue scan failed", append(attrs, "error", err)...)
			return
		}
		s.logger.Info("overdue scan finished", attrs...)
	}()

	now := s.now()
	for offset := 0; ; offset += s.cfg.BatchSize {
		items, err := s.tasks.FetchOverdue(ctx, now, s.cfg.ActionableStatuses, s.cfg.BatchSize, offset)
		if err != nil {
			return res, fmt.Errorf("fetch overdue tasks at offset %d: %w", offset, err)
		}

		batch := s.processBatch(ctx, now, items)
		res.Processed += batch.Processed
		res.Queued += batch.Queued

		if len(items) < s.cfg.BatchSize {
			return res, nil
		}
	}
}

// Trigger runs a scan on demand and waits for it.
func (s *OverdueScanner) Trigger(ctx context.Context) (Result, error) {
	s.logger.Info("overdue scan triggered manually")
	return s.Run(ctx)
}

func (s *OverdueScanner) processBatch(ctx context.Context, now time.Time, items []types.WorkItem) BatchResult {
	var batch BatchResult
	for _, item := range items {
		batch.Processed++

		payload := jobs.TaskOverduePayload{
			EntityID:  item.ID,
			Title:     item.Title,
			DueAt:     item.DueAt,
			Status:    item.Status,
			OwnerID:   item.OwnerID,
			OverdueBy: jobs.FormatOverdueBy(now, item.DueAt),
		}
		_, err := s.queue.Enqueue(ctx, types.KindTaskOverdue, payload, queue.EnqueueOptions{
			Priority: s.cfg.Priority,
			DedupeID: s.dedupeID(item.ID, now),
		})
		if err != nil {
			batch.Failed++
			s.logger.Warn("enqueue overdue job failed", "task_id", item.ID, "error", err)
			continue
		}
		batch.Queued++
	}
	return batch
}

// dedupeID is stable for one task within one bucket, so overlapping scans
// enqueue a task at most once per bucket.
func (s *OverdueScanner) dedupeID(taskID string, now time.Time) string {
	bucket := now.Truncate(s.cfg.DedupeBucket)
	return fmt.Sprintf("overdue:%s:%d", taskID, bucket.Unix())
}

// Start schedules Run on the configured cron schedule. Scheduled runs that find
// a scan in progress are skipped.
func (s *OverdueScanner) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.cron != nil {
		return errors.New("overdue scanner already started")
	}

	c := cron.New(cron.WithParser(scheduleParser))
	_, err := c.AddFunc(s.cfg.Schedule, func() {
		if _, err := s.Run(ctx); errors.Is(err, ErrScanInProgress) {
			s.logger.Info("scheduled overdue scan skipped, previous scan still running")
		}
	})
	if err != nil {
		return fmt.Errorf("invalid scan schedule %q: %w", s.cfg.Schedule, err)
	}

	c.Start()
	s.cron = c
	s.logger.Info("overdue scanner scheduled", "schedule", s.cfg.Schedule)
	return nil
}

// Stop removes the schedule and waits for a running scheduled scan to finish.
func (s *OverdueScanner) Stop() {
	s.mu.Lock()
	c := s.cron
	s.cron = nil
	s.mu.Unlock()

	if c != nil {
		<-c.Stop().Done()
	}
}

// NextRun reports when the next scheduled scan fires. It is zero when not started.
func (s *OverdueScanner) NextRun() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.cron == nil {
		return time.Time{}
	}
	entries := s.cron.Entries()
	if len(entries) == 0 {
		return time.Time{}
	}
	return entries[0].Next
}
