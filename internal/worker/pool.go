package worker

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/RezaEskandarii/taskfire/internal/classifier"
	"github.com/RezaEskandarii/taskfire/internal/jobs"
	"github.com/RezaEskandarii/taskfire/internal/metrics"
	"github.com/RezaEskandarii/taskfire/internal/state"
	"github.com/RezaEskandarii/taskfire/internal/store"
	"github.com/RezaEskandarii/taskfire/types"
	"golang.org/x/sync/semaphore"
	"golang.org/x/time/rate"
)

type Config struct {
	// WorkerID is recorded on claimed jobs.
	WorkerID string
	// Concurrency bounds the jobs executing at once.
	Concurrency int
	// RateMax dequeues are allowed per RateWindow, spaced evenly. Zero disables the limit.
	RateMax    int
	RateWindow time.Duration
	// PollInterval is the wait after finding the queue empty.
	PollInterval time.Duration
	// StaleTimeout is how long a job may stay active before Start releases it.
	StaleTimeout time.Duration
}

func (c Config) withDefaults() Config {
	if c.WorkerID == "" {
		c.WorkerID = "worker"
	}
	if c.Concurrency < 1 {
		c.Concurrency = 1
	}
	if c.PollInterval <= 0 {
		c.PollInterval = time.Second
	}
	if c.StaleTimeout <= 0 {
		c.StaleTimeout = 30 * time.Minute
	}
	return c
}

// Pool claims jobs from the store and executes them through the handler registry.
type Pool struct {
	store    store.JobStore
	registry *jobs.Registry
	metrics  *metrics.Registry
	logger   *slog.Logger
	cfg      Config
	sem      *semaphore.Weighted
	limiter  *rate.Limiter
	wg       sync.WaitGroup
	now      func() time.Time
}

func NewPool(jobStore store.JobStore, registry *jobs.Registry, m *metrics.Registry, logger *slog.Logger, cfg Config) *Pool {
	cfg = cfg.withDefaults()

	limiter := rate.NewLimiter(rate.Inf, 1)
	if cfg.RateMax > 0 && cfg.RateWindow > 0 {
		limiter = rate.NewLimiter(rate.Every(cfg.RateWindow/time.Duration(cfg.RateMax)), 1)
	}

	return &Pool{
		store:    jobStore,
		registry: registry,
		metrics:  m,
		logger:   logger.With("worker_id", cfg.WorkerID),
		cfg:      cfg,
		sem:      semaphore.NewWeighted(int64(cfg.Concurrency)),
		limiter:  limiter,
		now:      time.Now,
	}
}

// Start runs the claim loop until ctx is cancelled, then waits for in-flight jobs.
func (p *Pool) Start(ctx context.Context) error {
	released, err := p.store.ReleaseStale(ctx, p.now().Add(-p.cfg.StaleTimeout))
	if err != nil {
		return fmt.Errorf("release stale jobs: %w", err)
	}
	if released > 0 {
		p.logger.Warn("released stale jobs", "count", released)
	}

	p.logger.Info("worker pool started", "concurrency", p.cfg.Concurrency, "rate_max", p.cfg.RateMax, "rate_window", p.cfg.RateWindow)
	defer func() {
		p.wg.Wait()
		p.logger.Info("worker pool stopped")
	}()

	for {
		if err := p.sem.Acquire(ctx, 1); err != nil {
			return nil
		}
		if err := p.limiter.Wait(ctx); err != nil {
			p.sem.Release(1)
			return nil
		}

		job, err := p.store.Claim(ctx, p.cfg.WorkerID, p.now())
		if err != nil || job == nil {
			p.sem.Release(1)
			if err != nil && ctx.Err() == nil {
				p.logger.Error("claim failed", "error", err)
			}
			select {
			case <-ctx.Done():
				return nil
			case <-time.After(p.cfg.PollInterval):
			}
			continue
		}

		p.wg.Add(1)
		go func() {
			defer func() {
				p.sem.Release(1)
				p.wg.Done()
			}()
			p.execute(context.WithoutCancel(ctx), job)
		}()
	}
}

// RunOnce claims and executes a single job in the calling goroutine.
// It reports whether a job was available.
func (p *Pool) RunOnce(ctx context.Context) (bool, error) {
	job, err := p.store.Claim(ctx, p.cfg.WorkerID, p.now())
	if err != nil {
		return false, fmt.Errorf("claim job: %w", err)
	}
	if job == nil {
		return false, nil
	}
	p.execute(ctx, job)
	return true, nil
}

func (p *Pool) execute(ctx context.Context, job *types.Job) {
	res := p.process(ctx, job)
	p.settle(ctx, job, res)
}

// process runs one attempt of job and records it in the metrics registry.
// A failed attempt yields a result whose Err is a *Failure.
func (p *Pool) process(ctx context.Context, job *types.Job) (res types.JobResult) {
	started := p.now()
	res = types.JobResult{
		JobID:       job.ID,
		Attempts:    job.AttemptsMade + 1,
		MaxAttempts: job.MaxAttempts,
		Status:      state.StatusCompleted,
		RanAt:       started,
	}

	defer func() {
		if r := recover(); r != nil {
			res.Err = p.fail(job, fmt.Errorf("panic: %v", r))
		}
		res.Duration = p.now().Sub(started)
		if res.Err != nil {
			res.Status = state.StatusFailed
			p.metrics.RecordFailure(res.Duration)
		} else {
			p.metrics.RecordSuccess(res.Duration)
		}
	}()

	payload, err := p.registry.Decode(job.Kind, job.Payload)
	if err != nil {
		res.Err = p.fail(job, err)
		return res
	}
	if err := p.registry.Handle(ctx, job.Kind, payload); err != nil {
		res.Err = p.fail(job, err)
	}
	return res
}

func (p *Pool) fail(job *types.Job, err error) *Failure {
	f := &Failure{
		Err:            err,
		Classification: classifier.Classify(err),
		Attempt:        job.AttemptsMade + 1,
	}
	p.logger.Warn("job failed",
		"job_id", job.ID,
		"job_kind", job.Kind,
		"attempt", f.Attempt,
		"max_attempts", job.MaxAttempts,
		"category", f.Classification.Category,
		"retryable", f.Classification.Retryable,
		"reason", f.Classification.Reason,
		"error", err,
	)
	return f
}

// settle moves the job to its next status. A retryable failure with attempts
// left goes back to pending after the job's backoff; any other failure is terminal.
func (p *Pool) settle(ctx context.Context, job *types.Job, res types.JobResult) {
	if res.Err == nil {
		if err := p.store.Complete(ctx, job.ID); err != nil {
			p.logger.Error("complete job failed", "job_id", job.ID, "error", err)
			return
		}
		p.logger.Debug("job completed", "job_id", job.ID, "job_kind", job.Kind, "duration", res.Duration)
		return
	}

	var f *Failure
	if !errors.As(res.Err, &f) {
		f = &Failure{Err: res.Err, Classification: classifier.Classify(res.Err), Attempt: res.Attempts}
	}

	maxAttempts := max(job.MaxAttempts, 1)
	if f.Classification.Retryable && res.Attempts < maxAttempts && state.IsValidTransition(job.Status, state.StatusPending) {
		next := p.now().Add(job.Backoff.Delay(job.AttemptsMade))
		if err := p.store.Retry(ctx, job.ID, res.Attempts, next, f.Err.Error()); err != nil {
			p.logger.Error("reschedule job failed", "job_id", job.ID, "error", err)
			return
		}
		p.logger.Info("job rescheduled", "job_id", job.ID, "attempt", res.Attempts, "next_run", next)
		return
	}

	if err := p.store.Fail(ctx, job.ID, res.Attempts, f.Err.Error()); err != nil {
		p.logger.Error("fail job failed", "job_id", job.ID, "error", err)
		return
	}
	p.logger.Error("job failed permanently", "job_id", job.ID, "job_kind", job.Kind, "attempts", res.Attempts, "category", f.Classification.Category)
}
