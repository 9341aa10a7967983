// Package web serves the admin HTTP surface: job metrics, the job list and a manual
// overdue scan trigger.
package web

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/RezaEskandarii/taskfire/internal/metrics"
	"github.com/RezaEskandarii/taskfire/internal/scanner"
	"github.com/RezaEskandarii/taskfire/internal/state"
	"github.com/RezaEskandarii/taskfire/internal/store"
	"github.com/RezaEskandarii/taskfire/types"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
)

// MetricsSource is the job counter registry.
type MetricsSource interface {
	Snapshot() metrics.Snapshot
	Reset()
}

// ScanTrigger runs the overdue scan on demand.
type ScanTrigger interface {
	Trigger(ctx context.Context) (scanner.Result, error)
	NextRun() time.Time
}

// JobReader is the read side of the job store.
type JobReader interface {
	FindByID(ctx context.Context, id string) (*types.Job, error)
	List(ctx context.Context, page, pageSize int, status state.JobStatus) (*types.PaginationResult[types.Job], error)
	CountByStatus(ctx context.Context) (map[state.JobStatus]int, error)
}

type HttpRouteHandler struct {
	jobs    JobReader
	metrics MetricsSource
	scanner ScanTrigger
	logger  *slog.Logger
	Port    uint
}

func NewRouteHandler(jobs JobReader, m MetricsSource, scan ScanTrigger, logger *slog.Logger, port uint) *HttpRouteHandler {
	return &HttpRouteHandler{
		jobs:    jobs,
		metrics: m,
		scanner: scan,
		logger:  logger.With("component", "admin"),
		Port:    port,
	}
}

// Router builds the admin routes.
func (handler *HttpRouteHandler) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(requestLogger(handler.logger))
	r.Use(middleware.Recoverer)

	r.Route("/admin", func(r chi.Router) {
		r.Get("/metrics", handler.getMetrics)
		r.Post("/metrics/reset", handler.resetMetrics)
		r.Post("/scan", handler.triggerScan)
		r.Get("/scan/next", handler.nextScan)
		r.Get("/jobs", handler.listJobs)
		r.Get("/jobs/stats", handler.jobStats)
		r.Get("/jobs/{id}", handler.getJob)
	})

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		if _, err := w.Write([]byte("OK")); err != nil {
			handler.logger.Error("failed to write health check response", "error", err)
		}
	})
	return r
}

// Serve listens on Port until ctx is cancelled, then shuts down gracefully.
func (handler *HttpRouteHandler) Serve(ctx context.Context) error {
	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", handler.Port),
		Handler:           handler.Router(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		handler.logger.Info("admin server listening", "addr", srv.Addr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("admin server shutdown: %w", err)
	}
	return nil
}

func (handler *HttpRouteHandler) getMetrics(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, handler.logger, http.StatusOK, handler.metrics.Snapshot())
}

func (handler *HttpRouteHandler) resetMetrics(w http.ResponseWriter, _ *http.Request) {
	handler.metrics.Reset()
	handler.logger.Info("job metrics reset")
	w.WriteHeader(http.StatusNoContent)
}

func (handler *HttpRouteHandler) triggerScan(w http.ResponseWriter, r *http.Request) {
	res, err := handler.scanner.Trigger(r.Context())
	switch {
	case errors.Is(err, scanner.ErrScanInProgress):
		writeError(w, handler.logger, http.StatusConflict, err.Error())
	case err != nil:
		handler.logger.Error("manual overdue scan failed", "error", err)
		writeError(w, handler.logger, http.StatusInternalServerError, "overdue scan failed")
	default:
		writeJSON(w, handler.logger, http.StatusOK, res)
	}
}

func (handler *HttpRouteHandler) nextScan(w http.ResponseWriter, _ *http.Request) {
	next := handler.scanner.NextRun()
	body := map[string]any{"scheduled": !next.IsZero()}
	if !next.IsZero() {
		body["nextRun"] = next
	}
	writeJSON(w, handler.logger, http.StatusOK, body)
}

func (handler *HttpRouteHandler) listJobs(w http.ResponseWriter, r *http.Request) {
	var status state.JobStatus
	if param := strings.TrimSpace(r.URL.Query().Get("status")); param != "" {
		parsed, ok := state.ParseJobStatus(param)
		if !ok {
			writeError(w, handler.logger, http.StatusBadRequest, fmt.Sprintf("unknown status %q", param))
			return
		}
		status = parsed
	}

	jobs, err := handler.jobs.List(r.Context(), getPageNumber(r), PageSize, status)
	if err != nil {
		handler.logger.Error("failed to list jobs", "error", err)
		writeError(w, handler.logger, http.StatusInternalServerError, "failed to list jobs")
		return
	}
	writeJSON(w, handler.logger, http.StatusOK, jobs)
}

func (handler *HttpRouteHandler) jobStats(w http.ResponseWriter, r *http.Request) {
	counts, err := handler.jobs.CountByStatus(r.Context())
	if err != nil {
		handler.logger.Error("failed to count jobs", "error", err)
		writeError(w, handler.logger, http.StatusInternalServerError, "failed to count jobs")
		return
	}
	writeJSON(w, handler.logger, http.StatusOK, counts)
}

func (handler *HttpRouteHandler) getJob(w http.ResponseWriter, r *http.Request) {
	job, err := handler.jobs.FindByID(r.Context(), chi.URLParam(r, "id"))
	switch {
	case errors.Is(err, store.ErrNotFound):
		writeError(w, handler.logger, http.StatusNotFound, "job not found")
	case err != nil:
		handler.logger.Error("failed to load job", "error", err)
		writeError(w, handler.logger, http.StatusInternalServerError, "failed to load job")
	default:
		writeJSON(w, handler.logger, http.StatusOK, job)
	}
}
