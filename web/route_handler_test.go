package web

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/RezaEskandarii/taskfire/internal/metrics"
	"github.com/RezaEskandarii/taskfire/internal/scanner"
	"github.com/RezaEskandarii/taskfire/internal/state"
	"github.com/RezaEskandarii/taskfire/internal/store/memory"
	"github.com/RezaEskandarii/taskfire/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeScanner struct {
	result scanner.Result
	err    error
	next   time.Time
	calls  int
}

func (f *fakeScanner) Trigger(context.Context) (scanner.Result, error) {
	f.calls++
	return f.result, f.err
}

func (f *fakeScanner) NextRun() time.Time {
	return f.next
}

type testServer struct {
	jobs    *memory.JobStore
	metrics *metrics.Registry
	scanner *fakeScanner
	handler http.Handler
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	ts := &testServer{
		jobs:    memory.NewJobStore(),
		metrics: metrics.NewRegistry(),
		scanner: &fakeScanner{},
	}
	ts.handler = NewRouteHandler(ts.jobs, ts.metrics, ts.scanner, slog.New(slog.DiscardHandler), 0).Router()
	return ts
}

func (ts *testServer) do(method, target string) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	ts.handler.ServeHTTP(rec, httptest.NewRequest(method, target, nil))
	return rec
}

func insertJob(t *testing.T, jobs *memory.JobStore, id string) {
	t.Helper()
	created, err := jobs.Insert(context.Background(), &types.Job{
		ID:          id,
		Kind:        types.KindTaskCreated,
		Payload:     json.RawMessage(`{"entityId":"task-1","status":"pending"}`),
		MaxAttempts: 3,
		AvailableAt: time.Now(),
	})
	require.NoError(t, err)
	require.True(t, created)
}

func TestGetMetrics(t *testing.T) {
	ts := newTestServer(t)
	ts.metrics.RecordSuccess(10 * time.Millisecond)
	ts.metrics.RecordFailure(30 * time.Millisecond)

	rec := ts.do(http.MethodGet, "/admin/metrics")

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))
	var snap metrics.Snapshot
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &snap))
	assert.Equal(t, int64(1), snap.Processed)
	assert.Equal(t, int64(1), snap.Failed)
	assert.InDelta(t, 20.0, snap.AverageProcessingTime, 0.001)
	assert.InDelta(t, 50.0, snap.SuccessRate, 0.001)
}

func TestResetMetrics(t *testing.T) {
	ts := newTestServer(t)
	ts.metrics.RecordSuccess(time.Millisecond)

	rec := ts.do(http.MethodPost, "/admin/metrics/reset")

	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.Equal(t, metrics.Snapshot{}, ts.metrics.Snapshot())
}

func TestTriggerScan(t *testing.T) {
	ts := newTestServer(t)
	ts.scanner.result = scanner.Result{Processed: 4, Queued: 3}

	rec := ts.do(http.MethodPost, "/admin/scan")

	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"processed":4,"queued":3}`, rec.Body.String())
	assert.Equal(t, 1, ts.scanner.calls)
}

func TestTriggerScan_InProgress(t *testing.T) {
	ts := newTestServer(t)
	ts.scanner.err = scanner.ErrScanInProgress

	rec := ts.do(http.MethodPost, "/admin/scan")

	assert.Equal(t, http.StatusConflict, rec.Code)
}

func TestNextScan(t *testing.T) {
	ts := newTestServer(t)

	rec := ts.do(http.MethodGet, "/admin/scan/next")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"scheduled":false}`, rec.Body.String())

	ts.scanner.next = time.Date(2026, 1, 2, 3, 0, 0, 0, time.UTC)
	rec = ts.do(http.MethodGet, "/admin/scan/next")
	assert.JSONEq(t, `{"scheduled":true,"nextRun":"2026-01-02T03:00:00Z"}`, rec.Body.String())
}

func TestListJobs(t *testing.T) {
	ts := newTestServer(t)
	insertJob(t, ts.jobs, "job-1")
	insertJob(t, ts.jobs, "job-2")

	rec := ts.do(http.MethodGet, "/admin/jobs?status=pending&page=1")

	require.Equal(t, http.StatusOK, rec.Code)
	var page types.PaginationResult[types.Job]
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &page))
	assert.Equal(t, 2, page.TotalItems)
	assert.Len(t, page.Items, 2)
	assert.Equal(t, "job-2", page.Items[0].ID)
}

func TestListJobs_UnknownStatus(t *testing.T) {
	ts := newTestServer(t)

	rec := ts.do(http.MethodGet, "/admin/jobs?status=sleeping")

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestJobStats(t *testing.T) {
	ts := newTestServer(t)
	insertJob(t, ts.jobs, "job-1")

	rec := ts.do(http.MethodGet, "/admin/jobs/stats")

	require.Equal(t, http.StatusOK, rec.Code)
	var counts map[state.JobStatus]int
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &counts))
	assert.Equal(t, 1, counts[state.StatusPending])
	assert.Equal(t, 0, counts[state.StatusFailed])
}

func TestGetJob(t *testing.T) {
	ts := newTestServer(t)
	insertJob(t, ts.jobs, "job-1")

	rec := ts.do(http.MethodGet, "/admin/jobs/job-1")
	require.Equal(t, http.StatusOK, rec.Code)
	var job types.Job
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &job))
	assert.Equal(t, "job-1", job.ID)
	assert.Equal(t, state.StatusPending, job.Status)

	rec = ts.do(http.MethodGet, "/admin/jobs/missing")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestHealth(t *testing.T) {
	ts := newTestServer(t)

	rec := ts.do(http.MethodGet, "/health")

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "OK", rec.Body.String())
}
