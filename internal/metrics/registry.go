// Package metrics holds the in-process job counters read by the admin surface.
package metrics

import (
	"sync/atomic"
	"time"
)

// Registry is safe for concurrent use. Counters only grow until Reset is called.
type Registry struct {
	processed             atomic.Int64
	failed                atomic.Int64
	totalProcessingTimeMs atomic.Int64
}

func NewRegistry() *Registry {
	return &Registry{}
}

// Snapshot is the admin view of the counters.
type Snapshot struct {
	Processed int64 `json:"processed"`
	Failed    int64 `json:"failed"`
	// AverageProcessingTime is in milliseconds, averaged over every recorded execution.
	AverageProcessingTime float64 `json:"averageProcessingTime"`
	// SuccessRate is a percentage in [0, 100].
	SuccessRate float64 `json:"successRate"`
}

func (r *Registry) RecordSuccess(d time.Duration) {
	r.processed.Add(1)
	r.totalProcessingTimeMs.Add(d.Milliseconds())
}

// RecordFailure counts one failed execution attempt, retried or not.
func (r *Registry) RecordFailure(d time.Duration) {
	r.failed.Add(1)
	r.totalProcessingTimeMs.Add(d.Milliseconds())
}

func (r *Registry) Snapshot() Snapshot {
	processed := r.processed.Load()
	failed := r.failed.Load()
	totalMs := r.totalProcessingTimeMs.Load()

	s := Snapshot{Processed: processed, Failed: failed}
	if executions := processed + failed; executions > 0 {
		s.AverageProcessingTime = float64(totalMs) / float64(executions)
		s.SuccessRate = float64(processed) / float64(executions) * 100
	}
	return s
}

func (r *Registry) Reset() {
	r.processed.Store(0)
	r.failed.Store(0)
	r.totalProcessingTimeMs.Store(0)
}
