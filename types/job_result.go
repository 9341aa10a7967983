package types

import (
	"time"

	"github.com/RezaEskandarii/taskfire/internal/state"
)

// JobResult is the outcome of one execution attempt, handed from the
// executing goroutine to the code that settles the job in the store.
type JobResult struct {
	JobID       string
	Err         error
	Attempts    int
	MaxAttempts int
	Status      state.JobStatus
	RanAt       time.Time
	Duration    time.Duration
	NextRun     time.Time
}
