package types

import (
	"encoding/json"
	"time"

	"github.com/RezaEskandarii/taskfire/internal/state"
)

// JobKind is the closed set of background job types.
type JobKind string

const (
	KindTaskStatusChanged JobKind = "task.status_changed"
	KindTaskCreated       JobKind = "task.created"
	KindTaskOverdue       JobKind = "task.overdue"
)

var AllJobKinds = []JobKind{
	KindTaskStatusChanged,
	KindTaskCreated,
	KindTaskOverdue,
}

func (k JobKind) String() string {
	return string(k)
}

type BackoffType string

const (
	BackoffExponential BackoffType = "exponential"
	BackoffFixed       BackoffType = "fixed"
)

// BackoffPolicy decides how long a failed job waits before redelivery.
type BackoffPolicy struct {
	Type BackoffType   `json:"type"`
	Base time.Duration `json:"base"`
}

// Delay returns the wait before the next delivery of a job that has already
// been attempted attemptsMade times before the failing run.
// Exponential: Base × 2^attemptsMade.
func (b BackoffPolicy) Delay(attemptsMade int) time.Duration {
	if b.Base <= 0 {
		return 0
	}
	if b.Type != BackoffExponential || attemptsMade <= 0 {
		return b.Base
	}
	if attemptsMade > 30 {
		attemptsMade = 30
	}
	return b.Base * time.Duration(int64(1)<<attemptsMade)
}

type Job struct {
	ID           string          `json:"id"`
	Kind         JobKind         `json:"kind"`
	Payload      json.RawMessage `json:"payload"`
	Status       state.JobStatus `json:"status"`
	AttemptsMade int             `json:"attemptsMade"`
	MaxAttempts  int             `json:"maxAttempts"`
	Backoff      BackoffPolicy   `json:"backoff"`
	Priority     int             `json:"priority"`
	AvailableAt  time.Time       `json:"availableAt"`
	LastError    string          `json:"lastError,omitempty"`
	LockedBy     string          `json:"lockedBy,omitempty"`
	CreatedAt    time.Time       `json:"createdAt"`
	UpdatedAt    time.Time       `json:"updatedAt"`
	FinishedAt   *time.Time      `json:"finishedAt,omitempty"`
}
