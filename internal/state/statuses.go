package state

type JobStatus string

const (
	StatusPending   JobStatus = "pending"
	StatusActive    JobStatus = "active"
	StatusCompleted JobStatus = "completed"
	StatusFailed    JobStatus = "failed"
)

func (s JobStatus) String() string {
	return string(s)
}

// IsTerminal reports whether no further delivery attempts happen from s.
func (s JobStatus) IsTerminal() bool {
	return s == StatusCompleted || s == StatusFailed
}

var AllStatuses = []JobStatus{
	StatusPending,
	StatusActive,
	StatusCompleted,
	StatusFailed,
}

// ParseJobStatus returns the status named by s, or false when s is not a known status.
func ParseJobStatus(s string) (JobStatus, bool) {
	for _, status := range AllStatuses {
		if string(status) == s {
			return status, true
		}
	}
	return "", false
}

type Transition struct {
	From JobStatus
	To   JobStatus
}

var ValidTransitions = []Transition{
	{From: StatusPending, To: StatusActive},
	{From: StatusActive, To: StatusCompleted},
	{From: StatusActive, To: StatusFailed},
	{From: StatusActive, To: StatusPending},
}

func IsValidTransition(from, to JobStatus) bool {
	for _, t := range ValidTransitions {
		if t.From == from && t.To == to {
			return true
		}
	}
	return false
}
