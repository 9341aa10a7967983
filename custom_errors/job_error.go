package custom_errors

import (
	"errors"
	"fmt"
)

// Kind tags an error at the point it is produced so failure classification is a direct match.
type Kind int

const (
	KindUnknown Kind = iota
	// KindValidation marks malformed input; retrying cannot help.
	KindValidation
	// KindNotFound marks a referenced entity that does not exist.
	KindNotFound
	// KindInfrastructure marks a transient storage or network failure.
	KindInfrastructure
)

func (k Kind) String() string {
	switch k {
	case KindValidation:
		return "validation"
	case KindNotFound:
		return "not_found"
	case KindInfrastructure:
		return "infrastructure"
	default:
		return "unknown"
	}
}

// JobError carries a Kind alongside the underlying failure.
type JobError struct {
	Kind Kind
	Op   string
	Err  error
}

func (e *JobError) Error() string {
	if e.Op == "" {
		return fmt.Sprintf("%s: %v", e.Kind, e.Err)
	}
	return fmt.Sprintf("%s: %s: %v", e.Op, e.Kind, e.Err)
}

func (e *JobError) Unwrap() error {
	return e.Err
}

func Validation(op string, err error) error {
	return &JobError{Kind: KindValidation, Op: op, Err: err}
}

func NotFound(op string, err error) error {
	return &JobError{Kind: KindNotFound, Op: op, Err: err}
}

func Infrastructure(op string, err error) error {
	return &JobError{Kind: KindInfrastructure, Op: op, Err: err}
}

// KindOf returns the Kind of the first JobError in err's chain.
func KindOf(err error) (Kind, bool) {
	var jobErr *JobError
	if errors.As(err, &jobErr) {
		return jobErr.Kind, true
	}
	return KindUnknown, false
}
