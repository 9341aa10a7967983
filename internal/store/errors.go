package store

import "errors"

var (
	// ErrNotFound is returned when a requested record does not exist.
	ErrNotFound = errors.New("record not found")

	// ErrInvalidTransition is returned when a state change is not allowed from the record's current status.
	ErrInvalidTransition = errors.New("invalid job status transition")
)
