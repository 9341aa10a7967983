package worker

import (
	"fmt"

	"github.com/RezaEskandarii/taskfire/internal/classifier"
)

// Failure is the error a processed job ends with when it did not succeed.
// It carries the classification the retry decision is made from.
type Failure struct {
	Err            error
	Classification classifier.Classification
	Attempt        int
}

func (f *Failure) Error() string {
	return fmt.Sprintf("attempt %d failed (%s): %v", f.Attempt, f.Classification.Category, f.Err)
}

func (f *Failure) Unwrap() error {
	return f.Err
}
