package domain

import (
	"errors"
	"fmt"
)

// ErrModelUnavailable signals that no classifier artifact has been loaded.
// Callers should retry later; this is never a client error.
var ErrModelUnavailable = errors.New("model artifact not loaded")

// MissingFieldError reports an absent required claim field. Always the
// client's fault and recoverable by resubmission.
type MissingFieldError struct {
	Field string
}

func (e *MissingFieldError) Error() string {
	return fmt.Sprintf("missing required field: %s", e.Field)
}

// ComputationError wraps an unexpected failure inside the classifier
// adapter. Surfaced generically, never silently swallowed.
type ComputationError struct {
	Stage string
	Err   error
}

func (e *ComputationError) Error() string {
	return fmt.Sprintf("computation failed at %s: %v", e.Stage, e.Err)
}

func (e *ComputationError) Unwrap() error {
	return e.Err
}
