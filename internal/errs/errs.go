// Package errs defines the engine's error kinds. Business outcomes
// (Blocked, NeedsReview) are not errors and never appear here; these types
// cover the operational failure channel that maps to a non-zero exit.
package errs

import (
	"errors"
	"fmt"
	"time"
)

// OpError is an operational failure talking to an external tool: the tool
// is missing, exited non-zero, or produced output we could not parse.
type OpError struct {
	Tool   string // binary name, e.g. "maw"
	Detail string
	Err    error // underlying cause, may be nil
}

func (e *OpError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Tool, e.Detail, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Tool, e.Detail)
}

func (e *OpError) Unwrap() error { return e.Err }

// ValidationError is an identifier rejected by its grammar before any
// subprocess was spawned.
type ValidationError struct {
	Field string // what the value was supposed to be, e.g. "bead id"
	Value string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %q", e.Field, e.Value)
}

// TimeoutError is an external call killed after exceeding its budget. Any
// output gathered before the kill was discarded.
type TimeoutError struct {
	Tool   string
	Budget time.Duration
}

func (e *TimeoutError) Error() string {
	return fmt.Sprintf("%s: timed out after %s", e.Tool, e.Budget)
}

// IsValidation reports whether err wraps a ValidationError.
func IsValidation(err error) bool {
	var v *ValidationError
	return errors.As(err, &v)
}

// IsTimeout reports whether err wraps a TimeoutError.
func IsTimeout(err error) bool {
	var t *TimeoutError
	return errors.As(err, &t)
}
