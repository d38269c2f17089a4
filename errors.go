package saga

import (
	"errors"
	"fmt"
	"strings"
)

// ErrCompensationStarted is returned by AddCompensation and friends once
// Compensate has begun. The ledger is sealed at that point; registering a
// compensation that could never run would hide a bug in the caller's
// sequencing.
var ErrCompensationStarted = errors.New("saga: compensation already started")

// FailedCompensation reports that a single compensation action failed.
// Position is the 1-based registration position of the action.
type FailedCompensation struct {
	Position int
	Name     string
	Cause    error
}

// Error implements the error interface for FailedCompensation.
func (f *FailedCompensation) Error() string {
	return fmt.Sprintf("compensation %q (position %d) failed: %v", f.Name, f.Position, f.Cause)
}

// Unwrap returns the underlying cause.
func (f *FailedCompensation) Unwrap() error {
	return f.Cause
}

// CompensationError aggregates the compensation failures encountered during
// an unwind that does not stop at the first one. Failures appear in the
// order they were encountered.
type CompensationError struct {
	Failures []*FailedCompensation
}

func (e *CompensationError) add(f *FailedCompensation) {
	e.Failures = append(e.Failures, f)
}

func (e *CompensationError) hasFailures() bool {
	return len(e.Failures) > 0
}

// Error implements the error interface for CompensationError.
func (e *CompensationError) Error() string {
	if !e.hasFailures() {
		return ""
	}

	msgs := make([]string, 0, len(e.Failures))
	for _, f := range e.Failures {
		msgs = append(msgs, f.Error())
	}
	return fmt.Sprintf("error(s) in saga compensation: %s", strings.Join(msgs, "; "))
}

// Unwrap exposes each failure to errors.Is and errors.As.
func (e *CompensationError) Unwrap() []error {
	errs := make([]error, len(e.Failures))
	for i, f := range e.Failures {
		errs[i] = f
	}
	return errs
}

// RegistryError represents an error returned from Registry operations.
type RegistryError struct {
	error
}

// NotFoundError indicates that no handler with the given name is
// registered.
func NotFoundError(name HandlerName) error {
	return &RegistryError{fmt.Errorf("handler %q not registered", name)}
}

// AlreadyRegisteredError indicates a duplicate handler registration.
func AlreadyRegisteredError(name HandlerName) error {
	return &RegistryError{fmt.Errorf("handler %q already registered", name)}
}
