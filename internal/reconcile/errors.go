package reconcile

import (
	"errors"
	"fmt"
)

var (
	// ErrClosed is returned by operations on a closed engine.
	ErrClosed = errors.New("engine closed")

	// ErrNotLoaded is returned when mutating a scope before Start.
	ErrNotLoaded = errors.New("scope not loaded")

	// ErrValidation matches every ValidationError with errors.Is.
	ErrValidation = errors.New("validation failed")
)

// ValidationError reports a failed mutation precondition. No local state
// is changed when a mutation returns one.
type ValidationError struct {
	Field  string
	Reason string

	// Err is an optional sentinel that errors.Is also matches.
	Err error
}

func (e ValidationError) Error() string {
	if e.Field == "" {
		return fmt.Sprintf("invalid: %s", e.Reason)
	}
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

func (e ValidationError) Is(target error) bool {
	return target == ErrValidation
}

func (e ValidationError) Unwrap() error { return e.Err }

// Invalid is shorthand for returning a ValidationError.
func Invalid(field, format string, args ...any) error {
	return ValidationError{Field: field, Reason: fmt.Sprintf(format, args...)}
}
