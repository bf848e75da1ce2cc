package remote

import (
	"context"
	"errors"
	"fmt"
)

// Errors returned by Store implementations.
//
// These errors can be checked using errors.Is():
//
//	if errors.Is(err, remote.ErrRejected) {
//	    // roll the optimistic change back
//	}
var (
	// ErrNotFound is returned by Get when no document exists at the path.
	ErrNotFound = errors.New("document not found")

	// ErrUnavailable is returned when the store cannot be reached
	// (offline, connection reset, server overloaded).
	ErrUnavailable = errors.New("remote store unavailable")

	// ErrRejected is returned when the store refuses a write
	// (permission denied, failed server-side validation).
	ErrRejected = errors.New("rejected by remote store")

	// ErrInvalidPath is returned for paths that do not match the layout.
	ErrInvalidPath = errors.New("invalid document path")
)

// RejectionError carries the path and reason of an explicit rejection.
// It matches ErrRejected with errors.Is.
type RejectionError struct {
	Path   Path
	Reason string
}

func (e *RejectionError) Error() string {
	return fmt.Sprintf("write to %s rejected: %s", e.Path, e.Reason)
}

func (e *RejectionError) Is(target error) bool {
	return target == ErrRejected
}

// IsRejected returns true when the remote explicitly refused the operation.
// Only rejections roll optimistic state back.
func IsRejected(err error) bool {
	if err == nil {
		return false
	}
	return errors.Is(err, ErrRejected)
}

// IsTransient returns true if the error is likely to succeed on retry.
// Anything that is not a rejection, a missing document or a bad path is
// treated as transient.
func IsTransient(err error) bool {
	if err == nil {
		return false
	}

	if errors.Is(err, ErrRejected) || errors.Is(err, ErrInvalidPath) || errors.Is(err, ErrNotFound) {
		return false
	}

	if errors.Is(err, context.Canceled) {
		return false
	}

	return true
}

// IsOffline returns true if the error indicates the store is unreachable.
func IsOffline(err error) bool {
	if err == nil {
		return false
	}
	return errors.Is(err, ErrUnavailable) || errors.Is(err, context.DeadlineExceeded)
}
