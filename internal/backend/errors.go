package backend

import (
	"errors"
	"fmt"
)

// ErrorKind classifies a failed backend call.
type ErrorKind string

const (
	// KindUnreachable indicates a connection or DNS failure.
	KindUnreachable ErrorKind = "unreachable"

	// KindTimeout indicates the call exceeded the backend-call timeout.
	KindTimeout ErrorKind = "timeout"

	// KindStatus indicates the backend answered with a non-2xx status.
	KindStatus ErrorKind = "status"
)

// Sentinel errors for backend calls.
var (
	// ErrUnreachable indicates the backend could not be reached.
	ErrUnreachable = errors.New("backend unreachable")

	// ErrTimeout indicates the backend call timed out.
	ErrTimeout = errors.New("backend call timed out")

	// ErrNonSuccessStatus indicates a non-2xx backend response.
	ErrNonSuccessStatus = errors.New("backend returned non-success status")
)

// CallError is a classified backend call failure.
type CallError struct {
	Backend string
	Kind    ErrorKind
	Status  int
	Cause   error
}

// Error implements the error interface.
func (e *CallError) Error() string {
	if e.Kind == KindStatus {
		return fmt.Sprintf("backend call failed [%s] backend=%s status=%d", e.Kind, e.Backend, e.Status)
	}
	if e.Cause != nil {
		return fmt.Sprintf("backend call failed [%s] backend=%s: %v", e.Kind, e.Backend, e.Cause)
	}
	return fmt.Sprintf("backend call failed [%s] backend=%s", e.Kind, e.Backend)
}

// Unwrap returns the sentinel for the error kind, so callers can use
// errors.Is against ErrUnreachable, ErrTimeout and ErrNonSuccessStatus.
func (e *CallError) Unwrap() error {
	switch e.Kind {
	case KindUnreachable:
		return ErrUnreachable
	case KindTimeout:
		return ErrTimeout
	case KindStatus:
		return ErrNonSuccessStatus
	default:
		return e.Cause
	}
}

// IsCallError checks if an error is a CallError.
func IsCallError(err error) bool {
	var callErr *CallError
	return errors.As(err, &callErr)
}

// KindOf returns the error kind of a CallError, or "" for other errors.
func KindOf(err error) ErrorKind {
	var callErr *CallError
	if errors.As(err, &callErr) {
		return callErr.Kind
	}
	return ""
}
