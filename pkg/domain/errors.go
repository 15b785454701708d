package domain

import (
	"context"
	"errors"
	"fmt"
)

var (
	// ErrCheckpointNotFound is returned when no checkpoint exists for a key.
	ErrCheckpointNotFound = errors.New("checkpoint not found")

	// ErrVersionConflict is returned when a checkpoint was overwritten by a concurrent writer
	// between the read and the compare-and-swap write.
	ErrVersionConflict = errors.New("checkpoint version conflict")

	// ErrStoreUnavailable marks failures to reach the checkpoint store.
	ErrStoreUnavailable = errors.New("checkpoint store unavailable")

	// ErrCompletionFailed marks failures of the language model collaborator.
	ErrCompletionFailed = errors.New("completion failed")

	// ErrMalformedRequest is returned for requests rejected before any node runs.
	ErrMalformedRequest = errors.New("malformed request")
)

// StoreError wraps a checkpoint store failure with the thread it concerned.
type StoreError struct {
	Op    string
	Key   CheckpointKey
	Cause error
}

func (e *StoreError) Error() string {
	return fmt.Sprintf("store %s %s: %v", e.Op, e.Key, e.Cause)
}

// Unwrap exposes both the taxonomy sentinel and the underlying cause.
func (e *StoreError) Unwrap() []error {
	if errors.Is(e.Cause, ErrVersionConflict) {
		return []error{e.Cause}
	}
	return []error{ErrStoreUnavailable, e.Cause}
}

// CompletionError wraps a language model failure.
type CompletionError struct {
	ThreadID string
	Cause    error
}

func (e *CompletionError) Error() string {
	return fmt.Sprintf("completion for thread %q: %v", e.ThreadID, e.Cause)
}

func (e *CompletionError) Unwrap() []error {
	return []error{ErrCompletionFailed, e.Cause}
}

// RequestError describes why a request was rejected.
type RequestError struct {
	Field  string
	Reason string
}

func (e *RequestError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

func (e *RequestError) Unwrap() error {
	return ErrMalformedRequest
}

// Retryable reports whether the caller may retry the whole request unchanged.
// Store outages, lost compare-and-swap races and completion timeouts are transient;
// malformed requests and model errors are not.
func Retryable(err error) bool {
	switch {
	case err == nil:
		return false
	case errors.Is(err, ErrMalformedRequest):
		return false
	case errors.Is(err, ErrStoreUnavailable), errors.Is(err, ErrVersionConflict):
		return true
	case errors.Is(err, ErrCompletionFailed):
		return errors.Is(err, context.DeadlineExceeded)
	}
	return false
}
