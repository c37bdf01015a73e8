package models

import (
	"errors"
	"fmt"
)

// DirectoryErrorKind tags a directory failure for the retry layer.
type DirectoryErrorKind string

const (
	// DirectoryErrorTransient covers network faults, throttling (429) and
	// server errors (5xx). These are retried.
	DirectoryErrorTransient DirectoryErrorKind = "transient"

	// DirectoryErrorPermanent covers authorization failures and malformed
	// requests. These fail immediately without consuming retry budget.
	DirectoryErrorPermanent DirectoryErrorKind = "permanent"

	// DirectoryErrorNotFound means the requested principal does not exist.
	DirectoryErrorNotFound DirectoryErrorKind = "not_found"

	// DirectoryErrorExhausted means the retry budget ran out on a
	// transient failure; Err holds the last cause.
	DirectoryErrorExhausted DirectoryErrorKind = "exhausted"
)

// DirectoryError is the error surface of every directory client call.
type DirectoryError struct {
	Kind DirectoryErrorKind
	Op   string
	Err  error
}

func (e *DirectoryError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("directory %s (%s): %v", e.Op, e.Kind, e.Err)
	}
	return fmt.Sprintf("directory %s (%s)", e.Op, e.Kind)
}

func (e *DirectoryError) Unwrap() error {
	return e.Err
}

// IsRetryable reports whether the retry wrapper may re-attempt the call.
func (e *DirectoryError) IsRetryable() bool {
	return e.Kind == DirectoryErrorTransient
}

func NewTransientError(op string, err error) *DirectoryError {
	return &DirectoryError{Kind: DirectoryErrorTransient, Op: op, Err: err}
}

func NewPermanentError(op string, err error) *DirectoryError {
	return &DirectoryError{Kind: DirectoryErrorPermanent, Op: op, Err: err}
}

func NewNotFoundError(op string, err error) *DirectoryError {
	return &DirectoryError{Kind: DirectoryErrorNotFound, Op: op, Err: err}
}

func NewExhaustedError(op string, lastCause error) *DirectoryError {
	return &DirectoryError{Kind: DirectoryErrorExhausted, Op: op, Err: lastCause}
}

// IsNotFound reports whether err represents a missing principal.
func IsNotFound(err error) bool {
	var derr *DirectoryError
	return errors.As(err, &derr) && derr.Kind == DirectoryErrorNotFound
}

// IsTransient reports whether err is tagged transient.
func IsTransient(err error) bool {
	var derr *DirectoryError
	return errors.As(err, &derr) && derr.Kind == DirectoryErrorTransient
}

// ErrResolutionCancelled is returned when the caller cancels a resolution
// mid-flight. Partial work is discarded; the caller never sees an
// incomplete result.
var ErrResolutionCancelled = errors.New("resolution cancelled")
