// Package core provides the engine facade, configuration, and error types
// for the memory weighting and compaction engine.
package core

import (
	"errors"
	"fmt"
)

// Predefined errors for common failure scenarios.
var (
	// ErrNotFound indicates that a requested memory record was not found.
	ErrNotFound = errors.New("memory record not found")

	// ErrInvalidConfig indicates that the provided configuration is invalid.
	// Configuration errors are fatal at startup and not recoverable.
	ErrInvalidConfig = errors.New("invalid configuration")

	// ErrInvalidInput indicates that the provided input is invalid.
	ErrInvalidInput = errors.New("invalid input")

	// ErrTransientDependency indicates that an external collaborator
	// (similarity, summarizer, store) failed or timed out. Callers retry on
	// the next tick; the ingestion path degrades to create-new instead.
	ErrTransientDependency = errors.New("transient dependency failure")

	// ErrInvariantViolation indicates an attempted mutation that would break
	// a record invariant (e.g. refreshing createdAt, weight outside the
	// clamp range). The operation is rejected before the store is touched.
	ErrInvariantViolation = errors.New("record invariant violation")

	// ErrConflict indicates a stale-version update; the caller re-reads and
	// retries a bounded number of times before surfacing the failure.
	ErrConflict = errors.New("concurrent modification conflict")

	// ErrStorageOperation indicates that a store operation failed.
	ErrStorageOperation = errors.New("storage operation failed")

	// ErrProtected indicates the record's frozen or sensitivity flags forbid
	// the requested automatic mutation.
	ErrProtected = errors.New("record is protected")
)

// EngineError wraps errors with operation context.
//
// Example:
//
//	err := &EngineError{Op: "Ingest", Err: ErrTransientDependency}
//	// Error() returns: "landoubao: Ingest: transient dependency failure"
type EngineError struct {
	// Op is the name of the operation that failed.
	Op string

	// Err is the underlying error.
	Err error
}

// Error returns a formatted error message in the form "landoubao: <Op>: <Err>".
func (e *EngineError) Error() string {
	return fmt.Sprintf("landoubao: %s: %v", e.Op, e.Err)
}

// Unwrap returns the underlying error so errors.Is and errors.As work
// through the wrapper.
func (e *EngineError) Unwrap() error {
	return e.Err
}

// NewEngineError wraps err with the operation name. Returns nil when err is
// nil, so call sites can wrap unconditionally.
func NewEngineError(op string, err error) error {
	if err == nil {
		return nil
	}
	return &EngineError{Op: op, Err: err}
}
