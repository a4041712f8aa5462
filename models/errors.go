package models

import (
	"errors"
	"fmt"
)

var (
	// ErrNotFound is returned when a help request or knowledge entry id is unknown.
	ErrNotFound = errors.New("not found")
	// ErrAlreadyFinalized is returned when a help request already left PENDING.
	ErrAlreadyFinalized = errors.New("help request already finalized")
	// ErrPersistence is returned when the backing collection cannot be read or written.
	ErrPersistence = errors.New("persistence failure")
	// ErrJudgmentUnavailable is returned by a Judge that timed out or answered garbage.
	ErrJudgmentUnavailable = errors.New("judgment unavailable")
	// ErrValidation is returned for empty question or answer text.
	ErrValidation = errors.New("validation failure")
)

// ValidationError names the offending input field.
type ValidationError struct {
	Field  string
	Reason string
}

func (e ValidationError) Error() string {
	if e.Reason != "" {
		return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
	}
	return fmt.Sprintf("invalid %s", e.Field)
}

func (e ValidationError) Is(target error) bool { return target == ErrValidation }

// PersistenceError wraps a backing-store failure with the operation that hit it.
type PersistenceError struct {
	Op  string
	Err error
}

func (e *PersistenceError) Error() string {
	return fmt.Sprintf("persistence failure during %s: %v", e.Op, e.Err)
}

func (e *PersistenceError) Unwrap() error { return e.Err }

func (e *PersistenceError) Is(target error) bool { return target == ErrPersistence }

// FinalizedError reports the status a request was already in when a transition was attempted.
type FinalizedError struct {
	ID     string
	Status RequestStatus
}

func (e FinalizedError) Error() string {
	return fmt.Sprintf("help request %s already finalized (status %s)", e.ID, e.Status)
}

func (e FinalizedError) Is(target error) bool { return target == ErrAlreadyFinalized }

// LearningError is returned alongside a successfully resolved request when the
// knowledge ingestion that follows resolution failed.
type LearningError struct {
	RequestID string
	Err       error
}

func (e *LearningError) Error() string {
	return fmt.Sprintf("request %s resolved but knowledge ingestion failed: %v", e.RequestID, e.Err)
}

func (e *LearningError) Unwrap() error { return e.Err }

// Persistence wraps err as a PersistenceError unless it is nil or already one of ours.
func Persistence(op string, err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, ErrPersistence) || errors.Is(err, ErrNotFound) ||
		errors.Is(err, ErrAlreadyFinalized) || errors.Is(err, ErrValidation) {
		return err
	}
	return &PersistenceError{Op: op, Err: err}
}
