package domain

import (
	"errors"
	"fmt"
)

// ErrSessionNotFound is returned when a session ID cannot be found in the store.
var ErrSessionNotFound = errors.New("session not found")

// ErrNotFound is returned by repositories when an entity does not exist.
var ErrNotFound = errors.New("not found")

var (
	// ErrInvalidInput marks caller mistakes. Nothing is mutated when it is returned.
	ErrInvalidInput = errors.New("invalid input")
	// ErrVersionNotPublished is returned when a turn targets a draft or archived version.
	ErrVersionNotPublished = errors.New("template version is not published")
	// ErrSessionTerminal is returned when a turn targets a completed session.
	ErrSessionTerminal = errors.New("session is completed")
	// ErrActiveSessionExists is returned when a conversation already runs another instance.
	ErrActiveSessionExists = errors.New("conversation already has an active session")
	// ErrRevisionConflict is returned when a session was modified concurrently.
	ErrRevisionConflict = errors.New("session revision conflict")
	// ErrInvalidTransition marks a status change outside the session state machine.
	ErrInvalidTransition = errors.New("invalid session status transition")
	// ErrNodeUnresolvable is returned when neither the pointer nor the step index names a node.
	ErrNodeUnresolvable = errors.New("current node cannot be resolved")
	// ErrUnknownNodeKind is returned when a node config variant has no executor.
	ErrUnknownNodeKind = errors.New("unknown node kind")
)

// InputError describes a rejected request.
type InputError struct {
	Field  string
	Reason string
	Err    error
}

func (e *InputError) Error() string {
	if e.Field == "" {
		return fmt.Sprintf("invalid input: %s", e.Reason)
	}
	return fmt.Sprintf("invalid input: %s: %s", e.Field, e.Reason)
}

func (e *InputError) Unwrap() []error {
	if e.Err != nil {
		return []error{ErrInvalidInput, e.Err}
	}
	return []error{ErrInvalidInput}
}

// NewInputError is a shorthand for an InputError without a cause.
func NewInputError(field, reason string) *InputError {
	return &InputError{Field: field, Reason: reason}
}

// PersistenceError wraps a storage failure. Turns that hit one are retried by the caller.
type PersistenceError struct {
	Op  string
	Err error
}

func (e *PersistenceError) Error() string {
	return fmt.Sprintf("persistence: %s: %v", e.Op, e.Err)
}

func (e *PersistenceError) Unwrap() error { return e.Err }

// InvariantError signals a bug: a state the engine should never reach.
type InvariantError struct {
	Op  string
	Err error
}

func (e *InvariantError) Error() string {
	return fmt.Sprintf("invariant violated: %s: %v", e.Op, e.Err)
}

func (e *InvariantError) Unwrap() error { return e.Err }

// IsInputError reports whether err was caused by a bad request.
func IsInputError(err error) bool {
	return errors.Is(err, ErrInvalidInput)
}

// IsPersistenceError reports whether err wraps a storage failure.
func IsPersistenceError(err error) bool {
	var pe *PersistenceError
	return errors.As(err, &pe)
}

// IsInvariantViolation reports whether err wraps an invariant violation.
func IsInvariantViolation(err error) bool {
	var ie *InvariantError
	return errors.As(err, &ie)
}
