// Package aecerr provides the unified error taxonomy for AEC OS.
// Every subsystem converts lower-level failures into a typed *Error at its
// boundary so callers can dispatch on Kind without string matching.
package aecerr

import (
	"errors"
	"fmt"
)

// Kind classifies an error for programmatic handling.
type Kind string

const (
	// InvalidArgument marks malformed inputs (empty id, unknown check type).
	InvalidArgument Kind = "invalid_argument"
	// NotFound marks an addressed object that does not exist.
	NotFound Kind = "not_found"
	// Conflict marks uniqueness violations and racing writers.
	Conflict Kind = "conflict"
	// IO marks filesystem or database failures.
	IO Kind = "io"
	// Integrity marks broken invariants (audit chain mismatch,
	// metadata.json inconsistent with its folder name).
	Integrity Kind = "integrity"
	// Dependency marks an unavailable optional collaborator.
	Dependency Kind = "dependency"
)

// Error is a structured error with a kind, the subject it concerns
// (an id or path), and an optional wrapped cause.
type Error struct {
	Kind    Kind
	Subject string
	Message string
	Err     error
}

func (e *Error) Error() string {
	switch {
	case e.Subject != "" && e.Err != nil:
		return fmt.Sprintf("[%s] %s: %s: %v", e.Kind, e.Subject, e.Message, e.Err)
	case e.Subject != "":
		return fmt.Sprintf("[%s] %s: %s", e.Kind, e.Subject, e.Message)
	case e.Err != nil:
		return fmt.Sprintf("[%s] %s: %v", e.Kind, e.Message, e.Err)
	default:
		return fmt.Sprintf("[%s] %s", e.Kind, e.Message)
	}
}

func (e *Error) Unwrap() error { return e.Err }

// Is reports kind equality so errors.Is(err, aecerr.New(aecerr.NotFound, ...))
// style sentinels work across wrapping.
func (e *Error) Is(target error) bool {
	var t *Error
	if !errors.As(target, &t) {
		return false
	}
	return e.Kind == t.Kind
}

// New creates an error of the given kind.
func New(kind Kind, subject, message string) *Error {
	return &Error{Kind: kind, Subject: subject, Message: message}
}

// Wrap creates an error of the given kind around a cause.
func Wrap(kind Kind, subject, message string, err error) *Error {
	return &Error{Kind: kind, Subject: subject, Message: message, Err: err}
}

// KindOf returns the Kind of err, or an empty string for untyped errors.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return ""
}

// IsNotFound reports whether err carries the NotFound kind.
func IsNotFound(err error) bool { return KindOf(err) == NotFound }

// IsConflict reports whether err carries the Conflict kind.
func IsConflict(err error) bool { return KindOf(err) == Conflict }
