package engine

import (
	"errors"
	"fmt"
)

// Kind classifies engine errors.
type Kind string

const (
	// KindValidation is bad caller input. The operation did nothing.
	KindValidation Kind = "validation"
	// KindNotFound is a lookup of an id that does not exist.
	KindNotFound Kind = "not_found"
	// KindProvider is an embedding or telemetry failure. Always resolved by fallback.
	KindProvider Kind = "provider"
	// KindPersistence is a durable store write failure. In-memory state is kept.
	KindPersistence Kind = "persistence"
	// KindMaintenance is a failure inside a background pass.
	KindMaintenance Kind = "maintenance"
	// KindResource is a failure to acquire the graph lock in time.
	KindResource Kind = "resource"
)

// Error is the error type returned by engine operations.
type Error struct {
	Kind    Kind
	Op      string
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("[%s] %s: %s: %v", e.Kind, e.Op, e.Message, e.Err)
	}
	return fmt.Sprintf("[%s] %s: %s", e.Kind, e.Op, e.Message)
}

func (e *Error) Unwrap() error { return e.Err }

func newError(kind Kind, op, msg string, err error) *Error {
	return &Error{Kind: kind, Op: op, Message: msg, Err: err}
}

func validationError(op, format string, args ...any) *Error {
	return newError(KindValidation, op, fmt.Sprintf(format, args...), nil)
}

func notFound(op, what, id string) *Error {
	return newError(KindNotFound, op, fmt.Sprintf("%s %q not found", what, id), nil)
}

// KindOf returns the kind of err, or "" if err is not an engine error.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return ""
}

func IsValidation(err error) bool { return KindOf(err) == KindValidation }
func IsNotFound(err error) bool   { return KindOf(err) == KindNotFound }
func IsResource(err error) bool   { return KindOf(err) == KindResource }
