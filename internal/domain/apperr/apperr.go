// Package apperr defines the error taxonomy shared by every layer.
//
// Each failure belongs to exactly one kind. Domain packages declare their
// specific errors with New so that callers can match either the specific
// error or its kind with errors.Is.
package apperr

import (
	"errors"
)

// Error kinds.
var (
	ErrValidation      = errors.New("invalid input")
	ErrUnauthenticated = errors.New("unauthenticated")
	ErrForbidden       = errors.New("forbidden")
	ErrNotFound        = errors.New("not found")
	ErrConflict        = errors.New("conflict")
	ErrLocked          = errors.New("locked")
	ErrUnavailable     = errors.New("store unavailable")
)

// Error is a caller-facing message tagged with a kind and an optional cause.
type Error struct {
	Kind    error
	Message string
	Err     error
}

// New returns an error of the given kind.
func New(kind error, message string) *Error {
	return &Error{Kind: kind, Message: message}
}

// Wrap returns an error of the given kind that keeps err as its cause.
func Wrap(kind error, message string, err error) *Error {
	return &Error{Kind: kind, Message: message, Err: err}
}

func (e *Error) Error() string {
	if e.Err != nil {
		return e.Message + ": " + e.Err.Error()
	}
	return e.Message
}

func (e *Error) Unwrap() []error {
	if e.Err != nil {
		return []error{e.Kind, e.Err}
	}
	return []error{e.Kind}
}

// Is matches another *Error with the same kind and message, so a wrapped copy
// of a declared error still matches the declaration.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Kind == e.Kind && t.Message == e.Message
}

// WithCause returns a copy of e carrying err as its cause.
func (e *Error) WithCause(err error) *Error {
	return &Error{Kind: e.Kind, Message: e.Message, Err: err}
}

// Validation is shorthand for New(ErrValidation, message).
func Validation(message string) *Error { return New(ErrValidation, message) }

// NotFound is shorthand for New(ErrNotFound, message).
func NotFound(message string) *Error { return New(ErrNotFound, message) }

// Conflict is shorthand for New(ErrConflict, message).
func Conflict(message string) *Error { return New(ErrConflict, message) }

// Forbidden is shorthand for New(ErrForbidden, message).
func Forbidden(message string) *Error { return New(ErrForbidden, message) }

// Kind returns the taxonomy kind of err, or nil when err is unclassified.
func Kind(err error) error {
	for _, k := range []error{
		ErrValidation, ErrUnauthenticated, ErrForbidden, ErrNotFound,
		ErrConflict, ErrLocked, ErrUnavailable,
	} {
		if errors.Is(err, k) {
			return k
		}
	}
	return nil
}

// Message returns the caller-facing message of err. Causes are omitted so
// that driver details never reach a client.
func Message(err error) string {
	var e *Error
	if errors.As(err, &e) {
		return e.Message
	}
	if k := Kind(err); k != nil {
		return k.Error()
	}
	return "internal error"
}

func IsValidation(err error) bool  { return errors.Is(err, ErrValidation) }
func IsNotFound(err error) bool    { return errors.Is(err, ErrNotFound) }
func IsConflict(err error) bool    { return errors.Is(err, ErrConflict) }
func IsUnavailable(err error) bool { return errors.Is(err, ErrUnavailable) }
