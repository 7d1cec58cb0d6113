package core

import (
	"fmt"

	"github.com/pkg/errors"
)

// FieldError is used to indicate an error with a specific struct field.
type FieldError struct {
	Field string
	Error string
}

type ValidationError struct {
	Err    error
	Fields []FieldError
}

func NewValidationError(err error, flds ...FieldError) error {
	return &ValidationError{err, flds}
}

func (err ValidationError) Error() string {
	if err.Err == nil {
		return ""
	}
	return err.Err.Error()
}

// ConflictError signals that a write collides with existing state
// (eg. a double-booked schedule slot).
type ConflictError struct {
	Err error
}

func NewConflictError(err error) error {
	return &ConflictError{Err: err}
}

func (err ConflictError) Error() string {
	if err.Err == nil {
		return "conflict"
	}
	return err.Err.Error()
}

// InvalidTransitionError signals a lifecycle transition attempted from a
// disallowed source state. Callers should re-fetch state before retrying.
type InvalidTransitionError struct {
	Current   string
	Requested string
}

func NewInvalidTransitionError(current, requested string) error {
	return &InvalidTransitionError{Current: current, Requested: requested}
}

func (err InvalidTransitionError) Error() string {
	return fmt.Sprintf("cannot transition to %q from %q", err.Requested, err.Current)
}

type shutdown struct {
	message string
}

func NewShutdownError(msg string) error {
	return &shutdown{message: msg}
}

func (s shutdown) Error() string {
	return s.message
}

func IsShutdown(err error) bool {
	_, ok := errors.Cause(err).(*shutdown)
	return ok
}
