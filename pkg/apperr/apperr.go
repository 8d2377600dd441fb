// Package apperr defines the error taxonomy shared by every component
// boundary and the HTTP mapping at the edge of pkg/api.
package apperr

import (
	"errors"
	"fmt"
)

// Kind is a stable error classification, not a type name.
type Kind string

const (
	Validation      Kind = "VALIDATION_ERROR"
	NotFound        Kind = "NOT_FOUND"
	Conflict        Kind = "CONFLICT"
	ContainerErr    Kind = "CONTAINER_ERROR"
	AiderExecution  Kind = "AIDER_EXECUTION_ERROR"
	Repository      Kind = "REPOSITORY_ERROR"
	Service         Kind = "SERVICE_ERROR"
	CancelledKind   Kind = "CANCELLED"
)

// Error is the single error type returned across component boundaries.
type Error struct {
	Kind    Kind
	Message string
	Err     error

	// Fields carries field-wise validation detail for Validation errors.
	Fields map[string]string

	// Details carries structured, error-specific payload surfaced to the
	// client alongside message/error_code — e.g. a Conflict's
	// valid_transitions list.
	Details any
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error { return e.Err }

func New(kind Kind, message string) *Error {
	return &Error{Kind: kind, Message: message}
}

func Wrap(kind Kind, message string, err error) *Error {
	return &Error{Kind: kind, Message: message, Err: err}
}

func Validationf(format string, args ...any) *Error {
	return &Error{Kind: Validation, Message: fmt.Sprintf(format, args...)}
}

// WithField attaches a field-wise validation detail and returns the receiver.
func (e *Error) WithField(field, reason string) *Error {
	if e.Fields == nil {
		e.Fields = make(map[string]string)
	}
	e.Fields[field] = reason
	return e
}

// WithDetails attaches a structured payload (e.g. valid_transitions) and
// returns the receiver.
func (e *Error) WithDetails(details any) *Error {
	e.Details = details
	return e
}

// DetailsOf extracts the Details payload from err, if any.
func DetailsOf(err error) any {
	var ae *Error
	if errors.As(err, &ae) {
		return ae.Details
	}
	return nil
}

// KindOf extracts the Kind from err, defaulting to Service for untyped errors.
func KindOf(err error) Kind {
	var ae *Error
	if errors.As(err, &ae) {
		return ae.Kind
	}
	return Service
}

// Is reports whether err (or any error in its chain) has the given Kind.
func Is(err error, kind Kind) bool {
	return KindOf(err) == kind
}
