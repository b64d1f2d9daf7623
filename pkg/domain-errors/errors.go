// Package domainerrors defines the client-facing error taxonomy. Services return
// these; transport adapters translate codes into status codes and bodies.
package domainerrors

import (
	"errors"
	"fmt"
)

// Code identifies a category of domain error. Codes are stable strings that are
// safe to return to API clients.
type Code string

const (
	CodeBadRequest         Code = "bad_request"
	CodeValidation         Code = "validation_error"
	CodeUnauthorized       Code = "unauthorized"
	CodeForbidden          Code = "forbidden"
	CodeNotFound           Code = "not_found"
	CodeNotCompleted       Code = "not_completed"
	CodeConflict           Code = "conflict"
	CodeUnrecognizedEvent  Code = "unrecognized_event"
	CodeRateLimited        Code = "rate_limited"
	CodeUpstream           Code = "upstream_error"
	CodeInvariantViolation Code = "invariant_violation"
	CodeInternal           Code = "internal_error"
)

// Error is a domain error carrying a Code and a client-safe message.
type Error struct {
	Code    Code
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// New creates a domain error with the given code and message.
func New(code Code, message string) *Error {
	return &Error{Code: code, Message: message}
}

// Wrap attaches a code and message to an underlying error. The underlying error
// is kept for logs and errors.Is checks but never shown to clients.
func Wrap(err error, code Code, message string) *Error {
	return &Error{Code: code, Message: message, Err: err}
}

// As extracts the outermost domain error from err.
func As(err error) (*Error, bool) {
	var de *Error
	if errors.As(err, &de) {
		return de, true
	}
	return nil, false
}

// HasCode reports whether err is (or wraps) a domain error with the given code.
func HasCode(err error, code Code) bool {
	de, ok := As(err)
	return ok && de.Code == code
}

// Is is a convenience re-export so callers importing this package as dErrors
// don't also need the standard errors package.
func Is(err, target error) bool {
	return errors.Is(err, target)
}
