package models

import (
	"errors"
	"fmt"
)

// ErrorKind is the machine-readable classification of a core error
type ErrorKind string

const (
	// ErrKindValidation means the input failed schema or invariant checks
	ErrKindValidation ErrorKind = "VALIDATION_ERROR"

	// ErrKindNotFound means the referenced entity does not exist
	ErrKindNotFound ErrorKind = "NOT_FOUND"

	// ErrKindConflict means a uniqueness constraint was violated
	ErrKindConflict ErrorKind = "CONFLICT"

	// ErrKindUnavailable means the backing store is unreachable or closed
	ErrKindUnavailable ErrorKind = "UNAVAILABLE"

	// ErrKindTimeout means the ambient deadline was exceeded
	ErrKindTimeout ErrorKind = "TIMEOUT"

	// ErrKindNotImplemented marks a stub operation
	ErrKindNotImplemented ErrorKind = "NOT_IMPLEMENTED"

	// ErrKindInvariant marks an internal bug; callers should treat it as fatal
	ErrKindInvariant ErrorKind = "INVARIANT_VIOLATION"
)

// Error is the structured error returned by all core operations.
// Kind is machine-readable, Message is for humans, Hint (optional) points the
// caller at a recovery action.
type Error struct {
	Kind    ErrorKind `json:"kind"`
	Message string    `json:"message"`
	Hint    string    `json:"hint,omitempty"`
	cause   error
}

// Error returns the error message
func (e *Error) Error() string {
	if e.cause != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.cause)
	}
	return e.Message
}

// Unwrap exposes the underlying cause for errors.Is/As chains
func (e *Error) Unwrap() error {
	return e.cause
}

// WithHint attaches a recovery hint and returns the error for chaining
func (e *Error) WithHint(hint string) *Error {
	e.Hint = hint
	return e
}

// WithCause attaches an underlying error and returns the error for chaining
func (e *Error) WithCause(cause error) *Error {
	e.cause = cause
	return e
}

func newError(kind ErrorKind, format string, args ...interface{}) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

// NewValidationError creates a VALIDATION_ERROR
func NewValidationError(format string, args ...interface{}) *Error {
	return newError(ErrKindValidation, format, args...)
}

// NewNotFoundError creates a NOT_FOUND error
func NewNotFoundError(format string, args ...interface{}) *Error {
	return newError(ErrKindNotFound, format, args...)
}

// NewConflictError creates a CONFLICT error
func NewConflictError(format string, args ...interface{}) *Error {
	return newError(ErrKindConflict, format, args...)
}

// NewUnavailableError creates an UNAVAILABLE error
func NewUnavailableError(format string, args ...interface{}) *Error {
	return newError(ErrKindUnavailable, format, args...)
}

// NewTimeoutError creates a TIMEOUT error
func NewTimeoutError(format string, args ...interface{}) *Error {
	return newError(ErrKindTimeout, format, args...)
}

// NewNotImplementedError creates a NOT_IMPLEMENTED error
func NewNotImplementedError(format string, args ...interface{}) *Error {
	return newError(ErrKindNotImplemented, format, args...)
}

// NewInvariantError creates an INVARIANT_VIOLATION error
func NewInvariantError(format string, args ...interface{}) *Error {
	return newError(ErrKindInvariant, format, args...)
}

// KindOf extracts the error kind from any error in the chain.
// Unclassified errors report UNAVAILABLE so callers retry rather than drop.
func KindOf(err error) ErrorKind {
	var coreErr *Error
	if errors.As(err, &coreErr) {
		return coreErr.Kind
	}
	return ErrKindUnavailable
}

// IsKind reports whether err carries the given kind
func IsKind(err error, kind ErrorKind) bool {
	var coreErr *Error
	return errors.As(err, &coreErr) && coreErr.Kind == kind
}

// AsError tries to convert an error to a core *Error
func AsError(err error) (*Error, bool) {
	var coreErr *Error
	ok := errors.As(err, &coreErr)
	return coreErr, ok
}
