// Package errors defines the typed error currency used across the domain
// layer. Every package returns *AppError (or wraps one) instead of bare
// errors so the HTTP edge can map failures to status codes without
// re-deriving intent from error strings.
package errors

import (
	"fmt"
	"net/http"
)

// ErrorType classifies a failure into the taxonomy the HTTP edge maps to
// status codes.
type ErrorType string

const (
	ErrorTypeValidation ErrorType = "validation"
	ErrorTypeAuth       ErrorType = "auth"
	ErrorTypeNotFound   ErrorType = "not_found"
	ErrorTypeConflict   ErrorType = "conflict"
	ErrorTypeTimeout    ErrorType = "timeout"
	ErrorTypeRateLimit  ErrorType = "rate_limit"
	ErrorTypeDatabase   ErrorType = "database"
	ErrorTypeNetwork    ErrorType = "network"
	ErrorTypeInternal   ErrorType = "internal"
	ErrorTypeGone       ErrorType = "gone"
	ErrorTypeUnavailable ErrorType = "unavailable"
)

var statusByType = map[ErrorType]int{
	ErrorTypeValidation:  http.StatusBadRequest,
	ErrorTypeAuth:        http.StatusUnauthorized,
	ErrorTypeNotFound:    http.StatusNotFound,
	ErrorTypeConflict:    http.StatusConflict,
	ErrorTypeTimeout:     http.StatusRequestTimeout,
	ErrorTypeRateLimit:   http.StatusTooManyRequests,
	ErrorTypeDatabase:    http.StatusInternalServerError,
	ErrorTypeNetwork:     http.StatusInternalServerError,
	ErrorTypeInternal:    http.StatusInternalServerError,
	ErrorTypeGone:        http.StatusGone,
	ErrorTypeUnavailable: http.StatusServiceUnavailable,
}

// AppError is the single error type handed from domain packages to the
// HTTP edge.
type AppError struct {
	Type       ErrorType
	Message    string
	StatusCode int
	Details    string
	Cause      error
}

// New creates an AppError of the given type.
func New(t ErrorType, message string) *AppError {
	return &AppError{
		Type:       t,
		Message:    message,
		StatusCode: statusByType[t],
	}
}

// Newf creates an AppError with a formatted message.
func Newf(t ErrorType, format string, args ...any) *AppError {
	return New(t, fmt.Sprintf(format, args...))
}

// Wrap creates an AppError carrying the original error as its cause.
func Wrap(cause error, t ErrorType, message string) *AppError {
	err := New(t, message)
	err.Cause = cause
	return err
}

// Wrapf creates a wrapped AppError with a formatted message.
func Wrapf(cause error, t ErrorType, format string, args ...any) *AppError {
	return Wrap(cause, t, fmt.Sprintf(format, args...))
}

// WithDetails attaches extra detail text in place and returns the receiver.
func (e *AppError) WithDetails(details string) *AppError {
	e.Details = details
	return e
}

// WithDetailsf attaches formatted detail text in place.
func (e *AppError) WithDetailsf(format string, args ...any) *AppError {
	e.Details = fmt.Sprintf(format, args...)
	return e
}

// Error implements the error interface.
func (e *AppError) Error() string {
	if e.Details != "" {
		return fmt.Sprintf("%s: %s (%s)", e.Type, e.Message, e.Details)
	}
	return fmt.Sprintf("%s: %s", e.Type, e.Message)
}

// Unwrap exposes the wrapped cause for errors.Is/As.
func (e *AppError) Unwrap() error {
	return e.Cause
}

// Validation is a convenience constructor for the most common error kind.
func Validation(message string) *AppError { return New(ErrorTypeValidation, message) }

// Conflict is a convenience constructor.
func Conflict(message string) *AppError { return New(ErrorTypeConflict, message) }

// NotFound is a convenience constructor.
func NotFound(message string) *AppError { return New(ErrorTypeNotFound, message) }

// Gone is a convenience constructor for retired endpoints.
func Gone(message string) *AppError { return New(ErrorTypeGone, message) }

// Unavailable is a convenience constructor.
func Unavailable(message string) *AppError { return New(ErrorTypeUnavailable, message) }

// Internal is a convenience constructor.
func Internal(message string) *AppError { return New(ErrorTypeInternal, message) }

// As extracts an *AppError from any error, falling back to wrapping it as
// internal when the error isn't already typed.
func As(err error) *AppError {
	if err == nil {
		return nil
	}
	if ae, ok := err.(*AppError); ok {
		return ae
	}
	return Wrap(err, ErrorTypeInternal, "unexpected error")
}
