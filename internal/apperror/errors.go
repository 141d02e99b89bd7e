// Package apperror provides domain-specific error types for mediatag.
// Each error carries an HTTP status code and a client-safe message. The
// Echo error handler in internal/app turns them into JSON responses.
//
// Repositories translate "row not found" into NewNotFound. Services wrap
// infrastructure failures in NewInternal so storage details never reach
// API clients.
package apperror

import (
	"errors"
	"fmt"
	"net/http"
)

// AppError is the base error type for all domain errors.
type AppError struct {
	// Code is the HTTP status code (e.g., 404, 409, 500).
	Code int `json:"-"`

	// Type is a machine-readable classifier (e.g., "not_found").
	Type string `json:"type"`

	// Message is a human-readable description safe for the client.
	Message string `json:"message"`

	// Internal holds the underlying error for logging. Never exposed.
	Internal error `json:"-"`
}

// Error implements the error interface.
func (e *AppError) Error() string {
	if e.Internal != nil {
		return fmt.Sprintf("%s: %s (internal: %v)", e.Type, e.Message, e.Internal)
	}
	return fmt.Sprintf("%s: %s", e.Type, e.Message)
}

// Unwrap exposes the underlying error for errors.Is/As.
func (e *AppError) Unwrap() error {
	return e.Internal
}

func newError(code int, typ, message string) *AppError {
	return &AppError{Code: code, Type: typ, Message: message}
}

// NewNotFound creates a 404 error. Document lookups that miss use this so
// callers can tell a lookup-miss apart from an I/O failure.
func NewNotFound(message string) *AppError {
	return newError(http.StatusNotFound, "not_found", message)
}

// NewBadRequest creates a 400 error.
func NewBadRequest(message string) *AppError {
	return newError(http.StatusBadRequest, "bad_request", message)
}

// NewConflict creates a 409 error, used for illegal tag lifecycle
// transitions (e.g. creating a tag for an entity that already has one).
func NewConflict(message string) *AppError {
	return newError(http.StatusConflict, "conflict", message)
}

// NewLocked creates a 423 error returned while another hierarchy move holds
// the move guard.
func NewLocked(message string) *AppError {
	return newError(http.StatusLocked, "locked", message)
}

// NewTooManyRequests creates a 429 error for rate-limited callers.
func NewTooManyRequests(message string) *AppError {
	return newError(http.StatusTooManyRequests, "rate_limited", message)
}

// NewUnavailable creates a 503 error, used when background work cannot be
// queued.
func NewUnavailable(message string) *AppError {
	return newError(http.StatusServiceUnavailable, "unavailable", message)
}

// NewValidation creates a 422 error for request validation failures.
func NewValidation(message string) *AppError {
	return newError(http.StatusUnprocessableEntity, "validation_error", message)
}

// NewInternal creates a 500 error. The real cause is kept in Internal for
// logging while the client only sees a generic message.
func NewInternal(err error) *AppError {
	return &AppError{
		Code:     http.StatusInternalServerError,
		Type:     "internal_error",
		Message:  "An unexpected error occurred. Please try again.",
		Internal: err,
	}
}

// IsNotFound reports whether err (or anything it wraps) is a 404 AppError.
func IsNotFound(err error) bool {
	var appErr *AppError
	return errors.As(err, &appErr) && appErr.Code == http.StatusNotFound
}

// SafeMessage returns the client-safe message for err. Non-AppErrors get a
// generic message so table names and query text never leak.
func SafeMessage(err error) string {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.Message
	}
	return "an unexpected error occurred"
}

// SafeCode returns the HTTP status for err, or 500 for foreign errors.
func SafeCode(err error) int {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.Code
	}
	return http.StatusInternalServerError
}
