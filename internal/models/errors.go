package models

import (
	"errors"
	"fmt"
	"net/http"
)

// Error codes carried by AppError.
const (
	CodeTransport    = "TRANSPORT_ERROR"
	CodeHTTP         = "HTTP_ERROR"
	CodeUnauthorized = "UNAUTHORIZED"
	CodeValidation   = "VALIDATION_ERROR"
	CodeConflict     = "CONFLICT"
	CodeNotFound     = "NOT_FOUND"
)

// ErrorResponse is the error body returned by the remote API.
type ErrorResponse struct {
	Message string `json:"message"`
	Error   string `json:"error"`
	Code    string `json:"code,omitempty"`
}

// AppError represents a client-side application error.
type AppError struct {
	Code    string
	Status  int
	Message string
	Err     error
}

func (e *AppError) Error() string {
	if e.Status != 0 {
		if e.Err != nil {
			return fmt.Sprintf("%s (status %d): %v", e.Message, e.Status, e.Err)
		}
		return fmt.Sprintf("%s (status %d)", e.Message, e.Status)
	}
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *AppError) Unwrap() error {
	return e.Err
}

// NewTransportError wraps a network-level failure (unreachable host, reset, timeout).
func NewTransportError(err error) *AppError {
	return &AppError{
		Code:    CodeTransport,
		Message: "Network request failed",
		Err:     err,
	}
}

// NewHTTPError builds the error for a non-2xx response. A 401 is tagged UNAUTHORIZED.
func NewHTTPError(status int, message string) *AppError {
	code := CodeHTTP
	if status == http.StatusUnauthorized {
		code = CodeUnauthorized
	}
	if message == "" {
		message = http.StatusText(status)
	}
	return &AppError{
		Code:    code,
		Status:  status,
		Message: message,
	}
}

func NewValidationError(message string) *AppError {
	return &AppError{
		Code:    CodeValidation,
		Message: message,
	}
}

func NewConflictError(message string) *AppError {
	return &AppError{
		Code:    CodeConflict,
		Message: message,
	}
}

func NewNotFoundError(resource string, id interface{}) *AppError {
	return &AppError{
		Code:    CodeNotFound,
		Message: fmt.Sprintf("%s with ID %v not found", resource, id),
	}
}

func hasCode(err error, code string) bool {
	var appErr *AppError
	return errors.As(err, &appErr) && appErr.Code == code
}

// IsUnauthorized reports whether err carries a 401 from the remote API.
func IsUnauthorized(err error) bool { return hasCode(err, CodeUnauthorized) }

// IsValidation reports whether err is a client-side validation failure.
func IsValidation(err error) bool { return hasCode(err, CodeValidation) }

// IsTransport reports whether err is a network-level failure.
func IsTransport(err error) bool { return hasCode(err, CodeTransport) }

// IsConflict reports whether err was caused by a mutation already in flight.
func IsConflict(err error) bool { return hasCode(err, CodeConflict) }

// StatusOf returns the HTTP status carried by err, or 0.
func StatusOf(err error) int {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.Status
	}
	return 0
}
