package types

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
)

// ErrorCode represents a failure class surfaced to tool callers.
type ErrorCode string

// Engine failure classes
const (
	ErrTransientNetwork  ErrorCode = "TRANSIENT_NETWORK"
	ErrAuthentication    ErrorCode = "AUTHENTICATION"
	ErrAuthorization     ErrorCode = "AUTHORIZATION"
	ErrConflict          ErrorCode = "CONFLICT"
	ErrNotFound          ErrorCode = "NOT_FOUND"
	ErrValidation        ErrorCode = "VALIDATION"
	ErrEngineUnavailable ErrorCode = "ENGINE_UNAVAILABLE"
)

// Local failure classes
const (
	ErrInternal ErrorCode = "INTERNAL"
)

// staleRevisionPhrase is how the engine words an optimistic-lock rejection
// when it answers with 400 instead of 409.
const staleRevisionPhrase = "not the most up-to-date revision"

// Error represents a structured error with code, message, and request metadata.
type Error struct {
	Code       ErrorCode `json:"code"`
	Message    string    `json:"message"`
	HTTPStatus int       `json:"httpStatus,omitempty"`
	Retryable  bool      `json:"retryable"`
	Method     string    `json:"method,omitempty"`
	Path       string    `json:"path,omitempty"`
	Cause      error     `json:"-"`
}

// Error implements the error interface.
func (e *Error) Error() string {
	var b strings.Builder
	fmt.Fprintf(&b, "[%s] %s", e.Code, e.Message)
	if e.Method != "" {
		fmt.Fprintf(&b, " (%s %s", e.Method, e.Path)
		if e.HTTPStatus != 0 {
			fmt.Fprintf(&b, " -> %d", e.HTTPStatus)
		}
		b.WriteString(")")
	}
	if e.Cause != nil {
		fmt.Fprintf(&b, ": %v", e.Cause)
	}
	return b.String()
}

// Unwrap returns the underlying cause.
func (e *Error) Unwrap() error {
	return e.Cause
}

// Is matches another *Error by code, so errors.Is(err, &Error{Code: ErrConflict}) works.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Code == e.Code
}

// NewError creates a new Error with the given code and message.
func NewError(code ErrorCode, message string) *Error {
	return &Error{Code: code, Message: message, Retryable: code == ErrTransientNetwork}
}

// Errorf creates a new Error with a formatted message.
func Errorf(code ErrorCode, format string, args ...any) *Error {
	return NewError(code, fmt.Sprintf(format, args...))
}

// WithCause adds a cause to the error.
func (e *Error) WithCause(cause error) *Error {
	e.Cause = cause
	return e
}

// WithHTTPStatus sets the HTTP status code.
func (e *Error) WithHTTPStatus(status int) *Error {
	e.HTTPStatus = status
	return e
}

// WithRequest records the engine request that failed.
func (e *Error) WithRequest(method, path string) *Error {
	e.Method = method
	e.Path = path
	return e
}

// IsRetryable checks if an error is retryable.
func IsRetryable(err error) bool {
	var e *Error
	if errors.As(err, &e) {
		return e.Retryable
	}
	return false
}

// GetErrorCode extracts the error code from an error.
func GetErrorCode(err error) ErrorCode {
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return ""
}

// HasCode reports whether err carries the given code.
func HasCode(err error, code ErrorCode) bool {
	return GetErrorCode(err) == code
}

// ClassifyStatus maps an engine HTTP status and message to a failure class.
// 401 and 403 are checked before any other class.
func ClassifyStatus(status int, message string) ErrorCode {
	lower := strings.ToLower(message)
	switch {
	case status == http.StatusUnauthorized:
		return ErrAuthentication
	case status == http.StatusForbidden:
		return ErrAuthorization
	case status == http.StatusNotFound:
		return ErrNotFound
	case strings.Contains(lower, staleRevisionPhrase):
		return ErrConflict
	case status == http.StatusConflict:
		if isQueueNotEmpty(lower) {
			return ErrValidation
		}
		return ErrConflict
	case status == http.StatusTooManyRequests,
		status == http.StatusBadGateway,
		status == http.StatusServiceUnavailable,
		status == http.StatusGatewayTimeout:
		return ErrTransientNetwork
	case status >= 400 && status < 500:
		return ErrValidation
	case status >= 500:
		return ErrEngineUnavailable
	default:
		return ErrEngineUnavailable
	}
}

// FromStatus builds the structured error for a failed engine response.
func FromStatus(status int, message string) *Error {
	if message == "" {
		message = http.StatusText(status)
	}
	return NewError(ClassifyStatus(status, message), message).WithHTTPStatus(status)
}

func isQueueNotEmpty(lower string) bool {
	if !strings.Contains(lower, "queue") {
		return false
	}
	return strings.Contains(lower, "not empty") || strings.Contains(lower, "flowfiles")
}
