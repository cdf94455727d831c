// Package llmerrors classifies LLM backend failures so middleware can decide
// whether to retry, trip the circuit breaker, or give up.
package llmerrors

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
)

// ErrorType represents different categories of LLM errors for retry logic.
type ErrorType int8

const (
	// ErrorTypeRateLimit represents rate limiting errors (429, quota exceeded).
	ErrorTypeRateLimit ErrorType = iota
	// ErrorTypeTransient represents transient errors (5xx, EOF, connection reset, timeout).
	ErrorTypeTransient
	// ErrorTypeEmptyResponse represents HTTP 200 but no content.
	ErrorTypeEmptyResponse
	// ErrorTypeAuth represents authentication errors (401/403, bad API key).
	ErrorTypeAuth
	// ErrorTypeBadPrompt represents malformed requests (too long, policy violation, unknown model).
	ErrorTypeBadPrompt
	// ErrorTypeUnknown is the default for unclassified errors.
	ErrorTypeUnknown
	// ErrorTypeServiceUnavailable is emitted once retries are exhausted or the circuit is open.
	ErrorTypeServiceUnavailable
)

// String returns the label used in logs and metrics.
func (et ErrorType) String() string {
	switch et {
	case ErrorTypeRateLimit:
		return "rate_limit"
	case ErrorTypeTransient:
		return "transient"
	case ErrorTypeEmptyResponse:
		return "empty_response"
	case ErrorTypeAuth:
		return "auth"
	case ErrorTypeBadPrompt:
		return "bad_prompt"
	case ErrorTypeUnknown:
		return "unknown"
	case ErrorTypeServiceUnavailable:
		return "service_unavailable"
	default:
		return "invalid"
	}
}

// Error represents a classified LLM error.
type Error struct {
	Err        error
	Message    string
	Type       ErrorType
	StatusCode int // HTTP status code if known
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("LLM error (%s): %s", e.Type, e.Message)
	}
	if e.Err != nil {
		return fmt.Sprintf("LLM error (%s): %v", e.Type, e.Err)
	}
	return fmt.Sprintf("LLM error (%s): status %d", e.Type, e.StatusCode)
}

// Unwrap returns the underlying error.
func (e *Error) Unwrap() error {
	return e.Err
}

// IsRetryable reports whether another attempt could succeed.
// Everything is retryable unless explicitly excluded.
func (e *Error) IsRetryable() bool {
	switch e.Type {
	case ErrorTypeAuth, ErrorTypeBadPrompt, ErrorTypeServiceUnavailable:
		return false
	default:
		return true
	}
}

// Is checks if an error is of a specific type.
func Is(err error, errorType ErrorType) bool {
	var llmErr *Error
	if errors.As(err, &llmErr) {
		return llmErr.Type == errorType
	}
	return false
}

// TypeOf returns the error type of an error, or ErrorTypeUnknown if not classified.
func TypeOf(err error) ErrorType {
	var llmErr *Error
	if errors.As(err, &llmErr) {
		return llmErr.Type
	}
	return ErrorTypeUnknown
}

// IsRetryable reports whether err is worth retrying. Unclassified errors are,
// except context cancellation which no retry can fix.
func IsRetryable(err error) bool {
	if err == nil || errors.Is(err, context.Canceled) {
		return false
	}
	var llmErr *Error
	if errors.As(err, &llmErr) {
		return llmErr.IsRetryable()
	}
	return true
}

// NewError creates a new classified LLM error.
func NewError(errorType ErrorType, message string) *Error {
	return &Error{Type: errorType, Message: message}
}

// NewErrorWithStatus creates a new classified LLM error with HTTP status.
func NewErrorWithStatus(errorType ErrorType, statusCode int, message string) *Error {
	return &Error{Type: errorType, StatusCode: statusCode, Message: message}
}

// NewErrorWithCause creates a new classified LLM error wrapping another error.
func NewErrorWithCause(errorType ErrorType, cause error, message string) *Error {
	return &Error{Type: errorType, Err: cause, Message: message}
}

// NewServiceUnavailableError wraps the last failure once retries are exhausted.
func NewServiceUnavailableError(cause error, attempts int) *Error {
	return &Error{
		Type:    ErrorTypeServiceUnavailable,
		Err:     cause,
		Message: fmt.Sprintf("service unavailable after %d attempts", attempts),
	}
}

// TypeForStatus maps an HTTP status code to an error type.
func TypeForStatus(status int) ErrorType {
	switch {
	case status == http.StatusTooManyRequests:
		return ErrorTypeRateLimit
	case status == http.StatusUnauthorized, status == http.StatusForbidden:
		return ErrorTypeAuth
	case status == http.StatusBadRequest, status == http.StatusNotFound,
		status == http.StatusRequestEntityTooLarge, status == http.StatusUnprocessableEntity:
		return ErrorTypeBadPrompt
	case status == http.StatusRequestTimeout, status >= 500:
		return ErrorTypeTransient
	default:
		return ErrorTypeUnknown
	}
}

//nolint:gochecknoglobals // ordered lookup table
var messagePatterns = []struct {
	needles []string
	typ     ErrorType
}{
	{[]string{"rate limit", "rate_limit", "quota", "resource_exhausted", "too many requests", "429"}, ErrorTypeRateLimit},
	{[]string{"api key", "api_key", "unauthorized", "permission denied", "permission_denied", "forbidden", "401", "403"}, ErrorTypeAuth},
	{[]string{"context length", "too long", "invalid_argument", "invalid argument", "model not found", "not found", "400"}, ErrorTypeBadPrompt},
	{[]string{
		"timeout", "deadline exceeded", "connection refused", "connection reset", "eof",
		"unavailable", "overloaded", "internal", "500", "502", "503", "504",
	}, ErrorTypeTransient},
}

// TypeForMessage classifies an error by its text. SDKs that do not expose a
// status code are classified this way.
func TypeForMessage(msg string) ErrorType {
	lower := strings.ToLower(msg)
	for _, p := range messagePatterns {
		for _, needle := range p.needles {
			if strings.Contains(lower, needle) {
				return p.typ
			}
		}
	}
	return ErrorTypeUnknown
}

// Classify wraps err as a classified Error. Already-classified errors pass
// through; a known status code wins over message matching.
func Classify(err error, statusCode int, provider string) error {
	if err == nil {
		return nil
	}
	var llmErr *Error
	if errors.As(err, &llmErr) {
		return err
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return &Error{Type: ErrorTypeTransient, Err: err, Message: provider + " request timed out"}
	}
	typ := ErrorTypeUnknown
	if statusCode > 0 {
		typ = TypeForStatus(statusCode)
	}
	if typ == ErrorTypeUnknown {
		typ = TypeForMessage(err.Error())
	}
	return &Error{
		Type:       typ,
		StatusCode: statusCode,
		Err:        err,
		Message:    fmt.Sprintf("%s: %v", provider, err),
	}
}
