package n8n

import (
	"errors"
	"fmt"
)

// ErrNotConfigured indicates no n8n API client is available because the
// instance URL or API key is missing. Callers treat this as "skip remote
// operations", not as a failure of the workflow itself.
var ErrNotConfigured = errors.New("n8n API not configured")

// ErrorType classifies an API failure by its cause.
type ErrorType string

const (
	ErrorTypeAuthentication ErrorType = "AUTHENTICATION"
	ErrorTypeValidation     ErrorType = "VALIDATION"
	ErrorTypeNotFound       ErrorType = "NOT_FOUND"
	ErrorTypeRateLimit      ErrorType = "RATE_LIMIT"
	ErrorTypeServer         ErrorType = "SERVER_ERROR"
	ErrorTypeNetwork        ErrorType = "NETWORK"
)

// APIError is a failure reported by (or while reaching) the n8n API.
// Recoverable signals whether retrying with a corrected workflow could
// succeed: a VALIDATION rejection can, an AUTHENTICATION failure cannot.
type APIError struct {
	StatusCode  int
	Message     string
	Type        ErrorType
	Recoverable bool

	// Cause is the underlying transport error for NETWORK failures.
	Cause error
}

// Error implements the error interface.
func (e *APIError) Error() string {
	if e.StatusCode > 0 {
		return fmt.Sprintf("n8n API error (%s, status %d): %s", e.Type, e.StatusCode, e.Message)
	}
	return fmt.Sprintf("n8n API error (%s): %s", e.Type, e.Message)
}

// Unwrap returns the underlying cause.
func (e *APIError) Unwrap() error {
	return e.Cause
}

// newAPIError classifies an HTTP status into an APIError.
func newAPIError(statusCode int, message string) *APIError {
	e := &APIError{StatusCode: statusCode, Message: message}
	switch {
	case statusCode == 401 || statusCode == 403:
		e.Type = ErrorTypeAuthentication
		e.Recoverable = false
	case statusCode == 400 || statusCode == 422:
		e.Type = ErrorTypeValidation
		e.Recoverable = true
	case statusCode == 404:
		e.Type = ErrorTypeNotFound
		e.Recoverable = false
	case statusCode == 429:
		e.Type = ErrorTypeRateLimit
		e.Recoverable = true
	case statusCode >= 500:
		e.Type = ErrorTypeServer
		e.Recoverable = true
	default:
		e.Type = ErrorTypeValidation
		e.Recoverable = true
	}
	return e
}

// newNetworkError wraps a transport-level failure (DNS, refused connection,
// timeout) that never produced an HTTP status.
func newNetworkError(err error) *APIError {
	return &APIError{
		Message:     err.Error(),
		Type:        ErrorTypeNetwork,
		Recoverable: true,
		Cause:       err,
	}
}
