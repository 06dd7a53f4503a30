package redfish

import (
	"errors"
	"fmt"
)

// HTTPError represents an unexpected HTTP status from the BMC
type HTTPError struct {
	StatusCode int
	Status     string
	Operation  string // e.g. "get service root", "create session"
	Body       string
}

func (e *HTTPError) Error() string {
	if e.Body != "" {
		return fmt.Sprintf("%s failed: HTTP %d: %s", e.Operation, e.StatusCode, e.Body)
	}
	return fmt.Sprintf("%s failed: HTTP %s", e.Operation, e.Status)
}

// NewHTTPError creates a new HTTPError
func NewHTTPError(statusCode int, status, operation, body string) *HTTPError {
	return &HTTPError{
		StatusCode: statusCode,
		Status:     status,
		Operation:  operation,
		Body:       body,
	}
}

// StatusCode returns the HTTP status carried by err, or 0 if there is none
func StatusCode(err error) int {
	var e *HTTPError
	if errors.As(err, &e) {
		return e.StatusCode
	}
	return 0
}

// SessionAuthError indicates the BMC rejected the credentials
type SessionAuthError struct {
	Endpoint string
	Err      error
}

func (e *SessionAuthError) Error() string {
	return fmt.Sprintf("session authentication failed for endpoint %s: %v", e.Endpoint, e.Err)
}

func (e *SessionAuthError) Unwrap() error { return e.Err }

// IsSessionAuthError checks if an error is a SessionAuthError
func IsSessionAuthError(err error) bool {
	var e *SessionAuthError
	return errors.As(err, &e)
}

// RetryExhaustedError is returned when every session attempt failed
type RetryExhaustedError struct {
	Endpoint string
	Attempts int
	Err      error
}

func (e *RetryExhaustedError) Error() string {
	return fmt.Sprintf("session creation for %s failed after %d attempts: %v", e.Endpoint, e.Attempts, e.Err)
}

func (e *RetryExhaustedError) Unwrap() error { return e.Err }

// IsRetryExhaustedError checks if an error is a RetryExhaustedError
func IsRetryExhaustedError(err error) bool {
	var e *RetryExhaustedError
	return errors.As(err, &e)
}

// ErrMissingToken means the BMC accepted a login without returning X-Auth-Token
var ErrMissingToken = errors.New("no X-Auth-Token in response")
