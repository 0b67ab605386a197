package types

import (
	"fmt"
	"time"
)

// ErrorCode represents a unified error code across the orchestration core.
type ErrorCode string

const (
	// ErrValidation marks state that fails schema or consistency checks.
	ErrValidation ErrorCode = "VALIDATION"
	// ErrTransition marks an illegal phase edge taken without force.
	ErrTransition ErrorCode = "TRANSITION"
	// ErrCapability marks an agent capability that raised or timed out.
	ErrCapability ErrorCode = "CAPABILITY"
	// ErrStorage marks a checkpoint save/load failure.
	ErrStorage ErrorCode = "STORAGE"
	// ErrRouting marks a failed engine-global routing condition.
	ErrRouting ErrorCode = "ROUTING"

	ErrTimeout       ErrorCode = "TIMEOUT"
	ErrNotFound      ErrorCode = "NOT_FOUND"
	ErrInternalError ErrorCode = "INTERNAL_ERROR"
)

// Error represents a structured error with code, message, and cause.
type Error struct {
	Code      ErrorCode `json:"code"`
	Message   string    `json:"message"`
	Retryable bool      `json:"retryable"`
	Cause     error     `json:"-"`
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// Unwrap returns the underlying cause.
func (e *Error) Unwrap() error {
	return e.Cause
}

// NewError creates a new Error with the given code and message.
func NewError(code ErrorCode, message string) *Error {
	return &Error{Code: code, Message: message}
}

// WithCause adds a cause to the error.
func (e *Error) WithCause(cause error) *Error {
	e.Cause = cause
	return e
}

// WithRetryable marks the error as retryable.
func (e *Error) WithRetryable(retryable bool) *Error {
	e.Retryable = retryable
	return e
}

// IsRetryable checks if an error is retryable.
func IsRetryable(err error) bool {
	if e, ok := err.(*Error); ok {
		return e.Retryable
	}
	return false
}

// GetErrorCode extracts the error code from an error.
func GetErrorCode(err error) ErrorCode {
	if e, ok := err.(*Error); ok {
		return e.Code
	}
	return ""
}

// ErrorRecord is the error attached to workflow state when an agent or
// component fails. It is cleared on recovery.
type ErrorRecord struct {
	Type       ErrorCode `json:"type"`
	Message    string    `json:"message"`
	Node       string    `json:"node,omitempty"`
	Agent      string    `json:"agent,omitempty"`
	RetryCount int       `json:"retry_count"`
	OccurredAt time.Time `json:"occurred_at"`
}
