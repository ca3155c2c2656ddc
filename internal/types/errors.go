package types

import (
	"errors"
	"fmt"
)

// ErrorCode represents a namespaced error code for Steward errors.
type ErrorCode string

// Configuration error codes
const (
	CONFIG_LOAD_FAILED       ErrorCode = "CONFIG_LOAD_FAILED"
	CONFIG_PARSE_FAILED      ErrorCode = "CONFIG_PARSE_FAILED"
	CONFIG_VALIDATION_FAILED ErrorCode = "CONFIG_VALIDATION_FAILED"
)

// Registry error codes
const (
	COMPONENT_NOT_FOUND       ErrorCode = "COMPONENT_NOT_FOUND"
	COMPONENT_NOT_EXECUTABLE  ErrorCode = "COMPONENT_NOT_EXECUTABLE"
	COMPONENT_INVALID_STATUS  ErrorCode = "COMPONENT_INVALID_STATUS"
	COMPONENT_RESTORE_FAILED  ErrorCode = "COMPONENT_RESTORE_FAILED"
	COMPONENT_EXECUTION_ERROR ErrorCode = "COMPONENT_EXECUTION_ERROR"
)

// Scheduler error codes
const (
	PIPELINE_NOT_FOUND    ErrorCode = "PIPELINE_NOT_FOUND"
	PIPELINE_INVALID      ErrorCode = "PIPELINE_INVALID"
	SCHEDULER_NOT_RUNNING ErrorCode = "SCHEDULER_NOT_RUNNING"
)

// Problem broker error codes
const (
	TICKET_NOT_FOUND  ErrorCode = "TICKET_NOT_FOUND"
	DIAGNOSTIC_FAILED ErrorCode = "DIAGNOSTIC_FAILED"
)

// Event bus error codes
const (
	EVENT_BUS_CLOSED ErrorCode = "EVENT_BUS_CLOSED"
)

// StewardError represents a structured error with error code, message, and
// optional cause. It supports error wrapping and retryability hints for
// error handling logic.
type StewardError struct {
	Code      ErrorCode
	Message   string
	Retryable bool
	Cause     error
}

// Error implements the error interface, returning a formatted error message.
// Format: "[CODE] message" or "[CODE] message: cause" if cause exists.
func (e *StewardError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// Unwrap returns the underlying cause error for error unwrapping chains.
// This enables using errors.Is() and errors.As() with wrapped errors.
func (e *StewardError) Unwrap() error {
	return e.Cause
}

// NewError creates a new StewardError with the given code and message.
func NewError(code ErrorCode, message string) *StewardError {
	return &StewardError{
		Code:    code,
		Message: message,
	}
}

// WrapError creates a new StewardError wrapping an underlying cause.
func WrapError(code ErrorCode, message string, cause error) *StewardError {
	return &StewardError{
		Code:    code,
		Message: message,
		Cause:   cause,
	}
}

// IsRetryable reports whether err (or any error in its chain) is a
// StewardError marked retryable.
func IsRetryable(err error) bool {
	var se *StewardError
	if errors.As(err, &se) {
		return se.Retryable
	}
	return false
}

// GetErrorCode extracts the ErrorCode from err if it is (or wraps) a
// StewardError. Returns an empty code otherwise.
func GetErrorCode(err error) ErrorCode {
	var se *StewardError
	if errors.As(err, &se) {
		return se.Code
	}
	return ""
}
