package errors

import (
	"fmt"
)

// ErrorType represents the category of error
type ErrorType string

const (
	// ErrTypeInvalidEntry represents malformed source entry data
	ErrTypeInvalidEntry ErrorType = "invalid_entry"
	// ErrTypeTimeout represents an operation that exceeded its deadline
	ErrTypeTimeout ErrorType = "timeout"
	// ErrTypeNotFound represents a video that is removed, private or otherwise gone
	ErrTypeNotFound ErrorType = "not_found"
	// ErrTypeToolFailure represents a nonzero exit from the external downloader
	ErrTypeToolFailure ErrorType = "tool_failure"
	// ErrTypeFilesystem represents file move/write failures
	ErrTypeFilesystem ErrorType = "filesystem"
	// ErrTypeAlreadyRunning represents a rejected start while a run is active
	ErrTypeAlreadyRunning ErrorType = "already_running"
	// ErrTypeValidation represents configuration validation errors
	ErrTypeValidation ErrorType = "validation"
	// ErrTypeDatabase represents run-history store errors
	ErrTypeDatabase ErrorType = "database"
	// ErrTypeUnknown represents unknown errors
	ErrTypeUnknown ErrorType = "unknown"
)

// AppError represents an application error with context
type AppError struct {
	Type      ErrorType
	Message   string
	Retryable bool
	Cause     error
}

// Error implements the error interface
func (e *AppError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s (caused by: %v)", e.Type, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Type, e.Message)
}

// Unwrap returns the underlying cause
func (e *AppError) Unwrap() error {
	return e.Cause
}

// NewInvalidEntryError creates an error for a malformed source entry
func NewInvalidEntryError(message string) *AppError {
	return &AppError{
		Type:      ErrTypeInvalidEntry,
		Message:   message,
		Retryable: false,
		Cause:     nil,
	}
}

// NewTimeoutError creates an error for an operation that hit its deadline
func NewTimeoutError(message string, cause error) *AppError {
	return &AppError{
		Type:      ErrTypeTimeout,
		Message:   message,
		Retryable: true,
		Cause:     cause,
	}
}

// NewNotFoundError creates an error for a permanently unavailable video.
// Never retried: the video will not come back within a run.
func NewNotFoundError(message string) *AppError {
	return &AppError{
		Type:      ErrTypeNotFound,
		Message:   message,
		Retryable: false,
		Cause:     nil,
	}
}

// NewToolFailureError creates an error for a failed downloader invocation
func NewToolFailureError(message string, cause error) *AppError {
	return &AppError{
		Type:      ErrTypeToolFailure,
		Message:   message,
		Retryable: true,
		Cause:     cause,
	}
}

// NewFilesystemError creates an error for a failed move or write.
// Retryable once at the call site; escalates to pass-fatal when the
// library root itself is unwritable.
func NewFilesystemError(message string, cause error) *AppError {
	return &AppError{
		Type:      ErrTypeFilesystem,
		Message:   message,
		Retryable: true,
		Cause:     cause,
	}
}

// NewAlreadyRunningError creates the rejection error for a start request
// that arrives while a run is active
func NewAlreadyRunningError() *AppError {
	return &AppError{
		Type:      ErrTypeAlreadyRunning,
		Message:   "a run is already in progress",
		Retryable: false,
		Cause:     nil,
	}
}

// NewValidationError creates a configuration validation error
func NewValidationError(message string) *AppError {
	return &AppError{
		Type:      ErrTypeValidation,
		Message:   message,
		Retryable: false,
		Cause:     nil,
	}
}

// NewDatabaseError creates a run-history store error
func NewDatabaseError(message string, cause error) *AppError {
	return &AppError{
		Type:      ErrTypeDatabase,
		Message:   message,
		Retryable: false,
		Cause:     cause,
	}
}

// IsRetryable checks if an error is retryable
func IsRetryable(err error) bool {
	if appErr, ok := err.(*AppError); ok {
		return appErr.Retryable
	}
	return false
}

// GetErrorType returns the error type from an error
func GetErrorType(err error) ErrorType {
	if appErr, ok := err.(*AppError); ok {
		return appErr.Type
	}
	return ErrTypeUnknown
}

// IsNotFound checks if an error marks a permanently unavailable video
func IsNotFound(err error) bool {
	return GetErrorType(err) == ErrTypeNotFound
}

// IsTimeout checks if an error is a deadline error
func IsTimeout(err error) bool {
	return GetErrorType(err) == ErrTypeTimeout
}

// IsFilesystem checks if an error is a filesystem error
func IsFilesystem(err error) bool {
	return GetErrorType(err) == ErrTypeFilesystem
}

// IsAlreadyRunning checks if an error is a rejected concurrent start
func IsAlreadyRunning(err error) bool {
	return GetErrorType(err) == ErrTypeAlreadyRunning
}
