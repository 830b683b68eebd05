// Package errors defines the application error taxonomy shared by the
// storage, ledger and metrics layers.
package errors

import (
	"errors"
	"fmt"
)

// ErrorType classifies an application error.
type ErrorType string

const (
	// ErrorTypeValidation indicates malformed input rejected before any store call.
	ErrorTypeValidation ErrorType = "VALIDATION"

	// ErrorTypeNotFound indicates a read returned zero rows where one was expected.
	ErrorTypeNotFound ErrorType = "NOT_FOUND"

	// ErrorTypeConditionFailed indicates a guarded write whose precondition did
	// not hold (stale previous value, or a duplicate create).
	ErrorTypeConditionFailed ErrorType = "CONDITION_FAILED"

	// ErrorTypeVersionConflict indicates the account version counter exhausted
	// its bounded retries. Retryable by the caller.
	ErrorTypeVersionConflict ErrorType = "VERSION_CONFLICT"

	// ErrorTypeInternal indicates an unexpected infrastructure failure.
	ErrorTypeInternal ErrorType = "INTERNAL"
)

// AppError is an application-specific error carrying a type tag and an
// optional cause.
type AppError struct {
	Type    ErrorType
	Message string
	Cause   error
}

func (e *AppError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Type, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Type, e.Message)
}

// Unwrap returns the underlying cause.
func (e *AppError) Unwrap() error {
	return e.Cause
}

// WithCause wraps an underlying error.
func (e *AppError) WithCause(err error) *AppError {
	e.Cause = err
	return e
}

// NewValidationError creates a validation error.
func NewValidationError(format string, args ...interface{}) *AppError {
	return &AppError{Type: ErrorTypeValidation, Message: fmt.Sprintf(format, args...)}
}

// NewNotFoundError creates a not-found error.
func NewNotFoundError(format string, args ...interface{}) *AppError {
	return &AppError{Type: ErrorTypeNotFound, Message: fmt.Sprintf(format, args...)}
}

// NewConditionFailedError creates a failed-precondition error.
func NewConditionFailedError(message string) *AppError {
	return &AppError{Type: ErrorTypeConditionFailed, Message: message}
}

// NewVersionConflictError creates a version-conflict error.
func NewVersionConflictError(accountID string) *AppError {
	return &AppError{
		Type:    ErrorTypeVersionConflict,
		Message: fmt.Sprintf("could not allocate a new version for account %s", accountID),
	}
}

// NewInternalError creates an internal error wrapping its cause.
func NewInternalError(message string, cause error) *AppError {
	return &AppError{Type: ErrorTypeInternal, Message: message, Cause: cause}
}

// IsType reports whether err is an AppError of the given type anywhere in its
// chain.
func IsType(err error, t ErrorType) bool {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.Type == t
	}
	return false
}

// IsNotFound reports whether err is a not-found error.
func IsNotFound(err error) bool { return IsType(err, ErrorTypeNotFound) }

// IsValidation reports whether err is a validation error.
func IsValidation(err error) bool { return IsType(err, ErrorTypeValidation) }

// IsConditionFailed reports whether err is a failed-precondition error.
func IsConditionFailed(err error) bool { return IsType(err, ErrorTypeConditionFailed) }

// IsVersionConflict reports whether err is a version-conflict error.
func IsVersionConflict(err error) bool { return IsType(err, ErrorTypeVersionConflict) }
