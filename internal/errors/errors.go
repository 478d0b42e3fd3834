package errors

import (
	"errors"
	"fmt"
)

// ErrorCode represents a category of application error.
type ErrorCode string

const (
	// ErrCodeInvalidCredentials indicates the backend rejected an email/password pair.
	ErrCodeInvalidCredentials ErrorCode = "invalid_credentials"
	// ErrCodeValidation indicates invalid input data (locally or as judged by the backend).
	ErrCodeValidation ErrorCode = "validation"
	// ErrCodeNetwork indicates a backend round trip could not complete.
	ErrCodeNetwork ErrorCode = "network"
	// ErrCodeUnauthorized indicates the backend answered 401 to an authenticated call.
	ErrCodeUnauthorized ErrorCode = "unauthorized"
	// ErrCodeMalformedState indicates persisted session data could not be decoded.
	// It never leaves the session package; callers observe an absent session instead.
	ErrCodeMalformedState ErrorCode = "malformed_state"
	// ErrCodeSuperseded indicates a newer auth operation started before this one finished.
	ErrCodeSuperseded ErrorCode = "superseded"
	// ErrCodeInternal indicates an internal error.
	ErrCodeInternal ErrorCode = "internal"
)

// AppError represents a structured application error with a code, message, and optional cause.
// It supports error wrapping and unwrapping for use with errors.Is and errors.As.
type AppError struct {
	// Code categorizes the error type
	Code ErrorCode
	// Message is a human-readable error message
	Message string
	// Cause is the underlying error that caused this error (optional)
	Cause error
	// Field is the specific field that caused the error (optional, for validation errors)
	Field string
	// Status is the HTTP status reported by the backend, when there was one.
	Status int
}

// Error implements the error interface.
func (e *AppError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Cause)
	}
	return e.Message
}

// Unwrap returns the underlying cause, enabling errors.Is and errors.As.
func (e *AppError) Unwrap() error {
	return e.Cause
}

// InvalidCredentials creates a new InvalidCredentials error.
func InvalidCredentials(message string) *AppError {
	return &AppError{
		Code:    ErrCodeInvalidCredentials,
		Message: message,
	}
}

// Validation creates a new Validation error.
func Validation(message string) *AppError {
	return &AppError{
		Code:    ErrCodeValidation,
		Message: message,
	}
}

// ValidationField creates a new Validation error for a specific field.
func ValidationField(field, message string) *AppError {
	return &AppError{
		Code:    ErrCodeValidation,
		Message: message,
		Field:   field,
	}
}

// Network wraps a transport failure.
func Network(err error, message string) *AppError {
	return &AppError{
		Code:    ErrCodeNetwork,
		Message: message,
		Cause:   err,
	}
}

// Unauthorized creates a new Unauthorized error.
func Unauthorized(message string) *AppError {
	return &AppError{
		Code:    ErrCodeUnauthorized,
		Message: message,
		Status:  401,
	}
}

// MalformedState wraps a decode failure of persisted state.
func MalformedState(err error, message string) *AppError {
	return &AppError{
		Code:    ErrCodeMalformedState,
		Message: message,
		Cause:   err,
	}
}

// Superseded creates a new Superseded error.
func Superseded(message string) *AppError {
	return &AppError{
		Code:    ErrCodeSuperseded,
		Message: message,
	}
}

// Wrap wraps an existing error with an AppError, preserving the cause.
func Wrap(err error, code ErrorCode, message string) *AppError {
	if err == nil {
		return nil
	}
	return &AppError{
		Code:    code,
		Message: message,
		Cause:   err,
	}
}

// isCode checks if an error has a specific error code.
func isCode(err error, code ErrorCode) bool {
	var appErr *AppError
	return errors.As(err, &appErr) && appErr.Code == code
}

// IsInvalidCredentials checks if an error is an InvalidCredentials error.
func IsInvalidCredentials(err error) bool {
	return isCode(err, ErrCodeInvalidCredentials)
}

// IsValidation checks if an error is a Validation error.
func IsValidation(err error) bool {
	return isCode(err, ErrCodeValidation)
}

// IsNetwork checks if an error is a Network error.
func IsNetwork(err error) bool {
	return isCode(err, ErrCodeNetwork)
}

// IsUnauthorized checks if an error is an Unauthorized error.
func IsUnauthorized(err error) bool {
	return isCode(err, ErrCodeUnauthorized)
}

// IsMalformedState checks if an error is a MalformedState error.
func IsMalformedState(err error) bool {
	return isCode(err, ErrCodeMalformedState)
}

// IsSuperseded checks if an error is a Superseded error.
func IsSuperseded(err error) bool {
	return isCode(err, ErrCodeSuperseded)
}

// IsInternal checks if an error is an Internal error.
func IsInternal(err error) bool {
	return isCode(err, ErrCodeInternal)
}

// GetCode returns the ErrorCode from an error, or empty string if not an AppError.
func GetCode(err error) ErrorCode {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.Code
	}
	return ""
}

// GetField returns the Field from an error, or empty string if not an AppError or no field set.
func GetField(err error) string {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.Field
	}
	return ""
}

// GetStatus returns the backend HTTP status carried by an AppError, or 0.
func GetStatus(err error) int {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.Status
	}
	return 0
}
