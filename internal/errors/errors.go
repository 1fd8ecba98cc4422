package errors

import (
	"errors"
	"fmt"
)

// ErrorCode represents a category of application error.
type ErrorCode string

const (
	// ErrCodeProviderRejected indicates the identity provider refused to start
	// a sign-in flow (invalid redirect target, rate limit). Recoverable by retry.
	ErrCodeProviderRejected ErrorCode = "provider_rejected"
	// ErrCodeCallbackFailed indicates the resolution of an external provider
	// return could not complete.
	ErrCodeCallbackFailed ErrorCode = "callback_failed"
	// ErrCodeProfileUnavailable indicates both the primary and fallback profile
	// lookups failed. Treated as "no profile", not fatal.
	ErrCodeProfileUnavailable ErrorCode = "profile_unavailable"
	// ErrCodeStoreWriteFailed indicates a persistent token-store write failed;
	// the session stays usable from the in-process cache for this run.
	ErrCodeStoreWriteFailed ErrorCode = "store_write_failed"
	// ErrCodeNotFound indicates a resource was not found.
	ErrCodeNotFound ErrorCode = "not_found"
	// ErrCodeValidation indicates invalid input data.
	ErrCodeValidation ErrorCode = "validation"
	// ErrCodeInternal indicates an internal error.
	ErrCodeInternal ErrorCode = "internal"
	// ErrCodeTimeout indicates a timeout occurred.
	ErrCodeTimeout ErrorCode = "timeout"
	// ErrCodeCanceled indicates the operation was canceled.
	ErrCodeCanceled ErrorCode = "canceled"
)

// AppError represents a structured application error with a code, message, and
// optional cause. It supports error wrapping and unwrapping for use with
// errors.Is and errors.As.
type AppError struct {
	// Code categorizes the error type
	Code ErrorCode
	// Message is a human-readable error message
	Message string
	// Cause is the underlying error that caused this error (optional)
	Cause error
	// Field is the specific field that caused the error (optional, for validation errors)
	Field string
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

// ProviderRejected creates a new ProviderRejected error.
func ProviderRejected(message string) *AppError {
	return &AppError{
		Code:    ErrCodeProviderRejected,
		Message: message,
	}
}

// CallbackFailed creates a new CallbackFailed error.
func CallbackFailed(message string) *AppError {
	return &AppError{
		Code:    ErrCodeCallbackFailed,
		Message: message,
	}
}

// ProfileUnavailable creates a new ProfileUnavailable error.
func ProfileUnavailable(message string) *AppError {
	return &AppError{
		Code:    ErrCodeProfileUnavailable,
		Message: message,
	}
}

// StoreWriteFailed creates a new StoreWriteFailed error.
func StoreWriteFailed(message string) *AppError {
	return &AppError{
		Code:    ErrCodeStoreWriteFailed,
		Message: message,
	}
}

// NotFound creates a new NotFound error.
func NotFound(message string) *AppError {
	return &AppError{
		Code:    ErrCodeNotFound,
		Message: message,
	}
}

// NotFoundf creates a new NotFound error with formatted message.
func NotFoundf(format string, args ...any) *AppError {
	return &AppError{
		Code:    ErrCodeNotFound,
		Message: fmt.Sprintf(format, args...),
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

// Internal creates a new Internal error.
func Internal(message string) *AppError {
	return &AppError{
		Code:    ErrCodeInternal,
		Message: message,
	}
}

// Internalf creates a new Internal error with formatted message.
func Internalf(format string, args ...any) *AppError {
	return &AppError{
		Code:    ErrCodeInternal,
		Message: fmt.Sprintf(format, args...),
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

// Wrapf wraps an existing error with an AppError and formatted message.
func Wrapf(err error, code ErrorCode, format string, args ...any) *AppError {
	if err == nil {
		return nil
	}
	return &AppError{
		Code:    code,
		Message: fmt.Sprintf(format, args...),
		Cause:   err,
	}
}

// isCode checks if an error has a specific error code.
func isCode(err error, code ErrorCode) bool {
	var appErr *AppError
	return errors.As(err, &appErr) && appErr.Code == code
}

// IsProviderRejected checks if an error is a ProviderRejected error.
func IsProviderRejected(err error) bool {
	return isCode(err, ErrCodeProviderRejected)
}

// IsCallbackFailed checks if an error is a CallbackFailed error.
func IsCallbackFailed(err error) bool {
	return isCode(err, ErrCodeCallbackFailed)
}

// IsProfileUnavailable checks if an error is a ProfileUnavailable error.
func IsProfileUnavailable(err error) bool {
	return isCode(err, ErrCodeProfileUnavailable)
}

// IsStoreWriteFailed checks if an error is a StoreWriteFailed error.
func IsStoreWriteFailed(err error) bool {
	return isCode(err, ErrCodeStoreWriteFailed)
}

// IsNotFound checks if an error is a NotFound error.
func IsNotFound(err error) bool {
	return isCode(err, ErrCodeNotFound)
}

// IsValidation checks if an error is a Validation error.
func IsValidation(err error) bool {
	return isCode(err, ErrCodeValidation)
}

// IsInternal checks if an error is an Internal error.
func IsInternal(err error) bool {
	return isCode(err, ErrCodeInternal)
}

// IsTimeout checks if an error is a Timeout error.
func IsTimeout(err error) bool {
	return isCode(err, ErrCodeTimeout)
}

// IsCanceled checks if an error is a Canceled error.
func IsCanceled(err error) bool {
	return isCode(err, ErrCodeCanceled)
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
