// Package apperrors defines the error taxonomy shared by the service and API
// layers. Services return these typed errors; only the API layer converts them
// to HTTP status codes and response bodies.
package apperrors

import (
	"errors"
	"fmt"
)

// Code is a machine-readable error code carried in error response bodies.
type Code int

const (
	CodeInternalFailure      Code = 1000
	CodeValidationFailed     Code = 1001
	CodeDuplicateUser        Code = 1002
	CodeUserNotFound         Code = 1003
	CodeAuthenticationFailed Code = 1004
)

// Name returns the stable identifier used in the "error_name" response field.
func (c Code) Name() string {
	switch c {
	case CodeValidationFailed:
		return "ValidationFailed"
	case CodeDuplicateUser:
		return "DuplicateUser"
	case CodeUserNotFound:
		return "UserNotFound"
	case CodeAuthenticationFailed:
		return "AuthenticationFailed"
	default:
		return "InternalFailure"
	}
}

var (
	ErrValidationFailed = &Error{Code: CodeValidationFailed, Message: "malformed or missing input"}
	ErrDuplicateUser    = &Error{Code: CodeDuplicateUser, Message: "username or email already in use"}
	ErrUserNotFound     = &Error{Code: CodeUserNotFound, Message: "no matching account"}
)

// Error is the typed error services return. Two Errors match under errors.Is
// when their codes are equal, so sentinels above work as comparison targets.
type Error struct {
	Code    Code
	Message string
	// ProviderStatus is the upstream HTTP status for AuthenticationFailed
	// errors, zero otherwise.
	ProviderStatus int
	Err            error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code.Name(), e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Code.Name(), e.Message)
}

func (e *Error) Unwrap() error { return e.Err }

func (e *Error) Is(target error) bool {
	var t *Error
	if !errors.As(target, &t) {
		return false
	}
	return e.Code == t.Code
}

// Validation builds a ValidationFailed error with a reason visible to clients.
func Validation(format string, args ...interface{}) *Error {
	return &Error{Code: CodeValidationFailed, Message: fmt.Sprintf(format, args...)}
}

// AuthenticationFailed wraps a provider rejection. The provider's status code
// is preserved for the API layer; the provider's internal payload is not.
func AuthenticationFailed(status int, message string, err error) *Error {
	return &Error{
		Code:           CodeAuthenticationFailed,
		Message:        message,
		ProviderStatus: status,
		Err:            err,
	}
}

// Internal wraps an unexpected store or network fault.
func Internal(err error) *Error {
	return &Error{Code: CodeInternalFailure, Message: "internal failure", Err: err}
}

// CodeOf extracts the taxonomy code from err, defaulting to InternalFailure.
func CodeOf(err error) Code {
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return CodeInternalFailure
}
