// Package errors provides error code definitions shared across the sync core.
package errors

import (
	stderrors "errors"
	"fmt"
)

// ErrorCode identifies a failure class that the host shell can act on.
type ErrorCode string

const (
	// General errors
	ErrInternal ErrorCode = "INTERNAL_ERROR"
	ErrInvalid  ErrorCode = "INVALID_INPUT"
	ErrNotFound ErrorCode = "NOT_FOUND"

	// Local persistence errors
	ErrStorage       ErrorCode = "STORAGE_ERROR"
	ErrSerialization ErrorCode = "SERIALIZATION_ERROR"

	// Sync errors
	ErrSyncOffline ErrorCode = "SYNC_OFFLINE"
	ErrSyncFailed  ErrorCode = "SYNC_FAILED"
	ErrSyncPartial ErrorCode = "SYNC_PARTIAL_FAILURE"

	// Upload errors
	ErrUploadFailed ErrorCode = "UPLOAD_FAILED"
	ErrCompression  ErrorCode = "COMPRESSION_FAILED"
	ErrPathConflict ErrorCode = "PATH_CONFLICT"

	// Configuration errors
	ErrConfig ErrorCode = "CONFIG_INVALID"
)

// AppError represents an application error with code and message.
type AppError struct {
	Code    ErrorCode
	Message string
	Err     error
}

// Error implements the error interface.
func (e *AppError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// Unwrap returns the underlying error.
func (e *AppError) Unwrap() error {
	return e.Err
}

// New creates a new AppError.
func New(code ErrorCode, message string) *AppError {
	return &AppError{
		Code:    code,
		Message: message,
	}
}

// Wrap wraps an existing error with an error code.
func Wrap(code ErrorCode, message string, err error) *AppError {
	return &AppError{
		Code:    code,
		Message: message,
		Err:     err,
	}
}

// CodeOf extracts the error code from an error chain, or ErrInternal if
// no AppError is present.
func CodeOf(err error) ErrorCode {
	var appErr *AppError
	if stderrors.As(err, &appErr) {
		return appErr.Code
	}
	return ErrInternal
}

// HasCode reports whether any error in the chain carries the given code.
func HasCode(err error, code ErrorCode) bool {
	var appErr *AppError
	if stderrors.As(err, &appErr) {
		return appErr.Code == code
	}
	return false
}
