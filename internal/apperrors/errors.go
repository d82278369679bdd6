// Package apperrors defines the typed error taxonomy shared by the story
// engine. Repository and pipeline failures are always one of these codes;
// nothing crosses the handler boundary as an opaque error.
package apperrors

import (
	"errors"
	"fmt"
	"net/http"
)

// Code classifies a failure for callers. network is retryable without side
// effects; not_found and expired are terminal for a playback session.
type Code string

const (
	CodeUploadFailed     Code = "upload_failed"
	CodePermissionDenied Code = "permission_denied"
	CodeNetwork          Code = "network_error"
	CodeStorage          Code = "storage_error"
	CodeProcessingFailed Code = "processing_failed"
	CodeNotFound         Code = "not_found"
	CodeExpired          Code = "expired"
	CodeUnknown          Code = "unknown"
)

// Error carries a code, a human message and an optional wrapped cause.
type Error struct {
	Code    Code
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Unwrap returns the wrapped cause.
func (e *Error) Unwrap() error {
	return e.Err
}

// Is matches two coded errors by code, so errors.Is works against sentinels
// built with New.
func (e *Error) Is(target error) bool {
	var t *Error
	if !errors.As(target, &t) {
		return false
	}
	return e.Code == t.Code
}

// New creates a coded error.
func New(code Code, message string) error {
	return &Error{Code: code, Message: message}
}

// Wrap attaches a code and message to an underlying error. Returns nil for a
// nil cause.
func Wrap(err error, code Code, message string) error {
	if err == nil {
		return nil
	}
	return &Error{Code: code, Message: message, Err: err}
}

// CodeOf extracts the code from any error in the chain, CodeUnknown otherwise.
func CodeOf(err error) Code {
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return CodeUnknown
}

// IsCode reports whether err carries the given code.
func IsCode(err error, code Code) bool {
	return CodeOf(err) == code
}

// IsRetryable reports whether the caller may retry without side effects.
func IsRetryable(err error) bool {
	return IsCode(err, CodeNetwork)
}

// HTTPStatus maps a code onto the status handlers should respond with.
func HTTPStatus(err error) int {
	switch CodeOf(err) {
	case CodeNotFound:
		return http.StatusNotFound
	case CodePermissionDenied:
		return http.StatusForbidden
	case CodeExpired:
		return http.StatusGone
	case CodeNetwork:
		return http.StatusBadGateway
	case CodeStorage, CodeUploadFailed, CodeProcessingFailed:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

// Sentinels for the common terminal cases. Compare with errors.Is.
var (
	ErrNotFound         = New(CodeNotFound, "not found")
	ErrPermissionDenied = New(CodePermissionDenied, "permission denied")
	ErrExpired          = New(CodeExpired, "content expired")
)
