// Package errors provides standardized domain errors with codes for the Leafmark sync engine.
//
// Usage:
//
//	// In the envelope - return typed errors
//	if !tagValid {
//	    return errors.WrongPasscode("could not open snapshot")
//	}
//
//	// At the pairing boundary - check with errors.Is
//	if errors.Is(err, errors.ErrWrongPasscode) {
//	    session.Fail(err) // recoverable, let the user retry the PIN
//	}
package errors

import (
	"errors"
	"fmt"
	"net/http"
)

// Re-export standard library functions for convenience.
var (
	Is     = errors.Is
	As     = errors.As
	Unwrap = errors.Unwrap
	Join   = errors.Join
)

// Code represents a machine-readable error code.
type Code string

// Error codes used throughout the application.
const (
	// CodeMalformedSnapshot means a snapshot payload failed structural
	// validation. Fatal for the merge: nothing gets applied.
	CodeMalformedSnapshot Code = "MALFORMED_SNAPSHOT"

	// CodeWrongPasscode covers every envelope open failure, whether the PIN
	// was wrong or the blob was corrupted. The two cases are deliberately
	// indistinguishable so a party probing the relay learns nothing.
	CodeWrongPasscode Code = "WRONG_PASSCODE"

	// CodeRelayBusy is a transient blob-upload failure (retry with backoff).
	CodeRelayBusy Code = "RELAY_BUSY"

	// CodeDownloadError is a transient blob-download failure (retry with backoff).
	CodeDownloadError Code = "DOWNLOAD_ERROR"

	// CodeNotFound means an opaque handle expired or never existed.
	// Fatal for the attempt; the devices must re-pair.
	CodeNotFound Code = "NOT_FOUND"

	// CodeScannerUnavailable means the optical scanner is denied or missing.
	// Non-fatal: fall back to manual code entry.
	CodeScannerUnavailable Code = "SCANNER_UNAVAILABLE"

	CodeValidation Code = "VALIDATION"
	CodeConflict   Code = "CONFLICT"
	CodeInternal   Code = "INTERNAL"
)

// HTTPStatus returns the appropriate HTTP status code for an error code.
// Only the relay daemon speaks HTTP; device-side code ignores this.
func (c Code) HTTPStatus() int {
	switch c {
	case CodeNotFound:
		return http.StatusNotFound
	case CodeRelayBusy:
		return http.StatusServiceUnavailable
	case CodeConflict:
		return http.StatusConflict
	case CodeValidation, CodeMalformedSnapshot:
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}

// Error is a domain error with a code, message, and optional cause.
type Error struct {
	Code    Code   `json:"code"`
	Message string `json:"message"`
	cause   error  // unexported, for wrapping
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e.cause != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.cause)
	}
	return e.Message
}

// Unwrap returns the underlying error.
func (e *Error) Unwrap() error {
	return e.cause
}

// Is reports whether target matches this error.
// Matches if target is an *Error with the same Code.
func (e *Error) Is(target error) bool {
	var t *Error
	if errors.As(target, &t) {
		return e.Code == t.Code
	}
	return false
}

// HTTPStatus returns the HTTP status code for this error.
func (e *Error) HTTPStatus() int {
	return e.Code.HTTPStatus()
}

// WithCause wraps an underlying error.
func (e *Error) WithCause(err error) *Error {
	return &Error{
		Code:    e.Code,
		Message: e.Message,
		cause:   err,
	}
}

// Sentinel errors for use with errors.Is().
var (
	ErrMalformedSnapshot  = &Error{Code: CodeMalformedSnapshot, Message: "malformed snapshot"}
	ErrWrongPasscode      = &Error{Code: CodeWrongPasscode, Message: "wrong passcode"}
	ErrRelayBusy          = &Error{Code: CodeRelayBusy, Message: "relay busy"}
	ErrDownloadError      = &Error{Code: CodeDownloadError, Message: "download failed"}
	ErrNotFound           = &Error{Code: CodeNotFound, Message: "not found"}
	ErrScannerUnavailable = &Error{Code: CodeScannerUnavailable, Message: "scanner unavailable"}
	ErrValidation         = &Error{Code: CodeValidation, Message: "validation error"}
	ErrConflict           = &Error{Code: CodeConflict, Message: "conflict"}
	ErrInternal           = &Error{Code: CodeInternal, Message: "internal error"}
)

// Constructor functions for creating errors with custom messages.

// MalformedSnapshot creates a malformed snapshot error.
func MalformedSnapshot(msg string) *Error {
	return &Error{Code: CodeMalformedSnapshot, Message: msg}
}

// MalformedSnapshotf creates a malformed snapshot error with formatted message.
func MalformedSnapshotf(format string, args ...any) *Error {
	return &Error{Code: CodeMalformedSnapshot, Message: fmt.Sprintf(format, args...)}
}

// WrongPasscode creates a wrong passcode error.
func WrongPasscode(msg string) *Error {
	return &Error{Code: CodeWrongPasscode, Message: msg}
}

// RelayBusy creates a relay busy error.
func RelayBusy(msg string) *Error {
	return &Error{Code: CodeRelayBusy, Message: msg}
}

// DownloadError creates a download error.
func DownloadError(msg string) *Error {
	return &Error{Code: CodeDownloadError, Message: msg}
}

// NotFound creates a not found error.
func NotFound(msg string) *Error {
	return &Error{Code: CodeNotFound, Message: msg}
}

// NotFoundf creates a not found error with formatted message.
func NotFoundf(format string, args ...any) *Error {
	return &Error{Code: CodeNotFound, Message: fmt.Sprintf(format, args...)}
}

// ScannerUnavailable creates a scanner unavailable error.
func ScannerUnavailable(msg string) *Error {
	return &Error{Code: CodeScannerUnavailable, Message: msg}
}

// Validation creates a validation error.
func Validation(msg string) *Error {
	return &Error{Code: CodeValidation, Message: msg}
}

// Validationf creates a validation error with formatted message.
func Validationf(format string, args ...any) *Error {
	return &Error{Code: CodeValidation, Message: fmt.Sprintf(format, args...)}
}

// Conflict creates a conflict error.
func Conflict(msg string) *Error {
	return &Error{Code: CodeConflict, Message: msg}
}

// Internal creates an internal error.
func Internal(msg string) *Error {
	return &Error{Code: CodeInternal, Message: msg}
}

// Internalf creates an internal error with formatted message.
func Internalf(format string, args ...any) *Error {
	return &Error{Code: CodeInternal, Message: fmt.Sprintf(format, args...)}
}

// Wrap wraps an error with a code and message.
func Wrap(err error, code Code, msg string) *Error {
	return &Error{Code: code, Message: msg, cause: err}
}

// Wrapf wraps an error with a code and formatted message.
func Wrapf(err error, code Code, format string, args ...any) *Error {
	return &Error{Code: code, Message: fmt.Sprintf(format, args...), cause: err}
}
