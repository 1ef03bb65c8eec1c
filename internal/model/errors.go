package model

import (
	"errors"
	"fmt"
)

// ErrorCode categorizes structural errors that abort a job or command.
type ErrorCode string

const (
	// ErrCodeNoRows indicates a table is missing or has no data rows.
	ErrCodeNoRows ErrorCode = "NO_ROWS"

	// ErrCodeMissingColumns indicates the carrier, code or key column could not be resolved.
	ErrCodeMissingColumns ErrorCode = "MISSING_COLUMNS"

	// ErrCodeLockTimeout indicates the global job lock was not acquired in time.
	ErrCodeLockTimeout ErrorCode = "LOCK_TIMEOUT"

	// ErrCodeEmptyImport indicates an imported matrix had no header.
	ErrCodeEmptyImport ErrorCode = "EMPTY_IMPORT"

	// ErrCodeUnsupportedFile indicates an import file of unknown type.
	ErrCodeUnsupportedFile ErrorCode = "UNSUPPORTED_FILE"

	// ErrCodeConfig indicates invalid process settings.
	ErrCodeConfig ErrorCode = "CONFIG_ERROR"
)

// Error is a structural failure with a machine-readable code.
type Error struct {
	// Code identifies the error category.
	Code ErrorCode

	// Message is a human-readable description.
	Message string

	// Table names the affected table, if any.
	Table string

	// Cause is the underlying error, if any.
	Cause error
}

// Error implements the error interface.
func (e *Error) Error() string {
	msg := fmt.Sprintf("%s: %s", e.Code, e.Message)
	if e.Table != "" {
		msg = fmt.Sprintf("%s (table=%s)", msg, e.Table)
	}
	if e.Cause != nil {
		msg = fmt.Sprintf("%s: %v", msg, e.Cause)
	}
	return msg
}

// Unwrap returns the cause.
func (e *Error) Unwrap() error {
	return e.Cause
}

// NewError creates an Error without a cause.
func NewError(code ErrorCode, table, message string) *Error {
	return &Error{Code: code, Table: table, Message: message}
}

// WrapError creates an Error around cause.
func WrapError(code ErrorCode, message string, cause error) *Error {
	return &Error{Code: code, Message: message, Cause: cause}
}

// IsCode returns true if err is an *Error with the given code.
// Uses errors.As to handle wrapped errors.
func IsCode(err error, code ErrorCode) bool {
	var e *Error
	if errors.As(err, &e) {
		return e.Code == code
	}
	return false
}

// CodeOf returns the code of err, or "" if err is not an *Error.
func CodeOf(err error) ErrorCode {
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return ""
}
