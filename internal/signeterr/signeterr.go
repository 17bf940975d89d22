// Package signeterr defines the tagged error codes returned by every public
// Signet operation, in place of ad-hoc wrapped errors.
package signeterr

import (
	"errors"
	"fmt"
)

// Code identifies the kind of failure. Callers should switch on Code rather
// than matching error strings.
type Code string

const (
	// Input errors.
	InvalidDid       Code = "invalid_did"
	BadSignature     Code = "bad_signature"
	ReplayWindow     Code = "replay_window"
	MalformedFrame   Code = "malformed_frame"
	DuplicateContent Code = "duplicate_content"
	UnknownPeer      Code = "unknown_peer"

	// Permission errors.
	NotAuthenticated Code = "not_authenticated"
	NotTrusted       Code = "not_trusted"
	Blocked          Code = "blocked"
	RateLimited      Code = "rate_limited"

	// Resource errors.
	KeyNotFound Code = "key_not_found"
	KeyMismatch Code = "key_mismatch"
	Corrupted   Code = "corrupted"
	DbBusy      Code = "db_busy"
	Unavailable Code = "unavailable"
	NotFound    Code = "not_found"

	// Fatal errors.
	SchemaMigrationFailed Code = "schema_migration_failed"
	WriteLockPoisoned     Code = "write_lock_poisoned"
)

// retryable holds the default retry classification per code; individual
// errors may override it via WithRetryable.
var retryable = map[Code]bool{
	DbBusy:      true,
	Unavailable: true,
	RateLimited: true,
}

// Error is the tagged error type every public Signet operation returns.
// It always carries a stable Code, a human-readable Message, and whether
// the caller should retry the operation.
type Error struct {
	Code      Code
	Message   string
	Retryable bool
	cause     error
}

func (e *Error) Error() string {
	if e.cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.cause)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *Error) Unwrap() error { return e.cause }

// New constructs an Error with the default retryability for its code.
func New(code Code, message string) *Error {
	return &Error{Code: code, Message: message, Retryable: retryable[code]}
}

// Newf constructs an Error with a formatted message.
func Newf(code Code, format string, args ...any) *Error {
	return New(code, fmt.Sprintf(format, args...))
}

// Wrap wraps cause under the given code, preserving it for errors.Unwrap/Is.
func Wrap(code Code, cause error) *Error {
	if cause == nil {
		return nil
	}
	return &Error{Code: code, Message: cause.Error(), Retryable: retryable[code], cause: cause}
}

// WithRetryable overrides the default retry classification.
func (e *Error) WithRetryable(retryable bool) *Error {
	e.Retryable = retryable
	return e
}

// Is reports whether err carries the given code.
func Is(err error, code Code) bool {
	var se *Error
	if errors.As(err, &se) {
		return se.Code == code
	}
	return false
}

// CodeOf extracts the Code from err, or "" if err is not a *Error.
func CodeOf(err error) Code {
	var se *Error
	if errors.As(err, &se) {
		return se.Code
	}
	return ""
}
