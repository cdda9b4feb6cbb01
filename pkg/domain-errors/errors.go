// Package dErrors provides typed domain errors with stable codes.
//
// Services return these instead of raw errors so transport layers can map
// failures to responses without string matching, and so callers can branch
// on HasCode without depending on message text. Infrastructure layers keep
// using pkg/platform/sentinel; services translate sentinels into coded
// errors at the boundary.
package dErrors

import (
	"errors"
	"fmt"
)

// Code classifies a domain error for transport mapping and caller branching.
type Code string

const (
	// CodeValidation marks malformed or out-of-range input.
	CodeValidation Code = "validation"
	// CodeBadRequest marks a structurally unusable request.
	CodeBadRequest Code = "bad_request"
	// CodeNotFound marks a missing entity.
	CodeNotFound Code = "not_found"
	// CodeConflict marks a uniqueness or concurrent-update conflict.
	CodeConflict Code = "conflict"
	// CodeUnauthorized marks a missing or unusable caller identity.
	CodeUnauthorized Code = "unauthorized"
	// CodeForbidden marks an authenticated caller acting outside its rights.
	CodeForbidden Code = "forbidden"
	// CodeNotSubscription marks an order that is not classified as a
	// subscription when the operation requires one.
	CodeNotSubscription Code = "not_subscription"
	// CodeInvalidState marks an order whose commercial state or
	// subscription status blocks the requested operation.
	CodeInvalidState Code = "invalid_state"
	// CodeUnsupported marks an operation the underlying subscription engine
	// has no field or capability for.
	CodeUnsupported Code = "unsupported"
	// CodeBusinessRule marks a business-rule rejection (e.g. removing a
	// delivered or mandatory line).
	CodeBusinessRule Code = "business_rule"
	// CodeInvariantViolation marks a broken aggregate invariant; model
	// constructors and transition guards return it.
	CodeInvariantViolation Code = "invariant_violation"
	// CodeInternal marks unexpected infrastructure failures.
	CodeInternal Code = "internal"
)

// Error is a coded domain error. Message is safe to show to callers except
// for CodeInternal, which transport layers must redact.
type Error struct {
	code    Code
	message string
	cause   error
}

func (e *Error) Error() string {
	if e.cause != nil {
		return fmt.Sprintf("%s: %v", e.message, e.cause)
	}
	return e.message
}

func (e *Error) Unwrap() error { return e.cause }

// Message returns the caller-safe message without the wrapped cause.
func (e *Error) Message() string { return e.message }

// Is matches another domain error by code and message, so errors.Is works
// against freshly constructed comparison targets in tests.
func (e *Error) Is(target error) bool {
	other, ok := target.(*Error)
	if !ok {
		return false
	}
	return e.code == other.code && e.message == other.message
}

// New builds a domain error with the given code and caller-safe message.
func New(code Code, message string) error {
	return &Error{code: code, message: message}
}

// Newf builds a domain error with a formatted message.
func Newf(code Code, format string, args ...any) error {
	return &Error{code: code, message: fmt.Sprintf(format, args...)}
}

// Wrap attaches a code and message to an underlying error, preserving the
// cause for errors.Is/As chains. Wrapping nil returns nil.
func Wrap(err error, code Code, message string) error {
	if err == nil {
		return nil
	}
	return &Error{code: code, message: message, cause: err}
}

// GetCode returns the code of err, or CodeInternal when err carries none.
func GetCode(err error) Code {
	var dErr *Error
	if errors.As(err, &dErr) {
		return dErr.code
	}
	return CodeInternal
}

// HasCode reports whether err (or any error in its chain) carries code.
func HasCode(err error, code Code) bool {
	var dErr *Error
	if errors.As(err, &dErr) {
		return dErr.code == code
	}
	return false
}
