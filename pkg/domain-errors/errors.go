// Package domainerrors provides coded errors for the case workflow.
//
// Services return these so transports can map failures to wire responses
// without string matching. Stores return sentinel errors instead
// (pkg/platform/sentinel); services translate at the boundary.
package domainerrors

import (
	"errors"
	"fmt"
)

// Code identifies a failure class. Every code is recoverable for the
// process; none should terminate the server.
type Code string

const (
	// CodeInvalidTransition rejects an action with no transition-table row
	// for the case's current status. Callers should re-fetch and retry with
	// a valid action.
	CodeInvalidTransition Code = "InvalidTransition"

	// CodeSodViolation rejects a checklist mutation outside the actor's
	// segregation-of-duties class.
	CodeSodViolation Code = "SodViolation"

	// CodeChecklistIncomplete rejects a seal/approve attempt before the
	// case satisfies its readiness predicate.
	CodeChecklistIncomplete Code = "ChecklistIncomplete"

	// CodeStaleCase signals a lost optimistic-concurrency race. Callers
	// reload the case and resubmit.
	CodeStaleCase Code = "StaleCase"

	CodeNotFound     Code = "NotFound"
	CodeForbidden    Code = "Forbidden"
	CodeUnauthorized Code = "Unauthorized"
	CodeBadRequest   Code = "BadRequest"
	CodeConflict     Code = "Conflict"

	// CodeInvariantViolation marks a broken aggregate invariant detected by
	// domain constructors/mutators; services usually remap it to a caller
	// facing code.
	CodeInvariantViolation Code = "InvariantViolation"

	CodeInternal Code = "Internal"
)

// Error carries a code, a human-readable message, and an optional cause.
type Error struct {
	Code    Code
	Message string
	cause   error
}

func (e *Error) Error() string {
	if e.cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.cause)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *Error) Unwrap() error {
	return e.cause
}

// Is matches two coded errors by code and message so errors.Is works with
// freshly constructed targets.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return e.Code == t.Code && e.Message == t.Message
}

// New constructs a coded error without a cause.
func New(code Code, message string) *Error {
	return &Error{Code: code, Message: message}
}

// Newf constructs a coded error with a formatted message.
func Newf(code Code, format string, args ...any) *Error {
	return &Error{Code: code, Message: fmt.Sprintf(format, args...)}
}

// Wrap attaches a code and message to an underlying error.
func Wrap(err error, code Code, message string) *Error {
	return &Error{Code: code, Message: message, cause: err}
}

// HasCode reports whether err (anywhere in its chain) carries the code.
func HasCode(err error, code Code) bool {
	var de *Error
	if errors.As(err, &de) {
		return de.Code == code
	}
	return false
}

// Is is an alias of HasCode kept for call-site readability.
func Is(err error, code Code) bool {
	return HasCode(err, code)
}

// CodeOf extracts the code from err, defaulting to CodeInternal.
func CodeOf(err error) Code {
	var de *Error
	if errors.As(err, &de) {
		return de.Code
	}
	return CodeInternal
}
