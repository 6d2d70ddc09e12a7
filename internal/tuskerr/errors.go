// Package tuskerr defines the structured error taxonomy shared by every
// Tusk handler, and the mapping from error category to CLI exit code.
package tuskerr

import (
	"errors"
	"fmt"
)

// Category classifies an error for handling and exit-code decisions.
type Category string

const (
	// CategoryValidation covers unknown enums, missing flags, malformed ids.
	CategoryValidation Category = "validation"
	// CategoryNotFound covers references to missing tasks, criteria, sessions, etc.
	CategoryNotFound Category = "not_found"
	// CategoryPolicyGated covers refusals that would violate an invariant
	// (close with open criteria, reopen when already initial, duplicate
	// summary, dependency cycle, open blockers).
	CategoryPolicyGated Category = "policy_gated"
	// CategoryConcurrency covers unique-constraint races on the
	// one-open-session-per-task index. Handlers catch these themselves;
	// they should never reach the CLI boundary.
	CategoryConcurrency Category = "concurrency"
	// CategoryExternal covers VCS, agent-process, or pricing-fetch failures.
	CategoryExternal Category = "external"
	// CategoryIntegrity covers foreign-key/trigger violations during writeback.
	CategoryIntegrity Category = "integrity"
)

// Error is a structured, chainable error carrying enough context for the
// CLI dispatcher to pick an exit code and print an actionable message.
type Error struct {
	Category Category
	Code     string
	Message  string
	// Force indicates a PolicyGated refusal is overridable with --force.
	Force bool
	// Outcome carries a structured negative-but-successful result (e.g. a
	// duplicate match) that should still be printed as JSON on stdout.
	Outcome  map[string]any
	Cause    error
	Recovery string // actionable recovery text, shown for External errors
}

func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("[%s] %s: %s (%v)", e.Category, e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("[%s] %s: %s", e.Category, e.Code, e.Message)
}

// Unwrap exposes the underlying cause to errors.Is/errors.As.
func (e *Error) Unwrap() error { return e.Cause }

// Is treats two *Error values with equal category+code as the same error.
func (e *Error) Is(target error) bool {
	var t *Error
	if !errors.As(target, &t) {
		return false
	}
	return e.Category == t.Category && e.Code == t.Code
}

// WithCause attaches an underlying cause and returns the receiver.
func (e *Error) WithCause(cause error) *Error {
	e.Cause = cause
	return e
}

// WithRecovery attaches operator recovery text and returns the receiver.
func (e *Error) WithRecovery(text string) *Error {
	e.Recovery = text
	return e
}

// Validation builds an input-validation error.
func Validation(code, message string) *Error {
	return &Error{Category: CategoryValidation, Code: code, Message: message}
}

// NotFound builds a not-found error for a named resource and id.
func NotFound(resource, id string) *Error {
	return &Error{
		Category: CategoryNotFound,
		Code:     "NOT_FOUND",
		Message:  fmt.Sprintf("%s not found: %s", resource, id),
	}
}

// PolicyGated builds a refusal that can be overridden with --force.
func PolicyGated(code, message string) *Error {
	return &Error{Category: CategoryPolicyGated, Code: code, Message: message, Force: true}
}

// PolicyGatedOutcome builds a refusal that surfaces a structured outcome
// (e.g. duplicate-found) rather than a bare failure; exit code 1 per §4.K.
func PolicyGatedOutcome(code, message string, outcome map[string]any) *Error {
	return &Error{Category: CategoryPolicyGated, Code: code, Message: message, Outcome: outcome}
}

// PolicyGatedStrict builds a refusal that cannot be forced away (exit 2).
func PolicyGatedStrict(code, message string) *Error {
	return &Error{Category: CategoryPolicyGated, Code: code, Message: message, Force: false}
}

// External builds an external-subsystem failure (VCS, agent, pricing fetch).
func External(code, message string) *Error {
	return &Error{Category: CategoryExternal, Code: code, Message: message}
}

// Integrity builds a data-integrity error (foreign-key/trigger violation).
func Integrity(code, message string) *Error {
	return &Error{Category: CategoryIntegrity, Code: code, Message: message}
}

// Concurrency builds a concurrency race marker. Handlers catch this kind
// internally (reuse the winner's row) — it should not normally propagate.
func Concurrency(message string) *Error {
	return &Error{Category: CategoryConcurrency, Code: "CONCURRENT_WRITE", Message: message}
}

// CategoryOf extracts the category from err, defaulting to External for
// errors that were never classified.
func CategoryOf(err error) Category {
	var e *Error
	if errors.As(err, &e) {
		return e.Category
	}
	return CategoryExternal
}

// IsForceable reports whether err is a policy-gated refusal the caller can
// override by passing --force.
func IsForceable(err error) bool {
	var e *Error
	if errors.As(err, &e) {
		return e.Category == CategoryPolicyGated && e.Force
	}
	return false
}

// Outcome returns the structured outcome payload attached to err, if any.
func Outcome(err error) (map[string]any, bool) {
	var e *Error
	if errors.As(err, &e) {
		if e.Outcome != nil {
			return e.Outcome, true
		}
	}
	return nil, false
}

// ExitCode maps err onto the §4.K / §7 exit-code contract:
//
//	0 success (handled by caller, not here)
//	1 caller-visible negative outcome (e.g. duplicate found)
//	2 validation/not-found/external/integrity error
//	3 policy-gated refusal overridable with --force
func ExitCode(err error) int {
	if err == nil {
		return 0
	}
	var e *Error
	if !errors.As(err, &e) {
		return 2
	}
	switch e.Category {
	case CategoryPolicyGated:
		if e.Outcome != nil {
			return 1
		}
		if e.Force {
			return 3
		}
		return 2
	case CategoryValidation, CategoryNotFound, CategoryExternal, CategoryIntegrity:
		return 2
	case CategoryConcurrency:
		return 2
	default:
		return 2
	}
}
