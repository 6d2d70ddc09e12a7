package store

import (
	"errors"
	"strings"

	"tusk/internal/tuskerr"
)

// classify turns a raw sqlite driver error into the taxonomy spec.md 7
// requires: foreign-key violation, unique violation, and trigger (CHECK/
// RAISE) violation are distinct error kinds, never conflated.
func classify(err error, context string) error {
	if err == nil {
		return nil
	}
	if isSQLiteBusy(err) {
		return tuskerr.Concurrency(context + ": " + err.Error())
	}

	msg := err.Error()
	switch {
	case strings.Contains(msg, "FOREIGN KEY constraint failed"):
		return tuskerr.Integrity("foreign_key_violation", context+": referenced row does not exist").WithCause(err)
	case strings.Contains(msg, "UNIQUE constraint failed"):
		return tuskerr.Integrity("unique_violation", context+": duplicate row").WithCause(err)
	case strings.Contains(msg, "CHECK constraint failed"):
		return tuskerr.Integrity("check_violation", context+": "+msg).WithCause(err)
	case strings.Contains(msg, "backward status transition not allowed"):
		return tuskerr.PolicyGatedStrict("backward_status_transition", context+": status transitions are forward-only; use reopen").WithCause(err)
	case strings.Contains(msg, "terminal task requires a closed_reason"),
		strings.Contains(msg, "non-terminal task must not have a closed_reason"):
		return tuskerr.Integrity("closed_reason_consistency", context+": "+msg).WithCause(err)
	case strings.Contains(msg, "is_deferred does not match"):
		return tuskerr.Integrity("deferred_prefix_consistency", context+": "+msg).WithCause(err)
	default:
		return err
	}
}

// IsUniqueViolation reports whether err (or a wrapped cause) is a raw
// UNIQUE constraint failure, for handlers that need the original
// "reuse the winner's row" behavior rather than classify's translation
// (see the task-start session race in internal/task).
func IsUniqueViolation(err error) bool {
	if err == nil {
		return false
	}
	return strings.Contains(err.Error(), "UNIQUE constraint failed")
}

// IsSessionSlotRace reports whether err is the one-open-session-per-task
// partial unique index rejecting a concurrent insert.
func IsSessionSlotRace(err error) bool {
	return IsUniqueViolation(err) && strings.Contains(err.Error(), "idx_sessions_one_open")
}

// ErrNotFound is returned by row lookups that found nothing, wrapped by
// callers into tuskerr.NotFound with the resource-specific id.
var ErrNotFound = errors.New("store: not found")
