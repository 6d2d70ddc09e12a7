package task

import (
	"context"
	"database/sql"

	"tusk/internal/store"
	"tusk/internal/tuskerr"
)

// Reopen moves a task from In Progress or a terminal status back to the
// initial status, clearing closed_reason and closing any still-open
// sessions. Requires force; "To Do" is rejected as a no-op.
func (e *Engine) Reopen(ctx context.Context, id int64, force bool) (*store.Task, error) {
	if !force {
		return nil, tuskerr.PolicyGated("reopen_requires_force", "reopen requires --force")
	}

	initial := e.initialStatus()

	current, err := e.Store.GetTask(ctx, id)
	if err != nil {
		return nil, err
	}
	if current.Status == initial {
		return nil, tuskerr.PolicyGatedStrict("already_initial", "task is already in the initial status")
	}

	var warnErr error
	err = e.Store.WithReopenTx(ctx, func(w error) { warnErr = w }, func(db *sql.DB) error {
		if err := store.ReopenTask(ctx, db, id, initial); err != nil {
			return err
		}
		// db is the single write connection already inside the reopen
		// path's BEGIN IMMEDIATE; these calls join that same transaction
		// rather than starting a nested one.
		sessions, err := e.Store.ListOpenSessionsTx(ctx, db, id)
		if err != nil {
			return err
		}
		for _, s := range sessions {
			if err := e.Store.CloseSession(ctx, db, s.ID); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	if warnErr != nil && e.Log != nil {
		e.Log.Warn("status guard trigger regeneration failed", "error", warnErr, "task_id", id)
	}

	return e.Store.GetTask(ctx, id)
}
