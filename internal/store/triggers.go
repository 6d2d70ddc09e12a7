package store

import (
	"context"
	"database/sql"
	"fmt"
)

// statusGuardDDL recreates trg_status_guard exactly as schema.sql defines
// it. Kept here, not just in schema.sql, because the reopen path drops and
// regenerates it outside of the normal migration path.
const statusGuardDDL = `
CREATE TRIGGER IF NOT EXISTS trg_status_guard
BEFORE UPDATE OF status ON tasks
WHEN (SELECT rank FROM status_order WHERE status = NEW.status) <
     (SELECT rank FROM status_order WHERE status = OLD.status)
BEGIN
    SELECT RAISE(ABORT, 'backward status transition not allowed');
END;`

const dropStatusGuardDDL = `DROP TRIGGER IF EXISTS trg_status_guard;`

// WithReopenTx runs fn inside a BEGIN IMMEDIATE transaction with the
// status-transition guard dropped, so a backward move (terminal or
// in-progress back to the initial status) can be written. The guard is
// always regenerated afterwards, whether fn succeeds, fails, or the
// transaction itself fails to commit — per spec.md 4.A/5, the regeneration
// must run "even on rollback" and its own failure is surfaced as a
// warning rather than swallowed or allowed to leave the guard absent.
//
// warn receives the regeneration error, if any, so the caller can log it
// without treating it as the operation's own failure.
func (s *Store) WithReopenTx(ctx context.Context, warn func(error), fn func(db *sql.DB) error) error {
	opErr := s.retryWrite(ctx, "reopen-tx", func() error {
		if _, err := s.db.ExecContext(ctx, "BEGIN IMMEDIATE"); err != nil {
			return err
		}
		committed := false
		defer func() {
			if !committed {
				_, _ = s.db.ExecContext(ctx, "ROLLBACK")
			}
		}()

		if _, err := s.db.ExecContext(ctx, dropStatusGuardDDL); err != nil {
			return fmt.Errorf("dropping status guard: %w", err)
		}
		if err := fn(s.db); err != nil {
			return err
		}
		if _, err := s.db.ExecContext(ctx, "COMMIT"); err != nil {
			return err
		}
		committed = true
		return nil
	})

	if _, regenErr := s.db.ExecContext(ctx, statusGuardDDL); regenErr != nil && warn != nil {
		warn(fmt.Errorf("regenerating status guard trigger: %w", regenErr))
	}

	return opErr
}
