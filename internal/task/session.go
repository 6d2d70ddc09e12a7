package task

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"tusk/internal/store"
	"tusk/internal/tuskerr"
)

// StartResult is what task-start returns.
type StartResult struct {
	Task      *store.Task
	Progress  []*store.Progress
	Criteria  []*store.Criterion
	SessionID int64
}

// Start moves a task to In Progress (if not already), requires at least
// one non-deferred criterion unless forced, refuses with unresolved
// external blockers, and reuses an open session if one exists. Under a
// concurrent task-start race the partial unique index on
// task_sessions(task_id) WHERE ended_at IS NULL rejects the losing
// insert; that race is caught here and resolved by reusing the winner's
// session rather than erroring.
func (e *Engine) Start(ctx context.Context, id int64, force bool) (*StartResult, error) {
	key := fmt.Sprintf("%d:%t", id, force)
	v, err, _ := e.startGroup.Do(key, func() (interface{}, error) {
		return e.startLocked(ctx, id, force)
	})
	if err != nil {
		return nil, err
	}
	return v.(*StartResult), nil
}

// startLocked is Start's body, run at most once per (task id, force) key
// at a time within this process via singleflight.Group.
func (e *Engine) startLocked(ctx context.Context, id int64, force bool) (*StartResult, error) {
	blockers, err := e.Store.ListOpenBlockers(ctx, id)
	if err != nil {
		return nil, err
	}
	if len(blockers) > 0 {
		return nil, tuskerr.PolicyGatedStrict("open_blockers", "task has unresolved external blockers")
	}

	criteria, err := e.Store.ListCriteria(ctx, id)
	if err != nil {
		return nil, err
	}
	if !force {
		hasNonDeferred := false
		for _, c := range criteria {
			if !c.IsDeferred {
				hasNonDeferred = true
				break
			}
		}
		if !hasNonDeferred {
			return nil, tuskerr.PolicyGated("no_criteria", "task has no non-deferred acceptance criteria; pass --force to start anyway")
		}
	}

	var sessionID int64
	err = e.Store.WithTx(ctx, func(tx *sql.Tx) error {
		current, err := e.Store.GetTaskTx(ctx, tx, id)
		if err != nil {
			return err
		}
		inProgress := e.Config.InProgressStatus()
		if current.Status != inProgress {
			if err := e.advanceToInProgress(ctx, tx, id, inProgress); err != nil {
				return err
			}
		}

		existing, err := e.Store.GetOpenSessionTx(ctx, tx, id)
		if err == nil {
			sessionID = existing.ID
			return nil
		}
		if err != store.ErrNotFound {
			return err
		}

		newID, err := e.Store.OpenSession(ctx, tx, id, nil)
		if err != nil {
			if store.IsSessionSlotRace(err) {
				winner, getErr := e.Store.GetOpenSessionTx(ctx, tx, id)
				if getErr != nil {
					return getErr
				}
				sessionID = winner.ID
				return nil
			}
			return err
		}
		sessionID = newID
		return nil
	})
	if err != nil {
		return nil, err
	}

	t, err := e.Store.GetTask(ctx, id)
	if err != nil {
		return nil, err
	}
	progress, err := e.Store.ListProgress(ctx, id)
	if err != nil {
		return nil, err
	}

	return &StartResult{
		Task:      t,
		Progress:  progress,
		Criteria:  criteria,
		SessionID: sessionID,
	}, nil
}

// CloseSessionResult is what an explicit session-close returns. CostHint
// carries the session id so a caller holding a cost.Engine can run
// attribution (4.F) after the commit; internal/task deliberately has no
// dependency on internal/cost, since attribution needs a transcript
// directory and pricing catalog that belong to the CLI layer, not the
// task engine.
type CloseSessionResult struct {
	Task      *store.Task
	SessionID int64
}

// CloseSession ends the task's current open session without touching
// task status, per spec.md 4.D's "may be closed by an explicit
// session-close" path (distinct from closing via task closure or
// reopen, both of which close sessions as a side effect elsewhere).
func (e *Engine) CloseSession(ctx context.Context, id int64) (*CloseSessionResult, error) {
	open, err := e.Store.GetOpenSession(ctx, id)
	if err != nil {
		if err == store.ErrNotFound {
			return nil, tuskerr.PolicyGated("no_open_session", "task has no open session")
		}
		return nil, err
	}

	err = e.Store.WithTx(ctx, func(tx *sql.Tx) error {
		return e.Store.CloseSession(ctx, tx, open.ID)
	})
	if err != nil {
		return nil, err
	}

	t, err := e.Store.GetTask(ctx, id)
	if err != nil {
		return nil, err
	}
	return &CloseSessionResult{Task: t, SessionID: open.ID}, nil
}

// advanceToInProgress moves a task's status forward to inProgress.
// Status is part of the fixed enumeration, not an arbitrary partial
// update field, so this runs its own UPDATE rather than going through
// TaskUpdate.
func (e *Engine) advanceToInProgress(ctx context.Context, tx *sql.Tx, id int64, inProgress string) error {
	_, err := tx.ExecContext(ctx, `UPDATE tasks SET status = ?, updated_at = ? WHERE id = ?`,
		inProgress, time.Now().UTC().Format(time.RFC3339), id)
	return err
}
