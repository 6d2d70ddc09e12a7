package task

import (
	"context"
	"database/sql"

	"tusk/internal/store"
	"tusk/internal/tuskerr"
)

// CloseResult is what task-done returns.
type CloseResult struct {
	Task            *store.Task
	SessionsClosed  int
	NewlyReadyTasks []int64
}

// Close sets a task's status to terminal with closedReason, refusing
// unless every non-deferred criterion is complete (unless force). Closes
// every open session on the task and reports dependents that became
// ready as a result.
func (e *Engine) Close(ctx context.Context, id int64, closedReason string, force bool) (*CloseResult, error) {
	if err := validateEnum("closed_reason", closedReason, e.Config.ClosedReasons); err != nil {
		return nil, err
	}

	result := &CloseResult{}
	terminal := e.terminalStatus()

	err := e.Store.WithTx(ctx, func(tx *sql.Tx) error {
		criteria, err := e.Store.ListCriteriaTx(ctx, tx, id)
		if err != nil {
			return err
		}
		if !force {
			for _, c := range criteria {
				if c.IsDeferred {
					continue
				}
				if !c.IsCompleted {
					return tuskerr.PolicyGated("incomplete_criteria", "not all acceptance criteria are complete; pass --force to close anyway")
				}
			}
		}

		if err := e.Store.CloseTask(ctx, tx, id, terminal, closedReason); err != nil {
			return err
		}

		sessions, err := e.Store.ListOpenSessionsTx(ctx, tx, id)
		if err != nil {
			return err
		}
		for _, s := range sessions {
			if err := e.Store.CloseSession(ctx, tx, s.ID); err != nil {
				return err
			}
		}
		result.SessionsClosed = len(sessions)
		return nil
	})
	if err != nil {
		return nil, err
	}

	ready, err := e.newlyReadyDependents(ctx, id)
	if err != nil {
		return nil, err
	}
	result.NewlyReadyTasks = ready

	t, err := e.Store.GetTask(ctx, id)
	if err != nil {
		return nil, err
	}
	result.Task = t
	return result, nil
}

// newlyReadyDependents returns the ids of tasks that depend on id and are
// now ready: every "blocks" prerequisite is terminal and no unresolved
// external blocker remains. Computed read-only after the closing
// transaction commits, since v_ready_tasks reflects post-commit state.
func (e *Engine) newlyReadyDependents(ctx context.Context, id int64) ([]int64, error) {
	dependents, err := e.Store.ListDependents(ctx, id)
	if err != nil {
		return nil, err
	}
	ready, err := e.Store.ListReadyTasks(ctx)
	if err != nil {
		return nil, err
	}
	readySet := make(map[int64]bool, len(ready))
	for _, t := range ready {
		readySet[t.ID] = true
	}

	var out []int64
	seen := map[int64]bool{}
	for _, d := range dependents {
		if seen[d.TaskID] {
			continue
		}
		seen[d.TaskID] = true
		if readySet[d.TaskID] {
			out = append(out, d.TaskID)
		}
	}
	return out, nil
}
