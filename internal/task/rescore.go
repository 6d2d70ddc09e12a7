package task

import (
	"context"
	"database/sql"
)

// RescoreAll recomputes priority_score for every task from its current
// priority and complexity. Pure and deterministic; safe to run any time a
// rescore is requested explicitly (`tusk wsjf`) rather than implicitly by
// an insert/update that changed priority or complexity.
func (e *Engine) RescoreAll(ctx context.Context) (int, error) {
	tasks, err := e.Store.ListTasks(ctx)
	if err != nil {
		return 0, err
	}

	err = e.Store.WithTx(ctx, func(tx *sql.Tx) error {
		for _, t := range tasks {
			score := ScoreWSJF(t.Priority, valueOrEmpty(t.Complexity), &e.Config.WSJF)
			if err := e.Store.UpdatePriorityScore(ctx, tx, t.ID, score); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	return len(tasks), nil
}
