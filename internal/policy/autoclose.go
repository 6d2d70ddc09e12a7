package policy

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"tusk/internal/store"
)

// AutocloseResult tallies what the autoclose sweep did.
type AutocloseResult struct {
	ExpiredDeferredClosed []int64
	MootContingentClosed  []int64
}

// RunAutoclose performs the expired-deferred sweep and the moot-contingent
// cascade (spec.md 4.G), one transaction per affected task so a failure on
// one task never blocks the rest.
func (e *Engine) RunAutoclose(ctx context.Context) (*AutocloseResult, error) {
	result := &AutocloseResult{}

	if err := e.sweepExpiredDeferred(ctx, result); err != nil {
		return result, err
	}
	if err := e.sweepMootContingent(ctx, result); err != nil {
		return result, err
	}
	return result, nil
}

func (e *Engine) sweepExpiredDeferred(ctx context.Context, result *AutocloseResult) error {
	tasks, err := e.Store.ListTasks(ctx)
	if err != nil {
		return err
	}
	now := time.Now().UTC()
	initial := e.Config.InitialStatus()
	terminal := e.Config.TerminalStatus()

	for _, t := range tasks {
		if !t.IsDeferred || t.Status != initial || t.ExpiresAt == nil || !t.ExpiresAt.Before(now) {
			continue
		}
		annotation := fmt.Sprintf("Auto-closed: Deferred task expired after %d days without action.", daysSince(t.CreatedAt, now))
		if err := e.closeTaskInTx(ctx, t.ID, terminal, "expired", annotation); err != nil {
			return err
		}
		result.ExpiredDeferredClosed = append(result.ExpiredDeferredClosed, t.ID)
	}
	return nil
}

func (e *Engine) sweepMootContingent(ctx context.Context, result *AutocloseResult) error {
	tasks, err := e.Store.ListTasks(ctx)
	if err != nil {
		return err
	}
	byID := make(map[int64]*store.Task, len(tasks))
	for _, t := range tasks {
		byID[t.ID] = t
	}
	terminal := e.Config.TerminalStatus()

	edges, err := e.Store.AllDependencyEdges(ctx)
	if err != nil {
		return err
	}

	for _, edge := range edges {
		if edge.RelationshipType != "contingent" {
			continue
		}
		dependent := byID[edge.TaskID]
		upstream := byID[edge.DependsOnID]
		if dependent == nil || upstream == nil {
			continue
		}
		if dependent.Status == terminal {
			continue
		}
		if upstream.Status != terminal {
			continue
		}
		if upstream.ClosedReason == nil || (*upstream.ClosedReason != "wont_do" && *upstream.ClosedReason != "expired") {
			continue
		}

		annotation := fmt.Sprintf("Auto-closed: upstream task #%d closed as %s.", upstream.ID, *upstream.ClosedReason)
		if err := e.closeTaskInTx(ctx, dependent.ID, terminal, "wont_do", annotation); err != nil {
			return err
		}
		result.MootContingentClosed = append(result.MootContingentClosed, dependent.ID)
	}
	return nil
}

// closeTaskInTx closes one task, appends an audit annotation, and closes
// any sessions still open on it, all in one transaction.
func (e *Engine) closeTaskInTx(ctx context.Context, taskID int64, terminalStatus, closedReason, annotation string) error {
	return e.Store.WithTx(ctx, func(tx *sql.Tx) error {
		if err := e.Store.CloseTask(ctx, tx, taskID, terminalStatus, closedReason); err != nil {
			return err
		}
		if err := e.Store.AppendDescriptionAnnotation(ctx, tx, taskID, annotation); err != nil {
			return err
		}
		sessions, err := e.Store.ListOpenSessionsTx(ctx, tx, taskID)
		if err != nil {
			return err
		}
		for _, s := range sessions {
			if err := e.Store.CloseSession(ctx, tx, s.ID); err != nil {
				return err
			}
		}
		return nil
	})
}

func daysSince(from, to time.Time) int {
	d := int(to.Sub(from).Hours() / 24)
	if d < 0 {
		return 0
	}
	return d
}
