package cmd

import (
	"math"

	"github.com/spf13/cobra"
)

var tokenAuditCmd = &cobra.Command{
	Use:   "token-audit",
	Short: "Cross-check stored tool-call totals against a fresh transcript parse",
	RunE:  runTokenAudit,
}

func init() {
	rootCmd.AddCommand(tokenAuditCmd)
}

// driftEntry reports one owner whose stored cost disagreed with a fresh
// recomputation from the transcript directory. Since AttributeSession,
// AttributeSkillRun and AttributeCriterion all write back idempotently,
// re-running them IS the fresh parse; the audit just diffs before/after.
type driftEntry struct {
	Owner      string  `json:"owner"`
	OwnerID    int64   `json:"owner_id"`
	StoredCost float64 `json:"stored_cost"`
	FreshCost  float64 `json:"fresh_cost"`
	DriftCost  float64 `json:"drift_cost"`
}

const driftEpsilon = 0.000001

func runTokenAudit(cmd *cobra.Command, args []string) error {
	app, closeApp, err := newApp(cmd.Context())
	if err != nil {
		return finish(nil, err)
	}
	defer closeApp()

	var drift []driftEntry
	var totalStored, totalFresh float64
	checked := 0

	tasks, err := app.Store.ListTasks(cmd.Context())
	if err != nil {
		return finish(nil, err)
	}

	for _, t := range tasks {
		sessions, err := app.Store.ListSessionsForTask(cmd.Context(), t.ID)
		if err != nil {
			return finish(nil, err)
		}
		for _, s := range sessions {
			before := s.CostDollars
			result, err := app.Cost.AttributeSession(cmd.Context(), s.ID, app.Config.Transcript.Dir)
			if err != nil {
				app.Log.Warn("token audit failed for session", "session_id", s.ID, "error", err)
				continue
			}
			checked++
			totalStored += before
			totalFresh += result.Dollars
			if math.Abs(before-result.Dollars) > driftEpsilon {
				drift = append(drift, driftEntry{Owner: "session", OwnerID: s.ID, StoredCost: before, FreshCost: result.Dollars, DriftCost: result.Dollars - before})
			}
		}

		criteria, err := app.Store.ListCriteria(cmd.Context(), t.ID)
		if err != nil {
			return finish(nil, err)
		}
		for _, c := range criteria {
			if !c.IsCompleted {
				continue
			}
			before := c.CostDollars
			result, err := app.Cost.AttributeCriterion(cmd.Context(), c.ID, app.Config.Transcript.Dir)
			if err != nil {
				app.Log.Warn("token audit failed for criterion", "criterion_id", c.ID, "error", err)
				continue
			}
			checked++
			totalStored += before
			totalFresh += result.Dollars
			if math.Abs(before-result.Dollars) > driftEpsilon {
				drift = append(drift, driftEntry{Owner: "criterion", OwnerID: c.ID, StoredCost: before, FreshCost: result.Dollars, DriftCost: result.Dollars - before})
			}
		}
	}

	skillRuns, err := app.Store.ListSkillRuns(cmd.Context(), "")
	if err != nil {
		return finish(nil, err)
	}
	for _, r := range skillRuns {
		if r.EndedAt == nil {
			continue
		}
		before := r.CostDollars
		result, err := app.Cost.AttributeSkillRun(cmd.Context(), r.ID, app.Config.Transcript.Dir)
		if err != nil {
			app.Log.Warn("token audit failed for skill run", "skill_run_id", r.ID, "error", err)
			continue
		}
		checked++
		totalStored += before
		totalFresh += result.Dollars
		if math.Abs(before-result.Dollars) > driftEpsilon {
			drift = append(drift, driftEntry{Owner: "skill_run", OwnerID: r.ID, StoredCost: before, FreshCost: result.Dollars, DriftCost: result.Dollars - before})
		}
	}

	return finish(map[string]any{
		"checked":      checked,
		"drifted":      len(drift),
		"total_stored": totalStored,
		"total_fresh":  totalFresh,
		"total_drift":  totalFresh - totalStored,
		"drift":        drift,
	}, nil)
}
