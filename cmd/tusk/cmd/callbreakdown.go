package cmd

import (
	"strconv"

	"github.com/spf13/cobra"

	"tusk/internal/store"
	"tusk/internal/transcript"
	"tusk/internal/tuskerr"
)

var callBreakdownCmd = &cobra.Command{
	Use:   "call-breakdown",
	Short: "Per-tool cost breakdown for a session, skill run, criterion, or task",
	RunE:  runCallBreakdown,
}

var (
	callBreakdownTask      int64
	callBreakdownSession   int64
	callBreakdownSkillRun  int64
	callBreakdownCriterion int64
	callBreakdownWriteOnly bool
)

func init() {
	rootCmd.AddCommand(callBreakdownCmd)
	callBreakdownCmd.Flags().Int64Var(&callBreakdownTask, "task", 0, "re-attribute and break down every session on a task")
	callBreakdownCmd.Flags().Int64Var(&callBreakdownSession, "session", 0, "re-attribute and break down one session")
	callBreakdownCmd.Flags().Int64Var(&callBreakdownSkillRun, "skill-run", 0, "re-attribute and break down one skill run")
	callBreakdownCmd.Flags().Int64Var(&callBreakdownCriterion, "criterion", 0, "re-attribute and break down one criterion")
	callBreakdownCmd.Flags().BoolVar(&callBreakdownWriteOnly, "write-only", false, "write tool_call_stats/events without returning the breakdown table")
}

// toolBreakdown pairs one owner's recomputed totals with its per-tool rows,
// matching tusk-call-breakdown.py's table shape.
type toolBreakdown struct {
	Owner string            `json:"owner"`
	Cost  any               `json:"cost,omitempty"`
	Tools []store.ToolCallStats `json:"tools,omitempty"`
}

func runCallBreakdown(cmd *cobra.Command, args []string) error {
	set := 0
	for _, v := range []int64{callBreakdownTask, callBreakdownSession, callBreakdownSkillRun, callBreakdownCriterion} {
		if v != 0 {
			set++
		}
	}
	if set != 1 {
		return finish(nil, tuskerr.Validation("CALL_BREAKDOWN_SCOPE", "exactly one of --task, --session, --skill-run, --criterion is required"))
	}

	app, closeApp, err := newApp(cmd.Context())
	if err != nil {
		return finish(nil, err)
	}
	defer closeApp()

	var breakdowns []toolBreakdown

	switch {
	case callBreakdownSession != 0:
		b, err := breakdownSession(cmd, app, callBreakdownSession)
		if err != nil {
			return finish(nil, err)
		}
		breakdowns = append(breakdowns, b)

	case callBreakdownSkillRun != 0:
		result, err := app.Cost.AttributeSkillRun(cmd.Context(), callBreakdownSkillRun, app.Config.Transcript.Dir)
		if err != nil {
			return finish(nil, err)
		}
		tools, err := app.Store.ListToolCallStats(cmd.Context(), store.OwnerScope{SkillRunID: callBreakdownSkillRun})
		if err != nil {
			return finish(nil, err)
		}
		breakdowns = append(breakdowns, toolBreakdown{Owner: "skill_run", Cost: result, Tools: tools})

	case callBreakdownCriterion != 0:
		result, err := app.Cost.AttributeCriterion(cmd.Context(), callBreakdownCriterion, app.Config.Transcript.Dir)
		if err != nil {
			return finish(nil, err)
		}
		tools, err := app.Store.ListToolCallStats(cmd.Context(), store.OwnerScope{CriterionID: callBreakdownCriterion})
		if err != nil {
			return finish(nil, err)
		}
		breakdowns = append(breakdowns, toolBreakdown{Owner: "criterion", Cost: result, Tools: tools})

	case callBreakdownTask != 0:
		sessions, err := app.Store.ListSessionsForTask(cmd.Context(), callBreakdownTask)
		if err != nil {
			return finish(nil, err)
		}

		files, err := transcript.ListFiles(app.Config.Transcript.Dir, false)
		if err != nil {
			return finish(nil, err)
		}
		targets := make([]transcript.Target, len(sessions))
		for i, s := range sessions {
			targets[i] = transcript.Target{Name: strconv.FormatInt(s.ID, 10), Window: app.Cost.SessionWindow(s)}
		}
		// One read-and-route pass across every file in the task's sessions,
		// not one parse per session — see transcript.RouteMany.
		routed, err := transcript.RouteMany(cmd.Context(), files, targets)
		if err != nil {
			return finish(nil, err)
		}

		for _, s := range sessions {
			b, err := breakdownSessionFromRequests(cmd, app, s.ID, routed[strconv.FormatInt(s.ID, 10)])
			if err != nil {
				app.Log.Warn("call breakdown failed for session", "session_id", s.ID, "error", err)
				continue
			}
			breakdowns = append(breakdowns, b)
		}
	}

	if callBreakdownWriteOnly {
		return finish(map[string]any{"written": len(breakdowns)}, nil)
	}
	return finish(breakdowns, nil)
}

func breakdownSession(cmd *cobra.Command, app *App, sessionID int64) (toolBreakdown, error) {
	result, err := app.Cost.AttributeSession(cmd.Context(), sessionID, app.Config.Transcript.Dir)
	if err != nil {
		return toolBreakdown{}, err
	}
	tools, err := app.Store.ListToolCallStats(cmd.Context(), store.OwnerScope{SessionID: sessionID})
	if err != nil {
		return toolBreakdown{}, err
	}
	return toolBreakdown{Owner: "session", Cost: result, Tools: tools}, nil
}

// breakdownSessionFromRequests attributes a session from a request slice
// already routed by transcript.RouteMany, rather than re-reading every
// transcript file in the directory for each session on the task.
func breakdownSessionFromRequests(cmd *cobra.Command, app *App, sessionID int64, reqs []transcript.Request) (toolBreakdown, error) {
	result, err := app.Cost.AttributeSessionFromRequests(cmd.Context(), sessionID, reqs)
	if err != nil {
		return toolBreakdown{}, err
	}
	tools, err := app.Store.ListToolCallStats(cmd.Context(), store.OwnerScope{SessionID: sessionID})
	if err != nil {
		return toolBreakdown{}, err
	}
	return toolBreakdown{Owner: "session", Cost: result, Tools: tools}, nil
}
