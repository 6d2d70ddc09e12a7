package cmd

import (
	"database/sql"
	"os"
	"path/filepath"
	"strconv"

	"github.com/spf13/cobra"

	"tusk/internal/store"
)

var skillRunCmd = &cobra.Command{
	Use:   "skill-run",
	Short: "External skill-run execution windows",
}

var skillRunStartCmd = &cobra.Command{
	Use:   "start <skill-name>",
	Short: "Open a skill-run window",
	Args:  cobra.ExactArgs(1),
	RunE:  runSkillRunStart,
}

var skillRunFinishCmd = &cobra.Command{
	Use:   "finish <run-id>",
	Short: "Close a skill-run window and attribute cost against it",
	Args:  cobra.ExactArgs(1),
	RunE:  runSkillRunFinish,
}

var skillRunFinishMetadata string

var skillRunListCmd = &cobra.Command{
	Use:   "list [skill-name]",
	Short: "List skill runs, newest first",
	Args:  cobra.MaximumNArgs(1),
	RunE:  runSkillRunList,
}

var (
	skillRunListLimit int
	skillRunListSync  bool
)

func init() {
	rootCmd.AddCommand(skillRunCmd)
	skillRunCmd.AddCommand(skillRunStartCmd, skillRunFinishCmd, skillRunListCmd)
	skillRunFinishCmd.Flags().StringVar(&skillRunFinishMetadata, "metadata", "", "opaque JSON metadata to record at finish")
	skillRunListCmd.Flags().IntVar(&skillRunListLimit, "limit", 0, "cap the number of rows returned (0 = no cap)")
	skillRunListCmd.Flags().BoolVar(&skillRunListSync, "sync", false, "reconcile runs whose skill process has since produced a terminal marker file")
}

func runSkillRunStart(cmd *cobra.Command, args []string) error {
	app, closeApp, err := newApp(cmd.Context())
	if err != nil {
		return finish(nil, err)
	}
	defer closeApp()

	var id int64
	err = app.Store.WithTx(cmd.Context(), func(tx *sql.Tx) error {
		var txErr error
		id, txErr = app.Store.StartSkillRun(cmd.Context(), tx, args[0], nil)
		return txErr
	})
	if err != nil {
		return finish(nil, err)
	}
	result, err := app.Store.GetSkillRun(cmd.Context(), id)
	return finish(result, err)
}

func runSkillRunFinish(cmd *cobra.Command, args []string) error {
	app, closeApp, err := newApp(cmd.Context())
	if err != nil {
		return finish(nil, err)
	}
	defer closeApp()

	id, err := parseInt64("run id", args[0])
	if err != nil {
		return finish(nil, err)
	}

	result, err := finishSkillRun(cmd, app, id)
	return finish(result, err)
}

// finishSkillRun closes run id, attributes its cost, and returns the
// combined {skill_run, cost?, cost_capture_warning?} payload shared by the
// explicit `finish` subcommand and `list --sync`'s reconciliation pass.
func finishSkillRun(cmd *cobra.Command, app *App, id int64) (map[string]any, error) {
	var metadata *string
	if skillRunFinishMetadata != "" {
		metadata = &skillRunFinishMetadata
	}
	err := app.Store.WithTx(cmd.Context(), func(tx *sql.Tx) error {
		return app.Store.FinishSkillRun(cmd.Context(), tx, id, metadata)
	})
	if err != nil {
		return nil, err
	}

	out := map[string]any{}
	costResult, costErr := app.Cost.AttributeSkillRun(cmd.Context(), id, app.Config.Transcript.Dir)
	if costErr != nil {
		app.Log.Warn("skill run cost attribution failed", "skill_run_id", id, "error", costErr)
		out["cost_capture_warning"] = costErr.Error()
	} else {
		out["cost"] = costResult
	}
	result, err := app.Store.GetSkillRun(cmd.Context(), id)
	if err != nil {
		return nil, err
	}
	out["skill_run"] = result
	return out, nil
}

func runSkillRunList(cmd *cobra.Command, args []string) error {
	app, closeApp, err := newApp(cmd.Context())
	if err != nil {
		return finish(nil, err)
	}
	defer closeApp()

	skillName := ""
	if len(args) == 1 {
		skillName = args[0]
	}
	runs, err := app.Store.ListSkillRuns(cmd.Context(), skillName)
	if err != nil {
		return finish(nil, err)
	}

	var synced []map[string]any
	if skillRunListSync {
		synced = syncSkillRuns(cmd, app, runs)
		runs, err = app.Store.ListSkillRuns(cmd.Context(), skillName)
		if err != nil {
			return finish(nil, err)
		}
	}

	if skillRunListLimit > 0 && len(runs) > skillRunListLimit {
		runs = runs[:skillRunListLimit]
	}
	if skillRunListSync {
		return finish(map[string]any{"runs": runs, "synced": synced}, nil)
	}
	return finish(runs, nil)
}

// syncSkillRuns implements SPEC_FULL.md's skill-run list --sync: a
// skill_runs row whose ended_at is still null but whose skill process has
// since produced a terminal marker file (<marker-dir>/<run-id>.done,
// written by the external skill runtime on exit) gets closed the same way
// an explicit `skill-run finish` would, and the marker is removed.
func syncSkillRuns(cmd *cobra.Command, app *App, runs []*store.SkillRun) []map[string]any {
	markerDir := app.Config.SkillRuns.MarkerDir
	if markerDir == "" {
		return nil
	}

	var synced []map[string]any
	for _, run := range runs {
		if run.EndedAt != nil {
			continue
		}
		marker := filepath.Join(markerDir, strconv.FormatInt(run.ID, 10)+".done")
		if _, err := os.Stat(marker); err != nil {
			continue
		}

		result, err := finishSkillRun(cmd, app, run.ID)
		if err != nil {
			app.Log.Warn("skill run sync failed", "skill_run_id", run.ID, "error", err)
			continue
		}
		if rmErr := os.Remove(marker); rmErr != nil && !os.IsNotExist(rmErr) {
			app.Log.Warn("skill run marker cleanup failed", "skill_run_id", run.ID, "error", rmErr)
		}
		result["run_id"] = run.ID
		synced = append(synced, result)
	}
	return synced
}
