package cmd

import (
	"database/sql"

	"github.com/spf13/cobra"

	"tusk/internal/tuskerr"
)

var progressCmd = &cobra.Command{
	Use:   "progress <task-id>",
	Short: "Log a progress checkpoint for a task from the latest commit",
	Args:  cobra.ExactArgs(1),
	RunE:  runProgress,
}

var progressNextSteps string

func init() {
	rootCmd.AddCommand(progressCmd)
	progressCmd.Flags().StringVar(&progressNextSteps, "next-steps", "", "free-text note on what to do next")
}

func runProgress(cmd *cobra.Command, args []string) error {
	app, closeApp, err := newApp(cmd.Context())
	if err != nil {
		return finish(nil, err)
	}
	defer closeApp()

	taskID, err := parseInt64("task id", args[0])
	if err != nil {
		return finish(nil, err)
	}

	t, err := app.Store.GetTask(cmd.Context(), taskID)
	if err != nil {
		return finish(nil, err)
	}
	if app.Config.IsTerminalStatus(t.Status) {
		return finish(nil, tuskerr.Validation("TASK_ALREADY_DONE", "task is already in its terminal status"))
	}

	info, err := app.VCS.HeadCommit(cmd.Context())
	if err != nil {
		return finish(nil, tuskerr.External("GIT_HEAD", "reading HEAD commit").WithCause(err))
	}

	var nextSteps *string
	if progressNextSteps != "" {
		nextSteps = &progressNextSteps
	}

	var progressID int64
	err = app.Store.WithTx(cmd.Context(), func(tx *sql.Tx) error {
		var txErr error
		progressID, txErr = app.Store.AppendProgress(cmd.Context(), tx, taskID, info.Hash, info.Message, int64(len(info.FilesChanged)), nextSteps)
		return txErr
	})
	if err != nil {
		return finish(nil, err)
	}

	return finish(map[string]any{
		"id":              progressID,
		"task_id":         taskID,
		"commit_hash":     info.Hash,
		"commit_message":  info.Message,
		"files_changed":   info.FilesChanged,
		"next_steps":      nextSteps,
	}, nil)
}
