package cmd

import (
	"database/sql"

	"github.com/spf13/cobra"

	"tusk/internal/finalize"
	"tusk/internal/store"
)

var mergeCmd = &cobra.Command{
	Use:   "merge <task-id>",
	Short: "Close the task's session, merge its branch, and close the task",
	Args:  cobra.ExactArgs(1),
	RunE:  runMerge,
}

var finalizeCmd = &cobra.Command{
	Use:   "finalize <task-id>",
	Short: "Record a PR's URL, then merge and close the task (PR mode)",
	Args:  cobra.ExactArgs(1),
	RunE:  runFinalize,
}

var (
	mergeSession  int64
	mergePR       bool
	mergePRNumber int
	finalizePRURL string
)

func init() {
	rootCmd.AddCommand(mergeCmd, finalizeCmd)

	mergeCmd.Flags().Int64Var(&mergeSession, "session", 0, "explicit session id (otherwise auto-detected)")
	mergeCmd.Flags().BoolVar(&mergePR, "pr", false, "use PR-squash mode instead of local fast-forward")
	mergeCmd.Flags().IntVar(&mergePRNumber, "pr-number", 0, "PR number, required with --pr")

	finalizeCmd.Flags().Int64Var(&mergeSession, "session", 0, "explicit session id (otherwise auto-detected)")
	finalizeCmd.Flags().StringVar(&finalizePRURL, "pr-url", "", "GitHub PR URL to record on the task")
	finalizeCmd.Flags().IntVar(&mergePRNumber, "pr-number", 0, "PR number (required)")
}

func runMerge(cmd *cobra.Command, args []string) error {
	app, closeApp, err := newApp(cmd.Context())
	if err != nil {
		return finish(nil, err)
	}
	defer closeApp()

	taskID, err := parseInt64("task id", args[0])
	if err != nil {
		return finish(nil, err)
	}

	opts := finalize.Options{UsePR: mergePR}
	if cmd.Flags().Changed("session") {
		opts.SessionID = &mergeSession
	}
	if cmd.Flags().Changed("pr-number") {
		opts.PRNumber = &mergePRNumber
	}

	result, err := app.Finalize.Finalize(cmd.Context(), taskID, opts)
	return finish(result, err)
}

// runFinalize is tusk-finalize.py's PR-mode convenience wrapper around the
// same orchestrator runMerge uses: it additionally records the PR URL on
// the task before merging.
func runFinalize(cmd *cobra.Command, args []string) error {
	app, closeApp, err := newApp(cmd.Context())
	if err != nil {
		return finish(nil, err)
	}
	defer closeApp()

	taskID, err := parseInt64("task id", args[0])
	if err != nil {
		return finish(nil, err)
	}

	if finalizePRURL != "" {
		err := app.Store.WithTx(cmd.Context(), func(tx *sql.Tx) error {
			prURL := finalizePRURL
			prURLPtr := &prURL
			return app.Store.UpdateTask(cmd.Context(), tx, taskID, store.TaskUpdate{GithubPR: &prURLPtr})
		})
		if err != nil {
			return finish(nil, err)
		}
	}

	opts := finalize.Options{UsePR: true}
	if cmd.Flags().Changed("session") {
		opts.SessionID = &mergeSession
	}
	if cmd.Flags().Changed("pr-number") {
		opts.PRNumber = &mergePRNumber
	}

	result, err := app.Finalize.Finalize(cmd.Context(), taskID, opts)
	return finish(result, err)
}
