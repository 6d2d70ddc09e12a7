package cmd

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"tusk/internal/tuskerr"
)

var commitCmd = &cobra.Command{
	Use:   "commit <task-id> <message> [files...]",
	Short: "Stage files and commit against a task, optionally closing criteria",
	Args:  cobra.MinimumNArgs(2),
	RunE:  runCommit,
}

var commitCriteria []string

func init() {
	rootCmd.AddCommand(commitCmd)
	commitCmd.Flags().StringSliceVar(&commitCriteria, "criteria", nil, "criterion ids to mark done against the new commit")
}

// runCommit stages files and commits with a "[TASK-<id>] <message>"
// subject, then marks each --criteria id done against the resulting HEAD.
// Unlike the reference tool this never appends an attribution trailer —
// commit messages here carry only the task reference and the author's
// own message.
func runCommit(cmd *cobra.Command, args []string) error {
	app, closeApp, err := newApp(cmd.Context())
	if err != nil {
		return finish(nil, err)
	}
	defer closeApp()

	taskID, err := parseInt64("task id", args[0])
	if err != nil {
		return finish(nil, err)
	}
	message := strings.TrimSpace(args[1])
	if message == "" {
		return finish(nil, tuskerr.Validation("EMPTY_MESSAGE", "commit message must not be empty"))
	}
	files := args[2:]

	if len(files) > 0 {
		if err := app.VCS.Add(cmd.Context(), files); err != nil {
			return finish(nil, tuskerr.External("GIT_ADD", "staging files").WithCause(err))
		}
	}

	subject := fmt.Sprintf("[TASK-%d] %s", taskID, message)
	hash, err := app.VCS.Commit(cmd.Context(), subject)
	if err != nil {
		return finish(nil, tuskerr.External("GIT_COMMIT", "committing").WithCause(err))
	}

	out := map[string]any{"task_id": taskID, "commit_hash": hash, "message": subject}

	var criteriaResults []map[string]any
	for _, raw := range commitCriteria {
		id, err := parseInt64("criterion id", raw)
		if err != nil {
			criteriaResults = append(criteriaResults, map[string]any{"criterion_id": raw, "warning": err.Error()})
			continue
		}
		commitPtr := &hash
		result, err := app.Criteria.MarkDone(cmd.Context(), id, commitPtr)
		if err != nil {
			app.Log.Warn("failed to mark criterion done after commit", "criterion_id", id, "error", err)
			criteriaResults = append(criteriaResults, map[string]any{"criterion_id": id, "warning": err.Error()})
			continue
		}
		criteriaResults = append(criteriaResults, map[string]any{"criterion": result.Criterion})
	}
	if criteriaResults != nil {
		out["criteria"] = criteriaResults
	}

	return finish(out, nil)
}
