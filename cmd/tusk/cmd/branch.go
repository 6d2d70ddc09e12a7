package cmd

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"tusk/internal/tuskerr"
)

var branchCmd = &cobra.Command{
	Use:   "branch <task-id> <slug>",
	Short: "Create feature/TASK-<id>-<slug> off the repo's default branch",
	Args:  cobra.ExactArgs(2),
	RunE:  runBranch,
}

func init() {
	rootCmd.AddCommand(branchCmd)
}

func runBranch(cmd *cobra.Command, args []string) error {
	app, closeApp, err := newApp(cmd.Context())
	if err != nil {
		return finish(nil, err)
	}
	defer closeApp()

	taskID, err := parseInt64("task id", args[0])
	if err != nil {
		return finish(nil, err)
	}
	slug := strings.TrimSpace(args[1])
	if slug == "" {
		return finish(nil, tuskerr.Validation("EMPTY_SLUG", "slug must not be empty"))
	}

	branchName := fmt.Sprintf("feature/TASK-%d-%s", taskID, slug)
	conflicts, err := app.VCS.CreateBranch(cmd.Context(), branchName)
	if err != nil {
		return finish(nil, tuskerr.External("GIT_BRANCH", "creating branch").WithCause(err))
	}

	out := map[string]any{"branch": branchName}
	if len(conflicts) > 0 {
		out["stash_pop_conflicts"] = conflicts
		conflictErr := tuskerr.External("STASH_POP_CONFLICT",
			"branch created but restoring stashed changes produced conflicts; resolve the files listed, git add them, then git stash drop").
			WithRecovery(strings.Join(conflicts, ", "))
		conflictErr.Outcome = out
		return finish(nil, conflictErr)
	}
	return finish(out, nil)
}
