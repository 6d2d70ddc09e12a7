package finalize

import (
	"context"
	"fmt"
	"strings"

	"tusk/internal/config"
	"tusk/internal/cost"
	"tusk/internal/logging"
	"tusk/internal/store"
	"tusk/internal/task"
	"tusk/internal/tuskerr"
)

// Options carries the flags a finalize/merge invocation accepts.
type Options struct {
	SessionID *int64 // explicit session override; nil triggers auto-detection
	UsePR     bool   // forces PR-squash mode even if config says local
	PRNumber  *int   // required when UsePR (directly or via config) is true
}

// Result is the JSON-printable outcome of a finalize run.
type Result struct {
	TaskID          int64        `json:"task_id"`
	Branch          string       `json:"branch"`
	SessionClosed   int64        `json:"session_closed"`
	MergeMode       string       `json:"merge_mode"`
	Task            *store.Task  `json:"task"`
	NewlyReadyTasks []int64      `json:"newly_ready_tasks"`
	CostResult      *cost.Result `json:"session_cost,omitempty"`
	CostError       string       `json:"session_cost_error,omitempty"`
}

// Orchestrator drives the end-to-end close described by spec.md 4.I.
type Orchestrator struct {
	Store         *store.Store
	Config        *config.Config
	Task          *task.Engine
	Cost          *cost.Engine
	TranscriptDir string
	VCS           VCS
	Log           *logging.Logger
}

// New builds an Orchestrator backed by a real git/gh VCS rooted at repoDir.
func New(st *store.Store, cfg *config.Config, taskEngine *task.Engine, costEngine *cost.Engine, transcriptDir, repoDir string, log *logging.Logger) *Orchestrator {
	if log == nil {
		log = logging.NewNop()
	}
	return &Orchestrator{
		Store: st, Config: cfg, Task: taskEngine, Cost: costEngine,
		TranscriptDir: transcriptDir, VCS: NewGitVCS(repoDir), Log: log,
	}
}

// Finalize runs the full close: preflight, session close (+ best-effort
// cost attribution), merge, task close, and a summary of newly-ready
// dependents. Any failure once the session has been closed leaves the
// repository with a closed session and an open task; the returned error
// carries operator recovery text per spec.md 4.I.
func (o *Orchestrator) Finalize(ctx context.Context, taskID int64, opts Options) (*Result, error) {
	branch, err := o.findTaskBranch(ctx, taskID)
	if err != nil {
		return nil, err
	}

	usePR := opts.UsePR || o.Config.Merge.Mode == "pr"
	if usePR && opts.PRNumber == nil {
		return nil, tuskerr.Validation("pr_number_required", "--pr-number is required when using PR mode")
	}

	if !usePR {
		clean, err := o.VCS.IsClean(ctx)
		if err != nil {
			return nil, tuskerr.External("vcs_status_failed", "could not check working tree status").WithCause(err)
		}
		if !clean {
			return nil, tuskerr.PolicyGatedStrict("dirty_worktree", "working tree has uncommitted changes; cannot proceed with merge").
				WithRecovery("stash or commit your changes first:\n  git stash\n  git stash pop\n  git add . && git commit -m 'wip'")
		}
	}

	sessionID, err := o.resolveSession(ctx, taskID, opts.SessionID)
	if err != nil {
		return nil, err
	}

	result := &Result{TaskID: taskID, Branch: branch, SessionClosed: sessionID}
	if usePR {
		result.MergeMode = "pr"
	} else {
		result.MergeMode = "local"
	}

	// Step: close the session. Past this point any failure leaves a
	// closed session and an open task, per spec.md 4.I.
	if _, err := o.Task.CloseSession(ctx, taskID); err != nil {
		if tErr, ok := err.(*tuskerr.Error); ok && tErr.Code == "no_open_session" {
			o.Log.Warn("session already closed, continuing", "session_id", sessionID)
		} else {
			return nil, err
		}
	}
	if o.Cost != nil && o.TranscriptDir != "" {
		costResult, err := o.Cost.AttributeSession(ctx, sessionID, o.TranscriptDir)
		if err != nil {
			o.Log.Warn("session cost attribution failed", "session_id", sessionID, "error", err)
			result.CostError = err.Error()
		} else {
			result.CostResult = &costResult
		}
	}

	if usePR {
		if err := o.VCS.MergePullRequest(ctx, *opts.PRNumber); err != nil {
			return result, tuskerr.External("pr_merge_failed", "gh pr merge failed").WithCause(err).
				WithRecovery(fmt.Sprintf("retry manually: gh pr merge %d --squash --delete-branch", *opts.PRNumber))
		}
	} else {
		if err := o.mergeLocal(ctx, branch); err != nil {
			return result, err
		}
	}

	task, newlyReady, err := o.closeTask(ctx, taskID)
	if err != nil {
		return result, err
	}
	result.Task = task
	result.NewlyReadyTasks = newlyReady
	return result, nil
}

func (o *Orchestrator) mergeLocal(ctx context.Context, branch string) error {
	defaultBranch, err := o.VCS.DefaultBranch(ctx)
	if err != nil {
		return tuskerr.External("default_branch_failed", "could not determine default branch").WithCause(err)
	}

	if err := o.VCS.CheckoutBranch(ctx, defaultBranch); err != nil {
		return tuskerr.External("checkout_failed", "git checkout "+defaultBranch+" failed").WithCause(err)
	}

	if err := o.VCS.Pull(ctx, "origin", defaultBranch); err != nil {
		_ = o.VCS.CheckoutBranch(ctx, branch)
		return tuskerr.External("pull_failed", "git pull failed").WithCause(err).
			WithRecovery("the feature branch has been restored; resolve the pull failure and retry")
	}

	if err := o.VCS.MergeFastForward(ctx, branch); err != nil {
		_ = o.VCS.CheckoutBranch(ctx, branch)
		return tuskerr.External("ff_merge_failed", "git merge --ff-only "+branch+" failed").WithCause(err).
			WithRecovery("rebase the branch onto " + defaultBranch + " first, or finalize with --pr for a squash merge")
	}

	if err := o.VCS.Push(ctx, "origin", defaultBranch); err != nil {
		return tuskerr.External("push_failed", "git push failed").WithCause(err).
			WithRecovery(fmt.Sprintf("the branch has been merged locally but not pushed.\n  Retry: git push origin %s\n  Undo:  git reset --hard HEAD~1 && git checkout %s", defaultBranch, branch))
	}

	if err := o.VCS.DeleteBranch(ctx, branch); err != nil {
		o.Log.Warn("branch delete failed, continuing", "branch", branch, "error", err)
	}
	return nil
}

// closeTask closes the task, surfacing incomplete-criteria warnings and
// retrying with force per spec.md 4.I's "retry with --force only after
// surfacing any warnings" rule.
func (o *Orchestrator) closeTask(ctx context.Context, taskID int64) (*store.Task, []int64, error) {
	res, err := o.Task.Close(ctx, taskID, "completed", false)
	if err != nil {
		if tuskerr.IsForceable(err) {
			o.Log.Warn("closing with incomplete criteria", "task_id", taskID, "error", err)
			res, err = o.Task.Close(ctx, taskID, "completed", true)
			if err != nil {
				return nil, nil, err
			}
		} else {
			return nil, nil, err
		}
	}
	return res.Task, res.NewlyReadyTasks, nil
}

// findTaskBranch locates the single feature/TASK-<id>-* branch, per
// spec.md 4.I's preflight contract.
func (o *Orchestrator) findTaskBranch(ctx context.Context, taskID int64) (string, error) {
	branches, err := o.VCS.ListBranches(ctx)
	if err != nil {
		return "", tuskerr.External("list_branches_failed", "could not list git branches").WithCause(err)
	}
	prefix := fmt.Sprintf("feature/TASK-%d-", taskID)
	var matches []string
	for _, b := range branches {
		if strings.HasPrefix(b, prefix) {
			matches = append(matches, b)
		}
	}
	switch len(matches) {
	case 0:
		return "", tuskerr.PolicyGatedStrict("branch_not_found", fmt.Sprintf("no branch found matching %s*", prefix))
	case 1:
		return matches[0], nil
	default:
		return "", tuskerr.PolicyGatedStrict("ambiguous_branch",
			fmt.Sprintf("multiple branches found for task %d: %s; delete all but one first", taskID, strings.Join(matches, ", ")))
	}
}

// resolveSession implements spec.md 4.I's session auto-detection: an
// explicit session id always wins; otherwise exactly one open session is
// used, zero open but a closed one exists falls back to the most recent
// closed session with a warning, zero sessions at all is an error, and
// more than one open session is an error listing them all.
func (o *Orchestrator) resolveSession(ctx context.Context, taskID int64, explicit *int64) (int64, error) {
	if explicit != nil {
		return *explicit, nil
	}

	sessions, err := o.Store.ListSessionsForTask(ctx, taskID)
	if err != nil {
		return 0, err
	}

	var open []*store.TaskSession
	var closed []*store.TaskSession
	for _, s := range sessions {
		if s.EndedAt == nil {
			open = append(open, s)
		} else {
			closed = append(closed, s)
		}
	}

	switch {
	case len(open) == 1:
		return open[0].ID, nil
	case len(open) > 1:
		ids := make([]string, len(open))
		for i, s := range open {
			ids[i] = fmt.Sprintf("%d", s.ID)
		}
		return 0, tuskerr.PolicyGatedStrict("multiple_open_sessions",
			fmt.Sprintf("multiple open sessions found for task %d: %s; close all but one or pass --session", taskID, strings.Join(ids, ", ")))
	case len(closed) > 0:
		o.Log.Warn("no open session, falling back to most recent closed session", "task_id", taskID, "session_id", closed[0].ID)
		return closed[0].ID, nil
	default:
		return 0, tuskerr.PolicyGatedStrict("no_session", fmt.Sprintf("no session found for task %d; start one with task-start or pass --session", taskID))
	}
}
