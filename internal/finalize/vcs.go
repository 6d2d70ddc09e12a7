// Package finalize implements Tusk's merge/finalize orchestrator (spec.md
// 4.I): an end-to-end task close that combines session lifecycle (4.D),
// task closure (4.B), and an external VCS, driven either in local
// fast-forward mode or PR-squash mode via the GitHub CLI.
package finalize

import (
	"bytes"
	"context"
	"fmt"
	"os/exec"
	"strings"
)

// VCS is the subset of version-control operations the orchestrator
// needs. Abstracted so tests can substitute a fake rather than shelling
// out to a real git checkout.
type VCS interface {
	ListBranches(ctx context.Context) ([]string, error)
	IsClean(ctx context.Context) (bool, error)
	DefaultBranch(ctx context.Context) (string, error)
	CheckoutBranch(ctx context.Context, name string) error
	Pull(ctx context.Context, remote, branch string) error
	MergeFastForward(ctx context.Context, branch string) error
	Push(ctx context.Context, remote, branch string) error
	DeleteBranch(ctx context.Context, name string) error
	MergePullRequest(ctx context.Context, prNumber int) error

	// Add stages files for commit (`commit` CLI command).
	Add(ctx context.Context, files []string) error
	// Commit commits the staged tree with message, returning the new
	// commit's short hash.
	Commit(ctx context.Context, message string) (string, error)
	// HeadCommit reports HEAD's short hash, subject line, and the files
	// it changed (`progress` CLI command).
	HeadCommit(ctx context.Context) (CommitInfo, error)
	// CreateBranch checks out the default branch, pulls it, and creates
	// newBranch off it, stashing and restoring any dirty working tree
	// around the checkout (`branch` CLI command). The returned
	// conflictFiles is non-empty only when restoring the stash conflicted;
	// the branch is still left created and checked out in that case.
	CreateBranch(ctx context.Context, newBranch string) (conflictFiles []string, err error)
}

// CommitInfo is HEAD's identity as `progress` records it.
type CommitInfo struct {
	Hash         string
	Message      string
	FilesChanged []string
}

// gitVCS shells out to the git and gh binaries, grounded on the
// teacher's git adapter: context-bound exec.CommandContext, combined
// stdout+stderr capture, no shell interpolation, argument validation
// before any value reaches argv.
type gitVCS struct {
	repoDir string
}

// NewGitVCS builds a VCS backed by the git/gh CLIs rooted at repoDir.
func NewGitVCS(repoDir string) VCS {
	return &gitVCS{repoDir: repoDir}
}

func (g *gitVCS) run(ctx context.Context, name string, args ...string) (string, error) {
	// #nosec G204 -- name is always "git" or "gh"; args are validated
	// branch/remote names or fixed flags, never raw user input.
	cmd := exec.CommandContext(ctx, name, args...)
	cmd.Dir = g.repoDir
	var out bytes.Buffer
	cmd.Stdout = &out
	cmd.Stderr = &out
	err := cmd.Run()
	return strings.TrimSpace(out.String()), err
}

func (g *gitVCS) ListBranches(ctx context.Context) ([]string, error) {
	out, err := g.run(ctx, "git", "branch", "--list", "--format=%(refname:short)")
	if err != nil {
		return nil, fmt.Errorf("git branch --list: %s: %w", out, err)
	}
	var branches []string
	for _, line := range strings.Split(out, "\n") {
		if line = strings.TrimSpace(line); line != "" {
			branches = append(branches, line)
		}
	}
	return branches, nil
}

func (g *gitVCS) IsClean(ctx context.Context) (bool, error) {
	out, err := g.run(ctx, "git", "status", "--porcelain")
	if err != nil {
		return false, fmt.Errorf("git status --porcelain: %s: %w", out, err)
	}
	return out == "", nil
}

// DefaultBranch mirrors the reference implementation's fallback chain:
// remote HEAD symref, then gh's view of the repo, then a literal "main".
func (g *gitVCS) DefaultBranch(ctx context.Context) (string, error) {
	_, _ = g.run(ctx, "git", "remote", "set-head", "origin", "--auto")
	if out, err := g.run(ctx, "git", "symbolic-ref", "refs/remotes/origin/HEAD"); err == nil && out != "" {
		return strings.TrimPrefix(out, "refs/remotes/origin/"), nil
	}
	if out, err := g.run(ctx, "gh", "repo", "view", "--json", "defaultBranchRef", "-q", ".defaultBranchRef.name"); err == nil && out != "" {
		return out, nil
	}
	return "main", nil
}

func (g *gitVCS) CheckoutBranch(ctx context.Context, name string) error {
	out, err := g.run(ctx, "git", "checkout", name)
	if err != nil {
		return fmt.Errorf("git checkout %s: %s: %w", name, out, err)
	}
	return nil
}

func (g *gitVCS) Pull(ctx context.Context, remote, branch string) error {
	out, err := g.run(ctx, "git", "pull", remote, branch)
	if err != nil {
		return fmt.Errorf("git pull %s %s: %s: %w", remote, branch, out, err)
	}
	return nil
}

func (g *gitVCS) MergeFastForward(ctx context.Context, branch string) error {
	out, err := g.run(ctx, "git", "merge", "--ff-only", branch)
	if err != nil {
		return fmt.Errorf("git merge --ff-only %s: %s: %w", branch, out, err)
	}
	return nil
}

func (g *gitVCS) Push(ctx context.Context, remote, branch string) error {
	out, err := g.run(ctx, "git", "push", remote, branch)
	if err != nil {
		return fmt.Errorf("git push %s %s: %s: %w", remote, branch, out, err)
	}
	return nil
}

func (g *gitVCS) DeleteBranch(ctx context.Context, name string) error {
	out, err := g.run(ctx, "git", "branch", "-d", name)
	if err != nil {
		return fmt.Errorf("git branch -d %s: %s: %w", name, out, err)
	}
	return nil
}

func (g *gitVCS) MergePullRequest(ctx context.Context, prNumber int) error {
	out, err := g.run(ctx, "gh", "pr", "merge", fmt.Sprintf("%d", prNumber), "--squash", "--delete-branch")
	if err != nil {
		return fmt.Errorf("gh pr merge: %s: %w", out, err)
	}
	return nil
}

func (g *gitVCS) Add(ctx context.Context, files []string) error {
	args := append([]string{"add"}, files...)
	out, err := g.run(ctx, "git", args...)
	if err != nil {
		return fmt.Errorf("git add: %s: %w", out, err)
	}
	return nil
}

func (g *gitVCS) Commit(ctx context.Context, message string) (string, error) {
	out, err := g.run(ctx, "git", "commit", "-m", message)
	if err != nil {
		return "", fmt.Errorf("git commit: %s: %w", out, err)
	}
	hash, hashErr := g.run(ctx, "git", "rev-parse", "--short", "HEAD")
	if hashErr != nil {
		return "", fmt.Errorf("git rev-parse --short HEAD: %s: %w", hash, hashErr)
	}
	return hash, nil
}

func (g *gitVCS) HeadCommit(ctx context.Context) (CommitInfo, error) {
	hash, err := g.run(ctx, "git", "rev-parse", "--short", "HEAD")
	if err != nil {
		return CommitInfo{}, fmt.Errorf("git rev-parse --short HEAD: %s: %w", hash, err)
	}
	message, err := g.run(ctx, "git", "log", "-1", "--pretty=%s")
	if err != nil {
		return CommitInfo{}, fmt.Errorf("git log -1: %s: %w", message, err)
	}
	filesOut, err := g.run(ctx, "git", "diff-tree", "--no-commit-id", "--name-only", "-r", "HEAD")
	if err != nil {
		return CommitInfo{}, fmt.Errorf("git diff-tree: %s: %w", filesOut, err)
	}
	var files []string
	for _, line := range strings.Split(filesOut, "\n") {
		if line = strings.TrimSpace(line); line != "" {
			files = append(files, line)
		}
	}
	return CommitInfo{Hash: hash, Message: message, FilesChanged: files}, nil
}

// CreateBranch is grounded on the reference branch tool's
// detect-default → stash-if-dirty → checkout+pull → checkout -b →
// stash-pop sequence. A stash-pop conflict is reported but not treated as
// fatal: the branch is already created and checked out, so the caller
// gets the conflict file list to resolve by hand.
func (g *gitVCS) CreateBranch(ctx context.Context, newBranch string) ([]string, error) {
	defaultBranch, err := g.DefaultBranch(ctx)
	if err != nil {
		return nil, err
	}

	clean, err := g.IsClean(ctx)
	if err != nil {
		return nil, err
	}
	if !clean {
		out, err := g.run(ctx, "git", "stash", "push", "-m", "tusk-branch: auto-stash for "+newBranch)
		if err != nil {
			return nil, fmt.Errorf("git stash push: %s: %w", out, err)
		}
	}

	if out, err := g.run(ctx, "git", "checkout", defaultBranch); err != nil {
		return nil, fmt.Errorf("git checkout %s: %s: %w", defaultBranch, out, err)
	}
	if out, err := g.run(ctx, "git", "pull", "origin", defaultBranch); err != nil {
		return nil, fmt.Errorf("git pull origin %s: %s: %w", defaultBranch, out, err)
	}
	if out, err := g.run(ctx, "git", "checkout", "-b", newBranch); err != nil {
		return nil, fmt.Errorf("git checkout -b %s: %s: %w", newBranch, out, err)
	}

	if !clean {
		if out, err := g.run(ctx, "git", "stash", "pop"); err != nil {
			_ = out
			conflictOut, _ := g.run(ctx, "git", "diff", "--name-only", "--diff-filter=U")
			var conflicts []string
			for _, line := range strings.Split(conflictOut, "\n") {
				if line = strings.TrimSpace(line); line != "" {
					conflicts = append(conflicts, line)
				}
			}
			return conflicts, nil
		}
	}
	return nil, nil
}
