package finalize

import (
	"context"
	"fmt"
	"path/filepath"
	"testing"

	"tusk/internal/config"
	"tusk/internal/logging"
	"tusk/internal/store"
	"tusk/internal/task"
)

func testConfig() *config.Config {
	return &config.Config{
		Statuses:       []string{"To Do", "In Progress", "Done"},
		Priorities:     []string{"P0", "P1", "P2", "P3"},
		ClosedReasons:  []string{"completed", "wont_do", "duplicate", "expired"},
		TaskTypes:      []string{"feature", "bug", "chore"},
		Complexity:     []string{"XS", "S", "M", "L", "XL"},
		CriterionTypes: []string{"manual", "code", "test", "file"},
		Dupes: config.DupesConfig{
			CheckThreshold:   0.82,
			SimilarThreshold: 0.6,
		},
		WSJF: config.WSJFConfig{
			PriorityWeight:   map[string]float64{"P0": 20, "P1": 13, "P2": 8, "P3": 3},
			ComplexityWeight: map[string]float64{"XS": 1, "S": 2, "M": 3, "L": 5, "XL": 8},
		},
		Merge: config.MergeConfig{Mode: "local"},
	}
}

func newTestEngine(t *testing.T) (*store.Store, *task.Engine) {
	t.Helper()
	dbPath := filepath.Join(t.TempDir(), "tusk.db")
	cfg := testConfig()
	st, err := store.Open(context.Background(), dbPath, cfg.Statuses)
	if err != nil {
		t.Fatalf("store.Open() error = %v", err)
	}
	t.Cleanup(func() { _ = st.Close() })
	return st, task.New(st, cfg, logging.NewNop())
}

type fakeVCS struct {
	branches      []string
	clean         bool
	defaultBranch string
	mergeErr      error
	pushErr       error
	pullErr       error
	prMergeErr    error
	checkouts     []string
	deletedBranch string
}

func (f *fakeVCS) ListBranches(ctx context.Context) ([]string, error) { return f.branches, nil }
func (f *fakeVCS) IsClean(ctx context.Context) (bool, error)          { return f.clean, nil }
func (f *fakeVCS) DefaultBranch(ctx context.Context) (string, error)  { return f.defaultBranch, nil }
func (f *fakeVCS) CheckoutBranch(ctx context.Context, name string) error {
	f.checkouts = append(f.checkouts, name)
	return nil
}
func (f *fakeVCS) Pull(ctx context.Context, remote, branch string) error { return f.pullErr }
func (f *fakeVCS) MergeFastForward(ctx context.Context, branch string) error { return f.mergeErr }
func (f *fakeVCS) Push(ctx context.Context, remote, branch string) error    { return f.pushErr }
func (f *fakeVCS) DeleteBranch(ctx context.Context, name string) error {
	f.deletedBranch = name
	return nil
}
func (f *fakeVCS) MergePullRequest(ctx context.Context, prNumber int) error { return f.prMergeErr }

func (f *fakeVCS) Add(ctx context.Context, files []string) error { return nil }
func (f *fakeVCS) Commit(ctx context.Context, message string) (string, error) {
	return "abc1234", nil
}
func (f *fakeVCS) HeadCommit(ctx context.Context) (CommitInfo, error) {
	return CommitInfo{Hash: "abc1234", Message: "test commit"}, nil
}
func (f *fakeVCS) CreateBranch(ctx context.Context, newBranch string) ([]string, error) {
	f.checkouts = append(f.checkouts, newBranch)
	return nil, nil
}

func TestFinalize_LocalMode_ForcesCloseOverIncompleteCriteria(t *testing.T) {
	st, eng := newTestEngine(t)
	ctx := context.Background()

	ins, err := eng.Insert(ctx, task.InsertInput{
		Summary:  "Ship the thing",
		Priority: "P1",
		TaskType: "feature",
		Criteria: []task.CriterionInput{{Text: "it works"}},
	})
	if err != nil {
		t.Fatalf("Insert: %v", err)
	}
	taskID := ins.Task.ID

	if _, err := eng.Start(ctx, taskID, false); err != nil {
		t.Fatalf("Start: %v", err)
	}

	vcs := &fakeVCS{
		branches:      []string{fmt.Sprintf("feature/TASK-%d-ship-it", taskID)},
		clean:         true,
		defaultBranch: "main",
	}

	orch := &Orchestrator{Store: st, Config: testConfig(), Task: eng, VCS: vcs, Log: logging.NewNop()}
	result, err := orch.Finalize(ctx, taskID, Options{})
	if err != nil {
		t.Fatalf("Finalize: %v", err)
	}
	if result.Task.Status != "Done" {
		t.Fatalf("expected task Done, got %q", result.Task.Status)
	}
	if result.MergeMode != "local" {
		t.Fatalf("expected local merge mode, got %q", result.MergeMode)
	}
	if vcs.deletedBranch != vcs.branches[0] {
		t.Fatalf("expected feature branch deleted, got %q", vcs.deletedBranch)
	}
}

func TestFinalize_NoBranchFails(t *testing.T) {
	st, eng := newTestEngine(t)
	ctx := context.Background()

	ins, err := eng.Insert(ctx, task.InsertInput{
		Summary:  "Ship another thing",
		Priority: "P1",
		TaskType: "feature",
		Criteria: []task.CriterionInput{{Text: "it works"}},
	})
	if err != nil {
		t.Fatalf("Insert: %v", err)
	}
	taskID := ins.Task.ID
	if _, err := eng.Start(ctx, taskID, false); err != nil {
		t.Fatalf("Start: %v", err)
	}

	vcs := &fakeVCS{branches: nil, clean: true, defaultBranch: "main"}
	orch := &Orchestrator{Store: st, Config: testConfig(), Task: eng, VCS: vcs, Log: logging.NewNop()}

	if _, err := orch.Finalize(ctx, taskID, Options{}); err == nil {
		t.Fatal("expected finalize to fail with no matching feature branch")
	}
}

func TestFinalize_DirtyWorktreeRefusesBeforeAnyMutation(t *testing.T) {
	st, eng := newTestEngine(t)
	ctx := context.Background()

	ins, err := eng.Insert(ctx, task.InsertInput{
		Summary:  "Ship a third thing",
		Priority: "P1",
		TaskType: "feature",
		Criteria: []task.CriterionInput{{Text: "it works"}},
	})
	if err != nil {
		t.Fatalf("Insert: %v", err)
	}
	taskID := ins.Task.ID
	start, err := eng.Start(ctx, taskID, false)
	if err != nil {
		t.Fatalf("Start: %v", err)
	}

	vcs := &fakeVCS{
		branches:      []string{fmt.Sprintf("feature/TASK-%d-ship-it", taskID)},
		clean:         false,
		defaultBranch: "main",
	}
	orch := &Orchestrator{Store: st, Config: testConfig(), Task: eng, VCS: vcs, Log: logging.NewNop()}

	if _, err := orch.Finalize(ctx, taskID, Options{}); err == nil {
		t.Fatal("expected finalize to refuse with a dirty working tree")
	}

	open, err := st.GetOpenSession(ctx, taskID)
	if err != nil {
		t.Fatalf("expected the session to remain open after a preflight failure: %v", err)
	}
	if open.ID != start.SessionID {
		t.Fatalf("expected untouched session %d, got %d", start.SessionID, open.ID)
	}
}

func TestFinalize_PRMode_RequiresPRNumber(t *testing.T) {
	st, eng := newTestEngine(t)
	ctx := context.Background()

	ins, err := eng.Insert(ctx, task.InsertInput{
		Summary:  "Ship via PR",
		Priority: "P1",
		TaskType: "feature",
		Criteria: []task.CriterionInput{{Text: "it works"}},
	})
	if err != nil {
		t.Fatalf("Insert: %v", err)
	}
	taskID := ins.Task.ID
	if _, err := eng.Start(ctx, taskID, false); err != nil {
		t.Fatalf("Start: %v", err)
	}

	vcs := &fakeVCS{branches: []string{fmt.Sprintf("feature/TASK-%d-pr", taskID)}, clean: true}
	orch := &Orchestrator{Store: st, Config: testConfig(), Task: eng, VCS: vcs, Log: logging.NewNop()}

	if _, err := orch.Finalize(ctx, taskID, Options{UsePR: true}); err == nil {
		t.Fatal("expected PR mode without --pr-number to fail validation")
	}
}

func TestFinalize_PRMode_MergesViaGH(t *testing.T) {
	st, eng := newTestEngine(t)
	ctx := context.Background()

	ins, err := eng.Insert(ctx, task.InsertInput{
		Summary:  "Ship via PR for real",
		Priority: "P1",
		TaskType: "feature",
		Criteria: []task.CriterionInput{{Text: "it works"}},
	})
	if err != nil {
		t.Fatalf("Insert: %v", err)
	}
	taskID := ins.Task.ID
	if _, err := eng.Start(ctx, taskID, false); err != nil {
		t.Fatalf("Start: %v", err)
	}

	vcs := &fakeVCS{branches: []string{fmt.Sprintf("feature/TASK-%d-pr", taskID)}, clean: true}
	orch := &Orchestrator{Store: st, Config: testConfig(), Task: eng, VCS: vcs, Log: logging.NewNop()}

	prNumber := 42
	result, err := orch.Finalize(ctx, taskID, Options{UsePR: true, PRNumber: &prNumber})
	if err != nil {
		t.Fatalf("Finalize: %v", err)
	}
	if result.MergeMode != "pr" {
		t.Fatalf("expected pr merge mode, got %q", result.MergeMode)
	}
	if result.Task.Status != "Done" {
		t.Fatalf("expected task Done, got %q", result.Task.Status)
	}
}
