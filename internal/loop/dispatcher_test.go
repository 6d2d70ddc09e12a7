package loop

import (
	"context"
	"database/sql"
	"path/filepath"
	"testing"

	"tusk/internal/config"
	"tusk/internal/logging"
	"tusk/internal/store"
	"tusk/internal/task"
)

func testConfig() *config.Config {
	return &config.Config{
		Statuses:      []string{"To Do", "In Progress", "Done"},
		Priorities:    []string{"P0", "P1", "P2", "P3"},
		ClosedReasons: []string{"completed", "wont_do", "duplicate", "expired"},
		TaskTypes:     []string{"feature", "bug", "chore"},
		Complexity:    []string{"XS", "S", "M", "L", "XL"},
		Loop: config.LoopConfig{
			MaxTasks:    5,
			ChainSkill:  "chain",
			TuskSkill:   "tusk",
			AgentBinary: "fake-agent",
			OnFailure:   "abort",
		},
	}
}

func newTestStore(t *testing.T) *store.Store {
	t.Helper()
	cfg := testConfig()
	dbPath := filepath.Join(t.TempDir(), "tusk.db")
	st, err := store.Open(context.Background(), dbPath, cfg.Statuses)
	if err != nil {
		t.Fatalf("store.Open() error = %v", err)
	}
	t.Cleanup(func() { _ = st.Close() })
	return st
}

func insertTask(t *testing.T, st *store.Store, summary string) int64 {
	t.Helper()
	ctx := context.Background()
	var id int64
	err := st.WithTx(ctx, func(tx *sql.Tx) error {
		newID, err := st.InsertTask(ctx, tx, store.NewTaskInput{
			Summary:  summary,
			Status:   "To Do",
			Priority: "P1",
			TaskType: "feature",
		})
		id = newID
		return err
	})
	if err != nil {
		t.Fatalf("insertTask(%q): %v", summary, err)
	}
	return id
}

type fakeRunner struct {
	calls  []int64
	exit   map[int64]int
	skills []string
}

func (f *fakeRunner) Run(ctx context.Context, agentBinary, skill string, taskID int64, onFailure string) (int, string, error) {
	f.calls = append(f.calls, taskID)
	f.skills = append(f.skills, skill)
	return f.exit[taskID], "", nil
}

func TestDispatcher_DispatchesReadyTasksUntilExhausted(t *testing.T) {
	st := newTestStore(t)
	cfg := testConfig()
	ctx := context.Background()

	id1 := insertTask(t, st, "Task one")
	id2 := insertTask(t, st, "Task two")

	taskEng := task.New(st, cfg, logging.NewNop())
	runner := &fakeRunner{exit: map[int64]int{id1: 0, id2: 0}}
	d := &Dispatcher{Store: st, Task: taskEng, Breaker: NewCircuitBreaker(2), Log: logging.NewNop(), Runner: runner}
	d.SetConfig(cfg)

	result, err := d.Run(ctx, 5)
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if result.StopReason != "no_ready_tasks" {
		t.Fatalf("expected no_ready_tasks stop reason, got %q", result.StopReason)
	}
	if len(result.Dispatched) != 2 {
		t.Fatalf("expected 2 dispatches, got %d: %+v", len(result.Dispatched), result.Dispatched)
	}
	if len(runner.calls) != 2 {
		t.Fatalf("expected runner invoked twice, got %d", len(runner.calls))
	}
}

func TestDispatcher_StopsAtMaxTasks(t *testing.T) {
	st := newTestStore(t)
	cfg := testConfig()
	ctx := context.Background()

	id1 := insertTask(t, st, "Task one")
	id2 := insertTask(t, st, "Task two")

	taskEng := task.New(st, cfg, logging.NewNop())
	runner := &fakeRunner{exit: map[int64]int{id1: 0, id2: 0}}
	d := &Dispatcher{Store: st, Task: taskEng, Breaker: NewCircuitBreaker(2), Log: logging.NewNop(), Runner: runner}
	d.SetConfig(cfg)

	result, err := d.Run(ctx, 1)
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if result.StopReason != "max_tasks_reached" {
		t.Fatalf("expected max_tasks_reached, got %q", result.StopReason)
	}
	if len(result.Dispatched) != 1 {
		t.Fatalf("expected 1 dispatch, got %d", len(result.Dispatched))
	}
}

func TestDispatcher_AbortsOnFailureByDefault(t *testing.T) {
	st := newTestStore(t)
	cfg := testConfig()
	ctx := context.Background()

	id1 := insertTask(t, st, "Task one")
	id2 := insertTask(t, st, "Task two")

	taskEng := task.New(st, cfg, logging.NewNop())
	runner := &fakeRunner{exit: map[int64]int{id1: 1, id2: 0}}
	d := &Dispatcher{Store: st, Task: taskEng, Breaker: NewCircuitBreaker(5), Log: logging.NewNop(), Runner: runner}
	d.SetConfig(cfg)

	result, err := d.Run(ctx, 5)
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if result.StopReason != "agent_aborted" {
		t.Fatalf("expected agent_aborted, got %q", result.StopReason)
	}
	if len(result.Dispatched) != 1 || !result.Dispatched[0].Failed {
		t.Fatalf("expected exactly 1 failed dispatch, got %+v", result.Dispatched)
	}
}

func TestDispatcher_SkipsPastFailureWhenConfigured(t *testing.T) {
	st := newTestStore(t)
	cfg := testConfig()
	cfg.Loop.OnFailure = "skip"
	ctx := context.Background()

	id1 := insertTask(t, st, "Task one")
	id2 := insertTask(t, st, "Task two")

	taskEng := task.New(st, cfg, logging.NewNop())
	runner := &fakeRunner{exit: map[int64]int{id1: 1, id2: 0}}
	d := &Dispatcher{Store: st, Task: taskEng, Breaker: NewCircuitBreaker(5), Log: logging.NewNop(), Runner: runner}
	d.SetConfig(cfg)

	result, err := d.Run(ctx, 5)
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if result.StopReason != "no_ready_tasks" {
		t.Fatalf("expected no_ready_tasks after skipping the failure, got %q", result.StopReason)
	}
	if len(result.Dispatched) != 2 {
		t.Fatalf("expected both tasks dispatched (one failed, one succeeded), got %d", len(result.Dispatched))
	}
}

func TestDispatcher_TripsCircuitBreakerAfterThreshold(t *testing.T) {
	st := newTestStore(t)
	cfg := testConfig()
	cfg.Loop.OnFailure = "skip"
	ctx := context.Background()

	id1 := insertTask(t, st, "Task one")
	id2 := insertTask(t, st, "Task two")
	id3 := insertTask(t, st, "Task three")

	taskEng := task.New(st, cfg, logging.NewNop())
	runner := &fakeRunner{exit: map[int64]int{id1: 1, id2: 1, id3: 0}}
	d := &Dispatcher{Store: st, Task: taskEng, Breaker: NewCircuitBreaker(2), Log: logging.NewNop(), Runner: runner}
	d.SetConfig(cfg)

	result, err := d.Run(ctx, 5)
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if result.StopReason != "circuit_open" {
		t.Fatalf("expected circuit_open after 2 consecutive failures, got %q", result.StopReason)
	}
	if len(result.Dispatched) != 2 {
		t.Fatalf("expected the breaker to stop dispatch after exactly 2 failures, got %d", len(result.Dispatched))
	}
}

func TestDispatcher_ClassifiesChainHeadSkill(t *testing.T) {
	st := newTestStore(t)
	cfg := testConfig()
	ctx := context.Background()

	upstream := insertTask(t, st, "Upstream head")
	downstream := insertTask(t, st, "Downstream dependent")
	if err := st.WithTx(ctx, func(tx *sql.Tx) error {
		return st.AddDependency(ctx, tx, downstream, upstream, "blocks")
	}); err != nil {
		t.Fatalf("AddDependency: %v", err)
	}

	taskEng := task.New(st, cfg, logging.NewNop())
	runner := &fakeRunner{exit: map[int64]int{upstream: 0}}
	d := &Dispatcher{Store: st, Task: taskEng, Breaker: NewCircuitBreaker(2), Log: logging.NewNop(), Runner: runner}
	d.SetConfig(cfg)

	result, err := d.Run(ctx, 1)
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if len(result.Dispatched) != 1 || result.Dispatched[0].Skill != "chain" {
		t.Fatalf("expected the chain head to dispatch via the chain skill, got %+v", result.Dispatched)
	}
}
