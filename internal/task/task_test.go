package task

import (
	"context"
	"path/filepath"
	"testing"

	"tusk/internal/config"
	"tusk/internal/store"
)

func testConfig() *config.Config {
	return &config.Config{
		Statuses:       []string{"To Do", "In Progress", "Done"},
		Priorities:     []string{"P0", "P1", "P2", "P3"},
		ClosedReasons:  []string{"completed", "wont_do", "duplicate", "expired"},
		Domains:        []string{"backend", "frontend"},
		TaskTypes:      []string{"feature", "bug", "chore"},
		Complexity:     []string{"XS", "S", "M", "L", "XL"},
		Agents:         map[string]string{"claude": "claude", "human": "human"},
		CriterionTypes: []string{"manual", "code", "test", "file"},
		Dupes: config.DupesConfig{
			CheckThreshold:   0.82,
			SimilarThreshold: 0.6,
			StripPrefixes:    []string{"[Deferred]", "[Optional]"},
		},
		WSJF: config.WSJFConfig{
			PriorityWeight:   map[string]float64{"P0": 20, "P1": 13, "P2": 8, "P3": 3},
			ComplexityWeight: map[string]float64{"XS": 1, "S": 2, "M": 3, "L": 5, "XL": 8},
		},
	}
}

func newTestEngine(t *testing.T) *Engine {
	t.Helper()
	dbPath := filepath.Join(t.TempDir(), "tusk.db")
	cfg := testConfig()
	st, err := store.Open(context.Background(), dbPath, cfg.Statuses)
	if err != nil {
		t.Fatalf("store.Open() error = %v", err)
	}
	t.Cleanup(func() { _ = st.Close() })
	return New(st, cfg, nil)
}

func insertTestTask(t *testing.T, e *Engine, summary string) int64 {
	t.Helper()
	res, err := e.Insert(context.Background(), InsertInput{
		Summary:  summary,
		Priority: "P1",
		TaskType: "feature",
		Criteria: []CriterionInput{{Text: "it works"}},
	})
	if err != nil {
		t.Fatalf("Insert(%q) error = %v", summary, err)
	}
	return res.Task.ID
}

func TestInsert_RejectsDuplicate(t *testing.T) {
	e := newTestEngine(t)
	ctx := context.Background()

	insertTestTask(t, e, "Add support for webhook retries")

	_, err := e.Insert(ctx, InsertInput{
		Summary:  "Add support for webhook retries",
		Priority: "P1",
		TaskType: "feature",
		Criteria: []CriterionInput{{Text: "it works"}},
	})
	if err == nil {
		t.Fatal("expected duplicate-task error, got nil")
	}
}

func TestInsert_RejectsUnknownPriority(t *testing.T) {
	e := newTestEngine(t)
	_, err := e.Insert(context.Background(), InsertInput{
		Summary:  "Some task",
		Priority: "P9",
		TaskType: "feature",
		Criteria: []CriterionInput{{Text: "it works"}},
	})
	if err == nil {
		t.Fatal("expected invalid-enum error for unknown priority")
	}
}

func TestClose_RefusesIncompleteCriteriaWithoutForce(t *testing.T) {
	e := newTestEngine(t)
	ctx := context.Background()
	id := insertTestTask(t, e, "Ship the thing")

	_, err := e.Close(ctx, id, "completed", false)
	if err == nil {
		t.Fatal("expected close to be refused with incomplete criteria")
	}

	result, err := e.Close(ctx, id, "completed", true)
	if err != nil {
		t.Fatalf("forced close error = %v", err)
	}
	if result.Task.Status != "Done" {
		t.Fatalf("expected status Done, got %q", result.Task.Status)
	}
}

func TestCloseSession_EndsOpenSessionWithoutClosingTask(t *testing.T) {
	e := newTestEngine(t)
	ctx := context.Background()
	id := insertTestTask(t, e, "Work a session")

	start, err := e.Start(ctx, id, false)
	if err != nil {
		t.Fatalf("Start: %v", err)
	}

	result, err := e.CloseSession(ctx, id)
	if err != nil {
		t.Fatalf("CloseSession: %v", err)
	}
	if result.SessionID != start.SessionID {
		t.Fatalf("expected to close session %d, closed %d", start.SessionID, result.SessionID)
	}
	if result.Task.Status != "In Progress" {
		t.Fatalf("expected task status untouched, got %q", result.Task.Status)
	}

	if _, err := e.CloseSession(ctx, id); err == nil {
		t.Fatal("expected closing an already-closed session to fail")
	}
}

func TestReopen_RequiresForce(t *testing.T) {
	e := newTestEngine(t)
	ctx := context.Background()
	id := insertTestTask(t, e, "Reopen me")
	if _, err := e.Close(ctx, id, "wont_do", true); err != nil {
		t.Fatalf("close: %v", err)
	}

	if _, err := e.Reopen(ctx, id, false); err == nil {
		t.Fatal("expected reopen without --force to be refused")
	}

	task, err := e.Reopen(ctx, id, true)
	if err != nil {
		t.Fatalf("forced reopen error = %v", err)
	}
	if task.Status != "To Do" {
		t.Fatalf("expected status To Do after reopen, got %q", task.Status)
	}
	if task.ClosedReason != nil {
		t.Fatalf("expected closed_reason cleared, got %v", *task.ClosedReason)
	}
}

func TestAddDependency_RejectsCycle(t *testing.T) {
	e := newTestEngine(t)
	ctx := context.Background()
	a := insertTestTask(t, e, "Task A")
	b := insertTestTask(t, e, "Task B")

	if err := e.AddDependency(ctx, a, b, "blocks"); err != nil {
		t.Fatalf("AddDependency a->b: %v", err)
	}
	if err := e.AddDependency(ctx, b, a, "blocks"); err == nil {
		t.Fatal("expected cycle rejection for b->a after a->b")
	}
}

func TestAddDependency_RejectsSelfLoop(t *testing.T) {
	e := newTestEngine(t)
	ctx := context.Background()
	a := insertTestTask(t, e, "Solo task")

	if err := e.AddDependency(ctx, a, a, "blocks"); err == nil {
		t.Fatal("expected self-dependency to be rejected")
	}
}

func TestSelect_SkipsExcludedTasks(t *testing.T) {
	e := newTestEngine(t)
	ctx := context.Background()
	a := insertTestTask(t, e, "First ready task")
	_ = insertTestTask(t, e, "Second ready task")

	excluded := map[int64]bool{a: true}
	chosen, err := e.Select(ctx, "", excluded)
	if err != nil {
		t.Fatalf("Select() error = %v", err)
	}
	if chosen.ID == a {
		t.Fatalf("expected excluded task %d not to be selected", a)
	}
}

func TestRescoreAll_IsDeterministic(t *testing.T) {
	e := newTestEngine(t)
	ctx := context.Background()
	insertTestTask(t, e, "A task")
	insertTestTask(t, e, "Another task")

	n, err := e.RescoreAll(ctx)
	if err != nil {
		t.Fatalf("RescoreAll() error = %v", err)
	}
	if n != 2 {
		t.Fatalf("expected 2 tasks rescored, got %d", n)
	}
}
