package validate

import (
	"context"
	"database/sql"
	"path/filepath"
	"testing"

	"tusk/internal/config"
	"tusk/internal/store"
	"tusk/internal/task"
)

func testConfig() *config.Config {
	return &config.Config{
		Statuses:      []string{"To Do", "In Progress", "Done"},
		Priorities:    []string{"P0", "P1", "P2", "P3"},
		ClosedReasons: []string{"completed", "wont_do", "duplicate", "expired"},
		Domains:       []string{"backend", "frontend"},
		TaskTypes:     []string{"feature", "bug", "chore"},
		Complexity:    []string{"XS", "S", "M", "L", "XL"},
		WSJF: config.WSJFConfig{
			PriorityWeight:   map[string]float64{"P0": 20, "P1": 13, "P2": 8, "P3": 3},
			ComplexityWeight: map[string]float64{"XS": 1, "S": 2, "M": 3, "L": 5, "XL": 8},
		},
	}
}

func newTestStore(t *testing.T) *store.Store {
	t.Helper()
	dbPath := filepath.Join(t.TempDir(), "tusk.db")
	st, err := store.Open(context.Background(), dbPath, testConfig().Statuses)
	if err != nil {
		t.Fatalf("store.Open() error = %v", err)
	}
	t.Cleanup(func() { _ = st.Close() })
	return st
}

func insertTask(t *testing.T, eng *task.Engine, summary string) int64 {
	t.Helper()
	res, err := eng.Insert(context.Background(), task.InsertInput{
		Summary:  summary,
		Priority: "P1",
		TaskType: "feature",
	})
	if err != nil {
		t.Fatalf("Insert: %v", err)
	}
	return res.Task.ID
}

func TestRun_CleanStoreReportsNothing(t *testing.T) {
	st := newTestStore(t)
	cfg := testConfig()
	eng := task.New(st, cfg, nil)
	insertTask(t, eng, "A clean task")

	report, err := New(st, cfg).Run(context.Background())
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if !report.Clean() {
		t.Fatalf("expected a clean report, got %+v", report)
	}
}

func TestRun_DetectsMissingClosedReason(t *testing.T) {
	st := newTestStore(t)
	cfg := testConfig()
	eng := task.New(st, cfg, nil)
	id := insertTask(t, eng, "Needs a closed_reason")

	err := st.WithTx(context.Background(), func(tx *sql.Tx) error {
		_, err := tx.ExecContext(context.Background(), `UPDATE tasks SET status = 'Done' WHERE id = ?`, id)
		return err
	})
	if err != nil {
		t.Fatalf("setup: %v", err)
	}

	report, err := New(st, cfg).Run(context.Background())
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if len(report.MissingClosedReason) != 1 || report.MissingClosedReason[0] != id {
		t.Fatalf("expected task %d flagged missing closed_reason, got %+v", id, report.MissingClosedReason)
	}
}

func TestRun_DetectsUnexpectedClosedReason(t *testing.T) {
	st := newTestStore(t)
	cfg := testConfig()
	eng := task.New(st, cfg, nil)
	id := insertTask(t, eng, "Has a closed_reason but is open")

	err := st.WithTx(context.Background(), func(tx *sql.Tx) error {
		_, err := tx.ExecContext(context.Background(), `UPDATE tasks SET closed_reason = 'completed' WHERE id = ?`, id)
		return err
	})
	if err != nil {
		t.Fatalf("setup: %v", err)
	}

	report, err := New(st, cfg).Run(context.Background())
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if len(report.UnexpectedClosedReason) != 1 || report.UnexpectedClosedReason[0] != id {
		t.Fatalf("expected task %d flagged with unexpected closed_reason, got %+v", id, report.UnexpectedClosedReason)
	}
}

func TestRun_DetectsExpiredNonTerminalTask(t *testing.T) {
	st := newTestStore(t)
	cfg := testConfig()
	eng := task.New(st, cfg, nil)
	id := insertTask(t, eng, "Expired a while ago")

	err := st.WithTx(context.Background(), func(tx *sql.Tx) error {
		_, err := tx.ExecContext(context.Background(), `UPDATE tasks SET expires_at = '2000-01-01T00:00:00Z' WHERE id = ?`, id)
		return err
	})
	if err != nil {
		t.Fatalf("setup: %v", err)
	}

	report, err := New(st, cfg).Run(context.Background())
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if len(report.ExpiredNonTerminal) != 1 || report.ExpiredNonTerminal[0] != id {
		t.Fatalf("expected task %d flagged expired, got %+v", id, report.ExpiredNonTerminal)
	}
}

func TestRun_DetectsDependencyCycle(t *testing.T) {
	st := newTestStore(t)
	cfg := testConfig()
	eng := task.New(st, cfg, nil)
	a := insertTask(t, eng, "A")
	b := insertTask(t, eng, "B")

	err := st.WithTx(context.Background(), func(tx *sql.Tx) error {
		if err := st.AddDependency(context.Background(), tx, a, b, "blocks"); err != nil {
			return err
		}
		_, err := tx.ExecContext(context.Background(),
			`INSERT INTO task_dependencies (task_id, depends_on_id, relationship_type) VALUES (?, ?, 'blocks')`, b, a)
		return err
	})
	if err != nil {
		t.Fatalf("setup: %v", err)
	}

	report, err := New(st, cfg).Run(context.Background())
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if len(report.DependencyCycle) == 0 {
		t.Fatal("expected a dependency cycle to be reported")
	}
}

func TestRun_DetectsOrphanedSessionsAndProgress(t *testing.T) {
	st := newTestStore(t)
	cfg := testConfig()
	eng := task.New(st, cfg, nil)
	id := insertTask(t, eng, "Will be deleted out from under its rows")

	var sessionID, progressID int64
	err := st.WithTx(context.Background(), func(tx *sql.Tx) error {
		res, err := tx.ExecContext(context.Background(),
			`INSERT INTO task_sessions (task_id, started_at) VALUES (?, datetime('now'))`, id)
		if err != nil {
			return err
		}
		sessionID, _ = res.LastInsertId()

		res, err = tx.ExecContext(context.Background(),
			`INSERT INTO task_progress (task_id, commit_hash, commit_message, created_at) VALUES (?, 'deadbeef', 'wip', datetime('now'))`, id)
		if err != nil {
			return err
		}
		progressID, _ = res.LastInsertId()

		// Disable enforcement only for this direct-SQL setup step, to
		// leave rows behind after the parent task row is removed.
		if _, err := tx.ExecContext(context.Background(), `PRAGMA defer_foreign_keys = ON`); err != nil {
			return err
		}
		_, err = tx.ExecContext(context.Background(), `DELETE FROM tasks WHERE id = ?`, id)
		return err
	})
	if err != nil {
		t.Fatalf("setup: %v", err)
	}

	report, err := New(st, cfg).Run(context.Background())
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if len(report.OrphanedSessions) != 1 || report.OrphanedSessions[0] != sessionID {
		t.Fatalf("expected orphaned session %d, got %+v", sessionID, report.OrphanedSessions)
	}
	if len(report.OrphanedProgress) != 1 || report.OrphanedProgress[0] != progressID {
		t.Fatalf("expected orphaned progress %d, got %+v", progressID, report.OrphanedProgress)
	}
}

func TestRun_DetectsEnumDrift(t *testing.T) {
	st := newTestStore(t)
	cfg := testConfig()
	eng := task.New(st, cfg, nil)
	id := insertTask(t, eng, "Priority will drift")

	err := st.WithTx(context.Background(), func(tx *sql.Tx) error {
		_, err := tx.ExecContext(context.Background(), `UPDATE tasks SET priority = 'P9' WHERE id = ?`, id)
		return err
	})
	if err != nil {
		t.Fatalf("setup: %v", err)
	}

	report, err := New(st, cfg).Run(context.Background())
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	found := false
	for _, v := range report.EnumViolations {
		if v.RowID == id && v.Column == "priority" && v.Value == "P9" {
			found = true
		}
	}
	if !found {
		t.Fatalf("expected a priority enum violation for task %d, got %+v", id, report.EnumViolations)
	}
}
