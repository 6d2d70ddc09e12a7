package store

import (
	"context"
	"database/sql"
	"path/filepath"
	"testing"
)

var testStatuses = []string{"To Do", "In Progress", "Done"}

func openTestStore(t *testing.T) *Store {
	t.Helper()
	dbPath := filepath.Join(t.TempDir(), "tusk.db")
	s, err := Open(context.Background(), dbPath, testStatuses)
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestOpen_CreatesSchema(t *testing.T) {
	s := openTestStore(t)

	var count int
	err := s.ReadDB().QueryRow(`SELECT COUNT(*) FROM sqlite_master WHERE type = 'table' AND name = 'tasks'`).Scan(&count)
	if err != nil {
		t.Fatalf("querying sqlite_master: %v", err)
	}
	if count != 1 {
		t.Fatalf("expected tasks table to exist, got count = %d", count)
	}
}

func TestOpen_SyncsStatusOrder(t *testing.T) {
	s := openTestStore(t)

	rows, err := s.ReadDB().Query(`SELECT status, rank, is_terminal FROM status_order ORDER BY rank`)
	if err != nil {
		t.Fatalf("querying status_order: %v", err)
	}
	defer rows.Close()

	var got []string
	var terminalSeen bool
	for rows.Next() {
		var status string
		var rank, isTerminal int
		if err := rows.Scan(&status, &rank, &isTerminal); err != nil {
			t.Fatalf("scan: %v", err)
		}
		got = append(got, status)
		if isTerminal == 1 {
			terminalSeen = true
			if status != "Done" {
				t.Errorf("expected terminal status to be Done, got %q", status)
			}
		}
	}
	if len(got) != len(testStatuses) {
		t.Fatalf("expected %d statuses, got %d (%v)", len(testStatuses), len(got), got)
	}
	if !terminalSeen {
		t.Fatal("expected exactly one terminal status")
	}
}

func TestInsertTask_RejectsTerminalWithoutClosedReason(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	err := s.WithTx(ctx, func(tx *sql.Tx) error {
		_, insertErr := s.InsertTask(ctx, tx, NewTaskInput{
			Summary:  "a task",
			Status:   "Done",
			Priority: "P1",
			TaskType: "feature",
		})
		return insertErr
	})
	if err == nil {
		t.Fatal("expected an error inserting a terminal task without closed_reason")
	}
}

func TestCloseTask_RejectsBackwardTransition(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	var id int64
	err := s.WithTx(ctx, func(tx *sql.Tx) error {
		var insertErr error
		id, insertErr = s.InsertTask(ctx, tx, NewTaskInput{
			Summary:  "a task",
			Status:   "To Do",
			Priority: "P1",
			TaskType: "feature",
		})
		return insertErr
	})
	if err != nil {
		t.Fatalf("insert task: %v", err)
	}

	err = s.WithTx(ctx, func(tx *sql.Tx) error {
		return s.CloseTask(ctx, tx, id, "Done", "completed")
	})
	if err != nil {
		t.Fatalf("close task: %v", err)
	}

	err = s.WithTx(ctx, func(tx *sql.Tx) error {
		closedReason := ""
		return s.UpdateTask(ctx, tx, id, TaskUpdate{GithubPR: ptrToPtr(&closedReason)})
	})
	if err != nil {
		t.Fatalf("unrelated update after close: %v", err)
	}

	err = s.WithTx(ctx, func(tx *sql.Tx) error {
		_, execErr := tx.ExecContext(ctx, `UPDATE tasks SET status = 'To Do' WHERE id = ?`, id)
		return execErr
	})
	if err == nil {
		t.Fatal("expected backward status transition to be rejected by the trigger")
	}
}

func ptrToPtr(s *string) **string { return &s }
