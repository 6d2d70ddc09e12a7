package policy

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"tusk/internal/store"
)

func TestRunBacklogScan_FindsUnassignedAndUnsizedInitialTasks(t *testing.T) {
	st := newTestStore(t)
	cfg := testConfig()
	ctx := context.Background()

	sized := "M"
	assignee := "alice"
	var sizedAssigned int64
	err := st.WithTx(ctx, func(tx *sql.Tx) error {
		id, err := st.InsertTask(ctx, tx, store.NewTaskInput{
			Summary:    "Already triaged task",
			Status:     "To Do",
			Priority:   "P1",
			TaskType:   "feature",
			Complexity: &sized,
			Assignee:   &assignee,
		})
		sizedAssigned = id
		return err
	})
	if err != nil {
		t.Fatalf("insert sized/assigned task: %v", err)
	}
	bare := insertOpenTask(t, st, "Freshly filed task")

	eng := New(st, cfg)
	scan, err := eng.RunBacklogScan(ctx, BacklogScanRequest{Unassigned: true, Unsized: true})
	if err != nil {
		t.Fatalf("RunBacklogScan() error = %v", err)
	}
	if scan.Duplicates != nil {
		t.Fatalf("expected Duplicates to be nil when not requested, got %v", scan.Duplicates)
	}

	if len(scan.Unassigned) != 1 || scan.Unassigned[0].ID != bare {
		t.Fatalf("expected only task %d unassigned, got %+v", bare, scan.Unassigned)
	}
	if len(scan.Unsized) != 1 || scan.Unsized[0].ID != bare {
		t.Fatalf("expected only task %d unsized, got %+v", bare, scan.Unsized)
	}
	_ = sizedAssigned
}

func TestRunBacklogScan_ExpiredCoversAnyNonTerminalStatus(t *testing.T) {
	st := newTestStore(t)
	cfg := testConfig()
	ctx := context.Background()

	past := time.Now().UTC().Add(-time.Hour)
	var id int64
	err := st.WithTx(ctx, func(tx *sql.Tx) error {
		newID, err := st.InsertTask(ctx, tx, store.NewTaskInput{
			Summary:   "In flight but past due",
			Status:    "In Progress",
			Priority:  "P2",
			TaskType:  "feature",
			ExpiresAt: &past,
		})
		id = newID
		return err
	})
	if err != nil {
		t.Fatalf("insert: %v", err)
	}

	eng := New(st, cfg)
	scan, err := eng.RunBacklogScan(ctx, BacklogScanRequest{Expired: true})
	if err != nil {
		t.Fatalf("RunBacklogScan() error = %v", err)
	}
	if len(scan.Expired) != 1 || scan.Expired[0].ID != id {
		t.Fatalf("expected task %d in Expired, got %+v", id, scan.Expired)
	}
}
