package policy

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"tusk/internal/store"
)

func TestRunAutoclose_ClosesExpiredDeferredTask(t *testing.T) {
	st := newTestStore(t)
	cfg := testConfig()
	ctx := context.Background()

	past := time.Now().UTC().Add(-48 * time.Hour)
	var id int64
	err := st.WithTx(ctx, func(tx *sql.Tx) error {
		newID, err := st.InsertTask(ctx, tx, store.NewTaskInput{
			Summary:    "[Deferred] Revisit pricing page copy",
			Status:     "To Do",
			Priority:   "P3",
			TaskType:   "chore",
			IsDeferred: true,
			ExpiresAt:  &past,
		})
		id = newID
		return err
	})
	if err != nil {
		t.Fatalf("insert deferred task: %v", err)
	}

	eng := New(st, cfg)
	result, err := eng.RunAutoclose(ctx)
	if err != nil {
		t.Fatalf("RunAutoclose() error = %v", err)
	}
	if len(result.ExpiredDeferredClosed) != 1 || result.ExpiredDeferredClosed[0] != id {
		t.Fatalf("expected task %d in ExpiredDeferredClosed, got %v", id, result.ExpiredDeferredClosed)
	}

	task, err := st.GetTask(ctx, id)
	if err != nil {
		t.Fatalf("GetTask: %v", err)
	}
	if task.Status != "Done" {
		t.Fatalf("expected status Done, got %q", task.Status)
	}
	if task.ClosedReason == nil || *task.ClosedReason != "expired" {
		t.Fatalf("expected closed_reason expired, got %v", task.ClosedReason)
	}
}

func TestRunAutoclose_CascadesMootContingent(t *testing.T) {
	st := newTestStore(t)
	cfg := testConfig()
	ctx := context.Background()

	upstream := insertOpenTask(t, st, "Decide whether to support legacy format")
	dependent := insertOpenTask(t, st, "Add legacy format importer")

	err := st.WithTx(ctx, func(tx *sql.Tx) error {
		if err := st.CloseTask(ctx, tx, upstream, "Done", "wont_do"); err != nil {
			return err
		}
		return st.AddDependency(ctx, tx, dependent, upstream, "contingent")
	})
	if err != nil {
		t.Fatalf("setup: %v", err)
	}

	eng := New(st, cfg)
	result, err := eng.RunAutoclose(ctx)
	if err != nil {
		t.Fatalf("RunAutoclose() error = %v", err)
	}
	if len(result.MootContingentClosed) != 1 || result.MootContingentClosed[0] != dependent {
		t.Fatalf("expected dependent %d moot-closed, got %v", dependent, result.MootContingentClosed)
	}

	task, err := st.GetTask(ctx, dependent)
	if err != nil {
		t.Fatalf("GetTask: %v", err)
	}
	if task.ClosedReason == nil || *task.ClosedReason != "wont_do" {
		t.Fatalf("expected closed_reason wont_do, got %v", task.ClosedReason)
	}
}
