package policy

import (
	"context"
	"database/sql"
	"path/filepath"
	"testing"

	"tusk/internal/config"
	"tusk/internal/store"
)

func testConfig() *config.Config {
	return &config.Config{
		Statuses:      []string{"To Do", "In Progress", "Done"},
		Priorities:    []string{"P0", "P1", "P2", "P3"},
		ClosedReasons: []string{"completed", "wont_do", "duplicate", "expired"},
		TaskTypes:     []string{"feature", "bug", "chore"},
		Complexity:    []string{"XS", "S", "M", "L", "XL"},
		Dupes: config.DupesConfig{
			CheckThreshold:   0.82,
			SimilarThreshold: 0.6,
			StripPrefixes:    []string{"[Deferred]", "[Optional]"},
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

func insertOpenTask(t *testing.T, st *store.Store, summary string) int64 {
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
		t.Fatalf("insertOpenTask(%q): %v", summary, err)
	}
	return id
}

func TestCheckDuplicate_FindsNearMatch(t *testing.T) {
	st := newTestStore(t)
	cfg := testConfig()
	ctx := context.Background()

	insertOpenTask(t, st, "Fix the login redirect bug")

	eng := New(st, cfg)
	match, err := eng.CheckDuplicate(ctx, "Fix the login redirect bug")
	if err != nil {
		t.Fatalf("CheckDuplicate() error = %v", err)
	}
	if match == nil {
		t.Fatal("expected a duplicate match for an identical summary")
	}
}

func TestCheckDuplicate_NoMatchBelowThreshold(t *testing.T) {
	st := newTestStore(t)
	cfg := testConfig()
	ctx := context.Background()

	insertOpenTask(t, st, "Fix the login redirect bug")

	eng := New(st, cfg)
	match, err := eng.CheckDuplicate(ctx, "Add dark mode to the settings page")
	if err != nil {
		t.Fatalf("CheckDuplicate() error = %v", err)
	}
	if match != nil {
		t.Fatalf("expected no match for an unrelated summary, got %+v", match)
	}
}

func TestScanDupes_FindsPairAboveThreshold(t *testing.T) {
	st := newTestStore(t)
	cfg := testConfig()
	ctx := context.Background()

	insertOpenTask(t, st, "Fix the login redirect bug")
	insertOpenTask(t, st, "Fix the login redirect bug")
	insertOpenTask(t, st, "Add dark mode to the settings page")

	eng := New(st, cfg)
	pairs, err := eng.ScanDupes(ctx)
	if err != nil {
		t.Fatalf("ScanDupes() error = %v", err)
	}
	if len(pairs) != 1 {
		t.Fatalf("expected exactly one duplicate pair, got %d: %+v", len(pairs), pairs)
	}
}
