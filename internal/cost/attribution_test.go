package cost

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"testing"
	"time"

	"tusk/internal/config"
	"tusk/internal/logging"
	"tusk/internal/store"
)

func testConfig() *config.Config {
	return &config.Config{
		Statuses:      []string{"To Do", "In Progress", "Done"},
		Priorities:    []string{"P0", "P1", "P2", "P3"},
		ClosedReasons: []string{"completed", "wont_do", "duplicate", "expired"},
		TaskTypes:     []string{"feature", "bug", "chore"},
		Complexity:    []string{"XS", "S", "M", "L", "XL"},
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

func writeTranscriptLine(t *testing.T, dir, name string, requestID, timestamp, model string, inTok, outTok int64, tools []string) string {
	t.Helper()
	toolJSON := ""
	for i, name := range tools {
		if i > 0 {
			toolJSON += ","
		}
		toolJSON += fmt.Sprintf(`{"type":"tool_use","id":"t%d","name":%q}`, i, name)
	}
	line := fmt.Sprintf(`{"type":"assistant","timestamp":%q,"requestId":%q,"message":{"model":%q,"usage":{"input_tokens":%d,"output_tokens":%d},"content":[%s]}}`,
		timestamp, requestID, model, inTok, outTok, toolJSON)
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, []byte(line+"\n"), 0o644); err != nil {
		t.Fatalf("write transcript %s: %v", name, err)
	}
	return path
}

func TestEngine_AttributeSession_WritesSessionCostAndToolStats(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()
	taskID := insertOpenTask(t, st, "Wire up attribution")

	var sessionID int64
	err := st.WithTx(ctx, func(tx *sql.Tx) error {
		id, err := st.OpenSession(ctx, tx, taskID, nil)
		sessionID = id
		return err
	})
	if err != nil {
		t.Fatalf("OpenSession: %v", err)
	}
	if err := st.WithTx(ctx, func(tx *sql.Tx) error {
		return st.CloseSession(ctx, tx, sessionID)
	}); err != nil {
		t.Fatalf("CloseSession: %v", err)
	}

	sess, err := st.GetSession(ctx, sessionID)
	if err != nil {
		t.Fatalf("GetSession: %v", err)
	}

	dir := t.TempDir()
	mid := sess.StartedAt.Add(1 * time.Second).UTC().Format(time.RFC3339)
	writeTranscriptLine(t, dir, "a.jsonl", "req-1", mid, "claude-opus-4-6", 100, 20, []string{"Read", "Edit"})

	catalog := &Catalog{Models: map[string]Rates{"claude-opus-4-6": {Input: 3, Output: 15}}}
	eng := New(st, testConfig(), catalog, logging.NewNop())

	result, err := eng.AttributeSession(ctx, sessionID, dir)
	if err != nil {
		t.Fatalf("AttributeSession() error = %v", err)
	}
	if result.RequestCount != 1 {
		t.Fatalf("expected 1 request attributed, got %d", result.RequestCount)
	}
	if result.TokensIn != 100 || result.TokensOut != 20 {
		t.Fatalf("unexpected token totals: %+v", result)
	}
	wantDollars := round6(100.0/1_000_000*3 + 20.0/1_000_000*15)
	if result.Dollars != wantDollars {
		t.Fatalf("Dollars = %v, want %v", result.Dollars, wantDollars)
	}

	stats, err := st.ListToolCallStats(ctx, store.OwnerScope{SessionID: sessionID})
	if err != nil {
		t.Fatalf("ListToolCallStats: %v", err)
	}
	if len(stats) != 2 {
		t.Fatalf("expected 2 tool stat rows (Read, Edit), got %d: %+v", len(stats), stats)
	}
}

// TestEngine_AttributeCriterion_SharedCommitGroupSplitsIdentically covers
// the shared-commit-group path: two criteria completed against the same
// commit_hash must receive byte-identical (post-division) ToolCallStats
// rows, and the window's ToolCallEvent rows must be round-robined across
// them with no overlap, per spec.md 4.F/§8 scenario 6.
func TestEngine_AttributeCriterion_SharedCommitGroupSplitsIdentically(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()
	taskID := insertOpenTask(t, st, "Split cost across two criteria")

	var sessionID int64
	if err := st.WithTx(ctx, func(tx *sql.Tx) error {
		id, err := st.OpenSession(ctx, tx, taskID, nil)
		sessionID = id
		return err
	}); err != nil {
		t.Fatalf("OpenSession: %v", err)
	}
	if err := st.WithTx(ctx, func(tx *sql.Tx) error {
		return st.CloseSession(ctx, tx, sessionID)
	}); err != nil {
		t.Fatalf("CloseSession: %v", err)
	}
	sess, err := st.GetSession(ctx, sessionID)
	if err != nil {
		t.Fatalf("GetSession: %v", err)
	}

	var crit1, crit2 int64
	if err := st.WithTx(ctx, func(tx *sql.Tx) error {
		var err error
		crit1, err = st.InsertCriterion(ctx, tx, store.NewCriterionInput{TaskID: taskID, CriterionText: "first", Source: "manual", CriterionType: "functional"})
		if err != nil {
			return err
		}
		crit2, err = st.InsertCriterion(ctx, tx, store.NewCriterionInput{TaskID: taskID, CriterionText: "second", Source: "manual", CriterionType: "functional"})
		return err
	}); err != nil {
		t.Fatalf("InsertCriterion: %v", err)
	}

	commitHash := "abc1234"
	if err := st.WithTx(ctx, func(tx *sql.Tx) error {
		if err := st.MarkCriterionDone(ctx, tx, crit1, &commitHash); err != nil {
			return err
		}
		return st.MarkCriterionDone(ctx, tx, crit2, &commitHash)
	}); err != nil {
		t.Fatalf("MarkCriterionDone: %v", err)
	}

	dir := t.TempDir()
	base := sess.StartedAt.Add(1 * time.Second).UTC()
	writeTranscriptLine(t, dir, "a.jsonl", "req-1", base.Format(time.RFC3339), "claude-opus-4-6", 100, 20, []string{"Read"})
	writeTranscriptLine(t, dir, "b.jsonl", "req-2", base.Add(1*time.Second).Format(time.RFC3339), "claude-opus-4-6", 100, 20, []string{"Edit"})
	writeTranscriptLine(t, dir, "c.jsonl", "req-3", base.Add(2*time.Second).Format(time.RFC3339), "claude-opus-4-6", 100, 20, []string{"Read"})
	writeTranscriptLine(t, dir, "d.jsonl", "req-4", base.Add(3*time.Second).Format(time.RFC3339), "claude-opus-4-6", 100, 20, []string{"Edit"})

	catalog := &Catalog{Models: map[string]Rates{"claude-opus-4-6": {Input: 3, Output: 15}}}
	eng := New(st, testConfig(), catalog, logging.NewNop())

	if _, err := eng.AttributeCriterion(ctx, crit1, dir); err != nil {
		t.Fatalf("AttributeCriterion() error = %v", err)
	}

	stats1, err := st.ListToolCallStats(ctx, store.OwnerScope{CriterionID: crit1})
	if err != nil {
		t.Fatalf("ListToolCallStats(crit1): %v", err)
	}
	stats2, err := st.ListToolCallStats(ctx, store.OwnerScope{CriterionID: crit2})
	if err != nil {
		t.Fatalf("ListToolCallStats(crit2): %v", err)
	}
	if len(stats1) != 2 || len(stats2) != 2 {
		t.Fatalf("expected 2 tool stat rows per criterion (Read, Edit), got %d and %d", len(stats1), len(stats2))
	}
	if statsKey(stats1) != statsKey(stats2) {
		t.Fatalf("expected identical ToolCallStats rows across group members, got %+v vs %+v", stats1, stats2)
	}
	for _, row := range stats1 {
		if row.CallCount != 1 {
			t.Fatalf("tool %s: expected CallCount 1 (2 calls / 2 members), got %d", row.ToolName, row.CallCount)
		}
		if row.TokensIn != 100 || row.TokensOut != 20 {
			t.Fatalf("tool %s: expected tokens 100/20 after split, got %d/%d", row.ToolName, row.TokensIn, row.TokensOut)
		}
	}

	crit1Criterion, err := st.GetCriterion(ctx, crit1)
	if err != nil {
		t.Fatalf("GetCriterion(crit1): %v", err)
	}
	crit2Criterion, err := st.GetCriterion(ctx, crit2)
	if err != nil {
		t.Fatalf("GetCriterion(crit2): %v", err)
	}
	if crit1Criterion.CostDollars != crit2Criterion.CostDollars || crit1Criterion.TokensIn != crit2Criterion.TokensIn || crit1Criterion.TokensOut != crit2Criterion.TokensOut {
		t.Fatalf("expected identical split cost on both criteria, got %+v vs %+v", crit1Criterion, crit2Criterion)
	}
	if crit1Criterion.TokensIn != 200 || crit1Criterion.TokensOut != 40 {
		t.Fatalf("expected each criterion's split totals to be half of the combined window (400/80), got %d/%d", crit1Criterion.TokensIn, crit1Criterion.TokensOut)
	}

	events1, err := st.ListToolCallEvents(ctx, store.OwnerScope{CriterionID: crit1})
	if err != nil {
		t.Fatalf("ListToolCallEvents(crit1): %v", err)
	}
	events2, err := st.ListToolCallEvents(ctx, store.OwnerScope{CriterionID: crit2})
	if err != nil {
		t.Fatalf("ListToolCallEvents(crit2): %v", err)
	}
	if len(events1) != 2 || len(events2) != 2 {
		t.Fatalf("expected 2 events per member (4 total round-robined across 2 members), got %d and %d", len(events1), len(events2))
	}
	if events1[0].ToolName != events1[1].ToolName {
		t.Fatalf("expected a member's round-robined events to come from every other slot of the same tool, got %+v", events1)
	}
	if events2[0].ToolName != events2[1].ToolName {
		t.Fatalf("expected a member's round-robined events to come from every other slot of the same tool, got %+v", events2)
	}
	if events1[0].ToolName == events2[0].ToolName {
		t.Fatalf("expected the two members to receive disjoint round-robin slices (Read vs Edit), both got %s", events1[0].ToolName)
	}
}

// statsKey compares ToolCallStats rows ignoring ComputedAt, which is
// stamped independently per upsert call and so may legitimately differ
// by a few nanoseconds between two group members written in the same
// transaction.
func statsKey(rows []store.ToolCallStats) string {
	var key string
	for _, row := range rows {
		key += fmt.Sprintf("%s:%d:%v:%v:%d:%d|", row.ToolName, row.CallCount, row.TotalCost, row.MaxCost, row.TokensIn, row.TokensOut)
	}
	return key
}

func TestEngine_AttributeSession_NoRequestsInWindowLeavesZeroCost(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()
	taskID := insertOpenTask(t, st, "No transcript activity")

	var sessionID int64
	err := st.WithTx(ctx, func(tx *sql.Tx) error {
		id, err := st.OpenSession(ctx, tx, taskID, nil)
		sessionID = id
		return err
	})
	if err != nil {
		t.Fatalf("OpenSession: %v", err)
	}
	if err := st.WithTx(ctx, func(tx *sql.Tx) error {
		return st.CloseSession(ctx, tx, sessionID)
	}); err != nil {
		t.Fatalf("CloseSession: %v", err)
	}

	dir := t.TempDir()
	catalog := &Catalog{}
	eng := New(st, testConfig(), catalog, logging.NewNop())

	result, err := eng.AttributeSession(ctx, sessionID, dir)
	if err != nil {
		t.Fatalf("AttributeSession() error = %v", err)
	}
	if result.RequestCount != 0 || result.Dollars != 0 {
		t.Fatalf("expected zero-cost result for empty window, got %+v", result)
	}
}
