package store

import (
	"context"
	"database/sql"
	"time"
)

// OwnerScope identifies which of session/skill-run/criterion a
// ToolCallStats or ToolCallEvent row is attributed to. Exactly one of the
// three ids is non-zero.
type OwnerScope struct {
	SessionID   int64
	SkillRunID  int64
	CriterionID int64
	TaskID      int64 // optional, set when known
}

// ToolCallStats mirrors tool_call_stats: one row per (owner, tool).
type ToolCallStats struct {
	ToolName   string
	CallCount  int64
	TotalCost  float64
	MaxCost    float64
	TokensIn   int64
	TokensOut  int64
	ComputedAt time.Time
}

// ToolCallEvent mirrors tool_call_events: one row per transcript tool call.
type ToolCallEvent struct {
	ToolName     string
	CostDollars  float64
	TokensIn     int64
	TokensOut    int64
	CallSequence int64
	CalledAt     time.Time
}

// UpsertToolCallStats replaces the stats row for (owner, tool.ToolName),
// per spec.md 4.F output 1's "unique on (owner_id, tool_name)" upsert rule.
func (s *Store) UpsertToolCallStats(ctx context.Context, tx *sql.Tx, owner OwnerScope, stat ToolCallStats) error {
	now := timeNow().UTC().Format(time.RFC3339)
	conflictCol, ownerArg := ownerConflictTarget(owner)
	query := `
		INSERT INTO tool_call_stats (session_id, skill_run_id, criterion_id, tool_name, call_count, total_cost, max_cost, tokens_in, tokens_out, computed_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(` + conflictCol + `, tool_name) WHERE ` + conflictCol + ` IS NOT NULL DO UPDATE SET
			call_count = excluded.call_count,
			total_cost = excluded.total_cost,
			max_cost = excluded.max_cost,
			tokens_in = excluded.tokens_in,
			tokens_out = excluded.tokens_out,
			computed_at = excluded.computed_at`
	_, err := tx.ExecContext(ctx, query,
		nullIfZero(owner.SessionID), nullIfZero(owner.SkillRunID), nullIfZero(owner.CriterionID),
		stat.ToolName, stat.CallCount, stat.TotalCost, stat.MaxCost, stat.TokensIn, stat.TokensOut, now)
	_ = ownerArg
	return classify(err, "upsert tool call stats")
}

// ReplaceToolCallEvents deletes every existing event for owner and
// reinserts events, re-sequencing call_sequence from 1. This gives
// attribution idempotence: re-running for the same owner reproduces the
// same rows (spec.md 4.F).
func (s *Store) ReplaceToolCallEvents(ctx context.Context, tx *sql.Tx, owner OwnerScope, events []ToolCallEvent) error {
	whereCol, whereArg := ownerWhereTarget(owner)
	if _, err := tx.ExecContext(ctx, `DELETE FROM tool_call_events WHERE `+whereCol+` = ?`, whereArg); err != nil {
		return classify(err, "delete tool call events")
	}

	var taskIDArg any
	if owner.TaskID != 0 {
		taskIDArg = owner.TaskID
	}

	for i, ev := range events {
		_, err := tx.ExecContext(ctx, `
			INSERT INTO tool_call_events (session_id, skill_run_id, criterion_id, task_id, tool_name, cost_dollars, tokens_in, tokens_out, call_sequence, called_at)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			nullIfZero(owner.SessionID), nullIfZero(owner.SkillRunID), nullIfZero(owner.CriterionID),
			taskIDArg, ev.ToolName, ev.CostDollars, ev.TokensIn, ev.TokensOut, int64(i+1),
			ev.CalledAt.UTC().Format(time.RFC3339))
		if err != nil {
			return classify(err, "insert tool call event")
		}
	}
	return nil
}

// ListToolCallStats returns every stats row for an owner.
func (s *Store) ListToolCallStats(ctx context.Context, owner OwnerScope) ([]ToolCallStats, error) {
	whereCol, whereArg := ownerWhereTarget(owner)
	rows, err := s.readDB.QueryContext(ctx, `
		SELECT tool_name, call_count, total_cost, max_cost, tokens_in, tokens_out, computed_at
		FROM tool_call_stats WHERE `+whereCol+` = ? ORDER BY tool_name`, whereArg)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []ToolCallStats
	for rows.Next() {
		var st ToolCallStats
		var computedAt string
		if err := rows.Scan(&st.ToolName, &st.CallCount, &st.TotalCost, &st.MaxCost, &st.TokensIn, &st.TokensOut, &computedAt); err != nil {
			return nil, err
		}
		st.ComputedAt, _ = parseTime(computedAt)
		out = append(out, st)
	}
	return out, rows.Err()
}

// ListToolCallEvents returns every event row for an owner, ordered by
// call_sequence (the order ReplaceToolCallEvents assigned on insert).
func (s *Store) ListToolCallEvents(ctx context.Context, owner OwnerScope) ([]ToolCallEvent, error) {
	whereCol, whereArg := ownerWhereTarget(owner)
	rows, err := s.readDB.QueryContext(ctx, `
		SELECT tool_name, cost_dollars, tokens_in, tokens_out, call_sequence, called_at
		FROM tool_call_events WHERE `+whereCol+` = ? ORDER BY call_sequence`, whereArg)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []ToolCallEvent
	for rows.Next() {
		var ev ToolCallEvent
		var calledAt string
		if err := rows.Scan(&ev.ToolName, &ev.CostDollars, &ev.TokensIn, &ev.TokensOut, &ev.CallSequence, &calledAt); err != nil {
			return nil, err
		}
		ev.CalledAt, _ = parseTime(calledAt)
		out = append(out, ev)
	}
	return out, rows.Err()
}

func ownerConflictTarget(owner OwnerScope) (string, int64) {
	switch {
	case owner.SessionID != 0:
		return "session_id", owner.SessionID
	case owner.SkillRunID != 0:
		return "skill_run_id", owner.SkillRunID
	default:
		return "criterion_id", owner.CriterionID
	}
}

func ownerWhereTarget(owner OwnerScope) (string, int64) {
	return ownerConflictTarget(owner)
}

func nullIfZero(id int64) any {
	if id == 0 {
		return nil
	}
	return id
}
