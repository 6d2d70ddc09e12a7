package store

import (
	"context"
	"database/sql"
	"time"
)

// TaskSession mirrors task_sessions.
type TaskSession struct {
	ID              int64
	TaskID          int64
	StartedAt       time.Time
	EndedAt         *time.Time
	DurationSeconds *int64
	LinesAdded      int64
	LinesRemoved    int64
	CostDollars     float64
	TokensIn        int64
	TokensOut       int64
	Model           *string
	AgentName       *string
}

const sessionSelectColumns = `SELECT id, task_id, started_at, ended_at, duration_seconds,
	lines_added, lines_removed, cost_dollars, tokens_in, tokens_out, model, agent_name`

// execer is satisfied by both *sql.Tx and *sql.DB, so session-closing
// helpers can run either inside an ordinary transaction or directly
// against the single write connection the reopen path already holds a
// BEGIN IMMEDIATE on (see Store.WithReopenTx).
type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// OpenSession creates a new session row for a task. Under concurrent
// task-start calls, the partial unique index on (task_id) WHERE ended_at
// IS NULL rejects the losing insert; callers should check
// store.IsSessionSlotRace on error and fall back to GetOpenSession.
func (s *Store) OpenSession(ctx context.Context, tx *sql.Tx, taskID int64, agentName *string) (int64, error) {
	now := timeNow().UTC().Format(time.RFC3339)
	res, err := tx.ExecContext(ctx, `
		INSERT INTO task_sessions (task_id, started_at, agent_name) VALUES (?, ?, ?)`,
		taskID, now, agentName)
	if err != nil {
		return 0, classify(err, "open session")
	}
	return res.LastInsertId()
}

// GetOpenSession returns the currently open session for a task, if any.
func (s *Store) GetOpenSession(ctx context.Context, taskID int64) (*TaskSession, error) {
	row := s.readDB.QueryRowContext(ctx, sessionSelectColumns+`
		FROM task_sessions WHERE task_id = ? AND ended_at IS NULL`, taskID)
	return scanSession(row)
}

// GetOpenSessionTx is GetOpenSession run inside a write transaction, used
// by the race-recovery path immediately after a unique-violation insert.
func (s *Store) GetOpenSessionTx(ctx context.Context, tx *sql.Tx, taskID int64) (*TaskSession, error) {
	row := tx.QueryRowContext(ctx, sessionSelectColumns+`
		FROM task_sessions WHERE task_id = ? AND ended_at IS NULL`, taskID)
	return scanSession(row)
}

// ListOpenSessionsTx returns every open session for a task; close-task uses
// this to close all of them (normally zero or one, but reopen races can
// leave more than one from crashed prior runs).
func (s *Store) ListOpenSessionsTx(ctx context.Context, tx execer, taskID int64) ([]*TaskSession, error) {
	rows, err := tx.QueryContext(ctx, sessionSelectColumns+`
		FROM task_sessions WHERE task_id = ? AND ended_at IS NULL`, taskID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanSessions(rows)
}

// CloseSession sets ended_at and computes duration_seconds as the floored
// difference from started_at.
func (s *Store) CloseSession(ctx context.Context, tx execer, id int64) error {
	sess, err := s.getSessionTx(ctx, tx, id)
	if err != nil {
		return err
	}
	now := timeNow().UTC()
	duration := int64(now.Sub(sess.StartedAt).Seconds())
	if duration < 0 {
		duration = 0
	}
	_, err = tx.ExecContext(ctx, `
		UPDATE task_sessions SET ended_at = ?, duration_seconds = ? WHERE id = ?`,
		now.Format(time.RFC3339), duration, id)
	return classify(err, "close session")
}

func (s *Store) getSessionTx(ctx context.Context, tx execer, id int64) (*TaskSession, error) {
	row := tx.QueryRowContext(ctx, sessionSelectColumns+` FROM task_sessions WHERE id = ?`, id)
	return scanSession(row)
}

// GetSession loads one session by id.
func (s *Store) GetSession(ctx context.Context, id int64) (*TaskSession, error) {
	row := s.readDB.QueryRowContext(ctx, sessionSelectColumns+` FROM task_sessions WHERE id = ?`, id)
	return scanSession(row)
}

// ListSessionsForTask returns all sessions (open and closed) for a task,
// most recent first.
func (s *Store) ListSessionsForTask(ctx context.Context, taskID int64) ([]*TaskSession, error) {
	rows, err := s.readDB.QueryContext(ctx, sessionSelectColumns+`
		FROM task_sessions WHERE task_id = ? ORDER BY started_at DESC`, taskID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanSessions(rows)
}

// WriteSessionCost writes back attribution totals and dominant model for a
// session (§4.F output 4).
func (s *Store) WriteSessionCost(ctx context.Context, tx *sql.Tx, id int64, costDollars float64, tokensIn, tokensOut int64, model string) error {
	_, err := tx.ExecContext(ctx, `
		UPDATE task_sessions SET cost_dollars = ?, tokens_in = ?, tokens_out = ?, model = ? WHERE id = ?`,
		costDollars, tokensIn, tokensOut, model, id)
	return classify(err, "write session cost")
}

// WriteSessionDiffStats records externally-captured line-diff counts.
func (s *Store) WriteSessionDiffStats(ctx context.Context, tx *sql.Tx, id int64, linesAdded, linesRemoved int64) error {
	_, err := tx.ExecContext(ctx, `
		UPDATE task_sessions SET lines_added = ?, lines_removed = ? WHERE id = ?`,
		linesAdded, linesRemoved, id)
	return classify(err, "write session diff stats")
}

func scanSession(row rowScanner) (*TaskSession, error) {
	var s TaskSession
	var endedAt, model, agentName sql.NullString
	var duration sql.NullInt64
	var startedAt string

	err := row.Scan(&s.ID, &s.TaskID, &startedAt, &endedAt, &duration, &s.LinesAdded,
		&s.LinesRemoved, &s.CostDollars, &s.TokensIn, &s.TokensOut, &model, &agentName)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}

	s.StartedAt, _ = parseTime(startedAt)
	s.EndedAt = parseTimePtr(endedAt)
	if duration.Valid {
		s.DurationSeconds = &duration.Int64
	}
	s.Model = nullStringPtr(model)
	s.AgentName = nullStringPtr(agentName)
	return &s, nil
}

func scanSessions(rows *sql.Rows) ([]*TaskSession, error) {
	var out []*TaskSession
	for rows.Next() {
		s, err := scanSession(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	return out, rows.Err()
}
