package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"
)

// Task mirrors the tasks table. Pointer fields are nullable columns.
type Task struct {
	ID            int64
	Summary       string
	Description   string
	Status        string
	Priority      string
	Domain        *string
	TaskType      string
	Assignee      *string
	Complexity    *string
	PriorityScore float64
	IsDeferred    bool
	ExpiresAt     *time.Time
	ClosedReason  *string
	GithubPR      *string
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

// NewTaskInput carries the fields accepted by InsertTask.
type NewTaskInput struct {
	Summary      string
	Description  string
	Status       string
	Priority     string
	Domain       *string
	TaskType     string
	Assignee     *string
	Complexity   *string
	ExpiresAt    *time.Time
	IsDeferred   bool
	ClosedReason *string
}

// InsertTask inserts a single task row and returns its id. Callers are
// responsible for enum validation and duplicate checking before calling
// this (see internal/task), since the store only enforces structural
// invariants via triggers.
func (s *Store) InsertTask(ctx context.Context, tx *sql.Tx, in NewTaskInput) (int64, error) {
	now := timeNow().UTC().Format(time.RFC3339)
	res, err := tx.ExecContext(ctx, `
		INSERT INTO tasks (
			summary, description, status, priority, domain, task_type, assignee,
			complexity, priority_score, is_deferred, expires_at, closed_reason,
			created_at, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, 0, ?, ?, ?, ?, ?)`,
		in.Summary, in.Description, in.Status, in.Priority, in.Domain, in.TaskType,
		in.Assignee, in.Complexity, boolToInt(in.IsDeferred), formatTimePtr(in.ExpiresAt),
		in.ClosedReason, now, now,
	)
	if err != nil {
		return 0, classify(err, "insert task")
	}
	return res.LastInsertId()
}

// TaskUpdate describes the fields an update handler wants to change. A nil
// field leaves the column untouched; this must mirror spec.md 4.B's
// "only specified fields are written" contract.
type TaskUpdate struct {
	Summary      *string
	Description  *string
	Priority     *string
	Domain       **string
	TaskType     *string
	Assignee     **string
	Complexity   **string
	ExpiresAt    **time.Time
	IsDeferred   *bool
	GithubPR     **string
}

// UpdateTask applies a partial update and always advances updated_at.
func (s *Store) UpdateTask(ctx context.Context, tx *sql.Tx, id int64, u TaskUpdate) error {
	sets := []string{}
	args := []any{}

	if u.Summary != nil {
		sets = append(sets, "summary = ?")
		args = append(args, *u.Summary)
	}
	if u.Description != nil {
		sets = append(sets, "description = ?")
		args = append(args, *u.Description)
	}
	if u.Priority != nil {
		sets = append(sets, "priority = ?")
		args = append(args, *u.Priority)
	}
	if u.Domain != nil {
		sets = append(sets, "domain = ?")
		args = append(args, *u.Domain)
	}
	if u.TaskType != nil {
		sets = append(sets, "task_type = ?")
		args = append(args, *u.TaskType)
	}
	if u.Assignee != nil {
		sets = append(sets, "assignee = ?")
		args = append(args, *u.Assignee)
	}
	if u.Complexity != nil {
		sets = append(sets, "complexity = ?")
		args = append(args, *u.Complexity)
	}
	if u.ExpiresAt != nil {
		sets = append(sets, "expires_at = ?")
		args = append(args, formatTimePtr(*u.ExpiresAt))
	}
	if u.IsDeferred != nil {
		sets = append(sets, "is_deferred = ?")
		args = append(args, boolToInt(*u.IsDeferred))
	}
	if u.GithubPR != nil {
		sets = append(sets, "github_pr = ?")
		args = append(args, *u.GithubPR)
	}

	sets = append(sets, "updated_at = ?")
	args = append(args, timeNow().UTC().Format(time.RFC3339))
	args = append(args, id)

	query := fmt.Sprintf("UPDATE tasks SET %s WHERE id = ?", joinSets(sets))
	res, err := tx.ExecContext(ctx, query, args...)
	if err != nil {
		return classify(err, "update task")
	}
	n, _ := res.RowsAffected()
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

// CloseTask sets status and closed_reason in one statement, tripping the
// closed-reason-consistency trigger if the caller got it wrong.
func (s *Store) CloseTask(ctx context.Context, tx *sql.Tx, id int64, terminalStatus, closedReason string) error {
	now := timeNow().UTC().Format(time.RFC3339)
	res, err := tx.ExecContext(ctx, `
		UPDATE tasks SET status = ?, closed_reason = ?, updated_at = ? WHERE id = ?`,
		terminalStatus, closedReason, now, id)
	if err != nil {
		return classify(err, "close task")
	}
	n, _ := res.RowsAffected()
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

// ReopenTask resets status to initialStatus and clears closed_reason. It
// must be called inside Store.WithReopenTx since the forward-only status
// guard would otherwise reject the backward move.
func ReopenTask(ctx context.Context, db *sql.DB, id int64, initialStatus string) error {
	now := timeNow().UTC().Format(time.RFC3339)
	res, err := db.ExecContext(ctx, `
		UPDATE tasks SET status = ?, closed_reason = NULL, updated_at = ? WHERE id = ?`,
		initialStatus, now, id)
	if err != nil {
		return classify(err, "reopen task")
	}
	n, _ := res.RowsAffected()
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

// AppendDescriptionAnnotation appends a timestamped line to a task's
// description, used by the autoclose policy engine's audit trail.
func (s *Store) AppendDescriptionAnnotation(ctx context.Context, tx *sql.Tx, id int64, annotation string) error {
	now := timeNow().UTC().Format(time.RFC3339)
	_, err := tx.ExecContext(ctx, `
		UPDATE tasks
		SET description = description || char(10) || '[' || ? || '] ' || ?,
		    updated_at = ?
		WHERE id = ?`, now, annotation, now, id)
	if err != nil {
		return classify(err, "append annotation")
	}
	return nil
}

// GetTask loads one task by id using the read pool.
func (s *Store) GetTask(ctx context.Context, id int64) (*Task, error) {
	row := s.readDB.QueryRowContext(ctx, taskSelectColumns+" FROM tasks WHERE id = ?", id)
	return scanTask(row)
}

// GetTaskTx loads one task by id inside an existing write transaction, for
// handlers that must read-then-write the same row atomically.
func (s *Store) GetTaskTx(ctx context.Context, tx *sql.Tx, id int64) (*Task, error) {
	row := tx.QueryRowContext(ctx, taskSelectColumns+" FROM tasks WHERE id = ?", id)
	return scanTask(row)
}

// ListTasks returns all tasks, newest-first, for validator and backlog scans.
func (s *Store) ListTasks(ctx context.Context) ([]*Task, error) {
	rows, err := s.readDB.QueryContext(ctx, taskSelectColumns+" FROM tasks ORDER BY id")
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanTasks(rows)
}

// ListReadyTasks queries v_ready_tasks, optionally filtered by a maximum
// complexity rank and an exclusion set (the loop dispatcher's silent-
// failure guard).
func (s *Store) ListReadyTasks(ctx context.Context) ([]*Task, error) {
	rows, err := s.readDB.QueryContext(ctx, taskSelectColumns+" FROM v_ready_tasks ORDER BY priority_score DESC")
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanTasks(rows)
}

// ListChainHeads queries v_chain_heads.
func (s *Store) ListChainHeads(ctx context.Context) ([]*Task, error) {
	rows, err := s.readDB.QueryContext(ctx, taskSelectColumns+" FROM v_chain_heads ORDER BY priority_score DESC")
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanTasks(rows)
}

// UpdatePriorityScore writes a freshly computed WSJF score for one task.
func (s *Store) UpdatePriorityScore(ctx context.Context, tx *sql.Tx, id int64, score float64) error {
	_, err := tx.ExecContext(ctx, `UPDATE tasks SET priority_score = ? WHERE id = ?`, score, id)
	return classify(err, "update priority score")
}

const taskSelectColumns = `SELECT id, summary, description, status, priority, domain, task_type,
	assignee, complexity, priority_score, is_deferred, expires_at, closed_reason,
	github_pr, created_at, updated_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanTask(row rowScanner) (*Task, error) {
	var t Task
	var domain, assignee, complexity, expiresAt, closedReason, githubPR sql.NullString
	var isDeferred int
	var createdAt, updatedAt string

	err := row.Scan(&t.ID, &t.Summary, &t.Description, &t.Status, &t.Priority, &domain,
		&t.TaskType, &assignee, &complexity, &t.PriorityScore, &isDeferred, &expiresAt,
		&closedReason, &githubPR, &createdAt, &updatedAt)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}

	t.Domain = nullStringPtr(domain)
	t.Assignee = nullStringPtr(assignee)
	t.Complexity = nullStringPtr(complexity)
	t.ClosedReason = nullStringPtr(closedReason)
	t.GithubPR = nullStringPtr(githubPR)
	t.IsDeferred = isDeferred != 0
	t.ExpiresAt = parseTimePtr(expiresAt)
	t.CreatedAt, _ = parseTime(createdAt)
	t.UpdatedAt, _ = parseTime(updatedAt)
	return &t, nil
}

func scanTasks(rows *sql.Rows) ([]*Task, error) {
	var out []*Task
	for rows.Next() {
		t, err := scanTask(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

func formatTimePtr(t *time.Time) any {
	if t == nil {
		return nil
	}
	return t.UTC().Format(time.RFC3339)
}

func nullStringPtr(n sql.NullString) *string {
	if !n.Valid {
		return nil
	}
	v := n.String
	return &v
}

func parseTimePtr(n sql.NullString) *time.Time {
	if !n.Valid || n.String == "" {
		return nil
	}
	t, err := parseTime(n.String)
	if err != nil {
		return nil
	}
	return &t
}

func parseTime(s string) (time.Time, error) {
	if s == "" {
		return time.Time{}, nil
	}
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return t, nil
	}
	return time.Parse(time.RFC3339Nano, s)
}

func joinSets(sets []string) string {
	out := ""
	for i, s := range sets {
		if i > 0 {
			out += ", "
		}
		out += s
	}
	return out
}
