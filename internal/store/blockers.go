package store

import (
	"context"
	"database/sql"
	"time"
)

// ExternalBlocker mirrors external_blockers.
type ExternalBlocker struct {
	ID          int64
	TaskID      int64
	Description string
	BlockerType *string
	IsResolved  bool
	ResolvedAt  *time.Time
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

const blockerSelectColumns = `SELECT id, task_id, description, blocker_type, is_resolved, resolved_at, created_at, updated_at`

// AddBlocker inserts an unresolved external blocker for a task.
func (s *Store) AddBlocker(ctx context.Context, tx *sql.Tx, taskID int64, description string, blockerType *string) (int64, error) {
	now := timeNow().UTC().Format(time.RFC3339)
	res, err := tx.ExecContext(ctx, `
		INSERT INTO external_blockers (task_id, description, blocker_type, is_resolved, created_at, updated_at)
		VALUES (?, ?, ?, 0, ?, ?)`, taskID, description, blockerType, now, now)
	if err != nil {
		return 0, classify(err, "add blocker")
	}
	return res.LastInsertId()
}

// ResolveBlocker marks a blocker resolved.
func (s *Store) ResolveBlocker(ctx context.Context, tx *sql.Tx, id int64) error {
	now := timeNow().UTC().Format(time.RFC3339)
	res, err := tx.ExecContext(ctx, `
		UPDATE external_blockers SET is_resolved = 1, resolved_at = ?, updated_at = ? WHERE id = ?`, now, now, id)
	if err != nil {
		return classify(err, "resolve blocker")
	}
	n, _ := res.RowsAffected()
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

// RemoveBlocker deletes a blocker row outright.
func (s *Store) RemoveBlocker(ctx context.Context, tx *sql.Tx, id int64) error {
	_, err := tx.ExecContext(ctx, `DELETE FROM external_blockers WHERE id = ?`, id)
	return classify(err, "remove blocker")
}

// ListBlockers returns every blocker for a task.
func (s *Store) ListBlockers(ctx context.Context, taskID int64) ([]*ExternalBlocker, error) {
	rows, err := s.readDB.QueryContext(ctx, blockerSelectColumns+` FROM external_blockers WHERE task_id = ? ORDER BY id`, taskID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanBlockers(rows)
}

// ListOpenBlockers returns unresolved blockers for a task, used by the
// task-start and ready-task gates.
func (s *Store) ListOpenBlockers(ctx context.Context, taskID int64) ([]*ExternalBlocker, error) {
	rows, err := s.readDB.QueryContext(ctx, blockerSelectColumns+` FROM external_blockers WHERE task_id = ? AND is_resolved = 0 ORDER BY id`, taskID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanBlockers(rows)
}

// ListOpenBlockersTx is ListOpenBlockers run inside a write transaction.
func (s *Store) ListOpenBlockersTx(ctx context.Context, tx *sql.Tx, taskID int64) ([]*ExternalBlocker, error) {
	rows, err := tx.QueryContext(ctx, blockerSelectColumns+` FROM external_blockers WHERE task_id = ? AND is_resolved = 0 ORDER BY id`, taskID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanBlockers(rows)
}

// ListAllOpenBlockers returns every unresolved blocker across all tasks
// (the `blockers all` verb).
func (s *Store) ListAllOpenBlockers(ctx context.Context) ([]*ExternalBlocker, error) {
	rows, err := s.readDB.QueryContext(ctx, blockerSelectColumns+` FROM external_blockers WHERE is_resolved = 0 ORDER BY task_id, id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanBlockers(rows)
}

func scanBlockers(rows *sql.Rows) ([]*ExternalBlocker, error) {
	var out []*ExternalBlocker
	for rows.Next() {
		var b ExternalBlocker
		var blockerType, resolvedAt sql.NullString
		var isResolved int
		var createdAt, updatedAt string
		if err := rows.Scan(&b.ID, &b.TaskID, &b.Description, &blockerType, &isResolved,
			&resolvedAt, &createdAt, &updatedAt); err != nil {
			return nil, err
		}
		b.BlockerType = nullStringPtr(blockerType)
		b.IsResolved = isResolved != 0
		b.ResolvedAt = parseTimePtr(resolvedAt)
		b.CreatedAt, _ = parseTime(createdAt)
		b.UpdatedAt, _ = parseTime(updatedAt)
		out = append(out, &b)
	}
	return out, rows.Err()
}
