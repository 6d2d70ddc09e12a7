package store

import (
	"context"
	"database/sql"
	"time"
)

// Progress mirrors task_progress: an append-only checkpoint at a commit.
type Progress struct {
	ID            int64
	TaskID        int64
	CommitHash    string
	CommitMessage string
	FilesChanged  int64
	NextSteps     *string
	CreatedAt     time.Time
}

// AppendProgress inserts a checkpoint row. Append-only: there is no update
// or delete path, matching spec.md 3's "append-only checkpoint" wording.
func (s *Store) AppendProgress(ctx context.Context, tx *sql.Tx, taskID int64, commitHash, commitMessage string, filesChanged int64, nextSteps *string) (int64, error) {
	now := timeNow().UTC().Format(time.RFC3339)
	res, err := tx.ExecContext(ctx, `
		INSERT INTO task_progress (task_id, commit_hash, commit_message, files_changed, next_steps, created_at)
		VALUES (?, ?, ?, ?, ?, ?)`, taskID, commitHash, commitMessage, filesChanged, nextSteps, now)
	if err != nil {
		return 0, classify(err, "append progress")
	}
	return res.LastInsertId()
}

// ListProgress returns every checkpoint for a task, oldest first.
func (s *Store) ListProgress(ctx context.Context, taskID int64) ([]*Progress, error) {
	rows, err := s.readDB.QueryContext(ctx, `
		SELECT id, task_id, commit_hash, commit_message, files_changed, next_steps, created_at
		FROM task_progress WHERE task_id = ? ORDER BY id`, taskID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanProgress(rows)
}

// ListProgressTx is ListProgress run inside a write transaction, used by
// task-start to return prior checkpoints alongside the opened session.
func (s *Store) ListProgressTx(ctx context.Context, tx *sql.Tx, taskID int64) ([]*Progress, error) {
	rows, err := tx.QueryContext(ctx, `
		SELECT id, task_id, commit_hash, commit_message, files_changed, next_steps, created_at
		FROM task_progress WHERE task_id = ? ORDER BY id`, taskID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanProgress(rows)
}

func scanProgress(rows *sql.Rows) ([]*Progress, error) {
	var out []*Progress
	for rows.Next() {
		var p Progress
		var nextSteps sql.NullString
		var createdAt string
		if err := rows.Scan(&p.ID, &p.TaskID, &p.CommitHash, &p.CommitMessage, &p.FilesChanged,
			&nextSteps, &createdAt); err != nil {
			return nil, err
		}
		p.NextSteps = nullStringPtr(nextSteps)
		p.CreatedAt, _ = parseTime(createdAt)
		out = append(out, &p)
	}
	return out, rows.Err()
}
