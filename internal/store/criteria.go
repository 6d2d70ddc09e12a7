package store

import (
	"context"
	"database/sql"
	"time"
)

// Criterion mirrors acceptance_criteria.
type Criterion struct {
	ID               int64
	TaskID           int64
	CriterionText    string
	Source           string
	IsCompleted      bool
	CompletedAt      *time.Time
	CriterionType    string
	VerificationSpec *string
	CommitHash       *string
	CommittedAt      *time.Time
	IsDeferred       bool
	CostDollars      float64
	TokensIn         int64
	TokensOut        int64
	CreatedAt        time.Time
	UpdatedAt        time.Time
}

// NewCriterionInput carries the fields accepted by InsertCriterion.
type NewCriterionInput struct {
	TaskID           int64
	CriterionText    string
	Source           string
	CriterionType    string
	VerificationSpec *string
	IsDeferred       bool
}

const criterionSelectColumns = `SELECT id, task_id, criterion_text, source, is_completed, completed_at,
	criterion_type, verification_spec, commit_hash, committed_at, is_deferred,
	cost_dollars, tokens_in, tokens_out, created_at, updated_at`

// InsertCriterion inserts one acceptance criterion for a task.
func (s *Store) InsertCriterion(ctx context.Context, tx *sql.Tx, in NewCriterionInput) (int64, error) {
	now := timeNow().UTC().Format(time.RFC3339)
	res, err := tx.ExecContext(ctx, `
		INSERT INTO acceptance_criteria (
			task_id, criterion_text, source, is_completed, criterion_type,
			verification_spec, is_deferred, created_at, updated_at
		) VALUES (?, ?, ?, 0, ?, ?, ?, ?, ?)`,
		in.TaskID, in.CriterionText, in.Source, in.CriterionType, in.VerificationSpec,
		boolToInt(in.IsDeferred), now, now)
	if err != nil {
		return 0, classify(err, "insert criterion")
	}
	return res.LastInsertId()
}

// ListCriteria returns every criterion for a task, oldest first.
func (s *Store) ListCriteria(ctx context.Context, taskID int64) ([]*Criterion, error) {
	rows, err := s.readDB.QueryContext(ctx, criterionSelectColumns+` FROM acceptance_criteria WHERE task_id = ? ORDER BY id`, taskID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanCriteria(rows)
}

// ListCriteriaTx is the same query run against an in-flight transaction,
// used by handlers that must check completion state before mutating.
func (s *Store) ListCriteriaTx(ctx context.Context, tx *sql.Tx, taskID int64) ([]*Criterion, error) {
	rows, err := tx.QueryContext(ctx, criterionSelectColumns+` FROM acceptance_criteria WHERE task_id = ? ORDER BY id`, taskID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanCriteria(rows)
}

// GetCriterion loads a single criterion by id.
func (s *Store) GetCriterion(ctx context.Context, id int64) (*Criterion, error) {
	row := s.readDB.QueryRowContext(ctx, criterionSelectColumns+` FROM acceptance_criteria WHERE id = ?`, id)
	return scanCriterion(row)
}

// GetCriterionTx is GetCriterion run against a write transaction.
func (s *Store) GetCriterionTx(ctx context.Context, tx *sql.Tx, id int64) (*Criterion, error) {
	row := tx.QueryRowContext(ctx, criterionSelectColumns+` FROM acceptance_criteria WHERE id = ?`, id)
	return scanCriterion(row)
}

// MarkCriterionDone sets is_completed, completed_at, and the optional
// commit attribution fields in one statement.
func (s *Store) MarkCriterionDone(ctx context.Context, tx *sql.Tx, id int64, commitHash *string) error {
	now := timeNow().UTC().Format(time.RFC3339)
	var committedAt any
	if commitHash != nil {
		committedAt = now
	}
	res, err := tx.ExecContext(ctx, `
		UPDATE acceptance_criteria
		SET is_completed = 1, completed_at = ?, commit_hash = ?, committed_at = ?, updated_at = ?
		WHERE id = ?`, now, commitHash, committedAt, now, id)
	if err != nil {
		return classify(err, "mark criterion done")
	}
	n, _ := res.RowsAffected()
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

// ResetCriterion clears completion, commit attribution, and cost fields.
func (s *Store) ResetCriterion(ctx context.Context, tx *sql.Tx, id int64) error {
	now := timeNow().UTC().Format(time.RFC3339)
	res, err := tx.ExecContext(ctx, `
		UPDATE acceptance_criteria
		SET is_completed = 0, completed_at = NULL, commit_hash = NULL, committed_at = NULL,
		    cost_dollars = 0, tokens_in = 0, tokens_out = 0, updated_at = ?
		WHERE id = ?`, now, id)
	if err != nil {
		return classify(err, "reset criterion")
	}
	n, _ := res.RowsAffected()
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

// WriteCriterionCost writes back attribution totals for a criterion (§4.F
// output 3).
func (s *Store) WriteCriterionCost(ctx context.Context, tx *sql.Tx, id int64, costDollars float64, tokensIn, tokensOut int64) error {
	_, err := tx.ExecContext(ctx, `
		UPDATE acceptance_criteria SET cost_dollars = ?, tokens_in = ?, tokens_out = ? WHERE id = ?`,
		costDollars, tokensIn, tokensOut, id)
	return classify(err, "write criterion cost")
}

// SharedCommitGroup returns every completed criterion on the same task
// sharing commitHash, ordered by COALESCE(committed_at, completed_at)
// ascending per spec.md 5's ordering guarantee for round-robin events.
func (s *Store) SharedCommitGroup(ctx context.Context, taskID int64, commitHash string) ([]*Criterion, error) {
	rows, err := s.readDB.QueryContext(ctx, criterionSelectColumns+`
		FROM acceptance_criteria
		WHERE task_id = ? AND commit_hash = ? AND is_completed = 1
		ORDER BY COALESCE(committed_at, completed_at) ASC`, taskID, commitHash)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanCriteria(rows)
}

// MostRecentOtherCompletion finds the most recent other completed
// criterion's COALESCE(committed_at, completed_at) on the same task,
// excluding the ids in exclude (the shared-commit group's own members for
// the "exclude all group members from most recent prior search" rule).
func (s *Store) MostRecentOtherCompletion(ctx context.Context, taskID int64, exclude []int64) (*time.Time, error) {
	placeholders, args := idsToPlaceholders(exclude)
	args = append([]any{taskID}, args...)
	query := `
		SELECT COALESCE(committed_at, completed_at)
		FROM acceptance_criteria
		WHERE task_id = ? AND is_completed = 1`
	if placeholders != "" {
		query += ` AND id NOT IN (` + placeholders + `)`
	}
	query += ` ORDER BY COALESCE(committed_at, completed_at) DESC LIMIT 1`

	var ts sql.NullString
	err := s.readDB.QueryRowContext(ctx, query, args...).Scan(&ts)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return parseTimePtr(ts), nil
}

func scanCriterion(row rowScanner) (*Criterion, error) {
	var c Criterion
	var completedAt, verificationSpec, commitHash, committedAt sql.NullString
	var isCompleted, isDeferred int
	var createdAt, updatedAt string

	err := row.Scan(&c.ID, &c.TaskID, &c.CriterionText, &c.Source, &isCompleted, &completedAt,
		&c.CriterionType, &verificationSpec, &commitHash, &committedAt, &isDeferred,
		&c.CostDollars, &c.TokensIn, &c.TokensOut, &createdAt, &updatedAt)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}

	c.IsCompleted = isCompleted != 0
	c.IsDeferred = isDeferred != 0
	c.CompletedAt = parseTimePtr(completedAt)
	c.VerificationSpec = nullStringPtr(verificationSpec)
	c.CommitHash = nullStringPtr(commitHash)
	c.CommittedAt = parseTimePtr(committedAt)
	c.CreatedAt, _ = parseTime(createdAt)
	c.UpdatedAt, _ = parseTime(updatedAt)
	return &c, nil
}

func scanCriteria(rows *sql.Rows) ([]*Criterion, error) {
	var out []*Criterion
	for rows.Next() {
		c, err := scanCriterion(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

func idsToPlaceholders(ids []int64) (string, []any) {
	if len(ids) == 0 {
		return "", nil
	}
	out := ""
	args := make([]any, len(ids))
	for i, id := range ids {
		if i > 0 {
			out += ", "
		}
		out += "?"
		args[i] = id
	}
	return out, args
}
