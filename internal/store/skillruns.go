package store

import (
	"context"
	"database/sql"
	"time"
)

// SkillRun mirrors skill_runs: an external-skill execution window.
type SkillRun struct {
	ID          int64
	SkillName   string
	StartedAt   time.Time
	EndedAt     *time.Time
	CostDollars float64
	TokensIn    int64
	TokensOut   int64
	Model       *string
	Metadata    *string
}

const skillRunSelectColumns = `SELECT id, skill_name, started_at, ended_at, cost_dollars, tokens_in, tokens_out, model, metadata`

// StartSkillRun opens a skill-run window.
func (s *Store) StartSkillRun(ctx context.Context, tx *sql.Tx, skillName string, metadata *string) (int64, error) {
	now := timeNow().UTC().Format(time.RFC3339)
	res, err := tx.ExecContext(ctx, `
		INSERT INTO skill_runs (skill_name, started_at, metadata) VALUES (?, ?, ?)`,
		skillName, now, metadata)
	if err != nil {
		return 0, classify(err, "start skill run")
	}
	return res.LastInsertId()
}

// FinishSkillRun closes a skill-run window, optionally overwriting its
// opaque metadata with a value captured only at finish time.
func (s *Store) FinishSkillRun(ctx context.Context, tx *sql.Tx, id int64, metadata *string) error {
	now := timeNow().UTC().Format(time.RFC3339)
	var res sql.Result
	var err error
	if metadata != nil {
		res, err = tx.ExecContext(ctx, `UPDATE skill_runs SET ended_at = ?, metadata = ? WHERE id = ?`, now, *metadata, id)
	} else {
		res, err = tx.ExecContext(ctx, `UPDATE skill_runs SET ended_at = ? WHERE id = ?`, now, id)
	}
	if err != nil {
		return classify(err, "finish skill run")
	}
	n, _ := res.RowsAffected()
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

// GetSkillRun loads one skill run by id.
func (s *Store) GetSkillRun(ctx context.Context, id int64) (*SkillRun, error) {
	row := s.readDB.QueryRowContext(ctx, skillRunSelectColumns+` FROM skill_runs WHERE id = ?`, id)
	return scanSkillRun(row)
}

// ListSkillRuns returns skill runs newest-first, optionally filtered by name.
func (s *Store) ListSkillRuns(ctx context.Context, skillName string) ([]*SkillRun, error) {
	query := skillRunSelectColumns + ` FROM skill_runs`
	args := []any{}
	if skillName != "" {
		query += ` WHERE skill_name = ?`
		args = append(args, skillName)
	}
	query += ` ORDER BY started_at DESC`

	rows, err := s.readDB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanSkillRuns(rows)
}

// WriteSkillRunCost writes back attribution totals and dominant model.
func (s *Store) WriteSkillRunCost(ctx context.Context, tx *sql.Tx, id int64, costDollars float64, tokensIn, tokensOut int64, model string) error {
	_, err := tx.ExecContext(ctx, `
		UPDATE skill_runs SET cost_dollars = ?, tokens_in = ?, tokens_out = ?, model = ? WHERE id = ?`,
		costDollars, tokensIn, tokensOut, model, id)
	return classify(err, "write skill run cost")
}

func scanSkillRun(row rowScanner) (*SkillRun, error) {
	var r SkillRun
	var endedAt, model, metadata sql.NullString
	var startedAt string

	err := row.Scan(&r.ID, &r.SkillName, &startedAt, &endedAt, &r.CostDollars, &r.TokensIn, &r.TokensOut, &model, &metadata)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}

	r.StartedAt, _ = parseTime(startedAt)
	r.EndedAt = parseTimePtr(endedAt)
	r.Model = nullStringPtr(model)
	r.Metadata = nullStringPtr(metadata)
	return &r, nil
}

func scanSkillRuns(rows *sql.Rows) ([]*SkillRun, error) {
	var out []*SkillRun
	for rows.Next() {
		r, err := scanSkillRun(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}
