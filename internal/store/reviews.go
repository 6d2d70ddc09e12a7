package store

import (
	"context"
	"database/sql"
	"time"
)

// CodeReview mirrors code_reviews.
type CodeReview struct {
	ID          int64
	TaskID      int64
	Reviewer    *string
	Status      string
	ReviewPass  int64
	DiffSummary *string
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// ReviewComment mirrors review_comments.
type ReviewComment struct {
	ID          int64
	ReviewID    int64
	FilePath    string
	LineStart   *int64
	LineEnd     *int64
	Category    string
	Severity    string
	CommentText string
	Resolution  string
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

const reviewSelectColumns = `SELECT id, task_id, reviewer, status, review_pass, diff_summary, created_at, updated_at`
const commentSelectColumns = `SELECT id, review_id, file_path, line_start, line_end, category, severity, comment_text, resolution, created_at, updated_at`

// StartReview inserts one review row per reviewer name, or a single
// unassigned row when reviewers is empty, per spec.md 4.C.
func (s *Store) StartReview(ctx context.Context, tx *sql.Tx, taskID int64, reviewers []string) ([]int64, error) {
	now := timeNow().UTC().Format(time.RFC3339)
	if len(reviewers) == 0 {
		reviewers = []string{""}
	}
	ids := make([]int64, 0, len(reviewers))
	for _, reviewer := range reviewers {
		var reviewerArg any
		if reviewer != "" {
			reviewerArg = reviewer
		}
		res, err := tx.ExecContext(ctx, `
			INSERT INTO code_reviews (task_id, reviewer, status, review_pass, created_at, updated_at)
			VALUES (?, ?, 'pending', 1, ?, ?)`, taskID, reviewerArg, now, now)
		if err != nil {
			return nil, classify(err, "start review")
		}
		id, err := res.LastInsertId()
		if err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, nil
}

// AddReviewComment inserts a comment under a review.
func (s *Store) AddReviewComment(ctx context.Context, tx *sql.Tx, reviewID int64, filePath string, lineStart, lineEnd *int64, category, severity, text string) (int64, error) {
	now := timeNow().UTC().Format(time.RFC3339)
	res, err := tx.ExecContext(ctx, `
		INSERT INTO review_comments (review_id, file_path, line_start, line_end, category, severity, comment_text, resolution, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, 'pending', ?, ?)`,
		reviewID, filePath, lineStart, lineEnd, category, severity, text, now, now)
	if err != nil {
		return 0, classify(err, "add review comment")
	}
	return res.LastInsertId()
}

// ResolveReviewComment sets a comment's resolution.
func (s *Store) ResolveReviewComment(ctx context.Context, tx *sql.Tx, commentID int64, resolution string) error {
	now := timeNow().UTC().Format(time.RFC3339)
	res, err := tx.ExecContext(ctx, `
		UPDATE review_comments SET resolution = ?, updated_at = ? WHERE id = ?`, resolution, now, commentID)
	if err != nil {
		return classify(err, "resolve review comment")
	}
	n, _ := res.RowsAffected()
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

// SetReviewStatus sets a review's status and bumps review_pass when the
// caller is requesting another round of changes.
func (s *Store) SetReviewStatus(ctx context.Context, tx *sql.Tx, reviewID int64, status string, bumpPass bool) error {
	now := timeNow().UTC().Format(time.RFC3339)
	query := `UPDATE code_reviews SET status = ?, updated_at = ?`
	args := []any{status, now}
	if bumpPass {
		query += `, review_pass = review_pass + 1`
	}
	query += ` WHERE id = ?`
	args = append(args, reviewID)

	res, err := tx.ExecContext(ctx, query, args...)
	if err != nil {
		return classify(err, "set review status")
	}
	n, _ := res.RowsAffected()
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

// ListReviewsForTask returns all reviews for a task.
func (s *Store) ListReviewsForTask(ctx context.Context, taskID int64) ([]*CodeReview, error) {
	rows, err := s.readDB.QueryContext(ctx, reviewSelectColumns+` FROM code_reviews WHERE task_id = ? ORDER BY id`, taskID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanReviews(rows)
}

// GetReview loads one review by id.
func (s *Store) GetReview(ctx context.Context, id int64) (*CodeReview, error) {
	row := s.readDB.QueryRowContext(ctx, reviewSelectColumns+` FROM code_reviews WHERE id = ?`, id)
	return scanReview(row)
}

// ListCommentsForReview returns every comment on a review, grouped by the
// caller (category grouping happens at the handler layer per spec.md 4.C).
func (s *Store) ListCommentsForReview(ctx context.Context, reviewID int64) ([]*ReviewComment, error) {
	rows, err := s.readDB.QueryContext(ctx, commentSelectColumns+` FROM review_comments WHERE review_id = ? ORDER BY category, id`, reviewID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanComments(rows)
}

// ListCommentsForTask returns every comment across all reviews for a task,
// for the review summary verb.
func (s *Store) ListCommentsForTask(ctx context.Context, taskID int64) ([]*ReviewComment, error) {
	rows, err := s.readDB.QueryContext(ctx, `
		SELECT rc.id, rc.review_id, rc.file_path, rc.line_start, rc.line_end, rc.category,
		       rc.severity, rc.comment_text, rc.resolution, rc.created_at, rc.updated_at
		FROM review_comments rc
		JOIN code_reviews cr ON cr.id = rc.review_id
		WHERE cr.task_id = ?
		ORDER BY rc.severity, rc.id`, taskID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanComments(rows)
}

func scanReview(row rowScanner) (*CodeReview, error) {
	var r CodeReview
	var reviewer, diffSummary sql.NullString
	var createdAt, updatedAt string

	err := row.Scan(&r.ID, &r.TaskID, &reviewer, &r.Status, &r.ReviewPass, &diffSummary, &createdAt, &updatedAt)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}

	r.Reviewer = nullStringPtr(reviewer)
	r.DiffSummary = nullStringPtr(diffSummary)
	r.CreatedAt, _ = parseTime(createdAt)
	r.UpdatedAt, _ = parseTime(updatedAt)
	return &r, nil
}

func scanReviews(rows *sql.Rows) ([]*CodeReview, error) {
	var out []*CodeReview
	for rows.Next() {
		r, err := scanReview(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

func scanComments(rows *sql.Rows) ([]*ReviewComment, error) {
	var out []*ReviewComment
	for rows.Next() {
		var c ReviewComment
		var lineStart, lineEnd sql.NullInt64
		var createdAt, updatedAt string
		if err := rows.Scan(&c.ID, &c.ReviewID, &c.FilePath, &lineStart, &lineEnd, &c.Category,
			&c.Severity, &c.CommentText, &c.Resolution, &createdAt, &updatedAt); err != nil {
			return nil, err
		}
		if lineStart.Valid {
			c.LineStart = &lineStart.Int64
		}
		if lineEnd.Valid {
			c.LineEnd = &lineEnd.Int64
		}
		c.CreatedAt, _ = parseTime(createdAt)
		c.UpdatedAt, _ = parseTime(updatedAt)
		out = append(out, &c)
	}
	return out, rows.Err()
}
