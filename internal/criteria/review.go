package criteria

import (
	"context"
	"database/sql"
	"sort"

	"tusk/internal/store"
	"tusk/internal/tuskerr"
)

// validResolutions enumerates the fixed set of comment-resolution values;
// these aren't project-configurable the way categories/severities are,
// since "fixed/deferred/dismissed" is the shape of the review workflow
// itself, not a domain taxonomy.
var validResolutions = []string{"pending", "fixed", "deferred", "dismissed"}

// StartReview opens one review row per configured reviewer (or a single
// unassigned row when none are configured).
func (e *Engine) StartReview(ctx context.Context, taskID int64) ([]*store.CodeReview, error) {
	if _, err := e.Store.GetTask(ctx, taskID); err != nil {
		return nil, err
	}

	var ids []int64
	err := e.Store.WithTx(ctx, func(tx *sql.Tx) error {
		newIDs, err := e.Store.StartReview(ctx, tx, taskID, e.Config.Review.Reviewers)
		ids = newIDs
		return err
	})
	if err != nil {
		return nil, err
	}

	out := make([]*store.CodeReview, 0, len(ids))
	for _, id := range ids {
		r, err := e.Store.GetReview(ctx, id)
		if err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, nil
}

// AddComment adds one review comment, validating category and severity
// against the project's configured taxonomies.
func (e *Engine) AddComment(ctx context.Context, reviewID int64, filePath string, lineStart, lineEnd *int64, category, severity, text string) (*store.ReviewComment, error) {
	if filePath == "" {
		return nil, tuskerr.Validation("missing_field", "file_path is required")
	}
	if text == "" {
		return nil, tuskerr.Validation("missing_field", "comment text is required")
	}
	if err := validateEnum("review_category", category, e.Config.ReviewCategories); err != nil {
		return nil, err
	}
	if err := validateEnum("review_severity", severity, e.Config.ReviewSeverities); err != nil {
		return nil, err
	}
	if _, err := e.Store.GetReview(ctx, reviewID); err != nil {
		return nil, err
	}

	var id int64
	err := e.Store.WithTx(ctx, func(tx *sql.Tx) error {
		newID, err := e.Store.AddReviewComment(ctx, tx, reviewID, filePath, lineStart, lineEnd, category, severity, text)
		id = newID
		return err
	})
	if err != nil {
		return nil, err
	}

	comments, err := e.Store.ListCommentsForReview(ctx, reviewID)
	if err != nil {
		return nil, err
	}
	for _, c := range comments {
		if c.ID == id {
			return c, nil
		}
	}
	return nil, store.ErrNotFound
}

// CommentsByCategory groups a review's comments by category, the shape
// the "review list" verb prints.
func (e *Engine) CommentsByCategory(ctx context.Context, reviewID int64) (map[string][]*store.ReviewComment, error) {
	comments, err := e.Store.ListCommentsForReview(ctx, reviewID)
	if err != nil {
		return nil, err
	}
	out := make(map[string][]*store.ReviewComment)
	for _, c := range comments {
		out[c.Category] = append(out[c.Category], c)
	}
	return out, nil
}

// ResolveComment sets a comment's resolution state.
func (e *Engine) ResolveComment(ctx context.Context, commentID int64, resolution string) error {
	if err := validateEnum("resolution", resolution, validResolutions); err != nil {
		return err
	}
	return e.Store.WithTx(ctx, func(tx *sql.Tx) error {
		return e.Store.ResolveReviewComment(ctx, tx, commentID, resolution)
	})
}

// Approve sets a review's status to approved.
func (e *Engine) Approve(ctx context.Context, reviewID int64) (*store.CodeReview, error) {
	if err := e.Store.WithTx(ctx, func(tx *sql.Tx) error {
		return e.Store.SetReviewStatus(ctx, tx, reviewID, "approved", false)
	}); err != nil {
		return nil, err
	}
	return e.Store.GetReview(ctx, reviewID)
}

// RequestChanges sets a review's status to changes_requested and bumps
// review_pass, marking the next round of work.
func (e *Engine) RequestChanges(ctx context.Context, reviewID int64) (*store.CodeReview, error) {
	if err := e.Store.WithTx(ctx, func(tx *sql.Tx) error {
		return e.Store.SetReviewStatus(ctx, tx, reviewID, "changes_requested", true)
	}); err != nil {
		return nil, err
	}
	return e.Store.GetReview(ctx, reviewID)
}

// Status is the JSON-summary shape for "review status": every review row
// for a task plus its open (non-fixed, non-dismissed) comment count.
type Status struct {
	Reviews []ReviewStatusEntry `json:"reviews"`
}

// ReviewStatusEntry is one review's status line.
type ReviewStatusEntry struct {
	Review      *store.CodeReview `json:"review"`
	OpenCount   int               `json:"open_count"`
	TotalCount  int               `json:"total_count"`
}

// GetStatus builds the JSON status summary for every review on a task.
func (e *Engine) GetStatus(ctx context.Context, taskID int64) (*Status, error) {
	reviews, err := e.Store.ListReviewsForTask(ctx, taskID)
	if err != nil {
		return nil, err
	}

	out := &Status{Reviews: make([]ReviewStatusEntry, 0, len(reviews))}
	for _, r := range reviews {
		comments, err := e.Store.ListCommentsForReview(ctx, r.ID)
		if err != nil {
			return nil, err
		}
		open := 0
		for _, c := range comments {
			if c.Resolution == "pending" {
				open++
			}
		}
		out.Reviews = append(out.Reviews, ReviewStatusEntry{
			Review:     r,
			OpenCount:  open,
			TotalCount: len(comments),
		})
	}
	return out, nil
}

// Summary is the human-readable findings-by-severity shape for "review
// summary".
type Summary struct {
	BySeverity map[string][]*store.ReviewComment
	Order      []string
}

// GetSummary groups every comment across all of a task's reviews by
// severity, ordered by the project's configured severity ranking (most
// severe first, per ReviewSeverities).
func (e *Engine) GetSummary(ctx context.Context, taskID int64) (*Summary, error) {
	comments, err := e.Store.ListCommentsForTask(ctx, taskID)
	if err != nil {
		return nil, err
	}

	bySeverity := make(map[string][]*store.ReviewComment)
	for _, c := range comments {
		bySeverity[c.Severity] = append(bySeverity[c.Severity], c)
	}

	order := make([]string, 0, len(e.Config.ReviewSeverities))
	for _, sev := range e.Config.ReviewSeverities {
		if _, ok := bySeverity[sev]; ok {
			order = append(order, sev)
		}
	}
	// Any severity value present on a comment but absent from the
	// configured list (stale config, manual DB edit) still surfaces,
	// appended alphabetically rather than silently dropped.
	var stray []string
	for sev := range bySeverity {
		found := false
		for _, s := range order {
			if s == sev {
				found = true
				break
			}
		}
		if !found {
			stray = append(stray, sev)
		}
	}
	sort.Strings(stray)
	order = append(order, stray...)

	return &Summary{BySeverity: bySeverity, Order: order}, nil
}
