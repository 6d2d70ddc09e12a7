package criteria

import (
	"context"
	"testing"

	"tusk/internal/logging"
)

func TestStartReview_CreatesOneRowPerReviewer(t *testing.T) {
	st := newTestStore(t)
	taskID := insertTask(t, st, "Ship the widget")
	eng := New(st, testConfig(), nil, "", logging.NewNop())
	ctx := context.Background()

	reviews, err := eng.StartReview(ctx, taskID)
	if err != nil {
		t.Fatalf("StartReview() error = %v", err)
	}
	if len(reviews) != 2 {
		t.Fatalf("expected 2 review rows (alice, bob), got %d", len(reviews))
	}
	for _, r := range reviews {
		if r.Status != "pending" {
			t.Fatalf("expected pending status, got %q", r.Status)
		}
	}
}

func TestStartReview_NoReviewersConfiguredCreatesOneUnassignedRow(t *testing.T) {
	st := newTestStore(t)
	taskID := insertTask(t, st, "Ship the widget")
	cfg := testConfig()
	cfg.Review.Reviewers = nil
	eng := New(st, cfg, nil, "", logging.NewNop())

	reviews, err := eng.StartReview(context.Background(), taskID)
	if err != nil {
		t.Fatalf("StartReview() error = %v", err)
	}
	if len(reviews) != 1 || reviews[0].Reviewer != nil {
		t.Fatalf("expected 1 unassigned review row, got %+v", reviews)
	}
}

func TestAddComment_ValidatesCategoryAndSeverity(t *testing.T) {
	st := newTestStore(t)
	taskID := insertTask(t, st, "Ship the widget")
	cfg := testConfig()
	cfg.Review.Reviewers = nil
	eng := New(st, cfg, nil, "", logging.NewNop())
	ctx := context.Background()

	reviews, err := eng.StartReview(ctx, taskID)
	if err != nil {
		t.Fatalf("StartReview() error = %v", err)
	}
	reviewID := reviews[0].ID

	if _, err := eng.AddComment(ctx, reviewID, "main.go", nil, nil, "bogus-category", "minor", "explain"); err == nil {
		t.Fatal("expected validation error for unknown category")
	}
	if _, err := eng.AddComment(ctx, reviewID, "main.go", nil, nil, "correctness", "bogus-severity", "explain"); err == nil {
		t.Fatal("expected validation error for unknown severity")
	}

	c, err := eng.AddComment(ctx, reviewID, "main.go", nil, nil, "correctness", "major", "off by one")
	if err != nil {
		t.Fatalf("AddComment() error = %v", err)
	}
	if c.Resolution != "pending" {
		t.Fatalf("expected default resolution pending, got %q", c.Resolution)
	}
}

func TestResolveComment_And_CommentsByCategory(t *testing.T) {
	st := newTestStore(t)
	taskID := insertTask(t, st, "Ship the widget")
	cfg := testConfig()
	cfg.Review.Reviewers = nil
	eng := New(st, cfg, nil, "", logging.NewNop())
	ctx := context.Background()

	reviews, _ := eng.StartReview(ctx, taskID)
	reviewID := reviews[0].ID

	c1, err := eng.AddComment(ctx, reviewID, "a.go", nil, nil, "correctness", "major", "bug here")
	if err != nil {
		t.Fatalf("AddComment() error = %v", err)
	}
	if _, err := eng.AddComment(ctx, reviewID, "b.go", nil, nil, "style", "nit", "rename this"); err != nil {
		t.Fatalf("AddComment() error = %v", err)
	}

	grouped, err := eng.CommentsByCategory(ctx, reviewID)
	if err != nil {
		t.Fatalf("CommentsByCategory() error = %v", err)
	}
	if len(grouped["correctness"]) != 1 || len(grouped["style"]) != 1 {
		t.Fatalf("expected 1 comment per category, got %+v", grouped)
	}

	if err := eng.ResolveComment(ctx, c1.ID, "fixed"); err != nil {
		t.Fatalf("ResolveComment() error = %v", err)
	}
	if err := eng.ResolveComment(ctx, c1.ID, "not-a-resolution"); err == nil {
		t.Fatal("expected validation error for unknown resolution")
	}

	status, err := eng.GetStatus(ctx, taskID)
	if err != nil {
		t.Fatalf("GetStatus() error = %v", err)
	}
	if len(status.Reviews) != 1 || status.Reviews[0].OpenCount != 1 || status.Reviews[0].TotalCount != 2 {
		t.Fatalf("unexpected status: %+v", status.Reviews[0])
	}
}

func TestApproveAndRequestChanges(t *testing.T) {
	st := newTestStore(t)
	taskID := insertTask(t, st, "Ship the widget")
	cfg := testConfig()
	cfg.Review.Reviewers = nil
	eng := New(st, cfg, nil, "", logging.NewNop())
	ctx := context.Background()

	reviews, _ := eng.StartReview(ctx, taskID)
	reviewID := reviews[0].ID

	r, err := eng.RequestChanges(ctx, reviewID)
	if err != nil {
		t.Fatalf("RequestChanges() error = %v", err)
	}
	if r.Status != "changes_requested" || r.ReviewPass != 2 {
		t.Fatalf("expected changes_requested with review_pass 2, got %+v", r)
	}

	r, err = eng.Approve(ctx, reviewID)
	if err != nil {
		t.Fatalf("Approve() error = %v", err)
	}
	if r.Status != "approved" {
		t.Fatalf("expected approved status, got %q", r.Status)
	}
}

func TestGetSummary_OrdersBySeverityRanking(t *testing.T) {
	st := newTestStore(t)
	taskID := insertTask(t, st, "Ship the widget")
	cfg := testConfig()
	cfg.Review.Reviewers = nil
	eng := New(st, cfg, nil, "", logging.NewNop())
	ctx := context.Background()

	reviews, _ := eng.StartReview(ctx, taskID)
	reviewID := reviews[0].ID

	if _, err := eng.AddComment(ctx, reviewID, "a.go", nil, nil, "style", "nit", "nit comment"); err != nil {
		t.Fatalf("AddComment() error = %v", err)
	}
	if _, err := eng.AddComment(ctx, reviewID, "b.go", nil, nil, "correctness", "blocker", "blocker comment"); err != nil {
		t.Fatalf("AddComment() error = %v", err)
	}

	summary, err := eng.GetSummary(ctx, taskID)
	if err != nil {
		t.Fatalf("GetSummary() error = %v", err)
	}
	if len(summary.Order) != 2 || summary.Order[0] != "blocker" || summary.Order[1] != "nit" {
		t.Fatalf("expected blocker before nit, got %v", summary.Order)
	}
}
