package cmd

import (
	"github.com/spf13/cobra"
)

var reviewCmd = &cobra.Command{
	Use:   "review",
	Short: "Code-review operations",
}

var reviewStartCmd = &cobra.Command{
	Use:   "start <task-id>",
	Short: "Open one review row per configured reviewer (or a single unassigned row)",
	Args:  cobra.ExactArgs(1),
	RunE:  runReviewStart,
}

var reviewAddCommentCmd = &cobra.Command{
	Use:   "add-comment <review-id> <file-path> <text>",
	Short: "Add a review comment",
	Args:  cobra.ExactArgs(3),
	RunE:  runReviewAddComment,
}

var (
	reviewCommentCategory  string
	reviewCommentSeverity  string
	reviewCommentLineStart int64
	reviewCommentLineEnd   int64
)

var reviewListCmd = &cobra.Command{
	Use:   "list <review-id>",
	Short: "List a review's comments grouped by category",
	Args:  cobra.ExactArgs(1),
	RunE:  runReviewList,
}

var reviewResolveCmd = &cobra.Command{
	Use:   "resolve <comment-id> <resolution>",
	Short: "Resolve a comment (fixed|deferred|dismissed)",
	Args:  cobra.ExactArgs(2),
	RunE:  runReviewResolve,
}

var reviewApproveCmd = &cobra.Command{
	Use:   "approve <review-id>",
	Short: "Approve a review",
	Args:  cobra.ExactArgs(1),
	RunE:  runReviewApprove,
}

var reviewRequestChangesCmd = &cobra.Command{
	Use:   "request-changes <review-id>",
	Short: "Request changes on a review, bumping its review pass",
	Args:  cobra.ExactArgs(1),
	RunE:  runReviewRequestChanges,
}

var reviewStatusCmd = &cobra.Command{
	Use:   "status <task-id>",
	Short: "JSON summary of every review for a task",
	Args:  cobra.ExactArgs(1),
	RunE:  runReviewStatus,
}

var reviewSummaryCmd = &cobra.Command{
	Use:   "summary <task-id>",
	Short: "Human-readable findings grouped by severity",
	Args:  cobra.ExactArgs(1),
	RunE:  runReviewSummary,
}

func init() {
	rootCmd.AddCommand(reviewCmd)
	reviewCmd.AddCommand(reviewStartCmd, reviewAddCommentCmd, reviewListCmd, reviewResolveCmd,
		reviewApproveCmd, reviewRequestChangesCmd, reviewStatusCmd, reviewSummaryCmd)

	reviewAddCommentCmd.Flags().StringVar(&reviewCommentCategory, "category", "", "comment category (required)")
	reviewAddCommentCmd.Flags().StringVar(&reviewCommentSeverity, "severity", "", "comment severity (required)")
	reviewAddCommentCmd.Flags().Int64Var(&reviewCommentLineStart, "line-start", 0, "starting line number")
	reviewAddCommentCmd.Flags().Int64Var(&reviewCommentLineEnd, "line-end", 0, "ending line number")
	_ = reviewAddCommentCmd.MarkFlagRequired("category")
	_ = reviewAddCommentCmd.MarkFlagRequired("severity")
}

func runReviewStart(cmd *cobra.Command, args []string) error {
	app, closeApp, err := newApp(cmd.Context())
	if err != nil {
		return finish(nil, err)
	}
	defer closeApp()

	taskID, err := parseInt64("task id", args[0])
	if err != nil {
		return finish(nil, err)
	}
	result, err := app.Criteria.StartReview(cmd.Context(), taskID)
	return finish(result, err)
}

func runReviewAddComment(cmd *cobra.Command, args []string) error {
	app, closeApp, err := newApp(cmd.Context())
	if err != nil {
		return finish(nil, err)
	}
	defer closeApp()

	reviewID, err := parseInt64("review id", args[0])
	if err != nil {
		return finish(nil, err)
	}

	var lineStart, lineEnd *int64
	if cmd.Flags().Changed("line-start") {
		lineStart = &reviewCommentLineStart
	}
	if cmd.Flags().Changed("line-end") {
		lineEnd = &reviewCommentLineEnd
	}

	result, err := app.Criteria.AddComment(cmd.Context(), reviewID, args[1], lineStart, lineEnd,
		reviewCommentCategory, reviewCommentSeverity, args[2])
	return finish(result, err)
}

func runReviewList(cmd *cobra.Command, args []string) error {
	app, closeApp, err := newApp(cmd.Context())
	if err != nil {
		return finish(nil, err)
	}
	defer closeApp()

	reviewID, err := parseInt64("review id", args[0])
	if err != nil {
		return finish(nil, err)
	}
	result, err := app.Criteria.CommentsByCategory(cmd.Context(), reviewID)
	return finish(result, err)
}

func runReviewResolve(cmd *cobra.Command, args []string) error {
	app, closeApp, err := newApp(cmd.Context())
	if err != nil {
		return finish(nil, err)
	}
	defer closeApp()

	commentID, err := parseInt64("comment id", args[0])
	if err != nil {
		return finish(nil, err)
	}
	err = app.Criteria.ResolveComment(cmd.Context(), commentID, args[1])
	return finish(map[string]any{"id": commentID, "resolution": args[1]}, err)
}

func runReviewApprove(cmd *cobra.Command, args []string) error {
	app, closeApp, err := newApp(cmd.Context())
	if err != nil {
		return finish(nil, err)
	}
	defer closeApp()

	reviewID, err := parseInt64("review id", args[0])
	if err != nil {
		return finish(nil, err)
	}
	result, err := app.Criteria.Approve(cmd.Context(), reviewID)
	return finish(result, err)
}

func runReviewRequestChanges(cmd *cobra.Command, args []string) error {
	app, closeApp, err := newApp(cmd.Context())
	if err != nil {
		return finish(nil, err)
	}
	defer closeApp()

	reviewID, err := parseInt64("review id", args[0])
	if err != nil {
		return finish(nil, err)
	}
	result, err := app.Criteria.RequestChanges(cmd.Context(), reviewID)
	return finish(result, err)
}

func runReviewStatus(cmd *cobra.Command, args []string) error {
	app, closeApp, err := newApp(cmd.Context())
	if err != nil {
		return finish(nil, err)
	}
	defer closeApp()

	taskID, err := parseInt64("task id", args[0])
	if err != nil {
		return finish(nil, err)
	}
	result, err := app.Criteria.GetStatus(cmd.Context(), taskID)
	return finish(result, err)
}

func runReviewSummary(cmd *cobra.Command, args []string) error {
	app, closeApp, err := newApp(cmd.Context())
	if err != nil {
		return finish(nil, err)
	}
	defer closeApp()

	taskID, err := parseInt64("task id", args[0])
	if err != nil {
		return finish(nil, err)
	}
	result, err := app.Criteria.GetSummary(cmd.Context(), taskID)
	return finish(result, err)
}
