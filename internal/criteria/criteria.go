// Package criteria implements Tusk's acceptance-criteria and code-review
// subsystem: criteria add/list/mark-done/reset, and review
// start/add-comment/list/resolve/approve/request-changes/status/summary
// (spec.md 4.C). Criterion completion triggers a best-effort cost-capture
// pass against the transcript window described in 4.F; a capture failure
// never fails the completion itself.
package criteria

import (
	"context"
	"database/sql"

	"tusk/internal/config"
	"tusk/internal/cost"
	"tusk/internal/logging"
	"tusk/internal/policy"
	"tusk/internal/store"
	"tusk/internal/tuskerr"
)

// Engine bundles what criteria/review handlers need. Cost and
// TranscriptDir are optional: a nil Cost engine (or an empty
// TranscriptDir) simply skips the best-effort capture pass, which lets
// tests and non-attributing callers construct an Engine without a
// pricing catalog on hand.
type Engine struct {
	Store         *store.Store
	Config        *config.Config
	Cost          *cost.Engine
	TranscriptDir string
	Log           *logging.Logger
}

// New builds an Engine.
func New(st *store.Store, cfg *config.Config, costEngine *cost.Engine, transcriptDir string, log *logging.Logger) *Engine {
	if log == nil {
		log = logging.NewNop()
	}
	return &Engine{Store: st, Config: cfg, Cost: costEngine, TranscriptDir: transcriptDir, Log: log}
}

func validateEnum(field, value string, valid []string) error {
	if value == "" {
		return nil
	}
	for _, v := range valid {
		if v == value {
			return nil
		}
	}
	suggestion := policy.SuggestEnum(value, valid)
	return tuskerr.Validation("invalid_enum", config.ValidEnumsMessage(field, value, valid, suggestion))
}

// Add inserts one acceptance criterion for a task.
func (e *Engine) Add(ctx context.Context, taskID int64, text, criterionType string, verificationSpec *string, deferred bool) (*store.Criterion, error) {
	if text == "" {
		return nil, tuskerr.Validation("missing_field", "criterion text is required")
	}
	if err := validateEnum("criterion_type", criterionType, e.Config.CriterionTypes); err != nil {
		return nil, err
	}
	if _, err := e.Store.GetTask(ctx, taskID); err != nil {
		return nil, err
	}

	var id int64
	err := e.Store.WithTx(ctx, func(tx *sql.Tx) error {
		newID, err := e.Store.InsertCriterion(ctx, tx, store.NewCriterionInput{
			TaskID:           taskID,
			CriterionText:    text,
			Source:           "manual",
			CriterionType:    criterionType,
			VerificationSpec: verificationSpec,
			IsDeferred:       deferred,
		})
		id = newID
		return err
	})
	if err != nil {
		return nil, err
	}
	return e.Store.GetCriterion(ctx, id)
}

// List returns every criterion for a task, oldest first.
func (e *Engine) List(ctx context.Context, taskID int64) ([]*store.Criterion, error) {
	return e.Store.ListCriteria(ctx, taskID)
}

// MarkDoneResult carries the updated criterion plus the outcome of the
// best-effort cost-capture pass, if one ran.
type MarkDoneResult struct {
	Criterion  *store.Criterion
	CostResult *cost.Result
	CostError  error
}

// MarkDone marks a criterion complete, optionally recording the commit it
// was satisfied by, then attempts cost attribution against the
// transcript directory. A capture failure is reported on the result but
// does not fail the operation: the criterion is already durably marked
// done by the time capture runs.
func (e *Engine) MarkDone(ctx context.Context, id int64, commitHash *string) (*MarkDoneResult, error) {
	c, err := e.Store.GetCriterion(ctx, id)
	if err != nil {
		return nil, err
	}
	if c.IsCompleted {
		return nil, tuskerr.PolicyGated("already_completed", "criterion is already marked done")
	}

	if err := e.Store.WithTx(ctx, func(tx *sql.Tx) error {
		return e.Store.MarkCriterionDone(ctx, tx, id, commitHash)
	}); err != nil {
		return nil, err
	}

	updated, err := e.Store.GetCriterion(ctx, id)
	if err != nil {
		return nil, err
	}
	result := &MarkDoneResult{Criterion: updated}

	if e.Cost != nil && e.TranscriptDir != "" {
		costResult, costErr := e.Cost.AttributeCriterion(ctx, id, e.TranscriptDir)
		if costErr != nil {
			e.Log.Warn("best-effort cost capture failed", "criterion_id", id, "error", costErr)
			result.CostError = costErr
		} else {
			result.CostResult = &costResult
			updated, err = e.Store.GetCriterion(ctx, id)
			if err != nil {
				return nil, err
			}
			result.Criterion = updated
		}
	}

	return result, nil
}

// Reset clears a criterion's completion, commit attribution, and cost
// fields, returning it to an open state.
func (e *Engine) Reset(ctx context.Context, id int64) (*store.Criterion, error) {
	if _, err := e.Store.GetCriterion(ctx, id); err != nil {
		return nil, err
	}
	if err := e.Store.WithTx(ctx, func(tx *sql.Tx) error {
		return e.Store.ResetCriterion(ctx, tx, id)
	}); err != nil {
		return nil, err
	}
	return e.Store.GetCriterion(ctx, id)
}
