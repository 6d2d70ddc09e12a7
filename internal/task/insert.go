package task

import (
	"context"
	"database/sql"
	"strings"

	"tusk/internal/policy"
	"tusk/internal/store"
	"tusk/internal/tuskerr"
)

// CriterionInput is one acceptance criterion supplied to InsertTask,
// accepting either a plain string or a typed object per spec.md 4.B.
type CriterionInput struct {
	Text             string
	Type             string
	VerificationSpec *string
}

// InsertInput carries everything task-insert accepts.
type InsertInput struct {
	Summary     string
	Description string
	Priority    string
	Domain      *string
	TaskType    string
	Assignee    *string
	Complexity  *string
	Criteria    []CriterionInput
}

// InsertResult is what task-insert returns on success.
type InsertResult struct {
	Task *store.Task
}

// Insert runs the duplicate check, validates enums, and inserts the task
// plus its acceptance criteria in one transaction, followed by a WSJF
// rescore of the new row. If a duplicate is found at or above the "check"
// threshold, no writes happen and a PolicyGatedOutcome error carrying the
// match is returned.
func (e *Engine) Insert(ctx context.Context, in InsertInput) (*InsertResult, error) {
	if strings.TrimSpace(in.Summary) == "" {
		return nil, tuskerr.Validation("missing_summary", "summary must not be empty")
	}
	if len(in.Criteria) == 0 {
		return nil, tuskerr.Validation("missing_criteria", "at least one acceptance criterion is required")
	}
	if err := e.validateInsertEnums(in); err != nil {
		return nil, err
	}

	dupes := policy.New(e.Store, e.Config)
	match, err := dupes.CheckDuplicate(ctx, in.Summary)
	if err != nil {
		return nil, err
	}
	if match != nil {
		return nil, tuskerr.PolicyGatedOutcome("duplicate_task", "a similar open task already exists", map[string]any{
			"duplicate":  true,
			"task_id":    match.TaskID,
			"summary":    match.Summary,
			"similarity": match.Similarity,
		})
	}

	isDeferred, summary := splitDeferredPrefix(in.Summary)
	score := ScoreWSJF(in.Priority, valueOrEmpty(in.Complexity), &e.Config.WSJF)

	var taskID int64
	err = e.Store.WithTx(ctx, func(tx *sql.Tx) error {
		id, err := e.Store.InsertTask(ctx, tx, store.NewTaskInput{
			Summary:     summary,
			Description: in.Description,
			Status:      e.initialStatus(),
			Priority:    in.Priority,
			Domain:      in.Domain,
			TaskType:    in.TaskType,
			Assignee:    in.Assignee,
			Complexity:  in.Complexity,
			IsDeferred:  isDeferred,
		})
		if err != nil {
			return rollbackFriendlyf("insert task", err)
		}
		taskID = id

		if err := e.Store.UpdatePriorityScore(ctx, tx, id, score); err != nil {
			return rollbackFriendlyf("score new task", err)
		}

		for _, c := range in.Criteria {
			criterionType := c.Type
			if criterionType == "" {
				criterionType = "manual"
			}
			if _, err := e.Store.InsertCriterion(ctx, tx, store.NewCriterionInput{
				TaskID:           id,
				CriterionText:    c.Text,
				Source:           "insert",
				CriterionType:    criterionType,
				VerificationSpec: c.VerificationSpec,
			}); err != nil {
				return rollbackFriendlyf("insert criterion", err)
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	t, err := e.Store.GetTask(ctx, taskID)
	if err != nil {
		return nil, err
	}
	return &InsertResult{Task: t}, nil
}

func (e *Engine) validateInsertEnums(in InsertInput) error {
	if err := validateEnum("priority", in.Priority, e.Config.Priorities); err != nil {
		return err
	}
	if err := ptrValidateEnum("domain", in.Domain, e.Config.Domains); err != nil {
		return err
	}
	if err := validateEnum("task_type", in.TaskType, e.Config.TaskTypes); err != nil {
		return err
	}
	if err := ptrValidateEnum("assignee", in.Assignee, assigneeKeys(e.Config.Agents)); err != nil {
		return err
	}
	if err := ptrValidateEnum("complexity", in.Complexity, e.Config.Complexity); err != nil {
		return err
	}
	for _, c := range in.Criteria {
		criterionType := c.Type
		if criterionType == "" {
			continue
		}
		if err := validateEnum("criterion_type", criterionType, e.Config.CriterionTypes); err != nil {
			return err
		}
	}
	return nil
}

func assigneeKeys(agents map[string]string) []string {
	keys := make([]string, 0, len(agents))
	for k := range agents {
		keys = append(keys, k)
	}
	return keys
}

func valueOrEmpty(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

// splitDeferredPrefix reports whether summary carries the "[Deferred]"
// prefix, per the deferred-prefix-consistency trigger's contract; the
// trigger itself re-derives this from the stored summary, this is just
// the value InsertTask needs up front.
func splitDeferredPrefix(summary string) (bool, string) {
	trimmed := strings.TrimSpace(summary)
	return strings.HasPrefix(trimmed, "[Deferred]"), trimmed
}
