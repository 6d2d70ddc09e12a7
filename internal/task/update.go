package task

import (
	"context"
	"database/sql"
	"strings"

	"tusk/internal/store"
	"tusk/internal/tuskerr"
)

// UpdateInput carries the fields task-update accepts; a nil field is left
// untouched per spec.md 4.B's "only specified fields are written" rule.
type UpdateInput struct {
	Summary     *string
	Description *string
	Priority    *string
	Domain      **string
	TaskType    *string
	Assignee    **string
	Complexity  **string
	GithubPR    **string
}

// Update applies a partial update, revalidating every touched enum, and
// re-scores WSJF when priority or complexity changed.
func (e *Engine) Update(ctx context.Context, id int64, in UpdateInput) (*store.Task, error) {
	if err := e.validateUpdateEnums(in); err != nil {
		return nil, err
	}

	var isDeferred *bool
	var summary *string
	if in.Summary != nil {
		deferred, s := splitDeferredPrefix(*in.Summary)
		isDeferred = &deferred
		summary = &s
	}

	err := e.Store.WithTx(ctx, func(tx *sql.Tx) error {
		current, err := e.Store.GetTaskTx(ctx, tx, id)
		if err != nil {
			return err
		}

		if err := e.Store.UpdateTask(ctx, tx, id, store.TaskUpdate{
			Summary:     summary,
			Description: in.Description,
			Priority:    in.Priority,
			Domain:      in.Domain,
			TaskType:    in.TaskType,
			Assignee:    in.Assignee,
			Complexity:  in.Complexity,
			IsDeferred:  isDeferred,
			GithubPR:    in.GithubPR,
		}); err != nil {
			return err
		}

		if in.Priority == nil && in.Complexity == nil {
			return nil
		}
		priority := current.Priority
		if in.Priority != nil {
			priority = *in.Priority
		}
		complexity := valueOrEmpty(current.Complexity)
		if in.Complexity != nil {
			complexity = valueOrEmpty(*in.Complexity)
		}
		score := ScoreWSJF(priority, complexity, &e.Config.WSJF)
		return e.Store.UpdatePriorityScore(ctx, tx, id, score)
	})
	if err != nil {
		return nil, err
	}
	return e.Store.GetTask(ctx, id)
}

func (e *Engine) validateUpdateEnums(in UpdateInput) error {
	if in.Priority != nil {
		if err := validateEnum("priority", *in.Priority, e.Config.Priorities); err != nil {
			return err
		}
	}
	if in.Domain != nil && *in.Domain != nil {
		if err := validateEnum("domain", **in.Domain, e.Config.Domains); err != nil {
			return err
		}
	}
	if in.TaskType != nil {
		if err := validateEnum("task_type", *in.TaskType, e.Config.TaskTypes); err != nil {
			return err
		}
	}
	if in.Assignee != nil && *in.Assignee != nil {
		if err := validateEnum("assignee", **in.Assignee, assigneeKeys(e.Config.Agents)); err != nil {
			return err
		}
	}
	if in.Complexity != nil && *in.Complexity != nil {
		if err := validateEnum("complexity", **in.Complexity, e.Config.Complexity); err != nil {
			return err
		}
	}
	if in.Summary != nil && strings.TrimSpace(*in.Summary) == "" {
		return tuskerr.Validation("missing_summary", "summary must not be empty")
	}
	return nil
}
