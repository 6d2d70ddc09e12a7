package task

import (
	"context"

	"tusk/internal/store"
	"tusk/internal/tuskerr"
)

// Select returns the single highest-priority_score ready task, optionally
// filtered by a maximum complexity tier and an exclusion set (the loop
// dispatcher's silent-failure guard, §4.H).
func (e *Engine) Select(ctx context.Context, maxComplexity string, exclude map[int64]bool) (*store.Task, error) {
	ready, err := e.Store.ListReadyTasks(ctx)
	if err != nil {
		return nil, err
	}

	maxRank := e.complexityRank(maxComplexity)
	for _, t := range ready {
		if exclude != nil && exclude[t.ID] {
			continue
		}
		if maxComplexity != "" && t.Complexity != nil && e.complexityRank(*t.Complexity) > maxRank {
			continue
		}
		return t, nil
	}
	return nil, tuskerr.PolicyGatedOutcome("no_ready_tasks", "no ready tasks match the given filters", map[string]any{
		"ready": false,
	})
}

// complexityRank returns tier's index in the configured complexity list,
// or the length of the list (i.e. "bigger than anything configured") for
// an unrecognized or empty tier, so an unsized task never silently passes
// a max-complexity filter.
func (e *Engine) complexityRank(tier string) int {
	for i, c := range e.Config.Complexity {
		if c == tier {
			return i
		}
	}
	return len(e.Config.Complexity)
}
