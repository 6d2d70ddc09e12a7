package task

import (
	"context"
	"database/sql"
	"fmt"

	"tusk/internal/store"
	"tusk/internal/tuskerr"
)

// relationshipTypes are the only two edge kinds task_dependencies accepts.
var relationshipTypes = []string{"blocks", "contingent"}

// AddDependency validates both endpoints exist, forbids self-loops, and
// rejects any edge that would create a cycle.
func (e *Engine) AddDependency(ctx context.Context, taskID, dependsOnID int64, relationshipType string) error {
	if taskID == dependsOnID {
		return tuskerr.Validation("self_dependency", "a task cannot depend on itself")
	}
	if err := validateEnum("relationship_type", relationshipType, relationshipTypes); err != nil {
		return err
	}

	if _, err := e.Store.GetTask(ctx, taskID); err != nil {
		return err
	}
	if _, err := e.Store.GetTask(ctx, dependsOnID); err != nil {
		return err
	}

	wouldCycle, cycle, err := e.Store.WouldCreateCycle(ctx, taskID, dependsOnID)
	if err != nil {
		return err
	}
	if wouldCycle {
		return tuskerr.PolicyGatedStrict("dependency_cycle", fmt.Sprintf("adding this dependency would create a cycle: %v", cycle))
	}

	return e.Store.WithTx(ctx, func(tx *sql.Tx) error {
		return e.Store.AddDependency(ctx, tx, taskID, dependsOnID, relationshipType)
	})
}

// RemoveDependency deletes an edge; idempotent.
func (e *Engine) RemoveDependency(ctx context.Context, taskID, dependsOnID int64) error {
	return e.Store.WithTx(ctx, func(tx *sql.Tx) error {
		return e.Store.RemoveDependency(ctx, tx, taskID, dependsOnID)
	})
}

// DependencyListResult is taskID's prerequisite edges plus the "blocked
// by N open upstream" and "has M downstream dependents" counts spec.md
// 4.B requires deps-list to compute.
type DependencyListResult struct {
	Dependencies      []store.Dependency
	OpenUpstreamCount int
	DownstreamCount   int
}

// ListDependencies lists taskID's prerequisites and its upstream/downstream counts.
func (e *Engine) ListDependencies(ctx context.Context, taskID int64) (*DependencyListResult, error) {
	deps, err := e.Store.ListDependencies(ctx, taskID)
	if err != nil {
		return nil, err
	}
	openUpstream, err := e.Store.CountOpenUpstream(ctx, taskID)
	if err != nil {
		return nil, err
	}
	downstream, err := e.Store.CountDownstreamDependents(ctx, taskID)
	if err != nil {
		return nil, err
	}
	return &DependencyListResult{Dependencies: deps, OpenUpstreamCount: openUpstream, DownstreamCount: downstream}, nil
}
