package task

import (
	"context"

	"tusk/internal/store"
	"tusk/internal/tuskerr"
)

// ChainNode is one task in a downstream sub-DAG scope, at its minimum
// depth from any head (depth 0 = a head itself).
type ChainNode struct {
	TaskID int64
	Depth  int
}

// Scope BFS-walks the dependents direction (depends_on_id -> task_id) from
// one or more head task ids, yielding the union of reachable tasks with
// the minimum depth seen across any path. Multiple heads must share at
// least one common non-head downstream task; fully disjoint heads are
// refused.
func (e *Engine) Scope(ctx context.Context, headIDs []int64) ([]ChainNode, error) {
	if len(headIDs) == 0 {
		return nil, tuskerr.Validation("missing_heads", "at least one head task id is required")
	}

	edges, err := e.Store.AllDependencyEdges(ctx)
	if err != nil {
		return nil, err
	}
	adjacency := make(map[int64][]int64, len(edges))
	for _, edge := range edges {
		adjacency[edge.DependsOnID] = append(adjacency[edge.DependsOnID], edge.TaskID)
	}

	depth := make(map[int64]int)
	headSet := make(map[int64]bool, len(headIDs))
	for _, h := range headIDs {
		headSet[h] = true
	}

	// perHeadReach tracks which non-head nodes each head reaches, to
	// enforce the "must share at least one common downstream task" rule
	// when more than one head is given.
	perHeadReach := make([]map[int64]bool, len(headIDs))

	for i, head := range headIDs {
		reach := map[int64]bool{}
		queue := []int64{head}
		localDepth := map[int64]int{head: 0}
		for len(queue) > 0 {
			n := queue[0]
			queue = queue[1:]
			if n != head {
				reach[n] = true
			}
			for _, next := range adjacency[n] {
				if _, seen := localDepth[next]; seen {
					continue
				}
				localDepth[next] = localDepth[n] + 1
				queue = append(queue, next)
			}
		}
		perHeadReach[i] = reach

		for n, d := range localDepth {
			if existing, ok := depth[n]; !ok || d < existing {
				depth[n] = d
			}
		}
	}

	if len(headIDs) > 1 {
		shared := false
		for n := range perHeadReach[0] {
			if headSet[n] {
				continue
			}
			inAll := true
			for _, reach := range perHeadReach[1:] {
				if !reach[n] {
					inAll = false
					break
				}
			}
			if inAll {
				shared = true
				break
			}
		}
		if !shared {
			return nil, tuskerr.PolicyGatedStrict("disjoint_heads", "the given heads share no common downstream task")
		}
	}

	out := make([]ChainNode, 0, len(depth))
	for id, d := range depth {
		out = append(out, ChainNode{TaskID: id, Depth: d})
	}
	return out, nil
}

// Frontier returns the subset of a scope that is currently ready.
func (e *Engine) Frontier(ctx context.Context, headIDs []int64) ([]ChainNode, error) {
	scope, err := e.Scope(ctx, headIDs)
	if err != nil {
		return nil, err
	}
	ready, err := e.Store.ListReadyTasks(ctx)
	if err != nil {
		return nil, err
	}
	readySet := make(map[int64]bool, len(ready))
	for _, t := range ready {
		readySet[t.ID] = true
	}

	var out []ChainNode
	for _, n := range scope {
		if readySet[n.TaskID] {
			out = append(out, n)
		}
	}
	return out, nil
}

// ChainStatus is one task's scope membership annotated with its
// human-readable progress bucket.
type ChainStatus struct {
	Task   *store.Task
	Depth  int
	Bucket string // "done" | "in-progress" | "to-do"
}

// Status reports human-readable progress (done / in-progress / to-do)
// for every task in a scope.
func (e *Engine) Status(ctx context.Context, headIDs []int64) ([]ChainStatus, error) {
	scope, err := e.Scope(ctx, headIDs)
	if err != nil {
		return nil, err
	}
	terminal := e.terminalStatus()
	initial := e.initialStatus()

	out := make([]ChainStatus, 0, len(scope))
	for _, n := range scope {
		t, err := e.Store.GetTask(ctx, n.TaskID)
		if err != nil {
			return nil, err
		}
		bucket := "in-progress"
		switch t.Status {
		case terminal:
			bucket = "done"
		case initial:
			bucket = "to-do"
		}
		out = append(out, ChainStatus{Task: t, Depth: n.Depth, Bucket: bucket})
	}
	return out, nil
}
