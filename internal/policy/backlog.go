package policy

import (
	"context"
	"time"

	"tusk/internal/store"
)

// BacklogScan is the result of requesting one or more of the four
// orthogonal backlog scans from spec.md 4.G. Each field is nil when its
// scan wasn't requested, and an empty (non-nil) slice when requested but
// no rows matched.
type BacklogScan struct {
	Duplicates []CandidatePair
	Unassigned []*store.Task
	Unsized    []*store.Task
	Expired    []*store.Task
}

// BacklogScanRequest selects which of the four scans to run.
type BacklogScanRequest struct {
	Duplicates bool
	Unassigned bool
	Unsized    bool
	Expired    bool
}

// RunBacklogScan runs each requested scan independently; none depend on
// the others' results.
func (e *Engine) RunBacklogScan(ctx context.Context, req BacklogScanRequest) (*BacklogScan, error) {
	result := &BacklogScan{}

	if req.Duplicates {
		pairs, err := e.ScanDupes(ctx)
		if err != nil {
			return nil, err
		}
		result.Duplicates = pairs
		if result.Duplicates == nil {
			result.Duplicates = []CandidatePair{}
		}
	}

	if !req.Unassigned && !req.Unsized && !req.Expired {
		return result, nil
	}

	tasks, err := e.Store.ListTasks(ctx)
	if err != nil {
		return nil, err
	}
	initial := e.Config.InitialStatus()
	terminal := e.Config.TerminalStatus()
	now := time.Now().UTC()

	if req.Unassigned {
		result.Unassigned = []*store.Task{}
	}
	if req.Unsized {
		result.Unsized = []*store.Task{}
	}
	if req.Expired {
		result.Expired = []*store.Task{}
	}

	for _, t := range tasks {
		if req.Unassigned && t.Status == initial && t.Assignee == nil {
			result.Unassigned = append(result.Unassigned, t)
		}
		if req.Unsized && t.Status == initial && t.Complexity == nil {
			result.Unsized = append(result.Unsized, t)
		}
		if req.Expired && t.Status != terminal && t.ExpiresAt != nil && t.ExpiresAt.Before(now) {
			result.Expired = append(result.Expired, t)
		}
	}

	return result, nil
}
