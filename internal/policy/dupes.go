package policy

import (
	"context"

	"tusk/internal/config"
	"tusk/internal/store"
)

// Engine bundles the store and config the policy engine needs.
type Engine struct {
	Store  *store.Store
	Config *config.Config
}

// New builds a policy Engine.
func New(st *store.Store, cfg *config.Config) *Engine {
	return &Engine{Store: st, Config: cfg}
}

// DuplicateMatch is a candidate duplicate found above some threshold.
type DuplicateMatch struct {
	TaskID     int64
	Summary    string
	Similarity float64
}

// CheckDuplicate runs the duplicate check spec.md 4.B's insert-task path
// requires: normalize summary against every open (non-terminal) task and
// return the single best match if it meets checkThreshold. Returns nil,
// nil when nothing matches.
func (e *Engine) CheckDuplicate(ctx context.Context, summary string) (*DuplicateMatch, error) {
	return e.bestMatchAboveThreshold(ctx, summary, e.Config.Dupes.CheckThreshold, 0)
}

// ScanSimilar returns every open-task pair at or above similarThreshold,
// for the `dupes similar` backlog verb.
func (e *Engine) ScanSimilar(ctx context.Context) ([]CandidatePair, error) {
	return e.scanAboveThreshold(ctx, e.Config.Dupes.SimilarThreshold)
}

// ScanDupes returns every open-task pair at or above the scan ("check")
// threshold, for the `dupes scan` backlog verb.
func (e *Engine) ScanDupes(ctx context.Context) ([]CandidatePair, error) {
	return e.scanAboveThreshold(ctx, e.Config.Dupes.CheckThreshold)
}

func (e *Engine) bestMatchAboveThreshold(ctx context.Context, summary string, threshold float64, excludeTaskID int64) (*DuplicateMatch, error) {
	tasks, err := e.openTasks(ctx)
	if err != nil {
		return nil, err
	}
	normalizedQuery := NormalizeSummary(summary, e.Config.Dupes.StripPrefixes)

	candidates := make([]string, 0, len(tasks))
	byNorm := make(map[string][]*store.Task, len(tasks))
	for _, t := range tasks {
		if t.ID == excludeTaskID {
			continue
		}
		norm := NormalizeSummary(t.Summary, e.Config.Dupes.StripPrefixes)
		candidates = append(candidates, norm)
		byNorm[norm] = append(byNorm[norm], t)
	}

	var best *DuplicateMatch
	for _, norm := range Prefilter(normalizedQuery, candidates) {
		for _, t := range byNorm[norm] {
			ratio := SimilarityRatio(normalizedQuery, norm)
			if ratio >= threshold && (best == nil || ratio > best.Similarity) {
				best = &DuplicateMatch{TaskID: t.ID, Summary: t.Summary, Similarity: ratio}
			}
		}
	}
	return best, nil
}

func (e *Engine) scanAboveThreshold(ctx context.Context, threshold float64) ([]CandidatePair, error) {
	tasks, err := e.openTasks(ctx)
	if err != nil {
		return nil, err
	}

	norms := make([]string, len(tasks))
	for i, t := range tasks {
		norms[i] = NormalizeSummary(t.Summary, e.Config.Dupes.StripPrefixes)
	}

	var pairs []CandidatePair
	for i := 0; i < len(tasks); i++ {
		// Prefilter narrows candidate j's to those sharing some token
		// overlap with i before paying for the LCS pass.
		shortlist := Prefilter(norms[i], norms[i+1:])
		shortlistSet := make(map[string]bool, len(shortlist))
		for _, s := range shortlist {
			shortlistSet[s] = true
		}
		for j := i + 1; j < len(tasks); j++ {
			if !shortlistSet[norms[j]] {
				continue
			}
			ratio := SimilarityRatio(norms[i], norms[j])
			if ratio >= threshold {
				pairs = append(pairs, CandidatePair{
					SummaryA:   tasks[i].Summary,
					SummaryB:   tasks[j].Summary,
					Similarity: ratio,
				})
			}
		}
	}
	return pairs, nil
}

func (e *Engine) openTasks(ctx context.Context) ([]*store.Task, error) {
	all, err := e.Store.ListTasks(ctx)
	if err != nil {
		return nil, err
	}
	terminal := e.Config.TerminalStatus()
	var open []*store.Task
	for _, t := range all {
		if t.Status != terminal {
			open = append(open, t)
		}
	}
	return open, nil
}
