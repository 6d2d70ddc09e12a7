package cost

import "tusk/internal/transcript"

// Aggregate buckets deduplicated requests by model and reports the
// dominant model: the one with the most requests in the window, per
// spec.md 4.F.
type Aggregate struct {
	ByModel       map[string]Totals
	DominantModel string
}

// AggregateRequests folds a set of already-deduplicated, already
// window-filtered requests into per-model totals.
func AggregateRequests(reqs []transcript.Request) Aggregate {
	byModel := make(map[string]Totals)
	var order []string
	for _, req := range reqs {
		if _, seen := byModel[req.Model]; !seen {
			order = append(order, req.Model)
		}
		t := byModel[req.Model]
		t.Input += req.Usage.InputTokens
		t.Cache5m += req.Usage.CacheCreation5mTokens
		t.Cache1h += req.Usage.CacheCreation1hTokens
		t.CacheRead += req.Usage.CacheReadTokens
		t.Output += req.Usage.OutputTokens
		t.RequestCount++
		byModel[req.Model] = t
	}

	// Walk models in first-seen order rather than Go's randomized map
	// order, so a tie on RequestCount always resolves the same way for
	// the same input: the earliest-appearing model wins.
	var dominant string
	var maxCount int64
	for _, model := range order {
		if count := byModel[model].RequestCount; count > maxCount {
			maxCount = count
			dominant = model
		}
	}

	return Aggregate{ByModel: byModel, DominantModel: dominant}
}

// CombinedTotals sums every model's totals, for a single dollar figure
// across however many models appeared in the window.
func (a Aggregate) CombinedTotals() Totals {
	var sum Totals
	for _, t := range a.ByModel {
		sum.Input += t.Input
		sum.Cache5m += t.Cache5m
		sum.Cache1h += t.Cache1h
		sum.CacheRead += t.CacheRead
		sum.Output += t.Output
		sum.RequestCount += t.RequestCount
	}
	return sum
}

// Dollars computes the total dollar cost across every model in the
// aggregate, resolving each model's rates independently from catalog
// (since each model can carry different per-token rates).
func (a Aggregate) Dollars(catalog *Catalog) float64 {
	var total float64
	for model, t := range a.ByModel {
		total += t.Dollars(catalog.Resolve(model, nil))
	}
	return round6(total)
}
