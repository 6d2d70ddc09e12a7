package cost

import "math"

// Totals is one model's deduplicated token aggregate within an
// attribution window.
type Totals struct {
	Input           int64
	Cache5m         int64
	Cache1h         int64
	CacheRead       int64
	Output          int64
	RequestCount    int64
}

// Dollars applies spec.md 4.F's cost formula against rates, rounded to 6
// decimal places.
func (t Totals) Dollars(r Rates) float64 {
	cost := float64(t.Input)*r.Input/1_000_000 +
		float64(t.Cache5m)*r.CacheWrite5m/1_000_000 +
		float64(t.Cache1h)*r.CacheWrite1h/1_000_000 +
		float64(t.CacheRead)*r.CacheRead/1_000_000 +
		float64(t.Output)*r.Output/1_000_000
	return round6(cost)
}

// TokensIn is the sum of base input, both cache-creation buckets, and
// cache-read, per spec.md 4.F's "tokens_in is the sum of..." definition.
func (t Totals) TokensIn() int64 {
	return t.Input + t.Cache5m + t.Cache1h + t.CacheRead
}

// TokensOut is simply the output token count.
func (t Totals) TokensOut() int64 { return t.Output }

func round6(v float64) float64 {
	return math.Round(v*1_000_000) / 1_000_000
}
