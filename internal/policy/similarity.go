// Package policy implements the autoclose/backlog policy engine and
// duplicate-detection algorithm (spec.md 4.G).
package policy

import (
	"regexp"
	"strings"

	"github.com/sahilm/fuzzy"
	"github.com/sergi/go-diff/diffmatchpatch"
)

var tagPrefixPattern = regexp.MustCompile(`^[A-Z][A-Za-z0-9]*-\d+\s*`)

// NormalizeSummary strips configured prefix tags (e.g. "[Deferred]",
// "[Optional]") and a generic "TAG-123" ticket-id prefix, collapses
// whitespace, and lowercases, per spec.md 4.G's duplicate-detection
// normalization steps.
func NormalizeSummary(summary string, stripPrefixes []string) string {
	s := summary
	for {
		trimmed := strings.TrimSpace(s)
		stripped := false
		for _, prefix := range stripPrefixes {
			if strings.HasPrefix(trimmed, prefix) {
				trimmed = strings.TrimSpace(strings.TrimPrefix(trimmed, prefix))
				stripped = true
			}
		}
		if loc := tagPrefixPattern.FindStringIndex(trimmed); loc != nil && loc[0] == 0 {
			trimmed = strings.TrimSpace(trimmed[loc[1]:])
			stripped = true
		}
		s = trimmed
		if !stripped {
			break
		}
	}
	s = strings.Join(strings.Fields(s), " ")
	return strings.ToLower(s)
}

// SimilarityRatio returns the longest-common-subsequence-based similarity
// ratio between two strings, in [0, 1]. Grounded on Python's
// difflib.SequenceMatcher.ratio(): 2 * matched / total, computed here via
// diffmatchpatch's diff (an LCS-family algorithm) instead of re-deriving
// a matcher from scratch.
func SimilarityRatio(a, b string) float64 {
	if a == "" && b == "" {
		return 1
	}
	dmp := diffmatchpatch.New()
	diffs := dmp.DiffMain(a, b, false)
	matched := 0
	for _, d := range diffs {
		if d.Type == diffmatchpatch.DiffEqual {
			matched += len(d.Text)
		}
	}
	total := len(a) + len(b)
	if total == 0 {
		return 1
	}
	return 2 * float64(matched) / float64(total)
}

// CandidatePair is a (summary, similarity) scan result.
type CandidatePair struct {
	SummaryA   string
	SummaryB   string
	Similarity float64
}

// Prefilter narrows a candidate set to those with some token overlap with
// query before the O(n^2) LCS pass runs, using sahilm/fuzzy's scoring as a
// cheap O(n) first pass (repurposed here from command-palette matching to
// backlog duplicate prefiltering).
func Prefilter(query string, candidates []string) []string {
	if len(candidates) == 0 {
		return nil
	}
	matches := fuzzy.Find(query, candidates)
	out := make([]string, 0, len(matches))
	for _, m := range matches {
		out = append(out, candidates[m.Index])
	}
	return out
}

// SuggestEnum returns the closest fuzzy match to value among valid, or ""
// if nothing scores above a usable threshold. Used to build "did you mean"
// text on enum-validation errors (spec.md 4.B).
func SuggestEnum(value string, valid []string) string {
	if value == "" || len(valid) == 0 {
		return ""
	}
	matches := fuzzy.Find(value, valid)
	if len(matches) == 0 {
		return ""
	}
	return valid[matches[0].Index]
}
