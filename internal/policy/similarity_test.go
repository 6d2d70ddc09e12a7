package policy

import "testing"

func TestNormalizeSummary_StripsConfiguredPrefixAndTag(t *testing.T) {
	prefixes := []string{"[Deferred]", "[Optional]"}
	got := NormalizeSummary("[Deferred] PROJ-123  Fix the   login bug", prefixes)
	want := "fix the login bug"
	if got != want {
		t.Fatalf("NormalizeSummary() = %q, want %q", got, want)
	}
}

func TestNormalizeSummary_Idempotent(t *testing.T) {
	prefixes := []string{"[Deferred]"}
	once := NormalizeSummary("[Deferred] Fix the bug", prefixes)
	twice := NormalizeSummary(once, prefixes)
	if once != twice {
		t.Fatalf("expected normalization to be idempotent: %q != %q", once, twice)
	}
}

func TestSimilarityRatio_IdenticalStringsScoreOne(t *testing.T) {
	if r := SimilarityRatio("fix the login bug", "fix the login bug"); r != 1 {
		t.Fatalf("expected ratio 1 for identical strings, got %v", r)
	}
}

func TestSimilarityRatio_DisjointStringsScoreLowerThanNearDuplicate(t *testing.T) {
	unrelated := SimilarityRatio("fix the login bug", "add dark mode toggle")
	nearDup := SimilarityRatio("fix the login bug", "fix the login flow")
	if unrelated >= nearDup {
		t.Fatalf("expected unrelated strings (%v) to score lower than a near-duplicate (%v)", unrelated, nearDup)
	}
}

func TestSuggestEnum_FindsClosestMatch(t *testing.T) {
	valid := []string{"backend", "frontend", "infra", "docs"}
	got := SuggestEnum("backnd", valid)
	if got != "backend" {
		t.Fatalf("SuggestEnum() = %q, want %q", got, "backend")
	}
}

func TestPrefilter_NarrowsCandidates(t *testing.T) {
	candidates := []string{"fix the login bug", "add dark mode toggle", "fix login flow"}
	out := Prefilter("fix the login bug", candidates)
	if len(out) == 0 {
		t.Fatal("expected Prefilter to return at least the query's own near-matches")
	}
}
