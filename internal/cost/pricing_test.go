package cost

import (
	"os"
	"path/filepath"
	"testing"
)

func TestCatalog_ResolveExactKey(t *testing.T) {
	c := &Catalog{Models: map[string]Rates{"claude-opus-4-6": {Input: 15, Output: 75}}}
	r := c.Resolve("claude-opus-4-6", nil)
	if r.Input != 15 || r.Output != 75 {
		t.Fatalf("Resolve() = %+v, want exact-key rates", r)
	}
}

func TestCatalog_ResolveAlias(t *testing.T) {
	c := &Catalog{
		Models:  map[string]Rates{"claude-opus-4-6": {Input: 15}},
		Aliases: map[string]string{"opus": "claude-opus-4-6"},
	}
	r := c.Resolve("opus", nil)
	if r.Input != 15 {
		t.Fatalf("Resolve() via alias = %+v, want Input 15", r)
	}
}

func TestCatalog_ResolveLongestPrefix(t *testing.T) {
	c := &Catalog{Models: map[string]Rates{
		"claude":           {Input: 1},
		"claude-opus":      {Input: 2},
		"claude-opus-4":    {Input: 3},
	}}
	r := c.Resolve("claude-opus-4-6-20260101", nil)
	if r.Input != 3 {
		t.Fatalf("Resolve() longest prefix = %+v, want Input 3 (claude-opus-4)", r)
	}
}

func TestCatalog_ResolveUnknownReturnsZeroRates(t *testing.T) {
	c := &Catalog{Models: map[string]Rates{"claude-opus-4-6": {Input: 15}}}
	r := c.Resolve("some-unrelated-model", nil)
	if r != (Rates{}) {
		t.Fatalf("Resolve() unknown model = %+v, want zero rates", r)
	}
}

func TestLoadCatalog_MissingFileIsEmptyCatalog(t *testing.T) {
	c, err := LoadCatalog(filepath.Join(t.TempDir(), "missing.json"))
	if err != nil {
		t.Fatalf("LoadCatalog() error = %v", err)
	}
	if len(c.Models) != 0 || len(c.Aliases) != 0 {
		t.Fatalf("expected empty catalog for missing file, got %+v", c)
	}
}

func TestLoadCatalog_ParsesModelsAndAliases(t *testing.T) {
	path := filepath.Join(t.TempDir(), "pricing.json")
	body := `{"models":{"claude-opus-4-6":{"input":15,"cache_write_5m":18.75,"cache_write_1h":30,"cache_read":1.5,"output":75}},"aliases":{"opus":"claude-opus-4-6"}}`
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatalf("write pricing file: %v", err)
	}

	c, err := LoadCatalog(path)
	if err != nil {
		t.Fatalf("LoadCatalog() error = %v", err)
	}
	r := c.Resolve("opus", nil)
	if r.Output != 75 || r.CacheWrite1h != 30 {
		t.Fatalf("LoadCatalog() parsed = %+v", r)
	}
}

func TestTotals_DollarsAppliesFormula(t *testing.T) {
	totals := Totals{Input: 1_000_000, CacheRead: 1_000_000, Output: 1_000_000}
	rates := Rates{Input: 3, CacheRead: 0.3, Output: 15}
	got := totals.Dollars(rates)
	want := 3.0 + 0.3 + 15.0
	if got != want {
		t.Fatalf("Dollars() = %v, want %v", got, want)
	}
}

func TestTotals_TokensInSumsAllInputBuckets(t *testing.T) {
	totals := Totals{Input: 10, Cache5m: 20, Cache1h: 30, CacheRead: 40}
	if got := totals.TokensIn(); got != 100 {
		t.Fatalf("TokensIn() = %d, want 100", got)
	}
}
