package transcript

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func writeTranscript(t *testing.T, dir, name string, lines []string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	content := ""
	for _, l := range lines {
		content += l + "\n"
	}
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write %s: %v", name, err)
	}
	return path
}

const sampleLine = `{"type":"assistant","timestamp":"2026-01-01T00:00:00Z","requestId":"req-1","message":{"model":"claude-x","usage":{"input_tokens":100,"output_tokens":20,"cache_read_input_tokens":5,"cache_creation":{"ephemeral_5m_input_tokens":10,"ephemeral_1h_input_tokens":0}},"content":[{"type":"tool_use","id":"t1","name":"Read"},{"type":"tool_use","id":"t2","name":"Edit"}]}}`

func TestParseFile_DedupsByRequestID(t *testing.T) {
	dir := t.TempDir()
	path := writeTranscript(t, dir, "a.jsonl", []string{sampleLine, sampleLine})

	reqs, err := ParseFile(path, Window{})
	if err != nil {
		t.Fatalf("ParseFile() error = %v", err)
	}
	if len(reqs) != 1 {
		t.Fatalf("expected dedup to one request, got %d", len(reqs))
	}
	if reqs[0].Usage.InputTokens != 100 || reqs[0].Usage.CacheCreation5mTokens != 10 {
		t.Fatalf("unexpected usage extraction: %+v", reqs[0].Usage)
	}
	if len(reqs[0].ToolCalls) != 2 {
		t.Fatalf("expected 2 tool calls, got %d", len(reqs[0].ToolCalls))
	}
}

func TestParseFile_SkipsLinesMissingRequiredFields(t *testing.T) {
	dir := t.TempDir()
	missingRequestID := `{"type":"assistant","timestamp":"2026-01-01T00:00:00Z","message":{"usage":{"input_tokens":1}}}`
	missingUsage := `{"type":"assistant","timestamp":"2026-01-01T00:00:00Z","requestId":"req-2","message":{}}`
	notAssistant := `{"type":"user","timestamp":"2026-01-01T00:00:00Z","requestId":"req-3"}`
	path := writeTranscript(t, dir, "b.jsonl", []string{missingRequestID, missingUsage, notAssistant})

	reqs, err := ParseFile(path, Window{})
	if err != nil {
		t.Fatalf("ParseFile() error = %v", err)
	}
	if len(reqs) != 0 {
		t.Fatalf("expected all lines skipped, got %d requests", len(reqs))
	}
}

func TestParseFile_RespectsTimestampWindow(t *testing.T) {
	dir := t.TempDir()
	path := writeTranscript(t, dir, "c.jsonl", []string{sampleLine})

	inWindow := Window{Start: mustParse(t, "2025-12-31T00:00:00Z"), End: mustParse(t, "2026-01-02T00:00:00Z")}
	reqs, err := ParseFile(path, inWindow)
	if err != nil {
		t.Fatalf("ParseFile() error = %v", err)
	}
	if len(reqs) != 1 {
		t.Fatalf("expected request inside window, got %d", len(reqs))
	}

	outOfWindow := Window{Start: mustParse(t, "2027-01-01T00:00:00Z")}
	reqs, err = ParseFile(path, outOfWindow)
	if err != nil {
		t.Fatalf("ParseFile() error = %v", err)
	}
	if len(reqs) != 0 {
		t.Fatalf("expected request excluded by window start, got %d", len(reqs))
	}
}

func TestSplitToolCalls_SumsToRequestTotals(t *testing.T) {
	req := Request{
		Usage:     Usage{InputTokens: 100, CacheReadTokens: 5, OutputTokens: 21},
		ToolCalls: []ToolCall{{Name: "Read"}, {Name: "Edit"}, {Name: "Bash"}},
	}
	splits := SplitToolCalls(req)
	if len(splits) != 3 {
		t.Fatalf("expected 3 splits, got %d", len(splits))
	}
	var sumOut, sumIn int64
	for _, s := range splits {
		sumOut += s.MarginalOutputTokens
		sumIn += s.MarginalInputTokens
	}
	if sumOut != req.Usage.OutputTokens {
		t.Fatalf("output token split sums to %d, want %d", sumOut, req.Usage.OutputTokens)
	}
	if sumIn != req.Usage.InputTokens+req.Usage.CacheReadTokens {
		t.Fatalf("input token split sums to %d, want %d", sumIn, req.Usage.InputTokens+req.Usage.CacheReadTokens)
	}
}

func TestRouteMany_RoutesToFirstContainingWindow(t *testing.T) {
	dir := t.TempDir()
	path := writeTranscript(t, dir, "d.jsonl", []string{sampleLine})

	targets := []Target{
		{Name: "narrow", Window: Window{Start: mustParse(t, "2026-01-01T00:00:00Z"), End: mustParse(t, "2026-01-01T00:00:01Z")}},
		{Name: "wide", Window: Window{Start: mustParse(t, "2020-01-01T00:00:00Z"), End: mustParse(t, "2030-01-01T00:00:00Z")}},
	}

	routed, err := RouteMany(context.Background(), []string{path}, targets)
	if err != nil {
		t.Fatalf("RouteMany() error = %v", err)
	}
	if len(routed["narrow"]) != 1 {
		t.Fatalf("expected the narrow target to win, got %+v", routed)
	}
	if len(routed["wide"]) != 0 {
		t.Fatalf("expected the wide target to get nothing once narrow claimed the request, got %+v", routed["wide"])
	}
}

func mustParse(t *testing.T, s string) time.Time {
	t.Helper()
	ts, err := time.Parse(time.RFC3339, s)
	if err != nil {
		t.Fatalf("parse %q: %v", s, err)
	}
	return ts
}
