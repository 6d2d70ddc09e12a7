package transcript

import (
	"bufio"
	"encoding/json"
	"os"
	"time"
)

// Window bounds a timestamp filter: [Start, End] inclusive. A zero End
// means "through now", per spec.md 4.E.
type Window struct {
	Start time.Time
	End   time.Time
}

// Contains reports whether ts falls within the window, treating a zero
// End as unbounded.
func (w Window) Contains(ts time.Time) bool {
	if ts.Before(w.Start) {
		return false
	}
	if w.End.IsZero() {
		return !ts.After(time.Now().UTC())
	}
	return !ts.After(w.End)
}

// ParseFile reads one JSONL transcript file and returns every assistant
// request whose timestamp falls in window, deduplicated by requestId
// within this single pass. Lines missing type/requestId/timestamp/usage,
// or that fail to parse, are skipped silently per 4.E.
func ParseFile(path string, window Window) ([]Request, error) {
	return parseFileInto(path, window, make(map[string]bool))
}

// ParseMany reads every file in paths, deduplicating requestId across
// all of them (not just within one file), for the "deduplicated token
// aggregation across overlapping files" requirement when one attribution
// job's window spans a transcript rotation.
func ParseMany(paths []string, window Window) ([]Request, error) {
	seen := make(map[string]bool)
	var out []Request
	for _, path := range paths {
		reqs, err := parseFileInto(path, window, seen)
		if err != nil {
			return nil, err
		}
		out = append(out, reqs...)
	}
	return out, nil
}

func parseFileInto(path string, window Window, seen map[string]bool) ([]Request, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var out []Request

	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 16*1024*1024)
	for scanner.Scan() {
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}
		var raw rawEvent
		if err := json.Unmarshal(line, &raw); err != nil {
			continue
		}
		if raw.Type != "assistant" || raw.RequestID == "" || raw.Timestamp == "" || !hasUsageField(line) {
			continue
		}
		ts, ok := parseTimestamp(raw.Timestamp)
		if !ok {
			continue
		}
		if seen[raw.RequestID] {
			continue
		}
		if !window.Contains(ts) {
			continue
		}
		seen[raw.RequestID] = true

		req := Request{
			RequestID: raw.RequestID,
			Timestamp: ts,
			Model:     raw.Message.Model,
		}
		req.Usage = extractUsage(raw)
		for _, c := range raw.Message.Content {
			if c.Type == "tool_use" {
				req.ToolCalls = append(req.ToolCalls, ToolCall{Name: c.Name, ID: c.ID})
			}
		}
		out = append(out, req)
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}
	return out, nil
}

// hasUsageField does a cheap presence check for the "usage" key so an
// all-zero-tokens request (legitimately absent of any cost) isn't
// conflated with a missing usage block.
func hasUsageField(line []byte) bool {
	var probe struct {
		Message struct {
			Usage json.RawMessage `json:"usage"`
		} `json:"message"`
	}
	if err := json.Unmarshal(line, &probe); err != nil {
		return false
	}
	return len(probe.Message.Usage) > 0
}

func extractUsage(raw rawEvent) Usage {
	u := Usage{
		InputTokens:     raw.Message.Usage.InputTokens,
		OutputTokens:    raw.Message.Usage.OutputTokens,
		CacheReadTokens: raw.Message.Usage.CacheReadInputTokens,
	}
	if raw.Message.Usage.CacheCreation != nil {
		u.CacheCreation5mTokens = raw.Message.Usage.CacheCreation.Ephemeral5mInputTokens
		u.CacheCreation1hTokens = raw.Message.Usage.CacheCreation.Ephemeral1hInputTokens
	} else {
		u.CacheCreation5mTokens = raw.Message.Usage.CacheCreationInputTokens
	}
	return u
}
