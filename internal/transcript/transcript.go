// Package transcript parses the append-only JSONL transcript files an
// AI-assisted coding session leaves behind, extracting per-request token
// usage and per-tool-call marginal splits for the cost engine (spec.md
// 4.E/4.F).
package transcript

import (
	"encoding/json"
	"os"
	"path/filepath"
	"sort"
	"time"
)

// Usage is the five-field token breakdown spec.md 4.E names for one
// deduplicated assistant request.
type Usage struct {
	InputTokens          int64
	OutputTokens         int64
	CacheReadTokens      int64
	CacheCreation5mTokens int64
	CacheCreation1hTokens int64
}

// ToolCall is one tool_use entry inside an assistant message.
type ToolCall struct {
	Name string
	ID   string
}

// Request is one deduplicated assistant message: a single model call,
// however many streaming chunks it arrived in.
type Request struct {
	RequestID string
	Timestamp time.Time
	Model     string
	Usage     Usage
	ToolCalls []ToolCall
}

// rawEvent mirrors the subset of one JSONL line's shape this reader needs.
// Unknown fields are ignored by encoding/json, consistent with 4.E's
// "skip silently" contract for anything incomplete.
type rawEvent struct {
	Type      string `json:"type"`
	Timestamp string `json:"timestamp"`
	RequestID string `json:"requestId"`
	Message   struct {
		Model   string `json:"model"`
		Content []struct {
			Type string `json:"type"`
			ID   string `json:"id"`
			Name string `json:"name"`
		} `json:"content"`
		Usage struct {
			InputTokens              int64 `json:"input_tokens"`
			OutputTokens             int64 `json:"output_tokens"`
			CacheReadInputTokens     int64 `json:"cache_read_input_tokens"`
			CacheCreationInputTokens int64 `json:"cache_creation_input_tokens"`
			CacheCreation            *struct {
				Ephemeral5mInputTokens int64 `json:"ephemeral_5m_input_tokens"`
				Ephemeral1hInputTokens int64 `json:"ephemeral_1h_input_tokens"`
			} `json:"cache_creation"`
		} `json:"usage"`
	} `json:"message"`
}

// parseTimestamp accepts both the "Z" and "±HH:MM" ISO-8601 suffixes per
// spec.md 4.E.
func parseTimestamp(s string) (time.Time, bool) {
	for _, layout := range []string{time.RFC3339Nano, time.RFC3339} {
		if t, err := time.Parse(layout, s); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}

// ListFiles returns every JSONL file directly under dir. When newestFirst
// is true they're ordered by modification time descending, per 4.E's
// "most recent transcript" contract; otherwise by name, for deterministic
// full-directory sweeps.
func ListFiles(dir string, newestFirst bool) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, err
	}
	type fileInfo struct {
		path    string
		modTime time.Time
	}
	var files []fileInfo
	for _, ent := range entries {
		if ent.IsDir() || filepath.Ext(ent.Name()) != ".jsonl" {
			continue
		}
		info, err := ent.Info()
		if err != nil {
			return nil, err
		}
		files = append(files, fileInfo{path: filepath.Join(dir, ent.Name()), modTime: info.ModTime()})
	}
	if newestFirst {
		sort.Slice(files, func(i, j int) bool { return files[i].modTime.After(files[j].modTime) })
	} else {
		sort.Slice(files, func(i, j int) bool { return files[i].path < files[j].path })
	}
	out := make([]string, len(files))
	for i, f := range files {
		out[i] = f.path
	}
	return out, nil
}
