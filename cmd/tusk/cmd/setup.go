package cmd

import (
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"tusk/internal/store"
)

var setupCmd = &cobra.Command{
	Use:   "setup",
	Short: "Return config, open backlog, and conventions as one JSON document",
	RunE:  runSetup,
}

func init() {
	rootCmd.AddCommand(setupCmd)
}

// SetupResult is the combined document an agent reads once at the start
// of a session to orient itself: the active config, every non-terminal
// task ordered by WSJF rank, and any free-form conventions.
type SetupResult struct {
	Config            interface{}    `json:"config"`
	OpenBacklog       []*store.Task  `json:"open_backlog"`
	Conventions       string         `json:"conventions"`
	ConventionsHeader map[string]any `json:"conventions_header,omitempty"`
}

const conventionsFrontMatterDelim = "---"

// splitFrontMatter pulls an optional leading "---\n...\n---\n" YAML block
// off conventions.md, returning the parsed header and the remaining body.
// A file with no front matter (or a malformed one) is returned unchanged
// with a nil header.
func splitFrontMatter(content string) (header map[string]any, body string) {
	body = content
	lines := strings.SplitAfter(content, "\n")
	if len(lines) == 0 || strings.TrimSpace(lines[0]) != conventionsFrontMatterDelim {
		return nil, body
	}
	for i := 1; i < len(lines); i++ {
		if strings.TrimSpace(lines[i]) != conventionsFrontMatterDelim {
			continue
		}
		raw := strings.Join(lines[1:i], "")
		var parsed map[string]any
		if err := yaml.Unmarshal([]byte(raw), &parsed); err != nil {
			return nil, content
		}
		return parsed, strings.Join(lines[i+1:], "")
	}
	return nil, body
}

func runSetup(cmd *cobra.Command, _ []string) error {
	app, closeApp, err := newApp(cmd.Context())
	if err != nil {
		return finish(nil, err)
	}
	defer closeApp()

	tasks, err := app.Store.ListTasks(cmd.Context())
	if err != nil {
		return finish(nil, err)
	}
	terminal := app.Config.TerminalStatus()
	var backlog []*store.Task
	for _, t := range tasks {
		if t.Status != terminal {
			backlog = append(backlog, t)
		}
	}

	conventions := ""
	var conventionsHeader map[string]any
	if data, readErr := os.ReadFile(filepath.Join(app.ProjectDir, ".tusk", "conventions.md")); readErr == nil {
		conventionsHeader, conventions = splitFrontMatter(string(data))
	}

	return finish(&SetupResult{
		Config:            app.Config,
		OpenBacklog:       backlog,
		Conventions:       conventions,
		ConventionsHeader: conventionsHeader,
	}, nil)
}
