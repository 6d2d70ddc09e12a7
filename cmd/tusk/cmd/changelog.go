package cmd

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"tusk/internal/config"
	"tusk/internal/tuskerr"
)

var changelogCmd = &cobra.Command{
	Use:   "changelog",
	Short: "Maintain CHANGELOG.md",
}

var changelogAddCmd = &cobra.Command{
	Use:   "add <version> [task-id...]",
	Short: "Insert a dated entry under ## [Unreleased], one bullet per task summary",
	Args:  cobra.MinimumNArgs(1),
	RunE:  runChangelogAdd,
}

func init() {
	rootCmd.AddCommand(changelogCmd)
	changelogCmd.AddCommand(changelogAddCmd)
}

const changelogUnreleasedMarker = "## [Unreleased]"

func runChangelogAdd(cmd *cobra.Command, args []string) error {
	app, closeApp, err := newApp(cmd.Context())
	if err != nil {
		return finish(nil, err)
	}
	defer closeApp()

	version := args[0]
	taskIDs := args[1:]

	var bullets []string
	if len(taskIDs) == 0 {
		bullets = append(bullets, "- (no tasks specified)")
	}
	for _, raw := range taskIDs {
		id, convErr := strconv.ParseInt(raw, 10, 64)
		if convErr != nil {
			return finish(nil, tuskerr.Validation("CHANGELOG_BAD_TASK_ID", fmt.Sprintf("%q is not a valid task id", raw)))
		}
		task, getErr := app.Store.GetTask(cmd.Context(), id)
		if getErr != nil {
			bullets = append(bullets, fmt.Sprintf("- [TASK-%d] (task %d not found)", id, id))
			continue
		}
		bullets = append(bullets, fmt.Sprintf("- [TASK-%d] %s", task.ID, task.Summary))
	}

	today := time.Now().Format("2006-01-02")
	entryBlock := fmt.Sprintf("## [%s] - %s\n\n%s\n", version, today, strings.Join(bullets, "\n"))

	changelogPath := filepath.Join(app.ProjectDir, "CHANGELOG.md")
	content, readErr := os.ReadFile(changelogPath)
	if readErr != nil {
		if os.IsNotExist(readErr) {
			content = []byte(changelogUnreleasedMarker + "\n")
		} else {
			return finish(nil, readErr)
		}
	}

	idx := strings.Index(string(content), changelogUnreleasedMarker)
	if idx == -1 {
		return finish(nil, tuskerr.Validation("CHANGELOG_NO_UNRELEASED", "CHANGELOG.md has no '## [Unreleased]' heading"))
	}
	eol := strings.IndexByte(string(content[idx:]), '\n')
	var insertAt int
	if eol == -1 {
		insertAt = len(content)
	} else {
		insertAt = idx + eol + 1
	}

	newContent := make([]byte, 0, len(content)+len(entryBlock)+1)
	newContent = append(newContent, content[:insertAt]...)
	newContent = append(newContent, '\n')
	newContent = append(newContent, entryBlock...)
	newContent = append(newContent, content[insertAt:]...)

	if err := config.AtomicWrite(changelogPath, newContent); err != nil {
		return finish(nil, err)
	}

	return finish(map[string]any{
		"version": version,
		"date":    today,
		"entry":   entryBlock,
		"etag":    config.CalculateETag(newContent),
	}, nil)
}
