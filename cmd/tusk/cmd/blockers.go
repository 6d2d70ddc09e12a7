package cmd

import (
	"database/sql"

	"github.com/spf13/cobra"
)

var blockersCmd = &cobra.Command{
	Use:   "blockers",
	Short: "External blocker operations",
}

var blockersAddCmd = &cobra.Command{
	Use:   "add <task-id> <description>",
	Short: "Add an unresolved external blocker for a task",
	Args:  cobra.ExactArgs(2),
	RunE:  runBlockersAdd,
}

var blockersAddType string

var blockersListCmd = &cobra.Command{
	Use:   "list <task-id>",
	Short: "List every blocker for a task",
	Args:  cobra.ExactArgs(1),
	RunE:  runBlockersList,
}

var blockersResolveCmd = &cobra.Command{
	Use:   "resolve <blocker-id>",
	Short: "Mark a blocker resolved",
	Args:  cobra.ExactArgs(1),
	RunE:  runBlockersResolve,
}

var blockersRemoveCmd = &cobra.Command{
	Use:   "remove <blocker-id>",
	Short: "Delete a blocker row outright",
	Args:  cobra.ExactArgs(1),
	RunE:  runBlockersRemove,
}

var blockersBlockedCmd = &cobra.Command{
	Use:   "blocked",
	Short: "List the distinct task ids with at least one open blocker",
	RunE:  runBlockersBlocked,
}

var blockersAllCmd = &cobra.Command{
	Use:   "all",
	Short: "List every open blocker across all tasks",
	RunE:  runBlockersAll,
}

func init() {
	rootCmd.AddCommand(blockersCmd)
	blockersCmd.AddCommand(blockersAddCmd, blockersListCmd, blockersResolveCmd, blockersRemoveCmd, blockersBlockedCmd, blockersAllCmd)
	blockersAddCmd.Flags().StringVar(&blockersAddType, "type", "", "blocker type")
}

func runBlockersAdd(cmd *cobra.Command, args []string) error {
	app, closeApp, err := newApp(cmd.Context())
	if err != nil {
		return finish(nil, err)
	}
	defer closeApp()

	taskID, err := parseInt64("task id", args[0])
	if err != nil {
		return finish(nil, err)
	}
	description := args[1]

	var blockerType *string
	if blockersAddType != "" {
		blockerType = &blockersAddType
	}
	if blockerType != nil && !app.Config.ValidBlockerType(*blockerType) {
		return finish(nil, invalidEnumErr("blocker_type", *blockerType, app.Config.BlockerTypes))
	}
	if _, err := app.Store.GetTask(cmd.Context(), taskID); err != nil {
		return finish(nil, err)
	}

	var id int64
	err = app.Store.WithTx(cmd.Context(), func(tx *sql.Tx) error {
		var txErr error
		id, txErr = app.Store.AddBlocker(cmd.Context(), tx, taskID, description, blockerType)
		return txErr
	})
	return finish(map[string]any{"id": id, "task_id": taskID}, err)
}

func runBlockersList(cmd *cobra.Command, args []string) error {
	app, closeApp, err := newApp(cmd.Context())
	if err != nil {
		return finish(nil, err)
	}
	defer closeApp()

	taskID, err := parseInt64("task id", args[0])
	if err != nil {
		return finish(nil, err)
	}
	result, err := app.Store.ListBlockers(cmd.Context(), taskID)
	return finish(result, err)
}

func runBlockersResolve(cmd *cobra.Command, args []string) error {
	app, closeApp, err := newApp(cmd.Context())
	if err != nil {
		return finish(nil, err)
	}
	defer closeApp()

	id, err := parseInt64("blocker id", args[0])
	if err != nil {
		return finish(nil, err)
	}
	err = app.Store.WithTx(cmd.Context(), func(tx *sql.Tx) error {
		return app.Store.ResolveBlocker(cmd.Context(), tx, id)
	})
	return finish(map[string]any{"id": id, "resolved": true}, err)
}

func runBlockersRemove(cmd *cobra.Command, args []string) error {
	app, closeApp, err := newApp(cmd.Context())
	if err != nil {
		return finish(nil, err)
	}
	defer closeApp()

	id, err := parseInt64("blocker id", args[0])
	if err != nil {
		return finish(nil, err)
	}
	err = app.Store.WithTx(cmd.Context(), func(tx *sql.Tx) error {
		return app.Store.RemoveBlocker(cmd.Context(), tx, id)
	})
	return finish(map[string]any{"id": id, "removed": true}, err)
}

func runBlockersBlocked(cmd *cobra.Command, _ []string) error {
	app, closeApp, err := newApp(cmd.Context())
	if err != nil {
		return finish(nil, err)
	}
	defer closeApp()

	all, err := app.Store.ListAllOpenBlockers(cmd.Context())
	if err != nil {
		return finish(nil, err)
	}
	seen := map[int64]bool{}
	var taskIDs []int64
	for _, b := range all {
		if !seen[b.TaskID] {
			seen[b.TaskID] = true
			taskIDs = append(taskIDs, b.TaskID)
		}
	}
	return finish(taskIDs, nil)
}

func runBlockersAll(cmd *cobra.Command, _ []string) error {
	app, closeApp, err := newApp(cmd.Context())
	if err != nil {
		return finish(nil, err)
	}
	defer closeApp()

	result, err := app.Store.ListAllOpenBlockers(cmd.Context())
	return finish(result, err)
}
