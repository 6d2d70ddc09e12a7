package cmd

import (
	"github.com/spf13/cobra"
)

var depsCmd = &cobra.Command{
	Use:   "deps",
	Short: "Dependency graph operations",
}

var depsAddCmd = &cobra.Command{
	Use:   "add <task-id> <depends-on-id>",
	Short: "Add a dependency edge, refusing if it would create a cycle",
	Args:  cobra.ExactArgs(2),
	RunE:  runDepsAdd,
}

var depsRelationshipType string

var depsRemoveCmd = &cobra.Command{
	Use:   "remove <task-id> <depends-on-id>",
	Short: "Remove a dependency edge",
	Args:  cobra.ExactArgs(2),
	RunE:  runDepsRemove,
}

var depsListCmd = &cobra.Command{
	Use:   "list <task-id>",
	Short: "List a task's prerequisites and upstream/downstream counts",
	Args:  cobra.ExactArgs(1),
	RunE:  runDepsList,
}

func init() {
	rootCmd.AddCommand(depsCmd)
	depsCmd.AddCommand(depsAddCmd, depsRemoveCmd, depsListCmd)
	depsAddCmd.Flags().StringVar(&depsRelationshipType, "type", "blocks", "relationship type")
}

func runDepsAdd(cmd *cobra.Command, args []string) error {
	app, closeApp, err := newApp(cmd.Context())
	if err != nil {
		return finish(nil, err)
	}
	defer closeApp()

	taskID, err := parseInt64("task id", args[0])
	if err != nil {
		return finish(nil, err)
	}
	dependsOnID, err := parseInt64("depends-on id", args[1])
	if err != nil {
		return finish(nil, err)
	}
	err = app.Task.AddDependency(cmd.Context(), taskID, dependsOnID, depsRelationshipType)
	return finish(map[string]any{"task_id": taskID, "depends_on_id": dependsOnID}, err)
}

func runDepsRemove(cmd *cobra.Command, args []string) error {
	app, closeApp, err := newApp(cmd.Context())
	if err != nil {
		return finish(nil, err)
	}
	defer closeApp()

	taskID, err := parseInt64("task id", args[0])
	if err != nil {
		return finish(nil, err)
	}
	dependsOnID, err := parseInt64("depends-on id", args[1])
	if err != nil {
		return finish(nil, err)
	}
	err = app.Task.RemoveDependency(cmd.Context(), taskID, dependsOnID)
	return finish(map[string]any{"task_id": taskID, "depends_on_id": dependsOnID}, err)
}

func runDepsList(cmd *cobra.Command, args []string) error {
	app, closeApp, err := newApp(cmd.Context())
	if err != nil {
		return finish(nil, err)
	}
	defer closeApp()

	taskID, err := parseInt64("task id", args[0])
	if err != nil {
		return finish(nil, err)
	}
	result, err := app.Task.ListDependencies(cmd.Context(), taskID)
	return finish(result, err)
}

var chainCmd = &cobra.Command{
	Use:   "chain",
	Short: "Downstream sub-DAG operations",
}

var chainScopeCmd = &cobra.Command{
	Use:   "scope <head-id> [head-id...]",
	Short: "List the downstream sub-DAG from one or more head tasks",
	Args:  cobra.MinimumNArgs(1),
	RunE:  runChainScope,
}

var chainFrontierCmd = &cobra.Command{
	Use:   "frontier <head-id> [head-id...]",
	Short: "List the ready subset of a downstream sub-DAG",
	Args:  cobra.MinimumNArgs(1),
	RunE:  runChainFrontier,
}

var chainStatusCmd = &cobra.Command{
	Use:   "status <head-id> [head-id...]",
	Short: "Print human-readable progress for a downstream sub-DAG",
	Args:  cobra.MinimumNArgs(1),
	RunE:  runChainStatus,
}

func init() {
	rootCmd.AddCommand(chainCmd)
	chainCmd.AddCommand(chainScopeCmd, chainFrontierCmd, chainStatusCmd)
}

func parseHeadIDs(args []string) ([]int64, error) {
	heads := make([]int64, 0, len(args))
	for _, a := range args {
		id, err := parseInt64("head id", a)
		if err != nil {
			return nil, err
		}
		heads = append(heads, id)
	}
	return heads, nil
}

func runChainScope(cmd *cobra.Command, args []string) error {
	app, closeApp, err := newApp(cmd.Context())
	if err != nil {
		return finish(nil, err)
	}
	defer closeApp()

	heads, err := parseHeadIDs(args)
	if err != nil {
		return finish(nil, err)
	}
	result, err := app.Task.Scope(cmd.Context(), heads)
	return finish(result, err)
}

func runChainFrontier(cmd *cobra.Command, args []string) error {
	app, closeApp, err := newApp(cmd.Context())
	if err != nil {
		return finish(nil, err)
	}
	defer closeApp()

	heads, err := parseHeadIDs(args)
	if err != nil {
		return finish(nil, err)
	}
	result, err := app.Task.Frontier(cmd.Context(), heads)
	return finish(result, err)
}

func runChainStatus(cmd *cobra.Command, args []string) error {
	app, closeApp, err := newApp(cmd.Context())
	if err != nil {
		return finish(nil, err)
	}
	defer closeApp()

	heads, err := parseHeadIDs(args)
	if err != nil {
		return finish(nil, err)
	}
	result, err := app.Task.Status(cmd.Context(), heads)
	return finish(result, err)
}
