package cmd

import (
	"github.com/spf13/cobra"
)

var criteriaCmd = &cobra.Command{
	Use:   "criteria",
	Short: "Acceptance-criterion operations",
}

var criteriaAddCmd = &cobra.Command{
	Use:   "add <task-id> <text>",
	Short: "Add an acceptance criterion to a task",
	Args:  cobra.ExactArgs(2),
	RunE:  runCriteriaAdd,
}

var (
	criteriaAddType    string
	criteriaAddSpec    string
	criteriaAddDeferre bool
)

var criteriaListCmd = &cobra.Command{
	Use:   "list <task-id>",
	Short: "List every criterion for a task",
	Args:  cobra.ExactArgs(1),
	RunE:  runCriteriaList,
}

var criteriaDoneCmd = &cobra.Command{
	Use:   "done <criterion-id>",
	Short: "Mark a criterion complete and attempt best-effort cost capture",
	Args:  cobra.ExactArgs(1),
	RunE:  runCriteriaDone,
}

var criteriaDoneCommit string

var criteriaResetCmd = &cobra.Command{
	Use:   "reset <criterion-id>",
	Short: "Clear a criterion's completion and cost fields",
	Args:  cobra.ExactArgs(1),
	RunE:  runCriteriaReset,
}

func init() {
	rootCmd.AddCommand(criteriaCmd)
	criteriaCmd.AddCommand(criteriaAddCmd, criteriaListCmd, criteriaDoneCmd, criteriaResetCmd)
	criteriaAddCmd.Flags().StringVar(&criteriaAddType, "type", "manual", "criterion type")
	criteriaAddCmd.Flags().StringVar(&criteriaAddSpec, "spec", "", "verification spec (required for code|test|file types)")
	criteriaAddCmd.Flags().BoolVar(&criteriaAddDeferre, "deferred", false, "mark the criterion deferred (does not block terminal closure)")
	criteriaDoneCmd.Flags().StringVar(&criteriaDoneCommit, "commit", "", "commit hash the criterion was satisfied in")
}

func runCriteriaAdd(cmd *cobra.Command, args []string) error {
	app, closeApp, err := newApp(cmd.Context())
	if err != nil {
		return finish(nil, err)
	}
	defer closeApp()

	taskID, err := parseInt64("task id", args[0])
	if err != nil {
		return finish(nil, err)
	}

	var spec *string
	if criteriaAddSpec != "" {
		spec = &criteriaAddSpec
	}
	result, err := app.Criteria.Add(cmd.Context(), taskID, args[1], criteriaAddType, spec, criteriaAddDeferre)
	return finish(result, err)
}

func runCriteriaList(cmd *cobra.Command, args []string) error {
	app, closeApp, err := newApp(cmd.Context())
	if err != nil {
		return finish(nil, err)
	}
	defer closeApp()

	taskID, err := parseInt64("task id", args[0])
	if err != nil {
		return finish(nil, err)
	}
	result, err := app.Criteria.List(cmd.Context(), taskID)
	return finish(result, err)
}

func runCriteriaDone(cmd *cobra.Command, args []string) error {
	app, closeApp, err := newApp(cmd.Context())
	if err != nil {
		return finish(nil, err)
	}
	defer closeApp()

	id, err := parseInt64("criterion id", args[0])
	if err != nil {
		return finish(nil, err)
	}

	var commit *string
	if criteriaDoneCommit != "" {
		commit = &criteriaDoneCommit
	}
	result, err := app.Criteria.MarkDone(cmd.Context(), id, commit)
	if err != nil {
		return finish(nil, err)
	}

	out := map[string]any{"criterion": result.Criterion}
	if result.CostResult != nil {
		out["cost"] = result.CostResult
	}
	if result.CostError != nil {
		out["cost_capture_warning"] = result.CostError.Error()
	}
	return finish(out, nil)
}

func runCriteriaReset(cmd *cobra.Command, args []string) error {
	app, closeApp, err := newApp(cmd.Context())
	if err != nil {
		return finish(nil, err)
	}
	defer closeApp()

	id, err := parseInt64("criterion id", args[0])
	if err != nil {
		return finish(nil, err)
	}
	result, err := app.Criteria.Reset(cmd.Context(), id)
	return finish(result, err)
}
