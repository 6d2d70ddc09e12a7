package cmd

import (
	"github.com/spf13/cobra"

	"tusk/internal/task"
)

var insertCmd = &cobra.Command{
	Use:   "task-insert",
	Short: "Insert a task (with criteria) atomically, enforcing the duplicate check",
	RunE:  runTaskInsert,
}

var (
	insertSummary     string
	insertDescription string
	insertPriority    string
	insertDomain      string
	insertTaskType    string
	insertAssignee    string
	insertComplexity  string
	insertCriteria    []string
)

func init() {
	rootCmd.AddCommand(insertCmd)
	insertCmd.Flags().StringVar(&insertSummary, "summary", "", "task summary (required)")
	insertCmd.Flags().StringVar(&insertDescription, "description", "", "task description")
	insertCmd.Flags().StringVar(&insertPriority, "priority", "", "priority (required)")
	insertCmd.Flags().StringVar(&insertDomain, "domain", "", "domain")
	insertCmd.Flags().StringVar(&insertTaskType, "task-type", "", "task type (required)")
	insertCmd.Flags().StringVar(&insertAssignee, "assignee", "", "assignee")
	insertCmd.Flags().StringVar(&insertComplexity, "complexity", "", "complexity tier")
	insertCmd.Flags().StringArrayVar(&insertCriteria, "criterion", nil, "acceptance criterion text (repeatable)")
	_ = insertCmd.MarkFlagRequired("summary")
	_ = insertCmd.MarkFlagRequired("priority")
	_ = insertCmd.MarkFlagRequired("task-type")
}

func runTaskInsert(cmd *cobra.Command, _ []string) error {
	app, closeApp, err := newApp(cmd.Context())
	if err != nil {
		return finish(nil, err)
	}
	defer closeApp()

	in := task.InsertInput{
		Summary:     insertSummary,
		Description: insertDescription,
		Priority:    insertPriority,
		TaskType:    insertTaskType,
	}
	if cmd.Flags().Changed("domain") {
		in.Domain = &insertDomain
	}
	if cmd.Flags().Changed("assignee") {
		in.Assignee = &insertAssignee
	}
	if cmd.Flags().Changed("complexity") {
		in.Complexity = &insertComplexity
	}
	for _, text := range insertCriteria {
		in.Criteria = append(in.Criteria, task.CriterionInput{Text: text})
	}

	result, err := app.Task.Insert(cmd.Context(), in)
	return finish(result, err)
}

var updateCmd = &cobra.Command{
	Use:   "task-update",
	Short: "Update task fields; revalidates enums and rescores WSJF when relevant",
	Args:  cobra.ExactArgs(1),
	RunE:  runTaskUpdate,
}

var (
	updateSummary     string
	updateDescription string
	updatePriority    string
	updateDomain      string
	updateTaskType    string
	updateAssignee    string
	updateComplexity  string
	updateGithubPR    string
)

func init() {
	rootCmd.AddCommand(updateCmd)
	updateCmd.Flags().StringVar(&updateSummary, "summary", "", "new summary")
	updateCmd.Flags().StringVar(&updateDescription, "description", "", "new description")
	updateCmd.Flags().StringVar(&updatePriority, "priority", "", "new priority")
	updateCmd.Flags().StringVar(&updateDomain, "domain", "", "new domain (empty clears it)")
	updateCmd.Flags().StringVar(&updateTaskType, "task-type", "", "new task type")
	updateCmd.Flags().StringVar(&updateAssignee, "assignee", "", "new assignee (empty clears it)")
	updateCmd.Flags().StringVar(&updateComplexity, "complexity", "", "new complexity tier (empty clears it)")
	updateCmd.Flags().StringVar(&updateGithubPR, "github-pr", "", "new github PR URL (empty clears it)")
}

func runTaskUpdate(cmd *cobra.Command, args []string) error {
	app, closeApp, err := newApp(cmd.Context())
	if err != nil {
		return finish(nil, err)
	}
	defer closeApp()

	id, err := parseInt64("task id", args[0])
	if err != nil {
		return finish(nil, err)
	}

	var in task.UpdateInput
	if cmd.Flags().Changed("summary") {
		in.Summary = &updateSummary
	}
	if cmd.Flags().Changed("description") {
		in.Description = &updateDescription
	}
	if cmd.Flags().Changed("priority") {
		in.Priority = &updatePriority
	}
	if cmd.Flags().Changed("task-type") {
		in.TaskType = &updateTaskType
	}
	in.Domain = optionalString(cmd.Flags().Changed("domain"), updateDomain)
	in.Assignee = optionalString(cmd.Flags().Changed("assignee"), updateAssignee)
	in.Complexity = optionalString(cmd.Flags().Changed("complexity"), updateComplexity)
	in.GithubPR = optionalString(cmd.Flags().Changed("github-pr"), updateGithubPR)

	result, err := app.Task.Update(cmd.Context(), id, in)
	return finish(result, err)
}

var startCmd = &cobra.Command{
	Use:   "task-start",
	Short: "Begin or resume a session; enforces criteria-present and blocker-free gates",
	Args:  cobra.ExactArgs(1),
	RunE:  runTaskStart,
}

var startForce bool

func init() {
	rootCmd.AddCommand(startCmd)
	startCmd.Flags().BoolVar(&startForce, "force", false, "override the criteria-present gate")
}

func runTaskStart(cmd *cobra.Command, args []string) error {
	app, closeApp, err := newApp(cmd.Context())
	if err != nil {
		return finish(nil, err)
	}
	defer closeApp()

	id, err := parseInt64("task id", args[0])
	if err != nil {
		return finish(nil, err)
	}
	result, err := app.Task.Start(cmd.Context(), id, startForce)
	return finish(result, err)
}

var doneCmd = &cobra.Command{
	Use:   "task-done",
	Short: "Close a task with a reason, honoring --force; returns the unblocked set",
	Args:  cobra.ExactArgs(1),
	RunE:  runTaskDone,
}

var (
	doneReason string
	doneForce  bool
)

func init() {
	rootCmd.AddCommand(doneCmd)
	doneCmd.Flags().StringVar(&doneReason, "reason", "completed", "closed_reason value")
	doneCmd.Flags().BoolVar(&doneForce, "force", false, "close despite incomplete non-deferred criteria")
}

func runTaskDone(cmd *cobra.Command, args []string) error {
	app, closeApp, err := newApp(cmd.Context())
	if err != nil {
		return finish(nil, err)
	}
	defer closeApp()

	id, err := parseInt64("task id", args[0])
	if err != nil {
		return finish(nil, err)
	}
	result, err := app.Task.Close(cmd.Context(), id, doneReason, doneForce)
	return finish(result, err)
}

var reopenCmd = &cobra.Command{
	Use:   "task-reopen",
	Short: "Reset a task to its initial status; requires --force",
	Args:  cobra.ExactArgs(1),
	RunE:  runTaskReopen,
}

var reopenForce bool

func init() {
	rootCmd.AddCommand(reopenCmd)
	reopenCmd.Flags().BoolVar(&reopenForce, "force", false, "confirm the reopen")
}

func runTaskReopen(cmd *cobra.Command, args []string) error {
	app, closeApp, err := newApp(cmd.Context())
	if err != nil {
		return finish(nil, err)
	}
	defer closeApp()

	id, err := parseInt64("task id", args[0])
	if err != nil {
		return finish(nil, err)
	}
	result, err := app.Task.Reopen(cmd.Context(), id, reopenForce)
	return finish(result, err)
}

var selectCmd = &cobra.Command{
	Use:   "task-select",
	Short: "Return the top WSJF-ranked ready task",
	RunE:  runTaskSelect,
}

var (
	selectMaxComplexity string
	selectExclude       []int64
)

func init() {
	rootCmd.AddCommand(selectCmd)
	selectCmd.Flags().StringVar(&selectMaxComplexity, "max-complexity", "", "exclude tasks above this complexity tier")
	selectCmd.Flags().Int64SliceVar(&selectExclude, "exclude", nil, "task ids to exclude (repeatable)")
}

func runTaskSelect(cmd *cobra.Command, _ []string) error {
	app, closeApp, err := newApp(cmd.Context())
	if err != nil {
		return finish(nil, err)
	}
	defer closeApp()

	exclude := make(map[int64]bool, len(selectExclude))
	for _, id := range selectExclude {
		exclude[id] = true
	}
	result, err := app.Task.Select(cmd.Context(), selectMaxComplexity, exclude)
	return finish(result, err)
}
