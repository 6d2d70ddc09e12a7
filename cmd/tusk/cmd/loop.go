package cmd

import (
	"github.com/spf13/cobra"
)

var loopCmd = &cobra.Command{
	Use:   "loop",
	Short: "Autonomously dispatch ready tasks to the configured agent until exhaustion",
	RunE:  runLoop,
}

var loopMaxTasks int

func init() {
	rootCmd.AddCommand(loopCmd)
	loopCmd.Flags().IntVar(&loopMaxTasks, "max-tasks", 0, "cap the number of tasks dispatched (0 = use config.loop.max_tasks)")
}

func runLoop(cmd *cobra.Command, args []string) error {
	app, closeApp, err := newApp(cmd.Context())
	if err != nil {
		return finish(nil, err)
	}
	defer closeApp()

	result, err := app.newDispatcher().Run(cmd.Context(), loopMaxTasks)
	return finish(result, err)
}
