package cmd

import (
	"github.com/spf13/cobra"

	"tusk/internal/tuskerr"
)

// dashboard, dag, and pricing-update are external collaborator tools
// (spec.md §1): a web dashboard, a DAG visualizer, and a pricing-catalog
// refresher. They read the same store/config Tusk owns but are not part
// of the core CLI; these stubs exist only so the commands are discoverable
// and point at where the real tool lives instead of failing with cobra's
// generic "unknown command".

var dashboardCmd = &cobra.Command{
	Use:   "dashboard",
	Short: "(external) serve the task/cost dashboard — not part of the core CLI",
	RunE:  runCollabStub("dashboard", "the dashboard is a separate web service that reads this project's store and config directly"),
}

var dagCmd = &cobra.Command{
	Use:   "dag",
	Short: "(external) render the dependency graph — not part of the core CLI",
	RunE:  runCollabStub("dag", "dependency visualization is a separate tool that reads task_dependencies from the store"),
}

var pricingUpdateCmd = &cobra.Command{
	Use:   "pricing-update",
	Short: "(external) refresh the model pricing catalog — not part of the core CLI",
	RunE:  runCollabStub("pricing-update", "pricing catalog refreshes are a separate maintenance tool that rewrites config.pricing.path"),
}

func init() {
	rootCmd.AddCommand(dashboardCmd, dagCmd, pricingUpdateCmd)
}

func runCollabStub(name, detail string) func(cmd *cobra.Command, args []string) error {
	return func(cmd *cobra.Command, args []string) error {
		return finish(nil, tuskerr.Validation("EXTERNAL_TOOL",
			"`tusk "+name+"` is not implemented here: "+detail))
	}
}
