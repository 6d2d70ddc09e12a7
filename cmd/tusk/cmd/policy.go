package cmd

import (
	"github.com/spf13/cobra"

	"tusk/internal/policy"
	"tusk/internal/tuskerr"
)

var autocloseCmd = &cobra.Command{
	Use:   "autoclose",
	Short: "Sweep expired-deferred tasks and cascade-close moot contingent tasks",
	RunE:  runAutoclose,
}

var backlogScanCmd = &cobra.Command{
	Use:   "backlog-scan",
	Short: "Scan the backlog for duplicates, unassigned/unsized, and expired tasks",
	RunE:  runBacklogScan,
}

var (
	backlogScanDuplicates bool
	backlogScanUnassigned bool
	backlogScanUnsized    bool
	backlogScanExpired    bool
	backlogScanAll        bool
)

var dupesCmd = &cobra.Command{
	Use:   "dupes",
	Short: "Fuzzy duplicate-summary detection",
}

var dupesCheckCmd = &cobra.Command{
	Use:   "check <summary>",
	Short: "Check one summary against every open task",
	Args:  cobra.ExactArgs(1),
	RunE:  runDupesCheck,
}

var dupesScanCmd = &cobra.Command{
	Use:   "scan",
	Short: "List every open-task pair at or above the check threshold",
	RunE:  runDupesScan,
}

var dupesSimilarCmd = &cobra.Command{
	Use:   "similar",
	Short: "List every open-task pair at or above the (lower) similar threshold",
	RunE:  runDupesSimilar,
}

func init() {
	rootCmd.AddCommand(autocloseCmd, backlogScanCmd, dupesCmd)
	dupesCmd.AddCommand(dupesCheckCmd, dupesScanCmd, dupesSimilarCmd)

	backlogScanCmd.Flags().BoolVar(&backlogScanDuplicates, "duplicates", false, "run the duplicate scan")
	backlogScanCmd.Flags().BoolVar(&backlogScanUnassigned, "unassigned", false, "list unassigned initial-status tasks")
	backlogScanCmd.Flags().BoolVar(&backlogScanUnsized, "unsized", false, "list initial-status tasks missing a complexity estimate")
	backlogScanCmd.Flags().BoolVar(&backlogScanExpired, "expired", false, "list non-terminal tasks past their expires_at")
	backlogScanCmd.Flags().BoolVar(&backlogScanAll, "all", false, "run all four scans")
}

func runAutoclose(cmd *cobra.Command, args []string) error {
	app, closeApp, err := newApp(cmd.Context())
	if err != nil {
		return finish(nil, err)
	}
	defer closeApp()

	result, err := app.Policy.RunAutoclose(cmd.Context())
	return finish(result, err)
}

func runBacklogScan(cmd *cobra.Command, args []string) error {
	app, closeApp, err := newApp(cmd.Context())
	if err != nil {
		return finish(nil, err)
	}
	defer closeApp()

	req := policy.BacklogScanRequest{
		Duplicates: backlogScanAll || backlogScanDuplicates,
		Unassigned: backlogScanAll || backlogScanUnassigned,
		Unsized:    backlogScanAll || backlogScanUnsized,
		Expired:    backlogScanAll || backlogScanExpired,
	}
	if !req.Duplicates && !req.Unassigned && !req.Unsized && !req.Expired {
		return finish(nil, tuskerr.Validation("NO_SCAN_SELECTED",
			"at least one of --duplicates, --unassigned, --unsized, --expired, --all is required"))
	}

	result, err := app.Policy.RunBacklogScan(cmd.Context(), req)
	return finish(result, err)
}

func runDupesCheck(cmd *cobra.Command, args []string) error {
	app, closeApp, err := newApp(cmd.Context())
	if err != nil {
		return finish(nil, err)
	}
	defer closeApp()

	match, err := app.Policy.CheckDuplicate(cmd.Context(), args[0])
	if err != nil {
		return finish(nil, err)
	}
	if match == nil {
		return finish(map[string]any{"duplicate_found": false}, nil)
	}
	return finish(map[string]any{"duplicate_found": true, "match": match}, nil)
}

func runDupesScan(cmd *cobra.Command, args []string) error {
	app, closeApp, err := newApp(cmd.Context())
	if err != nil {
		return finish(nil, err)
	}
	defer closeApp()

	pairs, err := app.Policy.ScanDupes(cmd.Context())
	return finish(pairs, err)
}

func runDupesSimilar(cmd *cobra.Command, args []string) error {
	app, closeApp, err := newApp(cmd.Context())
	if err != nil {
		return finish(nil, err)
	}
	defer closeApp()

	pairs, err := app.Policy.ScanSimilar(cmd.Context())
	return finish(pairs, err)
}
