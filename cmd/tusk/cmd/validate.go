package cmd

import (
	"encoding/json"

	"github.com/spf13/cobra"

	"tusk/internal/tuskerr"
)

var validateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Run the read-only integrity sweep and print its report",
	RunE:  runValidate,
}

func init() {
	rootCmd.AddCommand(validateCmd)
}

// runValidate prints the report on stdout either way; a non-clean report
// is additionally surfaced as an integrity error so ExitCode maps it to 2
// rather than the success path's 0, per spec.md §7's "validate exits
// non-zero when it finds anything" convention.
func runValidate(cmd *cobra.Command, args []string) error {
	app, closeApp, err := newApp(cmd.Context())
	if err != nil {
		return finish(nil, err)
	}
	defer closeApp()

	report, err := app.Validate.Run(cmd.Context())
	if err != nil {
		return finish(nil, err)
	}
	if report.Clean() {
		return finish(report, nil)
	}

	outcome, marshalErr := reportToOutcome(report)
	if marshalErr != nil {
		return finish(nil, marshalErr)
	}
	reportErr := tuskerr.Integrity("VALIDATION_FAILED", "integrity sweep found inconsistencies")
	reportErr.Outcome = outcome
	return finish(nil, reportErr)
}

func reportToOutcome(v any) (map[string]any, error) {
	raw, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	var out map[string]any
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, err
	}
	return out, nil
}
