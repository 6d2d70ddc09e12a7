// Package cmd implements Tusk's single dispatcher binary (spec.md 4.K):
// one subcommand per verb in spec.md §6, sharing one App bootstrap that
// resolves config + store + engines once per invocation.
package cmd

import (
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var (
	cfgFile       string
	dbPath        string
	transcriptDir string
	pricingPath   string
	logLevel      string
	logFormat     string
)

var rootCmd = &cobra.Command{
	Use:           "tusk",
	Short:         "Local task-and-cost tracking for AI-assisted coding workflows",
	Long:          `tusk maintains a relational store of tasks, acceptance criteria, dependencies, external blockers, work sessions, and attributes AI-model token cost to each of them.`,
	SilenceUsage:  true,
	SilenceErrors: true,
}

// Execute runs the dispatcher and returns the terminal error, if any, for
// main to translate into an exit code.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default: .tusk/config.json)")
	rootCmd.PersistentFlags().StringVar(&dbPath, "db", "", "database path (overrides config state.path)")
	rootCmd.PersistentFlags().StringVar(&transcriptDir, "transcript-dir", "", "transcript directory (overrides config transcript.dir)")
	rootCmd.PersistentFlags().StringVar(&pricingPath, "pricing", "", "pricing catalog path (overrides config pricing.path)")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "info", "log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().StringVar(&logFormat, "log-format", "auto", "log format (auto, text, json)")

	_ = viper.BindPFlag("log.level", rootCmd.PersistentFlags().Lookup("log-level"))
	_ = viper.BindPFlag("log.format", rootCmd.PersistentFlags().Lookup("log-format"))
}
