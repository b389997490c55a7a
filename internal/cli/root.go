package cli

import (
	"github.com/spf13/cobra"
)

// RootConfig holds the global flags shared by every subcommand
type RootConfig struct {
	ConfigPath string
	LogLevel   string
}

// New builds the bwibbu command tree
func New() *cobra.Command {
	rc := &RootConfig{}

	cmd := &cobra.Command{
		Use:   "bwibbu",
		Short: "Backfill TWSE and TPEx valuation ratios (P/E, dividend yield, P/B)",
		Long: `bwibbu fetches the daily BWIBBU valuation table from both Taiwan exchanges
for a business-day range and stores it keyed by (code, date).

Configuration comes from an optional YAML file and environment variables.`,
		SilenceUsage: true,
	}

	cmd.PersistentFlags().StringVar(&rc.ConfigPath, "config", "", "path to a YAML config file")
	cmd.PersistentFlags().StringVar(&rc.LogLevel, "log-level", "", "override the configured log level")

	cmd.AddCommand(
		newServeCmd(rc),
		newBackfillCmd(rc),
		newQueryCmd(rc),
		newMigrateCmd(rc),
	)

	return cmd
}

// Execute runs the root command
func Execute() error {
	return New().Execute()
}
