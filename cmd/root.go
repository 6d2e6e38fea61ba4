package cmd

import (
	"github.com/spf13/cobra"
)

var (
	cfgFile string
	verbose bool
)

var rootCmd = &cobra.Command{
	Use:   "actiongate",
	Short: "Single-use callback tokens for interactive actions",
	Long: `Actiongate issues short-lived, single-use tokens for interactive
actions (approval buttons, confirmations) and dispatches each
redemption through rate limiting, access control and idempotency
checks to an application handler, updating the originating message
with the outcome.`,
}

func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", ".actiongate.yml", "config file path")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "verbose output")
}
