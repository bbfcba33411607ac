package cmd

import (
	"os"

	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "oneclick",
	Short: "Interactive deployment session server",
	Long:  "OneClick serves scripted deployment sessions over WebSocket, with an optional Telegram channel and a terminal client.",
}

// Execute runs the root command and exits non-zero on failure.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
