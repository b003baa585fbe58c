package main

import (
	"os"

	"github.com/spf13/cobra"

	"contract-analyzer/internal/shared/config"
	"contract-analyzer/internal/shared/telemetry"
)

var cfg config.Config

var rootCmd = &cobra.Command{
	Use:   "contractctl",
	Short: "Contract analysis from the command line",
	Long:  "Runs the contract analysis pipeline against local files and checks Gemini API keys.",
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		cfg = config.Load()
		telemetry.Init(cfg.LogLevel, cfg.LogFormat)
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		telemetry.Sync()
	},
	SilenceUsage: true,
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
