package main

import (
	"context"

	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "stressor",
	Short: "Adversarial stress testing for LLM backends",
	Long: `stressor dispatches adversarial prompts against a model backend with
bounded concurrency, provider rate limiting, and retry, then classifies
every response and scans it for vulnerability patterns.`,
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	rootCmd.AddCommand(runCmd, generateCmd, analyzeCmd, dashboardCmd)
}

// Execute runs the root command with the given base context.
func Execute(ctx context.Context) error {
	return rootCmd.ExecuteContext(ctx)
}
