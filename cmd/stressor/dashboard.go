package main

import (
	"github.com/spf13/cobra"

	"github.com/failproof/stressor/internal/config"
)

var dashboardCmd = &cobra.Command{
	Use:   "dashboard",
	Short: "Execute a batch with the live terminal dashboard",
	RunE: func(cmd *cobra.Command, args []string) error {
		return executeRun(cmd, true)
	},
}

func init() {
	config.RegisterRunFlags(dashboardCmd.Flags())
}
