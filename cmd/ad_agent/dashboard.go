package main

import (
	"github.com/jonathan/ad-dashboard/internal/dashboard"
	"github.com/spf13/cobra"
)

var dashboardCmd = &cobra.Command{
	Use:   "dashboard",
	Short: "Show your account, ad counts and most recent ads",
	Args:  cobra.NoArgs,
	RunE:  runDashboard,
}

func init() {
	rootCmd.AddCommand(dashboardCmd)
}

func runDashboard(cmd *cobra.Command, _ []string) error {
	a, err := newApp(cmd)
	if err != nil {
		return err
	}
	defer a.Close()

	overview, err := dashboard.Load(cmd.Context(), a.api)
	if err != nil {
		return err
	}
	a.out.PrintOverview(overview)
	return nil
}
