package main

import (
	"os"

	"github.com/spf13/cobra"

	"balltrack/internal/dashboard"
)

var (
	dashboardOut   string
	dashboardTable string
)

var dashboardCmd = &cobra.Command{
	Use:   "dashboard",
	Short: "Render the Grafana accuracy dashboard",
	Long:  "dashboard renders Grafana dashboards for the GreptimeDB accuracy table. GREPTIMEDB_DATASOURCE_UID must be set.",
	RunE: func(cmd *cobra.Command, args []string) error {
		table := dashboardTable
		if table == "" {
			table = os.Getenv("GREPTIMEDB_TABLE")
		}
		return dashboard.Render(dashboardOut, dashboard.Params{Table: table})
	},
}

func init() {
	dashboardCmd.Flags().StringVar(&dashboardOut, "out", "build", "Output directory")
	dashboardCmd.Flags().StringVar(&dashboardTable, "table", "", "Accuracy table name (default: GREPTIMEDB_TABLE or ball_accuracy)")
}
