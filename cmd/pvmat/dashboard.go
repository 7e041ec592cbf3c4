package main

import (
	"fmt"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/pvmat/pvmat"
)

var dashboardDir string

var dashboardCmd = &cobra.Command{
	Use:   "dashboard",
	Short: "Index generated reports into one page",
	Long:  "Scan a directory of session reports and write a dashboard page linking them all.",
	Run:   runDashboard,
}

func init() {
	dashboardCmd.Flags().StringVarP(&dashboardDir, "dir", "d", "pvmat-reports", "directory holding session report subdirectories")
	rootCmd.AddCommand(dashboardCmd)
}

func runDashboard(cmd *cobra.Command, args []string) {
	if err := pvmat.GenerateDashboard(dashboardDir); err != nil {
		fatalf("cannot build dashboard: %v", err)
	}
	fmt.Printf("Dashboard written to %s\n", filepath.Join(dashboardDir, "dashboard.html"))
}
