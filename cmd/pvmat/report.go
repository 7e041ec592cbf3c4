package main

import (
	"fmt"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/pvmat/pvmat"
)

var (
	reportDir   string
	reportTitle string
)

var reportCmd = &cobra.Command{
	Use:   "report",
	Short: "Write an HTML footage report",
	Long:  "Render footage facts and spread keyframes into a self-contained HTML report.",
	Run:   runReport,
}

func init() {
	reportCmd.Flags().StringVarP(&reportDir, "out", "o", "pvmat-reports/session", "output directory")
	reportCmd.Flags().StringVar(&reportTitle, "title", "pvmat footage", "report title")
	rootCmd.AddCommand(reportCmd)
}

func runReport(cmd *cobra.Command, args []string) {
	cfg := pvmat.DefaultConfig().LoadEnv()
	footage := loadFootage()

	calib := pvmat.NewCalibration()
	in := pvmat.ReportInput{
		Footage:         footage,
		Renderer:        pvmat.NewRenderer(footage, cfg.ViewWidth, cfg.ViewHeight),
		Scene:           pvmat.NewScene(),
		Calibration:     &calib,
		PathColor:       cfg.PathColor,
		VelocityUnit:    cfg.VelocityUnit,
		KeyFrameIndices: spreadFrames(len(footage.Frames)),
	}

	report := pvmat.BuildReport(in, reportTitle)
	if err := pvmat.NewReportGenerator(reportDir).Generate(report); err != nil {
		fatalf("cannot write report: %v", err)
	}
	fmt.Printf("Report written to %s\n", filepath.Join(reportDir, "index.html"))
}

// spreadFrames picks the first, middle, and last frame, collapsing
// duplicates for short footage.
func spreadFrames(n int) []int {
	frames := []int{0}
	for _, f := range []int{n / 2, n - 1} {
		if f > frames[len(frames)-1] {
			frames = append(frames, f)
		}
	}
	return frames
}
