package main

import (
	"fmt"
	"image"
	"path/filepath"

	"github.com/cheggaaa/pb/v3"
	"github.com/spf13/cobra"

	"github.com/pvmat/pvmat"
	"github.com/pvmat/pvmat/vision"
)

var (
	trackBox       string
	trackFrame     int
	trackAlgorithm string
	trackScalePx   float64
	trackScaleDist string
	trackUnits     string
	trackVelocity  string
	trackReportDir string
)

var trackCmd = &cobra.Command{
	Use:   "track",
	Short: "Track an object through the footage",
	Long: `Anchor a tracker on a bounding box and follow the object through every
frame. With a calibration scale given, per-frame velocities are derived;
tracking failures on single frames are bridged from the neighboring
successful frames.`,
	Run: runTrack,
}

func init() {
	trackCmd.Flags().StringVar(&trackBox, "box", "", "initial bounding box in display coordinates (x,y,w,h)")
	trackCmd.Flags().IntVar(&trackFrame, "frame", 0, "frame the box is anchored on")
	trackCmd.Flags().StringVar(&trackAlgorithm, "algorithm", "csrt", "tracking algorithm (csrt, kcf, mil)")
	trackCmd.Flags().Float64Var(&trackScalePx, "scale-px", 0, "calibration line length in display pixels")
	trackCmd.Flags().StringVar(&trackScaleDist, "scale-dist", "", `real distance of the calibration line (e.g. 2.5 or 5'6")`)
	trackCmd.Flags().StringVar(&trackUnits, "units", "", "unit system for the calibration distance (m, ft-in)")
	trackCmd.Flags().StringVar(&trackVelocity, "velocity-units", "", "velocity display unit (m/s, km/h, ft/s, mph)")
	trackCmd.Flags().StringVar(&trackReportDir, "report", "", "write an HTML session report into this directory")
	rootCmd.AddCommand(trackCmd)
}

func runTrack(cmd *cobra.Command, args []string) {
	cfg := pvmat.DefaultConfig().LoadEnv()
	footage := loadFootage()

	box, err := parseBox(trackBox)
	if err != nil {
		fatalf("%v", err)
	}
	if trackFrame < 0 || trackFrame >= len(footage.Frames) {
		fatalf("frame %d out of range (footage has %d frames)", trackFrame, len(footage.Frames))
	}

	units := cfg.Units
	if trackUnits != "" {
		u, ok := pvmat.ParseUnitSystem(trackUnits)
		if !ok {
			fatalf("unknown unit system %q (want m or ft-in)", trackUnits)
		}
		units = u
	}
	velocityUnit := cfg.VelocityUnit
	if trackVelocity != "" {
		u, ok := pvmat.ParseVelocityUnit(trackVelocity)
		if !ok {
			fatalf("unknown velocity unit %q (want m/s, km/h, ft/s, or mph)", trackVelocity)
		}
		velocityUnit = u
	}

	calib := pvmat.NewCalibration()
	if trackScalePx > 0 && trackScaleDist != "" {
		if units != pvmat.Metric && units != pvmat.Imperial {
			fatalf("calibration needs a physical unit system (m or ft-in)")
		}
		v, err := pvmat.ParseDistance(trackScaleDist, units)
		if err != nil {
			fatalf("cannot parse calibration distance %q: %v", trackScaleDist, err)
		}
		if !calib.Set(trackScalePx, v, units) {
			fatalf("calibration distance must be positive")
		}
	}

	renderer := pvmat.NewRenderer(footage, cfg.ViewWidth, cfg.ViewHeight)

	tracker, err := vision.NewTracker(trackAlgorithm)
	if err != nil {
		fatalf("%v", err)
	}

	fmt.Printf("Tracking %d frames with %s...\n", len(footage.Frames), tracker.Algorithm())
	bar := pb.StartNew(len(footage.Frames))
	session, err := pvmat.RunTracking(tracker, footage, renderer.Scale(), trackFrame, box,
		func(frame, total int) { bar.Increment() })
	bar.Finish()
	if err != nil {
		fatalf("%v", err)
	}

	if calib.Calibrated() {
		session.Velocities = pvmat.Velocities(session.COMs, session.Failed, footage.FPS)
	}

	fmt.Printf("\nTracked %d frames, path of %d points\n", session.Frames(), session.PathLen(session.Frames()-1))
	if session.HasFailures() {
		fmt.Printf("Tracking failure at frame %d (%d frames failed)\n", session.FirstFailure+1, session.FailureCount())
	}
	if factor := calib.VelocityDisplayFactor(velocityUnit); factor > 0 {
		printVelocitySummary(session, factor, velocityUnit)
	}

	if trackReportDir != "" {
		in := pvmat.ReportInput{
			Footage:      footage,
			Renderer:     renderer,
			Scene:        pvmat.NewScene(),
			Calibration:  &calib,
			Session:      session,
			Frame:        trackFrame,
			PathColor:    cfg.PathColor,
			VelocityUnit: velocityUnit,
		}
		report := pvmat.BuildReport(in, "pvmat tracking session")
		if err := pvmat.NewReportGenerator(trackReportDir).Generate(report); err != nil {
			fatalf("cannot write report: %v", err)
		}
		fmt.Printf("Report written to %s\n", filepath.Join(trackReportDir, "index.html"))
	}
}

func printVelocitySummary(session *pvmat.Session, factor float64, unit pvmat.VelocityUnit) {
	var sum, max float64
	n := 0
	for i, v := range session.Velocities {
		if i == 0 || i == len(session.Velocities)-1 || session.Failed[i] {
			continue
		}
		d := v * factor
		sum += d
		if d > max {
			max = d
		}
		n++
	}
	if n == 0 {
		return
	}
	fmt.Printf("Velocity: mean %s, max %s\n",
		pvmat.FormatVelocity(sum/float64(n), unit), pvmat.FormatVelocity(max, unit))
}

func parseBox(s string) (box image.Rectangle, err error) {
	if s == "" {
		return box, fmt.Errorf("--box is required (x,y,w,h in display coordinates)")
	}
	var x, y, w, h int
	if _, err := fmt.Sscanf(s, "%d,%d,%d,%d", &x, &y, &w, &h); err != nil {
		return box, fmt.Errorf("cannot parse box %q (want x,y,w,h)", s)
	}
	if w <= 0 || h <= 0 {
		return box, fmt.Errorf("box %q has non-positive size", s)
	}
	return image.Rect(x, y, x+w, y+h), nil
}
