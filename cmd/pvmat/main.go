package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/pvmat/pvmat"
	"github.com/pvmat/pvmat/vision"
)

var (
	panoramaPath  string
	locationsPath string
	videoPath     string
)

var rootCmd = &cobra.Command{
	Use:   "pvmat",
	Short: "Measurement and tracking annotation over stitched panoramic video",
	Long: `pvmat measures distances and tracks object motion over panoramic video.
It consumes a stitcher's outputs (panorama image, frame locations sidecar,
source video) and derives calibrated distances, motion paths, and velocities.`,
	Version: "1.0.0",
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVar(&panoramaPath, "panorama", "", "stitched panorama image")
	rootCmd.PersistentFlags().StringVar(&locationsPath, "locations", "", "frame locations sidecar (JSON)")
	rootCmd.PersistentFlags().StringVar(&videoPath, "video", "", "source video file")
}

func loadFootage() *pvmat.Footage {
	footage, err := vision.LoadFootage(panoramaPath, locationsPath, videoPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error loading footage: %v\n", err)
		os.Exit(1)
	}
	return footage
}

func fatalf(format string, args ...interface{}) {
	fmt.Fprintf(os.Stderr, "Error: "+format+"\n", args...)
	os.Exit(1)
}
