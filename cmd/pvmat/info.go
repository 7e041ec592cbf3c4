package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/pvmat/pvmat"
)

var infoCmd = &cobra.Command{
	Use:   "info",
	Short: "Display information about loaded footage",
	Long:  "Load the stitcher artifacts and show frame, panorama, and display fit facts.",
	Run:   runInfo,
}

func init() {
	rootCmd.AddCommand(infoCmd)
}

func runInfo(cmd *cobra.Command, args []string) {
	cfg := pvmat.DefaultConfig().LoadEnv()
	footage := loadFootage()

	bounds := footage.Panorama.Bounds()
	w, h, scale := pvmat.FitDisplay(bounds.Dx(), bounds.Dy(), cfg.ViewWidth, cfg.ViewHeight)

	fmt.Println("Footage Information")
	fmt.Println("===================")
	fmt.Printf("Frames: %d\n", len(footage.Frames))
	fmt.Printf("Frame rate: %.2f fps\n", footage.FPS)
	fmt.Printf("Duration: %.2f s\n", float64(len(footage.Frames))/footage.FPS)
	fmt.Printf("Panorama: %dx%d px\n\n", bounds.Dx(), bounds.Dy())

	fmt.Println("Display Fit:")
	fmt.Printf("  View: %dx%d\n", cfg.ViewWidth, cfg.ViewHeight)
	fmt.Printf("  Strip: %dx%d (scale %.4f)\n\n", w, h, scale)

	first := footage.Frames[0].Loc
	last := footage.Frames[len(footage.Frames)-1].Loc
	fmt.Println("Frame Locations:")
	fmt.Printf("  First: (%d, %d)\n", first.X, first.Y)
	fmt.Printf("  Last: (%d, %d)\n", last.X, last.Y)
}
