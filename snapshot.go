package pvmat

import (
	"fmt"
	"image"
	"image/color"
	"image/png"
	"os"
	"path/filepath"
)

// SaveFramePNG writes a rendered frame to disk, creating parent directories
// as needed.
func SaveFramePNG(img image.Image, path string) error {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("failed to create frame directory: %w", err)
		}
	}

	file, err := os.Create(path)
	if err != nil {
		return err
	}
	defer file.Close()

	return png.Encode(file, img)
}

// ExportFrame saves the current annotated display frame.
func (a *App) ExportFrame(path string) error {
	return SaveFramePNG(a.FrameImage(), path)
}

// FrameComparer validates rendered frames against stored baselines. The
// compositing pipeline is all integer pixel work, so frames are expected to
// reproduce exactly; the tolerance absorbs nothing but deliberate slack.
type FrameComparer struct {
	baselineDir string
	currentDir  string
	tolerance   float64 // Fraction of pixels allowed to differ
}

// NewFrameComparer creates a comparer with a 0.1% tolerance.
func NewFrameComparer(baselineDir, currentDir string) *FrameComparer {
	return &FrameComparer{
		baselineDir: baselineDir,
		currentDir:  currentDir,
		tolerance:   0.001,
	}
}

// WithTolerance adjusts the allowed pixel difference fraction.
func (fc *FrameComparer) WithTolerance(tolerance float64) *FrameComparer {
	fc.tolerance = tolerance
	return fc
}

// SetBaseline stores a frame as the baseline for a named check.
func (fc *FrameComparer) SetBaseline(name string, img image.Image) error {
	return SaveFramePNG(img, filepath.Join(fc.baselineDir, name+".png"))
}

// Validate renders no pixels itself: it saves the given frame under the
// current directory, compares it with the stored baseline, and on a breach
// writes a highlight diff next to it before reporting the difference.
func (fc *FrameComparer) Validate(name string, img image.Image) error {
	currentPath := filepath.Join(fc.currentDir, name+".png")
	if err := SaveFramePNG(img, currentPath); err != nil {
		return fmt.Errorf("failed to save current frame: %w", err)
	}

	baseline, err := loadPNG(filepath.Join(fc.baselineDir, name+".png"))
	if err != nil {
		return fmt.Errorf("failed to load baseline: %w", err)
	}

	difference := pixelDifference(baseline, img)
	if difference > fc.tolerance {
		diffPath := filepath.Join(fc.currentDir, name+"_diff.png")
		if err := SaveFramePNG(diffImage(baseline, img), diffPath); err != nil {
			fmt.Printf("Warning: failed to write diff image: %v\n", err)
		}
		return fmt.Errorf("frame regression detected: %.2f%% difference (tolerance: %.2f%%)",
			difference*100, fc.tolerance*100)
	}

	return nil
}

func loadPNG(path string) (image.Image, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer file.Close()

	img, err := png.Decode(file)
	return img, err
}

// pixelDifference walks both images and returns the fraction of differing
// pixels. Mismatched dimensions count as fully different.
func pixelDifference(a, b image.Image) float64 {
	ab := a.Bounds()
	bb := b.Bounds()
	if ab.Dx() != bb.Dx() || ab.Dy() != bb.Dy() {
		return 1.0
	}

	total := ab.Dx() * ab.Dy()
	if total == 0 {
		return 0
	}

	differing := 0
	for y := 0; y < ab.Dy(); y++ {
		for x := 0; x < ab.Dx(); x++ {
			ar, ag, abl, aa := a.At(ab.Min.X+x, ab.Min.Y+y).RGBA()
			br, bg, bbl, ba := b.At(bb.Min.X+x, bb.Min.Y+y).RGBA()
			if ar != br || ag != bg || abl != bbl || aa != ba {
				differing++
			}
		}
	}

	return float64(differing) / float64(total)
}

// diffImage renders the comparison: matching pixels dimmed, differing ones
// in solid red.
func diffImage(baseline, current image.Image) *image.RGBA {
	ab := baseline.Bounds()
	cb := current.Bounds()
	diff := image.NewRGBA(image.Rect(0, 0, ab.Dx(), ab.Dy()))

	for y := 0; y < ab.Dy(); y++ {
		for x := 0; x < ab.Dx(); x++ {
			bc := baseline.At(ab.Min.X+x, ab.Min.Y+y)
			cc := current.At(cb.Min.X+x, cb.Min.Y+y)

			br, bg, bbl, ba := bc.RGBA()
			cr, cg, cbl, ca := cc.RGBA()
			if br != cr || bg != cg || bbl != cbl || ba != ca {
				diff.Set(x, y, color.RGBA{R: 255, A: 255})
				continue
			}
			diff.Set(x, y, color.RGBA{
				R: uint8(br >> 9),
				G: uint8(bg >> 9),
				B: uint8(bbl >> 9),
				A: uint8(ba >> 8),
			})
		}
	}

	return diff
}
