package pvmat

import (
	"image"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSaveFramePNG(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "nested", "captures", "frame.png")

	require.NoError(t, SaveFramePNG(solidCanvas(20, 20, patchRed), path))
	assert.FileExists(t, path)

	img, err := loadPNG(path)
	require.NoError(t, err)
	assert.Equal(t, image.Rect(0, 0, 20, 20), img.Bounds())
}

func TestFrameComparer(t *testing.T) {
	baseFrame := func() *image.RGBA { return solidCanvas(20, 20, backdropBlue) }

	t.Run("Identical frames validate", func(t *testing.T) {
		fc := NewFrameComparer(t.TempDir(), t.TempDir())
		require.NoError(t, fc.SetBaseline("steady", baseFrame()))
		assert.NoError(t, fc.Validate("steady", baseFrame()))
	})

	t.Run("Drift beyond tolerance is a regression with a diff image", func(t *testing.T) {
		currentDir := t.TempDir()
		fc := NewFrameComparer(t.TempDir(), currentDir)
		require.NoError(t, fc.SetBaseline("drifted", baseFrame()))

		// 4 of 400 pixels change: 1%, past the 0.1% default.
		current := baseFrame()
		for y := 0; y < 2; y++ {
			for x := 0; x < 2; x++ {
				current.SetRGBA(x, y, patchRed)
			}
		}

		err := fc.Validate("drifted", current)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "regression")
		assert.FileExists(t, filepath.Join(currentDir, "drifted.png"))
		assert.FileExists(t, filepath.Join(currentDir, "drifted_diff.png"))
	})

	t.Run("Widened tolerance absorbs the same drift", func(t *testing.T) {
		fc := NewFrameComparer(t.TempDir(), t.TempDir()).WithTolerance(0.02)
		require.NoError(t, fc.SetBaseline("tolerated", baseFrame()))

		current := baseFrame()
		current.SetRGBA(0, 0, patchRed)
		current.SetRGBA(1, 0, patchRed)

		assert.NoError(t, fc.Validate("tolerated", current))
	})

	t.Run("Missing baseline is an error", func(t *testing.T) {
		fc := NewFrameComparer(t.TempDir(), t.TempDir())
		err := fc.Validate("never-recorded", baseFrame())
		require.Error(t, err)
		assert.Contains(t, err.Error(), "baseline")
	})
}

func TestPixelDifference(t *testing.T) {
	t.Run("Equal images differ by zero", func(t *testing.T) {
		assert.Zero(t, pixelDifference(solidCanvas(10, 10, patchRed), solidCanvas(10, 10, patchRed)))
	})

	t.Run("Counts the differing fraction", func(t *testing.T) {
		a := solidCanvas(10, 10, patchRed)
		b := solidCanvas(10, 10, patchRed)
		b.SetRGBA(3, 3, backdropBlue)
		assert.InDelta(t, 0.01, pixelDifference(a, b), 1e-9)
	})

	t.Run("Mismatched dimensions are fully different", func(t *testing.T) {
		assert.Equal(t, 1.0, pixelDifference(solidCanvas(10, 10, patchRed), solidCanvas(10, 12, patchRed)))
	})
}
