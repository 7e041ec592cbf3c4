package vision

import (
	"image"
	"image/color"
	"image/png"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pvmat/pvmat/fault"
)

func TestParseLocations(t *testing.T) {
	t.Run("Reads placements in frame order", func(t *testing.T) {
		doc := `{"frames":[{"x":0,"y":0},{"x":40,"y":8},{"x":80,"y":0}]}`

		pts, err := ParseLocations(strings.NewReader(doc))
		require.NoError(t, err)
		assert.Equal(t, []image.Point{{X: 0, Y: 0}, {X: 40, Y: 8}, {X: 80, Y: 0}}, pts)
	})

	t.Run("Empty frame list is refused", func(t *testing.T) {
		_, err := ParseLocations(strings.NewReader(`{"frames":[]}`))
		require.Error(t, err)
		assert.Contains(t, err.Error(), "lists no frames")
	})

	t.Run("Malformed document is refused", func(t *testing.T) {
		_, err := ParseLocations(strings.NewReader(`{"frames": [{"x": }`))
		require.Error(t, err)
		assert.Contains(t, err.Error(), "cannot parse locations sidecar")
	})
}

func TestPlaceFrame(t *testing.T) {
	red := color.RGBA{R: 0xff, A: 0xff}
	panoBounds := image.Rect(0, 0, 40, 20)

	fill := func(img *image.RGBA) {
		b := img.Bounds()
		for y := b.Min.Y; y < b.Max.Y; y++ {
			for x := b.Min.X; x < b.Max.X; x++ {
				img.SetRGBA(x, y, red)
			}
		}
	}

	t.Run("Frame lands at its location", func(t *testing.T) {
		frame := image.NewRGBA(image.Rect(0, 0, 10, 10))
		fill(frame)

		canvas := placeFrame(panoBounds, frame, image.Pt(5, 5))
		assert.Equal(t, panoBounds, canvas.Bounds())
		assert.Equal(t, red, canvas.RGBAAt(5, 5))
		assert.Equal(t, red, canvas.RGBAAt(14, 14))
		assert.Equal(t, color.RGBA{}, canvas.RGBAAt(15, 15), "outside the frame stays transparent")
		assert.Equal(t, color.RGBA{}, canvas.RGBAAt(4, 4))
	})

	t.Run("Nonzero frame origin does not shift the placement", func(t *testing.T) {
		frame := image.NewRGBA(image.Rect(100, 100, 110, 110))
		fill(frame)

		canvas := placeFrame(panoBounds, frame, image.Pt(20, 0))
		assert.Equal(t, red, canvas.RGBAAt(20, 0))
		assert.Equal(t, red, canvas.RGBAAt(29, 9))
		assert.Equal(t, color.RGBA{}, canvas.RGBAAt(30, 10))
	})
}

func writePanorama(t *testing.T, dir string) string {
	t.Helper()
	path := filepath.Join(dir, "panorama.png")
	file, err := os.Create(path)
	require.NoError(t, err)
	defer file.Close()

	require.NoError(t, png.Encode(file, image.NewRGBA(image.Rect(0, 0, 40, 20))))
	return path
}

func writeLocations(t *testing.T, dir, doc string) string {
	t.Helper()
	path := filepath.Join(dir, "locations.json")
	require.NoError(t, os.WriteFile(path, []byte(doc), 0o644))
	return path
}

func TestLoadFootage_ArtifactFailuresAreFatal(t *testing.T) {
	requireFatal := func(t *testing.T, err error, message string) {
		t.Helper()
		require.Error(t, err)

		var f *fault.Fault
		require.ErrorAs(t, err, &f)
		assert.Equal(t, fault.Collaborator, f.Class)
		assert.True(t, f.IsFatal())
		assert.Equal(t, message, f.Message)
	}

	t.Run("Missing panorama", func(t *testing.T) {
		dir := t.TempDir()
		_, err := LoadFootage(filepath.Join(dir, "nope.png"), filepath.Join(dir, "locations.json"), filepath.Join(dir, "video.mp4"))
		requireFatal(t, err, "cannot load panorama")
	})

	t.Run("Undecodable panorama", func(t *testing.T) {
		dir := t.TempDir()
		path := filepath.Join(dir, "panorama.png")
		require.NoError(t, os.WriteFile(path, []byte("not a png"), 0o644))

		_, err := LoadFootage(path, filepath.Join(dir, "locations.json"), filepath.Join(dir, "video.mp4"))
		requireFatal(t, err, "cannot load panorama")
	})

	t.Run("Missing locations sidecar", func(t *testing.T) {
		dir := t.TempDir()
		pano := writePanorama(t, dir)

		_, err := LoadFootage(pano, filepath.Join(dir, "nope.json"), filepath.Join(dir, "video.mp4"))
		requireFatal(t, err, "cannot load frame locations")
	})

	t.Run("Empty locations sidecar", func(t *testing.T) {
		dir := t.TempDir()
		pano := writePanorama(t, dir)
		locs := writeLocations(t, dir, `{"frames":[]}`)

		_, err := LoadFootage(pano, locs, filepath.Join(dir, "video.mp4"))
		requireFatal(t, err, "cannot load frame locations")
	})
}
