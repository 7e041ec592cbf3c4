package operators_test

import (
	"image"
	"image/color"
	"image/draw"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pvmat/pvmat"
	"github.com/pvmat/pvmat/operators"
)

func testFootage() *pvmat.Footage {
	pano := image.NewRGBA(image.Rect(0, 0, 400, 100))
	draw.Draw(pano, pano.Bounds(), image.NewUniform(color.RGBA{40, 40, 60, 255}), image.Point{}, draw.Src)

	frames := make([]pvmat.Frame, 4)
	for i := range frames {
		canvas := image.NewRGBA(pano.Bounds())
		draw.Draw(canvas, image.Rect(i*40, 20, i*40+30, 50),
			image.NewUniform(color.RGBA{200, 220, 255, 255}), image.Point{}, draw.Src)
		frames[i] = pvmat.Frame{Image: canvas, Loc: image.Pt(i*40, 0)}
	}
	return &pvmat.Footage{Panorama: pano, Frames: frames, FPS: 30}
}

func TestOperatorCalibrateAndCapture(t *testing.T) {
	app, err := pvmat.NewApp(pvmat.DefaultConfig(), testFootage(), nil)
	require.NoError(t, err)

	result := operators.NewTeaOperator(t, app, t.TempDir()).
		WithTimeout(5 * time.Second).
		Start().
		CaptureTrackingShot("initial").
		ChooseTool(pvmat.ToolCalibrate).
		DragWithTrackingShot(image.Pt(100, 40), image.Pt(200, 40), "reference_line").
		EnterDistance("5", pvmat.Metric).
		WaitForText("calibrated: 5.00 m across 100 px").
		ChooseTool(pvmat.ToolDraw).
		Drag(image.Pt(250, 60), image.Pt(290, 60)).
		WaitForText("lines=2").
		CaptureTrackingShot("measured").
		Stop()

	assert.True(t, result.Success)
	require.Len(t, result.Captures, 3)
	for _, path := range result.Captures {
		info, err := os.Stat(path)
		require.NoError(t, err, path)
		assert.Greater(t, info.Size(), int64(0), filepath.Base(path))
	}
}
