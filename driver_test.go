package pvmat

import (
	"image"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDriver_CalibrateMeasureScenario(t *testing.T) {
	a := newTestApp(t, nil)

	result := NewDriver(t, a).
		Start().
		Calibrate(image.Pt(100, 40), image.Pt(200, 40), "5", Metric).
		WaitFor("calibration", func(s Snapshot) bool { return s.Calibrated }).
		AssertViewContains("calibrated").
		Drag(image.Pt(0, 90), image.Pt(40, 90)).
		WaitForText("lines=2").
		AssertLines(2).
		Stop()

	require.True(t, result.Success, result.ErrorMessage)
	assert.True(t, result.Final.Calibrated)
	assert.Equal(t, 2, result.Final.Lines)
	assert.Equal(t, ToolDraw, result.Final.Tool)
	assert.NotEmpty(t, result.Steps)
	assert.Greater(t, result.Duration, time.Duration(0))
}

func TestDriver_ModalPromptScenario(t *testing.T) {
	a := newTestApp(t, nil)

	result := NewDriver(t, a).
		Start().
		ChooseTool(ToolCalibrate).
		Drag(image.Pt(100, 40), image.Pt(200, 40)).
		WaitFor("distance prompt", func(s Snapshot) bool { return s.PendingPrompt }).
		Click(image.Pt(30, 80)).
		WaitForText("enter the calibration distance first").
		AssertLines(1).
		EnterDistance("5", Metric).
		WaitFor("calibration", func(s Snapshot) bool { return s.Calibrated }).
		Stop()

	require.True(t, result.Success, result.ErrorMessage)
	assert.False(t, result.Final.PendingPrompt)
}

func TestDriver_SelectionScenario(t *testing.T) {
	a := newTestApp(t, nil)

	result := NewDriver(t, a).
		Start().
		Calibrate(image.Pt(100, 40), image.Pt(200, 40), "5", Metric).
		WaitFor("calibration", func(s Snapshot) bool { return s.Calibrated }).
		Drag(image.Pt(0, 90), image.Pt(40, 90)).
		ChooseTool(ToolSelect).
		Click(image.Pt(20, 90)).
		WaitFor("selection", func(s Snapshot) bool { return s.Selected }).
		AssertHandles(2).
		Drag(image.Pt(20, 90), image.Pt(120, 70)).
		Stop()

	require.True(t, result.Success, result.ErrorMessage)

	ids := sceneIDs(a)
	require.Len(t, ids, 2)
	moved, ok := a.scene.Line(ids[1])
	require.True(t, ok)
	assert.Equal(t, image.Pt(100, 70), moved.A, "body drag carries the whole line")
	assert.Equal(t, image.Pt(140, 70), moved.B)
}

func TestDriver_TrackingScenario(t *testing.T) {
	a := newTestApp(t, func() ObjectTracker { return steadyScript(5) })

	result := NewDriver(t, a).
		Start().
		Calibrate(image.Pt(100, 70), image.Pt(200, 70), "5", Metric).
		WaitFor("calibration", func(s Snapshot) bool { return s.Calibrated }).
		StartTracking(image.Rect(0, 20, 20, 40)).
		WaitTrackingDone().
		SetVelocityUnits(MetersPerSecond).
		Seek(2).
		WaitFor("interior frame", func(s Snapshot) bool { return s.Frame == 2 }).
		Stop()

	require.True(t, result.Success, result.ErrorMessage)
	assert.True(t, result.Final.HasSession)
	assert.False(t, result.Final.TrackingActive)
	assert.Zero(t, result.Final.Failures)
	assert.Equal(t, 5, result.Final.ProgressTotal)
	assert.Equal(t, "Vel: 15 m/s", a.VelocityLabel())
}

func TestDriver_CancelTrackingScenario(t *testing.T) {
	// The first update blocks on the gate, holding the run in flight until
	// the cancel has definitely landed.
	gate := make(chan struct{})
	a := newTestApp(t, func() ObjectTracker {
		s := steadyScript(5)
		s.onUpdate = func(step int) {
			if step == 0 {
				<-gate
			}
		}
		return s
	})

	d := NewDriver(t, a).
		Start().
		StartTracking(image.Rect(0, 20, 20, 40)).
		CancelTracking()
	close(gate)

	result := d.
		WaitFor("run cleared", func(s Snapshot) bool { return !s.TrackingActive }).
		Stop()

	require.True(t, result.Success, result.ErrorMessage)
	assert.False(t, result.Final.HasSession, "a cancelled run's partial session never lands")
}

func TestDriver_PlaybackScenario(t *testing.T) {
	a := newTestApp(t, nil)

	result := NewDriver(t, a).
		Start().
		TogglePlayback().
		WaitFor("playback advanced", func(s Snapshot) bool { return s.Frame > 0 }).
		WaitFor("magnifier refreshed", func(s Snapshot) bool { return s.MagnifierSeq > 0 }).
		TogglePlayback().
		Stop()

	require.True(t, result.Success, result.ErrorMessage)
	assert.False(t, result.Final.Playing)
}

func TestDriver_CollectsFailures(t *testing.T) {
	t.Run("Failed wait is reported in the result", func(t *testing.T) {
		cfg := DefaultDriverConfig()
		cfg.Timeout = 400 * time.Millisecond
		cfg.AutoReportErrors = false

		a := newTestApp(t, nil)
		result := NewDriverWithConfig(t, a, cfg).
			Start().
			WaitFor("the impossible", func(Snapshot) bool { return false }).
			Stop()

		assert.False(t, result.Success)
		require.Error(t, result.Error)
		assert.Contains(t, result.ErrorMessage, "timeout waiting for the impossible")
	})

	t.Run("Failed assertion is recorded", func(t *testing.T) {
		cfg := DefaultDriverConfig()
		cfg.AutoReportErrors = false

		a := newTestApp(t, nil)
		result := NewDriverWithConfig(t, a, cfg).
			Start().
			AssertLines(7).
			Stop()

		assert.False(t, result.Success)
		assert.Contains(t, result.ErrorMessage, "lines=7")
	})

	t.Run("Gestures before Start are refused", func(t *testing.T) {
		cfg := DefaultDriverConfig()
		cfg.AutoReportErrors = false

		a := newTestApp(t, nil)
		d := NewDriverWithConfig(t, a, cfg)
		d.ChooseTool(ToolErase)
		assert.True(t, d.HasFailed())

		result := d.Stop()
		assert.False(t, result.Success)
		assert.Equal(t, "driver was never started", result.ErrorMessage)
	})
}
