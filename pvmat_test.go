package pvmat

import (
	"image"
	"image/color"
	"os"
	"path/filepath"
	"testing"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pvmat/pvmat/fault"
)

func newTestApp(t *testing.T, factory TrackerFactory) *App {
	t.Helper()
	cfg := DefaultConfig()
	cfg.ViewWidth, cfg.ViewHeight = 400, 500

	app, err := NewApp(cfg, renderTestFootage(5), factory)
	require.NoError(t, err)
	return app
}

// drive feeds messages through Update in arrival order, the way the program
// queue would, and hands back the last command.
func drive(a *App, msgs ...tea.Msg) tea.Cmd {
	var cmd tea.Cmd
	for _, msg := range msgs {
		_, cmd = a.Update(msg)
	}
	return cmd
}

func dragGesture(a *App, from, to image.Point) {
	drive(a,
		PointerDownMsg{Pos: from},
		PointerMoveMsg{Pos: to},
		PointerUpMsg{Pos: to},
	)
}

func clickAt(a *App, p image.Point) { dragGesture(a, p, p) }

// calibrateApp drags a 100 px reference line at height y and declares it to
// span 5 m, leaving a 0.05 m/px ratio with the draw tool armed.
func calibrateApp(t *testing.T, a *App, y int) {
	t.Helper()
	drive(a, SelectToolMsg{Tool: ToolCalibrate})
	dragGesture(a, image.Pt(100, y), image.Pt(200, y))
	drive(a, SetCalibrationDistanceMsg{Raw: "5", Units: Metric})
	require.True(t, a.Snapshot().Calibrated)
}

func sceneIDs(a *App) []LineID {
	var ids []LineID
	a.scene.Each(func(id LineID, _ *Line) { ids = append(ids, id) })
	return ids
}

// waitForWorker blocks until the producer log, past the first after entries,
// ends with a completion or cancellation, then returns that tail for replay.
func waitForWorker(t *testing.T, log *msgLog, after int) []tea.Msg {
	t.Helper()
	var msgs []tea.Msg
	require.Eventually(t, func() bool {
		all := log.snapshot()
		if len(all) <= after {
			return false
		}
		msgs = all[after:]
		switch msgs[len(msgs)-1].(type) {
		case trackDoneMsg, trackCancelledMsg:
			return true
		}
		return false
	}, 2*time.Second, 5*time.Millisecond, "tracking worker never finished")
	return msgs
}

func TestNewApp_RejectsBadFootage(t *testing.T) {
	_, err := NewApp(DefaultConfig(), &Footage{}, nil)
	require.Error(t, err)

	var f *fault.Fault
	require.ErrorAs(t, err, &f)
	assert.Equal(t, fault.Collaborator, f.Class)
}

func TestApp_PointerGate(t *testing.T) {
	a := newTestApp(t, nil)

	t.Run("Gestures are dead before any calibration", func(t *testing.T) {
		dragGesture(a, image.Pt(50, 50), image.Pt(150, 50))

		snap := a.Snapshot()
		assert.Zero(t, snap.Lines)
		assert.False(t, snap.Dragging)
	})

	t.Run("Cursor still tracks for the magnifier", func(t *testing.T) {
		drive(a, PointerMoveMsg{Pos: image.Pt(123, 45)})
		assert.Equal(t, image.Pt(123, 45), a.cursor)
	})

	t.Run("Calibrate gestures go through", func(t *testing.T) {
		drive(a, SelectToolMsg{Tool: ToolCalibrate})
		dragGesture(a, image.Pt(100, 40), image.Pt(200, 40))

		snap := a.Snapshot()
		assert.Equal(t, 1, snap.Lines)
		assert.True(t, snap.PendingPrompt)
	})

	t.Run("Everything is live once calibrated", func(t *testing.T) {
		drive(a, SetCalibrationDistanceMsg{Raw: "5", Units: Metric})
		dragGesture(a, image.Pt(0, 90), image.Pt(40, 90))

		assert.Equal(t, 2, a.Snapshot().Lines)
	})
}

func TestApp_CalibrationFlow(t *testing.T) {
	pose := func(t *testing.T) *App {
		t.Helper()
		a := newTestApp(t, nil)
		drive(a, SelectToolMsg{Tool: ToolCalibrate})
		dragGesture(a, image.Pt(100, 40), image.Pt(200, 40))
		return a
	}

	t.Run("Reference line poses the distance prompt", func(t *testing.T) {
		a := pose(t)

		snap := a.Snapshot()
		assert.True(t, snap.PendingPrompt)
		assert.Equal(t, 1, snap.Lines)
		assert.Contains(t, snap.View, "awaiting-distance")
	})

	t.Run("Pointer is modal while the prompt is open", func(t *testing.T) {
		a := pose(t)

		clickAt(a, image.Pt(50, 80))
		snap := a.Snapshot()
		assert.Equal(t, 1, snap.Lines)
		assert.False(t, snap.Dragging)
		assert.Equal(t, "enter the calibration distance first", snap.Status)
	})

	t.Run("Malformed distance re-prompts", func(t *testing.T) {
		a := pose(t)

		drive(a, SetCalibrationDistanceMsg{Raw: "five", Units: Metric})
		snap := a.Snapshot()
		assert.True(t, snap.PendingPrompt)
		assert.False(t, snap.Calibrated)
		assert.Contains(t, snap.Status, `cannot read "five"`)
		assert.True(t, a.Faults().HasFaults())
	})

	t.Run("Pixel units are refused", func(t *testing.T) {
		a := pose(t)

		drive(a, SetCalibrationDistanceMsg{Raw: "5", Units: Pixels})
		snap := a.Snapshot()
		assert.True(t, snap.PendingPrompt)
		assert.False(t, snap.Calibrated)
	})

	t.Run("Non-positive distance cancels and deletes the line", func(t *testing.T) {
		a := pose(t)

		drive(a, SetCalibrationDistanceMsg{Raw: "0", Units: Metric})
		snap := a.Snapshot()
		assert.False(t, snap.PendingPrompt)
		assert.False(t, snap.Calibrated)
		assert.Zero(t, snap.Lines)
		assert.Equal(t, ToolIdle, snap.Tool)
		assert.Equal(t, "calibration cancelled", snap.Status)
	})

	t.Run("Valid distance calibrates and keeps the line", func(t *testing.T) {
		a := pose(t)

		drive(a, SetCalibrationDistanceMsg{Raw: "5", Units: Metric})
		snap := a.Snapshot()
		assert.True(t, snap.Calibrated)
		assert.False(t, snap.Calibrating)
		assert.Equal(t, ToolDraw, snap.Tool)
		assert.Equal(t, 1, snap.Lines, "the reference line stays as a measurement")
		assert.Equal(t, "calibrated: 5.00 m across 100 px", snap.Status)
		assert.InDelta(t, 0.05, a.Calibration().Ratio(), 1e-9)
	})

	t.Run("Cancelled recalibration keeps the previous ratio", func(t *testing.T) {
		a := newTestApp(t, nil)
		calibrateApp(t, a, 40)

		drive(a, SelectToolMsg{Tool: ToolCalibrate})
		dragGesture(a, image.Pt(0, 60), image.Pt(50, 60))
		drive(a, SetCalibrationDistanceMsg{Raw: "-1", Units: Metric})

		snap := a.Snapshot()
		assert.True(t, snap.Calibrated)
		assert.Equal(t, 1, snap.Lines, "the abandoned reference line is deleted")
		assert.Equal(t, ToolDraw, snap.Tool)
		assert.InDelta(t, 0.05, a.Calibration().Ratio(), 1e-9)
	})

	t.Run("Distance with no prompt open is noted", func(t *testing.T) {
		a := newTestApp(t, nil)
		drive(a, SetCalibrationDistanceMsg{Raw: "5", Units: Metric})
		assert.Equal(t, "no calibration waiting for a distance", a.Status())
	})
}

func TestApp_DrawAndMeasure(t *testing.T) {
	a := newTestApp(t, nil)
	calibrateApp(t, a, 40)

	t.Run("Drawn line measures under the ratio", func(t *testing.T) {
		dragGesture(a, image.Pt(0, 90), image.Pt(40, 90))

		ids := sceneIDs(a)
		require.Len(t, ids, 2)
		assert.Equal(t, "5.00 m", a.DistanceLabel(ids[0]))
		assert.Equal(t, "2.00 m", a.DistanceLabel(ids[1]))
	})

	t.Run("Unknown line has no label", func(t *testing.T) {
		assert.Empty(t, a.DistanceLabel(LineID(9999)))
	})

	t.Run("New color applies to new lines only", func(t *testing.T) {
		red := color.RGBA{R: 0xff, A: 0xff}
		drive(a, SetLineColorMsg{Color: red})
		dragGesture(a, image.Pt(300, 90), image.Pt(340, 90))

		ids := sceneIDs(a)
		require.Len(t, ids, 3)
		first, _ := a.scene.Line(ids[0])
		last, _ := a.scene.Line(ids[2])
		assert.Equal(t, a.cfg.LineColor, first.Color)
		assert.Equal(t, red, last.Color)
	})

	t.Run("Distance labels toggle globally", func(t *testing.T) {
		require.True(t, a.scene.ShowLabels())
		drive(a, ToggleDistancesMsg{})
		assert.False(t, a.scene.ShowLabels())
		drive(a, ToggleDistancesMsg{})
		assert.True(t, a.scene.ShowLabels())
	})
}

func TestApp_SelectAndErase(t *testing.T) {
	a := newTestApp(t, nil)
	calibrateApp(t, a, 40)
	dragGesture(a, image.Pt(0, 90), image.Pt(40, 90))

	t.Run("Click selects and grows handles", func(t *testing.T) {
		drive(a, SelectToolMsg{Tool: ToolSelect})
		clickAt(a, image.Pt(20, 90))

		snap := a.Snapshot()
		assert.True(t, snap.Selected)
		assert.Equal(t, 2, snap.Handles)
	})

	t.Run("Erase cascades the selection away", func(t *testing.T) {
		drive(a, SelectToolMsg{Tool: ToolErase})
		clickAt(a, image.Pt(20, 90))

		snap := a.Snapshot()
		assert.Equal(t, 1, snap.Lines, "the reference line is untouched")
		assert.Zero(t, snap.Handles)
		assert.False(t, snap.Selected)
	})

	t.Run("Clear-all empties the scene on one click", func(t *testing.T) {
		drive(a, SelectToolMsg{Tool: ToolClearAll})
		clickAt(a, image.Pt(390, 10))

		assert.Zero(t, a.Snapshot().Lines)
	})
}

func TestApp_UnitSwitching(t *testing.T) {
	a := newTestApp(t, nil)
	calibrateApp(t, a, 40)
	ref := sceneIDs(a)[0]

	drive(a, SwitchUnitsMsg{Units: Imperial})
	assert.Equal(t, Imperial, a.Snapshot().Units)
	assert.Equal(t, "units: ft-in", a.Status())
	assert.Contains(t, a.DistanceLabel(ref), "'")

	drive(a, SwitchUnitsMsg{Units: Metric})
	assert.Equal(t, "5.00 m", a.DistanceLabel(ref), "round trip lands back on the set distance")
}

func TestApp_Playback(t *testing.T) {
	t.Run("Toggle flips play state", func(t *testing.T) {
		a := newTestApp(t, nil)
		drive(a, TogglePlaybackMsg{})

		snap := a.Snapshot()
		assert.True(t, snap.Playing)
		assert.Equal(t, "playing", snap.Status)
		assert.Contains(t, snap.View, "playing")

		drive(a, TogglePlaybackMsg{})
		assert.False(t, a.Snapshot().Playing)
		assert.Equal(t, "paused", a.Status())
	})

	t.Run("Space toggles too", func(t *testing.T) {
		a := newTestApp(t, nil)
		drive(a, tea.KeyMsg{Type: tea.KeySpace})
		assert.True(t, a.Snapshot().Playing)
	})

	t.Run("Ticks advance only while playing and wrap", func(t *testing.T) {
		a := newTestApp(t, nil)
		drive(a, frameTickMsg{})
		assert.Zero(t, a.Frame(), "paused playback ignores ticks")

		drive(a, TogglePlaybackMsg{})
		drive(a, frameTickMsg{}, frameTickMsg{})
		assert.Equal(t, 2, a.Frame())

		drive(a, SeekFrameMsg{Frame: 4})
		drive(a, frameTickMsg{})
		assert.Zero(t, a.Frame(), "past the last frame playback wraps")
	})

	t.Run("Seek clamps to the footage", func(t *testing.T) {
		a := newTestApp(t, nil)
		drive(a, SeekFrameMsg{Frame: 99})
		assert.Equal(t, 4, a.Frame())
		drive(a, SeekFrameMsg{Frame: -3})
		assert.Zero(t, a.Frame())
	})

	t.Run("Arrow keys step one frame", func(t *testing.T) {
		a := newTestApp(t, nil)
		drive(a, tea.KeyMsg{Type: tea.KeyRight})
		drive(a, tea.KeyMsg{Type: tea.KeyRight})
		assert.Equal(t, 2, a.Frame())

		drive(a, tea.KeyMsg{Type: tea.KeyLeft})
		assert.Equal(t, 1, a.Frame())
	})

	t.Run("Magnifier refresh bumps the sequence", func(t *testing.T) {
		a := newTestApp(t, nil)
		before := a.MagnifierSeq()
		drive(a, magnifierRefreshMsg{})
		assert.Equal(t, before+1, a.MagnifierSeq())
	})
}

func TestApp_TrackingLifecycle(t *testing.T) {
	start := func(t *testing.T, factory TrackerFactory) (*App, *msgLog) {
		t.Helper()
		a := newTestApp(t, factory)
		log := &msgLog{}
		a.Start(log.send)
		t.Cleanup(a.Shutdown)
		return a, log
	}

	t.Run("Completed run installs its session", func(t *testing.T) {
		a, log := start(t, func() ObjectTracker { return steadyScript(5) })

		drive(a, StartTrackingMsg{Box: image.Rect(0, 20, 20, 40)})
		snap := a.Snapshot()
		assert.True(t, snap.TrackingActive)
		assert.Equal(t, "tracking 5 frames", snap.Status)

		drive(a, waitForWorker(t, log, 0)...)
		snap = a.Snapshot()
		assert.False(t, snap.TrackingActive)
		assert.True(t, snap.HasSession)
		assert.Equal(t, "tracking complete", snap.Status)
		assert.Equal(t, 5, a.Session().Frames())
		assert.Equal(t, 4, snap.ProgressFrame)
		assert.Equal(t, 5, snap.ProgressTotal)
		assert.Contains(t, snap.View, "session=5-frames failures=0")
	})

	t.Run("Failures surface as a note", func(t *testing.T) {
		a, log := start(t, func() ObjectTracker { return steadyScript(5, 2) })

		drive(a, StartTrackingMsg{Box: image.Rect(0, 20, 20, 40)})
		drive(a, waitForWorker(t, log, 0)...)

		snap := a.Snapshot()
		assert.True(t, snap.HasSession)
		assert.Equal(t, 1, snap.Failures)
		assert.Equal(t, 2, snap.FirstFailure)
		assert.Equal(t, "Tracking failure at frame 3", snap.Status)
		require.Len(t, a.Faults().Notes(), 1)
	})

	t.Run("Superseded run's results are dropped", func(t *testing.T) {
		a, log := start(t, func() ObjectTracker { return steadyScript(5) })

		drive(a, StartTrackingMsg{Box: image.Rect(0, 20, 20, 40)})
		first := waitForWorker(t, log, 0)

		// Retrack before the first run's results are consumed.
		drive(a, StartTrackingMsg{Box: image.Rect(0, 20, 20, 40)})
		drive(a, first...)
		snap := a.Snapshot()
		assert.True(t, snap.TrackingActive, "the second run is still in flight")
		assert.False(t, snap.HasSession, "the stale session never lands")

		drive(a, waitForWorker(t, log, len(first))...)
		snap = a.Snapshot()
		assert.False(t, snap.TrackingActive)
		assert.True(t, snap.HasSession)
	})

	t.Run("Cancel raises the flag and the ack clears the run", func(t *testing.T) {
		a, _ := start(t, func() ObjectTracker { return steadyScript(5) })

		drive(a, StartTrackingMsg{Box: image.Rect(0, 20, 20, 40)})
		id := a.run.session.ID
		drive(a, CancelTrackingMsg{})
		assert.True(t, a.run.cancel.Load())
		assert.Equal(t, "cancelling tracking", a.Status())

		drive(a, trackCancelledMsg{id: id})
		snap := a.Snapshot()
		assert.False(t, snap.TrackingActive)
		assert.False(t, snap.HasSession)
		assert.Equal(t, "tracking cancelled", snap.Status)
	})

	t.Run("Cancel without a run is a no-op", func(t *testing.T) {
		a, _ := start(t, func() ObjectTracker { return steadyScript(5) })
		assert.NotPanics(t, func() { drive(a, CancelTrackingMsg{}) })
		assert.False(t, a.Snapshot().TrackingActive)
	})

	t.Run("Progress from another run is ignored", func(t *testing.T) {
		a, _ := start(t, func() ObjectTracker { return steadyScript(5) })

		drive(a, StartTrackingMsg{Box: image.Rect(0, 20, 20, 40)})
		drive(a, trackProgressMsg{id: uuid.New(), frame: 3, total: 5})
		assert.Zero(t, a.Snapshot().ProgressFrame)
	})

	t.Run("No tracker factory refuses to start", func(t *testing.T) {
		a, _ := start(t, nil)

		drive(a, StartTrackingMsg{Box: image.Rect(0, 20, 20, 40)})
		snap := a.Snapshot()
		assert.False(t, snap.TrackingActive)
		assert.Equal(t, "no tracker configured", snap.Status)
		assert.True(t, a.Faults().HasFaults())
	})

	t.Run("Init failure tears down immediately", func(t *testing.T) {
		tracker := &scriptedTracker{initOK: false}
		a, _ := start(t, func() ObjectTracker { return tracker })

		drive(a, StartTrackingMsg{Box: image.Rect(0, 20, 20, 40)})
		snap := a.Snapshot()
		assert.False(t, snap.TrackingActive)
		assert.Equal(t, "tracker failed to initialize", snap.Status)
		assert.True(t, tracker.closed)
	})
}

func TestApp_VelocityReadout(t *testing.T) {
	a := newTestApp(t, func() ObjectTracker { return steadyScript(5) })
	log := &msgLog{}
	a.Start(log.send)
	t.Cleanup(a.Shutdown)

	drive(a, StartTrackingMsg{Box: image.Rect(0, 20, 20, 40)})
	drive(a, waitForWorker(t, log, 0)...)
	drive(a, SeekFrameMsg{Frame: 2})

	t.Run("Uncalibrated shows nothing", func(t *testing.T) {
		assert.Empty(t, a.VelocityLabel())
		assert.Nil(t, a.Session().Velocities)
	})

	t.Run("Calibrating derives the speeds", func(t *testing.T) {
		calibrateApp(t, a, 40)

		require.Len(t, a.Session().Velocities, 5)
		// 10 px/frame at 30 fps is 300 px/s; 0.05 m/px makes 54 km/h.
		assert.Equal(t, "Vel: 54 km/h", a.VelocityLabel())
	})

	t.Run("Velocity unit switches the readout", func(t *testing.T) {
		drive(a, SetVelocityUnitsMsg{Unit: MetersPerSecond})
		assert.Equal(t, "Vel: 15 m/s", a.VelocityLabel())
	})

	t.Run("Endpoints read zero", func(t *testing.T) {
		drive(a, SeekFrameMsg{Frame: 0})
		assert.Equal(t, "Vel: 0 m/s", a.VelocityLabel())
	})

	t.Run("Failure frames show nothing", func(t *testing.T) {
		b := newTestApp(t, func() ObjectTracker { return steadyScript(5, 2) })
		blog := &msgLog{}
		b.Start(blog.send)
		t.Cleanup(b.Shutdown)

		drive(b, StartTrackingMsg{Box: image.Rect(0, 20, 20, 40)})
		drive(b, waitForWorker(t, blog, 0)...)
		calibrateApp(t, b, 40)

		drive(b, SeekFrameMsg{Frame: 2})
		assert.Empty(t, b.VelocityLabel())
	})
}

func TestApp_ExportFrame(t *testing.T) {
	a := newTestApp(t, nil)

	t.Run("Writes the annotated frame", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "shots", "frame.png")
		drive(a, ExportFrameMsg{Path: path})

		assert.FileExists(t, path)
		assert.Equal(t, "exported: "+path, a.Status())
	})

	t.Run("Unwritable path is an input fault", func(t *testing.T) {
		blocker := filepath.Join(t.TempDir(), "file")
		require.NoError(t, os.WriteFile(blocker, []byte("x"), 0o644))

		drive(a, ExportFrameMsg{Path: filepath.Join(blocker, "frame.png")})
		assert.Equal(t, "cannot export frame", a.Status())
		assert.True(t, a.Faults().HasFaults())
	})
}

func TestApp_SurfaceReadout(t *testing.T) {
	a := newTestApp(t, nil)

	t.Run("View names the essentials", func(t *testing.T) {
		v := a.View()
		assert.Contains(t, v, "frame 1/5")
		assert.Contains(t, v, "tool=idle")
		assert.Contains(t, v, "units=m")
		assert.Contains(t, v, "lines=0 handles=0")
	})

	t.Run("Cursor shape follows the tool", func(t *testing.T) {
		assert.Equal(t, CursorArrow, a.CursorShape())
		calibrateApp(t, a, 40)
		assert.Equal(t, CursorCrosshair, a.CursorShape())
	})

	t.Run("Magnifier renders at the cursor", func(t *testing.T) {
		drive(a, PointerMoveMsg{Pos: image.Pt(150, 40)})
		assert.Equal(t, image.Rect(0, 0, 200, 200), a.MagnifierImage().Bounds())
	})

	t.Run("Magnifier size is clamped", func(t *testing.T) {
		drive(a, SetMagnifierSizeMsg{Size: 7000})
		assert.Equal(t, MagnifierSizeMax, a.magnifierSize)
	})

	t.Run("Frame image covers the display", func(t *testing.T) {
		assert.Equal(t, image.Rect(0, 0, 400, 100), a.FrameImage().Bounds())
	})
}

func TestApp_QuitKeys(t *testing.T) {
	a := newTestApp(t, nil)
	cmd := drive(a, tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune("q")})
	require.NotNil(t, cmd)
	assert.Equal(t, tea.QuitMsg{}, cmd())

	a = newTestApp(t, nil)
	cmd = drive(a, tea.KeyMsg{Type: tea.KeyCtrlC})
	require.NotNil(t, cmd)
	assert.Equal(t, tea.QuitMsg{}, cmd())
}
