package pvmat

import (
	"context"
	"fmt"
	"image"
	"image/color"
	"strings"
	"sync"
	"testing"
	"time"

	tea "github.com/charmbracelet/bubbletea"
)

// Driver exercises an App headlessly the way a pointer-wielding user would:
// it runs the program with no renderer, feeds gestures and commands through
// the real event queue, and polls state snapshots taken inside the update
// loop, so tests never race the consumer.
//
// Errors are collected and returned in the final DriveResult rather than
// stopping the run, so a failed wait still yields the full gesture log.
//
// Example usage:
//
//	result := pvmat.NewDriver(t, app).
//		Start().
//		ChooseTool(pvmat.ToolCalibrate).
//		Drag(image.Pt(10, 10), image.Pt(110, 10)).
//		EnterDistance("5", pvmat.Metric).
//		WaitFor("calibrated", func(s pvmat.Snapshot) bool { return s.Calibrated }).
//		Stop()
//
//	assert.True(t, result.Success)
type Driver struct {
	t       *testing.T
	app     *App
	program *tea.Program
	ctx     context.Context
	cancel  context.CancelFunc

	steps     []GestureStep
	lastError error
	failed    bool

	updates chan stampedSnapshot
	mu      sync.RWMutex
	latest  stampedSnapshot

	config  DriverConfig
	started bool
}

// DriverConfig tunes the driver's pacing and error behavior.
type DriverConfig struct {
	// Timeout bounds every wait and the whole program run.
	Timeout time.Duration
	// StepPause is an optional delay after each delivered message.
	StepPause time.Duration
	// DragSteps is how many interpolated moves a Drag emits between its
	// down and up.
	DragSteps int
	// AutoReportErrors forwards recorded errors to t.Error as they happen.
	// Disable when a test deliberately drives a failure path.
	AutoReportErrors bool
}

// DefaultDriverConfig returns the config most tests want: a generous
// timeout, no artificial pacing, four-step drags, errors reported as they
// happen.
func DefaultDriverConfig() DriverConfig {
	return DriverConfig{
		Timeout:          30 * time.Second,
		StepPause:        0,
		DragSteps:        4,
		AutoReportErrors: true,
	}
}

// GestureStep records one driver action for the final result log.
type GestureStep struct {
	When    time.Time
	Kind    string
	Details string
}

// DriveResult is the complete outcome of one driven session.
type DriveResult struct {
	Steps        []GestureStep
	Final        Snapshot
	Success      bool
	Duration     time.Duration
	ErrorMessage string
	Error        error
}

type stampedSnapshot struct {
	n    uint64
	snap Snapshot
}

// driverWrapper relays each processed message's state to the driver. It
// lives on the program goroutine, so taking the snapshot inside Update is
// the one place it is race-free.
type driverWrapper struct {
	app *App
	d   *Driver
	n   uint64
}

func (w *driverWrapper) Init() tea.Cmd { return w.app.Init() }

func (w *driverWrapper) View() string { return w.app.View() }

func (w *driverWrapper) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	_, cmd := w.app.Update(msg)
	w.n++
	s := stampedSnapshot{n: w.n, snap: w.app.Snapshot()}
	select {
	case w.d.updates <- s:
	default:
		// Full queue: drop the oldest so the freshest state always lands.
		select {
		case <-w.d.updates:
		default:
		}
		select {
		case w.d.updates <- s:
		default:
		}
	}
	return w, cmd
}

// NewDriver builds a driver with the default config.
func NewDriver(t *testing.T, app *App) *Driver {
	return NewDriverWithConfig(t, app, DefaultDriverConfig())
}

// NewDriverWithConfig builds a driver with a custom config.
func NewDriverWithConfig(t *testing.T, app *App, config DriverConfig) *Driver {
	ctx, cancel := context.WithTimeout(context.Background(), config.Timeout)

	d := &Driver{
		t:       t,
		app:     app,
		ctx:     ctx,
		cancel:  cancel,
		updates: make(chan stampedSnapshot, 64),
		config:  config,
	}
	go d.syncSnapshots()
	return d
}

func (d *Driver) syncSnapshots() {
	for {
		select {
		case <-d.ctx.Done():
			return
		case s := <-d.updates:
			d.mu.Lock()
			if s.n > d.latest.n {
				d.latest = s
			}
			d.mu.Unlock()
		}
	}
}

func (d *Driver) seq() uint64 {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.latest.n
}

// Snapshot returns the freshest state the update loop has published.
func (d *Driver) Snapshot() Snapshot {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.latest.snap
}

// Start launches the program headlessly and waits for it to come up. Must
// be called before any gesture.
func (d *Driver) Start() *Driver {
	if d.started {
		return d
	}

	d.program = tea.NewProgram(
		&driverWrapper{app: d.app, d: d},
		tea.WithContext(d.ctx),
		tea.WithoutRenderer(),
		tea.WithInput(nil),
	)
	d.app.Start(d.program.Send)

	go func() {
		d.program.Run()
	}()

	// Prime the queue so readiness is observable as the first snapshot.
	d.program.Send(SeekFrameMsg{Frame: 0})
	if !d.waitSeqAbove(0) {
		d.recordError(fmt.Errorf("initialization: program never processed its first event"))
		return d
	}

	d.started = true
	d.record("start", "")
	return d
}

// Stop ends the session and returns the full result.
func (d *Driver) Stop() *DriveResult {
	if !d.started {
		return &DriveResult{Success: false, ErrorMessage: "driver was never started"}
	}

	start := time.Now()
	if len(d.steps) > 0 {
		start = d.steps[0].When
	}

	final := d.Snapshot()
	d.app.Shutdown()
	if d.program != nil {
		d.program.Quit()
	}
	d.cancel()

	msg := ""
	if d.lastError != nil {
		msg = d.lastError.Error()
	}
	return &DriveResult{
		Steps:        d.steps,
		Final:        final,
		Success:      !d.failed,
		Duration:     time.Since(start),
		ErrorMessage: msg,
		Error:        d.lastError,
	}
}

// Down presses the pointer.
func (d *Driver) Down(p image.Point) *Driver {
	d.record("down", p.String())
	d.sendMessage(PointerDownMsg{Pos: p})
	return d
}

// Move moves the pointer.
func (d *Driver) Move(p image.Point) *Driver {
	d.record("move", p.String())
	d.sendMessage(PointerMoveMsg{Pos: p})
	return d
}

// Up releases the pointer.
func (d *Driver) Up(p image.Point) *Driver {
	d.record("up", p.String())
	d.sendMessage(PointerUpMsg{Pos: p})
	return d
}

// Click presses and releases in place.
func (d *Driver) Click(p image.Point) *Driver {
	return d.Down(p).Up(p)
}

// Drag runs a full gesture from one point to another with interpolated
// moves between them.
func (d *Driver) Drag(from, to image.Point) *Driver {
	d.Down(from)
	steps := d.config.DragSteps
	for i := 1; i <= steps; i++ {
		p := image.Pt(
			from.X+(to.X-from.X)*i/(steps+1),
			from.Y+(to.Y-from.Y)*i/(steps+1),
		)
		d.Move(p)
	}
	d.Move(to)
	return d.Up(to)
}

// ChooseTool switches tools.
func (d *Driver) ChooseTool(mode ToolMode) *Driver {
	d.record("tool", mode.String())
	d.sendMessage(SelectToolMsg{Tool: mode})
	return d
}

// EnterDistance answers a pending calibration prompt.
func (d *Driver) EnterDistance(raw string, units UnitSystem) *Driver {
	d.record("distance", raw)
	d.sendMessage(SetCalibrationDistanceMsg{Raw: raw, Units: units})
	return d
}

// Calibrate draws a reference line and names its distance in one go.
func (d *Driver) Calibrate(from, to image.Point, raw string, units UnitSystem) *Driver {
	return d.ChooseTool(ToolCalibrate).Drag(from, to).EnterDistance(raw, units)
}

// SwitchUnits changes the measurement system.
func (d *Driver) SwitchUnits(units UnitSystem) *Driver {
	d.record("units", units.String())
	d.sendMessage(SwitchUnitsMsg{Units: units})
	return d
}

// SetVelocityUnits picks the velocity readout unit.
func (d *Driver) SetVelocityUnits(unit VelocityUnit) *Driver {
	d.record("velocity-units", unit.String())
	d.sendMessage(SetVelocityUnitsMsg{Unit: unit})
	return d
}

// SetLineColor recolors future lines.
func (d *Driver) SetLineColor(c color.RGBA) *Driver {
	d.record("line-color", fmt.Sprintf("%02x%02x%02x", c.R, c.G, c.B))
	d.sendMessage(SetLineColorMsg{Color: c})
	return d
}

// SetPathColor recolors the tracked path.
func (d *Driver) SetPathColor(c color.RGBA) *Driver {
	d.record("path-color", fmt.Sprintf("%02x%02x%02x", c.R, c.G, c.B))
	d.sendMessage(SetPathColorMsg{Color: c})
	return d
}

// ToggleDistances flips the distance labels.
func (d *Driver) ToggleDistances() *Driver {
	d.record("toggle-distances", "")
	d.sendMessage(ToggleDistancesMsg{})
	return d
}

// SetMagnifierSize resizes the loupe sample square.
func (d *Driver) SetMagnifierSize(size int) *Driver {
	d.record("magnifier-size", fmt.Sprintf("%d", size))
	d.sendMessage(SetMagnifierSizeMsg{Size: size})
	return d
}

// TogglePlayback starts or pauses playback.
func (d *Driver) TogglePlayback() *Driver {
	d.record("playback", "")
	d.sendMessage(TogglePlaybackMsg{})
	return d
}

// Seek jumps to a frame.
func (d *Driver) Seek(frame int) *Driver {
	d.record("seek", fmt.Sprintf("%d", frame))
	d.sendMessage(SeekFrameMsg{Frame: frame})
	return d
}

// StartTracking begins a run over a display-space box.
func (d *Driver) StartTracking(box image.Rectangle) *Driver {
	d.record("track", box.String())
	d.sendMessage(StartTrackingMsg{Box: box})
	return d
}

// CancelTracking raises the in-flight run's cancel flag.
func (d *Driver) CancelTracking() *Driver {
	d.record("cancel-track", "")
	d.sendMessage(CancelTrackingMsg{})
	return d
}

// WaitFor polls snapshots until the condition holds or the timeout runs
// out. The description names the condition in the failure message.
func (d *Driver) WaitFor(desc string, cond func(Snapshot) bool) *Driver {
	timeout := time.After(d.config.Timeout)
	ticker := time.NewTicker(5 * time.Millisecond)
	defer ticker.Stop()

	for {
		select {
		case <-timeout:
			d.recordError(fmt.Errorf("timeout waiting for %s (status: %s)", desc, d.Snapshot().Status))
			return d
		case <-ticker.C:
			if cond(d.Snapshot()) {
				d.record("wait", desc)
				return d
			}
		}
	}
}

// WaitForText waits until the view contains the text.
func (d *Driver) WaitForText(text string) *Driver {
	return d.WaitFor(fmt.Sprintf("text %q", text), func(s Snapshot) bool {
		return strings.Contains(s.View, text)
	})
}

// WaitTrackingDone waits for a completed session with no run in flight.
func (d *Driver) WaitTrackingDone() *Driver {
	return d.WaitFor("tracking done", func(s Snapshot) bool {
		return s.HasSession && !s.TrackingActive
	})
}

// AssertThat checks a condition against the freshest snapshot right now.
func (d *Driver) AssertThat(desc string, cond func(Snapshot) bool) *Driver {
	if !cond(d.Snapshot()) {
		d.recordError(fmt.Errorf("assertion %s failed (status: %s)", desc, d.Snapshot().Status))
		return d
	}
	d.record("assert", desc)
	return d
}

// AssertLines checks the scene's line count.
func (d *Driver) AssertLines(n int) *Driver {
	return d.AssertThat(fmt.Sprintf("lines=%d", n), func(s Snapshot) bool { return s.Lines == n })
}

// AssertHandles checks the active selection handle count.
func (d *Driver) AssertHandles(n int) *Driver {
	return d.AssertThat(fmt.Sprintf("handles=%d", n), func(s Snapshot) bool { return s.Handles == n })
}

// AssertViewContains checks the rendered status view.
func (d *Driver) AssertViewContains(text string) *Driver {
	return d.AssertThat(fmt.Sprintf("view contains %q", text), func(s Snapshot) bool {
		return strings.Contains(s.View, text)
	})
}

// HasFailed reports whether any step recorded an error.
func (d *Driver) HasFailed() bool { return d.failed }

// sendMessage delivers one message and waits until the update loop has
// processed something after it, so each fluent step observes its effect.
func (d *Driver) sendMessage(msg tea.Msg) {
	if d.program == nil {
		d.recordError(fmt.Errorf("driver not started before sending %T", msg))
		return
	}

	before := d.seq()
	d.program.Send(msg)
	if !d.waitSeqAbove(before) {
		d.recordError(fmt.Errorf("timeout delivering %T", msg))
	}
	if d.config.StepPause > 0 {
		time.Sleep(d.config.StepPause)
	}
}

func (d *Driver) waitSeqAbove(n uint64) bool {
	timeout := time.After(d.config.Timeout)
	ticker := time.NewTicker(time.Millisecond)
	defer ticker.Stop()

	for {
		select {
		case <-timeout:
			return false
		case <-ticker.C:
			if d.seq() > n {
				return true
			}
		}
	}
}

func (d *Driver) record(kind, details string) {
	d.steps = append(d.steps, GestureStep{When: time.Now(), Kind: kind, Details: details})
}

func (d *Driver) recordError(err error) {
	d.lastError = err
	d.failed = true
	if d.t != nil && d.config.AutoReportErrors {
		d.t.Helper()
		d.t.Error(err)
	}
}
