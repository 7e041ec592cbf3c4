// Package pvmat is the measurement and tracking core for panoramic video:
// a scene of measured lines over a stitched panorama, pixel-to-distance
// calibration, an object-tracking pipeline with gap-tolerant velocity
// estimation, and the compositing that presents all of it frame by frame.
//
// The package is UI-toolkit agnostic. App is a bubbletea model consuming
// pointer events and commands through one ordered queue; an embedding shell
// forwards its input events in and pulls images back out. The background
// producers (playback clock, tracking worker) post into the same queue and
// never touch shared state.
//
// Basic usage:
//
//	footage, _ := vision.LoadFootage(dir)
//	app := pvmat.NewApp(pvmat.DefaultConfig(), footage, vision.NewCSRT)
//	program := tea.NewProgram(app, tea.WithoutRenderer(), tea.WithInput(nil))
//	app.Start(program.Send)
//	go program.Run()
//
//	program.Send(pvmat.SelectToolMsg{Tool: pvmat.ToolCalibrate})
//	program.Send(pvmat.PointerDownMsg{Pos: image.Pt(100, 50)})
//	program.Send(pvmat.PointerMoveMsg{Pos: image.Pt(200, 50)})
//	program.Send(pvmat.PointerUpMsg{Pos: image.Pt(200, 50)})
//	program.Send(pvmat.SetCalibrationDistanceMsg{Raw: "5", Units: pvmat.Metric})
package pvmat

import (
	"fmt"
	"image"
	"image/color"
	"log/slog"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/pvmat/pvmat/fault"
)

// TrackerFactory builds a fresh tracker for one run. Each run owns and
// closes its own tracker; a retrack never reuses the previous one.
type TrackerFactory func() ObjectTracker

// pendingCalibration is a just-drawn reference line waiting for its real
// distance. While one is pending the pointer surface is modal: gestures are
// refused until the distance prompt resolves.
type pendingCalibration struct {
	line   LineID
	pixels float64
}

// App is the annotation program: the only owner of the scene, calibration,
// and tracking results. It consumes every event in arrival order from the
// bubbletea queue, so background producers and the embedding UI can post
// concurrently without locks around the geometric state.
type App struct {
	cfg      Config
	footage  *Footage
	renderer *Renderer

	scene *Scene
	tools *Tools
	calib Calibration

	frame  int
	cursor image.Point
	clock  *clock

	newTracker TrackerFactory
	run        *trackRun
	session    *Session
	progFrame  int
	progTotal  int

	lineColor     color.RGBA
	pathColor     color.RGBA
	velocityUnit  VelocityUnit
	magnifierSize int
	magnifierSeq  uint64

	pending *pendingCalibration
	status  string
	faults  *fault.Collector
	log     *slog.Logger

	send func(tea.Msg)
}

// NewApp validates the footage and builds the program state. The tracker
// factory may be nil when tracking is never started.
func NewApp(cfg Config, footage *Footage, newTracker TrackerFactory) (*App, error) {
	if f := footage.Validate(); f != nil {
		return nil, f
	}

	scene := NewScene()
	return &App{
		cfg:           cfg,
		footage:       footage,
		renderer:      NewRenderer(footage, cfg.ViewWidth, cfg.ViewHeight),
		scene:         scene,
		tools:         NewTools(scene),
		calib:         NewCalibration(),
		clock:         newClock(),
		newTracker:    newTracker,
		lineColor:     cfg.LineColor,
		pathColor:     cfg.PathColor,
		velocityUnit:  cfg.VelocityUnit,
		magnifierSize: ClampMagnifierSize(cfg.MagnifierSize),
		faults:        fault.NewCollector("app", fault.DefaultPolicy()),
		log:           slog.Default(),
	}, nil
}

// WithLogger swaps the logger. Call before Start.
func (a *App) WithLogger(log *slog.Logger) *App {
	a.log = log
	return a
}

// Start attaches the program's sender and launches the playback clock.
// Producers post through the sender only; it must come from the program
// whose queue this App consumes.
func (a *App) Start(send func(tea.Msg)) *App {
	a.send = send
	go a.clock.run(send)
	return a
}

// Shutdown stops the clock and raises the cancel flag on any in-flight
// tracking run.
func (a *App) Shutdown() {
	a.clock.Stop()
	if a.run != nil {
		a.run.cancel.Store(true)
	}
}

// Init implements tea.Model. Producers are started by Start instead, since
// they need the program's sender rather than a command.
func (a *App) Init() tea.Cmd { return nil }

// Update implements tea.Model: the single consumer. Every mutation of the
// scene, calibration, and tracking results happens here, in arrival order.
func (a *App) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case PointerDownMsg:
		a.cursor = msg.Pos
		if !a.pointerLive() {
			return a, nil
		}
		if a.pending != nil {
			a.status = "enter the calibration distance first"
			return a, nil
		}
		a.tools.PointerDown(msg.Pos, a.lineColor)

	case PointerMoveMsg:
		a.cursor = msg.Pos
		if a.pointerLive() && a.pending == nil {
			a.tools.PointerMove(msg.Pos)
		}

	case PointerUpMsg:
		a.cursor = msg.Pos
		if !a.pointerLive() || a.pending != nil {
			return a, nil
		}
		out := a.tools.PointerUp(msg.Pos)
		if out.CalibrationPending {
			a.pending = &pendingCalibration{line: out.CalibrationLine, pixels: out.CalibrationPixels}
			a.status = "calibration line drawn, enter its real distance"
		}

	case SelectToolMsg:
		if err := a.tools.Choose(msg.Tool, a.calib.Calibrated()); err != nil {
			a.noteFault(err)
		} else {
			a.status = "tool: " + a.tools.Mode().String()
		}

	case SetCalibrationDistanceMsg:
		a.applyCalibrationDistance(msg)

	case SwitchUnitsMsg:
		a.calib.SwitchUnits(msg.Units)
		a.status = "units: " + msg.Units.String()

	case SetVelocityUnitsMsg:
		a.velocityUnit = msg.Unit

	case SetLineColorMsg:
		a.lineColor = msg.Color

	case SetPathColorMsg:
		a.pathColor = msg.Color

	case ToggleDistancesMsg:
		a.scene.SetShowLabels(!a.scene.ShowLabels())

	case SetMagnifierSizeMsg:
		a.magnifierSize = ClampMagnifierSize(msg.Size)

	case TogglePlaybackMsg:
		a.togglePlayback()

	case SeekFrameMsg:
		a.seek(msg.Frame)

	case ExportFrameMsg:
		if err := a.ExportFrame(msg.Path); err != nil {
			a.noteFault(fault.New(fault.Input, "cannot export frame", fault.Context{"path": msg.Path, "error": err.Error()}))
		} else {
			a.status = "exported: " + msg.Path
		}

	case StartTrackingMsg:
		a.startTracking(msg.Box)

	case CancelTrackingMsg:
		if a.run != nil {
			a.run.cancel.Store(true)
			a.status = "cancelling tracking"
		}

	case frameTickMsg:
		a.advance()

	case magnifierRefreshMsg:
		a.magnifierSeq++

	case trackProgressMsg:
		if a.run != nil && msg.id == a.run.session.ID {
			a.progFrame = msg.frame
			a.progTotal = msg.total
		}

	case trackDoneMsg:
		a.finishTracking(msg.session)

	case trackCancelledMsg:
		if a.run != nil && msg.id == a.run.session.ID {
			a.run = nil
			a.status = "tracking cancelled"
			a.log.Info("tracking cancelled", "run", msg.id)
		}

	case tea.KeyMsg:
		switch msg.String() {
		case "q", "ctrl+c":
			a.Shutdown()
			return a, tea.Quit
		case " ":
			a.togglePlayback()
		case "left":
			a.seek(a.frame - 1)
		case "right":
			a.seek(a.frame + 1)
		}
	}

	return a, nil
}

// applyCalibrationDistance resolves the distance prompt. Malformed text
// keeps the prompt pending for another try; a non-positive value cancels,
// deleting the reference line and leaving any previous calibration alone.
func (a *App) applyCalibrationDistance(msg SetCalibrationDistanceMsg) {
	if a.pending == nil {
		a.status = "no calibration waiting for a distance"
		return
	}
	if msg.Units != Metric && msg.Units != Imperial {
		a.noteFault(fault.New(fault.Input, "calibration needs a physical unit system", nil))
		return
	}

	v, err := ParseDistance(msg.Raw, msg.Units)
	if err != nil {
		a.noteFault(err)
		a.status = fmt.Sprintf("cannot read %q, enter the distance again", msg.Raw)
		return
	}

	if v <= 0 {
		a.scene.RemoveLine(a.pending.line)
		a.pending = nil
		a.tools.CompleteCalibration(a.calib.Calibrated())
		a.status = "calibration cancelled"
		return
	}

	px := a.pending.pixels
	a.calib.Set(px, v, msg.Units)
	a.pending = nil
	a.tools.CompleteCalibration(true)
	a.deriveVelocities()
	a.status = fmt.Sprintf("calibrated: %s across %.0f px", FormatDistance(v, msg.Units), px)
	a.log.Info("calibrated", "ratio", a.calib.Ratio(), "units", a.calib.Units().String())
}

func (a *App) togglePlayback() {
	if a.clock.Playing() {
		a.clock.Pause()
		a.status = "paused"
	} else {
		a.clock.Play()
		a.status = "playing"
	}
}

func (a *App) seek(frame int) {
	last := len(a.footage.Frames) - 1
	if frame < 0 {
		frame = 0
	}
	if frame > last {
		frame = last
	}
	a.frame = frame
}

// advance steps playback one frame, wrapping to the start past the end of
// the footage.
func (a *App) advance() {
	if !a.clock.Playing() {
		return
	}
	if a.frame >= len(a.footage.Frames)-1 {
		a.frame = 0
		return
	}
	a.frame++
}

// startTracking tears down any in-flight run, then anchors a new tracker on
// the current frame over the given display-space box and spawns its worker.
func (a *App) startTracking(box image.Rectangle) {
	if a.newTracker == nil {
		a.noteFault(fault.New(fault.Tracking, "no tracker configured", nil))
		return
	}
	if a.run != nil {
		a.run.cancel.Store(true)
	}
	a.session = nil
	a.progFrame, a.progTotal = 0, 0

	r := newTrackRun(a.newTracker(), a.footage, a.renderer.Scale())
	if !r.init(a.frame, box) {
		r.tracker.Close()
		a.noteFault(fault.Fatal(fault.Tracking, "tracker failed to initialize", fault.Context{"frame": a.frame}))
		return
	}

	a.run = r
	go r.run(a.send)
	a.status = fmt.Sprintf("tracking %d frames", len(a.footage.Frames))
	a.log.Info("tracking started", "run", r.session.ID, "frame", a.frame, "frames", len(a.footage.Frames))
}

// finishTracking installs a completed session, ignoring results from a run
// that was superseded before it finished.
func (a *App) finishTracking(s *Session) {
	if a.run == nil || s.ID != a.run.session.ID {
		return
	}
	a.run = nil
	a.session = s
	a.deriveVelocities()

	if s.HasFailures() {
		note := fault.Note(fault.Tracking, fmt.Sprintf("Tracking failure at frame %d", s.FirstFailure+1),
			fault.Context{"failures": s.FailureCount()})
		a.faults.Record(note)
		a.status = note.Message
	} else {
		a.status = "tracking complete"
	}
	a.log.Info("tracking done", "run", s.ID, "frames", s.Frames(), "failures", s.FailureCount())
}

// deriveVelocities recomputes the session's speeds from scratch. Runs on
// session completion and again whenever calibration changes; never patched
// incrementally.
func (a *App) deriveVelocities() {
	if a.session == nil || !a.calib.Calibrated() {
		return
	}
	if a.session.PathLen(a.session.Frames()-1) == 0 {
		return
	}
	a.session.Velocities = Velocities(a.session.COMs, a.session.Failed, a.footage.FPS)
}

// pointerLive reports whether gestures reach the tools at all. Until the
// first calibration begins, drags over the display do nothing; the cursor
// position still tracks so the magnifier follows the pointer.
func (a *App) pointerLive() bool {
	return a.tools.Calibrating() || a.calib.Calibrated()
}

func (a *App) noteFault(err error) {
	if f, ok := err.(*fault.Fault); ok {
		a.faults.Record(f)
		a.status = f.Message
		a.log.Warn("fault", "class", f.Class.String(), "severity", f.Severity.String(), "message", f.Message)
		return
	}
	a.status = err.Error()
	a.log.Warn("fault", "message", err.Error())
}

var (
	statusTitleStyle = lipgloss.NewStyle().Bold(true)
	statusNoteStyle  = lipgloss.NewStyle().Faint(true)
)

// View implements tea.Model. The core is headless; this view is a compact
// state readout for drivers and debugging, not a UI.
func (a *App) View() string {
	mode := a.tools.Mode().String()
	if a.tools.Calibrating() {
		mode = "calibrate"
	}

	line1 := statusTitleStyle.Render("pvmat") +
		fmt.Sprintf(" frame %d/%d tool=%s units=%s", a.frame+1, len(a.footage.Frames), mode, a.calib.Units())
	if a.clock.Playing() {
		line1 += " playing"
	}
	if a.calib.Calibrated() {
		line1 += " calibrated"
	}
	if a.pending != nil {
		line1 += " awaiting-distance"
	}

	line2 := fmt.Sprintf("lines=%d handles=%d", a.scene.Len(), a.scene.HandleCount())
	if a.run != nil {
		line2 += fmt.Sprintf(" tracking %d/%d", a.progFrame+1, a.progTotal)
	}
	if a.session != nil {
		line2 += fmt.Sprintf(" session=%d-frames failures=%d", a.session.Frames(), a.session.FailureCount())
	}

	out := line1 + "\n" + line2
	if a.status != "" {
		out += "\n" + statusNoteStyle.Render(a.status)
	}
	return out
}

// Frame returns the current frame index.
func (a *App) Frame() int { return a.frame }

// Scene returns the scene store. Callers outside the update loop must treat
// it as read-only.
func (a *App) Scene() *Scene { return a.scene }

// Calibration returns the current calibration.
func (a *App) Calibration() *Calibration { return &a.calib }

// Session returns the latest completed tracking session, nil before one
// finishes.
func (a *App) Session() *Session { return a.session }

// Status returns the last user-facing note.
func (a *App) Status() string { return a.status }

// Faults returns the fault collector.
func (a *App) Faults() *fault.Collector { return a.faults }

func (a *App) drawState() DrawState {
	return DrawState{
		Frame:        a.frame,
		Scene:        a.scene,
		Calibration:  &a.calib,
		Calibrating:  a.tools.Calibrating(),
		Session:      a.session,
		PathColor:    a.pathColor,
		VelocityUnit: a.velocityUnit,
	}
}

// FrameImage renders the current display frame on demand.
func (a *App) FrameImage() *image.RGBA {
	return a.renderer.Frame(a.drawState())
}

// MagnifierImage renders the loupe at the last cursor position on demand.
func (a *App) MagnifierImage() *image.RGBA {
	return a.renderer.Magnify(a.drawState(), a.cursor, a.magnifierSize)
}

// DistanceLabel returns the label text for one line under the current
// calibration, empty for an unknown line.
func (a *App) DistanceLabel(id LineID) string {
	ln, ok := a.scene.Line(id)
	if !ok {
		return ""
	}
	return a.calib.DistanceText(ln.PixelLen, a.tools.Calibrating())
}

// VelocityLabel returns the readout for the current frame, empty on failure
// frames and before calibration.
func (a *App) VelocityLabel() string {
	s := a.session
	if s == nil || a.frame >= s.Frames() || s.Failed[a.frame] {
		return ""
	}
	factor := a.calib.VelocityDisplayFactor(a.velocityUnit)
	if factor <= 0 || a.frame >= len(s.Velocities) {
		return ""
	}
	return FormatVelocity(s.Velocities[a.frame]*factor, a.velocityUnit)
}

// CursorShape resolves the pointer shape for the last cursor position.
func (a *App) CursorShape() Cursor {
	return a.tools.CursorAt(a.cursor)
}

// MagnifierSeq counts magnifier refresh events. An embedding layer re-pulls
// the loupe when it advances.
func (a *App) MagnifierSeq() uint64 { return a.magnifierSeq }

// Progress reports the in-flight run's last posted frame, and whether a run
// is active.
func (a *App) Progress() (frame, total int, active bool) {
	return a.progFrame, a.progTotal, a.run != nil
}

// Snapshot captures plain-value state for polling from outside the update
// loop without racing it. Taken inside Update by test drivers.
type Snapshot struct {
	Tool           ToolMode
	Calibrating    bool
	Dragging       bool
	Calibrated     bool
	Units          UnitSystem
	Frame          int
	Frames         int
	Playing        bool
	Lines          int
	Handles        int
	Selected       bool
	PendingPrompt  bool
	TrackingActive bool
	ProgressFrame  int
	ProgressTotal  int
	HasSession     bool
	Failures       int
	FirstFailure   int
	MagnifierSeq   uint64
	Status         string
	View           string
}

// Snapshot builds the current Snapshot. Only safe on the update goroutine.
func (a *App) Snapshot() Snapshot {
	_, _, selected := a.scene.Selection()
	return Snapshot{
		Tool:           a.tools.Mode(),
		Calibrating:    a.tools.Calibrating(),
		Dragging:       a.tools.Dragging(),
		Calibrated:     a.calib.Calibrated(),
		Units:          a.calib.Units(),
		Frame:          a.frame,
		Frames:         len(a.footage.Frames),
		Playing:        a.clock.Playing(),
		Lines:          a.scene.Len(),
		Handles:        a.scene.HandleCount(),
		Selected:       selected,
		PendingPrompt:  a.pending != nil,
		TrackingActive: a.run != nil,
		ProgressFrame:  a.progFrame,
		ProgressTotal:  a.progTotal,
		HasSession:     a.session != nil,
		Failures:       a.sessionFailures(),
		FirstFailure:   a.sessionFirstFailure(),
		MagnifierSeq:   a.magnifierSeq,
		Status:         a.status,
		View:           a.View(),
	}
}

func (a *App) sessionFailures() int {
	if a.session == nil {
		return 0
	}
	return a.session.FailureCount()
}

func (a *App) sessionFirstFailure() int {
	if a.session == nil {
		return -1
	}
	return a.session.FirstFailure
}
