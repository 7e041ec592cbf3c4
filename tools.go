package pvmat

import (
	"image"
	"image/color"

	"github.com/pvmat/pvmat/fault"
)

// ToolMode selects how pointer gestures are interpreted.
type ToolMode int

const (
	ToolIdle ToolMode = iota
	ToolDraw
	ToolSelect
	ToolErase
	ToolClearAll
	ToolCalibrate
)

func (m ToolMode) String() string {
	switch m {
	case ToolIdle:
		return "idle"
	case ToolDraw:
		return "draw"
	case ToolSelect:
		return "select"
	case ToolErase:
		return "erase"
	case ToolClearAll:
		return "clear-all"
	case ToolCalibrate:
		return "calibrate"
	}
	return "unknown"
}

// Cursor is the pointer shape the UI layer should show.
type Cursor int

const (
	CursorArrow Cursor = iota
	CursorCrosshair
	CursorMove
	CursorResize
	CursorErase
	CursorClearAll
)

func (c Cursor) String() string {
	switch c {
	case CursorCrosshair:
		return "crosshair"
	case CursorMove:
		return "move"
	case CursorResize:
		return "resize"
	case CursorErase:
		return "erase"
	case CursorClearAll:
		return "clear-all"
	}
	return "arrow"
}

// dragState tracks one in-progress gesture. The mode is captured at
// pointer-down so a tool change mid-gesture cannot reinterpret the release.
type dragState struct {
	active  bool
	mode    ToolMode
	start   image.Point
	last    image.Point
	line    LineID
	hasLine bool
	handle  int
}

// PointerOutcome reports what a released gesture left behind.
type PointerOutcome struct {
	// DrawnLine names a measurement line the release completed.
	DrawnLine LineID
	HasDrawn  bool

	// CalibrationLine names a completed reference line whose real distance
	// the UI must now collect. Pixels carries its length for the ratio.
	CalibrationLine    LineID
	CalibrationPixels  float64
	CalibrationPending bool
}

// Tools interprets pointer gestures against a scene. It owns the active tool
// mode, the calibrate sub-mode, and the drag sub-state; every mutation it
// makes goes through the scene's own operations.
//
// Example usage:
//
//	tools := pvmat.NewTools(scene)
//	tools.Choose(pvmat.ToolCalibrate, false)
//	tools.PointerDown(image.Pt(10, 10), color.RGBA{255, 255, 255, 255})
//	tools.PointerMove(image.Pt(110, 10))
//	out := tools.PointerUp(image.Pt(110, 10))
//	// out.CalibrationPending is true with 100 pixels to name a distance for.
type Tools struct {
	scene       *Scene
	mode        ToolMode
	calibrating bool
	drag        dragState
}

// NewTools starts in idle with no calibrate sub-mode.
func NewTools(scene *Scene) *Tools {
	return &Tools{scene: scene, drag: dragState{handle: -1}}
}

// Mode returns the active tool.
func (t *Tools) Mode() ToolMode { return t.mode }

// Calibrating reports whether the calibrate sub-mode is on.
func (t *Tools) Calibrating() bool { return t.calibrating }

// Dragging reports whether a gesture is in progress.
func (t *Tools) Dragging() bool { return t.drag.active }

// Choose switches the active tool. Calibrate is a sub-mode: entering it
// forces the tool to draw and shuts erase and clear-all out until the
// calibration gesture resolves. Draw and select stay shut until a first
// calibration exists, since measurements would be meaningless before one.
func (t *Tools) Choose(mode ToolMode, calibrated bool) error {
	if mode == ToolCalibrate {
		t.calibrating = true
		t.mode = ToolDraw
		return nil
	}

	if t.calibrating {
		if mode == ToolErase || mode == ToolClearAll {
			return fault.New(fault.Input, "erase and clear-all are shut out during calibration", nil)
		}
		// Any other pick abandons the calibrate sub-mode.
		t.calibrating = false
	}

	if (mode == ToolDraw || mode == ToolSelect) && !calibrated {
		t.mode = ToolIdle
		return fault.New(fault.Input, "draw and select need a calibration first", nil)
	}

	t.mode = mode
	return nil
}

// CompleteCalibration leaves the calibrate sub-mode after the distance
// prompt resolves either way. Without a calibration on record the drawing
// tools fall back to idle.
func (t *Tools) CompleteCalibration(calibrated bool) {
	t.calibrating = false
	if !calibrated {
		t.mode = ToolIdle
	}
}

// PointerDown starts a gesture at p. Draw opens a provisional line in the
// given color; select captures the handle or the topmost line under p, or
// clears the selection when there is nothing; erase removes every line under
// p with no drag to follow; clear-all empties the scene.
func (t *Tools) PointerDown(p image.Point, lineColor color.RGBA) {
	if t.drag.active {
		return
	}

	switch t.mode {
	case ToolDraw:
		id := t.scene.AddLine(p, p, lineColor)
		t.drag = dragState{active: true, mode: t.mode, start: p, last: p, line: id, hasLine: true, handle: -1}

	case ToolSelect:
		t.drag = dragState{active: true, mode: t.mode, start: p, last: p, handle: -1}
		if idx, ok := t.scene.HandleAt(p); ok {
			t.drag.handle = idx
			return
		}
		if hits := t.scene.QueryAt(p); len(hits) > 0 {
			top := hits[len(hits)-1]
			t.scene.Select(top)
			t.drag.line = top
			t.drag.hasLine = true
			return
		}
		t.scene.SetSelection(nil)

	case ToolErase:
		for _, id := range t.scene.QueryAt(p) {
			t.scene.RemoveLine(id)
		}

	case ToolClearAll:
		t.scene.Clear()
	}
}

// PointerMove advances a gesture to p. Deltas are taken from the previous
// event, not the gesture start, so a captured entity keeps following the
// pointer across any number of steps. A draw gesture instead replaces its
// provisional line outright, keeping the pixel length exact.
func (t *Tools) PointerMove(p image.Point) {
	if !t.drag.active {
		return
	}

	delta := p.Sub(t.drag.last)
	t.drag.last = p

	switch t.drag.mode {
	case ToolDraw:
		t.scene.UpdateLine(t.drag.line, t.drag.start, p)

	case ToolSelect:
		switch {
		case t.drag.handle >= 0:
			t.scene.MoveHandle(t.drag.handle, delta)
		case t.drag.hasLine:
			t.scene.MoveLine(t.drag.line, delta)
		}
	}
}

// PointerUp ends a gesture at p. A zero-length draw is discarded rather than
// kept as an invisible line. In the calibrate sub-mode a completed line with
// positive pixel length is handed back for a distance; everything else just
// finalizes. The drag sub-state resets unconditionally on every release,
// including the calibration-cancel path.
func (t *Tools) PointerUp(p image.Point) PointerOutcome {
	var out PointerOutcome
	if !t.drag.active {
		return out
	}

	if t.drag.mode == ToolDraw && t.drag.hasLine {
		t.scene.UpdateLine(t.drag.line, t.drag.start, p)

		ln, ok := t.scene.Line(t.drag.line)
		switch {
		case !ok:
			// Erased out from under the gesture; nothing to finalize.
		case ln.PixelLen == 0:
			t.scene.RemoveLine(t.drag.line)
		case t.calibrating:
			out.CalibrationLine = t.drag.line
			out.CalibrationPixels = ln.PixelLen
			out.CalibrationPending = true
		default:
			out.DrawnLine = t.drag.line
			out.HasDrawn = true
		}
	}

	t.drag = dragState{handle: -1}
	return out
}

// CursorAt resolves the pointer shape for a position: a handle under the
// pointer always wins and sticks for as long as that handle is being
// dragged, then the select tool's move cursor, then the shape of the
// active tool.
func (t *Tools) CursorAt(p image.Point) Cursor {
	if t.drag.active && t.drag.handle >= 0 {
		return CursorResize
	}
	if _, ok := t.scene.HandleAt(p); ok {
		return CursorResize
	}

	switch t.mode {
	case ToolSelect:
		return CursorMove
	case ToolDraw:
		return CursorCrosshair
	case ToolErase:
		return CursorErase
	case ToolClearAll:
		return CursorClearAll
	}
	return CursorArrow
}
