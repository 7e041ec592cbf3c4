package pvmat

import (
	"image"
	"image/color"

	"github.com/pvmat/pvmat/fault"
)

// LineID is the opaque handle identifying a measurement line in a Scene.
// IDs are never reused within a Scene's lifetime.
type LineID int

// Line is a single measurement line in display space.
//
// PixelLen is recomputed on every endpoint mutation and is never stale; code
// reading a Line may rely on PixelLen == Dist(A, B) at all times.
type Line struct {
	A, B     image.Point
	PixelLen float64
	Color    color.RGBA
}

// Handle is a draggable selection marker sitting on a line endpoint.
type Handle struct {
	Line LineID
	Pos  image.Point
}

// Hit-testing tolerances. Lines hit within half their stroke plus slop;
// handles hit within the bounding box of their drawn circle.
const (
	lineStroke       = 2
	handleRadius     = 3
	lineHitTolerance = float64(lineStroke)/2 + 2
)

// Scene is the store of measurement lines, the current selection, and label
// visibility. It is a plain data structure: all methods are synchronous
// mutations or queries, and rendering pulls from it rather than being pushed.
//
// Only the UI consumer may touch a Scene; background producers communicate
// through the event queue instead.
//
// Example usage:
//
//	scene := NewScene()
//	id := scene.AddLine(image.Pt(0, 0), image.Pt(100, 0), color.RGBA{255, 255, 255, 255})
//	scene.Select(id)
//	scene.MoveHandle(1, image.Pt(0, 30))   // line becomes (0,0)-(100,30)
//	hits := scene.QueryAt(image.Pt(50, 15))
type Scene struct {
	nextID LineID
	lines  map[LineID]*Line
	order  []LineID

	selected *LineID
	handles  []Handle // always empty or exactly two entries

	showLabels bool
	labelOff   map[LineID]bool
}

// NewScene returns an empty scene with distance labels enabled.
func NewScene() *Scene {
	return &Scene{
		nextID:     1,
		lines:      make(map[LineID]*Line),
		labelOff:   make(map[LineID]bool),
		showLabels: true,
	}
}

// AddLine creates a line between a and b and returns its handle.
func (s *Scene) AddLine(a, b image.Point, c color.RGBA) LineID {
	id := s.nextID
	s.nextID++

	s.lines[id] = &Line{A: a, B: b, PixelLen: Dist(a, b), Color: c}
	s.order = append(s.order, id)
	return id
}

// UpdateLine replaces both endpoints of a line and recomputes its pixel
// length. If the line is selected, its handles snap to the new endpoints.
func (s *Scene) UpdateLine(id LineID, a, b image.Point) {
	ln, ok := s.lines[id]
	if !ok {
		return
	}

	ln.A, ln.B = a, b
	ln.PixelLen = Dist(a, b)

	if s.selected != nil && *s.selected == id {
		s.handles[0].Pos = a
		s.handles[1].Pos = b
	}
}

// MoveLine shifts both endpoints (and any selection handles) by delta.
func (s *Scene) MoveLine(id LineID, delta image.Point) {
	ln, ok := s.lines[id]
	if !ok {
		return
	}
	s.UpdateLine(id, ln.A.Add(delta), ln.B.Add(delta))
}

// RemoveLine deletes a line together with its selection handles and label
// state. The cascade is mandatory: nothing may keep referencing a removed
// line.
func (s *Scene) RemoveLine(id LineID) {
	if _, ok := s.lines[id]; !ok {
		return
	}

	delete(s.lines, id)
	delete(s.labelOff, id)
	for i, o := range s.order {
		if o == id {
			s.order = append(s.order[:i], s.order[i+1:]...)
			break
		}
	}

	if s.selected != nil && *s.selected == id {
		s.clearSelection()
	}
}

// Clear empties the scene: lines, selection, and label state.
func (s *Scene) Clear() {
	s.lines = make(map[LineID]*Line)
	s.order = nil
	s.labelOff = make(map[LineID]bool)
	s.clearSelection()
}

// Line returns the line for id, if it exists.
func (s *Scene) Line(id LineID) (*Line, bool) {
	ln, ok := s.lines[id]
	return ln, ok
}

// Len returns the number of lines in the scene.
func (s *Scene) Len() int {
	return len(s.lines)
}

// Each calls fn for every line in creation order. Render order follows
// creation order, so later lines draw above earlier ones.
func (s *Scene) Each(fn func(id LineID, ln *Line)) {
	for _, id := range s.order {
		fn(id, s.lines[id])
	}
}

// Select marks a line as selected, creating its two endpoint handles. Any
// previous selection is dissolved first; selecting the current selection is
// a no-op.
func (s *Scene) Select(id LineID) {
	ln, ok := s.lines[id]
	if !ok {
		return
	}
	if s.selected != nil && *s.selected == id {
		return
	}

	s.clearSelection()
	sel := id
	s.selected = &sel
	s.handles = []Handle{
		{Line: id, Pos: ln.A},
		{Line: id, Pos: ln.B},
	}
}

// SetSelection selects a line, or clears the selection when id is nil.
func (s *Scene) SetSelection(id *LineID) {
	if id == nil {
		s.clearSelection()
		return
	}
	s.Select(*id)
}

func (s *Scene) clearSelection() {
	s.selected = nil
	s.handles = nil
}

// Selection returns the selected line and its two handles.
func (s *Scene) Selection() (LineID, []Handle, bool) {
	if s.selected == nil {
		return 0, nil, false
	}
	return *s.selected, s.handles, true
}

// HandleCount returns the number of active selection handles, always 0 or 2.
func (s *Scene) HandleCount() int {
	return len(s.handles)
}

// MoveHandle drags one selection handle by delta. Only that handle moves;
// the owning line is redrawn between the two handles' current positions and
// its pixel length recomputed. Calling with no active selection is a
// programming error.
func (s *Scene) MoveHandle(idx int, delta image.Point) {
	fault.Assertf(len(s.handles) == 2, "moved handle %d with %d active handles", idx, len(s.handles))
	fault.Assertf(idx == 0 || idx == 1, "handle index %d out of range", idx)

	s.handles[idx].Pos = s.handles[idx].Pos.Add(delta)
	id := s.handles[idx].Line

	// UpdateLine re-snaps handles to endpoints, which is exactly the two
	// current handle positions.
	s.UpdateLine(id, s.handles[0].Pos, s.handles[1].Pos)
}

// HandleAt hit-tests the selection handles at p using the drawn circle's
// bounding box. It returns the handle index when hit.
func (s *Scene) HandleAt(p image.Point) (int, bool) {
	for i, h := range s.handles {
		if inBox(p, h.Pos, handleRadius) {
			return i, true
		}
	}
	return 0, false
}

// QueryAt returns every line whose stroke is hit at p, in creation order.
// Erase uses the full set; Select uses the topmost entry.
func (s *Scene) QueryAt(p image.Point) []LineID {
	var hits []LineID
	for _, id := range s.order {
		ln := s.lines[id]
		if segmentDist(p, ln.A, ln.B) <= lineHitTolerance {
			hits = append(hits, id)
		}
	}
	return hits
}

// SetLabelVisible toggles the distance label for one line.
func (s *Scene) SetLabelVisible(id LineID, visible bool) {
	if _, ok := s.lines[id]; !ok {
		return
	}
	if visible {
		delete(s.labelOff, id)
	} else {
		s.labelOff[id] = true
	}
}

// SetShowLabels toggles distance labels globally.
func (s *Scene) SetShowLabels(show bool) {
	s.showLabels = show
}

// ShowLabels reports the global label toggle.
func (s *Scene) ShowLabels() bool {
	return s.showLabels
}

// LabelVisible reports whether a line's distance label should draw: the
// global toggle and the per-line flag must both allow it.
func (s *Scene) LabelVisible(id LineID) bool {
	if _, ok := s.lines[id]; !ok {
		return false
	}
	return s.showLabels && !s.labelOff[id]
}
