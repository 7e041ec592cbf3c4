package pvmat

import (
	"image"
	"sync/atomic"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/google/uuid"

	"github.com/pvmat/pvmat/fault"
)

// Frame is one located video frame as the stitcher delivers it: a
// panorama-sized canvas holding the frame's pixels at their located
// position, transparent elsewhere, plus the location itself.
type Frame struct {
	Image image.Image
	Loc   image.Point
}

// Footage bundles the stitcher collaborator's outputs: the panorama, the
// ordered located frames, and the source frame rate. Everything downstream
// reads footage and never the original video.
type Footage struct {
	Panorama image.Image
	Frames   []Frame
	FPS      float64
}

// Validate checks the footage against the collaborator contract. A failure
// here is fatal to the session; no partial state is retained.
func (f *Footage) Validate() *fault.Fault {
	switch {
	case f.Panorama == nil:
		return fault.Fatal(fault.Collaborator, "footage has no panorama", nil)
	case len(f.Frames) == 0:
		return fault.Fatal(fault.Collaborator, "footage has no frames", nil)
	case f.FPS <= 0:
		return fault.Fatal(fault.Collaborator, "footage frame rate is not positive", fault.Context{"fps": f.FPS})
	}
	for i, fr := range f.Frames {
		if fr.Image == nil {
			return fault.Fatal(fault.Collaborator, "footage frame has no image", fault.Context{"frame": i})
		}
	}
	return nil
}

// ObjectTracker is the per-frame tracking contract. The algorithm behind it
// is opaque: Init anchors it on a frame and a box, Update reports the box on
// the next frame or a failure for that frame only.
type ObjectTracker interface {
	Init(frame image.Image, box image.Rectangle) bool
	Update(frame image.Image) (image.Rectangle, bool)
	Close() error
}

// Session is the complete record of one tracking run. All geometry is in
// display space. Boxes, COMs, and Failed are parallel, one entry per frame;
// a failed frame holds zero values with Failed[i] set, and the path is the
// ordered successful COMs only.
//
// Velocities is derived after the fact (and re-derived whenever calibration
// changes); it is the only field mutated after the run completes, and only
// by the UI consumer.
type Session struct {
	ID     uuid.UUID
	Boxes  []image.Rectangle
	COMs   []image.Point
	Failed []bool

	// FirstFailure is the first failed frame index, -1 when every frame
	// succeeded. User-facing reports quote it 1-based.
	FirstFailure int

	Velocities []float64 // pixels/second, aligned by frame

	pathPoints []image.Point
	pathLen    []int
}

func newSession() *Session {
	return &Session{ID: uuid.New(), FirstFailure: -1}
}

// record appends one frame's outcome. Tracker boxes arrive in frame space
// and are stored display-scaled.
func (s *Session) record(box image.Rectangle, ok bool, scale float64) {
	i := len(s.Failed)

	if ok {
		disp := scaleRect(box, scale)
		com := boxCenter(disp)
		s.Boxes = append(s.Boxes, disp)
		s.COMs = append(s.COMs, com)
		s.Failed = append(s.Failed, false)
		s.pathPoints = append(s.pathPoints, com)
	} else {
		s.Boxes = append(s.Boxes, image.Rectangle{})
		s.COMs = append(s.COMs, image.Point{})
		s.Failed = append(s.Failed, true)
		if s.FirstFailure < 0 {
			s.FirstFailure = i
		}
	}

	s.pathLen = append(s.pathLen, len(s.pathPoints))
}

// Frames returns the number of recorded frames.
func (s *Session) Frames() int {
	return len(s.Failed)
}

// PathAt returns the cumulative COM path as of frame i: every successful COM
// in [0, i], in order. Failure frames never extend it.
func (s *Session) PathAt(i int) []image.Point {
	if i < 0 || i >= len(s.pathLen) {
		return nil
	}
	return s.pathPoints[:s.pathLen[i]]
}

// PathLen returns the number of path points as of frame i.
func (s *Session) PathLen(i int) int {
	if i < 0 || i >= len(s.pathLen) {
		return 0
	}
	return s.pathLen[i]
}

// HasFailures reports whether any frame failed.
func (s *Session) HasFailures() bool {
	return s.FirstFailure >= 0
}

// FailureCount returns the number of failed frames.
func (s *Session) FailureCount() int {
	n := 0
	for _, f := range s.Failed {
		if f {
			n++
		}
	}
	return n
}

// trackRun owns one background tracking pass: the tracker it will drive and
// consume, the session it fills, and its cooperative cancel flag. A new run
// is built only after the previous run's flag is raised, so at most one
// session's results ever reach the UI consumer.
type trackRun struct {
	session *Session
	tracker ObjectTracker
	frames  []Frame
	scale   float64
	cancel  atomic.Bool
}

func newTrackRun(tracker ObjectTracker, footage *Footage, scale float64) *trackRun {
	return &trackRun{
		session: newSession(),
		tracker: tracker,
		frames:  footage.Frames,
		scale:   scale,
	}
}

// init anchors the tracker on the chosen frame. The box arrives in display
// space and is handed to the tracker frame-scaled.
func (r *trackRun) init(frameIdx int, displayBox image.Rectangle) bool {
	return r.tracker.Init(r.frames[frameIdx].Image, scaleRect(displayBox, 1/r.scale))
}

// run walks every frame in order, posting one progress event per frame and
// a completion event at the end. The cancel flag is polled once per frame;
// a cancelled run discards its partial session and reports only that it was
// cancelled.
func (r *trackRun) run(send func(tea.Msg)) {
	defer r.tracker.Close()

	total := len(r.frames)
	for i, fr := range r.frames {
		if r.cancel.Load() {
			send(trackCancelledMsg{id: r.session.ID})
			return
		}

		box, ok := r.tracker.Update(fr.Image)
		r.session.record(box, ok, r.scale)
		send(trackProgressMsg{id: r.session.ID, frame: i, total: total})
	}

	send(trackDoneMsg{session: r.session})
}

// RunTracking drives a complete pass synchronously: init on the chosen
// frame, then update over all frames in order, reporting each to progress.
// Batch callers use this directly; the interactive path runs the same walk
// through the event queue instead.
func RunTracking(tracker ObjectTracker, footage *Footage, scale float64, initFrame int, displayBox image.Rectangle, progress func(frame, total int)) (*Session, error) {
	if f := footage.Validate(); f != nil {
		return nil, f
	}
	if initFrame < 0 || initFrame >= len(footage.Frames) {
		return nil, fault.Fatal(fault.Tracking, "tracking init frame out of range", fault.Context{"frame": initFrame})
	}

	r := newTrackRun(tracker, footage, scale)
	defer r.tracker.Close()

	if !r.init(initFrame, displayBox) {
		return nil, fault.Fatal(fault.Tracking, "tracker failed to initialize", fault.Context{"frame": initFrame})
	}

	total := len(r.frames)
	for i, fr := range r.frames {
		box, ok := r.tracker.Update(fr.Image)
		r.session.record(box, ok, r.scale)
		if progress != nil {
			progress(i, total)
		}
	}

	return r.session, nil
}
