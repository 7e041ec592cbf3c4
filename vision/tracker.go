// Package vision adapts OpenCV to the annotation core: object tracking
// algorithms behind the core tracker contract, and the loading of stitcher
// artifacts into Footage.
package vision

import (
	"fmt"
	"image"
	"strings"

	"gocv.io/x/gocv"
	"gocv.io/x/gocv/contrib"

	"github.com/pvmat/pvmat"
)

// matTracker is the method set shared by gocv's tracker implementations.
type matTracker interface {
	Init(img gocv.Mat, box image.Rectangle) bool
	Update(img gocv.Mat) (image.Rectangle, bool)
	Close() error
}

// Tracker adapts an OpenCV tracking algorithm to the core tracker contract.
// Frames arrive as plain images and are converted to Mats per call; the Mat
// never escapes this package.
//
// A Tracker is single-use: Init anchors it once, Update consumes frames in
// order, Close releases the OpenCV handle.
type Tracker struct {
	tr        matTracker
	algorithm string
}

var _ pvmat.ObjectTracker = (*Tracker)(nil)

// NewCSRT returns the default adapter, OpenCV contrib's CSRT tracker.
func NewCSRT() *Tracker {
	return &Tracker{tr: contrib.NewTrackerCSRT(), algorithm: "csrt"}
}

// NewKCF returns an adapter over OpenCV contrib's KCF tracker.
func NewKCF() *Tracker {
	return &Tracker{tr: contrib.NewTrackerKCF(), algorithm: "kcf"}
}

// NewMIL returns an adapter over OpenCV's MIL tracker.
func NewMIL() *Tracker {
	return &Tracker{tr: gocv.NewTrackerMIL(), algorithm: "mil"}
}

// NewTracker returns an adapter for the named algorithm. An empty name
// selects csrt.
func NewTracker(algorithm string) (*Tracker, error) {
	switch strings.ToLower(algorithm) {
	case "", "csrt":
		return NewCSRT(), nil
	case "kcf":
		return NewKCF(), nil
	case "mil":
		return NewMIL(), nil
	default:
		return nil, fmt.Errorf("unknown tracking algorithm %q (want csrt, kcf, or mil)", algorithm)
	}
}

// Algorithm returns the algorithm name this adapter was built with.
func (t *Tracker) Algorithm() string {
	return t.algorithm
}

// Init anchors the tracker on the frame region inside box.
func (t *Tracker) Init(frame image.Image, box image.Rectangle) bool {
	mat, err := gocv.ImageToMatRGB(frame)
	if err != nil {
		return false
	}
	defer mat.Close()

	return t.tr.Init(mat, box)
}

// Update advances the tracker by one frame, reporting the new bounding box
// or a failure for this frame only.
func (t *Tracker) Update(frame image.Image) (image.Rectangle, bool) {
	mat, err := gocv.ImageToMatRGB(frame)
	if err != nil {
		return image.Rectangle{}, false
	}
	defer mat.Close()

	return t.tr.Update(mat)
}

// Close releases the underlying OpenCV tracker.
func (t *Tracker) Close() error {
	return t.tr.Close()
}
