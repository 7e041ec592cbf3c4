package pvmat

import (
	"image"
	"image/color"
	"image/draw"

	xdraw "golang.org/x/image/draw"
	"golang.org/x/image/font"
	"golang.org/x/image/font/basicfont"
	"golang.org/x/image/math/fixed"

	"github.com/pvmat/pvmat/fault"
)

// heightBudget caps the panorama strip at this share of the view height so
// the controls below it stay visible.
const heightBudget = 0.38

const (
	pathStroke       = 2
	boxStroke        = 2
	velocityTextRise = 20
)

var (
	handleFillColor = color.RGBA{R: 0x2d, G: 0x65, B: 0xa4, A: 0xff}
	trackBoxColor   = color.RGBA{R: 0xff, A: 0xff}
)

// FitDisplay sizes the panorama for a view: fill the width, then shrink to
// the height budget when the result is too tall. The returned scale maps
// panorama coordinates to display coordinates.
func FitDisplay(panoW, panoH, viewW, viewH int) (w, h int, scale float64) {
	fault.Assertf(panoW > 0 && panoH > 0, "panorama has no size: %dx%d", panoW, panoH)

	w = viewW
	h = panoH * w / panoW
	if budget := int(heightBudget * float64(viewH)); h > budget {
		h = budget
		w = panoW * h / panoH
	}
	scale = float64(w) / float64(panoW)
	return w, h, scale
}

// DrawState carries everything one display frame needs. The renderer reads
// it and never holds on to it.
type DrawState struct {
	Frame        int
	Scene        *Scene
	Calibration  *Calibration
	Calibrating  bool
	Session      *Session
	PathColor    color.RGBA
	VelocityUnit VelocityUnit
}

// Renderer composes display frames for one footage: the scaled panorama
// backdrop, the located frame over it, the tracking layer, and the
// measurement layer on top.
//
// Example usage:
//
//	r := pvmat.NewRenderer(footage, 1280, 800)
//	img := r.Frame(pvmat.DrawState{Frame: 0, Scene: scene, Calibration: calib})
//
// Frame canvases are scaled on first use and cached, so scrubbing back over
// played frames does not rescale them.
type Renderer struct {
	footage *Footage
	width   int
	height  int
	scale   float64
	pano    *image.RGBA
	frames  []*image.RGBA
}

// NewRenderer fits the footage to the view and prepares the backdrop.
func NewRenderer(footage *Footage, viewW, viewH int) *Renderer {
	pb := footage.Panorama.Bounds()
	w, h, scale := FitDisplay(pb.Dx(), pb.Dy(), viewW, viewH)

	return &Renderer{
		footage: footage,
		width:   w,
		height:  h,
		scale:   scale,
		pano:    scaleImage(footage.Panorama, w, h),
		frames:  make([]*image.RGBA, len(footage.Frames)),
	}
}

// Scale returns the panorama-to-display scale factor.
func (r *Renderer) Scale() float64 { return r.scale }

// Size returns the display dimensions of the panorama strip.
func (r *Renderer) Size() (w, h int) { return r.width, r.height }

func (r *Renderer) frameImage(i int) *image.RGBA {
	if r.frames[i] == nil {
		r.frames[i] = scaleImage(r.footage.Frames[i].Image, r.width, r.height)
	}
	return r.frames[i]
}

// Composite returns the backdrop for frame i: the scaled panorama with the
// scaled frame canvas over it. An out-of-range frame yields the bare
// panorama.
func (r *Renderer) Composite(i int) *image.RGBA {
	b := image.NewRGBA(r.pano.Bounds())
	draw.Draw(b, b.Bounds(), r.pano, image.Point{}, draw.Src)
	if i >= 0 && i < len(r.frames) {
		draw.Draw(b, b.Bounds(), r.frameImage(i), image.Point{}, draw.Over)
	}
	return b
}

// Frame renders one complete display frame.
func (r *Renderer) Frame(st DrawState) *image.RGBA {
	b := r.Composite(st.Frame)

	if st.Session != nil {
		factor := 0.0
		if st.Calibration != nil {
			factor = st.Calibration.VelocityDisplayFactor(st.VelocityUnit)
		}
		DrawSession(b, st.Session, st.Frame, st.PathColor, factor, st.VelocityUnit, pathStroke)
	}
	if st.Scene != nil {
		DrawScene(b, st.Scene, st.Calibration, st.Calibrating, lineStroke)
	}
	return b
}

// DrawScene paints the measurement layer: every line in creation order, the
// distance labels that are switched on, then the selection handles on top.
func DrawScene(dst *image.RGBA, sc *Scene, calib *Calibration, calibrating bool, stroke int) {
	sc.Each(func(id LineID, ln *Line) {
		drawSegment(dst, ln.A, ln.B, ln.Color, stroke)
		if calib != nil && sc.LabelVisible(id) {
			drawTag(dst, LabelAnchor(ln.A, ln.B), calib.DistanceText(ln.PixelLen, calibrating))
		}
	})
	for _, h := range sc.handles {
		drawDot(dst, h.Pos, handleRadius, handleFillColor)
		drawRing(dst, h.Pos, handleRadius, color.White)
	}
}

// DrawSession paints the tracking layer for one frame: the cumulative path,
// and on successful frames the box and its speed readout. The readout is
// skipped until calibration gives the factor meaning.
func DrawSession(dst *image.RGBA, s *Session, frame int, pathColor color.RGBA, factor float64, unit VelocityUnit, stroke int) {
	if s == nil {
		return
	}

	path := s.PathAt(frame)
	for i := 1; i < len(path); i++ {
		drawSegment(dst, path[i-1], path[i], pathColor, stroke)
	}

	if frame < 0 || frame >= s.Frames() || s.Failed[frame] {
		return
	}

	box := s.Boxes[frame]
	drawBox(dst, box, trackBoxColor, boxStroke)

	if factor > 0 && frame < len(s.Velocities) {
		at := image.Pt(box.Min.X, box.Min.Y-velocityTextRise)
		drawTagLeft(dst, at, FormatVelocity(s.Velocities[frame]*factor, unit))
	}
}

func scaleImage(src image.Image, w, h int) *image.RGBA {
	dst := image.NewRGBA(image.Rect(0, 0, w, h))
	xdraw.ApproxBiLinear.Scale(dst, dst.Bounds(), src, src.Bounds(), draw.Over, nil)
	return dst
}

func strokePixel(img *image.RGBA, x, y, stroke int, col color.Color) {
	r := stroke / 2
	for dx := -r; dx <= r; dx++ {
		for dy := -r; dy <= r; dy++ {
			px := x + dx
			py := y + dy
			if image.Pt(px, py).In(img.Bounds()) {
				img.Set(px, py, col)
			}
		}
	}
}

func drawSegment(img *image.RGBA, p, q image.Point, col color.Color, stroke int) {
	x0, y0 := p.X, p.Y
	x1, y1 := q.X, q.Y
	dx := abs(x1 - x0)
	dy := abs(y1 - y0)
	sx := -1
	if x0 < x1 {
		sx = 1
	}
	sy := -1
	if y0 < y1 {
		sy = 1
	}
	err := dx - dy
	for {
		strokePixel(img, x0, y0, stroke, col)
		if x0 == x1 && y0 == y1 {
			break
		}
		e2 := 2 * err
		if e2 > -dy {
			err -= dy
			x0 += sx
		}
		if e2 < dx {
			err += dx
			y0 += sy
		}
	}
}

func drawBox(img *image.RGBA, r image.Rectangle, col color.Color, stroke int) {
	drawSegment(img, image.Pt(r.Min.X, r.Min.Y), image.Pt(r.Max.X-1, r.Min.Y), col, stroke)
	drawSegment(img, image.Pt(r.Max.X-1, r.Min.Y), image.Pt(r.Max.X-1, r.Max.Y-1), col, stroke)
	drawSegment(img, image.Pt(r.Max.X-1, r.Max.Y-1), image.Pt(r.Min.X, r.Max.Y-1), col, stroke)
	drawSegment(img, image.Pt(r.Min.X, r.Max.Y-1), image.Pt(r.Min.X, r.Min.Y), col, stroke)
}

func drawDot(img *image.RGBA, c image.Point, r int, col color.Color) {
	for dy := -r; dy <= r; dy++ {
		for dx := -r; dx <= r; dx++ {
			if dx*dx+dy*dy <= r*r {
				px := c.X + dx
				py := c.Y + dy
				if image.Pt(px, py).In(img.Bounds()) {
					img.Set(px, py, col)
				}
			}
		}
	}
}

func drawRing(img *image.RGBA, c image.Point, r int, col color.Color) {
	x := r
	y := 0
	err := 1 - r
	for x >= y {
		pts := [][2]int{{x, y}, {y, x}, {-y, x}, {-x, y}, {-x, -y}, {-y, -x}, {y, -x}, {x, -y}}
		for _, p := range pts {
			px := c.X + p[0]
			py := c.Y + p[1]
			if image.Pt(px, py).In(img.Bounds()) {
				img.Set(px, py, col)
			}
		}
		y++
		if err < 0 {
			err += 2*y + 1
		} else {
			x--
			err += 2 * (y - x + 1)
		}
	}
}

// drawTag centers text on a point over a black backing so it stays readable
// on any footage.
func drawTag(img *image.RGBA, center image.Point, text string) {
	w := (&font.Drawer{Face: basicfont.Face7x13}).MeasureString(text).Ceil()
	tagAt(img, center.X-w/2, textBaseline(center.Y), w, text)
}

// drawTagLeft is drawTag anchored at its left edge instead of its center.
func drawTagLeft(img *image.RGBA, left image.Point, text string) {
	w := (&font.Drawer{Face: basicfont.Face7x13}).MeasureString(text).Ceil()
	tagAt(img, left.X, textBaseline(left.Y), w, text)
}

func tagAt(img *image.RGBA, x, y, w int, text string) {
	bg := image.Rect(x-2, y-basicfont.Face7x13.Ascent-2, x+w+2, y+basicfont.Face7x13.Descent+2)
	draw.Draw(img, bg, image.Black, image.Point{}, draw.Src)
	d := &font.Drawer{Dst: img, Src: image.White, Face: basicfont.Face7x13}
	d.Dot = fixed.P(x, y)
	d.DrawString(text)
}

func textBaseline(centerY int) int {
	return centerY + (basicfont.Face7x13.Ascent-basicfont.Face7x13.Descent)/2
}

func abs(v int) int {
	if v < 0 {
		return -v
	}
	return v
}
