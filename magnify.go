package pvmat

import (
	"image"
	"image/color"
	"image/draw"

	xdraw "golang.org/x/image/draw"
)

// Magnifier geometry. The view is fixed; the sampled square is the
// adjustable part, so a smaller sample means a stronger zoom.
const (
	MagnifierView        = 200
	MagnifierSizeMin     = 10
	MagnifierSizeMax     = 100
	MagnifierSizeStep    = 10
	MagnifierSizeDefault = 40
)

const (
	crossHalfWidth  = 1
	crossHalfHeight = 10 + crossHalfWidth
)

var crossColor = color.RGBA{R: 0xff, G: 0xff, A: 0xff}

// ClampMagnifierSize pins a requested sample size into the supported range.
func ClampMagnifierSize(size int) int {
	if size < MagnifierSizeMin {
		return MagnifierSizeMin
	}
	if size > MagnifierSizeMax {
		return MagnifierSizeMax
	}
	return size
}

// Magnify renders the loupe for a cursor position: the current composite
// with the measurement layer drawn thin, cropped to a size by size square
// around the cursor, blown up to the view with nearest-neighbor so source
// pixels stay crisp, and a yellow cross marking the center.
//
// Lines are stroked at width 1 and handles shrunk to a couple of pixels
// before the blow-up; at full width they would swamp the zoomed view.
func (r *Renderer) Magnify(st DrawState, cursor image.Point, size int) *image.RGBA {
	size = ClampMagnifierSize(size)
	b := r.Composite(st.Frame)

	if st.Scene != nil {
		st.Scene.Each(func(id LineID, ln *Line) {
			drawSegment(b, ln.A, ln.B, ln.Color, 1)
		})
		for _, h := range st.Scene.handles {
			drawDot(b, h.Pos, 1, handleFillColor)
			drawRing(b, h.Pos, 1, color.White)
		}
	}

	half := size / 2
	crop := image.Rect(cursor.X-half, cursor.Y-half, cursor.X-half+size, cursor.Y-half+size)

	sample := image.NewRGBA(image.Rect(0, 0, size, size))
	draw.Draw(sample, sample.Bounds(), image.Black, image.Point{}, draw.Src)
	draw.Draw(sample, sample.Bounds(), b, crop.Min, draw.Over)

	out := image.NewRGBA(image.Rect(0, 0, MagnifierView, MagnifierView))
	xdraw.NearestNeighbor.Scale(out, out.Bounds(), sample, sample.Bounds(), draw.Src, nil)
	drawCross(out)
	return out
}

// drawCross fills the centered plus shape, arms reaching crossHalfHeight
// from the middle at crossHalfWidth thickness.
func drawCross(img *image.RGBA) {
	mx := MagnifierView / 2
	my := MagnifierView / 2
	src := &image.Uniform{C: crossColor}

	vert := image.Rect(mx-crossHalfWidth, my-crossHalfHeight, mx+crossHalfWidth+1, my+crossHalfHeight+1)
	horiz := image.Rect(mx-crossHalfHeight, my-crossHalfWidth, mx+crossHalfHeight+1, my+crossHalfWidth+1)
	draw.Draw(img, vert, src, image.Point{}, draw.Src)
	draw.Draw(img, horiz, src, image.Point{}, draw.Src)
}
