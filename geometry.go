package pvmat

import (
	"image"
	"math"

	"github.com/go-gl/mathgl/mgl64"
)

// vec converts a display-space point to a float vector for derived math.
func vec(p image.Point) mgl64.Vec2 {
	return mgl64.Vec2{float64(p.X), float64(p.Y)}
}

// Dist returns the Euclidean distance between two display-space points.
func Dist(a, b image.Point) float64 {
	return vec(b).Sub(vec(a)).Len()
}

// segmentDist returns the distance from p to the closed segment [a, b].
func segmentDist(p, a, b image.Point) float64 {
	ab := vec(b).Sub(vec(a))
	ap := vec(p).Sub(vec(a))

	denom := ab.Dot(ab)
	if denom == 0 {
		// Degenerate segment, both endpoints coincide
		return ap.Len()
	}

	t := ap.Dot(ab) / denom
	if t < 0 {
		t = 0
	} else if t > 1 {
		t = 1
	}

	closest := vec(a).Add(ab.Mul(t))
	return vec(p).Sub(closest).Len()
}

// inBox reports whether p lies strictly inside the axis-aligned box of
// half-size r centered at c. Handle hit-testing uses the bounding box of the
// drawn circle rather than its disc.
func inBox(p, c image.Point, r int) bool {
	return c.X-r < p.X && p.X < c.X+r && c.Y-r < p.Y && p.Y < c.Y+r
}

// LabelAnchor computes where a line's distance label sits: 15 px out along
// the perpendicular bisector, on the side whose vertical component is
// non-negative. A horizontal line has no defined perpendicular slope, so the
// slope falls back to 1; the fallback is an arbitrary tie-break kept for
// continuity with prior annotations.
func LabelAnchor(a, b image.Point) image.Point {
	const offset = 15

	av, bv := vec(a), vec(b)
	ab := bv.Sub(av)
	mid := av.Add(bv).Mul(0.5)

	slope := 1.0
	if ab.Y() != 0 {
		slope = -ab.X() / ab.Y()
	}

	perp := mgl64.Vec2{1, slope}.Normalize()
	if perp.Y() < 0 {
		perp = perp.Mul(-1)
	}

	anchor := mid.Sub(perp.Mul(offset))
	return image.Pt(int(math.Round(anchor.X())), int(math.Round(anchor.Y())))
}

// boxCenter returns the integer center of a bounding box, the COM point used
// throughout the tracking pipeline.
func boxCenter(r image.Rectangle) image.Point {
	return image.Pt((r.Min.X+r.Max.X)/2, (r.Min.Y+r.Max.Y)/2)
}

// scaleRect maps a rectangle between frame-space and display-space by a
// uniform factor, truncating like the canvas coordinates it feeds.
func scaleRect(r image.Rectangle, factor float64) image.Rectangle {
	return image.Rect(
		int(float64(r.Min.X)*factor),
		int(float64(r.Min.Y)*factor),
		int(float64(r.Max.X)*factor),
		int(float64(r.Max.Y)*factor),
	)
}

// scalePoint maps a point by a uniform factor, truncating.
func scalePoint(p image.Point, factor float64) image.Point {
	return image.Pt(int(float64(p.X)*factor), int(float64(p.Y)*factor))
}
