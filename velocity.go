package pvmat

import (
	"image"

	"github.com/pvmat/pvmat/fault"
)

// Velocities derives one speed per frame, in pixels per second, from a
// tracking run's centers of mass. The first and last frames are pinned to
// zero. Every interior frame scans outward for the nearest successful
// neighbor on each side and divides traveled distance by bridged time:
//
//	successful frame: (|before,cur| + |cur,after|) / ((bSteps+aSteps)/fps)
//	failed frame:     |before,after| / ((bSteps+aSteps)/fps)
//
// A scan that runs off either end clamps to the current frame and keeps the
// walked step count, so a successful frame bordered only by failures still
// resolves. A failed frame without a successful neighbor on some side stays
// at zero.
func Velocities(coms []image.Point, failed []bool, fps float64) []float64 {
	fault.Assertf(fps > 0, "velocity derivation needs a positive frame rate, got %v", fps)
	fault.Assertf(len(coms) == len(failed), "centers and failure flags diverge: %d vs %d", len(coms), len(failed))

	n := len(coms)
	vels := make([]float64, n)
	if n < 3 {
		return vels
	}

	for i := 1; i < n-1; i++ {
		before, bSteps, bOK := scanBack(coms, failed, i)
		after, aSteps, aOK := scanForward(coms, failed, i)
		dt := float64(bSteps+aSteps) / fps

		if failed[i] {
			if !bOK || !aOK {
				continue
			}
			vels[i] = Dist(before, after) / dt
			continue
		}
		vels[i] = (Dist(before, coms[i]) + Dist(coms[i], after)) / dt
	}

	return vels
}

// scanBack walks toward the first frame looking for a successful neighbor.
// Hitting the start without one clamps to the current point with the walk
// length.
func scanBack(coms []image.Point, failed []bool, i int) (image.Point, int, bool) {
	for j := i - 1; j >= 0; j-- {
		if !failed[j] {
			return coms[j], i - j, true
		}
	}
	return coms[i], i, false
}

// scanForward is scanBack toward the last frame.
func scanForward(coms []image.Point, failed []bool, i int) (image.Point, int, bool) {
	n := len(coms)
	for j := i + 1; j < n; j++ {
		if !failed[j] {
			return coms[j], j - i, true
		}
	}
	return coms[i], n - 1 - i, false
}
