package pvmat

import "github.com/pvmat/pvmat/fault"

// uncalibrated is the ratio sentinel before any calibration completes.
const uncalibrated = -1

// Calibration is the single real-world-units-per-pixel ratio, set once per
// calibration session from a known distance over a drawn line's pixel
// length.
//
// The ratio is expressed in the basis unit chosen at calibration time
// (meters per pixel or inches per pixel). Switching the unit system rescales
// the ratio through the inch definition without requiring recalibration:
//
//	c := NewCalibration()
//	c.Set(100, 5, Metric)      // 0.05 m/px
//	c.SwitchUnits(Imperial)    // ~1.9685 in/px
//	c.SwitchUnits(Metric)      // 0.05 m/px again
type Calibration struct {
	ratio float64
	units UnitSystem
}

// NewCalibration returns the uncalibrated state.
func NewCalibration() Calibration {
	return Calibration{ratio: uncalibrated, units: Metric}
}

// Calibrated reports whether a ratio has ever been established.
func (c *Calibration) Calibrated() bool {
	return c.ratio > 0
}

// Ratio returns the current ratio in the current basis unit per pixel, or
// the uncalibrated sentinel.
func (c *Calibration) Ratio() float64 {
	return c.ratio
}

// Units returns the basis unit system of the ratio.
func (c *Calibration) Units() UnitSystem {
	return c.units
}

// Set establishes the ratio from a reference line's pixel length and its
// known real distance. A non-positive realDist means the user cancelled:
// nothing changes and Set reports false, leaving the state unset if it was
// never set or at its previous value otherwise. The units must be Metric or
// Imperial: realDist arrives in meters or inches accordingly.
func (c *Calibration) Set(pixelLen, realDist float64, units UnitSystem) bool {
	fault.Assertf(pixelLen > 0, "calibration against pixel length %v", pixelLen)
	fault.Assertf(units == Metric || units == Imperial, "calibration basis %v", units)

	if realDist <= 0 {
		return false
	}

	c.ratio = realDist / pixelLen
	c.units = units
	return true
}

// SwitchUnits converts the ratio between the metric and imperial bases
// through the inch definition. Switching to the current basis is a no-op,
// and an uncalibrated ratio only records the preference.
func (c *Calibration) SwitchUnits(to UnitSystem) {
	fault.Assertf(to == Metric || to == Imperial, "calibration basis %v", to)

	if to == c.units {
		return
	}
	if c.Calibrated() {
		if to == Imperial {
			c.ratio /= metersPerInch
		} else {
			c.ratio *= metersPerInch
		}
	}
	c.units = to
}

// Distance converts a pixel length to the current basis unit.
func (c *Calibration) Distance(pixelLen float64) float64 {
	return pixelLen * c.ratio
}

// DistanceText formats a pixel length for a line's label. While calibrating,
// and before any calibration exists, the readout stays in raw pixels.
func (c *Calibration) DistanceText(pixelLen float64, calibrating bool) string {
	if calibrating || !c.Calibrated() {
		return FormatDistance(pixelLen, Pixels)
	}
	return FormatDistance(c.Distance(pixelLen), c.units)
}

// VelocityDisplayFactor converts a pixels/second velocity into the given
// display unit through the calibration ratio. Zero when uncalibrated, so an
// uncalibrated readout cannot leak a bogus number.
func (c *Calibration) VelocityDisplayFactor(unit VelocityUnit) float64 {
	if !c.Calibrated() {
		return 0
	}
	return c.ratio * VelocityFactor(c.units, unit)
}
