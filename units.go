package pvmat

import (
	"fmt"
	"regexp"
	"strconv"

	"github.com/pvmat/pvmat/fault"
)

// UnitSystem selects how distances display and how the calibration ratio is
// interpreted.
type UnitSystem int

const (
	// Pixels displays raw pixel lengths; the readout during calibration.
	Pixels UnitSystem = iota
	// Metric displays meters with two decimals.
	Metric
	// Imperial displays feet, inches, and eighths of an inch.
	Imperial
)

func (u UnitSystem) String() string {
	switch u {
	case Pixels:
		return "px"
	case Metric:
		return "m"
	case Imperial:
		return "ft-in"
	default:
		return "unknown"
	}
}

// metersPerInch is the exact definition of the international inch.
const metersPerInch = 0.0254

// Imperial distance grammar: feet'[inches[ num/den]]". Every component is
// optional. The reference grammar rejects zero numerators and denominators
// with lookaheads; RE2 has none, so those are checked numerically below.
var imperialRe = regexp.MustCompile(`^(?:(\d+)')?(?: *(\d+)?(?: +(\d+)/(\d+))?")?$`)

// ParseImperial parses a feet-and-inches distance string into total inches.
//
// Accepted forms include 5'6", 5' 6", 6", 5', and 5'6 1/2". Malformed input
// returns a recoverable input fault so the caller can re-prompt; it never
// silently defaults. The empty string parses to 0, which callers treat as a
// cancelled entry.
func ParseImperial(text string) (float64, error) {
	m := imperialRe.FindStringSubmatch(text)
	if m == nil {
		return 0, fault.New(fault.Input, "cannot parse feet-and-inches distance", fault.Context{"text": text})
	}

	var feet, inches, num, den int
	if m[1] != "" {
		feet, _ = strconv.Atoi(m[1])
	}
	if m[2] != "" {
		inches, _ = strconv.Atoi(m[2])
	}
	if m[3] != "" {
		num, _ = strconv.Atoi(m[3])
		den, _ = strconv.Atoi(m[4])
		if num == 0 || den == 0 {
			return 0, fault.New(fault.Input, "zero numerator or denominator in inch fraction", fault.Context{"text": text})
		}
	}

	total := float64(feet*12 + inches)
	if den != 0 {
		total += float64(num) / float64(den)
	}
	return total, nil
}

// ParseMetric parses a plain decimal meters value.
func ParseMetric(text string) (float64, error) {
	v, err := strconv.ParseFloat(text, 64)
	if err != nil {
		return 0, fault.New(fault.Input, "cannot parse meters distance", fault.Context{"text": text})
	}
	return v, nil
}

// ParseDistance parses a distance string under the given unit system.
// Pixels and Metric both accept plain decimals.
func ParseDistance(text string, units UnitSystem) (float64, error) {
	if units == Imperial {
		return ParseImperial(text)
	}
	return ParseMetric(text)
}

// FormatImperial renders total inches as feet'inches", with the inch
// remainder reduced to eighths and the fraction term omitted when it is
// exactly zero: 66 -> 5'6", 66.5 -> 5'6 1/2".
func FormatImperial(totalInches float64) string {
	feet := int(totalInches / 12)
	rem := totalInches - float64(feet)*12
	inches := int(rem)

	// Truncate to eighths the way the readout always has.
	num := int(8 * (rem - float64(inches)))
	if num == 0 {
		return fmt.Sprintf("%d'%d\"", feet, inches)
	}

	g := gcd(num, 8)
	return fmt.Sprintf("%d'%d %d/%d\"", feet, inches, num/g, 8/g)
}

func gcd(a, b int) int {
	for b != 0 {
		a, b = b, a%b
	}
	return a
}

// FormatDistance renders a measured distance for display under the given
// unit system. The measurement argument is already in the system's native
// unit (pixels, meters, or inches).
func FormatDistance(measurement float64, units UnitSystem) string {
	switch units {
	case Imperial:
		return FormatImperial(measurement)
	case Metric:
		return fmt.Sprintf("%.2f m", measurement)
	default:
		return fmt.Sprintf("%.2f px", measurement)
	}
}

// VelocityUnit selects the unit a velocity readout displays in.
type VelocityUnit int

const (
	MetersPerSecond VelocityUnit = iota
	KilometersPerHour
	FeetPerSecond
	MilesPerHour
)

func (v VelocityUnit) String() string {
	switch v {
	case MetersPerSecond:
		return "m/s"
	case KilometersPerHour:
		return "km/h"
	case FeetPerSecond:
		return "ft/s"
	case MilesPerHour:
		return "mph"
	default:
		return "unknown"
	}
}

// Velocity unit factors, keyed by the calibration's unit system: a metric
// ratio yields meters/second, an imperial ratio yields inches/second, and
// each table converts from there.
var (
	metersPerSecondFactors = map[VelocityUnit]float64{
		MetersPerSecond:   1,
		KilometersPerHour: 3.6,
		FeetPerSecond:     3.281,
		MilesPerHour:      2.237,
	}
	inchesPerSecondFactors = map[VelocityUnit]float64{
		MetersPerSecond:   0.0254,
		KilometersPerHour: 0.09144,
		FeetPerSecond:     0.0833,
		MilesPerHour:      0.05682,
	}
)

// VelocityFactor returns the multiplier turning a calibrated velocity
// (ratio units per second) into the requested display unit. Pixel
// calibration has no physical meaning, so its factor is 1.
func VelocityFactor(calib UnitSystem, unit VelocityUnit) float64 {
	switch calib {
	case Metric:
		return metersPerSecondFactors[unit]
	case Imperial:
		return inchesPerSecondFactors[unit]
	default:
		return 1
	}
}

// FormatVelocity renders the velocity readout drawn above the tracked box.
func FormatVelocity(v float64, unit VelocityUnit) string {
	return fmt.Sprintf("Vel: %.3g %s", v, unit)
}

// ParseUnitSystem reads a unit system name as configs and flags spell it.
func ParseUnitSystem(s string) (UnitSystem, bool) {
	switch s {
	case "px", "pixels":
		return Pixels, true
	case "m", "metric":
		return Metric, true
	case "ft-in", "imperial":
		return Imperial, true
	}
	return Metric, false
}

// ParseVelocityUnit reads a velocity unit name as configs and flags spell it.
func ParseVelocityUnit(s string) (VelocityUnit, bool) {
	switch s {
	case "m/s", "mps":
		return MetersPerSecond, true
	case "km/h", "kmh":
		return KilometersPerHour, true
	case "ft/s", "fps":
		return FeetPerSecond, true
	case "mph":
		return MilesPerHour, true
	}
	return KilometersPerHour, false
}
