package pvmat

import (
	"image/color"
	"os"
	"strconv"

	"github.com/joho/godotenv"
)

// Config defines the measurement program's startup parameters.
type Config struct {
	ViewWidth     int          // Display envelope width in pixels
	ViewHeight    int          // Display envelope height in pixels
	LineColor     color.RGBA   // Color for newly drawn lines
	PathColor     color.RGBA   // Color for the tracked path
	MagnifierSize int          // Loupe sample square side in display pixels
	Units         UnitSystem   // Measurement system for calibration
	VelocityUnit  VelocityUnit // Readout unit for tracked speed
}

// DefaultConfig returns a Config with sensible defaults: a desktop-sized
// view, white annotations, and metric measurements read out in km/h.
func DefaultConfig() Config {
	white := color.RGBA{R: 0xff, G: 0xff, B: 0xff, A: 0xff}
	return Config{
		ViewWidth:     1280,
		ViewHeight:    800,
		LineColor:     white,
		PathColor:     white,
		MagnifierSize: MagnifierSizeDefault,
		Units:         Metric,
		VelocityUnit:  KilometersPerHour,
	}
}

// LoadEnv layers environment overrides onto the config, reading a .env file
// first when one exists. Unset or malformed variables leave the field alone.
func (c Config) LoadEnv() Config {
	godotenv.Load()

	if n, ok := envInt("PVMAT_VIEW_WIDTH"); ok && n > 0 {
		c.ViewWidth = n
	}
	if n, ok := envInt("PVMAT_VIEW_HEIGHT"); ok && n > 0 {
		c.ViewHeight = n
	}
	if n, ok := envInt("PVMAT_MAGNIFIER_SIZE"); ok {
		c.MagnifierSize = ClampMagnifierSize(n)
	}
	if col, ok := parseHexColor(os.Getenv("PVMAT_LINE_COLOR")); ok {
		c.LineColor = col
	}
	if col, ok := parseHexColor(os.Getenv("PVMAT_PATH_COLOR")); ok {
		c.PathColor = col
	}
	if u, ok := ParseUnitSystem(os.Getenv("PVMAT_UNITS")); ok {
		c.Units = u
	}
	if u, ok := ParseVelocityUnit(os.Getenv("PVMAT_VELOCITY_UNITS")); ok {
		c.VelocityUnit = u
	}
	return c
}

func envInt(key string) (int, bool) {
	v := os.Getenv(key)
	if v == "" {
		return 0, false
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, false
	}
	return n, true
}

// parseHexColor reads an rrggbb color, with or without the leading hash.
func parseHexColor(s string) (color.RGBA, bool) {
	if len(s) > 0 && s[0] == '#' {
		s = s[1:]
	}
	if len(s) != 6 {
		return color.RGBA{}, false
	}
	v, err := strconv.ParseUint(s, 16, 32)
	if err != nil {
		return color.RGBA{}, false
	}
	return color.RGBA{R: uint8(v >> 16), G: uint8(v >> 8), B: uint8(v), A: 0xff}, true
}
