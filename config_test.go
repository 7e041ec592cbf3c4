package pvmat

import (
	"image/color"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	assert.Equal(t, 1280, cfg.ViewWidth)
	assert.Equal(t, 800, cfg.ViewHeight)
	assert.Equal(t, color.RGBA{0xff, 0xff, 0xff, 0xff}, cfg.LineColor)
	assert.Equal(t, color.RGBA{0xff, 0xff, 0xff, 0xff}, cfg.PathColor)
	assert.Equal(t, MagnifierSizeDefault, cfg.MagnifierSize)
	assert.Equal(t, Metric, cfg.Units)
	assert.Equal(t, KilometersPerHour, cfg.VelocityUnit)
}

func TestConfig_LoadEnv(t *testing.T) {
	t.Run("Overrides take effect", func(t *testing.T) {
		t.Setenv("PVMAT_VIEW_WIDTH", "1920")
		t.Setenv("PVMAT_VIEW_HEIGHT", "1080")
		t.Setenv("PVMAT_LINE_COLOR", "#ff8800")
		t.Setenv("PVMAT_PATH_COLOR", "00ff00")
		t.Setenv("PVMAT_UNITS", "imperial")
		t.Setenv("PVMAT_VELOCITY_UNITS", "mph")
		t.Setenv("PVMAT_MAGNIFIER_SIZE", "60")

		cfg := DefaultConfig().LoadEnv()

		assert.Equal(t, 1920, cfg.ViewWidth)
		assert.Equal(t, 1080, cfg.ViewHeight)
		assert.Equal(t, color.RGBA{0xff, 0x88, 0x00, 0xff}, cfg.LineColor)
		assert.Equal(t, color.RGBA{0x00, 0xff, 0x00, 0xff}, cfg.PathColor)
		assert.Equal(t, Imperial, cfg.Units)
		assert.Equal(t, MilesPerHour, cfg.VelocityUnit)
		assert.Equal(t, 60, cfg.MagnifierSize)
	})

	t.Run("Malformed values leave the defaults alone", func(t *testing.T) {
		t.Setenv("PVMAT_VIEW_WIDTH", "wide")
		t.Setenv("PVMAT_LINE_COLOR", "reddish")
		t.Setenv("PVMAT_UNITS", "furlongs")

		cfg := DefaultConfig().LoadEnv()

		assert.Equal(t, 1280, cfg.ViewWidth)
		assert.Equal(t, color.RGBA{0xff, 0xff, 0xff, 0xff}, cfg.LineColor)
		assert.Equal(t, Metric, cfg.Units)
	})

	t.Run("Non-positive dimensions are refused", func(t *testing.T) {
		t.Setenv("PVMAT_VIEW_WIDTH", "0")
		t.Setenv("PVMAT_VIEW_HEIGHT", "-50")

		cfg := DefaultConfig().LoadEnv()
		assert.Equal(t, 1280, cfg.ViewWidth)
		assert.Equal(t, 800, cfg.ViewHeight)
	})

	t.Run("Magnifier size is clamped into range", func(t *testing.T) {
		t.Setenv("PVMAT_MAGNIFIER_SIZE", "500")
		cfg := DefaultConfig().LoadEnv()
		assert.Equal(t, MagnifierSizeMax, cfg.MagnifierSize)
	})
}

func TestParseHexColor(t *testing.T) {
	t.Run("Accepts rrggbb with or without the hash", func(t *testing.T) {
		c, ok := parseHexColor("#2d65a4")
		assert.True(t, ok)
		assert.Equal(t, color.RGBA{0x2d, 0x65, 0xa4, 0xff}, c)

		c, ok = parseHexColor("2d65a4")
		assert.True(t, ok)
		assert.Equal(t, color.RGBA{0x2d, 0x65, 0xa4, 0xff}, c)
	})

	t.Run("Rejects everything else", func(t *testing.T) {
		for _, s := range []string{"", "#fff", "red", "#12345", "1234567", "zzzzzz"} {
			_, ok := parseHexColor(s)
			assert.False(t, ok, s)
		}
	})
}
