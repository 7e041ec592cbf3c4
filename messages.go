package pvmat

import (
	"image"
	"image/color"

	"github.com/google/uuid"
)

// Messages the embedding UI layer sends into the program. Every one of them
// is consumed by the single update loop in arrival order; background
// producers post their own unexported messages through the same queue, so no
// two contexts ever touch the annotation state at once.

// PointerDownMsg presses the pointer at a display-space position.
type PointerDownMsg struct{ Pos image.Point }

// PointerMoveMsg moves the pointer to a display-space position.
type PointerMoveMsg struct{ Pos image.Point }

// PointerUpMsg releases the pointer at a display-space position.
type PointerUpMsg struct{ Pos image.Point }

// SelectToolMsg switches the active tool.
type SelectToolMsg struct{ Tool ToolMode }

// SetCalibrationDistanceMsg answers a pending calibration prompt. Raw is
// parsed under the unit system's grammar; malformed text re-prompts, a
// non-positive value cancels the calibration.
type SetCalibrationDistanceMsg struct {
	Raw   string
	Units UnitSystem
}

// SwitchUnitsMsg changes the measurement unit system.
type SwitchUnitsMsg struct{ Units UnitSystem }

// SetVelocityUnitsMsg picks the unit for the velocity readout.
type SetVelocityUnitsMsg struct{ Unit VelocityUnit }

// SetLineColorMsg recolors lines drawn from now on. Existing lines keep the
// color they were drawn with.
type SetLineColorMsg struct{ Color color.RGBA }

// SetPathColorMsg recolors the whole tracked path.
type SetPathColorMsg struct{ Color color.RGBA }

// ToggleDistancesMsg flips the distance labels on or off globally.
type ToggleDistancesMsg struct{}

// SetMagnifierSizeMsg resizes the loupe's sampled square.
type SetMagnifierSizeMsg struct{ Size int }

// TogglePlaybackMsg starts or pauses playback.
type TogglePlaybackMsg struct{}

// SeekFrameMsg jumps straight to a frame.
type SeekFrameMsg struct{ Frame int }

// ExportFrameMsg writes the current annotated display frame as PNG. Export
// runs on the update loop, so the frame matches the state every earlier
// message produced.
type ExportFrameMsg struct{ Path string }

// StartTrackingMsg begins a tracking run anchored on the current frame over
// a display-space box. A run already in flight is torn down first.
type StartTrackingMsg struct{ Box image.Rectangle }

// CancelTrackingMsg raises the in-flight run's cooperative cancel flag. The
// run notices at its next frame and discards its partial results.
type CancelTrackingMsg struct{}

// frameTickMsg advances playback by one frame. Posted by the clock.
type frameTickMsg struct{}

// magnifierRefreshMsg re-renders the loupe at the last cursor position.
// Posted by the clock directly behind each tick.
type magnifierRefreshMsg struct{}

// trackProgressMsg reports one processed frame. Posted by the worker.
type trackProgressMsg struct {
	id    uuid.UUID
	frame int
	total int
}

// trackDoneMsg delivers a completed session. Posted by the worker.
type trackDoneMsg struct{ session *Session }

// trackCancelledMsg reports a run that quit early after its cancel flag was
// raised; the partial session never leaves the worker.
type trackCancelledMsg struct{ id uuid.UUID }
