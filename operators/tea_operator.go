// Package operators combines teatest's headless program driving with the
// annotation core's rendering, for integration tests that want real terminal
// output semantics plus PNG captures of the annotated display.
package operators

import (
	"bytes"
	"fmt"
	"image"
	"os"
	"path/filepath"
	"testing"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/x/exp/teatest"

	"github.com/pvmat/pvmat"
)

// Action records one step the operator performed.
type Action struct {
	Type    string
	At      time.Time
	Details interface{}
}

// Result summarizes a finished operator run.
type Result struct {
	Success  bool
	Duration time.Duration
	Actions  []Action
	Captures []string
}

// TeaOperator drives an annotation model under teatest while exporting
// annotated display frames as a PNG film of the session.
type TeaOperator struct {
	t        *testing.T
	app      *pvmat.App
	tm       *teatest.TestModel
	filmDir  string
	timeout  time.Duration
	frame    int
	actions  []Action
	captures []string
	started  time.Time
}

// NewTeaOperator creates an operator writing its captures under filmDir.
func NewTeaOperator(t *testing.T, app *pvmat.App, filmDir string) *TeaOperator {
	return &TeaOperator{
		t:       t,
		app:     app,
		filmDir: filmDir,
		timeout: 10 * time.Second,
	}
}

// WithTimeout configures the wait deadline for every blocking step.
func (op *TeaOperator) WithTimeout(timeout time.Duration) *TeaOperator {
	op.timeout = timeout
	return op
}

// Start runs the model under teatest and attaches the background producers.
func (op *TeaOperator) Start() *TeaOperator {
	op.started = time.Now()
	op.tm = teatest.NewTestModel(op.t, op.app, teatest.WithInitialTermSize(100, 30))
	op.app.Start(op.tm.Send)

	op.record("start", "operator ready")
	return op
}

// Send posts any message into the program.
func (op *TeaOperator) Send(msg tea.Msg) *TeaOperator {
	op.tm.Send(msg)
	op.record("send", fmt.Sprintf("%T", msg))
	return op
}

// ChooseTool switches the active tool.
func (op *TeaOperator) ChooseTool(tool pvmat.ToolMode) *TeaOperator {
	op.tm.Send(pvmat.SelectToolMsg{Tool: tool})
	op.record("tool", tool.String())
	return op
}

// Drag presses at from, moves to to, and releases there.
func (op *TeaOperator) Drag(from, to image.Point) *TeaOperator {
	op.tm.Send(pvmat.PointerDownMsg{Pos: from})
	op.tm.Send(pvmat.PointerMoveMsg{Pos: to})
	op.tm.Send(pvmat.PointerUpMsg{Pos: to})
	op.record("drag", fmt.Sprintf("%v->%v", from, to))
	return op
}

// EnterDistance answers the calibration distance prompt.
func (op *TeaOperator) EnterDistance(raw string, units pvmat.UnitSystem) *TeaOperator {
	op.tm.Send(pvmat.SetCalibrationDistanceMsg{Raw: raw, Units: units})
	op.record("distance", raw)
	return op
}

// WaitForText blocks until the program's terminal output contains text.
func (op *TeaOperator) WaitForText(text string) *TeaOperator {
	teatest.WaitFor(op.t, op.tm.Output(), func(bts []byte) bool {
		return bytes.Contains(bts, []byte(text))
	}, teatest.WithDuration(op.timeout))
	op.record("wait_for_text", text)
	return op
}

// CaptureTrackingShot exports the current annotated frame as PNG. The export
// runs on the update loop, so it reflects every message sent before it.
func (op *TeaOperator) CaptureTrackingShot(label string) *TeaOperator {
	path := filepath.Join(op.filmDir, fmt.Sprintf("frame_%03d_%s.png", op.frame, label))
	op.frame++

	op.tm.Send(pvmat.ExportFrameMsg{Path: path})
	op.waitForFile(path)

	op.captures = append(op.captures, path)
	op.record("tracking_shot", label)
	return op
}

// DragWithTrackingShot drags and captures the resulting frame.
func (op *TeaOperator) DragWithTrackingShot(from, to image.Point, label string) *TeaOperator {
	op.Drag(from, to)
	op.CaptureTrackingShot(label)
	return op
}

// Stop quits the program and reports what the operator did.
func (op *TeaOperator) Stop() *Result {
	op.tm.Send(tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune{'q'}})
	op.tm.WaitFinished(op.t, teatest.WithFinalTimeout(op.timeout))
	op.record("stop", "operator finished")

	return &Result{
		Success:  !op.t.Failed(),
		Duration: time.Since(op.started),
		Actions:  op.actions,
		Captures: op.captures,
	}
}

func (op *TeaOperator) waitForFile(path string) {
	deadline := time.Now().Add(op.timeout)
	for time.Now().Before(deadline) {
		if _, err := os.Stat(path); err == nil {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	op.t.Errorf("capture %s never appeared", path)
}

func (op *TeaOperator) record(actionType string, details interface{}) {
	op.actions = append(op.actions, Action{Type: actionType, At: time.Now(), Details: details})
}
