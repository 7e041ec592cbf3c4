// Package fault carries the error taxonomy for annotation sessions.
//
// Faults classify what went wrong (a collaborator artifact, a tracked frame,
// user input, or an internal invariant) and how bad it is. Per-frame tracking
// failures are data, not errors, so they surface here only as notes; invariant
// breaches are programming errors and fail loudly. Nothing in this package
// retries anything: the only resilience in the system is the tracking
// pipeline's gap interpolation, which is a design feature upstream of here.
package fault

import (
	"fmt"
	"strings"
	"time"
)

// Class identifies the origin of a fault.
type Class int

const (
	// Collaborator covers stitcher artifacts and frame-location data: a
	// failure here is fatal to the session and no partial state is kept.
	Collaborator Class = iota

	// Tracking covers per-frame tracking failures, surfaced once as an
	// informational note after the session completes.
	Tracking

	// Input covers malformed user input, recoverable locally by
	// re-prompting and never propagated further.
	Input

	// Invariant covers internal consistency breaches, which are
	// programming errors rather than runtime conditions.
	Invariant
)

func (c Class) String() string {
	switch c {
	case Collaborator:
		return "collaborator"
	case Tracking:
		return "tracking"
	case Input:
		return "input"
	case Invariant:
		return "invariant"
	default:
		return "unknown"
	}
}

// Severity grades how a fault should be handled.
type Severity int

const (
	// NoteSeverity marks informational faults that never interrupt a
	// session, such as the first-failing-frame report after tracking.
	NoteSeverity Severity = iota

	// RecoverableSeverity marks faults the current operation absorbs
	// locally, such as a calibration distance that fails to parse.
	RecoverableSeverity

	// FatalSeverity marks faults that end the session.
	FatalSeverity
)

func (s Severity) String() string {
	switch s {
	case NoteSeverity:
		return "note"
	case RecoverableSeverity:
		return "recoverable"
	case FatalSeverity:
		return "fatal"
	default:
		return "unknown"
	}
}

// Context carries structured debugging detail alongside a fault.
type Context map[string]interface{}

// Fault is a classified error with context.
//
// Example usage:
//
//	f := fault.New(fault.Input, "cannot parse distance", fault.Context{"text": raw})
//	if f.CanRecover() {
//	    // re-prompt
//	}
type Fault struct {
	Class    Class
	Severity Severity
	Message  string
	Context  Context
	Time     time.Time
}

// New creates a recoverable fault of the given class.
func New(class Class, message string, ctx Context) *Fault {
	return &Fault{
		Class:    class,
		Severity: RecoverableSeverity,
		Message:  message,
		Context:  ctx,
		Time:     time.Now(),
	}
}

// Note creates an informational fault.
func Note(class Class, message string, ctx Context) *Fault {
	f := New(class, message, ctx)
	f.Severity = NoteSeverity
	return f
}

// Fatal creates a session-ending fault.
func Fatal(class Class, message string, ctx Context) *Fault {
	f := New(class, message, ctx)
	f.Severity = FatalSeverity
	return f
}

// Error implements the error interface.
func (f *Fault) Error() string {
	return fmt.Sprintf("[%s:%s] %s", f.Class, f.Severity, f.Message)
}

// CanRecover reports whether the session may continue past this fault.
func (f *Fault) CanRecover() bool {
	return f.Severity != FatalSeverity
}

// IsFatal reports whether this fault ends the session.
func (f *Fault) IsFatal() bool {
	return f.Severity == FatalSeverity
}

// Get returns a context value if present.
func (f *Fault) Get(key string) (interface{}, bool) {
	if f.Context == nil {
		return nil, false
	}
	v, ok := f.Context[key]
	return v, ok
}

// Detailed returns the fault with its timestamp and context expanded.
func (f *Fault) Detailed() string {
	var b strings.Builder

	b.WriteString(f.Error())
	fmt.Fprintf(&b, "\n  Time: %s", f.Time.Format("15:04:05.000"))

	if len(f.Context) > 0 {
		b.WriteString("\n  Context:")
		for k, v := range f.Context {
			fmt.Fprintf(&b, "\n    %s: %v", k, v)
		}
	}

	return b.String()
}

// Assertf panics with an Invariant fault unless cond holds. Invariant
// breaches are not conditions to handle; they are bugs to fix.
func Assertf(cond bool, format string, args ...interface{}) {
	if !cond {
		panic(Fatal(Invariant, fmt.Sprintf(format, args...), nil))
	}
}

// Policy defines how a Collector reacts to what it records. There is
// deliberately no retry configuration.
type Policy struct {
	// StopOnFatal halts the session on the first fatal fault.
	StopOnFatal bool

	// MaxNotes bounds accumulated notes before the collector reports the
	// session unhealthy.
	MaxNotes int
}

// DefaultPolicy stops on fatal faults and tolerates up to 20 notes.
func DefaultPolicy() *Policy {
	return &Policy{
		StopOnFatal: true,
		MaxNotes:    20,
	}
}

// Collector accumulates faults for one component of a session.
type Collector struct {
	component string
	faults    []*Fault
	notes     []*Fault
	policy    *Policy
}

// NewCollector creates a collector for a named component.
func NewCollector(component string, policy *Policy) *Collector {
	if policy == nil {
		policy = DefaultPolicy()
	}
	return &Collector{component: component, policy: policy}
}

// Record adds a fault to the collection.
func (c *Collector) Record(f *Fault) {
	if f.Severity == NoteSeverity {
		c.notes = append(c.notes, f)
		return
	}
	c.faults = append(c.faults, f)
}

// ShouldContinue reports whether the session may proceed under the policy.
func (c *Collector) ShouldContinue() bool {
	if c.policy.StopOnFatal {
		for _, f := range c.faults {
			if f.IsFatal() {
				return false
			}
		}
	}
	if c.policy.MaxNotes > 0 && len(c.notes) > c.policy.MaxNotes {
		return false
	}
	return true
}

// HasFaults reports whether any non-note faults were recorded.
func (c *Collector) HasFaults() bool {
	return len(c.faults) > 0
}

// Faults returns all recorded non-note faults in order.
func (c *Collector) Faults() []*Fault {
	return c.faults
}

// Notes returns all recorded notes in order.
func (c *Collector) Notes() []*Fault {
	return c.notes
}

// Summary is a one-line health line for the component.
func (c *Collector) Summary() string {
	if len(c.faults) == 0 && len(c.notes) == 0 {
		return fmt.Sprintf("[%s] no faults", c.component)
	}
	return fmt.Sprintf("[%s] %d faults, %d notes", c.component, len(c.faults), len(c.notes))
}

// Report expands every fault and note for debugging.
func (c *Collector) Report() string {
	var b strings.Builder

	fmt.Fprintf(&b, "=== %s ===\n", c.component)
	b.WriteString(c.Summary() + "\n")

	if len(c.faults) > 0 {
		b.WriteString("\nFaults:\n")
		for i, f := range c.faults {
			fmt.Fprintf(&b, "%d. %s\n", i+1, f.Detailed())
		}
	}
	if len(c.notes) > 0 {
		b.WriteString("\nNotes:\n")
		for i, f := range c.notes {
			fmt.Fprintf(&b, "%d. %s\n", i+1, f.Detailed())
		}
	}

	return b.String()
}
