// Package bench contains the per-target execution core of the harness: run
// timing, the operation and generator contracts, and the agents that drive
// load according to a load schedule.
package bench

import (
	"fmt"
	"time"
)

// TraceLabel classifies a finished operation by where it falls relative to
// the steady-state window.
type TraceLabel int32

const (
	// TraceLabelNone marks an execution that has not been classified yet.
	TraceLabelNone TraceLabel = iota
	// TraceLabelRampUp marks operations started before steady state.
	TraceLabelRampUp
	// TraceLabelSteadyState marks operations that finished inside steady state.
	TraceLabelSteadyState
	// TraceLabelLate marks operations started inside steady state that finished after it.
	TraceLabelLate
	// TraceLabelRampDown marks operations started after steady state.
	TraceLabelRampDown
)

func (l TraceLabel) String() string {
	switch l {
	case TraceLabelRampUp:
		return "ramp-up"
	case TraceLabelSteadyState:
		return "steady-state"
	case TraceLabelLate:
		return "late"
	case TraceLabelRampDown:
		return "ramp-down"
	default:
		return "none"
	}
}

// Timing holds the phase boundaries of one run.
//
//	Start ── rampUp ──> StartSteadyState ── duration ──> EndSteadyState ── rampDown ──> EndRun
type Timing struct {
	Start            time.Time `json:"start"`
	StartSteadyState time.Time `json:"startSteadyState"`
	EndSteadyState   time.Time `json:"endSteadyState"`
	EndRun           time.Time `json:"endRun"`

	RampUp   time.Duration `json:"rampUp"`
	Duration time.Duration `json:"duration"`
	RampDown time.Duration `json:"rampDown"`
}

// NewTiming computes the phase boundaries of a run starting at start.
func NewTiming(start time.Time, rampUp, duration, rampDown time.Duration) Timing {
	steadyStart := start.Add(rampUp)
	steadyEnd := steadyStart.Add(duration)
	return Timing{
		Start:            start,
		StartSteadyState: steadyStart,
		EndSteadyState:   steadyEnd,
		EndRun:           steadyEnd.Add(rampDown),
		RampUp:           rampUp,
		Duration:         duration,
		RampDown:         rampDown,
	}
}

// SteadyStateDuration is the length of the window whose results are counted.
func (t Timing) SteadyStateDuration() time.Duration {
	return t.EndSteadyState.Sub(t.StartSteadyState)
}

// InSteadyState reports whether ts lies in the steady-state window, bounds
// included.
func (t Timing) InSteadyState(ts time.Time) bool {
	return !ts.Before(t.StartSteadyState) && !ts.After(t.EndSteadyState)
}

// Classify assigns exactly one label to an operation from its start and
// finish times.
func (t Timing) Classify(started, finished time.Time) TraceLabel {
	switch {
	case started.Before(t.StartSteadyState):
		return TraceLabelRampUp
	case !finished.After(t.EndSteadyState):
		return TraceLabelSteadyState
	case !started.After(t.EndSteadyState):
		return TraceLabelLate
	default:
		return TraceLabelRampDown
	}
}

func (t Timing) String() string {
	return fmt.Sprintf("[rampUp: %s steady: %s rampDown: %s]", t.RampUp, t.Duration, t.RampDown)
}
