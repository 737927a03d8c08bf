// Package load provides the load schedule and the manager that decides which
// load definition is in effect at any instant.
package load

import (
	"fmt"
	"sync/atomic"
	"time"
)

// Definition describes one scheduling interval of a target.
//
// A definition is immutable once the schedule is built, except for its
// activation bookkeeping (activation count and time started), which only the
// Manager updates. Both are atomics so agents and the scoreboard can read them
// while the manager advances the schedule.
type Definition struct {
	// Name optionally labels the interval. Named intervals get their own
	// scorecard in the final report.
	Name string `json:"name,omitempty" yaml:"name,omitempty"`

	// Interval is the length of the interval proper.
	Interval time.Duration `json:"interval" yaml:"interval"`

	// TransitionTime is the blending window appended after Interval during
	// which the next definition gradually takes over.
	TransitionTime time.Duration `json:"transitionTime,omitempty" yaml:"transitionTime,omitempty"`

	// NumberOfUsers is the number of active agents while this definition is in effect.
	NumberOfUsers int `json:"users" yaml:"users"`

	// MixName selects the operation mix used by generators.
	MixName string `json:"mix,omitempty" yaml:"mix,omitempty"`

	// OpenLoopMaxOpsPerSec caps the aggregate rate of asynchronous operations.
	// Zero means uncapped.
	OpenLoopMaxOpsPerSec int `json:"openLoopMaxOpsPerSec,omitempty" yaml:"openLoopMaxOpsPerSec,omitempty"`

	activations atomic.Int64
	timeStarted atomic.Int64 // unix nanos, 0 when never activated
}

// NewDefinition creates an uncapped definition.
func NewDefinition(interval, transition time.Duration, users int, mix string) *Definition {
	return &Definition{
		Interval:       interval,
		TransitionTime: transition,
		NumberOfUsers:  users,
		MixName:        mix,
	}
}

// WithName sets the interval name and returns the definition.
func (d *Definition) WithName(name string) *Definition {
	d.Name = name
	return d
}

// WithOpenLoopCap sets the aggregate asynchronous rate cap and returns the definition.
func (d *Definition) WithOpenLoopCap(opsPerSec int) *Definition {
	if opsPerSec < 0 {
		opsPerSec = 0
	}
	d.OpenLoopMaxOpsPerSec = opsPerSec
	return d
}

// Activate stamps the start time and increments the activation count.
func (d *Definition) Activate(now time.Time) {
	d.timeStarted.Store(now.UnixNano())
	d.activations.Add(1)
}

// Activations returns how often the definition became active.
func (d *Definition) Activations() int64 {
	return d.activations.Load()
}

// TimeStarted returns the time of the most recent activation and false if the
// definition was never activated.
func (d *Definition) TimeStarted() (time.Time, bool) {
	ns := d.timeStarted.Load()
	if ns == 0 {
		return time.Time{}, false
	}
	return time.Unix(0, ns), true
}

// Period is the full time the definition stays current: interval plus transition.
func (d *Definition) Period() time.Duration {
	return d.Interval + d.TransitionTime
}

func (d *Definition) String() string {
	if d.Name == "" {
		return fmt.Sprintf("[interval: %s users: %d mix: %s transition: %s]",
			d.Interval, d.NumberOfUsers, d.MixName, d.TransitionTime)
	}
	return fmt.Sprintf("[interval: %s users: %d mix: %s transition: %s name: %s]",
		d.Interval, d.NumberOfUsers, d.MixName, d.TransitionTime, d.Name)
}
