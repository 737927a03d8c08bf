// Package config provides configuration parsing and validation for
// benchmark runs.
package config

import (
	"encoding/json"
	"fmt"
	"time"
)

// BenchmarkConfig is the root configuration of a run.
//
// Example YAML:
//
//	name: checkout
//	timing:
//	  rampUp: 10s
//	  duration: 2m
//	  rampDown: 10s
//	targets:
//	  - name: web
//	    generator: sample
//	    meanThinkTime: 500ms
//	    schedule:
//	      - interval: 30s
//	        transitionTime: 5s
//	        users: 10
type BenchmarkConfig struct {
	// Name of the run (for reporting)
	Name string `json:"name" yaml:"name"`

	// Description of the run (optional)
	Description string `json:"description,omitempty" yaml:"description,omitempty"`

	Timing   TimingConfig   `json:"timing" yaml:"timing"`
	Sampling SamplingConfig `json:"sampling,omitempty" yaml:"sampling,omitempty"`
	Metrics  MetricsConfig  `json:"metrics,omitempty" yaml:"metrics,omitempty"`
	Control  ControlConfig  `json:"control,omitempty" yaml:"control,omitempty"`
	Shutdown ShutdownConfig `json:"shutdown,omitempty" yaml:"shutdown,omitempty"`
	Report   ReportConfig   `json:"report,omitempty" yaml:"report,omitempty"`

	// Targets run concurrently, each with its own schedule and scoreboard
	Targets []TargetConfig `json:"targets" yaml:"targets"`
}

// TimingConfig sets the run phases. Only results of the steady state
// (Duration) are scored.
type TimingConfig struct {
	RampUp   Duration `json:"rampUp,omitempty" yaml:"rampUp,omitempty"`
	Duration Duration `json:"duration" yaml:"duration"`
	RampDown Duration `json:"rampDown,omitempty" yaml:"rampDown,omitempty"`
}

// SamplingConfig selects how response and wait times are sampled.
type SamplingConfig struct {
	// Strategy is one of: poisson, all, histogram, none
	Strategy string `json:"strategy,omitempty" yaml:"strategy,omitempty"`

	// MeanInterval is the Poisson sampler's mean distance between kept samples
	MeanInterval float64 `json:"meanInterval,omitempty" yaml:"meanInterval,omitempty"`

	// WaitTimes is the strategy for think/cycle wait statistics
	WaitTimes string `json:"waitTimes,omitempty" yaml:"waitTimes,omitempty"`

	// Seed makes sampling positions and open-loop coin flips reproducible (0 = time based)
	Seed int64 `json:"seed,omitempty" yaml:"seed,omitempty"`
}

// MetricsConfig configures per-sample metric emission.
type MetricsConfig struct {
	// Writer is one of: discard, file, socket
	Writer string `json:"writer,omitempty" yaml:"writer,omitempty"`

	// Path is the JSON lines file for the file writer
	Path string `json:"path,omitempty" yaml:"path,omitempty"`

	// Address is host:port for the socket writer
	Address string `json:"address,omitempty" yaml:"address,omitempty"`

	// BufferSize is the number of samples queued before new ones are dropped
	BufferSize int `json:"bufferSize,omitempty" yaml:"bufferSize,omitempty"`
}

// ControlConfig configures the HTTP control surface.
type ControlConfig struct {
	// Listen is the address to serve on; empty disables the surface
	Listen string `json:"listen,omitempty" yaml:"listen,omitempty"`

	// WaitForStart holds the run until POST /benchmark/start
	WaitForStart bool `json:"waitForStart,omitempty" yaml:"waitForStart,omitempty"`
}

// ShutdownConfig bounds each teardown step.
type ShutdownConfig struct {
	AgentJoin  Duration `json:"agentJoin,omitempty" yaml:"agentJoin,omitempty"`
	AsyncDrain Duration `json:"asyncDrain,omitempty" yaml:"asyncDrain,omitempty"`
	Scoreboard Duration `json:"scoreboard,omitempty" yaml:"scoreboard,omitempty"`
}

// ReportConfig configures progress reporting during the run.
type ReportConfig struct {
	// Interval between progress log lines (0 disables)
	Interval Duration `json:"interval,omitempty" yaml:"interval,omitempty"`
}

// TargetConfig describes one system under test and how to load it.
type TargetConfig struct {
	Name string `json:"name" yaml:"name"`

	// AggregationID groups targets in the merged report (default: generator name)
	AggregationID string `json:"aggregationId,omitempty" yaml:"aggregationId,omitempty"`

	// Generator is the registered generator name
	Generator string `json:"generator" yaml:"generator"`

	// OpenLoopProbability is the chance each operation is dispatched async
	OpenLoopProbability float64 `json:"openLoopProbability,omitempty" yaml:"openLoopProbability,omitempty"`

	MeanThinkTime Duration `json:"meanThinkTime,omitempty" yaml:"meanThinkTime,omitempty"`
	MeanCycleTime Duration `json:"meanCycleTime,omitempty" yaml:"meanCycleTime,omitempty"`

	// Mixes are the operation mix names the generator understands
	Mixes []string `json:"mixes,omitempty" yaml:"mixes,omitempty"`

	// Params are passed to the generator factory as JSON
	Params map[string]interface{} `json:"params,omitempty" yaml:"params,omitempty"`

	Schedule []IntervalConfig `json:"schedule" yaml:"schedule"`
}

// IntervalConfig is one entry of a target's cyclic load schedule.
type IntervalConfig struct {
	Interval       Duration `json:"interval" yaml:"interval"`
	TransitionTime Duration `json:"transitionTime,omitempty" yaml:"transitionTime,omitempty"`
	Users          int      `json:"users" yaml:"users"`
	Mix            string   `json:"mix,omitempty" yaml:"mix,omitempty"`

	// Name gets the interval its own scorecard
	Name string `json:"name,omitempty" yaml:"name,omitempty"`

	// OpenLoopMaxOpsPerSec caps async dispatch across all agents (0 = uncapped)
	OpenLoopMaxOpsPerSec int `json:"openLoopMaxOpsPerSec,omitempty" yaml:"openLoopMaxOpsPerSec,omitempty"`
}

// ParamsJSON returns the generator params encoded as JSON ("{}" when unset).
func (t *TargetConfig) ParamsJSON() ([]byte, error) {
	if len(t.Params) == 0 {
		return []byte("{}"), nil
	}
	data, err := json.Marshal(t.Params)
	if err != nil {
		return nil, fmt.Errorf("encode params of target %s: %w", t.Name, err)
	}
	return data, nil
}

// MaxUsers returns the largest user count of the schedule.
func (t *TargetConfig) MaxUsers() int {
	users := 0
	for _, iv := range t.Schedule {
		if iv.Users > users {
			users = iv.Users
		}
	}
	return users
}

// Duration is a time.Duration that can be unmarshaled from JSON/YAML strings.
type Duration time.Duration

// GetDuration returns the duration or a default if zero.
func (d Duration) GetDuration(defaultValue time.Duration) time.Duration {
	if d == 0 {
		return defaultValue
	}
	return time.Duration(d)
}

// MarshalJSON implements json.Marshaler.
func (d Duration) MarshalJSON() ([]byte, error) {
	return []byte(`"` + time.Duration(d).String() + `"`), nil
}

// UnmarshalJSON implements json.Unmarshaler.
func (d *Duration) UnmarshalJSON(b []byte) error {
	s := string(b)
	if len(s) >= 2 && s[0] == '"' && s[len(s)-1] == '"' {
		s = s[1 : len(s)-1]
	}
	if s == "null" {
		s = ""
	}

	dur, err := ParseDurationString(s)
	if err != nil {
		return err
	}
	*d = Duration(dur)
	return nil
}

// MarshalYAML implements yaml.Marshaler.
func (d Duration) MarshalYAML() (interface{}, error) {
	return time.Duration(d).String(), nil
}

// UnmarshalYAML implements yaml.Unmarshaler.
func (d *Duration) UnmarshalYAML(unmarshal func(interface{}) error) error {
	var s string
	if err := unmarshal(&s); err != nil {
		return err
	}

	dur, err := ParseDurationString(s)
	if err != nil {
		return err
	}
	*d = Duration(dur)
	return nil
}

// String returns the duration as a string.
func (d Duration) String() string {
	return time.Duration(d).String()
}
