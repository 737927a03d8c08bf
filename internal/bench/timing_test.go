package bench

import (
	"testing"
	"time"
)

func TestNewTiming(t *testing.T) {
	start := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	timing := NewTiming(start, 10*time.Second, time.Minute, 5*time.Second)

	if !timing.StartSteadyState.Equal(start.Add(10 * time.Second)) {
		t.Errorf("StartSteadyState = %v", timing.StartSteadyState)
	}
	if !timing.EndSteadyState.Equal(start.Add(70 * time.Second)) {
		t.Errorf("EndSteadyState = %v", timing.EndSteadyState)
	}
	if !timing.EndRun.Equal(start.Add(75 * time.Second)) {
		t.Errorf("EndRun = %v", timing.EndRun)
	}
	if timing.SteadyStateDuration() != time.Minute {
		t.Errorf("SteadyStateDuration() = %v, want 1m", timing.SteadyStateDuration())
	}
}

func TestTiming_Classify(t *testing.T) {
	start := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	timing := NewTiming(start, 10*time.Second, 60*time.Second, 10*time.Second)
	at := func(s float64) time.Time { return start.Add(time.Duration(s * float64(time.Second))) }

	tests := []struct {
		name     string
		started  time.Time
		finished time.Time
		want     TraceLabel
	}{
		{"during ramp up", at(1), at(2), TraceLabelRampUp},
		{"started in ramp up finished in steady", at(9), at(11), TraceLabelRampUp},
		{"at steady start", at(10), at(10.5), TraceLabelSteadyState},
		{"inside steady", at(30), at(31), TraceLabelSteadyState},
		{"finished exactly at steady end", at(69), at(70), TraceLabelSteadyState},
		{"crossing steady end", at(69), at(71), TraceLabelLate},
		{"started at steady end, finished after", at(70), at(70.1), TraceLabelLate},
		{"during ramp down", at(71), at(72), TraceLabelRampDown},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := timing.Classify(tt.started, tt.finished); got != tt.want {
				t.Errorf("Classify() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestTiming_InSteadyState(t *testing.T) {
	start := time.Now()
	timing := NewTiming(start, time.Second, time.Second, time.Second)

	if !timing.InSteadyState(timing.StartSteadyState) || !timing.InSteadyState(timing.EndSteadyState) {
		t.Error("steady-state bounds should be inclusive")
	}
	if timing.InSteadyState(start) || timing.InSteadyState(timing.EndRun) {
		t.Error("ramp phases should not be steady state")
	}
}
