package load

import (
	"testing"
	"time"
)

func TestNewSchedule_Empty(t *testing.T) {
	if _, err := NewSchedule(nil); err != ErrEmptySchedule {
		t.Errorf("NewSchedule(nil) error = %v, want %v", err, ErrEmptySchedule)
	}
}

func TestSchedule_CyclicIndex(t *testing.T) {
	defs := []*Definition{
		NewDefinition(time.Second, 0, 1, ""),
		NewDefinition(time.Second, 0, 4, ""),
		NewDefinition(time.Second, 0, 2, ""),
	}
	s, err := NewSchedule(defs)
	if err != nil {
		t.Fatalf("NewSchedule() error = %v", err)
	}

	tests := []struct {
		index int
		next  int
	}{
		{0, 1},
		{1, 2},
		{2, 0},
	}
	for _, tt := range tests {
		if got := s.Next(tt.index); got != tt.next {
			t.Errorf("Next(%d) = %d, want %d", tt.index, got, tt.next)
		}
	}

	if s.Get(3) != defs[0] || s.Get(-1) != defs[2] {
		t.Error("Get() should wrap indexes around the schedule")
	}
	if s.MaxUsers() != 4 {
		t.Errorf("MaxUsers() = %d, want 4", s.MaxUsers())
	}
}

func TestDefinition_Activate(t *testing.T) {
	d := NewDefinition(time.Second, time.Second, 3, "mix")
	if _, ok := d.TimeStarted(); ok {
		t.Error("TimeStarted() should report false before activation")
	}

	now := time.Now()
	d.Activate(now)
	d.Activate(now.Add(time.Second))

	started, ok := d.TimeStarted()
	if !ok || !started.Equal(now.Add(time.Second)) {
		t.Errorf("TimeStarted() = %v, %v, want %v", started, ok, now.Add(time.Second))
	}
	if d.Activations() != 2 {
		t.Errorf("Activations() = %d, want 2", d.Activations())
	}
	if d.Period() != 2*time.Second {
		t.Errorf("Period() = %v, want 2s", d.Period())
	}
}

func TestDefinition_WithOpenLoopCap(t *testing.T) {
	d := NewDefinition(time.Second, 0, 1, "").WithOpenLoopCap(-5)
	if d.OpenLoopMaxOpsPerSec != 0 {
		t.Errorf("negative cap should clamp to 0, got %d", d.OpenLoopMaxOpsPerSec)
	}
}
