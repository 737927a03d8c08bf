package load

import (
	"context"
	"fmt"
	"math/rand"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
)

// Manager walks a target's load schedule in the background and answers which
// definition is in effect at any instant.
//
// # Transition blending
//
// Every definition is split into the interval proper followed by a transition
// window. During the window CurrentLoadProfile returns the next definition
// with a probability that grows linearly from 0 to 1, so the number of active
// agents changes gradually instead of in one step. The answer is computed from
// the wall clock alone: if the manager goroutine oversleeps, readers already
// see the next definition once the window has passed.
//
// # Thread Safety
//
// CurrentLoadProfile is safe for concurrent use. The current definition, the
// schedule index and the random source are guarded by one mutex.
type Manager struct {
	targetID string
	rampUp   time.Duration
	schedule *Schedule
	mixes    map[string]struct{}
	logger   *zap.Logger
	now      func() time.Time

	mu      sync.Mutex
	index   int
	current *Definition
	rng     *rand.Rand

	cycles  atomic.Int64
	invalid atomic.Int64
	doneCh  chan struct{}
}

// ManagerOption configures a Manager.
type ManagerOption func(*Manager)

// WithClock replaces the wall clock, used by tests.
func WithClock(now func() time.Time) ManagerOption {
	return func(m *Manager) {
		m.now = now
	}
}

// WithRand replaces the random source used for transition draws.
func WithRand(rng *rand.Rand) ManagerOption {
	return func(m *Manager) {
		m.rng = rng
	}
}

// WithLogger sets the logger.
func WithLogger(logger *zap.Logger) ManagerOption {
	return func(m *Manager) {
		if logger != nil {
			m.logger = logger
		}
	}
}

// NewManager creates a load manager for one target.
//
// Parameters:
//   - targetID: Identifier used in log output
//   - rampUp: How long to wait before the first definition is activated
//   - schedule: The cyclic schedule to walk
//   - mixes: Known mix names, used to validate definitions (nil disables the check)
func NewManager(targetID string, rampUp time.Duration, schedule *Schedule, mixes []string, opts ...ManagerOption) *Manager {
	m := &Manager{
		targetID: targetID,
		rampUp:   rampUp,
		schedule: schedule,
		logger:   zap.NewNop(),
		now:      time.Now,
		rng:      rand.New(rand.NewSource(time.Now().UnixNano())),
		current:  schedule.Get(0),
		doneCh:   make(chan struct{}),
	}
	if mixes != nil {
		m.mixes = make(map[string]struct{}, len(mixes))
		for _, mix := range mixes {
			m.mixes[mix] = struct{}{}
		}
	}
	for _, opt := range opts {
		opt(m)
	}
	m.logger = m.logger.With(zap.String("target", targetID), zap.String("component", "load-manager"))
	return m
}

// Run blocks for the ramp-up period, activates the first definition and then
// advances the schedule every interval plus transition time until ctx is
// cancelled.
//
// Cancellation is the normal way to stop the manager. An unexpected panic is
// logged and ends the loop; callers notice through Done.
func (m *Manager) Run(ctx context.Context) {
	defer close(m.doneCh)
	defer func() {
		if r := recover(); r != nil {
			m.logger.Error("load manager stopped by unexpected error", zap.Any("panic", r))
		}
	}()

	m.mu.Lock()
	m.index = 0
	m.current = m.schedule.Get(0)
	m.mu.Unlock()

	m.logger.Info("ramping up", zap.Duration("rampUp", m.rampUp))
	if !sleep(ctx, m.rampUp) {
		m.logger.Warn("load manager interrupted during ramp up")
		return
	}
	m.logger.Info("ramp up finished")

	m.mu.Lock()
	m.validate(m.current)
	m.current.Activate(m.now())
	m.mu.Unlock()

	for {
		m.mu.Lock()
		wait := m.current.Period()
		m.mu.Unlock()

		if !sleep(ctx, wait) {
			m.logger.Debug("load manager stopped")
			return
		}

		m.logger.Debug("advancing load schedule")
		m.Advance()
	}
}

// Done is closed when Run returns.
func (m *Manager) Done() <-chan struct{} {
	return m.doneCh
}

// Advance moves to the next definition, validates and activates it.
// Wrapping back to index 0 counts as one cycle.
func (m *Manager) Advance() *Definition {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.index = m.schedule.Next(m.index)
	if m.index == 0 {
		m.cycles.Add(1)
		m.logger.Info("cycling load schedule", zap.Int64("cycles", m.cycles.Load()))
	}

	next := m.schedule.Get(m.index)
	m.validate(next)
	next.Activate(m.now())
	m.current = next
	return next
}

// Profile is one answer to "which definition is in effect": the definition
// and, when it is the manager's active definition, the start of its current
// activation. Started is zero for a definition that has not been activated in
// this pass, such as the next definition blended in during a transition.
type Profile struct {
	Definition *Definition
	Started    time.Time
}

// ProfileOf returns a profile for d stamped with its most recent activation.
func ProfileOf(d *Definition) Profile {
	p := Profile{Definition: d}
	if d != nil {
		p.Started, _ = d.TimeStarted()
	}
	return p
}

// CurrentLoadProfile returns the definition in effect now.
//
// Before the first activation (during ramp-up) the first definition is
// returned. Inside the transition window the next definition is returned with
// probability (now-intervalEnd)/transitionTime, using one independent draw
// per call. After the window the next definition is returned unconditionally.
func (m *Manager) CurrentLoadProfile() *Definition {
	return m.CurrentProfile().Definition
}

// CurrentProfile draws the definition in effect now like CurrentLoadProfile
// and stamps it with its activation time if it is the active definition.
func (m *Manager) CurrentProfile() Profile {
	m.mu.Lock()
	defer m.mu.Unlock()

	current := m.current
	next := m.schedule.Get(m.schedule.Next(m.index))

	started, ok := current.TimeStarted()
	if !ok {
		return Profile{Definition: current}
	}
	active := Profile{Definition: current, Started: started}

	now := m.now()
	intervalEnd := started.Add(current.Interval)
	transitionEnd := intervalEnd.Add(current.TransitionTime)

	switch {
	case !now.After(intervalEnd):
		return active
	case !now.After(transitionEnd):
		elapsedRatio := float64(now.Sub(intervalEnd)) / float64(current.TransitionTime)
		if m.rng.Float64() <= elapsedRatio {
			return Profile{Definition: next}
		}
		return active
	default:
		return Profile{Definition: next}
	}
}

// Index returns the schedule index of the active definition.
func (m *Manager) Index() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.index
}

// Cycles returns how often the schedule wrapped back to its first definition.
func (m *Manager) Cycles() int64 {
	return m.cycles.Load()
}

// InvalidDefinitions returns how many activations failed validation.
func (m *Manager) InvalidDefinitions() int64 {
	return m.invalid.Load()
}

// Schedule returns the schedule walked by this manager.
func (m *Manager) Schedule() *Schedule {
	return m.schedule
}

// validate checks a definition before activation. Problems are logged and
// the schedule continues.
func (m *Manager) validate(d *Definition) {
	if err := m.check(d); err != nil {
		m.invalid.Add(1)
		m.logger.Warn("invalid load definition", zap.Error(err), zap.Stringer("definition", d))
	}
}

func (m *Manager) check(d *Definition) error {
	if d.NumberOfUsers < 0 {
		return fmt.Errorf("number of users %d < 0", d.NumberOfUsers)
	}
	if d.MixName != "" && m.mixes != nil {
		if _, ok := m.mixes[d.MixName]; !ok {
			return fmt.Errorf("unknown mix %q", d.MixName)
		}
	}
	return nil
}

// sleep waits for d or until ctx is done. It returns false if ctx ended first.
func sleep(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		select {
		case <-ctx.Done():
			return false
		default:
			return true
		}
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-timer.C:
		return true
	}
}
