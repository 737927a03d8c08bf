// Package rate provides the send gate used for open-loop operations.
package rate

import (
	"context"
	"sync"
	"sync/atomic"
	"time"
)

// Pacer gates one agent's asynchronous submissions to its fair share of an
// aggregate rate cap.
//
// # Algorithm
//
// The pacer keeps a "next allowed send" time. The per-agent rate is the
// aggregate cap divided by the number of currently active agents, so the
// share grows and shrinks with the load schedule. A reservation made at or
// after the next allowed send passes immediately and moves it to
// now + 1/rate. A reservation made earlier has to wait until the next allowed
// send, which then advances by one interval from there. Sends therefore never
// come closer together than one interval, even right after a wait.
//
// # Thread Safety
//
// Pacer is safe for concurrent use, although each agent normally owns one.
//
// # Example
//
//	p := NewPacer()
//	for {
//	    if err := p.Wait(ctx, 100, activeAgents); err != nil {
//	        return
//	    }
//	    pool.Submit(op)
//	}
type Pacer struct {
	mu   sync.Mutex
	next time.Time
	now  func() time.Time

	// Metrics
	totalReservations atomic.Int64
	totalDelayed      atomic.Int64
	totalWaitTime     atomic.Int64 // nanoseconds
}

// NewPacer creates a pacer whose first reservation passes immediately.
func NewPacer() *Pacer {
	return &Pacer{now: time.Now}
}

// Interval returns the gap between sends for one agent's fair share of
// aggregateRate (operations per second). A non-positive share falls back to
// one operation per second; fewer than one active agent counts as one.
func Interval(aggregateRate float64, activeAgents int) time.Duration {
	if activeAgents < 1 {
		activeAgents = 1
	}
	perAgent := aggregateRate / float64(activeAgents)
	if perAgent <= 0 {
		return time.Second
	}
	return time.Duration(float64(time.Second) / perAgent)
}

// Reserve books the next send slot and returns how long the caller has to
// wait before sending. Zero means send now.
func (p *Pacer) Reserve(aggregateRate float64, activeAgents int) time.Duration {
	interval := Interval(aggregateRate, activeAgents)

	p.mu.Lock()
	defer p.mu.Unlock()

	p.totalReservations.Add(1)
	now := p.now()
	if !now.Before(p.next) {
		p.next = now.Add(interval)
		return 0
	}

	wait := p.next.Sub(now)
	p.next = p.next.Add(interval)
	p.totalDelayed.Add(1)
	p.totalWaitTime.Add(int64(wait))
	return wait
}

// Wait reserves a slot and blocks until it is due.
//
// Returns:
//   - nil if the slot is due
//   - ctx.Err() if the context ended first
func (p *Pacer) Wait(ctx context.Context, aggregateRate float64, activeAgents int) error {
	wait := p.Reserve(aggregateRate, activeAgents)
	if wait <= 0 {
		return ctx.Err()
	}

	timer := time.NewTimer(wait)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// Reset clears the next allowed send time and the statistics.
func (p *Pacer) Reset() {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.next = time.Time{}
	p.totalReservations.Store(0)
	p.totalDelayed.Store(0)
	p.totalWaitTime.Store(0)
}

// Stats returns statistics about the pacer's operation.
func (p *Pacer) Stats() PacerStats {
	return PacerStats{
		TotalReservations: p.totalReservations.Load(),
		TotalDelayed:      p.totalDelayed.Load(),
		TotalWaitTime:     time.Duration(p.totalWaitTime.Load()),
	}
}

// PacerStats contains statistics about a pacer.
type PacerStats struct {
	TotalReservations int64         `json:"totalReservations"` // Reservations made
	TotalDelayed      int64         `json:"totalDelayed"`      // Reservations that had to wait
	TotalWaitTime     time.Duration `json:"totalWaitTime"`     // Total time spent waiting
}
