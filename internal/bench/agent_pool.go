package bench

import (
	"context"
	"sync"
	"time"
)

// AgentPool manages the agents of one target.
//
// It provides:
// - Starting every agent on its own goroutine
// - Activity counts for progress reporting
// - Bounded shutdown: request stop, wait, then cancel stragglers
type AgentPool struct {
	agents []*Agent

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewAgentPool creates a pool over the given agents.
func NewAgentPool(agents []*Agent) *AgentPool {
	return &AgentPool{agents: agents}
}

// Start launches every agent. The agents see a context derived from ctx that
// Shutdown cancels if they do not stop in time.
func (p *AgentPool) Start(ctx context.Context) {
	ctx, p.cancel = context.WithCancel(ctx)
	for _, a := range p.agents {
		p.wg.Add(1)
		go func(a *Agent) {
			defer p.wg.Done()
			a.Run(ctx)
		}(a)
	}
}

// Agents returns the pool's agents ordered by id.
func (p *AgentPool) Agents() []*Agent {
	result := make([]*Agent, len(p.agents))
	copy(result, p.agents)
	return result
}

// Size returns the number of agents.
func (p *AgentPool) Size() int {
	return len(p.agents)
}

// ActiveCount returns the number of agents currently issuing operations.
func (p *AgentPool) ActiveCount() int {
	count := 0
	for _, a := range p.agents {
		if a.GetState() == AgentStateActive {
			count++
		}
	}
	return count
}

// StopAll requests all agents to stop.
func (p *AgentPool) StopAll() {
	for _, a := range p.agents {
		a.RequestStop()
	}
}

// WaitForAll waits for all agents to stop with a timeout.
//
// Returns the number of agents that did not stop within the timeout.
func (p *AgentPool) WaitForAll(timeout time.Duration) int {
	deadline := time.Now().Add(timeout)

	notStopped := 0
	for _, a := range p.agents {
		remaining := time.Until(deadline)
		if remaining <= 0 {
			select {
			case <-a.Done():
			default:
				notStopped++
			}
			continue
		}

		if !a.WaitForStop(remaining) {
			notStopped++
		}
	}
	return notStopped
}

// Shutdown stops all agents. Agents that do not return within timeout have
// their context cancelled and get a second timeout to return. It returns the
// number of agents still running afterwards.
func (p *AgentPool) Shutdown(timeout time.Duration) int {
	p.StopAll()

	remaining := p.WaitForAll(timeout)
	if p.cancel != nil {
		p.cancel()
	}
	if remaining == 0 {
		return 0
	}
	return p.WaitForAll(timeout)
}

// Stats returns per-agent counters.
func (p *AgentPool) Stats() []AgentStats {
	stats := make([]AgentStats, len(p.agents))
	for i, a := range p.agents {
		stats[i] = a.Stats()
	}
	return stats
}
