package bench

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
)

// AsyncPool runs open-loop invocations fire-and-forget, one goroutine each.
// Agents never wait for a submitted invocation. One pool is shared by all
// agents of a target.
type AsyncPool struct {
	ctx    context.Context
	cancel context.CancelFunc
	sink   ResultSink
	logger *zap.Logger

	mu     sync.Mutex
	closed bool
	wg     sync.WaitGroup

	submitted atomic.Int64
	rejected  atomic.Int64
	inFlight  atomic.Int64
}

// NewAsyncPool creates a pool whose invocations report to sink. Invocations
// see a context derived from ctx that is cancelled if Close times out.
func NewAsyncPool(ctx context.Context, sink ResultSink, logger *zap.Logger) *AsyncPool {
	if logger == nil {
		logger = zap.NewNop()
	}
	ctx, cancel := context.WithCancel(ctx)
	return &AsyncPool{
		ctx:    ctx,
		cancel: cancel,
		sink:   sink,
		logger: logger,
	}
}

// Submit starts inv in the background. It returns false once the pool is closed.
func (p *AsyncPool) Submit(inv *Invocation) bool {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		p.rejected.Add(1)
		return false
	}
	p.wg.Add(1)
	p.mu.Unlock()

	p.submitted.Add(1)
	p.inFlight.Add(1)
	go func() {
		defer p.wg.Done()
		defer p.inFlight.Add(-1)
		defer func() {
			if r := recover(); r != nil {
				p.logger.Error("async invocation panicked", zap.Any("panic", r))
			}
		}()
		inv.Run(p.ctx, p.sink)
	}()
	return true
}

// Close stops accepting submissions and waits up to timeout for in-flight
// invocations. On timeout their context is cancelled and an error returned.
func (p *AsyncPool) Close(timeout time.Duration) error {
	p.mu.Lock()
	p.closed = true
	p.mu.Unlock()

	done := make(chan struct{})
	go func() {
		p.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		p.cancel()
		return nil
	case <-time.After(timeout):
		p.cancel()
		return fmt.Errorf("async pool: %d invocations still running after %s", p.inFlight.Load(), timeout)
	}
}

// Submitted returns the number of accepted invocations.
func (p *AsyncPool) Submitted() int64 {
	return p.submitted.Load()
}

// Rejected returns the number of submissions refused after Close.
func (p *AsyncPool) Rejected() int64 {
	return p.rejected.Load()
}

// InFlight returns the number of invocations still running.
func (p *AsyncPool) InFlight() int64 {
	return p.inFlight.Load()
}
