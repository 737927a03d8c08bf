package metricwriter

import (
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
)

// DefaultBufferSize is the number of samples buffered between the scoreboard
// and the writer goroutine.
const DefaultBufferSize = 4096

// SnapshotWriter decouples the scoreboard worker from a Writer. Accept never
// blocks: when the buffer is full the sample is dropped and counted.
//
// # Thread Safety
//
// Accept and Stop are safe for concurrent use. The Writer is only used by the
// background goroutine.
type SnapshotWriter struct {
	writer Writer
	logger *zap.Logger

	mu      sync.RWMutex
	stopped bool
	ch      chan ResponseTimeStat
	doneCh  chan struct{}

	written atomic.Int64
	dropped atomic.Int64
	failed  atomic.Int64
}

// NewSnapshotWriter starts the background goroutine. A bufferSize <= 0 uses
// DefaultBufferSize.
func NewSnapshotWriter(writer Writer, bufferSize int, logger *zap.Logger) *SnapshotWriter {
	if bufferSize <= 0 {
		bufferSize = DefaultBufferSize
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	w := &SnapshotWriter{
		writer: writer,
		logger: logger,
		ch:     make(chan ResponseTimeStat, bufferSize),
		doneCh: make(chan struct{}),
	}
	go w.run()
	return w
}

// Accept queues a sample. It returns false if the sample was dropped.
func (w *SnapshotWriter) Accept(stat ResponseTimeStat) bool {
	w.mu.RLock()
	defer w.mu.RUnlock()

	if w.stopped {
		w.dropped.Add(1)
		return false
	}
	select {
	case w.ch <- stat:
		return true
	default:
		w.dropped.Add(1)
		return false
	}
}

func (w *SnapshotWriter) run() {
	defer close(w.doneCh)
	defer func() {
		if r := recover(); r != nil {
			w.logger.Error("metric writer stopped by unexpected error", zap.Any("panic", r))
		}
	}()

	for stat := range w.ch {
		if err := w.writer.Write(stat); err != nil {
			// Log the first failure only; a dead collector would flood the log
			if w.failed.Add(1) == 1 {
				w.logger.Warn("metric writer failed", zap.Error(err))
			}
			continue
		}
		w.written.Add(1)
	}
}

// Stop refuses further samples, drains the buffer and closes the writer. It
// waits at most timeout for the drain.
func (w *SnapshotWriter) Stop(timeout time.Duration) error {
	w.mu.Lock()
	if w.stopped {
		w.mu.Unlock()
		return nil
	}
	w.stopped = true
	close(w.ch)
	w.mu.Unlock()

	timer := time.NewTimer(timeout)
	defer timer.Stop()
	select {
	case <-w.doneCh:
	case <-timer.C:
		return fmt.Errorf("metric writer: %d samples not written after %s", len(w.ch), timeout)
	}

	if err := w.writer.Close(); err != nil {
		return fmt.Errorf("metric writer: close: %w", err)
	}
	return nil
}

// Stats returns emission counters.
func (w *SnapshotWriter) Stats() SnapshotStats {
	return SnapshotStats{
		Written: w.written.Load(),
		Dropped: w.dropped.Load(),
		Failed:  w.failed.Load(),
	}
}

// SnapshotStats contains emission counters.
type SnapshotStats struct {
	Written int64 `json:"written"`
	Dropped int64 `json:"dropped"`
	Failed  int64 `json:"failed"`
}
