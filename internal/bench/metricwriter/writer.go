// Package metricwriter streams per-sample response time records out of the
// harness. Emission is best effort: a slow or broken writer never stalls the
// measurement path.
package metricwriter

import (
	"bufio"
	"encoding/json"
	"fmt"
	"net"
	"os"
	"sync"
	"time"
)

// ResponseTimeStat is one emitted sample.
type ResponseTimeStat struct {
	Timestamp          time.Time     `json:"timestamp"`
	ResponseTime       time.Duration `json:"responseTime"`
	TotalResponseTime  time.Duration `json:"totalResponseTime"`
	TotalOpsSuccessful int64         `json:"totalOpsSuccessful"`
	OperationName      string        `json:"operationName"`
	OperationRequest   string        `json:"operationRequest,omitempty"`
	IntervalName       string        `json:"intervalName,omitempty"`
	TargetID           string        `json:"targetId"`
	RunID              string        `json:"runId,omitempty"`
}

// Writer receives samples. Implementations are used from a single goroutine.
type Writer interface {
	Write(stat ResponseTimeStat) error
	Close() error
}

// Kind selects a writer implementation.
type Kind string

const (
	KindDiscard Kind = "discard"
	KindFile    Kind = "file"
	KindSocket  Kind = "socket"
)

// Config selects and configures a writer.
type Config struct {
	Kind Kind

	// Path is the output file for KindFile.
	Path string

	// Address is host:port for KindSocket.
	Address string

	// DialTimeout bounds the socket connect (default: 5s).
	DialTimeout time.Duration
}

// New creates a writer from cfg. An empty kind discards.
func New(cfg Config) (Writer, error) {
	switch cfg.Kind {
	case "", KindDiscard:
		return Discard{}, nil
	case KindFile:
		return NewFileWriter(cfg.Path)
	case KindSocket:
		timeout := cfg.DialTimeout
		if timeout <= 0 {
			timeout = 5 * time.Second
		}
		return NewSocketWriter(cfg.Address, timeout)
	default:
		return nil, fmt.Errorf("unknown metric writer %q", cfg.Kind)
	}
}

// Discard drops every sample.
type Discard struct{}

func (Discard) Write(ResponseTimeStat) error { return nil }
func (Discard) Close() error                 { return nil }

// FileWriter appends samples to a file as JSON lines.
type FileWriter struct {
	file *os.File
	buf  *bufio.Writer
	enc  *json.Encoder
}

// NewFileWriter creates or truncates path.
func NewFileWriter(path string) (*FileWriter, error) {
	if path == "" {
		return nil, fmt.Errorf("file metric writer: path is required")
	}
	f, err := os.Create(path)
	if err != nil {
		return nil, fmt.Errorf("file metric writer: %w", err)
	}
	buf := bufio.NewWriter(f)
	return &FileWriter{file: f, buf: buf, enc: json.NewEncoder(buf)}, nil
}

func (w *FileWriter) Write(stat ResponseTimeStat) error {
	return w.enc.Encode(stat)
}

// Close flushes buffered samples and closes the file.
func (w *FileWriter) Close() error {
	flushErr := w.buf.Flush()
	closeErr := w.file.Close()
	if flushErr != nil {
		return flushErr
	}
	return closeErr
}

// SocketWriter sends samples to a TCP collector as JSON lines.
type SocketWriter struct {
	mu   sync.Mutex
	conn net.Conn
	buf  *bufio.Writer
	enc  *json.Encoder
}

// NewSocketWriter connects to address.
func NewSocketWriter(address string, timeout time.Duration) (*SocketWriter, error) {
	if address == "" {
		return nil, fmt.Errorf("socket metric writer: address is required")
	}
	conn, err := net.DialTimeout("tcp", address, timeout)
	if err != nil {
		return nil, fmt.Errorf("socket metric writer: %w", err)
	}
	buf := bufio.NewWriter(conn)
	return &SocketWriter{conn: conn, buf: buf, enc: json.NewEncoder(buf)}, nil
}

func (w *SocketWriter) Write(stat ResponseTimeStat) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if err := w.enc.Encode(stat); err != nil {
		return err
	}
	// Flush per sample so a collector sees data while the run is going
	return w.buf.Flush()
}

func (w *SocketWriter) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	flushErr := w.buf.Flush()
	closeErr := w.conn.Close()
	if flushErr != nil {
		return flushErr
	}
	return closeErr
}
