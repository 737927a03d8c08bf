package http

import (
	"net/http"
	"time"
)

// TimingInfo holds the phases of one request. Phases that did not happen,
// such as DNS on a reused connection, are zero.
type TimingInfo struct {
	DNSLookupTime       time.Duration
	TCPConnectTime      time.Duration
	TLSHandshakeTime    time.Duration
	TimeToFirstByte     time.Duration
	ContentTransferTime time.Duration
	TotalTime           time.Duration
	ConnectionReused    bool
}

// Response represents an HTTP response whose body has been drained.
type Response struct {
	StatusCode int
	Status     string
	Headers    http.Header
	BytesRead  int64
	Timing     TimingInfo
}

// GetHeader returns the value of the specified header.
func (r *Response) GetHeader(key string) string {
	return r.Headers.Get(key)
}

// IsSuccess returns true if the response status code is in the 2xx range.
func (r *Response) IsSuccess() bool {
	return r.StatusCode >= 200 && r.StatusCode < 300
}

// IsClientError returns true if the response status code is in the 4xx range.
func (r *Response) IsClientError() bool {
	return r.StatusCode >= 400 && r.StatusCode < 500
}

// IsServerError returns true if the response status code is in the 5xx range.
func (r *Response) IsServerError() bool {
	return r.StatusCode >= 500 && r.StatusCode < 600
}
