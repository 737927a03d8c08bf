package http

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestClientDo(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodGet, r.Method)
		assert.Equal(t, "/api/items", r.URL.Path)
		assert.Equal(t, "10", r.URL.Query().Get("limit"))
		assert.Equal(t, "squall", r.Header.Get("User-Agent"))
		assert.Equal(t, "request", r.Header.Get("X-Override"))

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"items":[1,2,3]}`))
	}))
	defer server.Close()

	client := NewClient(
		WithBaseURL(server.URL+"/api"),
		WithTimeout(5*time.Second),
		WithHeader("User-Agent", "squall"),
		WithHeader("X-Override", "client"),
	)

	req := NewRequest(http.MethodGet, "items").
		WithQueryParam("limit", "10").
		WithHeader("X-Override", "request")

	resp, err := client.Do(context.Background(), req)
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.True(t, resp.IsSuccess())
	assert.Equal(t, "application/json", resp.GetHeader("Content-Type"))
	assert.Equal(t, int64(len(`{"items":[1,2,3]}`)), resp.BytesRead)
	assert.Greater(t, resp.Timing.TotalTime, time.Duration(0))
	assert.GreaterOrEqual(t, resp.Timing.TotalTime, resp.Timing.TimeToFirstByte)
}

func TestClientDoStatusClasses(t *testing.T) {
	tests := []struct {
		status      int
		success     bool
		clientError bool
		serverError bool
	}{
		{http.StatusOK, true, false, false},
		{http.StatusNoContent, true, false, false},
		{http.StatusNotFound, false, true, false},
		{http.StatusServiceUnavailable, false, false, true},
	}
	for _, tt := range tests {
		t.Run(http.StatusText(tt.status), func(t *testing.T) {
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
				w.WriteHeader(tt.status)
			}))
			defer server.Close()

			resp, err := NewClient().Do(context.Background(), NewRequest("", server.URL))
			require.NoError(t, err)
			assert.Equal(t, tt.status, resp.StatusCode)
			assert.Equal(t, tt.success, resp.IsSuccess())
			assert.Equal(t, tt.clientError, resp.IsClientError())
			assert.Equal(t, tt.serverError, resp.IsServerError())
		})
	}
}

func TestClientDoCancelled(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-r.Context().Done():
		case <-time.After(2 * time.Second):
		}
	}))
	defer server.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	_, err := NewClient().Do(ctx, NewRequest(http.MethodGet, server.URL))
	assert.Error(t, err)
}

func TestClientTimeout(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-r.Context().Done():
		case <-time.After(2 * time.Second):
		}
	}))
	defer server.Close()

	client := NewClient(WithTimeout(20 * time.Millisecond))
	_, err := client.Do(context.Background(), NewRequest(http.MethodGet, server.URL))
	assert.Error(t, err)
}

func TestRequestURL(t *testing.T) {
	tests := []struct {
		name    string
		base    string
		path    string
		query   map[string]string
		want    string
		wantErr string
	}{
		{name: "host only base", base: "http://example.com", path: "/health", want: "http://example.com/health"},
		{name: "base with path", base: "http://example.com/api/", path: "/v1/items", want: "http://example.com/api/v1/items"},
		{name: "relative path", base: "http://example.com/api", path: "items", want: "http://example.com/api/items"},
		{name: "absolute path wins", base: "http://example.com", path: "https://other.test/x", want: "https://other.test/x"},
		{name: "path query kept", base: "http://example.com", path: "/search?q=a", want: "http://example.com/search?q=a"},
		{name: "query params", base: "http://example.com", path: "/items", query: map[string]string{"page": "2"}, want: "http://example.com/items?page=2"},
		{name: "no base", path: "/items", wantErr: "not absolute"},
		{name: "bad base", base: "http://[::1", path: "/x", wantErr: "invalid base URL"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := NewRequest(http.MethodGet, tt.path)
			for k, v := range tt.query {
				req.WithQueryParam(k, v)
			}

			got, err := req.URL(tt.base)
			if tt.wantErr != "" {
				require.Error(t, err)
				assert.True(t, strings.Contains(err.Error(), tt.wantErr), err.Error())
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got.String())
		})
	}
}

func TestRequestBuildDefaultsToGet(t *testing.T) {
	req, err := NewRequest("", "http://example.com/").Build(context.Background(), "")
	require.NoError(t, err)
	assert.Equal(t, http.MethodGet, req.Method)
}
