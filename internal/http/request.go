package http

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"
)

// Request represents an HTTP request without a body.
type Request struct {
	Method      string
	Path        string
	QueryParams url.Values
	Headers     map[string]string
}

// NewRequest creates a new HTTP request.
func NewRequest(method, path string) *Request {
	return &Request{
		Method:      method,
		Path:        path,
		QueryParams: make(url.Values),
		Headers:     make(map[string]string),
	}
}

// WithHeader adds a header to the request.
func (r *Request) WithHeader(key, value string) *Request {
	r.Headers[key] = value
	return r
}

// WithQueryParam adds a query parameter to the request.
func (r *Request) WithQueryParam(key, value string) *Request {
	r.QueryParams.Add(key, value)
	return r
}

// URL resolves the request against baseURL. An absolute Path ignores the
// base URL.
func (r *Request) URL(baseURL string) (*url.URL, error) {
	pathURL, err := url.Parse(r.Path)
	if err != nil {
		return nil, fmt.Errorf("invalid path %q: %w", r.Path, err)
	}

	var reqURL *url.URL
	if pathURL.IsAbs() || baseURL == "" {
		reqURL = pathURL
	} else {
		reqURL, err = url.Parse(baseURL)
		if err != nil {
			return nil, fmt.Errorf("invalid base URL %q: %w", baseURL, err)
		}
		if reqURL.Path == "" {
			reqURL.Path = "/" + strings.TrimLeft(pathURL.Path, "/")
		} else {
			reqURL.Path = strings.TrimRight(reqURL.Path, "/") + "/" + strings.TrimLeft(pathURL.Path, "/")
		}
		reqURL.RawQuery = pathURL.RawQuery
	}

	if len(r.QueryParams) > 0 {
		query := reqURL.Query()
		for key, values := range r.QueryParams {
			for _, value := range values {
				query.Add(key, value)
			}
		}
		reqURL.RawQuery = query.Encode()
	}

	if !reqURL.IsAbs() {
		return nil, fmt.Errorf("request URL %q is not absolute", reqURL.String())
	}
	return reqURL, nil
}

// Build constructs an http.Request from the Request.
func (r *Request) Build(ctx context.Context, baseURL string) (*http.Request, error) {
	reqURL, err := r.URL(baseURL)
	if err != nil {
		return nil, err
	}

	method := r.Method
	if method == "" {
		method = http.MethodGet
	}

	req, err := http.NewRequestWithContext(ctx, method, reqURL.String(), nil)
	if err != nil {
		return nil, err
	}

	for key, value := range r.Headers {
		req.Header.Set(key, value)
	}
	return req, nil
}
