package types

import (
	"bytes"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"github.com/GriffinCanCode/netctl/internal/shared/id"
)

// Method is an HTTP request method
type Method string

const (
	MethodGet    Method = http.MethodGet
	MethodPost   Method = http.MethodPost
	MethodPut    Method = http.MethodPut
	MethodPatch  Method = http.MethodPatch
	MethodDelete Method = http.MethodDelete
)

// TaskID identifies one in-flight request for the lifetime of that request only
type TaskID uint64

// Request is the caller's description of a single exchange. It is treated as
// immutable once submitted; the engine keeps its own clone.
type Request struct {
	ID     id.RequestID
	Method Method
	URL    string
	Header http.Header
	Body   []byte
}

// NewRequest validates the URL and builds a request with an empty header set
func NewRequest(method Method, rawURL string, body []byte) (*Request, error) {
	if method == "" {
		method = MethodGet
	}

	parsed, err := url.Parse(rawURL)
	if err != nil {
		return nil, fmt.Errorf("invalid request URL: %w", err)
	}
	if parsed.Scheme != "http" && parsed.Scheme != "https" {
		return nil, fmt.Errorf("unsupported URL scheme %q", parsed.Scheme)
	}
	if parsed.Host == "" {
		return nil, fmt.Errorf("request URL %q has no host", rawURL)
	}

	return &Request{
		ID:     id.NewRequestID(),
		Method: Method(strings.ToUpper(string(method))),
		URL:    parsed.String(),
		Header: make(http.Header),
		Body:   body,
	}, nil
}

// SetHeader sets a header value, replacing existing values
func (r *Request) SetHeader(key, value string) *Request {
	if r.Header == nil {
		r.Header = make(http.Header)
	}
	r.Header.Set(key, value)
	return r
}

// Host returns the request URL's host without port
func (r *Request) Host() string {
	parsed, err := url.Parse(r.URL)
	if err != nil {
		return ""
	}
	return parsed.Hostname()
}

// Clone returns a deep copy so later caller mutation cannot leak in
func (r *Request) Clone() *Request {
	if r == nil {
		return nil
	}
	clone := *r
	clone.Header = r.Header.Clone()
	if clone.Header == nil {
		clone.Header = make(http.Header)
	}
	if r.Body != nil {
		clone.Body = bytes.Clone(r.Body)
	}
	if clone.ID == "" {
		clone.ID = id.NewRequestID()
	}
	return &clone
}
