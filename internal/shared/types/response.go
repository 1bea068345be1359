package types

import "net/http"

// Response is the transport-level outcome of a completed exchange, minus
// the body, which is assembled separately.
type Response struct {
	Status      Status
	Header      http.Header
	ContentType string
	URL         string
}

// NewResponse captures the parts of an http.Response the engine needs
func NewResponse(resp *http.Response) *Response {
	if resp == nil {
		return nil
	}
	out := &Response{
		Status:      Status(resp.StatusCode),
		Header:      resp.Header.Clone(),
		ContentType: resp.Header.Get("Content-Type"),
	}
	if resp.Request != nil && resp.Request.URL != nil {
		out.URL = resp.Request.URL.String()
	}
	return out
}

// HasStatus reports whether a status code was obtained
func (r *Response) HasStatus() bool {
	return r != nil && r.Status > 0
}

// MimeType parses the declared content type
func (r *Response) MimeType() (MimeType, bool) {
	if r == nil {
		return "", false
	}
	return ParseMimeType(r.ContentType)
}
