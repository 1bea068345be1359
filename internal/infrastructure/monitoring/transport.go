package monitoring

import (
	"net/http"
	"time"
)

// RoundTripper wraps next so every round trip is recorded. A nil metrics
// collector returns next unchanged.
func RoundTripper(next http.RoundTripper, metrics *Metrics) http.RoundTripper {
	if metrics == nil {
		return next
	}
	if next == nil {
		next = http.DefaultTransport
	}
	return roundTripperFunc(func(req *http.Request) (*http.Response, error) {
		start := time.Now()

		resp, err := next.RoundTrip(req)

		status := 0
		if resp != nil {
			status = resp.StatusCode
		}
		metrics.RecordRequest(req.Method, status, time.Since(start))
		return resp, err
	})
}

type roundTripperFunc func(*http.Request) (*http.Response, error)

func (f roundTripperFunc) RoundTrip(req *http.Request) (*http.Response, error) {
	return f(req)
}
