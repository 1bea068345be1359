package client

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/GriffinCanCode/netctl/internal/infrastructure/monitoring"
	"github.com/GriffinCanCode/netctl/internal/infrastructure/resilience"
)

var errPermanent = errors.New("permanent")

func fastOptions() Options {
	return Options{
		Retry:   RetryConfig{MaxRetries: 2, MinWait: time.Millisecond, MaxWait: 5 * time.Millisecond},
		Breaker: BreakerConfig{ConsecutiveFailures: 3, Timeout: time.Minute},
	}
}

func TestClientCircuitBreakerIntegration(t *testing.T) {
	const target = "https://api.example.com/v1/items"

	t.Run("breakers start closed", func(t *testing.T) {
		client := NewClient(fastOptions())

		require.NotNil(t, client.Breakers)
		assert.Equal(t, resilience.StateClosed, client.BreakerState(target))
		assert.Equal(t, uint32(0), client.BreakerCounts(target).Requests)
	})

	t.Run("execute passes results through", func(t *testing.T) {
		client := NewClient(fastOptions())

		resp, err := client.Execute(target, func() (*resty.Response, error) {
			return nil, nil
		})
		require.NoError(t, err)
		assert.Nil(t, resp)

		testErr := errors.New("test error")
		_, err = client.Execute(target, func() (*resty.Response, error) {
			return nil, testErr
		})
		assert.Equal(t, testErr, err)
		assert.Equal(t, uint32(1), client.BreakerCounts(target).TotalSuccesses)
		assert.Equal(t, uint32(1), client.BreakerCounts(target).TotalFailures)
	})

	t.Run("breaker opens per host", func(t *testing.T) {
		client := NewClient(fastOptions())

		for i := 0; i < 3; i++ {
			_, _ = client.Execute(target, func() (*resty.Response, error) {
				return nil, errors.New("failure")
			})
		}
		assert.Equal(t, resilience.StateOpen, client.BreakerState(target))
		assert.Equal(t, resilience.StateClosed, client.BreakerState("https://other.example.com/"))

		_, err := client.Execute(target, func() (*resty.Response, error) {
			return nil, nil
		})
		assert.ErrorIs(t, err, resilience.ErrCircuitOpen)
		assert.Contains(t, err.Error(), "api.example.com unavailable")
	})

	t.Run("permanent errors do not trip the breaker", func(t *testing.T) {
		opts := fastOptions()
		opts.IsPermanent = func(err error) bool { return errors.Is(err, errPermanent) }
		client := NewClient(opts)

		for i := 0; i < 5; i++ {
			_, _ = client.Execute(target, func() (*resty.Response, error) {
				return nil, errPermanent
			})
		}
		assert.Equal(t, resilience.StateClosed, client.BreakerState(target))
	})
}

func TestClientRateLimiting(t *testing.T) {
	t.Run("rate limited requests are issued", func(t *testing.T) {
		client := NewClient(fastOptions())
		client.SetRateLimit(10)

		req, err := client.Request(context.Background())
		require.NoError(t, err)
		assert.NotNil(t, req)
	})

	t.Run("context cancellation prevents request", func(t *testing.T) {
		client := NewClient(fastOptions())
		client.SetRateLimit(1)

		ctx, cancel := context.WithCancel(context.Background())
		cancel()

		req, err := client.Request(ctx)
		assert.Error(t, err)
		assert.Nil(t, req)
	})
}

func TestClientRetries(t *testing.T) {
	t.Run("server errors are retried and the last response returned", func(t *testing.T) {
		var hits atomic.Int32
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			hits.Add(1)
			w.WriteHeader(http.StatusServiceUnavailable)
		}))
		defer server.Close()

		client := NewClient(fastOptions())
		req, err := client.Request(context.Background())
		require.NoError(t, err)

		resp, err := req.Get(server.URL)
		require.NoError(t, err)
		assert.Equal(t, http.StatusServiceUnavailable, resp.StatusCode())
		assert.Equal(t, int32(3), hits.Load())
	})

	t.Run("server errors on non-idempotent methods are not retried", func(t *testing.T) {
		var hits atomic.Int32
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			hits.Add(1)
			w.WriteHeader(http.StatusInternalServerError)
		}))
		defer server.Close()

		client := NewClient(fastOptions())
		for _, method := range []string{http.MethodPost, http.MethodPatch} {
			hits.Store(0)
			req, err := client.Request(context.Background())
			require.NoError(t, err)

			resp, err := req.SetBody(`{"name":"foo"}`).Execute(method, server.URL)
			require.NoError(t, err)
			assert.Equal(t, http.StatusInternalServerError, resp.StatusCode(), method)
			assert.Equal(t, int32(1), hits.Load(), method)
		}
	})

	t.Run("idempotent methods", func(t *testing.T) {
		for _, method := range []string{"GET", "HEAD", "PUT", "DELETE", "OPTIONS", "TRACE"} {
			assert.True(t, idempotent(method), method)
		}
		for _, method := range []string{"POST", "PATCH", "CONNECT"} {
			assert.False(t, idempotent(method), method)
		}
	})

	t.Run("permanent transport errors are not retried", func(t *testing.T) {
		var attempts atomic.Int32
		opts := fastOptions()
		opts.Transport = roundTripFunc(func(*http.Request) (*http.Response, error) {
			attempts.Add(1)
			return nil, errPermanent
		})
		opts.IsPermanent = func(err error) bool { return errors.Is(err, errPermanent) }
		client := NewClient(opts)

		req, err := client.Request(context.Background())
		require.NoError(t, err)

		_, err = req.Get("https://api.example.com/")
		assert.ErrorIs(t, err, errPermanent)
		assert.Equal(t, int32(1), attempts.Load())
	})
}

func TestClientConfiguration(t *testing.T) {
	t.Run("sends user agent and records metrics", func(t *testing.T) {
		var agent atomic.Value
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			agent.Store(r.UserAgent())
			w.WriteHeader(http.StatusOK)
		}))
		defer server.Close()

		metrics := monitoring.NewMetricsWith(prometheus.NewRegistry())
		opts := fastOptions()
		opts.UserAgent = "netctl-test/2.0"
		opts.Metrics = metrics
		client := NewClient(opts)

		req, err := client.Request(context.Background())
		require.NoError(t, err)
		resp, err := req.Get(server.URL)
		require.NoError(t, err)

		assert.Equal(t, http.StatusOK, resp.StatusCode())
		assert.Equal(t, "netctl-test/2.0", agent.Load())
		assert.Equal(t, 1.0, testutil.ToFloat64(metrics.RequestsTotal.WithLabelValues("GET", "200")))
	})

	t.Run("timeout can be configured", func(t *testing.T) {
		client := NewClient(fastOptions())
		client.SetTimeout(10 * time.Second)

		req, err := client.Request(context.Background())
		require.NoError(t, err)
		assert.NotNil(t, req)
	})
}

type roundTripFunc func(*http.Request) (*http.Response, error)

func (f roundTripFunc) RoundTrip(req *http.Request) (*http.Response, error) {
	return f(req)
}
