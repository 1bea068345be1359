package client

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"sync"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/hashicorp/go-retryablehttp"
	"github.com/klauspost/compress/gzhttp"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/GriffinCanCode/netctl/internal/infrastructure/logging"
	"github.com/GriffinCanCode/netctl/internal/infrastructure/monitoring"
	"github.com/GriffinCanCode/netctl/internal/infrastructure/resilience"
)

// Client wraps resty with rate limiting, per-host circuit breakers and
// socket-level retries
type Client struct {
	Resty    *resty.Client
	Limiter  *rate.Limiter
	Breakers *resilience.Group
	Mu       sync.RWMutex

	logger *zap.Logger
}

// RetryConfig defines retry behavior
type RetryConfig struct {
	MaxRetries int
	MinWait    time.Duration
	MaxWait    time.Duration
}

// BreakerConfig defines when a host's breaker trips
type BreakerConfig struct {
	ConsecutiveFailures uint32
	Timeout             time.Duration
}

// Options configures a Client. Zero values fall back to defaults.
type Options struct {
	// Transport is the base round tripper; the session passes its TLS aware
	// http.Transport here.
	Transport http.RoundTripper
	Timeout   time.Duration
	UserAgent string
	Retry     RetryConfig
	Breaker   BreakerConfig
	// RateLimit is in requests per second; zero means unlimited.
	RateLimit float64
	Burst     int
	// IsPermanent reports errors that are neither retried nor counted
	// against a host's breaker.
	IsPermanent func(error) bool
	Logger      *zap.Logger
	Metrics     *monitoring.Metrics
}

// DefaultOptions returns the options NewClient falls back to
func DefaultOptions() Options {
	return Options{
		Timeout:   30 * time.Second,
		UserAgent: "netctl/1.0",
		Retry: RetryConfig{
			MaxRetries: 2,
			MinWait:    250 * time.Millisecond,
			MaxWait:    5 * time.Second,
		},
		Breaker: BreakerConfig{
			ConsecutiveFailures: 10,
			Timeout:             30 * time.Second,
		},
		Burst: 10,
	}
}

// NewClient creates the production client stack:
//
//	resty -> retryablehttp -> metrics -> gzhttp -> base transport
func NewClient(opts Options) *Client {
	defaults := DefaultOptions()
	if opts.Timeout <= 0 {
		opts.Timeout = defaults.Timeout
	}
	if opts.UserAgent == "" {
		opts.UserAgent = defaults.UserAgent
	}
	if opts.Retry.MaxRetries < 0 {
		opts.Retry.MaxRetries = 0
	}
	if opts.Retry.MinWait <= 0 {
		opts.Retry.MinWait = defaults.Retry.MinWait
	}
	if opts.Retry.MaxWait < opts.Retry.MinWait {
		opts.Retry.MaxWait = opts.Retry.MinWait
	}
	if opts.Breaker.ConsecutiveFailures == 0 {
		opts.Breaker.ConsecutiveFailures = defaults.Breaker.ConsecutiveFailures
	}
	if opts.Breaker.Timeout <= 0 {
		opts.Breaker.Timeout = defaults.Breaker.Timeout
	}
	if opts.Burst <= 0 {
		opts.Burst = defaults.Burst
	}
	if opts.IsPermanent == nil {
		opts.IsPermanent = func(error) bool { return false }
	}
	logger := logging.OrNop(opts.Logger)

	base := opts.Transport
	if base == nil {
		base = http.DefaultTransport
	}
	transport := monitoring.RoundTripper(gzhttp.Transport(base), opts.Metrics)

	retryClient := retryablehttp.NewClient()
	retryClient.HTTPClient = &http.Client{Transport: transport}
	retryClient.RetryMax = opts.Retry.MaxRetries
	retryClient.RetryWaitMin = opts.Retry.MinWait
	retryClient.RetryWaitMax = opts.Retry.MaxWait
	retryClient.Logger = NewRetryLogger(logger)
	retryClient.ErrorHandler = retryablehttp.PassthroughErrorHandler
	retryClient.CheckRetry = checkRetry(opts.IsPermanent)

	// Retries happen below resty so a resumed task is never replayed by
	// two layers.
	restyClient := resty.New()
	restyClient.
		SetTransport(&retryablehttp.RoundTripper{Client: retryClient}).
		SetTimeout(opts.Timeout).
		SetRetryCount(0).
		SetLogger(logger.Sugar()).
		SetHeader("User-Agent", opts.UserAgent)

	breakers := resilience.NewGroup("host", resilience.Settings{
		MaxRequests: 1,
		Interval:    60 * time.Second,
		Timeout:     opts.Breaker.Timeout,
		ReadyToTrip: func(counts resilience.Counts) bool {
			return counts.ConsecutiveFailures >= opts.Breaker.ConsecutiveFailures
		},
		IsSuccessful: func(err error) bool {
			return opts.IsPermanent(err) || errors.Is(err, context.Canceled)
		},
		OnStateChange: func(name string, from, to resilience.State) {
			logger.Warn("circuit breaker state changed",
				zap.String("breaker", name),
				zap.Stringer("from", from),
				zap.Stringer("to", to))
		},
	})

	c := &Client{
		Resty:    restyClient,
		Breakers: breakers,
		logger:   logger,
	}
	c.Limiter = newLimiter(opts.RateLimit, opts.Burst)
	return c
}

func newLimiter(rps float64, burst int) *rate.Limiter {
	if rps <= 0 {
		return rate.NewLimiter(rate.Inf, 0)
	}
	if burst <= 0 {
		burst = int(rps)
		if burst < 1 {
			burst = 1
		}
	}
	return rate.NewLimiter(rate.Limit(rps), burst)
}

func checkRetry(permanent func(error) bool) retryablehttp.CheckRetry {
	return func(ctx context.Context, resp *http.Response, err error) (bool, error) {
		if err != nil && permanent(err) {
			return false, err
		}
		// A response means the server saw the request; only idempotent
		// requests may be sent again because of its status.
		if err == nil && resp != nil && resp.Request != nil && !idempotent(resp.Request.Method) {
			return false, nil
		}
		return retryablehttp.DefaultRetryPolicy(ctx, resp, err)
	}
}

func idempotent(method string) bool {
	switch method {
	case http.MethodGet, http.MethodHead, http.MethodPut, http.MethodDelete, http.MethodOptions, http.MethodTrace:
		return true
	default:
		return false
	}
}

// SetHeader adds default header
func (c *Client) SetHeader(key, value string) {
	c.Mu.Lock()
	defer c.Mu.Unlock()
	c.Resty.SetHeader(key, value)
}

// SetTimeout configures request timeout
func (c *Client) SetTimeout(duration time.Duration) {
	c.Mu.Lock()
	defer c.Mu.Unlock()
	c.Resty.SetTimeout(duration)
}

// SetRateLimit configures rate limiting (requests per second)
func (c *Client) SetRateLimit(rps float64) {
	c.Mu.Lock()
	defer c.Mu.Unlock()
	c.Limiter = newLimiter(rps, int(rps))
}

// Request creates a new request after waiting on the rate limiter
func (c *Client) Request(ctx context.Context) (*resty.Request, error) {
	c.Mu.RLock()
	limiter := c.Limiter
	c.Mu.RUnlock()

	if err := limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("rate limit error: %w", err)
	}

	c.Mu.RLock()
	defer c.Mu.RUnlock()
	return c.Resty.R().SetContext(ctx), nil
}

// Execute runs fn under the circuit breaker for rawURL's host
func (c *Client) Execute(rawURL string, fn func() (*resty.Response, error)) (*resty.Response, error) {
	host := hostOf(rawURL)

	resp, err := resilience.Do(c.Breakers.Get(host), fn)
	if errors.Is(err, resilience.ErrCircuitOpen) || errors.Is(err, resilience.ErrTooManyRequests) {
		c.logger.Debug("request short-circuited", zap.String("host", host))
		return nil, fmt.Errorf("%s unavailable: %w", host, err)
	}
	return resp, err
}

// BreakerState returns the circuit breaker state for rawURL's host
func (c *Client) BreakerState(rawURL string) resilience.State {
	return c.Breakers.Get(hostOf(rawURL)).State()
}

// BreakerCounts returns circuit breaker statistics for rawURL's host
func (c *Client) BreakerCounts(rawURL string) resilience.Counts {
	return c.Breakers.Get(hostOf(rawURL)).Counts()
}

func hostOf(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil || u.Host == "" {
		return rawURL
	}
	return u.Host
}
