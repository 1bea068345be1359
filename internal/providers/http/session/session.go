package session

import (
	"context"
	"crypto/tls"
	"crypto/x509"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
	"golang.org/x/net/http2"
	"golang.org/x/sync/semaphore"

	"github.com/GriffinCanCode/netctl/internal/infrastructure/config"
	"github.com/GriffinCanCode/netctl/internal/infrastructure/logging"
	"github.com/GriffinCanCode/netctl/internal/infrastructure/monitoring"
	"github.com/GriffinCanCode/netctl/internal/providers/http/challenge"
	"github.com/GriffinCanCode/netctl/internal/providers/http/client"
	"github.com/GriffinCanCode/netctl/internal/shared/id"
	"github.com/GriffinCanCode/netctl/internal/shared/types"
)

// ErrSessionClosed is reported once a session has been invalidated
var ErrSessionClosed = errors.New("session is closed")

// ErrTrustEvaluation wraps a failed default verification of a server chain
var ErrTrustEvaluation = errors.New("server trust evaluation failed")

// Session is the shared transport. It runs tasks on a bounded set of
// workers and fans every event out to all subscribed listeners.
type Session struct {
	id      id.SessionID
	cfg     *config.Config
	client  *client.Client
	base    *http.Transport
	sem     *semaphore.Weighted
	logger  *zap.Logger
	metrics *monitoring.Metrics

	rootCAs    *x509.CertPool
	clientCert *tls.Certificate

	subs subscriptions

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu     sync.Mutex
	tasks  map[types.TaskID]*Task
	closed bool
	nextID atomic.Uint64
}

// Option configures a Session
type Option func(*Session)

// WithLogger sets the session logger
func WithLogger(logger *zap.Logger) Option {
	return func(s *Session) { s.logger = logger }
}

// WithMetrics sets the metrics sink shared with the client stack
func WithMetrics(m *monitoring.Metrics) Option {
	return func(s *Session) { s.metrics = m }
}

// WithRootCAs replaces the roots used for default server trust handling
func WithRootCAs(pool *x509.CertPool) Option {
	return func(s *Session) { s.rootCAs = pool }
}

// WithClientCertificate sets the certificate offered when a server asks for one
func WithClientCertificate(cert tls.Certificate) Option {
	return func(s *Session) { s.clientCert = &cert }
}

var (
	sharedOnce sync.Once
	shared     *Session
)

// Shared returns the process-wide session, creating it from the environment
// on first use. It is never closed.
func Shared() *Session {
	sharedOnce.Do(func() {
		cfg := config.LoadOrDefault()
		logger, err := logging.New(logging.Config{
			Level:       cfg.Logging.Level,
			Development: cfg.Logging.Development,
		})
		if err != nil {
			logger = logging.NewDefault()
		}
		log := logger.Component("session")

		s, err := New(cfg, WithLogger(log), WithMetrics(monitoring.NewMetrics()))
		if err != nil {
			log.Warn("falling back to default session configuration", zap.Error(err))
			s, _ = New(config.Default(), WithLogger(log))
		}
		shared = s
	})
	return shared
}

// New creates a session from cfg
func New(cfg *config.Config, opts ...Option) (*Session, error) {
	if cfg == nil {
		cfg = config.Default()
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	ctx, cancel := context.WithCancel(context.Background())
	s := &Session{
		id:     id.NewSessionID(),
		cfg:    cfg,
		sem:    semaphore.NewWeighted(int64(cfg.Session.MaxConcurrent)),
		tasks:  make(map[types.TaskID]*Task),
		ctx:    ctx,
		cancel: cancel,
	}
	for _, opt := range opts {
		opt(s)
	}
	s.logger = logging.OrNop(s.logger).With(zap.String("session", s.id.String()))

	if err := s.loadCertificates(); err != nil {
		cancel()
		return nil, err
	}

	base, err := s.newTransport()
	if err != nil {
		cancel()
		return nil, err
	}
	s.base = base

	s.client = client.NewClient(client.Options{
		Transport: base,
		Timeout:   cfg.Session.Timeout,
		UserAgent: cfg.Session.UserAgent,
		Retry: client.RetryConfig{
			MaxRetries: cfg.Retry.Max,
			MinWait:    cfg.Retry.WaitMin,
			MaxWait:    cfg.Retry.WaitMax,
		},
		Breaker: client.BreakerConfig{
			ConsecutiveFailures: cfg.Breaker.ConsecutiveFailures,
			Timeout:             cfg.Breaker.Timeout,
		},
		RateLimit:   cfg.RateLimit.RequestsPerSecond,
		Burst:       cfg.RateLimit.Burst,
		IsPermanent: IsPermanent,
		Logger:      s.logger.Named("client"),
		Metrics:     s.metrics,
	})

	s.logger.Debug("session created",
		zap.Int("max_concurrent", cfg.Session.MaxConcurrent),
		zap.Duration("timeout", cfg.Session.Timeout))
	return s, nil
}

// IsPermanent reports transport errors that must not be retried: a
// cancelled challenge or a chain that failed default evaluation.
func IsPermanent(err error) bool {
	return errors.Is(err, challenge.ErrCancelled) || errors.Is(err, ErrTrustEvaluation)
}

func (s *Session) loadCertificates() error {
	tlsCfg := s.cfg.TLS
	if s.rootCAs == nil && tlsCfg.CAFile != "" {
		data, err := os.ReadFile(tlsCfg.CAFile)
		if err != nil {
			return fmt.Errorf("reading CA file: %w", err)
		}
		pool := x509.NewCertPool()
		if !pool.AppendCertsFromPEM(data) {
			return fmt.Errorf("CA file %s contains no certificates", tlsCfg.CAFile)
		}
		s.rootCAs = pool
	}
	if s.clientCert == nil && tlsCfg.ClientCertFile != "" {
		cert, err := tls.LoadX509KeyPair(tlsCfg.ClientCertFile, tlsCfg.ClientKeyFile)
		if err != nil {
			return fmt.Errorf("loading client certificate: %w", err)
		}
		s.clientCert = &cert
	}
	return nil
}

func (s *Session) newTransport() (*http.Transport, error) {
	base := &http.Transport{
		Proxy: http.ProxyFromEnvironment,
		DialContext: (&net.Dialer{
			Timeout:   30 * time.Second,
			KeepAlive: 30 * time.Second,
		}).DialContext,
		MaxIdleConns:          100,
		MaxIdleConnsPerHost:   s.cfg.Session.MaxConcurrent,
		IdleConnTimeout:       90 * time.Second,
		TLSHandshakeTimeout:   10 * time.Second,
		ExpectContinueTimeout: 1 * time.Second,
		TLSClientConfig:       &tls.Config{MinVersion: tls.VersionTLS12},
	}
	if _, err := http2.ConfigureTransports(base); err != nil {
		return nil, fmt.Errorf("configuring http2: %w", err)
	}
	base.DialTLSContext = s.dialTLS
	return base, nil
}

// ID returns the session's identifier
func (s *Session) ID() id.SessionID {
	return s.id
}

// Config returns the configuration the session was built from
func (s *Session) Config() *config.Config {
	return s.cfg
}

// Client returns the session's client stack
func (s *Session) Client() *client.Client {
	return s.client
}

// Metrics returns the session's metrics sink, which may be nil
func (s *Session) Metrics() *monitoring.Metrics {
	return s.metrics
}

// Subscribe registers l for all session events. The session does not own l;
// callers must Unsubscribe before l goes away.
func (s *Session) Subscribe(l Listener) Handle {
	h := s.subs.add(l)
	s.metrics.SetSubscriptions(s.subs.count())
	return h
}

// Unsubscribe removes a subscription. Stale or unknown handles return false.
func (s *Session) Unsubscribe(h Handle) bool {
	ok := s.subs.remove(h)
	if ok {
		s.metrics.SetSubscriptions(s.subs.count())
	}
	return ok
}

// Subscribed reports whether h still refers to a live subscription
func (s *Session) Subscribed(h Handle) bool {
	_, ok := s.subs.lookup(h)
	return ok
}

// Subscribers returns the number of live subscriptions
func (s *Session) Subscribers() int {
	return s.subs.count()
}

// DataTask creates a suspended task for req. The task starts on Resume.
func (s *Session) DataTask(req *types.Request) (*Task, error) {
	if req == nil {
		return nil, errors.New("nil request")
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil, ErrSessionClosed
	}

	ctx, cancel := context.WithCancel(s.ctx)
	t := &Task{
		id:      types.TaskID(s.nextID.Add(1)),
		req:     req,
		session: s,
		ctx:     ctx,
		cancel:  cancel,
	}
	s.tasks[t.id] = t
	return t, nil
}

// Cancel aborts a task. Its completion is still delivered, carrying the
// cancellation error. Unknown ids are ignored.
func (s *Session) Cancel(id types.TaskID) bool {
	s.mu.Lock()
	t, ok := s.tasks[id]
	s.mu.Unlock()
	if !ok {
		return false
	}
	t.cancel()
	return true
}

// InFlight returns the number of tasks created and not yet completed
func (s *Session) InFlight() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.tasks)
}

// Close cancels outstanding tasks, waits for their completions and then
// tells every listener the session is invalid. Close must not be called
// from a listener callback.
func (s *Session) Close() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true
	s.mu.Unlock()

	s.cancel()
	s.wg.Wait()
	s.base.CloseIdleConnections()

	for _, l := range s.subs.snapshot() {
		l.DidBecomeInvalid(ErrSessionClosed)
	}
	s.logger.Debug("session closed")
}

// start launches t's worker unless the session has closed
func (s *Session) start(t *Task) {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		go s.complete(t, nil, ErrSessionClosed)
		return
	}
	s.wg.Add(1)
	s.mu.Unlock()

	go s.run(t)
}

func (s *Session) run(t *Task) {
	defer s.wg.Done()

	if err := s.sem.Acquire(t.ctx, 1); err != nil {
		s.complete(t, nil, fmt.Errorf("waiting for a worker: %w", err))
		return
	}
	defer s.sem.Release(1)

	s.metrics.IncTasksInFlight()
	defer s.metrics.DecTasksInFlight()

	s.logger.Debug("task started", logging.Task(t.id), logging.Request(t.req))
	resp, err := s.transfer(t)
	s.complete(t, resp, err)
}

func (s *Session) complete(t *Task, resp *types.Response, err error) {
	s.mu.Lock()
	delete(s.tasks, t.id)
	s.mu.Unlock()
	t.cancel()

	if err != nil {
		s.logger.Debug("task failed", logging.Task(t.id), zap.Error(err))
	} else {
		s.logger.Debug("task finished", logging.Task(t.id), logging.Status(&resp.Status))
	}

	for _, l := range s.subs.snapshot() {
		l.DidComplete(t.id, resp, err)
	}
}

func (s *Session) emitData(t *Task, chunk []byte) {
	for _, l := range s.subs.snapshot() {
		l.DidReceiveData(t.id, chunk)
	}
}

// raise offers ch to listeners in subscription order until one claims the
// task. Unclaimed challenges get default handling.
func (s *Session) raise(t *Task, ch *challenge.Challenge) challenge.Resolution {
	if t == nil {
		return challenge.Resolution{Disposition: challenge.PerformDefaultHandling}
	}
	for _, l := range s.subs.snapshot() {
		if res, ok := l.DidReceiveChallenge(t.ctx, t.id, ch); ok {
			return res
		}
	}
	s.logger.Debug("challenge unclaimed", logging.Task(t.id), zap.Stringer("space", ch.Space))
	return challenge.Resolution{Disposition: challenge.PerformDefaultHandling}
}
