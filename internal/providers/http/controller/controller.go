package controller

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/gabriel-vasile/mimetype"
	"go.uber.org/zap"

	"github.com/GriffinCanCode/netctl/internal/infrastructure/dispatch"
	"github.com/GriffinCanCode/netctl/internal/infrastructure/logging"
	"github.com/GriffinCanCode/netctl/internal/infrastructure/monitoring"
	"github.com/GriffinCanCode/netctl/internal/providers/http/challenge"
	"github.com/GriffinCanCode/netctl/internal/providers/http/jsonapi"
	"github.com/GriffinCanCode/netctl/internal/providers/http/registry"
	"github.com/GriffinCanCode/netctl/internal/providers/http/session"
	"github.com/GriffinCanCode/netctl/internal/providers/http/validation"
	"github.com/GriffinCanCode/netctl/internal/shared/types"
)

// Controller submits requests to a shared session and routes each task's
// events back to the delegate that submitted it.
type Controller struct {
	session *session.Session
	handle  session.Handle
	profile *validation.Profile

	registry *registry.Registry[*binding]
	buffers  *registry.Accumulator

	dispatcher     *dispatch.Dispatcher
	ownsDispatcher bool
	resolver       *challenge.Resolver

	logger  *zap.Logger
	metrics *monitoring.Metrics

	onActivity    func(inFlight int)
	onInvalidated func(err error)

	inFlight  atomic.Int64
	callbacks atomic.Int32
	closed    atomic.Bool
	closeOnce sync.Once
}

// Option configures a Controller
type Option func(*Controller)

// WithLogger sets the controller logger
func WithLogger(logger *zap.Logger) Option {
	return func(c *Controller) { c.logger = logger }
}

// WithMetrics sets the metrics collector
func WithMetrics(m *monitoring.Metrics) Option {
	return func(c *Controller) { c.metrics = m }
}

// WithDispatcher delivers callbacks on d instead of a dispatcher owned by
// the controller. The caller closes d.
func WithDispatcher(d *dispatch.Dispatcher) Option {
	return func(c *Controller) { c.dispatcher = d }
}

// WithResolver replaces the challenge resolver
func WithResolver(r *challenge.Resolver) Option {
	return func(c *Controller) { c.resolver = r }
}

// WithActivityHandler is called on the dispatcher whenever the number of
// in-flight requests changes
func WithActivityHandler(fn func(inFlight int)) Option {
	return func(c *Controller) { c.onActivity = fn }
}

// WithInvalidationHandler is called on the dispatcher when the session closes
func WithInvalidationHandler(fn func(err error)) Option {
	return func(c *Controller) { c.onInvalidated = fn }
}

// WithProfile validates every response against p
func WithProfile(p validation.Profile) Option {
	return func(c *Controller) { c.profile = &p }
}

// New creates a controller on s, or on the shared session when s is nil.
// Responses are not validated unless a profile is given.
func New(s *session.Session, opts ...Option) *Controller {
	if s == nil {
		s = session.Shared()
	}
	c := &Controller{
		session:  s,
		registry: registry.New[*binding](),
		buffers:  registry.NewAccumulator(),
	}
	for _, opt := range opts {
		opt(c)
	}

	c.logger = logging.OrNop(c.logger).Named("controller")
	if c.metrics == nil {
		c.metrics = s.Metrics()
	}
	if c.dispatcher == nil {
		c.dispatcher = dispatch.New(c.logger)
		c.ownsDispatcher = true
	}
	if c.resolver == nil {
		c.resolver = c.defaultResolver()
	}

	c.handle = s.Subscribe(c)
	return c
}

// NewJSON creates a controller that validates against the JSON profile and
// offers parsed documents to delegates that accept them
func NewJSON(s *session.Session, opts ...Option) *Controller {
	return New(s, append([]Option{WithProfile(validation.JSON)}, opts...)...)
}

// NewImage creates a controller that validates against the PNG image profile
func NewImage(s *session.Session, opts ...Option) *Controller {
	return New(s, append([]Option{WithProfile(validation.Image)}, opts...)...)
}

func (c *Controller) defaultResolver() *challenge.Resolver {
	cfg := c.session.Config()
	opts := []challenge.Option{
		challenge.WithRendezvous(c.rendezvous),
		challenge.WithTimeout(cfg.Challenge.Timeout),
		challenge.WithLogger(c.logger),
		challenge.WithMetrics(c.metrics),
	}
	if cfg.TLS.PinDir != "" || cfg.TLS.PinManifest != "" {
		pins, err := challenge.NewDirPinStore(cfg.TLS.PinDir, cfg.TLS.PinManifest)
		if err != nil {
			c.logger.Warn("pinned certificates unavailable, pinning will fail closed", zap.Error(err))
		} else {
			opts = append(opts, challenge.WithPins(pins))
		}
	}
	return challenge.NewResolver(opts...)
}

// Resolver returns the challenge resolver, whose store holds accepted
// trust decisions
func (c *Controller) Resolver() *challenge.Resolver {
	return c.resolver
}

// Submit starts req and returns its task id. req is cloned, so later changes
// by the caller have no effect. Submit never waits on the network.
func (c *Controller) Submit(req *types.Request, delegate Delegate) (types.TaskID, error) {
	if c.closed.Load() {
		return 0, ErrClosed
	}
	if req == nil {
		return 0, errors.New("nil request")
	}
	if delegate == nil {
		return 0, errors.New("nil delegate")
	}

	clone := req.Clone()
	task, err := c.session.DataTask(clone)
	if err != nil {
		return 0, fmt.Errorf("creating task: %w", err)
	}

	id := task.ID()
	c.registry.Add(id, clone, &binding{delegate: delegate, caps: capabilitiesOf(delegate)})
	c.buffers.Start(id)
	c.activity(1)

	c.logger.Debug("request submitted", logging.Task(id), logging.Request(clone))
	task.Resume()
	return id, nil
}

// Cancel aborts a request submitted here. Its delegate receives a
// transport failure.
func (c *Controller) Cancel(id types.TaskID) bool {
	if !c.registry.Owns(id) {
		return false
	}
	return c.session.Cancel(id)
}

// InFlight returns the number of requests awaiting completion
func (c *Controller) InFlight() int {
	return c.registry.Len()
}

// Close unsubscribes from the session and fails every outstanding request.
// Callbacks already queued are delivered before Close returns, except when
// Close is called from a callback: then they run after that callback
// returns.
func (c *Controller) Close() {
	c.closeOnce.Do(func() {
		c.closed.Store(true)
		c.session.Unsubscribe(c.handle)

		for _, id := range c.registry.IDs() {
			c.session.Cancel(id)
			entry, ok := c.registry.Remove(id)
			if !ok {
				continue
			}
			c.buffers.TakeAndRemove(id)
			c.activity(-1)
			c.deliver(id, entry, nil, nil, fmt.Errorf("%w: %w", ErrClosed, context.Canceled))
		}

		if c.ownsDispatcher {
			done := c.dispatcher.Shutdown()
			if c.callbacks.Load() == 0 {
				<-done
			}
		}
	})
}

// DidReceiveData implements session.Listener
func (c *Controller) DidReceiveData(id types.TaskID, chunk []byte) {
	if !c.registry.Owns(id) {
		return
	}
	c.buffers.Append(id, chunk)
}

// DidComplete implements session.Listener
func (c *Controller) DidComplete(id types.TaskID, resp *types.Response, err error) {
	entry, ok := c.registry.Remove(id)
	if !ok {
		return
	}
	body, _ := c.buffers.TakeAndRemove(id)
	c.activity(-1)
	c.deliver(id, entry, resp, body, err)
}

// DidReceiveChallenge implements session.Listener
func (c *Controller) DidReceiveChallenge(ctx context.Context, id types.TaskID, ch *challenge.Challenge) (challenge.Resolution, bool) {
	entry, ok := c.registry.Lookup(id)
	if !ok {
		return challenge.Resolution{}, false
	}
	caps := entry.Delegate.caps
	res := c.resolver.Resolve(ctx, entry.Request, ch, challenge.Callbacks{
		Credential:               caps.credential,
		ProceedWithoutCredential: caps.trust,
	})
	return res, true
}

// DidBecomeInvalid implements session.Listener
func (c *Controller) DidBecomeInvalid(err error) {
	c.logger.Info("session invalidated", zap.Error(err))
	if c.onInvalidated != nil {
		c.dispatch(func() { c.onInvalidated(err) })
	}
}

func (c *Controller) activity(delta int64) {
	n := int(c.inFlight.Add(delta))
	if c.onActivity != nil {
		c.dispatch(func() { c.onActivity(n) })
	}
}

// deliver decides the outcome on the calling worker and schedules the
// delegate callback on the dispatcher
func (c *Controller) deliver(id types.TaskID, entry registry.Entry[*binding], resp *types.Response, body []byte, err error) {
	callback := c.outcome(id, entry, resp, body, err)
	if !c.dispatch(callback) {
		c.logger.Warn("dispatcher closed, dropping outcome", logging.Task(id), logging.Request(entry.Request))
	}
}

// dispatch queues fn on the dispatcher. While fn runs, callbacks counts it so
// Close knows not to wait on the loop it is running on.
func (c *Controller) dispatch(fn func()) bool {
	return c.dispatcher.Async(c.callback(fn))
}

func (c *Controller) rendezvous(ctx context.Context, fn func()) error {
	return c.dispatcher.Sync(ctx, c.callback(fn))
}

func (c *Controller) callback(fn func()) func() {
	return func() {
		c.callbacks.Add(1)
		defer c.callbacks.Add(-1)
		fn()
	}
}

func (c *Controller) outcome(id types.TaskID, entry registry.Entry[*binding], resp *types.Response, body []byte, err error) func() {
	req := entry.Request
	delegate := entry.Delegate.delegate

	if err != nil {
		failure := transportError(err)
		c.logger.Debug("request failed", logging.Task(id), logging.Request(req),
			zap.Stringer("kind", failure.Kind), zap.Error(err))
		return func() { delegate.RequestDidFail(req, failure, nil) }
	}

	if resp != nil && resp.ContentType == "" && len(body) > 0 {
		c.logger.Debug("response has no content type",
			logging.Task(id), zap.String("detected", mimetype.Detect(body).String()))
	}

	if c.profile != nil {
		if verr := validation.ValidateRequest(*c.profile, req, resp); verr != nil {
			failure := c.validationError(verr, resp, body)
			c.metrics.RecordValidationFailure(failure.Kind.String())
			c.logger.Debug("response rejected", logging.Task(id), logging.Request(req),
				logging.Status(failure.Status), zap.Error(verr))
			return func() { delegate.RequestDidFail(req, failure, failure.Status) }
		}
	}

	if c.profile != nil && c.profile.Kind == validation.KindJSON {
		if onDocument := entry.Delegate.caps.document; onDocument != nil {
			if doc := jsonapi.Parse(body); doc != nil {
				return func() { onDocument(req, doc) }
			}
		}
	}
	return func() { delegate.RequestDidComplete(req, body) }
}

func (c *Controller) validationError(err error, resp *types.Response, body []byte) *Error {
	failure := &Error{Kind: kindOf(err), Err: err}
	if resp.HasStatus() {
		failure.Status = types.StatusPtr(resp.Status)
	}
	failure.Title, failure.Detail = errorMessage(body)
	return failure
}
