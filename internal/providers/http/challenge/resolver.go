package challenge

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/GriffinCanCode/netctl/internal/infrastructure/logging"
	"github.com/GriffinCanCode/netctl/internal/infrastructure/monitoring"
	"github.com/GriffinCanCode/netctl/internal/shared/types"
)

// Rendezvous runs fn on the coordination context and blocks until it has
// run. dispatch.Dispatcher.Sync satisfies it.
type Rendezvous func(ctx context.Context, fn func()) error

// Callbacks are the caller capabilities a challenge may consult. A nil
// field means the caller lacks that capability.
type Callbacks struct {
	// Credential returns a user and password for req, or false to decline
	Credential func(req *types.Request) (user, password string, ok bool)
	// ProceedWithoutCredential reports whether to fall back to default
	// handling when trust evaluation fails
	ProceedWithoutCredential func(req *types.Request) bool
}

// Resolver decides how each challenge is answered. It keeps no per-call
// state; the stores it consults are safe for concurrent use.
type Resolver struct {
	store      CredentialStore
	pins       PinStore
	rendezvous Rendezvous
	timeout    time.Duration
	logger     *zap.Logger
	metrics    *monitoring.Metrics
}

// Option configures a Resolver
type Option func(*Resolver)

// WithStore sets the credential store trust decisions persist to
func WithStore(store CredentialStore) Option {
	return func(r *Resolver) { r.store = store }
}

// WithPins sets the pinned certificate source
func WithPins(pins PinStore) Option {
	return func(r *Resolver) { r.pins = pins }
}

// WithRendezvous sets how caller callbacks are scheduled
func WithRendezvous(fn Rendezvous) Option {
	return func(r *Resolver) { r.rendezvous = fn }
}

// WithTimeout bounds each rendezvous
func WithTimeout(d time.Duration) Option {
	return func(r *Resolver) { r.timeout = d }
}

// WithLogger sets the logger
func WithLogger(logger *zap.Logger) Option {
	return func(r *Resolver) { r.logger = logger }
}

// WithMetrics sets the metrics collector
func WithMetrics(m *monitoring.Metrics) Option {
	return func(r *Resolver) { r.metrics = m }
}

// NewResolver creates a resolver. Without options it uses an in-memory
// store, no pins (pinning always fails closed), and runs callbacks inline.
func NewResolver(opts ...Option) *Resolver {
	r := &Resolver{
		store:   NewMemoryStore(),
		pins:    NewMapPinStore(),
		timeout: 60 * time.Second,
	}
	for _, opt := range opts {
		opt(r)
	}
	if r.rendezvous == nil {
		r.rendezvous = inline
	}
	r.logger = logging.OrNop(r.logger).Named("challenge")
	return r
}

func inline(ctx context.Context, fn func()) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	fn()
	return nil
}

// Store returns the credential store
func (r *Resolver) Store() CredentialStore {
	return r.store
}

// Resolve decides the disposition of ch for req
func (r *Resolver) Resolve(ctx context.Context, req *types.Request, ch *Challenge, cb Callbacks) Resolution {
	res := r.resolve(ctx, req, ch, cb)

	r.metrics.RecordChallenge(string(ch.Method), res.Disposition.String())
	r.logger.Debug("challenge resolved",
		logging.Request(req),
		zap.Stringer("space", ch.Space),
		zap.Int("previous_failures", ch.PreviousFailureCount),
		zap.Stringer("disposition", res.Disposition))
	return res
}

func (r *Resolver) resolve(ctx context.Context, req *types.Request, ch *Challenge, cb Callbacks) Resolution {
	if ch == nil {
		return performDefault()
	}
	if ch.PreviousFailureCount > 0 {
		return cancel()
	}

	switch ch.Method {
	case MethodHTTPBasic, MethodHTTPDigest:
		return r.resolvePassword(ctx, req, cb)
	case MethodServerTrust, MethodClientCertificate:
		return r.resolveTrust(ctx, req, ch, cb)
	default:
		return performDefault()
	}
}

func (r *Resolver) resolvePassword(ctx context.Context, req *types.Request, cb Callbacks) Resolution {
	if cb.Credential == nil {
		return performDefault()
	}

	var (
		user, password string
		ok             bool
	)
	err := r.ask(ctx, func() {
		user, password, ok = cb.Credential(req)
	})
	if err != nil {
		r.logger.Warn("credential rendezvous failed", logging.Request(req), zap.Error(err))
		return cancel()
	}
	if !ok {
		return cancel()
	}
	return useCredential(&Credential{User: user, Password: password})
}

func (r *Resolver) resolveTrust(ctx context.Context, req *types.Request, ch *Challenge, cb Callbacks) Resolution {
	if cred, ok := r.trustCredential(ch); ok {
		return useCredential(cred)
	}

	if cb.ProceedWithoutCredential == nil {
		return cancel()
	}

	var proceed bool
	err := r.ask(ctx, func() {
		proceed = cb.ProceedWithoutCredential(req)
	})
	if err != nil {
		r.logger.Warn("trust rendezvous failed", logging.Request(req), zap.Error(err))
		return cancel()
	}
	if proceed {
		return performDefault()
	}
	return cancel()
}

// trustCredential returns a stored decision for the presented leaf, or
// evaluates the chain against the host's pin and persists the result
func (r *Resolver) trustCredential(ch *Challenge) (*Credential, bool) {
	leaf := ch.Trust.Leaf()
	if leaf == nil {
		return nil, false
	}
	fingerprint := Fingerprint(leaf)

	if cred, ok := r.store.Credential(ch.Space); ok {
		if cred.Fingerprint == fingerprint {
			return cred, true
		}
		r.logger.Info("stored trust no longer matches presented certificate",
			zap.Stringer("space", ch.Space))
	}

	pin, err := r.pins.Pin(ch.Space.Host)
	if err == nil {
		err = EvaluatePinned(ch.Trust, pin)
	}
	if err != nil {
		r.logger.Debug("pinned evaluation rejected chain",
			zap.Stringer("space", ch.Space), zap.Error(err))
		return nil, false
	}

	cred := &Credential{Fingerprint: fingerprint}
	r.store.SetCredential(ch.Space, cred)
	return cred, true
}

func (r *Resolver) ask(ctx context.Context, fn func()) error {
	if r.timeout > 0 {
		var cancelFn context.CancelFunc
		ctx, cancelFn = context.WithTimeout(ctx, r.timeout)
		defer cancelFn()
	}
	return r.rendezvous(ctx, fn)
}
