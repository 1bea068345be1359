package session

import (
	"context"
	"crypto/tls"
	"crypto/x509"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/GriffinCanCode/netctl/internal/infrastructure/config"
	"github.com/GriffinCanCode/netctl/internal/infrastructure/monitoring"
	"github.com/GriffinCanCode/netctl/internal/providers/http/challenge"
	"github.com/GriffinCanCode/netctl/internal/shared/types"
)

type completion struct {
	resp *types.Response
	body string
	err  error
}

// recorder is a Listener that owns every task and answers challenges with
// resolve, or declines them when resolve is nil
type recorder struct {
	resolve func(ch *challenge.Challenge) challenge.Resolution

	mu         sync.Mutex
	bodies     map[types.TaskID]*strings.Builder
	done       map[types.TaskID]completion
	challenges []*challenge.Challenge
	notify     chan types.TaskID
	invalid    chan error
}

func newRecorder() *recorder {
	return &recorder{
		bodies:  make(map[types.TaskID]*strings.Builder),
		done:    make(map[types.TaskID]completion),
		notify:  make(chan types.TaskID, 64),
		invalid: make(chan error, 1),
	}
}

func (r *recorder) DidReceiveData(id types.TaskID, chunk []byte) {
	r.mu.Lock()
	defer r.mu.Unlock()
	b, ok := r.bodies[id]
	if !ok {
		b = &strings.Builder{}
		r.bodies[id] = b
	}
	b.Write(chunk)
}

func (r *recorder) DidComplete(id types.TaskID, resp *types.Response, err error) {
	r.mu.Lock()
	c := completion{resp: resp, err: err}
	if b, ok := r.bodies[id]; ok {
		c.body = b.String()
	}
	r.done[id] = c
	r.mu.Unlock()
	r.notify <- id
}

func (r *recorder) DidReceiveChallenge(_ context.Context, _ types.TaskID, ch *challenge.Challenge) (challenge.Resolution, bool) {
	r.mu.Lock()
	r.challenges = append(r.challenges, ch)
	r.mu.Unlock()
	if r.resolve == nil {
		return challenge.Resolution{}, false
	}
	return r.resolve(ch), true
}

func (r *recorder) DidBecomeInvalid(err error) {
	r.invalid <- err
}

func (r *recorder) wait(t *testing.T, id types.TaskID) completion {
	t.Helper()
	deadline := time.After(5 * time.Second)
	for {
		r.mu.Lock()
		c, ok := r.done[id]
		r.mu.Unlock()
		if ok {
			return c
		}
		select {
		case <-r.notify:
		case <-deadline:
			t.Fatalf("task %d did not complete", id)
		}
	}
}

func (r *recorder) completions() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.done)
}

func (r *recorder) seen() []*challenge.Challenge {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]*challenge.Challenge(nil), r.challenges...)
}

func testConfig() *config.Config {
	cfg := config.Default()
	cfg.Retry.Max = 0
	cfg.Session.Timeout = 5 * time.Second
	return cfg
}

func newSession(t *testing.T, cfg *config.Config, opts ...Option) *Session {
	t.Helper()
	if cfg == nil {
		cfg = testConfig()
	}
	s, err := New(cfg, opts...)
	require.NoError(t, err)
	t.Cleanup(s.Close)
	return s
}

func run(t *testing.T, s *Session, rec *recorder, method types.Method, url string) completion {
	t.Helper()
	req, err := types.NewRequest(method, url, nil)
	require.NoError(t, err)
	task, err := s.DataTask(req)
	require.NoError(t, err)
	task.Resume()
	return rec.wait(t, task.ID())
}

func TestSubscriptions(t *testing.T) {
	var subs subscriptions

	a := subs.add(newRecorder())
	b := subs.add(newRecorder())
	assert.True(t, a.Valid())
	assert.Equal(t, 2, subs.count())

	assert.True(t, subs.remove(a))
	assert.False(t, subs.remove(a), "second removal is rejected")
	assert.Equal(t, 1, subs.count())

	c := subs.add(newRecorder())
	assert.Equal(t, a.index, c.index, "freed slot is reused")
	assert.NotEqual(t, a.generation, c.generation)
	assert.False(t, subs.remove(a), "stale handle cannot remove the new occupant")

	_, ok := subs.lookup(c)
	assert.True(t, ok)
	assert.Len(t, subs.snapshot(), 2)

	assert.True(t, subs.remove(b))
	assert.True(t, subs.remove(c))
	assert.Empty(t, subs.snapshot())
	assert.False(t, subs.remove(Handle{}))
	assert.False(t, subs.remove(Handle{index: 99, generation: 1}))
}

func TestSessionStreamsBody(t *testing.T) {
	payload := strings.Repeat("x", 3*chunkSize+17)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(payload))
	}))
	defer srv.Close()

	s := newSession(t, nil)
	rec := newRecorder()
	s.Subscribe(rec)

	c := run(t, s, rec, types.MethodGet, srv.URL)
	require.NoError(t, c.err)
	assert.Equal(t, types.Status(200), c.resp.Status)
	assert.Equal(t, "application/json", c.resp.ContentType)
	assert.Equal(t, payload, c.body)
	assert.Zero(t, s.InFlight())
}

func TestSessionFansOutToEveryListener(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("hello"))
	}))
	defer srv.Close()

	s := newSession(t, nil)
	first, second, gone := newRecorder(), newRecorder(), newRecorder()
	s.Subscribe(first)
	s.Subscribe(second)
	h := s.Subscribe(gone)
	require.True(t, s.Unsubscribe(h))
	assert.False(t, s.Subscribed(h))
	assert.Equal(t, 2, s.Subscribers())

	c := run(t, s, first, types.MethodGet, srv.URL)
	require.NoError(t, c.err)
	assert.Equal(t, "hello", c.body)

	require.Eventually(t, func() bool { return second.completions() == 1 }, time.Second, 5*time.Millisecond)
	assert.Zero(t, gone.completions())
}

func TestSessionBoundsConcurrency(t *testing.T) {
	var active, peak atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		n := active.Add(1)
		for {
			p := peak.Load()
			if n <= p || peak.CompareAndSwap(p, n) {
				break
			}
		}
		time.Sleep(30 * time.Millisecond)
		active.Add(-1)
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()

	cfg := testConfig()
	cfg.Session.MaxConcurrent = 2
	s := newSession(t, cfg)
	rec := newRecorder()
	s.Subscribe(rec)

	var ids []types.TaskID
	for i := 0; i < 6; i++ {
		req, err := types.NewRequest(types.MethodGet, fmt.Sprintf("%s/%d", srv.URL, i), nil)
		require.NoError(t, err)
		task, err := s.DataTask(req)
		require.NoError(t, err)
		task.Resume()
		task.Resume()
		ids = append(ids, task.ID())
	}
	for _, id := range ids {
		c := rec.wait(t, id)
		require.NoError(t, c.err)
		assert.Equal(t, types.Status(204), c.resp.Status)
	}
	assert.LessOrEqual(t, peak.Load(), int32(2))
}

func TestSessionCancel(t *testing.T) {
	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-r.Context().Done():
		case <-release:
		}
	}))
	defer srv.Close()
	defer close(release)

	s := newSession(t, nil)
	rec := newRecorder()
	s.Subscribe(rec)

	req, err := types.NewRequest(types.MethodGet, srv.URL, nil)
	require.NoError(t, err)
	task, err := s.DataTask(req)
	require.NoError(t, err)
	task.Resume()

	time.Sleep(20 * time.Millisecond)
	assert.True(t, s.Cancel(task.ID()))

	c := rec.wait(t, task.ID())
	require.Error(t, c.err)
	assert.ErrorIs(t, c.err, context.Canceled)
	assert.Nil(t, c.resp)
	assert.False(t, s.Cancel(task.ID()), "completed tasks are forgotten")
}

func TestSessionClose(t *testing.T) {
	s, err := New(testConfig())
	require.NoError(t, err)
	rec := newRecorder()
	s.Subscribe(rec)

	req, err := types.NewRequest(types.MethodGet, "http://127.0.0.1:1", nil)
	require.NoError(t, err)
	pending, err := s.DataTask(req)
	require.NoError(t, err)

	s.Close()
	s.Close()

	select {
	case err := <-rec.invalid:
		assert.ErrorIs(t, err, ErrSessionClosed)
	case <-time.After(time.Second):
		t.Fatal("listener was not invalidated")
	}

	_, err = s.DataTask(req)
	assert.ErrorIs(t, err, ErrSessionClosed)

	pending.Resume()
	c := rec.wait(t, pending.ID())
	assert.ErrorIs(t, c.err, ErrSessionClosed)
}

func basicServer(user, password string) *httptest.Server {
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		u, p, ok := r.BasicAuth()
		if !ok || u != user || p != password {
			w.Header().Set("WWW-Authenticate", `Basic realm="test"`)
			w.WriteHeader(http.StatusUnauthorized)
			_, _ = w.Write([]byte("denied"))
			return
		}
		_, _ = w.Write([]byte("welcome"))
	}))
}

func TestSessionBasicChallenge(t *testing.T) {
	srv := basicServer("user", "pass")
	defer srv.Close()

	t.Run("credential is used", func(t *testing.T) {
		s := newSession(t, nil)
		rec := newRecorder()
		rec.resolve = func(*challenge.Challenge) challenge.Resolution {
			return challenge.Resolution{
				Disposition: challenge.UseCredential,
				Credential:  &challenge.Credential{User: "user", Password: "pass"},
			}
		}
		s.Subscribe(rec)

		c := run(t, s, rec, types.MethodGet, srv.URL)
		require.NoError(t, c.err)
		assert.Equal(t, types.Status(200), c.resp.Status)
		assert.Equal(t, "welcome", c.body, "body of the rejected attempt is not delivered")

		seen := rec.seen()
		require.Len(t, seen, 1)
		assert.Equal(t, challenge.MethodHTTPBasic, seen[0].Method)
		assert.Equal(t, "test", seen[0].Space.Realm)
		assert.Zero(t, seen[0].PreviousFailureCount)
	})

	t.Run("rejected credential counts failures", func(t *testing.T) {
		s := newSession(t, nil)
		rec := newRecorder()
		rec.resolve = func(ch *challenge.Challenge) challenge.Resolution {
			if ch.PreviousFailureCount > 0 {
				return challenge.Resolution{Disposition: challenge.Cancel}
			}
			return challenge.Resolution{
				Disposition: challenge.UseCredential,
				Credential:  &challenge.Credential{User: "user", Password: "wrong"},
			}
		}
		s.Subscribe(rec)

		c := run(t, s, rec, types.MethodGet, srv.URL)
		assert.ErrorIs(t, c.err, challenge.ErrCancelled)
		assert.Nil(t, c.resp)

		seen := rec.seen()
		require.Len(t, seen, 2)
		assert.Equal(t, 1, seen[1].PreviousFailureCount)
	})

	t.Run("unclaimed challenge delivers the 401", func(t *testing.T) {
		s := newSession(t, nil)
		rec := newRecorder()
		s.Subscribe(rec)

		c := run(t, s, rec, types.MethodGet, srv.URL)
		require.NoError(t, c.err)
		assert.Equal(t, types.Status(401), c.resp.Status)
		assert.Equal(t, "denied", c.body)
	})
}

func TestSessionServerTrust(t *testing.T) {
	srv := httptest.NewTLSServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("secure"))
	}))
	defer srv.Close()

	accept := func(*challenge.Challenge) challenge.Resolution {
		return challenge.Resolution{Disposition: challenge.UseCredential, Credential: &challenge.Credential{}}
	}

	t.Run("accepted chain", func(t *testing.T) {
		s := newSession(t, nil)
		rec := newRecorder()
		rec.resolve = accept
		s.Subscribe(rec)

		c := run(t, s, rec, types.MethodGet, srv.URL)
		require.NoError(t, c.err)
		assert.Equal(t, "secure", c.body)

		seen := rec.seen()
		require.NotEmpty(t, seen)
		assert.Equal(t, challenge.MethodServerTrust, seen[0].Method)
		require.NotNil(t, seen[0].Trust)
		assert.True(t, seen[0].Trust.Leaf().Equal(srv.Certificate()))
		assert.Equal(t, "127.0.0.1", seen[0].Space.Host)
	})

	t.Run("cancelled chain", func(t *testing.T) {
		s := newSession(t, nil)
		rec := newRecorder()
		rec.resolve = func(*challenge.Challenge) challenge.Resolution {
			return challenge.Resolution{Disposition: challenge.Cancel}
		}
		s.Subscribe(rec)

		c := run(t, s, rec, types.MethodGet, srv.URL)
		assert.ErrorIs(t, c.err, challenge.ErrCancelled)
		assert.True(t, IsPermanent(c.err))
	})

	t.Run("default handling with configured roots", func(t *testing.T) {
		pool := x509.NewCertPool()
		pool.AddCert(srv.Certificate())
		s := newSession(t, nil, WithRootCAs(pool))
		rec := newRecorder()
		s.Subscribe(rec)

		c := run(t, s, rec, types.MethodGet, srv.URL)
		require.NoError(t, c.err)
		assert.Equal(t, "secure", c.body)
	})

	t.Run("default handling rejects unknown roots", func(t *testing.T) {
		s := newSession(t, nil)
		rec := newRecorder()
		s.Subscribe(rec)

		c := run(t, s, rec, types.MethodGet, srv.URL)
		assert.ErrorIs(t, c.err, ErrTrustEvaluation)
		assert.NotErrorIs(t, c.err, challenge.ErrCancelled)
	})
}

func TestSessionClientCertificate(t *testing.T) {
	srv := httptest.NewUnstartedServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.TLS == nil || len(r.TLS.PeerCertificates) == 0 {
			w.WriteHeader(http.StatusForbidden)
			return
		}
		_, _ = w.Write([]byte("hello client"))
	}))
	srv.TLS = &tls.Config{ClientAuth: tls.RequireAnyClientCert}
	srv.StartTLS()
	defer srv.Close()

	clientCert := srv.TLS.Certificates[0]

	t.Run("presented", func(t *testing.T) {
		s := newSession(t, nil, WithClientCertificate(clientCert))
		rec := newRecorder()
		rec.resolve = func(*challenge.Challenge) challenge.Resolution {
			return challenge.Resolution{Disposition: challenge.UseCredential, Credential: &challenge.Credential{}}
		}
		s.Subscribe(rec)

		c := run(t, s, rec, types.MethodGet, srv.URL)
		require.NoError(t, c.err)
		assert.Equal(t, "hello client", c.body)

		var methods []challenge.Method
		for _, ch := range rec.seen() {
			methods = append(methods, ch.Method)
		}
		assert.Contains(t, methods, challenge.MethodClientCertificate)
	})

	t.Run("refused", func(t *testing.T) {
		s := newSession(t, nil, WithClientCertificate(clientCert))
		rec := newRecorder()
		rec.resolve = func(ch *challenge.Challenge) challenge.Resolution {
			if ch.Method == challenge.MethodClientCertificate {
				return challenge.Resolution{Disposition: challenge.Cancel}
			}
			return challenge.Resolution{Disposition: challenge.UseCredential, Credential: &challenge.Credential{}}
		}
		s.Subscribe(rec)

		c := run(t, s, rec, types.MethodGet, srv.URL)
		assert.ErrorIs(t, c.err, challenge.ErrCancelled)
	})
}

func TestIsPermanent(t *testing.T) {
	assert.True(t, IsPermanent(fmt.Errorf("dial: %w", challenge.ErrCancelled)))
	assert.True(t, IsPermanent(fmt.Errorf("%w: bad chain", ErrTrustEvaluation)))
	assert.False(t, IsPermanent(errors.New("connection reset")))
}

func TestSharedCoexistsWithDefaultMetrics(t *testing.T) {
	require.NotPanics(t, func() {
		s := Shared()
		require.NotNil(t, s)
		assert.Same(t, s, Shared())
		assert.NotNil(t, monitoring.NewMetrics())
	})
}
