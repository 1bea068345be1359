package session

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"sync/atomic"

	"github.com/go-resty/resty/v2"
	"go.uber.org/zap"

	"github.com/GriffinCanCode/netctl/internal/infrastructure/logging"
	"github.com/GriffinCanCode/netctl/internal/providers/http/challenge"
	"github.com/GriffinCanCode/netctl/internal/shared/types"
)

// chunkSize bounds one DidReceiveData delivery
const chunkSize = 32 * 1024

// Task is one request on a session
type Task struct {
	id      types.TaskID
	req     *types.Request
	session *Session
	ctx     context.Context
	cancel  context.CancelFunc
	resumed atomic.Bool

	trustFailures atomic.Int32
}

// ID returns the task id, valid until the task completes
func (t *Task) ID() types.TaskID {
	return t.id
}

// Request returns the request the task was created for
func (t *Task) Request() *types.Request {
	return t.req
}

// Resume starts the task. Calls after the first are ignored.
func (t *Task) Resume() {
	if !t.resumed.CompareAndSwap(false, true) {
		return
	}
	t.session.start(t)
}

// Cancel aborts the task
func (t *Task) Cancel() {
	t.cancel()
}

type taskKey struct{}

func withTask(ctx context.Context, t *Task) context.Context {
	return context.WithValue(ctx, taskKey{}, t)
}

func taskFrom(ctx context.Context) *Task {
	t, _ := ctx.Value(taskKey{}).(*Task)
	return t
}

// transfer performs the exchange, answering HTTP authentication challenges
// until the server stops asking or a resolution ends the loop, then streams
// the final body.
func (s *Session) transfer(t *Task) (*types.Response, error) {
	var authorization string
	for failures := 0; ; failures++ {
		raw, err := s.roundTrip(t, authorization)
		if err != nil {
			return nil, err
		}

		ch, ok := challenge.FromResponse(t.req, raw, failures)
		if !ok {
			return s.stream(t, raw)
		}

		res := s.raise(t, ch)
		switch res.Disposition {
		case challenge.Cancel:
			discard(raw)
			return nil, fmt.Errorf("%s: %w", ch.Space, challenge.ErrCancelled)
		case challenge.UseCredential:
			header, err := ch.Authorization(t.req, res.Credential)
			if err != nil {
				s.logger.Warn("cannot answer challenge, delivering response",
					logging.Task(t.id), zap.Stringer("space", ch.Space), zap.Error(err))
				return s.stream(t, raw)
			}
			discard(raw)
			authorization = header
		default:
			return s.stream(t, raw)
		}
	}
}

func (s *Session) roundTrip(t *Task, authorization string) (*http.Response, error) {
	ctx := withTask(t.ctx, t)

	r, err := s.client.Request(ctx)
	if err != nil {
		return nil, err
	}
	r.SetDoNotParseResponse(true).
		SetHeaderMultiValues(map[string][]string(t.req.Header))
	if authorization != "" {
		r.SetHeader("Authorization", authorization)
	}
	if len(t.req.Body) > 0 {
		r.SetBody(t.req.Body)
	}

	resp, err := s.client.Execute(t.req.URL, func() (*resty.Response, error) {
		return r.Execute(string(t.req.Method), t.req.URL)
	})
	if err != nil {
		if resp != nil && resp.RawResponse != nil {
			discard(resp.RawResponse)
		}
		return nil, err
	}
	if resp == nil || resp.RawResponse == nil {
		return nil, errors.New("transport returned no response")
	}
	return resp.RawResponse, nil
}

// stream delivers raw's body in chunks and returns the response metadata
func (s *Session) stream(t *Task, raw *http.Response) (*types.Response, error) {
	defer raw.Body.Close()

	resp := types.NewResponse(raw)
	buf := make([]byte, chunkSize)
	total := 0
	for {
		n, err := raw.Body.Read(buf)
		if n > 0 {
			total += n
			s.emitData(t, bytes.Clone(buf[:n]))
		}
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("reading response body: %w", err)
		}
	}

	s.metrics.RecordResponseSize(string(t.req.Method), total)
	return resp, nil
}

func discard(raw *http.Response) {
	if raw == nil || raw.Body == nil {
		return
	}
	_, _ = io.Copy(io.Discard, io.LimitReader(raw.Body, 64*1024))
	_ = raw.Body.Close()
}
