package dispatch

import (
	"context"
	"errors"
	"sync"

	"go.uber.org/zap"

	"github.com/GriffinCanCode/netctl/internal/infrastructure/logging"
)

var ErrClosed = errors.New("dispatcher is closed")

// Dispatcher runs submitted functions one at a time, in submission order, on
// a single goroutine. It is the coordination context that delegate callbacks
// are delivered on.
type Dispatcher struct {
	logger *zap.Logger

	mu     sync.Mutex
	queue  []func()
	closed bool

	signal chan struct{}
	done   chan struct{}
}

// New starts a dispatcher
func New(logger *zap.Logger) *Dispatcher {
	d := &Dispatcher{
		logger: logging.OrNop(logger),
		signal: make(chan struct{}, 1),
		done:   make(chan struct{}),
	}
	go d.loop()
	return d
}

// Async enqueues fn and returns immediately. It reports false once the
// dispatcher has been closed.
func (d *Dispatcher) Async(fn func()) bool {
	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		return false
	}
	d.queue = append(d.queue, fn)
	d.mu.Unlock()

	d.wake()
	return true
}

// Sync enqueues fn and blocks until it has run or ctx is done. If ctx ends
// first, fn is skipped when its turn comes.
//
// Sync must not be called from a dispatched function.
func (d *Dispatcher) Sync(ctx context.Context, fn func()) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	finished := make(chan struct{})
	ok := d.Async(func() {
		defer close(finished)
		if ctx.Err() != nil {
			return
		}
		fn()
	})
	if !ok {
		return ErrClosed
	}

	select {
	case <-finished:
		return ctx.Err()
	case <-ctx.Done():
		return ctx.Err()
	case <-d.done:
		return ErrClosed
	}
}

// Pending returns the number of queued functions
func (d *Dispatcher) Pending() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.queue)
}

// Shutdown stops accepting work and returns a channel that is closed once
// everything already queued has run. It never blocks, so a dispatched
// function may call it.
func (d *Dispatcher) Shutdown() <-chan struct{} {
	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		return d.done
	}
	d.closed = true
	d.mu.Unlock()

	d.wake()
	return d.done
}

// Close stops accepting work, runs everything already queued and waits for
// the loop to exit. It must not be called from a dispatched function; use
// Shutdown there.
func (d *Dispatcher) Close() {
	<-d.Shutdown()
}

func (d *Dispatcher) wake() {
	select {
	case d.signal <- struct{}{}:
	default:
	}
}

func (d *Dispatcher) loop() {
	defer close(d.done)

	for range d.signal {
		for {
			d.mu.Lock()
			if len(d.queue) == 0 {
				closed := d.closed
				d.mu.Unlock()
				if closed {
					return
				}
				break
			}
			fn := d.queue[0]
			d.queue[0] = nil
			d.queue = d.queue[1:]
			d.mu.Unlock()

			d.run(fn)
		}
	}
}

func (d *Dispatcher) run(fn func()) {
	defer func() {
		if r := recover(); r != nil {
			d.logger.Error("dispatched function panicked", zap.Any("panic", r))
		}
	}()
	fn()
}
