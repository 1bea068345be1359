package session

import (
	"context"
	"sync"

	"github.com/GriffinCanCode/netctl/internal/providers/http/challenge"
	"github.com/GriffinCanCode/netctl/internal/shared/types"
)

// Listener receives every low-level event of the session. Implementations
// filter by task id; events for tasks they do not own must be ignored.
type Listener interface {
	// DidReceiveData delivers one body chunk. Chunks for a task arrive in
	// read order and before its completion. The slice must not be modified.
	DidReceiveData(id types.TaskID, chunk []byte)
	// DidComplete is the terminal event of a task. resp is nil when err is set.
	DidComplete(id types.TaskID, resp *types.Response, err error)
	// DidReceiveChallenge asks the listener to resolve ch. It returns false
	// when the listener does not own the task.
	DidReceiveChallenge(ctx context.Context, id types.TaskID, ch *challenge.Challenge) (challenge.Resolution, bool)
	// DidBecomeInvalid reports that the session has been closed
	DidBecomeInvalid(err error)
}

// Handle identifies one subscription. A handle whose slot has since been
// reused no longer matches and is rejected.
type Handle struct {
	index      int
	generation uint64
}

// Valid reports whether h was ever issued
func (h Handle) Valid() bool {
	return h.generation != 0
}

type slot struct {
	listener   Listener
	generation uint64
	live       bool
}

// subscriptions is a slot table of non-owning listener references
type subscriptions struct {
	mu    sync.RWMutex
	slots []slot
	free  []int
	live  int
}

func (s *subscriptions) add(l Listener) Handle {
	s.mu.Lock()
	defer s.mu.Unlock()

	var index int
	if n := len(s.free); n > 0 {
		index = s.free[n-1]
		s.free = s.free[:n-1]
	} else {
		s.slots = append(s.slots, slot{})
		index = len(s.slots) - 1
	}

	sl := &s.slots[index]
	sl.generation++
	sl.listener = l
	sl.live = true
	s.live++

	return Handle{index: index, generation: sl.generation}
}

func (s *subscriptions) remove(h Handle) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if h.index < 0 || h.index >= len(s.slots) {
		return false
	}
	sl := &s.slots[h.index]
	if !sl.live || sl.generation != h.generation {
		return false
	}

	sl.listener = nil
	sl.live = false
	s.free = append(s.free, h.index)
	s.live--
	return true
}

func (s *subscriptions) lookup(h Handle) (Listener, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if h.index < 0 || h.index >= len(s.slots) {
		return nil, false
	}
	sl := s.slots[h.index]
	if !sl.live || sl.generation != h.generation {
		return nil, false
	}
	return sl.listener, true
}

// snapshot returns the live listeners in slot order
func (s *subscriptions) snapshot() []Listener {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]Listener, 0, s.live)
	for _, sl := range s.slots {
		if sl.live {
			out = append(out, sl.listener)
		}
	}
	return out
}

func (s *subscriptions) count() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.live
}
