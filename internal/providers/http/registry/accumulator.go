package registry

import (
	"sync"

	"github.com/GriffinCanCode/netctl/internal/shared/types"
)

// Accumulator assembles response bodies per task. Every map mutation goes
// through one lock, so concurrent transfers never lose updates to the map.
type Accumulator struct {
	mu      sync.Mutex
	buffers map[types.TaskID][]byte
}

// NewAccumulator creates an empty accumulator
func NewAccumulator() *Accumulator {
	return &Accumulator{
		buffers: make(map[types.TaskID][]byte),
	}
}

// Start creates an empty buffer for id
func (a *Accumulator) Start(id types.TaskID) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.buffers[id] = []byte{}
}

// Append adds chunk to id's buffer, creating the buffer if Start was skipped
func (a *Accumulator) Append(id types.TaskID, chunk []byte) {
	if len(chunk) == 0 {
		a.mu.Lock()
		if _, ok := a.buffers[id]; !ok {
			a.buffers[id] = []byte{}
		}
		a.mu.Unlock()
		return
	}

	a.mu.Lock()
	defer a.mu.Unlock()
	a.buffers[id] = append(a.buffers[id], chunk...)
}

// TakeAndRemove returns id's buffer and evicts it in one step
func (a *Accumulator) TakeAndRemove(id types.TaskID) ([]byte, bool) {
	a.mu.Lock()
	defer a.mu.Unlock()
	buf, ok := a.buffers[id]
	if ok {
		delete(a.buffers, id)
	}
	return buf, ok
}

// Len returns the number of open buffers
func (a *Accumulator) Len() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return len(a.buffers)
}
