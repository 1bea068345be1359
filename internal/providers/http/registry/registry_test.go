package registry

import (
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/GriffinCanCode/netctl/internal/shared/types"
)

func newRequest(t *testing.T) *types.Request {
	t.Helper()
	req, err := types.NewRequest(types.MethodGet, "https://api.example.com/widgets", nil)
	require.NoError(t, err)
	return req
}

func TestRegistryLifecycle(t *testing.T) {
	reg := New[string]()
	req := newRequest(t)

	reg.Add(7, req, "delegate")
	assert.True(t, reg.Owns(7))
	assert.Equal(t, 1, reg.Len())

	entry, ok := reg.Lookup(7)
	require.True(t, ok)
	assert.Same(t, req, entry.Request)
	assert.Equal(t, "delegate", entry.Delegate)

	_, ok = reg.Lookup(8)
	assert.False(t, ok)

	removed, ok := reg.Remove(7)
	require.True(t, ok)
	assert.Equal(t, "delegate", removed.Delegate)

	_, ok = reg.Remove(7)
	assert.False(t, ok)
	assert.Equal(t, 0, reg.Len())
	assert.False(t, reg.Owns(7))
}

func TestRegistryConcurrentAccess(t *testing.T) {
	reg := New[int]()
	req := newRequest(t)

	var wg sync.WaitGroup
	for i := 0; i < 64; i++ {
		wg.Add(1)
		go func(id types.TaskID) {
			defer wg.Done()
			reg.Add(id, req, int(id))
			entry, ok := reg.Lookup(id)
			assert.True(t, ok)
			assert.Equal(t, int(id), entry.Delegate)
			reg.Remove(id)
			reg.Remove(id)
		}(types.TaskID(i))
	}
	wg.Wait()

	assert.Equal(t, 0, reg.Len())
	assert.Empty(t, reg.IDs())
}

func TestAccumulatorAssemblesInOrder(t *testing.T) {
	acc := NewAccumulator()
	acc.Start(1)

	for i := 0; i < 5; i++ {
		acc.Append(1, []byte(fmt.Sprintf("%d", i)))
	}

	body, ok := acc.TakeAndRemove(1)
	require.True(t, ok)
	assert.Equal(t, "01234", string(body))

	_, ok = acc.TakeAndRemove(1)
	assert.False(t, ok)
	assert.Equal(t, 0, acc.Len())
}

func TestAccumulatorCreatesBufferOnFirstWrite(t *testing.T) {
	acc := NewAccumulator()

	acc.Append(3, []byte("late"))
	body, ok := acc.TakeAndRemove(3)
	require.True(t, ok)
	assert.Equal(t, "late", string(body))

	acc.Append(4, nil)
	body, ok = acc.TakeAndRemove(4)
	require.True(t, ok)
	assert.Empty(t, body)
}

func TestAccumulatorStartedButEmpty(t *testing.T) {
	acc := NewAccumulator()
	acc.Start(9)

	body, ok := acc.TakeAndRemove(9)
	require.True(t, ok)
	assert.NotNil(t, body)
	assert.Len(t, body, 0)
}

func TestAccumulatorConcurrentTasks(t *testing.T) {
	acc := NewAccumulator()

	var wg sync.WaitGroup
	for i := 0; i < 32; i++ {
		wg.Add(1)
		go func(id types.TaskID) {
			defer wg.Done()
			acc.Start(id)
			for j := 0; j < 100; j++ {
				acc.Append(id, []byte{'x'})
			}
		}(types.TaskID(i))
	}
	wg.Wait()

	require.Equal(t, 32, acc.Len())
	for i := 0; i < 32; i++ {
		body, ok := acc.TakeAndRemove(types.TaskID(i))
		require.True(t, ok)
		assert.Len(t, body, 100)
	}
}
