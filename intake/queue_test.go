package intake

import (
	"sync"
	"testing"

	"github.com/neehar-mavuduru/logengine/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestQueueAddAndSwapDrain(t *testing.T) {
	q := New(16)

	for i := 0; i < 5; i++ {
		ok := q.Add(model.NewLog(model.Info, "msg {0}", int64(i)))
		require.True(t, ok)
	}
	assert.Equal(t, 5, q.BacklogLen())

	drained := q.Swap()
	logs := drained.Drain()
	assert.Len(t, logs, 5)

	// After swap, the other buffer is active and empty.
	assert.Equal(t, 0, q.BacklogLen())
}

func TestQueueSwapAlternatesBuffers(t *testing.T) {
	q := New(16)
	require.True(t, q.Add(model.NewLog(model.Info, "a", 1)))
	first := q.Swap()
	require.True(t, q.Add(model.NewLog(model.Info, "b", 2)))
	second := q.Swap()

	assert.Len(t, first.Drain(), 1)
	assert.Len(t, second.Drain(), 1)
}

func TestQueueSwapRestoresCapacityAfterOverflow(t *testing.T) {
	q := New(4)
	for i := 0; i < 4; i++ {
		require.True(t, q.Add(model.NewLog(model.Info, "x", int64(i))))
	}
	// Buffer is now at capacity; a fifth add fails until swapped.
	assert.False(t, q.Add(model.NewLog(model.Info, "overflow", 5)))

	drained := q.Swap()
	assert.Len(t, drained.Drain(), 4)

	// The freshly active buffer (the other one) accepts writes again.
	assert.True(t, q.Add(model.NewLog(model.Info, "after-swap", 6)))
}

func TestQueueConcurrentProducers(t *testing.T) {
	q := New(10000)
	var wg sync.WaitGroup
	producers := 50
	perProducer := 100

	wg.Add(producers)
	for p := 0; p < producers; p++ {
		go func() {
			defer wg.Done()
			for i := 0; i < perProducer; i++ {
				q.Add(model.NewLog(model.Info, "concurrent", int64(i)))
			}
		}()
	}
	wg.Wait()

	drained := q.Swap()
	logs := drained.Drain()
	assert.Len(t, logs, producers*perProducer)
}
