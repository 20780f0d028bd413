// Package intake implements the lock-free, double-buffered producer intake
// path: two fixed-capacity slot buffers and one atomically swapped "active"
// pointer, generalizing a CAS-reserved byte buffer from raw bytes to typed
// *model.Log slots.
package intake

import (
	"sync/atomic"

	"github.com/neehar-mavuduru/logengine/model"
)

// DefaultCapacity is the number of Log slots preallocated per buffer. At the
// adaptive pacer's worst case ~5s drain latency, this bounds burst ingestion
// well past any realistic single-process log rate; see Queue.Add for the
// (intentionally rare) overflow behavior.
const DefaultCapacity = 1 << 16

// buffer is one half of the double-buffer pair: a preallocated slot array
// with an atomically reserved write offset, filled via a CAS-retry
// reservation loop holding typed pointers instead of bytes.
type buffer struct {
	slots    []atomic.Pointer[model.Log]
	offset   atomic.Int64
	capacity int64
}

func newBuffer(capacity int) *buffer {
	return &buffer{
		slots:    make([]atomic.Pointer[model.Log], capacity),
		capacity: int64(capacity),
	}
}

// enqueue reserves the next slot via a CAS retry loop and stores log there.
// It reports false if the buffer is already at capacity.
func (b *buffer) enqueue(log *model.Log) bool {
	for {
		cur := b.offset.Load()
		if cur >= b.capacity {
			return false
		}
		if b.offset.CompareAndSwap(cur, cur+1) {
			log.SetEnqueueSeq(uint64(cur))
			b.slots[cur].Store(log)
			return true
		}
	}
}

// len reports how many slots are currently reserved (may include slots
// whose store hasn't landed yet under a concurrent enqueue).
func (b *buffer) len() int {
	n := b.offset.Load()
	if n > b.capacity {
		n = b.capacity
	}
	return int(n)
}

// drain returns every log currently present; reset then clears those slots
// so the buffer can be reused once it is swapped back to active. A producer that
// reserved a slot but has not yet completed its Store may race this call;
// such a straggling write either lands inside this drain or, if it lands a
// moment later, simply becomes the first entry of this buffer's next life,
// picked up by the next flush.
func (b *buffer) drain() []*model.Log {
	n := b.len()
	out := make([]*model.Log, 0, n)
	for i := int64(0); i < int64(n); i++ {
		if v := b.slots[i].Load(); v != nil {
			out = append(out, v)
		}
	}
	return out
}

// reset clears drained slots and rewinds the offset, preparing the buffer
// for its next stint as the active buffer.
func (b *buffer) reset() {
	n := b.len()
	for i := int64(0); i < int64(n); i++ {
		b.slots[i].Store(nil)
	}
	b.offset.Store(0)
}

// Queue is the double-buffered intake queue: two buffers, one atomic
// "active" pointer, and a swap operation reserved for the flush worker.
type Queue struct {
	a, b   *buffer
	active atomic.Pointer[buffer]
}

// New creates a Queue with two buffers of the given per-buffer capacity.
func New(capacity int) *Queue {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	q := &Queue{a: newBuffer(capacity), b: newBuffer(capacity)}
	q.active.Store(q.a)
	return q
}

// Add enqueues log into whichever buffer is active at the moment of the
// atomic load. It reports false only if that buffer is saturated at
// capacity — a condition the adaptive pacer's bounded drain latency is
// designed to avoid in ordinary operation.
func (q *Queue) Add(log *model.Log) bool {
	return q.active.Load().enqueue(log)
}

// Swap atomically exchanges the active buffer and returns the previously
// active one as the drain target. Only the flush worker may call this.
func (q *Queue) Swap() *Buffer {
	for {
		cur := q.active.Load()
		next := q.b
		if cur == q.b {
			next = q.a
		}
		if q.active.CompareAndSwap(cur, next) {
			return &Buffer{buf: cur}
		}
	}
}

// BacklogLen reports the number of entries in the currently active buffer,
// the "n" the adaptive pacer polls.
func (q *Queue) BacklogLen() int {
	return q.active.Load().len()
}

// Buffer is the drain-target handle returned by Swap. Its methods are meant
// to be called exactly once per swap, by the flush worker only.
type Buffer struct {
	buf *buffer
}

// Drain returns every log the buffer holds and clears it for reuse.
func (b *Buffer) Drain() []*model.Log {
	logs := b.buf.drain()
	b.buf.reset()
	return logs
}

// Len reports how many entries are currently in the buffer, without
// draining it.
func (b *Buffer) Len() int {
	return b.buf.len()
}
