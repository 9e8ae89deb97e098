package spsc

import (
	"sync/atomic"
)

// A fixed-capacity single-producer single-consumer ring buffer.
//
// Exactly one goroutine may write (TryWrite, Free) and exactly one
// goroutine may read (TryRead, Len). Under that contract all operations
// are lock-free and wait-free: the writer and reader each own one of the
// two atomic cursors and only ever load the other.
//
// There are no blocking variants. A caller that needs to wait for space
// or data should retry after a short sleep, deciding for itself how much
// latency it is willing to trade for CPU.
type Ring[T any] struct {
	buf []T

	// Monotonically increasing cursors, reduced modulo len(buf) on access.
	// readPos is advanced only by the reader, writePos only by the writer.
	readPos  atomic.Uint64
	writePos atomic.Uint64
}

// Create a new ring holding at most capacity elements.
// A capacity below 1 is clamped to 1.
func NewRing[T any](capacity int) *Ring[T] {
	if capacity < 1 {
		capacity = 1
	}
	return &Ring[T]{
		buf: make([]T, capacity),
	}
}

// The fixed capacity of this ring.
func (r *Ring[T]) Cap() int {
	return len(r.buf)
}

// The number of elements currently available to read.
//
// Exact when called from the reader. When called from elsewhere the
// value may already be stale, but it never exceeds the true count plus
// in-flight writes.
func (r *Ring[T]) Len() int {
	return int(r.writePos.Load() - r.readPos.Load())
}

// The number of elements that can currently be written without loss.
// Exact when called from the writer.
func (r *Ring[T]) Free() int {
	return len(r.buf) - r.Len()
}

// Copy as many elements of items as fit into the ring, in order.
// Returns the number of elements written, possibly zero, never blocking.
//
// Must only be called from the single writer goroutine.
func (r *Ring[T]) TryWrite(items []T) int {
	write := r.writePos.Load()
	free := len(r.buf) - int(write-r.readPos.Load())
	n := min(len(items), free)
	if n == 0 {
		return 0
	}

	start := int(write % uint64(len(r.buf)))
	copied := copy(r.buf[start:], items[:n])
	if copied < n {
		// Wrapped around the end of the backing slice.
		copy(r.buf, items[copied:n])
	}

	r.writePos.Store(write + uint64(n))
	return n
}

// Copy up to len(dst) available elements into dst, in FIFO order.
// Returns the number of elements read, possibly zero, never blocking.
//
// Must only be called from the single reader goroutine.
func (r *Ring[T]) TryRead(dst []T) int {
	read := r.readPos.Load()
	available := int(r.writePos.Load() - read)
	n := min(len(dst), available)
	if n == 0 {
		return 0
	}

	start := int(read % uint64(len(r.buf)))
	copied := copy(dst[:n], r.buf[start:])
	if copied < n {
		copy(dst[copied:n], r.buf)
	}

	r.readPos.Store(read + uint64(n))
	return n
}
