package spanz

import (
	"sync"

	"github.com/eapache/queue/v2"
)

// DefaultMaxSpanRecords is the buffer capacity used when none is configured.
const DefaultMaxSpanRecords = 1000

// Buffer holds finished spans between flushes. It is a bounded FIFO: when it
// is full the oldest span is evicted to make room and counted as dropped.
// Safe for concurrent use by multiple goroutines.
type Buffer struct {
	spans    *queue.Queue[*RawSpan]
	capacity int
	dropped  uint64
	mu       sync.Mutex
}

// NewBuffer creates a buffer holding at most capacity spans. A capacity below
// one uses DefaultMaxSpanRecords.
func NewBuffer(capacity int) *Buffer {
	if capacity < 1 {
		capacity = DefaultMaxSpanRecords
	}
	return &Buffer{
		spans:    queue.New[*RawSpan](),
		capacity: capacity,
	}
}

// Add appends a span, evicting the oldest one when the buffer is full. It
// reports whether an eviction happened.
func (b *Buffer) Add(span *RawSpan) (evicted bool) {
	if span == nil {
		return false
	}
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.spans.Length() >= b.capacity {
		b.spans.Remove()
		b.dropped++
		evicted = true
	}
	b.spans.Add(span)
	return evicted
}

// Drain removes and returns every buffered span in finish order.
func (b *Buffer) Drain() []*RawSpan {
	b.mu.Lock()
	defer b.mu.Unlock()

	n := b.spans.Length()
	if n == 0 {
		return nil
	}
	out := make([]*RawSpan, n)
	for i := range out {
		out[i] = b.spans.Remove()
	}
	return out
}

// CountDropped adds n spans that were lost outside the buffer, such as spans
// in a rejected report, to the dropped counter.
func (b *Buffer) CountDropped(n int) {
	if n <= 0 {
		return
	}
	b.mu.Lock()
	b.dropped += uint64(n)
	b.mu.Unlock()
}

// Len returns the number of buffered spans.
func (b *Buffer) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.spans.Length()
}

// Cap returns the buffer capacity.
func (b *Buffer) Cap() int { return b.capacity }

// Dropped returns the total number of spans dropped since creation or the
// last Reset.
func (b *Buffer) Dropped() uint64 {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.dropped
}

// Reset discards buffered spans and clears the dropped counter.
func (b *Buffer) Reset() {
	b.mu.Lock()
	defer b.mu.Unlock()
	for b.spans.Length() > 0 {
		b.spans.Remove()
	}
	b.dropped = 0
}
