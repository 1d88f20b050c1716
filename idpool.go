package spanz

import (
	"sync"
)

// IDPool hands out pre-generated IDs to amortize the cost of reading the OS
// entropy source on the span-start path.
type IDPool struct {
	factory func() ID
	ids     chan ID
	stopCh  chan struct{}
	done    chan struct{}
	mu      sync.Mutex
	closed  bool
}

// NewIDPool creates a pool holding up to capacity IDs. A nil factory uses
// GenerateID.
func NewIDPool(capacity int, factory func() ID) *IDPool {
	if factory == nil {
		factory = GenerateID
	}
	if capacity < 1 {
		capacity = 1
	}
	pool := &IDPool{
		ids:     make(chan ID, capacity),
		factory: factory,
		stopCh:  make(chan struct{}),
		done:    make(chan struct{}),
	}
	go pool.refill()
	return pool
}

// Get returns a pooled ID, or a freshly generated one when the pool is empty.
func (p *IDPool) Get() ID {
	select {
	case id := <-p.ids:
		return id
	default:
		// Burst load drained the pool.
		return p.factory()
	}
}

func (p *IDPool) refill() {
	defer close(p.done)
	for {
		select {
		case <-p.stopCh:
			return
		case p.ids <- p.factory():
		}
	}
}

// Close stops the refill goroutine and waits for it to exit. Get keeps working
// after Close by generating IDs directly.
func (p *IDPool) Close() {
	p.mu.Lock()
	if !p.closed {
		close(p.stopCh)
		p.closed = true
	}
	p.mu.Unlock()
	<-p.done
}
