package bus

import (
	"sync"

	"github.com/danmuck/canterm/internal/canwire"
)

// DefaultQueueDepth is the receive queue bound for in-memory segments.
const DefaultQueueDepth = 16

// Loopback is an in-memory bus that delivers every sent frame back to its
// own receive queue. It stands in for a physical segment with an analyzer
// echoing traffic, and is the demo/test transport.
type Loopback struct {
	mu     sync.Mutex
	queue  []canwire.Frame
	depth  int
	closed bool
}

func NewLoopback(depth int) *Loopback {
	if depth <= 0 {
		depth = DefaultQueueDepth
	}
	return &Loopback{depth: depth}
}

func (l *Loopback) Send(f canwire.Frame) error {
	if err := f.Validate(); err != nil {
		return err
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.closed {
		return ErrBusClosed
	}
	if len(l.queue) >= l.depth {
		return ErrBusFull
	}
	l.queue = append(l.queue, f)
	return nil
}

func (l *Loopback) Poll() (canwire.Frame, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if len(l.queue) == 0 {
		return canwire.Frame{}, false
	}
	f := l.queue[0]
	l.queue = l.queue[1:]
	return f, true
}

func (l *Loopback) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.closed = true
	l.queue = nil
	return nil
}

var _ Bus = (*Loopback)(nil)
