package alert

import (
	"sync"
	"sync/atomic"
)

// Async decouples emitters from a slow sink (SQLite, audit file).
//
// Emit never blocks: when the queue is full the alert is dropped and
// counted. The detector emits while holding its lock, so a stalled disk
// must not stall key delivery.
type Async struct {
	next    Sink
	ch      chan Alert
	done    chan struct{}
	mu      sync.RWMutex // guards closed and the close of ch
	closed  bool
	dropped atomic.Uint64
}

// NewAsync starts a goroutine draining a queue of the given size into next.
func NewAsync(next Sink, queueSize int) *Async {
	if queueSize < 1 {
		queueSize = 1
	}
	a := &Async{
		next: next,
		ch:   make(chan Alert, queueSize),
		done: make(chan struct{}),
	}
	go a.drain()
	return a
}

func (a *Async) drain() {
	defer close(a.done)
	for al := range a.ch {
		a.next.Emit(al)
	}
}

// Emit queues al for delivery.
func (a *Async) Emit(al Alert) {
	a.mu.RLock()
	defer a.mu.RUnlock()

	if a.closed {
		a.dropped.Add(1)
		return
	}
	select {
	case a.ch <- al:
	default:
		a.dropped.Add(1)
	}
}

// Dropped returns the number of alerts lost to a full or closed queue.
func (a *Async) Dropped() uint64 {
	return a.dropped.Load()
}

// Close stops accepting alerts and waits for the queue to drain.
// It is safe to call more than once.
func (a *Async) Close() {
	a.mu.Lock()
	if !a.closed {
		a.closed = true
		close(a.ch)
	}
	a.mu.Unlock()
	<-a.done
}
