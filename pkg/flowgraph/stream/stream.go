// Package stream delivers execution events to a consumer without ever
// blocking the producer.
//
// An Emitter owns a bounded channel. Emit never waits: when the buffer is
// full the event is dropped and counted. Consumers that fall behind lose
// events rather than slowing the workflow down.
package stream

import (
	"sync"
	"sync/atomic"
)

// DefaultBuffer is the buffer size used when a non-positive size is given.
const DefaultBuffer = 64

// Emitter is a fire-and-forget event channel.
// Emit and Close may be called from different goroutines.
type Emitter[T any] struct {
	mu      sync.RWMutex
	ch      chan T
	closed  bool
	sent    atomic.Int64
	dropped atomic.Int64
}

// NewEmitter creates an emitter with the given buffer size.
func NewEmitter[T any](buffer int) *Emitter[T] {
	if buffer <= 0 {
		buffer = DefaultBuffer
	}
	return &Emitter[T]{ch: make(chan T, buffer)}
}

// Events returns the receive side. It is closed by Close.
func (e *Emitter[T]) Events() <-chan T {
	return e.ch
}

// Emit offers an event. It returns false if the event was dropped because
// the buffer is full or the emitter is closed.
func (e *Emitter[T]) Emit(ev T) bool {
	e.mu.RLock()
	defer e.mu.RUnlock()

	if e.closed {
		e.dropped.Add(1)
		return false
	}

	select {
	case e.ch <- ev:
		e.sent.Add(1)
		return true
	default:
		e.dropped.Add(1)
		return false
	}
}

// Close closes the event channel. Safe to call more than once.
func (e *Emitter[T]) Close() {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.closed {
		return
	}
	e.closed = true
	close(e.ch)
}

// Sent returns the number of delivered events.
func (e *Emitter[T]) Sent() int64 {
	return e.sent.Load()
}

// Dropped returns the number of events lost to backpressure or closure.
func (e *Emitter[T]) Dropped() int64 {
	return e.dropped.Load()
}
