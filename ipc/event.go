// https://github.com/nucleus-os/nucleus
//
// Use of this source code is governed by the license
// that can be found in the LICENSE file.

package ipc

import "github.com/nucleus-os/nucleus/syncx"

// EventListener lets any number of waiters block until Signal is called at
// least once after they started waiting (spec.md §6: "event listener";
// §5: "block-waiting on an event" is one of the documented suspension
// points). Unlike a Channel, a signal with no waiter present is not lost:
// it latches until consumed by Wait, the same one-shot-until-reset
// semantics the scheduler needs for "a sleep is a block on an event
// signaled by a timer tick" (spec.md §5).
type EventListener struct {
	mu      syncx.IRQMutex
	ch      chan struct{}
	pending bool
}

// NewEventListener returns an EventListener with no pending signal.
func NewEventListener() *EventListener {
	return &EventListener{ch: make(chan struct{}, 1)}
}

// Signal wakes one waiter, or, if none is currently waiting, latches the
// signal so the next Wait call returns immediately. Safe to call from
// interrupt context (e.g. a timer tick signaling a sleeping task).
func (e *EventListener) Signal() {
	e.mu.Lock()
	already := e.pending
	e.pending = true
	e.mu.Unlock()

	if already {
		return
	}
	select {
	case e.ch <- struct{}{}:
	default:
	}
}

// Wait blocks until Signal has been called at least once since the last
// Wait returned.
func (e *EventListener) Wait() {
	<-e.ch
	e.mu.Lock()
	e.pending = false
	e.mu.Unlock()
}

// TryWait returns immediately: true if a pending signal was consumed, false
// if none was available.
func (e *EventListener) TryWait() bool {
	select {
	case <-e.ch:
		e.mu.Lock()
		e.pending = false
		e.mu.Unlock()
		return true
	default:
		return false
	}
}
