// https://github.com/nucleus-os/nucleus
//
// Use of this source code is governed by the license
// that can be found in the LICENSE file.

// Package task implements the task object and context-switch primitive of
// spec.md §4.4: a Task owns a kernel stack, a saved stack pointer, and a
// lock-free run-state machine; TaskRef is the shared, cloneable handle
// callers hold.
//
// Grounded on the teacher's amd64/smp.go task struct (sp/mp/gp/pc written
// to a fixed address for a new AP's Go runtime M to pick up) and its use of
// an atomic-polled counting semaphore (reg.WaitFor on taskAddress) as the
// AP-ready handshake; this package generalizes that single-purpose
// AP-bootstrap struct into the general-purpose task object the scheduler
// manages.
package task

import "sync/atomic"

// RunState is the task lifecycle spec.md §4.4 describes, stored as an
// int32 so transitions can use lock-free compare-and-swap.
type RunState int32

const (
	Initing RunState = iota
	Runnable
	Blocked
	Exited
	Reaped
)

func (s RunState) String() string {
	switch s {
	case Initing:
		return "Initing"
	case Runnable:
		return "Runnable"
	case Blocked:
		return "Blocked"
	case Exited:
		return "Exited"
	case Reaped:
		return "Reaped"
	default:
		return "unknown"
	}
}

// runState wraps an atomic.Int32 with the specific CAS transitions spec.md
// §4.4 enumerates, so every legal transition is expressed once rather than
// scattered across callers as raw CompareAndSwap calls.
type runState struct {
	v atomic.Int32
}

func newRunState(initial RunState) *runState {
	r := &runState{}
	r.v.Store(int32(initial))
	return r
}

func (r *runState) load() RunState { return RunState(r.v.Load()) }

func (r *runState) cas(from, to RunState) bool {
	return r.v.CompareAndSwap(int32(from), int32(to))
}

// toRunnable transitions Initing→Runnable (spawn once fully built) or
// Blocked→Runnable (Unblock).
func (r *runState) toRunnable() bool {
	for {
		cur := r.load()
		if cur != Initing && cur != Blocked {
			return false
		}
		if r.cas(cur, Runnable) {
			return true
		}
	}
}

// toBlocked transitions Initing→Blocked (spawn with BlockedOnStart) or
// Runnable→Blocked (the Block scheduler entry point).
func (r *runState) toBlocked() bool {
	for {
		cur := r.load()
		if cur != Initing && cur != Runnable {
			return false
		}
		if r.cas(cur, Blocked) {
			return true
		}
	}
}

// toExited is the one-shot terminal transition from any non-Exited state.
func (r *runState) toExited() bool {
	for {
		cur := r.load()
		if cur == Exited || cur == Reaped {
			return false
		}
		if r.cas(cur, Exited) {
			return true
		}
	}
}

// toReaped is the one-shot Exited→Reaped transition; spec.md §8 property 5:
// "A task's ExitValue is read at most once."
func (r *runState) toReaped() bool {
	return r.cas(Exited, Reaped)
}
