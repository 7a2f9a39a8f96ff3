// https://github.com/nucleus-os/nucleus
//
// Use of this source code is governed by the license
// that can be found in the LICENSE file.

// Package syncx provides the IRQ-safe locking primitives spec.md §5 requires
// of every lock that may be taken from interrupt context: the page-table
// mapper, the frame/page allocators, the task list, the runqueues, and the
// local APIC registers.
package syncx

import "sync"

// DisableInterrupts and EnableInterrupts are wired up by architecture init
// code (see amd64.CPU.DisableInterrupts/EnableInterrupts) before any
// IRQMutex is used from interrupt context. They default to no-ops so the
// package remains usable in host-side tests.
var (
	DisableInterrupts = func() (wasEnabled bool) { return false }
	EnableInterrupts  = func() {}
)

// IRQMutex is a mutex that disables interrupts on the local CPU for the
// duration of its critical section, then restores the previous interrupt
// state on Unlock. Every lock documented in spec.md §5 as "IRQ-safe" is one
// of these rather than a plain sync.Mutex; taking a plain sync.Mutex with
// interrupts disabled, or an IRQMutex from a context that already holds one,
// is a bug the invariant comments below call out explicitly.
type IRQMutex struct {
	mu      sync.Mutex
	wasIRQs bool
}

// Lock disables local interrupts, then acquires the mutex. Must not be
// called recursively on the same CPU: nested IRQMutex acquisition from the
// same call stack deadlocks exactly like a plain mutex would.
func (m *IRQMutex) Lock() {
	wasIRQs := DisableInterrupts()
	m.mu.Lock()
	m.wasIRQs = wasIRQs
}

// Unlock releases the mutex and restores the interrupt state that was in
// effect before the matching Lock.
func (m *IRQMutex) Unlock() {
	wasIRQs := m.wasIRQs
	m.mu.Unlock()
	if wasIRQs {
		EnableInterrupts()
	}
}
