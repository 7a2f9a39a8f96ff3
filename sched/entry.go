// https://github.com/nucleus-os/nucleus
//
// Use of this source code is governed by the license
// that can be found in the LICENSE file.

package sched

import (
	"github.com/nucleus-os/nucleus/mem"
	"github.com/nucleus-os/nucleus/syncx"
	"github.com/nucleus-os/nucleus/task"
)

// CurrentProvider returns the task currently dispatched on cpu and its
// address-space root, the two pieces of per-CPU state the scheduler needs
// but does not itself own (the task list and the active page table belong
// to task and paging respectively).
type CurrentProvider interface {
	Current(cpu int) (*task.TaskRef, mem.Frame)
	SetCurrent(cpu int, t *task.TaskRef)
}

// Yield implements the voluntary-yield scheduler entry point (spec.md
// §4.5): disable interrupts, pick next, context-switch, restore the
// previous interrupt state on return.
func (s *Scheduler) Yield(cpu int, cp CurrentProvider) error {
	wasEnabled := syncx.DisableInterrupts()
	defer restoreInterrupts(wasEnabled)

	current, addrSpace := cp.Current(cpu)
	next, err := s.PickNext(cpu)
	if err != nil {
		return err
	}
	if current.Equal(next) {
		return nil
	}

	cp.SetCurrent(cpu, next)
	next.Task().SetRunningOnCPU(cpu)
	task.SwitchTo(current.Task(), next.Task(), addrSpace, addrSpace)
	return nil
}

// Tick implements the preemptive-tick scheduler entry point (spec.md §4.5):
// the LAPIC timer IRQ acknowledges EOI, then invokes the same path as
// Yield. eoi is supplied by the caller (apic.LocalApic.ClearInterrupt) so
// this package does not depend on apic.
func (s *Scheduler) Tick(cpu int, cp CurrentProvider, eoi func()) error {
	eoi()
	return s.Yield(cpu, cp)
}

// Block transitions the caller to Blocked then yields (spec.md §4.5: "No
// task switches into a Blocked task").
func (s *Scheduler) Block(cpu int, cp CurrentProvider, self *task.TaskRef) error {
	if !self.Task().MarkBlocked() {
		return nil
	}
	s.RemoveTask(self)
	return s.Yield(cpu, cp)
}

// Unblock transitions target Blocked→Runnable and re-enqueues it (spec.md
// §4.5). Safe to call from another task or from interrupt context.
func (s *Scheduler) Unblock(target *task.TaskRef) error {
	if !target.Task().MarkRunnable() {
		return nil
	}
	return s.AddTask(target)
}

func restoreInterrupts(wasEnabled bool) {
	if wasEnabled {
		syncx.EnableInterrupts()
	}
}
