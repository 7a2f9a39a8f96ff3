// https://github.com/nucleus-os/nucleus
//
// Use of this source code is governed by the license
// that can be found in the LICENSE file.

package sched

import (
	"github.com/nucleus-os/nucleus/klog"
	"github.com/nucleus-os/nucleus/task"
)

// haltLoop is the body of an idle task: a halt instruction loop, overridden
// per architecture (amd64's `hlt`, aarch64's `wfi`) the same way klog.halt
// is overridden by board init code.
var haltLoop = func() { select {} }

// NewIdleTask builds the pinned, restartable idle task for cpu (spec.md
// §4.5: "one per CPU, pinned, marked is_an_idle_task. An idle task
// executes a halt loop."). Its entry function never returns in practice;
// if it ever does (a bug, per spec.md), the caller's respawn loop
// (RespawnIdleIfExited) notices that it is neither Runnable nor Blocked
// and creates a new one.
func NewIdleTask(cpu int, ns task.Namespace, stacks task.StackAllocator) (*task.TaskRef, error) {
	ref, err := task.NewBuilder(func(any) any {
		haltLoop()
		return nil
	}, ns, stacks).
		Name("idle").
		PinToCPU(cpu).
		Restartable().
		Spawn()
	if err != nil {
		return nil, err
	}
	ref.Task().MarkIdleTask()
	return ref, nil
}

// RespawnIdleIfExited checks cpu's idle task and, if it has unexpectedly
// exited, spawns and registers a replacement (spec.md §4.5: "If an idle
// task ever exits (a bug), the scheduler respawns a replacement").
func (s *Scheduler) RespawnIdleIfExited(cpu int, ns task.Namespace, stacks task.StackAllocator) error {
	s.mu.Lock()
	rq, ok := s.byCPU[cpu]
	s.mu.Unlock()
	if !ok {
		return nil
	}

	if rq.idle == nil || rq.idle.State() == task.Runnable || rq.idle.State() == task.Blocked {
		return nil
	}

	klog.Warn("sched", "idle task on a CPU exited unexpectedly; respawning")

	fresh, err := NewIdleTask(cpu, ns, stacks)
	if err != nil {
		return err
	}

	s.mu.Lock()
	rq.idle = fresh
	s.mu.Unlock()
	return nil
}
