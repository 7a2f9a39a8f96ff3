// https://github.com/nucleus-os/nucleus
//
// Use of this source code is governed by the license
// that can be found in the LICENSE file.

// Package sched implements the per-CPU runqueues and scheduler entry
// points of spec.md §4.5: add/remove_task, pick_next, voluntary yield,
// preemptive tick, block/unblock, and idle tasks.
//
// Grounded on the teacher's amd64 CPU/procresize bookkeeping (amd64/smp.go)
// for the notion of a process-wide, per-CPU registered set driven by a
// counting handshake, generalized here from "count of initialized CPUs"
// into "ordered list of runnable tasks per CPU".
package sched

import (
	"container/list"

	"github.com/nucleus-os/nucleus/kernelerr"
	"github.com/nucleus-os/nucleus/syncx"
	"github.com/nucleus-os/nucleus/task"
)

// runqueue is a lock-protected ordered list of *task.TaskRef for one CPU.
type runqueue struct {
	mu    syncx.IRQMutex
	tasks *list.List // of *task.TaskRef
	idle  *task.TaskRef
}

func newRunqueue() *runqueue {
	return &runqueue{tasks: list.New()}
}

func (rq *runqueue) len() int {
	rq.mu.Lock()
	defer rq.mu.Unlock()
	return rq.tasks.Len()
}

// Scheduler owns the process-wide map from CPU id to runqueue (spec.md
// §4.5: "A process-wide map from CPU id to per-CPU runqueue").
type Scheduler struct {
	mu    syncx.IRQMutex
	byCPU map[int]*runqueue
}

// New creates an empty Scheduler; runqueues are created lazily by
// RegisterCPU.
func New() *Scheduler {
	return &Scheduler{byCPU: make(map[int]*runqueue)}
}

// RegisterCPU creates cpu's runqueue and assigns its idle task, called once
// per CPU during bring-up (spec.md §4.3: "creates its idle task ...
// registers itself in the runqueue map").
func (s *Scheduler) RegisterCPU(cpu int, idle *task.TaskRef) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rq := newRunqueue()
	rq.idle = idle
	s.byCPU[cpu] = rq
}

func (s *Scheduler) runqueue(cpu int) (*runqueue, error) {
	s.mu.Lock()
	rq, ok := s.byCPU[cpu]
	s.mu.Unlock()
	if !ok {
		return nil, kernelerr.ErrNoRunqueue
	}
	return rq, nil
}

// leastLoaded returns the CPU id with the fewest queued tasks.
func (s *Scheduler) leastLoaded() (int, *runqueue, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	best := -1
	var bestRQ *runqueue
	bestLen := -1
	for cpu, rq := range s.byCPU {
		n := rq.len()
		if bestLen == -1 || n < bestLen {
			best, bestRQ, bestLen = cpu, rq, n
		}
	}
	if bestRQ == nil {
		return 0, nil, kernelerr.ErrNoRunqueue
	}
	return best, bestRQ, nil
}

// AddTask enqueues t on the least-loaded runqueue, unless t is pinned to a
// specific CPU, in which case it goes there (spec.md §4.5: "add_task picks
// the least-loaded runqueue unless the task is pinned").
func (s *Scheduler) AddTask(t *task.TaskRef) error {
	var rq *runqueue
	var err error

	if cpu, pinned := t.Task().PinnedCPU(); pinned {
		rq, err = s.runqueue(cpu)
	} else {
		_, rq, err = s.leastLoaded()
	}
	if err != nil {
		return err
	}

	rq.mu.Lock()
	rq.tasks.PushBack(t)
	rq.mu.Unlock()
	return nil
}

// RemoveTask walks every runqueue looking for t, since a task does not know
// which one holds it (spec.md §4.5: "remove_task walks every runqueue").
// Reports whether t was found and removed.
func (s *Scheduler) RemoveTask(t *task.TaskRef) bool {
	s.mu.Lock()
	rqs := make([]*runqueue, 0, len(s.byCPU))
	for _, rq := range s.byCPU {
		rqs = append(rqs, rq)
	}
	s.mu.Unlock()

	for _, rq := range rqs {
		rq.mu.Lock()
		for e := rq.tasks.Front(); e != nil; e = e.Next() {
			if e.Value.(*task.TaskRef).Equal(t) {
				rq.tasks.Remove(e)
				rq.mu.Unlock()
				return true
			}
		}
		rq.mu.Unlock()
	}
	return false
}

// PickNext takes the front element of cpu's runqueue, rotates it to the
// back if still Runnable, and returns it; if the queue is empty (or every
// entry has since become non-Runnable) it returns cpu's idle task (spec.md
// §4.5: "pick_next(cpu) takes the front element, rotates it to the back if
// still Runnable, returns it; if none is found, returns the CPU's idle
// task").
func (s *Scheduler) PickNext(cpu int) (*task.TaskRef, error) {
	rq, err := s.runqueue(cpu)
	if err != nil {
		return nil, err
	}

	rq.mu.Lock()
	defer rq.mu.Unlock()

	for i := 0; i < rq.tasks.Len(); i++ {
		e := rq.tasks.Front()
		if e == nil {
			break
		}
		rq.tasks.Remove(e)

		ref := e.Value.(*task.TaskRef)
		if ref.State() == task.Runnable {
			rq.tasks.PushBack(ref)
			return ref, nil
		}
		// Non-runnable entries (e.g. blocked since being enqueued) are
		// dropped from the queue rather than rotated; Unblock re-adds
		// them when they become runnable again.
	}

	return rq.idle, nil
}
