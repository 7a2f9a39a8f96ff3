// https://github.com/nucleus-os/nucleus
//
// Use of this source code is governed by the license
// that can be found in the LICENSE file.

package sched

import (
	"testing"

	"github.com/nucleus-os/nucleus/task"
)

type fakeNamespace struct{}

func (fakeNamespace) Name() string { return "test" }

func stacks(base, top uintptr) task.StackAllocator {
	return func() (uintptr, uintptr, error) { return base, top, nil }
}

func spawnRunnable(t *testing.T, name string) *task.TaskRef {
	t.Helper()
	ref, err := task.NewBuilder(func(any) any { return nil }, fakeNamespace{}, stacks(0x1000, 0x2000)).
		Name(name).
		Spawn()
	if err != nil {
		t.Fatalf("Spawn: %v", err)
	}
	return ref
}

func TestAddTaskPicksLeastLoaded(t *testing.T) {
	s := New()
	idle0 := spawnRunnable(t, "idle0")
	idle1 := spawnRunnable(t, "idle1")
	s.RegisterCPU(0, idle0)
	s.RegisterCPU(1, idle1)

	a := spawnRunnable(t, "a")
	if err := s.AddTask(a); err != nil {
		t.Fatalf("AddTask: %v", err)
	}

	rq0, _ := s.runqueue(0)
	rq1, _ := s.runqueue(1)
	if rq0.len()+rq1.len() != 1 {
		t.Fatalf("expected exactly one queued task across both CPUs")
	}
}

func TestPinnedTaskGoesToItsCPU(t *testing.T) {
	s := New()
	idle0 := spawnRunnable(t, "idle0")
	idle1 := spawnRunnable(t, "idle1")
	s.RegisterCPU(0, idle0)
	s.RegisterCPU(1, idle1)

	pinned, err := task.NewBuilder(func(any) any { return nil }, fakeNamespace{}, stacks(0x1000, 0x2000)).
		PinToCPU(1).
		Spawn()
	if err != nil {
		t.Fatalf("Spawn: %v", err)
	}
	if err := s.AddTask(pinned); err != nil {
		t.Fatalf("AddTask: %v", err)
	}

	rq1, _ := s.runqueue(1)
	if rq1.len() != 1 {
		t.Fatalf("expected pinned task on CPU 1's runqueue")
	}
}

func TestPickNextFallsBackToIdle(t *testing.T) {
	s := New()
	idle := spawnRunnable(t, "idle")
	s.RegisterCPU(0, idle)

	next, err := s.PickNext(0)
	if err != nil {
		t.Fatalf("PickNext: %v", err)
	}
	if !next.Equal(idle) {
		t.Fatalf("expected idle task when runqueue is empty")
	}
}

func TestRemoveTaskWalksEveryRunqueue(t *testing.T) {
	s := New()
	idle0 := spawnRunnable(t, "idle0")
	idle1 := spawnRunnable(t, "idle1")
	s.RegisterCPU(0, idle0)
	s.RegisterCPU(1, idle1)

	a, _ := task.NewBuilder(func(any) any { return nil }, fakeNamespace{}, stacks(0x1000, 0x2000)).
		PinToCPU(1).Spawn()
	if err := s.AddTask(a); err != nil {
		t.Fatalf("AddTask: %v", err)
	}

	if !s.RemoveTask(a) {
		t.Fatalf("expected RemoveTask to find the task on CPU 1")
	}
	if s.RemoveTask(a) {
		t.Fatalf("second RemoveTask should find nothing")
	}
}

func TestBlockUnblockRoundTrip(t *testing.T) {
	s := New()
	idle := spawnRunnable(t, "idle")
	s.RegisterCPU(0, idle)

	a := spawnRunnable(t, "a")
	if err := s.AddTask(a); err != nil {
		t.Fatalf("AddTask: %v", err)
	}

	if err := s.Unblock(a); err != nil {
		t.Fatalf("Unblock on an already-runnable task should be a no-op: %v", err)
	}

	if !a.Task().MarkBlocked() {
		t.Fatalf("MarkBlocked should succeed from Runnable")
	}
	s.RemoveTask(a)

	if err := s.Unblock(a); err != nil {
		t.Fatalf("Unblock: %v", err)
	}
	if a.State() != task.Runnable {
		t.Fatalf("State() after Unblock = %v, want Runnable", a.State())
	}
}
