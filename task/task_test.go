// https://github.com/nucleus-os/nucleus
//
// Use of this source code is governed by the license
// that can be found in the LICENSE file.

package task

import "testing"

type fakeNamespace struct{ name string }

func (n fakeNamespace) Name() string { return n.name }

func stackOf(base, top uintptr) StackAllocator {
	return func() (uintptr, uintptr, error) { return base, top, nil }
}

func TestSpawnDefaultsToRunnable(t *testing.T) {
	ref, err := NewBuilder(func(any) any { return 42 }, fakeNamespace{"root"}, stackOf(0x1000, 0x2000)).
		Name("t1").
		Spawn()
	if err != nil {
		t.Fatalf("Spawn: %v", err)
	}
	if ref.State() != Runnable {
		t.Fatalf("State() = %v, want Runnable", ref.State())
	}
}

func TestSpawnBlockedOnStart(t *testing.T) {
	ref, err := NewBuilder(func(any) any { return nil }, fakeNamespace{"root"}, stackOf(0x1000, 0x2000)).
		BlockedOnStart().
		Spawn()
	if err != nil {
		t.Fatalf("Spawn: %v", err)
	}
	if ref.State() != Blocked {
		t.Fatalf("State() = %v, want Blocked", ref.State())
	}
}

func TestExitThenReapExactlyOnce(t *testing.T) {
	ref, _ := NewBuilder(func(any) any { return nil }, fakeNamespace{"root"}, stackOf(0x1000, 0x2000)).Spawn()

	if !ref.Task().Exit(Completed(7)) {
		t.Fatalf("first Exit should succeed")
	}
	if ref.Task().Exit(Completed(8)) {
		t.Fatalf("second Exit should be a no-op")
	}

	ev, err := ref.Reap()
	if err != nil {
		t.Fatalf("Reap: %v", err)
	}
	if !ev.IsCompleted() || ev.Value() != 7 {
		t.Fatalf("Reap returned %+v, want Completed(7)", ev)
	}

	if _, err := ref.Reap(); err == nil {
		t.Fatalf("second Reap should fail")
	}
}

func TestReapBeforeExitFails(t *testing.T) {
	ref, _ := NewBuilder(func(any) any { return nil }, fakeNamespace{"root"}, stackOf(0x1000, 0x2000)).Spawn()
	if _, err := ref.Reap(); err == nil {
		t.Fatalf("expected ErrTaskNotExited")
	}
}

func TestKillRunsFailureCleanupOnce(t *testing.T) {
	calls := 0
	cleanup := func(tk *Task, reason KillReason) { calls++ }

	ref, _ := NewBuilder(func(any) any { return nil }, fakeNamespace{"root"}, stackOf(0x1000, 0x2000)).
		FailureCleanup(cleanup).
		Spawn()

	if err := ref.Kill(Requested()); err != nil {
		t.Fatalf("Kill: %v", err)
	}
	if calls != 1 {
		t.Fatalf("cleanup called %d times, want 1", calls)
	}
	if err := ref.Kill(Requested()); err == nil {
		t.Fatalf("second Kill should fail with ErrTaskAlreadyExited")
	}

	ev, err := ref.Reap()
	if err != nil {
		t.Fatalf("Reap: %v", err)
	}
	if ev.IsCompleted() {
		t.Fatalf("expected a Killed exit value")
	}
}

func TestRunStateTransitions(t *testing.T) {
	rs := newRunState(Initing)
	if !rs.toBlocked() {
		t.Fatalf("Initing -> Blocked should succeed")
	}
	if !rs.toRunnable() {
		t.Fatalf("Blocked -> Runnable should succeed")
	}
	if !rs.toExited() {
		t.Fatalf("Runnable -> Exited should succeed")
	}
	if rs.toRunnable() {
		t.Fatalf("Exited -> Runnable should fail")
	}
	if !rs.toReaped() {
		t.Fatalf("Exited -> Reaped should succeed")
	}
	if rs.toReaped() {
		t.Fatalf("second Reaped transition should fail")
	}
}
