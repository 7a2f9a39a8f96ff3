// https://github.com/nucleus-os/nucleus
//
// Use of this source code is governed by the license
// that can be found in the LICENSE file.

package task

import (
	"sync/atomic"

	"github.com/nucleus-os/nucleus/kernelerr"
	"github.com/nucleus-os/nucleus/klog"
	"github.com/nucleus-os/nucleus/syncx"
)

// ID uniquely and monotonically identifies a Task.
type ID uint64

var nextID atomic.Uint64

func allocID() ID { return ID(nextID.Add(1)) }

// Namespace is the minimal surface Task needs from a crate namespace,
// satisfied by *loader.CrateNamespace; kept as an interface here so task
// does not import loader (loader depends on paging/pmm/vmm, not the other
// way around).
type Namespace interface {
	Name() string
}

// FailureCleanup is invoked on a killed or panicking task to unwind its
// owned resources (spec.md §4.5: "the per-task failure-cleanup function,
// which drops its owned resources and removes it from the namespace").
type FailureCleanup func(t *Task, reason KillReason)

// Task is one thread of execution (spec.md §3 Task).
type Task struct {
	ID   ID
	Name string

	state *runState

	// runningOnCPU is Some (non-negative) iff this task is the one
	// currently dispatched on that CPU (spec.md §8 property 4).
	runningOnCPU atomic.Int32

	// savedSP is valid only while the task is not running (spec.md §3
	// Task invariant (a)).
	savedSP uintptr

	stackBase uintptr
	stackTop  uintptr

	pinnedCPU   int32 // -1 if unpinned
	isIdleTask  bool
	restartable bool
	suspended   atomic.Bool
	namespace   Namespace
	tlsImage    []byte
	cleanup     FailureCleanup

	exitMu    syncx.IRQMutex
	exitValue *ExitValue
}

const noCPU = -1

func newTask(name string, stackBase, stackTop uintptr, ns Namespace, tls []byte, cleanup FailureCleanup) *Task {
	t := &Task{
		ID:        allocID(),
		Name:      name,
		state:     newRunState(Initing),
		stackBase: stackBase,
		stackTop:  stackTop,
		pinnedCPU: noCPU,
		namespace: ns,
		tlsImage:  append([]byte(nil), tls...),
		cleanup:   cleanup,
	}
	t.runningOnCPU.Store(noCPU)
	return t
}

// State returns the task's current run-state.
func (t *Task) State() RunState { return t.state.load() }

// RunningOnCPU returns the CPU this task is currently dispatched on, or
// (0, false) if it is not running anywhere.
func (t *Task) RunningOnCPU() (cpu int, ok bool) {
	v := t.runningOnCPU.Load()
	if v == noCPU {
		return 0, false
	}
	return int(v), true
}

// SetRunningOnCPU is called by the scheduler immediately before and after
// dispatch; cpu == -1 marks the task as not currently dispatched.
func (t *Task) SetRunningOnCPU(cpu int) { t.runningOnCPU.Store(int32(cpu)) }

// PinnedCPU returns the CPU this task is restricted to, or (0, false) if
// unpinned.
func (t *Task) PinnedCPU() (cpu int, pinned bool) {
	if t.pinnedCPU == noCPU {
		return 0, false
	}
	return int(t.pinnedCPU), true
}

// IsIdleTask reports whether this is a per-CPU idle task (spec.md §4.5).
func (t *Task) IsIdleTask() bool { return t.isIdleTask }

// MarkIdleTask flags this task as a per-CPU idle task; called once by
// sched.NewIdleTask immediately after Spawn.
func (t *Task) MarkIdleTask() { t.isIdleTask = true }

// Restartable reports whether the scheduler should respawn a replacement
// if this task ever exits unexpectedly (used for idle tasks; spec.md §4.5:
// "If an idle task ever exits (a bug), the scheduler respawns a
// replacement").
func (t *Task) Restartable() bool { return t.restartable }

// Suspended reports the orthogonal suspend flag (spec.md §4.4: "Suspension
// is a separate AtomicBool so that Ctrl-Z from a terminal does not perturb
// the run-state machine").
func (t *Task) Suspended() bool { return t.suspended.Load() }

// SetSuspended sets or clears the suspend flag.
func (t *Task) SetSuspended(v bool) { t.suspended.Store(v) }

// MarkRunnable transitions Initing/Blocked → Runnable.
func (t *Task) MarkRunnable() bool { return t.state.toRunnable() }

// MarkBlocked transitions Initing/Runnable → Blocked.
func (t *Task) MarkBlocked() bool { return t.state.toBlocked() }

// Exit publishes ev and transitions the task to Exited. It is a no-op
// returning false if the task had already exited (spec.md §3 Task
// invariant (c): exit value consumable exactly once implies publishable
// exactly once).
func (t *Task) Exit(ev ExitValue) bool {
	if !t.state.toExited() {
		return false
	}
	t.exitMu.Lock()
	t.exitValue = &ev
	t.exitMu.Unlock()
	return true
}

// Reap consumes the exit value, transitioning Exited → Reaped. Calling it
// twice returns ErrAlreadyReaped the second time; calling it before Exit
// returns ErrTaskNotExited.
func (t *Task) Reap() (ExitValue, error) {
	if t.state.load() != Exited {
		if t.state.load() == Reaped {
			return ExitValue{}, kernelerr.ErrAlreadyReaped
		}
		return ExitValue{}, kernelerr.ErrTaskNotExited
	}
	if !t.state.toReaped() {
		return ExitValue{}, kernelerr.ErrAlreadyReaped
	}

	t.exitMu.Lock()
	defer t.exitMu.Unlock()
	return *t.exitValue, nil
}

// Kill transitions the task to Exited(Killed(reason)) regardless of its
// current run-state (spec.md §4.5 TaskRef::kill), running its
// failure-cleanup function. Returns ErrTaskAlreadyExited if the task had
// already exited.
func (t *Task) Kill(reason KillReason) error {
	if !t.Exit(Killed(reason)) {
		return kernelerr.ErrTaskAlreadyExited
	}
	runCleanup(t, reason)
	return nil
}

// runCleanup invokes the task's failure-cleanup function, recovering from a
// panic inside it per spec.md §4.5: "If unwinding itself panics, control
// lands in the same function with a new reason; a second failure there is
// fatal for the task and logged but does not crash the system."
func runCleanup(t *Task, reason KillReason) {
	if t.cleanup == nil {
		return
	}
	defer func() {
		if r := recover(); r != nil {
			func() {
				defer func() {
					if r2 := recover(); r2 != nil {
						logFatalCleanup(t, r2)
					}
				}()
				t.cleanup(t, Panicked(panicString(r)))
			}()
		}
	}()
	t.cleanup(t, reason)
}

// logFatalCleanup handles a second failure within a task's own
// failure-cleanup function: logged, not escalated, per spec.md §4.5.
func logFatalCleanup(t *Task, r any) {
	klog.Warn("task", "cleanup panicked twice for task "+t.Name+"; abandoning its resources")
}

func panicString(r any) string {
	if s, ok := r.(string); ok {
		return s
	}
	if e, ok := r.(error); ok {
		return e.Error()
	}
	return "unknown panic"
}
