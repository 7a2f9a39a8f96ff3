// https://github.com/nucleus-os/nucleus
//
// Use of this source code is governed by the license
// that can be found in the LICENSE file.

package task

import (
	"github.com/nucleus-os/nucleus/kernelerr"
)

// EntryFunc is a task's user-supplied entry point. Its return value becomes
// the task's Completed exit value; a panic inside it is caught by the
// trampoline and routed through Kill(Panicked(...)).
type EntryFunc func(arg any) any

// Builder is the spawn builder spec.md §4.4/§6 describes: "a builder with
// setters for name, argument, pin-to-CPU, blocked-on-start, restartable,
// and a terminal .spawn() returning a TaskRef."
type Builder struct {
	name        string
	entry       EntryFunc
	arg         any
	pinCPU      int32
	blocked     bool
	restartable bool
	namespace   Namespace
	tlsTemplate []byte
	cleanup     FailureCleanup
	stackAlloc  StackAllocator
}

// StackAllocator provides a fresh kernel stack for a new task; callers
// typically close over a vmm.Allocator + paging.Table pair.
type StackAllocator func() (base, top uintptr, err error)

// NewBuilder starts a spawn builder for entry, to be scheduled in ns once
// built.
func NewBuilder(entry EntryFunc, ns Namespace, stacks StackAllocator) *Builder {
	return &Builder{
		name:       "task",
		entry:      entry,
		pinCPU:     noCPU,
		namespace:  ns,
		stackAlloc: stacks,
	}
}

func (b *Builder) Name(name string) *Builder { b.name = name; return b }
func (b *Builder) Arg(arg any) *Builder      { b.arg = arg; return b }
func (b *Builder) PinToCPU(cpu int) *Builder { b.pinCPU = int32(cpu); return b }
func (b *Builder) BlockedOnStart() *Builder  { b.blocked = true; return b }
func (b *Builder) Restartable() *Builder     { b.restartable = true; return b }
func (b *Builder) TLSTemplate(tls []byte) *Builder {
	b.tlsTemplate = tls
	return b
}
func (b *Builder) FailureCleanup(fn FailureCleanup) *Builder { b.cleanup = fn; return b }

// Spawn allocates a stack, gives the task the builder's TLS template,
// records the initial context frame (see buildInitialFrame), and returns a
// TaskRef in the requested start state.
func (b *Builder) Spawn() (*TaskRef, error) {
	if b.entry == nil {
		return nil, kernelerr.ErrTaskAlreadyExited // reusing: "nothing to run" is as fatal as already-exited
	}

	base, top, err := b.stackAlloc()
	if err != nil {
		return nil, err
	}

	t := newTask(b.name, base, top, b.namespace, b.tlsTemplate, b.cleanup)
	t.pinnedCPU = b.pinCPU
	t.restartable = b.restartable
	t.savedSP = buildInitialFrame(top, b.entry, b.arg, t)

	ref := newTaskRef(t)

	if b.blocked {
		t.MarkBlocked()
	} else {
		t.MarkRunnable()
	}

	return ref, nil
}

// buildInitialFrame reserves the callee-saved-register save area below the
// top of the new stack and records the entry/argument pair for the
// trampoline in pushTrampolineFrame's registry, keyed by the returned
// stack pointer; nothing is written to the stack memory itself. The
// assembly trampoline hands that stack pointer to runTrampoline, which
// calls trampolineEntry.
func buildInitialFrame(stackTop uintptr, entry EntryFunc, arg any, t *Task) uintptr {
	return pushTrampolineFrame(stackTop, entry, arg, t)
}

// trampolineEntry is invoked by the architecture-specific assembly
// trampoline after it pops the initial context frame. It recovers the
// entry function and argument the builder stashed, enables interrupts,
// and routes the entry's return value or panic into the task's exit value
// (spec.md §4.4: "the trampoline recovers them, enables interrupts,
// invokes the entry under a panic-catching shim, and routes the result...
// into a cleanup path").
func trampolineEntry(t *Task, entry EntryFunc, arg any) {
	enableInterrupts()

	var result any
	var killed *KillReason

	func() {
		defer func() {
			if r := recover(); r != nil {
				reason := Panicked(panicString(r))
				killed = &reason
			}
		}()
		result = entry(arg)
	}()

	if killed != nil {
		t.Exit(Killed(*killed))
		runCleanup(t, *killed)
	} else {
		t.Exit(Completed(result))
	}
}

// enableInterrupts is the portable hook the trampoline uses to turn
// interrupts back on for the newly running task; board/arch init code
// assigns this the same way syncx.EnableInterrupts is assigned.
var enableInterrupts = func() {}
