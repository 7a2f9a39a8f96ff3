// https://github.com/nucleus-os/nucleus
//
// Use of this source code is governed by the license
// that can be found in the LICENSE file.

package task

import "sync"

// trampolineFrame is the data the architecture-specific assembly
// trampoline recovers once switchContext first rets into it for a new
// task. Real assembly reads these fields out of fixed stack offsets; since
// that final leaf is necessarily written in per-architecture assembly (see
// context.go), this Go-level registry stands in for "the known offset on
// the stack" keyed by the saved stack-pointer value the builder hands to
// switchContext, the same declare-the-seam, implement-in-.s split used
// throughout this module for privileged operations.
type trampolineFrame struct {
	task  *Task
	entry EntryFunc
	arg   any
}

var (
	framesMu sync.Mutex
	frames   = map[uintptr]*trampolineFrame{}
)

// pushTrampolineFrame reserves the initial context frame at the top of a
// fresh stack and records the entry/argument pair the trampoline will pick
// up the first time this task is switched to. It returns the saved
// stack-pointer value the scheduler's context switch loads into next_sp_in.
func pushTrampolineFrame(stackTop uintptr, entry EntryFunc, arg any, t *Task) uintptr {
	// The trampoline's own register-save area lives below stackTop; the
	// exact size is architecture-defined (switch_<arch>.s). sp is the
	// value next_sp_in takes on the task's first dispatch.
	sp := stackTop - calleeSavedFrameSize

	framesMu.Lock()
	frames[sp] = &trampolineFrame{task: t, entry: entry, arg: arg}
	framesMu.Unlock()

	return sp
}

// runTrampoline is called by the assembly trampoline (via a small asm
// thunk that loads sp from the stack pointer it just switched to) to
// recover and run the stashed entry/argument pair exactly once.
func runTrampoline(sp uintptr) {
	framesMu.Lock()
	f := frames[sp]
	delete(frames, sp)
	framesMu.Unlock()

	if f == nil {
		return
	}
	trampolineEntry(f.task, f.entry, f.arg)
}

// calleeSavedFrameSize is the size in bytes of the callee-saved register
// save area switchContext pushes/pops (6 general registers on x86_64: rbx,
// rbp, r12-r15).
const calleeSavedFrameSize = 6 * 8
