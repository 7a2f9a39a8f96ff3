// https://github.com/nucleus-os/nucleus
//
// Use of this source code is governed by the license
// that can be found in the LICENSE file.

package task

import (
	"unsafe"

	"github.com/nucleus-os/nucleus/mem"
)

// switchContext is the two-argument leaf routine spec.md §4.4 describes:
// "switch(prev_sp_out: *mut usize, next_sp_in: usize): it pushes the
// callee-saved registers, writes the stack pointer into *prev_sp_out, loads
// next_sp_in, pops callee-saved registers, rets." Declared without a body
// and implemented in architecture-specific assembly, the same declare-only
// convention the teacher's internal/reg package uses throughout for
// privileged instructions.
//
// defined in switch_<arch>.s
func switchContext(prevSPOut *uintptr, nextSPIn uintptr)

// writeTLSBase installs the next task's TLS self-pointer into the
// architectural TLS base register (FsBase on x86_64) before the register
// swap, per spec.md §4.4.
//
// defined in tls_<arch>.s
func writeTLSBase(base uintptr)

// loadPageTableRoot switches the active page table, used when the next
// task runs in a different address space (spec.md §4.4: "If the next task
// uses a different address space, the page-table root is loaded before the
// TLS write").
//
// defined in cr3_<arch>.s
func loadPageTableRoot(root mem.Frame)

// SwitchTo performs a full context switch from the currently-running task
// to next, following spec.md §4.4's ordering: page-table root (if
// changing), then TLS base, then the register swap itself. It must be
// called with interrupts already disabled by the scheduler entry point
// driving it (Yield/Tick), never directly.
func SwitchTo(current, next *Task, nextAddrSpace mem.Frame, currentAddrSpace mem.Frame) {
	if nextAddrSpace != currentAddrSpace {
		loadPageTableRoot(nextAddrSpace)
	}
	writeTLSBase(next.tlsBase())

	current.SetRunningOnCPU(noCPU)
	switchContext(&current.savedSP, next.savedSP)
}

// tlsBase returns the address of the task's TLS image, the value written
// into the TLS base register before switching into it.
func (t *Task) tlsBase() uintptr {
	if len(t.tlsImage) == 0 {
		return 0
	}
	return uintptr(unsafe.Pointer(&t.tlsImage[0]))
}
