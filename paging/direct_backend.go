// https://github.com/nucleus-os/nucleus
//
// Use of this source code is governed by the license
// that can be found in the LICENSE file.

package paging

import (
	"github.com/nucleus-os/nucleus/internal/reg"
	"github.com/nucleus-os/nucleus/mem"
)

// DirectBackend implements Backend by reading/writing page-table frames
// through their physical address directly, relying on the flat identity
// map every target of this module runs under (see the Backend doc
// comment). It is built on the teacher's internal/reg 64-bit register
// accessors rather than hand-rolled unsafe.Pointer code, since reg already
// provides the atomic load/store semantics spec.md §5 requires of
// concurrent page-table access ("The page-table mapper ... protected by
// IRQ-safe mutexes" — the mutex covers the higher-level Table operation,
// while individual entry reads/writes stay atomic against a concurrent
// TLB-shootdown reader).
type DirectBackend struct{}

const entryBytes = 8

// ReadEntry implements Backend.
func (DirectBackend) ReadEntry(tbl mem.Frame, idx uint64) uint64 {
	return reg.Read64(uint64(tbl.Addr()) + idx*entryBytes)
}

// WriteEntry implements Backend.
func (DirectBackend) WriteEntry(tbl mem.Frame, idx uint64, val uint64) {
	reg.Write64(uint64(tbl.Addr())+idx*entryBytes, val)
}

// ZeroTable implements Backend.
func (b DirectBackend) ZeroTable(tbl mem.Frame) {
	for i := uint64(0); i < entriesPerTable; i++ {
		b.WriteEntry(tbl, i, 0)
	}
}

// FlushTLB implements Backend.
func (DirectBackend) FlushTLB(virt uintptr) {
	invlpg(virt)
}

// defined in tlb_<arch>.s
func invlpg(virt uintptr)
