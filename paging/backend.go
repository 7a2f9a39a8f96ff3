// https://github.com/nucleus-os/nucleus
//
// Use of this source code is governed by the license
// that can be found in the LICENSE file.

package paging

import "github.com/nucleus-os/nucleus/mem"

// Backend abstracts raw access to page-table frames so Table's walking
// logic can be exercised by host-side tests (via a fake in-memory
// backend) and driven on real hardware by a backend that reads/writes
// physical memory directly, the way the teacher's internal/reg package
// reads/writes MMIO registers through an unsafe pointer rather than
// through a temporary mapping.
//
// Because every target this module supports (spec.md §1: "a from-scratch
// kernel" running under the GOOS=tamago bare-metal environment) runs with
// all of physical memory identity-mapped for the kernel, a direct backend
// can read/write a page-table frame through its physical address without
// the recursive-mapping trick spec.md §4.2 describes for a hosted OS with
// a partial identity map; DirectBackend documents this simplification.
type Backend interface {
	// ReadEntry returns the raw entry at index idx within the table
	// stored in frame tbl.
	ReadEntry(tbl mem.Frame, idx uint64) uint64
	// WriteEntry stores val at index idx within the table stored in
	// frame tbl.
	WriteEntry(tbl mem.Frame, idx uint64, val uint64)
	// ZeroTable clears every entry in the table stored in frame tbl,
	// used immediately after allocating a fresh intermediate table.
	ZeroTable(tbl mem.Frame)
	// FlushTLB invalidates any cached translation for virt on this CPU.
	FlushTLB(virt uintptr)
}
