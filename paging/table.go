// https://github.com/nucleus-os/nucleus
//
// Use of this source code is governed by the license
// that can be found in the LICENSE file.

// Package paging implements the page-table / mapper abstraction of
// spec.md §4.2: a Table owns the frames of one address space's
// hierarchical page table and exposes map/map_to/unmap/remap/translate,
// with MappedPages as the only way to name a live mapping.
//
// Grounded on the teacher's amd64/mmu.go, whose FindPTE walks the AMD64
// four-level table to answer a single read-only query (used there only to
// flip the page-encryption C-bit). This package generalizes that walk into
// a full mutating mapper, since the teacher itself never remaps memory:
// under GOOS=tamago the Go runtime owns one static, bootloader-built
// identity map and amd64.CPU never changes it.
package paging

import (
	"sync/atomic"

	"github.com/nucleus-os/nucleus/kernelerr"
	"github.com/nucleus-os/nucleus/mem"
	"github.com/nucleus-os/nucleus/pmm"
	"github.com/nucleus-os/nucleus/syncx"
	"github.com/nucleus-os/nucleus/vmm"
)

// Table owns the root frame of one address space's page table and every
// intermediate-level frame reachable from it. Exactly one Table exists
// per address space (spec.md §3: "Exactly one PageTable per address
// space. Currently [the core] uses a single address space; the
// abstraction admits others.").
type Table struct {
	mu      syncx.IRQMutex
	root    mem.Frame
	backend Backend
	frames  *pmm.Allocator

	// live counts the number of MappedPages currently rooted in this
	// table; Destroy refuses while live > 0 (spec.md §4.2 invariant).
	live int32

	// tables holds the tokens of the intermediate-level frames mapOne
	// allocated; Destroy releases them.
	tables []*pmm.AllocatedFrames
}

// NewTable creates a Table rooted at an already-allocated, zeroed frame.
// Callers typically obtain root via frames.Allocate(1) and zero it with
// backend.ZeroTable before calling NewTable.
func NewTable(root mem.Frame, frames *pmm.Allocator, backend Backend) *Table {
	return &Table{root: root, backend: backend, frames: frames}
}

// Root returns the physical frame holding this table's top-level entries
// (the value to load into CR3 on amd64 to make this table active).
func (t *Table) Root() mem.Frame { return t.root }

// Destroy releases the intermediate-level frames the table allocated; the
// root frame stays with whoever allocated it. It refuses with ErrTableInUse
// if any MappedPages still names a virtual range inside it, satisfying
// spec.md §4.2's invariant that dropping a table while a MappedPages is
// rooted in it would be undefined behavior.
func (t *Table) Destroy() error {
	if atomic.LoadInt32(&t.live) > 0 {
		return kernelerr.ErrTableInUse
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	for _, f := range t.tables {
		f.Release()
	}
	t.tables = nil
	return nil
}

// mapOne walks (allocating intermediate tables as needed) and installs a
// single leaf entry mapping virt to phys with the given flags.
func (t *Table) mapOne(virt uintptr, phys uintptr, flags Flags) error {
	if virt%uintptr(mem.PageSize) != 0 || phys%uintptr(mem.PageSize) != 0 {
		return kernelerr.ErrAlignment
	}

	idx := indicesOf(virt)
	tbl := t.root

	for level := topLevel(); level > leafLevel(); level-- {
		i := idx[topLevel()-level]
		entry := t.backend.ReadEntry(tbl, i)

		if entry&ptePresent == 0 {
			childFrames, err := t.frames.Allocate(1)
			if err != nil {
				return err
			}
			t.tables = append(t.tables, childFrames)
			child := childFrames.Range.Start
			t.backend.ZeroTable(child)
			t.backend.WriteEntry(tbl, i, (uint64(child)<<mem.PageShift)|intermediateEntryFlags())
			tbl = child
			continue
		}

		if entry&pteHuge != 0 {
			return kernelerr.ErrMapping
		}

		tbl = mem.Frame((entry & addrMask) >> mem.PageShift)
	}

	leafIdx := idx[len(idx)-1]
	t.backend.WriteEntry(tbl, leafIdx, (uint64(phys)&uint64(addrMask))|flagsToPTE(flags))
	return nil
}

// unmapOne clears the leaf entry for virt, returning ErrNotMapped if it
// was not present.
func (t *Table) unmapOne(virt uintptr) error {
	idx := indicesOf(virt)
	tbl := t.root

	for level := topLevel(); level > leafLevel(); level-- {
		i := idx[topLevel()-level]
		entry := t.backend.ReadEntry(tbl, i)
		if entry&ptePresent == 0 {
			return kernelerr.ErrNotMapped
		}
		tbl = mem.Frame((entry & addrMask) >> mem.PageShift)
	}

	leafIdx := idx[len(idx)-1]
	entry := t.backend.ReadEntry(tbl, leafIdx)
	if entry&ptePresent == 0 {
		return kernelerr.ErrNotMapped
	}

	t.backend.WriteEntry(tbl, leafIdx, 0)
	t.backend.FlushTLB(virt)
	return nil
}

// Translate walks the table and returns the physical frame virt currently
// maps to, or ok=false if it is not mapped.
func (t *Table) Translate(virt uintptr) (phys mem.Frame, ok bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.translateLocked(virt)
}

// translateLocked is Translate's body, callable from methods that already
// hold t.mu (e.g. Remap), which Translate itself cannot be, since it
// would deadlock re-acquiring an IRQMutex that disables interrupts rather
// than recursing.
func (t *Table) translateLocked(virt uintptr) (phys mem.Frame, ok bool) {
	idx := indicesOf(virt)
	tbl := t.root

	for level := topLevel(); level > leafLevel(); level-- {
		i := idx[topLevel()-level]
		entry := t.backend.ReadEntry(tbl, i)
		if entry&ptePresent == 0 {
			return 0, false
		}
		tbl = mem.Frame((entry & addrMask) >> mem.PageShift)
	}

	leafIdx := idx[len(idx)-1]
	entry := t.backend.ReadEntry(tbl, leafIdx)
	if entry&ptePresent == 0 {
		return 0, false
	}

	return mem.Frame((entry & addrMask) >> mem.PageShift), true
}

// MapAllocatedPages allocates backing frames from frames and maps pages
// over them with the given flags (spec.md §4.2 map_allocated_pages). The
// returned MappedPages owns both tokens; dropping it releases both.
func (t *Table) MapAllocatedPages(pages *vmm.AllocatedPages, flags Flags) (*MappedPages, error) {
	backing, err := t.frames.Allocate(pages.Range.Count)
	if err != nil {
		return nil, err
	}

	mp, err := t.MapAllocatedPagesTo(pages, backing, flags)
	if err != nil {
		backing.Release()
		return nil, err
	}
	return mp, nil
}

// MapAllocatedPagesTo consumes both tokens and maps pages 1-to-1 onto
// frames (spec.md §4.2 map_allocated_pages_to). The returned MappedPages
// releases both tokens on Unmap.
func (t *Table) MapAllocatedPagesTo(pages *vmm.AllocatedPages, frames *pmm.AllocatedFrames, flags Flags) (*MappedPages, error) {
	if pages.Range.Count != frames.Range.Count {
		return nil, kernelerr.ErrMapping
	}
	if flags&Writable != 0 {
		flags |= Valid
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	for i := uint64(0); i < pages.Range.Count; i++ {
		virt := (pages.Range.Start + mem.Page(i)).Addr()
		phys := (frames.Range.Start + mem.Frame(i)).Addr()
		if err := t.mapOne(virt, phys, flags); err != nil {
			t.rollback(pages.Range.Start, i)
			return nil, err
		}
	}

	atomic.AddInt32(&t.live, 1)
	return &MappedPages{
		table:     t,
		pages:     pages,
		frames:    frames,
		flags:     flags,
		exclusive: true,
	}, nil
}

// MapToNonExclusive maps pages onto a single physical frame without
// taking ownership of it (spec.md §4.2 map_to_non_exclusive), used for
// MMIO regions such as the per-CPU LAPIC register window that are
// intentionally mapped from every CPU at once. The resulting MappedPages
// does not own frame and will not free it on Unmap.
func (t *Table) MapToNonExclusive(pages *vmm.AllocatedPages, frame mem.Frame, flags Flags) (*MappedPages, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	for i := uint64(0); i < pages.Range.Count; i++ {
		virt := (pages.Range.Start + mem.Page(i)).Addr()
		phys := frame.Addr() // every page in the range aliases the same frame
		if err := t.mapOne(virt, phys, flags); err != nil {
			t.rollback(pages.Range.Start, i)
			return nil, err
		}
	}

	atomic.AddInt32(&t.live, 1)
	return &MappedPages{
		table:     t,
		pages:     pages,
		sharedFrm: frame,
		flags:     flags,
	}, nil
}

// rollback unmaps the first n pages of a range that failed partway through
// mapping, so a failed Map* call leaks no page-table entries.
func (t *Table) rollback(start mem.Page, n uint64) {
	for i := uint64(0); i < n; i++ {
		_ = t.unmapOne((start + mem.Page(i)).Addr())
	}
}

// Unmap walks down, invalidates mp's entries, and flushes the TLB on this
// CPU (spec.md §4.2 unmap). It releases mp's AllocatedPages (and, if mp
// owned them exclusively, its AllocatedFrames) back to their allocators.
func (t *Table) Unmap(mp *MappedPages) error {
	t.mu.Lock()

	for i := uint64(0); i < mp.pages.Range.Count; i++ {
		virt := (mp.pages.Range.Start + mem.Page(i)).Addr()
		if err := t.unmapOne(virt); err != nil {
			t.mu.Unlock()
			return err
		}
	}
	atomic.AddInt32(&t.live, -1)
	t.mu.Unlock()

	if mp.exclusive && mp.frames != nil {
		mp.frames.Release()
	}
	mp.pages.Release()
	mp.unmapped = true
	return nil
}

// Remap updates mp's flags in place and flushes the TLB (spec.md §4.2
// remap).
func (t *Table) Remap(mp *MappedPages, newFlags Flags) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if mp.table != t {
		return kernelerr.ErrCrossTables
	}
	if newFlags&Writable != 0 {
		newFlags |= Valid
	}

	for i := uint64(0); i < mp.pages.Range.Count; i++ {
		page := mp.pages.Range.Start + mem.Page(i)
		virt := page.Addr()

		phys, ok := t.translateLocked(virt)
		if !ok {
			return kernelerr.ErrNotMapped
		}
		if err := t.mapOne(virt, phys.Addr(), newFlags); err != nil {
			return err
		}
		t.backend.FlushTLB(virt)
	}

	mp.flags = newFlags
	return nil
}
