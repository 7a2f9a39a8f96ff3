// https://github.com/nucleus-os/nucleus
//
// Use of this source code is governed by the license
// that can be found in the LICENSE file.

// Package rangeset implements the sorted, coalescing free-list that backs
// both the physical frame allocator (pmm) and the virtual page allocator
// (vmm). It is grounded on the teacher's dma.Region: a single first-fit,
// container/list-based allocator of (address, size) blocks that tamago
// instantiates once per DMA heap regardless of whether the heap backs
// on-board RAM or an external memory region. pmm and vmm instantiate their
// own Set with frame/page-shaped wrappers instead of sharing one heap,
// since spec.md requires them to be distinct, independently-locked
// allocators.
package rangeset

import "container/list"

// Extent is a half-open range [Start, Start+Count) of address-space units
// (frames or pages); rangeset itself is agnostic to what a unit means.
type Extent struct {
	Start uint64
	Count uint64
}

func (e Extent) end() uint64 { return e.Start + e.Count }

// Set is a sorted, coalescing collection of free extents. It is not
// goroutine-safe on its own; callers (pmm.Allocator, vmm.Allocator) hold an
// IRQ-safe mutex around every method call.
type Set struct {
	free   *list.List // of Extent, sorted ascending by Start
	bounds Extent     // the initial extent NewSet was given
}

// NewSet creates a Set seeded with a single initial free extent.
func NewSet(initial Extent) *Set {
	s := &Set{free: list.New(), bounds: initial}
	if initial.Count > 0 {
		s.free.PushBack(initial)
	}
	return s
}

// Reserve removes ext (assumed entirely free) from the set, as when seeding
// the allocator with a memory map that excludes the kernel image, modules
// region, or ACPI-reserved ranges (spec.md §4.1 "Initial population").
func (s *Set) Reserve(ext Extent) {
	if ext.Count == 0 {
		return
	}

	for e := s.free.Front(); e != nil; {
		next := e.Next()
		f := e.Value.(Extent)

		if f.end() <= ext.Start || f.Start >= ext.end() {
			e = next
			continue
		}

		if f.Start < ext.Start {
			s.free.InsertBefore(Extent{Start: f.Start, Count: ext.Start - f.Start}, e)
		}
		if ext.end() < f.end() {
			s.free.InsertBefore(Extent{Start: ext.end(), Count: f.end() - ext.end()}, e)
		}
		s.free.Remove(e)
		e = next
	}
}

// BestFit finds the smallest free extent of length >= count, breaking ties
// by lowest start address (spec.md §4.1: "smallest free range of length ≥ n
// (first-fit with coalescing tie-break)"). It returns the owning list
// element so the caller can carve it in place, or nil if none fits.
func (s *Set) BestFit(count uint64) *list.Element {
	var best *list.Element
	var bestExt Extent

	for e := s.free.Front(); e != nil; e = e.Next() {
		ext := e.Value.(Extent)
		if ext.Count < count {
			continue
		}
		if best == nil || ext.Count < bestExt.Count {
			best, bestExt = e, ext
		}
	}

	return best
}

// Take carves an extent of exactly count units out of the free list
// element e (as returned by BestFit or a caller-located exact match),
// leaving any remainder as a new free extent, and returns the carved
// extent starting at the lowest address of e.
func (s *Set) Take(e *list.Element, count uint64) Extent {
	ext := e.Value.(Extent)
	taken := Extent{Start: ext.Start, Count: count}

	if ext.Count == count {
		s.free.Remove(e)
	} else {
		e.Value = Extent{Start: ext.Start + count, Count: ext.Count - count}
	}

	return taken
}

// TakeAt carves the exact extent want out of the set if it is entirely
// free, returning ok=false otherwise (spec.md §4.1 allocate_at).
func (s *Set) TakeAt(want Extent) (ok bool) {
	for e := s.free.Front(); e != nil; e = e.Next() {
		f := e.Value.(Extent)
		if f.Start <= want.Start && want.end() <= f.end() {
			if f.Start < want.Start {
				s.free.InsertBefore(Extent{Start: f.Start, Count: want.Start - f.Start}, e)
			}
			if want.end() < f.end() {
				s.free.InsertBefore(Extent{Start: want.end(), Count: f.end() - want.end()}, e)
			}
			s.free.Remove(e)
			return true
		}
	}
	return false
}

// Overlaps reports whether any unit of want lies inside the extent the set
// was created with or inside a free extent, i.e. is known to the set
// whether free or owned. TakeAt's callers use it to distinguish
// AddressInUse (part of the range is known but it is not entirely free)
// from OutOfBounds (the range falls outside any known extent, free or
// owned).
func (s *Set) Overlaps(want Extent) bool {
	if s.bounds.Start < want.end() && want.Start < s.bounds.end() {
		return true
	}
	for e := s.free.Front(); e != nil; e = e.Next() {
		f := e.Value.(Extent)
		if f.Start < want.end() && want.Start < f.end() {
			return true
		}
	}
	return false
}

// Release returns ext to the free list, coalescing it with adjacent free
// extents (spec.md §4.1: "Drop of token → insert back, coalesce with
// adjacent free ranges"), mirroring the teacher's dma.defrag().
func (s *Set) Release(ext Extent) {
	if ext.Count == 0 {
		return
	}

	var prev *list.Element
	for e := s.free.Front(); e != nil; e = e.Next() {
		f := e.Value.(Extent)
		if f.Start >= ext.end() {
			ins := s.free.InsertBefore(ext, e)
			s.coalesceAround(ins)
			return
		}
		prev = e
	}

	if prev != nil {
		ins := s.free.InsertAfter(ext, prev)
		s.coalesceAround(ins)
		return
	}

	ins := s.free.PushBack(ext)
	s.coalesceAround(ins)
}

// coalesceAround merges e with its immediate free-list neighbors if they
// are address-adjacent.
func (s *Set) coalesceAround(e *list.Element) {
	if prev := e.Prev(); prev != nil {
		p := prev.Value.(Extent)
		cur := e.Value.(Extent)
		if p.end() == cur.Start {
			e.Value = Extent{Start: p.Start, Count: p.Count + cur.Count}
			s.free.Remove(prev)
		}
	}
	if next := e.Next(); next != nil {
		n := next.Value.(Extent)
		cur := e.Value.(Extent)
		if cur.end() == n.Start {
			e.Value = Extent{Start: cur.Start, Count: cur.Count + n.Count}
			s.free.Remove(next)
		}
	}
}

// FreeCount returns the total number of free units across all extents, used
// by allocator-level tests asserting that a failed load leaks no pages
// (spec.md §8 scenario 4).
func (s *Set) FreeCount() (total uint64) {
	for e := s.free.Front(); e != nil; e = e.Next() {
		total += e.Value.(Extent).Count
	}
	return
}
