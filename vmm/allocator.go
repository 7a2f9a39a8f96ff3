// https://github.com/nucleus-os/nucleus
//
// Use of this source code is governed by the license
// that can be found in the LICENSE file.

// Package vmm implements the virtual page allocator described in
// spec.md §4.1: a single IRQ-safe, first-fit free-page set seeded with the
// canonical higher-half kernel region minus statically reserved zones
// (direct physical map, recursive page-table slot, MMIO windows), handing
// out AllocatedPages ownership tokens.
//
// Grounded, like pmm, on the teacher's dma.Region first-fit block
// allocator (dma/alloc.go), generalized to the page-indexed, typed
// allocator spec.md requires and sharing its free-list core with pmm via
// internal/rangeset — the two remain structurally identical but distinct
// types, exactly as spec.md §4.1 calls for.
package vmm

import (
	"runtime"
	"sync"

	"github.com/nucleus-os/nucleus/internal/rangeset"
	"github.com/nucleus-os/nucleus/kernelerr"
	"github.com/nucleus-os/nucleus/klog"
	"github.com/nucleus-os/nucleus/mem"
	"github.com/nucleus-os/nucleus/syncx"
)

// Allocator owns the set of virtual pages not currently held by a live
// AllocatedPages token.
type Allocator struct {
	mu   syncx.IRQMutex
	set  *rangeset.Set
	name string
}

// New creates a page allocator seeded with the given initial free range.
func New(name string, initial mem.PageRange) *Allocator {
	return &Allocator{
		name: name,
		set:  rangeset.NewSet(rangeset.Extent{Start: uint64(initial.Start), Count: initial.Count}),
	}
}

// Reserve excludes a range from the allocator without a token — used once
// at boot to carve out the direct physical map, the recursive page-table
// slot, and MMIO windows before any AllocatedPages exist.
func (a *Allocator) Reserve(r mem.PageRange) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.set.Reserve(rangeset.Extent{Start: uint64(r.Start), Count: r.Count})
}

// Allocate returns an ownership token for n contiguous pages.
func (a *Allocator) Allocate(n uint64) (*AllocatedPages, error) {
	if n == 0 {
		return nil, kernelerr.ErrZeroSizeReq
	}

	a.mu.Lock()
	defer a.mu.Unlock()

	e := a.set.BestFit(n)
	if e == nil {
		return nil, kernelerr.ErrExhausted
	}

	ext := a.set.Take(e, n)
	return newToken(a, mem.PageRange{Start: mem.Page(ext.Start), Count: ext.Count}), nil
}

// AllocateByBytes rounds b up to a whole number of pages, then Allocates.
func (a *Allocator) AllocateByBytes(b mem.Size) (*AllocatedPages, error) {
	n := b.Pages()
	if n == 0 {
		return nil, kernelerr.ErrZeroSizeReq
	}
	return a.Allocate(n)
}

// AllocateAt returns an ownership token for exactly [start, start+n) if the
// whole range is free, or AddressInUse/OutOfBounds otherwise.
func (a *Allocator) AllocateAt(start mem.Page, n uint64) (*AllocatedPages, error) {
	if n == 0 {
		return nil, kernelerr.ErrZeroSizeReq
	}

	want := rangeset.Extent{Start: uint64(start), Count: n}

	a.mu.Lock()
	defer a.mu.Unlock()

	if a.set.TakeAt(want) {
		return newToken(a, mem.PageRange{Start: start, Count: n}), nil
	}

	if a.set.Overlaps(want) {
		return nil, kernelerr.ErrAddressInUse
	}
	return nil, kernelerr.ErrOutOfBounds
}

func (a *Allocator) release(r mem.PageRange) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.set.Release(rangeset.Extent{Start: uint64(r.Start), Count: r.Count})
}

// FreeCount returns the number of unallocated pages.
func (a *Allocator) FreeCount() uint64 {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.set.FreeCount()
}

// AllocatedPages is the ownership token proving that Range is held
// exclusively by the current holder (spec.md §3).
type AllocatedPages struct {
	Range mem.PageRange

	owner    *Allocator
	once     sync.Once
	released bool
}

func newToken(owner *Allocator, r mem.PageRange) *AllocatedPages {
	t := &AllocatedPages{Range: r, owner: owner}
	runtime.SetFinalizer(t, func(t *AllocatedPages) {
		if !t.released {
			klog.Warn("vmm", "AllocatedPages collected without Release; returning via finalizer")
			t.Release()
		}
	})
	return t
}

// Release returns the range to its allocator; idempotent.
func (t *AllocatedPages) Release() {
	t.once.Do(func() {
		t.owner.release(t.Range)
		t.released = true
		runtime.SetFinalizer(t, nil)
	})
}

// Split divides the token at page boundary `at`, returning two tokens that
// together cover the same pages (spec.md §3 invariant (c): splittable, not
// joinable).
func (t *AllocatedPages) Split(at uint64) (left, right *AllocatedPages, err error) {
	if at == 0 || at >= t.Range.Count {
		return nil, nil, kernelerr.ErrZeroSizeReq
	}
	if t.released {
		return nil, nil, kernelerr.ErrInvalidRelease
	}

	leftRange := mem.PageRange{Start: t.Range.Start, Count: at}
	rightRange := mem.PageRange{Start: t.Range.Start + mem.Page(at), Count: t.Range.Count - at}

	t.released = true
	runtime.SetFinalizer(t, nil)

	return newToken(t.owner, leftRange), newToken(t.owner, rightRange), nil
}
