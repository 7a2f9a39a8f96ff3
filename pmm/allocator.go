// https://github.com/nucleus-os/nucleus
//
// Use of this source code is governed by the license
// that can be found in the LICENSE file.

// Package pmm implements the physical frame allocator described in
// spec.md §4.1: a single IRQ-safe, first-fit free-frame set seeded from the
// bootloader's memory map, handing out AllocatedFrames ownership tokens.
//
// Grounded on the teacher's dma.Region (dma/alloc.go, dma/dma.go): a
// container/list-based, coalescing first-fit allocator of address/size
// blocks. pmm generalizes that single fixed-purpose DMA heap into the
// spec's typed, range-based frame allocator with explicit allocate_at and
// ownership-token semantics.
package pmm

import (
	"runtime"
	"sync"

	"github.com/nucleus-os/nucleus/internal/rangeset"
	"github.com/nucleus-os/nucleus/kernelerr"
	"github.com/nucleus-os/nucleus/klog"
	"github.com/nucleus-os/nucleus/mem"
	"github.com/nucleus-os/nucleus/syncx"
)

// Allocator owns the set of physical frames not currently held by a live
// AllocatedFrames token.
type Allocator struct {
	mu   syncx.IRQMutex
	set  *rangeset.Set
	name string
}

// New creates a frame allocator seeded with the given initial free range
// (typically a single extent covering all usable RAM).
func New(name string, initial mem.FrameRange) *Allocator {
	return &Allocator{
		name: name,
		set:  rangeset.NewSet(rangeset.Extent{Start: uint64(initial.Start), Count: initial.Count}),
	}
}

// Reserve excludes a range from the allocator without requiring a caller to
// hold a token for it — used once at boot to subtract the kernel image,
// bootloader modules, and ACPI-reserved ranges from the memory map
// (spec.md §4.1 "Initial population") before any AllocatedFrames exist.
func (a *Allocator) Reserve(r mem.FrameRange) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.set.Reserve(rangeset.Extent{Start: uint64(r.Start), Count: r.Count})
}

// Allocate returns an ownership token for n contiguous frames, taken from
// the smallest free range of length >= n (ties broken by lowest address).
func (a *Allocator) Allocate(n uint64) (*AllocatedFrames, error) {
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
	return newToken(a, mem.FrameRange{Start: mem.Frame(ext.Start), Count: ext.Count}), nil
}

// AllocateByBytes rounds b up to a whole number of frames, then Allocates.
func (a *Allocator) AllocateByBytes(b mem.Size) (*AllocatedFrames, error) {
	n := b.Pages()
	if n == 0 {
		return nil, kernelerr.ErrZeroSizeReq
	}
	return a.Allocate(n)
}

// AllocateAt returns an ownership token for exactly [start, start+n) if the
// whole range is free, or AddressInUse/OutOfBounds otherwise.
func (a *Allocator) AllocateAt(start mem.Frame, n uint64) (*AllocatedFrames, error) {
	if n == 0 {
		return nil, kernelerr.ErrZeroSizeReq
	}

	want := rangeset.Extent{Start: uint64(start), Count: n}

	a.mu.Lock()
	defer a.mu.Unlock()

	if a.set.TakeAt(want) {
		return newToken(a, mem.FrameRange{Start: start, Count: n}), nil
	}

	if a.set.Overlaps(want) {
		return nil, kernelerr.ErrAddressInUse
	}
	return nil, kernelerr.ErrOutOfBounds
}

// release returns r to the free set; called from AllocatedFrames.Release
// and from its finalizer backstop.
func (a *Allocator) release(r mem.FrameRange) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.set.Release(rangeset.Extent{Start: uint64(r.Start), Count: r.Count})
}

// FreeCount returns the number of unallocated frames, used by tests
// asserting that a failed operation leaks no memory.
func (a *Allocator) FreeCount() uint64 {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.set.FreeCount()
}

// AllocatedFrames is the ownership token proving that Range is held
// exclusively by the current holder (spec.md §3). Dropping it (Release)
// returns the range to the allocator it came from; a finalizer provides a
// last-resort backstop against a forgotten Release so a leaked token does
// not leak the underlying frames forever, though callers should not rely on
// finalizer timing for correctness.
type AllocatedFrames struct {
	Range mem.FrameRange

	owner    *Allocator
	once     sync.Once
	released bool
}

func newToken(owner *Allocator, r mem.FrameRange) *AllocatedFrames {
	t := &AllocatedFrames{Range: r, owner: owner}
	runtime.SetFinalizer(t, func(t *AllocatedFrames) {
		if !t.released {
			klog.Warn("pmm", "AllocatedFrames collected without Release; returning via finalizer")
			t.Release()
		}
	})
	return t
}

// Release returns the range to its allocator. Safe to call more than once;
// only the first call has an effect.
func (t *AllocatedFrames) Release() {
	t.once.Do(func() {
		t.owner.release(t.Range)
		t.released = true
		runtime.SetFinalizer(t, nil)
	})
}

// Split divides the token at frame boundary `at` (relative to Range.Start),
// returning two tokens that together cover the same frames. Per spec.md §3
// invariant (c), tokens may be split but never joined back together.
func (t *AllocatedFrames) Split(at uint64) (left, right *AllocatedFrames, err error) {
	if at == 0 || at >= t.Range.Count {
		return nil, nil, kernelerr.ErrZeroSizeReq
	}

	if t.released {
		return nil, nil, kernelerr.ErrInvalidRelease
	}

	leftRange := mem.FrameRange{Start: t.Range.Start, Count: at}
	rightRange := mem.FrameRange{Start: t.Range.Start + mem.Frame(at), Count: t.Range.Count - at}

	t.released = true
	runtime.SetFinalizer(t, nil)

	return newToken(t.owner, leftRange), newToken(t.owner, rightRange), nil
}
