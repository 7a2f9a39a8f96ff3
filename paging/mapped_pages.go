// https://github.com/nucleus-os/nucleus
//
// Use of this source code is governed by the license
// that can be found in the LICENSE file.

package paging

import (
	"reflect"
	"unsafe"

	"github.com/nucleus-os/nucleus/kernelerr"
	"github.com/nucleus-os/nucleus/mem"
	"github.com/nucleus-os/nucleus/pmm"
	"github.com/nucleus-os/nucleus/vmm"
)

// MappedPages is the sole capability granting access to a live virtual
// range (spec.md §3). It bundles the AllocatedPages it covers, the
// *Table it belongs to, and the flags under which it was mapped; typed
// access to the underlying memory goes exclusively through AsType/
// AsSlice/IntoBorrowed, mirroring Theseus's as_type<T>/as_slice<T>/
// into_borrowed<T>.
type MappedPages struct {
	table  *Table
	pages  *vmm.AllocatedPages
	frames *pmm.AllocatedFrames // nil if exclusive is false

	// sharedFrm is set instead of frames for a non-exclusive mapping
	// (MapToNonExclusive), documenting which physical frame every page
	// in the range aliases without this MappedPages owning it.
	sharedFrm mem.Frame
	exclusive bool

	flags    Flags
	unmapped bool
}

// Range returns the virtual page range this MappedPages covers.
func (mp *MappedPages) Range() mem.PageRange { return mp.pages.Range }

// Flags returns the access flags this range was mapped with.
func (mp *MappedPages) Flags() Flags { return mp.flags }

// Exclusive reports whether this MappedPages owns its backing frames (as
// opposed to a non-exclusive MMIO alias via MapToNonExclusive).
func (mp *MappedPages) Exclusive() bool { return mp.exclusive }

// Unmap releases this MappedPages through its owning Table, equivalent to
// calling Table.Unmap(mp). Go has no destructors, so unlike Theseus's
// Drop impl this must be called explicitly — callers are expected to
// `defer mp.Unmap()` immediately after a successful map, the way the
// teacher's dma.Region callers `defer r.Release(addr)` immediately after
// Reserve.
func (mp *MappedPages) Unmap() error {
	if mp.unmapped {
		return nil
	}
	return mp.table.Unmap(mp)
}

func (mp *MappedPages) bytes() []byte {
	var b []byte
	hdr := (*reflect.SliceHeader)(unsafe.Pointer(&b))
	hdr.Data = mp.pages.Range.Start.Addr()
	hdr.Len = int(mp.pages.Range.Count * uint64(mem.PageSize))
	hdr.Cap = hdr.Len
	return b
}

// AsType returns a pointer to a T located at byteOffset within the mapped
// range, the equivalent of Theseus's as_type<T>. It panics if the typed
// access would run past the end of the mapping or the range is unmapped,
// since an out-of-range typed access here is a programming error, not a
// recoverable condition (spec.md §3 invariant (b)).
func AsType[T any](mp *MappedPages, byteOffset uintptr) *T {
	if mp.unmapped {
		panic("paging: AsType on unmapped MappedPages")
	}
	var zero T
	size := unsafe.Sizeof(zero)
	total := uintptr(mp.pages.Range.Count) * uintptr(mem.PageSize)
	if byteOffset+size > total {
		panic("paging: AsType offset out of range")
	}
	return (*T)(unsafe.Pointer(mp.pages.Range.Start.Addr() + byteOffset))
}

// AsSlice returns a []T of length n located at byteOffset, the equivalent
// of Theseus's as_slice<T>.
func AsSlice[T any](mp *MappedPages, byteOffset uintptr, n int) []T {
	if mp.unmapped {
		panic("paging: AsSlice on unmapped MappedPages")
	}
	var zero T
	size := unsafe.Sizeof(zero)
	total := uintptr(mp.pages.Range.Count) * uintptr(mem.PageSize)
	if byteOffset+size*uintptr(n) > total {
		panic("paging: AsSlice range out of bounds")
	}

	var s []T
	hdr := (*reflect.SliceHeader)(unsafe.Pointer(&s))
	hdr.Data = mp.pages.Range.Start.Addr() + byteOffset
	hdr.Len = n
	hdr.Cap = n
	return s
}

// Borrowed is the handle returned by IntoBorrowed: a typed view that keeps
// its MappedPages alive (by reference) for as long as the borrow is held,
// modeling Theseus's into_borrowed<T>, which ties the lifetime of the
// returned reference to the MappedPages it came from.
type Borrowed[T any] struct {
	mp  *MappedPages
	ptr *T
}

// Get returns the borrowed value's pointer.
func (b Borrowed[T]) Get() *T { return b.ptr }

// IntoBorrowed consumes mp conceptually (the caller must not call Unmap
// directly while a Borrowed value derived from it is in use) and returns a
// typed handle into it.
func IntoBorrowed[T any](mp *MappedPages, byteOffset uintptr) Borrowed[T] {
	return Borrowed[T]{mp: mp, ptr: AsType[T](mp, byteOffset)}
}

// CopyBytes is a small helper used by the loader (§4.6 step 3, "copy raw
// bytes from the ELF file into its assigned offset") to write into a
// MappedPages without going through AsSlice's panic-on-misuse path when
// the exact length is already known to be in range.
func CopyBytes(mp *MappedPages, byteOffset uintptr, src []byte) error {
	total := uintptr(mp.pages.Range.Count) * uintptr(mem.PageSize)
	if byteOffset+uintptr(len(src)) > total {
		return kernelerr.ErrMapping
	}
	dst := mp.bytes()[byteOffset : byteOffset+uintptr(len(src))]
	copy(dst, src)
	return nil
}

// ZeroRange zero-fills byteOffset..byteOffset+n within mp (loader §4.6
// step 3, "For bss, zero-fill").
func ZeroRange(mp *MappedPages, byteOffset uintptr, n uintptr) error {
	total := uintptr(mp.pages.Range.Count) * uintptr(mem.PageSize)
	if byteOffset+n > total {
		return kernelerr.ErrMapping
	}
	dst := mp.bytes()[byteOffset : byteOffset+n]
	for i := range dst {
		dst[i] = 0
	}
	return nil
}

// ReadBytes returns a copy of byteOffset..byteOffset+n within mp, used by
// relocation application to read a section's current contents before
// patching them (§4.6 step 6).
func ReadBytes(mp *MappedPages, byteOffset uintptr, n uintptr) ([]byte, error) {
	total := uintptr(mp.pages.Range.Count) * uintptr(mem.PageSize)
	if byteOffset+n > total {
		return nil, kernelerr.ErrMapping
	}
	out := make([]byte, n)
	copy(out, mp.bytes()[byteOffset:byteOffset+n])
	return out, nil
}
