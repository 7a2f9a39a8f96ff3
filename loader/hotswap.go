// https://github.com/nucleus-os/nucleus
//
// Use of this source code is governed by the license
// that can be found in the LICENSE file.

package loader

import (
	"debug/elf"
	"encoding/binary"

	"golang.org/x/mod/semver"

	"github.com/nucleus-os/nucleus/kernelerr"
	"github.com/nucleus-os/nucleus/mem"
	"github.com/nucleus-os/nucleus/paging"
)

// ErrNotNewer is returned by HotSwap when the replacement crate's version
// does not compare strictly greater than the currently-loaded one.
var ErrNotNewer = &kernelerr.Error{Module: "loader", Message: "hot-swap replacement is not a newer version"}

// HotSwap replaces the crate named name with a new version built from
// newData (spec.md §4.6 "Hot swapping"): loads the new crate into fresh
// pages, rewrites every recorded cross-crate relocation that referenced
// the old crate to point at the new one, then unreferences the old crate
// so its pages are freed once no reference remains.
func (n *CrateNamespace) HotSwap(name, newVersion string, newData []byte) (*LoadedCrate, error) {
	old, ok := n.CrateByName(name)
	if !ok {
		return nil, kernelerr.ErrCrateNotFound
	}
	if old.Version != "" && newVersion != "" && semver.Compare(newVersion, old.Version) <= 0 {
		return nil, ErrNotNewer
	}

	next, err := buildCrate(name, newData, n.frames, n.pages, n.table, n)
	if err != nil {
		return nil, err
	}
	next.Version = newVersion
	next.Generation = old.Generation + 1

	n.crossRefsMu.Lock()
	refs := n.crossRefs[name]
	delete(n.crossRefs, name)
	n.crossRefsMu.Unlock()

	for _, r := range refs {
		if err := rewriteCrossRef(r, next); err != nil {
			return nil, err
		}
	}

	n.publish(next)
	old.Release()
	return next, nil
}

// rewriteCrossRef recomputes and re-patches one previously-applied
// relocation so it points at next's matching symbol instead of the crate
// it was originally resolved against.
func rewriteCrossRef(r crossCrateReloc, next *LoadedCrate) error {
	ls, ok := next.Section(r.symbolName)
	if !ok {
		return &kernelerr.UnresolvedSymbol{Name: r.symbolName}
	}

	S := ls.VirtAddr
	P := r.patchPages.Range().Start.Addr() + r.patchOffset
	A := r.addend

	switch r.kind {
	case elf.R_X86_64_64:
		var buf [8]byte
		binary.LittleEndian.PutUint64(buf[:], uint64(int64(S)+A))
		return paging.CopyBytes(r.patchPages, r.patchOffset, buf[:])

	case elf.R_X86_64_PC32, elf.R_X86_64_PLT32, elf.R_X86_64_GOTPCREL, elf.R_X86_64_GOTPCRELX:
		var buf [4]byte
		binary.LittleEndian.PutUint32(buf[:], uint32(int32(int64(S)+A-int64(P))))
		return paging.CopyBytes(r.patchPages, r.patchOffset, buf[:])

	case elf.R_X86_64_32, elf.R_X86_64_32S:
		var buf [4]byte
		binary.LittleEndian.PutUint32(buf[:], uint32(int64(S)+A))
		return paging.CopyBytes(r.patchPages, r.patchOffset, buf[:])

	case elf.R_X86_64_TPOFF32:
		var buf [4]byte
		binary.LittleEndian.PutUint32(buf[:], uint32(int64(S)+A))
		return paging.CopyBytes(r.patchPages, r.patchOffset, buf[:])

	case elf.R_X86_64_TPOFF64:
		var buf [8]byte
		binary.LittleEndian.PutUint64(buf[:], uint64(int64(S)+A))
		return paging.CopyBytes(r.patchPages, r.patchOffset, buf[:])

	default:
		return kernelerr.ErrUnsupportedRT
	}
}

// ConstantOffsetFix computes the instruction pointer's equivalent
// position in a newly swapped-in text region, given it previously pointed
// somewhere within the old text region (spec.md §4.6 "Hot swapping":
// "fixing up any in-flight task's saved instruction pointer if it lies
// within the swapped text (a dedicated constant offset fix routine)").
// ok is false if ip does not fall within oldText at all, in which case
// the task was not executing in the swapped crate and needs no fixup.
func ConstantOffsetFix(ip uintptr, oldText, newText mem.PageRange) (newIP uintptr, ok bool) {
	start := oldText.Start.Addr()
	end := start + uintptr(oldText.Count)*uintptr(mem.PageSize)
	if ip < start || ip >= end {
		return 0, false
	}
	offset := ip - start
	return newText.Start.Addr() + offset, true
}
