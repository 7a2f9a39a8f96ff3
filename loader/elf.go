// https://github.com/nucleus-os/nucleus
//
// Use of this source code is governed by the license
// that can be found in the LICENSE file.

package loader

import (
	"bytes"
	"debug/elf"
	"fmt"

	"github.com/nucleus-os/nucleus/kernelerr"
	"github.com/nucleus-os/nucleus/mem"
	"github.com/nucleus-os/nucleus/paging"
	"github.com/nucleus-os/nucleus/pmm"
	"github.com/nucleus-os/nucleus/vmm"
)

// scannedSection is one SHF_ALLOC section of the input object, classified
// and measured but not yet assigned an address (spec.md §4.6 step 1).
type scannedSection struct {
	elfSection *elf.Section
	kind       SectionKind
}

// scan classifies every SHF_ALLOC section of f and returns the cumulative
// byte size needed per class (spec.md §4.6 step 1: "Measure cumulative
// sizes per class").
func scan(f *elf.File) (secs []scannedSection, textSize, rodataSize, dataSize, bssSize uintptr, err error) {
	for _, s := range f.Sections {
		if s.Flags&elf.SHF_ALLOC == 0 {
			continue
		}

		kind, size, aligned := classify(s)
		secs = append(secs, scannedSection{elfSection: s, kind: kind})

		switch kind {
		case SectionText:
			textSize = align(textSize, aligned) + size
		case SectionRodata, SectionEhFrame, SectionGccExceptTable:
			rodataSize = align(rodataSize, aligned) + size
		case SectionData:
			dataSize = align(dataSize, aligned) + size
		case SectionBss:
			bssSize = align(bssSize, aligned) + size
		}
	}
	return secs, textSize, rodataSize, dataSize, bssSize, nil
}

func classify(s *elf.Section) (kind SectionKind, size, align uintptr) {
	align = uintptr(s.Addralign)
	if align == 0 {
		align = 1
	}
	size = uintptr(s.Size)

	switch {
	case s.Name == ".eh_frame":
		return SectionEhFrame, size, align
	case s.Name == ".gcc_except_table":
		return SectionGccExceptTable, size, align
	case s.Type == elf.SHT_NOBITS:
		return SectionBss, size, align
	case s.Flags&elf.SHF_EXECINSTR != 0:
		return SectionText, size, align
	case s.Flags&elf.SHF_WRITE != 0:
		return SectionData, size, align
	default:
		return SectionRodata, size, align
	}
}

func align(off, a uintptr) uintptr {
	if a <= 1 {
		return off
	}
	return (off + a - 1) &^ (a - 1)
}

// allocatePages requests three MappedPages, one per class that needs
// space, rounding each up to whole pages (spec.md §4.6 step 2: "Request
// three MappedPages ...: one executable, one read-only, one writable").
func allocatePages(frames *pmm.Allocator, pages *vmm.Allocator, table *paging.Table, textSize, rodataSize, dataAndBssSize uintptr) (text, rodata, data *paging.MappedPages, err error) {
	alloc := func(size uintptr, flags paging.Flags) (*paging.MappedPages, error) {
		if size == 0 {
			return nil, nil
		}
		n := mem.Size(size).Pages()
		ap, err := pages.Allocate(n)
		if err != nil {
			return nil, err
		}
		af, err := frames.Allocate(n)
		if err != nil {
			ap.Release()
			return nil, err
		}
		mp, err := table.MapAllocatedPagesTo(ap, af, flags)
		if err != nil {
			af.Release()
			ap.Release()
			return nil, err
		}
		return mp, nil
	}

	// Both text and rodata are mapped writable here so §4.6 step 3 (copy)
	// and step 6 (relocation patching) can write into them directly;
	// buildCrate drops Writable from both once loading finishes (the
	// "temporarily remap ... as writable ... restore flags" of step 6,
	// applied once at the end rather than per relocation).
	text, err = alloc(textSize, paging.Valid|paging.Writable)
	if err != nil {
		return nil, nil, nil, err
	}
	rodata, err = alloc(rodataSize, paging.Valid|paging.Writable)
	if err != nil {
		return nil, nil, nil, err
	}
	data, err = alloc(dataAndBssSize, paging.Valid|paging.Writable)
	if err != nil {
		return nil, nil, nil, err
	}
	return text, rodata, data, nil
}

// copyAndZero copies non-bss sections into their assigned offset and
// zero-fills bss regions (spec.md §4.6 step 3).
func copyAndZero(f *elf.File, layout map[*elf.Section]sectionSlot) error {
	for s, slot := range layout {
		if s.Type == elf.SHT_NOBITS {
			if err := paging.ZeroRange(slot.pages, slot.offset, slot.size); err != nil {
				return err
			}
			continue
		}
		data, err := s.Data()
		if err != nil {
			return kernelerr.ErrElfParse.With(err)
		}
		if err := paging.CopyBytes(slot.pages, slot.offset, data); err != nil {
			return err
		}
	}
	return nil
}

// sectionSlot records where one ELF section landed within its class's
// MappedPages (spec.md §4.6 step 2: "record (mapped-pages ref, offset,
// size) per section").
type sectionSlot struct {
	pages  *paging.MappedPages
	offset uintptr
	size   uintptr
}

func parseELF(data []byte) (*elf.File, error) {
	f, err := elf.NewFile(bytes.NewReader(data))
	if err != nil {
		return nil, kernelerr.ErrElfParse.With(err)
	}
	if f.Class != elf.ELFCLASS64 {
		return nil, kernelerr.ErrElfParse.With(fmt.Errorf("unsupported ELF class %v", f.Class))
	}
	return f, nil
}
