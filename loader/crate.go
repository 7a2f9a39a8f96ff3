// https://github.com/nucleus-os/nucleus
//
// Use of this source code is governed by the license
// that can be found in the LICENSE file.

package loader

import (
	"debug/elf"

	"github.com/ianlancetaylor/demangle"

	"github.com/nucleus-os/nucleus/kernelerr"
	"github.com/nucleus-os/nucleus/paging"
	"github.com/nucleus-os/nucleus/pmm"
	"github.com/nucleus-os/nucleus/vmm"
)

// buildCrate runs steps 1-6 of spec.md §4.6 against an in-memory ELF
// relocatable object: section scan, page allocation, copy, symbol intake,
// and relocation, resolving cross-crate symbols through ns (step 6: "look
// up the target symbol: first in the current crate's section map; then
// in the namespace"). Step 5 (publication) and step 7 (finalization) are
// the caller's responsibility, since they mutate ns's own maps.
func buildCrate(name string, data []byte, frames *pmm.Allocator, pages *vmm.Allocator, table *paging.Table, ns *CrateNamespace) (*LoadedCrate, error) {
	f, err := parseELF(data)
	if err != nil {
		return nil, err
	}

	secs, textSize, rodataSize, dataSize, bssSize, err := scan(f)
	if err != nil {
		return nil, err
	}

	text, rodata, data2, err := allocatePages(frames, pages, table, textSize, rodataSize, dataSize+bssSize)
	if err != nil {
		return nil, err
	}

	layout := make(map[*elf.Section]sectionSlot, len(secs))
	var textOff, rodataOff, dataOff uintptr
	for _, s := range secs {
		switch s.kind {
		case SectionText:
			textOff = align(textOff, uintptr(s.elfSection.Addralign))
			layout[s.elfSection] = sectionSlot{pages: text, offset: textOff, size: uintptr(s.elfSection.Size)}
			textOff += uintptr(s.elfSection.Size)
		case SectionRodata, SectionEhFrame, SectionGccExceptTable:
			rodataOff = align(rodataOff, uintptr(s.elfSection.Addralign))
			layout[s.elfSection] = sectionSlot{pages: rodata, offset: rodataOff, size: uintptr(s.elfSection.Size)}
			rodataOff += uintptr(s.elfSection.Size)
		case SectionData, SectionBss:
			dataOff = align(dataOff, uintptr(s.elfSection.Addralign))
			layout[s.elfSection] = sectionSlot{pages: data2, offset: dataOff, size: uintptr(s.elfSection.Size)}
			dataOff += uintptr(s.elfSection.Size)
		}
	}

	if err := copyAndZero(f, layout); err != nil {
		return nil, err
	}

	crate := newLoadedCrate(name)
	crate.TextPages, crate.RodataPages, crate.DataPages = text, rodata, data2

	syms, err := f.Symbols()
	if err != nil && err != elf.ErrNoSymbols {
		return nil, kernelerr.ErrElfParse.With(err)
	}

	for _, sym := range syms {
		if sym.Section == elf.SHN_UNDEF || sym.Section >= elf.SectionIndex(len(f.Sections)) {
			continue // undefined: resolved via relocation, not intake
		}
		bind := elf.ST_BIND(sym.Info)
		typ := elf.ST_TYPE(sym.Info)
		if typ != elf.STT_FUNC && typ != elf.STT_OBJECT && typ != elf.STT_NOTYPE {
			continue
		}
		if sym.Name == "" {
			continue
		}

		elfSec := f.Sections[sym.Section]
		slot, ok := layout[elfSec]
		if !ok {
			continue
		}

		global := bind == elf.STB_GLOBAL || bind == elf.STB_WEAK
		fullName := sym.Name
		if !global {
			fullName = name + "::" + sym.Name
		}

		size := uintptr(sym.Size)
		if size == 0 {
			size = 1
		}

		ls := &LoadedSection{
			Name:     fullName,
			Kind:     kindOf(elfSec),
			Global:   global,
			Pages:    slot.pages,
			Offset:   slot.offset + (uintptr(sym.Value) - uintptr(elfSec.Addr)),
			Size:     size,
			VirtAddr: slot.pages.Range().Start.Addr() + slot.offset + (uintptr(sym.Value) - uintptr(elfSec.Addr)),
		}
		crate.addSection(ls)
	}

	if err := applyRelocations(f, layout, syms, crate, ns); err != nil {
		return nil, err
	}

	if text != nil {
		if err := table.Remap(text, paging.Valid); err != nil {
			return nil, err
		}
	}
	if rodata != nil {
		if err := table.Remap(rodata, paging.Valid); err != nil {
			return nil, err
		}
	}

	return crate, nil
}

func kindOf(s *elf.Section) SectionKind {
	kind, _, _ := classify(s)
	return kind
}

// stripHash returns name with any Rust v0/legacy symbol hash suffix
// removed, via demangle's mangled-name recognition, so the resolver can
// match a relocation's raw symbol name against a hash-stripped published
// name (spec.md §4.6 step 5: "the resolver can match by either full name
// or hash-stripped name").
func stripHash(name string) string {
	demangled := demangle.Filter(name, demangle.NoParams, demangle.NoClones)
	if demangled == name {
		return name
	}
	return demangled
}
