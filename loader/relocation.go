// https://github.com/nucleus-os/nucleus
//
// Use of this source code is governed by the license
// that can be found in the LICENSE file.

package loader

import (
	"debug/elf"
	"encoding/binary"
	"strings"

	"github.com/nucleus-os/nucleus/internal/exception"
	"github.com/nucleus-os/nucleus/kernelerr"
	"github.com/nucleus-os/nucleus/paging"
)

// faultDetail reads up to 16 bytes from the patch site (enough for any
// single x86-64 instruction) and disassembles it, for attaching to a
// relocation failure's diagnostic message. It returns "" if the site
// itself can't be read, which happens only when the out-of-range offset
// also falls outside the underlying MappedPages.
func faultDetail(slot sectionSlot, patchOffset uintptr) string {
	code, err := paging.ReadBytes(slot.pages, patchOffset, 16)
	if err != nil {
		return ""
	}
	pc := uint64(slot.pages.Range().Start.Addr() + patchOffset)
	return exception.DecodeFault(code, pc)
}

// applyRelocations implements spec.md §4.6 step 6 against every .rela.*
// section of f whose target section was mapped by buildCrate.
func applyRelocations(f *elf.File, layout map[*elf.Section]sectionSlot, syms []elf.Symbol, crate *LoadedCrate, ns *CrateNamespace) error {
	for _, relaSec := range f.Sections {
		if relaSec.Type != elf.SHT_RELA || !strings.HasPrefix(relaSec.Name, ".rela") {
			continue
		}
		if int(relaSec.Info) >= len(f.Sections) {
			continue
		}
		target := f.Sections[relaSec.Info]
		slot, ok := layout[target]
		if !ok {
			continue // relocations against a non-ALLOC section (e.g. debug info) are irrelevant
		}

		raw, err := relaSec.Data()
		if err != nil {
			return kernelerr.ErrElfParse.With(err)
		}
		if len(raw)%24 != 0 {
			return kernelerr.ErrElfParse
		}

		for off := 0; off < len(raw); off += 24 {
			var rel elf.Rela64
			rel.Off = binary.LittleEndian.Uint64(raw[off:])
			rel.Info = binary.LittleEndian.Uint64(raw[off+8:])
			rel.Addend = int64(binary.LittleEndian.Uint64(raw[off+16:]))

			if err := applyOne(rel, slot, f, layout, syms, crate, ns); err != nil {
				return err
			}
		}
	}
	return nil
}

func applyOne(rel elf.Rela64, slot sectionSlot, f *elf.File, crateLayout map[*elf.Section]sectionSlot, syms []elf.Symbol, crate *LoadedCrate, ns *CrateNamespace) error {
	symIdx := elf.R_SYM64(rel.Info)
	rtype := elf.R_X86_64(elf.R_TYPE64(rel.Info))

	if symIdx == 0 || int(symIdx) > len(syms) {
		return kernelerr.ErrElfParse
	}
	sym := syms[symIdx-1]

	if uintptr(rel.Off) >= slot.size {
		return &kernelerr.RelocOutOfRange{Detail: faultDetail(slot, slot.offset+uintptr(rel.Off))}
	}

	S, owner, err := resolveSymbolAddr(sym, f, crateLayout, crate, ns)
	if err != nil {
		if unresolved, ok := err.(*kernelerr.UnresolvedSymbol); ok {
			unresolved.Detail = faultDetail(slot, slot.offset+uintptr(rel.Off))
		}
		return err
	}

	patchOffset := slot.offset + uintptr(rel.Off)
	P := slot.pages.Range().Start.Addr() + patchOffset
	A := rel.Addend

	if ns != nil && owner != "" && owner != crate.Name {
		ns.recordCrossRef(owner, crossCrateReloc{
			patchPages:  slot.pages,
			patchOffset: patchOffset,
			kind:        rtype,
			addend:      A,
			symbolName:  sym.Name,
		})
	}

	switch rtype {
	case elf.R_X86_64_64:
		var buf [8]byte
		binary.LittleEndian.PutUint64(buf[:], uint64(int64(S)+A))
		return paging.CopyBytes(slot.pages, patchOffset, buf[:])

	case elf.R_X86_64_PC32, elf.R_X86_64_PLT32, elf.R_X86_64_GOTPCREL, elf.R_X86_64_GOTPCRELX:
		// GOT/PLT relocations are treated as plain PC-relative (spec.md
		// §4.6 step 6: "PLT (treat as PC-relative)"); this module never
		// builds a real GOT/PLT table, so the symbol's own address is
		// used directly in place of a GOT slot's address.
		value := int64(S) + A - int64(P)
		var buf [4]byte
		binary.LittleEndian.PutUint32(buf[:], uint32(int32(value)))
		return paging.CopyBytes(slot.pages, patchOffset, buf[:])

	case elf.R_X86_64_32, elf.R_X86_64_32S:
		var buf [4]byte
		binary.LittleEndian.PutUint32(buf[:], uint32(int64(S)+A))
		return paging.CopyBytes(slot.pages, patchOffset, buf[:])

	case elf.R_X86_64_TPOFF32:
		// TLS: S here is the offset of the symbol within the TLS
		// template rather than a linear address (spec.md §4.6 step 6:
		// "TLS (special: compute offset into the TLS template)").
		var buf [4]byte
		binary.LittleEndian.PutUint32(buf[:], uint32(int64(tlsOffset(sym))+A))
		return paging.CopyBytes(slot.pages, patchOffset, buf[:])

	case elf.R_X86_64_TPOFF64:
		var buf [8]byte
		binary.LittleEndian.PutUint64(buf[:], uint64(int64(tlsOffset(sym))+A))
		return paging.CopyBytes(slot.pages, patchOffset, buf[:])

	default:
		return kernelerr.ErrUnsupportedRT
	}
}

// tlsOffset returns a TLS symbol's offset within the TLS template image,
// which for a symbol defined in a TLS section debug/elf still reports as
// sym.Value (the section-relative offset ELF stores for SHF_TLS
// sections), so no further translation is required beyond the addend.
func tlsOffset(sym elf.Symbol) uintptr { return uintptr(sym.Value) }

// resolveSymbolAddr computes the absolute virtual address (or, for TLS
// symbols, the template offset) a relocation's symbol resolves to,
// following spec.md §4.6 step 6's three-tier search: the current crate's
// own section map, then the namespace (walking up), then a recursive
// load of a crate matching the symbol's expected prefix. The returned
// owner name is the crate that defines the symbol, empty when it is
// defined within crate itself (used to track cross-crate references for
// hot swapping).
func resolveSymbolAddr(sym elf.Symbol, f *elf.File, crateLayout map[*elf.Section]sectionSlot, crate *LoadedCrate, ns *CrateNamespace) (addr uintptr, owner string, err error) {
	if sym.Section != elf.SHN_UNDEF && int(sym.Section) < len(f.Sections) {
		sec := f.Sections[sym.Section]
		if slot, ok := crateLayout[sec]; ok {
			return slot.pages.Range().Start.Addr() + slot.offset + (uintptr(sym.Value) - uintptr(sec.Addr)), "", nil
		}
	}

	name := sym.Name
	if ls, ok := crate.Section(name); ok {
		return ls.VirtAddr, "", nil
	}
	if ls, ok := crate.Section(crate.Name + "::" + name); ok {
		return ls.VirtAddr, "", nil
	}

	if ns != nil {
		if e, ok := ns.GetSymbol(name); ok {
			if ls, ok2 := e.Section.(*LoadedSection); ok2 {
				return ls.VirtAddr, ownerName(ls), nil
			}
		}

		if crateName, ok := guessCrateName(name); ok {
			if _, err := ns.LoadCrate(crateName); err == nil {
				if e, ok := ns.GetSymbol(name); ok {
					if ls, ok2 := e.Section.(*LoadedSection); ok2 {
						return ls.VirtAddr, ownerName(ls), nil
					}
				}
			}
		}
	}

	return 0, "", &kernelerr.UnresolvedSymbol{Name: name}
}

func ownerName(ls *LoadedSection) string {
	if c := ls.Crate(); c != nil {
		return c.Name
	}
	return ""
}
