// https://github.com/nucleus-os/nucleus
//
// Use of this source code is governed by the license
// that can be found in the LICENSE file.

package loader

import (
	"bufio"
	"bytes"
	"debug/elf"
	"strconv"
	"strings"

	"github.com/nucleus-os/nucleus/kernelerr"
)

// BootstrapKernelCrate constructs the synthetic LoadedCrate representing
// the running kernel image itself (spec.md §4.6 "Bootstrapping the kernel
// itself"): "the loader parses ... the kernel's ELF symbol table
// directly ... to construct a synthetic LoadedCrate representing the
// running image. Its sections point at the already-mapped text/rodata/
// data pages; no relocation is performed."
//
// kernelELF is the statically-linked kernel binary's own bytes (made
// available to the loader as a boot.Module, typically); unlike buildCrate
// this never allocates fresh pages — every symbol's address is already
// its final, linked virtual address, so LoadedSection.Pages is left nil
// and VirtAddr is taken directly from the symbol table.
func BootstrapKernelCrate(name string, kernelELF []byte) (*LoadedCrate, error) {
	f, err := elf.NewFile(bytes.NewReader(kernelELF))
	if err != nil {
		return nil, kernelerr.ErrElfParse.With(err)
	}

	syms, err := f.Symbols()
	if err != nil && err != elf.ErrNoSymbols {
		return nil, kernelerr.ErrElfParse.With(err)
	}

	crate := newLoadedCrate(name)
	for _, sym := range syms {
		if !isBootstrappable(sym, f) {
			continue
		}

		global := isGlobal(sym)
		fullName := sym.Name
		if !global {
			fullName = name + "::" + sym.Name
		}
		size := uintptr(sym.Size)
		if size == 0 {
			size = 1
		}

		crate.addSection(&LoadedSection{
			Name:     fullName,
			Kind:     kindOf(f.Sections[sym.Section]),
			Global:   global,
			Pages:    nil,
			Offset:   uintptr(sym.Value),
			Size:     size,
			VirtAddr: uintptr(sym.Value),
		})
	}
	return crate, nil
}

// SymDumpEntry is one parsed line of a companion `.sym` text dump, the
// fallback bootstrap source spec.md §4.6 names when the kernel's own ELF
// symbol table is unavailable (e.g. stripped at link time).
type SymDumpEntry struct {
	Addr   uintptr
	Size   uintptr
	Kind   SectionKind
	Global bool
	Name   string
}

// ParseSymDump reads an `nm -S`-style dump: one symbol per line formatted
// as "<hex addr> <hex size> <type char> <name>", the type char following
// nm's convention (uppercase = global/external, lowercase = local;
// T/t=text, D/d=data, R/r=rodata, B/b=bss).
func ParseSymDump(dump string) ([]SymDumpEntry, error) {
	var out []SymDumpEntry
	sc := bufio.NewScanner(strings.NewReader(dump))
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if line == "" {
			continue
		}
		fields := strings.Fields(line)
		if len(fields) != 4 {
			return nil, kernelerr.ErrElfParse
		}

		addr, err := strconv.ParseUint(fields[0], 16, 64)
		if err != nil {
			return nil, kernelerr.ErrElfParse.With(err)
		}
		size, err := strconv.ParseUint(fields[1], 16, 64)
		if err != nil {
			return nil, kernelerr.ErrElfParse.With(err)
		}
		if size == 0 {
			size = 1
		}

		typeChar := fields[2]
		if len(typeChar) != 1 {
			return nil, kernelerr.ErrElfParse
		}
		kind, global, ok := symDumpKind(typeChar[0])
		if !ok {
			continue // skip symbol kinds we don't model (e.g. 'U' undefined, 'N' debug)
		}

		out = append(out, SymDumpEntry{
			Addr: uintptr(addr), Size: uintptr(size), Kind: kind, Global: global, Name: fields[3],
		})
	}
	return out, nil
}

func symDumpKind(c byte) (kind SectionKind, global bool, ok bool) {
	global = c >= 'A' && c <= 'Z'
	switch c | 0x20 { // lowercase for the switch, global tracked separately
	case 't':
		return SectionText, global, true
	case 'd':
		return SectionData, global, true
	case 'r':
		return SectionRodata, global, true
	case 'b':
		return SectionBss, global, true
	default:
		return 0, false, false
	}
}

// BootstrapKernelCrateFromSymDump builds the synthetic kernel crate from a
// pre-parsed `.sym` dump instead of the kernel's own ELF symbol table
// (spec.md §4.6 bootstrap path (b)).
func BootstrapKernelCrateFromSymDump(name string, entries []SymDumpEntry) *LoadedCrate {
	crate := newLoadedCrate(name)
	for _, e := range entries {
		fullName := e.Name
		if !e.Global {
			fullName = name + "::" + e.Name
		}
		crate.addSection(&LoadedSection{
			Name:     fullName,
			Kind:     e.Kind,
			Global:   e.Global,
			Offset:   e.Addr,
			Size:     e.Size,
			VirtAddr: e.Addr,
		})
	}
	return crate
}

func isBootstrappable(sym elf.Symbol, f *elf.File) bool {
	if sym.Section == elf.SHN_UNDEF || int(sym.Section) >= len(f.Sections) {
		return false
	}
	if sym.Name == "" {
		return false
	}
	switch elf.ST_TYPE(sym.Info) {
	case elf.STT_FUNC, elf.STT_OBJECT, elf.STT_NOTYPE:
		return true
	default:
		return false
	}
}

func isGlobal(sym elf.Symbol) bool {
	bind := elf.ST_BIND(sym.Info)
	return bind == elf.STB_GLOBAL || bind == elf.STB_WEAK
}
