// https://github.com/nucleus-os/nucleus
//
// Use of this source code is governed by the license
// that can be found in the LICENSE file.

// Package boot describes the structure handed from the bootloader to the
// kernel entry point (spec.md §6: "a structure containing the initial
// memory map ..., the set of loaded ELF object-file modules ..., and
// optionally a framebuffer descriptor").
//
// Grounded on the teacher's own board/<platform>-specific Init() functions
// (e.g. usbarmory/board.go), which receive a fixed, platform-defined
// description of available memory/devices at startup; this package
// generalizes that per-board struct into the portable handoff record every
// target of this module agrees on, regardless of which bootloader produced
// it (multiboot2, a UEFI stub, or a board-specific loader).
package boot

import "github.com/nucleus-os/nucleus/mem"

// MemoryType classifies one entry of the bootloader's memory map.
type MemoryType int

const (
	MemoryUsable MemoryType = iota
	MemoryReserved
	MemoryAcpiReclaimable
	MemoryAcpiNvs
	MemoryBadRAM
	MemoryKernelImage
	MemoryBootModule
)

// MemoryMapEntry is one (physical start, length, type) record from the
// bootloader's memory map (spec.md §6).
type MemoryMapEntry struct {
	Start mem.Frame
	Count uint64
	Type  MemoryType
}

// Module describes one ELF object-file module the bootloader loaded
// alongside the kernel image (spec.md §6: "the set of loaded ELF
// object-file modules (name + physical range)").
type Module struct {
	Name  string
	Start mem.Frame
	Count uint64
}

// PixelFormat enumerates the framebuffer pixel layouts a bootloader might
// hand off.
type PixelFormat int

const (
	PixelFormatRGB PixelFormat = iota
	PixelFormatBGR
)

// Framebuffer is the optional graphics descriptor spec.md §6 allows.
type Framebuffer struct {
	PhysAddr uintptr
	Width    uint32
	Height   uint32
	Pitch    uint32
	Format   PixelFormat
}

// Handoff is the complete bootloader→kernel handoff record.
type Handoff struct {
	MemoryMap   []MemoryMapEntry
	Modules     []Module
	Framebuffer *Framebuffer // nil if none was provided

	// AcpiRSDP is the physical address of the ACPI Root System
	// Description Pointer, the entry point for locating the MADT
	// (spec.md §6: "ACPI tables: root pointer, then the MADT...").
	AcpiRSDP uintptr
}

// UsableRanges returns every MemoryUsable entry's FrameRange, the input
// pmm.New's initial seed is built from (spec.md §4.1: "the physical
// allocator is seeded with the boot-loader's memory map").
func (h *Handoff) UsableRanges() []mem.FrameRange {
	var out []mem.FrameRange
	for _, e := range h.MemoryMap {
		if e.Type == MemoryUsable {
			out = append(out, mem.FrameRange{Start: e.Start, Count: e.Count})
		}
	}
	return out
}

// ReservedRanges returns every non-usable entry plus every module's
// physical range, the set pmm.Allocator.Reserve subtracts before any
// AllocatedFrames exist (spec.md §4.1: "subtracting the kernel image, the
// modules region, and any ACPI-reserved ranges").
func (h *Handoff) ReservedRanges() []mem.FrameRange {
	var out []mem.FrameRange
	for _, e := range h.MemoryMap {
		if e.Type != MemoryUsable {
			out = append(out, mem.FrameRange{Start: e.Start, Count: e.Count})
		}
	}
	for _, m := range h.Modules {
		out = append(out, mem.FrameRange{Start: m.Start, Count: m.Count})
	}
	return out
}

// ModuleByName returns the module named name, if present.
func (h *Handoff) ModuleByName(name string) (Module, bool) {
	for _, m := range h.Modules {
		if m.Name == name {
			return m, true
		}
	}
	return Module{}, false
}
