// https://github.com/nucleus-os/nucleus
//
// Use of this source code is governed by the license
// that can be found in the LICENSE file.

// Package acpi parses the subset of the ACPI tables the core needs to bring
// up SMP: the Multiple APIC Description Table (MADT) and its variable-length
// interrupt-controller-structure entries (spec.md §4.3, §6).
//
// Grounded on the teacher's packed little-endian MMIO register decoding
// style (amd64/lapic/lapic.go, internal/reg), generalized here to decoding a
// table handed in by the bootloader rather than a live register window.
package acpi

import (
	"encoding/binary"

	"github.com/nucleus-os/nucleus/kernelerr"
)

// Entry type bytes within the MADT interrupt-controller-structure list
// (ACPI spec §5.2.12).
const (
	entryLocalApic            = 0
	entryIoApic               = 1
	entryInterruptSrcOverride = 2
	entryNmi                  = 4
)

// LocalApic records one MADT Processor Local APIC Structure.
type LocalApic struct {
	ProcessorID uint8
	ApicID      uint8
	Enabled     bool
}

// IoApic records one MADT I/O APIC Structure.
type IoApic struct {
	ID       uint8
	PhysAddr uint32
	GsiBase  uint32
}

// InterruptSourceOverride records a legacy ISA IRQ remapped to a different
// Global System Interrupt.
type InterruptSourceOverride struct {
	Bus   uint8
	IRQ   uint8
	GSI   uint32
	Flags uint16
}

// Nmi records a non-maskable-interrupt LINT pin assignment for a processor
// (0xff means "all processors").
type Nmi struct {
	Processor uint8
	Flags     uint16
	Lint      uint8
}

// Madt is the decoded result of parsing a MADT's entry stream.
type Madt struct {
	LocalApicAddr uint32
	LocalApics    []LocalApic
	IoApics       []IoApic
	Overrides     []InterruptSourceOverride
	Nmis          []Nmi
}

// ParseMadt walks the variable-length entry list starting at body (the MADT
// payload immediately after its 4-byte Local APIC Address + 4-byte Flags
// header, both already split out by the caller) and classifies each entry.
// A malformed (truncated or zero-length) entry is a MadtParseFailure, which
// spec.md §4.3 calls fatal: "MADT parsing failure is fatal (no tasking)."
func ParseMadt(localApicAddr uint32, body []byte) (*Madt, error) {
	m := &Madt{LocalApicAddr: localApicAddr}

	for off := 0; off < len(body); {
		if off+2 > len(body) {
			return nil, kernelerr.ErrMadtParse
		}
		kind := body[off]
		length := int(body[off+1])
		if length < 2 || off+length > len(body) {
			return nil, kernelerr.ErrMadtParse
		}
		entry := body[off : off+length]

		switch kind {
		case entryLocalApic:
			if length < 8 {
				return nil, kernelerr.ErrMadtParse
			}
			flags := binary.LittleEndian.Uint32(entry[4:8])
			m.LocalApics = append(m.LocalApics, LocalApic{
				ProcessorID: entry[2],
				ApicID:      entry[3],
				Enabled:     flags&1 != 0,
			})

		case entryIoApic:
			if length < 12 {
				return nil, kernelerr.ErrMadtParse
			}
			m.IoApics = append(m.IoApics, IoApic{
				ID:       entry[2],
				PhysAddr: binary.LittleEndian.Uint32(entry[4:8]),
				GsiBase:  binary.LittleEndian.Uint32(entry[8:12]),
			})

		case entryInterruptSrcOverride:
			if length < 10 {
				return nil, kernelerr.ErrMadtParse
			}
			m.Overrides = append(m.Overrides, InterruptSourceOverride{
				Bus:   entry[2],
				IRQ:   entry[3],
				GSI:   binary.LittleEndian.Uint32(entry[4:8]),
				Flags: binary.LittleEndian.Uint16(entry[8:10]),
			})

		case entryNmi:
			if length < 6 {
				return nil, kernelerr.ErrMadtParse
			}
			m.Nmis = append(m.Nmis, Nmi{
				Processor: entry[2],
				Flags:     binary.LittleEndian.Uint16(entry[3:5]),
				Lint:      entry[5],
			})

		default:
			// Unknown entry types (e.g. x2APIC, GICC) are skipped rather
			// than failing the parse; spec.md only requires the four
			// entry kinds above.
		}

		off += length
	}

	return m, nil
}

// BspApicID returns the apic_id of the first enabled LocalApic entry, the
// entry bring-up assumes belongs to the bootstrap processor.
func (m *Madt) BspApicID() (uint8, bool) {
	for _, la := range m.LocalApics {
		if la.Enabled {
			return la.ApicID, true
		}
	}
	return 0, false
}

// ApplicationProcessors returns every enabled LocalApic entry other than
// bsp, in MADT order — the set InitSMP iterates to start APs.
func (m *Madt) ApplicationProcessors(bsp uint8) []LocalApic {
	var aps []LocalApic
	for _, la := range m.LocalApics {
		if la.Enabled && la.ApicID != bsp {
			aps = append(aps, la)
		}
	}
	return aps
}
