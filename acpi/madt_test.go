// https://github.com/nucleus-os/nucleus
//
// Use of this source code is governed by the license
// that can be found in the LICENSE file.

package acpi

import "testing"

func TestParseMadtTwoCPUs(t *testing.T) {
	// One LocalApic (BSP, apic_id=0, enabled), one LocalApic (AP,
	// apic_id=1, enabled) -- spec.md §8 scenario 1.
	body := []byte{
		0, 8, 0, 0, 1, 0, 0, 0, // LocalApic proc=0 apic=0 flags=1
		0, 8, 1, 1, 1, 0, 0, 0, // LocalApic proc=1 apic=1 flags=1
	}

	m, err := ParseMadt(0xfee00000, body)
	if err != nil {
		t.Fatalf("ParseMadt: %v", err)
	}
	if len(m.LocalApics) != 2 {
		t.Fatalf("got %d LocalApic entries, want 2", len(m.LocalApics))
	}

	bsp, ok := m.BspApicID()
	if !ok || bsp != 0 {
		t.Fatalf("BspApicID = %d, %v, want 0, true", bsp, ok)
	}

	aps := m.ApplicationProcessors(bsp)
	if len(aps) != 1 || aps[0].ApicID != 1 {
		t.Fatalf("ApplicationProcessors = %+v, want one AP with apic_id 1", aps)
	}
}

func TestParseMadtTruncatedEntryFails(t *testing.T) {
	body := []byte{0, 8, 0, 0, 1, 0} // length says 8, only 6 bytes present
	if _, err := ParseMadt(0xfee00000, body); err == nil {
		t.Fatalf("expected MadtParseFailure on truncated entry")
	}
}

func TestParseMadtIoApicAndOverride(t *testing.T) {
	body := []byte{
		1, 12, 0, 0, 0, 0, 0xd0, 0xfe, 0, 0, 0, 0, // IoApic id=0 addr=0xfed00000 gsi=0
		2, 10, 0, 9, 9, 0, 0, 0, 5, 0, // InterruptSourceOverride bus=0 irq=9 gsi=9 flags=5
	}
	m, err := ParseMadt(0xfee00000, body)
	if err != nil {
		t.Fatalf("ParseMadt: %v", err)
	}
	if len(m.IoApics) != 1 || m.IoApics[0].PhysAddr != 0xfed00000 {
		t.Fatalf("IoApics = %+v", m.IoApics)
	}
	if len(m.Overrides) != 1 || m.Overrides[0].GSI != 9 {
		t.Fatalf("Overrides = %+v", m.Overrides)
	}
}
