// https://github.com/nucleus-os/nucleus
//
// Use of this source code is governed by the license
// that can be found in the LICENSE file.

package boot

import "testing"

func TestUsableRangesFiltersOutNonUsableEntries(t *testing.T) {
	h := &Handoff{
		MemoryMap: []MemoryMapEntry{
			{Start: 0, Count: 256, Type: MemoryUsable},
			{Start: 256, Count: 16, Type: MemoryReserved},
			{Start: 272, Count: 128, Type: MemoryUsable},
		},
	}

	got := h.UsableRanges()
	if len(got) != 2 {
		t.Fatalf("UsableRanges() returned %d entries, want 2", len(got))
	}
	if got[0].Start != 0 || got[0].Count != 256 {
		t.Fatalf("UsableRanges()[0] = %+v", got[0])
	}
	if got[1].Start != 272 || got[1].Count != 128 {
		t.Fatalf("UsableRanges()[1] = %+v", got[1])
	}
}

func TestReservedRangesIncludesModules(t *testing.T) {
	h := &Handoff{
		MemoryMap: []MemoryMapEntry{
			{Start: 0, Count: 256, Type: MemoryUsable},
			{Start: 256, Count: 16, Type: MemoryKernelImage},
		},
		Modules: []Module{
			{Name: "initrd", Start: 512, Count: 32},
		},
	}

	got := h.ReservedRanges()
	if len(got) != 2 {
		t.Fatalf("ReservedRanges() returned %d entries, want 2", len(got))
	}
	if got[1].Start != 512 || got[1].Count != 32 {
		t.Fatalf("ReservedRanges()[1] = %+v, want the initrd module range", got[1])
	}
}

func TestModuleByName(t *testing.T) {
	h := &Handoff{Modules: []Module{{Name: "initrd", Start: 512, Count: 32}}}

	m, ok := h.ModuleByName("initrd")
	if !ok || m.Start != 512 {
		t.Fatalf("ModuleByName(initrd) = %+v, %v", m, ok)
	}

	if _, ok := h.ModuleByName("missing"); ok {
		t.Fatalf("ModuleByName(missing) should not be found")
	}
}
