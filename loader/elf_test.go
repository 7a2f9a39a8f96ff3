// https://github.com/nucleus-os/nucleus
//
// Use of this source code is governed by the license
// that can be found in the LICENSE file.

package loader

import (
	"debug/elf"
	"testing"
)

func sec(name string, typ elf.SectionType, flags elf.SectionFlag, size, align uint64) *elf.Section {
	return &elf.Section{SectionHeader: elf.SectionHeader{
		Name: name, Type: typ, Flags: flags, Size: size, Addralign: align,
	}}
}

func TestClassifySectionKinds(t *testing.T) {
	cases := []struct {
		name string
		s    *elf.Section
		want SectionKind
	}{
		{"text", sec(".text", elf.SHT_PROGBITS, elf.SHF_ALLOC|elf.SHF_EXECINSTR, 16, 16), SectionText},
		{"rodata", sec(".rodata", elf.SHT_PROGBITS, elf.SHF_ALLOC, 4, 4), SectionRodata},
		{"data", sec(".data", elf.SHT_PROGBITS, elf.SHF_ALLOC|elf.SHF_WRITE, 8, 8), SectionData},
		{"bss", sec(".bss", elf.SHT_NOBITS, elf.SHF_ALLOC|elf.SHF_WRITE, 8, 8), SectionBss},
		{"eh_frame", sec(".eh_frame", elf.SHT_PROGBITS, elf.SHF_ALLOC, 12, 4), SectionEhFrame},
		{"gcc_except_table", sec(".gcc_except_table", elf.SHT_PROGBITS, elf.SHF_ALLOC, 12, 4), SectionGccExceptTable},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			kind, size, align := classify(c.s)
			if kind != c.want {
				t.Fatalf("classify(%s) kind = %v, want %v", c.name, kind, c.want)
			}
			if size != uintptr(c.s.Size) {
				t.Fatalf("classify(%s) size = %d, want %d", c.name, size, c.s.Size)
			}
			if align != uintptr(c.s.Addralign) {
				t.Fatalf("classify(%s) align = %d, want %d", c.name, align, c.s.Addralign)
			}
		})
	}
}

func TestClassifyZeroAlignDefaultsToOne(t *testing.T) {
	_, _, align := classify(sec(".rodata", elf.SHT_PROGBITS, elf.SHF_ALLOC, 4, 0))
	if align != 1 {
		t.Fatalf("align = %d, want 1", align)
	}
}

func TestAlign(t *testing.T) {
	cases := []struct{ off, a, want uintptr }{
		{0, 16, 0},
		{1, 16, 16},
		{16, 16, 16},
		{17, 16, 32},
		{5, 1, 5},
		{5, 0, 5},
	}
	for _, c := range cases {
		if got := align(c.off, c.a); got != c.want {
			t.Fatalf("align(%d, %d) = %d, want %d", c.off, c.a, got, c.want)
		}
	}
}

func TestScanMeasuresCumulativeSizesPerClass(t *testing.T) {
	f := &elf.File{Sections: []*elf.Section{
		sec("", elf.SHT_NULL, 0, 0, 0),
		sec(".text", elf.SHT_PROGBITS, elf.SHF_ALLOC|elf.SHF_EXECINSTR, 16, 16),
		sec(".rodata", elf.SHT_PROGBITS, elf.SHF_ALLOC, 4, 4),
		sec(".data", elf.SHT_PROGBITS, elf.SHF_ALLOC|elf.SHF_WRITE, 8, 8),
		sec(".bss", elf.SHT_NOBITS, elf.SHF_ALLOC|elf.SHF_WRITE, 8, 8),
		sec(".comment", elf.SHT_PROGBITS, 0, 100, 1), // not SHF_ALLOC, ignored
	}}

	secs, textSize, rodataSize, dataSize, bssSize, err := scan(f)
	if err != nil {
		t.Fatalf("scan: %v", err)
	}
	if textSize != 16 {
		t.Fatalf("textSize = %d, want 16", textSize)
	}
	if rodataSize != 4 {
		t.Fatalf("rodataSize = %d, want 4", rodataSize)
	}
	if dataSize != 8 {
		t.Fatalf("dataSize = %d, want 8", dataSize)
	}
	if bssSize != 8 {
		t.Fatalf("bssSize = %d, want 8", bssSize)
	}
	if len(secs) != 4 {
		t.Fatalf("len(secs) = %d, want 4 (non-ALLOC section excluded)", len(secs))
	}
}

func TestKindOf(t *testing.T) {
	if kindOf(sec(".text", elf.SHT_PROGBITS, elf.SHF_ALLOC|elf.SHF_EXECINSTR, 16, 16)) != SectionText {
		t.Fatalf("kindOf(.text) should be SectionText")
	}
	if kindOf(sec(".bss", elf.SHT_NOBITS, elf.SHF_ALLOC|elf.SHF_WRITE, 8, 8)) != SectionBss {
		t.Fatalf("kindOf(.bss) should be SectionBss")
	}
}
