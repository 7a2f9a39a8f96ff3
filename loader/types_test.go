// https://github.com/nucleus-os/nucleus
//
// Use of this source code is governed by the license
// that can be found in the LICENSE file.

package loader

import "testing"

func TestSectionKindString(t *testing.T) {
	cases := map[SectionKind]string{
		SectionText:           "text",
		SectionRodata:         "rodata",
		SectionData:           "data",
		SectionBss:            "bss",
		SectionEhFrame:        "eh_frame",
		SectionGccExceptTable: "gcc_except_table",
		SectionKind(99):       "unknown",
	}
	for k, want := range cases {
		if got := k.String(); got != want {
			t.Fatalf("%v.String() = %q, want %q", k, got, want)
		}
	}
}

func TestLoadedCrateSectionLookup(t *testing.T) {
	c := newLoadedCrate("libfoo")
	ls := &LoadedSection{Name: "libfoo::helper", Kind: SectionText, Global: false}
	c.addSection(ls)

	got, ok := c.Section("libfoo::helper")
	if !ok || got != ls {
		t.Fatalf("Section lookup failed")
	}
	if got.Crate() != c {
		t.Fatalf("Section.Crate() should resolve back to the owning crate")
	}

	if _, ok := c.Section("nonexistent"); ok {
		t.Fatalf("expected lookup miss")
	}
}

func TestLoadedCrateRetainReleaseKeepsSectionAliveUntilZero(t *testing.T) {
	c := newLoadedCrate("libfoo")
	ls := &LoadedSection{Name: "foo_entry", Kind: SectionText, Global: true}
	c.addSection(ls)

	c.Retain() // refCount now 2

	c.Release() // 1, still alive
	if ls.Crate() == nil {
		t.Fatalf("crate should still be alive after one of two references is released")
	}

	c.Release() // 0, now freed
	if ls.Crate() != nil {
		t.Fatalf("weak reference should be invalidated once the crate's refcount reaches zero")
	}
}

func TestNewLoadedCrateStartsWithRefCountOne(t *testing.T) {
	c := newLoadedCrate("libfoo")
	ls := &LoadedSection{Name: "foo_entry"}
	c.addSection(ls)

	c.Release() // single initial reference released -> should free immediately
	if ls.Crate() != nil {
		t.Fatalf("a single Release on a fresh crate should free it")
	}
}
