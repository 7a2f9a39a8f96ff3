// https://github.com/nucleus-os/nucleus
//
// Use of this source code is governed by the license
// that can be found in the LICENSE file.

package loader

import "testing"

// publishedCrate builds a LoadedCrate with nil-paged sections (safe to
// construct and publish without a real Table/Allocator) and publishes it
// into ns, mirroring what buildCrate + publish would do for a crate whose
// sections happen to need no fresh pages (as with a bootstrapped crate).
func publishedCrate(ns *CrateNamespace, name string, secs ...*LoadedSection) *LoadedCrate {
	c := newLoadedCrate(name)
	for _, s := range secs {
		c.addSection(s)
	}
	ns.publish(c)
	return c
}

func TestGetSymbolWalksUpParentChain(t *testing.T) {
	root := NewNamespace("kernel", nil, nil, nil, nil, nil)
	child := NewNamespace("app", root, nil, nil, nil, nil)

	publishedCrate(root, "libfoo", &LoadedSection{Name: "foo_entry", Kind: SectionText, Global: true, VirtAddr: 0x1000})

	e, ok := child.GetSymbol("foo_entry")
	if !ok {
		t.Fatalf("expected foo_entry to be visible from child via parent walk-up")
	}
	ls, ok := e.Section.(*LoadedSection)
	if !ok || ls.VirtAddr != 0x1000 {
		t.Fatalf("unexpected entry: %+v", e)
	}
}

func TestGetSymbolDoesNotFindLocalSections(t *testing.T) {
	ns := NewNamespace("kernel", nil, nil, nil, nil, nil)
	publishedCrate(ns, "libfoo", &LoadedSection{Name: "libfoo::helper", Kind: SectionText, Global: false, VirtAddr: 0x2000})

	if _, ok := ns.GetSymbol("libfoo::helper"); ok {
		t.Fatalf("local (non-global) sections must not be published to the symbol table")
	}
}

func TestCrateByNameIsNotInheritedFromParent(t *testing.T) {
	root := NewNamespace("kernel", nil, nil, nil, nil, nil)
	child := NewNamespace("app", root, nil, nil, nil, nil)

	publishedCrate(root, "libfoo", &LoadedSection{Name: "foo_entry", Kind: SectionText, Global: true, VirtAddr: 0x1000})

	if _, ok := child.CrateByName("libfoo"); ok {
		t.Fatalf("crates must not be inherited from an ancestor namespace")
	}
	if _, ok := root.CrateByName("libfoo"); !ok {
		t.Fatalf("libfoo should be registered in the namespace it was published to")
	}
}

func TestGuessCrateNameFromManagedPath(t *testing.T) {
	cases := []struct {
		in       string
		wantName string
		wantOK   bool
	}{
		{"alloc::vec::Vec::push", "alloc", true},
		{"core::panic", "core", true},
		{"bare_symbol", "", false},
		{"", "", false},
		{"::leading_sep", "", false},
	}
	for _, c := range cases {
		name, ok := guessCrateName(c.in)
		if ok != c.wantOK || name != c.wantName {
			t.Fatalf("guessCrateName(%q) = (%q, %v), want (%q, %v)", c.in, name, ok, c.wantName, c.wantOK)
		}
	}
}

func TestStripHashIsIdempotentOnPlainIdentifiers(t *testing.T) {
	for _, name := range []string{"kernel_main", "alloc::vec::Vec::push", "exported_var"} {
		if got := stripHash(name); got != name {
			t.Fatalf("stripHash(%q) = %q, want unchanged", name, got)
		}
	}
}

func TestRecordCrossRefAccumulatesByOwnerCrate(t *testing.T) {
	ns := NewNamespace("kernel", nil, nil, nil, nil, nil)

	ns.recordCrossRef("libfoo", crossCrateReloc{symbolName: "foo_entry", addend: 4})
	ns.recordCrossRef("libfoo", crossCrateReloc{symbolName: "foo_other", addend: -4})
	ns.recordCrossRef("libbar", crossCrateReloc{symbolName: "bar_entry", addend: 0})

	if got := len(ns.crossRefs["libfoo"]); got != 2 {
		t.Fatalf("libfoo cross refs = %d, want 2", got)
	}
	if got := len(ns.crossRefs["libbar"]); got != 1 {
		t.Fatalf("libbar cross refs = %d, want 1", got)
	}
}

func TestLoadCrateReturnsAlreadyLoadedCrateWithoutTouchingSource(t *testing.T) {
	ns := NewNamespace("kernel", nil, nil, nil, nil, nil)
	want := publishedCrate(ns, "libfoo", &LoadedSection{Name: "foo_entry", Kind: SectionText, Global: true, VirtAddr: 0x1000})

	got, err := ns.LoadCrate("libfoo")
	if err != nil {
		t.Fatalf("LoadCrate: %v", err)
	}
	if got != want {
		t.Fatalf("LoadCrate should return the already-published crate instance")
	}
}
