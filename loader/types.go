// https://github.com/nucleus-os/nucleus
//
// Use of this source code is governed by the license
// that can be found in the LICENSE file.

// Package loader implements the runtime ELF relocatable-object loader and
// crate namespace (spec.md §4.6, the largest single component of this
// module).
//
// Grounded on the teacher's GOOS=tamago model of "everything is compiled
// statically, nothing is loaded at runtime" only in the negative sense: the
// teacher has no dynamic loader at all, so this package is built from
// scratch following spec.md's procedure, using debug/elf for parsing (the
// same package biscuit and gopher-OS's tooling use for introspecting ELF
// binaries) plus github.com/ianlancetaylor/demangle for symbol-name
// hash-stripping, golang.org/x/sync/singleflight to collapse concurrent
// recursive loads of the same crate, and golang.org/x/mod/semver for
// hot-swap version comparison.
package loader

import (
	"sync"
	"sync/atomic"

	"github.com/nucleus-os/nucleus/mem"
	"github.com/nucleus-os/nucleus/paging"
)

// SectionKind classifies a loaded ELF section by its role (spec.md §4.6
// step 1: "Classify each section with SHF_ALLOC as text (exec), rodata
// (read-only), data, or bss").
type SectionKind int

const (
	SectionText SectionKind = iota
	SectionRodata
	SectionData
	SectionBss
	// SectionEhFrame and SectionGccExceptTable are tracked separately
	// from SectionRodata so unwind tables can find them (spec.md §4.6
	// step 1: "tracked separately so unwind tables can find them").
	SectionEhFrame
	SectionGccExceptTable
)

func (k SectionKind) String() string {
	switch k {
	case SectionText:
		return "text"
	case SectionRodata:
		return "rodata"
	case SectionData:
		return "data"
	case SectionBss:
		return "bss"
	case SectionEhFrame:
		return "eh_frame"
	case SectionGccExceptTable:
		return "gcc_except_table"
	default:
		return "unknown"
	}
}

// LoadedSection is one section of a loaded crate, named in spec.md §3's
// type list verbatim.
type LoadedSection struct {
	Name   string // full name, hash suffix intact
	Kind   SectionKind
	Global bool // true if this section's symbol has global binding

	// crate is a weak back-reference, upgraded on demand for
	// diagnostics only (spec.md §9: "Weak back-references from sections
	// to crates break the cycle LoadedCrate → LoadedSection →
	// LoadedCrate").
	crate *weakCrateRef

	Pages      *paging.MappedPages // which of the crate's 3 mappings this lives in
	Offset     uintptr             // byte offset of this section within Pages
	Size       uintptr
	VirtAddr   uintptr // Pages.Range().Start.Addr() + Offset, cached for relocation math
	PLTEntries map[string]uintptr
}

// Crate upgrades the weak back-reference to the owning LoadedCrate, or nil
// if it has since been freed.
func (s *LoadedSection) Crate() *LoadedCrate {
	if s.crate == nil {
		return nil
	}
	return s.crate.get()
}

// weakCrateRef is a non-owning reference to a LoadedCrate: it does not
// keep the crate alive (it stores a pointer behind a liveness flag set to
// false when the crate is unloaded), breaking the section→crate→section
// reference cycle spec.md §9 calls out.
type weakCrateRef struct {
	mu    sync.Mutex
	crate *LoadedCrate
	alive bool
}

func newWeakCrateRef(c *LoadedCrate) *weakCrateRef {
	return &weakCrateRef{crate: c, alive: true}
}

func (w *weakCrateRef) get() *LoadedCrate {
	w.mu.Lock()
	defer w.mu.Unlock()
	if !w.alive {
		return nil
	}
	return w.crate
}

func (w *weakCrateRef) invalidate() {
	w.mu.Lock()
	w.alive = false
	w.crate = nil
	w.mu.Unlock()
}

// LoadedCrate is one loaded ELF object, named in spec.md §3's type list.
type LoadedCrate struct {
	Name       string
	Version    string // semver string, e.g. "v1.2.3"; empty if unversioned
	Generation int    // incremented on every hot swap of a crate with this name

	TextPages   *paging.MappedPages
	RodataPages *paging.MappedPages
	DataPages   *paging.MappedPages

	sectionsMu sync.RWMutex
	sections   map[string]*LoadedSection // by full (non-stripped) name

	weak *weakCrateRef

	// refCount starts at 1 and changes only through Retain and Release;
	// the crate's pages are freed once it reaches zero. Publishing the
	// crate's symbols into a namespace and relocating other crates
	// against them do not call Retain.
	refCount atomic.Int64
}

func newLoadedCrate(name string) *LoadedCrate {
	c := &LoadedCrate{Name: name, sections: map[string]*LoadedSection{}}
	c.weak = newWeakCrateRef(c)
	c.refCount.Store(1)
	return c
}

// Section returns the section named name within this crate.
func (c *LoadedCrate) Section(name string) (*LoadedSection, bool) {
	c.sectionsMu.RLock()
	defer c.sectionsMu.RUnlock()
	s, ok := c.sections[name]
	return s, ok
}

func (c *LoadedCrate) addSection(s *LoadedSection) {
	s.crate = c.weak
	c.sectionsMu.Lock()
	c.sections[s.Name] = s
	c.sectionsMu.Unlock()
}

// Retain increments the crate's reference count; callers that keep a
// pointer to one of its sections beyond the scope of a single relocation
// or lookup call this to keep Release below from freeing its pages.
func (c *LoadedCrate) Retain() { c.refCount.Add(1) }

// Release decrements the crate's reference count, freeing its pages and
// invalidating its weak reference once it reaches zero.
func (c *LoadedCrate) Release() {
	if c.refCount.Add(-1) > 0 {
		return
	}
	c.weak.invalidate()
	for _, p := range []*paging.MappedPages{c.TextPages, c.RodataPages, c.DataPages} {
		if p != nil {
			p.Unmap()
		}
	}
}

// frameOf describes an already-mapped range of frames by its first frame
// and count; nothing in this package uses it.
type frameOf struct {
	start mem.Frame
	count uint64
}
