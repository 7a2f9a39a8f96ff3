// https://github.com/nucleus-os/nucleus
//
// Use of this source code is governed by the license
// that can be found in the LICENSE file.

package loader

import (
	"debug/elf"
	"strings"
	"sync"

	"golang.org/x/sync/singleflight"

	"github.com/nucleus-os/nucleus/kernelerr"
	"github.com/nucleus-os/nucleus/loader/symtab"
	"github.com/nucleus-os/nucleus/paging"
	"github.com/nucleus-os/nucleus/pmm"
	"github.com/nucleus-os/nucleus/vmm"
)

// CrateSource supplies the raw bytes of a named crate's ELF object, the
// indirection that lets a CrateNamespace load crates from boot modules, a
// future filesystem, or a unit test's in-memory map without knowing which.
type CrateSource interface {
	ReadCrate(name string) ([]byte, error)
}

// CrateNamespace is a lookup scope for loaded crates and symbols (spec.md
// §3 CrateNamespace). Namespaces form a tree; a child's symbol lookup
// walks up to its parent on a miss (spec.md §4.6 step 6: "then in the
// namespace (walking up)").
type CrateNamespace struct {
	name   string
	parent *CrateNamespace
	source CrateSource

	mu     sync.RWMutex
	crates map[string]*LoadedCrate

	symbols *symtab.Map

	// loadGroup collapses concurrent recursive loads of the same crate
	// name triggered by relocation resolution (spec.md §4.6 ADDED:
	// "golang.org/x/sync/singleflight to collapse concurrent recursive
	// loads of the same crate name").
	loadGroup singleflight.Group

	frames *pmm.Allocator
	pages  *vmm.Allocator
	table  *paging.Table

	crossRefsMu sync.Mutex
	crossRefs   map[string][]crossCrateReloc // keyed by the referenced crate's name
}

// crossCrateReloc records one already-applied relocation whose symbol was
// defined in a different crate, the bookkeeping spec.md §4.6 "Hot
// swapping" needs to "rewrite every relocation in every currently-loaded
// crate that references the old crate's symbols to point at the new
// crate's".
type crossCrateReloc struct {
	patchPages  *paging.MappedPages
	patchOffset uintptr
	kind        elf.R_X86_64
	addend      int64
	symbolName  string
}

func (n *CrateNamespace) recordCrossRef(ownerCrate string, r crossCrateReloc) {
	n.crossRefsMu.Lock()
	defer n.crossRefsMu.Unlock()
	if n.crossRefs == nil {
		n.crossRefs = map[string][]crossCrateReloc{}
	}
	n.crossRefs[ownerCrate] = append(n.crossRefs[ownerCrate], r)
}

// NewNamespace creates a namespace named name, optionally rooted under
// parent (pass nil for the top-level kernel namespace).
func NewNamespace(name string, parent *CrateNamespace, source CrateSource, frames *pmm.Allocator, pages *vmm.Allocator, table *paging.Table) *CrateNamespace {
	return &CrateNamespace{
		name:    name,
		parent:  parent,
		source:  source,
		crates:  map[string]*LoadedCrate{},
		symbols: symtab.New(),
		frames:  frames,
		pages:   pages,
		table:   table,
	}
}

// Name satisfies task.Namespace.
func (n *CrateNamespace) Name() string { return n.name }

// GetSymbol looks up name in this namespace, then each ancestor in turn,
// matching either the exact published name or its hash-stripped form
// (spec.md §4.6 step 5).
func (n *CrateNamespace) GetSymbol(name string) (*symtab.Entry, bool) {
	stripped := stripHash(name)
	for ns := n; ns != nil; ns = ns.parent {
		if e, ok := ns.symbols.Lookup(name); ok {
			return e, true
		}
		if stripped != name {
			if e, ok := ns.symbols.Lookup(stripped); ok {
				return e, true
			}
		}
	}
	return nil, false
}

// CrateByName returns the crate currently loaded under name in this
// namespace (not ancestors — crates, unlike symbols, are not inherited).
func (n *CrateNamespace) CrateByName(name string) (*LoadedCrate, bool) {
	n.mu.RLock()
	defer n.mu.RUnlock()
	c, ok := n.crates[name]
	return c, ok
}

func (n *CrateNamespace) publish(c *LoadedCrate) {
	n.mu.Lock()
	n.crates[c.Name] = c
	n.mu.Unlock()

	c.sectionsMu.RLock()
	defer c.sectionsMu.RUnlock()
	for _, s := range c.sections {
		if s.Global {
			n.symbols.Insert(s.Name, &symtab.Entry{Name: s.Name, Section: s})
			if stripped := stripHash(s.Name); stripped != s.Name {
				n.symbols.Insert(stripped, &symtab.Entry{Name: stripped, Section: s})
			}
		}
	}
}

// LoadCrate loads the crate named name, applying its relocations and
// inserting it into this namespace, the top-level entry point for spec.md
// §4.6's whole procedure (steps 1-7) and §6's
// `CrateNamespace::load_crate(&path)`.
func (n *CrateNamespace) LoadCrate(name string) (*LoadedCrate, error) {
	if c, ok := n.CrateByName(name); ok {
		return c, nil
	}

	v, err, _ := n.loadGroup.Do(name, func() (any, error) {
		if c, ok := n.CrateByName(name); ok {
			return c, nil
		}
		return n.loadCrateLocked(name)
	})
	if err != nil {
		return nil, err
	}
	return v.(*LoadedCrate), nil
}

// LoadCrateAsApplication loads name the same way as LoadCrate, but maps
// its pages into a separate address space table rather than this
// namespace's own (spec.md §6:
// `CrateNamespace::load_crate_as_application(&path, kernel_mmi)`), for an
// application crate that must not share the kernel's writable mappings.
func (n *CrateNamespace) LoadCrateAsApplication(name string, appTable *paging.Table) (*LoadedCrate, error) {
	data, err := n.source.ReadCrate(name)
	if err != nil {
		return nil, kernelerr.ErrElfParse.With(err)
	}

	crate, err := buildCrate(name, data, n.frames, n.pages, appTable, n)
	if err != nil {
		return nil, err
	}
	n.publish(crate)
	return crate, nil
}

func (n *CrateNamespace) loadCrateLocked(name string) (*LoadedCrate, error) {
	data, err := n.source.ReadCrate(name)
	if err != nil {
		return nil, kernelerr.ErrElfParse.With(err)
	}

	crate, err := buildCrate(name, data, n.frames, n.pages, n.table, n)
	if err != nil {
		return nil, err
	}

	n.publish(crate)
	return crate, nil
}

// guessCrateName extracts the leading path component of a Rust-style
// mangled or demangled symbol name ("foo::bar::baz" → "foo"), the best
// available signal for which crate a still-unresolved symbol might live
// in (spec.md §4.6 step 6: "attempt to locate and load another object
// file whose name matches the symbol's expected crate prefix").
func guessCrateName(symbolName string) (string, bool) {
	stripped := stripHash(symbolName)
	idx := strings.Index(stripped, "::")
	if idx <= 0 {
		return "", false
	}
	return stripped[:idx], true
}
