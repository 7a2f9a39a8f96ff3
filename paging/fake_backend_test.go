// https://github.com/nucleus-os/nucleus
//
// Use of this source code is governed by the license
// that can be found in the LICENSE file.

package paging

import "github.com/nucleus-os/nucleus/mem"

// fakeBackend is an in-memory Backend used to exercise Table's walking
// logic without real page-table frames, the host-testable seam the
// Backend doc comment describes.
type fakeBackend struct {
	tables  map[mem.Frame][]uint64
	flushed []uintptr
}

func newFakeBackend() *fakeBackend {
	return &fakeBackend{tables: make(map[mem.Frame][]uint64)}
}

func (b *fakeBackend) table(tbl mem.Frame) []uint64 {
	t, ok := b.tables[tbl]
	if !ok {
		t = make([]uint64, entriesPerTable)
		b.tables[tbl] = t
	}
	return t
}

func (b *fakeBackend) ReadEntry(tbl mem.Frame, idx uint64) uint64 {
	return b.table(tbl)[idx]
}

func (b *fakeBackend) WriteEntry(tbl mem.Frame, idx uint64, val uint64) {
	b.table(tbl)[idx] = val
}

func (b *fakeBackend) ZeroTable(tbl mem.Frame) {
	t := b.table(tbl)
	for i := range t {
		t[i] = 0
	}
}

func (b *fakeBackend) FlushTLB(virt uintptr) {
	b.flushed = append(b.flushed, virt)
}
