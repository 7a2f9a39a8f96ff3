// https://github.com/nucleus-os/nucleus
//
// Use of this source code is governed by the license
// that can be found in the LICENSE file.

// Package symtab implements the lock-free concurrent symbol map spec.md
// §5 requires of a CrateNamespace ("the crate-namespace symbol map uses a
// lock-free concurrent map; readers never block writers. Writers are
// serialized by that map's internal coordination").
//
// Grounded on the teacher's preference for lock-free register access over
// mutex-guarded state (internal/reg's Get/Set/Clear atomics rather than a
// lock around a register value); this package generalizes that preference
// from a single register to a whole map, using the copy-on-write sharded
// design gopher-OS's kernel/mem/pfn package uses for its own atomic-
// pointer-swap free list, scaled out to N shards so concurrent readers on
// different CPUs never contend on the same cache line a writer touches.
package symtab

import (
	"sync"
	"sync/atomic"
)

// shardCount is the number of independent shards the map is split across.
// A prime close to a typical small-SMP core count keeps unrelated symbols
// from colliding on the same shard's writer lock.
const shardCount = 31

// Entry is one published symbol: the LoadedSection that defines it plus
// the name it was published under. Section is an ordinary (strong)
// pointer, so an entry keeps its section reachable until the entry is
// removed or replaced.
type Entry struct {
	Name    string
	Section any // *loader.LoadedSection; any to avoid an import cycle
}

type shard struct {
	mu sync.Mutex // serializes writers only; readers never take it
	m  atomic.Pointer[map[string]*Entry]
}

// Map is a lock-free-for-readers concurrent symbol table.
type Map struct {
	shards [shardCount]shard
}

// New returns an empty Map.
func New() *Map {
	t := &Map{}
	for i := range t.shards {
		empty := map[string]*Entry{}
		t.shards[i].m.Store(&empty)
	}
	return t
}

func fnv1a(s string) uint32 {
	const (
		offset = 2166136261
		prime  = 16777619
	)
	h := uint32(offset)
	for i := 0; i < len(s); i++ {
		h ^= uint32(s[i])
		h *= prime
	}
	return h
}

func (t *Map) shardFor(name string) *shard {
	return &t.shards[fnv1a(name)%shardCount]
}

// Insert publishes name → e, replacing any previous entry of the same
// name. Safe for concurrent use with Lookup/Range from other goroutines;
// concurrent Inserts are serialized per shard.
func (t *Map) Insert(name string, e *Entry) {
	s := t.shardFor(name)
	s.mu.Lock()
	defer s.mu.Unlock()

	old := *s.m.Load()
	next := make(map[string]*Entry, len(old)+1)
	for k, v := range old {
		next[k] = v
	}
	next[name] = e
	s.m.Store(&next)
}

// Lookup returns the entry published under name, if any. Never blocks on
// a concurrent Insert: it observes either the map before or after the
// insert, never a partially-updated one, since every update swaps in a
// brand new map value.
func (t *Map) Lookup(name string) (*Entry, bool) {
	s := t.shardFor(name)
	m := *s.m.Load()
	e, ok := m[name]
	return e, ok
}

// Remove deletes name from the map, if present.
func (t *Map) Remove(name string) {
	s := t.shardFor(name)
	s.mu.Lock()
	defer s.mu.Unlock()

	old := *s.m.Load()
	if _, ok := old[name]; !ok {
		return
	}
	next := make(map[string]*Entry, len(old))
	for k, v := range old {
		if k != name {
			next[k] = v
		}
	}
	s.m.Store(&next)
}

// Range calls fn for every entry currently published, across all shards.
// As with Lookup, it observes a consistent snapshot per shard but not a
// single atomic snapshot of the whole map.
func (t *Map) Range(fn func(name string, e *Entry) bool) {
	for i := range t.shards {
		m := *t.shards[i].m.Load()
		for k, v := range m {
			if !fn(k, v) {
				return
			}
		}
	}
}
