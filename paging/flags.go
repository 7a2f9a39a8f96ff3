// https://github.com/nucleus-os/nucleus
//
// Use of this source code is governed by the license
// that can be found in the LICENSE file.

package paging

// Flags is the bitset of page-table entry attributes spec.md §4.2
// describes: "Flags form a bitset that must include valid=true for any
// writable mapping." The bit layout below follows the x86-64 PTE format
// (Intel SDM Vol. 3A §4.5), which the amd64 backend writes directly;
// non-amd64 backends translate the portable subset (Valid/Writable/
// NoExecute/User/Global) to their own encoding.
type Flags uint64

const (
	// Valid marks the entry present; spec.md requires this set on any
	// writable mapping.
	Valid Flags = 1 << 0
	// Writable allows stores to the mapped range.
	Writable Flags = 1 << 1
	// User allows ring-3 access. The core never maps ring-3 pages itself
	// (spec.md Non-goals: no multi-user protection) but the bit is
	// exposed for tenants that do (a loaded application crate's own
	// user-mode pages, out of this module's scope).
	User Flags = 1 << 2
	// WriteThrough and CacheDisable select the cache-type bits used by
	// the device-memory and write-combining constructors below.
	WriteThrough Flags = 1 << 3
	CacheDisable Flags = 1 << 4
	// Global prevents a TLB flush from evicting the entry (used for
	// kernel-text mappings shared by every address space).
	Global Flags = 1 << 8
	// NoExecute marks the range non-executable (the NX/XD bit).
	NoExecute Flags = 1 << 63
)

// Satisfies reports whether have is a superset of want, the invariant
// spec.md §8 property 1 requires of every live mapping.
func (have Flags) Satisfies(want Flags) bool {
	return have&want == want
}

// WriteCombining returns flags with the PAT-driven write-combining cache
// hint used for framebuffer-class MMIO (spec.md §4.2: "Architecture-
// specific caching hints (write-combining via PAT on x86_64 ... are
// exposed as distinct flag constructors)"). On amd64 this sets the bits of
// walk_amd64.go's writeCombiningBits; on other backends it degrades to the
// closest available hint.
func WriteCombining(f Flags) Flags {
	return f | writeCombiningBits
}

// Device returns flags with the device-memory hint appropriate for MMIO
// register windows (device memory on aarch64, uncacheable on x86_64).
func Device(f Flags) Flags {
	return f | deviceMemoryBits
}
