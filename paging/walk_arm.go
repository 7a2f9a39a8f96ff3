// https://github.com/nucleus-os/nucleus
//
// Use of this source code is governed by the license
// that can be found in the LICENSE file.

//go:build arm

package paging

// ARMv7-EM (Cortex-M) targets typically have an MPU, not an MMU, and
// spec.md documents this port as "nascent" with single-core-only
// semantics. Rather than fake a multi-level walk this backend models one
// flat level: every mapping request below targets level 1 directly, with
// no intermediate tables to allocate. Full region-based MPU support is
// out of scope for this module (spec.md treats it as an open question,
// not a requirement).
const (
	levelPML4 = 1
	levelPDPT = 1
	levelPD   = 1
	levelPT   = 1

	shiftPT = 12

	entriesPerTable = 4096
	indexMask       = 0xfff
	addrMask        = 0xfffff000

	ptePresent = 1 << 0
	pteHuge    = 0
)

const (
	writeCombiningBits = Flags(0)
	deviceMemoryBits   = CacheDisable
)

const levelCount = 1

func indicesOf(virt uintptr) [levelCount]uint64 {
	return [levelCount]uint64{(uint64(virt) >> shiftPT) & indexMask}
}

func topLevel() int { return levelPT }

func leafLevel() int { return levelPT }

func flagsToPTE(f Flags) uint64 {
	return uint64(f) | ptePresent
}

func intermediateEntryFlags() uint64 {
	return ptePresent | uint64(Writable)
}
