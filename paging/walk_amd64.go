// https://github.com/nucleus-os/nucleus
//
// Use of this source code is governed by the license
// that can be found in the LICENSE file.

//go:build amd64

package paging

// Four-level 4 KiB paging layout (AMD64 Architecture Programmer's Manual,
// Figure 5-17 "4-Kbyte Page Translation — Long Mode 4-Level Paging"),
// grounded directly on the teacher's amd64/mmu.go FindPTE constants.
const (
	levelPML4 = 4
	levelPDPT = 3
	levelPD   = 2
	levelPT   = 1

	shiftPML4 = 39
	shiftPDPT = 30
	shiftPD   = 21
	shiftPT   = 12

	entriesPerTable = 512
	indexMask       = 0x1ff
	addrMask        = 0x000ffffffffff000

	ptePresent = 1 << 0
	pteHuge    = 1 << 7
)

// writeCombiningBits/deviceMemoryBits select x86-64 PAT entries. This
// module assumes the teacher's default PAT programming (PAT4 = write
// combining), so the WC hint is PWT=0,PCD=1,PAT=1 and the UC (device)
// hint is PWT=1,PCD=1.
const (
	writeCombiningBits = CacheDisable
	deviceMemoryBits   = WriteThrough | CacheDisable
)

// levelCount is the number of page-table levels amd64 walks.
const levelCount = 4

// indicesOf splits a canonical 48-bit virtual address into its four
// level indices, PML4 first.
func indicesOf(virt uintptr) [levelCount]uint64 {
	v := uint64(virt)
	return [levelCount]uint64{
		(v >> shiftPML4) & indexMask,
		(v >> shiftPDPT) & indexMask,
		(v >> shiftPD) & indexMask,
		(v >> shiftPT) & indexMask,
	}
}

func topLevel() int { return levelPML4 }

func leafLevel() int { return levelPT }

// flagsToPTE converts the portable Flags bitset to raw x86-64 PTE bits.
// The Flags bit positions were chosen to match the x86-64 PTE layout
// directly (Intel SDM Vol. 3A Table 4-19), so no translation is needed
// beyond forcing the present bit.
func flagsToPTE(f Flags) uint64 {
	return uint64(f) | ptePresent
}

// intermediateEntryFlags are the bits set on a non-leaf (PDPT/PD) entry
// that simply points at the next-level table; always present+writable+
// user so the leaf's own flags are the ones that actually restrict access.
func intermediateEntryFlags() uint64 {
	return ptePresent | uint64(Writable) | uint64(User)
}
