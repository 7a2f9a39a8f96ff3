// https://github.com/nucleus-os/nucleus
//
// Use of this source code is governed by the license
// that can be found in the LICENSE file.

package loader

import (
	"bytes"
	"encoding/binary"
)

// fixtureSection is one section of a hand-assembled ELF64 object, built up
// by buildELF64Object below. Name is resolved against the shared
// .shstrtab automatically.
type fixtureSection struct {
	name      string
	typ       uint32 // elf.SectionType
	flags     uint64 // elf.SectionFlag
	data      []byte // nil for SHT_NOBITS
	size      uint64 // used in place of len(data) for SHT_NOBITS
	link      uint32
	info      uint32
	addralign uint64
	entsize   uint64
}

// fixtureSymbol is one entry of a hand-assembled .symtab, resolved against
// the shared .strtab automatically. shndx is the 1-based index into the
// fixtureSection list passed to buildELF64Object (0 meaning STN_UNDEF).
type fixtureSymbol struct {
	name  string
	info  uint8 // ST_INFO(bind, type)
	shndx uint16
	value uint64
	size  uint64
}

// buildELF64Object assembles a minimal little-endian ELF64 ET_REL x86-64
// object file: the caller-supplied allocatable sections, followed by a
// .symtab/.strtab pair built from syms, followed by a generated
// .shstrtab. This is the smallest path to a debug/elf-readable fixture
// since the standard library ships no ELF writer.
func buildELF64Object(sections []fixtureSection, syms []fixtureSymbol) []byte {
	const (
		etRel    = 1
		emX8664  = 62
		ev1      = 1
		elfClass = 2 // ELFCLASS64
		elfData  = 1 // ELFDATA2LSB

		shtSymtab = 2
		shtStrtab = 3
	)

	// .strtab: leading NUL, then each symbol name NUL-terminated.
	var strtab bytes.Buffer
	strtab.WriteByte(0)
	nameOff := make([]uint32, len(syms))
	for i, s := range syms {
		nameOff[i] = uint32(strtab.Len())
		strtab.WriteString(s.name)
		strtab.WriteByte(0)
	}

	var symtab bytes.Buffer
	writeSym := func(nameIdx uint32, info uint8, shndx uint16, value, size uint64) {
		var rec [24]byte
		binary.LittleEndian.PutUint32(rec[0:4], nameIdx)
		rec[4] = info
		rec[5] = 0
		binary.LittleEndian.PutUint16(rec[6:8], shndx)
		binary.LittleEndian.PutUint64(rec[8:16], value)
		binary.LittleEndian.PutUint64(rec[16:24], size)
		symtab.Write(rec[:])
	}
	writeSym(0, 0, 0, 0, 0) // mandatory null symbol at index 0
	firstGlobal := uint32(1)
	sawGlobal := false
	for i, s := range syms {
		writeSym(nameOff[i], s.info, s.shndx, s.value, s.size)
		bind := s.info >> 4
		if bind != 0 && !sawGlobal { // STB_LOCAL == 0
			firstGlobal = uint32(i + 1)
			sawGlobal = true
		}
	}

	allSections := append([]fixtureSection{}, sections...)
	symtabIdx := uint32(len(allSections) + 1) // +1 for the NULL section at index 0
	strtabIdx := symtabIdx + 1
	allSections = append(allSections,
		fixtureSection{name: ".symtab", typ: shtSymtab, data: symtab.Bytes(), link: strtabIdx, info: firstGlobal, addralign: 8, entsize: 24},
		fixtureSection{name: ".strtab", typ: shtStrtab, data: strtab.Bytes(), addralign: 1},
	)

	var shstrtab bytes.Buffer
	shstrtab.WriteByte(0)
	shstrtab.WriteString(".shstrtab")
	shstrtab.WriteByte(0)
	secNameOff := make([]uint32, len(allSections))
	for i, s := range allSections {
		secNameOff[i] = uint32(shstrtab.Len())
		shstrtab.WriteString(s.name)
		shstrtab.WriteByte(0)
	}
	shstrtabNameOff := uint32(1)
	allSections = append(allSections, fixtureSection{name: ".shstrtab", typ: shtStrtab, data: shstrtab.Bytes(), addralign: 1})

	const ehdrSize = 64
	const shdrSize = 64

	out := make([]byte, ehdrSize)
	off := uint64(ehdrSize)

	type placed struct {
		sec    fixtureSection
		offset uint64
		size   uint64
	}
	plist := make([]placed, 0, len(allSections)+1)
	plist = append(plist, placed{}) // NULL section

	for _, s := range allSections {
		size := uint64(len(s.data))
		if s.typ != shtSymtab && s.typ != shtStrtab && s.size != 0 {
			size = s.size
		}
		fileOff := off
		if s.typ == 7 /* SHT_NOBITS */ {
			fileOff = off // conventional, no bytes actually stored
		} else {
			out = append(out, s.data...)
			off += size
		}
		plist = append(plist, placed{sec: s, offset: fileOff, size: size})
	}

	shoff := uint64(len(out))

	writeShdr := func(nameOff, typ uint32, flags, addr, offset, size uint64, link, info uint32, addralign, entsize uint64) {
		var rec [shdrSize]byte
		binary.LittleEndian.PutUint32(rec[0:4], nameOff)
		binary.LittleEndian.PutUint32(rec[4:8], typ)
		binary.LittleEndian.PutUint64(rec[8:16], flags)
		binary.LittleEndian.PutUint64(rec[16:24], addr)
		binary.LittleEndian.PutUint64(rec[24:32], offset)
		binary.LittleEndian.PutUint64(rec[32:40], size)
		binary.LittleEndian.PutUint32(rec[40:44], link)
		binary.LittleEndian.PutUint32(rec[44:48], info)
		binary.LittleEndian.PutUint64(rec[48:56], addralign)
		binary.LittleEndian.PutUint64(rec[56:64], entsize)
		out = append(out, rec[:]...)
	}

	writeShdr(0, 0, 0, 0, 0, 0, 0, 0, 0, 0) // NULL section header
	for i, p := range plist[1:] {
		nameOff := uint32(0)
		if i < len(secNameOff) {
			nameOff = secNameOff[i]
		} else {
			nameOff = shstrtabNameOff
		}
		writeShdr(nameOff, p.sec.typ, p.sec.flags, 0, p.offset, p.size, p.sec.link, p.sec.info, p.sec.addralign, p.sec.entsize)
	}

	shstrndx := uint16(len(allSections)) // last section appended is .shstrtab

	// e_ident
	out[0], out[1], out[2], out[3] = 0x7f, 'E', 'L', 'F'
	out[4] = elfClass
	out[5] = elfData
	out[6] = ev1
	binary.LittleEndian.PutUint16(out[16:18], etRel)
	binary.LittleEndian.PutUint16(out[18:20], emX8664)
	binary.LittleEndian.PutUint32(out[20:24], ev1)
	binary.LittleEndian.PutUint64(out[24:32], 0) // e_entry
	binary.LittleEndian.PutUint64(out[32:40], 0) // e_phoff
	binary.LittleEndian.PutUint64(out[40:48], shoff)
	binary.LittleEndian.PutUint32(out[48:52], 0) // e_flags
	binary.LittleEndian.PutUint16(out[52:54], ehdrSize)
	binary.LittleEndian.PutUint16(out[54:56], 0) // e_phentsize
	binary.LittleEndian.PutUint16(out[56:58], 0) // e_phnum
	binary.LittleEndian.PutUint16(out[58:60], shdrSize)
	binary.LittleEndian.PutUint16(out[60:62], uint16(len(allSections)+1))
	binary.LittleEndian.PutUint16(out[62:64], shstrndx)

	return out
}
