// https://github.com/usbarmory/tamago
//
// Copyright (c) The TamaGo Authors. All Rights Reserved.
//
// Use of this source code is governed by the license
// that can be found in the LICENSE file.

package reg

// defined in msr_amd64.s
func Msr(addr uint32) (val uint32)

// ReadMSR reads a 64-bit Model Specific Register (RDMSR).
//
// defined in msr_amd64.s
func ReadMSR(addr uint64) (val uint64)

// WriteMSR writes a 64-bit Model Specific Register (WRMSR), used by the
// x2APIC register interface which replaces the xAPIC MMIO window with MSR
// reads/writes at 0x800 + (register offset >> 4).
//
// defined in msr_amd64.s
func WriteMSR(addr uint64, val uint64)
