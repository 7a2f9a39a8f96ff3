// https://github.com/usbarmory/tamago
//
// Copyright (c) The TamaGo Authors. All Rights Reserved.
//
// Use of this source code is governed by the license
// that can be found in the LICENSE file.

package exception

import (
	"fmt"
	"runtime"

	"golang.org/x/arch/x86/x86asm"
)

func Throw(pc uintptr) {
	fn := runtime.FuncForPC(pc)
	file, line := fn.FileLine(pc)

	print("\t", file, ":", line, "\n")
	panic("unhandled exception")
}

// DecodeFault disassembles the instruction at the start of code for
// inclusion in a diagnostic message, extending Throw's file/line report to
// faults that occur inside a dynamically loaded crate rather than the
// running Go image itself (where runtime.FuncForPC has nothing to look
// up). pc is only used to resolve the instruction's own RIP-relative
// operands in the rendered text.
func DecodeFault(code []byte, pc uint64) string {
	inst, err := x86asm.Decode(code, 64)
	if err != nil {
		return fmt.Sprintf("undecodable instruction at %#x: %v", pc, err)
	}
	return x86asm.GNUSyntax(inst, pc, nil)
}
