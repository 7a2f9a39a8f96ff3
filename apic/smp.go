// https://github.com/nucleus-os/nucleus
//
// Use of this source code is governed by the license
// that can be found in the LICENSE file.

package apic

import (
	"time"

	"github.com/nucleus-os/nucleus/acpi"
	"github.com/nucleus-os/nucleus/klog"
	"github.com/nucleus-os/nucleus/mem"
)

// BootParams is the agreed structure written to the trampoline frame before
// waking an AP (spec.md §4.3: "write the new CPU's boot parameters (stack
// base/top, page-table physical address, entry function pointer, NMI
// configuration) into an agreed structure at the trampoline frame").
type BootParams struct {
	StackBase     uintptr
	StackTop      uintptr
	PageTableRoot mem.Frame
	Entry         uintptr
	NmiLint       uint8
	NmiFlags      uint16
}

// Trampoline abstracts the low-memory, identity-mapped frame that real-mode
// AP startup code reads BootParams from and flips a ready flag in, so a
// test can stand in a fake for the trampoline frame. The INIT and STARTUP
// IPIs BringUp sends still go through bsp's real register window.
// Grounded on the teacher's amd64/smp.go task.Write (buffer → dma.Region →
// copy) plus its reg.WaitFor poll of the ready semaphore at taskAddress.
type Trampoline interface {
	WriteParams(apicID uint8, p BootParams)
	Ready(apicID uint8) bool
}

// BringUpResult records the outcome of starting one application processor.
type BringUpResult struct {
	ApicID  uint8
	Started bool
}

// StackAllocator supplies a fresh kernel stack for a newly started AP.
type StackAllocator func(apicID uint8) (base, top uintptr, err error)

// initSipiDelay is the wait between INIT and STARTUP IPIs (AMD64
// Architecture Programmer's Manual Volume 2, §15.27.8: "Bring-up software
// must wait 10 ms after the INIT IPI").
const initSipiDelay = 10 * time.Millisecond

// readyTimeout is how long BringUp waits for an AP's ready flag before
// giving up on it (spec.md §4.3: "If the ready flag is not set within a
// timeout the AP is considered dead and skipped").
const readyTimeout = 1 * time.Second

// BringUp starts every application processor named in aps using the
// INIT-wait-STARTUP sequence, per spec.md §4.3. trampolineVector is the
// physical address of the low-memory frame the real-mode trampoline blob
// was already copied to, shifted right by 12 (the vector field of a
// STARTUP IPI is the upper 8 bits of a 20-bit physical address). Per-AP
// failures are logged and skipped rather than aborting the whole sequence
// (spec.md §7: "ApStartFailure | SMP bring-up | logged, that CPU skipped").
func BringUp(bsp *LocalApic, aps []acpi.LocalApic, tw Trampoline, trampolineVector uint8, stacks StackAllocator, pageTableRoot mem.Frame, entry uintptr, nmis []acpi.Nmi) []BringUpResult {
	results := make([]BringUpResult, 0, len(aps))

	for _, ap := range aps {
		base, top, err := stacks(ap.ApicID)
		if err != nil {
			klog.Warn("smp", "failed to allocate stack for AP "+itoa(ap.ApicID))
			results = append(results, BringUpResult{ApicID: ap.ApicID, Started: false})
			continue
		}

		lint, flags := nmiFor(nmis, ap.ProcessorID)
		tw.WriteParams(ap.ApicID, BootParams{
			StackBase:     base,
			StackTop:      top,
			PageTableRoot: pageTableRoot,
			Entry:         entry,
			NmiLint:       lint,
			NmiFlags:      flags,
		})

		bsp.SendIPI(One(ap.ApicID), 0, DeliveryInit)
		time.Sleep(initSipiDelay)
		bsp.SendIPI(One(ap.ApicID), trampolineVector, DeliverySIPI)

		started := waitReady(tw, ap.ApicID, readyTimeout)
		if !started {
			klog.Warn("smp", "AP "+itoa(ap.ApicID)+" did not signal ready within timeout")
		}
		results = append(results, BringUpResult{ApicID: ap.ApicID, Started: started})
	}

	return results
}

func waitReady(tw Trampoline, apicID uint8, timeout time.Duration) bool {
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if tw.Ready(apicID) {
			return true
		}
	}
	return tw.Ready(apicID)
}

func nmiFor(nmis []acpi.Nmi, processorID uint8) (lint uint8, flags uint16) {
	for _, n := range nmis {
		if n.Processor == 0xff || n.Processor == processorID {
			return n.Lint, n.Flags
		}
	}
	return 0, 0
}

// itoa avoids pulling in strconv/fmt for a handful of single-byte IDs in a
// log line, matching the allocation-free logging discipline klog documents.
func itoa(v uint8) string {
	if v == 0 {
		return "0"
	}
	var buf [3]byte
	i := len(buf)
	for v > 0 {
		i--
		buf[i] = byte('0' + v%10)
		v /= 10
	}
	return string(buf[i:])
}
