// https://github.com/nucleus-os/nucleus
//
// Use of this source code is governed by the license
// that can be found in the LICENSE file.

package apic

import (
	"time"

	"github.com/nucleus-os/nucleus/kernelerr"
)

// calibrationWindow is the fixed interval the LAPIC timer is calibrated
// against (spec.md §4.3: "loading a known countdown, waiting a fixed
// microsecond interval, and scaling"), grounded on the teacher's
// calibrateByTimer loop in amd64/timer.go, generalized from a hardcoded
// ACPI PM Timer read to any ReferenceClock implementation (PIT, ACPI PM
// Timer, or a hypervisor clock, each exposing only a free-running counter
// and its frequency).
const calibrationWindow = 10 * time.Millisecond

// ReferenceClock is a free-running counter of known frequency used to
// calibrate the LAPIC timer, abstracting over the PIT/ACPI-PM-Timer/
// kvmclock choices the teacher's amd64/timer.go hardcodes per backend.
type ReferenceClock interface {
	// Ticks returns the counter's current value.
	Ticks() uint64
	// FreqHz returns the counter's fixed frequency.
	FreqHz() uint64
}

// Calibrate loads initialCount into the LAPIC timer in one-shot mode,
// waits calibrationWindow against ref, and returns the count that would
// have elapsed in one second, i.e. the value to program for a 1 Hz
// periodic timer. A single retry is attempted on an implausible (zero)
// reading before reporting failure (spec.md §4.3: "Timer calibration
// failure retries once; a second failure is fatal for that CPU").
func Calibrate(l *LocalApic, ref ReferenceClock, initialCount uint32) (countPerSecond uint32, err error) {
	countPerSecond, ok := calibrateOnce(l, ref, initialCount)
	if ok {
		return countPerSecond, nil
	}
	countPerSecond, ok = calibrateOnce(l, ref, initialCount)
	if !ok {
		return 0, kernelerr.ErrCalibration
	}
	return countPerSecond, nil
}

func calibrateOnce(l *LocalApic, ref ReferenceClock, initialCount uint32) (uint32, bool) {
	l.SetTimer(0, TimerOneShot, initialCount)

	t0 := ref.Ticks()
	deadline := time.Now().Add(calibrationWindow)
	for time.Now().Before(deadline) {
	}
	t1 := ref.Ticks()

	elapsedTicks := t1 - t0
	if elapsedTicks == 0 {
		return 0, false
	}

	remaining := l.TimerCount()
	consumed := initialCount - remaining
	if consumed == 0 {
		return 0, false
	}

	elapsedSeconds := float64(elapsedTicks) / float64(ref.FreqHz())
	perSecond := float64(consumed) / elapsedSeconds
	return uint32(perSecond), true
}
