// https://github.com/nucleus-os/nucleus
//
// Use of this source code is governed by the license
// that can be found in the LICENSE file.

// Package klog provides an allocation-free early logger for use before (and
// after) the frame allocator is initialized. It writes through a single
// package-level Sink, which defaults to a no-op so that tests and host
// tooling can link the package without a serial port.
package klog

// Sink receives raw bytes from the logger. Board init code assigns this to
// a serial/UART writer before calling any other kernel package; every
// package in this module that can fail before the allocator exists logs
// through klog rather than fmt, exactly as the teacher's boot path writes
// through the bare `print()` builtin before runtime init completes.
var Sink func(s string)

func emit(level, module, msg string) {
	if Sink == nil {
		return
	}
	Sink(level)
	Sink(" ")
	Sink(module)
	Sink(": ")
	Sink(msg)
	Sink("\n")
}

// Info logs an informational boot/runtime message.
func Info(module, msg string) {
	emit("INFO", module, msg)
}

// Warn logs a recoverable condition (e.g. an AP that failed to start).
func Warn(module, msg string) {
	emit("WARN", module, msg)
}

// Fatal logs an unrecoverable condition and halts. Callers on fatal paths
// (MADT parse failure, a second panic inside failure cleanup) call this
// instead of returning an error because there is no caller left to handle
// one.
func Fatal(module, msg string) {
	emit("FATAL", module, msg)
	halt()
}
