// https://github.com/nucleus-os/nucleus
//
// Use of this source code is governed by the license
// that can be found in the LICENSE file.

package task

// KillReason distinguishes the ways a task can end up Exited without
// returning normally (spec.md §7: PanicInTask, ExceptionInTask; §8 scenario
// 6: kill(Requested)).
type KillReason struct {
	kind      killKind
	exception uint8 // valid when kind == killException
	panicMsg  string
}

type killKind int

const (
	killRequested killKind = iota
	killPanic
	killException
)

func Requested() KillReason             { return KillReason{kind: killRequested} }
func Panicked(msg string) KillReason    { return KillReason{kind: killPanic, panicMsg: msg} }
func Exception(vector uint8) KillReason { return KillReason{kind: killException, exception: vector} }

func (r KillReason) String() string {
	switch r.kind {
	case killPanic:
		return "Killed(Panic: " + r.panicMsg + ")"
	case killException:
		return "Killed(Exception)"
	default:
		return "Killed(Requested)"
	}
}

// ExitValue is the terminal payload of a Task, published exactly once when
// it transitions to Exited and consumed exactly once on the Exited→Reaped
// transition (spec.md §3 Task invariant (c)).
type ExitValue struct {
	completed bool
	value     any
	reason    KillReason
}

// Completed constructs an ExitValue for a task whose entry function
// returned normally.
func Completed(value any) ExitValue { return ExitValue{completed: true, value: value} }

// Killed constructs an ExitValue for a task that did not return normally.
func Killed(reason KillReason) ExitValue { return ExitValue{completed: false, reason: reason} }

// IsCompleted reports whether the task ran to completion rather than being
// killed.
func (e ExitValue) IsCompleted() bool { return e.completed }

// Value returns the completion value; only meaningful if IsCompleted.
func (e ExitValue) Value() any { return e.value }

// Reason returns the kill reason; only meaningful if !IsCompleted.
func (e ExitValue) Reason() KillReason { return e.reason }
