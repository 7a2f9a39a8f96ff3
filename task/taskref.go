// https://github.com/nucleus-os/nucleus
//
// Use of this source code is governed by the license
// that can be found in the LICENSE file.

package task

// TaskRef is the shared, cloneable handle wrapping a Task (spec.md §3:
// "shared, cloneable handle wrapping a Task behind an IRQ-safe lock and an
// exit flag. Equality is by identity."). Go's garbage collector makes the
// strong-count bookkeeping Theseus's Arc<Task> needs largely automatic;
// TaskRef exists chiefly to give every clone a single shared identity for
// the equality and kill-semantics spec.md requires, mirroring the
// teacher's own preference for returning a struct pointer as the shared
// handle rather than re-deriving one per call site.
type TaskRef struct {
	t *Task
}

func newTaskRef(t *Task) *TaskRef {
	return &TaskRef{t: t}
}

// Task returns the underlying Task. The scheduler and context-switch code
// operate on this directly; application-facing code should prefer the
// TaskRef methods below.
func (r *TaskRef) Task() *Task { return r.t }

// Equal reports whether r and o refer to the same Task (identity, not deep
// equality, per spec.md §3).
func (r *TaskRef) Equal(o *TaskRef) bool {
	if r == nil || o == nil {
		return r == o
	}
	return r.t == o.t
}

// Kill sets the task Exited(Killed(reason)) and runs its failure-cleanup
// function on the caller's goroutine before returning; nothing is queued
// for the task's home CPU. The target only observes the kill when it next
// reaches a scheduler entry point (spec.md §5).
func (r *TaskRef) Kill(reason KillReason) error {
	return r.t.Kill(reason)
}

// Reap consumes the task's exit value exactly once.
func (r *TaskRef) Reap() (ExitValue, error) {
	return r.t.Reap()
}

// State returns the underlying task's current run-state.
func (r *TaskRef) State() RunState { return r.t.State() }
