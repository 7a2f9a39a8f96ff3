// https://github.com/nucleus-os/nucleus
//
// Use of this source code is governed by the license
// that can be found in the LICENSE file.

// Package kernelerr defines the typed error values returned across the core
// boundary (frame/page allocation, the mapper, SMP bring-up, and the crate
// loader).
//
// The sentinel errors below are global, pointer-identity comparable values
// rather than results of errors.New/fmt.Errorf, following the same
// rationale as bare-metal kernels in this tradition: early boot code runs
// before the allocator is available and must not allocate to report a
// failure. Error.With and the per-occurrence types UnresolvedSymbol and
// RelocOutOfRange do allocate a new value for each failure.
package kernelerr

// Error describes a kernel error with the module that raised it.
type Error struct {
	Module  string
	Message string
	Wrapped error
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e.Wrapped != nil {
		return e.Module + ": " + e.Message + ": " + e.Wrapped.Error()
	}
	return e.Module + ": " + e.Message
}

// Unwrap supports errors.Is/errors.As against the wrapped cause, if any.
func (e *Error) Unwrap() error {
	return e.Wrapped
}

// With returns a copy of e with a wrapped cause attached, for call sites
// that need to annotate a lower-level failure (e.g. a relocation error
// surfacing an ELF parse error) without losing the original.
func (e *Error) With(cause error) *Error {
	return &Error{Module: e.Module, Message: e.Message, Wrapped: cause}
}

// Allocator errors (spec.md §4.1, §7).
var (
	ErrExhausted      = &Error{Module: "alloc", Message: "allocator exhausted"}
	ErrAddressInUse   = &Error{Module: "alloc", Message: "address range already in use"}
	ErrOutOfBounds    = &Error{Module: "alloc", Message: "address range out of bounds"}
	ErrZeroSizeReq    = &Error{Module: "alloc", Message: "zero-size allocation request"}
	ErrInvalidRelease = &Error{Module: "alloc", Message: "release of range not owned by this allocator"}
)

// Page-table / mapper errors (spec.md §4.2, §7).
var (
	ErrMapping     = &Error{Module: "paging", Message: "mapping failed"}
	ErrTranslate   = &Error{Module: "paging", Message: "address does not translate"}
	ErrAlignment   = &Error{Module: "paging", Message: "address is not page aligned"}
	ErrTableInUse  = &Error{Module: "paging", Message: "page table has live mapped pages"}
	ErrNotMapped   = &Error{Module: "paging", Message: "virtual range is not mapped"}
	ErrCrossTables = &Error{Module: "paging", Message: "mapped pages do not belong to this table"}
)

// ACPI / SMP errors (spec.md §4.3, §7).
var (
	ErrMadtParse    = &Error{Module: "acpi", Message: "MADT parse failure"}
	ErrApStart      = &Error{Module: "smp", Message: "application processor failed to start"}
	ErrCalibration  = &Error{Module: "smp", Message: "timer calibration failed"}
	ErrUnknownCPU   = &Error{Module: "smp", Message: "no registered LocalApic for this CPU id"}
	ErrDuplicateCPU = &Error{Module: "smp", Message: "LocalApic already registered for this CPU id"}
)

// Task / scheduler errors (spec.md §4.4, §4.5, §7).
var (
	ErrTaskAlreadyExited = &Error{Module: "task", Message: "task has already exited"}
	ErrTaskNotExited     = &Error{Module: "task", Message: "task has not exited"}
	ErrAlreadyReaped     = &Error{Module: "task", Message: "exit value already reaped"}
	ErrNoRunqueue        = &Error{Module: "sched", Message: "no runqueue registered for this CPU"}
)

// Loader / namespace errors (spec.md §4.6, §7).
var (
	ErrElfParse      = &Error{Module: "loader", Message: "ELF parse failure"}
	ErrRelocOutOfRng = &Error{Module: "loader", Message: "relocation target outside mapped region"}
	ErrUnsupportedRT = &Error{Module: "loader", Message: "unsupported relocation type"}
	ErrCrateNotFound = &Error{Module: "loader", Message: "crate not found in namespace"}
)

// UnresolvedSymbol reports a relocation or lookup that could not find its
// target symbol anywhere in the crate's namespace chain. It carries the
// symbol name, unlike the sentinel errors above, so it is constructed per
// occurrence rather than shared as a package-level var.
type UnresolvedSymbol struct {
	Name string

	// Detail is an optional disassembly of the faulting call/reference
	// site, filled in by the relocation applier when it can still read
	// the patch site's current bytes.
	Detail string
}

func (e *UnresolvedSymbol) Error() string {
	if e.Detail == "" {
		return "loader: unresolved symbol: " + e.Name
	}
	return "loader: unresolved symbol: " + e.Name + " (" + e.Detail + ")"
}

// RelocOutOfRange reports a relocation whose patch site falls outside the
// ELF section it was declared against, carrying a disassembly of the
// instruction at that site for diagnostics.
type RelocOutOfRange struct {
	Detail string
}

func (e *RelocOutOfRange) Error() string {
	if e.Detail == "" {
		return ErrRelocOutOfRng.Error()
	}
	return ErrRelocOutOfRng.Error() + ": " + e.Detail
}
