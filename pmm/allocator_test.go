package pmm

import (
	"errors"
	"testing"

	"github.com/nucleus-os/nucleus/kernelerr"
	"github.com/nucleus-os/nucleus/mem"
)

func newTestAllocator() *Allocator {
	return New("test", mem.FrameRange{Start: 0, Count: 1024})
}

func TestAllocateAndRelease(t *testing.T) {
	a := newTestAllocator()

	tok, err := a.Allocate(10)
	if err != nil {
		t.Fatalf("Allocate: %v", err)
	}
	if tok.Range.Count != 10 {
		t.Fatalf("expected 10 frames, got %d", tok.Range.Count)
	}
	if got := a.FreeCount(); got != 1024-10 {
		t.Fatalf("free count = %d, want %d", got, 1024-10)
	}

	tok.Release()
	if got := a.FreeCount(); got != 1024 {
		t.Fatalf("after release, free count = %d, want 1024", got)
	}
}

func TestAllocateExhausted(t *testing.T) {
	a := newTestAllocator()

	if _, err := a.Allocate(1024); err != nil {
		t.Fatalf("Allocate full range: %v", err)
	}
	if _, err := a.Allocate(1); !errors.Is(err, kernelerr.ErrExhausted) {
		t.Fatalf("expected ErrExhausted, got %v", err)
	}
}

func TestAllocateAtConflict(t *testing.T) {
	a := newTestAllocator()

	held, err := a.AllocateAt(100, 10)
	if err != nil {
		t.Fatalf("AllocateAt: %v", err)
	}

	if _, err := a.AllocateAt(105, 10); !errors.Is(err, kernelerr.ErrAddressInUse) {
		t.Fatalf("expected ErrAddressInUse for straddling range, got %v", err)
	}

	if _, err := a.AllocateAt(2000, 1); !errors.Is(err, kernelerr.ErrOutOfBounds) {
		t.Fatalf("expected ErrOutOfBounds, got %v", err)
	}

	held.Release()
}

func TestAllocateZeroSize(t *testing.T) {
	a := newTestAllocator()
	if _, err := a.Allocate(0); !errors.Is(err, kernelerr.ErrZeroSizeReq) {
		t.Fatalf("expected ErrZeroSizeReq, got %v", err)
	}
}

func TestSplitDoesNotOverlap(t *testing.T) {
	a := newTestAllocator()
	tok, err := a.Allocate(10)
	if err != nil {
		t.Fatalf("Allocate: %v", err)
	}

	left, right, err := tok.Split(4)
	if err != nil {
		t.Fatalf("Split: %v", err)
	}
	if left.Range.Count != 4 || right.Range.Count != 6 {
		t.Fatalf("unexpected split sizes: left=%d right=%d", left.Range.Count, right.Range.Count)
	}
	if left.Range.End() != right.Range.Start {
		t.Fatalf("split halves are not contiguous: %v %v", left.Range, right.Range)
	}

	left.Release()
	right.Release()
	if got := a.FreeCount(); got != 1024 {
		t.Fatalf("free count after releasing both halves = %d, want 1024", got)
	}
}

func TestReleaseIsIdempotent(t *testing.T) {
	a := newTestAllocator()
	tok, _ := a.Allocate(5)
	tok.Release()
	tok.Release() // must not double-free into the set
	if got := a.FreeCount(); got != 1024 {
		t.Fatalf("free count = %d, want 1024 after idempotent release", got)
	}
}

func TestCoalescingAfterRelease(t *testing.T) {
	a := newTestAllocator()

	t1, _ := a.Allocate(100)
	t2, _ := a.Allocate(100)

	t1.Release()
	t2.Release()

	// After releasing both adjacent allocations, a single allocation for
	// the full original range must succeed, proving the free set
	// coalesced them back together.
	whole, err := a.Allocate(1024)
	if err != nil {
		t.Fatalf("expected coalesced allocator to satisfy full-range request: %v", err)
	}
	whole.Release()
}
