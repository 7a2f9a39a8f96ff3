// https://github.com/nucleus-os/nucleus
//
// Use of this source code is governed by the license
// that can be found in the LICENSE file.

package mem

// FrameRange is an inclusive, contiguous sequence of physical frames
// [Start, Start+Count).
type FrameRange struct {
	Start Frame
	Count uint64
}

// End returns the first frame past the end of the range.
func (r FrameRange) End() Frame { return r.Start + Frame(r.Count) }

// Empty reports whether the range holds no frames.
func (r FrameRange) Empty() bool { return r.Count == 0 }

// Contains reports whether f lies within the range.
func (r FrameRange) Contains(f Frame) bool { return f >= r.Start && f < r.End() }

// Overlaps reports whether r and o share any frame.
func (r FrameRange) Overlaps(o FrameRange) bool {
	if r.Empty() || o.Empty() {
		return false
	}
	return r.Start < o.End() && o.Start < r.End()
}

// Sub removes o from r. Since o may split r in two, Sub returns up to two
// remaining sub-ranges (in ascending order); it returns zero ranges if o
// fully covers r, and one range unchanged if they don't overlap.
func (r FrameRange) Sub(o FrameRange) []FrameRange {
	if !r.Overlaps(o) {
		return []FrameRange{r}
	}

	var out []FrameRange
	if r.Start < o.Start {
		out = append(out, FrameRange{Start: r.Start, Count: uint64(o.Start - r.Start)})
	}
	if o.End() < r.End() {
		out = append(out, FrameRange{Start: o.End(), Count: uint64(r.End() - o.End())})
	}
	return out
}

// Iter calls fn for every frame in the range, in ascending order, stopping
// early if fn returns false.
func (r FrameRange) Iter(fn func(Frame) bool) {
	for f := r.Start; f < r.End(); f++ {
		if !fn(f) {
			return
		}
	}
}

// PageRange is an inclusive, contiguous sequence of virtual pages
// [Start, Start+Count).
type PageRange struct {
	Start Page
	Count uint64
}

// End returns the first page past the end of the range.
func (r PageRange) End() Page { return r.Start + Page(r.Count) }

// Empty reports whether the range holds no pages.
func (r PageRange) Empty() bool { return r.Count == 0 }

// Contains reports whether p lies within the range.
func (r PageRange) Contains(p Page) bool { return p >= r.Start && p < r.End() }

// Overlaps reports whether r and o share any page.
func (r PageRange) Overlaps(o PageRange) bool {
	if r.Empty() || o.Empty() {
		return false
	}
	return r.Start < o.End() && o.Start < r.End()
}

// Sub removes o from r, mirroring FrameRange.Sub.
func (r PageRange) Sub(o PageRange) []PageRange {
	if !r.Overlaps(o) {
		return []PageRange{r}
	}

	var out []PageRange
	if r.Start < o.Start {
		out = append(out, PageRange{Start: r.Start, Count: uint64(o.Start - r.Start)})
	}
	if o.End() < r.End() {
		out = append(out, PageRange{Start: o.End(), Count: uint64(r.End() - o.End())})
	}
	return out
}

// Iter calls fn for every page in the range, in ascending order, stopping
// early if fn returns false.
func (r PageRange) Iter(fn func(Page) bool) {
	for p := r.Start; p < r.End(); p++ {
		if !fn(p) {
			return
		}
	}
}
