// Package bootmem is the bump allocator PMM init uses to carve out its own
// bitmaps before any general-purpose allocator exists (§4.4 Bootstrap
// allocator). It is grounded on gopher-os's early frame allocator, which
// plays the same "exists only until the real allocator takes over" role,
// and on the teacher's bump-style page-map allocation in mem.Pmap_new.
package bootmem

import "util"

// Allocator is a monotonic bump allocator over a single physical window.
// Once init builds the PMM's bitmaps from it, it is abandoned; it has no
// free operation by design (§4.4: "no free").
type Allocator struct {
	start uintptr
	end   uintptr
	next  uintptr
}

// Init sets the allocator's window to [start, end).
func (a *Allocator) Init(start, end uintptr) {
	if end <= start {
		panic("bootmem: empty window")
	}
	a.start = start
	a.end = end
	a.next = start
}

// Alloc returns size bytes aligned up to align, or (0, false) if the
// window is exhausted. align must be a power of two.
func (a *Allocator) Alloc(size uintptr, align uintptr) (uintptr, bool) {
	if align == 0 || align&(align-1) != 0 {
		panic("bootmem: alignment not a power of two")
	}
	base := uintptr(util.Roundup(int(a.next), int(align)))
	if base+size > a.end || base < a.next {
		return 0, false
	}
	a.next = base + size
	return base, true
}

// Used returns the number of bytes handed out so far.
func (a *Allocator) Used() uintptr { return a.next - a.start }

// Remaining returns the number of bytes still available.
func (a *Allocator) Remaining() uintptr { return a.end - a.next }
