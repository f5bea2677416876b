// Package buddy layers a binary-buddy allocator for 2^n-frame runs over
// the PMM, amortizing its bitmap scan for the common case of small
// power-of-two allocations (§4.7 Buddy page allocator). Free-list-per-order
// bookkeeping is grounded on the teacher's per-CPU free-list-of-index
// idiom in mem.Physmem_t (a chain of indices rather than embedded
// pointers); here the chain lives in ordinary Go structs kept in the
// allocator's own metadata, exactly as the spec requires ("kept in a
// kernel metadata region, not in the user pages themselves").
package buddy

import (
	"container/list"
	"sync"

	"defs"
	"mem"
)

// MaxOrder bounds the largest run this allocator can hand out directly:
// 2^12 frames = 16 MiB (§4.7).
const MaxOrder = 12

const (
	pageAllocMinChunkSize = 2 << 20  // 2 MiB
	pageAllocMaxChunkSize = 16 << 20 // 16 MiB
	cleanupThreshold      = 8
	cleanupMinOrder       = 4
	minChunksToKeep        = 2
	mediumOrderFloor       = 7
	mediumOrderCeil        = 9
	largeOrderFloor        = 10
)

// block is one buddy-tracked run; its state lives entirely here, never in
// the frames it describes.
type block struct {
	phys     mem.Pa_t
	order    int
	chunk    *chunk
	relFrame uint32 // frame offset within the owning chunk
	elem     *list.Element
}

// chunk is one PMM-backed extent carved into buddy blocks. blocks indexes
// every live block (free or allocated) by its relative frame offset so a
// buddy can be found in O(1).
type chunk struct {
	base     mem.Pa_t
	nframes  uint32
	blocks   map[uint32]*block
	topOrder int
}

// Allocator_t is the buddy page allocator (§4.7).
type Allocator_t struct {
	mu        sync.Mutex
	freeLists [MaxOrder + 1]*list.List
	chunks    []*chunk
}

// Buddy is the global buddy allocator instance, following the package's
// other subsystems' single-global-instance convention.
var Buddy = New()

// New returns an initialized, chunk-less allocator.
func New() *Allocator_t {
	a := &Allocator_t{}
	for i := range a.freeLists {
		a.freeLists[i] = list.New()
	}
	return a
}

func orderSize(order int) uintptr {
	return uintptr(mem.PGSIZE) << uint(order)
}

func orderFrames(order int) uint32 {
	return uint32(1) << uint(order)
}

// Page_alloc finds the smallest order >= requested with a free block,
// splitting it down to size and re-inserting the buddy halves at the
// intermediate orders (§4.7 page_alloc). Returns 0 on failure.
func (a *Allocator_t) Page_alloc(order int) mem.Pa_t {
	if order < 0 || order > MaxOrder {
		return 0
	}
	a.mu.Lock()
	defer a.mu.Unlock()

	b := a.takeFree(order)
	if b == nil {
		if !a.growForOrder(order) {
			return 0
		}
		b = a.takeFree(order)
		if b == nil {
			return 0
		}
	}
	return b.phys
}

// takeFree finds the smallest free block at order >= want, splits it down
// to want, and returns the resulting block marked allocated (but not
// re-inserted anywhere — caller owns it now).
func (a *Allocator_t) takeFree(want int) *block {
	for order := want; order <= MaxOrder; order++ {
		fl := a.freeLists[order]
		if fl.Len() == 0 {
			continue
		}
		elem := fl.Front()
		fl.Remove(elem)
		b := elem.Value.(*block)
		b.elem = nil
		for b.order > want {
			b.order--
			buddyRel := b.relFrame ^ orderFrames(b.order)
			buddy := &block{
				phys:     b.chunk.base + mem.Pa_t(buddyRel)<<mem.PGSHIFT,
				order:    b.order,
				chunk:    b.chunk,
				relFrame: buddyRel,
			}
			b.chunk.blocks[buddyRel] = buddy
			a.insertFree(buddy)
		}
		delete(b.chunk.blocks, b.relFrame)
		b.chunk.blocks[b.relFrame] = b
		return b
	}
	return nil
}

func (a *Allocator_t) insertFree(b *block) {
	b.elem = a.freeLists[b.order].PushBack(b)
}

// growForOrder requests a fresh chunk from the PMM sized per §4.7's
// order-band policy and carves it into the highest-order free blocks that
// fit.
func (a *Allocator_t) growForOrder(order int) bool {
	var chunkSize uintptr
	switch {
	case order >= largeOrderFloor:
		chunkSize = orderSize(order)
		if chunkSize > pageAllocMaxChunkSize {
			chunkSize = pageAllocMaxChunkSize
		}
	case order >= mediumOrderFloor && order <= mediumOrderCeil:
		chunkSize = 4 << 20
	default:
		chunkSize = pageAllocMinChunkSize
	}
	if chunkSize < orderSize(order) {
		chunkSize = orderSize(order)
	}
	if chunkSize > pageAllocMaxChunkSize {
		chunkSize = pageAllocMaxChunkSize
	}
	nframes := uint32(chunkSize >> mem.PGSHIFT)
	pa := mem.Physmem.Alloc_pages(int(nframes))
	if pa == 0 {
		return false
	}

	c := &chunk{base: pa, nframes: nframes, blocks: make(map[uint32]*block)}
	a.chunks = append(a.chunks, c)

	// carve into the largest blocks that evenly tile nframes.
	var off uint32
	for off < nframes {
		order := MaxOrder
		for order > 0 && (orderFrames(order) > nframes-off || off%orderFrames(order) != 0) {
			order--
		}
		b := &block{phys: c.base + mem.Pa_t(off)<<mem.PGSHIFT, order: order, chunk: c, relFrame: off}
		c.blocks[off] = b
		a.insertFree(b)
		if order > c.topOrder {
			c.topOrder = order
		}
		off += orderFrames(order)
	}
	return true
}

// Page_free locates the block owning phys at order, then coalesces with
// its buddy while the buddy is free and the combined block stays
// chunk-aligned, doubling order each time (§4.7 page_free).
func (a *Allocator_t) Page_free(phys mem.Pa_t, order int) defs.Err_t {
	a.mu.Lock()
	defer a.mu.Unlock()

	c := a.chunkFor(phys)
	if c == nil {
		return defs.ENODEV
	}
	relFrame := uint32((phys - c.base) >> mem.PGSHIFT)
	b, ok := c.blocks[relFrame]
	if !ok || b.elem != nil {
		// unknown block, or it's already sitting on a free list: double
		// free (§4.7 failure modes).
		return defs.EINVAL
	}
	b.order = order

	for b.order < MaxOrder {
		buddyRel := b.relFrame ^ orderFrames(b.order)
		if buddyRel+orderFrames(b.order) > c.nframes {
			break
		}
		buddy, ok := c.blocks[buddyRel]
		if !ok || buddy.elem == nil || buddy.order != b.order {
			break
		}
		a.freeLists[buddy.order].Remove(buddy.elem)
		delete(c.blocks, buddy.relFrame)
		delete(c.blocks, b.relFrame)
		if buddyRel < b.relFrame {
			b.relFrame = buddyRel
		}
		b.order++
		b.phys = c.base + mem.Pa_t(b.relFrame)<<mem.PGSHIFT
		c.blocks[b.relFrame] = b
	}
	a.insertFree(b)
	a.maybeReclaim(c)
	return 0
}

func (a *Allocator_t) chunkFor(phys mem.Pa_t) *chunk {
	for _, c := range a.chunks {
		if phys >= c.base && phys < c.base+mem.Pa_t(c.nframes)<<mem.PGSHIFT {
			return c
		}
	}
	return nil
}

// maybeReclaim returns c to the PMM once the allocator holds more than
// cleanupThreshold chunks and c has decayed to a single free block of at
// least cleanupMinOrder, provided minChunksToKeep would still remain
// (§4.7 chunk lifecycle).
func (a *Allocator_t) maybeReclaim(c *chunk) {
	if len(a.chunks) <= cleanupThreshold || len(a.chunks) <= minChunksToKeep {
		return
	}
	if len(c.blocks) != 1 {
		return
	}
	var only *block
	for _, b := range c.blocks {
		only = b
	}
	if only.order < cleanupMinOrder || only.elem == nil {
		return
	}
	a.freeLists[only.order].Remove(only.elem)
	mem.Physmem.Free_pages(c.base, int(c.nframes))
	for i, cc := range a.chunks {
		if cc == c {
			a.chunks = append(a.chunks[:i], a.chunks[i+1:]...)
			break
		}
	}
}

// ChunkCount reports how many chunks are currently held, for tests and
// introspection.
func (a *Allocator_t) ChunkCount() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return len(a.chunks)
}
