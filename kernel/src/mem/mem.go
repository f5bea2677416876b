// Package mem is the Physical Memory Manager (§4.5 PMM). It owns one
// bitmap per RAM region discovered from the device tree, hands out single
// frames and page-table frames to the VMM, contiguous runs to the buddy
// allocator's chunk path, and is the sole allocator of physical frames in
// the core. The per-region bitmap-and-lock shape is grounded on the
// teacher's Physmem_t; the scan-for-a-free-bit algorithm follows
// gopher-os's BitmapAllocator (markFrame/poolForFrame), since the teacher's
// own allocator used a linked free list of page indices instead of a
// bitmap.
package mem

import (
	"sync"
	"unsafe"

	"bootmem"
	"defs"
	"stats"
	"util"
)

/// PGSHIFT is the base-2 exponent for the page size.
const PGSHIFT uint = 12

/// PGSIZE is the size of a single page in bytes.
const PGSIZE int = 1 << PGSHIFT

/// PGOFFSET masks offsets within a page.
const PGOFFSET Pa_t = 0xfff

/// PGMASK masks the page number of an address.
const PGMASK Pa_t = ^(PGOFFSET)

/// Pa_t represents a physical address.
type Pa_t uintptr

/// Bytepg_t is a byte addressed page.
type Bytepg_t [PGSIZE]uint8

func pg2pgn(pa Pa_t) uint32 { return uint32(pa >> PGSHIFT) }

const wordBits = 64

// region is one RAM bank's bitmap, its frame-number origin, and the count
// of bits still free; freeCount lets the allocator skip a fully reserved
// region without scanning it, same shortcut gopher-os's framePool takes.
type region struct {
	startFrame uint32
	nframes    uint32
	bitmap     []uint64
	freeCount  uint32
	name       string
}

func (r *region) bitIndex(frame uint32) (word int, mask uint64) {
	rel := frame - r.startFrame
	return int(rel / wordBits), uint64(1) << (rel % wordBits)
}

func (r *region) isFree(frame uint32) bool {
	w, m := r.bitIndex(frame)
	return r.bitmap[w]&m == 0
}

func (r *region) mark(frame uint32, used bool) {
	w, m := r.bitIndex(frame)
	wasUsed := r.bitmap[w]&m != 0
	if used {
		r.bitmap[w] |= m
	} else {
		r.bitmap[w] &^= m
	}
	switch {
	case used && !wasUsed:
		r.freeCount--
	case !used && wasUsed:
		r.freeCount++
	}
}

func (r *region) contains(frame uint32) bool {
	return frame >= r.startFrame && frame < r.startFrame+r.nframes
}

// Stats_t is the snapshot returned by Get_stats (§4.5 get_stats).
type Stats_t struct {
	TotalFrames    uint32
	FreeFrames     uint32
	ReservedFrames uint32
}

/// Physmem_t manages all physical memory for the system (§4.5 PMM).
type Physmem_t struct {
	mu      sync.Mutex
	regions []region

	dmapBase uintptr
	dmapPhys Pa_t
	dmapMax  Pa_t
	dmapOn   bool

	PageTablePages stats.Counter_t
	DoubleFrees    stats.Counter_t

	ready bool
}

/// Physmem is the global physical memory allocator instance.
var Physmem = &Physmem_t{}

// physAt returns an unsafe pointer to size bytes at physical address pa.
// Valid only before the DMAP is live, when the bootstrap window is
// required to fall inside memory the boot stub has already identity
// mapped (every target this core boots on does this for early RAM).
func physAt(pa uintptr, size uintptr) unsafe.Pointer {
	return unsafe.Pointer(pa)
}

func bitmapSliceAt(pa uintptr, words int) []uint64 {
	return unsafe.Slice((*uint64)(physAt(pa, uintptr(words)*8)), words)
}

func unsafeZeroPage(va uintptr) []uint8 {
	pg := unsafe.Slice((*uint8)(unsafe.Pointer(va)), PGSIZE)
	for i := range pg {
		pg[i] = 0
	}
	return pg
}

// Init builds one bitmap region per RAM bank (§4.5 init): the bitmap is
// carved from boot via the bootstrap allocator, then the kernel image's
// own footprint and any bank prefix below it are reserved, and finally
// the space the bitmap occupies is marked used too.
func (phys *Physmem_t) Init(kernelEndPhys Pa_t, info defs.MemoryInfo, boot *bootmem.Allocator) defs.Err_t {
	phys.mu.Lock()
	defer phys.mu.Unlock()
	if phys.ready {
		panic("mem: already initialized")
	}
	if len(info.Banks) == 0 {
		return defs.EINVAL
	}

	for _, bank := range info.Banks {
		startFrame := uint32(util.Roundup(int(bank.Base), PGSIZE) >> PGSHIFT)
		endFrame := uint32(util.Rounddown(int(bank.End()), PGSIZE) >> PGSHIFT)
		if endFrame <= startFrame {
			continue
		}
		nframes := endFrame - startFrame
		words := int((nframes + wordBits - 1) / wordBits)
		bitmapBytes := uintptr(words) * 8

		bitmapPhys, ok := boot.Alloc(bitmapBytes, 8)
		if !ok {
			return defs.ENOMEM
		}

		phys.regions = append(phys.regions, region{
			startFrame: startFrame,
			nframes:    nframes,
			bitmap:     bitmapSliceAt(bitmapPhys, words),
			freeCount:  nframes,
		})
		ri := &phys.regions[len(phys.regions)-1]

		// reserve the bank prefix below the kernel image plus the image
		// itself.
		if reserveEnd := kernelEndPhys; reserveEnd > Pa_t(bank.Base) {
			for f := startFrame; f < endFrame && Pa_t(f)<<PGSHIFT < reserveEnd; f++ {
				ri.mark(f, true)
			}
		}
		// reserve the frames the bitmap itself occupies.
		bmStart := pg2pgn(Pa_t(bitmapPhys))
		bmEnd := pg2pgn(Pa_t(util.Roundup(int(bitmapPhys)+int(bitmapBytes), PGSIZE)))
		for f := bmStart; f < bmEnd; f++ {
			if ri.contains(f) {
				ri.mark(f, true)
			}
		}
	}
	phys.ready = true
	return 0
}

/// Is_initialized reports whether Init has completed.
func (phys *Physmem_t) Is_initialized() bool {
	phys.mu.Lock()
	defer phys.mu.Unlock()
	return phys.ready
}

func (phys *Physmem_t) scanFree(n int) (uint32, *region, bool) {
	for i := range phys.regions {
		r := &phys.regions[i]
		if r.freeCount < uint32(n) {
			continue
		}
		run := 0
		var runStart uint32
		for f := r.startFrame; f < r.startFrame+r.nframes; f++ {
			if r.isFree(f) {
				if run == 0 {
					runStart = f
				}
				run++
				if run == n {
					return runStart, r, true
				}
			} else {
				run = 0
			}
		}
	}
	return 0, nil, false
}

/// Alloc_page allocates and returns a single free frame, or 0 on failure.
func (phys *Physmem_t) Alloc_page() Pa_t {
	phys.mu.Lock()
	defer phys.mu.Unlock()
	f, r, ok := phys.scanFree(1)
	if !ok {
		return 0
	}
	r.mark(f, true)
	return Pa_t(f) << PGSHIFT
}

/// Alloc_page_table allocates a frame for use as a page table, zeroing it
/// through the kernel-addressable mapping of the frame (the DMAP once it
/// is live, the frame's own physical address beforehand) and accounts it
/// against PageTablePages (§4.5 alloc_page_table).
func (phys *Physmem_t) Alloc_page_table() Pa_t {
	pa := phys.Alloc_page()
	if pa == 0 {
		return 0
	}
	unsafeZeroPage(phys.PhysToKVA(pa))
	phys.PageTablePages.Inc()
	return pa
}

/// Alloc_pages allocates n contiguous frames atomically, or returns 0 on
/// failure (§4.5 alloc_pages).
func (phys *Physmem_t) Alloc_pages(n int) Pa_t {
	if n <= 0 {
		return 0
	}
	phys.mu.Lock()
	defer phys.mu.Unlock()
	f, r, ok := phys.scanFree(n)
	if !ok {
		return 0
	}
	for i := 0; i < n; i++ {
		r.mark(f+uint32(i), true)
	}
	return Pa_t(f) << PGSHIFT
}

func (phys *Physmem_t) regionFor(frame uint32) *region {
	for i := range phys.regions {
		if phys.regions[i].contains(frame) {
			return &phys.regions[i]
		}
	}
	return nil
}

/// Free_page clears the bitmap bit for pa. A double-free is ignored and
/// counted in DoubleFrees; nothing is logged (§4.5 failure semantics).
func (phys *Physmem_t) Free_page(pa Pa_t) {
	phys.Free_pages(pa, 1)
}

/// Free_pages clears n bits starting at pa.
func (phys *Physmem_t) Free_pages(pa Pa_t, n int) {
	phys.mu.Lock()
	defer phys.mu.Unlock()
	start := pg2pgn(pa)
	for i := 0; i < n; i++ {
		frame := start + uint32(i)
		r := phys.regionFor(frame)
		if r == nil || r.isFree(frame) {
			phys.DoubleFrees.Inc()
			continue
		}
		r.mark(frame, false)
	}
}

/// Reserve_region marks every frame covered by [base, base+size) used and
/// attaches name for debugging (§4.5 reserve_region).
func (phys *Physmem_t) Reserve_region(base Pa_t, size uintptr, name string) {
	phys.mu.Lock()
	defer phys.mu.Unlock()
	start := pg2pgn(base)
	end := pg2pgn(Pa_t(util.Roundup(int(base)+int(size), PGSIZE)))
	for f := start; f < end; f++ {
		if r := phys.regionFor(f); r != nil {
			r.mark(f, true)
			r.name = name
		}
	}
}

/// Is_available reports whether pa names a free frame in a known region.
func (phys *Physmem_t) Is_available(pa Pa_t) bool {
	phys.mu.Lock()
	defer phys.mu.Unlock()
	r := phys.regionFor(pg2pgn(pa))
	return r != nil && r.isFree(pg2pgn(pa))
}

/// Get_memory_start returns the lowest frame's base address across all
/// regions, or 0 if none are configured.
func (phys *Physmem_t) Get_memory_start() Pa_t {
	phys.mu.Lock()
	defer phys.mu.Unlock()
	if len(phys.regions) == 0 {
		return 0
	}
	min := phys.regions[0].startFrame
	for _, r := range phys.regions[1:] {
		if r.startFrame < min {
			min = r.startFrame
		}
	}
	return Pa_t(min) << PGSHIFT
}

/// Get_memory_end returns the highest frame's exclusive end address.
func (phys *Physmem_t) Get_memory_end() Pa_t {
	phys.mu.Lock()
	defer phys.mu.Unlock()
	var max uint32
	for _, r := range phys.regions {
		if end := r.startFrame + r.nframes; end > max {
			max = end
		}
	}
	return Pa_t(max) << PGSHIFT
}

/// Get_stats returns a frame-count snapshot across all regions.
func (phys *Physmem_t) Get_stats() Stats_t {
	phys.mu.Lock()
	defer phys.mu.Unlock()
	var s Stats_t
	for _, r := range phys.regions {
		s.TotalFrames += r.nframes
		s.FreeFrames += r.freeCount
		s.ReservedFrames += r.nframes - r.freeCount
	}
	return s
}
