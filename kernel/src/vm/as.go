// Package vm is the Virtual Memory Manager (§4.6): a page-table walker
// parameterised entirely over the running architecture's arch.Ops.PT
// vtable. It has no notion of a process address space (a non-goal of this
// core); it owns exactly one page-table root, the kernel's, and maps
// physical frames from package mem into it. The walk/greedy-block-size
// structure is grounded on the teacher's Vm_t page-table walker
// (as.go), generalized from its x86-64 PTE layout to the arch-neutral
// PTOps vtable.
package vm

import (
	"sync"

	"arch"
	"defs"
	"mem"
)

// Vm_t is the kernel's single address space: one page-table root plus the
// lock serializing table-structure mutation (§4.6).
type Vm_t struct {
	mu   sync.Mutex
	root mem.Pa_t
}

var kernel Vm_t

// Init allocates the kernel's top-level page table. Must run after
// mem.Physmem.Init and before the first call to MapPage/MapRange.
func Init() defs.Err_t {
	kernel.mu.Lock()
	defer kernel.mu.Unlock()
	pa := mem.Physmem.Alloc_page_table()
	if pa == 0 {
		return defs.ENOMEM
	}
	kernel.root = pa
	return 0
}

// SetRoot installs the kernel root that Init allocated as the running root
// through arch.Ops.MMU.SetPTBase, followed by a barrier.
func SetRoot() {
	arch.Current.MMU.SetPTBase(uintptr(kernel.root))
	arch.Current.MMU.Barrier()
}

func ptTable(pa mem.Pa_t) []arch.PTE {
	va := mem.Physmem.PhysToKVA(pa)
	return ptSliceAt(va)
}

// walkCreate descends from the root to level, allocating any missing
// intermediate table at each step (§4.6 map_page: "allocating intermediate
// tables via pmm_alloc_page_table ... as needed"). Returns the table at
// the requested level, or nil if a PMM allocation failed or an
// intermediate level already holds a block entry.
func walkCreate(va uintptr, targetLevel int) []arch.PTE {
	pt := arch.Current.PT
	table := ptTable(kernel.root)
	for level := 0; level < targetLevel; level++ {
		idx := pt.Index(level, va)
		pte := table[idx]
		switch {
		case pt.IsTable(pte):
			table = ptTable(mem.Pa_t(pt.ToPhys(pte)))
		case pt.IsValid(pte):
			// a block entry already occupies this slot at a level that
			// needs to keep descending: collision (§4.6 failure modes).
			return nil
		default:
			childPhys := mem.Physmem.Alloc_page_table()
			if childPhys == 0 {
				return nil
			}
			table[idx] = pt.MakeTable(uintptr(childPhys))
			arch.Current.MMU.Barrier()
			table = ptTable(childPhys)
		}
	}
	return table
}

// walkLookup descends without allocating; returns the table at level and
// true, or (nil, false) if any intermediate entry is absent.
func walkLookup(va uintptr, targetLevel int) ([]arch.PTE, bool) {
	pt := arch.Current.PT
	table := ptTable(kernel.root)
	for level := 0; level < targetLevel; level++ {
		pte := table[pt.Index(level, va)]
		if !pt.IsTable(pte) {
			return nil, false
		}
		table = ptTable(mem.Pa_t(pt.ToPhys(pte)))
	}
	return table, true
}

func leafLevel() int {
	return arch.Current.PT.Levels - 1
}

// MapPage installs a single leaf mapping of the native page size at va
// (§4.6 map_page). Returns ENOMEM if an intermediate table could not be
// allocated or an intermediate level already holds a block entry, and
// ESTATE if the leaf slot for va is already mapped.
func MapPage(va uintptr, pa mem.Pa_t, attrs arch.Attr) defs.Err_t {
	kernel.mu.Lock()
	defer kernel.mu.Unlock()
	return mapAt(va, pa, attrs, leafLevel())
}

// mapAt installs a PTE of the block size native to level. Caller holds
// kernel.mu.
func mapAt(va uintptr, pa mem.Pa_t, attrs arch.Attr, level int) defs.Err_t {
	pt := arch.Current.PT
	table := walkCreate(va, level)
	if table == nil {
		return defs.ENOMEM
	}
	idx := pt.Index(level, va)
	if pt.IsValid(table[idx]) {
		return defs.ESTATE
	}
	table[idx] = pt.MakeBlock(uintptr(pa), attrs, level)
	arch.Current.MMU.Barrier()
	arch.Current.MMU.FlushTLBPage(va)
	return 0
}

// MapRange maps [va, va+size) to the physical range starting at pa,
// greedily choosing the largest block size at each step whose VA/PA
// alignment and remaining length permit it, falling back to smaller
// blocks for any unaligned prefix or suffix (§4.6 map_range).
func MapRange(va uintptr, pa mem.Pa_t, size uintptr, attrs arch.Attr) defs.Err_t {
	kernel.mu.Lock()
	defer kernel.mu.Unlock()

	blocks := arch.Current.PT.Blocks
	v, p, remaining := va, pa, size
	for remaining > 0 {
		placed := false
		for _, b := range blocks {
			if remaining < b.Size {
				continue
			}
			if v%b.Size != 0 || uintptr(p)%b.Size != 0 {
				continue
			}
			if err := mapAt(v, p, attrs, b.Level); err != 0 {
				return err
			}
			v += b.Size
			p += mem.Pa_t(b.Size)
			remaining -= b.Size
			placed = true
			break
		}
		if !placed {
			// smallest block size is always the native page and always
			// aligned, so this only happens if remaining < page size.
			return defs.EINVAL
		}
	}
	return 0
}

// UnmapPage clears the leaf PTE at va, if present, and flushes its TLB
// entry (§4.6 unmap_page).
func UnmapPage(va uintptr) {
	kernel.mu.Lock()
	defer kernel.mu.Unlock()
	pt := arch.Current.PT
	level := leafLevel()
	table, ok := walkLookup(va, level)
	if !ok {
		return
	}
	idx := pt.Index(level, va)
	table[idx] = 0
	arch.Current.MMU.Barrier()
	arch.Current.MMU.FlushTLBPage(va)
}

// UnmapRange clears every page-granularity PTE covering [va, va+size).
// Intermediate tables left empty are not reclaimed (§4.6: "MAY be
// reclaimed (optional)" — this core defers that to a later pass).
func UnmapRange(va uintptr, size uintptr) {
	page := uintptr(mem.PGSIZE)
	for v := va; v < va+size; v += page {
		UnmapPage(v)
	}
}

// VirtToPhys walks the table until a block or page PTE is hit and returns
// the frame base OR'd with the offset within the block, or 0 if va is
// unmapped (§4.6 virt_to_phys).
func VirtToPhys(va uintptr) mem.Pa_t {
	kernel.mu.Lock()
	defer kernel.mu.Unlock()
	pt := arch.Current.PT
	table := ptTable(kernel.root)
	for level := 0; level < pt.Levels; level++ {
		idx := pt.Index(level, va)
		pte := table[idx]
		if !pt.IsValid(pte) {
			return 0
		}
		if pt.IsBlock(pte, level) {
			blockSize := blockSizeForLevel(level)
			off := va & (blockSize - 1)
			return mem.Pa_t(pt.ToPhys(pte)) + mem.Pa_t(off)
		}
		table = ptTable(mem.Pa_t(pt.ToPhys(pte)))
	}
	return 0
}

func blockSizeForLevel(level int) uintptr {
	for _, b := range arch.Current.PT.Blocks {
		if b.Level == level {
			return b.Size
		}
	}
	panic("vm: unknown level")
}

// CreateDmap maps every RAM bank into the direct map at mem.DmapBase using
// the largest blocks available, then publishes the mapping to package mem
// so Dmap/Dmap_v2p become pure arithmetic (§4.6 create_dmap). Each bank is
// mapped over the whole pages it contains; a partial page at either end
// of a bank is not mapped.
func CreateDmap(info defs.MemoryInfo) defs.Err_t {
	if len(info.Banks) == 0 {
		return defs.EINVAL
	}
	physBase := mem.Pa_t(info.Banks[0].Base)
	physMax := physBase
	for _, bank := range info.Banks {
		base := mem.Pa_t(bank.Base)
		if base < physBase {
			physBase = base
		}
		if end := base + mem.Pa_t(bank.Size); end > physMax {
			physMax = end
		}
	}
	page := uintptr(mem.PGSIZE)
	for _, bank := range info.Banks {
		start := (bank.Base + page - 1) &^ (page - 1)
		end := (bank.Base + bank.Size) &^ (page - 1)
		if end <= start {
			continue
		}
		va := mem.DmapBase + (start - uintptr(physBase))
		if err := MapRange(va, mem.Pa_t(start), end-start, arch.RW); err != 0 {
			return err
		}
	}
	mem.Physmem.SetDmap(physBase, physMax)
	return 0
}
