package mem

import "unsafe"

// DmapBase is the virtual address the direct map begins at. Chosen the
// same for arm64 and riscv64: both have ample VA space above the kernel
// image and any device/MMIO window devmap hands out (§4.6 create_dmap).
const DmapBase uintptr = 0xffff_ff80_0000_0000

// SetDmap records that vm.CreateDmap has finished mapping every RAM bank
// at DmapBase and that Dmap/Dmap_v2p/Dmap8 may now be used. physBase is
// the lowest bank's base address; physMax is the highest bank's exclusive
// end. Addresses outside [physBase, physMax) have no direct mapping.
func (phys *Physmem_t) SetDmap(physBase, physMax Pa_t) {
	phys.mu.Lock()
	defer phys.mu.Unlock()
	phys.dmapBase = DmapBase
	phys.dmapPhys = physBase
	phys.dmapMax = physMax
	phys.dmapOn = true
}

/// Dmap_ready reports whether SetDmap has run.
func (phys *Physmem_t) Dmap_ready() bool {
	phys.mu.Lock()
	defer phys.mu.Unlock()
	return phys.dmapOn
}

/// Dmap converts a physical address into its direct-mapped virtual
/// address. Panics if the DMAP isn't live yet or pa falls outside the
/// mapped range.
func (phys *Physmem_t) Dmap(pa Pa_t) uintptr {
	if !phys.dmapOn {
		panic("mem: dmap not initialized")
	}
	if pa < phys.dmapPhys || pa >= phys.dmapMax {
		panic("mem: address outside dmap range")
	}
	return phys.dmapBase + uintptr(pa-phys.dmapPhys)
}

/// Dmap_v2p converts a direct-mapped virtual address back to a physical
/// address. Once create_dmap runs, phys -> dmap is a pure arithmetic
/// round trip (§4.6).
func (phys *Physmem_t) Dmap_v2p(va uintptr) Pa_t {
	if !phys.dmapOn {
		panic("mem: dmap not initialized")
	}
	if va < phys.dmapBase {
		panic("mem: address isn't in the dmap")
	}
	return phys.dmapPhys + Pa_t(va-phys.dmapBase)
}

/// Dmap8 returns a byte slice through the DMAP that starts at pa and runs
/// to the end of its page (length PGSIZE minus pa's offset in the page).
func (phys *Physmem_t) Dmap8(pa Pa_t) []uint8 {
	va := phys.Dmap(pa & PGMASK)
	off := pa & PGOFFSET
	full := unsafe.Slice((*uint8)(unsafe.Pointer(va)), PGSIZE)
	return full[off:]
}

// PhysToKVA returns a kernel-addressable VA for pa: the DMAP translation
// once create_dmap has run, or pa itself beforehand. Early boot frames
// (the PMM bitmaps, the first page tables) are carved from RAM the boot
// stub already identity-maps, same assumption the bootstrap allocator
// makes; VMM table-walk code relies on this to bootstrap the very
// mappings that create_dmap itself needs to install.
func (phys *Physmem_t) PhysToKVA(pa Pa_t) uintptr {
	phys.mu.Lock()
	on := phys.dmapOn
	base, physBase := phys.dmapBase, phys.dmapPhys
	phys.mu.Unlock()
	if !on {
		return uintptr(pa)
	}
	return base + uintptr(pa-physBase)
}

// KVAToPhys is PhysToKVA's inverse: it converts a kernel-addressable VA
// produced by PhysToKVA back to a physical address, working the same
// dual pre-DMAP/post-DMAP way.
func (phys *Physmem_t) KVAToPhys(va uintptr) Pa_t {
	phys.mu.Lock()
	on := phys.dmapOn
	base, physBase := phys.dmapBase, phys.dmapPhys
	phys.mu.Unlock()
	if !on {
		return Pa_t(va)
	}
	return physBase + Pa_t(va-base)
}
