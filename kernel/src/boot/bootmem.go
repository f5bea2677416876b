package boot

import (
	"bootmem"
	"defs"
)

// bootmemAllocator picks the bump-allocator window mem.Physmem.Init uses to
// carve its per-bank bitmaps: the space in the bank holding KernelEndPhys,
// from the kernel's end to that bank's end. Every target this core boots
// on has the kernel image loaded near the bottom of the first bank, so
// that tail is always big enough for a handful of bitmap words per bank.
type bootmemAllocator struct {
	allocator *bootmem.Allocator
}

func (b *bootmemAllocator) init(info defs.MemoryInfo) {
	b.allocator = &bootmem.Allocator{}
	start := KernelEndPhys
	end := start
	for _, bank := range info.Banks {
		if bank.Contains(start) {
			end = bank.End()
			break
		}
	}
	if end <= start {
		// KernelEndPhys fell outside every bank (e.g. zero in a test
		// harness); fall back to the first bank in full.
		start = info.Banks[0].Base
		end = info.Banks[0].End()
	}
	b.allocator.Init(start, end)
}
