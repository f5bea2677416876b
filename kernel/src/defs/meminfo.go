package defs

// MemBank describes one contiguous RAM range reported by the device tree's
// "memory" nodes (§4.3 get_memory_info).
type MemBank struct {
	Base uintptr
	Size uintptr
}

// MemoryInfo is the RAM layout handed from the FDT manager to the PMM and
// VMM init paths (§4.5 PMM init, §4.6 create_dmap).
type MemoryInfo struct {
	Banks []MemBank
}

// End returns the exclusive end address of bank.
func (b MemBank) End() uintptr { return b.Base + b.Size }

// Contains reports whether pa falls within bank.
func (b MemBank) Contains(pa uintptr) bool {
	return pa >= b.Base && pa < b.End()
}
