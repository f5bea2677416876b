package vm

import (
	"unsafe"

	"arch"
)

// ptEntries is the number of PTEs per table on every arch this core
// targets: each level consumes 9 VA bits (§6 PTE index derivation).
const ptEntries = 512

func ptSliceAt(va uintptr) []arch.PTE {
	return unsafe.Slice((*arch.PTE)(unsafe.Pointer(va)), ptEntries)
}
