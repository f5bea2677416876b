// Package riscv64 implements arch.Ops for RISC-V Sv39 (§6 RISC-V Sv39 PTE
// encoding). As in arm64, the primitives Go cannot express (WFI, fences,
// CSR access, sfence.vma) are declared without bodies and implemented in
// riscv64_asm.s. MMIO access, and the two queries answerable without a
// privileged instruction, are plain Go below instead.
package riscv64

import (
	"arch"
	"unsafe"
)

// Sv39 PTE bit layout.
const (
	ptV = 1 << 0
	ptR = 1 << 1
	ptW = 1 << 2
	ptX = 1 << 3
	ptU = 1 << 4
	ptG = 1 << 5
	ptA = 1 << 6
	ptD = 1 << 7
	ppnShift = 10
	ppnMask  = 0x3FFFFFFFFFF << ppnShift // bits[53:10]
)

// Sv39: 3 levels, 4 KiB granule. L0 covers 1 GiB, L1 2 MiB, L2 4 KiB (leaf).
var blockSizes = []arch.BlockSize{
	{Level: 0, Size: 1 << 30},
	{Level: 1, Size: 2 << 20},
	{Level: 2, Size: 4 << 10},
}

func ptIndex(level int, va uintptr) int {
	shift := uint(30 - 9*level)
	return int((va >> shift) & 0x1ff)
}

// isRWX reports whether pte carries any of the leaf R/W/X bits; a PTE with
// all three clear is a pointer to the next table (§6: "R=W=X=0 => pointer
// to next-level table").
func isRWX(pte arch.PTE) bool {
	return pte&(ptR|ptW|ptX) != 0
}

func isValid(pte arch.PTE) bool { return pte&ptV != 0 }

func isTable(pte arch.PTE) bool { return pte&ptV != 0 && !isRWX(pte) }

func isBlock(pte arch.PTE, level int) bool {
	return pte&ptV != 0 && isRWX(pte)
}

func toPhys(pte arch.PTE) uintptr {
	ppn := (uintptr(pte) & ppnMask) >> ppnShift
	return ppn << 12
}

func makeTable(phys uintptr) arch.PTE {
	ppn := arch.PTE(phys>>12) << ppnShift
	return ppn | ptV
}

func makeBlock(phys uintptr, attrs arch.Attr, level int) arch.PTE {
	ppn := arch.PTE(phys>>12) << ppnShift
	return ppn | attrsToPTE(attrs)
}

func attrsToPTE(attrs arch.Attr) arch.PTE {
	var pte arch.PTE = ptV | ptA | ptD
	if attrs&arch.Read != 0 {
		pte |= ptR
	}
	if attrs&arch.Write != 0 {
		pte |= ptW
	}
	if attrs&arch.Execute != 0 {
		pte |= ptX
	}
	if attrs&arch.User != 0 {
		pte |= ptU
	}
	return pte
}

func pteToAttrs(pte arch.PTE) arch.Attr {
	var attrs arch.Attr
	if pte&ptR != 0 {
		attrs |= arch.Read
	}
	if pte&ptW != 0 {
		attrs |= arch.Write
	}
	if pte&ptX != 0 {
		attrs |= arch.Execute
	}
	if pte&ptU != 0 {
		attrs |= arch.User
	}
	return attrs
}

// Functions with no body below are implemented in riscv64_asm.s.

func irqEnable()
func irqDisable()
func irqSave() uintptr
func irqRestore(flags uintptr)
func irqEnabled() bool
func waitForInterrupt()

func fenceI()

func sfenceVMA(va uintptr)
func sfenceVMAAll()
func getSATP() uintptr
func setSATP(addr uintptr)
func fenceRW()

// currentMode always reports supervisor: the entry contract (§6) only ever
// drops kernel_main into S-mode, and S-mode software has no portable CSR
// read exposing its own privilege level.
func currentMode() int { return 1 }

// cacheLineSize has no base-ISA CSR; the base RISC-V privileged spec
// leaves it to a platform-specific mechanism (often a device-tree
// property) this module doesn't parse, so 64 bytes — the figure used by
// every Sv39 board this core currently targets — is the fallback.
func cacheLineSize() uint { return 64 }

// MMIO access is an ordinary load/store; PMA/PMP configuration (outside
// this module, set up before kernel_main runs) is what makes the region
// behave as device memory, not the instruction used to reach it.

func mmioLoad8(addr uintptr) uint8   { return *(*uint8)(unsafe.Pointer(addr)) }
func mmioLoad16(addr uintptr) uint16 { return *(*uint16)(unsafe.Pointer(addr)) }
func mmioLoad32(addr uintptr) uint32 { return *(*uint32)(unsafe.Pointer(addr)) }
func mmioLoad64(addr uintptr) uint64 { return *(*uint64)(unsafe.Pointer(addr)) }

func mmioStore8(addr uintptr, v uint8)   { *(*uint8)(unsafe.Pointer(addr)) = v }
func mmioStore16(addr uintptr, v uint16) { *(*uint16)(unsafe.Pointer(addr)) = v }
func mmioStore32(addr uintptr, v uint32) { *(*uint32)(unsafe.Pointer(addr)) = v }
func mmioStore64(addr uintptr, v uint64) { *(*uint64)(unsafe.Pointer(addr)) = v }

func halt() {
	irqDisable()
	for {
		waitForInterrupt()
	}
}

// noop satisfies CacheOps.InvalidateRange/CleanRange: RISC-V platforms this
// core targets are assumed cache-coherent for DMA (§9 Open Questions
// resolution — "RISC-V caches assumed coherent, fence-only"), so range
// maintenance degrades to the ordering fence.
func noopRange(va uintptr, size uintptr) { fenceRW() }

func noopICache() { fenceI() }

// Ops is the fully populated arch.Ops value for RISC-V Sv39, installed by
// arch.Init at boot (§6 init_riscv).
var Ops = &arch.Ops{
	Name: "riscv64",
	CPU: arch.CPUOps{
		IRQEnable:    irqEnable,
		IRQDisable:   irqDisable,
		IRQSave:      irqSave,
		IRQRestore:   irqRestore,
		IRQEnabled:   irqEnabled,
		WaitForEvent: waitForInterrupt,
		WaitForIRQ:   waitForInterrupt,
		Halt:         halt,
		CurrentLevel: currentMode,
	},
	Cache: arch.CacheOps{
		LineSize:            cacheLineSize,
		CleanRange:          noopRange,
		InvalidateRange:     noopRange,
		CleanInvalRange:     noopRange,
		InvalidateICacheAll: noopICache,
	},
	MMU: arch.MMUOps{
		FlushTLBPage: sfenceVMA,
		FlushTLBAll:  sfenceVMAAll,
		GetPTBase:    getSATP,
		SetPTBase:    setSATP,
		Barrier:      fenceRW,
	},
	MMIO: arch.MMIOOps{
		Load8: mmioLoad8, Load16: mmioLoad16, Load32: mmioLoad32, Load64: mmioLoad64,
		Store8: mmioStore8, Store16: mmioStore16, Store32: mmioStore32, Store64: mmioStore64,
	},
	PT: arch.PTOps{
		Levels:     3,
		Blocks:     blockSizes,
		Index:      ptIndex,
		IsValid:    isValid,
		IsTable:    isTable,
		IsBlock:    isBlock,
		ToPhys:     toPhys,
		MakeTable:  makeTable,
		MakeBlock:  makeBlock,
		AttrsToPTE: attrsToPTE,
		PTEToAttrs: pteToAttrs,
	},
}
