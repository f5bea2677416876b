// Package arm64 implements arch.Ops for ARMv8-A (§6 ARM64 PTE encoding).
// CPU/cache/MMU primitives Go cannot express directly (WFE, WFI, barriers,
// TLB invalidation, reading/writing system registers) are declared here
// without bodies and implemented in arm64_asm.s, the same split the
// retrieval pack's tamago MMU code uses for set_ttbr0/flush_tlb. MMIO
// access needs no privileged instruction, so it is plain Go below instead
// of adding eight more trivial TEXT symbols to the assembly file.
package arm64

import (
	"arch"
	"unsafe"
)

// PTE bit layout, AArch64 VMSAv8-64 descriptor format (block/page entries).
const (
	ptValid    = 1 << 0
	ptTable    = 1 << 1 // at non-leaf levels: 1 = table, 0 = block
	ptAttrIdxShift = 2
	ptAttrIdxMask  = 0x7 << ptAttrIdxShift
	ptAP1         = 1 << 6 // AP[1]: 1 = read-only
	ptAP2         = 1 << 7 // AP[2]: 1 = EL0 accessible
	ptSHShift     = 8
	ptSHInner     = 3 << ptSHShift
	ptAF          = 1 << 10
	ptNG          = 1 << 11
	oaMask        = 0x0000FFFFFFFFF000 // bits[47:12]
	ptPXN         = 1 << 53
	ptUXN         = 1 << 54
)

// MAIR indices matching the attribute layout mairValue returns. Nothing in
// this package writes MAIR_EL1.
const (
	mairNormal = 0
	mairDevice = 1
)

func mairValue() uint64 {
	// attr0 = Normal, Inner/Outer Write-Back, Read/Write-Allocate (0xff)
	// attr1 = Device-nGnRnE (0x00)
	return 0x00000000000000ff
}

// blockSizes for a 4 levels, 4 KiB granule, 48-bit OA configuration:
// L0 covers 512 GiB, L1 1 GiB, L2 2 MiB, L3 4 KiB (leaf-only).
var blockSizes = []arch.BlockSize{
	{Level: 0, Size: 512 << 30},
	{Level: 1, Size: 1 << 30},
	{Level: 2, Size: 2 << 20},
	{Level: 3, Size: 4 << 10},
}

func ptIndex(level int, va uintptr) int {
	shift := uint(39 - 9*level)
	return int((va >> shift) & 0x1ff)
}

func isValid(pte arch.PTE) bool { return pte&ptValid != 0 }

func isTable(pte arch.PTE) bool { return pte&ptValid != 0 && pte&ptTable != 0 }

func isBlock(pte arch.PTE, level int) bool {
	if level == 3 {
		return pte&ptValid != 0 // L3 descriptors are always page (leaf) entries
	}
	return pte&ptValid != 0 && pte&ptTable == 0
}

func toPhys(pte arch.PTE) uintptr {
	return uintptr(pte) & oaMask
}

func makeTable(phys uintptr) arch.PTE {
	return arch.PTE(phys&oaMask) | ptValid | ptTable
}

func makeBlock(phys uintptr, attrs arch.Attr, level int) arch.PTE {
	pte := arch.PTE(phys&oaMask) | ptValid | ptAF | ptSHInner
	if level == 3 {
		pte |= ptTable // L3 page descriptors also carry bit1 = 1
	}
	pte |= attrsToPTE(attrs) &^ ptValid // merge AP/UXN/PXN/MAIR bits, valid already set
	return pte
}

func attrsToPTE(attrs arch.Attr) arch.PTE {
	var pte arch.PTE = ptValid
	if attrs&arch.Write == 0 {
		pte |= ptAP1
	}
	if attrs&arch.User != 0 {
		pte |= ptAP2
	} else {
		pte |= ptPXN // kernel-only mappings are never executable from EL0
	}
	if attrs&arch.Execute == 0 {
		pte |= ptUXN | ptPXN
	}
	if attrs&arch.Device != 0 || attrs&arch.NoCache != 0 {
		pte |= arch.PTE(mairDevice) << ptAttrIdxShift
	} else {
		pte |= arch.PTE(mairNormal) << ptAttrIdxShift
	}
	return pte
}

func pteToAttrs(pte arch.PTE) arch.Attr {
	attrs := arch.Read
	if pte&ptAP1 == 0 {
		attrs |= arch.Write
	}
	if pte&ptUXN == 0 {
		attrs |= arch.Execute
	}
	if pte&ptAP2 != 0 {
		attrs |= arch.User
	}
	if (pte&ptAttrIdxMask)>>ptAttrIdxShift == mairDevice {
		attrs |= arch.Device
	}
	return attrs
}

// Functions with no body below are implemented in arm64_asm.s.

func irqEnable()
func irqDisable()
func irqSave() uintptr
func irqRestore(flags uintptr)
func irqEnabled() bool
func waitForEvent()
func waitForIRQ()
func currentEL() int

func dcacheLineSize() uint
func dcacheCleanRange(va uintptr, size uintptr)
func dcacheInvalidateRange(va uintptr, size uintptr)
func dcacheCleanInvalRange(va uintptr, size uintptr)
func icacheInvalidateAll()

func tlbFlushPage(va uintptr)
func tlbFlushAll()
func getTTBR0() uintptr
func setTTBR0(addr uintptr)
func dsbISB()

// MMIO access is an ordinary load/store to an uncached address; the PTE's
// Device/nGnRnE memory attribute (see attrsToPTE) is what makes it behave
// like one, not the instruction used to reach it, so these need no
// assembly backing.

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
		waitForEvent()
	}
}

// Ops is the fully populated arch.Ops value for ARMv8-A, installed by
// arch.Init at boot (§6 init_arm64).
var Ops = &arch.Ops{
	Name: "arm64",
	CPU: arch.CPUOps{
		IRQEnable:    irqEnable,
		IRQDisable:   irqDisable,
		IRQSave:      irqSave,
		IRQRestore:   irqRestore,
		IRQEnabled:   irqEnabled,
		WaitForEvent: waitForEvent,
		WaitForIRQ:   waitForIRQ,
		Halt:         halt,
		CurrentLevel: currentEL,
	},
	Cache: arch.CacheOps{
		LineSize:            dcacheLineSize,
		CleanRange:          dcacheCleanRange,
		InvalidateRange:     dcacheInvalidateRange,
		CleanInvalRange:     dcacheCleanInvalRange,
		InvalidateICacheAll: icacheInvalidateAll,
	},
	MMU: arch.MMUOps{
		FlushTLBPage: tlbFlushPage,
		FlushTLBAll:  tlbFlushAll,
		GetPTBase:    getTTBR0,
		SetPTBase:    setTTBR0,
		Barrier:      dsbISB,
	},
	MMIO: arch.MMIOOps{
		Load8: mmioLoad8, Load16: mmioLoad16, Load32: mmioLoad32, Load64: mmioLoad64,
		Store8: mmioStore8, Store16: mmioStore16, Store32: mmioStore32, Store64: mmioStore64,
	},
	PT: arch.PTOps{
		Levels:     4,
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
