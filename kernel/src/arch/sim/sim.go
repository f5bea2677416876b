// Package sim is a third arch.Ops backend, backed by a plain Go byte slice
// instead of real memory-mapped hardware. It exists purely so the rest of
// the core (PMM, VMM, buddy, IRQ domains, drivers) can be exercised by
// `go test` without real ARM64 or RISC-V silicon underneath, the same role
// gopher-os's allocator tests and the mock backends visible across the
// retrieval pack's kernel-adjacent examples play: a standing testing
// backend, not a scratch fake rebuilt per test.
package sim

import (
	"sync"
	"sync/atomic"

	"arch"
)

// MemSize is the size of the simulated physical address window. Tests
// treat addresses [0, MemSize) as "physical" and may freely overlay MMIO
// device windows anywhere inside it.
const MemSize = 64 << 20

// Mem is the simulated physical memory backing every Load/Store and every
// page-table walk performed against Ops during tests.
var Mem [MemSize]byte

var (
	irqMu      sync.Mutex
	irqDepth   int
	irqWasOn   bool
	wfeCount   int64
	haltCalled int32
)

func irqEnable() {
	irqMu.Lock()
	defer irqMu.Unlock()
	irqWasOn = true
}

func irqDisable() {
	irqMu.Lock()
	defer irqMu.Unlock()
	irqWasOn = false
}

func irqSave() uintptr {
	irqMu.Lock()
	defer irqMu.Unlock()
	var flags uintptr
	if irqWasOn {
		flags = 1
	}
	irqWasOn = false
	return flags
}

func irqRestore(flags uintptr) {
	irqMu.Lock()
	defer irqMu.Unlock()
	irqWasOn = flags != 0
}

func irqEnabled() bool {
	irqMu.Lock()
	defer irqMu.Unlock()
	return irqWasOn
}

func waitForEvent() { atomic.AddInt64(&wfeCount, 1) }

// WFECount reports how many times WaitForEvent/WaitForIRQ ran. The simulated
// Halt does not call either of them: it disables IRQs and returns.
func WFECount() int64 { return atomic.LoadInt64(&wfeCount) }

func halt() {
	atomic.StoreInt32(&haltCalled, 1)
	irqDisable()
}

func currentLevel() int { return 1 }

func cacheLineSize() uint { return 64 }
func noopRange(va uintptr, size uintptr) {}
func noopICache()                        {}

var ptBase uintptr

func getPTBase() uintptr    { return ptBase }
func setPTBase(a uintptr)   { ptBase = a }
func flushTLBPage(uintptr)  {}
func flushTLBAll()          {}
func barrier()               {}

func checkRange(addr uintptr, size int) {
	if addr+uintptr(size) > MemSize {
		panic("sim: mmio access out of bounds")
	}
}

func Load8(addr uintptr) uint8   { checkRange(addr, 1); return Mem[addr] }
func Load16(addr uintptr) uint16 {
	checkRange(addr, 2)
	return uint16(Mem[addr]) | uint16(Mem[addr+1])<<8
}
func Load32(addr uintptr) uint32 {
	checkRange(addr, 4)
	var v uint32
	for i := 0; i < 4; i++ {
		v |= uint32(Mem[addr+uintptr(i)]) << (8 * i)
	}
	return v
}
func Load64(addr uintptr) uint64 {
	checkRange(addr, 8)
	var v uint64
	for i := 0; i < 8; i++ {
		v |= uint64(Mem[addr+uintptr(i)]) << (8 * i)
	}
	return v
}

func Store8(addr uintptr, v uint8) { checkRange(addr, 1); Mem[addr] = v }
func Store16(addr uintptr, v uint16) {
	checkRange(addr, 2)
	Mem[addr] = uint8(v)
	Mem[addr+1] = uint8(v >> 8)
}
func Store32(addr uintptr, v uint32) {
	checkRange(addr, 4)
	for i := 0; i < 4; i++ {
		Mem[addr+uintptr(i)] = uint8(v >> (8 * i))
	}
}
func Store64(addr uintptr, v uint64) {
	checkRange(addr, 8)
	for i := 0; i < 8; i++ {
		Mem[addr+uintptr(i)] = uint8(v >> (8 * i))
	}
}

// Page-table encoding: 3 levels like Sv39 (1 GiB / 2 MiB / 4 KiB), attrs
// stored verbatim in bits [15:8], above the valid/table bits, so tests can
// read a PTE back and assert on its arch.Attr value directly.
const (
	ptValid = 1 << 0
	ptTable = 1 << 1
	attrShift = 8
	attrMask  = 0xff << attrShift
	physMask  = 0x0000FFFFFFFFF000
)

var blockSizes = []arch.BlockSize{
	{Level: 0, Size: 1 << 30},
	{Level: 1, Size: 2 << 20},
	{Level: 2, Size: 4 << 10},
}

func ptIndex(level int, va uintptr) int {
	shift := uint(30 - 9*level)
	return int((va >> shift) & 0x1ff)
}

func isValid(pte arch.PTE) bool { return pte&ptValid != 0 }
func isTable(pte arch.PTE) bool { return pte&ptValid != 0 && pte&ptTable != 0 }
func isBlock(pte arch.PTE, level int) bool {
	return pte&ptValid != 0 && pte&ptTable == 0
}
func toPhys(pte arch.PTE) uintptr { return uintptr(pte) & physMask }

func makeTable(phys uintptr) arch.PTE {
	return arch.PTE(phys&physMask) | ptValid | ptTable
}
func makeBlock(phys uintptr, attrs arch.Attr, level int) arch.PTE {
	return arch.PTE(phys&physMask) | ptValid | (arch.PTE(attrs)<<attrShift)&attrMask
}
func attrsToPTE(attrs arch.Attr) arch.PTE {
	return ptValid | (arch.PTE(attrs)<<attrShift)&attrMask
}
func pteToAttrs(pte arch.PTE) arch.Attr {
	return arch.Attr((pte & attrMask) >> attrShift)
}

// Ops is the simulated backend, installed by tests in place of a real
// arch.Ops value (§8 Testable Properties).
var Ops = &arch.Ops{
	Name: "sim",
	CPU: arch.CPUOps{
		IRQEnable:    irqEnable,
		IRQDisable:   irqDisable,
		IRQSave:      irqSave,
		IRQRestore:   irqRestore,
		IRQEnabled:   irqEnabled,
		WaitForEvent: waitForEvent,
		WaitForIRQ:   waitForEvent,
		Halt:         halt,
		CurrentLevel: currentLevel,
	},
	Cache: arch.CacheOps{
		LineSize:            cacheLineSize,
		CleanRange:          noopRange,
		InvalidateRange:     noopRange,
		CleanInvalRange:     noopRange,
		InvalidateICacheAll: noopICache,
	},
	MMU: arch.MMUOps{
		FlushTLBPage: flushTLBPage,
		FlushTLBAll:  flushTLBAll,
		GetPTBase:    getPTBase,
		SetPTBase:    setPTBase,
		Barrier:      barrier,
	},
	MMIO: arch.MMIOOps{
		Load8: Load8, Load16: Load16, Load32: Load32, Load64: Load64,
		Store8: Store8, Store16: Store16, Store32: Store32, Store64: Store64,
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

// Reset clears the simulated memory and CPU state between tests.
func Reset() {
	for i := range Mem {
		Mem[i] = 0
	}
	ptBase = 0
	irqWasOn = false
	atomic.StoreInt64(&wfeCount, 0)
	atomic.StoreInt32(&haltCalled, 0)
}
