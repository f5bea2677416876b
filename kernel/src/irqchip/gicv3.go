package irqchip

import (
	"defs"
)

// GICv3 distributor offsets (affinity-routing fields only; §4.16 GICv3).
const (
	gicv3dCTLR   = 0x000
	gicv3dTYPER  = 0x004
	gicv3dISENABLER = 0x100
	gicv3dICENABLER = 0x180
	gicv3dICFGR     = 0xC00

	gicdCTLRAREBit = 1 << 4 // ARE_S: affinity routing enabled
)

// GICv3 redistributor SGI-frame offsets, relative to RDBase + 0x10000.
const (
	gicrISENABLER0 = 0x100
	gicrICENABLER0 = 0x180
	gicrICFGR0     = 0xC00
)

// GICv3 redistributor control/wake offsets, relative to RDBase.
const (
	gicrCTLR   = 0x000
	gicrWAKER  = 0x014
	gicrWAKERChildrenAsleep = 1 << 2
	gicrWAKERProcessorSleep = 1 << 1
)

// GICv3 is a distributor + one redistributor, driven through the ICC
// system-register interface for ack/EOI/priority mask rather than MMIO
// (§4.16 GICv3).
type GICv3 struct {
	DistBase  uintptr
	RedisBase uintptr // this CPU's redistributor RD_base
	SGIBase   uintptr // RedisBase + 0x10000, this CPU's SGI_base
	NumIRQs   int

	// ICC accessors stand in for the system-register reads/writes a real
	// port performs with MRS/MSR to ICC_IAR1_EL1 / ICC_EOIR1_EL1 /
	// ICC_PMR_EL1 / ICC_IGRPEN1_EL1; arch-specific code supplies them so
	// this file stays architecture-neutral and testable.
	ICCReadIAR1    func() uint32
	ICCWriteEOIR1  func(uint32)
	ICCWritePMR    func(uint32)
	ICCWriteGRPEN1 func(uint32)
}

// waitRWP polls GICD_CTLR's RWP bit (bit 31) until clear, the "MMIO flagged
// with RWP wait after distributor writes" requirement (§4.16 GICv3).
func (g *GICv3) waitRWP() {
	for mmio().Load32(g.DistBase+gicv3dCTLR)&(1<<31) != 0 {
	}
}

// Probe records nr_irqs from GICD_TYPER the same way GICv2 does; dist and
// redist bases are supplied directly since this core has no generic
// "reg" walker for multi-entry redistributor regions yet.
func (g *GICv3) Probe(distBase, redisBase uintptr) {
	g.DistBase = distBase
	g.RedisBase = redisBase
	g.SGIBase = redisBase + 0x10000
	typer := mmio().Load32(distBase + gicv3dTYPER)
	g.NumIRQs = int((typer&0x1f)+1) * 32
}

// DistInit enables the distributor with affinity routing (ARE_S) and
// waits for the write to propagate (§4.16 GICv3 "ARE on", RWP wait).
func (g *GICv3) DistInit() {
	m := mmio()
	m.Store32(g.DistBase+gicv3dCTLR, 0)
	g.waitRWP()
	m.Store32(g.DistBase+gicv3dCTLR, gicdCTLRAREBit)
	g.waitRWP()
}

// RedisInit wakes this core's redistributor by clearing ProcessorSleep and
// waiting for ChildrenAsleep to clear, then masks the whole SGI/PPI range
// through GICR_ICENABLER0.
func (g *GICv3) RedisInit() {
	m := mmio()
	v := m.Load32(g.RedisBase + gicrWAKER)
	m.Store32(g.RedisBase+gicrWAKER, v&^gicrWAKERProcessorSleep)
	for m.Load32(g.RedisBase+gicrWAKER)&gicrWAKERChildrenAsleep != 0 {
	}
	m.Store32(g.SGIBase+gicrICENABLER0, 0xffffffff)
}

// CPUInit programs the ICC system-register interface: priority mask
// 0xFF, group-1 enabled (§4.16 GICv3 "IGRPEN1").
func (g *GICv3) CPUInit() {
	if g.ICCWritePMR != nil {
		g.ICCWritePMR(0xFF)
	}
	if g.ICCWriteGRPEN1 != nil {
		g.ICCWriteGRPEN1(1)
	}
}

// --- irq.Chip ---

func (g *GICv3) Name() string { return "gicv3" }

func (g *GICv3) Mask(hwirq uint32) {
	m := mmio()
	if hwirq < 32 {
		m.Store32(g.SGIBase+gicrICENABLER0, 1<<hwirq)
		return
	}
	m.Store32(g.DistBase+gicv3dICENABLER+uintptr(hwirq/32)*4, 1<<(hwirq%32))
}

func (g *GICv3) Unmask(hwirq uint32) {
	m := mmio()
	if hwirq < 32 {
		m.Store32(g.SGIBase+gicrISENABLER0, 1<<hwirq)
		return
	}
	m.Store32(g.DistBase+gicv3dISENABLER+uintptr(hwirq/32)*4, 1<<(hwirq%32))
}

// Ack is a no-op; acknowledgement happens at ICC_IAR1_EL1 via ReadIAR1,
// mirroring GICv2's CPU-interface-centric ack.
func (g *GICv3) Ack(hwirq uint32) {}

func (g *GICv3) EOI(hwirq uint32) {
	if g.ICCWriteEOIR1 != nil {
		g.ICCWriteEOIR1(hwirq)
	}
}

// ReadIAR1 returns the pending interrupt ID from ICC_IAR1_EL1.
func (g *GICv3) ReadIAR1() uint32 {
	if g.ICCReadIAR1 == nil {
		return gicSpuriousID
	}
	return g.ICCReadIAR1() & 0xffffff
}

func (g *GICv3) SetType(hwirq uint32, trigger defs.TriggerType) defs.Err_t {
	if hwirq < 16 {
		return 0
	}
	m := mmio()
	base := g.DistBase + gicv3dICFGR
	if hwirq < 32 {
		base = g.SGIBase + gicrICFGR0
	}
	off := base + uintptr(hwirq/16)*4
	shift := (hwirq % 16) * 2
	v := m.Load32(off)
	edge := trigger == defs.TriggerEdgeRising || trigger == defs.TriggerEdgeFalling || trigger == defs.TriggerEdgeBoth
	if edge {
		v |= 1 << (shift + 1)
	} else {
		v &^= 1 << (shift + 1)
	}
	m.Store32(off, v)
	return 0
}
