// Package irqchip holds the interrupt-controller chip implementations
// (§4.16): GICv2, GICv3, RISC-V INTC, PLIC, and APLIC direct mode. Every
// chip implements package irq's Chip interface. Memory-mapped registers are
// reached through the arch.Current.MMIO load/store vtable; the RISC-V INTC
// and the GICv3 CPU-interface (ICC) system registers are reached through
// accessor functions set on the chip instead.
package irqchip

import (
	"arch"
	"defs"
)

// GICv2 distributor register offsets from the distributor base (§4.16).
const (
	gicdCTLR        = 0x000
	gicdTYPER       = 0x004
	gicdISENABLER   = 0x100
	gicdICENABLER   = 0x180
	gicdICPENDR     = 0x280
	gicdIPRIORITYR  = 0x400
	gicdITARGETSR   = 0x800
	gicdICFGR       = 0xC00
	gicdSGIR        = 0xF00
)

// GICv2 CPU-interface register offsets from the CPU-interface base.
const (
	giccCTLR = 0x000
	giccPMR  = 0x004
	giccBPR  = 0x008
	giccIAR  = 0x00C
	giccEOIR = 0x010
)

const gicSpuriousID = 1023

// GICv2 is a GICv2 distributor + CPU interface pair (§4.16 GICv2).
type GICv2 struct {
	DistBase uintptr
	CPUBase  uintptr
	NumIRQs  int
}

func mmio() arch.MMIOOps { return arch.Current.MMIO }

// Probe records nr_irqs from GICD_TYPER (§4.16: "probe(dev) reads the two
// reg entries ... records nr_irqs = ((GICD_TYPER & 0x1F) + 1) * 32").
func (g *GICv2) Probe(distBase, cpuBase uintptr) {
	g.DistBase = distBase
	g.CPUBase = cpuBase
	typer := mmio().Load32(distBase + gicdTYPER)
	g.NumIRQs = int((typer&0x1f)+1) * 32
}

// DistInit disables the distributor, clears all enable/pending bits, sets
// default priority 0xA0 and SPI targets to CPU0, and leaves SPIs
// level-triggered (§4.16 dist_init).
func (g *GICv2) DistInit() {
	m := mmio()
	m.Store32(g.DistBase+gicdCTLR, 0)
	words := (g.NumIRQs + 31) / 32
	for i := 0; i < words; i++ {
		m.Store32(g.DistBase+gicdICENABLER+uintptr(i)*4, 0xffffffff)
		m.Store32(g.DistBase+gicdICPENDR+uintptr(i)*4, 0xffffffff)
	}
	for i := 32; i < g.NumIRQs; i++ {
		m.Store8(g.DistBase+gicdIPRIORITYR+uintptr(i), 0xA0)
		m.Store8(g.DistBase+gicdITARGETSR+uintptr(i), 0x01)
	}
	m.Store32(g.DistBase+gicdCTLR, 1)
}

// CPUInit sets the priority mask to 0xFF, binary point to 0, drains any
// pending IARs with an EOI, and enables group 0 (§4.16 cpu_init).
func (g *GICv2) CPUInit() {
	m := mmio()
	m.Store32(g.CPUBase+giccPMR, 0xFF)
	m.Store32(g.CPUBase+giccBPR, 0)
	for {
		id := m.Load32(g.CPUBase + giccIAR)
		if (id & 0x3ff) == gicSpuriousID {
			break
		}
		m.Store32(g.CPUBase+giccEOIR, id)
	}
	m.Store32(g.CPUBase+giccCTLR, 1)
}

// ReadIAR reads GICC_IAR, the step that both identifies the pending IRQ
// and acknowledges it at the CPU interface (§4.16: "ack via GICC_IAR").
// It is the natural ackFn for trap.HandleARM64IRQ, which receives its ack
// step as a parameter; Ack() below is a no-op to satisfy irq.Chip, since
// GICv2 has no separate per-hwirq ack register.
func (g *GICv2) ReadIAR() uint32 {
	return mmio().Load32(g.CPUBase+giccIAR) & 0x3ff
}

// --- irq.Chip ---

func (g *GICv2) Name() string { return "gicv2" }

func (g *GICv2) Mask(hwirq uint32) {
	mmio().Store32(g.DistBase+gicdICENABLER+uintptr(hwirq/32)*4, 1<<(hwirq%32))
}

func (g *GICv2) Unmask(hwirq uint32) {
	mmio().Store32(g.DistBase+gicdISENABLER+uintptr(hwirq/32)*4, 1<<(hwirq%32))
}

// Ack is a no-op: GICv2 acknowledges at the CPU interface via ReadIAR,
// not per-hwirq at the distributor.
func (g *GICv2) Ack(hwirq uint32) {}

func (g *GICv2) EOI(hwirq uint32) {
	mmio().Store32(g.CPUBase+giccEOIR, hwirq)
}

// SetType programs GICD_ICFGR's 2-bit-per-IRQ config field: bit 1 set for
// edge-triggered, clear for level (§4.16).
func (g *GICv2) SetType(hwirq uint32, trigger defs.TriggerType) defs.Err_t {
	if hwirq < 16 {
		return 0 // SGIs have no configurable trigger
	}
	m := mmio()
	off := g.DistBase + gicdICFGR + uintptr(hwirq/16)*4
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

// SGI sends a software-generated interrupt to the given CPU target list
// via GICD_SGIR (§4.16: "SGI via GICD_SGIR").
func (g *GICv2) SGI(sgiID uint32, cpuTargetList uint32) {
	mmio().Store32(g.DistBase+gicdSGIR, (cpuTargetList<<16)|(sgiID&0xf))
}
