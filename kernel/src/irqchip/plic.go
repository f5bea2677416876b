package irqchip

import "defs"

// PLIC MMIO layout offsets (§4.16 "RISC-V PLIC"): per-source priority
// register, per-context enable bitmap, per-context threshold and
// claim/complete register.
const (
	plicPriorityBase = 0x000000 // 4 bytes per source, source 0 unused
	plicEnableBase   = 0x002000 // 0x80 bytes per context
	plicEnableStride = 0x80
	plicContextBase  = 0x200000 // 0x1000 bytes per context
	plicContextStride = 0x1000
	plicThresholdOff = 0x0000
	plicClaimOff     = 0x0004
)

// PLIC is a RISC-V platform-level interrupt controller bound to a single
// hart context (§4.16). Multi-context (per-hart S/M mode) routing is the
// caller's responsibility: one PLIC value per context index.
type PLIC struct {
	Base    uintptr
	Context uint32 // hart context index into the enable/threshold/claim arrays
}

func (p *PLIC) priorityAddr(hwirq uint32) uintptr {
	return p.Base + plicPriorityBase + uintptr(hwirq)*4
}

func (p *PLIC) enableAddr(hwirq uint32) (uintptr, uint32) {
	base := p.Base + plicEnableBase + uintptr(p.Context)*plicEnableStride
	return base + uintptr(hwirq/32)*4, hwirq % 32
}

func (p *PLIC) contextBase() uintptr {
	return p.Base + plicContextBase + uintptr(p.Context)*plicContextStride
}

// SetPriority programs a source's priority register; priority 0 disables
// the source regardless of its enable bit.
func (p *PLIC) SetPriority(hwirq uint32, priority uint32) {
	mmio().Store32(p.priorityAddr(hwirq), priority)
}

// SetThreshold programs this context's threshold: sources at or below it
// never claim.
func (p *PLIC) SetThreshold(threshold uint32) {
	mmio().Store32(p.contextBase()+plicThresholdOff, threshold)
}

// Claim reads the claim register, returning the hwirq of the
// highest-priority pending source for this context and clearing its
// pending bit, or 0 if nothing is pending (§4.16 "Claim returns the hwirq
// ... and clears its pending bit").
func (p *PLIC) Claim() uint32 {
	return mmio().Load32(p.contextBase() + plicClaimOff)
}

// Complete signals handling done by writing the claimed id back to the
// claim register (§4.16 "complete (write the same id to the claim
// register)").
func (p *PLIC) Complete(hwirq uint32) {
	mmio().Store32(p.contextBase()+plicClaimOff, hwirq)
}

func (p *PLIC) Name() string { return "riscv,plic0" }

func (p *PLIC) Mask(hwirq uint32) {
	m := mmio()
	addr, bit := p.enableAddr(hwirq)
	v := m.Load32(addr)
	m.Store32(addr, v&^(1<<bit))
}

func (p *PLIC) Unmask(hwirq uint32) {
	m := mmio()
	addr, bit := p.enableAddr(hwirq)
	v := m.Load32(addr)
	m.Store32(addr, v|(1<<bit))
	p.SetPriority(hwirq, 1)
}

// Ack is a no-op: Claim() itself both identifies and acknowledges the
// source.
func (p *PLIC) Ack(hwirq uint32) {}

// EOI writes Complete, the PLIC's end-of-interrupt step.
func (p *PLIC) EOI(hwirq uint32) { p.Complete(hwirq) }

func (p *PLIC) SetType(hwirq uint32, trigger defs.TriggerType) defs.Err_t {
	return 0 // the PLIC has no per-source trigger-mode register
}
