package irqchip

import "defs"

// RISC-V architectural cause codes for S-mode interrupts (§4.16 INTC).
const (
	CauseSSoft uint32 = 1
	CauseSTimer uint32 = 5
	CauseSExt   uint32 = 9
)

// INTC wraps the S-mode sip/sie CSRs: hwirq values are the architectural
// cause codes themselves, not a dense index (§4.16 "RISC-V INTC"). The CSR
// accessors are supplied by arch-specific code since they are single
// instructions (csrrs/csrrc), not MMIO.
type INTC struct {
	ReadSIE  func() uint64
	WriteSIE func(uint64)
	ReadSIP  func() uint64
}

// Unmask sets sie[hwirq].
func (c *INTC) Unmask(hwirq uint32) {
	if c.ReadSIE == nil || c.WriteSIE == nil {
		return
	}
	c.WriteSIE(c.ReadSIE() | (1 << hwirq))
}

// Mask clears sie[hwirq].
func (c *INTC) Mask(hwirq uint32) {
	if c.ReadSIE == nil || c.WriteSIE == nil {
		return
	}
	c.WriteSIE(c.ReadSIE() &^ (1 << hwirq))
}

// Pending reports whether sip[hwirq] is set, used by the trap handler to
// decide which cause to dispatch and, for CauseSExt, to cascade into the
// PLIC/APLIC claim loop (§4.16: "external cause (9) is cascaded").
func (c *INTC) Pending(hwirq uint32) bool {
	if c.ReadSIP == nil {
		return false
	}
	return c.ReadSIP()&(1<<hwirq) != 0
}

func (c *INTC) Name() string { return "riscv,cpu-intc" }

// Ack/EOI are no-ops: sip bits for timer/soft interrupts clear as a side
// effect of servicing them (writing stimecmp, sbi call), not through this
// chip; the external cause defers entirely to the cascaded PLIC/APLIC.
func (c *INTC) Ack(hwirq uint32) {}
func (c *INTC) EOI(hwirq uint32) {}

func (c *INTC) SetType(hwirq uint32, trigger defs.TriggerType) defs.Err_t {
	return 0 // cause codes have no configurable trigger mode
}
