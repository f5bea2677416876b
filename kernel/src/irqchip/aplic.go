package irqchip

import "defs"

// APLIC direct-mode MMIO layout offsets (§4.16 "RISC-V APLIC direct
// mode"): per-source sourcecfg/target, setie/clrie bitmaps, and one
// interrupt-delivery-context (IDC) block per hart.
const (
	aplicSourcecfgBase = 0x0004 // 4 bytes per source, source 0 unused
	aplicSetIEBase     = 0x1E00
	aplicClrIEBase     = 0x1F00
	aplicTargetBase    = 0x3004 // 4 bytes per source, source 0 unused

	aplicIDCBase   = 0x4000
	aplicIDCStride = 32
	aplicIDelivery = 0x00
	aplicIThreshold = 0x08
	aplicTopI      = 0x18
	aplicClaimI    = 0x1C
)

// Sourcecfg mode values (§4.16): inactive, edge-rise, edge-fall,
// level-high, level-low, detach.
const (
	APLICSourceInactive uint32 = 0
	APLICSourceEdgeRise uint32 = 4
	APLICSourceEdgeFall uint32 = 5
	APLICSourceLevelHigh uint32 = 6
	APLICSourceLevelLow  uint32 = 7
	APLICSourceDetached  uint32 = 1
)

// APLIC is an advanced PLIC running in direct-delivery mode, bound to a
// single hart's interrupt-delivery context (§4.16).
type APLIC struct {
	Base uintptr
	IDC  uint32 // this hart's IDC index
}

func (a *APLIC) sourcecfgAddr(hwirq uint32) uintptr {
	return a.Base + aplicSourcecfgBase + uintptr(hwirq-1)*4
}

func (a *APLIC) targetAddr(hwirq uint32) uintptr {
	return a.Base + aplicTargetBase + uintptr(hwirq-1)*4
}

func (a *APLIC) idcBase() uintptr {
	return a.Base + aplicIDCBase + uintptr(a.IDC)*aplicIDCStride
}

// ConfigureSource sets a source's mode and routes it to this hart at the
// given priority (§4.16 "per-source target (hart index + priority)").
func (a *APLIC) ConfigureSource(hwirq uint32, mode uint32, priority uint32) {
	m := mmio()
	m.Store32(a.sourcecfgAddr(hwirq), mode)
	m.Store32(a.targetAddr(hwirq), (a.IDC<<18)|priority)
}

// EnableDelivery turns on interrupt delivery for this IDC.
func (a *APLIC) EnableDelivery() {
	mmio().Store32(a.idcBase()+aplicIDelivery, 1)
}

// SetThreshold programs this IDC's priority threshold.
func (a *APLIC) SetThreshold(threshold uint32) {
	mmio().Store32(a.idcBase()+aplicIThreshold, threshold)
}

// Claimi reads claimi, which both identifies the top pending source for
// this IDC and implicitly completes it; 0 means nothing pending (§4.16
// "Dispatch reads claimi in a loop until it returns 0. Completion is
// implicit in reading claimi.").
func (a *APLIC) Claimi() uint32 {
	return mmio().Load32(a.idcBase() + aplicClaimI)
}

func (a *APLIC) Name() string { return "riscv,aplic" }

func (a *APLIC) Mask(hwirq uint32) {
	mmio().Store32(a.Base+aplicClrIEBase+uintptr(hwirq/32)*4, 1<<(hwirq%32))
}

func (a *APLIC) Unmask(hwirq uint32) {
	mmio().Store32(a.Base+aplicSetIEBase+uintptr(hwirq/32)*4, 1<<(hwirq%32))
}

// Ack and EOI are both no-ops: Claimi's read is the entire
// acknowledge-and-complete protocol in direct mode.
func (a *APLIC) Ack(hwirq uint32) {}
func (a *APLIC) EOI(hwirq uint32) {}

func (a *APLIC) SetType(hwirq uint32, trigger defs.TriggerType) defs.Err_t {
	mode := APLICSourceLevelHigh
	switch trigger {
	case defs.TriggerEdgeRising:
		mode = APLICSourceEdgeRise
	case defs.TriggerEdgeFalling:
		mode = APLICSourceEdgeFall
	case defs.TriggerLevelLow:
		mode = APLICSourceLevelLow
	case defs.TriggerLevelHigh:
		mode = APLICSourceLevelHigh
	}
	mmio().Store32(a.sourcecfgAddr(hwirq), mode)
	return 0
}
