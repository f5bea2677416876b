package defs

// TriggerType is the hardware interrupt trigger mode (§6 "IRQ trigger
// types and flags").
type TriggerType uint32

const (
	TriggerNone TriggerType = iota
	TriggerEdgeRising
	TriggerEdgeFalling
	TriggerEdgeBoth
	TriggerLevelHigh
	TriggerLevelLow
)

// IRQFlag carries request_irq-time options (§6).
type IRQFlag uint32

const (
	IRQFShared   IRQFlag = 1 << 0
	IRQFTrigger  IRQFlag = 1 << 1 // trigger type in the request is authoritative
	IRQFOneshot  IRQFlag = 1 << 2
	IRQFNoThread IRQFlag = 1 << 3
)

// IRQStatus is the descriptor status bitset (§3 IRQ descriptor, §6).
type IRQStatus uint32

const (
	IRQStatusDisabled   IRQStatus = 1 << 0
	IRQStatusPending    IRQStatus = 1 << 1
	IRQStatusInProgress IRQStatus = 1 << 2
	IRQStatusMasked     IRQStatus = 1 << 3
	IRQStatusPerCPU     IRQStatus = 1 << 4
	IRQStatusNoProbe    IRQStatus = 1 << 5
	IRQStatusNoRequest  IRQStatus = 1 << 6
	IRQStatusNoAutoen   IRQStatus = 1 << 7
)

// IRQInvalid is the sentinel virq value (§4.13: IRQ_INVALID = 0xFFFFFFFF).
const IRQInvalid uint32 = 0xFFFFFFFF

// MaxVirqs bounds the virq bitmap pool (§4.13).
const MaxVirqs = 4096
