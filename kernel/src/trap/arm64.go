package trap

// ARM64 ESR.EC values the sync handler distinguishes for logging (§4.17:
// "Sync handler decodes ESR.EC"); only the ones worth naming explicitly
// are listed, everything else prints as a bare hex class.
const (
	ECDataAbortLowerEL uint64 = 0x24
	ECDataAbortSameEL  uint64 = 0x25
	ECInstrAbortLowerEL uint64 = 0x20
	ECInstrAbortSameEL  uint64 = 0x21
	ECSVC64             uint64 = 0x15
)

// HandleARM64IRQ is the IRQ-vector entry: ack at the GIC CPU interface,
// dispatch through the generic IRQ core, then EOI (§4.17: "reads the GIC
// IAR (hwirq), uses the default domain to obtain virq, calls
// generic_handle_irq(virq), writes EOI"). ackFn/eoiFn are supplied by the
// arch boot code that owns the concrete GICv2/GICv3 instance, keeping this
// file free of any irqchip-specific type switch.
func HandleARM64IRQ(ctx *Context, ackFn func() uint32, eoiFn func(uint32)) {
	ctx.Kind = KindIRQ
	hwirq := ackFn()
	if hwirq == gicSpuriousIRQ {
		return
	}
	HandleIRQ(hwirq)
	eoiFn(hwirq)
}

const gicSpuriousIRQ = 1023

// HandleARM64Sync decodes ESR.EC, calls PageFaultHook for abort classes if
// one is installed, and otherwise dumps and halts (§4.17: "prints a fault
// dump, then halts; page-fault dispatch is explicitly a TODO").
func HandleARM64Sync(ctx *Context) {
	ctx.Kind = KindSync
	switch ctx.ESREC() {
	case ECDataAbortLowerEL, ECDataAbortSameEL, ECInstrAbortLowerEL, ECInstrAbortSameEL:
		if PageFaultHook != nil && PageFaultHook(ctx) {
			return
		}
	}
	HaltOnFault(ctx)
}

// HandleARM64SError handles an SError/FIQ entry the same as any other
// unrecoverable synchronous fault: dump and halt.
func HandleARM64SError(ctx *Context) {
	ctx.Kind = KindSError
	HaltOnFault(ctx)
}
