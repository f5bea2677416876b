package trap

// RISC-V standard S-mode interrupt cause codes (§4.16 INTC / §4.17).
const (
	CauseSSoft  uint64 = 1
	CauseSTimer uint64 = 5
	CauseSExt   uint64 = 9
)

// HandleRISCV is the single stvec entry: reads scause and stval, and for
// an interrupt entry cascades into intcHandle (§4.17: "For interrupt
// entries, calls intc_handle_irq(cause); cause 9 cascades into the
// PLIC/APLIC claim-and-dispatch loop. For exceptions, panics."). claimFn
// is the PLIC/APLIC claim-and-complete loop the arch boot code wires up
// for the external-interrupt cause; other causes dispatch straight
// through HandleIRQ with the cause code itself as hwirq.
func HandleRISCV(ctx *Context, claimFn func(deliver func(hwirq uint32))) {
	if ctx.IsInterrupt() {
		ctx.Kind = KindIRQ
		cause := ctx.Cause()
		if cause == CauseSExt && claimFn != nil {
			claimFn(HandleIRQ)
			return
		}
		HandleIRQ(uint32(cause))
		return
	}
	ctx.Kind = KindSync
	if PageFaultHook != nil && isPageFault(ctx.Cause()) && PageFaultHook(ctx) {
		return
	}
	HaltOnFault(ctx)
}

// RISC-V synchronous exception causes that represent a page fault (§4.17
// "for exceptions, panics" — these are the ones a future demand-paging
// PageFaultHook would intercept before the panic).
const (
	CauseInstrPageFault uint64 = 12
	CauseLoadPageFault  uint64 = 13
	CauseStorePageFault uint64 = 15
)

func isPageFault(cause uint64) bool {
	switch cause {
	case CauseInstrPageFault, CauseLoadPageFault, CauseStorePageFault:
		return true
	default:
		return false
	}
}
