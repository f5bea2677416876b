// Package trap is the exception/interrupt entry point (§4.17): one
// context struct per architecture, a dispatch that routes interrupts into
// the generic IRQ core and synchronous faults into a dump-and-halt path,
// and a PageFaultHook extension point a future MMU-fault handler can
// install without touching the dispatch itself.
package trap

import (
	"arch"
	"caller"
	"defs"
	"irq"
	"irqchip"
	"irqdomain"
	"klog"
)

// PageFaultHook, if non-nil, is called before the default dump-and-halt
// path for a synchronous data/instruction-abort fault, so a future demand
// paging or copy-on-write implementation has a seam to hook into without
// touching HandleARM64Sync/HandleRISCV themselves (§9 "page-fault handling remains a
// documented extension point"). Reports true if it fully handled the
// fault and dispatch should return without dumping or halting.
var PageFaultHook func(ctx *Context) bool

// HandleIRQ is the architecture-neutral half of interrupt entry: given
// the hwirq a chip's ack step produced, it looks the virq up in the
// default domain and runs the generic dispatch chain (§4.17: "uses the
// default domain to obtain virq, calls generic_handle_irq(virq)").
// Interrupts are expected to already be disabled on entry, per the
// cross-arch invariant that an IRQ handler never nests with another IRQ
// entry on the same core.
func HandleIRQ(hwirq uint32) {
	d := irqchip.DefaultDomain
	if d == nil {
		klog.Warnf("trap: irq fired with no default domain (hwirq=%d)", hwirq)
		return
	}
	v := irqdomain.FindMapping(d, hwirq)
	if v == defs.IRQInvalid {
		klog.Warnf("trap: no mapping for hwirq %d", hwirq)
		return
	}
	irq.GenericHandleIRQ(v)
}

// Dump formats ctx the way a kernel fault message would: the registers on
// one line (ctx.String()), followed by the Go-level call chain so a
// hosted test run (or a future native port) has something to attribute
// the fault to (§4.17: "prints a fault dump, then halts").
func Dump(ctx *Context) string {
	s := ctx.String()
	s += "\n" + callChain()
	return s
}

func callChain() string {
	return caller.Sprintdump(2)
}

// HaltOnFault prints ctx's dump and halts the core via arch.Current, the
// terminal response to an unhandled synchronous exception (§4.17: ARM64
// "prints a fault dump, then halts"; RISC-V "for exceptions, panics").
func HaltOnFault(ctx *Context) {
	klog.Errorf("%s", Dump(ctx))
	if arch.Current != nil && arch.Current.CPU.Halt != nil {
		arch.Current.CPU.Halt()
	}
}
