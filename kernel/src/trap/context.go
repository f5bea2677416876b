package trap

import "fmt"

// Kind distinguishes the exception classes every entry vector funnels
// into (§4.17: "Synchronous/IRQ/FIQ/SError (ARM) and trap (RISC-V)").
type Kind int

const (
	KindSync Kind = iota
	KindIRQ
	KindFIQ
	KindSError
)

func (k Kind) String() string {
	switch k {
	case KindSync:
		return "sync"
	case KindIRQ:
		return "irq"
	case KindFIQ:
		return "fiq"
	case KindSError:
		return "serror"
	default:
		return "unknown"
	}
}

// Context is the fixed register snapshot every vector saves onto the
// kernel stack before calling into Go (§4.17 "exception_context"). Both
// architectures fill in the same struct; fields one arch doesn't use stay
// zero, which keeps HandleIRQ and Dump architecture-neutral.
type Context struct {
	Kind Kind

	// ARM64 fields (§4.17 ARM64).
	ELR  uint64 // exception link register: faulting/return PC
	SPSR uint64 // saved processor state
	ESR  uint64 // exception syndrome register
	FAR  uint64 // fault address register

	// RISC-V fields (§4.17 RISC-V).
	SCause uint64 // bit 63 set = interrupt, low bits = cause code
	STval  uint64 // faulting address or trap-specific value
	SEPC   uint64 // exception PC

	Regs [31]uint64 // x0..x30 (ARM64) or x1..x31 (RISC-V), arch-specific layout
	SP   uint64
}

// ESREC extracts ARM64's ESR.EC field (bits 26..31), the exception class
// the sync handler decodes (§4.17: "Sync handler decodes ESR.EC").
func (c *Context) ESREC() uint64 {
	return (c.ESR >> 26) & 0x3f
}

// IsInterrupt reports RISC-V's scause bit 63 (§4.17: "bit 63 = interrupt").
func (c *Context) IsInterrupt() bool {
	return c.SCause&(1<<63) != 0
}

// Cause returns RISC-V's low-order cause code with the interrupt bit
// masked off.
func (c *Context) Cause() uint64 {
	return c.SCause &^ (1 << 63)
}

func (c *Context) String() string {
	switch c.Kind {
	case KindIRQ, KindFIQ, KindSError:
		if c.SCause != 0 || c.IsInterrupt() {
			return fmt.Sprintf("trap(%s): scause=%#x stval=%#x sepc=%#x", c.Kind, c.SCause, c.STval, c.SEPC)
		}
		return fmt.Sprintf("trap(%s): elr=%#x spsr=%#x", c.Kind, c.ELR, c.SPSR)
	default:
		if c.ESR != 0 || c.ELR != 0 {
			return fmt.Sprintf("fault(%s): elr=%#x spsr=%#x esr=%#x (ec=%#x) far=%#x sp=%#x",
				c.Kind, c.ELR, c.SPSR, c.ESR, c.ESREC(), c.FAR, c.SP)
		}
		return fmt.Sprintf("fault(%s): scause=%#x stval=%#x sepc=%#x sp=%#x",
			c.Kind, c.SCause, c.STval, c.SEPC, c.SP)
	}
}
