// Package irq implements the virq bitmap allocator and the IRQ descriptor
// + action-chain dispatch layer (§4.13). The bitmap allocator generalizes
// the teacher's fixed 8-vector MSI pool (package msi) from a small
// hardcoded map to a 4096-bit pool with range allocation, since virqs are
// assigned continuously as every FDT interrupt consumer is probed rather
// than handed out one at a time from a tiny fixed set.
package irq

import (
	"sync"
	"sync/atomic"

	"defs"
)

const virqWords = defs.MaxVirqs / 64

var (
	bitmapMu sync.Mutex
	bitmap   [virqWords]uint64
	count    int
	maxAlloc uint32
)

func init() {
	resetLocked()
}

func resetLocked() {
	bitmap = [virqWords]uint64{}
	// virq 0 is reserved as the sentinel and never handed out (§4.13).
	bitmap[0] |= 1
	count = 1
	maxAlloc = 0
}

// Reset discards all virq and descriptor state, for test setup.
func Reset() {
	bitmapMu.Lock()
	resetLocked()
	bitmapMu.Unlock()
	descMu.Lock()
	descs = map[uint32]*Desc{}
	descMu.Unlock()
}

func testBit(v uint32) bool {
	return bitmap[v/64]&(1<<(v%64)) != 0
}

func setBit(v uint32) {
	bitmap[v/64] |= 1 << (v % 64)
}

func clearBit(v uint32) {
	bitmap[v/64] &^= 1 << (v % 64)
}

// VirqAlloc allocates a single virq, returning defs.IRQInvalid and ENOMEM
// if the pool is exhausted (§4.13 virq_alloc).
func VirqAlloc() (uint32, defs.Err_t) {
	bitmapMu.Lock()
	defer bitmapMu.Unlock()
	for v := uint32(1); v < defs.MaxVirqs; v++ {
		if !testBit(v) {
			setBit(v)
			count++
			if v > maxAlloc {
				maxAlloc = v
			}
			return v, 0
		}
	}
	return defs.IRQInvalid, defs.ENOMEM
}

// VirqAllocRange allocates n contiguous virqs, returning the base of the
// range (§4.13 virq_alloc_range).
func VirqAllocRange(n int) (uint32, defs.Err_t) {
	if n <= 0 || n > defs.MaxVirqs {
		return defs.IRQInvalid, defs.EINVAL
	}
	bitmapMu.Lock()
	defer bitmapMu.Unlock()
	run := 0
	start := uint32(1)
	for v := uint32(1); v < defs.MaxVirqs; v++ {
		if !testBit(v) {
			if run == 0 {
				start = v
			}
			run++
			if run == n {
				for i := uint32(0); i < uint32(n); i++ {
					setBit(start + i)
				}
				count += n
				if start+uint32(n)-1 > maxAlloc {
					maxAlloc = start + uint32(n) - 1
				}
				return start, 0
			}
		} else {
			run = 0
		}
	}
	return defs.IRQInvalid, defs.ENOMEM
}

// VirqFree releases a single virq (§4.13 virq_free).
func VirqFree(v uint32) {
	if v == 0 || v >= defs.MaxVirqs {
		return
	}
	bitmapMu.Lock()
	defer bitmapMu.Unlock()
	if testBit(v) {
		clearBit(v)
		count--
	}
}

// VirqFreeRange releases n virqs starting at base (§4.13 virq_free_range).
func VirqFreeRange(base uint32, n int) {
	for i := 0; i < n; i++ {
		VirqFree(base + uint32(i))
	}
}

// VirqIsAllocated reports whether v is currently allocated.
func VirqIsAllocated(v uint32) bool {
	bitmapMu.Lock()
	defer bitmapMu.Unlock()
	return v < defs.MaxVirqs && testBit(v)
}

// GetAllocatedCount returns the number of virqs currently allocated,
// including the reserved virq 0.
func GetAllocatedCount() int {
	bitmapMu.Lock()
	defer bitmapMu.Unlock()
	return count
}

// GetMaxAllocated returns the highest virq number ever allocated.
func GetMaxAllocated() uint32 {
	bitmapMu.Lock()
	defer bitmapMu.Unlock()
	return maxAlloc
}

// Chip is the subset of the interrupt-controller chip vtable (§4.16) the
// dispatch layer needs: mask/unmask/ack/eoi and trigger-type programming,
// addressed by hwirq rather than virq.
type Chip interface {
	Name() string
	Mask(hwirq uint32)
	Unmask(hwirq uint32)
	Ack(hwirq uint32)
	EOI(hwirq uint32)
	SetType(hwirq uint32, trigger defs.TriggerType) defs.Err_t
}

// Action is one registered handler on a descriptor's chain (§4.13 request
// body).
type Action struct {
	Handler  func(devToken interface{})
	Flags    defs.IRQFlag
	Name     string
	DevToken interface{}
}

// Desc is the per-virq descriptor (§3 IRQ descriptor, §4.13).
type Desc struct {
	mu        sync.Mutex
	Virq      uint32
	Hwirq     uint32
	Chip      Chip
	ChipData  interface{}
	Trigger   defs.TriggerType
	Status    defs.IRQStatus
	Depth     int32
	Actions   []*Action
	FireCount uint64
}

var (
	descMu sync.Mutex
	descs  = map[uint32]*Desc{}
)

// IrqToDesc returns (creating on first use) the descriptor for virq
// (§4.13 irq_to_desc).
func IrqToDesc(virq uint32) *Desc {
	descMu.Lock()
	defer descMu.Unlock()
	d, ok := descs[virq]
	if !ok {
		d = &Desc{Virq: virq, Status: defs.IRQStatusDisabled}
		descs[virq] = d
	}
	return d
}

// LookupDesc returns the descriptor for virq without creating one.
func LookupDesc(virq uint32) (*Desc, bool) {
	descMu.Lock()
	defer descMu.Unlock()
	d, ok := descs[virq]
	return d, ok
}

// DropDesc removes virq's descriptor from the table.
func DropDesc(virq uint32) {
	descMu.Lock()
	delete(descs, virq)
	descMu.Unlock()
}

// BindChip attaches a chip + its private hwirq identity to a descriptor,
// called by package irqdomain's map operation.
func BindChip(virq uint32, chip Chip, hwirq uint32, chipData interface{}) {
	d := IrqToDesc(virq)
	d.mu.Lock()
	d.Chip = chip
	d.Hwirq = hwirq
	d.ChipData = chipData
	d.mu.Unlock()
}

// RequestIRQ registers handler on virq (§4.13 request_irq). Rejects a nil
// handler and an unmapped virq (no chip bound yet). Installs the action
// exclusively unless IRQFShared is set on both the new action and every
// existing one already on the chain.
func RequestIRQ(virq uint32, handler func(interface{}), flags defs.IRQFlag, name string, devToken interface{}) defs.Err_t {
	if handler == nil {
		return defs.EINVAL
	}
	d, ok := LookupDesc(virq)
	if !ok || d.Chip == nil {
		return defs.ENODEV
	}
	d.mu.Lock()
	defer d.mu.Unlock()

	if len(d.Actions) > 0 {
		shared := flags&defs.IRQFShared != 0
		for _, a := range d.Actions {
			if !shared || a.Flags&defs.IRQFShared == 0 {
				return defs.EEXIST
			}
		}
	}
	d.Actions = append(d.Actions, &Action{Handler: handler, Flags: flags, Name: name, DevToken: devToken})

	first := len(d.Actions) == 1
	if first {
		if flags&defs.IRQFTrigger != 0 {
			d.Chip.SetType(d.Hwirq, d.Trigger)
		}
		d.Status &^= defs.IRQStatusDisabled
		d.Depth = 0
		d.Chip.Unmask(d.Hwirq)
	}
	return 0
}

// FreeIRQ removes the action matching devToken from virq's chain; masks
// the line once the chain is empty (§4.13 free_irq). Unknown devTokens are
// ignored.
func FreeIRQ(virq uint32, devToken interface{}) {
	d, ok := LookupDesc(virq)
	if !ok {
		return
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	for i, a := range d.Actions {
		if a.DevToken == devToken {
			d.Actions = append(d.Actions[:i], d.Actions[i+1:]...)
			break
		}
	}
	if len(d.Actions) == 0 && d.Chip != nil {
		d.Chip.Mask(d.Hwirq)
		d.Status |= defs.IRQStatusDisabled
	}
}

// DisableIRQ increments the nesting depth, masking the line on the 0->1
// transition (§4.13: "disable_irq[_nosync] increments depth").
func DisableIRQ(virq uint32) {
	d, ok := LookupDesc(virq)
	if !ok {
		return
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	if atomic.AddInt32(&d.Depth, 1) == 1 && d.Chip != nil {
		d.Chip.Mask(d.Hwirq)
	}
}

// EnableIRQ decrements the nesting depth, clamped at zero, unmasking on
// the 1->0 transition (§4.13: "enable_irq decrements, clamped at zero").
func EnableIRQ(virq uint32) {
	d, ok := LookupDesc(virq)
	if !ok {
		return
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.Depth == 0 {
		return
	}
	if atomic.AddInt32(&d.Depth, -1) == 0 && d.Chip != nil {
		d.Chip.Unmask(d.Hwirq)
	}
}

// GenericHandleIRQ fires every action on virq's chain in turn, then signals
// completion to the chip (§4.13 generic_handle_irq) by calling its EOI.
// Every chip gets EOI; there is no mask+ack+unmask completion path.
func GenericHandleIRQ(virq uint32) {
	d, ok := LookupDesc(virq)
	if !ok {
		return
	}
	d.mu.Lock()
	d.FireCount++
	d.Status |= defs.IRQStatusInProgress
	actions := append([]*Action(nil), d.Actions...)
	chip, hwirq := d.Chip, d.Hwirq
	d.mu.Unlock()

	for _, a := range actions {
		a.Handler(a.DevToken)
	}

	if chip != nil {
		chip.EOI(hwirq)
	}

	d.mu.Lock()
	d.Status &^= defs.IRQStatusInProgress
	d.mu.Unlock()
}
