// Package irqdomain is the hwirq <-> virq mapping layer (§4.14): one
// domain per interrupt controller, translating that controller's
// device-tree interrupt specifiers and tracking which virqs it has handed
// out. A LINEAR domain is an array indexed by hwirq; a TREE domain is
// package radix keyed by hwirq for sparse (MSI-style) allocations; a
// HIERARCHY domain records a parent domain (e.g. PLIC -> INTC external
// line) and keeps its own mappings in a radix tree. Only Activate and
// Deactivate walk up to the parent; CreateMapping and DomainAllocIRQs act
// on the given domain alone, and no hwirq is transformed between layers.
package irqdomain

import (
	"sync"

	"defs"
	"irq"
	"radix"
)

// Type is a domain's mapping strategy (§4.14 Types).
type Type int

const (
	TypeLinear Type = iota
	TypeTree
	TypeHierarchy
)

// Ops is the per-domain vtable (§4.14 Operations).
type Ops struct {
	Map        func(d *Domain, virq uint32, hwirq uint32) defs.Err_t
	Unmap      func(d *Domain, virq uint32)
	Xlate      func(intspec []uint32) (hwirq uint32, trigger defs.TriggerType, err defs.Err_t)
	Alloc      func(d *Domain, virqBase uint32, nr int, arg interface{}) defs.Err_t
	Free       func(d *Domain, virqBase uint32, nr int)
	Activate   func(d *Domain, virq uint32) defs.Err_t
	Deactivate func(d *Domain, virq uint32)
}

// Domain is one hwirq<->virq mapping space (§4.14).
type Domain struct {
	Name   string
	Type   Type
	Chip   irq.Chip
	Size   uint32 // LINEAR capacity; unused by TREE/HIERARCHY
	Parent *Domain
	Ops    Ops

	mu      sync.Mutex
	linear  []uint32 // hwirq -> virq, 0 = unmapped
	tree    *radix.Tree
	reverse map[uint32]uint32 // virq -> hwirq
}

// NewLinear creates a LINEAR domain of the given hwirq capacity (§4.14).
func NewLinear(name string, size uint32, chip irq.Chip, ops Ops) *Domain {
	return &Domain{Name: name, Type: TypeLinear, Size: size, Chip: chip, Ops: ops,
		linear: make([]uint32, size), reverse: map[uint32]uint32{}}
}

// NewTree creates a TREE (radix-backed) domain for sparse hwirq spaces
// such as MSI (§4.14).
func NewTree(name string, chip irq.Chip, ops Ops) *Domain {
	return &Domain{Name: name, Type: TypeTree, Chip: chip, Ops: ops,
		tree: radix.New(), reverse: map[uint32]uint32{}}
}

// NewHierarchy creates a domain whose Activate/Deactivate calls also run
// parent's (§4.14); mapping and allocation stay within the new domain.
func NewHierarchy(name string, parent *Domain, chip irq.Chip, ops Ops) *Domain {
	return &Domain{Name: name, Type: TypeHierarchy, Parent: parent, Chip: chip, Ops: ops,
		reverse: map[uint32]uint32{}}
}

func (d *Domain) findMapping(hwirq uint32) (uint32, bool) {
	switch d.Type {
	case TypeLinear:
		if hwirq >= uint32(len(d.linear)) {
			return 0, false
		}
		v := d.linear[hwirq]
		return v, v != 0
	default:
		if d.tree == nil {
			return 0, false
		}
		v, ok := d.tree.Lookup(hwirq)
		if !ok {
			return 0, false
		}
		return v.(uint32), true
	}
}

func (d *Domain) setMapping(hwirq, virq uint32) {
	switch d.Type {
	case TypeLinear:
		d.linear[hwirq] = virq
	default:
		if d.tree == nil {
			d.tree = radix.New()
		}
		d.tree.Insert(hwirq, virq)
	}
	d.reverse[virq] = hwirq
}

func (d *Domain) clearMapping(virq uint32) {
	hwirq, ok := d.reverse[virq]
	if !ok {
		return
	}
	delete(d.reverse, virq)
	switch d.Type {
	case TypeLinear:
		if hwirq < uint32(len(d.linear)) {
			d.linear[hwirq] = 0
		}
	default:
		if d.tree != nil {
			d.tree.Delete(hwirq)
		}
	}
}

var (
	ownerMu sync.Mutex
	owner   = map[uint32]*Domain{}
)

// CreateMapping returns the existing virq for hwirq if one exists, else
// allocates a fresh virq and descriptor, calls ops.Map, and records the
// reverse mapping (§4.14 irq_create_mapping). Rejects hwirq == 0 and, for
// LINEAR domains, hwirq >= domain.Size.
func CreateMapping(d *Domain, hwirq uint32) (uint32, defs.Err_t) {
	if hwirq == 0 {
		return defs.IRQInvalid, defs.EINVAL
	}
	d.mu.Lock()
	if d.Type == TypeLinear && hwirq >= d.Size {
		d.mu.Unlock()
		return defs.IRQInvalid, defs.EINVAL
	}
	if v, ok := d.findMapping(hwirq); ok {
		d.mu.Unlock()
		return v, 0
	}
	d.mu.Unlock()

	v, err := irq.VirqAlloc()
	if err != 0 {
		return defs.IRQInvalid, err
	}
	irq.IrqToDesc(v)
	if d.Ops.Map != nil {
		if err := d.Ops.Map(d, v, hwirq); err != 0 {
			irq.VirqFree(v)
			return defs.IRQInvalid, err
		}
	} else if d.Chip != nil {
		irq.BindChip(v, d.Chip, hwirq, nil)
	}

	d.mu.Lock()
	d.setMapping(hwirq, v)
	d.mu.Unlock()

	ownerMu.Lock()
	owner[v] = d
	ownerMu.Unlock()
	return v, 0
}

// FindMapping returns the virq mapped to hwirq, or defs.IRQInvalid
// (§4.14 irq_find_mapping).
func FindMapping(d *Domain, hwirq uint32) uint32 {
	d.mu.Lock()
	defer d.mu.Unlock()
	v, ok := d.findMapping(hwirq)
	if !ok {
		return defs.IRQInvalid
	}
	return v
}

// DisposeMapping masks and releases virq's mapping; calls ops.Unmap, drops
// the descriptor, and frees the virq. Double-dispose is ignored (§4.14
// irq_dispose_mapping).
func DisposeMapping(virq uint32) {
	ownerMu.Lock()
	d, ok := owner[virq]
	if ok {
		delete(owner, virq)
	}
	ownerMu.Unlock()
	if !ok {
		return
	}

	irq.DisableIRQ(virq)
	if d.Ops.Unmap != nil {
		d.Ops.Unmap(d, virq)
	}
	d.mu.Lock()
	d.clearMapping(virq)
	d.mu.Unlock()
	irq.DropDesc(virq)
	irq.VirqFree(virq)
}

// DomainAllocIRQs allocates nr consecutive virqs and calls ops.Alloc with
// the base (§4.14 irq_domain_alloc_irqs), for bulk MSI-style setup.
func DomainAllocIRQs(d *Domain, nr int, arg interface{}) (uint32, defs.Err_t) {
	base, err := irq.VirqAllocRange(nr)
	if err != 0 {
		return defs.IRQInvalid, err
	}
	if d.Ops.Alloc != nil {
		if err := d.Ops.Alloc(d, base, nr, arg); err != 0 {
			irq.VirqFreeRange(base, nr)
			return defs.IRQInvalid, err
		}
	}
	ownerMu.Lock()
	for i := 0; i < nr; i++ {
		owner[base+uint32(i)] = d
	}
	ownerMu.Unlock()
	return base, 0
}

// Activate/Deactivate propagate through a HIERARCHY domain's parent chain
// (§4.14: "activate/deactivate for hierarchy propagation").

// Activate calls ops.Activate on d and, for a HIERARCHY domain, on every
// ancestor in turn.
func Activate(d *Domain, virq uint32) defs.Err_t {
	for cur := d; cur != nil; cur = cur.Parent {
		if cur.Ops.Activate != nil {
			if err := cur.Ops.Activate(cur, virq); err != 0 {
				return err
			}
		}
		if cur.Type != TypeHierarchy {
			break
		}
	}
	return 0
}

// Deactivate calls ops.Deactivate on d and its ancestors.
func Deactivate(d *Domain, virq uint32) {
	for cur := d; cur != nil; cur = cur.Parent {
		if cur.Ops.Deactivate != nil {
			cur.Ops.Deactivate(cur, virq)
		}
		if cur.Type != TypeHierarchy {
			break
		}
	}
}

// --- FDT interrupt-specifier translation (§4.14 "FDT translation
// details") ---

// XlateGIC decodes the GIC 3-cell form [type, number, flags]: type 0 is
// SPI (hwirq = number + 32), type 1 is PPI (hwirq = number + 16).
func XlateGIC(intspec []uint32) (uint32, defs.TriggerType, defs.Err_t) {
	if len(intspec) < 3 {
		return 0, 0, defs.EINVAL
	}
	var hwirq uint32
	switch intspec[0] {
	case 0:
		hwirq = intspec[1] + 32
	case 1:
		hwirq = intspec[1] + 16
	default:
		return 0, 0, defs.EINVAL
	}
	return hwirq, triggerFromGICFlags(intspec[2]), 0
}

func triggerFromGICFlags(flags uint32) defs.TriggerType {
	switch flags & 0xf {
	case 1:
		return defs.TriggerEdgeRising
	case 2:
		return defs.TriggerEdgeFalling
	case 4:
		return defs.TriggerLevelHigh
	case 8:
		return defs.TriggerLevelLow
	default:
		return defs.TriggerLevelHigh
	}
}

// XlateAPLIC decodes the APLIC 2-cell form [source, type].
func XlateAPLIC(intspec []uint32) (uint32, defs.TriggerType, defs.Err_t) {
	if len(intspec) < 2 {
		return 0, 0, defs.EINVAL
	}
	return intspec[0], triggerFromGICFlags(intspec[1]), 0
}

// XlatePLIC decodes the PLIC 1-cell form: the cell is the hwirq directly,
// level-high by convention.
func XlatePLIC(intspec []uint32) (uint32, defs.TriggerType, defs.Err_t) {
	if len(intspec) < 1 {
		return 0, 0, defs.EINVAL
	}
	return intspec[0], defs.TriggerLevelHigh, 0
}
