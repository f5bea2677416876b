package irqdomain

import (
	"testing"

	"defs"
	"irq"
)

type fakeChip struct {
	masked map[uint32]bool
}

func newFakeChip() *fakeChip { return &fakeChip{masked: map[uint32]bool{}} }

func (c *fakeChip) Name() string        { return "fake" }
func (c *fakeChip) Mask(hw uint32)      { c.masked[hw] = true }
func (c *fakeChip) Unmask(hw uint32)    { c.masked[hw] = false }
func (c *fakeChip) Ack(hw uint32)       {}
func (c *fakeChip) EOI(hw uint32)       {}
func (c *fakeChip) SetType(hw uint32, t defs.TriggerType) defs.Err_t { return 0 }

func TestLinearCreateMappingIsIdempotent(t *testing.T) {
	irq.Reset()
	chip := newFakeChip()
	d := NewLinear("test-gic", 64, chip, Ops{})
	v1, err := CreateMapping(d, 5)
	if err != 0 {
		t.Fatalf("CreateMapping: %v", err)
	}
	v2, err := CreateMapping(d, 5)
	if err != 0 || v2 != v1 {
		t.Fatalf("expected idempotent mapping, got v1=%d v2=%d err=%v", v1, v2, err)
	}
	if got := FindMapping(d, 5); got != v1 {
		t.Fatalf("FindMapping mismatch: got %d want %d", got, v1)
	}
}

func TestLinearRejectsZeroAndOutOfRange(t *testing.T) {
	irq.Reset()
	d := NewLinear("test-gic", 8, newFakeChip(), Ops{})
	if _, err := CreateMapping(d, 0); err != defs.EINVAL {
		t.Fatalf("expected EINVAL for hwirq 0, got %v", err)
	}
	if _, err := CreateMapping(d, 8); err != defs.EINVAL {
		t.Fatalf("expected EINVAL for hwirq >= size, got %v", err)
	}
}

func TestDisposeMappingFreesVirqAndIsIdempotent(t *testing.T) {
	irq.Reset()
	d := NewLinear("test-gic", 64, newFakeChip(), Ops{})
	v, _ := CreateMapping(d, 3)
	DisposeMapping(v)
	if FindMapping(d, 3) != defs.IRQInvalid {
		t.Fatal("expected mapping gone after dispose")
	}
	if irq.VirqIsAllocated(v) {
		t.Fatal("expected virq released after dispose")
	}
	DisposeMapping(v) // must not panic on double-dispose
}

func TestTreeDomainSparseMapping(t *testing.T) {
	irq.Reset()
	d := NewTree("test-msi", newFakeChip(), Ops{})
	v, err := CreateMapping(d, 100000)
	if err != 0 {
		t.Fatalf("CreateMapping: %v", err)
	}
	if got := FindMapping(d, 100000); got != v {
		t.Fatalf("expected sparse hwirq mapped, got %d want %d", got, v)
	}
}

func TestHierarchyActivatePropagatesToParent(t *testing.T) {
	irq.Reset()
	var parentActivated, childActivated bool
	parent := NewLinear("plic", 64, newFakeChip(), Ops{
		Activate: func(*Domain, uint32) defs.Err_t { parentActivated = true; return 0 },
	})
	child := NewHierarchy("intc", parent, newFakeChip(), Ops{
		Activate: func(*Domain, uint32) defs.Err_t { childActivated = true; return 0 },
	})
	if err := Activate(child, 1); err != 0 {
		t.Fatalf("Activate: %v", err)
	}
	if !childActivated || !parentActivated {
		t.Fatalf("expected activation to propagate: child=%v parent=%v", childActivated, parentActivated)
	}
}

func TestXlateGIC(t *testing.T) {
	hwirq, trig, err := XlateGIC([]uint32{0, 5, 4})
	if err != 0 || hwirq != 37 || trig != defs.TriggerLevelHigh {
		t.Fatalf("SPI decode: hwirq=%d trig=%v err=%v", hwirq, trig, err)
	}
	hwirq, _, err = XlateGIC([]uint32{1, 14, 4})
	if err != 0 || hwirq != 30 {
		t.Fatalf("PPI decode: hwirq=%d err=%v", hwirq, err)
	}
}

func TestXlatePLICAndAPLIC(t *testing.T) {
	if hw, _, err := XlatePLIC([]uint32{9}); err != 0 || hw != 9 {
		t.Fatalf("PLIC decode: %d %v", hw, err)
	}
	if hw, trig, err := XlateAPLIC([]uint32{3, 4}); err != 0 || hw != 3 || trig != defs.TriggerLevelHigh {
		t.Fatalf("APLIC decode: %d %v %v", hw, trig, err)
	}
}

func TestDomainAllocIRQs(t *testing.T) {
	irq.Reset()
	var allocatedBase uint32
	d := NewTree("test-msi", newFakeChip(), Ops{
		Alloc: func(_ *Domain, base uint32, nr int, _ interface{}) defs.Err_t {
			allocatedBase = base
			return 0
		},
	})
	base, err := DomainAllocIRQs(d, 4, nil)
	if err != 0 {
		t.Fatalf("DomainAllocIRQs: %v", err)
	}
	if base != allocatedBase {
		t.Fatalf("expected ops.Alloc to see the same base, got %d want %d", allocatedBase, base)
	}
	for i := uint32(0); i < 4; i++ {
		if !irq.VirqIsAllocated(base + i) {
			t.Fatalf("expected virq %d allocated", base+i)
		}
	}
}
