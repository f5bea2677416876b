package irq

import (
	"testing"

	"defs"
)

type fakeChip struct {
	masked   map[uint32]bool
	eoiCount map[uint32]int
}

func newFakeChip() *fakeChip {
	return &fakeChip{masked: map[uint32]bool{}, eoiCount: map[uint32]int{}}
}

func (c *fakeChip) Name() string            { return "fake" }
func (c *fakeChip) Mask(hwirq uint32)       { c.masked[hwirq] = true }
func (c *fakeChip) Unmask(hwirq uint32)     { c.masked[hwirq] = false }
func (c *fakeChip) Ack(hwirq uint32)        {}
func (c *fakeChip) EOI(hwirq uint32)        { c.eoiCount[hwirq]++ }
func (c *fakeChip) SetType(hwirq uint32, t defs.TriggerType) defs.Err_t { return 0 }

func TestVirqAllocFreeAndRange(t *testing.T) {
	Reset()
	if VirqIsAllocated(0) == false {
		t.Fatal("expected virq 0 reserved from the start")
	}
	v1, err := VirqAlloc()
	if err != 0 || v1 == 0 {
		t.Fatalf("VirqAlloc: %v %v", v1, err)
	}
	base, err := VirqAllocRange(4)
	if err != 0 {
		t.Fatalf("VirqAllocRange: %v", err)
	}
	for i := uint32(0); i < 4; i++ {
		if !VirqIsAllocated(base + i) {
			t.Fatalf("expected virq %d allocated", base+i)
		}
	}
	VirqFreeRange(base, 4)
	for i := uint32(0); i < 4; i++ {
		if VirqIsAllocated(base + i) {
			t.Fatalf("expected virq %d freed", base+i)
		}
	}
	VirqFree(v1)
	if GetMaxAllocated() < base+3 {
		t.Fatalf("expected max allocated to track the range, got %d", GetMaxAllocated())
	}
}

func TestVirqAllocExhaustion(t *testing.T) {
	Reset()
	for i := 0; i < defs.MaxVirqs-1; i++ {
		if _, err := VirqAlloc(); err != 0 {
			t.Fatalf("unexpected exhaustion at %d", i)
		}
	}
	if _, err := VirqAlloc(); err != defs.ENOMEM {
		t.Fatalf("expected ENOMEM once pool is exhausted, got %v", err)
	}
}

func TestRequestIRQRejectsUnmappedVirq(t *testing.T) {
	Reset()
	if err := RequestIRQ(5, func(interface{}) {}, 0, "x", nil); err != defs.ENODEV {
		t.Fatalf("expected ENODEV for unbound virq, got %v", err)
	}
}

func TestRequestAndGenericHandleIRQ(t *testing.T) {
	Reset()
	v, _ := VirqAlloc()
	chip := newFakeChip()
	BindChip(v, chip, 33, nil)

	var fired int
	if err := RequestIRQ(v, func(interface{}) { fired++ }, 0, "uart", "tok1"); err != 0 {
		t.Fatalf("RequestIRQ: %v", err)
	}
	if chip.masked[33] {
		t.Fatal("expected chip unmasked after first install")
	}
	GenericHandleIRQ(v)
	if fired != 1 {
		t.Fatalf("expected handler fired once, got %d", fired)
	}
	if chip.eoiCount[33] != 1 {
		t.Fatalf("expected one EOI, got %d", chip.eoiCount[33])
	}

	FreeIRQ(v, "tok1")
	if !chip.masked[33] {
		t.Fatal("expected chip masked once chain empties")
	}
}

func TestRequestIRQSharedChain(t *testing.T) {
	Reset()
	v, _ := VirqAlloc()
	chip := newFakeChip()
	BindChip(v, chip, 10, nil)

	var a, b int
	RequestIRQ(v, func(interface{}) { a++ }, defs.IRQFShared, "a", "dev-a")
	if err := RequestIRQ(v, func(interface{}) { b++ }, defs.IRQFShared, "b", "dev-b"); err != 0 {
		t.Fatalf("expected second shared handler to chain, got %v", err)
	}
	GenericHandleIRQ(v)
	if a != 1 || b != 1 {
		t.Fatalf("expected both shared handlers fired, got a=%d b=%d", a, b)
	}

	if err := RequestIRQ(v, func(interface{}) {}, 0, "c", "dev-c"); err != defs.EEXIST {
		t.Fatalf("expected exclusive request against a shared chain to fail, got %v", err)
	}
}

func TestEnableDisableNesting(t *testing.T) {
	Reset()
	v, _ := VirqAlloc()
	chip := newFakeChip()
	BindChip(v, chip, 7, nil)
	RequestIRQ(v, func(interface{}) {}, 0, "x", "tok")

	DisableIRQ(v)
	DisableIRQ(v)
	if !chip.masked[7] {
		t.Fatal("expected masked after first disable")
	}
	EnableIRQ(v)
	if chip.masked[7] == false {
		t.Fatal("expected still masked after only one of two enables")
	}
	EnableIRQ(v)
	if chip.masked[7] {
		t.Fatal("expected unmasked once depth returns to zero")
	}
}

func TestFreeIRQUnknownTokenIgnored(t *testing.T) {
	Reset()
	v, _ := VirqAlloc()
	chip := newFakeChip()
	BindChip(v, chip, 1, nil)
	RequestIRQ(v, func(interface{}) {}, 0, "x", "real-token")
	FreeIRQ(v, "bogus-token")
	d, _ := LookupDesc(v)
	if len(d.Actions) != 1 {
		t.Fatalf("expected unknown dev_token free to be a no-op, got %d actions", len(d.Actions))
	}
}
