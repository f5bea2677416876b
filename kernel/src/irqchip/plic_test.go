package irqchip

import "testing"

func TestPLICMaskUnmaskSetsEnableBit(t *testing.T) {
	setupSim(t)
	p := &PLIC{Base: 0x1000, Context: 1}
	p.Unmask(5)
	addr, bit := p.enableAddr(5)
	if v := mmio().Load32(addr); v&(1<<bit) == 0 {
		t.Fatal("expected enable bit set")
	}
	if v := mmio().Load32(p.priorityAddr(5)); v != 1 {
		t.Fatalf("expected priority 1, got %d", v)
	}
	p.Mask(5)
	if v := mmio().Load32(addr); v&(1<<bit) != 0 {
		t.Fatal("expected enable bit cleared")
	}
}

func TestPLICClaimAndComplete(t *testing.T) {
	setupSim(t)
	p := &PLIC{Base: 0x1000, Context: 0}
	mmio().Store32(p.contextBase()+plicClaimOff, 7)
	if id := p.Claim(); id != 7 {
		t.Fatalf("expected claim 7, got %d", id)
	}
	p.Complete(7)
	if v := mmio().Load32(p.contextBase() + plicClaimOff); v != 7 {
		t.Fatalf("expected complete write-back, got %d", v)
	}
}

func TestPLICThreshold(t *testing.T) {
	setupSim(t)
	p := &PLIC{Base: 0x1000, Context: 2}
	p.SetThreshold(3)
	if v := mmio().Load32(p.contextBase() + plicThresholdOff); v != 3 {
		t.Fatalf("expected threshold 3, got %d", v)
	}
}
