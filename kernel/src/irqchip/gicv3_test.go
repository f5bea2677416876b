package irqchip

import "testing"

func TestGICv3ProbeReadsNumIRQs(t *testing.T) {
	setupSim(t)
	const distBase = 0x10000
	mmio().Store32(distBase+gicv3dTYPER, 1) // (1&0x1f+1)*32 = 64
	g := &GICv3{}
	g.Probe(distBase, 0x20000)
	if g.NumIRQs != 64 {
		t.Fatalf("expected 64 irqs, got %d", g.NumIRQs)
	}
}

func TestGICv3DistInitSetsARE(t *testing.T) {
	setupSim(t)
	g := &GICv3{DistBase: 0x10000}
	g.DistInit()
	if v := mmio().Load32(0x10000 + gicv3dCTLR); v&gicdCTLRAREBit == 0 {
		t.Fatalf("expected ARE_S set, got %#x", v)
	}
}

func TestGICv3RedisInitWakesUp(t *testing.T) {
	setupSim(t)
	g := &GICv3{RedisBase: 0x20000, SGIBase: 0x30000}
	mmio().Store32(0x20000+gicrWAKER, gicrWAKERProcessorSleep)
	g.RedisInit()
	if v := mmio().Load32(0x20000 + gicrWAKER); v&gicrWAKERProcessorSleep != 0 {
		t.Fatal("expected ProcessorSleep cleared")
	}
}

func TestGICv3MaskUnmaskSGIRange(t *testing.T) {
	setupSim(t)
	g := &GICv3{DistBase: 0x10000, SGIBase: 0x30000}
	g.Unmask(5)
	if v := mmio().Load32(0x30000 + gicrISENABLER0); v&(1<<5) == 0 {
		t.Fatal("expected redistributor ISENABLER0 bit for SGI range")
	}
	g.Unmask(40)
	if v := mmio().Load32(0x10000 + gicv3dISENABLER + 4); v&(1<<8) == 0 {
		t.Fatal("expected distributor ISENABLER bit for SPI range")
	}
}

func TestGICv3EOIAndReadIAR1(t *testing.T) {
	setupSim(t)
	var eoiSeen, iarCalled uint32
	g := &GICv3{
		ICCReadIAR1:   func() uint32 { iarCalled = 42; return 42 },
		ICCWriteEOIR1: func(v uint32) { eoiSeen = v },
	}
	if id := g.ReadIAR1(); id != 42 || iarCalled != 42 {
		t.Fatalf("expected IAR1 42, got %d", id)
	}
	g.EOI(42)
	if eoiSeen != 42 {
		t.Fatalf("expected EOIR1 write of 42, got %d", eoiSeen)
	}
}
