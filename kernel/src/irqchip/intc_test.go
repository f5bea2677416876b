package irqchip

import "testing"

func TestINTCMaskUnmask(t *testing.T) {
	var sie uint64
	c := &INTC{
		ReadSIE:  func() uint64 { return sie },
		WriteSIE: func(v uint64) { sie = v },
	}
	c.Unmask(CauseSExt)
	if sie&(1<<CauseSExt) == 0 {
		t.Fatal("expected sie bit set for external cause")
	}
	c.Mask(CauseSExt)
	if sie&(1<<CauseSExt) != 0 {
		t.Fatal("expected sie bit cleared")
	}
}

func TestINTCPending(t *testing.T) {
	c := &INTC{ReadSIP: func() uint64 { return 1 << CauseSTimer }}
	if !c.Pending(CauseSTimer) {
		t.Fatal("expected timer cause pending")
	}
	if c.Pending(CauseSSoft) {
		t.Fatal("expected soft cause not pending")
	}
}
