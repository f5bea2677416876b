package irqdomain

import (
	"defs"
	"irq"
	"msi"
)

// NewMSI creates a TREE domain whose hwirq space is a msi.Pool's vector
// range: ops.Alloc draws nr vectors from the pool and maps each to its own
// virq, ops.Free returns them (§4.14 "alloc(d, virq, nr, arg) and
// free(d, virq, nr) for bulk (MSI)").
func NewMSI(name string, chip irq.Chip, pool *msi.Pool) *Domain {
	d := NewTree(name, chip, Ops{})
	d.Ops.Alloc = func(dom *Domain, virqBase uint32, nr int, arg interface{}) defs.Err_t {
		vecs, ok := pool.AllocN(nr)
		if !ok {
			return defs.ENOSPC
		}
		dom.mu.Lock()
		for i, v := range vecs {
			dom.setMapping(uint32(v), virqBase+uint32(i))
			if dom.Chip != nil {
				irq.BindChip(virqBase+uint32(i), dom.Chip, uint32(v), nil)
			}
		}
		dom.mu.Unlock()
		return 0
	}
	d.Ops.Free = func(dom *Domain, virqBase uint32, nr int) {
		dom.mu.Lock()
		var vecs []msi.Vec
		for i := 0; i < nr; i++ {
			if hw, ok := dom.reverse[virqBase+uint32(i)]; ok {
				vecs = append(vecs, msi.Vec(hw))
				dom.clearMapping(virqBase + uint32(i))
			}
		}
		dom.mu.Unlock()
		pool.FreeN(vecs)
	}
	return d
}
