package irqdomain

import (
	"encoding/binary"

	"defs"
	"fdt"
	"irq"
	"ustr"
)

// ParseInterruptsCells reads the index'th interrupt specifier (of
// cellsPerEntry 32-bit cells) out of nodePath's "interrupts" property
// (§4.14 irq_of_parse_and_map: "reads the node's interrupts property at
// the given index"). This core has no FDT phandle/interrupt-parent
// resolver yet, so callers supply the target domain and its xlate
// function directly instead of discovering them from "interrupt-parent".
func ParseInterruptsCells(mgr *fdt.Manager, nodePath ustr.Ustr, index, cellsPerEntry int) ([]uint32, defs.Err_t) {
	raw, ok := mgr.GetProperty(nodePath, "interrupts")
	if !ok {
		return nil, defs.ENODEV
	}
	entrySize := cellsPerEntry * 4
	off := index * entrySize
	if off+entrySize > len(raw) {
		return nil, defs.EINVAL
	}
	cells := make([]uint32, cellsPerEntry)
	for i := 0; i < cellsPerEntry; i++ {
		cells[i] = binary.BigEndian.Uint32(raw[off+i*4 : off+i*4+4])
	}
	return cells, 0
}

// OfParseAndMap reads nodePath's interrupts property at index, translates
// it through xlate, and creates the mapping on d (§4.14
// irq_of_parse_and_map).
func OfParseAndMap(d *Domain, xlate func([]uint32) (uint32, defs.TriggerType, defs.Err_t), mgr *fdt.Manager, nodePath ustr.Ustr, index, cellsPerEntry int) (uint32, defs.Err_t) {
	cells, err := ParseInterruptsCells(mgr, nodePath, index, cellsPerEntry)
	if err != 0 {
		return defs.IRQInvalid, err
	}
	hwirq, trigger, err := xlate(cells)
	if err != 0 {
		return defs.IRQInvalid, err
	}
	v, err := CreateMapping(d, hwirq)
	if err != 0 {
		return defs.IRQInvalid, err
	}
	if desc, ok := irq.LookupDesc(v); ok {
		desc.Trigger = trigger
	}
	return v, 0
}
