// Package device implements the in-memory device tree (§4.10): one Device
// per FDT node, each carrying its compatible strings and the resources
// (memory windows, IRQ lines, clocks, power, reset) parsed out of that
// node's properties. Early discovery allocates Device values out of a
// fixed-size bump pool, mirroring the teacher's early-boot allocator
// discipline, before migrate_to_permanent moves the tree into normally
// managed storage once the rest of the allocator stack is up.
package device

import (
	"sync"

	"defs"
	"fdt"
	"ustr"
)

// Resource is one memory window, IRQ line, clock, power, or reset line
// attached to a device node (§3 Resource, §4.10).
type Resource struct {
	Type       defs.ResType
	Name       string
	Start      uintptr
	Size       uintptr
	IRQNum     uint32
	Trigger    defs.TriggerType
	Flags      defs.ResFlag
	MappedAddr uintptr // filled in by package devmap once an MMIO resource is mapped
}

// Device is one node of the in-memory device tree (§4.10).
type Device struct {
	Name       string
	Path       ustr.Ustr
	Compatible []ustr.Ustr
	Type       defs.DevType
	ID         uint
	Parent     *Device
	Children   []*Device
	Resources  []Resource
	DriverData interface{}
	Active     bool
	Suspended  bool
}

const earlyPoolSize = 64

var (
	regMu     sync.Mutex
	early     [earlyPoolSize]Device
	earlyUsed int
	migrated  bool
	all       []*Device
	Root      *Device
	nextID    uint
)

// Reset discards the registry, for test setup and (in principle) a future
// reinit path. Not part of the normal boot sequence.
func Reset() {
	regMu.Lock()
	defer regMu.Unlock()
	earlyUsed = 0
	migrated = false
	all = nil
	Root = nil
	nextID = 0
}

func allocDevice() *Device {
	if !migrated && earlyUsed < earlyPoolSize {
		early[earlyUsed] = Device{}
		d := &early[earlyUsed]
		earlyUsed++
		return d
	}
	return &Device{}
}

// Register creates a device node under parent (nil for the tree root) and
// adds it to the flat registry (§4.10 register).
func Register(name string, path ustr.Ustr, compatible []ustr.Ustr, typ defs.DevType, parent *Device) *Device {
	regMu.Lock()
	d := allocDevice()
	d.Name = name
	d.Path = path
	d.Compatible = compatible
	d.Type = typ
	d.ID = nextID
	nextID++
	d.Parent = parent
	all = append(all, d)
	if parent != nil {
		parent.Children = append(parent.Children, d)
	} else if Root == nil {
		Root = d
	}
	regMu.Unlock()
	return d
}

// Unregister removes d from the registry and from its parent's child list
// (§4.10 unregister).
func Unregister(d *Device) {
	regMu.Lock()
	defer regMu.Unlock()
	for i, x := range all {
		if x == d {
			all = append(all[:i], all[i+1:]...)
			break
		}
	}
	if d.Parent != nil {
		p := d.Parent
		for i, c := range p.Children {
			if c == d {
				p.Children = append(p.Children[:i], p.Children[i+1:]...)
				break
			}
		}
	}
}

// MigrateToPermanent copies every bump-pool-backed device node into
// normally allocated storage and fixes up parent/child pointers to the new
// addresses, idempotent once already migrated (§4.10 migrate_to_permanent:
// "early discovery ... before slab is available" then "permanent
// migration").
func MigrateToPermanent() {
	regMu.Lock()
	defer regMu.Unlock()
	if migrated {
		return
	}
	remap := make(map[*Device]*Device, len(all))
	for _, d := range all {
		nd := new(Device)
		nd.Name = d.Name
		nd.Path = d.Path
		nd.Compatible = d.Compatible
		nd.Type = d.Type
		nd.ID = d.ID
		nd.Parent = d.Parent
		nd.Children = append([]*Device(nil), d.Children...)
		nd.Resources = append([]Resource(nil), d.Resources...)
		nd.DriverData = d.DriverData
		nd.Active = d.Active
		nd.Suspended = d.Suspended
		remap[d] = nd
	}
	for _, nd := range remap {
		if nd.Parent != nil {
			nd.Parent = remap[nd.Parent]
		}
		for i, c := range nd.Children {
			nd.Children[i] = remap[c]
		}
	}
	newAll := make([]*Device, len(all))
	for i, d := range all {
		newAll[i] = remap[d]
	}
	all = newAll
	if Root != nil {
		Root = remap[Root]
	}
	migrated = true
}

// IsMigrated reports whether MigrateToPermanent has run.
func IsMigrated() bool {
	regMu.Lock()
	defer regMu.Unlock()
	return migrated
}

// FindByName returns the first device whose Name matches.
func FindByName(name string) (*Device, bool) {
	regMu.Lock()
	defer regMu.Unlock()
	for _, d := range all {
		if d.Name == name {
			return d, true
		}
	}
	return nil, false
}

// FindByCompatible returns the first device with a compatible entry
// matching pattern (glob via ustr.MatchGlob, §4.10 find_by_compatible).
func FindByCompatible(pattern string) (*Device, bool) {
	regMu.Lock()
	defer regMu.Unlock()
	for _, d := range all {
		for _, c := range d.Compatible {
			if c.MatchGlob(pattern) {
				return d, true
			}
		}
	}
	return nil, false
}

// FindByType returns every registered device of the given type.
func FindByType(typ defs.DevType) []*Device {
	regMu.Lock()
	defer regMu.Unlock()
	var out []*Device
	for _, d := range all {
		if d.Type == typ {
			out = append(out, d)
		}
	}
	return out
}

// FindByID returns the device with the given registry ID.
func FindByID(id uint) (*Device, bool) {
	regMu.Lock()
	defer regMu.Unlock()
	for _, d := range all {
		if d.ID == id {
			return d, true
		}
	}
	return nil, false
}

// ForEachChild calls fn for every direct child of d (§4.10 for_each_child).
func ForEachChild(d *Device, fn func(*Device)) {
	regMu.Lock()
	children := append([]*Device(nil), d.Children...)
	regMu.Unlock()
	for _, c := range children {
		fn(c)
	}
}

// GetDriverData returns d's opaque driver-private pointer.
func GetDriverData(d *Device) interface{} {
	regMu.Lock()
	defer regMu.Unlock()
	return d.DriverData
}

// SetDriverData sets d's opaque driver-private pointer.
func SetDriverData(d *Device, data interface{}) {
	regMu.Lock()
	d.DriverData = data
	regMu.Unlock()
}

// Activate marks d active; double-activation is a conflict (§4.10
// activate/deactivate).
func Activate(d *Device) defs.Err_t {
	regMu.Lock()
	defer regMu.Unlock()
	if d.Active {
		return defs.EEXIST
	}
	d.Active = true
	return 0
}

// Deactivate marks d inactive; deactivating an inactive device is a no-op
// success, matching the idempotent teardown behaviour the core relies on
// during error unwinding.
func Deactivate(d *Device) defs.Err_t {
	regMu.Lock()
	defer regMu.Unlock()
	d.Active = false
	return 0
}

// Suspend marks an active device suspended.
func Suspend(d *Device) defs.Err_t {
	regMu.Lock()
	defer regMu.Unlock()
	if !d.Active || d.Suspended {
		return defs.ESTATE
	}
	d.Suspended = true
	return 0
}

// Resume clears a device's suspended flag.
func Resume(d *Device) defs.Err_t {
	regMu.Lock()
	defer regMu.Unlock()
	if !d.Suspended {
		return defs.ESTATE
	}
	d.Suspended = false
	return 0
}

// AddResource appends r to d's resource list.
func AddResource(d *Device, r Resource) {
	regMu.Lock()
	d.Resources = append(d.Resources, r)
	regMu.Unlock()
}

// AddMemResource attaches a MEM resource, rejecting one that doesn't fit
// within the parent's own MEM window or that overlaps a sibling's (§4.10:
// "hierarchical containment is enforced").
func AddMemResource(d *Device, name string, start, size uintptr, flags defs.ResFlag) defs.Err_t {
	regMu.Lock()
	if d.Parent != nil {
		if !fitsWithinParent(d.Parent, start, size) {
			regMu.Unlock()
			return defs.ENOSPC
		}
		for _, sib := range d.Parent.Children {
			if sib == d {
				continue
			}
			for _, r := range sib.Resources {
				if r.Type == defs.ResMem && overlaps(r.Start, r.Size, start, size) {
					regMu.Unlock()
					return defs.EEXIST
				}
			}
		}
	}
	d.Resources = append(d.Resources, Resource{Type: defs.ResMem, Name: name, Start: start, Size: size, Flags: flags})
	regMu.Unlock()
	return 0
}

func overlaps(aStart, aSize, bStart, bSize uintptr) bool {
	return aStart < bStart+bSize && bStart < aStart+aSize
}

func fitsWithinParent(parent *Device, start, size uintptr) bool {
	hasMem := false
	for _, r := range parent.Resources {
		if r.Type == defs.ResMem {
			hasMem = true
			if start >= r.Start && start+size <= r.Start+r.Size {
				return true
			}
		}
	}
	return !hasMem // no MEM resource on parent: nothing to contain against
}

// AddIRQResource attaches an IRQ resource with its trigger mode
// (§4.10 add_irq_resource).
func AddIRQResource(d *Device, name string, irqNum uint32, trigger defs.TriggerType, flags defs.ResFlag) {
	AddResource(d, Resource{Type: defs.ResIRQ, Name: name, IRQNum: irqNum, Trigger: trigger, Flags: flags})
}

// GetResource returns the index'th resource of the given type on d (§4.10
// get_resource).
func GetResource(d *Device, typ defs.ResType, index int) (*Resource, bool) {
	regMu.Lock()
	defer regMu.Unlock()
	n := 0
	for i := range d.Resources {
		if d.Resources[i].Type == typ {
			if n == index {
				return &d.Resources[i], true
			}
			n++
		}
	}
	return nil, false
}

// GetResourceByName returns the named resource on d (§4.10
// get_resource_by_name).
func GetResourceByName(d *Device, name string) (*Resource, bool) {
	regMu.Lock()
	defer regMu.Unlock()
	for i := range d.Resources {
		if d.Resources[i].Name == name {
			return &d.Resources[i], true
		}
	}
	return nil, false
}

// PrintTree walks the tree from d (or from Root if d is nil) calling fn
// with each node and its depth, for the boot-log device dump (§4.10
// print_tree).
func PrintTree(d *Device, depth int, fn func(*Device, int)) {
	if d == nil {
		d = Root
		if d == nil {
			return
		}
	}
	fn(d, depth)
	regMu.Lock()
	children := append([]*Device(nil), d.Children...)
	regMu.Unlock()
	for _, c := range children {
		PrintTree(c, depth+1, fn)
	}
}

// classify maps a node's compatible strings to a DevType the way the
// architecture-specific compatible-string table would (§4.10: "arm,gic-v3"
// -> DevIRQChip etc.). Kept as a small built-in table here since the core
// has no separate per-arch registry for it yet.
func classify(compatible []ustr.Ustr) defs.DevType {
	table := []struct {
		pattern string
		typ     defs.DevType
	}{
		{"arm,cortex-a*", defs.DevCPU},
		{"riscv", defs.DevCPU},
		{"arm,gic-v2", defs.DevIRQChip},
		{"arm,gic-v3", defs.DevIRQChip},
		{"riscv,plic0", defs.DevIRQChip},
		{"riscv,cpu-intc", defs.DevIRQChip},
		{"qemu,riscv-aplic", defs.DevIRQChip},
		{"arm,pl011", defs.DevUART},
		{"ns16550*", defs.DevUART},
		{"arm,armv7-timer", defs.DevTimer},
		{"arm,armv8-timer", defs.DevTimer},
		{"simple-bus", defs.DevBus},
	}
	for _, c := range compatible {
		for _, row := range table {
			if c.MatchGlob(row.pattern) {
				return row.typ
			}
		}
	}
	return defs.DevUnknown
}

// PopulateFromFDT walks the boot FDT and registers one Device per struct
// node, attaching MEM resources from "reg" and IRQ resources from
// "interrupts" (generic one-cell form; GIC/PLIC/APLIC-specific cell
// decoding is layered on top by package irqdomain once domains exist)
// (§4.10: "Parses the FDT into an in-memory tree and a flat registry
// list").
func PopulateFromFDT(mgr *fdt.Manager) {
	byPath := map[string]*Device{}
	mgr.Walk(func(n fdt.Node) {
		var parent *Device
		if n.Depth > 0 {
			parentPath := n.Path[:len(n.Path)-len(n.Name)-1]
			if len(parentPath) == 0 {
				parentPath = ustr.MkUstrRoot()
			}
			parent = byPath[parentPath.String()]
		}
		d := Register(n.Name.String(), n.Path, nil, defs.DevUnknown, parent)
		byPath[n.Path.String()] = d
	}, func(n fdt.Node, p fdt.Prop) {
		d, ok := byPath[n.Path.String()]
		if !ok {
			return
		}
		switch p.Name.String() {
		case "compatible":
			d.Compatible = ustr.SplitNUL(p.Value)
			d.Type = classify(d.Compatible)
		case "reg":
			for i := 0; i+16 <= len(p.Value); i += 16 {
				base := beUint64(p.Value[i : i+8])
				size := beUint64(p.Value[i+8 : i+16])
				AddMemResource(d, "reg", uintptr(base), uintptr(size), defs.ResFlagNone)
			}
		case "interrupts":
			for i := 0; i+4 <= len(p.Value); i += 4 {
				num := beUint32(p.Value[i : i+4])
				AddIRQResource(d, "interrupts", num, defs.TriggerLevelHigh, defs.ResFlagNone)
			}
		}
	})
}

func beUint32(b []byte) uint32 {
	return uint32(b[0])<<24 | uint32(b[1])<<16 | uint32(b[2])<<8 | uint32(b[3])
}

func beUint64(b []byte) uint64 {
	return uint64(beUint32(b[0:4]))<<32 | uint64(beUint32(b[4:8]))
}
