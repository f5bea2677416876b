// Package driver is the driver registry and probe/attach engine (§4.12).
// The teacher's compile-time linker-section trick for collecting driver
// entries has no Go equivalent (Go has no custom linker sections), so each
// driver instead self-registers its class entry from a package init()
// function appending to a class-keyed slice; priority ordering and the
// probe/attach protocol itself are otherwise unchanged.
package driver

import (
	"sort"
	"sync"

	"defs"
	"device"
)

// Class names the linker section a driver entry would have lived in
// (§4.12: "one per class (uart_drivers, irqchip_drivers, ...)").
type Class string

const (
	ClassUART    Class = "uart_drivers"
	ClassIRQChip Class = "irqchip_drivers"
	ClassTimer   Class = "timer_drivers"
	ClassBus     Class = "bus_drivers"
	ClassMisc    Class = "misc_drivers"
)

// Driver is one entry a module registers, carrying the name and priority
// of the teacher's {init_fn, priority, name} section entries (§4.12), plus
// the probe/attach pair driver_probe_device calls. It has no init function
// field; InitClass takes the init function as its own argument.
type Driver struct {
	Name     string
	Priority int
	Probe    func(d *device.Device) int
	Attach   func(d *device.Device) defs.Err_t
}

var (
	mu       sync.Mutex
	sections = map[Class][]Driver{}
	byClass  = map[Class][]*Driver{} // registered (driver_register'd) entries
)

// RegisterEntry adds drv to cls's collected entry list, called from a
// package init() in place of the teacher's linker-section placement
// (§4.12: "drivers register themselves via compile-time entries").
func RegisterEntry(cls Class, drv Driver) {
	mu.Lock()
	sections[cls] = append(sections[cls], drv)
	mu.Unlock()
}

// Reset clears both the collected entries and the registered drivers, for
// test setup.
func Reset() {
	mu.Lock()
	sections = map[Class][]Driver{}
	byClass = map[Class][]*Driver{}
	mu.Unlock()
}

// InitClass iterates cls's collected entries in descending priority order
// and calls each entry's init function, which is expected to call
// Register on itself (§4.12: "iterates each section in priority order and
// calls init_fn, which performs driver_register").
func InitClass(cls Class, initFn func(Driver)) {
	mu.Lock()
	entries := append([]Driver(nil), sections[cls]...)
	mu.Unlock()
	sort.SliceStable(entries, func(i, j int) bool { return entries[i].Priority > entries[j].Priority })
	for _, e := range entries {
		initFn(e)
	}
}

// Register inserts drv into cls's active driver list, keeping descending
// priority order (§4.12 driver_register).
func Register(cls Class, drv *Driver) {
	mu.Lock()
	defer mu.Unlock()
	list := byClass[cls]
	i := sort.Search(len(list), func(i int) bool { return list[i].Priority < drv.Priority })
	list = append(list, nil)
	copy(list[i+1:], list[i:])
	list[i] = drv
	byClass[cls] = list
}

// Drivers returns the currently registered drivers for cls, in priority
// order.
func Drivers(cls Class) []*Driver {
	mu.Lock()
	defer mu.Unlock()
	return append([]*Driver(nil), byClass[cls]...)
}

// ProbeDevice calls Probe on every registered driver of cls against dev,
// keeps the highest-scoring one, and calls its Attach (§4.12
// driver_probe_device). A probe score of 0 or less means "no match"; ties
// keep the earlier (higher or equal priority) driver. Returns ENODEV if no
// driver claims the device.
func ProbeDevice(cls Class, dev *device.Device) defs.Err_t {
	mu.Lock()
	candidates := append([]*Driver(nil), byClass[cls]...)
	mu.Unlock()

	var best *Driver
	bestScore := 0
	for _, drv := range candidates {
		if drv.Probe == nil {
			continue
		}
		score := drv.Probe(dev)
		if score > bestScore {
			bestScore = score
			best = drv
		}
	}
	if best == nil {
		return defs.ENODEV
	}
	if best.Attach == nil {
		return defs.EINVAL
	}
	return best.Attach(dev)
}
