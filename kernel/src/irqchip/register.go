package irqchip

import (
	"defs"
	"device"
	"driver"
	"irqdomain"
)

// DefaultDomain is the irq domain irqchip_init wires up for the interrupt
// controller driver_probe_device picked a winner for (§6 control flow:
// "irqchip_init wires default domain"). Exactly one controller is
// expected to win on a given boot; request_irq callers that don't hold
// their own domain reference use this one.
var DefaultDomain *irqdomain.Domain

// probeCompatible returns true if dev's compatible list contains name.
func probeCompatible(d *device.Device, name string) bool {
	for _, c := range d.Compatible {
		if string(c) == name {
			return true
		}
	}
	return false
}

func memResourceBase(d *device.Device, index int) (uintptr, bool) {
	r, ok := device.GetResource(d, defs.ResMem, index)
	if !ok {
		return 0, false
	}
	if r.MappedAddr != 0 {
		return r.MappedAddr, true
	}
	return r.Start, true
}

// RegisterDrivers installs one ClassIRQChip driver entry per supported
// compatible string, each probing for its binding and attaching the
// matching chip type, mirroring how a UART or timer driver module would
// self-register (§4.12).
func RegisterDrivers() {
	driver.Register(driver.ClassIRQChip, &driver.Driver{
		Name: "gicv2", Priority: 100,
		Probe:  func(d *device.Device) int { return score(d, "arm,gic-v2") },
		Attach: attachGICv2,
	})
	driver.Register(driver.ClassIRQChip, &driver.Driver{
		Name: "gicv3", Priority: 100,
		Probe:  func(d *device.Device) int { return score(d, "arm,gic-v3") },
		Attach: attachGICv3,
	})
	driver.Register(driver.ClassIRQChip, &driver.Driver{
		Name: "riscv-intc", Priority: 90,
		Probe:  func(d *device.Device) int { return score(d, "riscv,cpu-intc") },
		Attach: attachINTC,
	})
	driver.Register(driver.ClassIRQChip, &driver.Driver{
		Name: "riscv-plic", Priority: 100,
		Probe:  func(d *device.Device) int { return score(d, "riscv,plic0") },
		Attach: attachPLIC,
	})
	driver.Register(driver.ClassIRQChip, &driver.Driver{
		Name: "riscv-aplic", Priority: 100,
		Probe:  func(d *device.Device) int { return score(d, "qemu,riscv-aplic") },
		Attach: attachAPLIC,
	})
}

func score(d *device.Device, compatible string) int {
	if probeCompatible(d, compatible) {
		return 100
	}
	return 0
}

func attachGICv2(d *device.Device) defs.Err_t {
	distBase, ok := memResourceBase(d, 0)
	if !ok {
		return defs.ENODEV
	}
	cpuBase, ok := memResourceBase(d, 1)
	if !ok {
		return defs.ENODEV
	}
	g := &GICv2{}
	g.Probe(distBase, cpuBase)
	g.DistInit()
	g.CPUInit()
	DefaultDomain = irqdomain.NewLinear(g.Name(), uint32(g.NumIRQs), g, irqdomain.Ops{})
	device.SetDriverData(d, g)
	return 0
}

func attachGICv3(d *device.Device) defs.Err_t {
	distBase, ok := memResourceBase(d, 0)
	if !ok {
		return defs.ENODEV
	}
	redisBase, ok := memResourceBase(d, 1)
	if !ok {
		return defs.ENODEV
	}
	g := &GICv3{}
	g.Probe(distBase, redisBase)
	g.DistInit()
	g.RedisInit()
	g.CPUInit()
	DefaultDomain = irqdomain.NewLinear(g.Name(), uint32(g.NumIRQs), g, irqdomain.Ops{})
	device.SetDriverData(d, g)
	return 0
}

func attachINTC(d *device.Device) defs.Err_t {
	c := &INTC{}
	// Hwirq space is the fixed set of architectural cause codes, so a
	// small LINEAR domain indexed up through the external-interrupt
	// cause (9) covers it without a separate sparse allocator.
	DefaultDomain = irqdomain.NewLinear(c.Name(), CauseSExt+1, c, irqdomain.Ops{})
	device.SetDriverData(d, c)
	return 0
}

func attachPLIC(d *device.Device) defs.Err_t {
	base, ok := memResourceBase(d, 0)
	if !ok {
		return defs.ENODEV
	}
	p := &PLIC{Base: base, Context: 1}
	p.SetThreshold(0)
	var parent *irqdomain.Domain
	if intc, ok := device.FindByCompatible("riscv,cpu-intc"); ok {
		if c, ok := device.GetDriverData(intc).(*INTC); ok {
			parent = irqdomain.NewLinear(c.Name(), CauseSExt+1, c, irqdomain.Ops{})
		}
	}
	if parent != nil {
		DefaultDomain = irqdomain.NewHierarchy(p.Name(), parent, p, irqdomain.Ops{})
	} else {
		DefaultDomain = irqdomain.NewLinear(p.Name(), 1024, p, irqdomain.Ops{})
	}
	device.SetDriverData(d, p)
	return 0
}

func attachAPLIC(d *device.Device) defs.Err_t {
	base, ok := memResourceBase(d, 0)
	if !ok {
		return defs.ENODEV
	}
	a := &APLIC{Base: base, IDC: 0}
	a.EnableDelivery()
	a.SetThreshold(0)
	DefaultDomain = irqdomain.NewLinear(a.Name(), 1024, a, irqdomain.Ops{})
	device.SetDriverData(d, a)
	return 0
}
