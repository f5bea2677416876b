// Package boot is the Go side of the entry contract in §6: the assembly
// boot stub (external, not part of this module) drops into init_arm64 or
// init_riscv with the MMU already on, BSS zeroed and a stack set, and both
// call kernel_main(dtb_phys). KernelMain is that call. It owns the fixed
// bring-up order every component's own doc comment already assumes but
// none of them enforce on its own: FDT -> PMM -> VMM -> DMAP/FDT remap ->
// device tree -> devmap -> driver registry (UART, then IRQCHIP) ->
// kmalloc.
package boot

import (
	"arch"
	"defs"
	"device"
	"devmap"
	"driver"
	"fdt"
	"irqchip"
	"klog"
	"kmalloc"
	"mem"
	"memmap"
	"vm"
)

// KernelEndPhys is the physical address one past the kernel image's last
// byte, supplied by the linker script (external to this module) before
// the boot stub calls KernelMain.
var KernelEndPhys uintptr

// KernelMain is the Go-side entry point both init_arm64 and init_riscv
// call once their own architecture setup is done (§6 Entry contract).
// arch.Init must already have run so arch.Current is non-nil.
func KernelMain(dtbPhys uintptr) {
	if arch.Current == nil {
		panic("boot: arch.Current not set before KernelMain")
	}

	if err := fdt.Boot.Init(dtbPhys); err != 0 {
		panic("boot: fdt init failed, bad magic")
	}
	fdt.Boot.ReservePages()
	klog.Infof("boot: fdt at phys=%#x size=%#x", fdt.Boot.GetPhys(), fdt.Boot.GetSize())

	info := fdt.Boot.GetMemoryInfo()
	if len(info.Banks) == 0 {
		panic("boot: no /memory@* banks in device tree")
	}
	for _, b := range info.Banks {
		memmap.Global.Add(b.Base, b.Size, memmap.TypeFree, 0, "ram")
	}

	var bootAlloc bootmemAllocator
	bootAlloc.init(info)

	if err := mem.Physmem.Init(mem.Pa_t(KernelEndPhys), info, bootAlloc.allocator); err != 0 {
		panic("boot: pmm init failed")
	}
	klog.Infof("boot: pmm ready, %d bank(s)", len(info.Banks))

	if err := vm.Init(); err != 0 {
		panic("boot: vmm init failed")
	}
	vm.SetRoot()
	klog.Infof("boot: vmm root installed")

	if err := vm.CreateDmap(info); err != 0 {
		panic("boot: direct map creation failed")
	}
	klog.Infof("boot: dmap live")

	if err := fdt.Boot.MapVirtual(); err != 0 {
		panic("boot: fdt virtual mapping failed")
	}
	if !fdt.Boot.VerifyIntegrity() {
		panic("boot: fdt integrity check failed after remap")
	}

	device.Reset()
	device.PopulateFromFDT(fdt.Boot)
	devmap.Reset()
	klog.Infof("boot: device tree populated")

	probeClass(driver.ClassUART, defs.DevUART)

	irqchip.RegisterDrivers()
	if !probeClass(driver.ClassIRQChip, defs.DevIRQChip) {
		panic("boot: no compatible interrupt controller found")
	}
	klog.Infof("boot: irqchip ready")

	kmalloc.Init()
	klog.Infof("boot: kmalloc ready, core bring-up complete")
}

// probeClass maps every device of typ through devmap and attaches the
// highest-scoring registered driver of cls, returning whether at least one
// device was attached.
func probeClass(cls driver.Class, typ defs.DevType) bool {
	attached := false
	for _, d := range device.FindByType(typ) {
		if err := devmap.MapAllDeviceResources(d); err != 0 {
			klog.Warnf("boot: devmap failed for %s: %v", d.Name, err)
			continue
		}
		if err := driver.ProbeDevice(cls, d); err == 0 {
			attached = true
		}
	}
	return attached
}
