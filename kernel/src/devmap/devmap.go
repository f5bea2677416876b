// Package devmap allocates the kernel virtual-address window each MMIO
// device resource is mapped at (§4.11). Drivers must dereference through
// the assigned VA (Resource.MappedAddr), never the raw physical Start, the
// same physical/virtual separation package vm enforces for the direct map.
package devmap

import (
	"sync"

	"arch"
	"defs"
	"device"
	"mem"
	"vm"
)

// DeviceVirtBase is the first virtual address handed out for MMIO windows,
// placed well away from DmapBase and the FDT's own high mapping so the
// three carved-out regions never collide (§4.11: "above DEVICE_VIRT_BASE").
const DeviceVirtBase uintptr = 0xffff_ff00_0000_0000

var (
	mu   sync.Mutex
	next = DeviceVirtBase
)

// MapResource assigns the next free VA window to a device MEM resource and
// maps it read/write/device-strongly-ordered (§4.11 devmap). Idempotent:
// calling it again on an already-mapped resource returns success and leaves
// the existing MappedAddr in place without remapping.
func MapResource(r *device.Resource) defs.Err_t {
	if r.Type != defs.ResMem {
		return defs.EINVAL
	}
	if r.MappedAddr != 0 {
		return 0
	}
	size := (r.Size + uintptr(mem.PGSIZE) - 1) &^ (uintptr(mem.PGSIZE) - 1)
	if size == 0 {
		size = uintptr(mem.PGSIZE)
	}

	mu.Lock()
	va := next
	next += size
	mu.Unlock()

	if err := vm.MapRange(va, mem.Pa_t(r.Start), size, arch.Read|arch.Write|arch.Device); err != 0 {
		return err
	}
	r.MappedAddr = va + (r.Start & (uintptr(mem.PGSIZE) - 1))
	return 0
}

// MapAllDeviceResources walks d's MEM resources (and its children's,
// recursively) mapping each one that hasn't been mapped yet.
func MapAllDeviceResources(d *device.Device) defs.Err_t {
	for i := range d.Resources {
		if d.Resources[i].Type != defs.ResMem {
			continue
		}
		if err := MapResource(&d.Resources[i]); err != 0 {
			return err
		}
	}
	var err defs.Err_t
	device.ForEachChild(d, func(c *device.Device) {
		if err == 0 {
			err = MapAllDeviceResources(c)
		}
	})
	return err
}

// Reset rewinds the allocator, for test setup only.
func Reset() {
	mu.Lock()
	next = DeviceVirtBase
	mu.Unlock()
}
