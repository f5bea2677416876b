package vm

import (
	"testing"
	"unsafe"

	"arch"
	"arch/sim"
	"bootmem"
	"defs"
	"mem"
)

// fakeRAM stands in for "physical" memory: its own address is used as the
// physical base so that early, pre-DMAP table/bitmap access (a direct
// uintptr-to-pointer cast) dereferences real backing storage during tests.
var fakeRAM [16 << 20]byte

func roundUp(v, b uintptr) uintptr { return (v + b - 1) &^ (b - 1) }

func setupSim(t *testing.T) defs.MemoryInfo {
	t.Helper()
	sim.Reset()
	arch.Current = sim.Ops
	t.Cleanup(func() { arch.Current = nil })

	raw := uintptr(unsafe.Pointer(&fakeRAM[0]))
	base := roundUp(raw, 2<<20) // 2 MiB align so large-block mapping tests have room to work with
	end := raw + uintptr(len(fakeRAM))

	mem.Physmem = &mem.Physmem_t{}
	info := defs.MemoryInfo{Banks: []defs.MemBank{{Base: base, Size: end - base}}}
	var boot bootmem.Allocator
	boot.Init(raw, base)
	if err := mem.Physmem.Init(mem.Pa_t(base), info, &boot); err != 0 {
		t.Fatalf("pmm init: %v", err)
	}
	kernel = Vm_t{}
	if err := Init(); err != 0 {
		t.Fatalf("vm init: %v", err)
	}
	return info
}

func TestMapPageVirtToPhysRoundTrip(t *testing.T) {
	setupSim(t)
	pa := mem.Physmem.Alloc_page()
	if pa == 0 {
		t.Fatal("no free frame")
	}
	va := uintptr(0x40201000)
	if err := MapPage(va, pa, arch.RW); err != 0 {
		t.Fatalf("MapPage: %v", err)
	}
	if got := VirtToPhys(va); got != pa {
		t.Fatalf("want %#x got %#x", pa, got)
	}
}

func TestMapPageCollision(t *testing.T) {
	setupSim(t)
	pa1 := mem.Physmem.Alloc_page()
	pa2 := mem.Physmem.Alloc_page()
	va := uintptr(0x40202000)
	if err := MapPage(va, pa1, arch.RW); err != 0 {
		t.Fatalf("first map: %v", err)
	}
	if err := MapPage(va, pa2, arch.RW); err != defs.ESTATE {
		t.Fatalf("expected ESTATE on collision, got %v", err)
	}
}

func TestUnmapPage(t *testing.T) {
	setupSim(t)
	pa := mem.Physmem.Alloc_page()
	va := uintptr(0x40203000)
	MapPage(va, pa, arch.RW)
	UnmapPage(va)
	if got := VirtToPhys(va); got != 0 {
		t.Fatalf("expected unmapped, got %#x", got)
	}
}

func TestVirtToPhysUnmapped(t *testing.T) {
	setupSim(t)
	if got := VirtToPhys(0x7fffffff000); got != 0 {
		t.Fatalf("expected 0 for unmapped va, got %#x", got)
	}
}

func TestMapRangeUsesLargeBlocks(t *testing.T) {
	info := setupSim(t)
	pa := mem.Physmem.Alloc_pages(512) // 512 * 4 KiB = 2 MiB
	if pa == 0 {
		t.Fatal("no 2 MiB run available")
	}
	if uintptr(pa)%(2<<20) != 0 {
		t.Skip("allocator did not return a 2 MiB aligned run this time")
	}
	_ = info
	va := uintptr(0x80000000) // 2 MiB aligned
	size := uintptr(2 << 20)
	if err := MapRange(va, pa, size, arch.RW); err != 0 {
		t.Fatalf("MapRange: %v", err)
	}
	if got := VirtToPhys(va); got != pa {
		t.Fatalf("want %#x got %#x", pa, got)
	}
	if got := VirtToPhys(va + 0x1000); got != pa+0x1000 {
		t.Fatalf("offset within block: want %#x got %#x", pa+0x1000, got)
	}
}

func TestCreateDmapRoundTrip(t *testing.T) {
	info := setupSim(t)
	if err := CreateDmap(info); err != 0 {
		t.Fatalf("CreateDmap: %v", err)
	}
	pa := mem.Physmem.Alloc_page()
	va := mem.Physmem.Dmap(pa)
	if got := mem.Physmem.Dmap_v2p(va); got != pa {
		t.Fatalf("dmap round trip: want %#x got %#x", pa, got)
	}
}
