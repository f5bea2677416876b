package mem

import (
	"testing"
	"unsafe"

	"bootmem"
	"defs"
)

// fakeRAM backs a pretend physical address range for tests: its own
// address stands in for a physical base, the same trick the bootstrap
// allocator relies on before any MMU remapping exists.
var fakeRAM [16 << 20]byte

func fakePhysBase() uintptr {
	return uintptr(unsafe.Pointer(&fakeRAM[0]))
}

func freshPhysmem(t *testing.T) (*Physmem_t, defs.MemoryInfo) {
	t.Helper()
	base := fakePhysBase()
	info := defs.MemoryInfo{Banks: []defs.MemBank{{Base: base, Size: uintptr(len(fakeRAM))}}}
	phys := &Physmem_t{}
	var boot bootmem.Allocator
	// reserve the first 1 MiB for the bitmap carve-out window.
	boot.Init(base, base+1<<20)
	if err := phys.Init(Pa_t(base)+Pa_t(PGSIZE), info, &boot); err != 0 {
		t.Fatalf("Init failed: %v", err)
	}
	return phys, info
}

func TestInitReservesKernelFootprint(t *testing.T) {
	phys, info := freshPhysmem(t)
	base := Pa_t(info.Banks[0].Base)
	if phys.Is_available(base) {
		t.Fatal("expected first frame (below kernel end) to be reserved")
	}
}

func TestAllocFreeRoundTrip(t *testing.T) {
	phys, _ := freshPhysmem(t)
	pa := phys.Alloc_page()
	if pa == 0 {
		t.Fatal("expected a free frame")
	}
	if phys.Is_available(pa) {
		t.Fatal("freshly allocated frame should not be available")
	}
	phys.Free_page(pa)
	if !phys.Is_available(pa) {
		t.Fatal("expected frame to be available after free")
	}
}

func TestDoubleFreeIsCountedNotFatal(t *testing.T) {
	phys, _ := freshPhysmem(t)
	pa := phys.Alloc_page()
	phys.Free_page(pa)
	before := phys.DoubleFrees.Get()
	phys.Free_page(pa)
	if phys.DoubleFrees.Get() != before+1 {
		t.Fatal("expected double free counter to increment")
	}
}

func TestAllocPagesContiguous(t *testing.T) {
	phys, _ := freshPhysmem(t)
	pa := phys.Alloc_pages(8)
	if pa == 0 {
		t.Fatal("expected contiguous run")
	}
	for i := 0; i < 8; i++ {
		if phys.Is_available(pa + Pa_t(i)<<PGSHIFT) {
			t.Fatalf("frame %d of run should be reserved", i)
		}
	}
	phys.Free_pages(pa, 8)
	for i := 0; i < 8; i++ {
		if !phys.Is_available(pa + Pa_t(i)<<PGSHIFT) {
			t.Fatalf("frame %d of run should be free after Free_pages", i)
		}
	}
}

func TestReserveRegion(t *testing.T) {
	phys, info := freshPhysmem(t)
	base := Pa_t(info.Banks[0].Base)
	mid := base + 4<<20
	phys.Reserve_region(mid, 1<<20, "test-region")
	if phys.Is_available(mid) {
		t.Fatal("expected reserved region to be unavailable")
	}
}

func TestGetStatsAccounting(t *testing.T) {
	phys, _ := freshPhysmem(t)
	before := phys.Get_stats()
	pa := phys.Alloc_page()
	after := phys.Get_stats()
	if after.FreeFrames != before.FreeFrames-1 {
		t.Fatalf("expected free count to drop by one: before=%d after=%d", before.FreeFrames, after.FreeFrames)
	}
	phys.Free_page(pa)
}

func TestDmapRoundTrip(t *testing.T) {
	phys, info := freshPhysmem(t)
	base := Pa_t(info.Banks[0].Base)
	end := base + Pa_t(info.Banks[0].Size)
	phys.SetDmap(base, end)
	pa := phys.Alloc_page()
	va := phys.Dmap(pa)
	if got := phys.Dmap_v2p(va); got != pa {
		t.Fatalf("dmap round trip: want %#x got %#x", pa, got)
	}
}
