package slab

import (
	"testing"
	"unsafe"

	"bootmem"
	"buddy"
	"defs"
	"hashtable"
	"mem"
)

var fakeRAM [32 << 20]byte

func setupPMM(t *testing.T) {
	t.Helper()
	base := uintptr(unsafe.Pointer(&fakeRAM[0]))
	mem.Physmem = &mem.Physmem_t{}
	info := defs.MemoryInfo{Banks: []defs.MemBank{{Base: base, Size: uintptr(len(fakeRAM))}}}
	var boot bootmem.Allocator
	boot.Init(base, base+1<<20)
	if err := mem.Physmem.Init(mem.Pa_t(base)+mem.PGOFFSET, info, &boot); err != 0 {
		t.Fatalf("pmm init: %v", err)
	}
	buddy.Buddy = buddy.New()
	Lookup = hashtable.New()
	globalMu.Lock()
	globalCache = nil
	globalMu.Unlock()
}

func TestAllocFreeRoundTrip(t *testing.T) {
	setupPMM(t)
	c := Create("test-64", 64, 8, nil, nil)
	obj := c.Alloc()
	if obj == 0 {
		t.Fatal("expected allocation")
	}
	if err := Free(obj); err != 0 {
		t.Fatalf("Free: %v", err)
	}
}

func TestObjectsDoNotAlias(t *testing.T) {
	setupPMM(t)
	c := Create("test-32", 32, 8, nil, nil)
	seen := map[uintptr]bool{}
	for i := 0; i < 64; i++ {
		obj := c.Alloc()
		if obj == 0 {
			t.Fatalf("alloc %d failed", i)
		}
		if seen[obj] {
			t.Fatalf("object %#x aliased a previous allocation", obj)
		}
		seen[obj] = true
	}
}

func TestFindCacheForObject(t *testing.T) {
	setupPMM(t)
	c := Create("test-16", 16, 8, nil, nil)
	obj := c.Alloc()
	got, ok := FindCacheForObject(obj)
	if !ok || got != c {
		t.Fatalf("expected to find owning cache, got %v ok=%v", got, ok)
	}
}

func TestFreeUnknownObjectFails(t *testing.T) {
	setupPMM(t)
	if err := Free(0x12345000); err != defs.ENODEV {
		t.Fatalf("expected ENODEV for unknown object, got %v", err)
	}
}

func TestCtorDtorCalled(t *testing.T) {
	setupPMM(t)
	var constructed, destructed int
	c := Create("test-ctor", 48, 8, func(uintptr) { constructed++ }, func(uintptr) { destructed++ })
	obj := c.Alloc()
	if constructed != 1 {
		t.Fatalf("expected ctor called once, got %d", constructed)
	}
	Free(obj)
	if destructed != 1 {
		t.Fatalf("expected dtor called once, got %d", destructed)
	}
}

func TestReapReturnsEmptySlabs(t *testing.T) {
	setupPMM(t)
	c := Create("test-reap", 64, 8, nil, nil)
	obj := c.Alloc()
	Free(obj)
	if n := c.Reap(); n != 1 {
		t.Fatalf("expected 1 slab reaped, got %d", n)
	}
}
