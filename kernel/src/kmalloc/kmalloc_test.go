package kmalloc

import (
	"sync"
	"testing"
	"unsafe"

	"bootmem"
	"buddy"
	"defs"
	"hashtable"
	"mem"
	"slab"
)

var fakeRAM [48 << 20]byte

func setup(t *testing.T) {
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
	slab.Lookup = hashtable.New()
	initOnce = sync.Once{}
	Init()
}

func TestSmallAllocFree(t *testing.T) {
	setup(t)
	ptr := Kmalloc(48, KNoSleep)
	if ptr == 0 {
		t.Fatal("expected allocation")
	}
	if err := Kfree(ptr); err != 0 {
		t.Fatalf("Kfree: %v", err)
	}
}

func TestLargeAllocFree(t *testing.T) {
	setup(t)
	ptr := Kmalloc(200000, KNoSleep)
	if ptr == 0 {
		t.Fatal("expected large allocation")
	}
	h := readLargeHeader(ptr - largeHeaderSize)
	if h.magic != largeMagicLive {
		t.Fatalf("expected live magic, got %#x", h.magic)
	}
	if err := Kfree(ptr); err != 0 {
		t.Fatalf("Kfree: %v", err)
	}
	if h.magic != largeMagicFree {
		t.Fatalf("expected free magic after Kfree, got %#x", h.magic)
	}
}

func TestLargeDoubleFreeDetected(t *testing.T) {
	setup(t)
	ptr := Kmalloc(200000, KNoSleep)
	Kfree(ptr)
	if err := Kfree(ptr); err != defs.EINVAL {
		t.Fatalf("expected EINVAL on double free, got %v", err)
	}
}

func TestKzeroFlag(t *testing.T) {
	setup(t)
	ptr := Kmalloc(64, KZero)
	b := unsafe.Slice((*byte)(ptrAt(ptr)), 64)
	for i, v := range b {
		if v != 0 {
			t.Fatalf("byte %d not zeroed: %d", i, v)
		}
	}
}

func TestKcallocOverflowGuard(t *testing.T) {
	setup(t)
	huge := ^uintptr(0)
	if ptr := Kcalloc(2, huge, KNoSleep); ptr != 0 {
		t.Fatal("expected overflow to fail allocation")
	}
}

func TestKreallocGrowCopiesData(t *testing.T) {
	setup(t)
	ptr := Kmalloc(16, KNoSleep)
	b := unsafe.Slice((*byte)(ptrAt(ptr)), 16)
	for i := range b {
		b[i] = byte(i + 1)
	}
	grown := Krealloc(ptr, 128, KNoSleep)
	if grown == 0 {
		t.Fatal("expected grown allocation")
	}
	gb := unsafe.Slice((*byte)(ptrAt(grown)), 16)
	for i := range gb {
		if gb[i] != byte(i+1) {
			t.Fatalf("byte %d not preserved across realloc: got %d", i, gb[i])
		}
	}
}

func TestKreallocShrinkReturnsSamePointer(t *testing.T) {
	setup(t)
	ptr := Kmalloc(128, KNoSleep)
	if got := Krealloc(ptr, 16, KNoSleep); got != ptr {
		t.Fatalf("expected shrink to return the same pointer, got %#x want %#x", got, ptr)
	}
}

func TestKmallocTypeAccounting(t *testing.T) {
	setup(t)
	typ := RegisterType("test-type", "unit test tag")
	ptr := KmallocType(64, typ, KNoSleep)
	if ptr == 0 {
		t.Fatal("expected allocation")
	}
	if typ.Allocs != 1 || typ.Bytes != 64 {
		t.Fatalf("unexpected counters: %+v", typ)
	}
	KfreeType(ptr, typ, 64)
	if typ.Frees != 1 || typ.Bytes != 0 {
		t.Fatalf("unexpected counters after free: %+v", typ)
	}
}
