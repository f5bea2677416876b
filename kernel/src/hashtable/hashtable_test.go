package hashtable

import "testing"

func TestInsertLookupDelete(t *testing.T) {
	tbl := New()
	tbl.Insert(42, Entry{PageAddr: 0x42000, Extent: 0x1000})
	e, ok := tbl.Lookup(42)
	if !ok || e.PageAddr != 0x42000 {
		t.Fatalf("expected entry, got %+v ok=%v", e, ok)
	}
	tbl.Delete(42)
	if _, ok := tbl.Lookup(42); ok {
		t.Fatal("expected entry to be gone after delete")
	}
}

func TestOverwriteExistingFrame(t *testing.T) {
	tbl := New()
	tbl.Insert(7, Entry{PageAddr: 0x7000})
	tbl.Insert(7, Entry{PageAddr: 0x7001})
	e, ok := tbl.Lookup(7)
	if !ok || e.PageAddr != 0x7001 {
		t.Fatalf("expected overwritten entry, got %+v", e)
	}
	if tbl.Count() != 1 {
		t.Fatalf("expected count 1 after overwrite, got %d", tbl.Count())
	}
}

func TestMigrateToDynamicPreservesEntries(t *testing.T) {
	tbl := New()
	for i := uint32(0); i < 200; i++ {
		tbl.Insert(i, Entry{PageAddr: uintptr(i) << 12})
	}
	if tbl.IsDynamic() {
		t.Fatal("expected static table before migration")
	}
	tbl.MigrateToDynamic(128)
	if !tbl.IsDynamic() {
		t.Fatal("expected dynamic table after migration")
	}
	for i := uint32(0); i < 200; i++ {
		e, ok := tbl.Lookup(i)
		if !ok || e.PageAddr != uintptr(i)<<12 {
			t.Fatalf("frame %d lost across migration: %+v ok=%v", i, e, ok)
		}
	}
}

func TestDynamicTableGrowsUnderLoad(t *testing.T) {
	tbl := New()
	tbl.MigrateToDynamic(8)
	for i := uint32(0); i < 100; i++ {
		tbl.Insert(i, Entry{PageAddr: uintptr(i)})
	}
	if len(tbl.buckets) <= 8 {
		t.Fatalf("expected bucket growth, still at %d", len(tbl.buckets))
	}
	for i := uint32(0); i < 100; i++ {
		if _, ok := tbl.Lookup(i); !ok {
			t.Fatalf("frame %d missing after growth", i)
		}
	}
}

func TestMigrateToDynamicIsIdempotent(t *testing.T) {
	tbl := New()
	tbl.Insert(1, Entry{PageAddr: 0x1000})
	tbl.MigrateToDynamic(16)
	tbl.MigrateToDynamic(1024) // should be a no-op, not resize to 1024
	if len(tbl.buckets) != 16 {
		t.Fatalf("expected second MigrateToDynamic to be a no-op, got %d buckets", len(tbl.buckets))
	}
}
