package radix

import "testing"

func TestInsertLookupSmallKeys(t *testing.T) {
	r := New()
	r.Insert(1, "a")
	r.Insert(5, "b")
	r.Insert(63, "c")
	if v, ok := r.Lookup(5); !ok || v != "b" {
		t.Fatalf("expected b, got %v ok=%v", v, ok)
	}
	if _, ok := r.Lookup(7); ok {
		t.Fatal("expected miss on unset key")
	}
}

func TestInsertGrowsHeightForLargeKeys(t *testing.T) {
	r := New()
	r.Insert(5, "small")
	r.Insert(1<<20, "big")
	if v, ok := r.Lookup(5); !ok || v != "small" {
		t.Fatalf("expected small key to survive growth, got %v ok=%v", v, ok)
	}
	if v, ok := r.Lookup(1 << 20); !ok || v != "big" {
		t.Fatalf("expected big key present, got %v ok=%v", v, ok)
	}
	if r.GetStats().Height == 0 {
		t.Fatal("expected tree to have grown past height 0")
	}
}

func TestDeleteAndShrink(t *testing.T) {
	r := New()
	r.Insert(1<<20, "only")
	r.Delete(1 << 20)
	if _, ok := r.Lookup(1 << 20); ok {
		t.Fatal("expected key gone after delete")
	}
	if !r.Empty() {
		t.Fatal("expected tree empty after deleting its only key")
	}
}

func TestReplace(t *testing.T) {
	r := New()
	r.Insert(9, "old")
	if !r.Replace(9, "new") {
		t.Fatal("expected replace of existing key to succeed")
	}
	if v, _ := r.Lookup(9); v != "new" {
		t.Fatalf("expected new, got %v", v)
	}
	if r.Replace(999, "nope") {
		t.Fatal("expected replace of missing key to fail")
	}
}

func TestTagSetGetClear(t *testing.T) {
	r := New()
	if r.TagSet(42, TagAllocated) {
		t.Fatal("expected tag-set on missing key to fail")
	}
	r.Insert(42, "v")
	if !r.TagSet(42, TagAllocated) {
		t.Fatal("expected tag-set on present key to succeed")
	}
	if !r.TagGet(42, TagAllocated) {
		t.Fatal("expected tag present")
	}
	r.TagClear(42, TagAllocated)
	if r.TagGet(42, TagAllocated) {
		t.Fatal("expected tag cleared")
	}
	r.TagClear(9999, TagAllocated) // no-op on missing key, must not panic
}

func TestTagPropagationAcrossGrowth(t *testing.T) {
	r := New()
	r.Insert(5, "a")
	r.TagSet(5, TagMSI)
	r.Insert(1<<18, "b") // forces the tree to grow past the original root
	if !r.TagGet(5, TagMSI) {
		t.Fatal("expected tag to survive a height increase")
	}
	if k, ok := r.NextTagged(0, TagMSI); !ok || k != 5 {
		t.Fatalf("expected NextTagged to find key 5, got %v ok=%v", k, ok)
	}
}

func TestGangLookup(t *testing.T) {
	r := New()
	for _, k := range []uint32{1, 5, 70, 4096, 5000} {
		r.Insert(k, k)
	}
	entries := r.GangLookup(5, 3)
	if len(entries) != 3 {
		t.Fatalf("expected 3 entries, got %d", len(entries))
	}
	want := []uint32{5, 70, 4096}
	for i, e := range entries {
		if e.Key != want[i] {
			t.Fatalf("entry %d: got key %d want %d", i, e.Key, want[i])
		}
	}
}

func TestGetStatsCount(t *testing.T) {
	r := New()
	r.Insert(1, "a")
	r.Insert(2, "b")
	if s := r.GetStats(); s.Count != 2 {
		t.Fatalf("expected count 2, got %d", s.Count)
	}
	r.Delete(1)
	if s := r.GetStats(); s.Count != 1 {
		t.Fatalf("expected count 1 after delete, got %d", s.Count)
	}
}
