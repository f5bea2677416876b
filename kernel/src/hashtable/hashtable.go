// Package hashtable is the slab allocator's object->cache/slab lookup
// (§4.8): a resizable open-chain hash keyed by the frame number containing
// an object (obj_addr >> PAGE_SHIFT). It starts out backed by a small
// fixed static array so it works before kmalloc exists to back a growable
// bucket slice, then MigrateToDynamic copies everything into a heap-backed
// table once the allocator is live. The per-bucket lock and chained-elem
// shape is grounded on the teacher's Hashtable_t/bucket_t (hashtable.go),
// narrowed from an arbitrary interface{} key to the uint32 frame-number key
// this lookup actually needs, and given the load-factor-triggered resize
// the teacher's version never had.
package hashtable

import "sync"

// Entry is what the slab allocator stores per frame: the slab's base page
// address, the byte extent the slab occupies, and the owning cache/slab
// pointers (opaque to this package — it only indexes them).
type Entry struct {
	PageAddr uintptr
	Extent   uintptr
	Cache    interface{}
	Slab     interface{}
}

type elem struct {
	frame uint32
	entry Entry
	next  *elem
}

type bucket struct {
	sync.Mutex
	head *elem
	n    int
}

const staticBuckets = 64
const loadFactorResize = 4 // resize when avg chain length exceeds this

// Table is the resizable frame-number-keyed hash lookup.
type Table struct {
	mu       sync.RWMutex
	static   [staticBuckets]bucket
	buckets  []*bucket // nil until MigrateToDynamic
	count    int
	dynamic  bool
}

// New returns a Table in its bootstrap (static-array) configuration.
func New() *Table {
	return &Table{}
}

func (t *Table) bucketFor(frame uint32) *bucket {
	if t.dynamic {
		return t.buckets[frame%uint32(len(t.buckets))]
	}
	return &t.static[frame%staticBuckets]
}

// Insert adds (frame -> entry), overwriting any previous entry for frame.
func (t *Table) Insert(frame uint32, entry Entry) {
	t.mu.RLock()
	b := t.bucketFor(frame)
	t.mu.RUnlock()

	b.Lock()
	defer b.Unlock()
	for e := b.head; e != nil; e = e.next {
		if e.frame == frame {
			e.entry = entry
			return
		}
	}
	b.head = &elem{frame: frame, entry: entry, next: b.head}
	b.n++
	t.mu.Lock()
	t.count++
	t.mu.Unlock()

	if t.shouldResize() {
		t.growIfDynamic()
	}
}

// Lookup returns the entry stored for frame, the frame number of the object
// being looked up (§4.8 find_cache_for_object). It does not check the
// entry's Extent.
func (t *Table) Lookup(frame uint32) (Entry, bool) {
	t.mu.RLock()
	b := t.bucketFor(frame)
	t.mu.RUnlock()

	b.Lock()
	defer b.Unlock()
	for e := b.head; e != nil; e = e.next {
		if e.frame == frame {
			return e.entry, true
		}
	}
	return Entry{}, false
}

// Delete removes the entry for frame, if present.
func (t *Table) Delete(frame uint32) {
	t.mu.RLock()
	b := t.bucketFor(frame)
	t.mu.RUnlock()

	b.Lock()
	defer b.Unlock()
	var prev *elem
	for e := b.head; e != nil; e = e.next {
		if e.frame == frame {
			if prev == nil {
				b.head = e.next
			} else {
				prev.next = e.next
			}
			b.n--
			t.mu.Lock()
			t.count--
			t.mu.Unlock()
			return
		}
		prev = e
	}
}

// Count returns the number of live entries.
func (t *Table) Count() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.count
}

func (t *Table) bucketCount() int {
	if t.dynamic {
		return len(t.buckets)
	}
	return staticBuckets
}

func (t *Table) shouldResize() bool {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.count > t.bucketCount()*loadFactorResize
}

// growIfDynamic doubles the bucket count once the table has migrated to a
// heap-backed slice; the static bootstrap array never grows (§4.8: entries
// live in a small static array until migrate_to_dynamic runs).
func (t *Table) growIfDynamic() {
	t.mu.Lock()
	defer t.mu.Unlock()
	if !t.dynamic {
		return
	}
	old := t.buckets
	t.buckets = make([]*bucket, len(old)*2)
	for i := range t.buckets {
		t.buckets[i] = &bucket{}
	}
	for _, b := range old {
		for e := b.head; e != nil; e = e.next {
			nb := t.buckets[e.frame%uint32(len(t.buckets))]
			nb.head = &elem{frame: e.frame, entry: e.entry, next: nb.head}
		}
	}
}

// MigrateToDynamic copies every entry currently in the static array into a
// fresh heap-backed bucket slice of the given size, then switches the
// table over to it (§4.8: "once kmalloc initialises, migrate_to_dynamic()
// copies them into a heap-backed table"). Calling it twice is a no-op.
func (t *Table) MigrateToDynamic(initialBuckets int) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.dynamic {
		return
	}
	if initialBuckets < 1 {
		initialBuckets = staticBuckets
	}
	buckets := make([]*bucket, initialBuckets)
	for i := range buckets {
		buckets[i] = &bucket{}
	}
	for i := range t.static {
		for e := t.static[i].head; e != nil; e = e.next {
			nb := buckets[e.frame%uint32(len(buckets))]
			nb.head = &elem{frame: e.frame, entry: e.entry, next: nb.head}
		}
	}
	t.buckets = buckets
	t.dynamic = true
}

// IsDynamic reports whether MigrateToDynamic has run.
func (t *Table) IsDynamic() bool {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.dynamic
}
