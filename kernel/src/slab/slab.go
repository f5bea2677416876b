// Package slab is the fixed-size object cache allocator (§4.8). Each cache
// owns three slab lists — full, partial, empty — and slabs are runs of
// frames obtained from the buddy allocator, carved into objects plus a
// free-index stack kept in the slab descriptor itself (not embedded in the
// object storage, so object overhead stays zero). Object -> owning-slab
// lookup goes through package hashtable, keyed by the frame number holding
// the object. The three-list-per-cache shape and the free-index-stack pop
// policy are grounded on the teacher's Objcache_t/Bh_t structure for
// fixed-size buffer caches (buddy/bh-style allocation with a free list
// baked into the header), generalized here to arbitrary object sizes and a
// real buddy backing store instead of the teacher's disk-buffer-cache
// specific header.
package slab

import (
	"container/list"
	"sync"

	"buddy"
	"defs"
	"hashtable"
	"klog"
	"mem"
)

const maxWastePercent = 12

// Lookup is the global object -> slab hash (§4.8 Hash-lookup).
var Lookup = hashtable.New()

// slabDesc is one slab: a buddy-backed run of frames, carved into
// numObjects slots of cache.objSize bytes, plus a free-index stack.
type slabDesc struct {
	base       mem.Pa_t
	order      int
	size       uintptr
	numObjects int
	numFree    int
	freeIdx    []uint32 // freeIdx[0:numFree] are the indices still free
	cache      *Cache
	elem       *list.Element
}

func (s *slabDesc) objectAddr(i uint32) uintptr {
	return mem.Physmem.PhysToKVA(s.base) + uintptr(i)*s.cache.objSize
}

// Cache is a fixed-size object cache (§4.8 Slab cache).
type Cache struct {
	mu    sync.Mutex
	Name  string
	objSize uintptr
	align   uintptr
	slabOrder      int
	objectsPerSlab int

	full    *list.List
	partial *list.List
	empty   *list.List

	Allocs int64
	Frees  int64

	Ctor func(obj uintptr)
	Dtor func(obj uintptr)
}

var (
	globalMu    sync.Mutex
	globalCache []*Cache
)

// roundup aligns v up to a multiple of a.
func roundup(v, a uintptr) uintptr {
	if a == 0 {
		return v
	}
	return (v + a - 1) &^ (a - 1)
}

// chooseSlabOrder picks the smallest buddy order whose frame count holds
// an integer number of objSize objects (plus the slab's own bookkeeping,
// which lives off-slab in Go heap state and costs no slab bytes) with no
// more than maxWastePercent left over (§4.8 create: "≤ ~12% waste").
func chooseSlabOrder(objSize uintptr) (order int, objectsPerSlab int) {
	for order = 0; order <= buddy.MaxOrder; order++ {
		slabBytes := uintptr(mem.PGSIZE) << uint(order)
		n := int(slabBytes / objSize)
		if n == 0 {
			continue
		}
		waste := slabBytes - uintptr(n)*objSize
		if waste*100/slabBytes <= maxWastePercent {
			return order, n
		}
	}
	// fall back to the largest order the buddy allocator supports; waste
	// may exceed the target but the cache still functions correctly.
	slabBytes := uintptr(mem.PGSIZE) << uint(buddy.MaxOrder)
	return buddy.MaxOrder, int(slabBytes / objSize)
}

// Create registers a new cache for fixed-size objects of size, aligned to
// align (§4.8 create).
func Create(name string, size uintptr, align uintptr, ctor, dtor func(uintptr)) *Cache {
	if align == 0 {
		align = 8
	}
	objSize := roundup(size, align)
	order, objectsPerSlab := chooseSlabOrder(objSize)

	c := &Cache{
		Name:           name,
		objSize:        objSize,
		align:          align,
		slabOrder:      order,
		objectsPerSlab: objectsPerSlab,
		full:           list.New(),
		partial:        list.New(),
		empty:          list.New(),
		Ctor:           ctor,
		Dtor:           dtor,
	}
	globalMu.Lock()
	globalCache = append(globalCache, c)
	globalMu.Unlock()
	return c
}

func (c *Cache) newSlab() *slabDesc {
	pa := buddy.Buddy.Page_alloc(c.slabOrder)
	if pa == 0 {
		return nil
	}
	s := &slabDesc{
		base:       pa,
		order:      c.slabOrder,
		size:       uintptr(mem.PGSIZE) << uint(c.slabOrder),
		numObjects: c.objectsPerSlab,
		numFree:    c.objectsPerSlab,
		freeIdx:    make([]uint32, c.objectsPerSlab),
		cache:      c,
	}
	for i := range s.freeIdx {
		s.freeIdx[i] = uint32(i)
	}
	base := mem.Pa_t(s.base)
	startFrame := uint32(base >> mem.PGSHIFT)
	endFrame := uint32((base + mem.Pa_t(s.size) + mem.PGOFFSET) >> mem.PGSHIFT)
	for f := startFrame; f < endFrame; f++ {
		Lookup.Insert(f, hashtable.Entry{
			PageAddr: uintptr(f) << mem.PGSHIFT,
			Extent:   s.size,
			Cache:    c,
			Slab:     s,
		})
	}
	return s
}

func (s *slabDesc) popFree() uintptr {
	s.numFree--
	idx := s.freeIdx[s.numFree]
	return s.objectAddr(idx)
}

func (s *slabDesc) pushFree(obj uintptr) {
	off := obj - mem.Physmem.PhysToKVA(s.base)
	idx := uint32(off / s.cache.objSize)
	s.freeIdx[s.numFree] = idx
	s.numFree++
}

// Alloc pops an object from the cache, taking a slab from partial, then
// empty, then allocating a fresh one from buddy (§4.8 alloc). Returns 0 on
// failure.
func (c *Cache) Alloc() uintptr {
	c.mu.Lock()
	defer c.mu.Unlock()

	var elem *list.Element
	var s *slabDesc
	switch {
	case c.partial.Len() > 0:
		elem = c.partial.Front()
		s = elem.Value.(*slabDesc)
		c.partial.Remove(elem)
	case c.empty.Len() > 0:
		elem = c.empty.Front()
		s = elem.Value.(*slabDesc)
		c.empty.Remove(elem)
	default:
		s = c.newSlab()
		if s == nil {
			return 0
		}
	}

	obj := s.popFree()
	if s.numFree == 0 {
		s.elem = c.full.PushBack(s)
	} else {
		s.elem = c.partial.PushBack(s)
	}
	c.Allocs++
	if c.Ctor != nil {
		c.Ctor(obj)
	}
	return obj
}

// Free locates obj's slab via the hash lookup, pushes its index back, and
// moves the slab to partial (or empty once it has no live objects)
// (§4.8 free).
func Free(obj uintptr) defs.Err_t {
	frame := uint32(obj >> mem.PGSHIFT)
	entry, ok := Lookup.Lookup(frame)
	if !ok {
		return defs.ENODEV
	}
	c := entry.Cache.(*Cache)
	s := entry.Slab.(*slabDesc)
	return c.freeInto(s, obj)
}

func (c *Cache) freeInto(s *slabDesc, obj uintptr) defs.Err_t {
	c.mu.Lock()
	defer c.mu.Unlock()

	wasFull := s.numFree == 0
	if c.Dtor != nil {
		c.Dtor(obj)
	}
	s.pushFree(obj)
	c.Frees++

	switch {
	case wasFull && s.numFree == s.numObjects:
		c.full.Remove(s.elem)
		s.elem = c.empty.PushBack(s)
	case wasFull:
		c.full.Remove(s.elem)
		s.elem = c.partial.PushBack(s)
	case s.numFree == s.numObjects:
		c.partial.Remove(s.elem)
		s.elem = c.empty.PushBack(s)
	}
	return 0
}

// FindCacheForObject returns the cache owning obj, if any is tracked
// (§4.8 find_cache_for_object).
func FindCacheForObject(obj uintptr) (*Cache, bool) {
	entry, ok := Lookup.Lookup(uint32(obj >> mem.PGSHIFT))
	if !ok {
		return nil, false
	}
	return entry.Cache.(*Cache), true
}

// ObjSize returns the cache's per-object size after alignment rounding.
func (c *Cache) ObjSize() uintptr { return c.objSize }

// Reap releases every empty slab in the cache back to buddy, unless the
// cache carries NOREAP semantics — here expressed by the caller simply not
// calling Reap (§4.8: "Empty slabs may be reaped later unless NOREAP is
// set").
func (c *Cache) Reap() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	n := 0
	for e := c.empty.Front(); e != nil; {
		next := e.Next()
		s := e.Value.(*slabDesc)
		c.empty.Remove(e)
		startFrame := uint32(s.base >> mem.PGSHIFT)
		endFrame := uint32((s.base + mem.Pa_t(s.size) + mem.PGOFFSET) >> mem.PGSHIFT)
		for f := startFrame; f < endFrame; f++ {
			Lookup.Delete(f)
		}
		if err := buddy.Buddy.Page_free(s.base, s.order); err != 0 {
			klog.Warnf("slab: reap of cache %s failed to free slab: %v", c.Name, err)
		}
		n++
		e = next
	}
	return n
}

// GlobalCaches returns a snapshot of every registered cache, for debugging.
func GlobalCaches() []*Cache {
	globalMu.Lock()
	defer globalMu.Unlock()
	out := make([]*Cache, len(globalCache))
	copy(out, globalCache)
	return out
}
