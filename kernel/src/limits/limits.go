// Package limits holds ceiling values sized to the core's fixed resource
// pools: the virq bitmap pool (§4.13), the radix-tree node free-list
// (§4.15), and kmalloc-type byte/allocation accounting (§4.9). No other
// package imports it, so none of these ceilings is enforced. Sysatomic_t
// is the teacher's atomically-updated resource limit, generalized from
// process/network resource counts to these kernel pools.
package limits

import "unsafe"
import "sync/atomic"

/// Lhits counts the number of times a bounded pool refused a request.
var Lhits int

/// Sysatomic_t is a numeric limit that can be atomically updated.
type Sysatomic_t int64

/// Syslimit_t tracks the core's fixed-ceiling resource pools.
type Syslimit_t struct {
	// protected by the virq allocator's own lock; mirrors defs.MaxVirqs
	Virqs int
	// protected by the radix-tree node-pool lock
	RadixNodes int
	// protected by the slab-lookup hash table's lock during resize
	HashBuckets int
	// kmalloc-type accounting ceiling; Taken refuses a request past it
	KmallocTypeBytes Sysatomic_t
}

/// Syslimit describes the configured resource ceilings.
var Syslimit *Syslimit_t = MkSysLimit()

/// MkSysLimit returns a pointer to the default set of limits.
func MkSysLimit() *Syslimit_t {
	return &Syslimit_t{
		Virqs:            4096,
		RadixNodes:       32,
		HashBuckets:      256,
		KmallocTypeBytes: 1 << 30,
	}
}

func (s *Sysatomic_t) _aptr() *int64 {
	return (*int64)(unsafe.Pointer(s))
}

/// Given increases the limit by the provided amount.
func (s *Sysatomic_t) Given(_n uint) {
	n := int64(_n)
	if n < 0 {
		panic("too mighty")
	}
	atomic.AddInt64(s._aptr(), n)
}

/// Taken tries to decrement the limit by the provided amount.
/// It returns true on success.
func (s *Sysatomic_t) Taken(_n uint) bool {
	n := int64(_n)
	if n < 0 {
		panic("too mighty")
	}
	g := atomic.AddInt64(s._aptr(), -n)
	if g >= 0 {
		return true
	}
	atomic.AddInt64(s._aptr(), n)
	Lhits++
	return false
}

/// Take decrements the limit and reports whether it succeeded.
func (s *Sysatomic_t) Take() bool {
	return s.Taken(1)
}

/// Give increments the limit by one.
func (s *Sysatomic_t) Give() {
	s.Given(1)
}

// Bounded_t is a simpler, non-global bounded counter for per-instance
// pools (a single domain's virq watermark, a single cache's object
// ceiling) where a package-wide Syslimit field would be the wrong shape.
type Bounded_t struct {
	avail Sysatomic_t
}

// MkBounded returns a Bounded_t with the given initial capacity.
func MkBounded(capacity uint) *Bounded_t {
	b := &Bounded_t{}
	b.avail.Given(capacity)
	return b
}

func (b *Bounded_t) Take() bool   { return b.avail.Take() }
func (b *Bounded_t) Give()        { b.avail.Give() }
func (b *Bounded_t) Avail() int64 { return atomic.LoadInt64(b.avail._aptr()) }
