// Package stats holds atomic accounting counter types for get_stats-style
// introspection rather than control flow. Package mem keeps its
// double-free and page-table-page counts in Counter_t fields; kmalloc-type
// byte totals live in kmalloc.MallocType and per-IRQ counts in
// irq.Desc.FireCount, not here.
// Counter_t/Cycles_t are unconditional atomic counters; the teacher gated
// its equivalents behind a Stats/Timing build flag that disabled counting
// outright, which is wrong for counters other subsystems depend on for
// correctness (PMM double-free detection, §4.5) rather than pure profiling.
package stats

import "reflect"
import "sync/atomic"
import "strconv"
import "strings"
import "unsafe"

var Nirqs [100]int
var Irqs int

// CycleCounterFn, when set by the arch layer, returns a free-running cycle
// or timer count. It is nil on targets with no such register wired up, in
// which case Cycles_t.Add is a no-op.
var CycleCounterFn func() uint64

/// Rdtsc returns the current cycle count, or 0 if no counter is wired.
func Rdtsc() uint64 {
	if CycleCounterFn == nil {
		return 0
	}
	return CycleCounterFn()
}

/// Counter_t is a statistical counter.
type Counter_t int64

/// Cycles_t holds a cycle count.
type Cycles_t int64

/// Inc increments the counter.
func (c *Counter_t) Inc() {
	n := (*int64)(unsafe.Pointer(c))
	atomic.AddInt64(n, 1)
}

/// Get reads the current value of the counter.
func (c *Counter_t) Get() int64 {
	n := (*int64)(unsafe.Pointer(c))
	return atomic.LoadInt64(n)
}

/// Add adds elapsed cycles to the counter. A no-op when no cycle counter
/// is wired for the running arch.
func (c *Cycles_t) Add(m uint64) {
	if CycleCounterFn == nil {
		return
	}
	n := (*int64)(unsafe.Pointer(c))
	atomic.AddInt64(n, int64(Rdtsc()-m))
}

/// Stats2String converts a struct of counters to a printable string.
func Stats2String(st interface{}) string {
	v := reflect.ValueOf(st)
	s := ""
	for i := 0; i < v.NumField(); i++ {
		t := v.Field(i).Type().String()
		if strings.HasSuffix(t, "Counter_t") {
			n := v.Field(i).Interface().(Counter_t)
			s += "\n\t#" + v.Type().Field(i).Name + ": " + strconv.FormatInt(int64(n), 10)
		}
		if strings.HasSuffix(t, "Cycles_t") {
			n := v.Field(i).Interface().(Cycles_t)
			s += "\n\t#" + v.Type().Field(i).Name + ": " + strconv.FormatInt(int64(n), 10)
		}

	}
	return s + "\n"
}
