package arch

import "sync/atomic"

// SpinLock_t is a test-and-set spinlock (§4.1 CPU: "every arch provides an
// IRQ-safe spinlock primitive"). Bare-metal cores run without an OS
// scheduler underneath, so sync.Mutex's goroutine-parking semantics do not
// apply here; a CAS spin with Current.CPU.WaitForEvent between
// attempts is the same busy-wait idiom every arch's own exception/IRQ code
// already needs.
type SpinLock_t struct {
	held int32
}

// Lock spins until the lock is acquired. It does not touch IRQ state; use
// LockIRQ from any context that must not be interrupted while holding the
// lock (everywhere the IRQ handler path itself might need the same lock).
func (l *SpinLock_t) Lock() {
	for !atomic.CompareAndSwapInt32(&l.held, 0, 1) {
		if Current != nil && Current.CPU.WaitForEvent != nil {
			Current.CPU.WaitForEvent()
		}
	}
}

// Unlock releases the lock.
func (l *SpinLock_t) Unlock() {
	atomic.StoreInt32(&l.held, 0)
}

// TryLock attempts to acquire the lock without spinning.
func (l *SpinLock_t) TryLock() bool {
	return atomic.CompareAndSwapInt32(&l.held, 0, 1)
}

// LockIRQ disables IRQs, then acquires the lock, returning the saved IRQ
// state for the matching UnlockIRQ call. This is the only safe way to take
// a lock that an IRQ handler may also need, since a handler firing on the
// same core while the lock is held would otherwise deadlock.
func (l *SpinLock_t) LockIRQ() uintptr {
	flags := Current.CPU.IRQSave()
	l.Lock()
	return flags
}

// UnlockIRQ releases the lock and restores the IRQ state saved by LockIRQ.
func (l *SpinLock_t) UnlockIRQ(flags uintptr) {
	l.Unlock()
	Current.CPU.IRQRestore(flags)
}
