package kernel

// critical.go documents and binds SPEC_FULL.md §4.1's C2 component: the
// interrupt-masking critical section. On real hardware this is a
// mask-interrupts/restore-mask pair around a short bookkeeping sequence; on
// this platform the same role is played by Kernel.lock (SPEC_FULL.md §0),
// since the only other source of true concurrency with the running thread
// is an external tick source or an "ISR-context" caller such as a signal
// delivery from outside any tracked thread.
//
// Every exported kernel entry point follows the same shape:
//
//	k.lock.Lock()
//	... read/modify scheduler state ...
//	k.settle(self) // or k.lock.Unlock() for a non-blocking, non-yielding call
//
// There is deliberately no separate "mask" type: a second, nested
// acquisition of k.lock from the same goroutine would deadlock, so kernel
// code is written so that every internal helper (block, unblock, reschedule
// helpers) assumes the lock is already held rather than reacquiring it,
// matching the original's single-level, non-reentrant interrupt mask.
