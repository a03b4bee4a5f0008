// Package kernel implements the scheduling and synchronization core of a
// small preemptive, fixed-priority real-time kernel: a ready queue and
// baton-passed context switch, the blocking/wakeup protocol shared by every
// synchronization primitive, a priority-inheritance/priority-protect mutex, a
// condition variable with requeue-on-wake, a counting semaphore, per-thread
// signal delivery, and a monotonic tick clock with sleep and timed-wait
// support.
//
// The kernel is single-core by construction: at most one goroutine ever
// executes thread or kernel-internal code at a time, selected strictly by
// priority. See PLATFORM BINDING in SPEC_FULL.md for how that is built out
// of ordinary goroutines and channels rather than real hardware interrupts.
package kernel
