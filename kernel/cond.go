package kernel

// ConditionVariable is a Mesa-style condition variable (SPEC_FULL.md §4.7
// C9): Wait atomically releases an associated Mutex and blocks, and the
// mutex is re-acquired before Wait returns. Notify does not splice waiters
// onto the mutex's waiter list directly: each woken waiter reacquires the
// mutex through an ordinary Mutex.Lock, so if another thread holds it the
// waiter joins the mutex's priority-ordered waiter list at that point.
type ConditionVariable struct {
	k       *Kernel
	waiters orderedQueue
}

func NewConditionVariable(k *Kernel) *ConditionVariable {
	cv := &ConditionVariable{k: k}
	cv.waiters.owner = cv
	return cv
}

// Wait releases m, blocks until notified, and reacquires m before
// returning. The caller must hold m.
func (cv *ConditionVariable) Wait(tt *ThisThread, m *Mutex) error {
	return cv.doWait(tt, m, 0, false)
}

// WaitFor is Wait bounded by a relative tick timeout.
func (cv *ConditionVariable) WaitFor(tt *ThisThread, m *Mutex, timeout Duration) error {
	return cv.doWait(tt, m, tt.kernel.Now().Add(timeout), true)
}

// WaitUntil is Wait bounded by an absolute tick deadline.
func (cv *ConditionVariable) WaitUntil(tt *ThisThread, m *Mutex, deadline Tick) error {
	return cv.doWait(tt, m, deadline, true)
}

func (cv *ConditionVariable) doWait(tt *ThisThread, m *Mutex, deadline Tick, hasDeadline bool) error {
	k := cv.k
	self := tt.self

	k.lock.Lock()
	if m.owner != self {
		k.lock.Unlock()
		return ErrPerm
	}
	savedCount := m.count
	m.release(k, self)
	k.metrics.condContention.Inc()
	waitErr := k.block(self, waitCondVar, &cv.waiters, StateBlockedOnConditionVariable, deadline, hasDeadline)

	// Reacquire m regardless of why we woke (notify, timeout or signal):
	// Mesa-style condition variables reacquire the mutex unconditionally
	// and let the caller re-check its predicate. For a MutexRecursive held
	// more than once before the wait, the recursion count was flattened by
	// release above; restore it now so the caller sees the same depth it
	// unlocked (SPEC_FULL.md §4.7: remember and restore the recursion count).
	lockErr := m.Lock(tt)
	if lockErr == nil && m.typ == MutexRecursive && savedCount > 1 {
		k.lock.Lock()
		m.count = savedCount
		k.lock.Unlock()
	}
	if waitErr != nil {
		return waitErr
	}
	return lockErr
}

// NotifyOne wakes the highest-priority, oldest-arrival waiter, if any. The
// woken thread does not actually run until it has reacquired the
// associated mutex inside its own Wait call.
func (cv *ConditionVariable) NotifyOne(tt *ThisThread) {
	k := cv.k
	k.lock.Lock()
	if head := cv.waiters.popHead(); head != nil {
		k.unblock(head.self.(*tcb), nil)
	}
	k.settle(tt.self)
}

// NotifyAll wakes every waiter.
func (cv *ConditionVariable) NotifyAll(tt *ThisThread) {
	k := cv.k
	k.lock.Lock()
	for {
		head := cv.waiters.popHead()
		if head == nil {
			break
		}
		k.unblock(head.self.(*tcb), nil)
	}
	k.settle(tt.self)
}
