package kernel

// Semaphore is a counting semaphore (SPEC_FULL.md §4.6 C8): Wait blocks
// while the count is zero; Post hands its token directly to the
// highest-priority, oldest-arrival waiter if there is one, and otherwise
// increments the count.
type Semaphore struct {
	k       *Kernel
	value   int
	max     int
	waiters orderedQueue
}

// NewSemaphore creates a semaphore with the given initial value and
// maximum value (ErrOverflow is returned from Post once value == max).
func NewSemaphore(k *Kernel, value, max int) *Semaphore {
	s := &Semaphore{k: k, value: value, max: max}
	s.waiters.owner = s
	return s
}

// GetValue returns the semaphore's current count.
func (s *Semaphore) GetValue() int {
	s.k.lock.Lock()
	defer s.k.lock.Unlock()
	return s.value
}

// GetMaxValue returns the semaphore's configured maximum.
func (s *Semaphore) GetMaxValue() int {
	return s.max
}

// Wait blocks the calling thread until the semaphore's value is positive,
// then decrements it.
func (s *Semaphore) Wait(tt *ThisThread) error {
	k := s.k
	self := tt.self
	k.lock.Lock()
	if s.value > 0 {
		s.value--
		k.lock.Unlock()
		return nil
	}
	k.metrics.semContention.Inc()
	return k.block(self, waitSemaphore, &s.waiters, StateBlockedOnSemaphore, 0, false)
}

// TryWait attempts to decrement the semaphore without blocking, returning
// ErrAgain if its value is zero.
func (s *Semaphore) TryWait() error {
	s.k.lock.Lock()
	defer s.k.lock.Unlock()
	if s.value <= 0 {
		return ErrAgain
	}
	s.value--
	return nil
}

// TryWaitFor attempts to decrement the semaphore, blocking for at most
// timeout ticks.
func (s *Semaphore) TryWaitFor(tt *ThisThread, timeout Duration) error {
	return s.TryWaitUntil(tt, tt.kernel.Now().Add(timeout))
}

// TryWaitUntil attempts to decrement the semaphore, blocking until at most
// the given absolute deadline.
func (s *Semaphore) TryWaitUntil(tt *ThisThread, deadline Tick) error {
	k := s.k
	self := tt.self
	k.lock.Lock()
	if s.value > 0 {
		s.value--
		k.lock.Unlock()
		return nil
	}
	if deadline.Before(k.clock.now + 1) {
		k.lock.Unlock()
		return ErrTimedout
	}
	k.metrics.semContention.Inc()
	return k.block(self, waitSemaphore, &s.waiters, StateBlockedOnSemaphore, deadline, true)
}

// Post increments the semaphore's value, or wakes the highest-priority
// waiter if one is parked, and returns ErrOverflow if the value is already
// at its maximum. Called from the posting thread's own context, it yields
// the caller's turn immediately if the newly-woken waiter outranks it, per
// SPEC_FULL.md §4.3's "context switch before returning to user code from
// any kernel entry" invariant.
func (s *Semaphore) Post(tt *ThisThread) error {
	k := s.k
	k.lock.Lock()
	err := s.postLocked(k)
	if err != nil {
		k.lock.Unlock()
		return err
	}
	k.settle(tt.self)
	return nil
}

// PostISR is Post's counterpart for a caller with no ThisThread of its own
// -- a timer callback or another external event source simulating an
// interrupt handler. It cannot yield its own turn, since it has none, so
// any resulting preemption is only flagged and takes effect at the
// currently-running thread's next checkpoint.
func (s *Semaphore) PostISR(k *Kernel) error {
	k.lock.Lock()
	defer k.lock.Unlock()
	return s.postLocked(k)
}

// postLocked performs the increment-or-wake without resolving a context
// switch. Caller must hold k.lock.
func (s *Semaphore) postLocked(k *Kernel) error {
	if head := s.waiters.popHead(); head != nil {
		w := head.self.(*tcb)
		k.unblock(w, nil)
		return nil
	}
	if s.value >= s.max {
		return ErrOverflow
	}
	s.value++
	return nil
}
