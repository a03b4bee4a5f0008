package kernel

// sleepFor blocks the calling thread for at least duration ticks (C11).
// Following the original kernel's convention that a relative sleep must
// never return early due to truncation, it is defined in terms of
// sleepUntil as now+duration+1: the deadline comparison in TickHandler
// fires when now >= deadline, so an extra tick guarantees at least
// duration whole ticks elapse even if the call lands a fraction of a tick
// after the most recent one was counted.
func (k *Kernel) sleepFor(self *tcb, duration Duration) error {
	if duration <= 0 {
		k.lock.Lock()
		k.settle(self)
		return nil
	}
	return k.sleepUntil(self, k.Now().Add(duration+1))
}

// sleepUntil blocks the calling thread until the given absolute deadline.
// A deadline that has already passed returns immediately without blocking.
func (k *Kernel) sleepUntil(self *tcb, deadline Tick) error {
	k.lock.Lock()
	if deadline.Before(k.clock.now + 1) { // deadline <= now: already due
		k.settle(self)
		return nil
	}
	return k.block(self, waitSleep, &k.sleepQ, StateSleeping, deadline, true)
}
