package kernel

// MutexType selects the recursion/error-checking behavior of a Mutex
// (SPEC_FULL.md §4.5 C7).
type MutexType int

const (
	MutexNormal MutexType = iota
	MutexErrorChecking
	MutexRecursive
)

// MutexProtocol selects the priority-inversion avoidance strategy applied
// while a Mutex is held (SPEC_FULL.md §4.5 C7).
type MutexProtocol int

const (
	ProtocolNone MutexProtocol = iota
	ProtocolPriorityInheritance
	ProtocolPriorityProtect
)

// Mutex is a kernel mutual-exclusion primitive. The zero value is not
// usable; construct one with NewMutex.
type Mutex struct {
	k        *Kernel
	typ      MutexType
	protocol MutexProtocol
	ceiling  uint8 // only meaningful for ProtocolPriorityProtect

	waiters orderedQueue
	owner   *tcb
	count   int // recursion depth for MutexRecursive, else 0 or 1
}

// NewMutex creates a mutex with the given type and protocol. For
// ProtocolPriorityProtect, ceiling is the priority every owner is boosted
// to while holding the mutex.
//
// SPEC_FULL.md §4.5's construction invariants: an out-of-range typ or
// protocol value defaults to MutexNormal/ProtocolNone rather than being
// rejected outright, and ProtocolPriorityProtect with ceiling == 0 (never
// a valid ceiling; priority 0 is reserved for the idle thread) downgrades
// to ProtocolNone instead of silently accepting a ceiling that would
// reject every non-idle locker.
func NewMutex(k *Kernel, typ MutexType, protocol MutexProtocol, ceiling uint8) *Mutex {
	if typ < MutexNormal || typ > MutexRecursive {
		typ = MutexNormal
	}
	if protocol < ProtocolNone || protocol > ProtocolPriorityProtect {
		protocol = ProtocolNone
	}
	if protocol == ProtocolPriorityProtect && ceiling < 1 {
		protocol = ProtocolNone
	}
	m := &Mutex{k: k, typ: typ, protocol: protocol, ceiling: ceiling}
	m.waiters.owner = m
	return m
}

// Lock blocks the calling thread until it owns m. A MutexRecursive held by
// the caller increments its recursion count instead of blocking; a
// MutexErrorChecking held by the caller returns ErrDeadlk.
func (m *Mutex) Lock(tt *ThisThread) error {
	k := m.k
	self := tt.self
	k.lock.Lock()

	if err, reject := m.checkCeiling(self); reject {
		k.lock.Unlock()
		return err
	}

	if m.owner == self {
		switch m.typ {
		case MutexRecursive:
			m.count++
			k.lock.Unlock()
			return nil
		case MutexErrorChecking:
			k.lock.Unlock()
			return ErrDeadlk
		}
		// MutexNormal re-locking by the owner is undefined in the original
		// kernel; here it deadlocks the thread against itself exactly as a
		// non-recursive mutex would, by falling through to the block path
		// below where it will wait forever -- matching "undefined, not
		// diagnosed" rather than inventing new error behavior.
	}

	if m.owner == nil {
		m.acquire(self)
		k.lock.Unlock()
		return nil
	}

	if err, abort := k.checkImmediateAbort(self, false, 0); abort {
		return err
	}
	k.metrics.mutexContention.Inc()
	m.waiters.insert(&self.node, self.effPriority)
	m.boostOwnerChain()
	return k.parkLinked(self, waitMutex, StateBlockedOnMutex, 0, false)
}

// TryLock attempts to acquire m without blocking, returning ErrBusy if it
// is already held by another thread.
func (m *Mutex) TryLock(tt *ThisThread) error {
	k := m.k
	self := tt.self
	k.lock.Lock()
	defer k.lock.Unlock()

	if err, reject := m.checkCeiling(self); reject {
		return err
	}

	if m.owner == self {
		switch m.typ {
		case MutexRecursive:
			m.count++
			return nil
		case MutexErrorChecking:
			return ErrDeadlk
		}
	}
	if m.owner != nil {
		return ErrBusy
	}
	m.acquire(self)
	return nil
}

// TryLockFor attempts to acquire m, blocking for at most timeout ticks.
func (m *Mutex) TryLockFor(tt *ThisThread, timeout Duration) error {
	return m.TryLockUntil(tt, tt.kernel.Now().Add(timeout))
}

// TryLockUntil attempts to acquire m, blocking until at most the given
// absolute deadline.
func (m *Mutex) TryLockUntil(tt *ThisThread, deadline Tick) error {
	k := m.k
	self := tt.self
	k.lock.Lock()

	if err, reject := m.checkCeiling(self); reject {
		k.lock.Unlock()
		return err
	}

	if m.owner == self {
		switch m.typ {
		case MutexRecursive:
			m.count++
			k.lock.Unlock()
			return nil
		case MutexErrorChecking:
			k.lock.Unlock()
			return ErrDeadlk
		}
	}
	if m.owner == nil {
		m.acquire(self)
		k.lock.Unlock()
		return nil
	}
	if err, abort := k.checkImmediateAbort(self, true, deadline); abort {
		return err
	}
	k.metrics.mutexContention.Inc()
	m.waiters.insert(&self.node, self.effPriority)
	m.boostOwnerChain()
	return k.parkLinked(self, waitMutex, StateBlockedOnMutex, deadline, true)
}

// checkCeiling enforces SPEC_FULL.md §4.5's priority-protect precondition:
// a caller whose effective priority already exceeds the ceiling is
// rejected outright rather than silently allowed to lock without a boost,
// which would defeat the protocol's purpose of bounding priority
// inversion to a single known ceiling. Caller must hold k.lock and, if
// reject is true, is responsible for unlocking it itself.
func (m *Mutex) checkCeiling(self *tcb) (err error, reject bool) {
	if m.protocol == ProtocolPriorityProtect && self.effPriority > m.ceiling {
		return ErrInval, true
	}
	return nil, false
}

// acquire records self as owner, applying the mutex's configured protocol.
// Caller must hold k.lock.
func (m *Mutex) acquire(self *tcb) {
	m.owner = self
	m.count = 1
	self.ownedMutexes = append(self.ownedMutexes, m)
	if m.protocol == ProtocolPriorityProtect && m.ceiling > self.effPriority {
		self.effPriority = m.ceiling
	}
}

// boostOwnerChain walks the chain of mutex owners blocking the eventual
// owner's progress, raising each one's effective priority to at least the
// waiting thread's, for as many hops as there are live threads
// (SPEC_FULL.md §4.5/§9: the walk is bounded by the live-thread count so a
// pathological or cyclic ownership graph cannot spin forever). Only
// ProtocolPriorityInheritance mutexes participate; ProtocolNone mutexes
// never boost and so can suffer unbounded priority inversion by design.
func (m *Mutex) boostOwnerChain() {
	if m.protocol != ProtocolPriorityInheritance {
		return
	}
	k := m.k
	bound := k.arena.count() + 1
	cur := m
	for hop := 0; hop < bound; hop++ {
		owner := cur.owner
		if owner == nil {
			return
		}
		head := cur.waiters.peekHead()
		want := owner.basePriority
		if head != nil {
			if w := head.self.(*tcb); w.effPriority > want {
				want = w.effPriority
			}
		}
		if want <= owner.effPriority {
			return
		}
		owner.effPriority = want
		if owner.node.linked() {
			owner.node.queue.reinsert(&owner.node, want)
		}
		if owner.wait != waitMutex {
			return
		}
		next, ok := owner.waitOnMutex()
		if !ok {
			return
		}
		cur = next
	}
}

// waitOnMutex reports which Mutex t is blocked on, if any, so
// boostOwnerChain can continue walking the chain.
func (t *tcb) waitOnMutex() (*Mutex, bool) {
	if !t.node.linked() {
		return nil, false
	}
	m, ok := t.node.queue.owner.(*Mutex)
	return m, ok
}

// Unlock releases m. If the caller does not currently own m,
// ErrPerm is returned (matching MutexErrorChecking/MutexRecursive
// semantics; a MutexNormal held by the wrong thread is undefined and
// returns the same error here for diagnosability).
func (m *Mutex) Unlock(tt *ThisThread) error {
	k := m.k
	self := tt.self
	k.lock.Lock()

	if m.owner != self {
		k.lock.Unlock()
		return ErrPerm
	}
	if m.typ == MutexRecursive && m.count > 1 {
		m.count--
		k.lock.Unlock()
		return nil
	}

	m.release(k, self)
	k.settle(self)
	return nil
}

// release hands m to its highest-priority waiter, if any, restoring self's
// effective priority first. Caller must hold k.lock; this does not itself
// perform a context switch (callers must follow with settle or
// markResched).
func (m *Mutex) release(k *Kernel, self *tcb) {
	m.owner = nil
	m.count = 0
	self.deownMutex(m)
	self.recomputeEffectivePriority()

	if head := m.waiters.popHead(); head != nil {
		next := head.self.(*tcb)
		m.acquire(next)
		k.unblock(next, nil)
	}
}

// forceReleaseLocked is release's counterpart for a thread that is exiting
// while still holding m, used by exitThread. It releases m fully even when
// a MutexRecursive was locked more than once, and reports that case as a
// diagnostic error rather than panicking. Caller must hold k.lock.
func (m *Mutex) forceReleaseLocked(k *Kernel, self *tcb) error {
	var err error
	if m.typ == MutexRecursive && m.count > 1 {
		err = wrapf(ErrInval, "thread %q exited while holding a recursive mutex locked %d times", self.name, m.count)
	}
	m.release(k, self)
	return err
}

func (t *tcb) deownMutex(m *Mutex) {
	for i, owned := range t.ownedMutexes {
		if owned == m {
			t.ownedMutexes = append(t.ownedMutexes[:i], t.ownedMutexes[i+1:]...)
			return
		}
	}
}

// recomputeEffectivePriority restores effPriority to the maximum of the
// thread's own base priority and whatever boost is still owed to it by
// the mutexes it continues to hold (priority-protect ceilings, and any
// priority-inheritance boost still justified by a waiter on one of those
// mutexes). Caller must hold k.lock.
func (t *tcb) recomputeEffectivePriority() {
	p := t.basePriority
	for _, m := range t.ownedMutexes {
		if m.protocol == ProtocolPriorityProtect && m.ceiling > p {
			p = m.ceiling
		}
		if m.protocol == ProtocolPriorityInheritance {
			if head := m.waiters.peekHead(); head != nil {
				if w := head.self.(*tcb); w.effPriority > p {
					p = w.effPriority
				}
			}
		}
	}
	t.effPriority = p
}
