package kernel

// onceState is OnceFlag's internal lifecycle (SPEC_FULL.md §4.10 C12).
type onceState int

const (
	onceIdle onceState = iota
	onceRunning
	onceDone
)

// OnceFlag guards a call-once initializer the way sync.Once does, but
// additionally detects and rejects the case the original kernel's test
// suite exercises explicitly: the initializer function itself, directly or
// indirectly, calling CallOnce again on its own flag before it has
// finished (SPEC_FULL.md SUPPLEMENTED FEATURES). sync.Once would simply
// deadlock there; OnceFlag instead returns ErrDeadlk.
type OnceFlag struct {
	k       *Kernel
	state   onceState
	runner  *tcb
	waiters orderedQueue
}

func NewOnceFlag(k *Kernel) *OnceFlag {
	o := &OnceFlag{k: k}
	o.waiters.owner = o
	return o
}

// CallOnce runs fn exactly once across every caller of this OnceFlag,
// blocking concurrent callers until the first caller's fn returns. A
// reentrant call from within fn itself (same thread) returns ErrDeadlk
// immediately rather than blocking forever.
func (o *OnceFlag) CallOnce(tt *ThisThread, fn func()) error {
	k := o.k
	self := tt.self

	k.lock.Lock()
	switch o.state {
	case onceDone:
		k.lock.Unlock()
		return nil
	case onceRunning:
		if o.runner == self {
			k.lock.Unlock()
			return ErrDeadlk
		}
		// There is no dedicated lifecycle state for "blocked on a
		// OnceFlag"; StateBlockedOnMutex is the closest fit (mutual
		// exclusion on the initializer) and is accurate enough for
		// diagnostics.
		err := k.block(self, waitNone, &o.waiters, StateBlockedOnMutex, 0, false)
		if err != nil {
			return err
		}
		return nil
	}

	o.state = onceRunning
	o.runner = self
	k.lock.Unlock()

	fn()

	k.lock.Lock()
	o.state = onceDone
	o.runner = nil
	for {
		head := o.waiters.popHead()
		if head == nil {
			break
		}
		k.unblock(head.self.(*tcb), nil)
	}
	k.settle(self)
	return nil
}
