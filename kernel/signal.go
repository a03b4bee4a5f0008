package kernel

import "math/bits"

// sigRecord is one entry in a thread's bounded queued-signal FIFO
// (SPEC_FULL.md §3: "a bounded FIFO of (signalNumber, value) pairs").
type sigRecord struct {
	num   uint32
	value int32
}

// SignalInformation is delivered to a registered handler, or returned by
// Signals.Wait/TryWaitFor/TryWaitUntil, describing which signal arrived.
type SignalInformation struct {
	Number   uint32
	Value    int32
	HasValue bool
}

// SignalAction is a handler a thread registers for a given signal number;
// it runs on the receiving thread's own goroutine, either the next time
// that thread is scheduled after an interrupting delivery (SPEC_FULL.md
// SUPPLEMENTED FEATURES: handler-before-EINTR ordering) or never, if the
// thread only ever consumes the signal via an explicit Wait call.
type SignalAction struct {
	Handler func(SignalInformation)
}

// Signals groups the per-thread signal operations, mirroring
// ThisThread.Signals in the original API surface.
type Signals struct {
	tt *ThisThread
}

// SetAction installs (or clears, with a nil Handler) the action run when
// num is delivered while the receiving thread is blocked elsewhere.
func (s Signals) SetAction(num uint32, action SignalAction) error {
	k := s.tt.kernel
	if !k.cfg.SignalsEnabled {
		return ErrNotsup
	}
	if num >= k.cfg.MaxSignal {
		return ErrInval
	}
	k.lock.Lock()
	defer k.lock.Unlock()
	self := s.tt.self
	if self.signalActions == nil {
		self.signalActions = make(map[uint32]SignalAction)
	}
	if action.Handler == nil {
		delete(self.signalActions, num)
	} else {
		self.signalActions[num] = action
	}
	return nil
}

// GetPendingSignalSet returns the bitset of signal numbers currently
// pending (delivered without a value, or queued) on the calling thread.
func (s Signals) GetPendingSignalSet() uint32 {
	k := s.tt.kernel
	k.lock.Lock()
	defer k.lock.Unlock()
	self := s.tt.self
	pending := self.pendingSignals
	for _, r := range self.signalQueue {
		pending |= 1 << r.num
	}
	return pending
}

// Wait blocks the calling thread until at least one signal in set is
// pending or queued, then consumes and returns one: the oldest queued
// record whose number is in set or, if none is queued, the lowest-numbered
// pending signal in set.
func (s Signals) Wait(set uint32) (SignalInformation, error) {
	return s.doWait(set, 0, false)
}

// TryWaitFor is Wait bounded by a relative tick timeout.
func (s Signals) TryWaitFor(set uint32, timeout Duration) (SignalInformation, error) {
	return s.doWait(set, s.tt.kernel.Now().Add(timeout), true)
}

// TryWaitUntil is Wait bounded by an absolute tick deadline.
func (s Signals) TryWaitUntil(set uint32, deadline Tick) (SignalInformation, error) {
	return s.doWait(set, deadline, true)
}

func (s Signals) doWait(set uint32, deadline Tick, hasDeadline bool) (SignalInformation, error) {
	k := s.tt.kernel
	self := s.tt.self
	if !k.cfg.SignalsEnabled {
		return SignalInformation{}, ErrNotsup
	}

	k.lock.Lock()
	if info, ok := self.consumeMatching(set); ok {
		k.lock.Unlock()
		return info, nil
	}
	if hasDeadline && deadline.Before(k.clock.now+1) {
		k.lock.Unlock()
		return SignalInformation{}, ErrTimedout
	}

	self.awaitedSignals = set
	self.state = StateBlockedOnSignal
	self.wait = waitSignal
	self.waitResult = nil
	self.interruptible = false // only a signal in set itself can wake this wait
	self.hasDeadline = hasDeadline
	if hasDeadline {
		self.deadline = deadline
		self.timedIdx = len(k.timedWaiters)
		k.timedWaiters = append(k.timedWaiters, self)
	}
	k.running = nil
	k.settle(self)

	if err := self.waitResult; err != nil {
		return SignalInformation{}, err
	}
	k.lock.Lock()
	info, _ := self.consumeMatching(set)
	k.lock.Unlock()
	return info, nil
}

// consumeMatching removes and returns a signal in set from t, if any: the
// oldest matching queued record first, otherwise the lowest-numbered
// matching pending bit. Caller must hold k.lock.
func (t *tcb) consumeMatching(set uint32) (SignalInformation, bool) {
	for i, r := range t.signalQueue {
		if set&(1<<r.num) != 0 {
			t.signalQueue = append(t.signalQueue[:i], t.signalQueue[i+1:]...)
			return SignalInformation{Number: r.num, Value: r.value, HasValue: true}, true
		}
	}
	masked := t.pendingSignals & set
	if masked != 0 {
		num := uint32(bits.TrailingZeros32(masked))
		t.pendingSignals &^= 1 << num
		return SignalInformation{Number: num}, true
	}
	return SignalInformation{}, false
}

// QueueSignal delivers num (optionally carrying value) to target, from any
// goroutine -- another thread or an "ISR-context" caller with no
// ThisThread of its own. If target is blocked in Signals.Wait on a set
// that contains num, it is woken immediately with that signal consumed. If
// target is blocked elsewhere on an interruptible wait, that wait is
// unwound with EINTR, running any registered handler for num first, on
// target's own goroutine, before the interrupted call returns
// (SPEC_FULL.md SUPPLEMENTED FEATURES).
func (k *Kernel) QueueSignal(target *ThisThread, num uint32, value int32, hasValue bool) error {
	if !k.cfg.SignalsEnabled {
		return ErrNotsup
	}
	if num >= k.cfg.MaxSignal {
		return ErrInval
	}
	k.lock.Lock()
	defer k.lock.Unlock()

	t := target.self
	if hasValue && len(t.signalQueue) < k.cfg.SignalQueueDepth {
		t.signalQueue = append(t.signalQueue, sigRecord{num: num, value: value})
		k.metrics.signalsQueued.Inc()
	} else {
		t.pendingSignals |= 1 << num
		if hasValue {
			k.metrics.signalsDropped.Inc()
		}
	}

	switch {
	case t.wait == waitSignal:
		if t.awaitedSignals&(1<<num) != 0 {
			k.unblock(t, nil)
		}
	case t.interruptible && t.wait != waitNone:
		if action, ok := t.signalActions[num]; ok && action.Handler != nil {
			t.hasPendingHandler = true
			t.pendingHandlerNum = int(num)
			t.pendingHandlerVal = SignalInformation{Number: num, Value: value, HasValue: hasValue}
		}
		k.unblock(t, ErrIntr)
	}
	return nil
}
