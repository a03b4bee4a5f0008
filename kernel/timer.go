package kernel

import "sort"

// swTimer is a single software timer (SPEC_FULL.md §4.4 C6): a callback
// scheduled to run on the tick handler's own goroutine at (or after) a
// deadline, optionally repeating.
type swTimer struct {
	deadline Tick
	period   Duration // 0 for one-shot
	callback func()
	armed    bool
	seq      uint64 // arming order, breaks deadline ties in fireDue
}

// TimerHandle identifies a timer for Start/Stop/Destroy, following the same
// generation-tagged-arena pattern as ThreadID rather than exposing a raw
// pointer (SPEC_FULL.md Design Notes).
type TimerHandle struct {
	slot       int32
	generation uint32
}

type timerSlot struct {
	timer      *swTimer
	generation uint32
}

// timerManager owns every software timer a Kernel has created. A deadline
// isn't a uint8 priority, so timers can't reuse the orderedQueue bitmap
// scheme the scheduler and blocking primitives share (C3); pending timers
// are instead kept in a flat slice and fireDue does a linear scan each
// tick, which is adequate for the small timer counts typical of a
// deeply-embedded target.
type timerManager struct {
	k       *Kernel
	slots   []timerSlot
	free    []int32
	pending []*swTimer
	nextSeq uint64
}

func newTimerManager(k *Kernel) *timerManager {
	return &timerManager{k: k}
}

// Create registers a new timer in the disarmed state; call Start to arm it.
// Caller must hold k.lock.
func (tm *timerManager) create(callback func()) TimerHandle {
	t := &swTimer{callback: callback}
	if n := len(tm.free); n > 0 {
		slot := tm.free[n-1]
		tm.free = tm.free[:n-1]
		tm.slots[slot].timer = t
		return TimerHandle{slot: slot, generation: tm.slots[slot].generation}
	}
	slot := int32(len(tm.slots))
	tm.slots = append(tm.slots, timerSlot{timer: t})
	return TimerHandle{slot: slot, generation: 0}
}

func (tm *timerManager) lookup(h TimerHandle) *swTimer {
	if h.slot < 0 || int(h.slot) >= len(tm.slots) {
		return nil
	}
	s := &tm.slots[h.slot]
	if s.generation != h.generation || s.timer == nil {
		return nil
	}
	return s.timer
}

// start arms (or re-arms) a timer to first fire at now+delay, repeating
// every period ticks thereafter if period > 0.
func (tm *timerManager) start(h TimerHandle, now Tick, delay Duration, period Duration) {
	t := tm.lookup(h)
	if t == nil {
		return
	}
	if t.armed {
		tm.unlink(t)
	}
	t.deadline = now.Add(delay)
	t.period = period
	t.armed = true
	t.seq = tm.nextSeq
	tm.nextSeq++
	tm.pending = append(tm.pending, t)
}

func (tm *timerManager) stop(h TimerHandle) {
	t := tm.lookup(h)
	if t == nil || !t.armed {
		return
	}
	tm.unlink(t)
}

func (tm *timerManager) destroy(h TimerHandle) {
	t := tm.lookup(h)
	if t == nil {
		return
	}
	if t.armed {
		tm.unlink(t)
	}
	tm.slots[h.slot].timer = nil
	tm.slots[h.slot].generation++
	tm.free = append(tm.free, h.slot)
}

func (tm *timerManager) unlink(t *swTimer) {
	for i, p := range tm.pending {
		if p == t {
			tm.pending[i] = tm.pending[len(tm.pending)-1]
			tm.pending = tm.pending[:len(tm.pending)-1]
			break
		}
	}
	t.armed = false
}

// Timer is a software timer bound to a Kernel's tick clock (SPEC_FULL.md
// §4.4 C6). Its callback runs on the tick handler's own goroutine with the
// scheduler lock held, so it must not block and must not perform unbounded
// work -- the same ISR-context constraint as Semaphore.PostISR.
type Timer struct {
	k *Kernel
	h TimerHandle
}

// NewTimer creates a disarmed timer; call Start to arm it.
func NewTimer(k *Kernel, callback func()) *Timer {
	k.lock.Lock()
	h := k.timers.create(callback)
	k.lock.Unlock()
	return &Timer{k: k, h: h}
}

// Start arms (or re-arms) the timer to first fire at Now()+delay,
// repeating every period ticks thereafter if period > 0; a zero period is
// one-shot.
func (t *Timer) Start(delay, period Duration) {
	k := t.k
	k.lock.Lock()
	defer k.lock.Unlock()
	k.timers.start(t.h, k.clock.now, delay, period)
}

// Stop disarms the timer. It can be re-armed later with Start.
func (t *Timer) Stop() {
	k := t.k
	k.lock.Lock()
	defer k.lock.Unlock()
	k.timers.stop(t.h)
}

// Destroy disarms and releases the timer's slot for reuse; t must not be
// used afterward.
func (t *Timer) Destroy() {
	k := t.k
	k.lock.Lock()
	defer k.lock.Unlock()
	k.timers.destroy(t.h)
}

// fireDue runs every timer whose deadline has elapsed, re-arming periodic
// ones. Called from TickHandler with k.lock already held; callbacks
// therefore run with the scheduler lock held and must not call any kernel
// operation that acquires k.lock itself, which includes Semaphore.Post,
// Semaphore.PostISR and Kernel.QueueSignal. No operation is provided that
// a callback can use to wake a thread (SPEC_FULL.md §4.4 C6).
func (tm *timerManager) fireDue(now Tick) {
	if len(tm.pending) == 0 {
		return
	}
	due := tm.pending[:0:0]
	rest := tm.pending[:0]
	for _, t := range tm.pending {
		if t.deadline.Before(now + 1) { // deadline <= now: due
			due = append(due, t)
		} else {
			rest = append(rest, t)
		}
	}
	tm.pending = rest

	// Fire in deadline order, ties broken by arming order: a periodic timer
	// catching up several missed ticks, or two timers becoming due on the
	// same tick, must not fire in whatever order they happen to sit in
	// tm.pending (SPEC_FULL.md §4.3/§4.4).
	sort.Slice(due, func(i, j int) bool {
		if due[i].deadline != due[j].deadline {
			return due[i].deadline.Before(due[j].deadline)
		}
		return due[i].seq < due[j].seq
	})

	for _, t := range due {
		if t.period > 0 {
			if tm.k.cfg.TimerCoalesce {
				t.deadline = now.Add(t.period)
			} else {
				t.deadline = t.deadline.Add(t.period)
			}
			t.seq = tm.nextSeq
			tm.nextSeq++
			tm.pending = append(tm.pending, t)
		} else {
			t.armed = false
		}
		t.callback()
	}
}
