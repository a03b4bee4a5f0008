package kernel

// State is one of the thread lifecycle states enumerated in SPEC_FULL.md
// §4.2.
type State int

const (
	StateCreated State = iota
	StateRunnable
	StateRunning
	StateSleeping
	StateBlockedOnMutex
	StateBlockedOnConditionVariable
	StateBlockedOnSemaphore
	StateBlockedOnSignal
	StateBlockedOnJoin
	StateSuspended
	StateTerminated
	StateDetached
)

func (s State) String() string {
	switch s {
	case StateCreated:
		return "created"
	case StateRunnable:
		return "runnable"
	case StateRunning:
		return "running"
	case StateSleeping:
		return "sleeping"
	case StateBlockedOnMutex:
		return "blockedOnMutex"
	case StateBlockedOnConditionVariable:
		return "blockedOnConditionVariable"
	case StateBlockedOnSemaphore:
		return "blockedOnSemaphore"
	case StateBlockedOnSignal:
		return "blockedOnSignal"
	case StateBlockedOnJoin:
		return "blockedOnJoin"
	case StateSuspended:
		return "suspended"
	case StateTerminated:
		return "terminated"
	case StateDetached:
		return "detached"
	default:
		return "unknown"
	}
}

// Policy is a thread's scheduling policy tag (SPEC_FULL.md §4.3).
type Policy int

const (
	PolicyFIFO Policy = iota
	PolicyRoundRobin
)

func (p Policy) String() string {
	if p == PolicyRoundRobin {
		return "roundRobin"
	}
	return "fifo"
}

// waitKind records which primitive a blocked thread is waiting on. State
// is authoritative for scheduling; waitKind additionally distinguishes a
// plain sleep from a genuine timed wait so TickHandler knows which result
// a tick-driven expiry should carry (nil vs ErrTimedout).
type waitKind int

const (
	waitNone waitKind = iota
	waitMutex
	waitCondVar
	waitSemaphore
	waitSignal
	waitJoin
	waitSleep
)

// tcb is the thread control block described in SPEC_FULL.md §3. Kernel
// code must hold Kernel.lock while reading or writing any field below
// except resume, name and entry, which are immutable after creation.
type tcb struct {
	id   ThreadID
	name string

	basePriority uint8
	effPriority  uint8
	policy       Policy
	quantumLeft  int

	state State
	wait  waitKind

	node qnode // the thread's single reusable queue node (ready queue or a wait queue)

	waitResult error // reason the unblocking party wrote before waking this thread
	hasDeadline bool
	deadline    Tick // absolute tick at which a timed wait expires

	pendingSignals uint32
	signalQueue    []sigRecord
	signalActions  map[uint32]SignalAction
	awaitedSignals uint32 // valid only while wait == waitSignal

	hasPendingHandler bool
	pendingHandlerNum int
	pendingHandlerVal SignalInformation

	ownedMutexes []*Mutex // chain used to recompute effective priority on unlock and on thread exit

	joinWaiters []*tcb // threads parked in StateBlockedOnJoin on this one
	detachable  bool
	detached    bool

	interruptible bool // whether the current block call honors pending signals

	timedIdx int // position in Kernel.timedWaiters, or -1 if not tracked there

	resume chan struct{} // closed/sent-to by the scheduler when this thread is chosen to run
	entry  func(*ThisThread)
	err    error // non-nil if entry panicked; surfaced to Join

	started     bool
	exited      bool
	arenaFreed  bool // guards against releasing the same arena slot twice when multiple threads Join the same target
	kernelSide  bool // true for the idle thread and other kernel-internal pseudo-threads
}

func newTCB(name string, priority uint8, policy Policy, quantum int, entry func(*ThisThread)) *tcb {
	return &tcb{
		name:         name,
		basePriority: priority,
		effPriority:  priority,
		policy:       policy,
		quantumLeft:  quantum,
		state:        StateCreated,
		detachable:   true,
		timedIdx:     -1,
		resume:       make(chan struct{}, 1),
		entry:        entry,
	}
}

// wake is how the scheduler delivers a turn to a parked thread goroutine;
// it must only be called by Kernel while holding the scheduler's baton
// decision, i.e. from inside applyPendingSwitch (or by Stop, to release the
// idle goroutine).
func (t *tcb) wake() {
	select {
	case t.resume <- struct{}{}:
	default:
		// already has a pending wake; at most one is ever needed since the
		// thread consumes it before it could be sent again.
	}
}
