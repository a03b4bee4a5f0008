package main

import (
	"fmt"

	"github.com/dijkstracula/go-rtkernel/kernel"
)

// scenario bundles one of the end-to-end demonstrations from SPEC_FULL.md
// §8 with a human-readable name, so the CLI can list and dispatch them
// uniformly.
type scenario struct {
	name string
	desc string
	run  func(cfg *cliConfig, reg *registryHolder) ([]string, error)
}

var scenarios = []scenario{
	{"s1", "priority scheduling runs strictly highest-priority-first", runS1},
	{"s2", "round-robin threads interleave where FIFO threads would not", runS2},
	{"s3", "a low-priority mutex owner inherits a blocked high-priority waiter's priority", runS3},
	{"s4", "sleepFor(10) at tick 0 returns at tick 11, never early", runS4},
	{"s5", "notifyAll requeues every waiter onto the mutex in priority order", runS5},
	{"s6", "a queued signal interrupts a blocked semaphore wait with EINTR", runS6},
}

func findScenario(name string) (scenario, bool) {
	for _, s := range scenarios {
		if s.name == name {
			return s, true
		}
	}
	return scenario{}, false
}

// runS1 demonstrates SPEC_FULL.md §8 S1: eight threads at descending
// priorities, each appending its own priority to the log and exiting. Since
// every one of them outranks the priority-2 main thread, Thread.Start runs
// each to completion before returning, so the log ends up in creation
// order regardless of how they're interleaved by the scheduler internally.
func runS1(cfg *cliConfig, reg *registryHolder) ([]string, error) {
	k := kernel.NewKernel(kernel.WithTickPeriod(cfg.TickPeriod), kernel.WithMaxPriority(cfg.MaxPriority))
	defer k.Stop()
	if reg != nil {
		reg.set(k.Registry())
	}

	var order []string
	err := k.Boot(2, kernel.PolicyFIFO, func(tt *kernel.ThisThread) {
		var threads []*kernel.Thread
		for p := uint8(10); p >= 3; p-- {
			th, terr := k.CreateThread("worker", p, kernel.PolicyFIFO, func(tt *kernel.ThisThread) {
				order = append(order, fmt.Sprintf("%d", tt.GetPriority()))
			})
			if terr != nil {
				panic(terr)
			}
			threads = append(threads, th)
		}
		for _, th := range threads {
			if serr := th.Start(tt); serr != nil {
				panic(serr)
			}
		}
		for _, th := range threads {
			if jerr := th.Join(tt); jerr != nil {
				panic(jerr)
			}
		}
	})
	return order, err
}

// runS2 demonstrates SPEC_FULL.md §8 S2: two pairs of equal-priority
// threads, one pair FIFO and one pair round-robin. Each thread emits its id
// and then busy-waits for one configured quantum, twice over. The FIFO pair
// runs to completion in creation order (A,A,B,B); the round-robin pair
// trades the CPU back and forth at each quantum boundary (A,B,A,B).
func runS2(cfg *cliConfig, reg *registryHolder) ([]string, error) {
	k := kernel.NewKernel(
		kernel.WithTickPeriod(cfg.TickPeriod),
		kernel.WithRoundRobinQuantum(cfg.RoundRobinQuantum),
		kernel.WithMaxPriority(cfg.MaxPriority),
	)
	defer k.Stop()
	if reg != nil {
		reg.set(k.Registry())
	}

	var fifoTrace, rrTrace []string
	err := k.Boot(20, kernel.PolicyFIFO, func(tt *kernel.ThisThread) {
		runPair := func(policy kernel.Policy, trace *[]string) {
			a, aerr := k.CreateThread("a", 5, policy, func(tt *kernel.ThisThread) {
				for i := 0; i < 2; i++ {
					*trace = append(*trace, "A")
					tt.BurnTicks(cfg.RoundRobinQuantum)
				}
			})
			if aerr != nil {
				panic(aerr)
			}
			b, berr := k.CreateThread("b", 5, policy, func(tt *kernel.ThisThread) {
				for i := 0; i < 2; i++ {
					*trace = append(*trace, "B")
					tt.BurnTicks(cfg.RoundRobinQuantum)
				}
			})
			if berr != nil {
				panic(berr)
			}
			if serr := a.Start(tt); serr != nil {
				panic(serr)
			}
			if serr := b.Start(tt); serr != nil {
				panic(serr)
			}
			if jerr := a.Join(tt); jerr != nil {
				panic(jerr)
			}
			if jerr := b.Join(tt); jerr != nil {
				panic(jerr)
			}
		}
		runPair(kernel.PolicyFIFO, &fifoTrace)
		runPair(kernel.PolicyRoundRobin, &rrTrace)
	})

	out := append([]string{"fifo: " + joinTrace(fifoTrace)}, "roundRobin: "+joinTrace(rrTrace))
	return out, err
}

func joinTrace(trace []string) string {
	s := ""
	for _, t := range trace {
		s += t
	}
	return s
}

// runS3 demonstrates SPEC_FULL.md §8 S3: a low-priority thread holding a
// priority-inheritance mutex is boosted to the priority of a higher-priority
// thread blocked on that same mutex, letting it finish and release ahead of
// a medium-priority thread that would otherwise have preempted it.
func runS3(cfg *cliConfig, reg *registryHolder) ([]string, error) {
	k := kernel.NewKernel(kernel.WithTickPeriod(cfg.TickPeriod), kernel.WithMaxPriority(cfg.MaxPriority))
	defer k.Stop()
	if reg != nil {
		reg.set(k.Registry())
	}

	var order []string
	err := k.Boot(50, kernel.PolicyFIFO, func(tt *kernel.ThisThread) {
		m := kernel.NewMutex(k, kernel.MutexNormal, kernel.ProtocolPriorityInheritance, 0)
		gate := kernel.NewSemaphore(k, 0, 1)

		low, lerr := k.CreateThread("low", 1, kernel.PolicyFIFO, func(tt *kernel.ThisThread) {
			mustNoErr(m.Lock(tt))
			mustNoErr(gate.Post(tt))
			tt.BurnTicks(3)
			order = append(order, "low-done")
			mustNoErr(m.Unlock(tt))
		})
		mustNoErr(lerr)
		medium, merr := k.CreateThread("medium", 5, kernel.PolicyFIFO, func(tt *kernel.ThisThread) {
			order = append(order, "medium")
		})
		mustNoErr(merr)
		high, herr := k.CreateThread("high", 10, kernel.PolicyFIFO, func(tt *kernel.ThisThread) {
			mustNoErr(m.Lock(tt))
			order = append(order, "high-acquired")
			mustNoErr(m.Unlock(tt))
		})
		mustNoErr(herr)

		mustNoErr(low.Start(tt))
		mustNoErr(gate.Wait(tt))
		mustNoErr(medium.Start(tt))
		mustNoErr(high.Start(tt))

		mustNoErr(low.Join(tt))
		mustNoErr(medium.Join(tt))
		mustNoErr(high.Join(tt))
	})
	return order, err
}

// runS4 demonstrates SPEC_FULL.md §8 S4: sleepFor(10) called at tick 0
// returns at tick 11: 10 full ticks plus the one tick sleepFor adds for
// rounding.
func runS4(cfg *cliConfig, reg *registryHolder) ([]string, error) {
	k := kernel.NewKernel(kernel.WithTickPeriod(cfg.TickPeriod), kernel.WithMaxPriority(cfg.MaxPriority))
	defer k.Stop()
	if reg != nil {
		reg.set(k.Registry())
	}

	var log []string
	err := k.Boot(50, kernel.PolicyFIFO, func(tt *kernel.ThisThread) {
		th, terr := k.CreateThread("sleeper", 60, kernel.PolicyFIFO, func(tt *kernel.ThisThread) {
			log = append(log, fmt.Sprintf("sleepFor(10) at now=%d", int64(k.Now())))
			mustNoErr(tt.SleepFor(10))
			log = append(log, fmt.Sprintf("woke at now=%d", int64(k.Now())))
		})
		mustNoErr(terr)
		mustNoErr(th.Start(tt))
		for i := 0; i < 11; i++ {
			k.TickHandler()
		}
		mustNoErr(th.Join(tt))
	})
	return log, err
}

// runS5 demonstrates SPEC_FULL.md §8 S5: notifyAll requeues both waiters
// onto the mutex's own waiter queue in priority order, so the
// higher-priority thread reacquires the mutex first even though it neither
// called wait nor notify first.
func runS5(cfg *cliConfig, reg *registryHolder) ([]string, error) {
	k := kernel.NewKernel(kernel.WithTickPeriod(cfg.TickPeriod), kernel.WithMaxPriority(cfg.MaxPriority))
	defer k.Stop()
	if reg != nil {
		reg.set(k.Registry())
	}

	var order []string
	err := k.Boot(2, kernel.PolicyFIFO, func(tt *kernel.ThisThread) {
		m := kernel.NewMutex(k, kernel.MutexNormal, kernel.ProtocolNone, 0)
		cv := kernel.NewConditionVariable(k)
		ready := false

		waiter := func(name string, priority uint8) *kernel.Thread {
			th, terr := k.CreateThread(name, priority, kernel.PolicyFIFO, func(tt *kernel.ThisThread) {
				mustNoErr(m.Lock(tt))
				order = append(order, name+"-locked")
				for !ready {
					mustNoErr(cv.Wait(tt, m))
				}
				order = append(order, name+"-woken")
				mustNoErr(m.Unlock(tt))
			})
			mustNoErr(terr)
			return th
		}

		low := waiter("low", 3)
		high := waiter("high", 7)
		mustNoErr(low.Start(tt))
		mustNoErr(high.Start(tt))

		mustNoErr(m.Lock(tt))
		ready = true
		cv.NotifyAll(tt)
		mustNoErr(m.Unlock(tt))

		mustNoErr(low.Join(tt))
		mustNoErr(high.Join(tt))
	})
	return order, err
}

// runS6 demonstrates SPEC_FULL.md §8 S6: a thread blocked on a zero-valued
// semaphore is interrupted by a queued signal rather than by a post, and
// the semaphore's value is unaffected by the interruption.
func runS6(cfg *cliConfig, reg *registryHolder) ([]string, error) {
	k := kernel.NewKernel(kernel.WithTickPeriod(cfg.TickPeriod), kernel.WithMaxPriority(cfg.MaxPriority))
	defer k.Stop()
	if reg != nil {
		reg.set(k.Registry())
	}

	var log []string
	var targetTT *kernel.ThisThread // captured by t's own entry so main can signal it, exactly as a real caller must
	err := k.Boot(50, kernel.PolicyFIFO, func(tt *kernel.ThisThread) {
		s := kernel.NewSemaphore(k, 0, 1)

		th, terr := k.CreateThread("t", 60, kernel.PolicyFIFO, func(tt *kernel.ThisThread) {
			targetTT = tt
			log = append(log, "t-blocking")
			err := s.Wait(tt)
			log = append(log, fmt.Sprintf("t-returned: %v (value=%d)", err, s.GetValue()))
		})
		mustNoErr(terr)
		mustNoErr(th.Start(tt)) // t outranks main: captures targetTT and blocks on s before this returns

		mustNoErr(k.QueueSignal(targetTT, 3, 0, false))

		mustNoErr(th.Join(tt))

		mustNoErr(s.Post(tt))
		log = append(log, fmt.Sprintf("value after post=%d", s.GetValue()))
	})
	return log, err
}

func mustNoErr(err error) {
	if err != nil {
		panic(err)
	}
}
