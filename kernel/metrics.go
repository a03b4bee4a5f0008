package kernel

import "github.com/prometheus/client_golang/prometheus"

// kernelMetrics wires the scheduler's internal counters to prometheus
// client_golang, grounding SPEC_FULL.md's DOMAIN STACK section. Every
// Kernel gets its own registry rather than registering into the global
// default one, so multiple kernels (e.g. in tests) never collide on metric
// names.
type kernelMetrics struct {
	registry *prometheus.Registry

	contextSwitches prometheus.Counter
	preemptions     prometheus.Counter
	ticks           prometheus.Counter
	readyDepth      prometheus.Gauge
	mutexContention prometheus.Counter
	semContention   prometheus.Counter
	condContention  prometheus.Counter
	signalsQueued   prometheus.Counter
	signalsDropped  prometheus.Counter
}

func newKernelMetrics() *kernelMetrics {
	reg := prometheus.NewRegistry()
	m := &kernelMetrics{
		registry: reg,
		contextSwitches: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "rtkernel_context_switches_total",
			Help: "Number of times the scheduler handed the baton to a different thread.",
		}),
		preemptions: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "rtkernel_preemptions_total",
			Help: "Number of context switches that displaced a still-runnable thread.",
		}),
		ticks: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "rtkernel_ticks_total",
			Help: "Number of tick handler invocations.",
		}),
		readyDepth: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "rtkernel_ready_queue_depth",
			Help: "Number of threads currently runnable but not running.",
		}),
		mutexContention: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "rtkernel_mutex_contended_total",
			Help: "Number of Mutex.Lock calls that had to block.",
		}),
		semContention: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "rtkernel_semaphore_contended_total",
			Help: "Number of Semaphore.Wait calls that had to block.",
		}),
		condContention: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "rtkernel_condvar_waits_total",
			Help: "Number of ConditionVariable.Wait calls.",
		}),
		signalsQueued: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "rtkernel_signals_queued_total",
			Help: "Number of signals delivered into a thread's value queue.",
		}),
		signalsDropped: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "rtkernel_signals_dropped_total",
			Help: "Number of signals that overflowed a thread's queue depth and fell back to the pending set.",
		}),
	}
	reg.MustRegister(
		m.contextSwitches, m.preemptions, m.ticks, m.readyDepth,
		m.mutexContention, m.semContention, m.condContention,
		m.signalsQueued, m.signalsDropped,
	)
	return m
}

// Registry exposes the kernel's private prometheus registry so a host
// process can mount it under an HTTP handler (see cmd/rtsim).
func (k *Kernel) Registry() *prometheus.Registry {
	return k.metrics.registry
}
