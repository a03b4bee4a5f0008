package kernel

import (
	"time"

	"go.uber.org/zap"
)

// Config is the compile-time configuration surface described in
// SPEC_FULL.md §6: it is fixed for the lifetime of a Kernel, mirroring the
// original target where these are preprocessor/Kconfig options rather than
// runtime-mutable state.
type Config struct {
	// TickPeriod is the wall-clock duration of one kernel tick when driven
	// by RunTickSource. Tests normally drive ticks manually via Tick()
	// instead and can ignore this field.
	TickPeriod time.Duration

	// MaxPriority is the highest priority value a thread may hold; 0 is
	// always reserved for the idle thread (SPEC_FULL.md §3).
	MaxPriority uint8

	// MaxSignal is the exclusive upper bound of valid signal numbers (K in
	// "a signal number is in [0, K)").
	MaxSignal uint32

	// SignalQueueDepth is the bounded per-thread queued-signal FIFO depth.
	SignalQueueDepth int

	// DetachEnabled controls whether Thread.Detach is permitted at all; if
	// false every call returns ErrNotsup, matching a build with the feature
	// compiled out.
	DetachEnabled bool

	// SignalsEnabled mirrors DetachEnabled for the signals subsystem.
	SignalsEnabled bool

	// RoundRobinQuantum is the number of ticks a round-robin thread may run
	// before being rotated behind equal-priority peers.
	RoundRobinQuantum int

	// TimerCoalesce controls catch-up policy for a periodic software timer
	// that has missed one or more ticks (SPEC_FULL.md Open Questions): when
	// false (the default) the timer fires once per missed period, "catching
	// up" without skipping; when true it coalesces any backlog into a
	// single immediate fire and resynchronizes its deadline to the future.
	TimerCoalesce bool

	// Logger receives kernel diagnostics and the fatal-condition log record
	// emitted just before the panic hook halts.
	Logger *zap.Logger
}

// Option mutates a Config being built by NewKernel.
type Option func(*Config)

// DefaultConfig returns the configuration used when no options override it.
func DefaultConfig() Config {
	return Config{
		TickPeriod:        time.Millisecond,
		MaxPriority:       255,
		MaxSignal:         32,
		SignalQueueDepth:  4,
		DetachEnabled:     true,
		SignalsEnabled:    true,
		RoundRobinQuantum: 10,
		TimerCoalesce:     false,
		Logger:            zap.NewNop(),
	}
}

func WithTickPeriod(d time.Duration) Option  { return func(c *Config) { c.TickPeriod = d } }
func WithMaxPriority(p uint8) Option         { return func(c *Config) { c.MaxPriority = p } }
func WithMaxSignal(n uint32) Option          { return func(c *Config) { c.MaxSignal = n } }
func WithSignalQueueDepth(n int) Option      { return func(c *Config) { c.SignalQueueDepth = n } }
func WithDetachEnabled(enabled bool) Option  { return func(c *Config) { c.DetachEnabled = enabled } }
func WithSignalsEnabled(enabled bool) Option { return func(c *Config) { c.SignalsEnabled = enabled } }
func WithRoundRobinQuantum(ticks int) Option { return func(c *Config) { c.RoundRobinQuantum = ticks } }
func WithTimerCoalesce(coalesce bool) Option { return func(c *Config) { c.TimerCoalesce = coalesce } }
func WithLogger(logger *zap.Logger) Option   { return func(c *Config) { c.Logger = logger } }
