package kernel

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTimerOneShotFiresOnDeadline(t *testing.T) {
	k := newTestKernel(t)
	fires := 0
	tm := NewTimer(k, func() { fires++ })
	tm.Start(3, 0)

	for i := 0; i < 2; i++ {
		k.TickHandler()
	}
	assert.Equal(t, 0, fires)

	k.TickHandler()
	assert.Equal(t, 1, fires)

	k.TickHandler() // one-shot: never fires again
	assert.Equal(t, 1, fires)
}

func TestTimerStopPreventsFurtherFires(t *testing.T) {
	k := newTestKernel(t)
	fires := 0
	tm := NewTimer(k, func() { fires++ })
	tm.Start(1, 1)

	k.TickHandler()
	require.Equal(t, 1, fires)

	tm.Stop()
	for i := 0; i < 3; i++ {
		k.TickHandler()
	}
	assert.Equal(t, 1, fires)
}

func TestTimerDestroyThenStartIsNoop(t *testing.T) {
	k := newTestKernel(t)
	fires := 0
	tm := NewTimer(k, func() { fires++ })
	tm.Destroy()
	tm.Start(1, 0) // stale handle: lookup fails silently, nothing is armed

	for i := 0; i < 3; i++ {
		k.TickHandler()
	}
	assert.Equal(t, 0, fires)
}

// TestTimerPeriodicCatchUpFiresOncePerMissedPeriod starts a periodic timer
// with a deadline already far in the past (simulating a large missed-tick
// backlog) and confirms the default (non-coalescing) policy burns down the
// backlog one period at a time without skipping any of it, firing on every
// tick until it catches up.
func TestTimerPeriodicCatchUpFiresOncePerMissedPeriod(t *testing.T) {
	k := newTestKernel(t) // TimerCoalesce defaults to false
	var fires []Tick
	tm := NewTimer(k, func() { fires = append(fires, k.Now()) })
	tm.Start(-10, 2)

	for i := 0; i < 6; i++ {
		k.TickHandler()
	}
	assert.Equal(t, []Tick{1, 2, 3, 4, 5, 6}, fires)
}

// TestTimerPeriodicCoalesceResyncsToFuture exercises the opposite policy on
// the same backlog: the timer fires once to clear the backlog and resyncs
// its deadline relative to "now" instead of the missed deadline, so it
// settles into a clean once-per-period cadence immediately.
func TestTimerPeriodicCoalesceResyncsToFuture(t *testing.T) {
	k := newTestKernel(t, WithTimerCoalesce(true))
	var fires []Tick
	tm := NewTimer(k, func() { fires = append(fires, k.Now()) })
	tm.Start(-10, 2)

	for i := 0; i < 6; i++ {
		k.TickHandler()
	}
	assert.Equal(t, []Tick{1, 3, 5}, fires)
}
