package kernel

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSleepForZeroOrNegativeReturnsImmediately(t *testing.T) {
	k := newTestKernel(t)
	err := k.Boot(10, PolicyFIFO, func(tt *ThisThread) {
		require.NoError(t, tt.SleepFor(0))
		require.NoError(t, tt.SleepFor(-5))
	})
	require.NoError(t, err)
}

func TestSleepUntilPastDeadlineReturnsImmediately(t *testing.T) {
	k := newTestKernel(t)
	err := k.Boot(10, PolicyFIFO, func(tt *ThisThread) {
		require.NoError(t, tt.SleepUntil(tt.kernel.Now()))
	})
	require.NoError(t, err)
}

// TestSleepForElapsesRequestedTicks has a higher-priority thread record the
// tick it fell asleep at, sleep, and record the tick it woke on; main
// drives ticks manually since the sleeper itself is blocked the whole time.
func TestSleepForElapsesRequestedTicks(t *testing.T) {
	k := newTestKernel(t)
	var start, end Tick
	err := k.Boot(50, PolicyFIFO, func(tt *ThisThread) {
		th, err := k.CreateThread("w", 60, PolicyFIFO, func(tt *ThisThread) {
			start = tt.kernel.Now()
			require.NoError(t, tt.SleepFor(3))
			end = tt.kernel.Now()
		})
		require.NoError(t, err)
		require.NoError(t, th.Start(tt)) // th outranks main: records start and blocks before Start returns

		for i := 0; i < 4; i++ {
			k.TickHandler()
		}
		require.NoError(t, th.Join(tt))
	})
	require.NoError(t, err)
	assert.Equal(t, Tick(0), start)
	assert.GreaterOrEqual(t, int64(end-start), int64(3))
}
