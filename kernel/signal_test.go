package kernel

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSignalImmediateConsumeWhenAlreadyPending(t *testing.T) {
	k := newTestKernel(t)
	err := k.Boot(10, PolicyFIFO, func(tt *ThisThread) {
		require.NoError(t, k.QueueSignal(tt, 3, 0, false))
		info, err := tt.Signals().Wait(1 << 3)
		require.NoError(t, err)
		assert.Equal(t, uint32(3), info.Number)
		assert.False(t, info.HasValue)
	})
	require.NoError(t, err)
}

// TestSignalWaitBlocksThenDelivered has a higher-priority thread block in
// Signals.Wait on a specific set, then has main queue a matching signal at
// it from the outside -- the white-box *ThisThread construction below
// stands in for an external "another thread's" delivery, since QueueSignal
// only needs the target's tcb, not a live goroutine calling through it.
func TestSignalWaitBlocksThenDelivered(t *testing.T) {
	k := newTestKernel(t)
	var info SignalInformation
	var waitErr error
	err := k.Boot(50, PolicyFIFO, func(tt *ThisThread) {
		th, err := k.CreateThread("w", 60, PolicyFIFO, func(tt *ThisThread) {
			info, waitErr = tt.Signals().Wait(1 << 2)
		})
		require.NoError(t, err)
		require.NoError(t, th.Start(tt)) // th outranks main: blocks in Wait before Start returns

		target, err := th.tcb()
		require.NoError(t, err)
		require.NoError(t, k.QueueSignal(&ThisThread{kernel: k, self: target}, 2, 0, false))

		require.NoError(t, th.Join(tt))
	})
	require.NoError(t, err)
	require.NoError(t, waitErr)
	assert.Equal(t, uint32(2), info.Number)
	assert.False(t, info.HasValue)
}

// TestSignalInterruptsGenericBlockingWait delivers a signal nothing in the
// semaphore's own waiter set is listening for; it still unwinds the
// blocking Wait with EINTR, since any delivered signal interrupts a
// generic interruptible wait regardless of number.
func TestSignalInterruptsGenericBlockingWait(t *testing.T) {
	k := newTestKernel(t)
	var waitErr error
	err := k.Boot(50, PolicyFIFO, func(tt *ThisThread) {
		s := NewSemaphore(k, 0, 1)
		th, err := k.CreateThread("w", 60, PolicyFIFO, func(tt *ThisThread) {
			waitErr = s.Wait(tt)
		})
		require.NoError(t, err)
		require.NoError(t, th.Start(tt))

		target, err := th.tcb()
		require.NoError(t, err)
		require.NoError(t, k.QueueSignal(&ThisThread{kernel: k, self: target}, 7, 0, false))

		require.NoError(t, th.Join(tt))
	})
	require.NoError(t, err)
	assert.ErrorIs(t, waitErr, ErrIntr)
}

// TestSignalHandlerRunsBeforeEINTRDelivery confirms a registered handler
// runs on the interrupted thread's own goroutine before the interrupted
// call observes EINTR.
func TestSignalHandlerRunsBeforeEINTRDelivery(t *testing.T) {
	k := newTestKernel(t)
	var waitErr error
	var handlerInfo SignalInformation
	var handlerCalled bool
	err := k.Boot(50, PolicyFIFO, func(tt *ThisThread) {
		s := NewSemaphore(k, 0, 1)
		th, err := k.CreateThread("w", 60, PolicyFIFO, func(tt *ThisThread) {
			require.NoError(t, tt.Signals().SetAction(9, SignalAction{Handler: func(info SignalInformation) {
				handlerCalled = true
				handlerInfo = info
			}}))
			waitErr = s.Wait(tt)
		})
		require.NoError(t, err)
		require.NoError(t, th.Start(tt))

		target, err := th.tcb()
		require.NoError(t, err)
		require.NoError(t, k.QueueSignal(&ThisThread{kernel: k, self: target}, 9, 42, true))

		require.NoError(t, th.Join(tt))
	})
	require.NoError(t, err)
	assert.ErrorIs(t, waitErr, ErrIntr)
	require.True(t, handlerCalled)
	assert.Equal(t, uint32(9), handlerInfo.Number)
	assert.Equal(t, int32(42), handlerInfo.Value)
	assert.True(t, handlerInfo.HasValue)
}

func TestSignalsDisabledReturnsErrNotsup(t *testing.T) {
	k := newTestKernel(t, WithSignalsEnabled(false))
	err := k.Boot(10, PolicyFIFO, func(tt *ThisThread) {
		_, waitErr := tt.Signals().Wait(1)
		assert.ErrorIs(t, waitErr, ErrNotsup)
		assert.ErrorIs(t, tt.Signals().SetAction(0, SignalAction{}), ErrNotsup)
	})
	require.NoError(t, err)
}

func TestGetPendingSignalSetReportsQueuedAndPending(t *testing.T) {
	k := newTestKernel(t)
	err := k.Boot(10, PolicyFIFO, func(tt *ThisThread) {
		require.NoError(t, k.QueueSignal(tt, 1, 0, false))
		require.NoError(t, k.QueueSignal(tt, 4, 99, true))
		assert.Equal(t, uint32(1<<1|1<<4), tt.Signals().GetPendingSignalSet())
	})
	require.NoError(t, err)
}
