package kernel

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCondWaitRequiresOwnership(t *testing.T) {
	k := newTestKernel(t)
	err := k.Boot(10, PolicyFIFO, func(tt *ThisThread) {
		m := NewMutex(k, MutexNormal, ProtocolNone, 0)
		cv := NewConditionVariable(k)
		assert.ErrorIs(t, cv.Wait(tt, m), ErrPerm)
	})
	require.NoError(t, err)
}

// TestCondNotifyOneWakesWaiterAfterPredicateSet exercises the Mesa-style
// predicate-recheck loop: the waiter reacquires m before Wait returns and
// rechecks its own condition rather than trusting the wakeup alone.
func TestCondNotifyOneWakesWaiterAfterPredicateSet(t *testing.T) {
	k := newTestKernel(t)
	var order []string
	ready := false
	err := k.Boot(50, PolicyFIFO, func(tt *ThisThread) {
		m := NewMutex(k, MutexNormal, ProtocolNone, 0)
		cv := NewConditionVariable(k)

		waiter, err := k.CreateThread("waiter", 60, PolicyFIFO, func(tt *ThisThread) {
			require.NoError(t, m.Lock(tt))
			order = append(order, "waiter-locked")
			for !ready {
				require.NoError(t, cv.Wait(tt, m))
			}
			order = append(order, "waiter-saw-ready")
			require.NoError(t, m.Unlock(tt))
		})
		require.NoError(t, err)

		require.NoError(t, waiter.Start(tt)) // waiter outranks main: locks m and blocks on cv before Start returns

		require.NoError(t, m.Lock(tt))
		ready = true
		order = append(order, "setting-ready")
		cv.NotifyOne(tt)
		require.NoError(t, m.Unlock(tt))

		require.NoError(t, waiter.Join(tt))
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"waiter-locked", "setting-ready", "waiter-saw-ready"}, order)
}

// TestCondNotifyAllWakesAllWaiters wakes two waiters at once; each still
// reacquires m one at a time, in priority order, rather than racing.
func TestCondNotifyAllWakesAllWaiters(t *testing.T) {
	k := newTestKernel(t)
	var order []string
	err := k.Boot(90, PolicyFIFO, func(tt *ThisThread) {
		m := NewMutex(k, MutexNormal, ProtocolNone, 0)
		cv := NewConditionVariable(k)

		mkWaiter := func(name string, prio uint8) *Thread {
			th, err := k.CreateThread(name, prio, PolicyFIFO, func(tt *ThisThread) {
				require.NoError(t, m.Lock(tt))
				order = append(order, name+"-locked")
				require.NoError(t, cv.Wait(tt, m))
				order = append(order, name+"-woken")
				require.NoError(t, m.Unlock(tt))
			})
			require.NoError(t, err)
			return th
		}

		a := mkWaiter("a", 95)
		b := mkWaiter("b", 97)

		require.NoError(t, a.Start(tt))
		require.NoError(t, b.Start(tt))

		require.NoError(t, m.Lock(tt))
		cv.NotifyAll(tt)
		require.NoError(t, m.Unlock(tt))

		require.NoError(t, a.Join(tt))
		require.NoError(t, b.Join(tt))
	})
	require.NoError(t, err)
	// b outranks a, so NotifyAll's pop order and every subsequent
	// hand-off from Unlock favor b first.
	assert.Equal(t, []string{"a-locked", "b-locked", "b-woken", "a-woken"}, order)
}

// TestCondWaitUntilTimesOutAndStillReacquiresMutex confirms the deadline
// variant still reacquires m before returning, even though the error it
// returns is the timeout rather than whatever Lock reported.
func TestCondWaitUntilTimesOutAndStillReacquiresMutex(t *testing.T) {
	k := newTestKernel(t)
	var waitErr, unlockErr error
	err := k.Boot(50, PolicyFIFO, func(tt *ThisThread) {
		m := NewMutex(k, MutexNormal, ProtocolNone, 0)
		cv := NewConditionVariable(k)

		th, err := k.CreateThread("w", 60, PolicyFIFO, func(tt *ThisThread) {
			require.NoError(t, m.Lock(tt))
			deadline := tt.kernel.Now().Add(Duration(2))
			waitErr = cv.WaitUntil(tt, m, deadline)
			unlockErr = m.Unlock(tt)
		})
		require.NoError(t, err)
		require.NoError(t, th.Start(tt)) // th outranks main: locks m and registers its deadline before Start returns

		for i := 0; i < 3; i++ {
			k.TickHandler()
		}
		require.NoError(t, th.Join(tt))
	})
	require.NoError(t, err)
	assert.ErrorIs(t, waitErr, ErrTimedout)
	assert.NoError(t, unlockErr)
}
