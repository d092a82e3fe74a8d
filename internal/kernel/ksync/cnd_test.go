package ksync

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

// TestCndNoLostWakeup drives the classic V1-waits / V2-signals sequence
// and checks V1 always wakes holding the mutex again, even when V2's
// signal races the moment V1 parks.
func TestCndNoLostWakeup(t *testing.T) {
	m := NewMtx()
	c := NewCnd()

	ready := false
	woke := make(chan struct{})

	w1 := NewWaiter(1)
	require.NoError(t, m.Lock(context.Background(), w1))
	go func() {
		for !ready {
			require.NoError(t, c.Wait(context.Background(), w1, m))
		}
		m.Unlock()
		close(woke)
	}()

	// Give the waiter goroutine a chance to park; Cnd.Wait enqueues
	// before releasing the mutex so this is a timing nicety, not a
	// correctness requirement.
	time.Sleep(20 * time.Millisecond)

	w2 := NewWaiter(2)
	require.NoError(t, m.Lock(context.Background(), w2))
	ready = true
	c.Signal()
	m.Unlock()

	select {
	case <-woke:
	case <-time.After(time.Second):
		t.Fatal("waiter never woke: lost wakeup")
	}
}

func TestCndBroadcastWakesAll(t *testing.T) {
	m := NewMtx()
	c := NewCnd()
	const n = 5

	done := make(chan int, n)
	for i := 0; i < n; i++ {
		go func(id int) {
			w := NewWaiter(uint64(id))
			require.NoError(t, m.Lock(context.Background(), w))
			require.NoError(t, c.Wait(context.Background(), w, m))
			m.Unlock()
			done <- id
		}(i)
	}

	require.Eventually(t, func() bool {
		return c.wq.Len() == n
	}, time.Second, time.Millisecond)

	w := NewWaiter(99)
	require.NoError(t, m.Lock(context.Background(), w))
	c.Broadcast()
	m.Unlock()

	for i := 0; i < n; i++ {
		select {
		case <-done:
		case <-time.After(time.Second):
			t.Fatal("not all waiters woke from broadcast")
		}
	}
}

func TestCndWaitTimesOut(t *testing.T) {
	m := NewMtx()
	c := NewCnd()
	w := NewWaiter(1)
	require.NoError(t, m.Lock(context.Background(), w))

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	err := c.Wait(ctx, w, m)
	require.Error(t, err)
	require.True(t, m.Locked())
}
