package ksync

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestMtxMutualExclusion(t *testing.T) {
	m := NewMtx()
	var counter int
	var wg sync.WaitGroup
	const n = 50

	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(id int) {
			defer wg.Done()
			w := NewWaiter(uint64(id))
			require.NoError(t, m.Lock(context.Background(), w))
			counter++
			m.Unlock()
		}(i)
	}
	wg.Wait()
	require.Equal(t, n, counter)
}

// TestMtxFIFOWakeOrder pins three vCPUs queuing on a held mutex, one at
// a time so arrival order is deterministic, and checks each is woken in
// strict arrival order as the holder releases.
func TestMtxFIFOWakeOrder(t *testing.T) {
	m := NewMtx()
	holder := NewWaiter(0)
	require.NoError(t, m.Lock(context.Background(), holder))

	var mu sync.Mutex
	var order []int

	waitForQueueLen := func(n int) {
		require.Eventually(t, func() bool {
			m.mu.Lock()
			defer m.mu.Unlock()
			return m.waiters == n
		}, time.Second, time.Millisecond)
	}

	for i := 1; i <= 3; i++ {
		go func(id int) {
			w := NewWaiter(uint64(id))
			require.NoError(t, m.Lock(context.Background(), w))
			mu.Lock()
			order = append(order, id)
			mu.Unlock()
			m.Unlock()
		}(i)
		waitForQueueLen(i)
	}

	m.Unlock() // releases holder; wakes waiter 1, 2, 3 in sequence as each re-releases

	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(order) == 3
	}, time.Second, time.Millisecond)

	mu.Lock()
	defer mu.Unlock()
	require.Equal(t, []int{1, 2, 3}, order)
}

func TestMtxTryLock(t *testing.T) {
	m := NewMtx()
	require.True(t, m.TryLock())
	require.False(t, m.TryLock())
	m.Unlock()
	require.True(t, m.TryLock())
}

func TestMtxLockRespectsContextCancel(t *testing.T) {
	m := NewMtx()
	require.NoError(t, m.Lock(context.Background(), NewWaiter(0)))

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	err := m.Lock(ctx, NewWaiter(1))
	require.Error(t, err)
}
