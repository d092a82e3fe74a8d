package sched

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/serena-os/kernel/internal/kernel/clock"
	"github.com/serena-os/kernel/internal/kernel/hal"
)

func newTestScheduler() (*Scheduler, *hal.ManualTickSource) {
	ts := hal.NewManualTickSource(time.Millisecond)
	clk := clock.New(time.Millisecond)
	return New(clk, ts), ts
}

func TestSpawnResumeRunsVCPU(t *testing.T) {
	s, ts := newTestScheduler()
	defer s.Stop()
	go s.Run()

	ran := make(chan struct{})
	v := s.Spawn(QoSDefault, 0, func(_ context.Context, _ *VCPU) {
		close(ran)
	})
	require.NoError(t, s.Resume(v))

	ts.Step()
	select {
	case <-ran:
	case <-time.After(time.Second):
		t.Fatal("spawned vCPU never ran")
	}
}

func TestHigherPriorityRunsFirst(t *testing.T) {
	s, ts := newTestScheduler()
	defer s.Stop()

	var mu sync.Mutex
	var order []int

	low := s.Spawn(QoSDefault, 0, func(_ context.Context, v *VCPU) {
		mu.Lock()
		order = append(order, 1)
		mu.Unlock()
	})
	high := s.Spawn(QoSDefault, 10, func(_ context.Context, v *VCPU) {
		mu.Lock()
		order = append(order, 2)
		mu.Unlock()
	})
	require.NoError(t, s.Resume(low))
	require.NoError(t, s.Resume(high))

	go s.Run()
	ts.Step()

	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(order) == 2
	}, time.Second, time.Millisecond)

	mu.Lock()
	defer mu.Unlock()
	require.Equal(t, []int{2, 1}, order)
}

func TestYieldReleasesAndResumes(t *testing.T) {
	s, ts := newTestScheduler()
	defer s.Stop()
	go s.Run()

	var steps []int
	var mu sync.Mutex
	done := make(chan struct{})
	v := s.Spawn(QoSDefault, 0, func(_ context.Context, vcpu *VCPU) {
		mu.Lock()
		steps = append(steps, 1)
		mu.Unlock()
		vcpu.Yield()
		mu.Lock()
		steps = append(steps, 2)
		mu.Unlock()
		close(done)
	})
	require.NoError(t, s.Resume(v))

	ts.Step()
	ts.Step()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("yielded vCPU never resumed")
	}

	mu.Lock()
	defer mu.Unlock()
	require.Equal(t, []int{1, 2}, steps)
}

func TestBlockRejoinRoundTrip(t *testing.T) {
	s, ts := newTestScheduler()
	defer s.Stop()
	go s.Run()

	done := make(chan struct{})
	v := s.Spawn(QoSDefault, 0, func(_ context.Context, vcpu *VCPU) {
		vcpu.Block()
		require.Equal(t, Waiting, vcpu.State())
		vcpu.Rejoin()
		close(done)
	})
	require.NoError(t, s.Resume(v))

	ts.Step()
	ts.Step()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("vCPU never completed block/rejoin round trip")
	}
}

func TestDispatchQueueRunsTaskAtMostOnce(t *testing.T) {
	s, ts := newTestScheduler()
	defer s.Stop()
	go s.Run()

	q := NewDispatchQueue(s, QoSDefault, 0, 2)
	defer q.Terminate()

	var n int
	var mu sync.Mutex
	done := make(chan struct{})
	require.NoError(t, q.Async(func(_ any) {
		mu.Lock()
		n++
		mu.Unlock()
		close(done)
	}, nil))

	for i := 0; i < 20; i++ {
		ts.Step()
	}

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("task never ran")
	}

	time.Sleep(20 * time.Millisecond)
	mu.Lock()
	defer mu.Unlock()
	require.Equal(t, 1, n)
}

func TestDispatchQueueRejectsAfterTerminate(t *testing.T) {
	s, _ := newTestScheduler()
	defer s.Stop()
	go s.Run()

	q := NewDispatchQueue(s, QoSDefault, 0, 1)
	q.Terminate()
	err := q.Async(func(_ any) {}, nil)
	require.Error(t, err)
}

func TestCancelSignalsVCPUContext(t *testing.T) {
	s, ts := newTestScheduler()
	defer s.Stop()
	go s.Run()

	canceled := make(chan struct{})
	v := s.Spawn(QoSDefault, 0, func(ctx context.Context, _ *VCPU) {
		<-ctx.Done()
		close(canceled)
	})
	require.NoError(t, s.Resume(v))
	ts.Step()

	v.Cancel()

	select {
	case <-canceled:
	case <-time.After(time.Second):
		t.Fatal("vCPU never observed cancellation")
	}
}
