package ksync

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestSemTryWait(t *testing.T) {
	s := NewSem(2)
	require.True(t, s.TryWait(2))
	require.False(t, s.TryWait(1))
	s.Post(1)
	require.True(t, s.TryWait(1))
}

func TestSemWaitBlocksUntilPost(t *testing.T) {
	s := NewSem(0)
	acquired := make(chan struct{})
	go func() {
		require.NoError(t, s.Wait(context.Background(), NewWaiter(1), 1))
		close(acquired)
	}()

	select {
	case <-acquired:
		t.Fatal("acquired before any permits posted")
	case <-time.After(20 * time.Millisecond):
	}

	s.Post(1)
	select {
	case <-acquired:
	case <-time.After(time.Second):
		t.Fatal("waiter never woke after Post")
	}
}

func TestSemTryWaitBackoffSucceedsEventually(t *testing.T) {
	s := NewSem(0)
	go func() {
		time.Sleep(10 * time.Millisecond)
		s.Post(1)
	}()

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	require.NoError(t, s.TryWaitBackoff(ctx, 1))
}

func TestSemTryWaitBackoffRespectsContext(t *testing.T) {
	s := NewSem(0)
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Millisecond)
	defer cancel()
	err := s.TryWaitBackoff(ctx, 1)
	require.Error(t, err)
}

func TestSemTimedWait(t *testing.T) {
	s := NewSem(0)
	err := s.TimedWait(NewWaiter(1), 1, 20*time.Millisecond)
	require.Error(t, err)
}
