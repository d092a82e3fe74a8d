package ksync

import (
	"context"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v5"

	kerrors "github.com/serena-os/kernel/pkg/errors"
)

// Sem is a counting semaphore. Wait blocks until n permits are
// available; Post adds permits and wakes one waiter, which rechecks the
// count itself and may loop to consume more than one post's worth.
type Sem struct {
	mu      sync.Mutex
	permits int64
	wq      *Wq
}

// NewSem creates a semaphore initialized with n permits.
func NewSem(n int64) *Sem {
	return &Sem{permits: n, wq: NewWq(FIFO)}
}

// Wait blocks until n permits are available, then atomically deducts
// them.
func (s *Sem) Wait(ctx context.Context, w *Waiter, n int64) error {
	for {
		s.mu.Lock()
		if s.permits >= n {
			s.permits -= n
			s.mu.Unlock()
			return nil
		}
		s.mu.Unlock()

		if err := s.wq.Wait(ctx, w); err != nil {
			return err
		}
	}
}

// TryWait attempts a non-blocking deduction of n permits, returning
// false if fewer than n are currently available.
func (s *Sem) TryWait(n int64) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.permits < n {
		return false
	}
	s.permits -= n
	return true
}

// TryWaitBackoff retries TryWait with exponential backoff until it
// succeeds or ctx ends, for callers that want a bounded-jitter spin
// instead of parking on the wait queue (e.g. a driver polling for a
// batch of IO request slots under light contention).
func (s *Sem) TryWaitBackoff(ctx context.Context, n int64) error {
	_, err := backoff.Retry(ctx, func() (struct{}, error) {
		if s.TryWait(n) {
			return struct{}{}, nil
		}
		return struct{}{}, kerrors.EAGAIN
	}, backoff.WithBackOff(backoff.NewExponentialBackOff()), backoff.WithMaxElapsedTime(0))
	if err != nil {
		if ctx.Err() != nil {
			return ctxErr(ctx)
		}
		return err
	}
	return nil
}

// Post adds n permits and wakes one waiter, if any. The woken waiter
// rechecks the count itself (see Wait's loop), so Post never needs to
// know how many permits a particular waiter wants.
func (s *Sem) Post(n int64) {
	s.mu.Lock()
	s.permits += n
	s.mu.Unlock()
	s.wq.Signal()
}

// Permits returns the current permit count, for diagnostics.
func (s *Sem) Permits() int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.permits
}

// TimedWait is Wait bounded by a duration, a convenience wrapper since
// trywait and timedwait round out the semaphore surface alongside
// blocking Wait.
func (s *Sem) TimedWait(w *Waiter, n int64, timeout time.Duration) error {
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()
	return s.Wait(ctx, w, n)
}
