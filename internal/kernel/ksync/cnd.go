package ksync

import "context"

// Cnd is a condition variable: always used together with an Mtx held
// by the caller. Wait atomically drops the mutex and parks, and always
// reacquires the mutex before returning, matching pthread condvar
// semantics.
type Cnd struct {
	wq *Wq
}

// NewCnd creates a condition variable.
func NewCnd() *Cnd {
	return &Cnd{wq: NewWq(FIFO)}
}

// Wait registers w on the queue before releasing m, the same
// subscribe-before-publish ordering a subscriber registers for an event
// before the event source can fire it. This closes the race where a
// Signal between "drop the mutex" and "park" would otherwise be lost:
// here the waiter is already queued when the mutex is released, so any
// Signal/Broadcast that happens after Unlock is guaranteed to see it.
//
// The mutex is always reacquired before Wait returns, even when ctx
// ends the wait early; the original wait error takes precedence over
// any error from reacquiring.
func (c *Cnd) Wait(ctx context.Context, w *Waiter, m *Mtx) error {
	c.wq.mu.Lock()
	ch := c.wq.enqueueLocked(w)
	c.wq.mu.Unlock()

	m.Unlock()

	var waitErr error
	select {
	case waitErr = <-ch:
	case <-ctx.Done():
		c.wq.mu.Lock()
		c.wq.removeLocked(w)
		c.wq.mu.Unlock()
		waitErr = ctxErr(ctx)
	}

	if lockErr := m.Lock(context.Background(), w); lockErr != nil && waitErr == nil {
		waitErr = lockErr
	}
	return waitErr
}

// Signal wakes one waiter. The caller must hold the associated mutex.
func (c *Cnd) Signal() bool {
	return c.wq.Signal()
}

// Broadcast wakes every waiter. The caller must hold the associated
// mutex.
func (c *Cnd) Broadcast() int {
	return c.wq.Broadcast()
}
