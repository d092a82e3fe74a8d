package ksync

import (
	"context"
	"sync"
)

// Mtx is a non-recursive mutex: a fast-path locked flag guarded by an
// internal sync.Mutex, and a FIFO Wq for the slow path.
type Mtx struct {
	mu      sync.Mutex
	locked  bool
	waiters int
	wq      *Wq
}

// NewMtx creates an unlocked mutex.
func NewMtx() *Mtx {
	return &Mtx{wq: NewWq(FIFO)}
}

// Lock acquires the mutex, parking on w if it is currently held.
// Returns EINTR/ETIMEDOUT if ctx ends before the mutex is acquired.
func (m *Mtx) Lock(ctx context.Context, w *Waiter) error {
	m.mu.Lock()
	if !m.locked {
		m.locked = true
		m.mu.Unlock()
		return nil
	}
	m.waiters++
	m.mu.Unlock()

	if err := m.wq.Wait(ctx, w); err != nil {
		m.mu.Lock()
		m.waiters--
		m.mu.Unlock()
		return err
	}
	// Woken by Unlock's direct handoff: ownership already transferred,
	// m.locked is still true, nothing further to do.
	return nil
}

// TryLock attempts a non-blocking acquire, returning false if the
// mutex is currently held.
func (m *Mtx) TryLock() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.locked {
		return false
	}
	m.locked = true
	return true
}

// Unlock releases the mutex. If a waiter is queued, ownership transfers
// directly to it (m.locked stays true across the handoff) rather than
// clearing state and letting the woken waiter re-race a fast-path grab
// against concurrently arriving lockers. This gives a strict FIFO
// "at most one holder, woken in arrival order" guarantee: a waiter that
// has been signaled is the new owner, full stop, so no later Lock call
// can jump the queue between Unlock and the woken goroutine resuming.
func (m *Mtx) Unlock() {
	m.mu.Lock()
	if m.waiters > 0 {
		m.waiters--
		m.mu.Unlock()
		m.wq.Signal()
		return
	}
	m.locked = false
	m.mu.Unlock()
}

// Locked reports whether the mutex is currently held, for diagnostics.
func (m *Mtx) Locked() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.locked
}
