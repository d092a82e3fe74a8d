package sched

import (
	"context"
	"sync"

	kerrors "github.com/serena-os/kernel/pkg/errors"
)

// task is one pending closure plus the context it carries.
type task struct {
	fn  func(ctx any)
	ctx any
}

// DispatchQueue binds closures to a pool of vCPUs at a fixed QoS. Work
// submitted via Async runs on whichever pool vCPU picks it up next;
// once Terminate is called, further Async calls are rejected, while
// work queued before Terminate still runs, matching the "f runs at most
// once, or q terminates before f runs" contract.
type DispatchQueue struct {
	qos QoS

	mu         sync.Mutex
	queue      []task
	terminated bool
	doorbell   chan struct{}

	vcpus []*VCPU
}

// NewDispatchQueue creates a queue served by n vCPUs spawned on sched at
// the given QoS. Each pool vCPU loops: pull a task, run it, repeat,
// handing the schedulerToken back via Block/Rejoin whenever the queue
// is empty so an idle pool never starves the rest of the scheduler.
func NewDispatchQueue(s *Scheduler, qos QoS, priority int, n int) *DispatchQueue {
	q := &DispatchQueue{doorbell: make(chan struct{}), qos: qos}

	for i := 0; i < n; i++ {
		v := s.Spawn(qos, priority, func(_ context.Context, vcpu *VCPU) {
			q.worker(vcpu)
		})
		q.vcpus = append(q.vcpus, v)
		if err := s.Resume(v); err != nil {
			panic(err)
		}
	}
	return q
}

func (q *DispatchQueue) worker(vcpu *VCPU) {
	for {
		q.mu.Lock()
		if len(q.queue) > 0 {
			t := q.queue[0]
			q.queue = q.queue[1:]
			q.mu.Unlock()
			t.fn(t.ctx)
			continue
		}
		if q.terminated {
			q.mu.Unlock()
			return
		}
		wake := q.doorbell
		q.mu.Unlock()

		vcpu.Block()
		<-wake
		vcpu.Rejoin()
	}
}

// ringLocked wakes every worker blocked on the current doorbell and arms a
// fresh one for the next wait. Must be called with q.mu held.
func (q *DispatchQueue) ringLocked() {
	close(q.doorbell)
	q.doorbell = make(chan struct{})
}

// Async submits fn to run on some pool vCPU with ctx as its argument.
// Returns EINVAL once the queue has been terminated.
func (q *DispatchQueue) Async(fn func(ctx any), ctx any) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.terminated {
		return kerrors.EINVAL
	}
	q.queue = append(q.queue, task{fn: fn, ctx: ctx})
	q.ringLocked()
	return nil
}

// Terminate stops accepting new work and wakes pool vCPUs so they can
// exit once the queue drains. Already-queued tasks still run; tasks
// submitted after Terminate never do.
func (q *DispatchQueue) Terminate() {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.terminated = true
	q.ringLocked()
}

// Pending returns the number of tasks not yet started, for diagnostics.
func (q *DispatchQueue) Pending() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.queue)
}
