// Package sched implements the scheduler and vCPU runtime: a
// cooperative-preemption, priority-driven, single-active-context
// dispatcher layered over the clock's tick stream.
//
// Kernel code is concurrent but not parallel: many vCPUs exist as Go
// goroutines (real OS-level concurrency), but at most one is ever
// "running" at a time. The schedulerToken names this right to run; it
// is modeled by each vCPU's resume/suspend channel pair: the Scheduler
// resumes one vCPU and waits until that vCPU hands control back on its
// suspend channel at block, yield, or tick-boundary preemption.
// The ready-queue bucketing (QoS then priority, FIFO within a bucket) is
// grounded on k8s.io/client-go/util/workqueue's add/get/done shape,
// generalized into priority buckets workqueue itself doesn't have.
package sched

import (
	"context"
	"sync"

	"github.com/serena-os/kernel/internal/kernel/clock"
	"github.com/serena-os/kernel/internal/kernel/hal"
	"github.com/serena-os/kernel/internal/kernel/ksync"
	kerrors "github.com/serena-os/kernel/pkg/errors"
)

// QoS is a dispatch quality-of-service class, listed lowest first; a
// larger value is dispatched ahead of a smaller one.
type QoS int

const (
	QoSBackground QoS = iota
	QoSUtility
	QoSDefault
	QoSUserInitiated
	QoSUserInteractive
)

// State is a vCPU's scheduling state.
type State int

const (
	Ready State = iota
	Running
	Waiting
	Suspended
	Terminated
)

func (s State) String() string {
	switch s {
	case Ready:
		return "ready"
	case Running:
		return "running"
	case Waiting:
		return "waiting"
	case Suspended:
		return "suspended"
	case Terminated:
		return "terminated"
	default:
		return "unknown"
	}
}

// VCPU is a scheduled execution context. It embeds *ksync.Waiter so it
// can park on any kernel wait queue without sched depending on ksync's
// internals, and ksync need not depend on sched at all.
type VCPU struct {
	*ksync.Waiter

	GroupID  uint64
	QoS      QoS
	Priority int // higher runs first within a QoS class
	Errno    error

	fn func(ctx context.Context, v *VCPU)

	mu    sync.Mutex
	state State

	resume  chan struct{}
	suspend chan struct{}

	cancel context.CancelFunc

	sched *Scheduler
}

// Cancel requests that the vCPU's goroutine stop: it cancels the
// context passed to the vCPU's entry function, so any fn that watches
// ctx.Done() (directly, or via a blocking call that takes a context)
// unwinds instead of running to its own completion. fn is still a Go
// closure running cooperatively: Cancel cannot interrupt code that
// never observes ctx, it only ever signals. Safe to call more than
// once or after the vCPU has already terminated.
func (v *VCPU) Cancel() {
	v.cancel()
}

func (v *VCPU) State() State {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.state
}

func (v *VCPU) setState(s State) {
	v.mu.Lock()
	v.state = s
	v.mu.Unlock()
}

// run is the vCPU's goroutine body: wait to be resumed, run fn once it
// is, then report terminated. fn is expected to call back into the
// Scheduler (Yield/Block) to hand control back before it returns.
func (v *VCPU) run(ctx context.Context) {
	<-v.resume
	if v.fn != nil {
		v.fn(ctx, v)
	}
	v.setState(Terminated)
	v.suspend <- struct{}{}
}

type bucketKey struct {
	qos      QoS
	priority int
}

// Scheduler owns the ready queue and the tick-driven run loop.
type Scheduler struct {
	clock   *clock.Clock
	tickSrc hal.TickSource

	mu      sync.Mutex
	buckets map[bucketKey][]*VCPU
	running *VCPU
	nextID  uint64

	stopCh chan struct{}
	doneCh chan struct{}
}

// New creates a Scheduler driven by tickSrc and ticking clk on every
// pulse.
func New(clk *clock.Clock, tickSrc hal.TickSource) *Scheduler {
	return &Scheduler{
		clock:   clk,
		tickSrc: tickSrc,
		buckets: make(map[bucketKey][]*VCPU),
		stopCh:  make(chan struct{}),
		doneCh:  make(chan struct{}),
	}
}

// Spawn creates a new vCPU running fn, in the Suspended state until
// Resume is called (spawn(path,...) creates a vCPU, then the caller
// decides when to start it — matching process.spawn's "create, then
// optionally resume" split).
func (s *Scheduler) Spawn(qos QoS, priority int, fn func(ctx context.Context, v *VCPU)) *VCPU {
	s.mu.Lock()
	s.nextID++
	id := s.nextID
	s.mu.Unlock()

	ctx, cancel := context.WithCancel(context.Background())
	v := &VCPU{
		Waiter:   ksync.NewWaiter(id),
		QoS:      qos,
		Priority: priority,
		fn:       fn,
		state:    Suspended,
		resume:   make(chan struct{}, 1),
		suspend:  make(chan struct{}, 1),
		cancel:   cancel,
		sched:    s,
	}
	go v.run(ctx)
	return v
}

// Resume transitions a Suspended vCPU to Ready and enqueues it.
func (s *Scheduler) Resume(v *VCPU) error {
	v.mu.Lock()
	if v.state != Suspended {
		v.mu.Unlock()
		return kerrors.EINVAL
	}
	v.state = Ready
	v.mu.Unlock()

	s.enqueue(v)
	return nil
}

// Suspend removes a Ready vCPU from the queue without destroying it.
func (s *Scheduler) Suspend(v *VCPU) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := bucketKey{v.QoS, v.Priority}
	bucket := s.buckets[key]
	for i, o := range bucket {
		if o == v {
			s.buckets[key] = append(bucket[:i], bucket[i+1:]...)
			v.setState(Suspended)
			return nil
		}
	}
	return kerrors.EINVAL
}

func (s *Scheduler) enqueue(v *VCPU) {
	s.mu.Lock()
	key := bucketKey{v.QoS, v.Priority}
	s.buckets[key] = append(s.buckets[key], v)
	s.mu.Unlock()
}

// Wake transitions a Waiting vCPU to Ready and re-enqueues it; called
// by ksync wake paths or deadline callbacks that hand a vCPU back to
// the scheduler.
func (s *Scheduler) Wake(v *VCPU) {
	v.setState(Ready)
	s.enqueue(v)
}

// popHighest removes and returns the highest-(QoS,priority) vCPU at the
// front of its bucket (FIFO within a bucket), or nil if the queue is
// empty.
func (s *Scheduler) popHighest() *VCPU {
	s.mu.Lock()
	defer s.mu.Unlock()

	var best *bucketKey
	for k, bucket := range s.buckets {
		if len(bucket) == 0 {
			continue
		}
		k := k
		if best == nil || better(k, *best) {
			best = &k
		}
	}
	if best == nil {
		return nil
	}
	bucket := s.buckets[*best]
	v := bucket[0]
	s.buckets[*best] = bucket[1:]
	return v
}

func better(a, b bucketKey) bool {
	if a.qos != b.qos {
		return a.qos > b.qos
	}
	return a.priority > b.priority
}

// Dispatch runs exactly one scheduling round: pop the highest-priority
// ready vCPU (if any), hand it the schedulerToken by resuming its
// goroutine, and block until it hands control back via Yield, Block,
// or termination. Returns false if there was nothing ready to run.
func (s *Scheduler) Dispatch() bool {
	v := s.popHighest()
	if v == nil {
		return false
	}

	v.setState(Running)
	s.mu.Lock()
	s.running = v
	s.mu.Unlock()

	v.resume <- struct{}{}
	<-v.suspend

	s.mu.Lock()
	s.running = nil
	s.mu.Unlock()
	return true
}

// Running returns the vCPU currently holding the schedulerToken, or nil.
func (s *Scheduler) Running() *VCPU {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.running
}

// Run drives the scheduler from tickSrc until Stop is called: each tick
// services the clock (which fires due deadlines, waking any vCPUs they
// target) and then dispatches ready vCPUs until the queue drains or a
// new tick arrives — cooperative preemption at the tick boundary.
func (s *Scheduler) Run() {
	defer close(s.doneCh)
	for {
		select {
		case <-s.stopCh:
			return
		case <-s.tickSrc.Ticks():
			s.clock.Tick()
			for s.Dispatch() {
				select {
				case <-s.tickSrc.Ticks():
					// Next tick already arrived before the queue
					// drained: yield remaining budget to the next
					// round instead of starving the tick loop.
				default:
				}
				if s.stopping() {
					return
				}
			}
		}
	}
}

func (s *Scheduler) stopping() bool {
	select {
	case <-s.stopCh:
		return true
	default:
		return false
	}
}

// Stop ends the Run loop; Run's goroutine signals doneCh when it exits.
func (s *Scheduler) Stop() {
	close(s.stopCh)
	<-s.doneCh
}

// ReadyLen returns the total number of vCPUs queued across every ready
// bucket, for diagnostics.
func (s *Scheduler) ReadyLen() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, b := range s.buckets {
		n += len(b)
	}
	return n
}
