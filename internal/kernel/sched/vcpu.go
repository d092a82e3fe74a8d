package sched

// Yield voluntarily hands the schedulerToken back to the scheduler,
// re-enqueuing the calling vCPU as Ready so other same-or-higher
// priority vCPUs get a turn. Must be called from within the vCPU's own
// run function, and blocks until the scheduler dispatches it again.
func (v *VCPU) Yield() {
	v.setState(Ready)
	v.sched.enqueue(v)
	v.release()
	<-v.resume
}

// Block hands the schedulerToken back to the scheduler without
// re-enqueuing the vCPU, then returns immediately: the calling
// goroutine is still live and free to perform a genuinely blocking
// call (a ksync Wait, a disk read) using Go's own concurrency, since
// giving up the schedulerToken is what "not holding the CPU" means —
// the vCPU just isn't allowed back into scheduled kernel code until it
// calls Rejoin. Block must be paired with exactly one later Rejoin.
func (v *VCPU) Block() {
	v.setState(Waiting)
	v.release()
}

// Rejoin re-enqueues the vCPU as Ready and parks until the scheduler
// dispatches it again, completing the Block/Rejoin pair around a
// genuinely blocking call.
func (v *VCPU) Rejoin() {
	v.setState(Ready)
	v.sched.enqueue(v)
	<-v.resume
}

func (v *VCPU) release() {
	v.sched.mu.Lock()
	v.sched.running = nil
	v.sched.mu.Unlock()
	v.suspend <- struct{}{}
}
