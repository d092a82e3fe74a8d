// Package clock implements the kernel's monotonic tick counter and
// deadline queue. A single Clock increments a tick counter on every
// hal.TickSource pulse, sweeps armed deadlines in order, and serves a
// seqlock-style high-resolution read that interpolates wall-clock
// progress within the current tick without ever observing a torn
// (tick, elapsed) pair.
//
// There is no IRQ context in a hosted port, so "mask the relevant IRQ
// while mutating the queue" becomes "hold the mutex" — documented here
// rather than mechanically enforced, the same redesign classobj and
// sched apply to their own hardware-facing contracts.
package clock

import (
	"sync"
	"sync/atomic"
	"time"

	kerrors "github.com/serena-os/kernel/pkg/errors"
)

// Deadline is an armed one-shot callback with an absolute tick target.
// Callback must be O(1) and non-blocking: Tick runs it on the ticking
// goroutine after releasing the clock's mutex, so a slow or blocking
// callback delays the deadlines after it and the next tick.
type Deadline struct {
	TargetTick uint64
	Callback   func()

	seq   uint64
	armed bool
}

// Armed reports whether d is still queued (false once it has fired or
// been cancelled).
func (d *Deadline) Armed() bool {
	return d.armed
}

// Clock is the monotonic tick counter plus deadline queue.
type Clock struct {
	rate time.Duration

	ticks   atomic.Uint64
	nextSeq uint64

	mu        sync.Mutex
	deadlines []*Deadline

	// seqlock state for hires reads: gen is incremented to an odd
	// value before mutating ticksAtRead/tickStartNs, and to the next even
	// value after, the standard seqlock protocol.
	gen         atomic.Uint64
	ticksAtRead atomic.Uint64
	tickStartNs atomic.Int64
}

// New creates a Clock ticking at rate (hal.DefaultRate is the platform
// nominal 60 Hz if the caller has no reason to pick another rate).
func New(rate time.Duration) *Clock {
	c := &Clock{rate: rate}
	c.tickStartNs.Store(time.Now().UnixNano())
	return c
}

// Tick advances the tick counter by one and sweeps the deadline queue,
// invoking every deadline whose target has been reached, in sorted
// order (ties broken by arrival order). Intended to be called from the
// goroutine driving a hal.TickSource.
func (c *Clock) Tick() {
	now := c.ticks.Add(1)

	c.gen.Add(1) // odd: write in progress
	c.ticksAtRead.Store(now)
	c.tickStartNs.Store(time.Now().UnixNano())
	c.gen.Add(1) // even: write complete

	var fired []*Deadline
	c.mu.Lock()
	i := 0
	for i < len(c.deadlines) && c.deadlines[i].TargetTick <= now {
		d := c.deadlines[i]
		d.armed = false
		fired = append(fired, d)
		i++
	}
	if i > 0 {
		c.deadlines = c.deadlines[i:]
	}
	c.mu.Unlock()

	for _, d := range fired {
		if d.Callback != nil {
			d.Callback()
		}
	}
}

// Ticks returns the raw monotonic tick count.
func (c *Clock) Ticks() uint64 {
	return c.ticks.Load()
}

// GetTime returns the current (seconds, nanoseconds) since the clock
// started, computed from the tick count alone.
func (c *Clock) GetTime() (sec int64, nsec int64) {
	elapsed := time.Duration(c.ticks.Load()) * c.rate
	sec = int64(elapsed / time.Second)
	nsec = int64(elapsed % time.Second)
	return
}

// GetTimeHires additionally interpolates elapsed wall-clock progress
// within the current tick, using a seqlock read: read generation, read
// (tick, tickStart), recompute, re-read generation; retry on mismatch
// so a reader never observes a torn pair straddling a Tick() call.
func (c *Clock) GetTimeHires() (sec int64, nsec int64) {
	for {
		g1 := c.gen.Load()
		if g1%2 != 0 {
			continue // write in progress, spin
		}
		ticks := c.ticksAtRead.Load()
		tickStart := c.tickStartNs.Load()
		g2 := c.gen.Load()
		if g1 != g2 {
			continue
		}

		base := time.Duration(ticks) * c.rate
		withinTick := time.Duration(time.Now().UnixNano() - tickStart)
		if withinTick < 0 {
			withinTick = 0
		} else if withinTick > c.rate {
			// Clamp: never let interpolation push past the next tick
			// boundary, which would make hires readings run ahead of
			// the tick counter they're supposed to refine.
			withinTick = c.rate
		}
		elapsed := base + withinTick
		sec = int64(elapsed / time.Second)
		nsec = int64(elapsed % time.Second)
		return
	}
}

// ArmDeadline inserts d into the ordered deadline queue. Callable from
// task context; in this hosted port there is no separate IRQ context,
// but the method is safe to call concurrently from any goroutine.
func (c *Clock) ArmDeadline(d *Deadline) error {
	if d == nil {
		return kerrors.EINVAL
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	d.seq = c.nextSeq
	c.nextSeq++
	d.armed = true

	idx := 0
	for idx < len(c.deadlines) {
		o := c.deadlines[idx]
		if o.TargetTick > d.TargetTick {
			break
		}
		idx++
	}
	c.deadlines = append(c.deadlines, nil)
	copy(c.deadlines[idx+1:], c.deadlines[idx:])
	c.deadlines[idx] = d
	return nil
}

// CancelDeadline removes d from the queue if it is still armed,
// returning true iff it was. Calling Cancel on an already-fired or
// already-cancelled deadline is a safe no-op that returns false.
func (c *Clock) CancelDeadline(d *Deadline) bool {
	if d == nil {
		return false
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if !d.armed {
		return false
	}
	for i, o := range c.deadlines {
		if o == d {
			c.deadlines = append(c.deadlines[:i], c.deadlines[i+1:]...)
			d.armed = false
			return true
		}
	}
	return false
}

// PendingDeadlines returns the number of armed deadlines, for
// diagnostics.
func (c *Clock) PendingDeadlines() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.deadlines)
}
