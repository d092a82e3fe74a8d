// Package hal stands in for "the platform provides a periodic tick"
// and "the CPU provides save areas": a hardware abstraction the clock
// and scheduler build on without depending on real 68k/Amiga chipset
// registers.
package hal

import (
	"sync"
	"time"
)

// TickSource fires Ticks at a fixed platform rate, the Go-hosted
// stand-in for the CIA timer interrupt of a real Amiga.
type TickSource interface {
	Ticks() <-chan struct{}
	Rate() time.Duration
	Stop()
}

// SystemTickSource wraps a real time.Ticker at the rate it was created
// with (DefaultRate, the platform's nominal 60 Hz, when that is not
// positive).
type SystemTickSource struct {
	rate   time.Duration
	ticker *time.Ticker
	ch     chan struct{}
	stopCh chan struct{}
	once   sync.Once
}

const DefaultRate = time.Second / 60

// NewSystemTickSource starts a ticker at rate (DefaultRate if zero) and
// begins forwarding ticks immediately.
func NewSystemTickSource(rate time.Duration) *SystemTickSource {
	if rate <= 0 {
		rate = DefaultRate
	}
	s := &SystemTickSource{
		rate:   rate,
		ticker: time.NewTicker(rate),
		ch:     make(chan struct{}, 1),
		stopCh: make(chan struct{}),
	}
	go s.pump()
	return s
}

func (s *SystemTickSource) pump() {
	for {
		select {
		case <-s.ticker.C:
			select {
			case s.ch <- struct{}{}:
			default:
				// Previous tick not yet consumed; the clock will
				// still observe a monotonic jump, it just collapses
				// two hardware ticks into one channel send, matching
				// how a real ISR still increments the counter even if
				// the scheduler hasn't gotten around to the previous
				// tick's deadline sweep.
			}
		case <-s.stopCh:
			return
		}
	}
}

func (s *SystemTickSource) Ticks() <-chan struct{} { return s.ch }
func (s *SystemTickSource) Rate() time.Duration     { return s.rate }

func (s *SystemTickSource) Stop() {
	s.once.Do(func() {
		s.ticker.Stop()
		close(s.stopCh)
	})
}

// ManualTickSource is stepped explicitly by tests, giving scheduler and
// clock tests determinism without depending on wall-clock time.
type ManualTickSource struct {
	rate time.Duration
	ch   chan struct{}
}

func NewManualTickSource(rate time.Duration) *ManualTickSource {
	if rate <= 0 {
		rate = DefaultRate
	}
	return &ManualTickSource{rate: rate, ch: make(chan struct{}, 1)}
}

func (m *ManualTickSource) Ticks() <-chan struct{} { return m.ch }
func (m *ManualTickSource) Rate() time.Duration     { return m.rate }
func (m *ManualTickSource) Stop()                   {}

// Step delivers exactly one tick, blocking until a receiver (or the
// channel's buffer slot) takes it.
func (m *ManualTickSource) Step() {
	m.ch <- struct{}{}
}

// SystemDescription is populated once at boot and read-only thereafter,
// grounded on procutils.ProcUtils's sync.Once-cached boot time/HZ/page
// size (here generalized from "parse /proc once" to "record platform
// facts once").
type SystemDescription struct {
	CPUClass    string // e.g. "68020", "68030"
	RAMBytes     uint64
	ChipsetName  string // e.g. "OCS", "ECS", "AGA"
	TickRate     time.Duration
	BootTime     time.Time
}

var (
	descOnce sync.Once
	desc     SystemDescription
)

// DescribeSystem returns the cached SystemDescription, populating it
// from probe on first call. Subsequent calls ignore probe and return
// the cached value, matching the "once ever" boot-fact contract.
func DescribeSystem(probe func() SystemDescription) SystemDescription {
	descOnce.Do(func() {
		desc = probe()
		if desc.BootTime.IsZero() {
			desc.BootTime = time.Now()
		}
	})
	return desc
}

// ResetSystemDescriptionForTest clears the cached description so tests
// can probe a fresh value. Not for use outside _test.go files.
func ResetSystemDescriptionForTest() {
	descOnce = sync.Once{}
	desc = SystemDescription{}
}
