// Package hid implements keyboard, mouse, and joystick input drivers:
// devices that stream InputEvents on a channel rather than answering
// request/response reads, the same continuous-collection shape
// execsnoop uses for process-exec events.
package hid

import (
	"context"
	"sync"

	"github.com/go-logr/logr"

	"github.com/serena-os/kernel/internal/kernel/driver"
	kerrors "github.com/serena-os/kernel/pkg/errors"
)

// EventType classifies an InputEvent.
type EventType int

const (
	EventKeyDown EventType = iota
	EventKeyUp
	EventMouseMove
	EventMouseButton
	EventJoystick
)

// InputEvent is one input sample: Code is a keycode/button id, X/Y are
// relative motion deltas for mouse/joystick events.
type InputEvent struct {
	Type EventType
	Code int32
	X, Y int32
}

// Driver is a single input device (one keyboard, one mouse, ...inject
// InputEvents for its subscribers, the way execsnoop's ring buffer
// reader feeds ExecEvents into a channel).
type Driver struct {
	driver.BaseDriver

	mu       sync.Mutex
	outputCh chan InputEvent
	stopCh   chan struct{}
}

func New(name string, logger logr.Logger) *Driver {
	return &Driver{BaseDriver: driver.NewBaseDriver(name, "hid", logger)}
}

func (d *Driver) Init(ctx context.Context) error {
	d.SetState(driver.Initializing)
	return nil
}

func (d *Driver) Start(ctx context.Context) error {
	d.mu.Lock()
	d.outputCh = make(chan InputEvent, 256)
	d.stopCh = make(chan struct{})
	d.mu.Unlock()
	d.SetState(driver.Running)
	return nil
}

func (d *Driver) Stop(ctx context.Context) error {
	d.mu.Lock()
	if d.stopCh != nil {
		close(d.stopCh)
		d.stopCh = nil
	}
	if d.outputCh != nil {
		close(d.outputCh)
		d.outputCh = nil
	}
	d.mu.Unlock()
	d.SetState(driver.Stopped)
	return nil
}

// Inject delivers ev to every current subscriber. Dropped, not blocked,
// if the channel is saturated — the same "channel full, drop event"
// policy execsnoop's reader uses rather than stalling the input source.
func (d *Driver) Inject(ev InputEvent) {
	d.mu.Lock()
	ch := d.outputCh
	d.mu.Unlock()
	if ch == nil {
		return
	}
	select {
	case ch <- ev:
	default:
		d.Logger().V(1).Info("dropping input event, channel full")
	}
}

// Channel is the per-open-session handle CreateChannel returns.
type Channel struct {
	d *Driver
}

func (d *Driver) CreateChannel(arg any) (any, error) {
	if d.State() != driver.Running {
		return nil, kerrors.EIO
	}
	return &Channel{d: d}, nil
}

// Events returns the driver's shared event stream; every open channel
// currently observes the same stream (no per-session fan-out queue).
func (c *Channel) Events() <-chan InputEvent {
	c.d.mu.Lock()
	defer c.d.mu.Unlock()
	return c.d.outputCh
}

func (c *Channel) Close() error { return nil }
