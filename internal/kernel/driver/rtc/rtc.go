// Package rtc implements the realtime-clock driver: a read-only device
// exposing the host's wall-clock time as the boot-time reference the
// kernel's own clock is seeded from.
package rtc

import (
	"context"
	"sync"
	"time"

	"github.com/go-logr/logr"

	"github.com/serena-os/kernel/internal/kernel/driver"
	kerrors "github.com/serena-os/kernel/pkg/errors"
)

// Driver is the realtime clock device. Like procutils.ProcUtils caching
// boot time with sync.Once, BootTime is read from the host once at
// Init and never changes for the life of the process.
type Driver struct {
	driver.BaseDriver

	once     sync.Once
	bootTime time.Time
}

func New(logger logr.Logger) *Driver {
	return &Driver{BaseDriver: driver.NewBaseDriver("rtc0", "rtc", logger)}
}

func (d *Driver) Init(ctx context.Context) error {
	d.once.Do(func() { d.bootTime = time.Now() })
	d.SetState(driver.Initializing)
	return nil
}

func (d *Driver) Start(ctx context.Context) error {
	d.SetState(driver.Running)
	return nil
}

func (d *Driver) Stop(ctx context.Context) error {
	d.SetState(driver.Stopped)
	return nil
}

// BootTime returns the cached moment Init ran.
func (d *Driver) BootTime() time.Time {
	return d.bootTime
}

// Now returns the host's current wall-clock time, the value a RTC_RD_TIME
// ioctl-equivalent channel read returns.
func (d *Driver) Now() time.Time {
	return time.Now()
}

// Channel is the IOChannel CreateChannel hands back: reads return the
// current time, writes are rejected since this RTC can't be set.
type Channel struct {
	d *Driver
}

func (d *Driver) CreateChannel(arg any) (any, error) {
	return &Channel{d: d}, nil
}

func (c *Channel) Read() (time.Time, error) { return c.d.Now(), nil }
func (c *Channel) Write([]byte) (int, error) {
	return 0, kerrors.EROFS
}
func (c *Channel) Close() error { return nil }
