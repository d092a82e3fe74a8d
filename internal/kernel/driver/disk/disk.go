// Package disk publishes a sefs.FSContainer as a block device driver:
// the same raw LBA read/write/sync surface the block cache and sefs
// mount code talk to directly, but reachable through the driver
// catalog and CreateChannel like any other device.
package disk

import (
	"context"
	"sync"

	"github.com/go-logr/logr"

	"github.com/serena-os/kernel/internal/kernel/driver"
	"github.com/serena-os/kernel/internal/kernel/vfs/sefs"
	kerrors "github.com/serena-os/kernel/pkg/errors"
)

// Driver wraps a single mounted sefs.FSContainer as a block device.
// Geometry (block size/count) is fixed at construction, the same as a
// real disk reporting its geometry once at attach time.
type Driver struct {
	driver.BaseDriver

	mu        sync.Mutex
	container sefs.FSContainer
}

// New wraps container as a named block device. container may be a
// *sefs.HostFileContainer (disk image, reports EDISKCHANGE on external
// modification) or a *sefs.MemContainer (ramdisk).
func New(name string, container sefs.FSContainer, logger logr.Logger) *Driver {
	return &Driver{
		BaseDriver: driver.NewBaseDriver(name, "disk", logger),
		container:  container,
	}
}

func (d *Driver) Init(ctx context.Context) error {
	d.SetState(driver.Initializing)
	return nil
}

func (d *Driver) Start(ctx context.Context) error {
	d.SetState(driver.Running)
	return nil
}

func (d *Driver) Stop(ctx context.Context) error {
	d.mu.Lock()
	err := d.container.Sync()
	d.mu.Unlock()
	d.SetState(driver.Stopped)
	return err
}

// BlockSize and BlockCount report the container's fixed geometry.
func (d *Driver) BlockSize() uint32  { return d.container.BlockSize() }
func (d *Driver) BlockCount() uint32 { return d.container.BlockCount() }

// Channel is the per-open-session handle onto the block device; every
// channel shares the same underlying container, so callers must
// serialize overlapping writes to the same LBA themselves (the same
// contract the raw block cache's Map/Unmap enforces at a higher layer).
type Channel struct {
	d *Driver
}

func (d *Driver) CreateChannel(arg any) (any, error) {
	if d.State() != driver.Running {
		return nil, kerrors.EIO
	}
	return &Channel{d: d}, nil
}

func (c *Channel) ReadBlock(lba uint32, buf []byte) error {
	c.d.mu.Lock()
	defer c.d.mu.Unlock()
	return c.d.container.ReadBlock(lba, buf)
}

func (c *Channel) WriteBlock(lba uint32, buf []byte) error {
	c.d.mu.Lock()
	defer c.d.mu.Unlock()
	return c.d.container.WriteBlock(lba, buf)
}

func (c *Channel) Sync() error {
	c.d.mu.Lock()
	defer c.d.mu.Unlock()
	return c.d.container.Sync()
}

func (c *Channel) Close() error { return nil }
