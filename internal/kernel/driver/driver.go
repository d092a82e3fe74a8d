// Package driver implements the kernel's driver framework: a six-state
// lifecycle every concrete driver goes through, and a catalog drivers
// register themselves into so DevFS can publish them as inodes.
package driver

import (
	"context"
	"fmt"
	"sync"

	"github.com/go-logr/logr"
)

// State is a driver's lifecycle stage.
type State int

const (
	Uninitialized State = iota
	Initializing
	Running
	Stopping
	Stopped
	Failed
)

func (s State) String() string {
	switch s {
	case Uninitialized:
		return "uninitialized"
	case Initializing:
		return "initializing"
	case Running:
		return "running"
	case Stopping:
		return "stopping"
	case Stopped:
		return "stopped"
	case Failed:
		return "failed"
	default:
		return "unknown"
	}
}

// Driver is the interface every concrete driver implements: a name, a
// class (used by DevFS's Class_Register-equivalent dispatch), and a
// lifecycle. CreateChannel opens a fresh IOChannel-backing session over
// the device, the same role Inode.CreateChannel plays for the VFS.
type Driver interface {
	Name() string
	Class() string
	State() State

	Init(ctx context.Context) error
	Start(ctx context.Context) error
	Stop(ctx context.Context) error

	CreateChannel(arg any) (any, error)
}

// BaseDriver provides the status/error bookkeeping every driver shares,
// the same role BaseContinuousCollector plays for collectors: embedders
// get Name/Class/State/SetState/SetError for free and only implement
// the operations specific to their device.
type BaseDriver struct {
	name   string
	class  string
	logger logr.Logger

	mu        sync.Mutex
	state     State
	lastError error
}

func NewBaseDriver(name, class string, logger logr.Logger) BaseDriver {
	return BaseDriver{
		name:   name,
		class:  class,
		logger: logger.WithName(name),
		state:  Uninitialized,
	}
}

func (b *BaseDriver) Name() string  { return b.name }
func (b *BaseDriver) Class() string { return b.class }

func (b *BaseDriver) State() State {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.state
}

func (b *BaseDriver) SetState(s State) {
	b.mu.Lock()
	b.state = s
	b.mu.Unlock()
}

func (b *BaseDriver) SetError(err error) {
	b.mu.Lock()
	b.lastError = err
	if err != nil {
		b.state = Failed
	}
	b.mu.Unlock()
	if err != nil {
		b.logger.Error(err, "driver error")
	}
}

func (b *BaseDriver) LastError() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.lastError
}

func (b *BaseDriver) Logger() logr.Logger { return b.logger }

// Catalog is the registry of live drivers, keyed by name, the same
// shape as performance.CollectorRegistry generalized from metric type
// to driver name.
type Catalog struct {
	mu      sync.RWMutex
	drivers map[string]Driver
	logger  logr.Logger
}

func NewCatalog(logger logr.Logger) *Catalog {
	return &Catalog{
		drivers: make(map[string]Driver),
		logger:  logger.WithName("driver-catalog"),
	}
}

// Register adds d to the catalog under its own name.
func (c *Catalog) Register(d Driver) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, exists := c.drivers[d.Name()]; exists {
		return fmt.Errorf("driver catalog: %q already registered", d.Name())
	}
	c.drivers[d.Name()] = d
	c.logger.Info("registered driver", "name", d.Name(), "class", d.Class())
	return nil
}

func (c *Catalog) Get(name string) (Driver, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	d, ok := c.drivers[name]
	return d, ok
}

func (c *Catalog) All() []Driver {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]Driver, 0, len(c.drivers))
	for _, d := range c.drivers {
		out = append(out, d)
	}
	return out
}

// StartAll initializes and starts every registered driver, stopping at
// the first failure. Drivers already Running are left alone, allowing
// StartAll to be called again after registering new drivers at runtime
// (Zorro bus autoconfig discovering a card post-boot).
func (c *Catalog) StartAll(ctx context.Context) error {
	for _, d := range c.All() {
		if d.State() == Running {
			continue
		}
		if err := d.Init(ctx); err != nil {
			return fmt.Errorf("driver %q init: %w", d.Name(), err)
		}
		if err := d.Start(ctx); err != nil {
			return fmt.Errorf("driver %q start: %w", d.Name(), err)
		}
	}
	return nil
}

// StopAll stops every Running driver in the catalog's map iteration
// order; the catalog keeps no registration order, so the stop order is
// not defined. It is best-effort: it collects every error rather than aborting at the
// first one so a hung driver doesn't block the rest of teardown.
func (c *Catalog) StopAll(ctx context.Context) error {
	var errs []error
	for _, d := range c.All() {
		if d.State() != Running {
			continue
		}
		if err := d.Stop(ctx); err != nil {
			errs = append(errs, fmt.Errorf("driver %q stop: %w", d.Name(), err))
		}
	}
	if len(errs) > 0 {
		return fmt.Errorf("driver catalog stop: %v", errs)
	}
	return nil
}
