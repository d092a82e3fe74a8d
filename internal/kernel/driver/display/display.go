// Package display implements the frame-buffer/surface/screen device
// model and the Copper program cache that backs screen configuration
// changes.
package display

import (
	"context"
	"sync"

	"github.com/go-logr/logr"

	"github.com/serena-os/kernel/internal/kernel/driver"
	kerrors "github.com/serena-os/kernel/pkg/errors"
)

// Surface is an off-screen pixel buffer a client renders into.
type Surface struct {
	Width, Height int
	Pixels        []byte // Width*Height*4, BGRA
}

func NewSurface(w, h int) *Surface {
	return &Surface{Width: w, Height: h, Pixels: make([]byte, w*h*4)}
}

// Screen composites one or more Surfaces onto the frame buffer at a
// given mode; changing a Screen's mode or surface list regenerates its
// Copper program.
type Screen struct {
	mu       sync.Mutex
	Width    int
	Height   int
	surfaces []*Surface
	program  *CopperProgram
}

// Driver is the display device: one frame buffer, a set of screens,
// and a shared Copper program cache every screen submission goes
// through.
type Driver struct {
	driver.BaseDriver

	mu      sync.Mutex
	screens []*Screen
	cache   *CopperCache
}

func New(logger logr.Logger) *Driver {
	return &Driver{
		BaseDriver: driver.NewBaseDriver("display0", "display", logger),
		cache:      NewCopperCache(),
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
	d.SetState(driver.Stopped)
	return nil
}

// NewScreen creates and registers a screen at (w, h).
func (d *Driver) NewScreen(w, h int) *Screen {
	s := &Screen{Width: w, Height: h}
	d.mu.Lock()
	d.screens = append(d.screens, s)
	d.mu.Unlock()
	return s
}

// SubmitConfiguration regenerates a screen's Copper program for its
// current surface list and mode, reusing a cached program when one
// with a matching instruction count already exists.
func (d *Driver) SubmitConfiguration(s *Screen, surfaces []*Surface) *CopperProgram {
	s.mu.Lock()
	s.surfaces = surfaces
	instructions := len(surfaces)*2 + 1 // one move per surface plus one wait
	s.mu.Unlock()

	prog := d.cache.Submit(instructions)
	s.mu.Lock()
	s.program = prog
	s.mu.Unlock()
	return prog
}

// Channel is a display session; CreateChannel's arg selects which
// screen it addresses.
type Channel struct {
	d      *Driver
	screen *Screen
}

func (d *Driver) CreateChannel(arg any) (any, error) {
	idx, _ := arg.(int)
	d.mu.Lock()
	defer d.mu.Unlock()
	if idx < 0 || idx >= len(d.screens) {
		return nil, kerrors.EINVAL
	}
	return &Channel{d: d, screen: d.screens[idx]}, nil
}

func (c *Channel) Close() error { return nil }
