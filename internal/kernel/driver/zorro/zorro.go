// Package zorro implements the Zorro expansion bus autoconfig scan: a
// capability-discovery pass over a set of slots, each either empty or
// carrying a board with a manufacturer/product identity.
package zorro

import (
	"context"
	"fmt"
	"sync"

	"github.com/go-logr/logr"

	"github.com/serena-os/kernel/internal/kernel/driver"
	kerrors "github.com/serena-os/kernel/pkg/errors"
)

// BoardIdentifier is a Zorro board's manufacturer/product pair, the
// identity autoconfig reads out of a board's ROM header.
type BoardIdentifier struct {
	Manufacturer uint16
	Product      uint8
	Serial       uint32
	name         string
}

// BoardOption configures a BoardIdentifier via the functional-options
// idiom, for optional fields a plain struct literal can't express well.
type BoardOption func(*BoardIdentifier)

func WithSerial(serial uint32) BoardOption {
	return func(b *BoardIdentifier) { b.Serial = serial }
}

func WithName(name string) BoardOption {
	return func(b *BoardIdentifier) { b.name = name }
}

func NewBoardIdentifier(manufacturer uint16, product uint8, opts ...BoardOption) BoardIdentifier {
	b := BoardIdentifier{Manufacturer: manufacturer, Product: product}
	for _, opt := range opts {
		opt(&b)
	}
	return b
}

func (b BoardIdentifier) String() string {
	if b.name != "" {
		return b.name
	}
	return fmt.Sprintf("mfg=%04x product=%02x", b.Manufacturer, b.Product)
}

// SlotProbe reads whatever occupies a single Zorro slot. A real probe
// walks the board's autoconfig ROM header at a fixed physical offset;
// tests supply a fake that returns a canned identity or "empty".
type SlotProbe func(slot int) (BoardIdentifier, bool, error)

// Board is one configured expansion board, assigned its own base
// address and IRQ once autoconfig places it.
type Board struct {
	Slot     int
	ID       BoardIdentifier
	BaseAddr uint32
	IRQ      int
}

// Driver owns the autoconfig scan result: the board list and, per
// slot, whether it answered at all.
type Driver struct {
	driver.BaseDriver

	mu     sync.Mutex
	probe  SlotProbe
	slots  int
	boards []Board
}

// New creates an autoconfig driver that will scan nSlots slots using
// probe when Init runs.
func New(nSlots int, probe SlotProbe, logger logr.Logger) *Driver {
	return &Driver{
		BaseDriver: driver.NewBaseDriver("zorro0", "bus", logger),
		probe:      probe,
		slots:      nSlots,
	}
}

// nextBaseAddr mirrors the real bus's fixed per-slot address spacing:
// each configured board gets the next 64KiB-aligned Zorro II window.
func nextBaseAddr(n int) uint32 {
	const windowSize = 0x10000
	return 0x00E80000 + uint32(n)*windowSize
}

// Init scans every slot. A slot that errors is logged and treated as
// empty rather than aborting the whole scan, the same "one failed
// capability probe doesn't sink the others" posture DetectCapabilities
// takes for each individual kernel feature check.
func (d *Driver) Init(ctx context.Context) error {
	d.SetState(driver.Initializing)

	var boards []Board
	for slot := 0; slot < d.slots; slot++ {
		id, present, err := d.probe(slot)
		if err != nil {
			d.Logger().Info("autoconfig probe failed, treating slot as empty", "slot", slot, "error", err)
			continue
		}
		if !present {
			continue
		}
		boards = append(boards, Board{
			Slot:     slot,
			ID:       id,
			BaseAddr: nextBaseAddr(len(boards)),
			IRQ:      2,
		})
	}

	d.mu.Lock()
	d.boards = boards
	d.mu.Unlock()
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

// Boards returns the boards autoconfig placed, in scan order.
func (d *Driver) Boards() []Board {
	d.mu.Lock()
	defer d.mu.Unlock()
	out := make([]Board, len(d.boards))
	copy(out, d.boards)
	return out
}

// CreateChannel exposes the board list as a channel arg selects a
// board from by slot number.
type Channel struct {
	board Board
}

func (d *Driver) CreateChannel(arg any) (any, error) {
	slot, _ := arg.(int)
	d.mu.Lock()
	defer d.mu.Unlock()
	for _, b := range d.boards {
		if b.Slot == slot {
			return &Channel{board: b}, nil
		}
	}
	return nil, kerrors.ENOENT
}

func (c *Channel) Board() Board { return c.board }
func (c *Channel) Close() error { return nil }
