package sefs

import (
	"os"
	"sync"

	"github.com/fsnotify/fsnotify"

	kerrors "github.com/serena-os/kernel/pkg/errors"
)

// FSContainer is the block device a SerenaFS volume lives on: fixed-size
// LBA reads and writes plus a block count and size. Concrete filesystem
// code (format, mount, the block cache) talks to a volume only through
// this interface, never to a *os.File directly, so the same code works
// against a disk image, a ramdisk, or (eventually) a real Zorro-attached
// device.
type FSContainer interface {
	ReadBlock(lba uint32, buf []byte) error
	WriteBlock(lba uint32, buf []byte) error
	BlockSize() uint32
	BlockCount() uint32
	Sync() error
}

// HostFileContainer backs a FSContainer with an ordinary host file,
// standing in for a removable disk image during development and tests.
// It watches the backing file with fsnotify so a test can simulate
// removable-media replacement: a write from outside this process flips
// a "changed" flag that the next ReadBlock/WriteBlock reports as
// EDISKCHANGE, standing in for a disk-change line with no physical
// line available.
type HostFileContainer struct {
	mu         sync.Mutex
	f          *os.File
	blockSize  uint32
	blockCount uint32

	watcher *fsnotify.Watcher
	changed bool
}

// OpenHostFileContainer opens (or creates) path as a blockCount-block,
// blockSize-byte-block container.
func OpenHostFileContainer(path string, blockCount, blockSize uint32) (*HostFileContainer, error) {
	f, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE, 0o644)
	if err != nil {
		return nil, err
	}
	size := int64(blockCount) * int64(blockSize)
	if err := f.Truncate(size); err != nil {
		f.Close()
		return nil, err
	}

	w, err := fsnotify.NewWatcher()
	if err != nil {
		f.Close()
		return nil, err
	}
	if err := w.Add(path); err != nil {
		w.Close()
		f.Close()
		return nil, err
	}

	c := &HostFileContainer{
		f:          f,
		blockSize:  blockSize,
		blockCount: blockCount,
		watcher:    w,
	}
	go c.watchLoop()
	return c, nil
}

func (c *HostFileContainer) watchLoop() {
	for event := range c.watcher.Events {
		if event.Op&(fsnotify.Write|fsnotify.Create) != 0 {
			c.mu.Lock()
			c.changed = true
			c.mu.Unlock()
		}
	}
}

func (c *HostFileContainer) checkChangedLocked() error {
	if c.changed {
		c.changed = false
		return kerrors.EDISKCHANGE
	}
	return nil
}

// AcknowledgeChange clears a pending EDISKCHANGE without performing an
// IO, the equivalent of a driver re-reading the superblock after a
// reported media swap and deciding to proceed anyway.
func (c *HostFileContainer) AcknowledgeChange() {
	c.mu.Lock()
	c.changed = false
	c.mu.Unlock()
}

func (c *HostFileContainer) ReadBlock(lba uint32, buf []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.checkChangedLocked(); err != nil {
		return err
	}
	if lba >= c.blockCount {
		return kerrors.ERANGE
	}
	if uint32(len(buf)) != c.blockSize {
		return kerrors.EINVAL
	}
	_, err := c.f.ReadAt(buf, int64(lba)*int64(c.blockSize))
	return err
}

func (c *HostFileContainer) WriteBlock(lba uint32, buf []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.checkChangedLocked(); err != nil {
		return err
	}
	if lba >= c.blockCount {
		return kerrors.ERANGE
	}
	if uint32(len(buf)) != c.blockSize {
		return kerrors.EINVAL
	}
	_, err := c.f.WriteAt(buf, int64(lba)*int64(c.blockSize))
	return err
}

func (c *HostFileContainer) BlockSize() uint32  { return c.blockSize }
func (c *HostFileContainer) BlockCount() uint32 { return c.blockCount }

func (c *HostFileContainer) Sync() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.f.Sync()
}

// Close releases the watcher and backing file.
func (c *HostFileContainer) Close() error {
	c.watcher.Close()
	return c.f.Close()
}

// MemContainer is a pure in-memory FSContainer, used by tests that don't
// need EDISKCHANGE semantics.
type MemContainer struct {
	mu         sync.Mutex
	blocks     [][]byte
	blockSize  uint32
	blockCount uint32
}

func NewMemContainer(blockCount, blockSize uint32) *MemContainer {
	blocks := make([][]byte, blockCount)
	for i := range blocks {
		blocks[i] = make([]byte, blockSize)
	}
	return &MemContainer{blocks: blocks, blockSize: blockSize, blockCount: blockCount}
}

func (c *MemContainer) ReadBlock(lba uint32, buf []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if lba >= c.blockCount {
		return kerrors.ERANGE
	}
	if uint32(len(buf)) != c.blockSize {
		return kerrors.EINVAL
	}
	copy(buf, c.blocks[lba])
	return nil
}

func (c *MemContainer) WriteBlock(lba uint32, buf []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if lba >= c.blockCount {
		return kerrors.ERANGE
	}
	if uint32(len(buf)) != c.blockSize {
		return kerrors.EINVAL
	}
	copy(c.blocks[lba], buf)
	return nil
}

func (c *MemContainer) BlockSize() uint32  { return c.blockSize }
func (c *MemContainer) BlockCount() uint32 { return c.blockCount }
func (c *MemContainer) Sync() error        { return nil }
