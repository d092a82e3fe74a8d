// Package ioc implements the IOChannel abstraction: the file-handle
// object a process descriptor table entry actually points at, and the
// syscall table that dispatches into it. Every open resource (a plain
// inode, a device node's driver session, eventually a pipe) is
// presented through this one type, the same "typed resource behind a
// thin interface, embeddable bookkeeping struct in front" shape the
// driver framework uses for Driver/BaseDriver.
package ioc

import (
	"sync"

	"github.com/serena-os/kernel/internal/kernel/vfs"
	kerrors "github.com/serena-os/kernel/pkg/errors"
)

// OpenMode is the set of flags a channel was opened with.
type OpenMode uint32

const (
	ORead OpenMode = 1 << iota
	OWrite
	OAppend
	ONonblock
)

func (m OpenMode) canRead() bool  { return m&ORead != 0 }
func (m OpenMode) canWrite() bool { return m&OWrite != 0 }

// Channel is an open file handle: mode flags, a cached seek position,
// and a reference to the underlying resource. Reads/writes against an
// inode-backed channel go through the generic offset-tracking path
// below; a device-backed channel instead holds whatever typed session
// object the driver's CreateChannel returned (rtc.Channel, hid.Channel,
// ...), reached through Ioctl/Device rather than Read/Write.
type Channel struct {
	mu   sync.Mutex
	refs int32

	mode OpenMode
	pos  int64

	inode vfs.Inode // set for a plain file/directory channel

	dev        any // set for a device-node channel (driver.Driver.CreateChannel's return value)
	id         string
	categories []string

	closed bool
}

// OpenInode wraps inode directly: reads/writes/seeks/truncates go
// straight through the inode at a tracked offset, the ordinary
// regular-file/directory channel.
func OpenInode(inode vfs.Inode, mode OpenMode) *Channel {
	return &Channel{mode: mode, inode: inode, refs: 1}
}

// OpenDevice wraps the session object inode.CreateChannel(arg) returns
// for a device node. id/categories are supplied by the opener (the
// syscall layer already knows which driver it resolved the path to)
// and answer the GetId/GetCategories core ioctls.
func OpenDevice(inode vfs.Inode, mode OpenMode, arg any, id string, categories []string) (*Channel, error) {
	dev, err := inode.CreateChannel(arg)
	if err != nil {
		return nil, err
	}
	return &Channel{mode: mode, dev: dev, id: id, categories: categories, refs: 1}, nil
}

// Read reads from the current position into buf and advances it.
// Device channels don't support the generic byte-stream Read; their
// typed session object (Events(), Read() time.Time, ...) is reached
// through Device instead.
func (c *Channel) Read(buf []byte) (int, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return 0, kerrors.EBADF
	}
	if !c.mode.canRead() {
		return 0, kerrors.EACCESS
	}
	if c.inode == nil {
		return 0, kerrors.ENOSYS
	}
	n, err := c.inode.Read(c.pos, buf)
	c.pos += int64(n)
	return n, err
}

// Write writes buf at the current position (or at end-of-file under
// O_APPEND) and advances the position.
func (c *Channel) Write(buf []byte) (int, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return 0, kerrors.EBADF
	}
	if !c.mode.canWrite() {
		return 0, kerrors.EACCESS
	}
	if c.inode == nil {
		return 0, kerrors.ENOSYS
	}
	if c.mode&OAppend != 0 {
		c.pos = int64(c.inode.GetInfo().Size)
	}
	n, err := c.inode.Write(c.pos, buf)
	c.pos += int64(n)
	return n, err
}

// Seek whence values, matching lseek's SEEK_SET/SEEK_CUR/SEEK_END.
const (
	SeekSet = iota
	SeekCur
	SeekEnd
)

func (c *Channel) Seek(offset int64, whence int) (int64, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return 0, kerrors.EBADF
	}
	if c.inode == nil {
		return 0, kerrors.ENOSYS
	}
	var base int64
	switch whence {
	case SeekSet:
		base = 0
	case SeekCur:
		base = c.pos
	case SeekEnd:
		base = int64(c.inode.GetInfo().Size)
	default:
		return 0, kerrors.EINVAL
	}
	newPos := base + offset
	if newPos < 0 {
		return 0, kerrors.EINVAL
	}
	c.pos = newPos
	return newPos, nil
}

func (c *Channel) Truncate(size uint64) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return kerrors.EBADF
	}
	if c.inode == nil {
		return kerrors.ENOSYS
	}
	return c.inode.Truncate(size)
}

func (c *Channel) Stat() (vfs.Info, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return vfs.Info{}, kerrors.EBADF
	}
	if c.inode == nil {
		return vfs.Info{}, kerrors.ENOSYS
	}
	return c.inode.GetInfo(), nil
}

// Device returns the driver-specific session object a device channel
// holds, for syscall handlers that know the concrete device type (a
// real ioctl table would type-switch on this the same way).
func (c *Channel) Device() (any, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return nil, kerrors.EBADF
	}
	if c.dev == nil {
		return nil, kerrors.ENOSYS
	}
	return c.dev, nil
}

// Core ioctl commands, shared by every driver subclass. Subclass
// specific commands (frame-buffer surface/screen commands, HID cursor
// commands, ...) are namespaced starting at IoctlSubclassBase and are
// dispatched by the caller via Device rather than through this
// package's generic Ioctl, since their argument shapes are per-driver.
const (
	IoctlGetId = iota + 1
	IoctlGetCategories
	IoctlSetMode

	IoctlSubclassBase = 256
)

func (c *Channel) Ioctl(cmd int, arg any) (any, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return nil, kerrors.EBADF
	}
	switch cmd {
	case IoctlGetId:
		return c.id, nil
	case IoctlGetCategories:
		return c.categories, nil
	case IoctlSetMode:
		mode, ok := arg.(OpenMode)
		if !ok {
			return nil, kerrors.EINVAL
		}
		c.mode = mode
		return nil, nil
	default:
		return nil, kerrors.ENOSYS
	}
}

func (c *Channel) Fcntl(cmd int, arg any) (any, error) {
	const (
		FcntlGetFlags = iota
		FcntlSetFlags
	)
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return nil, kerrors.EBADF
	}
	switch cmd {
	case FcntlGetFlags:
		return c.mode, nil
	case FcntlSetFlags:
		mode, ok := arg.(OpenMode)
		if !ok {
			return nil, kerrors.EINVAL
		}
		c.mode = mode
		return nil, nil
	default:
		return nil, kerrors.ENOSYS
	}
}

// Dup returns the same Channel with its reference count bumped: the
// duplicate shares position and mode with the original, matching
// POSIX dup's "same open file description" contract rather than a
// fresh independent open.
func (c *Channel) Dup() *Channel {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.refs++
	return c
}

// Close drops one reference; the underlying device session (if any) is
// only closed once every duplicate has been closed.
func (c *Channel) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.refs--
	if c.refs > 0 {
		return nil
	}
	if c.closed {
		return nil
	}
	c.closed = true
	if closer, ok := c.dev.(interface{ Close() error }); ok {
		return closer.Close()
	}
	return nil
}
