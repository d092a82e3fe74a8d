package ioc

import (
	"context"

	"github.com/serena-os/kernel/internal/kernel/process"
	"github.com/serena-os/kernel/internal/kernel/sched"
	"github.com/serena-os/kernel/internal/kernel/vfs"
	kerrors "github.com/serena-os/kernel/pkg/errors"
)

// SyscallNo indexes the syscall table, the Go-side stand-in for the
// stable SC_read/SC_write/... enum a real trap handler switches on.
type SyscallNo int

const (
	SCRead SyscallNo = iota
	SCWrite
	SCOpen
	SCClose
	SCSeek
	SCIoctl
	SCFcntl
	SCDup
	SCTruncate
	SCStat
	SCWaitpid
	SCExit
)

// Args carries every syscall's arguments in one struct. A real trap
// handler would decode these out of fixed pointer-sized registers and
// copy buffers in/out through bounded user-pointer accessors; this
// kernel models process memory as plain Go byte slices (see
// AddressSpace.Allocate), so Buf already is the bounds-checked copy.
type Args struct {
	Fd       process.Descriptor
	Buf      []byte
	Offset   int64
	Whence   int
	Cmd      int
	Arg      any
	Path     string
	Mode     OpenMode
	Pid      process.Pid
	Scope    process.WaitScope
	NoHang   bool
	ExitCode int32
}

// SyscallFunc is one syscall's implementation. A non-nil error is
// translated to a negative errno by Syscalls.Dispatch; callers never see
// the error value directly, matching a real syscall ABI's "-errno or
// a non-negative result" contract.
type SyscallFunc func(ctx context.Context, s *Syscalls, caller *sched.VCPU, p *process.Process, a Args) (int64, error)

// Syscalls bundles the kernel-wide state every syscall handler needs:
// the mount graph for path resolution and the process table for
// spawn/wait/exit. One instance is shared across every vCPU trap.
type Syscalls struct {
	Hierarchy *vfs.FileHierarchy
	Processes *process.ProcessTable

	table map[SyscallNo]SyscallFunc
}

// NewSyscalls builds the syscall table with the default handlers
// below registered.
func NewSyscalls(hierarchy *vfs.FileHierarchy, processes *process.ProcessTable) *Syscalls {
	s := &Syscalls{Hierarchy: hierarchy, Processes: processes}
	s.table = map[SyscallNo]SyscallFunc{
		SCRead:     scRead,
		SCWrite:    scWrite,
		SCOpen:     scOpen,
		SCClose:    scClose,
		SCSeek:     scSeek,
		SCIoctl:    scIoctl,
		SCFcntl:    scFcntl,
		SCDup:      scDup,
		SCTruncate: scTruncate,
		SCStat:     scStat,
		SCWaitpid:  scWaitpid,
		SCExit:     scExit,
	}
	return s
}

// Dispatch looks up no's handler, runs it, and translates any error
// into a negative errno; a success return is always >= 0.
func (s *Syscalls) Dispatch(ctx context.Context, caller *sched.VCPU, p *process.Process, no SyscallNo, a Args) int64 {
	h, ok := s.table[no]
	if !ok {
		return errnoOf(kerrors.ENOSYS)
	}
	ret, err := h(ctx, s, caller, p, a)
	if err != nil {
		return errnoOf(err)
	}
	return ret
}

func channelFor(p *process.Process, fd process.Descriptor) (*Channel, error) {
	raw, err := p.Descriptor(fd)
	if err != nil {
		return nil, err
	}
	c, ok := raw.(*Channel)
	if !ok {
		return nil, kerrors.EBADF
	}
	return c, nil
}

func scRead(_ context.Context, _ *Syscalls, _ *sched.VCPU, p *process.Process, a Args) (int64, error) {
	c, err := channelFor(p, a.Fd)
	if err != nil {
		return 0, err
	}
	n, err := c.Read(a.Buf)
	return int64(n), err
}

func scWrite(_ context.Context, _ *Syscalls, _ *sched.VCPU, p *process.Process, a Args) (int64, error) {
	c, err := channelFor(p, a.Fd)
	if err != nil {
		return 0, err
	}
	n, err := c.Write(a.Buf)
	return int64(n), err
}

// scOpen resolves a.Path against p's current directory and wraps the
// resulting inode as a new descriptor. Device inodes get a
// driver-backed channel; everything else gets a plain inode channel.
// O_CREAT/O_EXCL semantics (creating a missing leaf) are not
// implemented — open only ever binds to an inode that already exists.
func scOpen(_ context.Context, s *Syscalls, _ *sched.VCPU, p *process.Process, a Args) (int64, error) {
	target, _, err := s.Hierarchy.Resolve(p.Cwd, a.Path)
	if err != nil {
		return 0, err
	}
	if target == nil {
		return 0, kerrors.ENOENT
	}

	var ch *Channel
	if target.GetInfo().Type == vfs.TypeDevice {
		ch, err = OpenDevice(target, a.Mode, a.Arg, a.Path, nil)
		if err != nil {
			return 0, err
		}
	} else {
		ch = OpenInode(target, a.Mode)
	}
	fd := p.AssignDescriptor(ch)
	return int64(fd), nil
}

func scClose(_ context.Context, _ *Syscalls, _ *sched.VCPU, p *process.Process, a Args) (int64, error) {
	return 0, p.CloseDescriptor(a.Fd)
}

func scSeek(_ context.Context, _ *Syscalls, _ *sched.VCPU, p *process.Process, a Args) (int64, error) {
	c, err := channelFor(p, a.Fd)
	if err != nil {
		return 0, err
	}
	return c.Seek(a.Offset, a.Whence)
}

func scIoctl(_ context.Context, _ *Syscalls, _ *sched.VCPU, p *process.Process, a Args) (int64, error) {
	c, err := channelFor(p, a.Fd)
	if err != nil {
		return 0, err
	}
	_, err = c.Ioctl(a.Cmd, a.Arg)
	return 0, err
}

func scFcntl(_ context.Context, _ *Syscalls, _ *sched.VCPU, p *process.Process, a Args) (int64, error) {
	c, err := channelFor(p, a.Fd)
	if err != nil {
		return 0, err
	}
	_, err = c.Fcntl(a.Cmd, a.Arg)
	return 0, err
}

func scDup(_ context.Context, _ *Syscalls, _ *sched.VCPU, p *process.Process, a Args) (int64, error) {
	c, err := channelFor(p, a.Fd)
	if err != nil {
		return 0, err
	}
	fd := p.AssignDescriptor(c.Dup())
	return int64(fd), nil
}

func scTruncate(_ context.Context, _ *Syscalls, _ *sched.VCPU, p *process.Process, a Args) (int64, error) {
	c, err := channelFor(p, a.Fd)
	if err != nil {
		return 0, err
	}
	return 0, c.Truncate(uint64(a.Offset))
}

func scStat(_ context.Context, _ *Syscalls, _ *sched.VCPU, p *process.Process, a Args) (int64, error) {
	c, err := channelFor(p, a.Fd)
	if err != nil {
		return 0, err
	}
	info, err := c.Stat()
	if err != nil {
		return 0, err
	}
	return int64(info.Size), nil
}

func scWaitpid(ctx context.Context, s *Syscalls, caller *sched.VCPU, p *process.Process, a Args) (int64, error) {
	reaped, err := s.Processes.Waitpid(ctx, caller, p, a.Pid, a.Scope, a.NoHang)
	if err != nil {
		return 0, err
	}
	if reaped == nil {
		return 0, nil
	}
	return int64(reaped.Creds.Pid), nil
}

func scExit(_ context.Context, s *Syscalls, v *sched.VCPU, p *process.Process, a Args) (int64, error) {
	s.Processes.Exit(p, v, process.ExitNormal, a.ExitCode)
	return 0, nil
}

// errnoTable maps the kernel's sentinel errors to the small negative
// integers a syscall return value encodes them as. Identity, not
// string content, is what errnoOf compares on on (errors.Is), so a
// wrapped sentinel ("read inode 7: %w", kerrors.EIO) still translates
// correctly.
var errnoTable = map[error]int64{
	kerrors.EINVAL:      1,
	kerrors.ENOENT:      2,
	kerrors.EACCESS:     3,
	kerrors.EBUSY:       4,
	kerrors.ENOSPC:      5,
	kerrors.ERANGE:      6,
	kerrors.EIO:         7,
	kerrors.ENOSYS:      8,
	kerrors.EINTR:       9,
	kerrors.ETIMEDOUT:   10,
	kerrors.EDISKCHANGE: 11,
	kerrors.ELOOP:       12,
	kerrors.EBADF:       13,
	kerrors.EPERM:       14,
	kerrors.EROFS:       15,
	kerrors.ENOMEM:      16,
	kerrors.ENOMEDIUM:   17,
	kerrors.EAGAIN:      18,
	kerrors.ENOTDIR:     19,
	kerrors.EEXIST:      20,
	kerrors.ENOTEMPTY:   21,
	kerrors.ECHILD:      22,
}

// errnoOf translates err into a syscall return value: 0 for nil, else
// a negative code identifying which sentinel it wraps, or -1 for an
// error that doesn't match any known sentinel.
func errnoOf(err error) int64 {
	if err == nil {
		return 0
	}
	for sentinel, code := range errnoTable {
		if kerrors.Is(err, sentinel) {
			return -code
		}
	}
	return -1
}
