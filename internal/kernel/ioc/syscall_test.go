package ioc

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/serena-os/kernel/internal/kernel/clock"
	"github.com/serena-os/kernel/internal/kernel/hal"
	"github.com/serena-os/kernel/internal/kernel/process"
	"github.com/serena-os/kernel/internal/kernel/sched"
	"github.com/serena-os/kernel/internal/kernel/vfs"
	"github.com/serena-os/kernel/internal/kernel/vfs/sefs"
	kerrors "github.com/serena-os/kernel/pkg/errors"
)

// newTestSyscalls wires a scheduler, a process table, and a one-entry
// mounted hierarchy together the way cmd/serenad does at boot, so
// Dispatch can be exercised by a real vCPU instead of called bare.
func newTestSyscalls(t *testing.T) (*Syscalls, *process.ProcessTable, *sched.Scheduler) {
	t.Helper()
	ts := hal.NewManualTickSource(time.Millisecond)
	clk := clock.New(time.Millisecond)
	s := sched.New(clk, ts)
	go s.Run()
	t.Cleanup(s.Stop)

	container := sefs.NewMemContainer(64, 512)
	require.NoError(t, sefs.Format(container, "vol", 0, 0, 0o755))
	fs, err := sefs.Mount(1, container, false)
	require.NoError(t, err)

	h := vfs.NewFileHierarchy()
	require.NoError(t, h.Mount("/", fs))

	procs := process.NewProcessTable(s)
	return NewSyscalls(h, procs), procs, s
}

func TestDispatchOpenStatCloseRoundTrip(t *testing.T) {
	syscalls, procs, _ := newTestSyscalls(t)
	p, err := procs.Spawn(nil, "init", nil, process.SpawnOpts{}, func(context.Context, *sched.VCPU) {})
	require.NoError(t, err)
	v := p.MainVCPU()

	fdRet := syscalls.Dispatch(context.Background(), v, p, SCOpen, Args{Path: "/", Mode: ORead})
	require.GreaterOrEqual(t, fdRet, int64(0))
	fd := process.Descriptor(fdRet)

	sizeRet := syscalls.Dispatch(context.Background(), v, p, SCStat, Args{Fd: fd})
	require.GreaterOrEqual(t, sizeRet, int64(0))

	closeRet := syscalls.Dispatch(context.Background(), v, p, SCClose, Args{Fd: fd})
	require.Equal(t, int64(0), closeRet)

	// The descriptor is gone: a second stat on it reports -EBADF.
	afterClose := syscalls.Dispatch(context.Background(), v, p, SCStat, Args{Fd: fd})
	require.Equal(t, errnoOf(kerrors.EBADF), afterClose)
}

func TestDispatchUnknownSyscallReturnsENOSYS(t *testing.T) {
	syscalls, procs, _ := newTestSyscalls(t)
	p, err := procs.Spawn(nil, "init", nil, process.SpawnOpts{}, func(context.Context, *sched.VCPU) {})
	require.NoError(t, err)

	ret := syscalls.Dispatch(context.Background(), p.MainVCPU(), p, SyscallNo(999), Args{})
	require.Equal(t, errnoOf(kerrors.ENOSYS), ret)
}

func TestDispatchExitMarksProcessExited(t *testing.T) {
	syscalls, procs, _ := newTestSyscalls(t)
	p, err := procs.Spawn(nil, "init", nil, process.SpawnOpts{}, func(context.Context, *sched.VCPU) {})
	require.NoError(t, err)

	ret := syscalls.Dispatch(context.Background(), p.MainVCPU(), p, SCExit, Args{ExitCode: 7})
	require.Equal(t, int64(0), ret)

	exited, reason, code := p.Exited()
	require.True(t, exited)
	require.Equal(t, process.ExitNormal, reason)
	require.Equal(t, int32(7), code)
}
