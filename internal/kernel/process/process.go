package process

import (
	"sync"
	"time"

	"github.com/serena-os/kernel/internal/kernel/sched"
	kerrors "github.com/serena-os/kernel/pkg/errors"
)

// Pid identifies a process; 1 is always kerneld, the root of the
// process tree.
type Pid uint32

const KerneldPid Pid = 1

// ExitReason classifies why a process became a zombie.
type ExitReason int

const (
	ExitNone ExitReason = iota
	ExitNormal
	ExitSignaled
	ExitException
)

// Credentials identifies who a process runs as.
type Credentials struct {
	Pid  Pid
	Ppid Pid
	Uid  uint32
	Gid  uint32
}

// Descriptor is a small-integer handle into a process's descriptor
// table; 0/1/2 are stdin/stdout/stderr by convention.
type Descriptor int

const (
	FdStdin  Descriptor = 0
	FdStdout Descriptor = 1
	FdStderr Descriptor = 2
)

// IOChannel is the minimal surface process needs from ioc.Channel
// without importing it directly, avoiding a process<->ioc import cycle
// (ioc handlers need Process to validate descriptor ownership).
type IOChannel interface {
	Close() error
}

// Process owns an address space, a descriptor table, one or more vCPUs,
// credentials, exception handlers, a signal routing table, and
// parent/child links.
type Process struct {
	Creds Credentials
	Umask uint32
	Cwd   string
	Root  string

	AddrSpace *AddressSpace

	mu          sync.Mutex
	descriptors map[Descriptor]IOChannel
	nextFd      Descriptor

	vcpus   []*sched.VCPU
	mainCPU *sched.VCPU

	exceptionHandlers map[ExceptionCode]*ExceptionHandler
	signalRoutes      map[Signal]SignalRoute

	parent   *Process
	children []*Process

	exited     bool
	exitReason ExitReason
	exitCode   int32
	exitCh     chan struct{}

	// childWake is a doorbell channel (closed-and-replaced, same pattern
	// as DispatchQueue's doorbell): every child exit closes the current
	// one and installs a fresh one, waking every goroutine parked in
	// Waitpid's blocking path.
	childWake chan struct{}
}

// NewProcess creates a process with an empty address space and
// descriptor table. Use ProcessTable.Spawn to create a fully wired
// process attached to the tree.
func NewProcess(creds Credentials, pageSize uint64) *Process {
	return &Process{
		Creds:             creds,
		AddrSpace:         NewAddressSpace(pageSize),
		descriptors:       make(map[Descriptor]IOChannel),
		nextFd:            3,
		exceptionHandlers: make(map[ExceptionCode]*ExceptionHandler),
		signalRoutes:      make(map[Signal]SignalRoute),
		exitCh:            make(chan struct{}),
		childWake:         make(chan struct{}),
	}
}

// ringChildWake wakes every goroutine parked waiting on one of p's
// children to exit.
func (p *Process) ringChildWake() {
	p.mu.Lock()
	close(p.childWake)
	p.childWake = make(chan struct{})
	p.mu.Unlock()
}

// childWakeChan returns the current doorbell channel to select on;
// callers must re-check exit conditions after it fires since it's also
// rung on every unrelated child exit.
func (p *Process) childWakeChan() chan struct{} {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.childWake
}

// AddVCPU registers v as belonging to p; the first call also becomes
// the process's main vCPU.
func (p *Process) AddVCPU(v *sched.VCPU) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.vcpus = append(p.vcpus, v)
	if p.mainCPU == nil {
		p.mainCPU = v
	}
}

func (p *Process) MainVCPU() *sched.VCPU {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.mainCPU
}

// AssignDescriptor installs ch at the next free descriptor slot and
// returns it.
func (p *Process) AssignDescriptor(ch IOChannel) Descriptor {
	p.mu.Lock()
	defer p.mu.Unlock()
	fd := p.nextFd
	p.nextFd++
	p.descriptors[fd] = ch
	return fd
}

// InstallDescriptor installs ch at a specific fd (used for default
// inheritance of stdin/stdout/stderr across spawn).
func (p *Process) InstallDescriptor(fd Descriptor, ch IOChannel) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.descriptors[fd] = ch
	if fd >= p.nextFd {
		p.nextFd = fd + 1
	}
}

// Descriptor looks up an open channel, or returns EBADF.
func (p *Process) Descriptor(fd Descriptor) (IOChannel, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	ch, ok := p.descriptors[fd]
	if !ok {
		return nil, kerrors.EBADF
	}
	return ch, nil
}

// CloseDescriptor closes and removes fd from the table.
func (p *Process) CloseDescriptor(fd Descriptor) error {
	p.mu.Lock()
	ch, ok := p.descriptors[fd]
	if !ok {
		p.mu.Unlock()
		return kerrors.EBADF
	}
	delete(p.descriptors, fd)
	p.mu.Unlock()
	return ch.Close()
}

// Exited reports whether the process is a zombie, and if so its reason
// and code.
func (p *Process) Exited() (bool, ExitReason, int32) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.exited, p.exitReason, p.exitCode
}

// Wait blocks until the process exits or the timeout elapses, reporting
// whether it exited within the window.
func (p *Process) Wait(timeout time.Duration) bool {
	select {
	case <-p.exitCh:
		return true
	case <-time.After(timeout):
		return false
	}
}
