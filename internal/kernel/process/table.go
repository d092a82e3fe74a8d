package process

import (
	"context"
	"sync"

	"github.com/serena-os/kernel/internal/kernel/sched"
	kerrors "github.com/serena-os/kernel/pkg/errors"
)

// EventType classifies a ProcessEvent.
type EventType int

const (
	EventSpawn EventType = iota
	EventExec
	EventExit
)

// ProcessEvent mirrors the shape a host-side tracer would have to
// reconstruct from an execve ring buffer; here the process table is
// the source of truth and emits the event directly.
type ProcessEvent struct {
	Type EventType
	Pid  Pid
	Ppid Pid
	Comm string
	Args []string
}

// SpawnOpts customizes Spawn's default inheritance and credential
// overrides.
type SpawnOpts struct {
	NoDefaultDescriptors bool
	OverrideUid          *uint32
	OverrideGid          *uint32
	OverrideRoot         string
	OverrideCwd          string
}

// ProcessTable is the process tree: a map keyed by Pid behind one
// sync.RWMutex, the same catalog shape as the driver catalog and
// classobj's class registry.
type ProcessTable struct {
	sched *sched.Scheduler

	mu      sync.RWMutex
	procs   map[Pid]*Process
	nextPid Pid

	events chan ProcessEvent
}

// NewProcessTable creates an empty table driven by s, with kerneld not
// yet created (call Spawn for pid 1 first).
func NewProcessTable(s *sched.Scheduler) *ProcessTable {
	return &ProcessTable{
		sched:  s,
		procs:  make(map[Pid]*Process),
		events: make(chan ProcessEvent, 256),
	}
}

// Events returns the channel ProcessEvents are published on; debugsvc
// and HID-style consumers subscribe by draining it.
func (t *ProcessTable) Events() <-chan ProcessEvent {
	return t.events
}

func (t *ProcessTable) publish(ev ProcessEvent) {
	select {
	case t.events <- ev:
	default:
		// Slow consumer: drop rather than block process lifecycle on a
		// subscriber that isn't keeping up.
	}
}

// Spawn opens comm's image (the caller supplies entry as a closure
// standing in for "load the executable and run its entry point"),
// builds a new address space and process, creates a main vCPU, attaches
// it to parent (nil for kerneld), and returns the child.
func (t *ProcessTable) Spawn(parent *Process, comm string, argv []string, opts SpawnOpts, entry func(ctx context.Context, v *sched.VCPU)) (*Process, error) {
	t.mu.Lock()
	t.nextPid++
	pid := t.nextPid
	t.mu.Unlock()

	ppid := KerneldPid
	if parent != nil {
		ppid = parent.Creds.Pid
	}

	creds := Credentials{Pid: pid, Ppid: ppid, Uid: 0, Gid: 0}
	if parent != nil {
		creds.Uid = parent.Creds.Uid
		creds.Gid = parent.Creds.Gid
	}
	if opts.OverrideUid != nil {
		creds.Uid = *opts.OverrideUid
	}
	if opts.OverrideGid != nil {
		creds.Gid = *opts.OverrideGid
	}

	p := NewProcess(creds, 4096)
	p.Cwd = "/"
	p.Root = "/"
	if parent != nil {
		p.Cwd = parent.Cwd
		p.Root = parent.Root
	}
	if opts.OverrideCwd != "" {
		p.Cwd = opts.OverrideCwd
	}
	if opts.OverrideRoot != "" {
		p.Root = opts.OverrideRoot
	}

	if parent != nil && !opts.NoDefaultDescriptors {
		for _, fd := range []Descriptor{FdStdin, FdStdout, FdStderr} {
			if ch, err := parent.Descriptor(fd); err == nil {
				p.InstallDescriptor(fd, ch)
			}
		}
	}

	v := t.sched.Spawn(sched.QoSDefault, 0, entry)
	p.AddVCPU(v)

	t.mu.Lock()
	t.procs[pid] = p
	t.mu.Unlock()

	if parent != nil {
		parent.mu.Lock()
		parent.children = append(parent.children, p)
		parent.mu.Unlock()
		p.parent = parent
	}

	t.publish(ProcessEvent{Type: EventSpawn, Pid: pid, Ppid: ppid, Comm: comm, Args: argv})

	if err := t.sched.Resume(v); err != nil {
		return nil, err
	}
	return p, nil
}

// Exec loads a new image into p's address space: adopts mappings from a
// freshly built space, resets the main vCPU's entry by spawning a
// replacement goroutine body, discards old exception handlers, and
// optionally resumes immediately.
func (t *ProcessTable) Exec(p *Process, comm string, argv []string, entry func(ctx context.Context, v *sched.VCPU), resumed bool) error {
	fresh := NewAddressSpace(4096)
	p.AddrSpace.UnmapAll()
	p.AddrSpace.AdoptFrom(fresh)
	p.DiscardExceptionHandlers()

	old := p.MainVCPU()
	if old == nil {
		return kerrors.EINVAL
	}
	if err := t.sched.Suspend(old); err != nil && err != kerrors.EINVAL {
		return err
	}

	v := t.sched.Spawn(old.QoS, old.Priority, entry)
	p.mu.Lock()
	p.mainCPU = v
	for i, o := range p.vcpus {
		if o == old {
			p.vcpus[i] = v
		}
	}
	p.mu.Unlock()

	t.publish(ProcessEvent{Type: EventExec, Pid: p.Creds.Pid, Ppid: p.Creds.Ppid, Comm: comm, Args: argv})

	if resumed {
		return t.sched.Resume(v)
	}
	return nil
}

// Exit turns p into a zombie holding (reason, code), tears down its
// vCPUs, and signals the parent. announcer is the vCPU making the exit
// call itself (nil if none, e.g. a fault with no attributable vCPU);
// it is left to return from its own call stack rather than cancelled,
// since a vCPU cannot destroy itself mid-execution. The zombie stays
// in the table until a Waitpid call reaps it.
func (t *ProcessTable) Exit(p *Process, announcer *sched.VCPU, reason ExitReason, code int32) {
	p.doExit(announcer, reason, code)
	t.publish(ProcessEvent{Type: EventExit, Pid: p.Creds.Pid, Ppid: p.Creds.Ppid})
}

func (p *Process) doExit(announcer *sched.VCPU, reason ExitReason, code int32) {
	p.mu.Lock()
	if p.exited {
		p.mu.Unlock()
		return
	}
	p.exited = true
	p.exitReason = reason
	p.exitCode = code
	vcpus := p.vcpus
	parent := p.parent
	p.mu.Unlock()

	for _, v := range vcpus {
		if v == announcer {
			continue
		}
		v.Cancel()
	}
	close(p.exitCh)
	if parent != nil {
		parent.ringChildWake()
	}
}

// Reparent moves every child of p onto kerneld, called when p itself
// exits while still owning unreaped zombies.
func (t *ProcessTable) Reparent(p *Process, kerneld *Process) {
	p.mu.Lock()
	children := p.children
	p.children = nil
	p.mu.Unlock()

	kerneld.mu.Lock()
	kerneld.children = append(kerneld.children, children...)
	kerneld.mu.Unlock()
	for _, c := range children {
		c.parent = kerneld
	}
}

// WaitScope selects which descendants Waitpid considers.
type WaitScope int

const (
	ScopeVCPU WaitScope = iota
	ScopeVCPUGroup
	ScopeProc
	ScopeGroup
	ScopeAll
)

// Waitpid reaps the first zombie child matching scope/target. With
// nohang set, it returns immediately (nil, nil) if no zombie is ready
// instead of blocking. Only ScopeProc actually filters by target;
// every other WaitScope value matches any child, a simplification
// since vCPU groups aren't modeled as a first-class grouping yet.
//
// With nohang unset, the caller's vCPU releases its scheduler token via
// Block() and rejoins once a child exit rings the doorbell or ctx is
// cancelled, so a single-active-vCPU scheduler isn't stalled by one
// process waiting on another.
func (t *ProcessTable) Waitpid(ctx context.Context, caller *sched.VCPU, parent *Process, target Pid, scope WaitScope, nohang bool) (*Process, error) {
	for {
		reaped, hasChildren := t.reapZombieLocked(parent, target, scope)
		if reaped != nil {
			return reaped, nil
		}
		if !hasChildren {
			return nil, kerrors.ECHILD
		}
		if nohang {
			return nil, nil
		}

		wake := parent.childWakeChan()
		caller.Block()
		select {
		case <-wake:
		case <-ctx.Done():
			caller.Rejoin()
			return nil, kerrors.EINTR
		}
		caller.Rejoin()
	}
}

// reapZombieLocked finds and removes the first zombie child matching
// scope/target, reporting whether parent has any children at all.
func (t *ProcessTable) reapZombieLocked(parent *Process, target Pid, scope WaitScope) (*Process, bool) {
	parent.mu.Lock()
	defer parent.mu.Unlock()
	for i, c := range parent.children {
		if scope == ScopeProc && c.Creds.Pid != target {
			continue
		}
		exited, _, _ := c.Exited()
		if exited {
			parent.children = append(parent.children[:i], parent.children[i+1:]...)
			t.mu.Lock()
			delete(t.procs, c.Creds.Pid)
			t.mu.Unlock()
			return c, true
		}
	}
	return nil, len(parent.children) > 0
}

// Lookup returns the process registered under pid, or nil.
func (t *ProcessTable) Lookup(pid Pid) *Process {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.procs[pid]
}

// Snapshot returns every live pid, for diagnostics/debugsvc.
func (t *ProcessTable) Snapshot() []Pid {
	t.mu.RLock()
	defer t.mu.RUnlock()
	pids := make([]Pid, 0, len(t.procs))
	for pid := range t.procs {
		pids = append(pids, pid)
	}
	return pids
}
