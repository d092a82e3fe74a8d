package debugsvc

import (
	"time"

	"google.golang.org/protobuf/types/known/timestamppb"

	"github.com/serena-os/kernel/internal/kernel/driver"
	"github.com/serena-os/kernel/internal/kernel/process"
)

// ProcessInfo is a point-in-time view of one process, the debug-wire
// shape of process.Process/process.Credentials.
type ProcessInfo struct {
	Pid        uint32 `json:"pid"`
	Ppid       uint32 `json:"ppid"`
	Cwd        string `json:"cwd"`
	Exited     bool   `json:"exited"`
	ExitReason int    `json:"exit_reason,omitempty"`
	ExitCode   int32  `json:"exit_code,omitempty"`
}

// DriverInfo is a point-in-time view of one registered driver.
type DriverInfo struct {
	Name  string `json:"name"`
	Class string `json:"class"`
	State string `json:"state"`
}

// KernelSnapshot is the unit the debug service and Forwarder both deal
// in: everything introspectable about a running kernel at one instant.
// Timestamp uses the well-known protobuf timestamp type directly (no
// generated message wraps it, but the type itself ships in the
// protobuf module and needs no codegen) so a downstream collector that
// does speak real protobuf can decode it without ambiguity.
type KernelSnapshot struct {
	Source    string                 `json:"source,omitempty"`
	Timestamp *timestamppb.Timestamp `json:"timestamp"`
	Processes []ProcessInfo          `json:"processes"`
	Drivers   []DriverInfo           `json:"drivers"`
}

// ProcessInfoFrom converts a live process.Process into its wire shape.
func ProcessInfoFrom(p *process.Process) ProcessInfo {
	exited, reason, code := p.Exited()
	return ProcessInfo{
		Pid:        uint32(p.Creds.Pid),
		Ppid:       uint32(p.Creds.Ppid),
		Cwd:        p.Cwd,
		Exited:     exited,
		ExitReason: int(reason),
		ExitCode:   code,
	}
}

// DriverInfoFrom converts a live driver.Driver into its wire shape.
func DriverInfoFrom(d driver.Driver) DriverInfo {
	return DriverInfo{
		Name:  d.Name(),
		Class: d.Class(),
		State: d.State().String(),
	}
}

func newSnapshot(at time.Time, procs []ProcessInfo, drivers []DriverInfo) *KernelSnapshot {
	return &KernelSnapshot{
		Timestamp: timestamppb.New(at),
		Processes: procs,
		Drivers:   drivers,
	}
}
