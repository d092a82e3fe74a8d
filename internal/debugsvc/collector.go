package debugsvc

import (
	"time"

	"github.com/serena-os/kernel/internal/kernel/driver"
	"github.com/serena-os/kernel/internal/kernel/process"
)

// Collector reads the two catalogs the debug service and Forwarder both
// snapshot: the process tree and the driver registry. Holding only
// references (not copies) keeps Collector cheap to construct and safe
// to call repeatedly from a streaming RPC handler.
type Collector struct {
	Processes *process.ProcessTable
	Drivers   *driver.Catalog
}

func NewCollector(procs *process.ProcessTable, drivers *driver.Catalog) *Collector {
	return &Collector{Processes: procs, Drivers: drivers}
}

// Snapshot renders the current process table and driver catalog into
// one KernelSnapshot. A pid that exits between Snapshot listing it and
// Lookup resolving it is simply omitted, the same race every /proc
// reader lives with.
func (c *Collector) Snapshot() *KernelSnapshot {
	var procs []ProcessInfo
	if c.Processes != nil {
		for _, pid := range c.Processes.Snapshot() {
			p := c.Processes.Lookup(pid)
			if p == nil {
				continue
			}
			procs = append(procs, ProcessInfoFrom(p))
		}
	}

	var drivers []DriverInfo
	if c.Drivers != nil {
		for _, d := range c.Drivers.All() {
			drivers = append(drivers, DriverInfoFrom(d))
		}
	}

	return newSnapshot(time.Now(), procs, drivers)
}
