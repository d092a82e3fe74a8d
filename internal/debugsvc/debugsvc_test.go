package debugsvc

import (
	"context"
	"io"
	"testing"
	"time"

	"github.com/go-logr/logr"
	"github.com/stretchr/testify/require"
	"google.golang.org/grpc/metadata"

	"github.com/serena-os/kernel/internal/kernel/clock"
	"github.com/serena-os/kernel/internal/kernel/driver"
	"github.com/serena-os/kernel/internal/kernel/driver/rtc"
	"github.com/serena-os/kernel/internal/kernel/hal"
	"github.com/serena-os/kernel/internal/kernel/process"
	"github.com/serena-os/kernel/internal/kernel/sched"
)

func newCollector(t *testing.T) *Collector {
	t.Helper()
	ts := hal.NewManualTickSource(time.Millisecond)
	clk := clock.New(time.Millisecond)
	s := sched.New(clk, ts)
	procs := process.NewProcessTable(s)
	_, err := procs.Spawn(nil, "init", nil, process.SpawnOpts{}, func(context.Context, *sched.VCPU) {})
	require.NoError(t, err)

	catalog := driver.NewCatalog(logr.Discard())
	require.NoError(t, catalog.Register(rtc.New(logr.Discard())))
	require.NoError(t, catalog.StartAll(context.Background()))

	return NewCollector(procs, catalog)
}

func TestCollectorSnapshotListsProcessesAndDrivers(t *testing.T) {
	c := newCollector(t)
	snap := c.Snapshot()

	require.Len(t, snap.Processes, 1)
	require.Equal(t, uint32(process.KerneldPid), snap.Processes[0].Pid)

	require.Len(t, snap.Drivers, 1)
	require.Equal(t, "rtc0", snap.Drivers[0].Name)
	require.Equal(t, "rtc", snap.Drivers[0].Class)
	require.Equal(t, "running", snap.Drivers[0].State)
}

func TestJSONCodecRoundTripsKernelSnapshot(t *testing.T) {
	c := jsonCodec{}
	snap := newSnapshot(time.Unix(1000, 0), []ProcessInfo{{Pid: 1}}, []DriverInfo{{Name: "rtc"}})

	data, err := c.Marshal(snap)
	require.NoError(t, err)

	var decoded KernelSnapshot
	require.NoError(t, c.Unmarshal(data, &decoded))
	require.Equal(t, snap.Timestamp.AsTime(), decoded.Timestamp.AsTime())
	require.Equal(t, snap.Processes, decoded.Processes)
}

// fakeServerSideOfPush lets the Aggregator's Push handler be driven
// directly, without a real grpc.ServerStream: Recv replays a fixed
// sequence of snapshots, SendAndClose records the final summary.
type fakeServerSideOfPush struct {
	snapshots []*KernelSnapshot
	idx       int
	summary   *PushSummary
}

func (f *fakeServerSideOfPush) Recv() (*KernelSnapshot, error) {
	if f.idx >= len(f.snapshots) {
		return nil, io.EOF
	}
	s := f.snapshots[f.idx]
	f.idx++
	return s, nil
}

func (f *fakeServerSideOfPush) SendAndClose(s *PushSummary) error {
	f.summary = s
	return nil
}

func (f *fakeServerSideOfPush) SetHeader(metadata.MD) error { return nil }
func (f *fakeServerSideOfPush) SendHeader(metadata.MD) error { return nil }
func (f *fakeServerSideOfPush) SetTrailer(metadata.MD)       {}
func (f *fakeServerSideOfPush) Context() context.Context     { return context.Background() }
func (f *fakeServerSideOfPush) SendMsg(m any) error           { return nil }
func (f *fakeServerSideOfPush) RecvMsg(m any) error           { return nil }

func TestAggregatorPushKeepsLatestPerSource(t *testing.T) {
	a := NewAggregator(logr.Discard())

	first := newSnapshot(time.Unix(1, 0), nil, nil)
	first.Source = "node-a"
	second := newSnapshot(time.Unix(2, 0), nil, nil)
	second.Source = "node-a"

	stream := &fakeServerSideOfPush{snapshots: []*KernelSnapshot{first, second}}

	err := a.Push(stream)
	require.NoError(t, err)
	require.Equal(t, int64(2), stream.summary.Accepted)

	latest, ok := a.Latest("node-a")
	require.True(t, ok)
	require.Equal(t, second.Timestamp.AsTime(), latest.Timestamp.AsTime())
}
