package debugsvc

import (
	"io"
	"sync"

	"github.com/go-logr/logr"
)

// Aggregator is the upstream side of Push: it receives the snapshot
// streams every kernel's Forwarder sends and keeps the latest one per
// source, the collector-side counterpart to Server.
type Aggregator struct {
	UnimplementedDebugServiceServer

	logger logr.Logger

	mu     sync.RWMutex
	latest map[string]*KernelSnapshot
	total  int64
}

func NewAggregator(logger logr.Logger) *Aggregator {
	return &Aggregator{
		logger: logger.WithName("debugsvc-aggregator"),
		latest: make(map[string]*KernelSnapshot),
	}
}

// Latest returns the most recent snapshot received from source, if any.
func (a *Aggregator) Latest(source string) (*KernelSnapshot, bool) {
	a.mu.RLock()
	defer a.mu.RUnlock()
	s, ok := a.latest[source]
	return s, ok
}

func (a *Aggregator) Push(stream DebugService_PushServer) error {
	var accepted int64
	for {
		snap, err := stream.Recv()
		if err == io.EOF {
			return stream.SendAndClose(&PushSummary{Accepted: accepted})
		}
		if err != nil {
			return err
		}

		a.mu.Lock()
		a.latest[snap.Source] = snap
		a.total++
		a.mu.Unlock()
		accepted++
	}
}
