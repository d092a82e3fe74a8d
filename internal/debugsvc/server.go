package debugsvc

import (
	"context"
	"time"

	"github.com/go-logr/logr"
)

const defaultWatchInterval = time.Second

// Server answers DebugServiceServer RPCs from a Collector over
// whatever kernel instance owns it.
type Server struct {
	UnimplementedDebugServiceServer

	collector *Collector
	logger    logr.Logger
}

func NewServer(collector *Collector, logger logr.Logger) *Server {
	return &Server{collector: collector, logger: logger.WithName("debugsvc")}
}

func (s *Server) Snapshot(ctx context.Context, _ *SnapshotRequest) (*KernelSnapshot, error) {
	return s.collector.Snapshot(), nil
}

// Watch pushes a KernelSnapshot every req.IntervalMillis (default 1s)
// until the stream's context is canceled.
func (s *Server) Watch(req *WatchRequest, stream DebugService_WatchServer) error {
	interval := defaultWatchInterval
	if req.IntervalMillis > 0 {
		interval = time.Duration(req.IntervalMillis) * time.Millisecond
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	ctx := stream.Context()
	for {
		if err := stream.Send(s.collector.Snapshot()); err != nil {
			return err
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}
