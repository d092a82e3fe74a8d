package debugsvc

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/go-logr/logr"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"k8s.io/client-go/util/workqueue"

	"github.com/serena-os/kernel/internal/kernel/process"
)

const (
	forwarderName          = "debugsvc-forwarder"
	defaultHeartbeatPeriod = time.Minute
	defaultMaxBatchSize    = 32
	defaultFlushPeriod     = time.Second
)

type snapshotBatch struct {
	snapshots []*KernelSnapshot
	id        uint64
}

var batchCounter uint64

func newSnapshotBatch(snaps []*KernelSnapshot) *snapshotBatch {
	return &snapshotBatch{snapshots: snaps, id: atomic.AddUint64(&batchCounter, 1)}
}

// Forwarder batches KernelSnapshots and ships them upstream through
// DebugServiceClient.Push, re-establishing the stream with exponential
// backoff on failure: the same batch/queue/backoff/reconnect shape
// intake's worker uses for resource deltas, generalized from a
// resource.Store subscription to a process.ProcessTable event feed.
type Forwarder struct {
	client    DebugServiceClient
	collector *Collector
	source    string
	logger    logr.Logger

	queue workqueue.TypedRateLimitingInterface[*snapshotBatch]
	batch *snapshotBatch
	mu    sync.Mutex

	maxBatchSize int
	flushPeriod  time.Duration

	stream DebugService_PushClient
}

type ForwarderOpts func(*Forwarder)

func WithMaxBatchSize(n int) ForwarderOpts {
	return func(f *Forwarder) { f.maxBatchSize = n }
}

func WithFlushPeriod(d time.Duration) ForwarderOpts {
	return func(f *Forwarder) { f.flushPeriod = d }
}

func WithLogger(logger logr.Logger) ForwarderOpts {
	return func(f *Forwarder) { f.logger = logger }
}

// NewForwarder builds a Forwarder that snapshots collector and ships
// the result to client under the given source name (the identity a
// downstream Aggregator keys its latest-snapshot table on).
func NewForwarder(collector *Collector, client DebugServiceClient, source string, opts ...ForwarderOpts) *Forwarder {
	ratelimiter := workqueue.DefaultTypedControllerRateLimiter[*snapshotBatch]()
	queue := workqueue.NewTypedRateLimitingQueueWithConfig(ratelimiter,
		workqueue.TypedRateLimitingQueueConfig[*snapshotBatch]{Name: forwarderName},
	)

	f := &Forwarder{
		client:       client,
		collector:    collector,
		source:       source,
		logger:       logr.Discard(),
		queue:        queue,
		batch:        newSnapshotBatch(nil),
		maxBatchSize: defaultMaxBatchSize,
		flushPeriod:  defaultFlushPeriod,
	}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

func (f *Forwarder) enqueue(snap *KernelSnapshot) {
	snap.Source = f.source

	f.mu.Lock()
	f.batch.snapshots = append(f.batch.snapshots, snap)
	shouldFlush := len(f.batch.snapshots) >= f.maxBatchSize
	f.mu.Unlock()

	if shouldFlush {
		f.flushBatch()
	}
}

func (f *Forwarder) flushBatch() {
	f.mu.Lock()
	defer f.mu.Unlock()

	if len(f.batch.snapshots) == 0 {
		return
	}
	f.queue.AddRateLimited(f.batch)
	f.batch = newSnapshotBatch(nil)
}

// Start forwards every ProcessEvent on events as a fresh snapshot,
// plus a periodic heartbeat snapshot, until events closes. It blocks
// until shutdown completes, draining whatever is still queued.
func (f *Forwarder) Start(ctx context.Context, events <-chan process.ProcessEvent) error {
	var wg sync.WaitGroup

	wg.Add(1)
	go func() {
		defer wg.Done()
		f.streamer(ctx)
	}()

	wg.Add(1)
	go func() {
		defer wg.Done()
		f.heartbeatWorker(ctx)
	}()

	wg.Add(1)
	go func() {
		defer wg.Done()
		f.batchFlusher(ctx)
	}()

	for range events {
		f.enqueue(f.collector.Snapshot())
	}

	f.logger.Info("shutting down debugsvc forwarder")
	f.flushBatch()
	f.queue.ShutDownWithDrain()
	wg.Wait()
	return nil
}

func (f *Forwarder) batchFlusher(ctx context.Context) {
	ticker := time.NewTicker(f.flushPeriod)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			f.flushBatch()
		}
	}
}

func (f *Forwarder) heartbeatWorker(ctx context.Context) {
	ticker := time.NewTicker(defaultHeartbeatPeriod)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			f.queue.AddRateLimited(newSnapshotBatch([]*KernelSnapshot{f.collector.Snapshot()}))
		}
	}
}

func (f *Forwarder) streamer(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			if f.stream != nil {
				if _, err := f.stream.CloseAndRecv(); err != nil {
					f.logger.Error(err, "error closing debugsvc push stream")
				}
			}
			return
		default:
			f.sendBatch(ctx)
		}
	}
}

func (f *Forwarder) sendBatch(ctx context.Context) {
	batch, shutdown := f.queue.Get()
	if shutdown {
		return
	}
	defer f.queue.Done(batch)

	if f.stream == nil {
		for {
			_, err := backoff.Retry(ctx, func() (bool, error) {
				stream, err := f.client.Push(context.Background())
				if err != nil {
					f.logger.Error(err, "failed to open debugsvc push stream, retrying...")
					return false, err
				}
				f.stream = stream
				return true, nil
			}, backoff.WithBackOff(backoff.NewExponentialBackOff()))
			if err == nil {
				break
			}
			if ctx.Err() != nil {
				return
			}
		}
	}

	for _, snap := range batch.snapshots {
		if err := f.stream.Send(snap); err != nil {
			f.resetStream(batch, err)
			return
		}
	}
	f.queue.Forget(batch)
}

func (f *Forwarder) resetStream(batch *snapshotBatch, sendErr error) {
	_, err := f.stream.CloseAndRecv()
	f.stream = nil
	if err != nil {
		code := status.Code(err)
		if code == codes.Unavailable || code == codes.Canceled {
			f.logger.V(1).Info("resetting debugsvc push stream")
		} else {
			f.logger.Error(err, "failed to send debugsvc batch", "sendErr", fmt.Sprint(sendErr))
		}
	}
	if !f.queue.ShuttingDown() {
		f.queue.AddRateLimited(batch)
	}
}
