// Command serenad boots the Serena kernel core: scheduler, process
// table, driver catalog, and mounted filesystem hierarchy, then serves
// the diagnostic HTTP surface until signaled to stop. Flag parsing,
// zap-backed logging, and signal handling follow cmd/main.go's shape.
package main

import (
	"context"
	"flag"
	"fmt"
	"net"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-logr/logr"
	"github.com/go-logr/zapr"
	"go.uber.org/zap"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"

	"github.com/serena-os/kernel/internal/debugsvc"
	"github.com/serena-os/kernel/internal/diag"
	"github.com/serena-os/kernel/internal/kernel/clock"
	"github.com/serena-os/kernel/internal/kernel/driver"
	"github.com/serena-os/kernel/internal/kernel/driver/disk"
	"github.com/serena-os/kernel/internal/kernel/driver/hid"
	"github.com/serena-os/kernel/internal/kernel/driver/rtc"
	"github.com/serena-os/kernel/internal/kernel/driver/zorro"
	"github.com/serena-os/kernel/internal/kernel/hal"
	"github.com/serena-os/kernel/internal/kernel/ioc"
	"github.com/serena-os/kernel/internal/kernel/process"
	"github.com/serena-os/kernel/internal/kernel/sched"
	"github.com/serena-os/kernel/internal/kernel/vfs"
	"github.com/serena-os/kernel/internal/kernel/vfs/cache"
	"github.com/serena-os/kernel/internal/kernel/vfs/devfs"
	"github.com/serena-os/kernel/internal/kernel/vfs/kernfs"
	"github.com/serena-os/kernel/internal/kernel/vfs/sefs"
)

var (
	rootImagePath string
	rootBlocks    uint
	blockSize     uint
	blockCacheCap uint
	tickRate      time.Duration

	diagAddr    string
	debugAddr   string
	zorroSlots  int
	developMode bool

	forwardAddr   string
	forwardSource string
)

func init() {
	flag.StringVar(&rootImagePath, "root-image", "", "path to a SerenaFS root image; empty boots an in-memory root")
	flag.UintVar(&rootBlocks, "root-blocks", 4096, "block count for a freshly formatted in-memory root image")
	flag.UintVar(&blockSize, "root-block-size", 512, "block size in bytes for a freshly formatted in-memory root image")
	flag.UintVar(&blockCacheCap, "block-cache-blocks", 256, "number of blocks the root volume's disk cache holds before evicting")
	flag.DurationVar(&tickRate, "tick-rate", time.Millisecond, "scheduler tick interval")
	flag.StringVar(&diagAddr, "diag-bind-address", ":8081", "address the /healthz and /metrics endpoints bind to; \"0\" disables them")
	flag.StringVar(&debugAddr, "debug-bind-address", "0", "address the debugsvc gRPC introspection service binds to; \"0\" disables it")
	flag.IntVar(&zorroSlots, "zorro-slots", 5, "number of Zorro expansion-bus slots to scan at boot")
	flag.BoolVar(&developMode, "develop", false, "use a human-readable development logger instead of structured JSON")
	flag.StringVar(&forwardAddr, "forward-upstream-address", "", "address of an upstream debugsvc collector to push snapshots to; empty disables forwarding")
	flag.StringVar(&forwardSource, "forward-source", "", "source name this instance identifies itself as when forwarding; defaults to the hostname")
}

func newLogger() logr.Logger {
	var zc zap.Config
	if developMode {
		zc = zap.NewDevelopmentConfig()
	} else {
		zc = zap.NewProductionConfig()
	}
	zl, err := zc.Build()
	if err != nil {
		panic(fmt.Sprintf("serenad: building logger: %v", err))
	}
	return zapr.NewLogger(zl)
}

func rootContainer(logger logr.Logger) (sefs.FSContainer, error) {
	if rootImagePath == "" {
		c := sefs.NewMemContainer(uint32(rootBlocks), uint32(blockSize))
		if err := sefs.Format(c, "serena-root", 0, 0, 0o755); err != nil {
			return nil, fmt.Errorf("format in-memory root: %w", err)
		}
		return c, nil
	}
	c, err := sefs.OpenHostFileContainer(rootImagePath, uint32(rootBlocks), uint32(blockSize))
	if err != nil {
		return nil, fmt.Errorf("open root image %q: %w", rootImagePath, err)
	}
	return c, nil
}

// noBoardsProbe stands in for a real Zorro autoconfig bus read; this
// hosted kernel has no expansion bus to read ROM headers from, so
// every slot reports empty rather than fabricating hardware.
func noBoardsProbe(slot int) (zorro.BoardIdentifier, bool, error) {
	return zorro.BoardIdentifier{}, false, nil
}

// runKerneld is pid 1's main vCPU body: the one process every syscall
// in this kernel ultimately traps through runs its own boot self-check
// across the real syscall table (open the mount-table directory, stat
// it, close it) and then blocks until ctx ends. It does not reap
// children: zombies stay in the process table until a Waitpid call
// collects them.
func runKerneld(ctx context.Context, logger logr.Logger, syscalls *ioc.Syscalls, procs *process.ProcessTable, v *sched.VCPU) {
	if p := procs.Lookup(process.KerneldPid); p != nil {
		fd := syscalls.Dispatch(ctx, v, p, ioc.SCOpen, ioc.Args{Path: "/fs", Mode: ioc.ORead})
		if fd < 0 {
			logger.Error(fmt.Errorf("errno %d", fd), "kerneld boot self-check: open /fs failed")
		} else {
			size := syscalls.Dispatch(ctx, v, p, ioc.SCStat, ioc.Args{Fd: process.Descriptor(fd)})
			syscalls.Dispatch(ctx, v, p, ioc.SCClose, ioc.Args{Fd: process.Descriptor(fd)})
			logger.Info("kerneld boot self-check: /fs mount table", "size", size)
		}
	}
	<-ctx.Done()
}

func run(ctx context.Context, logger logr.Logger) error {
	clk := clock.New(tickRate)
	ticks := hal.NewSystemTickSource(tickRate)
	defer ticks.Stop()
	scheduler := sched.New(clk, ticks)
	go scheduler.Run()
	defer scheduler.Stop()

	procs := process.NewProcessTable(scheduler)

	catalog := driver.NewCatalog(logger)
	rootC, err := rootContainer(logger)
	if err != nil {
		return err
	}
	if err := catalog.Register(rtc.New(logger)); err != nil {
		return err
	}
	if err := catalog.Register(disk.New("disk0", rootC, logger)); err != nil {
		return err
	}
	if err := catalog.Register(zorro.New(zorroSlots, noBoardsProbe, logger)); err != nil {
		return err
	}
	if err := catalog.Register(hid.New("hid0", logger)); err != nil {
		return err
	}
	if err := catalog.StartAll(ctx); err != nil {
		return fmt.Errorf("starting drivers: %w", err)
	}
	defer catalog.StopAll(context.Background())

	blockCache := cache.New(int(blockCacheCap))
	if rootImagePath != "" {
		journal, err := vfs.OpenFile(rootImagePath + ".journal")
		if err != nil {
			return fmt.Errorf("open block journal: %w", err)
		}
		defer journal.Close()
		blockCache.AttachJournal(1, journal)
	}
	cachedRoot := cache.NewCachedContainer(blockCache, 1, rootC)

	rootFS, err := sefs.Mount(1, cachedRoot, false)
	if err != nil {
		return fmt.Errorf("mount root: %w", err)
	}
	defer func() {
		if err := blockCache.Sync(1); err != nil {
			logger.Error(err, "syncing root volume block cache on shutdown")
		}
	}()
	hierarchy := vfs.NewFileHierarchy()
	if err := hierarchy.Mount("/", rootFS); err != nil {
		return fmt.Errorf("mount /: %w", err)
	}
	devFS, err := devfs.Mount(2, catalog)
	if err != nil {
		return fmt.Errorf("mount /dev: %w", err)
	}
	if err := hierarchy.Mount("/dev", devFS); err != nil {
		return fmt.Errorf("mount /dev: %w", err)
	}
	kernFS, err := kernfs.Mount(3, hierarchy)
	if err != nil {
		return fmt.Errorf("mount /fs: %w", err)
	}
	if err := hierarchy.Mount("/fs", kernFS); err != nil {
		return fmt.Errorf("mount /fs: %w", err)
	}

	syscalls := ioc.NewSyscalls(hierarchy, procs)

	if _, err := procs.Spawn(nil, "kerneld", nil, process.SpawnOpts{}, func(ctx context.Context, v *sched.VCPU) {
		runKerneld(ctx, logger, syscalls, procs, v)
	}); err != nil {
		return fmt.Errorf("spawn kerneld: %w", err)
	}

	collector := debugsvc.NewCollector(procs, catalog)

	if forwardAddr != "" {
		conn, err := grpc.NewClient(forwardAddr, grpc.WithTransportCredentials(insecure.NewCredentials()))
		if err != nil {
			return fmt.Errorf("dialing forward upstream %q: %w", forwardAddr, err)
		}
		defer conn.Close()

		source := forwardSource
		if source == "" {
			if hostname, err := os.Hostname(); err == nil {
				source = hostname
			} else {
				source = "serenad"
			}
		}
		forwarder := debugsvc.NewForwarder(collector, debugsvc.NewDebugServiceClient(conn), source, debugsvc.WithLogger(logger))
		go func() {
			if err := forwarder.Start(ctx, procs.Events()); err != nil {
				logger.Error(err, "debugsvc forwarder stopped")
			}
		}()
	}

	diagServer := diag.New(diagAddr, logger)
	diagServer.AddCheck("scheduler", func() error { return nil })
	diagServer.AddGauge("serena_process_count", "number of live processes", func() float64 {
		return float64(len(procs.Snapshot()))
	})
	diagServer.AddGauge("serena_driver_count", "number of registered drivers", func() float64 {
		return float64(len(catalog.All()))
	})

	var grpcServer *grpc.Server
	if debugAddr != "0" {
		lis, err := net.Listen("tcp", debugAddr)
		if err != nil {
			return fmt.Errorf("listening on %q: %w", debugAddr, err)
		}
		grpcServer = grpc.NewServer()
		debugsvc.RegisterDebugServiceServer(grpcServer, debugsvc.NewServer(collector, logger))
		go func() {
			logger.Info("debugsvc listening", "addr", debugAddr)
			if err := grpcServer.Serve(lis); err != nil {
				logger.Error(err, "debugsvc server stopped")
			}
		}()
	}

	go func() {
		if err := diagServer.Start(ctx); err != nil {
			logger.Error(err, "diag server stopped")
		}
	}()

	logger.Info("serenad booted", "pid", process.KerneldPid)
	<-ctx.Done()
	logger.Info("serenad shutting down")
	if grpcServer != nil {
		grpcServer.GracefulStop()
	}
	return nil
}

func main() {
	flag.Parse()
	logger := newLogger()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, logger); err != nil {
		logger.Error(err, "serenad exited with error")
		os.Exit(1)
	}
}
