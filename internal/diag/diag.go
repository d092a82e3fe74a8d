// Package diag serves the kernel's operational surface: a liveness/
// readiness probe and a metrics page, the hand-rolled stand-in for
// what cmd/main.go wires up through controller-runtime's healthz and
// metrics/server packages. Those packages pull in a whole manager
// runtime (leader election, webhook serving, a Kubernetes client) this
// kernel has no use for, so this package reproduces only the two
// address-configurable net/http endpoints that teacher flag set
// exposes, directly against the standard library.
package diag

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sort"
	"sync"
	"time"

	"github.com/go-logr/logr"
)

// Checker reports whether the thing it watches is healthy; a non-nil
// error becomes that check's failure reason.
type Checker func() error

// Gauge reports one named metric's current value at scrape time.
type Gauge func() float64

// Server is the kernel's diagnostic HTTP surface: health checks under
// /healthz and /readyz, instantaneous metrics under /metrics.
type Server struct {
	addr   string
	logger logr.Logger

	mu       sync.RWMutex
	checks   map[string]Checker
	gauges   map[string]Gauge
	gaugeHdr map[string]string // optional HELP text per gauge name

	httpServer *http.Server
}

// New builds a Server bound to addr ("0" disables it, matching the
// teacher flag convention of treating the literal string "0" as "don't
// serve this endpoint").
func New(addr string, logger logr.Logger) *Server {
	return &Server{
		addr:     addr,
		logger:   logger.WithName("diag"),
		checks:   make(map[string]Checker),
		gauges:   make(map[string]Gauge),
		gaugeHdr: make(map[string]string),
	}
}

// Disabled reports whether addr was the sentinel "0".
func (s *Server) Disabled() bool { return s.addr == "0" }

// AddCheck registers a named health check; /healthz fails if any
// registered check returns an error.
func (s *Server) AddCheck(name string, c Checker) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.checks[name] = c
}

// AddGauge registers a named metric sampled fresh on every /metrics
// scrape. help is emitted as a Prometheus "# HELP" comment.
func (s *Server) AddGauge(name, help string, g Gauge) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.gauges[name] = g
	s.gaugeHdr[name] = help
}

type healthReport struct {
	Status string            `json:"status"`
	Checks map[string]string `json:"checks,omitempty"`
}

func (s *Server) runChecks() (bool, healthReport) {
	s.mu.RLock()
	names := make([]string, 0, len(s.checks))
	for name := range s.checks {
		names = append(names, name)
	}
	sort.Strings(names)

	report := healthReport{Status: "ok", Checks: make(map[string]string, len(names))}
	ok := true
	for _, name := range names {
		if err := s.checks[name](); err != nil {
			ok = false
			report.Checks[name] = err.Error()
		} else {
			report.Checks[name] = "ok"
		}
	}
	s.mu.RUnlock()

	if !ok {
		report.Status = "error"
	}
	return ok, report
}

func (s *Server) handleHealthz(w http.ResponseWriter, r *http.Request) {
	ok, report := s.runChecks()
	w.Header().Set("Content-Type", "application/json")
	if !ok {
		w.WriteHeader(http.StatusServiceUnavailable)
	}
	_ = json.NewEncoder(w).Encode(report)
}

func (s *Server) handleMetrics(w http.ResponseWriter, r *http.Request) {
	s.mu.RLock()
	names := make([]string, 0, len(s.gauges))
	for name := range s.gauges {
		names = append(names, name)
	}
	sort.Strings(names)

	w.Header().Set("Content-Type", "text/plain; version=0.0.4")
	for _, name := range names {
		if help := s.gaugeHdr[name]; help != "" {
			fmt.Fprintf(w, "# HELP %s %s\n", name, help)
		}
		fmt.Fprintf(w, "# TYPE %s gauge\n", name)
		fmt.Fprintf(w, "%s %v\n", name, s.gauges[name]())
	}
	s.mu.RUnlock()
}

// Start serves until ctx is canceled. A disabled Server (addr "0")
// returns immediately once ctx is done, serving nothing.
func (s *Server) Start(ctx context.Context) error {
	if s.Disabled() {
		<-ctx.Done()
		return nil
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", s.handleHealthz)
	mux.HandleFunc("/readyz", s.handleHealthz)
	mux.HandleFunc("/metrics", s.handleMetrics)

	s.httpServer = &http.Server{Addr: s.addr, Handler: mux}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("diag server listening", "addr", s.addr)
		errCh <- s.httpServer.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return s.httpServer.Shutdown(shutdownCtx)
	case err := <-errCh:
		if err == http.ErrServerClosed {
			return nil
		}
		return err
	}
}
