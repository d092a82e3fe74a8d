package diag

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-logr/logr"
	"github.com/stretchr/testify/require"
)

// exerciseMux builds the same mux Start installs, without binding a
// real listener, so handlers can be driven with httptest directly.
func exerciseMux(s *Server) http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", s.handleHealthz)
	mux.HandleFunc("/metrics", s.handleMetrics)
	return mux
}

func TestHealthzReportsOkWithNoChecks(t *testing.T) {
	s := New(":0", logr.Discard())
	rec := httptest.NewRecorder()
	exerciseMux(s).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	require.Equal(t, http.StatusOK, rec.Code)
}

func TestHealthzFailsWhenACheckFails(t *testing.T) {
	s := New(":0", logr.Discard())
	s.AddCheck("scheduler", func() error { return nil })
	s.AddCheck("disk0", func() error { return errors.New("not running") })

	rec := httptest.NewRecorder()
	exerciseMux(s).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	require.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestMetricsRendersRegisteredGauges(t *testing.T) {
	s := New(":0", logr.Discard())
	s.AddGauge("serena_process_count", "number of live processes", func() float64 { return 3 })

	rec := httptest.NewRecorder()
	exerciseMux(s).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	require.Contains(t, rec.Body.String(), "serena_process_count 3")
	require.Contains(t, rec.Body.String(), "# HELP serena_process_count")
}

func TestDisabledServerReturnsWhenContextCanceled(t *testing.T) {
	s := New("0", logr.Discard())
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	require.NoError(t, s.Start(ctx))
}
