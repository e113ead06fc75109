// Package debugsrv implements C12: a loopback-only HTTP surface
// exposing scan progress and Prometheus metrics, gated behind
// Config.ShowDebuggingMenu — the Go analogue of the source's hidden
// debug menu. Grounded on the teacher's cmd/cc-backend main.go
// wiring of gorilla/mux and gorilla/handlers' logging middleware
// (CustomLoggingHandler + pkg/log.Finfof), generalized to a much
// smaller read-only surface. The prometheus/client_golang exposition
// itself follows the library's own idiomatic usage (promhttp.Handler
// plus GaugeFunc) since nothing in the example corpus exercises that
// dependency directly — it is present only in the teacher's go.mod.
package debugsrv

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"time"

	"github.com/gorilla/handlers"
	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/diskviz/treemap/internal/scanner"
	"github.com/diskviz/treemap/pkg/log"
	"github.com/diskviz/treemap/pkg/lrucache"
)

var logger = log.For("debugsrv")

// ProgressProvider reports the active scan's progress snapshot, and
// whether a scan is currently active at all.
type ProgressProvider func() (snapshot scanner.Snapshot, active bool)

// Server owns the loopback HTTP listener and its Prometheus registry.
// The zero value is not usable; construct with New.
type Server struct {
	httpServer *http.Server
	registry   *prometheus.Registry
}

// New builds a Server bound to addr, which must name a loopback
// address (127.0.0.1 or localhost) — this surface is a developer aid,
// never a networked product feature (spec.md's Non-goals).
func New(addr string, progress ProgressProvider) (*Server, error) {
	if !isLoopback(addr) {
		return nil, fmt.Errorf("debugsrv: %q is not a loopback address", addr)
	}

	registry := prometheus.NewRegistry()
	registerProgressGauges(registry, progress)

	// A scan's progress only changes a few times a second at most;
	// caching each response for a short beat keeps a tight polling
	// loop (or Prometheus itself) from forcing a snapshot/registry
	// gather on every single request.
	cacheTTL := 200 * time.Millisecond
	r := mux.NewRouter()
	r.Handle("/debug/progress", lrucache.NewHttpHandler(1<<20, cacheTTL, progressHandler(progress))).Methods(http.MethodGet)
	r.Handle("/debug/metrics", lrucache.NewHttpHandler(1<<20, cacheTTL, promhttp.HandlerFor(registry, promhttp.HandlerOpts{}))).Methods(http.MethodGet)

	logged := handlers.CustomLoggingHandler(log.Output(), r, func(w io.Writer, params handlers.LogFormatterParams) {
		log.Finfof(w, "%s %s (%d)", params.Request.Method, params.URL.RequestURI(), params.StatusCode)
	})

	return &Server{
		httpServer: &http.Server{Addr: addr, Handler: logged},
		registry:   registry,
	}, nil
}

func isLoopback(addr string) bool {
	host, _, err := net.SplitHostPort(addr)
	if err != nil {
		host = addr
	}
	if host == "localhost" {
		return true
	}
	ip := net.ParseIP(host)
	return ip != nil && ip.IsLoopback()
}

func registerProgressGauges(registry *prometheus.Registry, progress ProgressProvider) {
	registry.MustRegister(prometheus.NewGaugeFunc(prometheus.GaugeOpts{
		Name: "treemap_files_scanned",
		Help: "Files counted by the most recent or active scan.",
	}, func() float64 {
		snap, _ := progress()
		return float64(snap.FilesScanned)
	}))
	registry.MustRegister(prometheus.NewGaugeFunc(prometheus.GaugeOpts{
		Name: "treemap_directories_scanned",
		Help: "Directories counted by the most recent or active scan.",
	}, func() float64 {
		snap, _ := progress()
		return float64(snap.DirectoriesScanned)
	}))
	registry.MustRegister(prometheus.NewGaugeFunc(prometheus.GaugeOpts{
		Name: "treemap_bytes_processed",
		Help: "Bytes counted by the most recent or active scan.",
	}, func() float64 {
		snap, _ := progress()
		return float64(snap.BytesProcessed)
	}))
	registry.MustRegister(prometheus.NewGaugeFunc(prometheus.GaugeOpts{
		Name: "treemap_scan_active",
		Help: "1 if a scan is currently in progress, 0 otherwise.",
	}, func() float64 {
		_, active := progress()
		if active {
			return 1
		}
		return 0
	}))
}

func progressHandler(progress ProgressProvider) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		snap, active := progress()
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(struct {
			Active bool   `json:"active"`
			scanner.Snapshot
		}{Active: active, Snapshot: snap})
	}
}

// Start binds the listener and serves in the background. It returns
// once the socket is bound, not once the server stops.
func (s *Server) Start() error {
	ln, err := net.Listen("tcp", s.httpServer.Addr)
	if err != nil {
		return fmt.Errorf("debugsrv: listening on %s: %w", s.httpServer.Addr, err)
	}
	go func() {
		if err := s.httpServer.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Warnf("serve: %s", err)
		}
	}()
	return nil
}

// Shutdown gracefully stops the server.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}
