// Package health exposes liveness and metrics endpoints while the
// correction pass drains.
package health

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Progress reports how far the correction pass has come.
type Progress interface {
	Corrected() int64
	Dropped() int64
}

// Pinger checks a dependency, typically the database.
type Pinger interface {
	Health(ctx context.Context) error
}

// Server provides HTTP endpoints for health monitoring.
type Server struct {
	progress Progress
	pinger   Pinger
	server   *http.Server
}

// NewServer creates a new health server. pinger may be nil.
func NewServer(progress Progress, pinger Pinger, port int) *Server {
	mux := http.NewServeMux()
	s := &Server{
		progress: progress,
		pinger:   pinger,
		server: &http.Server{
			Addr:    fmt.Sprintf(":%d", port),
			Handler: mux,
		},
	}

	mux.HandleFunc("/health", s.handleHealth)
	mux.Handle("/metrics", promhttp.Handler())

	return s
}

// Start starts the HTTP server.
func (s *Server) Start() error {
	return s.server.ListenAndServe()
}

// Stop stops the HTTP server.
func (s *Server) Stop(ctx context.Context) error {
	return s.server.Shutdown(ctx)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	status := "ok"
	code := http.StatusOK
	if s.pinger != nil {
		if err := s.pinger.Health(r.Context()); err != nil {
			status = "degraded"
			code = http.StatusServiceUnavailable
		}
	}

	response := map[string]any{
		"status":          status,
		"corrected_rows":  s.progress.Corrected(),
		"dropped_batches": s.progress.Dropped(),
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(response)
}
