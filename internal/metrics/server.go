// Package metrics serves Prometheus metrics and engine health over HTTP
package metrics

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
)

// Health is the payload served at /health
type Health struct {
	Status     string `json:"status"`
	Running    bool   `json:"running"`
	Cycle      uint64 `json:"cycle"`
	KillSwitch bool   `json:"kill_switch"`
}

// StatusFunc supplies the live engine state for the health endpoint
type StatusFunc func() Health

// Server exposes /metrics and /health
type Server struct {
	port   int
	status StatusFunc
	server *http.Server
	log    zerolog.Logger
}

// NewServer creates a metrics server. status may be nil; /health then reports
// a bare ok.
func NewServer(port int, status StatusFunc, log zerolog.Logger) *Server {
	return &Server{
		port:   port,
		status: status,
		log:    log.With().Str("component", "metrics_server").Logger(),
	}
}

// Start begins serving in a background goroutine
func (s *Server) Start() error {
	s.server = &http.Server{
		Addr:         fmt.Sprintf(":%d", s.port),
		Handler:      s.routes(),
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 10 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	s.log.Info().Int("port", s.port).Msg("Starting metrics server")

	go func() {
		if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			s.log.Error().Err(err).Msg("Metrics server error")
		}
	}()

	return nil
}

func (s *Server) routes() *http.ServeMux {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	mux.HandleFunc("/health", s.handleHealth)
	return mux
}

// handleHealth reports the engine state. A tripped kill switch degrades the
// status to "halted" while still answering 200; the process itself is fine.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	h := Health{Status: "ok"}
	if s.status != nil {
		h = s.status()
		h.Status = "ok"
		if h.KillSwitch {
			h.Status = "halted"
		}
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	if err := json.NewEncoder(w).Encode(h); err != nil {
		s.log.Error().Err(err).Msg("Health encode failed")
	}
}

// Shutdown stops the server gracefully
func (s *Server) Shutdown(ctx context.Context) error {
	if s.server == nil {
		return nil
	}

	if err := s.server.Shutdown(ctx); err != nil {
		return fmt.Errorf("shutdown metrics server: %w", err)
	}
	s.log.Info().Msg("Metrics server shutdown complete")
	return nil
}
