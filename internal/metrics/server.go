package metrics

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"github.com/good-yellow-bee/pawwatch/internal/logger"
)

// Server exposes /metrics on its own listener, separate from the API.
type Server struct {
	server *http.Server
	log    zerolog.Logger
}

// NewServer creates a metrics server for the default registry.
func NewServer(addr string) *Server {
	return &Server{
		log: logger.WithComponent("metrics"),
		server: &http.Server{
			Addr:              addr,
			Handler:           Handler(prometheus.DefaultGatherer),
			ReadHeaderTimeout: 5 * time.Second,
			WriteTimeout:      10 * time.Second,
			IdleTimeout:       60 * time.Second,
		},
	}
}

// Handler serves g under /metrics and 404s everything else.
func Handler(g prometheus.Gatherer) http.Handler {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(g, promhttp.HandlerOpts{EnableOpenMetrics: true}))
	return mux
}

// Start listens and serves until Shutdown.
func (s *Server) Start() error {
	ln, err := net.Listen("tcp", s.server.Addr)
	if err != nil {
		return fmt.Errorf("metrics listen: %w", err)
	}
	s.log.Info().Str("addr", ln.Addr().String()).Msg("metrics server listening")
	if err := s.server.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("metrics server: %w", err)
	}
	return nil
}

// Shutdown stops the server, waiting for in-flight scrapes.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.server.Shutdown(ctx)
}
