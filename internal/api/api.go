// Package api provides the HTTP API over the alert engine and batch sweeper.
package api

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/good-yellow-bee/pawwatch/internal/alerting"
	"github.com/good-yellow-bee/pawwatch/internal/api/health"
	"github.com/good-yellow-bee/pawwatch/internal/batch"
	"github.com/good-yellow-bee/pawwatch/internal/detector"
	"github.com/good-yellow-bee/pawwatch/internal/logger"
	"github.com/good-yellow-bee/pawwatch/internal/models"
)

// Config contains HTTP API server configuration.
type Config struct {
	Address string
	// Token, when set, is required as a Bearer token on /api/v1 routes.
	Token string
	// RateLimitPerIP caps requests per second per client on /api/v1 routes.
	// Zero disables the limit.
	RateLimitPerIP float64
	// RequestTimeout bounds detection and evaluation requests.
	RequestTimeout time.Duration
	// SweepTimeout bounds an on-demand sweep.
	SweepTimeout time.Duration
	// TLS, when set, serves HTTPS.
	TLS     *tls.Config
	Verbose bool
}

// SetDefaults applies default values for missing configuration.
func (c *Config) SetDefaults() {
	if c.Address == "" {
		c.Address = ":8080"
	}
	if c.RequestTimeout == 0 {
		c.RequestTimeout = 30 * time.Second
	}
	if c.SweepTimeout == 0 {
		c.SweepTimeout = 10 * time.Minute
	}
}

// Engine is the part of the alert engine the API exposes.
type Engine interface {
	Findings(ctx context.Context, petID string) ([]detector.Finding, error)
	EvaluateSubject(ctx context.Context, subject models.Subject) ([]*alerting.TriggerResult, error)
}

// PetLookup resolves a pet to its owner.
type PetLookup interface {
	GetByID(ctx context.Context, id string) (*models.Pet, error)
}

// SweepRunner runs one batch sweep.
type SweepRunner interface {
	Run(ctx context.Context) (*batch.SweepSummary, error)
}

// Server is the HTTP API server.
type Server struct {
	config        *Config
	engine        Engine
	pets          PetLookup
	sweeper       SweepRunner
	server        *http.Server
	healthHandler *health.Handler
	log           zerolog.Logger

	// sweepMu allows one on-demand sweep at a time.
	sweepMu sync.Mutex
}

// New creates a new API server.
func New(cfg *Config, engine Engine, pets PetLookup, sweeper SweepRunner) (*Server, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config is required")
	}
	if engine == nil {
		return nil, fmt.Errorf("engine is required")
	}
	if pets == nil {
		return nil, fmt.Errorf("pet lookup is required")
	}
	if sweeper == nil {
		return nil, fmt.Errorf("sweeper is required")
	}

	cfg.SetDefaults()

	s := &Server{
		config:        cfg,
		engine:        engine,
		pets:          pets,
		sweeper:       sweeper,
		healthHandler: health.NewHandler(),
		log:           logger.WithComponent("api"),
	}

	s.server = &http.Server{
		Addr:         cfg.Address,
		Handler:      s.setupRouter(),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: cfg.SweepTimeout + 30*time.Second,
		IdleTimeout:  60 * time.Second,
		TLSConfig:    cfg.TLS,
	}

	return s, nil
}

// Handler returns the server's root handler.
func (s *Server) Handler() http.Handler {
	return s.server.Handler
}

// Run starts the HTTP server and blocks until context is canceled.
func (s *Server) Run(ctx context.Context) error {
	errChan := make(chan error, 1)

	go func() {
		var err error
		if s.server.TLSConfig != nil {
			s.log.Info().Str("addr", s.config.Address).Msg("HTTPS API listening")
			err = s.server.ListenAndServeTLS("", "")
		} else {
			s.log.Info().Str("addr", s.config.Address).Msg("HTTP API listening")
			err = s.server.ListenAndServe()
		}
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			errChan <- err
		}
	}()

	select {
	case <-ctx.Done():
		s.log.Info().Msg("shutting down HTTP API server")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return s.server.Shutdown(shutdownCtx)
	case err := <-errChan:
		return err
	}
}

// Address returns the configured listen address.
func (s *Server) Address() string {
	return s.config.Address
}

// RegisterHealthChecker adds a health checker to the server.
func (s *Server) RegisterHealthChecker(c health.Checker) {
	if s.healthHandler != nil {
		s.healthHandler.RegisterChecker(c)
	}
}
