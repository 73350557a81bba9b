// Package httpapi serves the read-mostly monitoring surface: health,
// Prometheus metrics, the latest run summary, an on-demand run trigger,
// and a websocket stream of run progress events.
package httpapi

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"

	"github.com/crossrank/crossrank/internal/config"
	"github.com/crossrank/crossrank/internal/metrics"
	"github.com/crossrank/crossrank/internal/run"
)

// shutdownGrace bounds how long in-flight requests get on shutdown.
const shutdownGrace = 10 * time.Second

// Server is the CrossRank HTTP server.
type Server struct {
	router  *mux.Router
	server  *http.Server
	cfg     config.ServerConfig
	runner  *run.Runner
	reg     *metrics.Registry
	hub     *Hub
	limiter *ipLimiter
	started time.Time
	running chan struct{}
}

// NewServer wires the router. The hub is registered as the runner's event
// sink so websocket clients see every run, scheduled or triggered.
func NewServer(cfg config.ServerConfig, runner *run.Runner, reg *metrics.Registry) *Server {
	s := &Server{
		router:  mux.NewRouter(),
		cfg:     cfg,
		runner:  runner,
		reg:     reg,
		hub:     NewHub(),
		limiter: newIPLimiter(cfg.RatePerSecond, cfg.RateBurst),
		started: time.Now(),
		running: make(chan struct{}, 1),
	}
	runner.SetSink(s.hub)
	s.setupRoutes()

	s.server = &http.Server{
		Addr:         cfg.Addr(),
		Handler:      s.router,
		ReadTimeout:  time.Duration(cfg.ReadTimeoutS) * time.Second,
		WriteTimeout: time.Duration(cfg.WriteTimeoutS) * time.Second,
		IdleTimeout:  60 * time.Second,
	}
	return s
}

// setupRoutes configures all HTTP routes.
func (s *Server) setupRoutes() {
	s.router.Use(s.requestIDMiddleware)
	s.router.Use(s.loggingMiddleware)

	// The websocket route stays off the API subrouter: the request timeout
	// would cut long-lived connections. Registered first so the prefix
	// match below does not capture it.
	s.router.HandleFunc("/api/v1/ws/runs", s.hub.ServeWS).Methods("GET")

	s.router.HandleFunc("/health", s.handleHealth).Methods("GET")
	s.router.Handle("/metrics", s.reg.Handler()).Methods("GET")

	api := s.router.PathPrefix("/api/v1").Subrouter()
	api.Use(s.rateLimitMiddleware)
	api.Use(s.timeoutMiddleware)
	api.Use(jsonContentTypeMiddleware)
	api.HandleFunc("/runs/latest", s.handleLatestRun).Methods("GET")
	api.HandleFunc("/runs", s.handleTriggerRun).Methods("POST")

	s.router.NotFoundHandler = s.withRequestID(http.HandlerFunc(s.handleNotFound))
}

// Hub returns the websocket hub, usable as a run.Sink by other runners.
func (s *Server) Hub() *Hub {
	return s.hub
}

// Run serves until ctx is cancelled, then drains connections within the
// shutdown grace period.
func (s *Server) Run(ctx context.Context) error {
	listener, err := net.Listen("tcp", s.cfg.Addr())
	if err != nil {
		return fmt.Errorf("port %d is busy or unavailable: %w", s.cfg.Port, err)
	}

	log.Info().
		Str("addr", s.cfg.Addr()).
		Float64("rate_per_second", s.cfg.RatePerSecond).
		Msg("Starting HTTP server")

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		if err := s.server.Serve(listener); err != nil && err != http.ErrServerClosed {
			return fmt.Errorf("http server failed: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-ctx.Done()
		log.Info().Msg("Shutting down HTTP server")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownGrace)
		defer cancel()
		return s.server.Shutdown(shutdownCtx)
	})
	return g.Wait()
}
