// Package server runs a lab service: the API listener, the metrics listener
// and graceful shutdown of both plus the telemetry façade.
package server

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/faidon-laboratory/lab-services/pkg/config"
	"github.com/faidon-laboratory/lab-services/pkg/observability"
	"golang.org/x/sync/errgroup"
)

// Server owns the two HTTP servers of a service process.
type Server struct {
	cfg      *config.Config
	tel      *observability.Telemetry
	api      *http.Server
	metrics  *http.Server
	shutdown *observability.ShutdownManager
}

// New creates a server for the API handler and the metrics handler.
func New(cfg *config.Config, tel *observability.Telemetry, api, metrics http.Handler) *Server {
	apiServer := &http.Server{
		Addr:         cfg.APIAddr(),
		Handler:      api,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}
	metricsServer := &http.Server{
		Addr:        cfg.MetricsAddr(),
		Handler:     metrics,
		ReadTimeout: cfg.Server.ReadTimeout,
		IdleTimeout: cfg.Server.IdleTimeout,
	}

	return &Server{
		cfg:      cfg,
		tel:      tel,
		api:      apiServer,
		metrics:  metricsServer,
		shutdown: observability.NewShutdownManager(tel, cfg.Server.ShutdownTimeout, apiServer, metricsServer),
	}
}

// OnShutdown registers cleanup run after both listeners have stopped.
func (s *Server) OnShutdown(name string, fn observability.ShutdownFunc) {
	s.shutdown.Register(name, fn)
}

// Run listens on the configured addresses and serves until SIGINT, SIGTERM
// or cancellation of ctx.
func (s *Server) Run(ctx context.Context) error {
	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	apiLn, err := net.Listen("tcp", s.api.Addr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", s.api.Addr, err)
	}
	metricsLn, err := net.Listen("tcp", s.metrics.Addr)
	if err != nil {
		_ = apiLn.Close()
		return fmt.Errorf("failed to listen on %s: %w", s.metrics.Addr, err)
	}

	return s.Serve(ctx, apiLn, metricsLn)
}

// Serve serves on the given listeners until ctx is done or either server
// fails, then shuts everything down. The returned error joins the serve
// failure, if any, with shutdown errors.
func (s *Server) Serve(ctx context.Context, apiLn, metricsLn net.Listener) error {
	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		s.tel.Info(gctx, "HTTP server listening", observability.Fields{"addr": apiLn.Addr().String()})
		return serve(s.api, apiLn)
	})
	g.Go(func() error {
		s.tel.Info(gctx, "Metrics server listening", observability.Fields{"addr": metricsLn.Addr().String()})
		return serve(s.metrics, metricsLn)
	})
	g.Go(func() error {
		return s.shutdown.WaitForShutdown(gctx)
	})

	if err := g.Wait(); err != nil {
		return fmt.Errorf("server stopped: %w", err)
	}
	return nil
}

func serve(srv *http.Server, ln net.Listener) error {
	if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("server %s: %w", ln.Addr(), err)
	}
	return nil
}
