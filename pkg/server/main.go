package server

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/faidon-laboratory/lab-services/pkg/config"
	"github.com/faidon-laboratory/lab-services/pkg/observability"
	"github.com/faidon-laboratory/lab-services/pkg/simulate"
	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
	"go.opentelemetry.io/otel"
)

// Env is what a service needs to mount its routes.
type Env struct {
	Config    *config.Config
	Telemetry *observability.Telemetry
	Simulator *simulate.Simulator
	Router    *mux.Router
	Server    *Server
}

// MountFunc registers a service's routes on env.Router.
type MountFunc func(env *Env) error

// Main loads configuration, builds the telemetry façade, mounts the service
// and serves until a shutdown signal. It returns the process exit code.
func Main(serviceName, displayName string, mount MountFunc) int {
	ctx := context.Background()
	start := time.Now()

	cfg, err := config.LoadConfig(serviceName)
	if err != nil {
		fallback := observability.New(ctx, config.Default(serviceName).TelemetryConfig())
		fallback.Error(ctx, "Failed to load configuration", err)
		return 1
	}

	tel := observability.New(ctx, cfg.TelemetryConfig())
	otel.SetErrorHandler(tel.ErrorHandler())
	otel.SetTracerProvider(tel.TracerProvider())
	otel.SetMeterProvider(tel.MeterProvider())
	otel.SetTextMapPropagator(tel.Propagator())

	registry := prometheus.NewRegistry()
	metrics := observability.NewMetrics(registry)
	probes := observability.NewProbes(tel, start, cfg.ReadinessDelay())

	router := NewRouter(tel, metrics, probes, cfg.Server.MaxBodyBytes)
	srv := New(cfg, tel, router, NewMetricsHandler(registry, probes))

	env := &Env{
		Config:    cfg,
		Telemetry: tel,
		Simulator: simulate.New(cfg.Simulation.FailRate),
		Router:    router,
		Server:    srv,
	}
	if err := mount(env); err != nil {
		tel.Error(ctx, "Failed to initialize "+displayName, err)
		_ = tel.Shutdown(ctx)
		return 1
	}

	tel.Info(ctx, fmt.Sprintf("%s started successfully", displayName), cfg.Fields())

	if err := srv.Run(ctx); err != nil {
		tel.Error(ctx, displayName+" stopped with error", err)
		return 1
	}
	return 0
}

// Exit runs Main and exits the process with its code.
func Exit(serviceName, displayName string, mount MountFunc) {
	os.Exit(Main(serviceName, displayName, mount))
}
