package server

import (
	"net/http"

	"github.com/faidon-laboratory/lab-services/pkg/httputil"
	"github.com/faidon-laboratory/lab-services/pkg/observability"
	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
)

// NewRouter returns the API router with the standard middleware stack,
// request metrics and the health probes mounted.
func NewRouter(tel *observability.Telemetry, metrics *observability.Metrics, probes *observability.Probes, maxBodyBytes int64) *mux.Router {
	router := mux.NewRouter()
	router.Use(mux.MiddlewareFunc(httputil.Standard(tel, maxBodyBytes)))
	router.Use(observability.HTTPMetricsMiddleware(metrics))
	observability.RegisterHealthRoutes(router, probes)

	router.NotFoundHandler = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		httputil.WriteNotFound(w, "Not found")
	})
	router.MethodNotAllowedHandler = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		httputil.WriteErrorMessage(w, http.StatusMethodNotAllowed, "Method not allowed")
	})
	return router
}

// NewMetricsHandler serves /metrics from registry next to the health probes.
func NewMetricsHandler(registry *prometheus.Registry, probes *observability.Probes) http.Handler {
	router := mux.NewRouter()
	router.Handle("/metrics", observability.MetricsHandler(registry)).Methods(http.MethodGet)
	observability.RegisterHealthRoutes(router, probes)
	return router
}
