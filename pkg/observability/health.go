package observability

import (
	"net/http"
	"time"

	"github.com/gorilla/mux"
)

// Probes serves the liveness and readiness endpoints of a demo service.
// Readiness reports 503 until readyDelay has elapsed since start.
type Probes struct {
	tel        *Telemetry
	start      time.Time
	readyDelay time.Duration
	now        func() time.Time
}

// NewProbes creates probes that become ready readyDelay after start.
func NewProbes(tel *Telemetry, start time.Time, readyDelay time.Duration) *Probes {
	return &Probes{
		tel:        tel,
		start:      start,
		readyDelay: readyDelay,
		now:        time.Now,
	}
}

// Ready reports whether the readiness delay has passed.
func (p *Probes) Ready() bool {
	return p.now().Sub(p.start) >= p.readyDelay
}

// Liveness always answers 200 "ok" while the process serves requests.
func (p *Probes) Liveness(w http.ResponseWriter, r *http.Request) {
	ctx, span := p.tel.StartSpan(r.Context(), "healthz")
	defer span.End()

	status := http.StatusOK
	timer := p.tel.StartTimer("/healthz")
	defer func() { timer.Observe(ctx, status) }()

	p.tel.Info(ctx, "Health check requested")
	writePlain(w, status, "ok")
}

// Readiness answers 503 "not ready" during the startup delay, then 200 "ready".
func (p *Probes) Readiness(w http.ResponseWriter, r *http.Request) {
	ctx, span := p.tel.StartSpan(r.Context(), "readyz")
	defer span.End()

	status := http.StatusOK
	timer := p.tel.StartTimer("/readyz")
	defer func() { timer.Observe(ctx, status) }()

	elapsed := p.now().Sub(p.start)
	if elapsed < p.readyDelay {
		status = http.StatusServiceUnavailable
		p.tel.Warn(ctx, "Service not ready yet", Fields{
			"elapsed_seconds":     elapsed.Seconds(),
			"ready_delay_seconds": int(p.readyDelay / time.Second),
		})
		writePlain(w, status, "not ready")
		return
	}

	p.tel.Info(ctx, "Service is ready")
	writePlain(w, status, "ready")
}

// RegisterHealthRoutes registers /healthz and /readyz
func RegisterHealthRoutes(router *mux.Router, probes *Probes) {
	router.HandleFunc("/healthz", probes.Liveness).Methods(http.MethodGet)
	router.HandleFunc("/readyz", probes.Readiness).Methods(http.MethodGet)
}

func writePlain(w http.ResponseWriter, status int, body string) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(status)
	_, _ = w.Write([]byte(body))
}
