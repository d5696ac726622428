package observability

import (
	"context"
	"time"
)

// RequestTimer pairs CountRequest and RecordDuration for one request.
type RequestTimer struct {
	tel      *Telemetry
	endpoint string
	start    time.Time
	observed bool
}

// StartTimer starts timing a request to endpoint.
func (t *Telemetry) StartTimer(endpoint string) *RequestTimer {
	return &RequestTimer{
		tel:      t,
		endpoint: endpoint,
		start:    time.Now(),
	}
}

// Endpoint returns the endpoint label the timer reports under.
func (rt *RequestTimer) Endpoint() string {
	return rt.endpoint
}

// Elapsed returns the time since the timer started.
func (rt *RequestTimer) Elapsed() time.Duration {
	return time.Since(rt.start)
}

// Observe counts the request with statusCode and records its duration. Only
// the first call has an effect.
func (rt *RequestTimer) Observe(ctx context.Context, statusCode int) {
	if rt.observed {
		return
	}
	rt.observed = true
	rt.tel.CountRequest(ctx, rt.endpoint, statusCode)
	rt.tel.RecordDuration(ctx, rt.endpoint, time.Since(rt.start))
}
