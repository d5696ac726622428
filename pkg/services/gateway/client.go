package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/faidon-laboratory/lab-services/pkg/contextkeys"
	"github.com/faidon-laboratory/lab-services/pkg/httputil"
	"github.com/faidon-laboratory/lab-services/pkg/observability"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
)

// maxUpstreamBody caps how much of an upstream response is read.
const maxUpstreamBody = 1 << 20

// NewHTTPClient returns a client whose transport creates client spans and
// injects trace context into outbound requests using tel's providers.
func NewHTTPClient(tel *observability.Telemetry, timeout time.Duration) *http.Client {
	return &http.Client{
		Timeout: timeout,
		Transport: otelhttp.NewTransport(http.DefaultTransport,
			otelhttp.WithTracerProvider(tel.TracerProvider()),
			otelhttp.WithMeterProvider(tel.MeterProvider()),
			otelhttp.WithPropagators(tel.Propagator()),
		),
	}
}

// upstream is one downstream service the gateway talks to.
type upstream struct {
	name    string
	baseURL string
	client  *http.Client
	tel     *observability.Telemetry
}

func newUpstream(tel *observability.Telemetry, client *http.Client, name, baseURL string) *upstream {
	return &upstream{
		name:    name,
		baseURL: strings.TrimRight(baseURL, "/"),
		client:  client,
		tel:     tel,
	}
}

// upstreamResponse is what the gateway needs from a downstream reply.
type upstreamResponse struct {
	StatusCode int
	Body       []byte
}

// call performs one request inside a span named "call_<name>". A non-nil
// error means no response was received.
func (u *upstream) call(ctx context.Context, method, path string, payload interface{}) (*upstreamResponse, error) {
	ctx, span := u.tel.StartSpan(ctx, "call_"+u.name)
	defer span.End()

	url := u.baseURL + path
	u.tel.Info(ctx, "Calling "+strings.ReplaceAll(u.name, "_", " "), observability.Fields{
		"url":    url,
		"method": method,
	})

	var body io.Reader
	if payload != nil {
		data, err := json.Marshal(payload)
		if err != nil {
			span.RecordError(err)
			return nil, fmt.Errorf("failed to marshal %s request: %w", u.name, err)
		}
		body = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, url, body)
	if err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("failed to create %s request: %w", u.name, err)
	}
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if id := contextkeys.GetRequestID(ctx); id != "" {
		req.Header.Set(httputil.RequestIDHeader, id)
	}

	resp, err := u.client.Do(req)
	if err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("%s request failed: %w", u.name, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxUpstreamBody))
	if err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("failed to read %s response: %w", u.name, err)
	}

	u.tel.Info(ctx, "Upstream call completed", observability.Fields{
		"upstream":        u.name,
		"status_code":     resp.StatusCode,
		"response_length": len(data),
	})
	if resp.StatusCode >= http.StatusInternalServerError {
		span.RecordError(fmt.Errorf("%s returned status %d", u.name, resp.StatusCode))
	}

	return &upstreamResponse{StatusCode: resp.StatusCode, Body: data}, nil
}
