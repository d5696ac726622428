// Package observability provides the telemetry façade used by every lab
// service: JSON line logging on stdout, OpenTelemetry traces and request
// metrics, Prometheus scraping, health probes and graceful shutdown.
//
// # Overview
//
// A Telemetry is built once per process and passed to whatever needs it.
// Construction never fails. When no collector endpoint is configured, or the
// endpoint is malformed or unreachable, the instance runs in local-only mode:
// logging works normally and every span or metric call is a no-op.
//
//	tel := observability.New(ctx, observability.Config{
//		ServiceName:    "user-service",
//		ServiceVersion: "1.0.0",
//		Environment:    "development",
//		Endpoint:       "alloy:4318",
//	})
//	defer tel.Shutdown(ctx)
//
// # Logging
//
// Each call writes exactly one JSON object per line:
//
//	tel.Info(ctx, "User created", observability.Fields{"user_id": "user_1a2b3c4d"})
//	// {"timestamp":"2026-01-01T12:00:00Z","level":"INFO","message":"User created","service":"user-service","version":"1.0.0","environment":"development","user_id":"user_1a2b3c4d"}
//
// When ctx carries a recording span the line also holds trace_id and span_id.
// Caller fields that collide with envelope keys are written as "field.<key>".
//
// # Tracing
//
// Spans are carried by context.Context:
//
//	ctx, span := tel.StartSpan(ctx, "create_user")
//	defer span.End()
//	tel.AddSpanAttribute(ctx, "user.id", id)
//
// Trace wraps a function and records its error on the span.
//
// # Metrics
//
// CountRequest and RecordDuration feed http_requests_total and
// http_request_duration_seconds over OTLP. NewMetrics registers the same
// names on a Prometheus registry for the /metrics listener.
//
// # Related Packages
//
//   - pkg/config: environment-driven service configuration
//   - pkg/httputil: middleware built on this package
//   - pkg/server: listener lifecycle and shutdown ordering
package observability
