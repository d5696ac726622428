package observability

import (
	"context"
	"time"

	"go.opentelemetry.io/otel/metric"
	metricnoop "go.opentelemetry.io/otel/metric/noop"
	"go.opentelemetry.io/otel/trace"
	tracenoop "go.opentelemetry.io/otel/trace/noop"
)

// backend is the telemetry sink chosen once by New. Call sites on Telemetry
// never branch on which one is in use.
type backend interface {
	active() bool
	countRequest(ctx context.Context, endpoint string, statusCode int)
	recordDuration(ctx context.Context, endpoint string, duration time.Duration)
	startSpan(ctx context.Context, operation string) (context.Context, Span)
	addSpanEvent(ctx context.Context, name string, fields Fields)
	addSpanAttribute(ctx context.Context, key, value string)
	tracerProvider() trace.TracerProvider
	meterProvider() metric.MeterProvider
	forceFlush(ctx context.Context) error
	shutdown(ctx context.Context) error
}

// noopBackend is the local-only mode: nothing leaves the process except the
// JSON lines written by the logger.
type noopBackend struct{}

func (noopBackend) active() bool { return false }

func (noopBackend) countRequest(context.Context, string, int) {}

func (noopBackend) recordDuration(context.Context, string, time.Duration) {}

func (noopBackend) startSpan(ctx context.Context, _ string) (context.Context, Span) {
	return ctx, noopSpan{}
}

func (noopBackend) addSpanEvent(context.Context, string, Fields) {}

func (noopBackend) addSpanAttribute(context.Context, string, string) {}

func (noopBackend) tracerProvider() trace.TracerProvider {
	return tracenoop.NewTracerProvider()
}

func (noopBackend) meterProvider() metric.MeterProvider {
	return metricnoop.NewMeterProvider()
}

func (noopBackend) forceFlush(context.Context) error { return nil }

func (noopBackend) shutdown(context.Context) error { return nil }
