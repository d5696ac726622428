package observability

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlpmetric/otlpmetricgrpc"
	"go.opentelemetry.io/otel/exporters/otlp/otlpmetric/otlpmetrichttp"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracehttp"
	"go.opentelemetry.io/otel/metric"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.24.0"
	"go.opentelemetry.io/otel/trace"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
)

const (
	// instrumentationName scopes the tracer and meter.
	instrumentationName = "github.com/faidon-laboratory/lab-services/pkg/observability"

	// TracesPath and MetricsPath are the OTLP/HTTP collector routes.
	TracesPath  = "/v1/traces"
	MetricsPath = "/v1/metrics"

	// Instrument names shared with the Prometheus scrape surface.
	RequestsTotalName   = "http_requests_total"
	RequestDurationName = "http_request_duration_seconds"

	exporterInitTimeout = 10 * time.Second
	batchTimeout        = 5 * time.Second
	maxExportBatchSize  = 512
	metricInterval      = 10 * time.Second
)

// otelBackend exports spans and metrics through the OTel SDK. It owns both
// providers for the lifetime of the Telemetry that created it.
type otelBackend struct {
	cfg             Config
	tracer          trace.Tracer
	tracerProv      *sdktrace.TracerProvider
	meterProv       *sdkmetric.MeterProvider
	requestCounter  metric.Int64Counter
	requestDuration metric.Float64Histogram
}

// newOTelBackend builds the resource, exporters, providers and instruments.
// On error every provider created so far is shut down again.
func newOTelBackend(ctx context.Context, cfg Config, opts *options) (*otelBackend, error) {
	res, err := newResource(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create resource: %w", err)
	}

	tracerProvider, err := initTracerProvider(ctx, cfg, res, opts.spanExporter)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize tracer provider: %w", err)
	}

	meterProvider, err := initMeterProvider(ctx, cfg, res, opts.metricReader)
	if err != nil {
		shutdownErr := tracerProvider.Shutdown(ctx)
		return nil, errors.Join(fmt.Errorf("failed to initialize meter provider: %w", err), shutdownErr)
	}

	b := &otelBackend{
		cfg:        cfg,
		tracer:     tracerProvider.Tracer(instrumentationName),
		tracerProv: tracerProvider,
		meterProv:  meterProvider,
	}

	meter := meterProvider.Meter(instrumentationName)

	b.requestCounter, err = meter.Int64Counter(
		RequestsTotalName,
		metric.WithDescription("HTTP requests"),
		metric.WithUnit("{request}"),
	)
	if err != nil {
		return nil, errors.Join(fmt.Errorf("failed to create %s counter: %w", RequestsTotalName, err), b.shutdown(ctx))
	}

	b.requestDuration, err = meter.Float64Histogram(
		RequestDurationName,
		metric.WithDescription("Request duration in seconds"),
		metric.WithUnit("s"),
	)
	if err != nil {
		return nil, errors.Join(fmt.Errorf("failed to create %s histogram: %w", RequestDurationName, err), b.shutdown(ctx))
	}

	return b, nil
}

// newResource tags every exported batch with the service identity.
func newResource(ctx context.Context, cfg Config) (*resource.Resource, error) {
	return resource.New(ctx,
		resource.WithAttributes(
			semconv.ServiceName(cfg.ServiceName),
			semconv.ServiceVersion(cfg.ServiceVersion),
			semconv.DeploymentEnvironment(cfg.Environment),
		),
		resource.WithFromEnv(),
		resource.WithTelemetrySDK(),
	)
}

// initTracerProvider creates a batching tracer provider. A nil exporter means
// the OTLP exporter for cfg.Protocol.
func initTracerProvider(ctx context.Context, cfg Config, res *resource.Resource, exporter sdktrace.SpanExporter) (*sdktrace.TracerProvider, error) {
	if exporter == nil {
		var err error
		exporter, err = newTraceExporter(ctx, cfg)
		if err != nil {
			return nil, fmt.Errorf("failed to create trace exporter: %w", err)
		}
	}

	return sdktrace.NewTracerProvider(
		sdktrace.WithResource(res),
		sdktrace.WithBatcher(exporter,
			sdktrace.WithBatchTimeout(batchTimeout),
			sdktrace.WithMaxExportBatchSize(maxExportBatchSize),
		),
		sdktrace.WithSampler(sdktrace.AlwaysSample()),
	), nil
}

// initMeterProvider creates a meter provider. A nil reader means a periodic
// reader over the OTLP exporter for cfg.Protocol.
func initMeterProvider(ctx context.Context, cfg Config, res *resource.Resource, reader sdkmetric.Reader) (*sdkmetric.MeterProvider, error) {
	if reader == nil {
		exporter, err := newMetricExporter(ctx, cfg)
		if err != nil {
			return nil, fmt.Errorf("failed to create metric exporter: %w", err)
		}
		reader = sdkmetric.NewPeriodicReader(exporter, sdkmetric.WithInterval(metricInterval))
	}

	return sdkmetric.NewMeterProvider(
		sdkmetric.WithResource(res),
		sdkmetric.WithReader(reader),
	), nil
}

func newTraceExporter(ctx context.Context, cfg Config) (sdktrace.SpanExporter, error) {
	ctx, cancel := context.WithTimeout(ctx, exporterInitTimeout)
	defer cancel()

	if cfg.Protocol == ProtocolGRPC {
		return otlptracegrpc.New(ctx,
			otlptracegrpc.WithEndpoint(cfg.Endpoint),
			otlptracegrpc.WithDialOption(grpc.WithTransportCredentials(insecure.NewCredentials())),
		)
	}
	return otlptracehttp.New(ctx,
		otlptracehttp.WithEndpoint(cfg.Endpoint),
		otlptracehttp.WithURLPath(TracesPath),
		otlptracehttp.WithInsecure(),
	)
}

func newMetricExporter(ctx context.Context, cfg Config) (sdkmetric.Exporter, error) {
	ctx, cancel := context.WithTimeout(ctx, exporterInitTimeout)
	defer cancel()

	if cfg.Protocol == ProtocolGRPC {
		return otlpmetricgrpc.New(ctx,
			otlpmetricgrpc.WithEndpoint(cfg.Endpoint),
			otlpmetricgrpc.WithDialOption(grpc.WithTransportCredentials(insecure.NewCredentials())),
		)
	}
	return otlpmetrichttp.New(ctx,
		otlpmetrichttp.WithEndpoint(cfg.Endpoint),
		otlpmetrichttp.WithURLPath(MetricsPath),
		otlpmetrichttp.WithInsecure(),
	)
}

func (b *otelBackend) active() bool { return true }

func (b *otelBackend) countRequest(ctx context.Context, endpoint string, statusCode int) {
	b.requestCounter.Add(ctx, 1, metric.WithAttributes(
		attribute.String("endpoint", endpoint),
		attribute.String("status_code", strconv.Itoa(statusCode)),
		attribute.String("service", b.cfg.ServiceName),
	))
}

func (b *otelBackend) recordDuration(ctx context.Context, endpoint string, duration time.Duration) {
	b.requestDuration.Record(ctx, duration.Seconds(), metric.WithAttributes(
		attribute.String("endpoint", endpoint),
		attribute.String("service", b.cfg.ServiceName),
	))
}

func (b *otelBackend) startSpan(ctx context.Context, operation string) (context.Context, Span) {
	ctx, span := b.tracer.Start(ctx, operation,
		trace.WithAttributes(
			attribute.String("service", b.cfg.ServiceName),
			attribute.String("version", b.cfg.ServiceVersion),
			attribute.String("environment", b.cfg.Environment),
		),
	)
	return ctx, &otelSpan{span: span}
}

func (b *otelBackend) addSpanEvent(ctx context.Context, name string, fields Fields) {
	span := trace.SpanFromContext(ctx)
	if !span.IsRecording() {
		return
	}

	attrs := make([]attribute.KeyValue, 0, len(fields)+1)
	attrs = append(attrs, attribute.String("event", name))
	for k, v := range fields {
		attrs = append(attrs, attribute.String(k, fmt.Sprintf("%v", v)))
	}
	span.AddEvent(name, trace.WithAttributes(attrs...))
}

func (b *otelBackend) addSpanAttribute(ctx context.Context, key, value string) {
	span := trace.SpanFromContext(ctx)
	if !span.IsRecording() {
		return
	}
	span.SetAttributes(attribute.String(key, value))
}

func (b *otelBackend) tracerProvider() trace.TracerProvider { return b.tracerProv }

func (b *otelBackend) meterProvider() metric.MeterProvider { return b.meterProv }

func (b *otelBackend) forceFlush(ctx context.Context) error {
	return errors.Join(
		b.tracerProv.ForceFlush(ctx),
		b.meterProv.ForceFlush(ctx),
	)
}

// shutdown stops both providers, exporting whatever is still buffered.
func (b *otelBackend) shutdown(ctx context.Context) error {
	var errs []error
	if err := b.tracerProv.Shutdown(ctx); err != nil {
		errs = append(errs, fmt.Errorf("tracer provider shutdown: %w", err))
	}
	if err := b.meterProv.Shutdown(ctx); err != nil {
		errs = append(errs, fmt.Errorf("meter provider shutdown: %w", err))
	}
	return errors.Join(errs...)
}
