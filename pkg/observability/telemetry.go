package observability

import (
	"context"
	"fmt"
	"io"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/propagation"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/trace"
)

// Export protocols understood by Config.Protocol.
const (
	ProtocolHTTP = "http/protobuf"
	ProtocolGRPC = "grpc"
)

// DefaultProbeTimeout bounds the reachability check done by New.
const DefaultProbeTimeout = 2 * time.Second

// Config is the immutable telemetry configuration. An empty Endpoint selects
// local-only mode.
type Config struct {
	ServiceName    string
	ServiceVersion string
	Environment    string

	// Endpoint is the collector host:port, e.g. "alloy:4318".
	Endpoint string

	// Protocol is ProtocolHTTP (default) or ProtocolGRPC.
	Protocol string

	// ProbeTimeout bounds the dial to Endpoint during New. Zero means
	// DefaultProbeTimeout, negative skips the dial.
	ProbeTimeout time.Duration

	// LogLevel drops records below it. The zero value writes everything.
	LogLevel LogLevel
}

type options struct {
	output       io.Writer
	spanExporter sdktrace.SpanExporter
	metricReader sdkmetric.Reader
	level        *LogLevel
}

// Option customizes New.
type Option func(*options)

// WithOutput sends log lines to w instead of stdout.
func WithOutput(w io.Writer) Option {
	return func(o *options) { o.output = w }
}

// WithSpanExporter replaces the OTLP trace exporter.
func WithSpanExporter(exporter sdktrace.SpanExporter) Option {
	return func(o *options) { o.spanExporter = exporter }
}

// WithMetricReader replaces the periodic OTLP metric reader.
func WithMetricReader(reader sdkmetric.Reader) Option {
	return func(o *options) { o.metricReader = reader }
}

// WithLogLevel overrides Config.LogLevel.
func WithLogLevel(level LogLevel) Option {
	return func(o *options) { o.level = &level }
}

// Telemetry is the logging, metrics and tracing façade handed to request
// handlers. It is safe for concurrent use. Construct one per process with New
// and pass it to whatever needs it.
type Telemetry struct {
	cfg        Config
	log        *lineLogger
	backend    backend
	propagator propagation.TextMapPropagator
}

// New builds a Telemetry. It never fails: when the endpoint is missing,
// malformed, unreachable or the SDK cannot be set up, the instance stays in
// local-only mode for its whole lifetime and one diagnostic line is written.
func New(ctx context.Context, cfg Config, opts ...Option) *Telemetry {
	o := &options{}
	for _, opt := range opts {
		opt(o)
	}
	if cfg.Protocol == "" {
		cfg.Protocol = ProtocolHTTP
	}
	if cfg.ProbeTimeout == 0 {
		cfg.ProbeTimeout = DefaultProbeTimeout
	}
	level := cfg.LogLevel
	if o.level != nil {
		level = *o.level
	}
	cfg.LogLevel = level

	t := &Telemetry{
		cfg:     cfg,
		log:     newLineLogger(o.output, level, cfg),
		backend: noopBackend{},
		propagator: propagation.NewCompositeTextMapPropagator(
			propagation.TraceContext{},
			propagation.Baggage{},
		),
	}

	if cfg.Endpoint == "" {
		return t
	}

	b, err := t.initBackend(ctx, o)
	if err != nil {
		t.log.log(ctx, WarnLevel, "Telemetry export disabled, continuing with local-only logging", Fields{
			KeyError:   err.Error(),
			"endpoint": cfg.Endpoint,
			"protocol": cfg.Protocol,
		})
		return t
	}

	t.backend = b
	t.log.log(ctx, DebugLevel, "Telemetry export enabled", Fields{
		"endpoint": cfg.Endpoint,
		"protocol": cfg.Protocol,
	})
	return t
}

// initBackend converts panics from the SDK into errors so New cannot crash
// the caller.
func (t *Telemetry) initBackend(ctx context.Context, o *options) (b backend, err error) {
	defer func() {
		if r := recover(); r != nil {
			b, err = nil, fmt.Errorf("panic during telemetry setup: %v", r)
		}
	}()

	switch t.cfg.Protocol {
	case ProtocolHTTP, ProtocolGRPC:
	default:
		return nil, fmt.Errorf("unsupported export protocol %q", t.cfg.Protocol)
	}

	if err := checkEndpoint(ctx, t.cfg.Endpoint, t.cfg.ProbeTimeout); err != nil {
		return nil, err
	}

	return newOTelBackend(ctx, t.cfg, o)
}

// Config returns the configuration the instance was built with.
func (t *Telemetry) Config() Config {
	return t.cfg
}

// Active reports whether spans and metrics are exported.
func (t *Telemetry) Active() bool {
	return t.backend.active()
}

// Info logs an info message
func (t *Telemetry) Info(ctx context.Context, message string, fields ...Fields) {
	defer t.recoverCall(ctx, "info")
	t.log.log(ctx, InfoLevel, message, fields...)
}

// Warn logs a warning message
func (t *Telemetry) Warn(ctx context.Context, message string, fields ...Fields) {
	defer t.recoverCall(ctx, "warn")
	t.log.log(ctx, WarnLevel, message, fields...)
}

// Debug logs a debug message
func (t *Telemetry) Debug(ctx context.Context, message string, fields ...Fields) {
	defer t.recoverCall(ctx, "debug")
	t.log.log(ctx, DebugLevel, message, fields...)
}

// Error logs an error message. The error text is stored under "error" and
// replaces any caller field of the same name.
func (t *Telemetry) Error(ctx context.Context, message string, err error, fields ...Fields) {
	defer t.recoverCall(ctx, "error")

	errText := "<nil>"
	if err != nil {
		errText = fmt.Sprint(err)
	}
	merged := mergeFields(fields...)
	merged[KeyError] = errText
	t.log.log(ctx, ErrorLevel, message, merged)
}

// CountRequest increments the request counter for endpoint and statusCode.
func (t *Telemetry) CountRequest(ctx context.Context, endpoint string, statusCode int) {
	defer t.recoverCall(ctx, "count_request")
	t.backend.countRequest(ctx, endpoint, statusCode)
}

// RecordDuration records how long a request to endpoint took.
func (t *Telemetry) RecordDuration(ctx context.Context, endpoint string, duration time.Duration) {
	defer t.recoverCall(ctx, "record_duration")
	t.backend.recordDuration(ctx, endpoint, duration)
}

// StartSpan starts a span for operation. The returned context carries the
// span so that logging and enrichment calls made with it see it. Callers must
// always end the span:
//
//	ctx, span := tel.StartSpan(ctx, "send_notification")
//	defer span.End()
func (t *Telemetry) StartSpan(ctx context.Context, operation string) (spanCtx context.Context, span Span) {
	defer func() {
		if r := recover(); r != nil {
			t.logRecovered(ctx, "start_span", r)
			spanCtx, span = ctx, noopSpan{}
		}
	}()
	return t.backend.startSpan(ctx, operation)
}

// Trace runs fn inside a span named operation. An error returned by fn is
// recorded on the span; the span is ended even if fn panics.
func (t *Telemetry) Trace(ctx context.Context, operation string, fn func(context.Context) error) error {
	ctx, span := t.StartSpan(ctx, operation)
	defer span.End()
	defer func() {
		if r := recover(); r != nil {
			span.RecordError(fmt.Errorf("panic: %v", r))
			panic(r)
		}
	}()

	err := fn(ctx)
	if err != nil {
		span.RecordError(err)
	}
	return err
}

// AddSpanEvent adds an event to the span carried by ctx, if it is recording.
func (t *Telemetry) AddSpanEvent(ctx context.Context, name string, fields ...Fields) {
	defer t.recoverCall(ctx, "add_span_event")
	t.backend.addSpanEvent(ctx, name, mergeFields(fields...))
}

// AddSpanAttribute sets an attribute on the span carried by ctx, if it is
// recording.
func (t *Telemetry) AddSpanAttribute(ctx context.Context, key, value string) {
	defer t.recoverCall(ctx, "add_span_attribute")
	t.backend.addSpanAttribute(ctx, key, value)
}

// TracerProvider exposes the provider behind StartSpan, for instrumentation
// libraries such as otelhttp. In local-only mode it is a no-op provider.
func (t *Telemetry) TracerProvider() trace.TracerProvider {
	return t.backend.tracerProvider()
}

// MeterProvider exposes the provider behind the request instruments.
func (t *Telemetry) MeterProvider() metric.MeterProvider {
	return t.backend.meterProvider()
}

// Propagator returns the W3C trace-context and baggage propagator.
func (t *Telemetry) Propagator() propagation.TextMapPropagator {
	return t.propagator
}

// ErrorHandler routes SDK export errors into the JSON log stream. Install it
// with otel.SetErrorHandler.
func (t *Telemetry) ErrorHandler() otel.ErrorHandler {
	return otel.ErrorHandlerFunc(func(err error) {
		t.log.log(context.Background(), WarnLevel, "Telemetry export error", Fields{KeyError: err.Error()})
	})
}

// ForceFlush exports everything buffered so far.
func (t *Telemetry) ForceFlush(ctx context.Context) error {
	return t.backend.forceFlush(ctx)
}

// Shutdown flushes and stops the exporters. Data still buffered when ctx
// expires is dropped.
func (t *Telemetry) Shutdown(ctx context.Context) error {
	if err := t.backend.shutdown(ctx); err != nil {
		return fmt.Errorf("telemetry shutdown: %w", err)
	}
	return nil
}

// recoverCall must be deferred directly; it keeps a failing telemetry call
// from reaching request-handling code.
func (t *Telemetry) recoverCall(ctx context.Context, operation string) {
	if r := recover(); r != nil {
		t.logRecovered(ctx, operation, r)
	}
}

func (t *Telemetry) logRecovered(ctx context.Context, operation string, r interface{}) {
	t.log.log(ctx, WarnLevel, "Telemetry call failed", Fields{
		"operation": operation,
		KeyError:    fmt.Sprint(r),
	})
}
