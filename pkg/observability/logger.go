package observability

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"sort"
	"strings"
	"time"

	"go.opentelemetry.io/otel/trace"
)

// LogLevel represents the severity of a log message
type LogLevel int

const (
	DebugLevel LogLevel = iota
	InfoLevel
	WarnLevel
	ErrorLevel
)

func (l LogLevel) String() string {
	switch l {
	case DebugLevel:
		return "DEBUG"
	case WarnLevel:
		return "WARN"
	case ErrorLevel:
		return "ERROR"
	default:
		return "INFO"
	}
}

// toSlogLevel converts LogLevel to slog.Level
func (l LogLevel) toSlogLevel() slog.Level {
	switch l {
	case DebugLevel:
		return slog.LevelDebug
	case InfoLevel:
		return slog.LevelInfo
	case WarnLevel:
		return slog.LevelWarn
	case ErrorLevel:
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// ParseLogLevel parses a level name, falling back to DebugLevel for unknown input
func ParseLogLevel(level string) LogLevel {
	switch strings.ToLower(strings.TrimSpace(level)) {
	case "info":
		return InfoLevel
	case "warn", "warning":
		return WarnLevel
	case "error":
		return ErrorLevel
	default:
		return DebugLevel
	}
}

// Fields holds caller-supplied values attached to a single log record.
type Fields map[string]interface{}

// Envelope keys written on every record.
const (
	KeyTimestamp   = "timestamp"
	KeyLevel       = "level"
	KeyMessage     = "message"
	KeyService     = "service"
	KeyVersion     = "version"
	KeyEnvironment = "environment"
	KeyTraceID     = "trace_id"
	KeySpanID      = "span_id"
	KeyError       = "error"

	// collidingFieldPrefix is prepended to caller fields that would
	// otherwise shadow an envelope key.
	collidingFieldPrefix = "field."
)

// timestampLayout is ISO-8601 UTC at second precision.
const timestampLayout = "2006-01-02T15:04:05Z"

var reservedKeys = map[string]struct{}{
	KeyTimestamp:   {},
	KeyLevel:       {},
	KeyMessage:     {},
	KeyService:     {},
	KeyVersion:     {},
	KeyEnvironment: {},
	KeyTraceID:     {},
	KeySpanID:      {},
	// slog's own keys are rewritten by replaceEnvelopeAttr, so a caller
	// field with one of these names would be renamed as well.
	slog.TimeKey:    {},
	slog.MessageKey: {},
	slog.SourceKey:  {},
}

// lineLogger writes one JSON object per record using stdlib slog. The slog
// JSON handler serializes each record into a single Write call under its
// own mutex, so concurrent callers never interleave partial lines.
type lineLogger struct {
	logger *slog.Logger
	level  LogLevel
}

func newLineLogger(output io.Writer, level LogLevel, cfg Config) *lineLogger {
	if output == nil {
		output = os.Stdout
	}

	opts := &slog.HandlerOptions{
		Level:       level.toSlogLevel(),
		ReplaceAttr: replaceEnvelopeAttr,
	}
	handler := slog.NewJSONHandler(output, opts)

	return &lineLogger{
		logger: slog.New(handler).With(
			slog.String(KeyService, cfg.ServiceName),
			slog.String(KeyVersion, cfg.ServiceVersion),
			slog.String(KeyEnvironment, cfg.Environment),
		),
		level: level,
	}
}

// replaceEnvelopeAttr renames slog's built-in keys to the record schema.
func replaceEnvelopeAttr(groups []string, a slog.Attr) slog.Attr {
	if len(groups) > 0 {
		return a
	}
	switch a.Key {
	case slog.TimeKey:
		if a.Value.Kind() == slog.KindTime {
			return slog.String(KeyTimestamp, a.Value.Time().UTC().Format(timestampLayout))
		}
	case slog.MessageKey:
		return slog.Attr{Key: KeyMessage, Value: a.Value}
	}
	return a
}

func (l *lineLogger) enabled(level LogLevel) bool {
	return level >= l.level
}

// log assembles and writes a single record. Write errors are dropped.
func (l *lineLogger) log(ctx context.Context, level LogLevel, message string, fields ...Fields) {
	if !l.enabled(level) {
		return
	}
	if ctx == nil {
		ctx = context.Background()
	}

	attrs := traceAttrs(ctx)
	attrs = append(attrs, fieldAttrs(mergeFields(fields...))...)
	l.logger.LogAttrs(ctx, level.toSlogLevel(), message, attrs...)
}

// traceAttrs returns trace_id and span_id when ctx carries a recording span.
func traceAttrs(ctx context.Context) []slog.Attr {
	span := trace.SpanFromContext(ctx)
	if !span.IsRecording() {
		return make([]slog.Attr, 0, 2)
	}

	spanCtx := span.SpanContext()
	return []slog.Attr{
		slog.String(KeyTraceID, spanCtx.TraceID().String()),
		slog.String(KeySpanID, spanCtx.SpanID().String()),
	}
}

// mergeFields flattens field maps left to right; later maps win on conflicts.
func mergeFields(fields ...Fields) Fields {
	merged := make(Fields)
	for _, fieldMap := range fields {
		for k, v := range fieldMap {
			merged[k] = v
		}
	}
	return merged
}

// fieldAttrs converts fields to slog attributes sorted by key.
func fieldAttrs(fields Fields) []slog.Attr {
	keys := make([]string, 0, len(fields))
	for k := range fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	attrs := make([]slog.Attr, 0, len(keys))
	for _, k := range keys {
		name := k
		if _, reserved := reservedKeys[k]; reserved {
			name = collidingFieldPrefix + k
		}
		attrs = append(attrs, slog.Any(name, fieldValue(fields[k])))
	}
	return attrs
}

// fieldValue keeps JSON-native scalars as they are and stringifies the rest.
func fieldValue(v interface{}) interface{} {
	switch val := v.(type) {
	case nil, string, bool,
		int, int8, int16, int32, int64,
		uint, uint8, uint16, uint32, uint64,
		float32, float64:
		return val
	case time.Duration:
		return val.String()
	case time.Time:
		return val.UTC().Format(timestampLayout)
	case error, fmt.Stringer:
		// fmt prints "<nil>" for nil pointer receivers and reports other
		// panics inline instead of propagating them.
		return fmt.Sprint(val)
	default:
		return val
	}
}
