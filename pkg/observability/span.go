package observability

import (
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// Span is one traced operation. Callers acquire it with StartSpan and always
// release it with a deferred End, whichever backend produced it.
type Span interface {
	// End completes the span. Calling End more than once has no further effect.
	End()
	// RecordError marks the span as failed and attaches err as an event.
	RecordError(err error)
	// IsRecording reports whether the span records data.
	IsRecording() bool
}

// otelSpan adapts an SDK span.
type otelSpan struct {
	span trace.Span
}

func (s *otelSpan) End() {
	s.span.End()
}

func (s *otelSpan) RecordError(err error) {
	if err == nil {
		return
	}
	s.span.RecordError(err)
	s.span.SetStatus(codes.Error, err.Error())
}

func (s *otelSpan) IsRecording() bool {
	return s.span.IsRecording()
}

// noopSpan honours the acquire/release contract and records nothing.
type noopSpan struct{}

func (noopSpan) End()              {}
func (noopSpan) RecordError(error) {}
func (noopSpan) IsRecording() bool { return false }
