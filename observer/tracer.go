package observer

import (
	"context"
	"fmt"
	"time"

	"github.com/narwanda/tandem"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// NewTracer returns a tandem.Tracer backed by the global OTEL TracerProvider.
// Call observer.Init() first to configure the provider; otherwise spans go to
// a no-op backend.
func NewTracer() tandem.Tracer {
	return &traceAdapter{inner: otel.Tracer(scopeName)}
}

// traceAdapter bridges the runtime's Tracer interface onto OTEL.
type traceAdapter struct {
	inner trace.Tracer
}

func (t *traceAdapter) Start(ctx context.Context, name string, attrs ...tandem.SpanAttr) (context.Context, tandem.Span) {
	ctx, span := t.inner.Start(ctx, name, trace.WithAttributes(convertAttrs(attrs)...))
	return ctx, &spanAdapter{inner: span}
}

type spanAdapter struct {
	inner trace.Span
}

func (s *spanAdapter) SetAttr(attrs ...tandem.SpanAttr) {
	s.inner.SetAttributes(convertAttrs(attrs)...)
}

func (s *spanAdapter) Event(name string, attrs ...tandem.SpanAttr) {
	s.inner.AddEvent(name, trace.WithAttributes(convertAttrs(attrs)...))
}

func (s *spanAdapter) Error(err error) {
	s.inner.RecordError(err)
	s.inner.SetAttributes(attribute.String("error.type", fmt.Sprintf("%T", err)))
	s.inner.SetStatus(codes.Error, err.Error())
}

func (s *spanAdapter) End() {
	s.inner.End()
}

func convertAttrs(attrs []tandem.SpanAttr) []attribute.KeyValue {
	out := make([]attribute.KeyValue, len(attrs))
	for i, a := range attrs {
		out[i] = convertAttr(a)
	}
	return out
}

// convertAttr maps one runtime span attribute onto an OTEL KeyValue.
// Durations render in their native string form; unknown types fall back to
// fmt formatting rather than being dropped.
func convertAttr(a tandem.SpanAttr) attribute.KeyValue {
	switch v := a.Value.(type) {
	case string:
		return attribute.String(a.Key, v)
	case int:
		return attribute.Int(a.Key, v)
	case int64:
		return attribute.Int64(a.Key, v)
	case float64:
		return attribute.Float64(a.Key, v)
	case bool:
		return attribute.Bool(a.Key, v)
	case time.Duration:
		return attribute.String(a.Key, v.String())
	case []string:
		return attribute.StringSlice(a.Key, v)
	case error:
		return attribute.String(a.Key, v.Error())
	default:
		return attribute.String(a.Key, fmt.Sprintf("%v", v))
	}
}

// compile-time checks
var (
	_ tandem.Tracer = (*traceAdapter)(nil)
	_ tandem.Span   = (*spanAdapter)(nil)
)
