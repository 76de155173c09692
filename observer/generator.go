package observer

import (
	"context"
	"time"

	"github.com/narwanda/tandem"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	otellog "go.opentelemetry.io/otel/log"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
)

// ObservedGenerator wraps a tandem.Generator with OTEL instrumentation.
type ObservedGenerator struct {
	inner tandem.Generator
	inst  *Instruments
}

// WrapGenerator returns an instrumented generator that emits traces, metrics,
// and logs for every call.
func WrapGenerator(inner tandem.Generator, inst *Instruments) *ObservedGenerator {
	return &ObservedGenerator{inner: inner, inst: inst}
}

var _ tandem.Generator = (*ObservedGenerator)(nil)

func (o *ObservedGenerator) Name() string { return o.inner.Name() }

func (o *ObservedGenerator) Generate(ctx context.Context, req tandem.GenerateRequest) (tandem.GenerateResponse, error) {
	structured := req.ResponseMIMEType == "application/json"
	ctx, span := o.inst.Tracer.Start(ctx, "generator.generate", trace.WithAttributes(
		AttrGenProvider.String(o.inner.Name()),
		AttrGenPromptLen.Int(len(req.Prompt)),
		AttrGenStructured.Bool(structured),
	))
	defer span.End()
	start := time.Now()

	resp, err := o.inner.Generate(ctx, req)

	durationMs := float64(time.Since(start).Milliseconds())
	status := "ok"
	if err != nil {
		status = "error"
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	span.SetAttributes(AttrGenOutputLen.Int(len(resp.Text)))

	attrs := metric.WithAttributes(
		AttrGenProvider.String(o.inner.Name()),
		attribute.String("status", status),
	)
	o.inst.GeneratorRequests.Add(ctx, 1, attrs)
	o.inst.GeneratorDuration.Record(ctx, durationMs, attrs)
	if resp.BytesSent > 0 {
		o.inst.GeneratorBytes.Add(ctx, resp.BytesSent, metric.WithAttributes(
			AttrGenProvider.String(o.inner.Name()),
		))
	}

	var rec otellog.Record
	rec.SetSeverity(otellog.SeverityInfo)
	rec.SetBody(otellog.StringValue("generator call completed"))
	rec.AddAttributes(
		otellog.String("generator.provider", o.inner.Name()),
		otellog.Int("generator.prompt_length", len(req.Prompt)),
		otellog.Int("generator.output_length", len(resp.Text)),
		otellog.Float64("generator.duration_ms", durationMs),
		otellog.String("status", status),
	)
	o.inst.Logger.Emit(ctx, rec)

	return resp, err
}
