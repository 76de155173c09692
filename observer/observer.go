// Package observer provides OTEL-based observability for tandem workflows.
//
// It wires trace, metric, and log providers with OTLP HTTP exporters and
// offers instrumented wrappers for the Generator and KeySource interfaces,
// a coordinator event watcher that turns lifecycle events into workflow and
// step metrics, and a tandem.Tracer implementation the runtime consumes
// directly. Users export to any OTEL-compatible backend by setting standard
// OTEL env vars.
package observer

import (
	"context"
	"errors"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/otlp/otlplog/otlploghttp"
	"go.opentelemetry.io/otel/exporters/otlp/otlpmetric/otlpmetrichttp"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracehttp"
	sdklog "go.opentelemetry.io/otel/sdk/log"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"

	otellog "go.opentelemetry.io/otel/log"
	"go.opentelemetry.io/otel/log/global"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
)

const scopeName = "github.com/narwanda/tandem/observer"

// Instruments holds the OTEL instruments used by the observer wrappers.
type Instruments struct {
	Tracer trace.Tracer
	Meter  metric.Meter
	Logger otellog.Logger

	// Counters
	WorkflowExecutions metric.Int64Counter
	StepExecutions     metric.Int64Counter
	GeneratorRequests  metric.Int64Counter
	GeneratorBytes     metric.Int64Counter
	KeySelections      metric.Int64Counter
	KeyExhaustions     metric.Int64Counter
	KeyErrors          metric.Int64Counter

	// Histograms
	WorkflowDuration  metric.Float64Histogram
	StepDuration      metric.Float64Histogram
	GeneratorDuration metric.Float64Histogram
}

// Init sets up OTEL trace, metric, and log providers with OTLP HTTP
// exporters. Configuration comes from standard OTEL env vars
// (OTEL_EXPORTER_OTLP_ENDPOINT, etc.). Returns a shutdown function that must
// be called on application exit.
func Init(ctx context.Context) (*Instruments, func(context.Context) error, error) {
	res, err := resource.New(ctx,
		resource.WithAttributes(semconv.ServiceName("tandem")),
		resource.WithFromEnv(),
	)
	if err != nil {
		return nil, nil, err
	}

	// Trace provider
	traceExp, err := otlptracehttp.New(ctx)
	if err != nil {
		return nil, nil, err
	}
	tp := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(traceExp),
		sdktrace.WithResource(res),
	)
	otel.SetTracerProvider(tp)

	// Metric provider
	metricExp, err := otlpmetrichttp.New(ctx)
	if err != nil {
		_ = tp.Shutdown(ctx)
		return nil, nil, err
	}
	mp := sdkmetric.NewMeterProvider(
		sdkmetric.WithReader(sdkmetric.NewPeriodicReader(metricExp)),
		sdkmetric.WithResource(res),
	)
	otel.SetMeterProvider(mp)

	// Log provider
	logExp, err := otlploghttp.New(ctx)
	if err != nil {
		_ = tp.Shutdown(ctx)
		_ = mp.Shutdown(ctx)
		return nil, nil, err
	}
	lp := sdklog.NewLoggerProvider(
		sdklog.WithProcessor(sdklog.NewBatchProcessor(logExp)),
		sdklog.WithResource(res),
	)
	global.SetLoggerProvider(lp)

	inst, err := newInstruments()
	if err != nil {
		_ = tp.Shutdown(ctx)
		_ = mp.Shutdown(ctx)
		_ = lp.Shutdown(ctx)
		return nil, nil, err
	}

	shutdown := func(ctx context.Context) error {
		return errors.Join(
			tp.Shutdown(ctx),
			mp.Shutdown(ctx),
			lp.Shutdown(ctx),
		)
	}

	return inst, shutdown, nil
}

func newInstruments() (*Instruments, error) {
	tracer := otel.Tracer(scopeName)
	meter := otel.Meter(scopeName)
	logger := global.GetLoggerProvider().Logger(scopeName)

	workflowExecutions, err := meter.Int64Counter("workflow.executions",
		metric.WithDescription("Workflow execution count"),
		metric.WithUnit("{execution}"))
	if err != nil {
		return nil, err
	}

	stepExecutions, err := meter.Int64Counter("workflow.step.executions",
		metric.WithDescription("Workflow step execution count"),
		metric.WithUnit("{execution}"))
	if err != nil {
		return nil, err
	}

	generatorRequests, err := meter.Int64Counter("generator.requests",
		metric.WithDescription("Generator request count"),
		metric.WithUnit("{request}"))
	if err != nil {
		return nil, err
	}

	generatorBytes, err := meter.Int64Counter("generator.bytes_sent",
		metric.WithDescription("Bytes sent to the generator"),
		metric.WithUnit("By"))
	if err != nil {
		return nil, err
	}

	keySelections, err := meter.Int64Counter("keys.selections",
		metric.WithDescription("Successful key selections"),
		metric.WithUnit("{selection}"))
	if err != nil {
		return nil, err
	}

	keyExhaustions, err := meter.Int64Counter("keys.exhaustions",
		metric.WithDescription("Key requests that found no usable key"),
		metric.WithUnit("{request}"))
	if err != nil {
		return nil, err
	}

	keyErrors, err := meter.Int64Counter("keys.errors",
		metric.WithDescription("Errors reported against keys"),
		metric.WithUnit("{error}"))
	if err != nil {
		return nil, err
	}

	workflowDuration, err := meter.Float64Histogram("workflow.duration",
		metric.WithDescription("Workflow execution duration"),
		metric.WithUnit("ms"))
	if err != nil {
		return nil, err
	}

	stepDuration, err := meter.Float64Histogram("workflow.step.duration",
		metric.WithDescription("Workflow step duration"),
		metric.WithUnit("ms"))
	if err != nil {
		return nil, err
	}

	generatorDuration, err := meter.Float64Histogram("generator.duration",
		metric.WithDescription("Generator call duration"),
		metric.WithUnit("ms"))
	if err != nil {
		return nil, err
	}

	return &Instruments{
		Tracer:             tracer,
		Meter:              meter,
		Logger:             logger,
		WorkflowExecutions: workflowExecutions,
		StepExecutions:     stepExecutions,
		GeneratorRequests:  generatorRequests,
		GeneratorBytes:     generatorBytes,
		KeySelections:      keySelections,
		KeyExhaustions:     keyExhaustions,
		KeyErrors:          keyErrors,
		WorkflowDuration:   workflowDuration,
		StepDuration:       stepDuration,
		GeneratorDuration:  generatorDuration,
	}, nil
}
