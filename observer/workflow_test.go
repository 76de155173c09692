package observer

import (
	"context"
	"testing"
	"time"

	"github.com/narwanda/tandem"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
)

func findMetric(t *testing.T, rm metricdata.ResourceMetrics, name string) metricdata.Metrics {
	t.Helper()
	for _, sm := range rm.ScopeMetrics {
		for _, m := range sm.Metrics {
			if m.Name == name {
				return m
			}
		}
	}
	t.Fatalf("metric %q was not recorded", name)
	return metricdata.Metrics{}
}

func TestWatchEventsRecordsWorkflowMetrics(t *testing.T) {
	reader := sdkmetric.NewManualReader()
	otel.SetMeterProvider(sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader)))
	inst, err := newInstruments()
	if err != nil {
		t.Fatal(err)
	}

	events := make(chan tandem.Event, 8)
	done := make(chan struct{})
	go func() {
		WatchEvents(context.Background(), events, inst)
		close(done)
	}()

	base := time.Now()
	events <- tandem.Event{Type: tandem.EventWorkflowStarted, WorkflowID: "wf", At: base}
	events <- tandem.Event{Type: tandem.EventStepStarted, WorkflowID: "wf", StepID: "s1", AgentID: "a", At: base}
	events <- tandem.Event{Type: tandem.EventStepCompleted, WorkflowID: "wf", StepID: "s1", AgentID: "a", At: base.Add(50 * time.Millisecond)}
	events <- tandem.Event{Type: tandem.EventWorkflowCompleted, WorkflowID: "wf", At: base.Add(80 * time.Millisecond)}
	close(events)
	<-done

	var rm metricdata.ResourceMetrics
	if err := reader.Collect(context.Background(), &rm); err != nil {
		t.Fatal(err)
	}

	executions := findMetric(t, rm, "workflow.executions")
	sum, ok := executions.Data.(metricdata.Sum[int64])
	if !ok || len(sum.DataPoints) != 1 {
		t.Fatalf("workflow.executions data = %#v, want one sum point", executions.Data)
	}
	if sum.DataPoints[0].Value != 1 {
		t.Errorf("workflow.executions = %d, want 1", sum.DataPoints[0].Value)
	}
	if state, ok := sum.DataPoints[0].Attributes.Value(AttrWorkflowState); !ok || state.AsString() != "completed" {
		t.Errorf("workflow.state attribute = %v, want completed", state)
	}

	steps := findMetric(t, rm, "workflow.step.executions")
	stepSum, ok := steps.Data.(metricdata.Sum[int64])
	if !ok || len(stepSum.DataPoints) != 1 || stepSum.DataPoints[0].Value != 1 {
		t.Errorf("workflow.step.executions data = %#v, want one point of 1", steps.Data)
	}

	duration := findMetric(t, rm, "workflow.duration")
	hist, ok := duration.Data.(metricdata.Histogram[float64])
	if !ok || len(hist.DataPoints) != 1 {
		t.Fatalf("workflow.duration data = %#v, want one histogram point", duration.Data)
	}
	if got := hist.DataPoints[0].Sum; got != 80 {
		t.Errorf("workflow duration = %vms, want 80ms", got)
	}

	stepDuration := findMetric(t, rm, "workflow.step.duration")
	stepHist, ok := stepDuration.Data.(metricdata.Histogram[float64])
	if !ok || len(stepHist.DataPoints) != 1 {
		t.Fatalf("workflow.step.duration data = %#v, want one histogram point", stepDuration.Data)
	}
	if got := stepHist.DataPoints[0].Sum; got != 50 {
		t.Errorf("step duration = %vms, want 50ms", got)
	}
}

func TestWatchEventsFailureStates(t *testing.T) {
	reader := sdkmetric.NewManualReader()
	otel.SetMeterProvider(sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader)))
	inst, err := newInstruments()
	if err != nil {
		t.Fatal(err)
	}

	events := make(chan tandem.Event, 4)
	done := make(chan struct{})
	go func() {
		WatchEvents(context.Background(), events, inst)
		close(done)
	}()

	base := time.Now()
	events <- tandem.Event{Type: tandem.EventWorkflowStarted, WorkflowID: "wf", At: base}
	events <- tandem.Event{Type: tandem.EventStepStarted, WorkflowID: "wf", StepID: "s1", AgentID: "a", At: base}
	events <- tandem.Event{Type: tandem.EventStepFailed, WorkflowID: "wf", StepID: "s1", AgentID: "a", At: base.Add(time.Millisecond)}
	events <- tandem.Event{Type: tandem.EventWorkflowFailed, WorkflowID: "wf", At: base.Add(2 * time.Millisecond)}
	close(events)
	<-done

	var rm metricdata.ResourceMetrics
	if err := reader.Collect(context.Background(), &rm); err != nil {
		t.Fatal(err)
	}

	executions := findMetric(t, rm, "workflow.executions")
	sum := executions.Data.(metricdata.Sum[int64])
	if state, ok := sum.DataPoints[0].Attributes.Value(AttrWorkflowState); !ok || state.AsString() != "failed" {
		t.Errorf("workflow.state attribute = %v, want failed", state)
	}

	steps := findMetric(t, rm, "workflow.step.executions")
	stepSum := steps.Data.(metricdata.Sum[int64])
	if status, ok := stepSum.DataPoints[0].Attributes.Value(attribute.Key("status")); !ok || status.AsString() != "error" {
		t.Errorf("step status attribute = %v, want error", status)
	}
}
