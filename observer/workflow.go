package observer

import (
	"context"
	"time"

	"github.com/narwanda/tandem"

	"go.opentelemetry.io/otel/attribute"
	otellog "go.opentelemetry.io/otel/log"
	"go.opentelemetry.io/otel/metric"
)

// WatchEvents drains a coordinator's event stream and records execution
// counts and durations for workflows and steps. It returns when the stream
// is closed or ctx is cancelled, so run it in its own goroutine:
//
//	go observer.WatchEvents(ctx, c.Events(), inst)
func WatchEvents(ctx context.Context, events <-chan tandem.Event, inst *Instruments) {
	w := &eventWatcher{
		inst:           inst,
		workflowStarts: make(map[string]time.Time),
		stepStarts:     make(map[string]time.Time),
	}
	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-events:
			if !ok {
				return
			}
			w.record(ctx, ev)
		}
	}
}

// eventWatcher tracks start instants per workflow and step so terminal
// events can be turned into durations.
type eventWatcher struct {
	inst           *Instruments
	workflowStarts map[string]time.Time
	stepStarts     map[string]time.Time
}

func (w *eventWatcher) record(ctx context.Context, ev tandem.Event) {
	switch ev.Type {
	case tandem.EventWorkflowStarted:
		w.workflowStarts[ev.WorkflowID] = ev.At
	case tandem.EventWorkflowCompleted, tandem.EventWorkflowFailed, tandem.EventWorkflowCancelled:
		w.recordWorkflowEnd(ctx, ev)
	case tandem.EventStepStarted:
		w.stepStarts[stepKey(ev)] = ev.At
	case tandem.EventStepCompleted, tandem.EventStepFailed:
		w.recordStepEnd(ctx, ev)
	}
}

func (w *eventWatcher) recordWorkflowEnd(ctx context.Context, ev tandem.Event) {
	state := workflowState(ev.Type)
	attrs := metric.WithAttributes(
		AttrWorkflowState.String(state),
	)
	w.inst.WorkflowExecutions.Add(ctx, 1, attrs)

	var durationMs float64
	if start, ok := w.workflowStarts[ev.WorkflowID]; ok {
		durationMs = float64(ev.At.Sub(start).Milliseconds())
		w.inst.WorkflowDuration.Record(ctx, durationMs, attrs)
		delete(w.workflowStarts, ev.WorkflowID)
	}

	var rec otellog.Record
	rec.SetSeverity(otellog.SeverityInfo)
	rec.SetBody(otellog.StringValue("workflow finished"))
	rec.AddAttributes(
		otellog.String("workflow.id", ev.WorkflowID),
		otellog.String("workflow.state", state),
		otellog.Float64("workflow.duration_ms", durationMs),
	)
	w.inst.Logger.Emit(ctx, rec)
}

func (w *eventWatcher) recordStepEnd(ctx context.Context, ev tandem.Event) {
	status := "ok"
	if ev.Type == tandem.EventStepFailed {
		status = "error"
	}
	attrs := metric.WithAttributes(
		AttrStepID.String(ev.StepID),
		AttrAgentID.String(ev.AgentID),
		attribute.String("status", status),
	)
	w.inst.StepExecutions.Add(ctx, 1, attrs)

	key := stepKey(ev)
	if start, ok := w.stepStarts[key]; ok {
		w.inst.StepDuration.Record(ctx, float64(ev.At.Sub(start).Milliseconds()), attrs)
		delete(w.stepStarts, key)
	}
}

func stepKey(ev tandem.Event) string { return ev.WorkflowID + "/" + ev.StepID }

// workflowState maps a terminal event type to its state attribute value.
func workflowState(t tandem.EventType) string {
	switch t {
	case tandem.EventWorkflowFailed:
		return "failed"
	case tandem.EventWorkflowCancelled:
		return "cancelled"
	default:
		return "completed"
	}
}
