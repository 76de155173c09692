package tandem

import (
	"context"
	"errors"
	"math"
	"testing"
)

func TestSequentialChain(t *testing.T) {
	seq := NewSequential("seq", "chain", []Agent{
		newFakeAgent("a1", "ALPHA", 0.7),
		newFakeAgent("a2", "BETA", 0.85),
	})

	out, err := seq.Process(context.Background(), NewInput("go"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if out.Content != "ALPHA\n\nBETA" {
		t.Errorf("content = %q, want %q", out.Content, "ALPHA\n\nBETA")
	}
	if math.Abs(out.Confidence-0.775) > 1e-9 {
		t.Errorf("confidence = %v, want 0.775", out.Confidence)
	}
	count, _ := out.StructuredData["agent_count"].AsInt()
	if count != 2 {
		t.Errorf("agent_count = %d, want 2", count)
	}
	ids, _ := out.StructuredData["agent_ids"].AsList()
	if len(ids) != 2 {
		t.Fatalf("agent_ids length = %d, want 2", len(ids))
	}
	if id, _ := ids[0].AsString(); id != "a1" {
		t.Errorf("agent_ids[0] = %q, want %q", id, "a1")
	}
}

func TestSequentialSumsChildProcessingTimes(t *testing.T) {
	timed := func(id string, seconds float64) *fakeAgent {
		a := newFakeAgent(id, id, 0.5)
		a.process = func(context.Context, AgentInput) (AgentOutput, error) {
			out := NewOutput(id, id, 0.5)
			out.ProcessingTime = seconds
			return out, nil
		}
		return a
	}

	seq := NewSequential("seq", "timed", []Agent{
		timed("a1", 0.25),
		timed("a2", 0.5),
	})
	out, err := seq.Process(context.Background(), NewInput("go"))
	if err != nil {
		t.Fatal(err)
	}
	if out.ProcessingTime != 0.75 {
		t.Errorf("processing time = %v, want the child sum 0.75", out.ProcessingTime)
	}
}

func TestSequentialPassesOutputsForward(t *testing.T) {
	second := newFakeAgent("a2", "", 0.9)
	second.process = func(_ context.Context, input AgentInput) (AgentOutput, error) {
		last, ok := input.LastOutput()
		if !ok {
			t.Error("second child should see the first child's output")
		} else if last.AgentID != "a1" {
			t.Errorf("last output agent = %q, want %q", last.AgentID, "a1")
		}
		return NewOutput("a2", "done", 0.9), nil
	}

	seq := NewSequential("seq", "chain", []Agent{
		newFakeAgent("a1", "first", 0.7),
		second,
	})
	if _, err := seq.Process(context.Background(), NewInput("go")); err != nil {
		t.Fatal(err)
	}
}

func TestSequentialStopOnError(t *testing.T) {
	failing := newFakeAgent("bad", "", 0)
	failing.err = errors.New("boom")
	last := newFakeAgent("last", "unreached", 0.9)

	seq := NewSequential("seq", "chain", []Agent{failing, last})
	_, err := seq.Process(context.Background(), NewInput("go"))

	var childErr *ErrChildAgent
	if !errors.As(err, &childErr) {
		t.Fatalf("error = %v, want ErrChildAgent", err)
	}
	if childErr.AgentID != "bad" {
		t.Errorf("AgentID = %q, want %q", childErr.AgentID, "bad")
	}
	if last.calls.Load() != 0 {
		t.Error("later children should not run after a stop-on-error failure")
	}
}

func TestSequentialLenientAbsorbsFailures(t *testing.T) {
	failing := newFakeAgent("bad", "", 0)
	failing.err = errors.New("boom")

	seq := NewSequential("seq", "chain",
		[]Agent{failing, newFakeAgent("ok", "fine", 0.8)},
		WithStopOnError(false),
	)
	out, err := seq.Process(context.Background(), NewInput("go"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if out.Content != "fine" {
		t.Errorf("content = %q, want %q", out.Content, "fine")
	}
	count, _ := out.StructuredData["agent_count"].AsInt()
	if count != 1 {
		t.Errorf("agent_count = %d, want 1", count)
	}
}

func TestSequentialSkipsNonHandlingChildren(t *testing.T) {
	skipped := newFakeAgent("skip", "never", 0.9)
	skipped.canHandle = false

	seq := NewSequential("seq", "chain", []Agent{
		skipped,
		newFakeAgent("ok", "ran", 0.8),
	})
	out, err := seq.Process(context.Background(), NewInput("go"))
	if err != nil {
		t.Fatal(err)
	}
	if out.Content != "ran" {
		t.Errorf("content = %q, want %q", out.Content, "ran")
	}
	if skipped.calls.Load() != 0 {
		t.Error("non-handling child should not be invoked")
	}
}

func TestSequentialEmptyChildren(t *testing.T) {
	seq := NewSequential("seq", "empty", nil)
	if seq.CanHandle(NewInput("x")) {
		t.Error("CanHandle should be false with no children")
	}
	_, err := seq.Process(context.Background(), NewInput("x"))
	var cfgErr *ErrConfiguration
	if !errors.As(err, &cfgErr) {
		t.Fatalf("error = %v, want ErrConfiguration", err)
	}
}
