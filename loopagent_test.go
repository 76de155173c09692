package tandem

import (
	"context"
	"errors"
	"testing"
)

// confidenceSequenceAgent returns a fixed content with scripted confidences
// per call, repeating the last one when exhausted.
func confidenceSequenceAgent(id string, confs ...float64) *fakeAgent {
	a := newFakeAgent(id, "draft", 0)
	calls := 0
	a.process = func(context.Context, AgentInput) (AgentOutput, error) {
		c := confs[len(confs)-1]
		if calls < len(confs) {
			c = confs[calls]
		}
		calls++
		return NewOutput(id, "draft", c), nil
	}
	return a
}

func TestLoopStopsOnConfidence(t *testing.T) {
	child := confidenceSequenceAgent("c", 0.60, 0.72, 0.80, 0.88, 0.96, 0.96)
	loop := NewLoop("loop", "refine", []Agent{child},
		WithMinIterations(1),
		WithMaxIterations(10),
		WithExitCondition(ExitOnConfidence(0.95)),
	)

	out, err := loop.Process(context.Background(), NewInput("go"))
	if err != nil {
		t.Fatal(err)
	}
	if out.Confidence != 0.96 {
		t.Errorf("confidence = %v, want 0.96", out.Confidence)
	}
	total, _ := out.StructuredData["total_iterations"].AsInt()
	if total != 5 {
		t.Errorf("total_iterations = %d, want 5", total)
	}
	trend, _ := out.StructuredData["confidence_trend"].AsList()
	if len(trend) != 5 {
		t.Errorf("confidence_trend length = %d, want 5", len(trend))
	}
}

func TestLoopIterationCountCondition(t *testing.T) {
	tests := []struct {
		k, max, want int
	}{
		{3, 10, 3},
		{12, 4, 4},
		{1, 10, 1},
	}
	for _, tt := range tests {
		child := newFakeAgent("c", "x", 0.5)
		loop := NewLoop("loop", "count", []Agent{child},
			WithMinIterations(1),
			WithMaxIterations(tt.max),
			WithExitCondition(ExitAfterIterations(tt.k)),
		)
		out, err := loop.Process(context.Background(), NewInput("go"))
		if err != nil {
			t.Fatal(err)
		}
		total, _ := out.StructuredData["total_iterations"].AsInt()
		if int(total) != tt.want {
			t.Errorf("iterations(%d) max=%d: total_iterations = %d, want %d", tt.k, tt.max, total, tt.want)
		}
	}
}

func TestLoopConvergence(t *testing.T) {
	child := confidenceSequenceAgent("c", 0.50, 0.70, 0.71)
	loop := NewLoop("loop", "converge", []Agent{child},
		WithMinIterations(1),
		WithMaxIterations(10),
		WithExitCondition(ExitOnConvergence(0.05)),
	)
	out, err := loop.Process(context.Background(), NewInput("go"))
	if err != nil {
		t.Fatal(err)
	}
	total, _ := out.StructuredData["total_iterations"].AsInt()
	if total != 3 {
		t.Errorf("total_iterations = %d, want 3", total)
	}
}

func TestLoopCustomConditionNeverSatisfied(t *testing.T) {
	child := newFakeAgent("c", "x", 0.99)
	loop := NewLoop("loop", "custom", []Agent{child},
		WithMinIterations(1),
		WithMaxIterations(4),
		WithExitCondition(ExitCustom("external")),
	)
	out, err := loop.Process(context.Background(), NewInput("go"))
	if err != nil {
		t.Fatal(err)
	}
	total, _ := out.StructuredData["total_iterations"].AsInt()
	if total != 4 {
		t.Errorf("total_iterations = %d, want maxIterations 4", total)
	}
}

func TestLoopZeroIterations(t *testing.T) {
	child := newFakeAgent("c", "never", 0.9)
	loop := NewLoop("loop", "zero", []Agent{child},
		WithMinIterations(0),
		WithMaxIterations(10),
		WithExitCondition(ExitAfterIterations(0)),
	)
	out, err := loop.Process(context.Background(), NewInput("go"))
	if err != nil {
		t.Fatal(err)
	}
	if out.Confidence != 0 {
		t.Errorf("confidence = %v, want 0", out.Confidence)
	}
	if out.Content != "" {
		t.Errorf("content = %q, want empty", out.Content)
	}
	if child.calls.Load() != 0 {
		t.Error("child should not run with iterations(0)")
	}
}

func TestLoopInjectsIterationContext(t *testing.T) {
	seen := make([]int64, 0, 3)
	child := newFakeAgent("c", "", 0)
	child.process = func(_ context.Context, input AgentInput) (AgentOutput, error) {
		iter, _ := input.Context["iteration"].AsInt()
		seen = append(seen, iter)
		prev, _ := input.Context["previous_iterations"].AsList()
		if int64(len(prev)) != iter-1 {
			t.Errorf("iteration %d: previous_iterations length = %d, want %d", iter, len(prev), iter-1)
		}
		trend, _ := input.Context["confidence_trend"].AsList()
		if int64(len(trend)) != iter-1 {
			t.Errorf("iteration %d: confidence_trend length = %d, want %d", iter, len(trend), iter-1)
		}
		return NewOutput("c", "x", 0.5), nil
	}

	loop := NewLoop("loop", "ctx", []Agent{child},
		WithMinIterations(1),
		WithMaxIterations(3),
	)
	if _, err := loop.Process(context.Background(), NewInput("go")); err != nil {
		t.Fatal(err)
	}
	if len(seen) != 3 || seen[0] != 1 || seen[2] != 3 {
		t.Errorf("iteration numbers = %v, want [1 2 3]", seen)
	}
}

func TestLoopChildFailureAborts(t *testing.T) {
	child := newFakeAgent("c", "", 0)
	child.err = errors.New("boom")
	loop := NewLoop("loop", "fail", []Agent{child}, WithMaxIterations(3))

	_, err := loop.Process(context.Background(), NewInput("go"))
	var childErr *ErrChildAgent
	if !errors.As(err, &childErr) {
		t.Fatalf("error = %v, want ErrChildAgent", err)
	}
	if childErr.AgentID != "c" {
		t.Errorf("AgentID = %q, want the failing child %q", childErr.AgentID, "c")
	}
}

func TestSelfArgueContract(t *testing.T) {
	// High confidence from the start must not cut the loop short of the
	// cycle budget; it exits right after the budget is met.
	child := confidenceSequenceAgent("c", 0.96)
	loop := NewSelfArgue("argue", "self-argue", child, 0)

	out, err := loop.Process(context.Background(), NewInput("claim"))
	if err != nil {
		t.Fatal(err)
	}
	total, _ := out.StructuredData["total_iterations"].AsInt()
	if total != 5 {
		t.Errorf("total_iterations = %d, want the default cycle budget 5", total)
	}
}

func TestSelfArgueRunsExtraCyclesWhenUnconvinced(t *testing.T) {
	child := confidenceSequenceAgent("c", 0.5)
	loop := NewSelfArgue("argue", "self-argue", child, 3)

	out, err := loop.Process(context.Background(), NewInput("claim"))
	if err != nil {
		t.Fatal(err)
	}
	total, _ := out.StructuredData["total_iterations"].AsInt()
	if total != 5 {
		t.Errorf("total_iterations = %d, want cycles+2 = 5", total)
	}
}

func TestLoopEmptyChildren(t *testing.T) {
	loop := NewLoop("loop", "empty", nil)
	if loop.CanHandle(NewInput("x")) {
		t.Error("CanHandle should be false with no children")
	}
	_, err := loop.Process(context.Background(), NewInput("x"))
	var cfgErr *ErrConfiguration
	if !errors.As(err, &cfgErr) {
		t.Fatalf("error = %v, want ErrConfiguration", err)
	}
}
