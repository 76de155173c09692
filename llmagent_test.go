package tandem

import (
	"context"
	"errors"
	"strings"
	"testing"
)

func TestAssemblePrompt(t *testing.T) {
	input := NewInput("summarize the findings")
	input.PreviousOutputs = []AgentOutput{
		{AgentID: "researcher", Content: "fact one"},
		{AgentID: "analyst", Content: "fact two"},
	}
	input.Context = map[string]Value{
		"topic": String("quarterly report"),
		"depth": Int(3),
	}

	want := "Previous Context:\n" +
		"[researcher]: fact one\n" +
		"[analyst]: fact two\n" +
		"\n" +
		"Context Variables:\n" +
		"- depth: 3\n" +
		"- topic: quarterly report\n" +
		"\n" +
		"Task:\n" +
		"summarize the findings"
	if got := assemblePrompt(input); got != want {
		t.Errorf("assemblePrompt =\n%q\nwant\n%q", got, want)
	}
}

func TestAssemblePromptBareInput(t *testing.T) {
	got := assemblePrompt(NewInput("just do it"))
	want := "Task:\njust do it"
	if got != want {
		t.Errorf("assemblePrompt = %q, want %q", got, want)
	}
}

func TestConfidenceForText(t *testing.T) {
	tests := []struct {
		words int
		want  float64
	}{
		{3, 0.5},
		{9, 0.5},
		{10, 0.7},
		{49, 0.7},
		{50, 0.85},
		{199, 0.85},
		{200, 0.9},
		{500, 0.9},
	}
	for _, tt := range tests {
		text := strings.TrimSpace(strings.Repeat("word ", tt.words))
		if got := confidenceForText(text); got != tt.want {
			t.Errorf("confidenceForText(%d words) = %v, want %v", tt.words, got, tt.want)
		}
	}
}

func TestLLMAgentProcess(t *testing.T) {
	gen := &fakeGenerator{responses: []GenerateResponse{{Text: "short answer"}}}
	agent := NewLLMAgent("llm", "writer", "writes text", gen,
		WithSystemInstruction("be brief"),
		WithTemperature(0.3),
	)

	out, err := agent.Process(context.Background(), NewInput("write"))
	if err != nil {
		t.Fatal(err)
	}
	if out.Content != "short answer" {
		t.Errorf("content = %q, want %q", out.Content, "short answer")
	}
	if out.Confidence != 0.5 {
		t.Errorf("confidence = %v, want 0.5", out.Confidence)
	}
	if out.AgentID != "llm" {
		t.Errorf("agent id = %q, want %q", out.AgentID, "llm")
	}

	req := gen.requests[0]
	if req.SystemInstruction != "be brief" {
		t.Errorf("system instruction = %q, want %q", req.SystemInstruction, "be brief")
	}
	if req.Temperature == nil || *req.Temperature != 0.3 {
		t.Errorf("temperature = %v, want 0.3", req.Temperature)
	}
}

func TestLLMAgentEmptyResponse(t *testing.T) {
	gen := &fakeGenerator{responses: []GenerateResponse{{Text: "   "}}}
	agent := NewLLMAgent("llm", "writer", "writes text", gen)

	_, err := agent.Process(context.Background(), NewInput("write"))
	var procErr *ErrProcessing
	if !errors.As(err, &procErr) {
		t.Fatalf("error = %v, want ErrProcessing", err)
	}
}

func TestLLMAgentPropagatesGeneratorError(t *testing.T) {
	cause := &ErrHTTP{Status: 429, Body: "quota"}
	gen := &fakeGenerator{errs: []error{cause}}
	agent := NewLLMAgent("llm", "writer", "writes text", gen)

	_, err := agent.Process(context.Background(), NewInput("write"))
	var httpErr *ErrHTTP
	if !errors.As(err, &httpErr) {
		t.Fatalf("error = %v, want ErrHTTP", err)
	}
}

func TestLLMAgentCanHandle(t *testing.T) {
	agent := NewLLMAgent("llm", "writer", "writes text", &fakeGenerator{})
	if agent.CanHandle(AgentInput{Content: "  "}) {
		t.Error("blank content should not be handled")
	}
	if !agent.CanHandle(AgentInput{Content: "x"}) {
		t.Error("non-empty content should be handled")
	}
}

func TestSpecialisationTemperatures(t *testing.T) {
	tests := []struct {
		name  string
		build func(Generator) Agent
		want  float64
	}{
		{"analysis", func(g Generator) Agent { return NewAnalysisAgent("a", "a", g) }, 0.3},
		{"extraction", func(g Generator) Agent { return NewExtractionAgent("e", "e", g) }, 0.1},
		{"review", func(g Generator) Agent { return NewReviewAgent("r", "r", g) }, 0.5},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			gen := &fakeGenerator{responses: []GenerateResponse{{Text: "ok"}}}
			agent := tt.build(gen)
			if _, err := agent.Process(context.Background(), NewInput("go")); err != nil {
				t.Fatal(err)
			}
			req := gen.requests[0]
			if req.Temperature == nil || *req.Temperature != tt.want {
				t.Errorf("temperature = %v, want %v", req.Temperature, tt.want)
			}
			if req.SystemInstruction == "" {
				t.Error("specialisation should carry a system instruction")
			}
		})
	}
}
