package tandem

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"time"
)

// LLMOption configures an LLM-backed agent.
type LLMOption func(*llmAgent)

// WithSystemInstruction sets the system instruction sent with every call.
func WithSystemInstruction(s string) LLMOption {
	return func(a *llmAgent) { a.systemInstruction = s }
}

// WithTemperature sets the sampling temperature.
func WithTemperature(t float64) LLMOption {
	return func(a *llmAgent) { a.temperature = Temp(t) }
}

// WithMaxOutputTokens bounds the response length.
func WithMaxOutputTokens(n int) LLMOption {
	return func(a *llmAgent) { a.maxOutputTokens = n }
}

// WithCapabilities overrides the agent's declared capability set.
func WithCapabilities(caps ...Capability) LLMOption {
	return func(a *llmAgent) { a.capabilities = caps }
}

// WithLLMLogger sets the agent's logger.
func WithLLMLogger(l *slog.Logger) LLMOption {
	return func(a *llmAgent) { a.logger = orNop(l) }
}

// WithLLMTracer sets the agent's tracer.
func WithLLMTracer(t Tracer) LLMOption {
	return func(a *llmAgent) { a.tracer = t }
}

// llmAgent wraps one external generation call per Process.
type llmAgent struct {
	agentCore
	gen               Generator
	systemInstruction string
	temperature       *float64
	maxOutputTokens   int
	logger            *slog.Logger
	tracer            Tracer
}

var _ Agent = (*llmAgent)(nil)

// NewLLMAgent builds an agent backed by an external generator. The prompt is
// assembled deterministically from the input's previous outputs, context
// variables, and content.
func NewLLMAgent(id, name, description string, gen Generator, opts ...LLMOption) Agent {
	a := &llmAgent{
		agentCore: agentCore{
			id:           id,
			name:         name,
			description:  description,
			capabilities: []Capability{CapTextGeneration, CapReasoning},
		},
		gen:    gen,
		logger: nopLogger,
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// CanHandle accepts any input with non-empty content.
func (a *llmAgent) CanHandle(input AgentInput) bool {
	return strings.TrimSpace(input.Content) != ""
}

func (a *llmAgent) Process(ctx context.Context, input AgentInput) (AgentOutput, error) {
	if a.gen == nil {
		return AgentOutput{}, &ErrConfiguration{Message: fmt.Sprintf("agent %q has no generator", a.id)}
	}
	if a.tracer != nil {
		var span Span
		ctx, span = a.tracer.Start(ctx, "llm.process",
			StringAttr("agent.id", a.id),
			StringAttr("provider", a.gen.Name()))
		defer span.End()
	}

	start := time.Now()
	req := GenerateRequest{
		Prompt:            assemblePrompt(input),
		SystemInstruction: a.systemInstruction,
		Temperature:       a.temperature,
		MaxOutputTokens:   a.maxOutputTokens,
	}
	resp, err := a.gen.Generate(ctx, req)
	if err != nil {
		a.logger.Error("generation failed", "agent_id", a.id, "error", err)
		return AgentOutput{}, err
	}
	if strings.TrimSpace(resp.Text) == "" {
		return AgentOutput{}, &ErrProcessing{Message: fmt.Sprintf("agent %q: generator returned empty response", a.id)}
	}

	out := NewOutput(a.id, resp.Text, confidenceForText(resp.Text))
	out.ProcessingTime = time.Since(start).Seconds()
	return out, nil
}

// assemblePrompt layers the prompt: prior outputs first, then context
// variables in sorted key order, then the task content verbatim.
func assemblePrompt(input AgentInput) string {
	var b strings.Builder

	if len(input.PreviousOutputs) > 0 {
		b.WriteString("Previous Context:\n")
		for _, o := range input.PreviousOutputs {
			fmt.Fprintf(&b, "[%s]: %s\n", o.AgentID, o.Content)
		}
		b.WriteString("\n")
	}

	if len(input.Context) > 0 {
		keys := make([]string, 0, len(input.Context))
		for k := range input.Context {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		b.WriteString("Context Variables:\n")
		for _, k := range keys {
			fmt.Fprintf(&b, "- %s: %s\n", k, input.Context[k].Text())
		}
		b.WriteString("\n")
	}

	b.WriteString("Task:\n")
	b.WriteString(input.Content)
	return b.String()
}

// confidenceForText maps response length to a heuristic confidence. Short
// answers earn less trust than developed ones.
func confidenceForText(text string) float64 {
	words := len(strings.Fields(text))
	switch {
	case words < 10:
		return 0.5
	case words < 50:
		return 0.7
	case words < 200:
		return 0.85
	default:
		return 0.9
	}
}

// --- specialisations ---

const (
	analysisInstruction = "You are an analytical agent. Structure every response into the sections " +
		"\"Key Findings\", \"Data Patterns\", \"Recommendations\", and \"Confidence Level\". " +
		"Ground each finding in the provided material."

	extractionInstruction = "You are a data extraction agent. Extract exactly the requested fields. " +
		"When a schema is provided, respond with JSON matching it and nothing else. " +
		"Never invent values for fields absent from the source."

	reviewInstruction = "You are a review agent. Identify errors, inconsistencies, and gaps in the " +
		"material under review. Score its overall quality from 0 to 10 and justify the score."

	boundaryInstruction = "You are a boundary validation agent. Assess whether the given input is safe " +
		"and appropriate to process. State your assessment and the reasons concisely."

	contextInstruction = "You are a context agent. Summarise the context carried in the input so a " +
		"downstream agent can proceed without re-reading the history."
)

// NewAnalysisAgent builds an LLM agent tuned for structured analysis
// (temperature 0.3).
func NewAnalysisAgent(id, name string, gen Generator, opts ...LLMOption) Agent {
	base := []LLMOption{
		WithSystemInstruction(analysisInstruction),
		WithTemperature(0.3),
		WithCapabilities(CapDataAnalysis, CapReasoning),
	}
	return NewLLMAgent(id, name, "analyses data and reports structured findings", gen, append(base, opts...)...)
}

// NewExtractionAgent builds an LLM agent tuned for faithful field extraction
// (temperature 0.1).
func NewExtractionAgent(id, name string, gen Generator, opts ...LLMOption) Agent {
	base := []LLMOption{
		WithSystemInstruction(extractionInstruction),
		WithTemperature(0.1),
		WithCapabilities(CapDocumentExtraction),
	}
	return NewLLMAgent(id, name, "extracts structured fields from documents", gen, append(base, opts...)...)
}

// NewReviewAgent builds an LLM agent tuned for quality review
// (temperature 0.5).
func NewReviewAgent(id, name string, gen Generator, opts ...LLMOption) Agent {
	base := []LLMOption{
		WithSystemInstruction(reviewInstruction),
		WithTemperature(0.5),
		WithCapabilities(CapReview, CapReasoning),
	}
	return NewLLMAgent(id, name, "reviews outputs for errors and quality", gen, append(base, opts...)...)
}

// NewBoundaryAgent builds the advisory safety gate the coordinator runs
// before a workflow when boundary checking is enabled.
func NewBoundaryAgent(id, name string, gen Generator, opts ...LLMOption) Agent {
	base := []LLMOption{
		WithSystemInstruction(boundaryInstruction),
		WithTemperature(0.2),
		WithCapabilities(CapBoundaryValidation),
	}
	return NewLLMAgent(id, name, "assesses whether an input is safe to process", gen, append(base, opts...)...)
}

// NewContextAgent builds the advisory context summariser the coordinator can
// run before a workflow's first step.
func NewContextAgent(id, name string, gen Generator, opts ...LLMOption) Agent {
	base := []LLMOption{
		WithSystemInstruction(contextInstruction),
		WithTemperature(0.4),
		WithCapabilities(CapReasoning),
	}
	return NewLLMAgent(id, name, "summarises carried context for downstream agents", gen, append(base, opts...)...)
}
