package tandem

import (
	"context"
	"sync/atomic"
)

// fakeAgent is a scriptable Agent for composer and coordinator tests.
type fakeAgent struct {
	agentCore
	canHandle bool
	content   string
	conf      float64
	structure map[string]Value
	err       error
	// process overrides the canned behavior when set.
	process func(ctx context.Context, input AgentInput) (AgentOutput, error)
	calls   atomic.Int64
}

func newFakeAgent(id, content string, conf float64) *fakeAgent {
	return &fakeAgent{
		agentCore: agentCore{id: id, name: id, capabilities: []Capability{CapTextGeneration}},
		canHandle: true,
		content:   content,
		conf:      conf,
	}
}

func (f *fakeAgent) CanHandle(AgentInput) bool { return f.canHandle }

func (f *fakeAgent) Process(ctx context.Context, input AgentInput) (AgentOutput, error) {
	f.calls.Add(1)
	if f.process != nil {
		return f.process(ctx, input)
	}
	if f.err != nil {
		return AgentOutput{}, f.err
	}
	out := NewOutput(f.id, f.content, f.conf)
	out.StructuredData = f.structure
	return out, nil
}

// fakeGenerator returns scripted responses in call order, repeating the last
// one when exhausted.
type fakeGenerator struct {
	responses []GenerateResponse
	errs      []error
	requests  []GenerateRequest
	calls     int
}

func (g *fakeGenerator) Name() string { return "fake" }

func (g *fakeGenerator) Generate(_ context.Context, req GenerateRequest) (GenerateResponse, error) {
	g.requests = append(g.requests, req)
	i := g.calls
	g.calls++
	if i < len(g.errs) && g.errs[i] != nil {
		return GenerateResponse{}, g.errs[i]
	}
	if len(g.responses) == 0 {
		return GenerateResponse{}, nil
	}
	if i >= len(g.responses) {
		i = len(g.responses) - 1
	}
	return g.responses[i], nil
}
