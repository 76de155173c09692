package tandem

import (
	"context"
)

// Capability declares a class of work an agent can perform. The set is
// closed; agents advertise a subset and must honor what they advertise
// in Process.
type Capability string

const (
	CapTextGeneration     Capability = "text-generation"
	CapImageGeneration    Capability = "image-generation"
	CapDocumentExtraction Capability = "document-extraction"
	CapDataAnalysis       Capability = "data-analysis"
	CapCodeGeneration     Capability = "code-generation"
	CapSearch             Capability = "search"
	CapReasoning          Capability = "reasoning"
	CapReview             Capability = "review"
	CapSelfArgumentation  Capability = "self-argumentation"
	CapBoundaryValidation Capability = "boundary-validation"
)

// Agent is an addressable processor that maps one input to one output.
// Implementations range from single LLM-backed agents (LLMAgent) to
// composers that coordinate children (Sequential, Parallel, Loop).
//
// Process must never mutate its input, and must be safe for concurrent
// callers as long as inputs are distinct.
type Agent interface {
	// ID returns the agent's stable identifier.
	ID() string
	// Name returns the agent's display name.
	Name() string
	// Description returns a human-readable description of what the agent does.
	Description() string
	// Capabilities returns the agent's declared capability set.
	Capabilities() []Capability
	// CanHandle reports whether the agent can process the given input.
	CanHandle(input AgentInput) bool
	// Process runs the agent on the input and returns a result.
	Process(ctx context.Context, input AgentInput) (AgentOutput, error)
}

// agentCore holds identity fields shared by every built-in agent type.
type agentCore struct {
	id           string
	name         string
	description  string
	capabilities []Capability
}

func (c *agentCore) ID() string                 { return c.id }
func (c *agentCore) Name() string               { return c.name }
func (c *agentCore) Description() string        { return c.description }
func (c *agentCore) Capabilities() []Capability { return c.capabilities }
