package tandem

import (
	"time"
)

// Priority orders inputs when callers queue work. It carries through
// metadata untouched by the runtime itself.
type Priority int

const (
	// PriorityLow marks background work.
	PriorityLow Priority = iota
	// PriorityNormal is the default.
	PriorityNormal
	// PriorityHigh marks latency-sensitive work.
	PriorityHigh
	// PriorityCritical marks work that must not be shed.
	PriorityCritical
)

// String returns the lowercase name of the priority.
func (p Priority) String() string {
	switch p {
	case PriorityLow:
		return "low"
	case PriorityHigh:
		return "high"
	case PriorityCritical:
		return "critical"
	default:
		return "normal"
	}
}

// InputMetadata carries bookkeeping attached to an AgentInput.
type InputMetadata struct {
	// Timestamp is when the input was constructed.
	Timestamp time.Time `json:"timestamp"`
	// Tags is a free-form label set.
	Tags []string `json:"tags,omitempty"`
	// Priority hints at scheduling urgency.
	Priority Priority `json:"priority"`
	// RetryCount is the current retry attempt for this input, 0 on first try.
	RetryCount int `json:"retry_count"`
	// MaxRetries bounds RetryCount.
	MaxRetries int `json:"max_retries"`
}

// AgentInput is one processing request. Inputs are immutable once
// constructed: successors are produced with Derive rather than mutation, so
// they are safe to share by reference across goroutines.
type AgentInput struct {
	// ID uniquely identifies the input.
	ID string `json:"id"`
	// Content is the primary textual payload.
	Content string `json:"content"`
	// Context carries named dynamic values available to the agent.
	Context map[string]Value `json:"context,omitempty"`
	// Metadata carries scheduling and retry bookkeeping.
	Metadata InputMetadata `json:"metadata"`
	// PreviousOutputs lists outputs produced earlier in the same workflow,
	// in production order.
	PreviousOutputs []AgentOutput `json:"previous_outputs,omitempty"`
}

// NewInput creates an AgentInput with a fresh ID, normal priority, and the
// given content.
func NewInput(content string) AgentInput {
	return AgentInput{
		ID:      NewID(),
		Content: content,
		Metadata: InputMetadata{
			Timestamp: time.Now(),
			Priority:  PriorityNormal,
		},
	}
}

// Derive returns a successor input: same content and metadata, a fresh ID,
// a copied context, and the given outputs appended to PreviousOutputs.
// The receiver is not modified.
func (in AgentInput) Derive(outputs ...AgentOutput) AgentInput {
	next := AgentInput{
		ID:       NewID(),
		Content:  in.Content,
		Metadata: in.Metadata,
	}
	if len(in.Context) > 0 {
		next.Context = make(map[string]Value, len(in.Context))
		for k, v := range in.Context {
			next.Context[k] = v
		}
	}
	next.PreviousOutputs = make([]AgentOutput, 0, len(in.PreviousOutputs)+len(outputs))
	next.PreviousOutputs = append(next.PreviousOutputs, in.PreviousOutputs...)
	next.PreviousOutputs = append(next.PreviousOutputs, outputs...)
	return next
}

// WithContext returns a copy of the input with the given key set in a copied
// context map. The receiver is not modified.
func (in AgentInput) WithContext(key string, v Value) AgentInput {
	next := in
	next.Context = make(map[string]Value, len(in.Context)+1)
	for k, cv := range in.Context {
		next.Context[k] = cv
	}
	next.Context[key] = v
	return next
}

// LastOutput returns the most recent previous output, or false when none exist.
func (in AgentInput) LastOutput() (AgentOutput, bool) {
	if len(in.PreviousOutputs) == 0 {
		return AgentOutput{}, false
	}
	return in.PreviousOutputs[len(in.PreviousOutputs)-1], true
}

// OutputMetadata carries bookkeeping attached to an AgentOutput.
type OutputMetadata struct {
	// Timestamp is when the output was produced.
	Timestamp time.Time `json:"timestamp"`
	// Tags is a free-form label set.
	Tags []string `json:"tags,omitempty"`
}

// AgentOutput is one processing result. Outputs are immutable values:
// composers synthesize new outputs from child outputs instead of mutating
// them, so they are safe to share by reference.
type AgentOutput struct {
	// ID uniquely identifies the output.
	ID string `json:"id"`
	// AgentID identifies the producing agent.
	AgentID string `json:"agent_id"`
	// Content is the textual result.
	Content string `json:"content"`
	// StructuredData carries named dynamic values alongside the text.
	StructuredData map[string]Value `json:"structured_data,omitempty"`
	// Confidence is the producer's self-assessed quality in [0, 1].
	Confidence float64 `json:"confidence"`
	// ProcessingTime is the wall-clock execution time in seconds.
	ProcessingTime float64 `json:"processing_time"`
	// Metadata carries production bookkeeping.
	Metadata OutputMetadata `json:"metadata"`
}

// NewOutput creates an AgentOutput with a fresh ID and the current timestamp.
func NewOutput(agentID, content string, confidence float64) AgentOutput {
	return AgentOutput{
		ID:         NewID(),
		AgentID:    agentID,
		Content:    content,
		Confidence: confidence,
		Metadata:   OutputMetadata{Timestamp: time.Now()},
	}
}

// meanConfidence returns the average confidence over outputs, 0 when empty.
func meanConfidence(outputs []AgentOutput) float64 {
	if len(outputs) == 0 {
		return 0
	}
	var sum float64
	for _, o := range outputs {
		sum += o.Confidence
	}
	return sum / float64(len(outputs))
}
