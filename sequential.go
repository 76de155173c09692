package tandem

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
)

// SequentialOption configures a sequential composer.
type SequentialOption func(*sequentialAgent)

// WithSequentialDescription sets the composer's description.
func WithSequentialDescription(d string) SequentialOption {
	return func(s *sequentialAgent) { s.description = d }
}

// WithPassOutputs controls whether each child receives the accumulated
// outputs of the children before it. Default true.
func WithPassOutputs(v bool) SequentialOption {
	return func(s *sequentialAgent) { s.passOutputs = v }
}

// WithStopOnError controls whether a child failure aborts the pipeline.
// Default true. When false, failed children are skipped and the remaining
// children still run.
func WithStopOnError(v bool) SequentialOption {
	return func(s *sequentialAgent) { s.stopOnError = v }
}

// WithSequentialLogger sets the composer's logger.
func WithSequentialLogger(l *slog.Logger) SequentialOption {
	return func(s *sequentialAgent) { s.logger = orNop(l) }
}

// WithSequentialTracer sets the composer's tracer.
func WithSequentialTracer(t Tracer) SequentialOption {
	return func(s *sequentialAgent) { s.tracer = t }
}

// sequentialAgent runs its children one after another, threading each child's
// output into the next child's input.
type sequentialAgent struct {
	agentCore
	children    []Agent
	passOutputs bool
	stopOnError bool
	logger      *slog.Logger
	tracer      Tracer
}

var _ Agent = (*sequentialAgent)(nil)

// NewSequential builds a composer that runs children in order. Each child
// sees the original content plus, when PassOutputs is on, the outputs of the
// children before it. The composed output joins child contents with blank
// lines and averages their confidence.
func NewSequential(id, name string, children []Agent, opts ...SequentialOption) Agent {
	s := &sequentialAgent{
		agentCore: agentCore{
			id:          id,
			name:        name,
			description: "runs child agents in sequence",
		},
		children:    children,
		passOutputs: true,
		stopOnError: true,
		logger:      nopLogger,
	}
	for _, opt := range opts {
		opt(s)
	}
	s.capabilities = unionCapabilities(children)
	return s
}

// CanHandle reports whether at least one child can handle the input.
// A composer with no children handles nothing.
func (s *sequentialAgent) CanHandle(input AgentInput) bool {
	for _, c := range s.children {
		if c.CanHandle(input) {
			return true
		}
	}
	return false
}

func (s *sequentialAgent) Process(ctx context.Context, input AgentInput) (AgentOutput, error) {
	if len(s.children) == 0 {
		return AgentOutput{}, &ErrConfiguration{Message: fmt.Sprintf("sequential agent %q has no children", s.id)}
	}
	if s.tracer != nil {
		var span Span
		ctx, span = s.tracer.Start(ctx, "sequential.process",
			StringAttr("agent.id", s.id),
			IntAttr("children", len(s.children)))
		defer span.End()
	}

	current := input
	outputs := make([]AgentOutput, 0, len(s.children))

	for i, child := range s.children {
		if err := ctx.Err(); err != nil {
			return AgentOutput{}, err
		}
		if !child.CanHandle(current) {
			s.logger.Warn("skipping child that cannot handle input",
				"sequential_id", s.id,
				"child_id", child.ID(),
				"position", i)
			continue
		}
		out, err := child.Process(ctx, current)
		if err != nil {
			if s.stopOnError {
				return AgentOutput{}, &ErrChildAgent{AgentID: child.ID(), Err: err}
			}
			s.logger.Warn("child failed, continuing",
				"sequential_id", s.id,
				"child_id", child.ID(),
				"error", err)
			continue
		}
		outputs = append(outputs, out)
		if s.passOutputs {
			current = current.Derive(out)
		}
	}

	return s.compose(outputs), nil
}

// compose folds child outputs into one. Processing time is the sum of the
// surviving child times. With no surviving outputs the result carries zero
// confidence and an explanatory content line.
func (s *sequentialAgent) compose(outputs []AgentOutput) AgentOutput {
	out := NewOutput(s.id, "", meanConfidence(outputs))
	for _, o := range outputs {
		out.ProcessingTime += o.ProcessingTime
	}

	if len(outputs) == 0 {
		out.Content = "no child agents produced output"
		out.StructuredData = map[string]Value{
			"agent_count": Int(0),
		}
		return out
	}

	parts := make([]string, len(outputs))
	ids := make([]Value, len(outputs))
	for i, o := range outputs {
		parts[i] = o.Content
		ids[i] = String(o.AgentID)
	}
	out.Content = strings.Join(parts, "\n\n")
	out.StructuredData = map[string]Value{
		"agent_count": Int(int64(len(outputs))),
		"agent_ids":   List(ids...),
	}
	return out
}

// unionCapabilities merges child capability sets, preserving first-seen order.
func unionCapabilities(children []Agent) []Capability {
	seen := make(map[Capability]struct{})
	var caps []Capability
	for _, c := range children {
		for _, capability := range c.Capabilities() {
			if _, ok := seen[capability]; ok {
				continue
			}
			seen[capability] = struct{}{}
			caps = append(caps, capability)
		}
	}
	return caps
}
