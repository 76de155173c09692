package tandem

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"strings"
	"time"
)

// exitKind tags an ExitCondition variant.
type exitKind int

const (
	exitIterations exitKind = iota
	exitConfidence
	exitConvergence
	exitCustom
)

// ExitCondition decides when a loop composer may stop. Conditions are only
// evaluated once MinIterations have completed.
type ExitCondition struct {
	kind       exitKind
	iterations int
	threshold  float64
	epsilon    float64
	name       string
}

// ExitAfterIterations stops the loop once k iterations have run.
func ExitAfterIterations(k int) ExitCondition {
	return ExitCondition{kind: exitIterations, iterations: k}
}

// ExitOnConfidence stops the loop once the last iteration's aggregated
// confidence reaches t.
func ExitOnConfidence(t float64) ExitCondition {
	return ExitCondition{kind: exitConfidence, threshold: t}
}

// ExitOnConvergence stops the loop once the last two iteration confidences
// differ by less than epsilon.
func ExitOnConvergence(epsilon float64) ExitCondition {
	return ExitCondition{kind: exitConvergence, epsilon: epsilon}
}

// ExitCustom names an externally-evaluated condition. The runtime has no
// evaluator for it, so it never triggers; MaxIterations bounds the loop.
func ExitCustom(name string) ExitCondition {
	return ExitCondition{kind: exitCustom, name: name}
}

// satisfied reports whether the condition holds after the given completed
// iteration count and confidence trend.
func (c ExitCondition) satisfied(completed int, trend []float64) bool {
	switch c.kind {
	case exitIterations:
		return completed >= c.iterations
	case exitConfidence:
		return len(trend) > 0 && trend[len(trend)-1] >= c.threshold
	case exitConvergence:
		if len(trend) < 2 {
			return false
		}
		return math.Abs(trend[len(trend)-1]-trend[len(trend)-2]) < c.epsilon
	default:
		return false
	}
}

// LoopOption configures a loop composer.
type LoopOption func(*loopAgent)

// WithLoopDescription sets the composer's description.
func WithLoopDescription(d string) LoopOption {
	return func(l *loopAgent) { l.description = d }
}

// WithMinIterations sets the number of iterations that must complete before
// exit conditions are evaluated. Default 1.
func WithMinIterations(n int) LoopOption {
	return func(l *loopAgent) { l.minIterations = n }
}

// WithMaxIterations bounds the loop regardless of exit conditions. Default 10.
func WithMaxIterations(n int) LoopOption {
	return func(l *loopAgent) { l.maxIterations = n }
}

// WithExitCondition sets the loop's exit condition. Default is never, so the
// loop runs exactly MaxIterations.
func WithExitCondition(c ExitCondition) LoopOption {
	return func(l *loopAgent) {
		l.exit = c
		l.hasExit = true
	}
}

// WithLoopLogger sets the composer's logger.
func WithLoopLogger(lg *slog.Logger) LoopOption {
	return func(l *loopAgent) { l.logger = orNop(lg) }
}

// WithLoopTracer sets the composer's tracer.
func WithLoopTracer(t Tracer) LoopOption {
	return func(l *loopAgent) { l.tracer = t }
}

// loopAgent repeatedly runs its children in sequence until an exit condition
// is met or MaxIterations is reached.
type loopAgent struct {
	agentCore
	children      []Agent
	minIterations int
	maxIterations int
	exit          ExitCondition
	hasExit       bool
	logger        *slog.Logger
	tracer        Tracer
}

var _ Agent = (*loopAgent)(nil)

// NewLoop builds a composer that runs its children in sequence once per
// iteration, feeding each iteration's result into the next. Every iteration
// input carries the original content plus context keys "iteration" (1-based),
// "previous_iterations" (prior iteration contents), and "confidence_trend".
func NewLoop(id, name string, children []Agent, opts ...LoopOption) Agent {
	l := &loopAgent{
		agentCore: agentCore{
			id:          id,
			name:        name,
			description: "runs child agents in an iterative refinement loop",
		},
		children:      children,
		minIterations: 1,
		maxIterations: 10,
		logger:        nopLogger,
	}
	for _, opt := range opts {
		opt(l)
	}
	if l.maxIterations < l.minIterations {
		l.maxIterations = l.minIterations
	}
	l.capabilities = unionCapabilities(children)
	return l
}

// NewSelfArgue builds the iterative-refinement loop over a single child:
// at least cycles iterations (default 5 when cycles <= 0), at most cycles+2,
// stopping early once confidence reaches 0.95.
func NewSelfArgue(id, name string, child Agent, cycles int) Agent {
	if cycles <= 0 {
		cycles = 5
	}
	return NewLoop(id, name, []Agent{child},
		WithLoopDescription("argues against its own output until confident"),
		WithMinIterations(cycles),
		WithMaxIterations(cycles+2),
		WithExitCondition(ExitOnConfidence(0.95)),
	)
}

// CanHandle reports whether at least one child can handle the input.
func (l *loopAgent) CanHandle(input AgentInput) bool {
	for _, c := range l.children {
		if c.CanHandle(input) {
			return true
		}
	}
	return false
}

func (l *loopAgent) Process(ctx context.Context, input AgentInput) (AgentOutput, error) {
	if len(l.children) == 0 {
		return AgentOutput{}, &ErrConfiguration{Message: fmt.Sprintf("loop agent %q has no children", l.id)}
	}
	if l.tracer != nil {
		var span Span
		ctx, span = l.tracer.Start(ctx, "loop.process",
			StringAttr("agent.id", l.id),
			IntAttr("max_iterations", l.maxIterations))
		defer span.End()
	}

	start := time.Now()
	var (
		iterOutputs []AgentOutput
		trend       []float64
	)

	for iteration := 1; iteration <= l.maxIterations; iteration++ {
		if completed := iteration - 1; completed >= l.minIterations && l.hasExit && l.exit.satisfied(completed, trend) {
			break
		}
		if err := ctx.Err(); err != nil {
			return AgentOutput{}, err
		}

		out, err := l.runIteration(ctx, input, iteration, iterOutputs, trend)
		if err != nil {
			return AgentOutput{}, err
		}
		iterOutputs = append(iterOutputs, out)
		trend = append(trend, out.Confidence)

		l.logger.Debug("loop iteration completed",
			"loop_id", l.id,
			"iteration", iteration,
			"confidence", out.Confidence)
	}
	// The exit condition may first hold after the final in-budget iteration.
	return l.compose(iterOutputs, trend, time.Since(start)), nil
}

// runIteration executes all children in sequence once. The iteration input
// layers loop context keys over the original input; children after the first
// additionally see the iteration's earlier child outputs.
func (l *loopAgent) runIteration(ctx context.Context, input AgentInput, iteration int, prior []AgentOutput, trend []float64) (AgentOutput, error) {
	prevContents := make([]Value, len(prior))
	for i, o := range prior {
		prevContents[i] = String(o.Content)
	}
	trendVals := make([]Value, len(trend))
	for i, c := range trend {
		trendVals[i] = Float(c)
	}

	current := input.
		WithContext("iteration", Int(int64(iteration))).
		WithContext("previous_iterations", List(prevContents...)).
		WithContext("confidence_trend", List(trendVals...))

	var outputs []AgentOutput
	for _, child := range l.children {
		if !child.CanHandle(current) {
			l.logger.Warn("skipping child that cannot handle input",
				"loop_id", l.id,
				"child_id", child.ID(),
				"iteration", iteration)
			continue
		}
		out, err := child.Process(ctx, current)
		if err != nil {
			return AgentOutput{}, &ErrChildAgent{AgentID: child.ID(), Err: err}
		}
		outputs = append(outputs, out)
		current = current.Derive(out)
	}
	if len(outputs) == 0 {
		return AgentOutput{}, &ErrProcessing{Message: fmt.Sprintf("iteration %d produced no output", iteration)}
	}

	parts := make([]string, len(outputs))
	for i, o := range outputs {
		parts[i] = o.Content
	}
	iterOut := NewOutput(l.id, strings.Join(parts, "\n\n"), meanConfidence(outputs))
	for _, o := range outputs {
		iterOut.ProcessingTime += o.ProcessingTime
	}
	return iterOut, nil
}

// compose folds the iteration outputs into the final result: the last
// iteration's content and confidence, with the full trend attached.
func (l *loopAgent) compose(iterations []AgentOutput, trend []float64, elapsed time.Duration) AgentOutput {
	if len(iterations) == 0 {
		out := NewOutput(l.id, "", 0)
		out.ProcessingTime = elapsed.Seconds()
		out.StructuredData = map[string]Value{
			"total_iterations": Int(0),
		}
		return out
	}

	last := iterations[len(iterations)-1]
	trendVals := make([]Value, len(trend))
	for i, c := range trend {
		trendVals[i] = Float(c)
	}
	out := NewOutput(l.id, last.Content, last.Confidence)
	out.ProcessingTime = elapsed.Seconds()
	out.StructuredData = map[string]Value{
		"total_iterations": Int(int64(len(iterations))),
		"confidence_trend": List(trendVals...),
	}
	return out
}
