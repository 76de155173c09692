package tandem

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"sync"
	"time"
)

// AggregationStrategy selects how a parallel composer folds child outputs
// into one.
type AggregationStrategy int

const (
	// AggregateConcatenate joins child contents as labeled blocks in child
	// declaration order. The default.
	AggregateConcatenate AggregationStrategy = iota
	// AggregateBestConfidence returns the single child output with the
	// highest confidence. Ties go to the earlier child.
	AggregateBestConfidence
	// AggregateMerge joins contents and namespaces every child's structured
	// data under "<agentID>.<key>".
	AggregateMerge
)

// String returns the lowercase name of the strategy.
func (s AggregationStrategy) String() string {
	switch s {
	case AggregateBestConfidence:
		return "best-confidence"
	case AggregateMerge:
		return "merge"
	default:
		return "concatenate"
	}
}

// ParallelOption configures a parallel composer.
type ParallelOption func(*parallelAgent)

// WithParallelDescription sets the composer's description.
func WithParallelDescription(d string) ParallelOption {
	return func(p *parallelAgent) { p.description = d }
}

// WithAggregation selects the output aggregation strategy.
func WithAggregation(s AggregationStrategy) ParallelOption {
	return func(p *parallelAgent) { p.strategy = s }
}

// WithMaxConcurrent caps how many children run at once. Zero or negative
// means no cap.
func WithMaxConcurrent(n int) ParallelOption {
	return func(p *parallelAgent) { p.maxConcurrent = n }
}

// WithFailFast makes the first child error cancel the remaining children and
// fail the composer. Default off: failed children are dropped from
// aggregation.
func WithFailFast(v bool) ParallelOption {
	return func(p *parallelAgent) { p.failFast = v }
}

// WithParallelLogger sets the composer's logger.
func WithParallelLogger(l *slog.Logger) ParallelOption {
	return func(p *parallelAgent) { p.logger = orNop(l) }
}

// WithParallelTracer sets the composer's tracer.
func WithParallelTracer(t Tracer) ParallelOption {
	return func(p *parallelAgent) { p.tracer = t }
}

// parallelAgent fans the same input out to every child concurrently and
// aggregates the results.
type parallelAgent struct {
	agentCore
	children      []Agent
	strategy      AggregationStrategy
	maxConcurrent int
	failFast      bool
	logger        *slog.Logger
	tracer        Tracer
}

var _ Agent = (*parallelAgent)(nil)

// NewParallel builds a composer that runs all children concurrently on the
// same input. Aggregation is stable: results are folded in child declaration
// order regardless of completion order.
func NewParallel(id, name string, children []Agent, opts ...ParallelOption) Agent {
	p := &parallelAgent{
		agentCore: agentCore{
			id:          id,
			name:        name,
			description: "runs child agents concurrently",
		},
		children: children,
		strategy: AggregateConcatenate,
		logger:   nopLogger,
	}
	for _, opt := range opts {
		opt(p)
	}
	p.capabilities = unionCapabilities(children)
	return p
}

// CanHandle reports whether at least one child can handle the input.
func (p *parallelAgent) CanHandle(input AgentInput) bool {
	for _, c := range p.children {
		if c.CanHandle(input) {
			return true
		}
	}
	return false
}

// indexedResult pairs a child's result with its declaration position so
// aggregation can restore order after concurrent completion.
type indexedResult struct {
	index  int
	output AgentOutput
	err    error
}

func (p *parallelAgent) Process(ctx context.Context, input AgentInput) (AgentOutput, error) {
	if len(p.children) == 0 {
		return AgentOutput{}, &ErrConfiguration{Message: fmt.Sprintf("parallel agent %q has no children", p.id)}
	}
	if p.tracer != nil {
		var span Span
		ctx, span = p.tracer.Start(ctx, "parallel.process",
			StringAttr("agent.id", p.id),
			IntAttr("children", len(p.children)),
			StringAttr("strategy", p.strategy.String()))
		defer span.End()
	}

	start := time.Now()
	results, firstFail := p.dispatch(ctx, input)

	var outputs []AgentOutput
	for i := range results {
		r := &results[i]
		if r.err != nil {
			p.logger.Warn("child failed",
				"parallel_id", p.id,
				"child_id", p.children[r.index].ID(),
				"error", r.err)
			continue
		}
		outputs = append(outputs, r.output)
	}

	if firstFail != nil {
		return AgentOutput{}, &ErrChildAgent{AgentID: p.children[firstFail.index].ID(), Err: firstFail.err}
	}
	if err := ctx.Err(); err != nil && len(outputs) == 0 {
		return AgentOutput{}, err
	}
	return p.aggregate(outputs, time.Since(start)), nil
}

// dispatch runs children with bounded concurrency and returns results sorted
// by child declaration index. Under fail-fast the first genuine child error
// is captured before the shared context is cancelled, so siblings that bail
// out with the cancellation can never be blamed for the failure.
func (p *parallelAgent) dispatch(ctx context.Context, input AgentInput) ([]indexedResult, *indexedResult) {
	runCtx := ctx
	var cancel context.CancelFunc
	var failOnce sync.Once
	var firstFail *indexedResult
	if p.failFast {
		runCtx, cancel = context.WithCancel(ctx)
		defer cancel()
	}
	fail := func(idx int, err error) {
		if cancel == nil {
			return
		}
		failOnce.Do(func() {
			firstFail = &indexedResult{index: idx, err: err}
			cancel()
		})
	}

	limit := p.maxConcurrent
	if limit <= 0 || limit > len(p.children) {
		limit = len(p.children)
	}
	sem := make(chan struct{}, limit)
	resultCh := make(chan indexedResult, len(p.children))

	var wg sync.WaitGroup
	for i, child := range p.children {
		wg.Add(1)
		go func(idx int, a Agent) {
			defer wg.Done()
			sem <- struct{}{}
			defer func() { <-sem }()

			if err := runCtx.Err(); err != nil {
				resultCh <- indexedResult{index: idx, err: err}
				return
			}
			if !a.CanHandle(input) {
				err := &ErrInvalidInput{Message: fmt.Sprintf("agent %q cannot handle input", a.ID())}
				fail(idx, err)
				resultCh <- indexedResult{index: idx, err: err}
				return
			}
			out, err := a.Process(runCtx, input)
			if err != nil {
				fail(idx, err)
			}
			resultCh <- indexedResult{index: idx, output: out, err: err}
		}(i, child)
	}
	wg.Wait()
	close(resultCh)

	results := make([]indexedResult, 0, len(p.children))
	for r := range resultCh {
		results = append(results, r)
	}
	sort.Slice(results, func(a, b int) bool { return results[a].index < results[b].index })
	return results, firstFail
}

// aggregate folds successful child outputs per the configured strategy.
// With no successes the result carries zero confidence and explains itself.
func (p *parallelAgent) aggregate(outputs []AgentOutput, elapsed time.Duration) AgentOutput {
	if len(outputs) == 0 {
		out := NewOutput(p.id, "all child agents failed", 0)
		out.ProcessingTime = elapsed.Seconds()
		out.StructuredData = map[string]Value{
			"agent_count": Int(0),
			"strategy":    String(p.strategy.String()),
		}
		return out
	}

	switch p.strategy {
	case AggregateBestConfidence:
		best := outputs[0]
		for _, o := range outputs[1:] {
			if o.Confidence > best.Confidence {
				best = o
			}
		}
		out := NewOutput(p.id, best.Content, best.Confidence)
		out.ProcessingTime = elapsed.Seconds()
		out.StructuredData = map[string]Value{
			"agent_count":    Int(int64(len(outputs))),
			"selected_agent": String(best.AgentID),
			"strategy":       String(p.strategy.String()),
		}
		return out

	case AggregateMerge:
		parts := make([]string, len(outputs))
		merged := map[string]Value{
			"agent_count": Int(int64(len(outputs))),
			"strategy":    String(p.strategy.String()),
		}
		for i, o := range outputs {
			parts[i] = o.Content
			for k, v := range o.StructuredData {
				merged[o.AgentID+"."+k] = v
			}
		}
		out := NewOutput(p.id, strings.Join(parts, "\n\n"), meanConfidence(outputs))
		out.ProcessingTime = elapsed.Seconds()
		out.StructuredData = merged
		return out

	default:
		parts := make([]string, len(outputs))
		ids := make([]Value, len(outputs))
		for i, o := range outputs {
			parts[i] = fmt.Sprintf("[%s]: %s", o.AgentID, o.Content)
			ids[i] = String(o.AgentID)
		}
		out := NewOutput(p.id, strings.Join(parts, "\n\n"), meanConfidence(outputs))
		out.ProcessingTime = elapsed.Seconds()
		out.StructuredData = map[string]Value{
			"agent_count": Int(int64(len(outputs))),
			"agent_ids":   List(ids...),
			"strategy":    String(p.strategy.String()),
		}
		return out
	}
}
