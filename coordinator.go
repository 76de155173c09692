package tandem

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"
)

// ErrWorkflowNotFound reports a control or status call naming an unknown
// workflow execution.
var ErrWorkflowNotFound = errors.New("workflow not found")

// CoordinatorOption configures a Coordinator.
type CoordinatorOption func(*Coordinator)

// WithCoordinatorLogger sets the coordinator's logger.
func WithCoordinatorLogger(l *slog.Logger) CoordinatorOption {
	return func(c *Coordinator) { c.logger = orNop(l) }
}

// WithCoordinatorTracer sets the coordinator's tracer.
func WithCoordinatorTracer(t Tracer) CoordinatorOption {
	return func(c *Coordinator) { c.tracer = t }
}

// WithBoundaryAgent attaches the advisory safety agent run before workflows
// that enable BoundaryCheck.
func WithBoundaryAgent(a Agent) CoordinatorOption {
	return func(c *Coordinator) { c.boundary = a }
}

// WithContextAgent attaches the advisory context summariser run before the
// first step of every workflow.
func WithContextAgent(a Agent) CoordinatorOption {
	return func(c *Coordinator) { c.contextAgent = a }
}

// WithReviewAgent attaches the review agent run after workflows that enable
// Review.
func WithReviewAgent(a Agent) CoordinatorOption {
	return func(c *Coordinator) { c.review = a }
}

// WithEventBuffer sets the event channel capacity. Default 64. When the
// buffer is full, events are dropped with a warning rather than blocking
// execution.
func WithEventBuffer(n int) CoordinatorOption {
	return func(c *Coordinator) { c.eventBuf = n }
}

// executionState pairs a live ExecutionContext with its own lock so control
// calls never contend with other workflows.
type executionState struct {
	mu sync.Mutex
	ec ExecutionContext
}

func (s *executionState) state() WorkflowState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.ec.State
}

func (s *executionState) setState(st WorkflowState) {
	s.mu.Lock()
	s.ec.State = st
	s.mu.Unlock()
}

// Coordinator runs workflows over registered agents, exposing control
// (pause, resume, cancel) and observability (events, status, metrics).
type Coordinator struct {
	mu           sync.RWMutex
	agents       map[string]Agent
	contexts     map[string]*executionState
	boundary     Agent
	contextAgent Agent
	review       Agent
	logger       *slog.Logger
	tracer       Tracer

	eventBuf int
	events   chan Event
	emitMu   sync.Mutex
}

// NewCoordinator builds an empty coordinator. Register agents before
// executing workflows that reference them.
func NewCoordinator(opts ...CoordinatorOption) *Coordinator {
	c := &Coordinator{
		agents:   make(map[string]Agent),
		contexts: make(map[string]*executionState),
		logger:   nopLogger,
		eventBuf: 64,
	}
	for _, opt := range opts {
		opt(c)
	}
	c.events = make(chan Event, c.eventBuf)
	return c
}

// RegisterAgent adds an agent by its ID. A duplicate ID overwrites the
// earlier registration.
func (c *Coordinator) RegisterAgent(a Agent) {
	c.mu.Lock()
	c.agents[a.ID()] = a
	c.mu.Unlock()
}

// Agent looks up a registered agent by ID.
func (c *Coordinator) Agent(id string) (Agent, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	a, ok := c.agents[id]
	return a, ok
}

// Events returns the lifecycle event stream. Events arrive in emission
// order; a consumer that falls behind loses events rather than stalling
// workflows.
func (c *Coordinator) Events() <-chan Event {
	return c.events
}

// Status returns a snapshot of a workflow's execution context.
func (c *Coordinator) Status(workflowID string) (ExecutionContext, bool) {
	c.mu.RLock()
	st, ok := c.contexts[workflowID]
	c.mu.RUnlock()
	if !ok {
		return ExecutionContext{}, false
	}
	st.mu.Lock()
	defer st.mu.Unlock()
	snap := st.ec
	snap.Outputs = append([]AgentOutput(nil), st.ec.Outputs...)
	return snap, true
}

// Pause stops a running workflow before its next step. The in-flight step
// finishes naturally.
func (c *Coordinator) Pause(workflowID string) error {
	return c.transition(workflowID, StateRunning, StatePaused)
}

// Resume lets a paused workflow continue.
func (c *Coordinator) Resume(workflowID string) error {
	return c.transition(workflowID, StatePaused, StateRunning)
}

// Cancel stops a workflow before its next step. The in-flight step finishes
// naturally; no further steps start.
func (c *Coordinator) Cancel(workflowID string) error {
	c.mu.RLock()
	st, ok := c.contexts[workflowID]
	c.mu.RUnlock()
	if !ok {
		return ErrWorkflowNotFound
	}
	st.mu.Lock()
	defer st.mu.Unlock()
	if st.ec.State.terminal() {
		return fmt.Errorf("workflow %q already %s", workflowID, st.ec.State)
	}
	st.ec.State = StateCancelled
	return nil
}

func (c *Coordinator) transition(workflowID string, from, to WorkflowState) error {
	c.mu.RLock()
	st, ok := c.contexts[workflowID]
	c.mu.RUnlock()
	if !ok {
		return ErrWorkflowNotFound
	}
	st.mu.Lock()
	defer st.mu.Unlock()
	if st.ec.State != from {
		return fmt.Errorf("workflow %q is %s, not %s", workflowID, st.ec.State, from)
	}
	st.ec.State = to
	return nil
}

// Execute runs the workflow to a terminal state. It returns a result for
// completed and cancelled runs; a failed run returns the partial result
// together with the failing step's error. Metrics always reflect what
// actually ran.
func (c *Coordinator) Execute(ctx context.Context, wf Workflow) (WorkflowResult, error) {
	if err := wf.Validate(); err != nil {
		return WorkflowResult{}, err
	}
	c.mu.RLock()
	for _, step := range wf.Steps {
		if _, ok := c.agents[step.AgentID]; !ok {
			c.mu.RUnlock()
			return WorkflowResult{}, &ErrAgentNotFound{ID: step.AgentID}
		}
	}
	c.mu.RUnlock()

	if c.tracer != nil {
		var span Span
		ctx, span = c.tracer.Start(ctx, "workflow.execute",
			StringAttr("workflow.id", wf.ID),
			IntAttr("steps", len(wf.Steps)))
		defer span.End()
	}

	start := time.Now()
	st := &executionState{ec: ExecutionContext{
		WorkflowID: wf.ID,
		StartTime:  start,
		State:      StatePending,
		Metrics: WorkflowMetrics{
			TotalSteps: len(wf.Steps),
			StepTimes:  make(map[string]float64),
		},
	}}
	c.mu.Lock()
	c.contexts[wf.ID] = st
	c.mu.Unlock()

	c.emit(Event{Type: EventWorkflowStarted, WorkflowID: wf.ID})

	input := wf.InitialInput
	if input.ID == "" {
		input = NewInput(input.Content)
	}

	if wf.Options.BoundaryCheck && c.boundary != nil {
		out, err := c.boundary.Process(ctx, input)
		if err != nil {
			st.setState(StateFailed)
			c.emit(Event{Type: EventWorkflowFailed, WorkflowID: wf.ID, Err: err})
			return c.result(wf.ID, st, start), &ErrValidation{Message: fmt.Sprintf("boundary check failed: %v", err)}
		}
		c.logger.Info("boundary check",
			"workflow_id", wf.ID,
			"confidence", out.Confidence)
	}
	if c.contextAgent != nil {
		if out, err := c.contextAgent.Process(ctx, input); err != nil {
			c.logger.Warn("context agent failed", "workflow_id", wf.ID, "error", err)
		} else {
			c.logger.Debug("context summarised",
				"workflow_id", wf.ID,
				"confidence", out.Confidence)
		}
	}

	st.setState(StateRunning)

	for i, step := range wf.Steps {
		switch waitState := c.awaitRunnable(ctx, st); waitState {
		case StateCancelled:
			c.emit(Event{Type: EventWorkflowCancelled, WorkflowID: wf.ID})
			return c.result(wf.ID, st, start), nil
		case StateRunning:
		default:
			st.setState(StateFailed)
			err := ctx.Err()
			c.emit(Event{Type: EventWorkflowFailed, WorkflowID: wf.ID, Err: err})
			return c.result(wf.ID, st, start), err
		}

		st.mu.Lock()
		st.ec.CurrentStep = i
		outputs := st.ec.Outputs
		st.mu.Unlock()

		if !step.Condition.met(outputs) {
			c.logger.Debug("step condition not met, skipping",
				"workflow_id", wf.ID,
				"step_id", step.ID)
			continue
		}

		c.emit(Event{Type: EventStepStarted, WorkflowID: wf.ID, StepID: step.ID, AgentID: step.AgentID})

		out, retries, err := c.runStep(ctx, wf, step, input)

		st.mu.Lock()
		st.ec.Metrics.RetryCount += retries
		st.mu.Unlock()

		if err != nil {
			st.mu.Lock()
			st.ec.Metrics.FailedSteps++
			st.mu.Unlock()
			c.emit(Event{Type: EventStepFailed, WorkflowID: wf.ID, StepID: step.ID, AgentID: step.AgentID, Err: err})
			if step.Required {
				st.setState(StateFailed)
				stepErr := &ErrStepFailed{StepID: step.ID, Err: err}
				c.emit(Event{Type: EventWorkflowFailed, WorkflowID: wf.ID, StepID: step.ID, Err: stepErr})
				return c.result(wf.ID, st, start), stepErr
			}
			c.logger.Warn("optional step failed, continuing",
				"workflow_id", wf.ID,
				"step_id", step.ID,
				"error", err)
			continue
		}

		st.mu.Lock()
		st.ec.Outputs = append(st.ec.Outputs, out)
		st.ec.Metrics.CompletedSteps++
		st.ec.Metrics.StepTimes[step.ID] = out.ProcessingTime
		st.ec.Metrics.TotalProcessingTime += out.ProcessingTime
		st.mu.Unlock()

		input = nextInput(input, out)
		c.emit(Event{Type: EventStepCompleted, WorkflowID: wf.ID, StepID: step.ID, AgentID: step.AgentID})
	}

	if st.state() == StateCancelled {
		c.emit(Event{Type: EventWorkflowCancelled, WorkflowID: wf.ID})
		return c.result(wf.ID, st, start), nil
	}

	if wf.Options.Review && c.review != nil {
		st.mu.Lock()
		outputs := append([]AgentOutput(nil), st.ec.Outputs...)
		st.mu.Unlock()
		if len(outputs) > 0 {
			reviewInput := NewInput("Review the workflow outputs for quality and consistency.")
			reviewInput.PreviousOutputs = outputs
			if out, err := c.review.Process(ctx, reviewInput); err != nil {
				c.logger.Warn("review failed", "workflow_id", wf.ID, "error", err)
			} else {
				c.logger.Info("workflow reviewed",
					"workflow_id", wf.ID,
					"confidence", out.Confidence)
			}
		}
	}

	st.setState(StateCompleted)
	c.emit(Event{Type: EventWorkflowCompleted, WorkflowID: wf.ID})
	return c.result(wf.ID, st, start), nil
}

// awaitRunnable blocks while the workflow is paused. It returns the state
// that ended the wait: running, cancelled, or the current state when the
// context died.
func (c *Coordinator) awaitRunnable(ctx context.Context, st *executionState) WorkflowState {
	for {
		s := st.state()
		if s != StatePaused {
			return s
		}
		select {
		case <-ctx.Done():
			return st.state()
		case <-time.After(50 * time.Millisecond):
		}
	}
}

// runStep executes one step's agent under its timeout, wrapped in its retry
// policy. It returns the output, the number of retries spent, and the final
// error.
func (c *Coordinator) runStep(ctx context.Context, wf Workflow, step WorkflowStep, input AgentInput) (AgentOutput, int, error) {
	agent, ok := c.Agent(step.AgentID)
	if !ok {
		return AgentOutput{}, 0, &ErrAgentNotFound{ID: step.AgentID}
	}

	stepInput := input
	for k, v := range step.InputOverrides {
		stepInput = stepInput.WithContext(k, v)
	}

	if !agent.CanHandle(stepInput) {
		return AgentOutput{}, 0, &ErrInvalidInput{Message: fmt.Sprintf("agent %q cannot handle step %q input", step.AgentID, step.ID)}
	}

	timeout := step.Timeout
	if timeout == 0 {
		timeout = wf.Options.DefaultTimeout
	}
	policy := wf.Options.DefaultRetry
	if step.Retry != nil {
		policy = *step.Retry
	}
	if policy == (RetryPolicy{}) {
		policy = DefaultRetry()
	}

	var (
		out      AgentOutput
		attempts int
	)
	err := callWithRetry(ctx, policy, c.logger, "step "+step.ID, func(ctx context.Context) error {
		attempts++
		var attemptErr error
		out, attemptErr = c.runAttempt(ctx, agent, stepInput, timeout)
		return attemptErr
	})
	return out, attempts - 1, err
}

// runAttempt races one agent call against the step timeout. On timeout the
// agent's context is cancelled and the call abandoned.
func (c *Coordinator) runAttempt(ctx context.Context, agent Agent, input AgentInput, timeout time.Duration) (AgentOutput, error) {
	if timeout <= 0 {
		return agent.Process(ctx, input)
	}

	attemptCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	type processResult struct {
		out AgentOutput
		err error
	}
	done := make(chan processResult, 1)
	go func() {
		out, err := agent.Process(attemptCtx, input)
		done <- processResult{out: out, err: err}
	}()

	select {
	case r := <-done:
		return r.out, r.err
	case <-attemptCtx.Done():
		if errors.Is(attemptCtx.Err(), context.DeadlineExceeded) {
			return AgentOutput{}, &ErrTimeout{Seconds: timeout.Seconds()}
		}
		return AgentOutput{}, attemptCtx.Err()
	}
}

// nextInput threads a completed step's output into the next step's input:
// same content, appended outputs, and merged context keys.
func nextInput(input AgentInput, out AgentOutput) AgentInput {
	next := input.Derive(out)
	if next.Context == nil {
		next.Context = make(map[string]Value, len(out.StructuredData)+2)
	}
	next.Context["last_agent_id"] = String(out.AgentID)
	next.Context["last_confidence"] = Float(out.Confidence)
	for k, v := range out.StructuredData {
		next.Context["output_"+k] = v
	}
	return next
}

// result snapshots the execution into a terminal summary.
func (c *Coordinator) result(workflowID string, st *executionState, start time.Time) WorkflowResult {
	st.mu.Lock()
	defer st.mu.Unlock()

	outputs := append([]AgentOutput(nil), st.ec.Outputs...)
	final := ""
	for i := len(outputs) - 1; i >= 0; i-- {
		if outputs[i].Content != "" {
			final = outputs[i].Content
			break
		}
	}
	metrics := st.ec.Metrics
	metrics.StepTimes = make(map[string]float64, len(st.ec.Metrics.StepTimes))
	for k, v := range st.ec.Metrics.StepTimes {
		metrics.StepTimes[k] = v
	}
	return WorkflowResult{
		WorkflowID:  workflowID,
		State:       st.ec.State,
		Outputs:     outputs,
		FinalOutput: final,
		Confidence:  meanConfidence(outputs),
		TotalTime:   time.Since(start).Seconds(),
		Metrics:     metrics,
	}
}

// emit serializes event delivery. A full buffer drops the event with a
// warning instead of blocking the workflow.
func (c *Coordinator) emit(e Event) {
	c.emitMu.Lock()
	defer c.emitMu.Unlock()
	e.At = time.Now()
	select {
	case c.events <- e:
	default:
		c.logger.Warn("event buffer full, dropping event",
			"type", e.Type,
			"workflow_id", e.WorkflowID)
	}
}
