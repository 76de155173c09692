package tandem

import (
	"fmt"
	"strings"
	"time"
)

// conditionKind tags a Condition variant.
type conditionKind int

const (
	condAlways conditionKind = iota
	condConfidenceAbove
	condOutputContains
	condPreviousSuccess
	condCustom
)

// Condition gates a workflow step on the outputs produced so far. The zero
// Condition always passes.
type Condition struct {
	kind      conditionKind
	threshold float64
	substring string
	name      string
}

// Always passes unconditionally.
func Always() Condition { return Condition{kind: condAlways} }

// ConfidenceAbove passes when the last output's confidence is at least t.
// With no outputs yet there is no evidence to gate on, so it passes.
func ConfidenceAbove(t float64) Condition {
	return Condition{kind: condConfidenceAbove, threshold: t}
}

// OutputContains passes when the last output's content contains s. With no
// outputs yet it passes.
func OutputContains(s string) Condition {
	return Condition{kind: condOutputContains, substring: s}
}

// PreviousSuccess passes once at least one output exists.
func PreviousSuccess() Condition { return Condition{kind: condPreviousSuccess} }

// CustomCondition names an externally-defined condition. The runtime cannot
// evaluate it and treats it as true.
func CustomCondition(name string) Condition {
	return Condition{kind: condCustom, name: name}
}

// met evaluates the condition against the outputs produced so far.
func (c Condition) met(outputs []AgentOutput) bool {
	switch c.kind {
	case condConfidenceAbove:
		if len(outputs) == 0 {
			return true
		}
		return outputs[len(outputs)-1].Confidence >= c.threshold
	case condOutputContains:
		if len(outputs) == 0 {
			return true
		}
		return strings.Contains(outputs[len(outputs)-1].Content, c.substring)
	case condPreviousSuccess:
		return len(outputs) > 0
	default:
		return true
	}
}

// WorkflowStep binds one registered agent to one position in a workflow.
type WorkflowStep struct {
	// ID uniquely identifies the step within its workflow.
	ID string
	// AgentID names the registered agent to run.
	AgentID string
	// Name is an optional display name.
	Name string
	// InputOverrides is merged into the step input's context before the
	// agent runs.
	InputOverrides map[string]Value
	// DependsOn lists step IDs that must appear earlier in the workflow.
	DependsOn []string
	// Condition gates execution. The zero value always passes.
	Condition Condition
	// Required makes a final step failure abort the whole workflow.
	// Non-required failures are logged and skipped.
	Required bool
	// Timeout bounds one attempt. Zero falls back to the workflow default.
	Timeout time.Duration
	// Retry overrides the workflow's default retry policy when non-nil.
	Retry *RetryPolicy
}

// WorkflowOptions are workflow-global execution settings.
type WorkflowOptions struct {
	// SelfArgueCycles is the refinement budget handed to self-argumentation
	// agents built for this workflow. Zero means the default of 5.
	SelfArgueCycles int
	// BoundaryCheck runs the coordinator's boundary agent on the initial
	// input before any step.
	BoundaryCheck bool
	// Review runs the coordinator's review agent over all outputs after the
	// last step.
	Review bool
	// MaxParallel hints at fan-out for parallel composers run by this
	// workflow. Advisory.
	MaxParallel int
	// DefaultTimeout bounds steps that declare none. Zero means no timeout.
	DefaultTimeout time.Duration
	// DefaultRetry applies to steps without their own policy. The zero value
	// falls back to DefaultRetry().
	DefaultRetry RetryPolicy
}

// Workflow is an ordered list of steps over registered agents.
type Workflow struct {
	ID           string
	Name         string
	Description  string
	Steps        []WorkflowStep
	InitialInput AgentInput
	Options      WorkflowOptions
}

// Validate checks the workflow's internal consistency: at least one step,
// unique step IDs, agent IDs present, and dependencies referring to earlier
// steps only.
func (w Workflow) Validate() error {
	if w.ID == "" {
		return &ErrInvalidWorkflow{Message: "workflow has no id"}
	}
	if len(w.Steps) == 0 {
		return &ErrInvalidWorkflow{Message: fmt.Sprintf("workflow %q has no steps", w.ID)}
	}
	seen := make(map[string]struct{}, len(w.Steps))
	for i, step := range w.Steps {
		if step.ID == "" {
			return &ErrInvalidWorkflow{Message: fmt.Sprintf("step %d has no id", i)}
		}
		if step.AgentID == "" {
			return &ErrInvalidWorkflow{Message: fmt.Sprintf("step %q has no agent id", step.ID)}
		}
		if _, dup := seen[step.ID]; dup {
			return &ErrInvalidWorkflow{Message: fmt.Sprintf("duplicate step id %q", step.ID)}
		}
		for _, dep := range step.DependsOn {
			if _, ok := seen[dep]; !ok {
				return &ErrInvalidWorkflow{Message: fmt.Sprintf("step %q depends on %q which is not an earlier step", step.ID, dep)}
			}
		}
		seen[step.ID] = struct{}{}
	}
	return nil
}

// WorkflowState is the lifecycle state of a workflow execution.
type WorkflowState string

const (
	StatePending   WorkflowState = "pending"
	StateRunning   WorkflowState = "running"
	StatePaused    WorkflowState = "paused"
	StateCompleted WorkflowState = "completed"
	StateFailed    WorkflowState = "failed"
	StateCancelled WorkflowState = "cancelled"
)

// terminal reports whether no further transitions are possible.
func (s WorkflowState) terminal() bool {
	return s == StateCompleted || s == StateFailed || s == StateCancelled
}

// WorkflowMetrics accumulates counters over one execution.
type WorkflowMetrics struct {
	// TotalSteps is the step count of the workflow definition.
	TotalSteps int
	// CompletedSteps counts steps that produced an output.
	CompletedSteps int
	// FailedSteps counts steps whose final attempt failed.
	FailedSteps int
	// TotalProcessingTime sums step processing times in seconds.
	TotalProcessingTime float64
	// StepTimes maps step ID to its processing time in seconds.
	StepTimes map[string]float64
	// RetryCount sums retry attempts across all steps.
	RetryCount int
}

// ExecutionContext is the live record of one running workflow.
type ExecutionContext struct {
	// WorkflowID identifies the workflow.
	WorkflowID string
	// StartTime is when Execute began.
	StartTime time.Time
	// State is the current lifecycle state.
	State WorkflowState
	// CurrentStep is the index of the step being executed.
	CurrentStep int
	// Outputs lists produced outputs in step order.
	Outputs []AgentOutput
	// Metrics holds the running counters.
	Metrics WorkflowMetrics
}

// WorkflowResult is the terminal summary of one execution. Its metrics
// reflect what actually ran regardless of outcome.
type WorkflowResult struct {
	// WorkflowID identifies the workflow.
	WorkflowID string
	// State is the terminal state.
	State WorkflowState
	// Outputs lists every produced output in step order.
	Outputs []AgentOutput
	// FinalOutput is the last non-empty output content, or empty.
	FinalOutput string
	// Confidence is the mean confidence over produced outputs, 0 if none.
	Confidence float64
	// TotalTime is the wall-clock execution time in seconds.
	TotalTime float64
	// Metrics holds the final counters.
	Metrics WorkflowMetrics
}
