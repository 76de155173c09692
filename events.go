package tandem

import "time"

// EventType tags a workflow lifecycle event.
type EventType string

const (
	EventWorkflowStarted   EventType = "workflow-started"
	EventWorkflowCompleted EventType = "workflow-completed"
	EventWorkflowFailed    EventType = "workflow-failed"
	EventWorkflowCancelled EventType = "workflow-cancelled"
	EventStepStarted       EventType = "step-started"
	EventStepCompleted     EventType = "step-completed"
	EventStepFailed        EventType = "step-failed"
)

// Event is one entry in the coordinator's lifecycle stream. Consumers read
// them from Coordinator.Events; delivery order matches emission order.
type Event struct {
	// Type tags the lifecycle transition.
	Type EventType
	// WorkflowID identifies the workflow.
	WorkflowID string
	// StepID identifies the step for step-scoped events, empty otherwise.
	StepID string
	// AgentID identifies the executing agent for step-scoped events.
	AgentID string
	// Err carries the failure for failed events, nil otherwise.
	Err error
	// At is the emission instant.
	At time.Time
}
