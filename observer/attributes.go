package observer

import "go.opentelemetry.io/otel/attribute"

// Attribute keys for workflow and generator observability spans and metrics.
var (
	AttrWorkflowID    = attribute.Key("workflow.id")
	AttrWorkflowState = attribute.Key("workflow.state")
	AttrStepID        = attribute.Key("workflow.step.id")

	AttrAgentID   = attribute.Key("agent.id")
	AttrAgentName = attribute.Key("agent.name")

	AttrGenProvider   = attribute.Key("generator.provider")
	AttrGenStatus     = attribute.Key("generator.status")
	AttrGenPromptLen  = attribute.Key("generator.prompt_length")
	AttrGenOutputLen  = attribute.Key("generator.output_length")
	AttrGenStructured = attribute.Key("generator.structured")

	AttrKeyStatus = attribute.Key("keys.status")
)
