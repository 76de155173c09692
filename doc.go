// Package tandem is a multi-agent workflow runtime for hosted generative AI
// backends.
//
// It provides composable agents (sequential, parallel, loop, LLM-backed,
// tool-using), a workflow coordinator with retries, timeouts, conditional
// steps, and a typed event stream, and an API-key rotation manager that
// enforces per-minute/per-hour/per-byte quotas across a pool of keys.
//
// # Quick Start
//
// Wire a generator, a couple of agents, and a coordinator:
//
//	km := tandem.NewKeyManager(tandem.KeysFromEnv())
//	gen := gemini.New(km, "gemini-2.5-flash")
//
//	analyst := tandem.NewAnalysisAgent("analyst", "Analyst", gen)
//	writer := tandem.NewLLMAgent("writer", "Writer", "drafts prose", gen)
//
//	co := tandem.NewCoordinator()
//	co.RegisterAgent(analyst)
//	co.RegisterAgent(writer)
//
//	result, err := co.Execute(ctx, tandem.Workflow{
//		ID:   tandem.NewID(),
//		Name: "analyze-then-write",
//		Steps: []tandem.WorkflowStep{
//			{ID: "s1", AgentID: "analyst", Required: true},
//			{ID: "s2", AgentID: "writer"},
//		},
//		InitialInput: tandem.NewInput("quarterly numbers attached"),
//	})
//
// # Core Interfaces
//
// The root package defines the contracts that all components implement:
//
//   - [Agent]: addressable processor mapping one input to one output
//   - [Generator]: the external text-generation backend
//   - [Tool]: schema-driven callable capability
//   - [KeySource]: key selection and usage reporting (implemented by [KeyManager])
//   - [Tracer]: span emission; the observer package provides an OTEL backend
//
// # Included Implementations
//
// Providers: provider/gemini (Google Gemini generateContent over HTTP+JSON).
// Observability: observer (OTEL traces, metrics, and logs via OTLP HTTP).
// Configuration: internal/config (defaults, then TOML file, then environment).
package tandem
