package tandem

import "context"

// GenerateRequest is one call to the external generation backend.
type GenerateRequest struct {
	// Prompt is the fully assembled user prompt.
	Prompt string
	// SystemInstruction steers the model's behavior. Empty means none.
	SystemInstruction string
	// Temperature controls sampling randomness. Nil means provider default.
	Temperature *float64
	// MaxOutputTokens bounds the response length. Zero means provider default.
	MaxOutputTokens int
	// ResponseMIMEType requests a specific output format, e.g.
	// "application/json" for structured output. Empty means plain text.
	ResponseMIMEType string
	// ResponseSchema constrains structured output when ResponseMIMEType is
	// "application/json". Nil means unconstrained.
	ResponseSchema Schema
}

// GenerateResponse is the backend's reply.
type GenerateResponse struct {
	// Text is the generated content. Empty text is treated by callers as a
	// processing failure.
	Text string
	// BytesSent is the request payload size, used for quota accounting.
	// Zero when the provider does not report it.
	BytesSent int64
}

// Generator abstracts the hosted generation backend. provider/gemini ships a
// concrete implementation; tests use in-memory fakes.
type Generator interface {
	// Generate performs one generation call.
	Generate(ctx context.Context, req GenerateRequest) (GenerateResponse, error)
	// Name returns the backend name (e.g. "gemini").
	Name() string
}

// Temp is a convenience for building *float64 temperature fields.
func Temp(v float64) *float64 { return &v }
