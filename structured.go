package tandem

import (
	"context"
	"encoding/json"
	"fmt"
)

// StructuredOutputTool asks the generator for JSON conforming to a
// caller-supplied schema and returns the parsed value tree.
type StructuredOutputTool struct {
	gen    Generator
	schema Schema
}

var _ Tool = (*StructuredOutputTool)(nil)

// NewStructuredOutputTool builds the tool around a generator.
func NewStructuredOutputTool(gen Generator) *StructuredOutputTool {
	return &StructuredOutputTool{
		gen: gen,
		schema: NewSchema().
			String("prompt", "the generation prompt").
			Object("schema", "JSON schema the response must conform to", NewSchema()).
			Required("prompt", "schema").
			Build(),
	}
}

func (t *StructuredOutputTool) ID() string   { return "structured-output" }
func (t *StructuredOutputTool) Name() string { return "Structured Output" }

func (t *StructuredOutputTool) Description() string {
	return "generates JSON conforming to a supplied schema"
}

func (t *StructuredOutputTool) InputSchema() Schema { return t.schema }

// Execute generates with responseMimeType application/json and the supplied
// schema, then parses the returned text. A response that is not valid JSON
// fails with a tool execution error.
func (t *StructuredOutputTool) Execute(ctx context.Context, params map[string]Value) (Value, error) {
	if err := ValidateParameters(t.schema, params); err != nil {
		return Value{}, err
	}
	prompt, _ := params["prompt"].AsString()
	schemaMap, _ := params["schema"].AsMap()

	schema := make(Schema, len(schemaMap))
	for k, v := range schemaMap {
		schema[k] = v.ToAny()
	}

	resp, err := t.gen.Generate(ctx, GenerateRequest{
		Prompt:           prompt,
		ResponseMIMEType: "application/json",
		ResponseSchema:   schema,
	})
	if err != nil {
		return Value{}, &ErrToolExecution{Reason: fmt.Sprintf("generation failed: %v", err)}
	}

	var parsed Value
	if err := json.Unmarshal([]byte(resp.Text), &parsed); err != nil {
		return Value{}, &ErrToolExecution{Reason: fmt.Sprintf("response is not valid JSON: %v", err)}
	}
	return parsed, nil
}
