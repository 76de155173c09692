package tandem

import (
	"context"
	"fmt"
)

// Tool is a schema-described callable that agents and workflows can invoke.
// Execute is synchronous in contract; implementations may do I/O internally.
type Tool interface {
	// ID returns the tool's stable identifier.
	ID() string
	// Name returns the tool's display name.
	Name() string
	// Description returns a human-readable description of what the tool does.
	Description() string
	// InputSchema describes the expected parameters.
	InputSchema() Schema
	// Execute runs the tool. Parameters have already passed, or will be
	// validated against, InputSchema.
	Execute(ctx context.Context, params map[string]Value) (Value, error)
}

// ValidateParameters checks params against the schema: every required
// property must be present, and every supplied property whose type the
// schema declares must match it. Unknown parameters pass through.
func ValidateParameters(schema Schema, params map[string]Value) error {
	for _, name := range schema.RequiredList() {
		if _, ok := params[name]; !ok {
			return &ErrMissingParameter{Name: name}
		}
	}
	props := schema.Properties()
	for name, v := range params {
		prop, ok := props[name].(map[string]any)
		if !ok {
			continue
		}
		declared, ok := prop["type"].(string)
		if !ok {
			continue
		}
		if err := checkValueType(name, declared, v); err != nil {
			return err
		}
	}
	return nil
}

func checkValueType(name, declared string, v Value) error {
	ok := false
	switch declared {
	case "string":
		ok = v.Kind() == KindString
	case "number":
		ok = v.Kind() == KindFloat || v.Kind() == KindInt
	case "integer":
		ok = v.Kind() == KindInt
	case "boolean":
		ok = v.Kind() == KindBool
	case "array":
		ok = v.Kind() == KindList
	case "object":
		ok = v.Kind() == KindMap
	default:
		ok = true
	}
	if !ok {
		return &ErrInvalidParameter{
			Name:   name,
			Reason: fmt.Sprintf("expected %s, got %s", declared, kindName(v.Kind())),
		}
	}
	return nil
}

func kindName(k ValueKind) string {
	switch k {
	case KindString:
		return "string"
	case KindInt:
		return "integer"
	case KindFloat:
		return "number"
	case KindBool:
		return "boolean"
	case KindList:
		return "array"
	case KindMap:
		return "object"
	default:
		return "null"
	}
}

// FuncTool adapts a plain function into a Tool. Execute validates parameters
// against the schema before calling the function.
type FuncTool struct {
	id          string
	name        string
	description string
	schema      Schema
	fn          func(ctx context.Context, params map[string]Value) (Value, error)
}

var _ Tool = (*FuncTool)(nil)

// NewFuncTool wraps fn as a Tool with the given identity and schema.
func NewFuncTool(id, name, description string, schema Schema, fn func(ctx context.Context, params map[string]Value) (Value, error)) *FuncTool {
	return &FuncTool{id: id, name: name, description: description, schema: schema, fn: fn}
}

func (t *FuncTool) ID() string          { return t.id }
func (t *FuncTool) Name() string        { return t.name }
func (t *FuncTool) Description() string { return t.description }
func (t *FuncTool) InputSchema() Schema { return t.schema }

func (t *FuncTool) Execute(ctx context.Context, params map[string]Value) (Value, error) {
	if err := ValidateParameters(t.schema, params); err != nil {
		return Value{}, err
	}
	return t.fn(ctx, params)
}
