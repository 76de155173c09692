package tandem

// Schema is a map-shaped JSON-Schema object, suitable both for tool
// parameter validation and for the generator's responseSchema field.
type Schema map[string]any

// Properties returns the schema's properties map, nil when absent.
func (s Schema) Properties() map[string]any {
	props, _ := s["properties"].(map[string]any)
	return props
}

// RequiredList returns the schema's required property names.
func (s Schema) RequiredList() []string {
	switch req := s["required"].(type) {
	case []string:
		return req
	case []any:
		out := make([]string, 0, len(req))
		for _, r := range req {
			if name, ok := r.(string); ok {
				out = append(out, name)
			}
		}
		return out
	}
	return nil
}

// SchemaBuilder constructs object schemas fluently:
//
//	schema := NewSchema().
//		String("query", "search query").
//		Integer("limit", "maximum results").
//		Required("query").
//		Build()
type SchemaBuilder struct {
	props    map[string]any
	required []string
}

// NewSchema starts an empty object schema.
func NewSchema() *SchemaBuilder {
	return &SchemaBuilder{props: make(map[string]any)}
}

func (b *SchemaBuilder) add(name string, prop map[string]any) *SchemaBuilder {
	b.props[name] = prop
	return b
}

// String adds a string property.
func (b *SchemaBuilder) String(name, description string) *SchemaBuilder {
	return b.add(name, map[string]any{"type": "string", "description": description})
}

// Number adds a floating-point property.
func (b *SchemaBuilder) Number(name, description string) *SchemaBuilder {
	return b.add(name, map[string]any{"type": "number", "description": description})
}

// Integer adds an integer property.
func (b *SchemaBuilder) Integer(name, description string) *SchemaBuilder {
	return b.add(name, map[string]any{"type": "integer", "description": description})
}

// Boolean adds a boolean property.
func (b *SchemaBuilder) Boolean(name, description string) *SchemaBuilder {
	return b.add(name, map[string]any{"type": "boolean", "description": description})
}

// Enum adds a string property restricted to the given values.
func (b *SchemaBuilder) Enum(name, description string, values ...string) *SchemaBuilder {
	return b.add(name, map[string]any{"type": "string", "description": description, "enum": values})
}

// ArrayOf adds an array property whose items have the given primitive type
// ("string", "number", "integer", or "boolean").
func (b *SchemaBuilder) ArrayOf(name, description, itemType string) *SchemaBuilder {
	return b.add(name, map[string]any{
		"type":        "array",
		"description": description,
		"items":       map[string]any{"type": itemType},
	})
}

// Object adds a nested object property built from another builder.
func (b *SchemaBuilder) Object(name, description string, nested *SchemaBuilder) *SchemaBuilder {
	obj := nested.Build()
	obj["description"] = description
	return b.add(name, map[string]any(obj))
}

// Required marks the named properties as required.
func (b *SchemaBuilder) Required(names ...string) *SchemaBuilder {
	b.required = append(b.required, names...)
	return b
}

// Build materializes the object schema with its required list.
func (b *SchemaBuilder) Build() Schema {
	s := Schema{
		"type":       "object",
		"properties": b.props,
	}
	if len(b.required) > 0 {
		s["required"] = b.required
	}
	return s
}
