package tandem

import (
	"context"
	"errors"
	"testing"
)

func searchSchema() Schema {
	return NewSchema().
		String("query", "search query").
		Integer("limit", "maximum results").
		Boolean("fuzzy", "fuzzy matching").
		Required("query").
		Build()
}

func TestValidateParameters(t *testing.T) {
	schema := searchSchema()
	tests := []struct {
		name    string
		params  map[string]Value
		wantErr string
	}{
		{
			name:   "all valid",
			params: map[string]Value{"query": String("go"), "limit": Int(5)},
		},
		{
			name:    "missing required",
			params:  map[string]Value{"limit": Int(5)},
			wantErr: `missing parameter "query"`,
		},
		{
			name:    "wrong type",
			params:  map[string]Value{"query": Int(1)},
			wantErr: `invalid parameter "query": expected string, got integer`,
		},
		{
			name:    "float for integer",
			params:  map[string]Value{"query": String("go"), "limit": Float(1.5)},
			wantErr: `invalid parameter "limit": expected integer, got number`,
		},
		{
			name:   "unknown param passes through",
			params: map[string]Value{"query": String("go"), "extra": Bool(true)},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateParameters(schema, tt.params)
			if tt.wantErr == "" {
				if err != nil {
					t.Fatalf("unexpected error: %v", err)
				}
				return
			}
			if err == nil || err.Error() != tt.wantErr {
				t.Errorf("error = %v, want %q", err, tt.wantErr)
			}
		})
	}
}

func TestSchemaBuilder(t *testing.T) {
	schema := NewSchema().
		String("name", "display name").
		Enum("mode", "processing mode", "fast", "thorough").
		ArrayOf("tags", "labels", "string").
		Object("nested", "sub object", NewSchema().Integer("n", "count")).
		Required("name", "mode").
		Build()

	if schema["type"] != "object" {
		t.Errorf(`type = %v, want "object"`, schema["type"])
	}
	props := schema.Properties()
	if len(props) != 4 {
		t.Fatalf("properties = %d, want 4", len(props))
	}
	mode := props["mode"].(map[string]any)
	enum := mode["enum"].([]string)
	if len(enum) != 2 || enum[0] != "fast" {
		t.Errorf("enum = %v, want [fast thorough]", enum)
	}
	req := schema.RequiredList()
	if len(req) != 2 || req[0] != "name" || req[1] != "mode" {
		t.Errorf("required = %v, want [name mode]", req)
	}
}

func TestFuncToolValidatesBeforeCalling(t *testing.T) {
	called := false
	tool := NewFuncTool("echo", "Echo", "echoes input", searchSchema(),
		func(_ context.Context, params map[string]Value) (Value, error) {
			called = true
			return params["query"], nil
		})

	_, err := tool.Execute(context.Background(), map[string]Value{})
	var missing *ErrMissingParameter
	if !errors.As(err, &missing) {
		t.Fatalf("error = %v, want ErrMissingParameter", err)
	}
	if called {
		t.Error("function should not run when validation fails")
	}

	v, err := tool.Execute(context.Background(), map[string]Value{"query": String("hi")})
	if err != nil {
		t.Fatal(err)
	}
	if s, _ := v.AsString(); s != "hi" {
		t.Errorf("result = %q, want %q", s, "hi")
	}
}

func TestStructuredOutputTool(t *testing.T) {
	gen := &fakeGenerator{responses: []GenerateResponse{
		{Text: `{"title": "Go", "year": 2009, "tags": ["fast", "simple"]}`},
	}}
	tool := NewStructuredOutputTool(gen)

	params := map[string]Value{
		"prompt": String("describe Go"),
		"schema": Map(map[string]Value{
			"type": String("object"),
		}),
	}
	v, err := tool.Execute(context.Background(), params)
	if err != nil {
		t.Fatal(err)
	}
	m, ok := v.AsMap()
	if !ok {
		t.Fatalf("result kind = %v, want map", v.Kind())
	}
	if title, _ := m["title"].AsString(); title != "Go" {
		t.Errorf("title = %q, want %q", title, "Go")
	}
	if year, _ := m["year"].AsInt(); year != 2009 {
		t.Errorf("year = %d, want 2009", year)
	}

	req := gen.requests[0]
	if req.ResponseMIMEType != "application/json" {
		t.Errorf("mime type = %q, want application/json", req.ResponseMIMEType)
	}
	if req.ResponseSchema == nil {
		t.Error("schema should be forwarded to the generator")
	}
}

func TestStructuredOutputToolParseFailure(t *testing.T) {
	gen := &fakeGenerator{responses: []GenerateResponse{{Text: "not json"}}}
	tool := NewStructuredOutputTool(gen)

	_, err := tool.Execute(context.Background(), map[string]Value{
		"prompt": String("x"),
		"schema": Map(map[string]Value{"type": String("object")}),
	})
	var execErr *ErrToolExecution
	if !errors.As(err, &execErr) {
		t.Fatalf("error = %v, want ErrToolExecution", err)
	}
}

func TestStructuredDataRoundTrip(t *testing.T) {
	gen := &fakeGenerator{responses: []GenerateResponse{
		{Text: `{"counts": [1, 2, 3], "ok": true, "ratio": 0.5}`},
	}}
	tool := NewStructuredOutputTool(gen)

	v, err := tool.Execute(context.Background(), map[string]Value{
		"prompt": String("x"),
		"schema": Map(map[string]Value{"type": String("object")}),
	})
	if err != nil {
		t.Fatal(err)
	}

	// Serialize and parse back; the tree must survive unchanged.
	out := NewOutput("a", "", 1)
	out.StructuredData = map[string]Value{"result": v}
	data, err := out.StructuredData["result"].MarshalJSON()
	if err != nil {
		t.Fatal(err)
	}
	var back Value
	if err := back.UnmarshalJSON(data); err != nil {
		t.Fatal(err)
	}
	if !v.Equal(back) {
		t.Errorf("round trip changed tree: %s -> %s", v.Text(), back.Text())
	}
}
