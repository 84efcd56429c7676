package tool

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/xeipuuv/gojsonschema"
)

// ErrNoUsableTools is returned when a normalized schema response yields an
// empty tool list: every candidate was dropped (lambda placeholders,
// malformed schemas) or the upstream advertised nothing.
var ErrNoUsableTools = errors.New("tool: upstream has no usable tools")

// ErrInvalidSchema is returned when a tool's input_schema fails structural
// JSON Schema validation.
var ErrInvalidSchema = errors.New("tool: invalid input schema")

// rawTool is the intermediate shape produced by either upstream form before
// filtering, description synthesis, and validation.
type rawTool struct {
	Name        string
	Description string
	InputSchema map[string]any
}

// Normalize parses an upstream schema response (array or object form) into a validated list of Descriptors; tools that share a name are all kept. It never
// returns an empty, non-error slice: an empty result after filtering is
// ErrNoUsableTools.
func Normalize(body []byte) ([]Descriptor, error) {
	raw, err := parseShape(body)
	if err != nil {
		return nil, err
	}

	descriptors := make([]Descriptor, 0, len(raw))
	for _, rt := range raw {
		if strings.Contains(strings.ToLower(rt.Name), "<lambda") {
			continue
		}
		schema := rt.InputSchema
		if schema == nil {
			schema = map[string]any{}
		}
		if err := validateSchema(schema); err != nil {
			// A single malformed tool does not invalidate its siblings; it is
			// simply not admitted.
			continue
		}
		desc := rt.Description
		if desc == "" {
			desc = rt.Name + " tool"
		}
		descriptors = append(descriptors, Descriptor{
			Name:        rt.Name,
			Description: desc,
			InputSchema: schema,
			Complexity:  Classify(schema),
		})
	}

	if len(descriptors) == 0 {
		return nil, ErrNoUsableTools
	}
	return descriptors, nil
}

// parseShape detects array vs object form and returns the intermediate,
// unfiltered tool list. Detection tries the array form first: a JSON array
// whose elements carry a "name" field.
func parseShape(body []byte) ([]rawTool, error) {
	var probe any
	if err := json.Unmarshal(body, &probe); err != nil {
		return nil, fmt.Errorf("tool: malformed schema response: %w", err)
	}

	switch v := probe.(type) {
	case []any:
		return parseArrayForm(v)
	case map[string]any:
		return parseObjectForm(v)
	default:
		return nil, fmt.Errorf("tool: schema response is neither array nor object")
	}
}

// parseArrayForm handles [{name, description?, inputSchema}, ...].
func parseArrayForm(items []any) ([]rawTool, error) {
	out := make([]rawTool, 0, len(items))
	for _, item := range items {
		m, ok := item.(map[string]any)
		if !ok {
			continue
		}
		name, _ := m["name"].(string)
		if name == "" {
			continue
		}
		desc, _ := m["description"].(string)
		schema, _ := m["inputSchema"].(map[string]any)
		out = append(out, rawTool{Name: name, Description: desc, InputSchema: schema})
	}
	return out, nil
}

// parseObjectForm handles {"<tool_name>": <json_schema>, ...}; description
// may be embedded inside the schema under a "description" key.
func parseObjectForm(obj map[string]any) ([]rawTool, error) {
	out := make([]rawTool, 0, len(obj))
	for name, v := range obj {
		schema, ok := v.(map[string]any)
		if !ok {
			continue
		}
		desc, _ := schema["description"].(string)
		out = append(out, rawTool{Name: name, Description: desc, InputSchema: schema})
	}
	return out, nil
}

// validateSchema rejects a schema whose "type" is present and not
// "object", fills in an empty properties or required when either is
// missing, and checks that it parses as a structurally valid schema
// document.
func validateSchema(schema map[string]any) error {
	if t, ok := schema["type"]; ok {
		if s, ok := t.(string); !ok || s != "object" {
			return fmt.Errorf("%w: type is %v, want \"object\"", ErrInvalidSchema, t)
		}
	}
	if _, ok := schema["properties"]; !ok {
		schema["properties"] = map[string]any{}
	}
	if _, ok := schema["required"]; !ok {
		schema["required"] = []any{}
	}

	loader := gojsonschema.NewGoLoader(schema)
	if _, err := gojsonschema.NewSchema(loader); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidSchema, err)
	}
	return nil
}
