package tool

import "strings"

// taggedFileTypes are the "x-gradio-type" values that mark an object-typed
// property as a FileData/ImageData parameter. Only the "x-gradio-type" key
// is read; description text is not inspected.
var taggedFileTypes = []string{"filedata", "imagedata", "file", "image"}

// Classify determines whether schema is eligible for the invoke convenience
// path. A schema is simple iff every declared property is a
// primitive, an enum of primitives, or a tagged FileData/ImageData
// parameter. Any nested object, array-of-object, or unrecognized union
// marks the schema complex.
//
// Limitations: classification only inspects top-level properties; it does
// not attempt to resolve $ref or combinators (anyOf/oneOf/allOf) beyond
// treating their presence as complex.
func Classify(schema map[string]any) Complexity {
	props, _ := schema["properties"].(map[string]any)
	for _, raw := range props {
		prop, ok := raw.(map[string]any)
		if !ok {
			return ComplexityComplex
		}
		if !isSimpleProperty(prop) {
			return ComplexityComplex
		}
	}
	return ComplexitySimple
}

func isSimpleProperty(prop map[string]any) bool {
	if _, hasRef := prop["$ref"]; hasRef {
		return false
	}
	for _, combinator := range []string{"anyOf", "oneOf", "allOf"} {
		if _, ok := prop[combinator]; ok {
			return false
		}
	}

	t, _ := prop["type"].(string)
	switch t {
	case "string", "number", "integer", "boolean":
		return true
	case "object":
		return isTaggedFileParam(prop)
	case "array":
		items, _ := prop["items"].(map[string]any)
		if items == nil {
			return false
		}
		itemType, _ := items["type"].(string)
		switch itemType {
		case "string", "number", "integer", "boolean":
			return true
		default:
			return false
		}
	default:
		// "enum" without an explicit type is only simple when every
		// enumerated value is a primitive.
		if vals, ok := prop["enum"].([]any); ok {
			return allPrimitive(vals)
		}
		return false
	}
}

func isTaggedFileParam(prop map[string]any) bool {
	hint, _ := prop["x-gradio-type"].(string)
	hint = strings.ToLower(hint)
	for _, tag := range taggedFileTypes {
		if hint == tag {
			return true
		}
	}
	return false
}

func allPrimitive(vals []any) bool {
	for _, v := range vals {
		switch v.(type) {
		case string, float64, bool, int:
		default:
			return false
		}
	}
	return true
}
