package gemini

import (
	"strings"

	"google.golang.org/genai"
)

// toSchema converts a JSON-schema object, as delivered by the tool session,
// into the current SDK's declaration schema. Unknown keywords are dropped;
// the model only needs type, structure and descriptions.
func toSchema(m map[string]any) *genai.Schema {
	if len(m) == 0 {
		return nil
	}
	s := &genai.Schema{Type: schemaType(stringField(m, "type"))}
	s.Description = stringField(m, "description")
	s.Required = stringSlice(m["required"])
	s.Enum = stringSlice(m["enum"])
	if props, ok := m["properties"].(map[string]any); ok {
		s.Properties = make(map[string]*genai.Schema, len(props))
		for name, raw := range props {
			if sub, ok := raw.(map[string]any); ok {
				s.Properties[name] = toSchema(sub)
			}
		}
	}
	if items, ok := m["items"].(map[string]any); ok {
		s.Items = toSchema(items)
	}
	return s
}

func schemaType(t string) genai.Type {
	switch strings.ToLower(t) {
	case "string":
		return genai.TypeString
	case "number":
		return genai.TypeNumber
	case "integer":
		return genai.TypeInteger
	case "boolean":
		return genai.TypeBoolean
	case "array":
		return genai.TypeArray
	case "object":
		return genai.TypeObject
	default:
		return genai.TypeUnspecified
	}
}

func stringField(m map[string]any, key string) string {
	v, _ := m[key].(string)
	return v
}

func stringSlice(v any) []string {
	switch vals := v.(type) {
	case []string:
		return vals
	case []any:
		out := make([]string, 0, len(vals))
		for _, item := range vals {
			if s, ok := item.(string); ok {
				out = append(out, s)
			}
		}
		if len(out) == 0 {
			return nil
		}
		return out
	default:
		return nil
	}
}
