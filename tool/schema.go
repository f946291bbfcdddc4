package tool

import "github.com/invopop/jsonschema"

// SchemaFromStruct derives a JSON Schema document from a Go struct
// value, used by built-in tools that prefer declaring parameters as a
// typed struct rather than hand-writing []Parameter (grounded on the
// teacher's requirement of invopop/jsonschema for exactly this).
func SchemaFromStruct(v interface{}) map[string]interface{} {
	reflector := &jsonschema.Reflector{DoNotReference: true, ExpandedStruct: true}
	schema := reflector.Reflect(v)
	out := make(map[string]interface{})
	if schema.Properties != nil {
		props := make(map[string]interface{})
		for pair := schema.Properties.Oldest(); pair != nil; pair = pair.Next() {
			props[pair.Key] = pair.Value
		}
		out["properties"] = props
	}
	out["type"] = "object"
	out["required"] = schema.Required
	return out
}

// ToJSONSchema converts an Info's []Parameter into the JSON-Schema
// object shape the LLM tool-calling APIs and the AutoParamNode prompt
// expect.
func (i Info) ToJSONSchema() map[string]interface{} {
	properties := make(map[string]interface{}, len(i.Parameters))
	var required []string
	for _, p := range i.Parameters {
		prop := map[string]interface{}{
			"type":        p.Type,
			"description": p.Description,
		}
		if len(p.Enum) > 0 {
			prop["enum"] = p.Enum
		}
		properties[p.Name] = prop
		if p.Required {
			required = append(required, p.Name)
		}
	}
	return map[string]interface{}{
		"type":       "object",
		"properties": properties,
		"required":   required,
	}
}
