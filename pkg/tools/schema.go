package tools

import (
	"encoding/json"

	"github.com/google/jsonschema-go/jsonschema"
)

// MustSchemaMap derives a JSON Schema map from a Go argument struct.
// Panics on types that cannot be described; only called at init time.
func MustSchemaMap[T any]() map[string]any {
	schema, err := jsonschema.For[T](&jsonschema.ForOptions{})
	if err != nil {
		panic(err)
	}
	m, err := SchemaToMap(schema)
	if err != nil {
		panic(err)
	}
	return m
}

// SchemaToMap normalizes an arbitrary schema value into a map form that
// every backend accepts: top-level type and properties are always present
// and every property carries a type.
func SchemaToMap(params any) (map[string]any, error) {
	m := map[string]any{}
	if params != nil {
		buf, err := json.Marshal(params)
		if err != nil {
			return nil, err
		}
		if err := json.Unmarshal(buf, &m); err != nil {
			return nil, err
		}
	}

	if m["type"] == nil {
		m["type"] = "object"
	}
	if m["properties"] == nil {
		m["properties"] = map[string]any{}
	}
	if m["required"] == nil {
		delete(m, "required")
	}

	ensurePropertyTypes(m)

	return m, nil
}

// ensurePropertyTypes walks a schema map and defaults any property with no
// "type" to "object", descending into nested properties and array items.
func ensurePropertyTypes(schema map[string]any) {
	props, ok := schema["properties"].(map[string]any)
	if !ok {
		return
	}

	for _, v := range props {
		prop, ok := v.(map[string]any)
		if !ok {
			continue
		}

		if prop["type"] == nil {
			prop["type"] = "object"
		}

		ensurePropertyTypes(prop)

		if items, ok := prop["items"].(map[string]any); ok {
			ensurePropertyTypes(items)
		}
	}
}
