// Copyright (c) 2025 Taproom
// Licensed under the MIT License. See LICENSE file in the project root for details.

package generation

// Type is a JSON schema primitive type.
type Type string

const (
	TypeObject  Type = "object"
	TypeArray   Type = "array"
	TypeString  Type = "string"
	TypeNumber  Type = "number"
	TypeInteger Type = "integer"
	TypeBoolean Type = "boolean"
)

// Schema is the provider-neutral output schema. Each backend converts it to
// its own representation.
type Schema struct {
	Type        Type
	Description string
	Properties  map[string]*Schema
	// Order fixes property order for providers that honour it.
	Order    []string
	Required []string
	Items    *Schema
	Enum     []string
	Nullable bool
}

// Object builds an object schema. Every listed property is required unless
// named in optional.
func Object(desc string, props map[string]*Schema, order []string, optional ...string) *Schema {
	skip := make(map[string]struct{}, len(optional))
	for _, o := range optional {
		skip[o] = struct{}{}
	}
	var req []string
	for _, k := range order {
		if _, ok := skip[k]; !ok {
			req = append(req, k)
		}
	}
	return &Schema{Type: TypeObject, Description: desc, Properties: props, Order: order, Required: req}
}

// Array builds an array schema.
func Array(desc string, items *Schema) *Schema {
	return &Schema{Type: TypeArray, Description: desc, Items: items}
}

// String builds a string schema.
func String(desc string) *Schema {
	return &Schema{Type: TypeString, Description: desc}
}

// Enum builds a string schema restricted to values.
func Enum(desc string, values ...string) *Schema {
	return &Schema{Type: TypeString, Description: desc, Enum: values}
}

// Bool builds a boolean schema.
func Bool(desc string) *Schema {
	return &Schema{Type: TypeBoolean, Description: desc}
}

// JSONSchema renders s as a JSON-schema document built from plain maps and
// slices, suitable for structpb or encoding/json.
func (s *Schema) JSONSchema() map[string]any {
	if s == nil {
		return nil
	}
	out := map[string]any{"type": string(s.Type)}
	if s.Description != "" {
		out["description"] = s.Description
	}
	if len(s.Enum) > 0 {
		vals := make([]any, len(s.Enum))
		for i, v := range s.Enum {
			vals[i] = v
		}
		out["enum"] = vals
	}
	if s.Nullable {
		out["nullable"] = true
	}
	if s.Items != nil {
		out["items"] = s.Items.JSONSchema()
	}
	if len(s.Properties) > 0 {
		props := make(map[string]any, len(s.Properties))
		for k, p := range s.Properties {
			props[k] = p.JSONSchema()
		}
		out["properties"] = props
	}
	if len(s.Required) > 0 {
		req := make([]any, len(s.Required))
		for i, r := range s.Required {
			req[i] = r
		}
		out["required"] = req
	}
	return out
}
