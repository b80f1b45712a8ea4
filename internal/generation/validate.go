// Copyright (c) 2025 Taproom
// Licensed under the MIT License. See LICENSE file in the project root for details.

package generation

import (
	"encoding/json"
	"fmt"

	"github.com/santhosh-tekuri/jsonschema/v6"
)

const schemaLocation = "https://taproom.local/schemas/output.json"

// Conform decodes raw and validates it against s as a JSON Schema (draft
// 2020-12). On success v holds the decoded value.
func Conform(s *Schema, raw []byte, v any) error {
	var doc any
	if err := Decode(raw, &doc); err != nil {
		return err
	}
	if s != nil {
		compiled, err := s.compile()
		if err != nil {
			return fmt.Errorf("invalid output schema: %w", err)
		}
		if err := compiled.Validate(doc); err != nil {
			return fmt.Errorf("response does not match output schema: %w", err)
		}
	}
	// Re-marshal the already validated document so fenced responses decode too.
	clean, err := json.Marshal(doc)
	if err != nil {
		return err
	}
	return json.Unmarshal(clean, v)
}

func (s *Schema) compile() (*jsonschema.Schema, error) {
	c := jsonschema.NewCompiler()
	c.DefaultDraft(jsonschema.Draft2020)
	if err := c.AddResource(schemaLocation, s.validationDoc()); err != nil {
		return nil, err
	}
	return c.Compile(schemaLocation)
}

// validationDoc is JSONSchema with nullable spelled the draft 2020-12 way:
// a type union with "null", and null admitted by any enum.
func (s *Schema) validationDoc() map[string]any {
	out := map[string]any{"type": string(s.Type)}
	if s.Nullable {
		out["type"] = []any{string(s.Type), "null"}
	}
	if len(s.Enum) > 0 {
		vals := make([]any, 0, len(s.Enum)+1)
		for _, e := range s.Enum {
			vals = append(vals, e)
		}
		if s.Nullable {
			vals = append(vals, nil)
		}
		out["enum"] = vals
	}
	if s.Items != nil {
		out["items"] = s.Items.validationDoc()
	}
	if len(s.Properties) > 0 {
		props := make(map[string]any, len(s.Properties))
		for k, p := range s.Properties {
			props[k] = p.validationDoc()
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
