// Copyright (c) 2025 Taproom
// Licensed under the MIT License. See LICENSE file in the project root for details.

package generation

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type query struct {
	QueryName string `json:"queryName"`
	SQL       string `json:"sql"`
}

func querySchema() *Schema {
	return Object("", map[string]*Schema{
		"queries": Array("", Object("", map[string]*Schema{
			"queryName": String("name"),
			"sql":       String("sql"),
			"kind":      Enum("kind", "a", "b"),
		}, []string{"queryName", "sql", "kind"}, "kind")),
	}, []string{"queries"})
}

func TestDecode(t *testing.T) {
	tests := []struct {
		name      string
		input     string
		expectErr bool
	}{
		{name: "plain json", input: `{"queryName":"a","sql":"select 1"}`},
		{name: "fenced json", input: "```json\n{\"queryName\":\"a\",\"sql\":\"select 1\"}\n```"},
		{name: "bare fence", input: "```\n{\"queryName\":\"a\",\"sql\":\"select 1\"}```"},
		{name: "empty", input: "  ", expectErr: true},
		{name: "garbage", input: "I cannot help", expectErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var q query
			err := Decode([]byte(tt.input), &q)
			if tt.expectErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, "a", q.QueryName)
		})
	}
}

func TestConform(t *testing.T) {
	tests := []struct {
		name   string
		input  string
		errMsg string
	}{
		{name: "valid", input: `{"queries":[{"queryName":"a","sql":"select 1","kind":"a"}]}`},
		{name: "optional omitted", input: `{"queries":[{"queryName":"a","sql":"select 1"}]}`},
		{name: "missing top level", input: `{"items":[]}`, errMsg: "queries"},
		{name: "missing nested", input: `{"queries":[{"queryName":"a"}]}`, errMsg: "sql"},
		{name: "wrong type", input: `{"queries":{"queryName":"a"}}`, errMsg: "/queries"},
		{name: "bad enum", input: `{"queries":[{"queryName":"a","sql":"s","kind":"z"}]}`, errMsg: "/queries/0/kind"},
		{name: "null string", input: `{"queries":[{"queryName":null,"sql":"s"}]}`, errMsg: "/queries/0/queryName"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var out struct {
				Queries []query `json:"queries"`
			}
			err := Conform(querySchema(), []byte(tt.input), &out)
			if tt.errMsg != "" {
				require.Error(t, err)
				assert.Contains(t, err.Error(), "does not match output schema")
				assert.Contains(t, err.Error(), tt.errMsg)
				return
			}
			require.NoError(t, err)
			require.Len(t, out.Queries, 1)
			assert.Equal(t, "select 1", out.Queries[0].SQL)
		})
	}
}

func TestSchema_JSONSchema(t *testing.T) {
	doc := querySchema().JSONSchema()
	assert.Equal(t, "object", doc["type"])
	assert.Equal(t, []any{"queries"}, doc["required"])

	props := doc["properties"].(map[string]any)
	items := props["queries"].(map[string]any)["items"].(map[string]any)
	assert.Equal(t, []any{"queryName", "sql"}, items["required"])
	kind := items["properties"].(map[string]any)["kind"].(map[string]any)
	assert.Equal(t, []any{"a", "b"}, kind["enum"])
}

func TestConform_Nullable(t *testing.T) {
	s := Object("", map[string]*Schema{
		"score": {Type: TypeNumber, Nullable: true},
		"tier":  {Type: TypeString, Enum: []string{"low", "high"}, Nullable: true},
		"count": {Type: TypeInteger},
	}, []string{"score", "tier", "count"})

	var out map[string]any
	require.NoError(t, Conform(s, []byte(`{"score":null,"tier":null,"count":3}`), &out))
	assert.Nil(t, out["score"])
	assert.Equal(t, 3.0, out["count"])

	assert.Error(t, Conform(s, []byte(`{"score":1.5,"tier":"mid","count":3}`), &out))
	assert.Error(t, Conform(s, []byte(`{"score":1.5,"tier":"low","count":null}`), &out))
	assert.Error(t, Conform(s, []byte(`{"score":"1.5","tier":"low","count":3}`), &out))
}
