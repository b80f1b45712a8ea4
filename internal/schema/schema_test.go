// Copyright (c) 2025 Taproom
// Licensed under the MIT License. See LICENSE file in the project root for details.

package schema

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Builtin(t *testing.T) {
	d, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, "postgres", d.Dialect)
	assert.ElementsMatch(t,
		[]string{"time_entries", "item_selection_details", "costs", "menu_mappings", "costs_groups"},
		d.Relations())

	isd, ok := d.Table("ITEM_SELECTION_DETAILS")
	require.True(t, ok)
	assert.NotEmpty(t, isd.Columns)
	assert.NotEmpty(t, d.JoinRules)
	assert.Len(t, d.PlanningSteps, 6)
	assert.NotEmpty(t, d.Examples)
}

func TestParse_Invalid(t *testing.T) {
	tests := []struct {
		name   string
		input  string
		errMsg string
	}{
		{name: "not yaml", input: "tables: [", errMsg: "parse schema descriptor"},
		{name: "no tables", input: "name: x\n", errMsg: "no tables"},
		{name: "unnamed table", input: "tables:\n  - columns: [{name: a, type: text}]\n", errMsg: "has no name"},
		{name: "no columns", input: "tables:\n  - name: t\n", errMsg: "has no columns"},
		{
			name:   "duplicate",
			input:  "tables:\n  - name: t\n    columns: [{name: a, type: text}]\n  - name: T\n    columns: [{name: a, type: text}]\n",
			errMsg: "duplicate table",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse([]byte(tt.input))
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.errMsg)
		})
	}
}

func TestLoad_File(t *testing.T) {
	path := filepath.Join(t.TempDir(), "schema.yaml")
	content := "name: tiny\ndialect: duckdb\ntables:\n  - name: orders\n    columns:\n      - {name: id, type: integer}\n"
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))

	d, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "duckdb", d.Dialect)
	assert.Equal(t, []string{"orders"}, d.Relations())

	_, err = Load(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}

func TestPromptText(t *testing.T) {
	d, err := Load("")
	require.NoError(t, err)

	tables := d.TablesText(true)
	assert.Contains(t, tables, "Table: time_entries")
	assert.Contains(t, tables, "out_date\ttimestamp without time zone\tYES")
	assert.NotContains(t, d.TablesText(false), "# column_name")

	assert.Contains(t, d.ProcedureText(), "1. Pick the columns")
	assert.Contains(t, d.ExamplesText(), "user query: are we getting better or worse?")
	assert.Contains(t, d.JoinRulesText(), "- costs and costs_groups")
}
