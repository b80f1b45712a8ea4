// Copyright (c) 2025 Taproom
// Licensed under the MIT License. See LICENSE file in the project root for details.

package sqlexec

import (
	"encoding/json"
	"math/big"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgtype"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRow_MarshalJSONKeepsColumnOrder(t *testing.T) {
	r := NewRow([]string{"month", "sales", "a"}, []any{"2024-01", 12.5, nil})
	b, err := json.Marshal(r)
	require.NoError(t, err)
	assert.Equal(t, `{"month":"2024-01","sales":12.5,"a":null}`, string(b))
}

func TestNewRow_ShortValues(t *testing.T) {
	r := NewRow([]string{"a", "b"}, []any{1})
	assert.Equal(t, 1, r.Get("a"))
	assert.Nil(t, r.Get("b"))
}

func TestNewRow_RepeatedColumns(t *testing.T) {
	r := NewRow([]string{"x", "x", "y", "x"}, []any{1, 2, 3, 4})
	assert.Equal(t, []string{"x", "x_2", "y", "x_3"}, r.Columns)
	assert.Equal(t, 2, r.Get("x_2"))

	b, err := json.Marshal(r)
	require.NoError(t, err)
	assert.Equal(t, `{"x":1,"x_2":2,"y":3,"x_3":4}`, string(b))
}

func TestUniqueColumns(t *testing.T) {
	tests := []struct {
		in   []string
		want []string
	}{
		{in: []string{"a", "b"}, want: []string{"a", "b"}},
		{in: []string{"x", "x"}, want: []string{"x", "x_2"}},
		{in: []string{"x", "x", "x_2"}, want: []string{"x", "x_3", "x_2"}},
		{in: nil, want: nil},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, UniqueColumns(tt.in), "%v", tt.in)
	}
}

func TestNormalize(t *testing.T) {
	id := [16]byte{0x12, 0x3e, 0x45, 0x67, 0xe8, 0x9b, 0x12, 0xd3, 0xa4, 0x56, 0x42, 0x66, 0x14, 0x17, 0x40, 0x00}
	var num pgtype.Numeric
	require.NoError(t, num.Scan("1234.25"))
	ts := time.Date(2024, 1, 15, 0, 0, 0, 0, time.UTC)

	tests := []struct {
		name string
		in   any
		want any
	}{
		{name: "nil", in: nil, want: nil},
		{name: "uuid array", in: id, want: "123e4567-e89b-12d3-a456-426614174000"},
		{name: "sixteen byte bytea", in: id[:], want: `\x123e4567e89b12d3a456426614174000`},
		{name: "other bytes", in: []byte{0xde, 0xad}, want: `\xdead`},
		{name: "numeric", in: num, want: 1234.25},
		{name: "null numeric", in: pgtype.Numeric{}, want: nil},
		{name: "big int", in: big.NewInt(42), want: float64(42)},
		{name: "time kept", in: ts, want: ts},
		{name: "string kept", in: "x", want: "x"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, normalize(tt.in))
		})
	}
}

func TestRelationFromMessage(t *testing.T) {
	tests := []struct {
		msg  string
		want string
		ok   bool
	}{
		{msg: `ERROR: relation "costs_groups" does not exist (SQLSTATE 42P01)`, want: "costs_groups", ok: true},
		{msg: `Catalog Error: Table with name time_entries does not exist!`, want: "time_entries", ok: true},
		{msg: `no such table: main.costs`, want: "main.costs", ok: true},
		{msg: `column "foo" does not exist`, ok: false},
	}
	for _, tt := range tests {
		t.Run(tt.msg, func(t *testing.T) {
			got, ok := relationFromMessage(tt.msg)
			assert.Equal(t, tt.ok, ok)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestQueryResult_Sample(t *testing.T) {
	r := QueryResult{Rows: make([]Row, 8)}
	assert.Len(t, r.Sample(5).Rows, 5)
	assert.Len(t, r.Rows, 8)
	assert.Len(t, r.Sample(20).Rows, 8)
}

func TestBaseName(t *testing.T) {
	assert.Equal(t, "costs", baseName(`public."Costs"`))
	assert.Equal(t, "costs", baseName("COSTS"))
}

func TestPromptText(t *testing.T) {
	rows := make([]Row, 7)
	for i := range rows {
		rows[i] = NewRow([]string{"n"}, []any{i})
	}
	text := PromptText([]QueryResult{
		{QueryName: "numbers", Description: "counting", Rows: rows},
		{QueryName: "empty"},
	}, 5)

	assert.Contains(t, text, "Query 1 (numbers): counting\nSample data (7 total rows):")
	assert.Contains(t, text, `"n": 4`)
	assert.NotContains(t, text, `"n": 5`)
	assert.Contains(t, text, "Query 2 (empty): \nSample data (0 total rows):\n[]")
}
