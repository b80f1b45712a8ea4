// Copyright (c) 2025 Taproom
// Licensed under the MIT License. See LICENSE file in the project root for details.

package safety

import (
	"regexp"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperr "taproom/cli/internal/errors"
	"taproom/cli/internal/planner"
)

func TestCheck(t *testing.T) {
	tests := []struct {
		name    string
		sql     string
		reason  apperr.Reason
		keyword string
	}{
		{name: "select", sql: "SELECT * FROM costs"},
		{name: "with", sql: "  WITH m AS (SELECT 1) SELECT * FROM m"},
		{name: "lower leading whitespace", sql: "\n\tselect out_date from time_entries"},
		{name: "identifier containing keyword", sql: "SELECT update_count, created_at FROM costs"},
		{name: "drop table", sql: "DROP TABLE item_selection_details", reason: apperr.WrongStatementType, keyword: "drop"},
		{name: "update checked first", sql: "UPDATE costs SET sales = 0", reason: apperr.WrongStatementType, keyword: "update"},
		{name: "explain", sql: "EXPLAIN SELECT 1", reason: apperr.WrongStatementType, keyword: "explain"},
		{name: "empty", sql: "   ", reason: apperr.WrongStatementType},
		{name: "chained drop", sql: "SELECT 1; DROP TABLE costs", reason: apperr.DisallowedKeyword, keyword: "drop"},
		{name: "cte delete", sql: "WITH d AS (DELETE FROM costs RETURNING *) SELECT * FROM d", reason: apperr.DisallowedKeyword, keyword: "delete"},
		{name: "keyword in literal", sql: "SELECT * FROM costs WHERE note = 'grant money'", reason: apperr.DisallowedKeyword, keyword: "grant"},
		{name: "mixed case", sql: "select 1; TrUnCaTe costs", reason: apperr.DisallowedKeyword, keyword: "truncate"},
	}
	g := NewGate(nil)
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			q := planner.CandidateQuery{Name: "q", SQL: tt.sql}
			got, err := g.Check(q)
			if tt.reason == "" {
				require.NoError(t, err)
				assert.Equal(t, tt.sql, got.SQL, "original casing is preserved")
				return
			}
			require.Error(t, err)
			e, ok := apperr.As(err)
			require.True(t, ok)
			assert.Equal(t, apperr.UnsafeQuery, e.Kind)
			assert.Equal(t, tt.reason, e.Reason)
			assert.Equal(t, "q", e.Query)
			if tt.keyword != "" {
				assert.Equal(t, tt.keyword, e.Text)
			}
		})
	}
}

func TestCheck_DestructiveStatements(t *testing.T) {
	g := NewGate(nil)

	// A bare DROP fails the statement-type rule before the keyword rule sees
	// it; only a DROP behind a select reaches the keyword rule.
	_, err := g.Check(planner.CandidateQuery{Name: "a", SQL: "DROP TABLE item_selection_details"})
	e, _ := apperr.As(err)
	require.NotNil(t, e)
	assert.Equal(t, apperr.WrongStatementType, e.Reason)

	_, err = g.Check(planner.CandidateQuery{Name: "b", SQL: "SELECT 1 FROM x; DROP TABLE item_selection_details"})
	e, _ = apperr.As(err)
	require.NotNil(t, e)
	assert.Equal(t, apperr.DisallowedKeyword, e.Reason)

	_, err = g.Check(planner.CandidateQuery{Name: "c", SQL: "UPDATE costs SET sales = 0"})
	e, _ = apperr.As(err)
	require.NotNil(t, e)
	assert.Equal(t, apperr.WrongStatementType, e.Reason)
}

func TestCheck_AcceptedProperty(t *testing.T) {
	word := regexp.MustCompile(`\b(drop|delete|insert|update|alter|truncate|create|grant|revoke)\b`)
	inputs := []string{
		"select 1", "with x as (select 1) select * from x", "SELECT grantee FROM t",
		"select * from t where a = 'alter'", "commit", "select\ndelete", "with_totals", "selectall",
		"SELECT revoked_at FROM t", "  WITH RECURSIVE r AS (SELECT 1) SELECT * FROM r",
	}
	g := NewGate(nil)
	for _, in := range inputs {
		_, err := g.Check(planner.CandidateQuery{SQL: in})
		if err != nil {
			continue
		}
		norm := strings.ToLower(strings.TrimSpace(in))
		assert.True(t, strings.HasPrefix(norm, "select") || strings.HasPrefix(norm, "with"), in)
		assert.False(t, word.MatchString(norm), in)
	}
}

func TestCheckAll(t *testing.T) {
	batch := []planner.CandidateQuery{
		{Name: "ok1", SQL: "select 1"},
		{Name: "bad1", SQL: "delete from costs"},
		{Name: "ok2", SQL: "with a as (select 1) select * from a"},
		{Name: "bad2", SQL: "select 1; drop table costs"},
	}
	verdicts := NewGate(nil).CheckAll(batch)
	require.Len(t, verdicts, 4)
	for i, v := range verdicts {
		assert.Equal(t, batch[i].Name, v.Candidate.Name)
	}
	assert.True(t, verdicts[0].Accepted())
	assert.False(t, verdicts[1].Accepted())

	acc := Accepted(verdicts)
	require.Len(t, acc, 2)
	assert.Equal(t, "ok1", acc[0].Name)
	assert.Equal(t, "ok2", acc[1].Name)

	_, err := RequireAll(verdicts)
	e, ok := apperr.As(err)
	require.True(t, ok)
	assert.Equal(t, "bad1", e.Query)

	all, err := RequireAll(verdicts[:1])
	require.NoError(t, err)
	assert.Len(t, all, 1)
}
