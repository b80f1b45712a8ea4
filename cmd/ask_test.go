// Copyright (c) 2025 Taproom
// Licensed under the MIT License. See LICENSE file in the project root for details.

package cmd

import (
	"encoding/json"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperr "taproom/cli/internal/errors"
	"taproom/cli/internal/pipeline"
	"taproom/cli/internal/planner"
	"taproom/cli/internal/safety"
	"taproom/cli/internal/sqlexec"
)

func TestToJSON(t *testing.T) {
	good := planner.CandidateQuery{Name: "sales_by_month", SQL: "SELECT 1 AS n"}
	bad := planner.CandidateQuery{Name: "cleanup", SQL: "SELECT 1; DROP TABLE sales"}
	cols := []string{"n"}
	out := &pipeline.Outcome{
		TurnID:     "t-1",
		UserText:   "sales?",
		Stage:      pipeline.StageCompleted,
		Candidates: []planner.CandidateQuery{good, bad},
		Verdicts: []safety.Verdict{
			{Candidate: good, Query: safety.ValidatedQuery{CandidateQuery: good}},
			{Candidate: bad, Err: apperr.Unsafe("cleanup", apperr.DisallowedKeyword, "drop")},
		},
		Queries: []safety.ValidatedQuery{{CandidateQuery: good}},
		Results: []sqlexec.QueryResult{{QueryName: "sales_by_month", Columns: cols, Rows: []sqlexec.Row{sqlexec.NewRow(cols, []any{int64(1)})}}},
		ArtifactErrs: map[pipeline.Stage]error{
			pipeline.StageVisualizing: apperr.Visualization("failed to generate chart configuration", "", errors.New("token=abc")),
		},
	}

	v := toJSON(out)
	assert.Equal(t, pipeline.StageCompleted, v.Stage)
	assert.Contains(t, v.Rejected["cleanup"], "disallowed-keyword")
	require.Len(t, v.Results, 1)
	assert.Equal(t, "SELECT 1 AS n", v.Results[0].SQL)
	assert.Equal(t, []map[string]any{{"n": int64(1)}}, v.Results[0].Rows)
	assert.Contains(t, v.Errors["visualizing"], "token=***")
	assert.Empty(t, v.Error)

	b, err := json.Marshal(v)
	require.NoError(t, err)
	assert.Contains(t, string(b), `"turnId":"t-1"`)
	assert.NotContains(t, string(b), `"chart"`)
}

func TestErrSilent(t *testing.T) {
	assert.NoError(t, errSilent(nil))
	base := apperr.Execution("q", errors.New("boom"))
	err := errSilent(base)
	var shown silentError
	assert.ErrorAs(t, err, &shown)
	assert.True(t, apperr.Is(err, apperr.ExecutionFailed))
}
