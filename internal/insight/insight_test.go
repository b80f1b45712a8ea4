// Copyright (c) 2025 Taproom
// Licensed under the MIT License. See LICENSE file in the project root for details.

package insight_test

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperr "taproom/cli/internal/errors"
	"taproom/cli/internal/insight"
	"taproom/cli/internal/schema"
	"taproom/cli/internal/sqlexec"
	"taproom/cli/internal/testutil"
)

func result(name string, n int) sqlexec.QueryResult {
	cols := []string{"month", "total_sales"}
	r := sqlexec.QueryResult{QueryName: name, Description: name + " per month", Columns: cols}
	for i := 0; i < n; i++ {
		r.Rows = append(r.Rows, sqlexec.NewRow(cols, []any{"2023-01-01", float64(i)}))
	}
	return r
}

const fullReply = `{
 "summary":"Sales grew.",
 "keyFindings":[{"title":"Growth","description":"Up 10%","importance":"High"}],
 "recommendedActions":["Hire"],
 "trends":[{"variable":"total_sales","description":"up","direction":"INCREASING"}],
 "correlations":[{"variables":["labor","sales"],"relationship":"more staff, more sales","strength":"moderate"}],
 "crossQueryInsights":[{"title":"Labor drives sales","description":"d","relevance":"primary"}]
}`

func newEngine(t *testing.T, gen *testutil.Generator) *insight.Engine {
	t.Helper()
	d, err := schema.Load("")
	require.NoError(t, err)
	return insight.New(gen, d, insight.Options{})
}

func TestAnalyze_SingleResult(t *testing.T) {
	gen := testutil.NewGenerator().Reply(insight.SchemaName, fullReply)
	r, err := newEngine(t, gen).Analyze(context.Background(), []sqlexec.QueryResult{result("Sales", 12)}, "how are sales?")
	require.NoError(t, err)

	assert.Empty(t, r.CrossQueryInsights, "one result never yields cross-query insights")
	require.Len(t, r.KeyFindings, 1)
	assert.Equal(t, insight.High, r.KeyFindings[0].Importance)
	assert.Equal(t, insight.Increasing, r.Trends[0].Direction)

	req := gen.RequestsFor(insight.SchemaName)[0]
	assert.NotContains(t, req.Schema.Properties, "crossQueryInsights")
	assert.Contains(t, req.CurrentPrompt, "Sample data (12 total rows)")
	assert.NotContains(t, req.CurrentPrompt, `"total_sales": 5`, "sampled to five rows")
}

func TestAnalyze_SeveralResults(t *testing.T) {
	gen := testutil.NewGenerator().Reply(insight.SchemaName, fullReply)
	results := []sqlexec.QueryResult{result("Sales", 3), result("Labor", 3)}
	r, err := newEngine(t, gen).Analyze(context.Background(), results, "q")
	require.NoError(t, err)
	require.Len(t, r.CrossQueryInsights, 1)
	assert.Equal(t, insight.Primary, r.CrossQueryInsights[0].Relevance)
	assert.Contains(t, gen.RequestsFor(insight.SchemaName)[0].Schema.Properties, "crossQueryInsights")
}

func TestAnalyze_OptionalSections(t *testing.T) {
	gen := testutil.NewGenerator().Reply(insight.SchemaName, `{"summary":"flat","keyFindings":[]}`)
	r, err := newEngine(t, gen).Analyze(context.Background(), []sqlexec.QueryResult{result("Sales", 1)}, "q")
	require.NoError(t, err)
	assert.NotNil(t, r.KeyFindings)
	assert.Empty(t, r.Anomalies)
	assert.Empty(t, r.RecommendedActions)
}

func TestAnalyze_Failures(t *testing.T) {
	tests := []struct {
		name  string
		reply string
		err   error
	}{
		{name: "service error", err: errors.New("deadline exceeded")},
		{name: "missing key findings", reply: `{"summary":"s"}`},
		{name: "unknown importance", reply: `{"summary":"s","keyFindings":[{"title":"t","description":"d","importance":"urgent"}]}`},
		{name: "not json", reply: `sorry, I can't`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			gen := testutil.NewGenerator()
			if tt.err != nil {
				gen.Fail(insight.SchemaName, tt.err)
			} else {
				gen.Reply(insight.SchemaName, tt.reply)
			}
			_, err := newEngine(t, gen).Analyze(context.Background(), []sqlexec.QueryResult{result("Sales", 1)}, "q")
			assert.Equal(t, apperr.InsightFailed, apperr.KindOf(err))
		})
	}

	_, err := newEngine(t, testutil.NewGenerator()).Analyze(context.Background(), nil, "q")
	assert.True(t, apperr.Is(err, apperr.InsightFailed))
}
