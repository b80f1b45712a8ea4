// Copyright (c) 2025 Taproom
// Licensed under the MIT License. See LICENSE file in the project root for details.

package pipeline_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
	"go.uber.org/zap/zaptest"

	"taproom/cli/internal/chart"
	apperr "taproom/cli/internal/errors"
	"taproom/cli/internal/explain"
	"taproom/cli/internal/insight"
	"taproom/cli/internal/pipeline"
	"taproom/cli/internal/planner"
	"taproom/cli/internal/schema"
	"taproom/cli/internal/testutil"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

const (
	twoQueries = `{"queries":[
	 {"queryName":"Monthly sales","queryDescription":"sales per month","sql":"SELECT DATE_TRUNC('month', order_date) AS month, SUM(net_price) AS total_sales FROM item_selection_details GROUP BY month"},
	 {"queryName":"Monthly labor","queryDescription":"labor per month","sql":"SELECT DATE_TRUNC('month', in_date) AS month, SUM(total_pay) AS labor_cost FROM time_entries GROUP BY month"}]}`
	explanations = `{"explanations":[
	 {"queryName":"Monthly sales","overallPurpose":"p","sections":[{"section":"FROM item_selection_details","explanation":"orders"}]},
	 {"queryName":"Monthly labor","overallPurpose":"p","sections":[{"section":"FROM time_entries","explanation":"shifts"}]}]}`
	chartReply = `{"type":"line","title":"Sales and labor","description":"d","takeaway":"t","xKey":"month",
	 "yKeys":["total_sales","labor_cost"],"legend":true,"isConsolidated":true,
	 "consolidation":{"method":"merge","keyField":"month","valueFields":["total_sales","labor_cost"],
	  "labelFields":[{"field":"total_sales","label":"Sales"},{"field":"labor_cost","label":"Labor"}],
	  "sourceQueries":["Monthly sales","Monthly labor"]}}`
	report = `{"summary":"Sales outpace labor.","keyFindings":[{"title":"t","description":"d","importance":"high"}],
	 "crossQueryInsights":[{"title":"Labor share","description":"d","relevance":"primary"}]}`
)

func store() *testutil.Store {
	return testutil.NewStore().
		On("FROM item_selection_details", testutil.Table{
			Columns: []string{"month", "total_sales"},
			Rows:    [][]any{{"2024-01-01", 100.0}, {"2024-02-01", 140.0}},
		}).
		On("FROM time_entries", testutil.Table{
			Columns: []string{"month", "labor_cost"},
			Rows:    [][]any{{"2024-01-01", 40.0}, {"2024-02-01", 45.0}},
		})
}

func fullGenerator() *testutil.Generator {
	return testutil.NewGenerator().
		Reply(planner.SchemaName, twoQueries).
		Reply(explain.SchemaName, explanations).
		Reply(chart.SchemaName, chartReply).
		Reply(insight.SchemaName, report)
}

func newCore(t *testing.T, gen *testutil.Generator, st *testutil.Store) *pipeline.Core {
	t.Helper()
	d, err := schema.Load("")
	require.NoError(t, err)
	return pipeline.NewCore(gen, st, d, pipeline.CoreOptions{
		Planner: planner.DefaultOptions(),
		Logger:  zaptest.NewLogger(t),
	})
}

func TestCoordinator_CompletedTurn(t *testing.T) {
	events := make(chan pipeline.Event, 64)
	opts := pipeline.DefaultOptions()
	opts.Events = events
	c := newCore(t, fullGenerator(), store()).Coordinator(opts)

	out, err := c.Run(context.Background(), "sales vs labor", nil)
	require.NoError(t, err)
	assert.True(t, out.Completed())
	assert.NotEmpty(t, out.TurnID)

	require.Len(t, out.Results, 2)
	assert.Equal(t, "Monthly sales", out.Results[0].QueryName)
	assert.Equal(t, "Monthly labor", out.Results[1].QueryName)
	assert.Len(t, out.Explanations, 2)
	require.NotNil(t, out.Chart)
	assert.True(t, out.Chart.Consolidated())
	require.NotNil(t, out.Report)
	assert.Len(t, out.Report.CrossQueryInsights, 1)
	assert.Empty(t, out.ArtifactErrs)

	close(events)
	var last pipeline.Event
	verdicts := 0
	for ev := range events {
		assert.Equal(t, out.TurnID, ev.TurnID)
		if ev.Type == pipeline.EventVerdict {
			verdicts++
			assert.True(t, ev.Accepted)
		}
		last = ev
	}
	assert.Equal(t, 2, verdicts)
	assert.Equal(t, pipeline.EventTurn, last.Type)
	assert.Equal(t, pipeline.StageCompleted, last.Stage)

	for _, s := range []pipeline.Stage{pipeline.StageDrafting, pipeline.StageExecuting, pipeline.StageAnalyzing} {
		state, ok := c.Progress().State(s)
		assert.True(t, ok, s)
		assert.Equal(t, pipeline.StateDone, state, s)
	}
}

func TestCoordinator_ArtifactIsolation(t *testing.T) {
	gen := fullGenerator().Fail(insight.SchemaName, errors.New("quota exceeded"))
	out, err := newCore(t, gen, store()).Coordinator(pipeline.DefaultOptions()).Run(context.Background(), "q", nil)
	require.NoError(t, err)
	assert.True(t, out.Completed())

	assert.Nil(t, out.Report)
	assert.Equal(t, apperr.InsightFailed, apperr.KindOf(out.ArtifactErrs[pipeline.StageAnalyzing]))
	assert.NotNil(t, out.Chart)
	assert.Len(t, out.Explanations, 2)
}

func TestCoordinator_ArtifactTimeout(t *testing.T) {
	gen := fullGenerator().Delay(chart.SchemaName, 10*time.Second)
	opts := pipeline.DefaultOptions()
	opts.ArtifactTimeout = 50 * time.Millisecond
	out, err := newCore(t, gen, store()).Coordinator(opts).Run(context.Background(), "q", nil)
	require.NoError(t, err)

	assert.Nil(t, out.Chart)
	assert.Equal(t, apperr.VisualizationFailed, apperr.KindOf(out.ArtifactErrs[pipeline.StageVisualizing]))
	assert.NotNil(t, out.Report)
	assert.Len(t, out.Explanations, 2)
}

func TestCoordinator_Aborts(t *testing.T) {
	unsafe := `{"queries":[
	 {"queryName":"ok","queryDescription":"d","sql":"SELECT month FROM item_selection_details"},
	 {"queryName":"wipe","queryDescription":"d","sql":"DELETE FROM costs"}]}`

	tests := []struct {
		name  string
		gen   *testutil.Generator
		store *testutil.Store
		stage pipeline.Stage
		kind  apperr.Kind
	}{
		{
			name:  "generation failure",
			gen:   testutil.NewGenerator().Fail(planner.SchemaName, errors.New("unavailable")),
			store: store(),
			stage: pipeline.StageDrafting,
			kind:  apperr.GenerationFailed,
		},
		{
			name:  "unsafe candidate",
			gen:   testutil.NewGenerator().Reply(planner.SchemaName, unsafe),
			store: store(),
			stage: pipeline.StageValidating,
			kind:  apperr.UnsafeQuery,
		},
		{
			name:  "missing bootstrap relation",
			gen:   fullGenerator(),
			store: testutil.NewStore().On("FROM item_selection_details", testutil.Table{Columns: []string{"month"}}).Missing("FROM time_entries", "time_entries"),
			stage: pipeline.StageExecuting,
			kind:  apperr.TableNotFound,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := newCore(t, tt.gen, tt.store).Coordinator(pipeline.DefaultOptions())
			out, err := c.Run(context.Background(), "q", nil)
			assert.Equal(t, tt.kind, apperr.KindOf(err))
			assert.Equal(t, pipeline.StageAborted, out.Stage)
			assert.Equal(t, err, out.Err)
			assert.Nil(t, out.Results, "no partial results")
			assert.Nil(t, out.Chart)
			state, _ := c.Progress().State(tt.stage)
			assert.Equal(t, pipeline.StateFailed, state)
			if tt.kind == apperr.UnsafeQuery {
				assert.Empty(t, tt.store.Queries(), "nothing reaches the store")
			}
		})
	}
}

func TestCoordinator_AcceptedSubset(t *testing.T) {
	mixed := `{"queries":[
	 {"queryName":"Monthly sales","queryDescription":"d","sql":"SELECT month, total_sales FROM item_selection_details"},
	 {"queryName":"wipe","queryDescription":"d","sql":"SELECT 1; DROP TABLE costs"}]}`
	opts := pipeline.DefaultOptions()
	opts.RequireAllAccepted = false

	st := store()
	core := newCore(t, testutil.NewGenerator().
		Reply(planner.SchemaName, mixed).
		Reply(explain.SchemaName, `{"explanations":[{"queryName":"Monthly sales","overallPurpose":"p","sections":[{"section":"FROM item_selection_details","explanation":"x"}]}]}`).
		Reply(chart.SchemaName, `{"type":"bar","title":"t","description":"d","takeaway":"t","xKey":"month","yKeys":["total_sales"],"legend":false,"isConsolidated":false,"consolidation":null}`).
		Reply(insight.SchemaName, report), st)

	out, err := core.Coordinator(opts).Run(context.Background(), "q", nil)
	require.NoError(t, err)
	require.Len(t, out.Verdicts, 2)
	assert.False(t, out.Verdicts[1].Accepted())
	require.Len(t, out.Results, 1)
	assert.Equal(t, "Monthly sales", out.Results[0].QueryName)
	assert.Len(t, st.Queries(), 1)
	assert.Empty(t, out.Report.CrossQueryInsights, "single result")
}

func TestCoordinator_Concurrent(t *testing.T) {
	opts := pipeline.DefaultOptions()
	opts.Concurrent = true
	out, err := newCore(t, fullGenerator(), store()).Coordinator(opts).Run(context.Background(), "q", nil)
	require.NoError(t, err)
	require.Len(t, out.Results, 2)
	assert.Equal(t, "Monthly sales", out.Results[0].QueryName)
}

func TestSession_History(t *testing.T) {
	gen := fullGenerator()
	s := pipeline.NewSession(newCore(t, gen, store()).Coordinator(pipeline.DefaultOptions()), nil)

	_, err := s.Submit(context.Background(), "sales vs labor")
	require.NoError(t, err)
	require.Equal(t, 1, s.History().Len())

	prior := s.History().Turns()[0]
	assert.Equal(t, "sales vs labor", prior.UserText)
	assert.Len(t, prior.Queries, 2)
	assert.Equal(t, 2, prior.RowCount)
	assert.NotNil(t, prior.Sample)
	assert.Equal(t, "Sales outpace labor.", prior.Reply)

	_, err = s.Submit(context.Background(), "and last month?")
	require.NoError(t, err)
	reqs := gen.RequestsFor(planner.SchemaName)
	require.Len(t, reqs, 2)
	require.Len(t, reqs[1].History, 2, "prior user and assistant turns")
	assert.Contains(t, reqs[1].History[1].Content, "Query: Monthly sales")
}

func TestSession_AbortedTurnNotRecorded(t *testing.T) {
	gen := testutil.NewGenerator().Fail(planner.SchemaName, errors.New("down"))
	s := pipeline.NewSession(newCore(t, gen, store()).Coordinator(pipeline.DefaultOptions()), nil)
	_, err := s.Submit(context.Background(), "q")
	assert.Error(t, err)
	assert.Zero(t, s.History().Len())
}

func TestSession_Supersede(t *testing.T) {
	gen := fullGenerator().Delay(planner.SchemaName, 10*time.Second)
	s := pipeline.NewSession(newCore(t, gen, store()).Coordinator(pipeline.DefaultOptions()), nil)

	first := make(chan error, 1)
	go func() {
		_, err := s.Submit(context.Background(), "slow question")
		first <- err
	}()
	require.Eventually(t, func() bool { return len(gen.RequestsFor(planner.SchemaName)) == 1 }, 2*time.Second, 5*time.Millisecond)
	gen.Delay(planner.SchemaName, 0)

	out, err := s.Submit(context.Background(), "new question")
	require.NoError(t, err)
	assert.True(t, out.Completed())

	select {
	case err := <-first:
		assert.ErrorIs(t, err, pipeline.ErrSuperseded)
	case <-time.After(2 * time.Second):
		t.Fatal("superseded turn did not return")
	}
	turns := s.History().Turns()
	require.Len(t, turns, 1)
	assert.Equal(t, "new question", turns[0].UserText)
}

func TestProgress(t *testing.T) {
	p := pipeline.NewProgress()
	p.Start(pipeline.StageExplaining)
	p.Start(pipeline.StageVisualizing)
	p.Complete(pipeline.StageExplaining)
	assert.Equal(t, []pipeline.Stage{pipeline.StageVisualizing}, p.Running())
	p.Fail(pipeline.StageVisualizing, "boom")
	assert.True(t, p.HasFailures())
	_, ok := p.State(pipeline.StageAnalyzing)
	assert.False(t, ok)
	p.Reset()
	assert.False(t, p.HasFailures())

	var l pipeline.LineState
	assert.Equal(t, "long line", l.Pad("long line"))
	assert.Equal(t, "abc      ", l.Pad("abc"))
}
