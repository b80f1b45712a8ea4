// Copyright (c) 2025 Taproom
// Licensed under the MIT License. See LICENSE file in the project root for details.

package pipeline

import (
	"context"

	"go.uber.org/zap"

	"taproom/cli/internal/chart"
	"taproom/cli/internal/explain"
	"taproom/cli/internal/generation"
	"taproom/cli/internal/insight"
	"taproom/cli/internal/planner"
	"taproom/cli/internal/safety"
	"taproom/cli/internal/schema"
	"taproom/cli/internal/sqlexec"
)

// CoreOptions configures NewCore.
type CoreOptions struct {
	Planner planner.Options
	// SampleRows bounds the rows of each result sent to the artifact generators.
	SampleRows int
	// Bootstrap lists extra relations whose absence means the database has
	// not been seeded. The descriptor's tables are always included.
	Bootstrap []string
	Logger    *zap.Logger
}

// Core exposes the individual operations of a turn.
type Core struct {
	Planner    *planner.Planner
	Gate       *safety.Gate
	Executor   *sqlexec.Executor
	Explainer  *explain.Explainer
	Visualizer *chart.Visualizer
	Insights   *insight.Engine
}

// NewCore wires every stage to one generation service and one store.
func NewCore(svc generation.Service, store sqlexec.Store, desc *schema.Descriptor, opts CoreOptions) *Core {
	log := opts.Logger
	if log == nil {
		log = zap.NewNop()
	}
	popts := opts.Planner
	popts.Logger = log.Named("planner")
	bootstrap := append(desc.Relations(), opts.Bootstrap...)
	return &Core{
		Planner:    planner.New(svc, desc, popts),
		Gate:       safety.NewGate(log.Named("safety")),
		Executor:   sqlexec.New(store, sqlexec.Options{Bootstrap: bootstrap, Logger: log.Named("executor")}),
		Explainer:  explain.New(svc, desc, log.Named("explain")),
		Visualizer: chart.New(svc, desc, chart.Options{SampleRows: opts.SampleRows, Logger: log.Named("chart")}),
		Insights:   insight.New(svc, desc, insight.Options{SampleRows: opts.SampleRows, Logger: log.Named("insight")}),
	}
}

// Generate drafts candidate queries.
func (c *Core) Generate(ctx context.Context, userText string, prior []planner.PriorTurn) ([]planner.CandidateQuery, error) {
	return c.Planner.Generate(ctx, userText, prior)
}

// Execute validates the whole batch and runs it. Any rejection aborts before
// a query reaches the store.
func (c *Core) Execute(ctx context.Context, candidates []planner.CandidateQuery) ([]sqlexec.QueryResult, error) {
	queries, err := safety.RequireAll(c.Gate.CheckAll(candidates))
	if err != nil {
		return nil, err
	}
	return c.Executor.Run(ctx, queries)
}

// Explain explains candidates.
func (c *Core) Explain(ctx context.Context, userText string, candidates []planner.CandidateQuery) ([]explain.Explanation, error) {
	qs := make([]explain.Query, len(candidates))
	for i, q := range candidates {
		qs[i] = explain.Query{Name: q.Name, SQL: q.SQL}
	}
	return c.Explainer.Explain(ctx, userText, qs)
}

// Visualize picks a chart for results.
func (c *Core) Visualize(ctx context.Context, results []sqlexec.QueryResult, userText string) (chart.ChartConfig, error) {
	return c.Visualizer.VisualizeWithRetry(ctx, results, userText)
}

// Analyze produces the insights report for results.
func (c *Core) Analyze(ctx context.Context, results []sqlexec.QueryResult, userText string) (insight.Report, error) {
	return c.Insights.Analyze(ctx, results, userText)
}

// Coordinator returns a turn coordinator over the core's stages.
func (c *Core) Coordinator(opts Options) *Coordinator {
	return New(Stages{
		Planner:    c.Planner,
		Gate:       c.Gate,
		Executor:   c.Executor,
		Explainer:  c.Explainer,
		Visualizer: c.Visualizer,
		Insights:   c.Insights,
	}, opts)
}
