// Copyright (c) 2025 Taproom
// Licensed under the MIT License. See LICENSE file in the project root for details.

// Package chart selects a chart configuration for a batch of query results.
//
// The generation service picks the chart kind, field mappings and, for
// several results, how to consolidate them. Everything the renderer relies
// on is then enforced locally: a consolidated config must label every value
// field, time-series points are emitted oldest first with month and year
// labels, and monetary fields carry a currency marker.
package chart

import (
	"context"
	"fmt"
	"slices"
	"strings"

	"go.uber.org/zap"

	apperr "taproom/cli/internal/errors"
	"taproom/cli/internal/generation"
	"taproom/cli/internal/schema"
	"taproom/cli/internal/sqlexec"
)

// SchemaName identifies the chart configuration output shape.
const SchemaName = "chart_config"

// Kind is the chart type.
type Kind string

const (
	Line    Kind = "line"
	Bar     Kind = "bar"
	Pie     Kind = "pie"
	Scatter Kind = "scatter"
	Area    Kind = "area"
	Radar   Kind = "radar"
	Polar   Kind = "polar"
	Gauge   Kind = "gauge"
	Heatmap Kind = "heatmap"
	Treemap Kind = "treemap"
	Table   Kind = "table"
)

// Kinds is the closed set of chart kinds.
var Kinds = []Kind{Line, Bar, Pie, Scatter, Area, Radar, Polar, Gauge, Heatmap, Treemap, Table}

// Method is how several result sets are combined into one chart.
type Method string

const (
	Merge Method = "merge"
	Stack Method = "stack"
	Join  Method = "join"
)

// Methods is the closed set of consolidation methods.
var Methods = []Method{Merge, Stack, Join}

// SourceField names the column that carries the query name in stacked data.
const SourceField = "source"

// ConsolidationSpec describes how several results become one chart.
type ConsolidationSpec struct {
	Method        Method            `json:"method"`
	KeyField      string            `json:"keyField,omitempty"`
	ValueFields   []string          `json:"valueFields"`
	LabelFields   map[string]string `json:"labelFields"`
	SourceQueries []string          `json:"sourceQueries"`
}

// Format holds rendering hints.
type Format struct {
	Currency           string   `json:"currency,omitempty"`
	ThousandsSeparator bool     `json:"thousandsSeparator"`
	MonetaryFields     []string `json:"monetaryFields,omitempty"`
	// TimeLayout is the Go layout used for time labels on the x axis.
	TimeLayout string `json:"timeLayout,omitempty"`
}

// ChartConfig is a renderable chart specification.
type ChartConfig struct {
	Kind              Kind               `json:"type"`
	Title             string             `json:"title"`
	Description       string             `json:"description"`
	Takeaway          string             `json:"takeaway"`
	XKey              string             `json:"xKey"`
	YKeys             []string           `json:"yKeys"`
	MultipleLines     bool               `json:"multipleLines,omitempty"`
	MeasurementColumn string             `json:"measurementColumn,omitempty"`
	LineCategories    []string           `json:"lineCategories,omitempty"`
	Legend            bool               `json:"legend"`
	Labels            map[string]string  `json:"labels,omitempty"`
	Format            Format             `json:"format"`
	TimeSeries        bool               `json:"timeSeries"`
	IsConsolidated    bool               `json:"isConsolidated"`
	Consolidation     *ConsolidationSpec `json:"consolidation,omitempty"`
	Data              []map[string]any   `json:"data"`
}

// Consolidated reports whether the config carries an active consolidation.
func (c ChartConfig) Consolidated() bool {
	return c.IsConsolidated && c.Consolidation != nil
}

// Visualizer produces chart configurations.
type Visualizer struct {
	svc    generation.Service
	desc   *schema.Descriptor
	sample int
	log    *zap.Logger
}

// Options configures a Visualizer.
type Options struct {
	// SampleRows bounds the rows of each result sent to the service.
	SampleRows int
	Logger     *zap.Logger
}

// New creates a Visualizer.
func New(svc generation.Service, desc *schema.Descriptor, opts Options) *Visualizer {
	if opts.SampleRows <= 0 {
		opts.SampleRows = 5
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	return &Visualizer{svc: svc, desc: desc, sample: opts.SampleRows, log: opts.Logger}
}

// Visualize returns a chart configuration for results.
func (v *Visualizer) Visualize(ctx context.Context, results []sqlexec.QueryResult, userText string) (ChartConfig, error) {
	return v.visualize(ctx, results, userText, true)
}

// VisualizeWithRetry calls Visualize and, when the consolidated config it
// gets back is unusable, asks once more for an unconsolidated one.
func (v *Visualizer) VisualizeWithRetry(ctx context.Context, results []sqlexec.QueryResult, userText string) (ChartConfig, error) {
	cfg, err := v.visualize(ctx, results, userText, true)
	if err == nil || !isConsolidationError(err) || ctx.Err() != nil {
		return cfg, err
	}
	v.log.Info("retrying chart without consolidation", zap.Error(err))
	return v.visualize(ctx, results, userText, false)
}

func (v *Visualizer) visualize(ctx context.Context, results []sqlexec.QueryResult, userText string, consolidate bool) (ChartConfig, error) {
	if len(results) == 0 {
		return ChartConfig{}, apperr.Visualization("no results to visualize", "", nil)
	}
	req := generation.Request{
		SchemaName:    SchemaName,
		SystemPrompt:  systemPrompt(v.desc),
		CurrentPrompt: userPrompt(results, userText, v.sample, consolidate),
		Schema:        OutputSchema(consolidate),
	}
	raw, err := v.svc.Generate(ctx, req)
	if err != nil {
		v.log.Warn("chart generation failed", zap.Error(err))
		return ChartConfig{}, apperr.Visualization("failed to generate chart configuration", "", err)
	}
	var w wireConfig
	if err := generation.Conform(req.Schema, raw, &w); err != nil {
		return ChartConfig{}, apperr.Visualization("malformed chart configuration", "", err)
	}
	cfg := w.config()
	if !consolidate {
		cfg.IsConsolidated, cfg.Consolidation = false, nil
	}
	if err := finalize(&cfg, results); err != nil {
		v.log.Warn("chart configuration rejected", zap.Error(err))
		return ChartConfig{}, err
	}
	return cfg, nil
}

// consolidationMessage prefixes every consolidation rejection.
const consolidationMessage = "invalid consolidation"

func isConsolidationError(err error) bool {
	e, ok := apperr.As(err)
	return ok && e.Kind == apperr.VisualizationFailed && strings.HasPrefix(e.Message, consolidationMessage)
}

// validateConsolidation checks an active consolidation's fields.
func validateConsolidation(c *ConsolidationSpec) error {
	if !slices.Contains(Methods, c.Method) {
		return apperr.Visualization(consolidationMessage+": unknown method", string(c.Method), nil)
	}
	if len(c.LabelFields) == 0 {
		return apperr.Visualization(consolidationMessage+": labelFields is empty", "labelFields", nil)
	}
	if len(c.ValueFields) == 0 {
		return apperr.Visualization(consolidationMessage+": valueFields is empty", "valueFields", nil)
	}
	for _, f := range c.ValueFields {
		if _, ok := c.LabelFields[f]; !ok {
			return apperr.Visualization(consolidationMessage+": value field has no label", f, nil)
		}
	}
	if (c.Method == Merge || c.Method == Join) && c.KeyField == "" {
		return apperr.Visualization(consolidationMessage+": keyField is required for "+string(c.Method), "keyField", nil)
	}
	return nil
}

// finalize validates cfg and builds its data from results.
func finalize(cfg *ChartConfig, results []sqlexec.QueryResult) error {
	if !slices.Contains(Kinds, cfg.Kind) {
		return apperr.Visualization("unknown chart kind", string(cfg.Kind), nil)
	}
	if cfg.IsConsolidated {
		if cfg.Consolidation == nil {
			return apperr.Visualization(consolidationMessage+": consolidation is missing", "consolidation", nil)
		}
		if err := validateConsolidation(cfg.Consolidation); err != nil {
			return err
		}
	}
	data, err := buildData(*cfg, results)
	if err != nil {
		return err
	}
	cfg.Data = data

	xKey := cfg.XKey
	if cfg.Consolidated() && cfg.Consolidation.KeyField != "" && xKey == "" {
		xKey = cfg.Consolidation.KeyField
		cfg.XKey = xKey
	}
	if layout, ok := orderByTime(cfg, xKey); ok {
		cfg.TimeSeries = true
		cfg.Format.TimeLayout = layout
	}
	applyMoney(cfg)
	return nil
}

func systemPrompt(d *schema.Descriptor) string {
	var b strings.Builder
	b.WriteString("You are a data visualization expert. Suggest the chart that best represents the data returned by the SQL queries and provide its complete configuration.\n\n")
	b.WriteString("The data comes from these tables:\n")
	b.WriteString(d.TablesText(false))
	b.WriteString("\n\nChart kinds:\n")
	b.WriteString("- line: time series or continuous data\n- bar: comparing categories\n- pie: proportions of a whole\n")
	b.WriteString("- scatter: correlation between two variables\n- area: cumulative totals over time\n- radar: comparing several variables\n")
	b.WriteString("- polar: cyclical or periodic data\n- gauge: a single value in a range\n- heatmap: patterns in a matrix\n")
	b.WriteString("- treemap: hierarchical data\n- table: data better read as a table\n\n")
	b.WriteString("Formatting rules:\n")
	b.WriteString("1. Time series run from oldest to newest. Skip missing periods; never break chronological order.\n")
	b.WriteString("2. Time labels include month and year (\"Jan 2023\"), or day, month and year for daily data (\"15 Jan 2023\").\n")
	b.WriteString("3. Labels of monetary fields (sales, costs, revenue, pay, tips) include \"($)\".\n")
	b.WriteString("4. Numbers use commas for thousands.\n\n")
	b.WriteString("When there are several queries, prefer one consolidated view: set isConsolidated and describe the consolidation. ")
	b.WriteString("labelFields is required and must give a display label for every value field.")
	return b.String()
}

func userPrompt(results []sqlexec.QueryResult, userText string, sample int, consolidate bool) string {
	var b strings.Builder
	b.WriteString("Create a chart configuration that best represents the data returned by these SQL queries.\n\n")
	fmt.Fprintf(&b, "User query: %s\n\nQuery results:\n%s\n\n", userText, sqlexec.PromptText(results, sample))
	switch {
	case !consolidate:
		b.WriteString("Do not consolidate. Chart the first query's results on their own.")
	case len(results) > 1:
		b.WriteString("There are several queries: strongly prefer a single consolidated view, and label every value field in labelFields.")
	default:
		b.WriteString("There is a single query; do not consolidate.")
	}
	return b.String()
}
