// Copyright (c) 2025 Taproom
// Licensed under the MIT License. See LICENSE file in the project root for details.

// Package insight produces the narrative insights report for a batch of
// query results. Cross-query insights are only ever reported when the batch
// holds two or more results.
package insight

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"go.uber.org/zap"

	apperr "taproom/cli/internal/errors"
	"taproom/cli/internal/generation"
	"taproom/cli/internal/schema"
	"taproom/cli/internal/sqlexec"
)

// SchemaName identifies the insights report output shape.
const SchemaName = "insights_report"

type Importance string

const (
	High   Importance = "high"
	Medium Importance = "medium"
	Low    Importance = "low"
)

type Strength string

const (
	Strong   Strength = "strong"
	Moderate Strength = "moderate"
	Weak     Strength = "weak"
)

type Direction string

const (
	Increasing  Direction = "increasing"
	Decreasing  Direction = "decreasing"
	Fluctuating Direction = "fluctuating"
	Stable      Direction = "stable"
)

type Relevance string

const (
	Primary   Relevance = "primary"
	Secondary Relevance = "secondary"
)

type Finding struct {
	Title       string     `json:"title"`
	Description string     `json:"description"`
	Importance  Importance `json:"importance"`
}

type Anomaly struct {
	Description          string   `json:"description"`
	PossibleExplanations []string `json:"possibleExplanations"`
}

type Correlation struct {
	Variables    []string `json:"variables"`
	Relationship string   `json:"relationship"`
	Strength     Strength `json:"strength"`
}

type Trend struct {
	Variable    string    `json:"variable"`
	Description string    `json:"description"`
	Direction   Direction `json:"direction"`
}

// CrossQueryInsight connects data from more than one query.
type CrossQueryInsight struct {
	Title       string    `json:"title"`
	Description string    `json:"description"`
	Relevance   Relevance `json:"relevance"`
}

// Report is the insights report for one batch of results.
type Report struct {
	Summary            string              `json:"summary"`
	KeyFindings        []Finding           `json:"keyFindings"`
	RecommendedActions []string            `json:"recommendedActions,omitempty"`
	Anomalies          []Anomaly           `json:"anomalies,omitempty"`
	Correlations       []Correlation       `json:"correlations,omitempty"`
	Trends             []Trend             `json:"trends,omitempty"`
	CrossQueryInsights []CrossQueryInsight `json:"crossQueryInsights,omitempty"`
}

// enumFields are the report properties holding enum values.
var enumFields = map[string]bool{"importance": true, "strength": true, "direction": true, "relevance": true}

// OutputSchema is the schema requested from the generation service. The
// cross-query section is only offered when crossQuery is set.
func OutputSchema(crossQuery bool) *generation.Schema {
	str := generation.String
	finding := generation.Object("", map[string]*generation.Schema{
		"title":       str("A brief title for the insight"),
		"description": str("A detailed explanation of the insight"),
		"importance":  generation.Enum("The relative importance of this insight", string(High), string(Medium), string(Low)),
	}, []string{"title", "description", "importance"})
	anomaly := generation.Object("", map[string]*generation.Schema{
		"description":          str("Description of the anomaly or unusual pattern"),
		"possibleExplanations": generation.Array("Possible explanations for this anomaly", str("")),
	}, []string{"description", "possibleExplanations"})
	correlation := generation.Object("", map[string]*generation.Schema{
		"variables":    generation.Array("The variables that show correlation", str("")),
		"relationship": str("Description of the relationship between these variables"),
		"strength":     generation.Enum("The strength of the correlation", string(Strong), string(Moderate), string(Weak)),
	}, []string{"variables", "relationship", "strength"})
	trend := generation.Object("", map[string]*generation.Schema{
		"variable":    str("The variable showing a trend"),
		"description": str("Description of the trend"),
		"direction": generation.Enum("The direction of the trend",
			string(Increasing), string(Decreasing), string(Fluctuating), string(Stable)),
	}, []string{"variable", "description", "direction"})

	props := map[string]*generation.Schema{
		"summary":            str("A concise 1-2 sentence summary of the data"),
		"keyFindings":        generation.Array("Key findings and patterns in the data", finding),
		"recommendedActions": generation.Array("Suggested actions based on the data insights", str("")),
		"anomalies":          generation.Array("Any anomalies or unusual patterns in the data", anomaly),
		"correlations":       generation.Array("Notable correlations between different variables in the data", correlation),
		"trends":             generation.Array("Identified trends in the data over time or categories", trend),
	}
	order := []string{"summary", "keyFindings", "recommendedActions", "anomalies", "correlations", "trends"}
	optional := []string{"recommendedActions", "anomalies", "correlations", "trends"}
	if crossQuery {
		props["crossQueryInsights"] = generation.Array("Insights that connect or combine data from multiple queries",
			generation.Object("", map[string]*generation.Schema{
				"title":       str("A brief title for the cross-query insight"),
				"description": str("How the different data sources relate to each other"),
				"relevance":   generation.Enum("Whether this is a primary or secondary insight", string(Primary), string(Secondary)),
			}, []string{"title", "description", "relevance"}))
		order = append(order, "crossQueryInsights")
		optional = append(optional, "crossQueryInsights")
	}
	return generation.Object("", props, order, optional...)
}

// Engine produces insights reports.
type Engine struct {
	svc    generation.Service
	desc   *schema.Descriptor
	sample int
	log    *zap.Logger
}

// Options configures an Engine.
type Options struct {
	SampleRows int
	Logger     *zap.Logger
}

// New creates an Engine.
func New(svc generation.Service, desc *schema.Descriptor, opts Options) *Engine {
	if opts.SampleRows <= 0 {
		opts.SampleRows = 5
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	return &Engine{svc: svc, desc: desc, sample: opts.SampleRows, log: opts.Logger}
}

// Analyze returns the insights report for results.
func (e *Engine) Analyze(ctx context.Context, results []sqlexec.QueryResult, userText string) (Report, error) {
	if len(results) == 0 {
		return Report{}, apperr.Insight("no results to analyze", nil)
	}
	cross := len(results) > 1
	req := generation.Request{
		SchemaName:    SchemaName,
		SystemPrompt:  systemPrompt(e.desc, cross),
		CurrentPrompt: userPrompt(results, userText, e.sample, cross),
		Schema:        OutputSchema(cross),
	}
	raw, err := e.svc.Generate(ctx, req)
	if err != nil {
		e.log.Warn("insight generation failed", zap.Error(err))
		return Report{}, apperr.Insight("failed to generate data insights", err)
	}
	clean, err := lowerEnums(raw)
	if err != nil {
		return Report{}, apperr.Insight("malformed insights report", err)
	}
	var r Report
	if err := generation.Conform(req.Schema, clean, &r); err != nil {
		e.log.Warn("insights report rejected", zap.Error(err))
		return Report{}, apperr.Insight("malformed insights report", err)
	}
	if r.KeyFindings == nil {
		r.KeyFindings = []Finding{}
	}
	if !cross {
		r.CrossQueryInsights = nil
	}
	return r, nil
}

// lowerEnums lower-cases enum values anywhere in the document.
func lowerEnums(raw []byte) ([]byte, error) {
	var doc any
	if err := generation.Decode(raw, &doc); err != nil {
		return nil, err
	}
	var walk func(v any)
	walk = func(v any) {
		switch x := v.(type) {
		case map[string]any:
			for k, val := range x {
				if s, ok := val.(string); ok && enumFields[k] {
					x[k] = strings.ToLower(strings.TrimSpace(s))
					continue
				}
				walk(val)
			}
		case []any:
			for _, val := range x {
				walk(val)
			}
		}
	}
	walk(doc)
	return json.Marshal(doc)
}

func systemPrompt(d *schema.Descriptor, cross bool) string {
	var b strings.Builder
	b.WriteString("You are a data analyst and business intelligence expert for a restaurant business. ")
	b.WriteString("Analyze SQL query results and provide meaningful insights, patterns and recommendations based on the data.\n\n")
	b.WriteString("The data comes from these tables:\n")
	b.WriteString(d.TablesText(false))
	b.WriteString("\n\nProvide an analysis that includes a concise summary, key findings with their business implications, ")
	b.WriteString("recommended actions, anomalies, notable correlations and trends.\n")
	b.WriteString("Consider labor costs and efficiency, food costs and inventory, sales performance and menu popularity, and profitability (sales minus costs). ")
	b.WriteString("Be specific and reference actual values from the data. Avoid vague generalizations.")
	if cross {
		b.WriteString("\n\nSeveral query results are provided. In crossQueryInsights, report only insights that require data from more than one query to discover, ")
		b.WriteString("such as how labor patterns affect sales or how costs relate to menu popularity.")
	} else {
		b.WriteString("\n\nA single query result is provided. Do not make claims that connect it to other data.")
	}
	return b.String()
}

func userPrompt(results []sqlexec.QueryResult, userText string, sample int, cross bool) string {
	var b strings.Builder
	b.WriteString("Analyze the following SQL query results and provide meaningful insights, patterns and recommendations for this restaurant business.\n\n")
	fmt.Fprintf(&b, "User query: %s\n\nQuery results:\n%s\n\n", userText, sqlexec.PromptText(results, sample))
	if cross {
		b.WriteString("Provide a detailed analysis with actionable insights, including connections across the queries.")
	} else {
		b.WriteString("Provide a detailed analysis with actionable insights.")
	}
	return b.String()
}
