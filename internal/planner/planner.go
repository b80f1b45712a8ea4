// Copyright (c) 2025 Taproom
// Licensed under the MIT License. See LICENSE file in the project root for details.

// Package planner turns a user question into an ordered batch of candidate
// SQL queries. It builds the conversation context (system turn, bounded replay
// of prior turns, current turn) against the schema descriptor and calls the
// structured generation service once per turn.
package planner

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"go.uber.org/zap"

	apperr "taproom/cli/internal/errors"
	"taproom/cli/internal/generation"
	"taproom/cli/internal/schema"
)

// SchemaName identifies the candidate batch output shape.
const SchemaName = "candidate_queries"

// CandidateQuery is an unvalidated query proposed by the generation service.
type CandidateQuery struct {
	Name        string `json:"queryName"`
	Description string `json:"queryDescription"`
	SQL         string `json:"sql"`
}

// PriorTurn is one completed exchange replayed into the next context.
type PriorTurn struct {
	UserText string
	// Reply is the plain assistant content, used when Queries is empty.
	Reply   string
	Queries []CandidateQuery
	// RowCount is the number of rows the primary result returned.
	RowCount int
	// Sample is the first row of the primary result, or nil.
	Sample any
}

// Options bounds the replayed context.
type Options struct {
	PriorSQLChars    int
	PriorSampleChars int
	PriorRowCap      int
	// MaxPriorTurns keeps only the most recent prior turns. Zero keeps all.
	MaxPriorTurns int
	Logger        *zap.Logger
}

// DefaultOptions returns the stock replay bounds.
func DefaultOptions() Options {
	return Options{PriorSQLChars: 300, PriorSampleChars: 200, PriorRowCap: 100}
}

// Planner generates candidate batches.
type Planner struct {
	svc  generation.Service
	desc *schema.Descriptor
	opts Options
	log  *zap.Logger
}

// New creates a planner. Zero bounds fall back to DefaultOptions.
func New(svc generation.Service, desc *schema.Descriptor, opts Options) *Planner {
	def := DefaultOptions()
	if opts.PriorSQLChars <= 0 {
		opts.PriorSQLChars = def.PriorSQLChars
	}
	if opts.PriorSampleChars <= 0 {
		opts.PriorSampleChars = def.PriorSampleChars
	}
	if opts.PriorRowCap <= 0 {
		opts.PriorRowCap = def.PriorRowCap
	}
	log := opts.Logger
	if log == nil {
		log = zap.NewNop()
	}
	return &Planner{svc: svc, desc: desc, opts: opts, log: log}
}

// OutputSchema is the schema requested from the generation service.
func OutputSchema() *generation.Schema {
	query := generation.Object("", map[string]*generation.Schema{
		"queryName":        generation.String("A short name describing what this query calculates"),
		"queryDescription": generation.String("A brief description of what this query does and what insights it provides"),
		"sql":              generation.String("The SQL query to execute"),
	}, []string{"queryName", "queryDescription", "sql"})
	return generation.Object("", map[string]*generation.Schema{
		"queries": generation.Array("Queries in priority order; the first is the primary query", query),
	}, []string{"queries"})
}

// Generate returns the ordered candidate batch for userText. The first
// element is the primary candidate. Any failure is a generation error and no
// candidates are returned.
func (p *Planner) Generate(ctx context.Context, userText string, prior []PriorTurn) ([]CandidateQuery, error) {
	req := p.BuildContext(userText, prior)
	raw, err := p.svc.Generate(ctx, req)
	if err != nil {
		p.log.Warn("query generation failed", zap.Error(err))
		return nil, apperr.Generation("failed to generate query", err)
	}

	var out struct {
		Queries []CandidateQuery `json:"queries"`
	}
	if err := generation.Conform(req.Schema, raw, &out); err != nil {
		p.log.Warn("query generation returned nonconforming output", zap.Error(err))
		return nil, apperr.Generation("malformed candidate batch", err)
	}
	if len(out.Queries) == 0 {
		return nil, apperr.Generation("generation returned no queries", nil)
	}
	for i, q := range out.Queries {
		if strings.TrimSpace(q.Name) == "" || strings.TrimSpace(q.SQL) == "" {
			return nil, apperr.Generation(fmt.Sprintf("candidate %d is missing a name or sql", i), nil)
		}
	}
	p.log.Info("generated candidate batch", zap.Int("queries", len(out.Queries)), zap.String("primary", out.Queries[0].Name))
	return out.Queries, nil
}

// BuildContext assembles the generation request for one turn.
func (p *Planner) BuildContext(userText string, prior []PriorTurn) generation.Request {
	if n := p.opts.MaxPriorTurns; n > 0 && len(prior) > n {
		prior = prior[len(prior)-n:]
	}
	history := make([]generation.Turn, 0, 2*len(prior))
	for _, t := range prior {
		if t.UserText != "" {
			history = append(history, generation.Turn{Role: generation.RoleUser, Content: t.UserText})
		}
		if reply := p.replay(t); reply != "" {
			history = append(history, generation.Turn{Role: generation.RoleAssistant, Content: reply})
		}
	}
	return generation.Request{
		SchemaName:    SchemaName,
		SystemPrompt:  SystemPrompt(p.desc),
		History:       history,
		CurrentPrompt: "Generate the SQL query or queries necessary to retrieve the data the user wants: " + userText,
		Schema:        OutputSchema(),
	}
}

func (p *Planner) replay(t PriorTurn) string {
	if len(t.Queries) == 0 {
		return t.Reply
	}
	parts := make([]string, len(t.Queries))
	for i, q := range t.Queries {
		parts[i] = fmt.Sprintf("Query: %s\nSQL: %s", q.Name, truncate(q.SQL, p.opts.PriorSQLChars, "..."))
	}
	text := strings.Join(parts, "\n\n")
	if t.RowCount > 0 {
		text += fmt.Sprintf("\n\nResults: %d rows returned", min(t.RowCount, p.opts.PriorRowCap))
		if t.Sample != nil {
			if b, err := json.Marshal(t.Sample); err == nil {
				text += "\nSample: " + truncate(string(b), p.opts.PriorSampleChars, "")
			}
		}
	}
	return text
}

func truncate(s string, n int, marker string) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n]) + marker
}

// SystemPrompt renders the planner's system turn from the descriptor.
func SystemPrompt(d *schema.Descriptor) string {
	var b strings.Builder
	fmt.Fprintf(&b, "You are a %s SQL expert. %s\n\n", dialectName(d.Dialect), strings.TrimSpace(d.Context))
	b.WriteString("Only generate read-only queries (SELECT or WITH). Return one or more queries; put the query that best answers the question first.\n\n")
	b.WriteString("The tables are:\n\n")
	b.WriteString(d.TablesText(true))
	if len(d.JoinRules) > 0 {
		b.WriteString("\n\nJoin rules:\n")
		b.WriteString(d.JoinRulesText())
	}
	if len(d.Guidance) > 0 {
		b.WriteString("\n\nGuidance:\n")
		b.WriteString(d.GuidanceText())
	}
	if len(d.Examples) > 0 {
		b.WriteString("\n\nWorked examples:\n\n")
		b.WriteString(d.ExamplesText())
	}
	if len(d.PlanningSteps) > 0 {
		b.WriteString("\n\nWhen creating the query, first come up with a query plan. Step by step:\n")
		b.WriteString(d.ProcedureText())
	}
	return b.String()
}

func dialectName(d string) string {
	switch strings.ToLower(d) {
	case "duckdb":
		return "DuckDB"
	default:
		return "PostgreSQL"
	}
}
