// Copyright (c) 2025 Taproom
// Licensed under the MIT License. See LICENSE file in the project root for details.

// Package explain decomposes generated SQL into plain-language sections.
package explain

import (
	"context"
	"fmt"
	"regexp"
	"strings"

	"go.uber.org/zap"

	apperr "taproom/cli/internal/errors"
	"taproom/cli/internal/generation"
	"taproom/cli/internal/schema"
)

// SchemaName identifies the explanations output shape.
const SchemaName = "explanations"

// Query is one query to explain.
type Query struct {
	Name string
	SQL  string
}

// Section pairs a verbatim fragment of the SQL with its explanation.
type Section struct {
	Section     string `json:"section"`
	Explanation string `json:"explanation"`
}

// Explanation is the decomposition of one query.
type Explanation struct {
	QueryName      string    `json:"queryName"`
	Sections       []Section `json:"sections"`
	OverallPurpose string    `json:"overallPurpose"`
}

// Explainer produces explanations with one generation call per batch.
type Explainer struct {
	svc  generation.Service
	desc *schema.Descriptor
	log  *zap.Logger
}

// New creates an Explainer. A nil logger discards output.
func New(svc generation.Service, desc *schema.Descriptor, log *zap.Logger) *Explainer {
	if log == nil {
		log = zap.NewNop()
	}
	return &Explainer{svc: svc, desc: desc, log: log}
}

// OutputSchema is the schema requested from the generation service.
func OutputSchema() *generation.Schema {
	section := generation.Object("", map[string]*generation.Schema{
		"section":     generation.String("A verbatim fragment of the query text"),
		"explanation": generation.String("What this fragment does, for a non-technical reader"),
	}, []string{"section", "explanation"})
	expl := generation.Object("", map[string]*generation.Schema{
		"queryName":      generation.String("The name of the query being explained"),
		"sections":       generation.Array("Distinct fragments of the query in the order they appear", section),
		"overallPurpose": generation.String("A summary of what this query accomplishes"),
	}, []string{"queryName", "sections", "overallPurpose"})
	return generation.Object("", map[string]*generation.Schema{
		"explanations": generation.Array("One explanation per query", expl),
	}, []string{"explanations"})
}

// Explain returns one Explanation per query, in input order.
func (e *Explainer) Explain(ctx context.Context, userText string, queries []Query) ([]Explanation, error) {
	if len(queries) == 0 {
		return nil, nil
	}
	parts := make([]string, len(queries))
	for i, q := range queries {
		parts[i] = fmt.Sprintf("Query %d (%s):\n%s", i+1, q.Name, q.SQL)
	}
	prompt := "Explain the SQL queries you generated to retrieve the data the user wanted. " +
		"Assume the user is not an expert in SQL. Break down each query into steps. Be concise.\n\n" +
		"User query:\n" + userText + "\n\nGenerated SQL queries:\n" + strings.Join(parts, "\n\n")
	req := generation.Request{
		SchemaName:    SchemaName,
		SystemPrompt:  systemPrompt(e.desc),
		CurrentPrompt: prompt,
		Schema:        OutputSchema(),
	}

	raw, err := e.svc.Generate(ctx, req)
	if err != nil {
		e.log.Warn("explanation failed", zap.Error(err))
		return nil, apperr.Explanation("", "failed to explain query", err)
	}
	var out struct {
		Explanations []Explanation `json:"explanations"`
	}
	if err := generation.Conform(req.Schema, raw, &out); err != nil {
		return nil, apperr.Explanation("", "malformed explanations", err)
	}

	matched, err := match(queries, out.Explanations)
	if err != nil {
		return nil, err
	}
	for i, q := range queries {
		if err := checkSections(q, matched[i].Sections); err != nil {
			e.log.Warn("explanation rejected", zap.String("query", q.Name), zap.Error(err))
			return nil, err
		}
		matched[i].QueryName = q.Name
	}
	return matched, nil
}

// match pairs explanations with queries by name, falling back to position
// when a name is missing or shared by more than one query or explanation.
func match(queries []Query, got []Explanation) ([]Explanation, error) {
	out := make([]Explanation, len(queries))
	if byName, ok := uniqueNames(got); ok {
		named := true
		want := make(map[string]struct{}, len(queries))
		for i, q := range queries {
			key := nameKey(q.Name)
			ex, found := byName[key]
			if _, dup := want[key]; dup || !found {
				named = false
				break
			}
			want[key] = struct{}{}
			out[i] = ex
		}
		if named {
			return out, nil
		}
	}
	if len(got) != len(queries) {
		return nil, apperr.Explanation("", fmt.Sprintf("expected %d explanations, got %d", len(queries), len(got)), nil)
	}
	copy(out, got)
	return out, nil
}

func uniqueNames(got []Explanation) (map[string]Explanation, bool) {
	byName := make(map[string]Explanation, len(got))
	for _, ex := range got {
		key := nameKey(ex.QueryName)
		if _, dup := byName[key]; dup {
			return nil, false
		}
		byName[key] = ex
	}
	return byName, true
}

func nameKey(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}

var (
	spaceRe  = regexp.MustCompile(`\s+`)
	clauseRe = regexp.MustCompile(`\b(select|from|where|group by|order by|having|limit|join|union|with)\b`)
)

func normalize(s string) string {
	return strings.TrimSpace(spaceRe.ReplaceAllString(strings.ToLower(s), " "))
}

// checkSections enforces that sections are distinct verbatim fragments that
// appear in query order without overlapping, and not one paraphrase of a
// multi-clause query.
func checkSections(q Query, sections []Section) error {
	if len(sections) == 0 {
		return apperr.Explanation(q.Name, "explanation has no sections", nil)
	}
	sql := normalize(q.SQL)
	seen := make(map[string]struct{}, len(sections))
	offset := 0
	for _, s := range sections {
		frag := normalize(s.Section)
		if frag == "" {
			return apperr.Explanation(q.Name, "empty section", nil)
		}
		if !strings.Contains(sql, frag) {
			return apperr.Explanation(q.Name, fmt.Sprintf("section %q is not part of the query", s.Section), nil)
		}
		if _, dup := seen[frag]; dup {
			return apperr.Explanation(q.Name, fmt.Sprintf("section %q is repeated", s.Section), nil)
		}
		seen[frag] = struct{}{}
		at := strings.Index(sql[offset:], frag)
		if at < 0 {
			return apperr.Explanation(q.Name, fmt.Sprintf("section %q overlaps or precedes the previous section", s.Section), nil)
		}
		offset += at + len(frag)
	}
	if len(sections) == 1 && normalize(sections[0].Section) == sql && len(clauseRe.FindAllString(sql, -1)) > 1 {
		return apperr.Explanation(q.Name, "a single section covers the whole query", nil)
	}
	return nil
}

func systemPrompt(d *schema.Descriptor) string {
	var b strings.Builder
	fmt.Fprintf(&b, "You are a %s SQL expert. Your job is to explain to the user the SQL queries you wrote to retrieve the data they asked for.\n\n", dialect(d))
	b.WriteString("The database contains the following tables:\n\n")
	b.WriteString(d.TablesText(true))
	b.WriteString("\n\nWhen you explain, take a section of the query and explain it. Each section must be copied verbatim from the query and must be unique. ")
	b.WriteString(`For "SELECT * FROM time_entries LIMIT 20" the sections could be "SELECT *", "FROM time_entries", "LIMIT 20".`)
	if len(d.JoinRules) > 0 {
		b.WriteString("\n\nJoin rules:\n")
		b.WriteString(d.JoinRulesText())
	}
	b.WriteString("\n\nWhen explaining joins, say why the tables had to be combined to answer the question, in terms a non-technical reader understands. ")
	b.WriteString("For multiple queries, explain each query separately and say how they work together.")
	return b.String()
}

func dialect(d *schema.Descriptor) string {
	if strings.EqualFold(d.Dialect, "duckdb") {
		return "DuckDB"
	}
	return "PostgreSQL"
}
