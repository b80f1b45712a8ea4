// Copyright (c) 2025 Taproom
// Licensed under the MIT License. See LICENSE file in the project root for details.

package schema

import (
	"fmt"
	"strings"
)

// TablesText renders every table with its column listing.
// When withColumns is false only names and descriptions are rendered, which is
// what the artifact generators need.
func (d *Descriptor) TablesText(withColumns bool) string {
	var b strings.Builder
	for _, t := range d.Tables {
		fmt.Fprintf(&b, "Table: %s", t.Name)
		if t.Grain != "" {
			fmt.Fprintf(&b, " (%s)", t.Grain)
		}
		fmt.Fprintf(&b, ": %s\n", strings.TrimSpace(t.Description))
		if len(t.JoinKeys) > 0 {
			fmt.Fprintf(&b, "Join keys: %s\n", strings.Join(t.JoinKeys, ", "))
		}
		if withColumns {
			b.WriteString("# column_name\tdata_type\tis_nullable\n")
			for i, c := range t.Columns {
				nullable := "NO"
				if c.Nullable {
					nullable = "YES"
				}
				fmt.Fprintf(&b, "%d\t%s\t%s\t%s", i+1, c.Name, c.Type, nullable)
				if c.Default != "" {
					fmt.Fprintf(&b, "\tdefault %s", c.Default)
				}
				b.WriteString("\n")
			}
		}
		b.WriteString("\n")
	}
	return strings.TrimRight(b.String(), "\n")
}

// JoinRulesText renders the join rules as a bullet list.
func (d *Descriptor) JoinRulesText() string {
	return bullets(d.JoinRules)
}

// GuidanceText renders the time-series and query-shape guidance.
func (d *Descriptor) GuidanceText() string {
	return bullets(d.Guidance)
}

// ExamplesText renders the worked examples.
func (d *Descriptor) ExamplesText() string {
	var b strings.Builder
	for i, ex := range d.Examples {
		fmt.Fprintf(&b, "Example %d\nuser query: %s\n", i+1, ex.Question)
		if ex.Note != "" {
			fmt.Fprintf(&b, "note: %s\n", ex.Note)
		}
		fmt.Fprintf(&b, "generated sql:\n%s\n\n", strings.TrimSpace(ex.SQL))
	}
	return strings.TrimRight(b.String(), "\n")
}

// ProcedureText renders the fixed query-planning procedure as numbered steps.
func (d *Descriptor) ProcedureText() string {
	var b strings.Builder
	for i, s := range d.PlanningSteps {
		fmt.Fprintf(&b, "%d. %s\n", i+1, s)
	}
	return strings.TrimRight(b.String(), "\n")
}

func bullets(items []string) string {
	var b strings.Builder
	for _, it := range items {
		fmt.Fprintf(&b, "- %s\n", it)
	}
	return strings.TrimRight(b.String(), "\n")
}
