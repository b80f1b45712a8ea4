// Copyright (c) 2025 Taproom
// Licensed under the MIT License. See LICENSE file in the project root for details.

package logging

import (
	"fmt"
	"strings"

	"github.com/pterm/pterm"

	apperr "taproom/cli/internal/errors"
)

// PresentError formats an error for user display with masking.
func PresentError(context string, err error) string {
	if err == nil {
		return ""
	}
	return fmt.Sprintf("%s: %s", context, Mask(err.Error()))
}

// Guidance is the user-facing reading of an error.
type Guidance struct {
	Title string
	Hints []string
	// Detail is the masked technical message.
	Detail string
}

// Explain turns err into guidance. Typed errors are read by kind; anything
// else is classified as a transport failure.
func Explain(err error) Guidance {
	if err == nil {
		return Guidance{}
	}
	g := Guidance{Detail: Mask(err.Error())}
	e, typed := apperr.As(err)
	if !typed {
		g.Title, g.Hints = transportHints(ClassifyTransport(err))
		if g.Title == "" {
			g.Title = "Something went wrong"
		}
		return g
	}

	switch e.Kind {
	case apperr.TableNotFound:
		g.Title = "Environment not seeded"
		g.Hints = []string{
			fmt.Sprintf("Relation %q does not exist in the connected database", e.Text),
			"Load the warehouse tables, then ask again",
		}
	case apperr.UnsafeQuery:
		g.Title = "Query rejected"
		if e.Reason == apperr.DisallowedKeyword {
			g.Hints = []string{fmt.Sprintf("Query %q contains the disallowed keyword %q", e.Query, e.Text)}
		} else {
			g.Hints = []string{fmt.Sprintf("Query %q is not a SELECT or WITH statement", e.Query)}
		}
		g.Hints = append(g.Hints, "Only read-only queries are executed; try rephrasing the question")
	case apperr.ExecutionFailed:
		g.Title = "Query failed"
		g.Hints = []string{fmt.Sprintf("The database rejected query %q", e.Query)}
	case apperr.GenerationFailed:
		g.Title = "Could not draft queries"
		if t, hints := transportHints(ClassifyTransport(e.Err)); t != "" {
			g.Title, g.Hints = t, hints
		} else {
			g.Hints = []string{"The generation service returned an unusable answer; try rephrasing the question"}
		}
	case apperr.ExplanationFailed:
		g.Title = "Explanation unavailable"
	case apperr.VisualizationFailed:
		g.Title = "Chart unavailable"
		if e.Text != "" {
			g.Hints = []string{fmt.Sprintf("The chart configuration is missing %q", e.Text)}
		}
	case apperr.InsightFailed:
		g.Title = "Insights unavailable"
	default:
		g.Title = "Something went wrong"
	}
	return g
}

// FormatError renders err for the terminal.
func FormatError(err error) string {
	g := Explain(err)
	if g.Title == "" {
		return ""
	}
	var b strings.Builder
	b.WriteString(pterm.NewStyle(pterm.FgRed, pterm.Bold).Sprint(g.Title))
	b.WriteString("\n")
	for _, h := range g.Hints {
		b.WriteString("  • " + h + "\n")
	}
	if strings.TrimSpace(g.Detail) != "" {
		b.WriteString(pterm.NewStyle(pterm.FgGray).Sprint("Technical details: " + g.Detail))
		b.WriteString("\n")
	}
	return b.String()
}
