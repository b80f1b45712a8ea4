// Copyright (c) 2025 Taproom
// Licensed under the MIT License. See LICENSE file in the project root for details.

package cmd

import (
	"encoding/json"
	"errors"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"taproom/cli/internal/chart"
	"taproom/cli/internal/explain"
	"taproom/cli/internal/insight"
	"taproom/cli/internal/logging"
	"taproom/cli/internal/pipeline"
	"taproom/cli/internal/planner"
	"taproom/cli/internal/sqlexec"
)

var (
	askRows int
	askJSON bool
)

var askCmd = &cobra.Command{
	Use:   "ask <question>",
	Short: "Answer one question with queries, results, a chart and insights",
	Long: `The ask command runs a single turn: it drafts read-only SQL for the question,
checks every query, runs the batch and then explains the queries, picks a chart
and writes an insights report concurrently.

A failure in any of the last three steps never hides the query results.`,
	Example: `  taproom ask "What were total sales by month last year?"
  taproom ask --json "Which servers earned the most tips in June?"`,
	Args: cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		question := strings.TrimSpace(strings.Join(args, " "))
		if question == "" {
			return errors.New("question is required")
		}
		ctx := cmd.Context()
		s, err := openSession(ctx, true)
		if err != nil {
			return err
		}
		defer s.Close()

		coord := s.coordinator(nil)
		if askJSON {
			out, _ := coord.Run(ctx, question, nil)
			return writeOutcomeJSON(out)
		}

		printConnection(s)
		view := startProgress(coord.Progress())
		out, err := coord.Run(ctx, question, nil)
		view.Stop()
		renderOutcome(out, askRows)
		return errSilent(err)
	},
}

// silentError marks an error that was already presented to the user.
type silentError struct{ err error }

func (e silentError) Error() string { return e.err.Error() }
func (e silentError) Unwrap() error { return e.err }

func errSilent(err error) error {
	if err == nil {
		return nil
	}
	return silentError{err}
}

// outcomeJSON is the machine-readable form of a turn.
type outcomeJSON struct {
	TurnID       string                   `json:"turnId"`
	Question     string                   `json:"question"`
	Stage        pipeline.Stage           `json:"stage"`
	Candidates   []planner.CandidateQuery `json:"candidates,omitempty"`
	Rejected     map[string]string        `json:"rejected,omitempty"`
	Results      []resultJSON             `json:"results,omitempty"`
	Explanations []explain.Explanation    `json:"explanations,omitempty"`
	Chart        *chart.ChartConfig       `json:"chart,omitempty"`
	Insights     *insight.Report          `json:"insights,omitempty"`
	Errors       map[string]string        `json:"errors,omitempty"`
	Error        string                   `json:"error,omitempty"`
}

type resultJSON struct {
	Name        string           `json:"name"`
	Description string           `json:"description,omitempty"`
	SQL         string           `json:"sql"`
	Columns     []string         `json:"columns"`
	Rows        []map[string]any `json:"rows"`
}

func toJSON(out *pipeline.Outcome) outcomeJSON {
	v := outcomeJSON{
		TurnID:       out.TurnID,
		Question:     out.UserText,
		Stage:        out.Stage,
		Candidates:   out.Candidates,
		Explanations: out.Explanations,
		Chart:        out.Chart,
		Insights:     out.Report,
	}
	for _, vd := range out.Verdicts {
		if vd.Err != nil {
			if v.Rejected == nil {
				v.Rejected = map[string]string{}
			}
			v.Rejected[vd.Candidate.Name] = vd.Err.Error()
		}
	}
	for i, r := range out.Results {
		rj := resultJSON{Name: r.QueryName, Description: r.Description, Columns: r.Columns, Rows: rowMaps(r)}
		if i < len(out.Queries) {
			rj.SQL = out.Queries[i].SQL
		}
		v.Results = append(v.Results, rj)
	}
	for stage, err := range out.ArtifactErrs {
		if v.Errors == nil {
			v.Errors = map[string]string{}
		}
		v.Errors[string(stage)] = logging.Mask(err.Error())
	}
	if out.Err != nil {
		v.Error = logging.Mask(out.Err.Error())
	}
	return v
}

func rowMaps(r sqlexec.QueryResult) []map[string]any {
	rows := make([]map[string]any, len(r.Rows))
	for i, row := range r.Rows {
		rows[i] = row.Map()
	}
	return rows
}

func writeOutcomeJSON(out *pipeline.Outcome) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	if err := enc.Encode(toJSON(out)); err != nil {
		return err
	}
	if out.Err != nil {
		return silentError{out.Err}
	}
	return nil
}

func init() {
	rootCmd.AddCommand(askCmd)
	askCmd.Flags().IntVar(&askRows, "rows", 10, "Rows shown per result (0 shows all)")
	askCmd.Flags().BoolVar(&askJSON, "json", false, "Print the whole turn as JSON")
}
