// Copyright (c) 2025 Taproom
// Licensed under the MIT License. See LICENSE file in the project root for details.

package cmd

import (
	"fmt"
	"math"
	"sort"
	"strings"
	"sync"
	"time"

	"atomicgo.dev/cursor"
	"github.com/pterm/pterm"

	"taproom/cli/internal/chart"
	"taproom/cli/internal/insight"
	"taproom/cli/internal/logging"
	"taproom/cli/internal/pipeline"
	"taproom/cli/internal/safety"
	"taproom/cli/internal/sqlexec"
)

var spinnerFrames = []string{"|", "/", "-", "\\"}

// stageLabels are the status texts shown while a stage runs.
var stageLabels = map[pipeline.Stage]string{
	pipeline.StageDrafting:    "drafting queries",
	pipeline.StageValidating:  "checking queries",
	pipeline.StageExecuting:   "running queries",
	pipeline.StageExplaining:  "explaining",
	pipeline.StageVisualizing: "charting",
	pipeline.StageAnalyzing:   "finding insights",
}

// statusLine renders the running stages of p behind a spinner frame.
func statusLine(p *pipeline.Progress, frame int) string {
	running := p.Running()
	if len(running) == 0 {
		return ""
	}
	parts := make([]string, 0, len(running))
	for _, s := range running {
		label, ok := stageLabels[s]
		if !ok {
			label = string(s)
		}
		parts = append(parts, label)
	}
	return fmt.Sprintf("%s %s", spinnerFrames[frame%len(spinnerFrames)], strings.Join(parts, " · "))
}

// progressView animates the status line of a running turn in a pterm area.
type progressView struct {
	area     *pterm.AreaPrinter
	progress *pipeline.Progress
	line     pipeline.LineState
	stop     chan struct{}
	wg       sync.WaitGroup
	once     sync.Once
}

// startProgress starts the spinner. Stop must be called before printing.
func startProgress(p *pipeline.Progress) *progressView {
	v := &progressView{progress: p, stop: make(chan struct{})}
	cursor.Hide()
	area, err := pterm.DefaultArea.WithRemoveWhenDone(true).Start()
	if err != nil {
		cursor.Show()
		return v
	}
	v.area = area
	v.wg.Add(1)
	go func() {
		defer v.wg.Done()
		t := time.NewTicker(120 * time.Millisecond)
		defer t.Stop()
		for {
			select {
			case <-t.C:
				if s := statusLine(v.progress, v.line.Frame()); s != "" {
					v.area.Update(v.line.Pad(s))
				}
			case <-v.stop:
				return
			}
		}
	}()
	return v
}

// Stop removes the status line and restores the cursor. Safe to call twice.
func (v *progressView) Stop() {
	v.once.Do(func() {
		close(v.stop)
		v.wg.Wait()
		if v.area != nil {
			_ = v.area.Stop()
		}
		cursor.Show()
	})
}

// renderOutcome prints everything a turn produced.
func renderOutcome(out *pipeline.Outcome, rowLimit int) {
	renderVerdicts(out.Verdicts)
	if !out.Completed() {
		if out.Err != nil {
			pterm.Println(logging.FormatError(out.Err))
		}
		return
	}

	for i, res := range out.Results {
		sql := ""
		if i < len(out.Queries) {
			sql = out.Queries[i].SQL
		}
		renderResult(res, sql, rowLimit)
		if i < len(out.Explanations) {
			renderExplanation(out.Explanations[i].OverallPurpose, explanationSections(out, i))
		}
	}
	renderArtifactError(out, pipeline.StageExplaining)

	if out.Chart != nil {
		renderChart(*out.Chart, rowLimit)
	}
	renderArtifactError(out, pipeline.StageVisualizing)

	if out.Report != nil {
		renderReport(*out.Report)
	}
	renderArtifactError(out, pipeline.StageAnalyzing)
}

func renderArtifactError(out *pipeline.Outcome, s pipeline.Stage) {
	if err, ok := out.ArtifactErrs[s]; ok {
		pterm.Println(logging.FormatError(err))
	}
}

func renderVerdicts(vs []safety.Verdict) {
	for _, v := range vs {
		if v.Accepted() {
			continue
		}
		pterm.Println(pterm.NewStyle(pterm.FgRed).Sprintf("✗ %s rejected: %s", v.Candidate.Name, logging.Mask(v.Err.Error())))
	}
}

func renderResult(res sqlexec.QueryResult, sql string, limit int) {
	title := res.QueryName
	if res.Description != "" {
		title += " · " + res.Description
	}
	pterm.DefaultSection.Println(title)
	if sql != "" {
		pterm.Println(pterm.NewStyle(pterm.FgGray).Sprint(strings.TrimSpace(sql)))
		pterm.Println()
	}
	if len(res.Rows) == 0 {
		pterm.Println("(no rows)")
		pterm.Println()
		return
	}
	_ = pterm.DefaultTable.WithHasHeader().WithData(resultTable(res, limit)).Render()
	if limit > 0 && len(res.Rows) > limit {
		pterm.Println(pterm.NewStyle(pterm.FgGray).Sprintf("… %d more rows", len(res.Rows)-limit))
	}
	pterm.Println()
}

func explanationSections(out *pipeline.Outcome, i int) [][2]string {
	var rows [][2]string
	for _, s := range out.Explanations[i].Sections {
		rows = append(rows, [2]string{s.Section, s.Explanation})
	}
	return rows
}

func renderExplanation(purpose string, sections [][2]string) {
	if purpose != "" {
		pterm.Println(pterm.NewStyle(pterm.FgLightCyan).Sprint("What it does: ") + purpose)
	}
	for _, s := range sections {
		pterm.Println(pterm.NewStyle(pterm.FgGray).Sprint("  "+oneLine(s[0], 60)) + "  " + s[1])
	}
	pterm.Println()
}

func renderChart(cfg chart.ChartConfig, limit int) {
	pterm.DefaultSection.Println(fmt.Sprintf("Chart: %s (%s)", cfg.Title, cfg.Kind))
	if cfg.Takeaway != "" {
		pterm.Println(pterm.NewStyle(pterm.Bold).Sprint(cfg.Takeaway))
	}
	if len(cfg.Data) > 0 {
		_ = pterm.DefaultTable.WithHasHeader().WithData(chartTable(cfg, limit)).Render()
	}
	pterm.Println()
}

func renderReport(r insight.Report) {
	pterm.DefaultSection.Println("Insights")
	pterm.Println(r.Summary)
	pterm.Println()
	var items []pterm.BulletListItem
	for _, f := range r.KeyFindings {
		items = append(items, pterm.BulletListItem{Text: fmt.Sprintf("[%s] %s: %s", f.Importance, f.Title, f.Description)})
	}
	for _, t := range r.Trends {
		items = append(items, pterm.BulletListItem{Text: fmt.Sprintf("Trend (%s) %s: %s", t.Direction, t.Variable, t.Description)})
	}
	for _, a := range r.Anomalies {
		items = append(items, pterm.BulletListItem{Text: "Anomaly: " + a.Description})
	}
	for _, c := range r.Correlations {
		items = append(items, pterm.BulletListItem{Text: fmt.Sprintf("Correlation (%s) %s: %s", c.Strength, strings.Join(c.Variables, " / "), c.Relationship)})
	}
	for _, x := range r.CrossQueryInsights {
		items = append(items, pterm.BulletListItem{Text: fmt.Sprintf("[%s] %s: %s", x.Relevance, x.Title, x.Description)})
	}
	if len(items) > 0 {
		_ = pterm.DefaultBulletList.WithItems(items).Render()
	}
	if len(r.RecommendedActions) > 0 {
		pterm.Println(pterm.NewStyle(pterm.FgLightCyan).Sprint("Next steps"))
		for _, a := range r.RecommendedActions {
			pterm.Println("  → " + a)
		}
	}
	pterm.Println()
}

// resultTable lays out at most limit rows of res with a header row. A
// non-positive limit shows every row.
func resultTable(res sqlexec.QueryResult, limit int) [][]string {
	rows := res.Rows
	if limit > 0 && len(rows) > limit {
		rows = rows[:limit]
	}
	data := [][]string{res.Columns}
	for _, r := range rows {
		line := make([]string, len(res.Columns))
		for i, c := range res.Columns {
			line[i] = formatCell(c, r.Get(c))
		}
		data = append(data, line)
	}
	return data
}

// chartTable lays out the chart data with the x key first.
func chartTable(cfg chart.ChartConfig, limit int) [][]string {
	cols := chartColumns(cfg)
	data := [][]string{make([]string, len(cols))}
	for i, c := range cols {
		if l, ok := cfg.Labels[c]; ok && l != "" {
			data[0][i] = l
		} else {
			data[0][i] = c
		}
	}
	rows := cfg.Data
	if limit > 0 && len(rows) > limit {
		rows = rows[:limit]
	}
	money := make(map[string]bool, len(cfg.Format.MonetaryFields))
	for _, f := range cfg.Format.MonetaryFields {
		money[f] = true
	}
	for _, r := range rows {
		line := make([]string, len(cols))
		for i, c := range cols {
			if f, ok := toFloat(r[c]); ok && money[c] {
				line[i] = chart.FormatMoney(f)
				continue
			}
			line[i] = formatCell(c, r[c])
		}
		data = append(data, line)
	}
	return data
}

func chartColumns(cfg chart.ChartConfig) []string {
	seen := map[string]bool{}
	var cols []string
	add := func(c string) {
		if c != "" && !seen[c] {
			seen[c] = true
			cols = append(cols, c)
		}
	}
	add(cfg.XKey)
	for _, k := range cfg.YKeys {
		add(k)
	}
	var rest []string
	for _, r := range cfg.Data {
		for k := range r {
			if !seen[k] {
				rest = append(rest, k)
				seen[k] = true
			}
		}
	}
	sort.Strings(rest)
	return append(cols, rest...)
}

// formatCell renders a value, as money when the column name says so.
func formatCell(col string, v any) string {
	if v == nil {
		return "—"
	}
	if f, ok := toFloat(v); ok {
		if chart.IsMonetary(col) {
			return chart.FormatMoney(f)
		}
		if f == math.Trunc(f) && math.Abs(f) < 1e15 {
			return chart.FormatNumber(f, 0)
		}
		return chart.FormatNumber(f, 2)
	}
	switch t := v.(type) {
	case time.Time:
		if t.Hour() == 0 && t.Minute() == 0 && t.Second() == 0 {
			return t.Format("2006-01-02")
		}
		return t.Format(time.RFC3339)
	case string:
		return oneLine(t, 80)
	}
	return oneLine(fmt.Sprint(v), 80)
}

func toFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int32:
		return float64(n), true
	case int64:
		return float64(n), true
	case uint64:
		return float64(n), true
	}
	return 0, false
}

func oneLine(s string, n int) string {
	s = strings.Join(strings.Fields(s), " ")
	if r := []rune(s); len(r) > n {
		return string(r[:n-1]) + "…"
	}
	return s
}
