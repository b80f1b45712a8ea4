// Copyright (c) 2025 Taproom
// Licensed under the MIT License. See LICENSE file in the project root for details.

package chart

import (
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	apperr "taproom/cli/internal/errors"
	"taproom/cli/internal/sqlexec"
)

// buildData assembles chart points from the full results.
func buildData(cfg ChartConfig, results []sqlexec.QueryResult) ([]map[string]any, error) {
	if !cfg.Consolidated() {
		return rowMaps(results[0], ""), nil
	}
	c := cfg.Consolidation
	sources := pickSources(c.SourceQueries, results)

	if c.Method == Stack {
		var out []map[string]any
		for _, r := range sources {
			out = append(out, rowMaps(r, r.QueryName)...)
		}
		return out, nil
	}

	merged := map[string]map[string]any{}
	seen := map[string]int{}
	var order []string
	for _, r := range sources {
		if !hasColumn(r, c.KeyField) {
			return nil, apperr.Visualization(
				fmt.Sprintf("%s: key field is missing from query %q", consolidationMessage, r.QueryName), c.KeyField, nil)
		}
		for _, row := range r.Rows {
			kv := row.Get(c.KeyField)
			if kv == nil {
				continue
			}
			k := keyString(kv, c.KeyField)
			m, ok := merged[k]
			if !ok {
				m = map[string]any{c.KeyField: kv}
				merged[k] = m
				order = append(order, k)
			}
			for _, col := range row.Columns {
				if col != c.KeyField {
					m[col] = row.Get(col)
				}
			}
			seen[k]++
		}
	}
	out := make([]map[string]any, 0, len(order))
	for _, k := range order {
		if c.Method == Join && seen[k] < len(sources) {
			continue
		}
		out = append(out, merged[k])
	}
	return out, nil
}

func rowMaps(r sqlexec.QueryResult, source string) []map[string]any {
	out := make([]map[string]any, len(r.Rows))
	for i, row := range r.Rows {
		m := row.Map()
		if source != "" {
			m[SourceField] = source
		}
		out[i] = m
	}
	return out
}

// pickSources returns the named results in result order, or every result
// when none of the names match.
func pickSources(names []string, results []sqlexec.QueryResult) []sqlexec.QueryResult {
	want := make(map[string]struct{}, len(names))
	for _, n := range names {
		want[strings.ToLower(strings.TrimSpace(n))] = struct{}{}
	}
	var out []sqlexec.QueryResult
	for _, r := range results {
		if _, ok := want[strings.ToLower(r.QueryName)]; ok {
			out = append(out, r)
		}
	}
	if len(out) == 0 {
		return results
	}
	return out
}

func hasColumn(r sqlexec.QueryResult, col string) bool {
	for _, c := range r.Columns {
		if c == col {
			return true
		}
	}
	return len(r.Rows) == 0
}

func keyString(v any, key string) string {
	if t, ok := parseTime(v, key); ok {
		return t.UTC().Format(time.RFC3339)
	}
	return fmt.Sprint(v)
}

const (
	monthLayout = "Jan 2006"
	dayLayout   = "2 Jan 2006"
)

// orderByTime sorts cfg.Data oldest first when every x value is a time and
// rewrites x values as labels. Rows without an x value are omitted. A series
// never repeats a label; rows of different series sharing a label are kept.
func orderByTime(cfg *ChartConfig, xKey string) (string, bool) {
	if xKey == "" || len(cfg.Data) == 0 {
		return "", false
	}
	type point struct {
		t   time.Time
		row map[string]any
	}
	points := make([]point, 0, len(cfg.Data))
	for _, row := range cfg.Data {
		v, ok := row[xKey]
		if !ok || v == nil {
			continue
		}
		t, ok := parseTime(v, xKey)
		if !ok {
			return "", false
		}
		points = append(points, point{t: t, row: row})
	}
	if len(points) == 0 {
		return "", false
	}

	layout := monthLayout
	for _, p := range points {
		if p.t.Day() != 1 {
			layout = dayLayout
			break
		}
	}
	sort.SliceStable(points, func(i, j int) bool { return points[i].t.Before(points[j].t) })

	seen := map[string]struct{}{}
	out := make([]map[string]any, 0, len(points))
	for _, p := range points {
		label := p.t.Format(layout)
		key := label + "\x00" + seriesKey(p.row, xKey)
		if _, dup := seen[key]; dup {
			continue
		}
		seen[key] = struct{}{}
		p.row[xKey] = label
		out = append(out, p.row)
	}
	cfg.Data = out
	return layout, true
}

// seriesKey identifies the series a long-format row belongs to: its
// non-numeric fields other than x.
func seriesKey(row map[string]any, xKey string) string {
	keys := make([]string, 0, len(row))
	for k, v := range row {
		if k == xKey {
			continue
		}
		if _, ok := v.(string); ok {
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)
	var b strings.Builder
	for _, k := range keys {
		fmt.Fprintf(&b, "%s=%v;", k, row[k])
	}
	return b.String()
}

var timeLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05Z07:00",
	"2006-01-02 15:04:05-07",
	"2006-01-02 15:04:05",
	"2006-01-02",
	"2006-01",
	"Jan 2006",
	"January 2006",
	"2 Jan 2006",
	"01/02/2006",
}

// parseTime interprets v as a point in time. Bare years are accepted only
// for keys that name a year.
func parseTime(v any, key string) (time.Time, bool) {
	yearKey := strings.Contains(strings.ToLower(key), "year")
	switch x := v.(type) {
	case time.Time:
		return x, true
	case string:
		s := strings.TrimSpace(x)
		for _, l := range timeLayouts {
			if t, err := time.Parse(l, s); err == nil {
				return t, true
			}
		}
		if yearKey {
			if y, err := strconv.Atoi(s); err == nil {
				return yearTime(y)
			}
		}
	case float64:
		if yearKey && x == float64(int(x)) {
			return yearTime(int(x))
		}
	case int64:
		if yearKey {
			return yearTime(int(x))
		}
	case int32:
		if yearKey {
			return yearTime(int(x))
		}
	case int:
		if yearKey {
			return yearTime(x)
		}
	}
	return time.Time{}, false
}

func yearTime(y int) (time.Time, bool) {
	if y < 1000 || y > 9999 {
		return time.Time{}, false
	}
	return time.Date(y, time.January, 1, 0, 0, 0, 0, time.UTC), true
}
