// Copyright (c) 2025 Taproom
// Licensed under the MIT License. See LICENSE file in the project root for details.

package chart

import (
	"math"
	"sort"
	"strconv"
	"strings"
	"unicode"

	"golang.org/x/text/language"
	"golang.org/x/text/message"
)

// FormatMoney renders v as dollars with thousands separators, e.g. "$1,234.56".
func FormatMoney(v float64) string {
	s := FormatNumber(math.Abs(v), 2)
	if v < 0 && s != "0.00" {
		return "-$" + s
	}
	return "$" + s
}

// FormatNumber renders v with the given decimals and commas for thousands.
func FormatNumber(v float64, decimals int) string {
	if decimals < 0 {
		decimals = 0
	}
	return message.NewPrinter(language.English).Sprintf("%."+strconv.Itoa(decimals)+"f", v)
}

var (
	moneyWords = []string{
		"sales", "cost", "revenue", "price", "pay", "wage", "tip", "amount",
		"profit", "discount", "tax", "gratuity", "spend",
	}
	notMoney = map[string]bool{
		"hours": true, "hour": true, "count": true, "quantity": true, "qty": true,
		"pct": true, "percent": true, "percentage": true, "ratio": true, "rate": true,
		"id": true, "num": true, "number": true,
	}
)

// tokens splits a field name on separators and camel-case humps.
func tokens(field string) []string {
	var out []string
	var cur []rune
	flush := func() {
		if len(cur) > 0 {
			out = append(out, strings.ToLower(string(cur)))
			cur = cur[:0]
		}
	}
	var prev rune
	for _, r := range field {
		switch {
		case !unicode.IsLetter(r) && !unicode.IsDigit(r):
			flush()
		case unicode.IsUpper(r) && unicode.IsLower(prev):
			flush()
			cur = append(cur, r)
		default:
			cur = append(cur, r)
		}
		prev = r
	}
	flush()
	return out
}

// IsMonetary reports whether a field name denotes an amount of money.
func IsMonetary(field string) bool {
	ts := tokens(field)
	for _, t := range ts {
		if notMoney[t] {
			return false
		}
	}
	for _, t := range ts {
		for _, w := range moneyWords {
			if strings.HasPrefix(t, w) {
				return true
			}
		}
	}
	return false
}

// humanize turns "total_sales" into "Total Sales".
func humanize(field string) string {
	ts := tokens(field)
	for i, t := range ts {
		ts[i] = strings.ToUpper(t[:1]) + t[1:]
	}
	return strings.Join(ts, " ")
}

func withCurrency(label string) string {
	if strings.Contains(label, "$") {
		return label
	}
	return label + " ($)"
}

// applyMoney marks monetary fields and makes their labels carry "($)".
func applyMoney(cfg *ChartConfig) {
	cfg.Format.ThousandsSeparator = true

	var fields []string
	seen := map[string]bool{}
	add := func(f string) {
		if f != "" && !seen[f] && f != cfg.XKey && f != SourceField {
			seen[f] = true
			fields = append(fields, f)
		}
	}
	for _, f := range cfg.YKeys {
		add(f)
	}
	if cfg.MeasurementColumn != "" {
		add(cfg.MeasurementColumn)
	}
	if cfg.Consolidation != nil {
		for _, f := range cfg.Consolidation.ValueFields {
			add(f)
		}
	}
	var numeric []string
	for _, row := range cfg.Data {
		for f, v := range row {
			if isNumber(v) && !seen[f] {
				numeric = append(numeric, f)
			}
		}
	}
	sort.Strings(numeric)
	for _, f := range numeric {
		add(f)
	}

	cfg.Format.MonetaryFields = nil
	for _, f := range fields {
		if !IsMonetary(f) {
			continue
		}
		cfg.Format.MonetaryFields = append(cfg.Format.MonetaryFields, f)
		if cfg.Labels == nil {
			cfg.Labels = map[string]string{}
		}
		label, ok := cfg.Labels[f]
		if !ok || label == "" {
			label = humanize(f)
		}
		cfg.Labels[f] = withCurrency(label)
		if cfg.Consolidation != nil {
			if l, ok := cfg.Consolidation.LabelFields[f]; ok {
				cfg.Consolidation.LabelFields[f] = withCurrency(l)
			}
		}
	}
	if len(cfg.Format.MonetaryFields) > 0 {
		cfg.Format.Currency = "$"
	}
}

func isNumber(v any) bool {
	switch v.(type) {
	case float64, float32, int, int32, int64, int16, int8, uint, uint32, uint64:
		return true
	}
	return false
}
