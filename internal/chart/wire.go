// Copyright (c) 2025 Taproom
// Licensed under the MIT License. See LICENSE file in the project root for details.

package chart

import "taproom/cli/internal/generation"

// fieldLabel is a field/label pair. Label maps travel as pair lists because
// structured output schemas cannot express free-form object keys.
type fieldLabel struct {
	Field string `json:"field"`
	Label string `json:"label"`
}

type wireConsolidation struct {
	Method        Method       `json:"method"`
	KeyField      string       `json:"keyField"`
	ValueFields   []string     `json:"valueFields"`
	LabelFields   []fieldLabel `json:"labelFields"`
	SourceQueries []string     `json:"sourceQueries"`
}

type wireConfig struct {
	Type              Kind               `json:"type"`
	Title             string             `json:"title"`
	Description       string             `json:"description"`
	Takeaway          string             `json:"takeaway"`
	XKey              string             `json:"xKey"`
	YKeys             []string           `json:"yKeys"`
	MultipleLines     bool               `json:"multipleLines"`
	MeasurementColumn string             `json:"measurementColumn"`
	LineCategories    []string           `json:"lineCategories"`
	Legend            bool               `json:"legend"`
	Labels            []fieldLabel       `json:"labels"`
	IsConsolidated    bool               `json:"isConsolidated"`
	Consolidation     *wireConsolidation `json:"consolidation"`
}

func labelMap(pairs []fieldLabel) map[string]string {
	if len(pairs) == 0 {
		return nil
	}
	m := make(map[string]string, len(pairs))
	for _, p := range pairs {
		if p.Field != "" && p.Label != "" {
			m[p.Field] = p.Label
		}
	}
	return m
}

func (w wireConfig) config() ChartConfig {
	c := ChartConfig{
		Kind:              w.Type,
		Title:             w.Title,
		Description:       w.Description,
		Takeaway:          w.Takeaway,
		XKey:              w.XKey,
		YKeys:             w.YKeys,
		MultipleLines:     w.MultipleLines,
		MeasurementColumn: w.MeasurementColumn,
		LineCategories:    w.LineCategories,
		Legend:            w.Legend,
		Labels:            labelMap(w.Labels),
		IsConsolidated:    w.IsConsolidated,
	}
	if w.Consolidation != nil {
		c.Consolidation = &ConsolidationSpec{
			Method:        w.Consolidation.Method,
			KeyField:      w.Consolidation.KeyField,
			ValueFields:   w.Consolidation.ValueFields,
			LabelFields:   labelMap(w.Consolidation.LabelFields),
			SourceQueries: w.Consolidation.SourceQueries,
		}
	}
	return c
}

// OutputSchema is the schema requested from the generation service. Without
// consolidate the consolidation fields are left out.
func OutputSchema(consolidate bool) *generation.Schema {
	kinds := make([]string, len(Kinds))
	for i, k := range Kinds {
		kinds[i] = string(k)
	}
	methods := make([]string, len(Methods))
	for i, m := range Methods {
		methods[i] = string(m)
	}
	pairs := func(desc string) *generation.Schema {
		return generation.Array(desc, generation.Object("", map[string]*generation.Schema{
			"field": generation.String("Field name in the data"),
			"label": generation.String("Display label; monetary fields include ($)"),
		}, []string{"field", "label"}))
	}

	props := map[string]*generation.Schema{
		"type":              generation.Enum("The chart kind", kinds...),
		"title":             generation.String("Chart title"),
		"description":       generation.String("What the chart shows"),
		"takeaway":          generation.String("The main takeaway from the chart"),
		"xKey":              generation.String("Field for the x axis"),
		"yKeys":             generation.Array("Fields for the y axis", generation.String("")),
		"multipleLines":     generation.Bool("Whether the chart compares several series"),
		"measurementColumn": generation.String("Field holding the value when data is in long format"),
		"lineCategories":    generation.Array("Series names when multipleLines is set", generation.String("")),
		"legend":            generation.Bool("Whether to show a legend"),
		"labels":            pairs("Display labels for fields"),
	}
	order := []string{"type", "title", "description", "takeaway", "xKey", "yKeys", "multipleLines", "measurementColumn", "lineCategories", "legend", "labels"}
	optional := []string{"multipleLines", "measurementColumn", "lineCategories", "labels"}

	if consolidate {
		props["isConsolidated"] = generation.Bool("Whether several query results are combined into this chart")
		cons := generation.Object("How the results are combined", map[string]*generation.Schema{
			"method":        generation.Enum("How to combine the data", methods...),
			"keyField":      generation.String("Common field to join on"),
			"valueFields":   generation.Array("Fields holding the values being combined", generation.String("")),
			"labelFields":   pairs("Required: a display label for every value field"),
			"sourceQueries": generation.Array("Names of the queries being combined", generation.String("")),
		}, []string{"method", "keyField", "valueFields", "labelFields", "sourceQueries"}, "keyField", "labelFields")
		cons.Nullable = true
		props["consolidation"] = cons
		order = append(order, "isConsolidated", "consolidation")
		optional = append(optional, "consolidation")
	}
	return generation.Object("", props, order, optional...)
}
