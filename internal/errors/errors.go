// Copyright (c) 2025 Taproom
// Licensed under the MIT License. See LICENSE file in the project root for details.

// Package errors defines typed errors with categories for user-friendly reporting.
// Every failure a turn can produce carries a machine-readable Kind together with
// the offending query name or text, so the presentation layer can explain what
// went wrong without parsing messages.
//
// Kinds split into two groups. Generation, unsafe-query, table-not-found and
// execution errors abort a turn. Explanation, visualization and insight errors
// only affect their own artifact.
package errors

import (
	"errors"
	"fmt"
)

// Kind is a machine-readable error category.
type Kind string

const (
	// GenerationFailed indicates the generation service call failed or returned
	// output that does not conform to the requested schema.
	GenerationFailed Kind = "generation_failed"
	// UnsafeQuery indicates a candidate query was rejected by the safety gate.
	UnsafeQuery Kind = "unsafe_query"
	// TableNotFound indicates a known bootstrap relation is missing from the store,
	// i.e. the environment has not been seeded yet.
	TableNotFound Kind = "table_not_found"
	// ExecutionFailed indicates any other analytical store failure.
	ExecutionFailed Kind = "execution_failed"
	// ExplanationFailed indicates the explanation artifact could not be produced.
	ExplanationFailed Kind = "explanation_failed"
	// VisualizationFailed indicates the chart configuration is missing required
	// consolidation fields or is otherwise unusable.
	VisualizationFailed Kind = "visualization_failed"
	// InsightFailed indicates the insights report could not be produced.
	InsightFailed Kind = "insight_failed"
)

// Reason names the specific safety rule an unsafe query violated.
type Reason string

const (
	// WrongStatementType means the normalized text does not start with select or with.
	WrongStatementType Reason = "wrong-statement-type"
	// DisallowedKeyword means the text contains a whole-word deny-listed keyword.
	DisallowedKeyword Reason = "disallowed-keyword"
)

// E wraps an error with kind and human-friendly message.
type E struct {
	Kind    Kind
	Message string
	// Query is the name of the query the error relates to, when there is one.
	Query string
	// Text is the offending text: a keyword, a relation, a field name.
	Text string
	// Reason is set for UnsafeQuery errors only.
	Reason Reason
	Err    error
}

func (e *E) Error() string {
	msg := fmt.Sprintf("%s: %s", e.Kind, e.Message)
	if e.Reason != "" {
		msg += fmt.Sprintf(" (%s)", e.Reason)
	}
	if e.Query != "" {
		msg += fmt.Sprintf(" [query %q]", e.Query)
	}
	if e.Text != "" {
		msg += fmt.Sprintf(" [%s]", e.Text)
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *E) Unwrap() error { return e.Err }

func Wrap(kind Kind, msg string, err error) *E { return &E{Kind: kind, Message: msg, Err: err} }
func New(kind Kind, msg string) *E             { return &E{Kind: kind, Message: msg} }

// Generation returns a GenerationFailed error.
func Generation(msg string, err error) *E { return Wrap(GenerationFailed, msg, err) }

// Unsafe returns an UnsafeQuery error for the named query.
func Unsafe(query string, reason Reason, text string) *E {
	msg := "only read-only SELECT or WITH statements are allowed"
	if reason == DisallowedKeyword {
		msg = "statement contains a disallowed keyword"
	}
	return &E{Kind: UnsafeQuery, Message: msg, Query: query, Text: text, Reason: reason}
}

// MissingTable returns a TableNotFound error for a bootstrap relation.
func MissingTable(query, relation string, err error) *E {
	return &E{Kind: TableNotFound, Message: "table does not exist; the environment has not been seeded", Query: query, Text: relation, Err: err}
}

// Execution returns an ExecutionFailed error for the named query.
func Execution(query string, err error) *E {
	return &E{Kind: ExecutionFailed, Message: "query execution failed", Query: query, Err: err}
}

// Explanation returns an ExplanationFailed error.
func Explanation(query, msg string, err error) *E {
	return &E{Kind: ExplanationFailed, Message: msg, Query: query, Err: err}
}

// Visualization returns a VisualizationFailed error. field names the missing
// or invalid configuration field, when there is one.
func Visualization(msg, field string, err error) *E {
	return &E{Kind: VisualizationFailed, Message: msg, Text: field, Err: err}
}

// Insight returns an InsightFailed error.
func Insight(msg string, err error) *E { return Wrap(InsightFailed, msg, err) }

// As returns the first *E in err's chain.
func As(err error) (*E, bool) {
	var e *E
	if errors.As(err, &e) {
		return e, true
	}
	return nil, false
}

// KindOf returns the Kind of the first *E in err's chain, or "" when there is none.
func KindOf(err error) Kind {
	if e, ok := As(err); ok {
		return e.Kind
	}
	return ""
}

// Is reports whether err carries the given kind.
func Is(err error, kind Kind) bool {
	return err != nil && KindOf(err) == kind
}

// Aborts reports whether an error of this kind terminates the turn.
func (k Kind) Aborts() bool {
	switch k {
	case GenerationFailed, UnsafeQuery, TableNotFound, ExecutionFailed:
		return true
	}
	return false
}
