// Copyright (c) 2025 Taproom
// Licensed under the MIT License. See LICENSE file in the project root for details.

// Package safety validates candidate queries before they reach a database.
//
// The gate is a shape allow-list plus a keyword deny-list, not a SQL parser.
// A candidate passes when its trimmed, lower-cased text starts with "select"
// or "with" and contains no whole-word occurrence of drop, delete, insert,
// update, alter, truncate, create, grant or revoke. The statement-type rule is
// checked first.
//
// Known limitation: comments and string literals are not understood. A
// deny-listed word inside a literal such as 'update pending' or a comment is
// rejected, and a statement hidden behind a leading comment is rejected as the
// wrong statement type. Identifiers that merely contain a keyword, such as
// update_count, do not match because the match is on word boundaries.
package safety

import (
	"regexp"
	"strings"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	apperr "taproom/cli/internal/errors"
	"taproom/cli/internal/planner"
)

// DenyList is the set of keywords that reject a candidate.
var DenyList = []string{"drop", "delete", "insert", "update", "alter", "truncate", "create", "grant", "revoke"}

var denyRe = regexp.MustCompile(`\b(` + strings.Join(DenyList, "|") + `)\b`)

// ValidatedQuery is a candidate that passed the gate. Its SQL keeps the
// original casing.
type ValidatedQuery struct {
	planner.CandidateQuery
}

// Verdict is the gate's decision for one candidate.
type Verdict struct {
	Candidate planner.CandidateQuery
	Query     ValidatedQuery
	// Err is an UnsafeQuery error when the candidate was rejected.
	Err error
}

// Accepted reports whether the candidate passed.
func (v Verdict) Accepted() bool { return v.Err == nil }

// Gate is stateless and safe for concurrent use.
type Gate struct {
	log *zap.Logger
}

// NewGate creates a gate. A nil logger discards output.
func NewGate(log *zap.Logger) *Gate {
	if log == nil {
		log = zap.NewNop()
	}
	return &Gate{log: log}
}

// Check validates one candidate.
func (g *Gate) Check(q planner.CandidateQuery) (ValidatedQuery, error) {
	norm := strings.ToLower(strings.TrimSpace(q.SQL))
	if !strings.HasPrefix(norm, "select") && !strings.HasPrefix(norm, "with") {
		g.log.Warn("rejected query", zap.String("query", q.Name), zap.String("reason", string(apperr.WrongStatementType)))
		return ValidatedQuery{}, apperr.Unsafe(q.Name, apperr.WrongStatementType, firstWord(norm))
	}
	if kw := denyRe.FindString(norm); kw != "" {
		g.log.Warn("rejected query", zap.String("query", q.Name), zap.String("reason", string(apperr.DisallowedKeyword)), zap.String("keyword", kw))
		return ValidatedQuery{}, apperr.Unsafe(q.Name, apperr.DisallowedKeyword, kw)
	}
	return ValidatedQuery{CandidateQuery: q}, nil
}

// CheckAll validates every candidate in parallel. Verdicts are returned in
// input order.
func (g *Gate) CheckAll(batch []planner.CandidateQuery) []Verdict {
	out := make([]Verdict, len(batch))
	var eg errgroup.Group
	for i, q := range batch {
		eg.Go(func() error {
			vq, err := g.Check(q)
			out[i] = Verdict{Candidate: q, Query: vq, Err: err}
			return nil
		})
	}
	_ = eg.Wait()
	return out
}

// Accepted returns the accepted queries in their original order.
func Accepted(verdicts []Verdict) []ValidatedQuery {
	var out []ValidatedQuery
	for _, v := range verdicts {
		if v.Accepted() {
			out = append(out, v.Query)
		}
	}
	return out
}

// RequireAll returns the whole batch when every candidate passed, otherwise
// the rejection with the lowest index.
func RequireAll(verdicts []Verdict) ([]ValidatedQuery, error) {
	out := make([]ValidatedQuery, 0, len(verdicts))
	for _, v := range verdicts {
		if !v.Accepted() {
			return nil, v.Err
		}
		out = append(out, v.Query)
	}
	return out, nil
}

func firstWord(s string) string {
	if f := strings.Fields(s); len(f) > 0 {
		return f[0]
	}
	return ""
}
