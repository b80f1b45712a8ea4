// Copyright (c) 2025 Taproom
// Licensed under the MIT License. See LICENSE file in the project root for details.

// Package testutil holds scripted fakes shared by package tests.
package testutil

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"taproom/cli/internal/generation"
	"taproom/cli/internal/sqlexec"
)

// Generator is a scripted generation.Service. Replies are queued per schema
// name; the last reply for a schema is reused once the queue drains.
type Generator struct {
	mu       sync.Mutex
	replies  map[string][]string
	errs     map[string]error
	delay    map[string]time.Duration
	requests []generation.Request
}

// NewGenerator returns an empty scripted generator.
func NewGenerator() *Generator {
	return &Generator{
		replies: map[string][]string{},
		errs:    map[string]error{},
		delay:   map[string]time.Duration{},
	}
}

// Reply queues raw JSON replies for schema.
func (g *Generator) Reply(schema string, raw ...string) *Generator {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.replies[schema] = append(g.replies[schema], raw...)
	return g
}

// Fail makes every call for schema return err.
func (g *Generator) Fail(schema string, err error) *Generator {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.errs[schema] = err
	return g
}

// Delay makes calls for schema wait d, or until ctx is done.
func (g *Generator) Delay(schema string, d time.Duration) *Generator {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.delay[schema] = d
	return g
}

// Name implements generation.Service.
func (g *Generator) Name() string { return "fake" }

// Generate implements generation.Service.
func (g *Generator) Generate(ctx context.Context, req generation.Request) ([]byte, error) {
	g.mu.Lock()
	g.requests = append(g.requests, req)
	d := g.delay[req.SchemaName]
	err := g.errs[req.SchemaName]
	var reply string
	if q := g.replies[req.SchemaName]; len(q) > 0 {
		reply = q[0]
		if len(q) > 1 {
			g.replies[req.SchemaName] = q[1:]
		}
	}
	g.mu.Unlock()

	if d > 0 {
		t := time.NewTimer(d)
		defer t.Stop()
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-t.C:
		}
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if err != nil {
		return nil, err
	}
	if reply == "" {
		return nil, fmt.Errorf("no scripted reply for %s", req.SchemaName)
	}
	return []byte(reply), nil
}

// Requests returns a copy of the recorded requests.
func (g *Generator) Requests() []generation.Request {
	g.mu.Lock()
	defer g.mu.Unlock()
	return append([]generation.Request(nil), g.requests...)
}

// RequestsFor returns recorded requests for one schema.
func (g *Generator) RequestsFor(schema string) []generation.Request {
	var out []generation.Request
	for _, r := range g.Requests() {
		if r.SchemaName == schema {
			out = append(out, r)
		}
	}
	return out
}

// Table is a canned store result.
type Table struct {
	Columns []string
	Rows    [][]any
}

// Store is an in-memory sqlexec.Store. Queries are matched by the first
// registered substring found in the SQL text.
type Store struct {
	mu       sync.Mutex
	order    []string
	tables   map[string]Table
	missing  map[string]string
	failures map[string]error
	queries  []string
}

// NewStore returns an empty fake store.
func NewStore() *Store {
	return &Store{tables: map[string]Table{}, missing: map[string]string{}, failures: map[string]error{}}
}

// On registers a result for SQL containing match.
func (s *Store) On(match string, t Table) *Store {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.order = append(s.order, match)
	s.tables[match] = t
	return s
}

// Missing makes SQL containing match fail as relation-not-found.
func (s *Store) Missing(match, relation string) *Store {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.order = append(s.order, match)
	s.missing[match] = relation
	return s
}

// FailOn makes SQL containing match fail with err.
func (s *Store) FailOn(match string, err error) *Store {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.order = append(s.order, match)
	s.failures[match] = err
	return s
}

// Query implements sqlexec.Store.
func (s *Store) Query(ctx context.Context, sql string) ([]string, []sqlexec.Row, error) {
	if err := ctx.Err(); err != nil {
		return nil, nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.queries = append(s.queries, sql)
	for _, m := range s.order {
		if !strings.Contains(sql, m) {
			continue
		}
		if rel, ok := s.missing[m]; ok {
			return nil, nil, &sqlexec.RelationNotFoundError{Relation: rel, Err: fmt.Errorf("relation %q does not exist", rel)}
		}
		if err, ok := s.failures[m]; ok {
			return nil, nil, err
		}
		t := s.tables[m]
		rows := make([]sqlexec.Row, len(t.Rows))
		for i, vals := range t.Rows {
			rows[i] = sqlexec.NewRow(t.Columns, vals)
		}
		return t.Columns, rows, nil
	}
	return nil, nil, fmt.Errorf("no canned result for %q", sql)
}

// Queries returns the SQL texts received, in order.
func (s *Store) Queries() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.queries...)
}
