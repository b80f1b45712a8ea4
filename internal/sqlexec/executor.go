// Copyright (c) 2025 Taproom
// Licensed under the MIT License. See LICENSE file in the project root for details.

// Package sqlexec executes validated query batches against the analytical
// store. Batches are ordered and all-or-nothing: result i answers query i, and
// the first failure discards every result of the batch.
//
// Two stores are provided: PostgresStore over a pgx connection pool and
// SQLStore over database/sql (DuckDB files). Both classify missing relations
// as *RelationNotFoundError; the Executor maps those to a table-not-found
// error when the relation is one the environment is expected to be seeded
// with.
package sqlexec

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	apperr "taproom/cli/internal/errors"
	"taproom/cli/internal/safety"
)

// Executor runs batches of validated queries.
type Executor struct {
	store     Store
	bootstrap map[string]struct{}
	log       *zap.Logger
}

// Options configures an Executor.
type Options struct {
	// Bootstrap lists the relations a seeded environment must contain.
	Bootstrap []string
	Logger    *zap.Logger
}

// New creates an Executor over store.
func New(store Store, opts Options) *Executor {
	b := make(map[string]struct{}, len(opts.Bootstrap))
	for _, r := range opts.Bootstrap {
		b[baseName(r)] = struct{}{}
	}
	log := opts.Logger
	if log == nil {
		log = zap.NewNop()
	}
	return &Executor{store: store, bootstrap: b, log: log}
}

// Run executes queries one at a time in order.
func (e *Executor) Run(ctx context.Context, queries []safety.ValidatedQuery) ([]QueryResult, error) {
	out := make([]QueryResult, len(queries))
	for i, q := range queries {
		if err := ctx.Err(); err != nil {
			return nil, apperr.Execution(q.Name, err)
		}
		res, err := e.runOne(ctx, q)
		if err != nil {
			return nil, err
		}
		out[i] = res
	}
	return out, nil
}

// RunConcurrent executes up to limit queries at once. Results are placed by
// input index. The first failure cancels the remaining queries and is the
// error returned.
func (e *Executor) RunConcurrent(ctx context.Context, queries []safety.ValidatedQuery, limit int) ([]QueryResult, error) {
	if limit <= 0 {
		limit = 1
	}
	out := make([]QueryResult, len(queries))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(limit)
	for i, q := range queries {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return apperr.Execution(q.Name, err)
			}
			res, err := e.runOne(gctx, q)
			if err != nil {
				return err
			}
			out[i] = res
			return nil
		})
	}
	// Wait reports the first failure by completion time, not by index.
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return out, nil
}

func (e *Executor) runOne(ctx context.Context, q safety.ValidatedQuery) (QueryResult, error) {
	start := time.Now()
	cols, rows, err := e.store.Query(ctx, q.SQL)
	if err != nil {
		return QueryResult{}, e.classify(q, err)
	}
	e.log.Debug("query executed",
		zap.String("query", q.Name),
		zap.Int("rows", len(rows)),
		zap.Duration("elapsed", time.Since(start)))
	return QueryResult{QueryName: q.Name, Description: q.Description, Columns: cols, Rows: rows}, nil
}

func (e *Executor) classify(q safety.ValidatedQuery, err error) error {
	var rnf *RelationNotFoundError
	if errors.As(err, &rnf) {
		if _, ok := e.bootstrap[baseName(rnf.Relation)]; ok {
			e.log.Warn("bootstrap relation missing", zap.String("query", q.Name), zap.String("relation", rnf.Relation))
			return apperr.MissingTable(q.Name, rnf.Relation, err)
		}
	}
	e.log.Warn("query failed", zap.String("query", q.Name), zap.Error(err))
	return apperr.Execution(q.Name, err)
}
