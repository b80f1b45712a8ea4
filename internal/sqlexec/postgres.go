// Copyright (c) 2025 Taproom
// Licensed under the MIT License. See LICENSE file in the project root for details.

package sqlexec

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

// undefinedTable is the PostgreSQL SQLSTATE for a missing relation.
const undefinedTable = "42P01"

// PostgresStore runs queries over a pgx connection pool.
type PostgresStore struct {
	Pool *pgxpool.Pool
	// SearchPath, when set, is applied to each acquired connection.
	SearchPath string
}

// NewPostgresStore opens a pool for dsn and verifies it with a ping.
func NewPostgresStore(ctx context.Context, dsn string) (*PostgresStore, error) {
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, err
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, err
	}
	return &PostgresStore{Pool: pool}, nil
}

// Close releases the pool.
func (s *PostgresStore) Close() error {
	s.Pool.Close()
	return nil
}

// Query runs sql in a read-only transaction so nothing can be written even
// if a statement slips past validation.
func (s *PostgresStore) Query(ctx context.Context, sql string) ([]string, []Row, error) {
	conn, err := s.Pool.Acquire(ctx)
	if err != nil {
		return nil, nil, err
	}
	defer conn.Release()

	tx, err := conn.BeginTx(ctx, pgx.TxOptions{AccessMode: pgx.ReadOnly})
	if err != nil {
		return nil, nil, err
	}
	defer tx.Rollback(ctx)

	if s.SearchPath != "" {
		if _, err := tx.Exec(ctx, "SET LOCAL search_path TO "+pgx.Identifier{s.SearchPath}.Sanitize()); err != nil {
			return nil, nil, fmt.Errorf("set search_path: %w", err)
		}
	}

	rows, err := tx.Query(ctx, sql)
	if err != nil {
		return nil, nil, classifyPg(err)
	}
	defer rows.Close()

	fds := rows.FieldDescriptions()
	cols := make([]string, len(fds))
	for i, fd := range fds {
		cols[i] = fd.Name
	}

	var out []Row
	for rows.Next() {
		vals, err := rows.Values()
		if err != nil {
			return nil, nil, err
		}
		out = append(out, NewRow(cols, vals))
	}
	if err := rows.Err(); err != nil {
		return nil, nil, classifyPg(err)
	}
	return UniqueColumns(cols), out, nil
}

func classifyPg(err error) error {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == undefinedTable {
		rel := pgErr.TableName
		if rel == "" {
			rel, _ = relationFromMessage(pgErr.Message)
		}
		return &RelationNotFoundError{Relation: rel, Err: err}
	}
	return err
}
