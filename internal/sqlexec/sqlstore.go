// Copyright (c) 2025 Taproom
// Licensed under the MIT License. See LICENSE file in the project root for details.

package sqlexec

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/marcboeker/go-duckdb"
)

// SQLStore runs queries over a database/sql handle. It is used with the
// DuckDB driver for local analytical files.
type SQLStore struct {
	DB *sql.DB
}

// OpenDuckDB opens a DuckDB database file read-only. An empty path opens an
// in-memory database.
func OpenDuckDB(ctx context.Context, path string) (*SQLStore, error) {
	dsn := path
	if path != "" && !strings.Contains(path, "access_mode=") {
		sep := "?"
		if strings.Contains(path, "?") {
			sep = "&"
		}
		dsn = path + sep + "access_mode=read_only"
	}
	db, err := sql.Open("duckdb", dsn)
	if err != nil {
		return nil, fmt.Errorf("open duckdb %s: %w", path, err)
	}
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("open duckdb %s: %w", path, err)
	}
	return &SQLStore{DB: db}, nil
}

// Close closes the handle.
func (s *SQLStore) Close() error {
	if s.DB != nil {
		return s.DB.Close()
	}
	return nil
}

// Query runs sql and collects every row.
func (s *SQLStore) Query(ctx context.Context, sqlText string) ([]string, []Row, error) {
	if s.DB == nil {
		return nil, nil, fmt.Errorf("database connection not established")
	}
	rows, err := s.DB.QueryContext(ctx, sqlText)
	if err != nil {
		return nil, nil, classifyMessage(err)
	}
	defer func() { _ = rows.Close() }()

	cols, err := rows.Columns()
	if err != nil {
		return nil, nil, err
	}
	var out []Row
	for rows.Next() {
		vals := make([]any, len(cols))
		ptrs := make([]any, len(cols))
		for i := range vals {
			ptrs[i] = &vals[i]
		}
		if err := rows.Scan(ptrs...); err != nil {
			return nil, nil, fmt.Errorf("scan row: %w", err)
		}
		out = append(out, NewRow(cols, vals))
	}
	if err := rows.Err(); err != nil {
		return nil, nil, classifyMessage(err)
	}
	return UniqueColumns(cols), out, nil
}

func classifyMessage(err error) error {
	if rel, ok := relationFromMessage(err.Error()); ok {
		return &RelationNotFoundError{Relation: rel, Err: err}
	}
	return err
}

func normalizeDriver(val any) any {
	switch v := val.(type) {
	case duckdb.UUID:
		return uuid.UUID(v).String()
	case *duckdb.UUID:
		if v == nil {
			return nil
		}
		return uuid.UUID(*v).String()
	case duckdb.Decimal:
		return v.Float64()
	default:
		return val
	}
}
