// Copyright (c) 2025 Taproom
// Licensed under the MIT License. See LICENSE file in the project root for details.

package sqlexec

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"math/big"
	"regexp"
	"strings"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgtype"
)

// Store runs read-only SQL against the analytical database.
// A missing relation is reported as *RelationNotFoundError.
type Store interface {
	Query(ctx context.Context, sql string) (columns []string, rows []Row, err error)
}

// RelationNotFoundError is the store's classification of an unknown table.
type RelationNotFoundError struct {
	Relation string
	Err      error
}

func (e *RelationNotFoundError) Error() string {
	return fmt.Sprintf("relation %q does not exist: %v", e.Relation, e.Err)
}

func (e *RelationNotFoundError) Unwrap() error { return e.Err }

// Row is one result record. Columns keeps the store's column order.
type Row struct {
	Columns []string
	Values  map[string]any
}

// NewRow pairs column names with values, normalising driver types. Repeated
// column names are suffixed as by UniqueColumns.
func NewRow(cols []string, vals []any) Row {
	cols = UniqueColumns(cols)
	r := Row{Columns: cols, Values: make(map[string]any, len(cols))}
	for i, c := range cols {
		if i < len(vals) {
			r.Values[c] = normalize(vals[i])
		} else {
			r.Values[c] = nil
		}
	}
	return r
}

// UniqueColumns returns cols with repeated names renamed x_2, x_3 and so on,
// skipping suffixes that are already taken. cols is returned as is when every
// name is distinct.
func UniqueColumns(cols []string) []string {
	taken := make(map[string]struct{}, len(cols))
	distinct := true
	for _, c := range cols {
		if _, dup := taken[c]; dup {
			distinct = false
		}
		taken[c] = struct{}{}
	}
	if distinct {
		return cols
	}
	out := make([]string, len(cols))
	used := make(map[string]struct{}, len(cols))
	for i, c := range cols {
		name := c
		if _, dup := used[name]; dup {
			for n := 2; ; n++ {
				name = fmt.Sprintf("%s_%d", c, n)
				_, inUse := used[name]
				_, later := taken[name]
				if !inUse && !later {
					break
				}
			}
		}
		used[name] = struct{}{}
		out[i] = name
	}
	return out
}

// Get returns the value of col, or nil.
func (r Row) Get(col string) any { return r.Values[col] }

// Map returns a shallow copy of the values.
func (r Row) Map() map[string]any {
	m := make(map[string]any, len(r.Values))
	for k, v := range r.Values {
		m[k] = v
	}
	return m
}

// MarshalJSON encodes the row as an object in column order.
func (r Row) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, c := range r.Columns {
		if i > 0 {
			buf.WriteByte(',')
		}
		k, err := json.Marshal(c)
		if err != nil {
			return nil, err
		}
		v, err := json.Marshal(r.Values[c])
		if err != nil {
			return nil, fmt.Errorf("column %s: %w", c, err)
		}
		buf.Write(k)
		buf.WriteByte(':')
		buf.Write(v)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

// QueryResult is the outcome of one executed query.
type QueryResult struct {
	QueryName   string   `json:"queryName"`
	Description string   `json:"queryDescription"`
	Columns     []string `json:"columns"`
	Rows        []Row    `json:"data"`
}

// Sample returns a copy of r holding at most n rows.
func (r QueryResult) Sample(n int) QueryResult {
	if n >= 0 && len(r.Rows) > n {
		r.Rows = r.Rows[:n]
	}
	return r
}

// normalize converts driver values into JSON-friendly Go values.
func normalize(val any) any {
	switch v := val.(type) {
	case nil:
		return nil
	case []byte:
		return fmt.Sprintf("\\x%x", v)
	case [16]byte:
		return uuid.UUID(v).String()
	case pgtype.Numeric:
		f, err := v.Float64Value()
		if err != nil || !f.Valid {
			return nil
		}
		return f.Float64
	case *big.Int:
		f, _ := new(big.Float).SetInt(v).Float64()
		return f
	default:
		return normalizeDriver(v)
	}
}

var relationPatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)relation "?([\w.]+)"? does not exist`),
	regexp.MustCompile(`(?i)table with name "?([\w.]+)"? does not exist`),
	regexp.MustCompile(`(?i)no such table:? "?([\w.]+)"?`),
}

// relationFromMessage extracts the relation name from a driver error message.
func relationFromMessage(msg string) (string, bool) {
	for _, re := range relationPatterns {
		if m := re.FindStringSubmatch(msg); len(m) > 1 {
			return m[1], true
		}
	}
	return "", false
}

// baseName lower-cases a relation and drops any schema qualifier.
func baseName(rel string) string {
	rel = strings.ToLower(strings.Trim(rel, `"`))
	if i := strings.LastIndex(rel, "."); i >= 0 {
		rel = rel[i+1:]
	}
	return rel
}
