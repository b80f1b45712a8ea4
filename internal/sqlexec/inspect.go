// Copyright (c) 2025 Taproom
// Licensed under the MIT License. See LICENSE file in the project root for details.

package sqlexec

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
)

// ColumnInfo is one column reported by information_schema.
type ColumnInfo struct {
	Name     string
	Type     string
	Nullable bool
}

// Inspector reads catalog metadata through a Store. Column listings are
// cached per table.
type Inspector struct {
	store Store
	cache map[string][]ColumnInfo
	mu    sync.RWMutex
}

// NewInspector creates an Inspector over store.
func NewInspector(store Store) *Inspector {
	return &Inspector{store: store, cache: make(map[string][]ColumnInfo)}
}

// Tables lists user relations, lower-cased and sorted.
func (in *Inspector) Tables(ctx context.Context) ([]string, error) {
	_, rows, err := in.store.Query(ctx, `
		SELECT table_name
		FROM information_schema.tables
		WHERE table_schema NOT IN ('pg_catalog', 'information_schema')
		ORDER BY table_name`)
	if err != nil {
		return nil, fmt.Errorf("list tables: %w", err)
	}
	out := make([]string, 0, len(rows))
	for _, r := range rows {
		out = append(out, strings.ToLower(fmt.Sprint(r.Get("table_name"))))
	}
	sort.Strings(out)
	return out, nil
}

// Missing returns the relations in want that the store does not have, in
// the order given.
func (in *Inspector) Missing(ctx context.Context, want []string) ([]string, error) {
	have, err := in.Tables(ctx)
	if err != nil {
		return nil, err
	}
	set := make(map[string]struct{}, len(have))
	for _, t := range have {
		set[t] = struct{}{}
	}
	var missing []string
	for _, w := range want {
		if _, ok := set[baseName(w)]; !ok {
			missing = append(missing, w)
		}
	}
	return missing, nil
}

// Columns returns the columns of table in ordinal order. The table may be
// schema-qualified.
func (in *Inspector) Columns(ctx context.Context, table string) ([]ColumnInfo, error) {
	in.mu.RLock()
	if cols, ok := in.cache[table]; ok {
		in.mu.RUnlock()
		return cols, nil
	}
	in.mu.RUnlock()

	schema, name := parseTableName(table)
	where := fmt.Sprintf("table_name = %s", quote(name))
	if schema != "" {
		where += fmt.Sprintf(" AND table_schema = %s", quote(schema))
	}
	_, rows, err := in.store.Query(ctx, `
		SELECT column_name, data_type, is_nullable
		FROM information_schema.columns
		WHERE `+where+`
		ORDER BY ordinal_position`)
	if err != nil {
		return nil, fmt.Errorf("list columns of %s: %w", table, err)
	}
	if len(rows) == 0 {
		return nil, fmt.Errorf("table %s not found", table)
	}
	cols := make([]ColumnInfo, len(rows))
	for i, r := range rows {
		cols[i] = ColumnInfo{
			Name:     fmt.Sprint(r.Get("column_name")),
			Type:     fmt.Sprint(r.Get("data_type")),
			Nullable: strings.EqualFold(fmt.Sprint(r.Get("is_nullable")), "YES"),
		}
	}

	in.mu.Lock()
	in.cache[table] = cols
	in.mu.Unlock()
	return cols, nil
}

// ClearCache drops cached column listings.
func (in *Inspector) ClearCache() {
	in.mu.Lock()
	defer in.mu.Unlock()
	in.cache = make(map[string][]ColumnInfo)
}

// parseTableName splits "schema.table". The schema is empty when absent.
func parseTableName(table string) (schema, name string) {
	if parts := strings.SplitN(table, ".", 2); len(parts) == 2 {
		return parts[0], parts[1]
	}
	return "", table
}

func quote(s string) string {
	return "'" + strings.ReplaceAll(s, "'", "''") + "'"
}
