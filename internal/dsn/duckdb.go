// Copyright (c) 2025 Taproom
// Licensed under the MIT License. See LICENSE file in the project root for details.

package dsn

import (
	"path/filepath"
	"strings"
)

// DuckDBResolver handles duckdb:// DSNs and bare database file paths.
type DuckDBResolver struct{}

var duckExts = []string{".duckdb", ".ddb", ".db"}

func isDuckPath(s string) bool {
	if s == ":memory:" {
		return true
	}
	ext := strings.ToLower(filepath.Ext(s))
	for _, e := range duckExts {
		if ext == e {
			return true
		}
	}
	return false
}

// Parse accepts "duckdb:///path/to/file.duckdb", "duckdb://:memory:" and
// plain file paths with a DuckDB extension.
func (DuckDBResolver) Parse(dsn string) (*Info, error) {
	path := strings.TrimSpace(dsn)
	if rest, ok := strings.CutPrefix(path, "duckdb://"); ok {
		path = rest
	} else if !isDuckPath(path) {
		return nil, NewParseError(dsn, "not a DuckDB database", "use duckdb:///path/to/file.duckdb or a .duckdb file path")
	}
	path, query, _ := strings.Cut(path, "?")
	if path == "" {
		return nil, NewParseError(dsn, "missing database path", "use duckdb:///path/to/file.duckdb or duckdb://:memory:")
	}
	info := &Info{Driver: DriverDuckDB, Path: path, Database: strings.TrimSuffix(filepath.Base(path), filepath.Ext(path)), Params: map[string]string{}, Original: dsn}
	for _, kv := range strings.Split(query, "&") {
		if k, v, ok := strings.Cut(kv, "="); ok {
			info.Params[k] = v
		}
	}
	return info, nil
}

// Normalize returns the database path understood by the DuckDB driver.
func (DuckDBResolver) Normalize(info *Info) (string, error) {
	if info == nil || info.Path == "" {
		return "", NewParseError("", "missing database path", "")
	}
	if info.Path == ":memory:" {
		return "", nil
	}
	return filepath.Clean(info.Path), nil
}

// Validate parses dsn.
func (r DuckDBResolver) Validate(dsn string) error {
	_, err := r.Parse(dsn)
	return err
}
