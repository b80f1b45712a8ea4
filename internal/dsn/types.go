// Copyright (c) 2025 Taproom
// Licensed under the MIT License. See LICENSE file in the project root for details.

// Package dsn parses and normalizes connection strings for the analytical
// stores taproom can query: PostgreSQL servers and local DuckDB files.
package dsn

import "fmt"

// Driver identifies the store a DSN points at.
type Driver string

const (
	DriverPostgres Driver = "postgres"
	DriverDuckDB   Driver = "duckdb"
	DriverUnknown  Driver = "unknown"
)

// Info contains parsed information from a DSN string.
type Info struct {
	Driver   Driver
	Host     string
	Port     string
	User     string
	Password string
	Database string
	// Path is the database file for DuckDB; ":memory:" for an in-memory database.
	Path     string
	Params   map[string]string
	Original string
}

// Resolver is implemented once per driver.
type Resolver interface {
	Parse(dsn string) (*Info, error)
	Normalize(info *Info) (string, error)
	Validate(dsn string) error
}

// ParseError describes a DSN that could not be understood.
type ParseError struct {
	DSN    string
	Reason string
	Hint   string
}

func (e *ParseError) Error() string {
	if e.Hint != "" {
		return fmt.Sprintf("invalid DSN format: %s\nHint: %s", e.Reason, e.Hint)
	}
	return fmt.Sprintf("invalid DSN format: %s", e.Reason)
}

// NewParseError creates a ParseError.
func NewParseError(dsn, reason, hint string) *ParseError {
	return &ParseError{DSN: dsn, Reason: reason, Hint: hint}
}
