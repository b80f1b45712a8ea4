// Copyright (c) 2025 Taproom
// Licensed under the MIT License. See LICENSE file in the project root for details.

package dsn

import (
	"strings"
)

// Detect returns the driver a DSN string is meant for.
func Detect(dsn string) Driver {
	lower := strings.ToLower(strings.TrimSpace(dsn))
	switch {
	case strings.HasPrefix(lower, "postgres://"), strings.HasPrefix(lower, "postgresql://"):
		return DriverPostgres
	case strings.HasPrefix(lower, "duckdb://"), isDuckPath(lower):
		return DriverDuckDB
	}
	return DriverUnknown
}

func resolver(dsn string) (Resolver, error) {
	if strings.TrimSpace(dsn) == "" {
		return nil, NewParseError(dsn, "empty DSN", "provide a valid database connection string")
	}
	switch Detect(dsn) {
	case DriverPostgres:
		return PostgresResolver{}, nil
	case DriverDuckDB:
		return DuckDBResolver{}, nil
	}
	return nil, NewParseError(dsn, "unknown database type", "use postgres://, postgresql:// or duckdb://")
}

// Parse parses dsn and returns the normalized connection string and driver.
func Parse(dsn string) (string, Driver, error) {
	r, err := resolver(dsn)
	if err != nil {
		return "", DriverUnknown, err
	}
	info, err := r.Parse(dsn)
	if err != nil {
		return "", DriverUnknown, err
	}
	out, err := r.Normalize(info)
	if err != nil {
		return "", DriverUnknown, err
	}
	return out, info.Driver, nil
}

// Validate validates dsn without normalizing it.
func Validate(dsn string) error {
	r, err := resolver(dsn)
	if err != nil {
		return err
	}
	return r.Validate(dsn)
}

// ParseInfo parses dsn into its parts.
func ParseInfo(dsn string) (*Info, error) {
	r, err := resolver(dsn)
	if err != nil {
		return nil, err
	}
	return r.Parse(dsn)
}

// Describe renders info for display without credentials.
func Describe(info *Info) string {
	if info == nil {
		return ""
	}
	if info.Driver == DriverDuckDB {
		return "duckdb " + info.Path
	}
	s := "postgres " + info.Host + ":" + info.Port + "/" + info.Database
	if info.User != "" {
		s += " as " + info.User
	}
	return s
}
