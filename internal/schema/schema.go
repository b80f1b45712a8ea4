// Copyright (c) 2025 Taproom
// Licensed under the MIT License. See LICENSE file in the project root for details.

// Package schema holds the SchemaDescriptor: the fixed description of the
// analytical tables, their columns, join rules and worked example queries that
// every prompt is built against.
//
// A Descriptor is loaded once at startup and never mutated afterwards. The
// process-wide instance is reached through Default() and may be replaced only
// before first use via Init.
package schema

import (
	_ "embed"
	"fmt"
	"os"
	"strings"
	"sync"

	"gopkg.in/yaml.v3"
)

//go:embed brewery.yaml
var builtin []byte

// Column describes a single table column.
type Column struct {
	Name     string `yaml:"name"`
	Type     string `yaml:"type"`
	Nullable bool   `yaml:"nullable"`
	Default  string `yaml:"default,omitempty"`
}

// Table describes an analytical relation.
type Table struct {
	Name        string   `yaml:"name"`
	Description string   `yaml:"description"`
	Grain       string   `yaml:"grain"`
	JoinKeys    []string `yaml:"join_keys"`
	Columns     []Column `yaml:"columns"`
}

// Example is a worked question/SQL pair shown to the generation service.
type Example struct {
	Question string `yaml:"question"`
	SQL      string `yaml:"sql"`
	Note     string `yaml:"note,omitempty"`
}

// Descriptor is the immutable description of the analytical store.
type Descriptor struct {
	Name          string    `yaml:"name"`
	Dialect       string    `yaml:"dialect"`
	Context       string    `yaml:"context"`
	Tables        []Table   `yaml:"tables"`
	JoinRules     []string  `yaml:"join_rules"`
	Guidance      []string  `yaml:"guidance"`
	PlanningSteps []string  `yaml:"planning_steps"`
	Examples      []Example `yaml:"examples"`
}

// Parse decodes and validates a YAML descriptor.
func Parse(data []byte) (*Descriptor, error) {
	var d Descriptor
	if err := yaml.Unmarshal(data, &d); err != nil {
		return nil, fmt.Errorf("parse schema descriptor: %w", err)
	}
	if err := d.validate(); err != nil {
		return nil, err
	}
	if d.Dialect == "" {
		d.Dialect = "postgres"
	}
	return &d, nil
}

// Load reads a descriptor from path, or returns the built-in brewery
// descriptor when path is empty.
func Load(path string) (*Descriptor, error) {
	if strings.TrimSpace(path) == "" {
		return Parse(builtin)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read schema descriptor: %w", err)
	}
	return Parse(data)
}

func (d *Descriptor) validate() error {
	if len(d.Tables) == 0 {
		return fmt.Errorf("schema descriptor: no tables defined")
	}
	seen := make(map[string]struct{}, len(d.Tables))
	for i, t := range d.Tables {
		name := strings.TrimSpace(t.Name)
		if name == "" {
			return fmt.Errorf("schema descriptor: table %d has no name", i+1)
		}
		key := strings.ToLower(name)
		if _, dup := seen[key]; dup {
			return fmt.Errorf("schema descriptor: duplicate table %q", name)
		}
		seen[key] = struct{}{}
		if len(t.Columns) == 0 {
			return fmt.Errorf("schema descriptor: table %q has no columns", name)
		}
	}
	return nil
}

// Table returns the named table, matched case-insensitively.
func (d *Descriptor) Table(name string) (Table, bool) {
	for _, t := range d.Tables {
		if strings.EqualFold(t.Name, name) {
			return t, true
		}
	}
	return Table{}, false
}

// Relations returns the lower-cased names of every described table.
// These are the bootstrap relations the executor expects to exist.
func (d *Descriptor) Relations() []string {
	out := make([]string, 0, len(d.Tables))
	for _, t := range d.Tables {
		out = append(out, strings.ToLower(t.Name))
	}
	return out
}

var (
	defaultOnce sync.Once
	defaultDesc *Descriptor
	defaultErr  error
	initPath    string
	initMu      sync.Mutex
)

// Init sets the descriptor path used by Default. It has no effect once
// Default has been called.
func Init(path string) {
	initMu.Lock()
	defer initMu.Unlock()
	initPath = path
}

// Default returns the process-wide descriptor, loading it on first call.
func Default() (*Descriptor, error) {
	defaultOnce.Do(func() {
		initMu.Lock()
		p := initPath
		initMu.Unlock()
		defaultDesc, defaultErr = Load(p)
	})
	return defaultDesc, defaultErr
}
