// Copyright (c) 2025 Taproom
// Licensed under the MIT License. See LICENSE file in the project root for details.

// Package config loads CLI configuration from defaults, the XDG config file,
// TAPROOM_ environment variables and command-line flags, in that order of
// increasing precedence. Secrets never live here; see internal/keychain.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/confmap"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/posflag"
	"github.com/knadh/koanf/v2"
	"github.com/spf13/pflag"
	yamlv3 "gopkg.in/yaml.v3"

	"taproom/cli/internal/xdg"
)

// EnvPrefix prefixes every environment override. A double underscore
// separates nesting levels: TAPROOM_DB__DRIVER sets db.driver.
const EnvPrefix = "TAPROOM_"

// FileName is the config file name inside the XDG config dir.
const FileName = "config.yaml"

// Config holds non-sensitive CLI settings.
type Config struct {
	LogLevel   string           `koanf:"log_level" yaml:"log_level"`
	SchemaPath string           `koanf:"schema_path" yaml:"schema_path,omitempty"`
	DB         DBConfig         `koanf:"db" yaml:"db"`
	Generation GenerationConfig `koanf:"generation" yaml:"generation"`
	Limits     LimitsConfig     `koanf:"limits" yaml:"limits"`
	Execution  ExecutionConfig  `koanf:"execution" yaml:"execution"`
	Artifacts  ArtifactsConfig  `koanf:"artifacts" yaml:"artifacts"`
	Pipeline   PipelineConfig   `koanf:"pipeline" yaml:"pipeline"`
}

// DBConfig selects the analytical store. The DSN itself is normally kept in
// the keychain; a DSN here is accepted for local DuckDB files.
type DBConfig struct {
	Driver string `koanf:"driver" yaml:"driver,omitempty"`
	DSN    string `koanf:"dsn" yaml:"dsn,omitempty"`
}

// GenerationConfig selects the structured generation backend.
type GenerationConfig struct {
	Provider string        `koanf:"provider" yaml:"provider"`
	Model    string        `koanf:"model" yaml:"model,omitempty"`
	Endpoint string        `koanf:"endpoint" yaml:"endpoint,omitempty"`
	Timeout  time.Duration `koanf:"timeout" yaml:"timeout"`
	Insecure bool          `koanf:"insecure" yaml:"insecure,omitempty"`
}

// LimitsConfig bounds what is replayed from prior turns and sampled from
// results.
type LimitsConfig struct {
	PriorSQLChars    int `koanf:"prior_sql_chars" yaml:"prior_sql_chars"`
	PriorSampleChars int `koanf:"prior_sample_chars" yaml:"prior_sample_chars"`
	PriorRowCap      int `koanf:"prior_row_cap" yaml:"prior_row_cap"`
	MaxPriorTurns    int `koanf:"max_prior_turns" yaml:"max_prior_turns"`
	ResultSampleRows int `koanf:"result_sample_rows" yaml:"result_sample_rows"`
}

type ExecutionConfig struct {
	Concurrent         bool     `koanf:"concurrent" yaml:"concurrent"`
	Concurrency        int      `koanf:"concurrency" yaml:"concurrency"`
	BootstrapRelations []string `koanf:"bootstrap_relations" yaml:"bootstrap_relations,omitempty"`
}

type ArtifactsConfig struct {
	Timeout time.Duration `koanf:"timeout" yaml:"timeout"`
}

type PipelineConfig struct {
	RequireAllAccepted bool `koanf:"require_all_accepted" yaml:"require_all_accepted"`
}

// Providers and drivers accepted by Validate.
const (
	ProviderGemini = "gemini"
	ProviderGRPC   = "grpc"
	DriverPostgres = "postgres"
	DriverDuckDB   = "duckdb"
)

// Defaults returns the built-in settings as a flat koanf map.
func Defaults() map[string]any {
	return map[string]any{
		"log_level":                     "warn",
		"generation.provider":           ProviderGemini,
		"generation.model":              "gemini-2.5-flash",
		"generation.timeout":            "60s",
		"generation.insecure":           false,
		"limits.prior_sql_chars":        300,
		"limits.prior_sample_chars":     200,
		"limits.prior_row_cap":          100,
		"limits.max_prior_turns":        0,
		"limits.result_sample_rows":     5,
		"execution.concurrent":          false,
		"execution.concurrency":         4,
		"artifacts.timeout":             "45s",
		"pipeline.require_all_accepted": true,
	}
}

// Options tunes Load. The zero value reads the XDG config file and no flags.
type Options struct {
	// File overrides the config file path. A missing explicit file is an
	// error unless AllowMissing is set.
	File         string
	AllowMissing bool
	// Flags are applied last; only flags the user changed take effect.
	Flags *pflag.FlagSet
	// FlagKeys maps flag names to config keys. Unmapped flags use their name
	// with dashes turned into underscores.
	FlagKeys map[string]string
}

// Loaded is a Config together with where it came from.
type Loaded struct {
	Config
	// File is the config file that was read, or "" when none existed.
	File string
}

// Load builds the effective configuration.
func Load(opts Options) (*Loaded, error) {
	k := koanf.New(".")

	if err := k.Load(confmap.Provider(Defaults(), "."), nil); err != nil {
		return nil, fmt.Errorf("failed to load defaults: %w", err)
	}

	path, explicit := opts.File, opts.File != ""
	if !explicit {
		p, err := Path()
		if err != nil {
			return nil, err
		}
		path = p
	}
	used := ""
	if _, err := os.Stat(path); err == nil {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("error reading config file %s: %w", path, err)
		}
		used = path
	} else if explicit && !opts.AllowMissing {
		return nil, fmt.Errorf("config file %s: %w", path, err)
	}

	if err := k.Load(env.Provider(EnvPrefix, ".", envKey), nil); err != nil {
		return nil, fmt.Errorf("failed to load env vars: %w", err)
	}

	if opts.Flags != nil {
		if err := k.Load(posflag.ProviderWithFlag(opts.Flags, ".", k, func(f *pflag.Flag) (string, interface{}) {
			if !f.Changed {
				return "", nil
			}
			key, ok := opts.FlagKeys[f.Name]
			if !ok {
				key = strings.ReplaceAll(f.Name, "-", "_")
			}
			return key, posflag.FlagVal(opts.Flags, f)
		}), nil); err != nil {
			return nil, fmt.Errorf("failed to load flags: %w", err)
		}
	}

	var cfg Config
	if err := k.Unmarshal("", &cfg); err != nil {
		return nil, fmt.Errorf("unable to decode config: %w", err)
	}
	cfg.normalize()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &Loaded{Config: cfg, File: used}, nil
}

// envKey maps TAPROOM_GENERATION__MODEL to generation.model.
func envKey(s string) string {
	s = strings.ToLower(strings.TrimPrefix(s, EnvPrefix))
	return strings.ReplaceAll(s, "__", ".")
}

func (c *Config) normalize() {
	c.LogLevel = strings.ToLower(strings.TrimSpace(c.LogLevel))
	c.DB.Driver = strings.ToLower(strings.TrimSpace(c.DB.Driver))
	c.Generation.Provider = strings.ToLower(strings.TrimSpace(c.Generation.Provider))
}

// Validate rejects settings no component can work with.
func (c Config) Validate() error {
	var errs []error
	switch c.LogLevel {
	case "debug", "info", "warn", "error":
	default:
		errs = append(errs, fmt.Errorf("log_level %q: want debug, info, warn or error", c.LogLevel))
	}
	switch c.DB.Driver {
	case "", DriverPostgres, DriverDuckDB:
	default:
		errs = append(errs, fmt.Errorf("db.driver %q: want postgres or duckdb", c.DB.Driver))
	}
	switch c.Generation.Provider {
	case ProviderGemini:
	case ProviderGRPC:
		if c.Generation.Endpoint == "" {
			errs = append(errs, errors.New("generation.endpoint is required for the grpc provider"))
		}
	default:
		errs = append(errs, fmt.Errorf("generation.provider %q: want gemini or grpc", c.Generation.Provider))
	}
	if c.Execution.Concurrency < 1 {
		errs = append(errs, fmt.Errorf("execution.concurrency must be at least 1, got %d", c.Execution.Concurrency))
	}
	for name, v := range map[string]int{
		"limits.prior_sql_chars":    c.Limits.PriorSQLChars,
		"limits.prior_sample_chars": c.Limits.PriorSampleChars,
		"limits.prior_row_cap":      c.Limits.PriorRowCap,
		"limits.max_prior_turns":    c.Limits.MaxPriorTurns,
		"limits.result_sample_rows": c.Limits.ResultSampleRows,
	} {
		if v < 0 {
			errs = append(errs, fmt.Errorf("%s must not be negative", name))
		}
	}
	if c.Artifacts.Timeout < 0 || c.Generation.Timeout < 0 {
		errs = append(errs, errors.New("timeouts must not be negative"))
	}
	return errors.Join(errs...)
}

// Path returns the default config file path.
func Path() (string, error) {
	dir, err := xdg.ConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, FileName), nil
}

// Save writes c to path as YAML with 0600 permissions. An empty path means
// the default location.
func Save(path string, c Config) error {
	if path == "" {
		p, err := Path()
		if err != nil {
			return err
		}
		path = p
	}
	b, err := yamlv3.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to encode config: %w", err)
	}
	return os.WriteFile(path, b, 0o600)
}
