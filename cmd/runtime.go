// Copyright (c) 2025 Taproom
// Licensed under the MIT License. See LICENSE file in the project root for details.

package cmd

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/pterm/pterm"
	"go.uber.org/zap"

	"taproom/cli/internal/config"
	"taproom/cli/internal/dsn"
	"taproom/cli/internal/generation"
	"taproom/cli/internal/generation/gemini"
	"taproom/cli/internal/generation/grpcgen"
	"taproom/cli/internal/keychain"
	"taproom/cli/internal/logging"
	"taproom/cli/internal/pipeline"
	"taproom/cli/internal/planner"
	"taproom/cli/internal/schema"
	"taproom/cli/internal/sqlexec"
)

// errNoConnection is returned when no DSN is configured anywhere.
var errNoConnection = errors.New("no database connection configured; run 'taproom connect' or set TAPROOM_DSN")

// connection is a resolved, opened analytical store.
type connection struct {
	Info   *dsn.Info
	Source string
	Store  sqlexec.Store
	close  func() error
}

func (c *connection) Close() error {
	if c == nil || c.close == nil {
		return nil
	}
	return c.close()
}

// session bundles everything a turn needs.
type session struct {
	cfg  config.Config
	desc *schema.Descriptor
	conn *connection
	gen  generation.Service
	core *pipeline.Core

	closers []func() error
}

func (s *session) Close() {
	for i := len(s.closers) - 1; i >= 0; i-- {
		if err := s.closers[i](); err != nil {
			logger.Debug("close failed", zap.Error(err))
		}
	}
}

// coordinator builds a turn coordinator from config. events may be nil.
func (s *session) coordinator(events chan<- pipeline.Event) *pipeline.Coordinator {
	opts := pipeline.DefaultOptions()
	opts.RequireAllAccepted = s.cfg.Pipeline.RequireAllAccepted
	opts.Concurrent = s.cfg.Execution.Concurrent
	opts.Concurrency = s.cfg.Execution.Concurrency
	opts.ArtifactTimeout = s.cfg.Artifacts.Timeout
	opts.Events = events
	opts.Logger = logger.Named("pipeline")
	return s.core.Coordinator(opts)
}

// loadDescriptor returns the configured schema descriptor.
func loadDescriptor(cfg config.Config) (*schema.Descriptor, error) {
	schema.Init(cfg.SchemaPath)
	return schema.Default()
}

// resolveDSN finds the DSN: environment, then config, then the keychain.
func resolveDSN(cfg config.Config) (string, string, error) {
	if v, src, err := keychain.ResolveDSN(nil); err == nil {
		return v, string(src), nil
	}
	if cfg.DB.DSN != "" {
		return cfg.DB.DSN, "config", nil
	}
	km, err := keychain.GetManager()
	if err != nil {
		logger.Debug("keychain unavailable", zap.Error(err))
		return "", "", errNoConnection
	}
	v, src, err := keychain.ResolveDSN(km)
	if errors.Is(err, keychain.ErrNotFound) {
		return "", "", errNoConnection
	}
	if err != nil {
		return "", "", fmt.Errorf("failed to read DSN from keychain: %w", err)
	}
	return v, string(src), nil
}

// openConnection parses raw and opens the matching store.
func openConnection(ctx context.Context, raw, driver string) (*connection, error) {
	info, err := dsn.ParseInfo(raw)
	if err != nil {
		return nil, err
	}
	if driver != "" && driver != string(info.Driver) {
		return nil, fmt.Errorf("db.driver is %s but the DSN is a %s connection", driver, info.Driver)
	}
	normalized, _, err := dsn.Parse(raw)
	if err != nil {
		return nil, err
	}

	conn := &connection{Info: info}
	switch info.Driver {
	case dsn.DriverPostgres:
		st, err := sqlexec.NewPostgresStore(ctx, normalized)
		if err != nil {
			return nil, fmt.Errorf("connect to %s: %w", dsn.Describe(info), err)
		}
		conn.Store, conn.close = st, st.Close
	case dsn.DriverDuckDB:
		st, err := sqlexec.OpenDuckDB(ctx, normalized)
		if err != nil {
			return nil, err
		}
		conn.Store, conn.close = st, st.Close
	default:
		return nil, fmt.Errorf("unsupported database driver %q", info.Driver)
	}
	logger.Debug("store opened", zap.String("store", dsn.Describe(info)))
	return conn, nil
}

// newGenerator builds the configured generation backend.
func newGenerator(ctx context.Context, cfg config.Config) (generation.Service, func() error, error) {
	g := cfg.Generation
	log := logger.Named("generation")
	switch g.Provider {
	case config.ProviderGRPC:
		token, _, _ := keychain.ResolveAPIKey(nil)
		c, err := grpcgen.Dial(g.Endpoint, grpcgen.Options{Token: token, Insecure: g.Insecure, Timeout: g.Timeout, Logger: log})
		if err != nil {
			return nil, nil, err
		}
		return c, c.Close, nil
	default:
		km, _ := keychain.GetManager()
		key, _, err := keychain.ResolveAPIKey(km)
		if err != nil {
			return nil, nil, errors.New("no generation API key; set GEMINI_API_KEY or run 'taproom connect --api-key'")
		}
		c, err := gemini.New(ctx, key, gemini.WithModel(g.Model), gemini.WithTimeout(g.Timeout), gemini.WithLogger(log))
		if err != nil {
			return nil, nil, err
		}
		return c, func() error { return nil }, nil
	}
}

// openSession prepares a full turn environment. needStore is false for
// commands that never execute SQL.
func openSession(ctx context.Context, needStore bool) (*session, error) {
	cfg := appCfg.Config
	desc, err := loadDescriptor(cfg)
	if err != nil {
		return nil, err
	}
	s := &session{cfg: cfg, desc: desc}

	gen, closeGen, err := newGenerator(ctx, cfg)
	if err != nil {
		return nil, err
	}
	s.gen = gen
	s.closers = append(s.closers, closeGen)

	var store sqlexec.Store = unavailableStore{}
	if needStore {
		raw, src, err := resolveDSN(cfg)
		if err != nil {
			s.Close()
			return nil, err
		}
		pingCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
		conn, err := openConnection(pingCtx, raw, cfg.DB.Driver)
		cancel()
		if err != nil {
			s.Close()
			return nil, err
		}
		conn.Source = src
		s.conn = conn
		s.closers = append(s.closers, conn.Close)
		store = conn.Store
	}

	s.core = pipeline.NewCore(gen, store, desc, pipeline.CoreOptions{
		Planner: planner.Options{
			PriorSQLChars:    cfg.Limits.PriorSQLChars,
			PriorSampleChars: cfg.Limits.PriorSampleChars,
			PriorRowCap:      cfg.Limits.PriorRowCap,
			MaxPriorTurns:    cfg.Limits.MaxPriorTurns,
		},
		SampleRows: cfg.Limits.ResultSampleRows,
		Bootstrap:  cfg.Execution.BootstrapRelations,
		Logger:     logger,
	})
	return s, nil
}

// printConnection shows which store and generator a turn will use.
func printConnection(s *session) {
	if s.conn != nil {
		pterm.Println(pterm.NewStyle(pterm.FgLightCyan).Sprint("→ Database:  ") +
			pterm.NewStyle(pterm.FgCyan, pterm.Bold).Sprint(dsn.Describe(s.conn.Info)))
	}
	pterm.Println(pterm.NewStyle(pterm.FgLightCyan).Sprint("→ Generator: ") +
		pterm.NewStyle(pterm.FgLightBlue).Sprint(logging.Mask(s.gen.Name())))
	pterm.Println()
}

// unavailableStore backs commands that must never reach the database.
type unavailableStore struct{}

func (unavailableStore) Query(context.Context, string) ([]string, []sqlexec.Row, error) {
	return nil, nil, errors.New("no database connection in this command")
}
