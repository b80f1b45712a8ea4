// Copyright (c) 2025 Taproom
// Licensed under the MIT License. See LICENSE file in the project root for details.

// Package cmd provides the command-line interface for taproom. Each
// subcommand is registered in its own file's init and shares the
// configuration and logger prepared by the root command.
package cmd

import (
	"errors"
	"fmt"
	"os"

	"github.com/pterm/pterm"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"taproom/cli/internal/config"
	"taproom/cli/internal/logging"
)

var (
	showVersion bool
	cfgFile     string
	verbose     bool

	appCfg *config.Loaded
	logger = zap.NewNop()
)

// flagKeys maps persistent flags onto config keys. --allow-partial is
// applied after loading since it inverts pipeline.require_all_accepted.
var flagKeys = map[string]string{
	"log-level":   "log_level",
	"schema":      "schema_path",
	"driver":      "db.driver",
	"provider":    "generation.provider",
	"model":       "generation.model",
	"endpoint":    "generation.endpoint",
	"insecure":    "generation.insecure",
	"concurrent":  "execution.concurrent",
	"concurrency": "execution.concurrency",
}

// rootCmd represents the base command when called without any subcommands.
var rootCmd = &cobra.Command{
	Use:   "taproom",
	Short: "Ask questions about the brewery warehouse in plain language",
	Long: `taproom turns a question into read-only SQL, runs it against the analytical
store and answers with the results, an explanation of every query, a chart
and a short insights report.

Configuration is read from $XDG_CONFIG_HOME/taproom/config.yaml, TAPROOM_*
environment variables and flags, in increasing order of precedence.`,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		loaded, err := config.Load(config.Options{
			File:         cfgFile,
			AllowMissing: cmd == configInitCmd,
			Flags:        cmd.Flags(),
			FlagKeys:     flagKeys,
		})
		if err != nil {
			return err
		}
		if f := cmd.Flags().Lookup("allow-partial"); f != nil && f.Changed {
			v, _ := cmd.Flags().GetBool("allow-partial")
			loaded.Pipeline.RequireAllAccepted = !v
		}
		level := loaded.LogLevel
		if verbose {
			level = "debug"
		}
		l, err := logging.New(level)
		if err != nil {
			return err
		}
		appCfg, logger = loaded, l
		logger.Debug("config loaded", zap.String("file", loaded.File), zap.String("provider", loaded.Generation.Provider))
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		_ = logger.Sync()
	},
	RunE: func(cmd *cobra.Command, args []string) error {
		if showVersion {
			printVersion()
			return nil
		}
		return cmd.Help()
	},
}

// Execute runs the CLI application.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		var shown silentError
		if errors.As(err, &shown) {
			os.Exit(1)
		}
		if msg := logging.FormatError(err); msg != "" {
			pterm.Println(msg)
		} else {
			fmt.Fprintln(os.Stderr, logging.Mask(err.Error()))
		}
		os.Exit(1)
	}
}

func init() {
	rootCmd.Flags().BoolVar(&showVersion, "version", false, "Show version information")

	pf := rootCmd.PersistentFlags()
	pf.StringVar(&cfgFile, "config", "", "Config file (default $XDG_CONFIG_HOME/taproom/config.yaml)")
	pf.BoolVarP(&verbose, "verbose", "v", false, "Enable debug logging on stderr")
	pf.String("log-level", "", "Log level: debug, info, warn or error")
	pf.String("schema", "", "Schema descriptor YAML (default: built-in brewery schema)")
	pf.String("driver", "", "Database driver: postgres or duckdb (default: detected from the DSN)")
	pf.String("provider", "", "Generation provider: gemini or grpc")
	pf.String("model", "", "Generation model name")
	pf.String("endpoint", "", "Generation service address for the grpc provider")
	pf.Bool("insecure", false, "Disable TLS for the grpc provider")
	pf.Bool("concurrent", false, "Run each batch of queries concurrently")
	pf.Int("concurrency", 0, "Maximum concurrent queries when --concurrent is set")
	pf.Bool("allow-partial", false, "Run the accepted queries even when some candidates are rejected")
}
