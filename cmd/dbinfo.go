// Copyright (c) 2025 Taproom
// Licensed under the MIT License. See LICENSE file in the project root for details.

package cmd

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/pterm/pterm"
	"github.com/spf13/cobra"

	"taproom/cli/internal/dsn"
	"taproom/cli/internal/logging"
	"taproom/cli/internal/sqlexec"
)

var dbinfoCheck bool

// dbinfoCmd shows the configured connection with credentials masked.
var dbinfoCmd = &cobra.Command{
	Use:   "dbinfo",
	Short: "Show the current database connection",
	Long: `The dbinfo command shows which database later commands will use and where the
DSN came from (environment, config file or OS keychain). Credentials are masked.

With --check the connection is opened and the warehouse tables are listed.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		raw, src, err := resolveDSN(appCfg.Config)
		if errors.Is(err, errNoConnection) {
			pterm.Println("⚠️  No database connection configured")
			pterm.Println("   Please run: taproom connect")
			return nil
		}
		if err != nil {
			return err
		}

		body := logging.Mask(raw)
		if info, err := dsn.ParseInfo(raw); err == nil {
			body = dsn.Describe(info) + "\n" + body
		}
		pterm.DefaultBox.
			WithTitle(pterm.NewStyle(pterm.FgCyan, pterm.Bold).Sprint("Database Connection")).
			WithPadding(1).
			Println(body)
		pterm.Println("Source: " + src)
		pterm.Println()

		if dbinfoCheck {
			return checkTables(cmd.Context(), raw)
		}
		pterm.Println("To update this connection, run: taproom connect")
		return nil
	},
}

func checkTables(ctx context.Context, raw string) error {
	pctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	conn, err := openConnection(pctx, raw, appCfg.DB.Driver)
	if err != nil {
		return err
	}
	defer conn.Close()

	tables, err := sqlexec.NewInspector(conn.Store).Tables(pctx)
	if err != nil {
		return err
	}
	pterm.DefaultSection.Println("Tables")
	pterm.Println(strings.Join(tables, "\n"))
	pterm.Println()

	desc, err := loadDescriptor(appCfg.Config)
	if err != nil {
		return err
	}
	want := append(desc.Relations(), appCfg.Execution.BootstrapRelations...)
	missing, err := sqlexec.NewInspector(conn.Store).Missing(pctx, want)
	if err != nil {
		return err
	}
	if len(missing) > 0 {
		pterm.Warning.Printfln("Not seeded; missing: %s", strings.Join(missing, ", "))
	} else {
		pterm.Success.Println("All warehouse tables are present")
	}
	return nil
}

func init() {
	rootCmd.AddCommand(dbinfoCmd)
	dbinfoCmd.Flags().BoolVar(&dbinfoCheck, "check", false, "Open the connection and list tables")
}
