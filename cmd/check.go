// Copyright (c) 2025 Taproom
// Licensed under the MIT License. See LICENSE file in the project root for details.

package cmd

import (
	"errors"
	"io"
	"os"
	"strings"

	"github.com/pterm/pterm"
	"github.com/spf13/cobra"

	"taproom/cli/internal/logging"
	"taproom/cli/internal/planner"
	"taproom/cli/internal/safety"
)

var checkName string

var checkCmd = &cobra.Command{
	Use:   "check [sql]",
	Short: "Check whether SQL would be accepted as a read-only query",
	Long: `The check command applies the same read-only rules used before any query runs:
the statement must start with SELECT or WITH and must not contain a write or DDL
keyword as a whole word. With no argument the SQL is read from stdin.`,
	Example: `  taproom check "SELECT * FROM sales LIMIT 5"
  echo "DELETE FROM sales" | taproom check`,
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		var sql string
		if len(args) == 1 {
			sql = args[0]
		} else {
			b, err := io.ReadAll(os.Stdin)
			if err != nil {
				return err
			}
			sql = string(b)
		}
		if strings.TrimSpace(sql) == "" {
			return errors.New("no SQL to check")
		}

		gate := safety.NewGate(logger.Named("safety"))
		if _, err := gate.Check(planner.CandidateQuery{Name: checkName, SQL: sql}); err != nil {
			pterm.Println(logging.FormatError(err))
			return errSilent(err)
		}
		pterm.Success.Println("accepted: read-only statement")
		return nil
	},
}

func init() {
	rootCmd.AddCommand(checkCmd)
	checkCmd.Flags().StringVar(&checkName, "name", "input", "Query name used in messages")
}
