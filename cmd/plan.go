// Copyright (c) 2025 Taproom
// Licensed under the MIT License. See LICENSE file in the project root for details.

package cmd

import (
	"errors"
	"strings"

	"github.com/pterm/pterm"
	"github.com/spf13/cobra"

	"taproom/cli/internal/logging"
)

var planCmd = &cobra.Command{
	Use:   "plan <question>",
	Short: "Draft and check queries for a question without running them",
	Long: `The plan command drafts the candidate queries for a question and runs the
read-only check on each, printing the SQL and the verdict. Nothing is sent to the
database.`,
	Args: cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		question := strings.TrimSpace(strings.Join(args, " "))
		if question == "" {
			return errors.New("question is required")
		}
		ctx := cmd.Context()
		s, err := openSession(ctx, false)
		if err != nil {
			return err
		}
		defer s.Close()

		stop := startInlineSpinner("drafting queries")
		cands, err := s.core.Generate(ctx, question, nil)
		stop()
		if err != nil {
			return err
		}

		rejected := 0
		for _, v := range s.core.Gate.CheckAll(cands) {
			status := pterm.NewStyle(pterm.FgGreen).Sprint("✓ read-only")
			if !v.Accepted() {
				rejected++
				status = pterm.NewStyle(pterm.FgRed).Sprint("✗ " + logging.Mask(v.Err.Error()))
			}
			pterm.DefaultSection.Println(v.Candidate.Name)
			if v.Candidate.Description != "" {
				pterm.Println(v.Candidate.Description)
			}
			pterm.Println(pterm.NewStyle(pterm.FgGray).Sprint(strings.TrimSpace(v.Candidate.SQL)))
			pterm.Println(status)
			pterm.Println()
		}
		if rejected > 0 {
			pterm.Warning.Printfln("%d of %d queries would be rejected", rejected, len(cands))
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(planCmd)
}
