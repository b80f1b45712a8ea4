// Copyright (c) 2025 Taproom
// Licensed under the MIT License. See LICENSE file in the project root for details.

package cmd

import (
	"fmt"

	"github.com/pterm/pterm"
	"github.com/spf13/cobra"

	"taproom/cli/internal/planner"
)

var schemaPrompt bool

var schemaCmd = &cobra.Command{
	Use:   "schema",
	Short: "Show the schema descriptor queries are drafted against",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		desc, err := loadDescriptor(appCfg.Config)
		if err != nil {
			return err
		}
		if schemaPrompt {
			fmt.Println(planner.SystemPrompt(desc))
			return nil
		}
		pterm.DefaultSection.Println(fmt.Sprintf("%s (%s)", desc.Name, desc.Dialect))
		if desc.Context != "" {
			pterm.Println(desc.Context)
			pterm.Println()
		}
		pterm.Println(desc.TablesText(true))
		if len(desc.JoinRules) > 0 {
			pterm.DefaultSection.WithLevel(2).Println("Join rules")
			pterm.Println(desc.JoinRulesText())
		}
		if len(desc.Guidance) > 0 {
			pterm.DefaultSection.WithLevel(2).Println("Guidance")
			pterm.Println(desc.GuidanceText())
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(schemaCmd)
	schemaCmd.Flags().BoolVar(&schemaPrompt, "prompt", false, "Print the full drafting system prompt instead")
}
