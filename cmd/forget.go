// Copyright (c) 2025 Taproom
// Licensed under the MIT License. See LICENSE file in the project root for details.

package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"taproom/cli/internal/keychain"
)

var forgetDBOnly bool

// forgetCmd removes stored secrets from the OS keychain.
var forgetCmd = &cobra.Command{
	Use:   "forget",
	Short: "Remove the stored DSN and API key from the OS keychain",
	Long: `The forget command removes what 'taproom connect' stored in the OS keychain.
Environment variables and the config file are left alone.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		km, err := keychain.GetManager()
		if err != nil {
			return err
		}
		if forgetDBOnly {
			err = km.ClearDB()
		} else {
			err = km.ClearAll()
		}
		if err != nil {
			return err
		}
		if forgetDBOnly {
			fmt.Println("✅ The stored database connection has been removed")
		} else {
			fmt.Println("✅ All stored credentials have been removed")
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(forgetCmd)
	forgetCmd.Flags().BoolVar(&forgetDBOnly, "db", false, "Only remove the database connection")
}
