// Copyright (c) 2025 Taproom
// Licensed under the MIT License. See LICENSE file in the project root for details.

// Package main is the entry point for the taproom CLI.
package main

import (
	"taproom/cli/cmd"
)

func main() {
	cmd.Execute()
}
