// Copyright (c) 2025 Taproom
// Licensed under the MIT License. See LICENSE file in the project root for details.

package sqlexec

import (
	"encoding/json"
	"fmt"
	"strings"
)

// PromptText renders results for an artifact prompt. Each result is cut to
// its first sample rows; the total row count is kept in the header.
func PromptText(results []QueryResult, sample int) string {
	parts := make([]string, len(results))
	for i, r := range results {
		rows := r.Sample(sample).Rows
		if rows == nil {
			rows = []Row{}
		}
		data, err := json.MarshalIndent(rows, "", "  ")
		if err != nil {
			data = []byte(fmt.Sprintf("<unencodable sample: %v>", err))
		}
		parts[i] = fmt.Sprintf("Query %d (%s): %s\nSample data (%d total rows):\n%s",
			i+1, r.QueryName, r.Description, len(r.Rows), data)
	}
	return strings.Join(parts, "\n\n")
}
