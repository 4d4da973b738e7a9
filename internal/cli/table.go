// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package cli

import (
	"fmt"
	"io"
	"strings"

	"github.com/lioensky/AIhelpAI-MCP/internal/util"
)

// writeTable prints rows in aligned columns under a styled header.
// Widths are measured in terminal columns, not bytes.
func writeTable(w io.Writer, st Styles, headers []string, rows [][]string) {
	widths := make([]int, len(headers))
	for i, h := range headers {
		widths[i] = util.StringWidth(h)
	}
	for _, row := range rows {
		for i, cell := range row {
			widths[i] = max(widths[i], util.StringWidth(cell))
		}
	}

	line := func(cells []string) string {
		var sb strings.Builder
		for i, cell := range cells {
			if i < len(cells)-1 {
				cell = util.PadRight(cell, widths[i]+2)
			}
			sb.WriteString(cell)
		}
		return sb.String()
	}

	fmt.Fprintln(w, st.Section.Render(line(headers)))
	for _, row := range rows {
		fmt.Fprintln(w, line(row))
	}
}
