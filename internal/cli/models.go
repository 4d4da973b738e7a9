// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/lioensky/AIhelpAI-MCP/internal/model"
)

// modelRow is the --json shape of one catalog entry.
type modelRow struct {
	Tool string `json:"tool"`
	model.Identity
}

func newModelsCmd(opts *rootOptions) *cobra.Command {
	var asJSON, asYAML bool

	cmd := &cobra.Command{
		Use:   "models",
		Short: "List the tools and the models behind them",
		Long: `List every ask_* tool with its remote model id and parameters.

--yaml prints the catalog in the format accepted by catalog.file, which is
a convenient starting point for a custom catalog.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := opts.loadConfig()
			if err != nil {
				return err
			}
			cat, err := loadCatalog(cfg)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			switch {
			case asJSON:
				return writeModelsJSON(out, cat)
			case asYAML:
				data, err := model.MarshalCatalog(cat)
				if err != nil {
					return err
				}
				_, err = out.Write(data)
				return err
			default:
				writeModelsTable(out, cat)
				return nil
			}
		},
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "Output as JSON")
	cmd.Flags().BoolVar(&asYAML, "yaml", false, "Output as a catalog file")
	cmd.MarkFlagsMutuallyExclusive("json", "yaml")
	return cmd
}

func writeModelsJSON(w io.Writer, cat *model.Catalog) error {
	ids := cat.Identities()
	rows := make([]modelRow, len(ids))
	for i, id := range ids {
		rows[i] = modelRow{Tool: id.ToolName(), Identity: id}
	}
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(rows)
}

func writeModelsTable(w io.Writer, cat *model.Catalog) {
	st := NewStyles(w)

	headers := []string{"TOOL", "MODEL", "REMOTE ID", "CONTEXT", "TEMP", "CAPABILITIES"}
	rows := [][]string{}
	for _, id := range cat.Identities() {
		rows = append(rows, []string{
			id.ToolName(),
			id.DisplayName,
			id.RemoteID,
			id.ContextString(),
			strconv.FormatFloat(id.Temperature, 'f', -1, 64),
			id.CapabilitiesString(),
		})
	}

	writeTable(w, st, headers, rows)
	fmt.Fprintln(w, st.Dim.Render(fmt.Sprintf("%d tools", len(rows))))
}
