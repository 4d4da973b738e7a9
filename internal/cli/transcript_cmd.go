// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package cli

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"time"

	"github.com/spf13/cobra"

	"github.com/lioensky/AIhelpAI-MCP/internal/export"
	"github.com/lioensky/AIhelpAI-MCP/internal/transcript"
	"github.com/lioensky/AIhelpAI-MCP/internal/util"
)

// previewWidth bounds the prompt column of `transcript list`.
const previewWidth = 48

func newTranscriptCmd(opts *rootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "transcript",
		Short: "Inspect the recorded exchanges",
	}
	cmd.AddCommand(newTranscriptListCmd(opts), newTranscriptExportCmd(opts))
	return cmd
}

// openTranscript opens the configured transcript for reading. Unlike the
// server it does not create a missing database.
func openTranscript(opts *rootOptions) (*transcript.Log, error) {
	cfg, err := opts.loadConfig()
	if err != nil {
		return nil, err
	}
	path := util.ExpandHome(cfg.Transcript.Path)
	if _, err := os.Stat(path); errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("no transcript at %s", path)
	} else if err != nil {
		return nil, err
	}
	return transcript.Open(path)
}

func newTranscriptListCmd(opts *rootOptions) *cobra.Command {
	var limit int

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List the most recent exchanges, newest first",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			tlog, err := openTranscript(opts)
			if err != nil {
				return err
			}
			defer tlog.Close()

			entries, err := tlog.Recent(cmd.Context(), limit)
			if err != nil {
				return err
			}
			total, err := tlog.Count(cmd.Context())
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			st := NewStyles(out)
			rows := make([][]string, 0, len(entries))
			for _, e := range entries {
				status := "ok"
				if e.IsError {
					status = "error"
					if e.Status != 0 {
						status += " " + strconv.Itoa(e.Status)
					}
				}
				rows = append(rows, []string{
					e.CreatedAt.Local().Format("2006-01-02 15:04:05"),
					e.Tool,
					status,
					e.Duration.Round(time.Millisecond).String(),
					util.LogPreview(e.Prompt, previewWidth),
				})
			}
			writeTable(out, st, []string{"TIME", "TOOL", "STATUS", "DURATION", "PROMPT"}, rows)
			fmt.Fprintln(out, st.Dim.Render(fmt.Sprintf("%d of %d exchanges", len(rows), total)))
			return nil
		},
	}
	cmd.Flags().IntVarP(&limit, "limit", "n", 20, "Maximum number of exchanges to show")
	return cmd
}

func newTranscriptExportCmd(opts *rootOptions) *cobra.Command {
	var (
		format   string
		output   string
		limit    int
		noErrors bool
	)

	cmd := &cobra.Command{
		Use:   "export",
		Short: "Export recent exchanges as Markdown or JSON",
		Long: `Export the most recent exchanges, oldest first.

Without --output the document is written to stdout. Files are written
atomically with mode 0600.`,
		Example: `  ai-helper-mcp transcript export --format md -o review.md
  ai-helper-mcp transcript export --format json --limit 100`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			eopts := export.DefaultOptions()
			eopts.IncludeErrors = !noErrors
			exp, err := export.ForFormat(format, eopts)
			if err != nil {
				return err
			}

			tlog, err := openTranscript(opts)
			if err != nil {
				return err
			}
			defer tlog.Close()

			entries, err := tlog.Recent(cmd.Context(), limit)
			if err != nil {
				return err
			}

			if output == "" {
				data, err := exp.Export(entries)
				if err != nil {
					return err
				}
				_, err = cmd.OutOrStdout().Write(data)
				return err
			}

			path := util.ExpandHome(output)
			if err := export.ExportToFile(entries, exp, path); err != nil {
				return err
			}
			st := NewStyles(cmd.ErrOrStderr())
			fmt.Fprintf(cmd.ErrOrStderr(), "%s exported %d exchanges to %s\n", st.RenderStatus("ok"), len(entries), path)
			return nil
		},
	}
	cmd.Flags().StringVarP(&format, "format", "f", "md", "Output format: md or json")
	cmd.Flags().StringVarP(&output, "output", "o", "", "Write to file instead of stdout")
	cmd.Flags().IntVarP(&limit, "limit", "n", 100, "Maximum number of exchanges to export")
	cmd.Flags().BoolVar(&noErrors, "no-errors", false, "Leave out failed calls")
	return cmd
}
