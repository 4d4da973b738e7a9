// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package cli implements the ai-helper-mcp command line.
//
// Running the binary with no subcommand serves MCP over stdio, which is how
// agent hosts launch it. Other commands:
//
//   - serve: same as the root command, with --listen for WebSocket mode
//   - models: print the model catalog
//   - config init|show: write a default config file or print the effective one
//   - install: register the server in an MCP client config file
//   - transcript list|export: inspect or export recorded exchanges
package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/lioensky/AIhelpAI-MCP/internal/config"
)

// Version information (can be overridden at build time)
var (
	Version   = "0.1.0"
	GitCommit = "unknown"
	BuildDate = "unknown"
)

// rootOptions are the persistent flags shared by every command.
type rootOptions struct {
	configPath string
	logLevel   string
}

// loadConfig loads the effective config and applies flag overrides.
func (o *rootOptions) loadConfig() (*config.Config, error) {
	cfg, err := config.Load(o.configPath)
	if err != nil {
		return nil, err
	}
	if o.logLevel != "" {
		cfg.Log.Level = o.logLevel
		if err := cfg.Validate(); err != nil {
			return nil, fmt.Errorf("invalid flags: %w", err)
		}
	}
	return cfg, nil
}

// NewRootCmd builds the command tree.
func NewRootCmd() *cobra.Command {
	opts := &rootOptions{}
	var listen string

	root := &cobra.Command{
		Use:   "ai-helper-mcp",
		Short: "MCP server that lets an agent consult other AI models",
		Long: `ai-helper-mcp exposes one MCP tool per configured remote model
(ask_grok3, ask_gemini2_5pro, ask_claude3_7sonnet, ask_gpt4o). Each call is
forwarded to an OpenAI-compatible chat-completion endpoint together with the
recent conversation history.

Configuration:
  API_URL, API_KEY          endpoint and bearer key (required for calls)
  ~/.aihelper/config.toml   optional file; environment values override it

Quick Start:
  ai-helper-mcp                     # serve MCP over stdio
  ai-helper-mcp serve --listen :8765  # serve MCP over WebSocket at /mcp
  ai-helper-mcp models              # list the tools and their models`,
		Version:       fmt.Sprintf("%s (commit: %s, built: %s)", Version, GitCommit, BuildDate),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(cmd, opts, listen)
		},
	}

	root.PersistentFlags().StringVarP(&opts.configPath, "config", "c", "", "Config file (default ~/.aihelper/config.toml)")
	root.PersistentFlags().StringVar(&opts.logLevel, "log-level", "", "Log level: debug, info, warn, error")
	root.Flags().StringVar(&listen, "listen", "", "Serve WebSocket on host:port instead of stdio")
	root.SetVersionTemplate(`{{printf "%s\n" .Version}}`)

	root.AddCommand(
		newServeCmd(opts),
		newModelsCmd(opts),
		newConfigCmd(opts),
		newInstallCmd(opts),
		newTranscriptCmd(opts),
	)
	return root
}

// Execute runs the CLI and exits non-zero on error.
func Execute() {
	if err := NewRootCmd().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
