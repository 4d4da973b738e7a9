// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// install.go - Register the server with an MCP client.
//
// Agent hosts keep their server list in a JSON file with an "mcpServers"
// object. install adds or replaces one entry and leaves every other key as
// it was.

package cli

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"

	"github.com/spf13/cobra"

	"github.com/lioensky/AIhelpAI-MCP/internal/config"
	"github.com/lioensky/AIhelpAI-MCP/internal/util"
)

// DefaultServerEntry is the mcpServers key written by install.
const DefaultServerEntry = "ai-helper"

// serverEntry is one mcpServers value.
type serverEntry struct {
	Command string            `json:"command"`
	Args    []string          `json:"args,omitempty"`
	Env     map[string]string `json:"env,omitempty"`
}

// mergeServerEntry returns the client config document with name set to entry.
// doc may be empty.
func mergeServerEntry(doc []byte, name string, entry serverEntry) ([]byte, error) {
	top := map[string]json.RawMessage{}
	if len(doc) > 0 {
		if err := json.Unmarshal(doc, &top); err != nil {
			return nil, fmt.Errorf("client config is not a JSON object: %w", err)
		}
	}

	servers := map[string]json.RawMessage{}
	if raw, ok := top["mcpServers"]; ok && string(raw) != "null" {
		if err := json.Unmarshal(raw, &servers); err != nil {
			return nil, fmt.Errorf("mcpServers is not a JSON object: %w", err)
		}
	}

	value, err := json.Marshal(entry)
	if err != nil {
		return nil, err
	}
	servers[name] = value

	if top["mcpServers"], err = json.Marshal(servers); err != nil {
		return nil, err
	}
	out, err := json.MarshalIndent(top, "", "  ")
	if err != nil {
		return nil, err
	}
	return append(out, '\n'), nil
}

func newInstallCmd(opts *rootOptions) *cobra.Command {
	var (
		clientConfig string
		name         string
		withKey      bool
		dryRun       bool
	)

	cmd := &cobra.Command{
		Use:   "install --client-config <file>",
		Short: "Register this server in an MCP client config file",
		Long: `Add an mcpServers entry that launches this binary over stdio.

The entry passes API_URL, and with --with-key API_KEY, from the effective
configuration. Without --with-key the client must provide the key itself.
The file is rewritten atomically; other entries are kept.`,
		Example: `  ai-helper-mcp install --client-config ~/.config/Claude/claude_desktop_config.json
  ai-helper-mcp install --client-config mcp.json --dry-run`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := opts.loadConfig()
			if err != nil {
				return err
			}

			exe, err := os.Executable()
			if err != nil {
				return fmt.Errorf("locate executable: %w", err)
			}

			entry := serverEntry{Command: exe, Env: map[string]string{}}
			if opts.configPath != "" {
				entry.Args = []string{"--config", util.ExpandHome(opts.configPath)}
			}
			if cfg.API.URL != "" {
				entry.Env[config.EnvAPIURL] = cfg.API.URL
			}
			if withKey && cfg.API.Key != "" {
				entry.Env[config.EnvAPIKey] = cfg.API.Key
			}

			path := util.ExpandHome(clientConfig)
			existing, err := os.ReadFile(path)
			if err != nil && !errors.Is(err, fs.ErrNotExist) {
				return err
			}

			doc, err := mergeServerEntry(existing, name, entry)
			if err != nil {
				return fmt.Errorf("%s: %w", path, err)
			}

			out := cmd.OutOrStdout()
			if dryRun {
				_, err := out.Write(doc)
				return err
			}
			if err := util.AtomicWriteFile(path, doc, 0o600); err != nil {
				return err
			}

			st := NewStyles(out)
			fmt.Fprintf(out, "%s registered %q in %s\n", st.RenderStatus("ok"), name, path)
			if !cfg.Configured() {
				fmt.Fprintln(out, st.Warning.Render("API_URL/API_KEY are not configured; calls will fail until the client sets them"))
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&clientConfig, "client-config", "", "MCP client config file to update")
	cmd.Flags().StringVar(&name, "name", DefaultServerEntry, "Entry name under mcpServers")
	cmd.Flags().BoolVar(&withKey, "with-key", false, "Write API_KEY into the client config")
	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "Print the resulting file instead of writing it")
	_ = cmd.MarkFlagRequired("client-config")
	return cmd
}
