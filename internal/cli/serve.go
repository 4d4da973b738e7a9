// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package cli

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/lioensky/AIhelpAI-MCP/internal/mcp"
)

func newServeCmd(opts *rootOptions) *cobra.Command {
	var listen string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve MCP over stdio, or WebSocket with --listen",
		Long: `Serve the ask_* tools over MCP.

By default requests are read from stdin and responses written to stdout,
one JSON-RPC message per line. With --listen the server accepts WebSocket
connections at ws://<addr>/mcp instead; all connections share one history.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(cmd, opts, listen)
		},
	}
	cmd.Flags().StringVar(&listen, "listen", "", "Serve WebSocket on host:port instead of stdio")
	return cmd
}

func runServe(cmd *cobra.Command, opts *rootOptions, listen string) error {
	cfg, err := opts.loadConfig()
	if err != nil {
		return err
	}
	if listen != "" {
		cfg.Server.Listen = listen
	}

	stderr := cmd.ErrOrStderr()
	logger, err := newLogger(stderr, cfg.Log.Level, cfg.Log.Format)
	if err != nil {
		return err
	}

	a, err := newApp(cfg, logger)
	if err != nil {
		return err
	}
	defer func() {
		if err := a.Close(); err != nil {
			logger.Warn("failed to close transcript", "error", err)
		}
	}()

	printBanner(stderr, a)
	if !a.client.Configured() {
		logger.Warn("API_URL or API_KEY not set; tools are listed but every call will fail")
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if cfg.Server.Listen != "" {
		err = a.httpServer().ListenAndServe(ctx, cfg.Server.Listen)
	} else {
		logger.Info("serving MCP on stdio", "tools", a.catalog.Len())
		err = a.mcp.Serve(ctx, mcp.NewStdioConn(cmd.InOrStdin(), cmd.OutOrStdout()))
	}

	if errors.Is(err, context.Canceled) {
		logger.Info("shutting down")
		return nil
	}
	return err
}
