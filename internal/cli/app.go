// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package cli

import (
	"fmt"
	"log/slog"

	"github.com/lioensky/AIhelpAI-MCP/internal/cloud"
	"github.com/lioensky/AIhelpAI-MCP/internal/config"
	"github.com/lioensky/AIhelpAI-MCP/internal/dispatch"
	"github.com/lioensky/AIhelpAI-MCP/internal/mcp"
	"github.com/lioensky/AIhelpAI-MCP/internal/model"
	"github.com/lioensky/AIhelpAI-MCP/internal/security"
	"github.com/lioensky/AIhelpAI-MCP/internal/server"
	"github.com/lioensky/AIhelpAI-MCP/internal/session"
	"github.com/lioensky/AIhelpAI-MCP/internal/telemetry"
	"github.com/lioensky/AIhelpAI-MCP/internal/transcript"
	"github.com/lioensky/AIhelpAI-MCP/internal/util"
)

// app holds the process-wide singletons. One app serves every connection.
type app struct {
	cfg        *config.Config
	logger     *slog.Logger
	catalog    *model.Catalog
	store      *session.Store
	client     *cloud.Client
	transcript *transcript.Log
	usage      *telemetry.Tracker
	dispatcher *dispatch.Dispatcher
	mcp        *mcp.Server
}

// loadCatalog returns the configured catalog, or the built-in one.
func loadCatalog(cfg *config.Config) (*model.Catalog, error) {
	if cfg.Catalog.File == "" {
		return model.DefaultCatalog(), nil
	}
	cat, err := model.LoadCatalogFile(util.ExpandHome(cfg.Catalog.File))
	if err != nil {
		return nil, fmt.Errorf("catalog %s: %w", cfg.Catalog.File, err)
	}
	return cat, nil
}

// newApp wires the components from cfg. The caller must Close the app.
func newApp(cfg *config.Config, logger *slog.Logger) (*app, error) {
	catalog, err := loadCatalog(cfg)
	if err != nil {
		return nil, err
	}

	client := cloud.NewClient(cfg.API.URL, cfg.API.Key,
		cloud.WithTimeout(cfg.Timeout()),
		cloud.WithRateLimit(cfg.API.RateLimitRPM),
		cloud.WithUserAgent(cfg.API.UserAgent),
		cloud.WithLogger(logger.With("component", "cloud")),
	)

	a := &app{
		cfg:     cfg,
		logger:  logger,
		catalog: catalog,
		store:   session.NewStore(cfg.Session.MaxHistoryRounds),
		client:  client,
		usage:   telemetry.NewTracker(),
	}

	opts := []dispatch.Option{
		dispatch.WithSessionID(cfg.Session.ID),
		dispatch.WithLogger(logger.With("component", "dispatch")),
		dispatch.WithRecorder(a.usage),
	}
	if cfg.Transcript.Enabled {
		var topts []transcript.Option
		if cfg.Transcript.Redact {
			topts = append(topts, transcript.WithRedactor(security.RedactSecrets))
		}
		tlog, err := transcript.Open(cfg.Transcript.Path, topts...)
		if err != nil {
			return nil, fmt.Errorf("open transcript: %w", err)
		}
		a.transcript = tlog
		opts = append(opts, dispatch.WithRecorder(tlog))
	}

	a.dispatcher = dispatch.New(catalog, a.store, client, opts...)
	a.mcp = mcp.NewServer(a.dispatcher, mcp.WithLogger(logger.With("component", "mcp")))
	return a, nil
}

// status feeds /health.
func (a *app) status() server.Status {
	usage := a.usage.Summary()
	return server.Status{
		Models:     a.catalog.Len(),
		Configured: a.client.Configured(),
		Sessions:   len(a.store.Sessions()),
		Usage:      &usage,
	}
}

// httpServer builds the WebSocket host for listen mode.
func (a *app) httpServer() *server.Server {
	return server.New(a.mcp,
		server.WithPath(a.cfg.Server.Path),
		server.WithAuthToken(a.cfg.Server.AuthToken),
		server.WithStatus(a.status),
		server.WithLogger(a.logger.With("component", "server")),
	)
}

// Close releases the transcript, if open.
func (a *app) Close() error {
	if a.transcript == nil {
		return nil
	}
	return a.transcript.Close()
}
