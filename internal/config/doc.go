// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package config loads the server configuration.
//
// Values are layered, later layers winning:
//   - Built-in defaults
//   - ~/.aihelper/config.toml, or the file given with --config
//   - Environment variables (API_URL, API_KEY, AIHELPER_*)
//
// The configuration is read once at startup and never reloaded.
//
// # Usage
//
//	cfg, err := config.Load("")
//	if errors.Is(err, config.ErrInvalid) {
//	    // report and exit
//	}
package config
