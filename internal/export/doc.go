// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package export renders transcript entries as Markdown or JSON.
//
// # Usage
//
//	entries, _ := tlog.Recent(ctx, 50)
//	exp, err := export.ForFormat("md", export.DefaultOptions())
//	data, err := exp.Export(entries)
package export
