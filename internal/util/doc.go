// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package util provides small helpers shared across the server.
//
// # Key Functions
//
// String Utilities:
//   - TruncateRunes: UTF-8 safe truncation with ellipsis
//   - TruncateWidth: Display-width truncation for CJK and emoji
//   - LogPreview: One-line, width-bounded preview of prompts for logs
//
// File Operations:
//   - AtomicWriteFile: Crash-safe file writing with fsync
//   - ExpandHome: "~" expansion for configured paths
//
// # Usage
//
//	logger.Info("call", "prompt", util.LogPreview(prompt, 60))
//	err := util.AtomicWriteFile(path, data, 0600)
package util
