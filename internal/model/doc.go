// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package model contains the model catalog and chat message types.
//
// The catalog is a declarative table of model identities. Each identity is
// exposed as exactly one MCP tool named "ask_<key>", so adding a model is a
// data change only.
//
// # Key Types
//
//   - Identity: Persona and invocation parameters for one remote model
//   - Catalog: Immutable, ordered set of identities with key lookup
//   - ChatMessage: Single message with role and content
//   - Role: Message role enumeration (system, user, assistant)
//
// # Usage
//
// Resolve a tool name to an identity:
//
//	cat := model.DefaultCatalog()
//	key, ok := model.KeyFromToolName("ask_gpt4o")
//	if ok {
//	    id, err := cat.Lookup(key)
//	    ...
//	}
//
// Load a catalog from YAML instead of the built-in table:
//
//	cat, err := model.LoadCatalogFile("/etc/aihelper/models.yaml")
package model
