// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package cloud provides the request composer and completion client for an
// OpenAI-compatible chat-completion endpoint.
//
// # Key Types
//
//   - ChatRequest: Outbound payload for POST /v1/chat/completions
//   - Client: Single-shot, non-streaming HTTP client with bearer auth
//   - TransportError: Network failure or non-2xx status, with extracted message
//   - MalformedResponseError: 2xx response without assistant text
//
// # Usage
//
// Compose and send a request:
//
//	client := cloud.NewClient(baseURL, apiKey, cloud.WithTimeout(2*time.Minute))
//	req := cloud.Compose(identity, history, "hello")
//	reply, err := client.Send(ctx, req)
//
// # Errors
//
// Send returns ErrNotConfigured before any network activity when the base
// URL or key is missing. It never retries; every failure is returned once.
package cloud
