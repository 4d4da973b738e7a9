// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package mcp implements the server side of the Model Context Protocol over
// JSON-RPC 2.0.
//
// A Server answers initialize, ping, tools/list and tools/call and delegates
// the tool methods to a Handler. Messages arrive on a Conn:
//
//   - NewStdioConn: newline-delimited JSON on a reader/writer pair
//   - WebSocketHandler: one JSON-RPC message per WebSocket text frame
//
// Usage:
//
//	srv := mcp.NewServer(dispatcher, mcp.WithLogger(logger))
//	err := srv.Serve(ctx, mcp.NewStdioConn(os.Stdin, os.Stdout))
package mcp
