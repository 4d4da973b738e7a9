// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package mcp

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"runtime/debug"
	"sync"
)

// Server identity reported by initialize.
const (
	DefaultServerName    = "ai-helper-mcp-server"
	DefaultServerVersion = "0.1.0"
)

// Handler serves the tool methods.
//
// CallTool may return a *Error to produce a JSON-RPC error response; any
// other error becomes InternalError. Application failures belong in a
// CallToolResult with IsError set.
type Handler interface {
	ListTools(ctx context.Context) []Tool
	CallTool(ctx context.Context, name string, args json.RawMessage) (*CallToolResult, error)
}

// Server routes JSON-RPC messages to a Handler. One Server may serve any
// number of connections at once.
type Server struct {
	handler Handler
	info    Implementation
	logger  *slog.Logger
}

// ServerOption configures a Server.
type ServerOption func(*Server)

// WithLogger sets the server logger.
func WithLogger(logger *slog.Logger) ServerOption {
	return func(s *Server) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// WithServerInfo overrides the name and version sent in initialize.
func WithServerInfo(name, version string) ServerOption {
	return func(s *Server) {
		if name != "" {
			s.info.Name = name
		}
		if version != "" {
			s.info.Version = version
		}
	}
}

// NewServer creates a Server backed by h.
func NewServer(h Handler, opts ...ServerOption) *Server {
	s := &Server{
		handler: h,
		info:    Implementation{Name: DefaultServerName, Version: DefaultServerVersion},
		logger:  slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Info returns the server identity.
func (s *Server) Info() Implementation {
	return s.info
}

// =============================================================================
// SERVE LOOP
// =============================================================================

// Serve reads messages from conn until EOF or ctx is done. Every request is
// handled on its own goroutine so slow tool calls do not block pings or
// other calls. Responses are written as they complete; Serve waits for all
// in-flight handlers before returning.
//
// Serve returns nil on a clean EOF and ctx.Err() on cancellation.
func (s *Server) Serve(ctx context.Context, conn Conn) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	var writeMu sync.Mutex
	send := func(resp *Response) {
		data, err := json.Marshal(resp)
		if err != nil {
			s.logger.Error("failed to marshal response", "error", err)
			data, _ = json.Marshal(&Response{
				JSONRPC: "2.0",
				ID:      resp.ID,
				Error:   NewError(InternalError, "failed to encode response"),
			})
		}
		writeMu.Lock()
		defer writeMu.Unlock()
		if err := conn.Write(ctx, data); err != nil {
			s.logger.Warn("failed to write response", "error", err)
		}
	}

	msgs := make(chan []byte)
	readErr := make(chan error, 1)
	go func() {
		for {
			data, err := conn.Read(ctx)
			if err != nil {
				readErr <- err
				return
			}
			select {
			case msgs <- data:
			case <-ctx.Done():
				return
			}
		}
	}()

	var wg sync.WaitGroup
	for {
		select {
		case <-ctx.Done():
			wg.Wait()
			return ctx.Err()

		case err := <-readErr:
			wg.Wait()
			if errors.Is(err, io.EOF) {
				s.logger.Debug("connection closed by peer")
				return nil
			}
			return fmt.Errorf("read message: %w", err)

		case data := <-msgs:
			wg.Add(1)
			go func() {
				defer wg.Done()
				if resp := s.HandleMessage(ctx, data); resp != nil {
					send(resp)
				}
			}()
		}
	}
}

// HandleMessage processes one raw message and returns the response to send,
// or nil for notifications.
func (s *Server) HandleMessage(ctx context.Context, data []byte) (resp *Response) {
	if !json.Valid(data) {
		s.logger.Warn("unparseable message", "bytes", len(data))
		return errorResponse(nullID, NewError(ParseError, "Parse error"))
	}

	var req Request
	if err := json.Unmarshal(data, &req); err != nil {
		return errorResponse(nullID, NewError(InvalidRequest, "Invalid Request"))
	}

	if req.JSONRPC != "2.0" || req.Method == "" {
		if req.IsNotification() {
			return nil
		}
		return errorResponse(req.ID, NewError(InvalidRequest, "Invalid Request"))
	}

	if req.IsNotification() {
		s.logger.Debug("notification", "method", req.Method)
		return nil
	}

	defer func() {
		if r := recover(); r != nil {
			s.logger.Error("panic while handling request",
				"method", req.Method, "panic", r, "stack", string(debug.Stack()))
			resp = errorResponse(req.ID, NewError(InternalError, "Internal error"))
		}
	}()

	result, err := s.dispatch(ctx, &req)
	if err != nil {
		var rpcErr *Error
		if !errors.As(err, &rpcErr) {
			rpcErr = NewError(InternalError, err.Error())
		}
		return errorResponse(req.ID, rpcErr)
	}
	return &Response{JSONRPC: "2.0", ID: req.ID, Result: result}
}

func (s *Server) dispatch(ctx context.Context, req *Request) (any, error) {
	switch req.Method {
	case "initialize":
		var params InitializeParams
		if len(req.Params) > 0 {
			_ = json.Unmarshal(req.Params, &params)
		}
		s.logger.Info("client initialized",
			"client", params.ClientInfo.Name,
			"client_version", params.ClientInfo.Version,
			"protocol", params.ProtocolVersion)
		return &InitializeResult{
			ProtocolVersion: ProtocolVersion,
			Capabilities:    Capabilities{Tools: &ToolsCapability{}},
			ServerInfo:      s.info,
		}, nil

	case "ping":
		return struct{}{}, nil

	case "tools/list":
		tools := s.handler.ListTools(ctx)
		if tools == nil {
			tools = []Tool{}
		}
		return &ListToolsResult{Tools: tools}, nil

	case "tools/call":
		var params CallToolParams
		if len(req.Params) == 0 {
			return nil, NewError(InvalidParams, "missing params")
		}
		if err := json.Unmarshal(req.Params, &params); err != nil {
			return nil, Errorf(InvalidParams, "invalid params: %v", err)
		}
		return s.handler.CallTool(ctx, params.Name, params.Arguments)

	default:
		return nil, Errorf(MethodNotFound, "Method not found: %s", req.Method)
	}
}

func errorResponse(id json.RawMessage, err *Error) *Response {
	if len(id) == 0 {
		id = nullID
	}
	return &Response{JSONRPC: "2.0", ID: id, Error: err}
}
