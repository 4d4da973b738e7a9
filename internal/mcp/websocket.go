// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package mcp

import (
	"context"
	"errors"
	"io"
	"net/http"

	"nhooyr.io/websocket"
)

// MaxWebSocketMessage is the read limit for one inbound frame.
const MaxWebSocketMessage = 1 << 20

// wsConn adapts a WebSocket to Conn. Each text frame is one message.
type wsConn struct {
	conn *websocket.Conn
}

// NewWebSocketConn wraps an accepted or dialed WebSocket.
func NewWebSocketConn(conn *websocket.Conn) Conn {
	conn.SetReadLimit(MaxWebSocketMessage)
	return &wsConn{conn: conn}
}

func (c *wsConn) Read(ctx context.Context) ([]byte, error) {
	for {
		typ, data, err := c.conn.Read(ctx)
		if err != nil {
			switch websocket.CloseStatus(err) {
			case websocket.StatusNormalClosure, websocket.StatusGoingAway:
				return nil, io.EOF
			}
			return nil, err
		}
		if typ != websocket.MessageText {
			// Binary frames are not JSON-RPC; skip them.
			continue
		}
		return data, nil
	}
}

func (c *wsConn) Write(ctx context.Context, msg []byte) error {
	return c.conn.Write(ctx, websocket.MessageText, msg)
}

func (c *wsConn) Close() error {
	return c.conn.Close(websocket.StatusNormalClosure, "")
}

// WebSocketHandler returns an http.Handler that upgrades each request and
// serves it with s until the peer disconnects. All connections share s and
// therefore its Handler state.
func WebSocketHandler(s *Server, opts *websocket.AcceptOptions) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ws, err := websocket.Accept(w, r, opts)
		if err != nil {
			s.logger.Warn("websocket accept error", "error", err)
			return
		}

		conn := NewWebSocketConn(ws)
		defer conn.Close()

		s.logger.Info("websocket client connected", "remote", r.RemoteAddr)
		if err := s.Serve(r.Context(), conn); err != nil && !errors.Is(err, context.Canceled) {
			s.logger.Warn("websocket session ended", "remote", r.RemoteAddr, "error", err)
			return
		}
		s.logger.Info("websocket client disconnected", "remote", r.RemoteAddr)
	})
}
