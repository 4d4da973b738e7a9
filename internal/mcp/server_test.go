// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package mcp

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"io"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeHandler exposes a handful of tools with fixed behaviours.
type fakeHandler struct {
	release chan struct{}
	started chan struct{}
}

func newFakeHandler() *fakeHandler {
	return &fakeHandler{release: make(chan struct{}), started: make(chan struct{}, 8)}
}

func (h *fakeHandler) ListTools(ctx context.Context) []Tool {
	return []Tool{{
		Name:        "ask_echo",
		Description: "echoes the prompt",
		InputSchema: InputSchema{
			Type:       "object",
			Properties: map[string]Property{"prompt": {Type: "string"}},
			Required:   []string{"prompt"},
		},
	}}
}

func (h *fakeHandler) CallTool(ctx context.Context, name string, args json.RawMessage) (*CallToolResult, error) {
	switch name {
	case "ask_echo":
		var a struct {
			Prompt string `json:"prompt"`
		}
		_ = json.Unmarshal(args, &a)
		return TextResult(a.Prompt), nil
	case "ask_slow":
		h.started <- struct{}{}
		<-h.release
		return TextResult("slow done"), nil
	case "ask_fail":
		return ErrorResult("remote said no"), nil
	case "ask_rpcerr":
		return nil, NewError(InvalidParams, "bad prompt")
	case "ask_plain":
		return nil, errors.New("plain failure")
	case "ask_panic":
		panic("boom")
	default:
		return nil, Errorf(MethodNotFound, "Unknown tool: %s", name)
	}
}

type testResponse struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      json.RawMessage `json:"id"`
	Result  json.RawMessage `json:"result"`
	Error   *Error          `json:"error"`
}

// stdioHarness drives a Server through a pair of pipes.
type stdioHarness struct {
	t     *testing.T
	in    *io.PipeWriter
	out   *io.PipeWriter
	lines chan []byte
	done  chan error
}

func startStdio(t *testing.T, h Handler) *stdioHarness {
	t.Helper()

	inR, inW := io.Pipe()
	outR, outW := io.Pipe()

	srv := NewServer(h)
	hs := &stdioHarness{t: t, in: inW, out: outW, lines: make(chan []byte, 16), done: make(chan error, 1)}

	go func() {
		hs.done <- srv.Serve(context.Background(), NewStdioConn(inR, outW))
	}()
	go func() {
		r := bufio.NewReader(outR)
		for {
			line, err := r.ReadBytes('\n')
			if err != nil {
				close(hs.lines)
				return
			}
			hs.lines <- line
		}
	}()

	t.Cleanup(func() {
		_ = inW.Close()
		_ = outW.Close()
	})
	return hs
}

func (hs *stdioHarness) send(msg string) {
	hs.t.Helper()
	_, err := hs.in.Write([]byte(msg + "\n"))
	require.NoError(hs.t, err)
}

func (hs *stdioHarness) recv() testResponse {
	hs.t.Helper()
	select {
	case line, ok := <-hs.lines:
		require.True(hs.t, ok, "output closed")
		var resp testResponse
		require.NoError(hs.t, json.Unmarshal(line, &resp), "line: %s", line)
		assert.Equal(hs.t, "2.0", resp.JSONRPC)
		return resp
	case <-time.After(2 * time.Second):
		hs.t.Fatal("timed out waiting for response")
		return testResponse{}
	}
}

func (hs *stdioHarness) expectSilence(d time.Duration) {
	hs.t.Helper()
	select {
	case line := <-hs.lines:
		hs.t.Fatalf("unexpected output: %s", line)
	case <-time.After(d):
	}
}

// =============================================================================
// LIFECYCLE METHODS
// =============================================================================

func TestServer_Initialize(t *testing.T) {
	hs := startStdio(t, newFakeHandler())

	hs.send(`{"jsonrpc":"2.0","id":1,"method":"initialize","params":{"protocolVersion":"2024-11-05","clientInfo":{"name":"test","version":"1"}}}`)
	resp := hs.recv()

	require.Nil(t, resp.Error)
	assert.JSONEq(t, "1", string(resp.ID))
	assert.JSONEq(t, `{
		"protocolVersion": "2024-11-05",
		"capabilities": {"tools": {}},
		"serverInfo": {"name": "ai-helper-mcp-server", "version": "0.1.0"}
	}`, string(resp.Result))
}

func TestServer_PingEchoesStringID(t *testing.T) {
	hs := startStdio(t, newFakeHandler())

	hs.send(`{"jsonrpc":"2.0","id":"abc-1","method":"ping"}`)
	resp := hs.recv()

	require.Nil(t, resp.Error)
	assert.JSONEq(t, `"abc-1"`, string(resp.ID))
	assert.JSONEq(t, `{}`, string(resp.Result))
}

func TestServer_NotificationsGetNoResponse(t *testing.T) {
	hs := startStdio(t, newFakeHandler())

	hs.send(`{"jsonrpc":"2.0","method":"notifications/initialized"}`)
	hs.send(`{"jsonrpc":"2.0","method":"anything/else","params":{}}`)
	hs.expectSilence(100 * time.Millisecond)

	hs.send(`{"jsonrpc":"2.0","id":7,"method":"ping"}`)
	resp := hs.recv()
	assert.JSONEq(t, "7", string(resp.ID))
}

func TestServer_ProtocolErrors(t *testing.T) {
	tests := []struct {
		name     string
		msg      string
		wantCode int
		wantID   string
	}{
		{"unknown method", `{"jsonrpc":"2.0","id":1,"method":"resources/list"}`, MethodNotFound, "1"},
		{"parse error", `{"jsonrpc":"2.0","id":1,"method":`, ParseError, "null"},
		{"missing version", `{"id":2,"method":"ping"}`, InvalidRequest, "2"},
		{"not an object", `[1,2,3]`, InvalidRequest, "null"},
		{"call without params", `{"jsonrpc":"2.0","id":3,"method":"tools/call"}`, InvalidParams, "3"},
		{"call with bad params", `{"jsonrpc":"2.0","id":4,"method":"tools/call","params":"nope"}`, InvalidParams, "4"},
		{"handler protocol error", `{"jsonrpc":"2.0","id":5,"method":"tools/call","params":{"name":"ask_rpcerr","arguments":{}}}`, InvalidParams, "5"},
		{"handler plain error", `{"jsonrpc":"2.0","id":6,"method":"tools/call","params":{"name":"ask_plain"}}`, InternalError, "6"},
		{"handler panic", `{"jsonrpc":"2.0","id":7,"method":"tools/call","params":{"name":"ask_panic"}}`, InternalError, "7"},
		{"unknown tool", `{"jsonrpc":"2.0","id":8,"method":"tools/call","params":{"name":"ask_nobody"}}`, MethodNotFound, "8"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			hs := startStdio(t, newFakeHandler())
			hs.send(tt.msg)
			resp := hs.recv()

			require.NotNil(t, resp.Error, "want error, got result %s", resp.Result)
			assert.Equal(t, tt.wantCode, resp.Error.Code)
			assert.JSONEq(t, tt.wantID, string(resp.ID))
			assert.Empty(t, resp.Result)
		})
	}
}

// =============================================================================
// TOOL METHODS
// =============================================================================

func TestServer_ToolsList(t *testing.T) {
	hs := startStdio(t, newFakeHandler())

	hs.send(`{"jsonrpc":"2.0","id":1,"method":"tools/list"}`)
	resp := hs.recv()

	require.Nil(t, resp.Error)
	assert.JSONEq(t, `{"tools":[{
		"name": "ask_echo",
		"description": "echoes the prompt",
		"inputSchema": {
			"type": "object",
			"properties": {"prompt": {"type": "string"}},
			"required": ["prompt"]
		}
	}]}`, string(resp.Result))
}

func TestServer_ToolsCall(t *testing.T) {
	hs := startStdio(t, newFakeHandler())

	hs.send(`{"jsonrpc":"2.0","id":1,"method":"tools/call","params":{"name":"ask_echo","arguments":{"prompt":"hello"}}}`)
	resp := hs.recv()
	require.Nil(t, resp.Error)
	assert.JSONEq(t, `{"content":[{"type":"text","text":"hello"}]}`, string(resp.Result))

	hs.send(`{"jsonrpc":"2.0","id":2,"method":"tools/call","params":{"name":"ask_fail","arguments":{"prompt":"x"}}}`)
	resp = hs.recv()
	require.Nil(t, resp.Error)
	assert.JSONEq(t, `{"content":[{"type":"text","text":"remote said no"}],"isError":true}`, string(resp.Result))
}

// =============================================================================
// CONCURRENCY
// =============================================================================

func TestServer_SlowCallDoesNotBlockPing(t *testing.T) {
	h := newFakeHandler()
	hs := startStdio(t, h)

	hs.send(`{"jsonrpc":"2.0","id":1,"method":"tools/call","params":{"name":"ask_slow"}}`)
	<-h.started

	hs.send(`{"jsonrpc":"2.0","id":2,"method":"ping"}`)
	resp := hs.recv()
	assert.JSONEq(t, "2", string(resp.ID))

	close(h.release)
	resp = hs.recv()
	assert.JSONEq(t, "1", string(resp.ID))
	assert.JSONEq(t, `{"content":[{"type":"text","text":"slow done"}]}`, string(resp.Result))
}

func TestServer_EOFWaitsForInFlight(t *testing.T) {
	h := newFakeHandler()
	hs := startStdio(t, h)

	hs.send(`{"jsonrpc":"2.0","id":1,"method":"tools/call","params":{"name":"ask_slow"}}`)
	<-h.started
	require.NoError(t, hs.in.Close())

	select {
	case err := <-hs.done:
		t.Fatalf("Serve returned early: %v", err)
	case <-time.After(50 * time.Millisecond):
	}

	close(h.release)
	resp := hs.recv()
	assert.JSONEq(t, "1", string(resp.ID))

	select {
	case err := <-hs.done:
		assert.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("Serve did not return after EOF")
	}
}

func TestServer_ContextCancel(t *testing.T) {
	inR, inW := io.Pipe()
	defer inW.Close()

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		done <- NewServer(newFakeHandler()).Serve(ctx, NewStdioConn(inR, io.Discard))
	}()

	cancel()
	select {
	case err := <-done:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(2 * time.Second):
		t.Fatal("Serve did not return after cancel")
	}
}

// =============================================================================
// STDIO CONN
// =============================================================================

func TestStdioConn_Framing(t *testing.T) {
	r, w := io.Pipe()
	conn := NewStdioConn(r, io.Discard)

	go func() {
		_, _ = w.Write([]byte("\n  \n{\"a\":1}\r\n{\"b\":2}"))
		_ = w.Close()
	}()

	ctx := context.Background()
	msg, err := conn.Read(ctx)
	require.NoError(t, err)
	assert.Equal(t, `{"a":1}`, string(msg))

	msg, err = conn.Read(ctx)
	require.NoError(t, err)
	assert.Equal(t, `{"b":2}`, string(msg))

	_, err = conn.Read(ctx)
	assert.ErrorIs(t, err, io.EOF)
}

func TestServerOptions(t *testing.T) {
	s := NewServer(newFakeHandler(), WithServerInfo("custom", "9.9"), WithLogger(nil))
	assert.Equal(t, Implementation{Name: "custom", Version: "9.9"}, s.Info())
	assert.NotNil(t, s.logger)
}
