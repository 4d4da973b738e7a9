// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package server

import (
	"context"
	"encoding/json"
	"net"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"nhooyr.io/websocket"

	"github.com/lioensky/AIhelpAI-MCP/internal/mcp"
)

type echoHandler struct{}

func (echoHandler) ListTools(context.Context) []mcp.Tool {
	return []mcp.Tool{{Name: "ask_echo", InputSchema: mcp.InputSchema{Type: "object"}}}
}

func (echoHandler) CallTool(_ context.Context, name string, args json.RawMessage) (*mcp.CallToolResult, error) {
	var a struct {
		Prompt string `json:"prompt"`
	}
	_ = json.Unmarshal(args, &a)
	return mcp.TextResult(a.Prompt), nil
}

func newTestServer(t *testing.T, opts ...Option) *httptest.Server {
	t.Helper()
	s := New(mcp.NewServer(echoHandler{}), opts...)
	ts := httptest.NewServer(s.Handler())
	t.Cleanup(ts.Close)
	return ts
}

func wsURL(ts *httptest.Server, path string) string {
	return "ws://" + ts.URL[len("http://"):] + path
}

// ============================================================================
// HEALTH
// ============================================================================

func TestHandleHealth(t *testing.T) {
	ts := newTestServer(t, WithStatus(func() Status {
		return Status{Models: 4, Configured: true, Sessions: 1}
	}))

	resp, err := http.Get(ts.URL + "/health")
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "application/json", resp.Header.Get("Content-Type"))

	var health HealthResponse
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&health))
	assert.Equal(t, "ok", health.Status)
	assert.Equal(t, mcp.DefaultServerName, health.Name)
	assert.Equal(t, Status{Models: 4, Configured: true, Sessions: 1}, health.Details)
}

func TestHandleHealth_Degraded(t *testing.T) {
	ts := newTestServer(t)

	resp, err := http.Get(ts.URL + "/health")
	require.NoError(t, err)
	defer resp.Body.Close()

	var health HealthResponse
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&health))
	assert.Equal(t, "degraded", health.Status)
}

// ============================================================================
// WEBSOCKET
// ============================================================================

func TestWebSocketEndpoint(t *testing.T) {
	ts := newTestServer(t, WithPath("/rpc"))

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	conn, _, err := websocket.Dial(ctx, wsURL(ts, "/rpc"), nil)
	require.NoError(t, err)
	defer conn.Close(websocket.StatusNormalClosure, "")

	msg := `{"jsonrpc":"2.0","id":1,"method":"tools/call","params":{"name":"ask_echo","arguments":{"prompt":"ws"}}}`
	require.NoError(t, conn.Write(ctx, websocket.MessageText, []byte(msg)))

	_, data, err := conn.Read(ctx)
	require.NoError(t, err)
	assert.JSONEq(t, `{"jsonrpc":"2.0","id":1,"result":{"content":[{"type":"text","text":"ws"}]}}`, string(data))
}

func TestWebSocketEndpoint_WrongPath(t *testing.T) {
	ts := newTestServer(t)

	resp, err := http.Get(ts.URL + "/nope")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

// ============================================================================
// AUTH
// ============================================================================

func TestAuth(t *testing.T) {
	ts := newTestServer(t, WithAuthToken("secret-token"))

	tests := []struct {
		name   string
		header string
		query  string
		want   int
	}{
		{"no token", "", "", http.StatusUnauthorized},
		{"wrong bearer", "Bearer nope", "", http.StatusUnauthorized},
		{"not bearer", "Basic secret-token", "", http.StatusUnauthorized},
		{"bearer ok", "Bearer secret-token", "", http.StatusOK},
		{"query ok", "", "?token=secret-token", http.StatusOK},
		{"wrong query", "", "?token=guess", http.StatusUnauthorized},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req, err := http.NewRequest(http.MethodGet, ts.URL+"/health"+tt.query, nil)
			require.NoError(t, err)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			resp, err := http.DefaultClient.Do(req)
			require.NoError(t, err)
			resp.Body.Close()
			assert.Equal(t, tt.want, resp.StatusCode)
		})
	}
}

func TestAuth_WebSocketHandshake(t *testing.T) {
	ts := newTestServer(t, WithAuthToken("secret-token"))

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	_, resp, err := websocket.Dial(ctx, wsURL(ts, "/mcp"), nil)
	require.Error(t, err)
	require.NotNil(t, resp)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	conn, _, err := websocket.Dial(ctx, wsURL(ts, "/mcp"), &websocket.DialOptions{
		HTTPHeader: http.Header{"Authorization": []string{"Bearer secret-token"}},
	})
	require.NoError(t, err)
	conn.Close(websocket.StatusNormalClosure, "")
}

func TestValidateBearerToken(t *testing.T) {
	assert.True(t, ValidateBearerToken("abc", "abc"))
	assert.False(t, ValidateBearerToken("abc", "abd"))
	assert.False(t, ValidateBearerToken("", "abc"))
	assert.False(t, ValidateBearerToken("abc", ""))
	assert.False(t, ValidateBearerToken("", ""))
}

// ============================================================================
// MIDDLEWARE
// ============================================================================

func TestRecoveryMiddleware(t *testing.T) {
	h := RecoveryMiddleware(testLogger())(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
		panic("boom")
	}))

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
}

func TestChain_Order(t *testing.T) {
	var order []string
	mw := func(name string) func(http.Handler) http.Handler {
		return func(next http.Handler) http.Handler {
			return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				order = append(order, name)
				next.ServeHTTP(w, r)
			})
		}
	}

	h := Chain(mw("a"), mw("b"), mw("c"))(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
		order = append(order, "handler")
	}))
	h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/", nil))

	assert.Equal(t, []string{"a", "b", "c", "handler"}, order)
}

// ============================================================================
// LIFECYCLE
// ============================================================================

func TestServe_ShutsDownOnCancel(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	s := New(mcp.NewServer(echoHandler{}), WithLogger(testLogger()))
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- s.Serve(ctx, ln) }()

	// Wait until it answers.
	require.Eventually(t, func() bool {
		resp, err := http.Get("http://" + ln.Addr().String() + "/health")
		if err != nil {
			return false
		}
		resp.Body.Close()
		return resp.StatusCode == http.StatusOK
	}, 2*time.Second, 20*time.Millisecond)

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(ShutdownTimeout + time.Second):
		t.Fatal("Serve did not return")
	}
}
