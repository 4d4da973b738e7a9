// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package dispatch

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lioensky/AIhelpAI-MCP/internal/cloud"
	"github.com/lioensky/AIhelpAI-MCP/internal/mcp"
	"github.com/lioensky/AIhelpAI-MCP/internal/model"
	"github.com/lioensky/AIhelpAI-MCP/internal/session"
	"github.com/lioensky/AIhelpAI-MCP/internal/transcript"
)

const testKey = "sk-test-0123456789"

// remote is a scripted completion endpoint that records every request.
type remote struct {
	mu       sync.Mutex
	requests []cloud.ChatRequest
	hits     atomic.Int32
	reply    func(req cloud.ChatRequest) (int, string)
}

func (r *remote) handler(w http.ResponseWriter, req *http.Request) {
	r.hits.Add(1)
	body, _ := io.ReadAll(req.Body)
	var cr cloud.ChatRequest
	_ = json.Unmarshal(body, &cr)

	r.mu.Lock()
	r.requests = append(r.requests, cr)
	r.mu.Unlock()

	status, out := r.reply(cr)
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = w.Write([]byte(out))
}

func (r *remote) last() cloud.ChatRequest {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.requests[len(r.requests)-1]
}

func reply(content string) string {
	b, _ := json.Marshal(map[string]any{
		"choices": []any{map[string]any{"message": map[string]any{"role": "assistant", "content": content}}},
	})
	return string(b)
}

// echoRemote answers every request with "re:<last user prompt>".
func echoRemote() *remote {
	return &remote{reply: func(req cloud.ChatRequest) (int, string) {
		return http.StatusOK, reply("re:" + req.Messages[len(req.Messages)-1].Content)
	}}
}

type fixture struct {
	d      *Dispatcher
	store  *session.Store
	remote *remote
}

func newFixture(t *testing.T, r *remote, opts ...Option) *fixture {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(r.handler))
	t.Cleanup(srv.Close)

	store := session.NewStore(session.DefaultMaxHistoryRounds)
	client := cloud.NewClient(srv.URL, testKey)
	return &fixture{
		d:      New(model.DefaultCatalog(), store, client, opts...),
		store:  store,
		remote: r,
	}
}

func args(prompt string) json.RawMessage {
	b, _ := json.Marshal(map[string]string{"prompt": prompt})
	return b
}

// =============================================================================
// LISTING
// =============================================================================

func TestListTools(t *testing.T) {
	f := newFixture(t, echoRemote())

	tools := f.d.ListTools(context.Background())
	ids := model.DefaultCatalog().Identities()
	require.Len(t, tools, len(ids))

	for i, tool := range tools {
		assert.Equal(t, "ask_"+ids[i].Key, tool.Name)
		assert.Equal(t, ids[i].Description, tool.Description)
		assert.Equal(t, "object", tool.InputSchema.Type)
		assert.Equal(t, []string{"prompt"}, tool.InputSchema.Required)
		assert.Equal(t, "string", tool.InputSchema.Properties["prompt"].Type)
	}
}

// =============================================================================
// VALIDATION
// =============================================================================

func TestCall_UnknownTool(t *testing.T) {
	f := newFixture(t, echoRemote())

	for _, name := range []string{"ask_unknown", "grok3", "", "ask_"} {
		out := f.d.Call(context.Background(), name, args("hi"))
		require.Equal(t, OutcomeProtocolError, out.Kind, name)
		assert.Equal(t, mcp.MethodNotFound, out.Err.Code, name)
	}
	assert.Equal(t, int32(0), f.remote.hits.Load())
}

func TestCall_InvalidPrompt(t *testing.T) {
	f := newFixture(t, echoRemote())

	cases := map[string]string{
		"missing args":   ``,
		"null args":      `null`,
		"empty object":   `{}`,
		"empty prompt":   `{"prompt":""}`,
		"blank prompt":   `{"prompt":"  \n\t "}`,
		"number prompt":  `{"prompt":42}`,
		"null prompt":    `{"prompt":null}`,
		"array prompt":   `{"prompt":["a"]}`,
		"args not obj":   `"hello"`,
		"args is array":  `[{"prompt":"x"}]`,
		"other key only": `{"question":"x"}`,
	}

	for name, raw := range cases {
		t.Run(name, func(t *testing.T) {
			out := f.d.Call(context.Background(), "ask_grok3", json.RawMessage(raw))
			require.Equal(t, OutcomeProtocolError, out.Kind)
			assert.Equal(t, mcp.InvalidParams, out.Err.Code)
		})
	}

	assert.Equal(t, int32(0), f.remote.hits.Load())
	assert.Equal(t, 0, f.store.Len(session.DefaultSessionID))
}

func TestCall_ValidationBeforeConfiguration(t *testing.T) {
	d := New(model.DefaultCatalog(), session.NewStore(5), cloud.NewClient("", ""))

	out := d.Call(context.Background(), "ask_nobody", args("hi"))
	assert.Equal(t, mcp.MethodNotFound, out.Err.Code)

	out = d.Call(context.Background(), "ask_grok3", json.RawMessage(`{}`))
	assert.Equal(t, mcp.InvalidParams, out.Err.Code)
}

func TestCall_NotConfigured(t *testing.T) {
	r := echoRemote()
	srv := httptest.NewServer(http.HandlerFunc(r.handler))
	defer srv.Close()

	store := session.NewStore(5)
	for _, client := range []*cloud.Client{
		cloud.NewClient(srv.URL, ""),
		cloud.NewClient("", testKey),
	} {
		d := New(model.DefaultCatalog(), store, client)
		out := d.Call(context.Background(), "ask_gpt4o", args("hi"))
		require.Equal(t, OutcomeProtocolError, out.Kind)
		assert.Equal(t, mcp.InternalError, out.Err.Code)
	}

	assert.Equal(t, int32(0), r.hits.Load(), "no network call when unconfigured")
	assert.Equal(t, 0, store.Len(session.DefaultSessionID))
}

// =============================================================================
// EXECUTION
// =============================================================================

func TestCall_SuccessAppendsExchange(t *testing.T) {
	f := newFixture(t, echoRemote())
	grok, err := model.DefaultCatalog().Lookup("grok3")
	require.NoError(t, err)

	out := f.d.Call(context.Background(), "ask_grok3", args("hello"))
	require.Equal(t, OutcomeOK, out.Kind)
	assert.Equal(t, "re:hello", out.Text)

	req := f.remote.last()
	assert.Equal(t, grok.RemoteID, req.Model)
	assert.Equal(t, grok.MaxOutputTokens, req.MaxTokens)
	assert.False(t, req.Stream)
	require.Len(t, req.Messages, 2)
	assert.Equal(t, model.NewSystemMessage(grok.SystemPrompt), req.Messages[0])
	assert.Equal(t, model.NewUserMessage("hello"), req.Messages[1])

	h := f.store.History(session.DefaultSessionID)
	assert.Equal(t, []model.ChatMessage{
		model.NewUserMessage("hello"),
		model.NewAssistantMessage("re:hello"),
	}, h)

	res, err := out.Result()
	require.NoError(t, err)
	assert.False(t, res.IsError)
	assert.Equal(t, []mcp.Content{{Type: "text", Text: "re:hello"}}, res.Content)
}

func TestCall_PromptSentUntrimmed(t *testing.T) {
	f := newFixture(t, echoRemote())

	out := f.d.Call(context.Background(), "ask_grok3", args("  padded  "))
	require.Equal(t, OutcomeOK, out.Kind)
	assert.Equal(t, "  padded  ", f.remote.last().Messages[1].Content)
}

func TestCall_HistoryIsSharedAcrossIdentities(t *testing.T) {
	f := newFixture(t, echoRemote())
	ctx := context.Background()

	require.Equal(t, OutcomeOK, f.d.Call(ctx, "ask_grok3", args("one")).Kind)
	require.Equal(t, OutcomeOK, f.d.Call(ctx, "ask_gpt4o", args("two")).Kind)

	req := f.remote.last()
	require.Len(t, req.Messages, 4)
	assert.Equal(t, "one", req.Messages[1].Content)
	assert.Equal(t, "re:one", req.Messages[2].Content)
	assert.Equal(t, "two", req.Messages[3].Content)
	assert.Equal(t, "gpt-4o-2024-11-20", req.Model)
}

func TestCall_HistoryBoundAndEviction(t *testing.T) {
	f := newFixture(t, echoRemote())
	ctx := context.Background()

	for n := 1; n <= 6; n++ {
		out := f.d.Call(ctx, "ask_claude3_7sonnet", args(fmt.Sprintf("q%d", n)))
		require.Equal(t, OutcomeOK, out.Kind)

		want := 2 * n
		if want > 10 {
			want = 10
		}
		assert.Equal(t, want, f.store.Len(session.DefaultSessionID))
	}

	h := f.store.History(session.DefaultSessionID)
	assert.Equal(t, "q2", h[0].Content)
	assert.Equal(t, "re:q6", h[9].Content)

	// Seventh call sends system + 10 history + user.
	f.d.Call(ctx, "ask_claude3_7sonnet", args("q7"))
	assert.Len(t, f.remote.last().Messages, 12)
}

func TestCall_RemoteErrorStatus(t *testing.T) {
	r := &remote{reply: func(cloud.ChatRequest) (int, string) {
		return http.StatusInternalServerError, `{"error":{"message":"rate limited"}}`
	}}
	f := newFixture(t, r)

	out := f.d.Call(context.Background(), "ask_gemini2_5pro", args("hi"))
	require.Equal(t, OutcomeToolError, out.Kind)
	assert.Equal(t, 500, out.Status)
	assert.Equal(t, "Error calling Gemini 2.5 Pro (Google) API (Status 500): rate limited", out.Text)
	assert.Contains(t, out.Text, "rate limited")
	assert.Contains(t, out.Text, "500")

	res, err := out.Result()
	require.NoError(t, err)
	assert.True(t, res.IsError)

	assert.Equal(t, 0, f.store.Len(session.DefaultSessionID), "history untouched on failure")
	assert.Equal(t, int32(1), r.hits.Load(), "no retries")
}

func TestCall_MalformedReplyLeavesHistory(t *testing.T) {
	var calls atomic.Int32
	r := &remote{reply: func(req cloud.ChatRequest) (int, string) {
		if calls.Add(1) == 1 {
			return http.StatusOK, reply("fine")
		}
		return http.StatusOK, `{"choices":[{"message":{"content":123}}]}`
	}}
	f := newFixture(t, r)
	ctx := context.Background()

	require.Equal(t, OutcomeOK, f.d.Call(ctx, "ask_gpt4o", args("first")).Kind)
	before := f.store.History(session.DefaultSessionID)

	out := f.d.Call(ctx, "ask_gpt4o", args("second"))
	require.Equal(t, OutcomeToolError, out.Kind)
	assert.Equal(t, "Error processing request for GPT-4o (OpenAI): API returned a response, but no valid assistant reply text could be found", out.Text)
	assert.Equal(t, before, f.store.History(session.DefaultSessionID))
}

func TestCall_NetworkErrorHasNoStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {}))
	url := srv.URL
	srv.Close()

	store := session.NewStore(5)
	d := New(model.DefaultCatalog(), store, cloud.NewClient(url, testKey))

	out := d.Call(context.Background(), "ask_grok3", args("hi"))
	require.Equal(t, OutcomeToolError, out.Kind)
	assert.Equal(t, 0, out.Status)
	assert.Contains(t, out.Text, "Error calling Grok 3 (xAI) API: ")
	assert.NotContains(t, out.Text, "Status")
	assert.Equal(t, 0, store.Len(session.DefaultSessionID))
}

// =============================================================================
// FAKE COMPLETERS
// =============================================================================

type funcCompleter func(ctx context.Context, req cloud.ChatRequest) (string, error)

func (f funcCompleter) Configured() bool { return true }

func (f funcCompleter) Send(ctx context.Context, req cloud.ChatRequest) (string, error) {
	return f(ctx, req)
}

func TestCall_PanicBecomesToolError(t *testing.T) {
	store := session.NewStore(5)
	d := New(model.DefaultCatalog(), store, funcCompleter(func(context.Context, cloud.ChatRequest) (string, error) {
		panic("kaboom")
	}))

	out := d.Call(context.Background(), "ask_grok3", args("hi"))
	require.Equal(t, OutcomeToolError, out.Kind)
	assert.Equal(t, "Error processing request for Grok 3 (xAI): kaboom", out.Text)

	// The lease was released.
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	release, err := store.Acquire(ctx, session.DefaultSessionID)
	require.NoError(t, err)
	release()
}

func TestCall_GenericErrorBecomesProcessingError(t *testing.T) {
	d := New(model.DefaultCatalog(), session.NewStore(5), funcCompleter(func(context.Context, cloud.ChatRequest) (string, error) {
		return "", errors.New("encoder exploded")
	}))

	out := d.Call(context.Background(), "ask_gpt4o", args("hi"))
	require.Equal(t, OutcomeToolError, out.Kind)
	assert.Equal(t, "Error processing request for GPT-4o (OpenAI): encoder exploded", out.Text)
}

func TestCall_WebSearchAnnotation(t *testing.T) {
	var got cloud.ChatRequest
	d := New(model.DefaultCatalog(), session.NewStore(5), funcCompleter(func(_ context.Context, req cloud.ChatRequest) (string, error) {
		got = req
		return "ok", nil
	}))

	require.Equal(t, OutcomeOK, d.Call(context.Background(), "ask_gemini2_5pro", args("news")).Kind)
	assert.True(t, got.Annotated(cloud.AnnotationWebSearch))

	require.Equal(t, OutcomeOK, d.Call(context.Background(), "ask_grok3", args("news")).Kind)
	assert.False(t, got.Annotated(cloud.AnnotationWebSearch))
}

// TestCall_ConcurrentCallsKeepPairs runs many calls at once on the shared
// session and checks the history stays bounded and well paired.
//
// Run with: go test -race -run TestCall_ConcurrentCallsKeepPairs
func TestCall_ConcurrentCallsKeepPairs(t *testing.T) {
	store := session.NewStore(5)
	var inFlight, maxInFlight atomic.Int32
	d := New(model.DefaultCatalog(), store, funcCompleter(func(_ context.Context, req cloud.ChatRequest) (string, error) {
		n := inFlight.Add(1)
		defer inFlight.Add(-1)
		if n > maxInFlight.Load() {
			maxInFlight.Store(n)
		}
		time.Sleep(time.Millisecond)
		return "re:" + req.Messages[len(req.Messages)-1].Content, nil
	}))

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			out := d.Call(context.Background(), "ask_grok3", args(fmt.Sprintf("p%d", n)))
			if out.Kind != OutcomeOK {
				t.Errorf("call %d: %v", n, out.Kind)
			}
		}(i)
	}
	wg.Wait()

	assert.Equal(t, int32(1), maxInFlight.Load(), "exchanges on one session are serialized")

	h := store.History(session.DefaultSessionID)
	require.Len(t, h, 10)
	for i := 0; i < len(h); i += 2 {
		assert.Equal(t, model.RoleUser, h[i].Role)
		assert.Equal(t, model.RoleAssistant, h[i+1].Role)
		assert.Equal(t, "re:"+h[i].Content, h[i+1].Content)
	}
}

func TestCall_CancelledWhileWaitingForLease(t *testing.T) {
	store := session.NewStore(5)
	d := New(model.DefaultCatalog(), store, funcCompleter(func(context.Context, cloud.ChatRequest) (string, error) {
		return "ok", nil
	}))

	release, err := store.Acquire(context.Background(), session.DefaultSessionID)
	require.NoError(t, err)
	defer release()

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	out := d.Call(ctx, "ask_grok3", args("hi"))
	require.Equal(t, OutcomeToolError, out.Kind)
	assert.Contains(t, out.Text, "Error processing request for Grok 3 (xAI)")
	assert.Equal(t, 0, store.Len(session.DefaultSessionID))
}

func TestWithSessionID(t *testing.T) {
	store := session.NewStore(5)
	d := New(model.DefaultCatalog(), store, funcCompleter(func(context.Context, cloud.ChatRequest) (string, error) {
		return "ok", nil
	}), WithSessionID("team"))

	assert.Equal(t, "team", d.SessionID())
	d.Call(context.Background(), "ask_grok3", args("hi"))
	assert.Equal(t, 2, store.Len("team"))
	assert.Equal(t, 0, store.Len(session.DefaultSessionID))
}

// =============================================================================
// TRANSCRIPT
// =============================================================================

type memRecorder struct {
	mu      sync.Mutex
	entries []transcript.Entry
}

func (m *memRecorder) Record(_ context.Context, e transcript.Entry) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.entries = append(m.entries, e)
	return nil
}

func TestCall_RecordsExecutedCalls(t *testing.T) {
	var calls atomic.Int32
	r := &remote{reply: func(cloud.ChatRequest) (int, string) {
		if calls.Add(1) == 1 {
			return http.StatusOK, reply("answer")
		}
		return http.StatusBadGateway, `{"message":"upstream"}`
	}}
	rec := &memRecorder{}
	f := newFixture(t, r, WithRecorder(rec))
	ctx := context.Background()

	f.d.Call(ctx, "ask_grok3", args("one"))
	f.d.Call(ctx, "ask_grok3", args("two"))
	f.d.Call(ctx, "ask_grok3", json.RawMessage(`{}`)) // rejected, not recorded

	require.Len(t, rec.entries, 2)
	assert.Equal(t, "one", rec.entries[0].Prompt)
	assert.Equal(t, "answer", rec.entries[0].Reply)
	assert.False(t, rec.entries[0].IsError)
	assert.Equal(t, "ask_grok3", rec.entries[0].Tool)
	assert.NotEmpty(t, rec.entries[0].ID)

	assert.True(t, rec.entries[1].IsError)
	assert.Equal(t, 502, rec.entries[1].Status)
	assert.Equal(t, "Error calling Grok 3 (xAI) API (Status 502): upstream", rec.entries[1].Reply)
}

func TestCall_RecordsToSQLite(t *testing.T) {
	tlog, err := transcript.Open(t.TempDir() + "/t.db")
	require.NoError(t, err)
	defer tlog.Close()

	f := newFixture(t, echoRemote(), WithRecorder(tlog))
	f.d.Call(context.Background(), "ask_gpt4o", args("persist me"))

	entries, err := tlog.Recent(context.Background(), 5)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "re:persist me", entries[0].Reply)
	assert.Equal(t, "gpt-4o-2024-11-20", entries[0].ModelID)
}

type failingRecorder struct{}

func (failingRecorder) Record(context.Context, transcript.Entry) error {
	return errors.New("disk full")
}

func TestCall_MultipleRecorders(t *testing.T) {
	first, second := &memRecorder{}, &memRecorder{}
	f := newFixture(t, echoRemote(),
		WithRecorder(first), WithRecorder(failingRecorder{}), WithRecorder(nil), WithRecorder(second))

	out := f.d.Call(context.Background(), "ask_grok3", args("fan out"))
	require.Equal(t, OutcomeOK, out.Kind, "recorder failure must not fail the call")

	require.Len(t, first.entries, 1)
	require.Len(t, second.entries, 1)
	assert.Equal(t, first.entries[0], second.entries[0])
	assert.False(t, first.entries[0].CreatedAt.IsZero())
}

// =============================================================================
// MCP INTEGRATION
// =============================================================================

func TestDispatcher_ServesMCP(t *testing.T) {
	f := newFixture(t, echoRemote())
	srv := mcp.NewServer(f.d)
	ctx := context.Background()

	resp := srv.HandleMessage(ctx, []byte(`{"jsonrpc":"2.0","id":1,"method":"tools/call","params":{"name":"ask_grok3","arguments":{"prompt":"hi"}}}`))
	require.NotNil(t, resp)
	require.Nil(t, resp.Error)
	data, err := json.Marshal(resp.Result)
	require.NoError(t, err)
	assert.JSONEq(t, `{"content":[{"type":"text","text":"re:hi"}]}`, string(data))

	resp = srv.HandleMessage(ctx, []byte(`{"jsonrpc":"2.0","id":2,"method":"tools/call","params":{"name":"ask_grok3","arguments":{"prompt":""}}}`))
	require.NotNil(t, resp.Error)
	assert.Equal(t, mcp.InvalidParams, resp.Error.Code)

	resp = srv.HandleMessage(ctx, []byte(`{"jsonrpc":"2.0","id":3,"method":"tools/call","params":{"name":"ask_zzz","arguments":{"prompt":"x"}}}`))
	require.NotNil(t, resp.Error)
	assert.Equal(t, mcp.MethodNotFound, resp.Error.Code)
}
