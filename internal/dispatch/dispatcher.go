// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package dispatch turns MCP tool calls into completion requests.
//
// Each ask_<key> call is validated, then run against the shared session
// history under the session lease:
//
//	read history -> compose -> send -> append exchange
//
// Remote failures come back as isError tool results so the calling agent can
// read them. Bad requests and missing configuration come back as JSON-RPC
// errors and have no side effects.
package dispatch

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/lioensky/AIhelpAI-MCP/internal/cloud"
	"github.com/lioensky/AIhelpAI-MCP/internal/mcp"
	"github.com/lioensky/AIhelpAI-MCP/internal/model"
	"github.com/lioensky/AIhelpAI-MCP/internal/security"
	"github.com/lioensky/AIhelpAI-MCP/internal/session"
	"github.com/lioensky/AIhelpAI-MCP/internal/transcript"
	"github.com/lioensky/AIhelpAI-MCP/internal/util"
)

// promptPreviewWidth bounds prompts in log lines.
const promptPreviewWidth = 80

// Completer sends one composed request. *cloud.Client implements it.
type Completer interface {
	Configured() bool
	Send(ctx context.Context, req cloud.ChatRequest) (string, error)
}

// Recorder stores completed exchanges. *transcript.Log implements it.
type Recorder interface {
	Record(ctx context.Context, e transcript.Entry) error
}

// =============================================================================
// OUTCOME
// =============================================================================

// OutcomeKind classifies the result of one tool call.
type OutcomeKind int

const (
	// OutcomeOK carries the assistant reply.
	OutcomeOK OutcomeKind = iota
	// OutcomeToolError carries failure text for an isError result.
	OutcomeToolError
	// OutcomeProtocolError carries a JSON-RPC error.
	OutcomeProtocolError
)

// String returns the outcome name used in logs.
func (k OutcomeKind) String() string {
	switch k {
	case OutcomeOK:
		return "ok"
	case OutcomeToolError:
		return "tool_error"
	case OutcomeProtocolError:
		return "protocol_error"
	default:
		return "unknown"
	}
}

// Outcome is the tagged result of Call.
type Outcome struct {
	Kind OutcomeKind
	// Text is the reply for OutcomeOK or the failure text for OutcomeToolError.
	Text string
	// Status is the remote HTTP status of a failed call, or 0.
	Status int
	// Err is set for OutcomeProtocolError.
	Err *mcp.Error
}

// Result converts the outcome into the MCP handler return values.
func (o Outcome) Result() (*mcp.CallToolResult, error) {
	switch o.Kind {
	case OutcomeOK:
		return mcp.TextResult(o.Text), nil
	case OutcomeToolError:
		return mcp.ErrorResult(o.Text), nil
	default:
		if o.Err == nil {
			return nil, mcp.NewError(mcp.InternalError, "internal error")
		}
		return nil, o.Err
	}
}

func protocolError(code int, format string, args ...any) Outcome {
	return Outcome{Kind: OutcomeProtocolError, Err: mcp.Errorf(code, format, args...)}
}

// =============================================================================
// DISPATCHER
// =============================================================================

// Dispatcher implements mcp.Handler over a model catalog.
type Dispatcher struct {
	catalog   *model.Catalog
	store     *session.Store
	client    Completer
	sessionID string
	recorders []Recorder
	logger    *slog.Logger
}

// Option configures a Dispatcher.
type Option func(*Dispatcher)

// WithSessionID sets the history key every call uses.
func WithSessionID(id string) Option {
	return func(d *Dispatcher) {
		if id != "" {
			d.sessionID = id
		}
	}
}

// WithRecorder records every executed call. It may be given more than once;
// recorders run in the order added.
func WithRecorder(r Recorder) Option {
	return func(d *Dispatcher) {
		if r != nil {
			d.recorders = append(d.recorders, r)
		}
	}
}

// WithLogger sets the dispatcher logger.
func WithLogger(logger *slog.Logger) Option {
	return func(d *Dispatcher) {
		if logger != nil {
			d.logger = logger
		}
	}
}

// New creates a Dispatcher. catalog, store and client are required.
func New(catalog *model.Catalog, store *session.Store, client Completer, opts ...Option) *Dispatcher {
	d := &Dispatcher{
		catalog:   catalog,
		store:     store,
		client:    client,
		sessionID: session.DefaultSessionID,
		logger:    slog.Default(),
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// SessionID returns the history key in use.
func (d *Dispatcher) SessionID() string {
	return d.sessionID
}

// ListTools returns one tool per catalog identity, in catalog order.
func (d *Dispatcher) ListTools(ctx context.Context) []mcp.Tool {
	ids := d.catalog.Identities()
	tools := make([]mcp.Tool, 0, len(ids))
	for _, id := range ids {
		tools = append(tools, toolFor(id))
	}
	return tools
}

func toolFor(id model.Identity) mcp.Tool {
	return mcp.Tool{
		Name:        id.ToolName(),
		Description: id.Description,
		InputSchema: mcp.InputSchema{
			Type: "object",
			Properties: map[string]mcp.Property{
				"prompt": {
					Type:        "string",
					Description: fmt.Sprintf("Required. The question or instruction for %s.", id.DisplayName),
				},
			},
			Required: []string{"prompt"},
		},
	}
}

// CallTool implements mcp.Handler.
func (d *Dispatcher) CallTool(ctx context.Context, name string, args json.RawMessage) (*mcp.CallToolResult, error) {
	return d.Call(ctx, name, args).Result()
}

// Call runs one tool invocation through validation, the configuration check
// and execution.
func (d *Dispatcher) Call(ctx context.Context, name string, args json.RawMessage) Outcome {
	identity, err := d.catalog.LookupTool(name)
	if err != nil {
		d.logger.Warn("unknown tool", "tool", name)
		return protocolError(mcp.MethodNotFound, "Unknown tool: %s", name)
	}

	prompt, err := parsePrompt(args)
	if err != nil {
		d.logger.Warn("invalid tool arguments", "tool", name, "error", err)
		return protocolError(mcp.InvalidParams, "Invalid arguments for %s: %v", name, err)
	}

	if d.client == nil || !d.client.Configured() {
		d.logger.Error("tool called but API_URL or API_KEY is not configured", "tool", name)
		return protocolError(mcp.InternalError, "AI Helper is not configured: API_URL and API_KEY must be set")
	}

	return d.execute(ctx, identity, prompt)
}

// parsePrompt extracts a non-blank string prompt from a JSON object. The
// prompt is returned untrimmed.
func parsePrompt(args json.RawMessage) (string, error) {
	trimmed := strings.TrimSpace(string(args))
	if trimmed == "" || trimmed == "null" {
		return "", errors.New("'prompt' is required")
	}

	var fields map[string]json.RawMessage
	if err := json.Unmarshal(args, &fields); err != nil {
		return "", errors.New("arguments must be a JSON object")
	}

	raw, ok := fields["prompt"]
	if !ok {
		return "", errors.New("'prompt' is required")
	}
	raw = json.RawMessage(strings.TrimSpace(string(raw)))
	if len(raw) == 0 || raw[0] != '"' {
		return "", errors.New("'prompt' must be a string")
	}

	var prompt string
	if err := json.Unmarshal(raw, &prompt); err != nil {
		return "", errors.New("'prompt' must be a string")
	}
	if strings.TrimSpace(prompt) == "" {
		return "", errors.New("'prompt' must not be empty")
	}
	return prompt, nil
}

// =============================================================================
// EXECUTION
// =============================================================================

func (d *Dispatcher) execute(ctx context.Context, identity model.Identity, prompt string) Outcome {
	callID := uuid.NewString()
	logger := d.logger.With("call_id", callID, "tool", identity.ToolName(), "model", identity.RemoteID)
	logger.Info("tool call", "prompt", util.LogPreview(security.RedactSecrets(prompt), promptPreviewWidth))

	start := time.Now()

	release, err := d.store.Acquire(ctx, d.sessionID)
	if err != nil {
		out := processingError(identity, err)
		logger.Warn("could not acquire session", "error", err)
		d.record(ctx, logger, callID, identity, prompt, out, time.Since(start))
		return out
	}
	out := d.exchange(ctx, logger, identity, prompt)
	release()

	elapsed := time.Since(start)
	switch out.Kind {
	case OutcomeOK:
		logger.Info("tool call completed", "duration", elapsed, "reply_chars", len([]rune(out.Text)))
	default:
		logger.Warn("tool call failed", "duration", elapsed, "status", out.Status, "outcome", out.Kind.String())
	}

	if out.Kind != OutcomeProtocolError {
		d.record(ctx, logger, callID, identity, prompt, out, elapsed)
	}
	return out
}

// exchange runs read -> compose -> send -> append. It must be called with
// the session lease held.
func (d *Dispatcher) exchange(ctx context.Context, logger *slog.Logger, identity model.Identity, prompt string) (out Outcome) {
	defer func() {
		if r := recover(); r != nil {
			logger.Error("panic during tool call", "panic", r)
			out = processingError(identity, fmt.Errorf("%v", r))
		}
	}()

	history := d.store.History(d.sessionID)
	req := cloud.Compose(identity, history, prompt)
	logger.Debug("composed request", "messages", len(req.Messages), "history", len(history))

	reply, err := d.client.Send(ctx, req)
	if err != nil {
		return normalizeError(identity, err)
	}

	d.store.AppendExchange(d.sessionID, model.NewUserMessage(prompt), model.NewAssistantMessage(reply))
	return Outcome{Kind: OutcomeOK, Text: reply}
}

// normalizeError maps a Send error to an outcome.
func normalizeError(identity model.Identity, err error) Outcome {
	if errors.Is(err, cloud.ErrNotConfigured) {
		return protocolError(mcp.InternalError, "AI Helper is not configured: API_URL and API_KEY must be set")
	}

	var te *cloud.TransportError
	if errors.As(err, &te) {
		var text string
		if te.Status != 0 {
			text = fmt.Sprintf("Error calling %s API (Status %d): %s", identity.DisplayName, te.Status, te.Message)
		} else {
			text = fmt.Sprintf("Error calling %s API: %s", identity.DisplayName, te.Message)
		}
		return Outcome{Kind: OutcomeToolError, Text: text, Status: te.Status}
	}

	return processingError(identity, err)
}

func processingError(identity model.Identity, err error) Outcome {
	return Outcome{
		Kind: OutcomeToolError,
		Text: fmt.Sprintf("Error processing request for %s: %v", identity.DisplayName, err),
	}
}

func (d *Dispatcher) record(ctx context.Context, logger *slog.Logger, callID string, identity model.Identity, prompt string, out Outcome, elapsed time.Duration) {
	if len(d.recorders) == 0 {
		return
	}
	entry := transcript.Entry{
		ID:        callID,
		CreatedAt: time.Now(),
		SessionID: d.sessionID,
		Tool:      identity.ToolName(),
		ModelID:   identity.RemoteID,
		Prompt:    prompt,
		Reply:     out.Text,
		IsError:   out.Kind != OutcomeOK,
		Status:    out.Status,
		Duration:  elapsed,
	}
	// The call is already complete; a cancelled client still gets audited.
	ctx = context.WithoutCancel(ctx)
	for _, r := range d.recorders {
		if err := r.Record(ctx, entry); err != nil {
			logger.Warn("failed to record exchange", "error", err)
		}
	}
}
