// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package cloud

import (
	"bytes"
	"encoding/json"

	"github.com/lioensky/AIhelpAI-MCP/internal/model"
)

// AnnotationWebSearch marks a request whose identity supports web search.
// It is advisory; the wire body is not changed.
const AnnotationWebSearch = "web_search"

// ChatRequest represents a request to the chat completions endpoint.
type ChatRequest struct {
	Model       string              `json:"model"`
	Messages    []model.ChatMessage `json:"messages"`
	MaxTokens   int                 `json:"max_tokens"`
	Temperature float64             `json:"temperature"`
	Stream      bool                `json:"stream"`

	// Annotations carry hints for downstream handling. Never serialized.
	Annotations map[string]string `json:"-"`
}

// Annotated reports whether the request carries the named annotation.
func (r ChatRequest) Annotated(name string) bool {
	_, ok := r.Annotations[name]
	return ok
}

// chatResponse is the subset of the completion response we read.
// Every level is optional; fields are decoded lazily so a wrong type at one
// level does not fail the whole body.
type chatResponse struct {
	Choices []struct {
		Message struct {
			Content json.RawMessage `json:"content"`
		} `json:"message"`
	} `json:"choices"`
}

// errorBody is the subset of an error response used for message extraction.
type errorBody struct {
	Error   json.RawMessage `json:"error"`
	Message json.RawMessage `json:"message"`
}

// extractContent returns choices[0].message.content when it is a JSON string.
func extractContent(body []byte) (string, bool) {
	var resp chatResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return "", false
	}
	if len(resp.Choices) == 0 {
		return "", false
	}
	return decodeString(resp.Choices[0].Message.Content)
}

// decodeString decodes raw as a JSON string. null and non-string values
// are rejected.
func decodeString(raw json.RawMessage) (string, bool) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || raw[0] != '"' {
		return "", false
	}
	var s string
	if err := json.Unmarshal(raw, &s); err != nil {
		return "", false
	}
	return s, true
}
