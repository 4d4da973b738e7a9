// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package cloud

import (
	"github.com/lioensky/AIhelpAI-MCP/internal/model"
)

// Compose builds the outbound payload for one identity:
// [system(identity.SystemPrompt), ...history, user(prompt)].
//
// history is copied; the caller's slice is never retained.
func Compose(identity model.Identity, history []model.ChatMessage, prompt string) ChatRequest {
	messages := make([]model.ChatMessage, 0, len(history)+2)
	messages = append(messages, model.NewSystemMessage(identity.SystemPrompt))
	messages = append(messages, history...)
	messages = append(messages, model.NewUserMessage(prompt))

	req := ChatRequest{
		Model:       identity.RemoteID,
		Messages:    messages,
		MaxTokens:   identity.MaxOutputTokens,
		Temperature: identity.Temperature,
		Stream:      false,
	}

	if identity.SupportsWebSearch {
		req.Annotations = map[string]string{AnnotationWebSearch: "requested"}
	}

	return req
}
