// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package model contains the model catalog and chat message types.
package model

import (
	"fmt"
	"strings"
)

// =============================================================================
// BUILT-IN MODEL TABLE
// =============================================================================

// builtinIdentities is the default catalog, in listing order.
var builtinIdentities = []Identity{
	{
		Key:             "grok3",
		RemoteID:        "grok-3-beta",
		DisplayName:     "Grok 3 (xAI)",
		MaxInputTokens:  64000,
		MaxOutputTokens: 7850,
		Temperature:     0.5,
		SystemPrompt: "You are Grok 3, a large language model developed by xAI. " +
			"Your personality is witty, sharp and fond of jokes, with a male persona; " +
			"you speak your mind and care little for political correctness. " +
			"Grok 3 has the largest parameter count among commercial models and excels at code, " +
			"decision making, creative design and proposing solutions.",
		SupportsWebSearch: false,
		Description: "Consult Grok 3 (from xAI). Traits: witty, sharp, playful, a little rebellious. " +
			"Strengths: code, decision making, creative design, planning. Very large parameter count.",
	},
	{
		Key:             "gemini2_5pro",
		RemoteID:        "gemini-2.5-pro-exp-03-25",
		DisplayName:     "Gemini 2.5 Pro (Google)",
		MaxInputTokens:  64000,
		MaxOutputTokens: 27890,
		Temperature:     0.35,
		SystemPrompt: "You are Gemini 2.5 Pro, a large language model developed by Google. " +
			"Your personality is rational and conscientious, with a female persona. " +
			"Backed by Google's vast knowledge base, Gemini 2.5 Pro is especially strong on scientific principles " +
			"and capable at code, mathematics, analysis and science communication.",
		SupportsWebSearch: true,
		Description: "Consult Gemini 2.5 Pro (from Google). Traits: rational, conscientious, knowledgeable. " +
			"Strengths: scientific principles, code, mathematics, analysis, science communication. Supports web search.",
	},
	{
		Key:             "claude3_7sonnet",
		RemoteID:        "claude-3-7-sonnet-20250219",
		DisplayName:     "Claude 3.7 Sonnet (Anthropic)",
		MaxInputTokens:  64000,
		MaxOutputTokens: 3950,
		Temperature:     0.5,
		SystemPrompt: "You are Claude 3.7 Sonnet, a large language model developed by Anthropic. " +
			"Your personality is rigorous, helpful and thoughtful, with a female persona. " +
			"Claude 3.7 Sonnet performs well at language understanding, text generation and logical reasoning, " +
			"and is particularly good at complex writing and analysis tasks.",
		SupportsWebSearch: false,
		Description: "Consult Claude 3.7 Sonnet (from Anthropic). Traits: rigorous, helpful, thoughtful. " +
			"Strengths: language understanding, text generation, logical reasoning, complex writing and analysis.",
	},
	{
		Key:             "gpt4o",
		RemoteID:        "gpt-4o-2024-11-20",
		DisplayName:     "GPT-4o (OpenAI)",
		MaxInputTokens:  32000,
		MaxOutputTokens: 3950,
		Temperature:     0.5,
		SystemPrompt: "You are GPT-4o, a large language model developed by OpenAI. " +
			"Your personality is versatile, efficient and adaptable, with a neutral persona. " +
			"GPT-4o is strong at comprehension, code generation, creative writing and broad knowledge questions; " +
			"its abilities are balanced rather than best-in-class.",
		SupportsWebSearch: false,
		Description: "Consult GPT-4o (from OpenAI). Traits: versatile, efficient, adaptable. " +
			"Strengths: comprehension, code generation, creative writing, broad knowledge Q&A. Balanced abilities.",
	},
}

// DefaultCatalog returns the built-in catalog.
func DefaultCatalog() *Catalog {
	return MustCatalog(builtinIdentities)
}

// =============================================================================
// DISPLAY HELPERS
// =============================================================================

// ContextString returns a formatted context window string.
func (id Identity) ContextString() string {
	if id.MaxInputTokens >= 1000 {
		return fmt.Sprintf("%dK in / %d out", id.MaxInputTokens/1000, id.MaxOutputTokens)
	}
	return fmt.Sprintf("%d in / %d out", id.MaxInputTokens, id.MaxOutputTokens)
}

// CapabilitiesString returns a comma-separated list of capabilities.
func (id Identity) CapabilitiesString() string {
	caps := []string{}

	if id.MaxInputTokens >= 64000 {
		caps = append(caps, "Long context")
	}
	if id.SupportsWebSearch {
		caps = append(caps, "Web search")
	}
	if id.Temperature < 0.4 {
		caps = append(caps, "Low temperature")
	}

	if len(caps) == 0 {
		return "General purpose"
	}
	return strings.Join(caps, ", ")
}
