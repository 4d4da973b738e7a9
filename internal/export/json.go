// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package export

import (
	"encoding/json"
	"time"

	"github.com/lioensky/AIhelpAI-MCP/internal/transcript"
)

// =============================================================================
// JSON EXPORTER
// =============================================================================

// jsonEntry is the exported shape of one exchange.
type jsonEntry struct {
	ID         string    `json:"id"`
	CreatedAt  time.Time `json:"created_at"`
	SessionID  string    `json:"session_id"`
	Tool       string    `json:"tool"`
	ModelID    string    `json:"model_id"`
	Prompt     string    `json:"prompt"`
	Reply      string    `json:"reply"`
	IsError    bool      `json:"is_error"`
	Status     int       `json:"status,omitempty"`
	DurationMs int64     `json:"duration_ms"`
}

type jsonDocument struct {
	ExportedAt time.Time   `json:"exported_at"`
	Count      int         `json:"count"`
	Exchanges  []jsonEntry `json:"exchanges"`
}

// JSONExporter exports entries to JSON format.
type JSONExporter struct {
	options *Options
}

// NewJSONExporter creates a new JSON exporter.
func NewJSONExporter(opts *Options) *JSONExporter {
	if opts == nil {
		opts = DefaultOptions()
	}
	return &JSONExporter{options: opts}
}

// Export converts entries to an indented JSON document.
func (e *JSONExporter) Export(entries []transcript.Entry) ([]byte, error) {
	kept := prepare(entries, e.options)

	doc := jsonDocument{
		ExportedAt: e.options.now().UTC(),
		Count:      len(kept),
		Exchanges:  make([]jsonEntry, len(kept)),
	}
	for i, en := range kept {
		doc.Exchanges[i] = jsonEntry{
			ID:         en.ID,
			CreatedAt:  en.CreatedAt.UTC(),
			SessionID:  en.SessionID,
			Tool:       en.Tool,
			ModelID:    en.ModelID,
			Prompt:     en.Prompt,
			Reply:      en.Reply,
			IsError:    en.IsError,
			Status:     en.Status,
			DurationMs: en.Duration.Milliseconds(),
		}
	}
	return json.MarshalIndent(doc, "", "  ")
}

// FileExtension returns the file extension for JSON.
func (e *JSONExporter) FileExtension() string {
	return ".json"
}

// MimeType returns the MIME type for JSON.
func (e *JSONExporter) MimeType() string {
	return "application/json"
}
