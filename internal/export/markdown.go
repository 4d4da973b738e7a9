// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package export

import (
	"fmt"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/lioensky/AIhelpAI-MCP/internal/transcript"
)

// =============================================================================
// MARKDOWN EXPORTER
// =============================================================================

// frontmatter is the YAML header of a Markdown export.
type frontmatter struct {
	Title     string    `yaml:"title"`
	Exchanges int       `yaml:"exchanges"`
	Errors    int       `yaml:"errors"`
	Tools     []string  `yaml:"tools,flow"`
	From      time.Time `yaml:"from,omitempty"`
	To        time.Time `yaml:"to,omitempty"`
	Exported  time.Time `yaml:"exported"`
	Generator string    `yaml:"generator"`
}

// MarkdownExporter exports entries to Markdown format.
type MarkdownExporter struct {
	options *Options
}

// NewMarkdownExporter creates a new Markdown exporter.
func NewMarkdownExporter(opts *Options) *MarkdownExporter {
	if opts == nil {
		opts = DefaultOptions()
	}
	return &MarkdownExporter{options: opts}
}

// Export converts entries to Markdown with an optional YAML frontmatter.
func (e *MarkdownExporter) Export(entries []transcript.Entry) ([]byte, error) {
	kept := prepare(entries, e.options)

	var sb strings.Builder

	if e.options.IncludeMetadata {
		fm := frontmatter{
			Title:     "AI Helper transcript",
			Exchanges: len(kept),
			Tools:     []string{},
			Exported:  e.options.now().UTC().Truncate(time.Second),
			Generator: "ai-helper-mcp",
		}
		seen := map[string]bool{}
		for _, en := range kept {
			if en.IsError {
				fm.Errors++
			}
			if !seen[en.Tool] {
				seen[en.Tool] = true
				fm.Tools = append(fm.Tools, en.Tool)
			}
		}
		if len(kept) > 0 {
			fm.From = kept[0].CreatedAt.UTC().Truncate(time.Second)
			fm.To = kept[len(kept)-1].CreatedAt.UTC().Truncate(time.Second)
		}

		header, err := yaml.Marshal(fm)
		if err != nil {
			return nil, fmt.Errorf("encode frontmatter: %w", err)
		}
		sb.WriteString("---\n")
		sb.Write(header)
		sb.WriteString("---\n\n")
	}

	sb.WriteString("# AI Helper transcript\n\n")
	if len(kept) == 0 {
		sb.WriteString("*No exchanges recorded.*\n")
		return []byte(sb.String()), nil
	}

	for i, en := range kept {
		fmt.Fprintf(&sb, "## %s <sub>%s</sub>\n\n", en.Tool, formatTimestamp(en.CreatedAt))
		fmt.Fprintf(&sb, "- **Model**: %s\n", en.ModelID)
		fmt.Fprintf(&sb, "- **Duration**: %s\n", formatDuration(en.Duration))
		if en.IsError {
			if en.Status != 0 {
				fmt.Fprintf(&sb, "- **Status**: failed (HTTP %d)\n", en.Status)
			} else {
				sb.WriteString("- **Status**: failed\n")
			}
		}
		sb.WriteString("\n### Prompt\n\n")
		sb.WriteString(quote(en.Prompt))
		sb.WriteString("\n\n### Reply\n\n")
		sb.WriteString(strings.TrimSpace(en.Reply))
		sb.WriteString("\n\n")

		if i < len(kept)-1 {
			sb.WriteString("---\n\n")
		}
	}
	return []byte(sb.String()), nil
}

// FileExtension returns the file extension for Markdown.
func (e *MarkdownExporter) FileExtension() string {
	return ".md"
}

// MimeType returns the MIME type for Markdown.
func (e *MarkdownExporter) MimeType() string {
	return "text/markdown"
}

// quote renders text as a Markdown blockquote.
func quote(text string) string {
	lines := strings.Split(strings.TrimSpace(text), "\n")
	for i, l := range lines {
		lines[i] = strings.TrimRight("> "+l, " ")
	}
	return strings.Join(lines, "\n")
}
