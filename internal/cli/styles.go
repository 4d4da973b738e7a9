// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// styles.go - Centralized styling for all CLI output.
//
// Styles are bound to a renderer for one writer so the banner on stderr and
// a listing on stdout each get the color profile of their own stream.

package cli

import (
	"io"
	"strings"

	"github.com/charmbracelet/lipgloss"
)

// Styles is the shared palette for one output stream.
type Styles struct {
	// Title is used for command titles and headers
	// Color: Cyan (#39)
	Title lipgloss.Style

	// Section is used for section headers
	Section lipgloss.Style

	// Label is used for field labels (left-aligned)
	Label lipgloss.Style

	Value   lipgloss.Style
	Success lipgloss.Style
	Error   lipgloss.Style
	Warning lipgloss.Style
	Dim     lipgloss.Style

	// Separator is used for visual separators
	// Color: Dark gray (#240)
	Separator lipgloss.Style

	Highlight lipgloss.Style
}

// NewStyles builds the palette for w.
func NewStyles(w io.Writer) Styles {
	r := lipgloss.NewRenderer(w)
	r.SetColorProfile(ColorProfile(w))

	return Styles{
		Title: r.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("39")), // Cyan
		Section: r.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("255")), // White
		Label: r.NewStyle().
			Foreground(lipgloss.Color("245")). // Light gray
			Width(14),
		Value: r.NewStyle().
			Foreground(lipgloss.Color("252")), // Off-white
		Success: r.NewStyle().
			Foreground(lipgloss.Color("42")). // Green
			Bold(true),
		Error: r.NewStyle().
			Foreground(lipgloss.Color("196")). // Red
			Bold(true),
		Warning: r.NewStyle().
			Foreground(lipgloss.Color("214")), // Yellow/Orange
		Dim: r.NewStyle().
			Foreground(lipgloss.Color("242")), // Dim gray
		Separator: r.NewStyle().
			Foreground(lipgloss.Color("240")), // Dark gray
		Highlight: r.NewStyle().
			Foreground(lipgloss.Color("82")), // Bright green
	}
}

// =============================================================================
// HELPER FUNCTIONS FOR COMMON PATTERNS
// =============================================================================

// RenderSeparator renders a horizontal separator line of the specified width.
func (s Styles) RenderSeparator(width int) string {
	if width <= 0 {
		width = 60
	}
	return s.Separator.Render(strings.Repeat("=", width))
}

// RenderStatus renders a status indicator with appropriate color.
// status should be one of: "ok", "error", "warning" or anything else for unknown.
func (s Styles) RenderStatus(status string) string {
	switch strings.ToLower(status) {
	case "ok", "success", "pass":
		return s.Success.Render("[OK]")
	case "error", "fail", "failed":
		return s.Error.Render("[FAIL]")
	case "warning", "warn", "pending":
		return s.Warning.Render("[WARN]")
	default:
		return s.Dim.Render("[" + strings.ToUpper(status) + "]")
	}
}

// RenderField renders "label value" with a fixed-width label.
func (s Styles) RenderField(label, value string) string {
	return s.Label.Render(label) + s.Value.Render(value)
}
