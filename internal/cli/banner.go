// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package cli

import (
	"fmt"
	"io"
	"strings"
)

// printBanner writes the startup summary to w (stderr). It is plain text
// when w is not a terminal.
func printBanner(w io.Writer, a *app) {
	st := NewStyles(w)

	transport := "stdio"
	if a.cfg.Server.Listen != "" {
		transport = "ws://" + a.cfg.Server.Listen + a.cfg.Server.Path
	}

	endpoint := a.client.BaseURL()
	if endpoint == "" {
		endpoint = "(not set)"
	}

	status := st.RenderStatus("ok")
	if !a.client.Configured() {
		status = st.RenderStatus("warning") + " " + st.Warning.Render("API_URL/API_KEY not set; every call will fail")
	}

	transcriptPath := "disabled"
	if a.transcript != nil {
		transcriptPath = a.transcript.Path()
	}

	lines := []string{
		st.Title.Render(fmt.Sprintf("%s %s", a.mcp.Info().Name, Version)),
		st.RenderSeparator(min(TerminalWidth(w)-4, 60)),
		st.RenderField("Transport", transport),
		st.RenderField("Endpoint", endpoint),
		st.RenderField("Key", a.client.KeyFingerprint()),
		st.RenderField("Tools", strings.Join(toolNames(a), ", ")),
		st.RenderField("Session", fmt.Sprintf("%s (%d rounds)", a.dispatcher.SessionID(), a.store.MaxRounds())),
		st.RenderField("Transcript", transcriptPath),
		st.Label.Render("Status") + status,
	}
	fmt.Fprintln(w, strings.Join(lines, "\n"))
}

func toolNames(a *app) []string {
	ids := a.catalog.Identities()
	names := make([]string, len(ids))
	for i, id := range ids {
		names[i] = id.ToolName()
	}
	return names
}
