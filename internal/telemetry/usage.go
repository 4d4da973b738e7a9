// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package telemetry

import (
	"context"
	"sort"
	"sync"
	"time"
	"unicode/utf8"

	"github.com/lioensky/AIhelpAI-MCP/internal/transcript"
)

// =============================================================================
// USAGE TYPES
// =============================================================================

// ToolUsage aggregates the calls made to one tool.
type ToolUsage struct {
	Tool    string `json:"tool"`
	ModelID string `json:"model_id"`
	Calls   int    `json:"calls"`
	Errors  int    `json:"errors"`

	// Character counts of prompts sent and replies received
	PromptChars int `json:"prompt_chars"`
	ReplyChars  int `json:"reply_chars"`

	TotalLatency time.Duration `json:"-"`
	MaxLatency   time.Duration `json:"-"`
	LastCall     time.Time     `json:"last_call"`
}

// AvgLatency returns the mean call duration.
func (u ToolUsage) AvgLatency() time.Duration {
	if u.Calls == 0 {
		return 0
	}
	return u.TotalLatency / time.Duration(u.Calls)
}

// Summary is a point-in-time view of all usage.
type Summary struct {
	Since  time.Time   `json:"since"`
	Calls  int         `json:"calls"`
	Errors int         `json:"errors"`
	Tools  []ToolUsage `json:"tools"`
}

// ErrorRate returns the fraction of calls that failed, in [0, 1].
func (s Summary) ErrorRate() float64 {
	if s.Calls == 0 {
		return 0
	}
	return float64(s.Errors) / float64(s.Calls)
}

// =============================================================================
// TRACKER
// =============================================================================

// Tracker counts executed tool calls. It is safe for concurrent use and
// satisfies dispatch.Recorder.
type Tracker struct {
	mu    sync.RWMutex
	since time.Time
	tools map[string]*ToolUsage
	now   func() time.Time
}

// NewTracker creates an empty tracker.
func NewTracker() *Tracker {
	return &Tracker{
		since: time.Now(),
		tools: make(map[string]*ToolUsage),
		now:   time.Now,
	}
}

// Record adds one executed call. It never fails.
func (t *Tracker) Record(_ context.Context, e transcript.Entry) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	u := t.tools[e.Tool]
	if u == nil {
		u = &ToolUsage{Tool: e.Tool}
		t.tools[e.Tool] = u
	}

	u.ModelID = e.ModelID
	u.Calls++
	if e.IsError {
		u.Errors++
	} else {
		u.ReplyChars += utf8.RuneCountInString(e.Reply)
	}
	u.PromptChars += utf8.RuneCountInString(e.Prompt)
	u.TotalLatency += e.Duration
	if e.Duration > u.MaxLatency {
		u.MaxLatency = e.Duration
	}

	u.LastCall = e.CreatedAt
	if u.LastCall.IsZero() {
		u.LastCall = t.now()
	}
	return nil
}

// Summary returns a copy of the current statistics, tools sorted by name.
func (t *Tracker) Summary() Summary {
	t.mu.RLock()
	defer t.mu.RUnlock()

	s := Summary{Since: t.since, Tools: make([]ToolUsage, 0, len(t.tools))}
	for _, u := range t.tools {
		s.Calls += u.Calls
		s.Errors += u.Errors
		s.Tools = append(s.Tools, *u)
	}
	sort.Slice(s.Tools, func(i, j int) bool { return s.Tools[i].Tool < s.Tools[j].Tool })
	return s
}

// Reset clears all statistics.
func (t *Tracker) Reset() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.since = t.now()
	t.tools = make(map[string]*ToolUsage)
}
