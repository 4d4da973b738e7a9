// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package session provides the in-memory conversation history store.
package session

import (
	"context"
	"sort"
	"sync"

	"github.com/lioensky/AIhelpAI-MCP/internal/model"
)

const (
	// DefaultSessionID is the single session key used by the dispatcher.
	DefaultSessionID = "default_session"

	// DefaultMaxHistoryRounds is the number of user/assistant rounds kept
	// per session (10 messages).
	DefaultMaxHistoryRounds = 5
)

// =============================================================================
// HISTORY STORE
// =============================================================================

// history is the state for one session id.
type history struct {
	// lease serializes read-send-append sequences (capacity 1)
	lease chan struct{}

	mu       sync.Mutex
	messages []model.ChatMessage
}

// Store owns every session history.
// All methods are safe for concurrent use.
type Store struct {
	mu        sync.Mutex
	sessions  map[string]*history
	maxRounds int
}

// NewStore creates an empty store that keeps at most maxRounds rounds per
// session. Non-positive values fall back to DefaultMaxHistoryRounds.
func NewStore(maxRounds int) *Store {
	if maxRounds <= 0 {
		maxRounds = DefaultMaxHistoryRounds
	}
	return &Store{
		sessions:  make(map[string]*history),
		maxRounds: maxRounds,
	}
}

// MaxRounds returns the configured round bound.
func (s *Store) MaxRounds() int {
	return s.maxRounds
}

// get returns the history for sessionID, registering it on first access.
func (s *Store) get(sessionID string) *history {
	s.mu.Lock()
	defer s.mu.Unlock()

	h, ok := s.sessions[sessionID]
	if !ok {
		h = &history{lease: make(chan struct{}, 1)}
		s.sessions[sessionID] = h
	}
	return h
}

// History returns a copy of the session's messages in chronological order.
// An unseen session id is registered with an empty history.
func (s *Store) History(sessionID string) []model.ChatMessage {
	h := s.get(sessionID)

	h.mu.Lock()
	defer h.mu.Unlock()

	out := make([]model.ChatMessage, len(h.messages))
	copy(out, h.messages)
	return out
}

// AppendExchange appends user then assistant and drops the oldest pairs so
// that at most 2*MaxRounds messages remain.
func (s *Store) AppendExchange(sessionID string, user, assistant model.ChatMessage) {
	h := s.get(sessionID)

	h.mu.Lock()
	defer h.mu.Unlock()

	h.messages = append(h.messages, user, assistant)

	limit := s.maxRounds * 2
	if len(h.messages) > limit {
		// Copy into a fresh slice so the dropped prefix can be collected.
		kept := make([]model.ChatMessage, limit)
		copy(kept, h.messages[len(h.messages)-limit:])
		h.messages = kept
	}
}

// Len returns the number of stored messages for a session.
func (s *Store) Len(sessionID string) int {
	h := s.get(sessionID)

	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.messages)
}

// Sessions returns the registered session ids, sorted.
func (s *Store) Sessions() []string {
	s.mu.Lock()
	defer s.mu.Unlock()

	ids := make([]string, 0, len(s.sessions))
	for id := range s.sessions {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// =============================================================================
// SESSION LEASE
// =============================================================================

// Acquire takes the exclusive lease on a session. The caller must invoke the
// returned release function exactly once. While held, no other caller can
// acquire the same session, so a read-send-append sequence cannot interleave
// with another one.
//
// Acquire blocks until the lease is free or ctx is done.
func (s *Store) Acquire(ctx context.Context, sessionID string) (release func(), err error) {
	h := s.get(sessionID)

	select {
	case h.lease <- struct{}{}:
	case <-ctx.Done():
		return nil, ctx.Err()
	}

	var once sync.Once
	return func() {
		once.Do(func() { <-h.lease })
	}, nil
}
