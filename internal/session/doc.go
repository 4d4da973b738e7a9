// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package session provides the in-memory conversation history store.
//
// Each session id maps to an ordered, size-bounded list of user/assistant
// message pairs. System prompts are never stored; they are injected per
// request by the composer.
//
// # Key Types
//
//   - Store: Owner of all session histories, safe for concurrent use
//
// # Usage
//
// Serialize one exchange on a session:
//
//	store := session.NewStore(session.DefaultMaxHistoryRounds)
//	release, err := store.Acquire(ctx, session.DefaultSessionID)
//	if err != nil {
//	    return err
//	}
//	defer release()
//
//	history := store.History(session.DefaultSessionID)
//	// ... send request ...
//	store.AppendExchange(session.DefaultSessionID, user, assistant)
//
// # Lifecycle
//
// Histories are created lazily on first access and live for the lifetime of
// the process. Nothing is persisted.
package session
