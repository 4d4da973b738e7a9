// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package cloud

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

// ErrNotConfigured indicates the endpoint URL or API key is not set.
var ErrNotConfigured = errors.New("completion endpoint not configured")

// TransportError is a network-level failure or a non-2xx response.
// Status is 0 when no HTTP response was received.
type TransportError struct {
	Status  int
	Message string
	Err     error
}

// Error implements the error interface.
func (e *TransportError) Error() string {
	if e.Status != 0 {
		return fmt.Sprintf("completion request failed (HTTP %d): %s", e.Status, e.Message)
	}
	return fmt.Sprintf("completion request failed: %s", e.Message)
}

// Unwrap returns the underlying transport error, if any.
func (e *TransportError) Unwrap() error {
	return e.Err
}

// MalformedResponseError is a 2xx response whose body has no string at
// choices[0].message.content.
type MalformedResponseError struct {
	Status int
	Body   string
}

// Error implements the error interface.
func (e *MalformedResponseError) Error() string {
	return "API returned a response, but no valid assistant reply text could be found"
}

// errorMessage extracts a human-readable message from an error body.
// Preference: error.message, message, JSON string body, raw body, fallback.
func errorMessage(body []byte, fallback string) string {
	trimmed := strings.TrimSpace(string(body))

	var eb errorBody
	if err := json.Unmarshal(body, &eb); err == nil {
		if len(eb.Error) > 0 {
			var nested struct {
				Message json.RawMessage `json:"message"`
			}
			if json.Unmarshal(eb.Error, &nested) == nil {
				if msg, ok := decodeString(nested.Message); ok && msg != "" {
					return msg
				}
			}
		}
		if msg, ok := decodeString(eb.Message); ok && msg != "" {
			return msg
		}
	}

	if s, ok := decodeString(json.RawMessage(trimmed)); ok && s != "" {
		return s
	}
	if trimmed != "" {
		return trimmed
	}
	return fallback
}
