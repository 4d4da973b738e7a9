// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package model contains the model catalog and chat message types.
package model

import (
	"errors"
	"fmt"
	"regexp"
	"strings"
)

// =============================================================================
// MODEL IDENTITY
// =============================================================================

// Identity is a persona and parameter bundle for one remote model.
// Each identity is exposed as one tool.
type Identity struct {
	// Key is the short symbolic name; the tool name is "ask_" + Key
	Key string `yaml:"key" json:"key"`

	// RemoteID is the model identifier sent to the completion endpoint
	RemoteID string `yaml:"remote_id" json:"remote_id"`

	// DisplayName is the human-readable name used in error text and listings
	DisplayName string `yaml:"display_name" json:"display_name"`

	// Description is the tool description shown to the calling agent
	Description string `yaml:"description" json:"description"`

	// MaxInputTokens is the advertised context budget (informational)
	MaxInputTokens int `yaml:"max_input_tokens" json:"max_input_tokens"`

	// MaxOutputTokens is sent as max_tokens
	MaxOutputTokens int `yaml:"max_output_tokens" json:"max_output_tokens"`

	// Temperature is sent with every request for this identity
	Temperature float64 `yaml:"temperature" json:"temperature"`

	// SystemPrompt is prepended to every conversation with this identity
	SystemPrompt string `yaml:"system_prompt" json:"system_prompt"`

	// SupportsWebSearch marks the identity as web-search capable.
	// Advisory only; the request body is unchanged.
	SupportsWebSearch bool `yaml:"supports_web_search" json:"supports_web_search"`
}

// ToolName returns the tool name derived from the identity key.
func (id Identity) ToolName() string {
	return ToolName(id.Key)
}

// =============================================================================
// TOOL NAMES
// =============================================================================

// ToolPrefix is prepended to every identity key to form its tool name.
const ToolPrefix = "ask_"

// ToolName returns "ask_<key>".
func ToolName(key string) string {
	return ToolPrefix + key
}

// KeyFromToolName extracts the identity key from a tool name of the form
// "ask_<key>". It does not check that the key exists in any catalog.
func KeyFromToolName(name string) (string, bool) {
	if !strings.HasPrefix(name, ToolPrefix) {
		return "", false
	}
	key := strings.TrimPrefix(name, ToolPrefix)
	if key == "" {
		return "", false
	}
	return key, true
}

// =============================================================================
// CATALOG
// =============================================================================

// ErrUnknownModel is returned by Lookup when no identity has the given key.
var ErrUnknownModel = errors.New("unknown model")

var keyPattern = regexp.MustCompile(`^[A-Za-z0-9_.-]+$`)

// Catalog is an immutable, ordered set of identities.
// It is built once at startup and never modified.
type Catalog struct {
	identities []Identity
	byKey      map[string]int
}

// NewCatalog validates the identities and returns a catalog that preserves
// their order.
func NewCatalog(identities []Identity) (*Catalog, error) {
	if len(identities) == 0 {
		return nil, errors.New("catalog must contain at least one model")
	}

	c := &Catalog{
		identities: make([]Identity, 0, len(identities)),
		byKey:      make(map[string]int, len(identities)),
	}

	for i, id := range identities {
		if err := validateIdentity(id); err != nil {
			return nil, fmt.Errorf("model %d (%q): %w", i, id.Key, err)
		}
		if _, dup := c.byKey[id.Key]; dup {
			return nil, fmt.Errorf("duplicate model key %q", id.Key)
		}
		c.byKey[id.Key] = len(c.identities)
		c.identities = append(c.identities, id)
	}

	return c, nil
}

// MustCatalog is like NewCatalog but panics on invalid input.
// Intended for built-in tables.
func MustCatalog(identities []Identity) *Catalog {
	c, err := NewCatalog(identities)
	if err != nil {
		panic(err)
	}
	return c
}

func validateIdentity(id Identity) error {
	switch {
	case id.Key == "":
		return errors.New("key is required")
	case !keyPattern.MatchString(id.Key):
		return fmt.Errorf("key %q must match %s", id.Key, keyPattern.String())
	case strings.TrimSpace(id.RemoteID) == "":
		return errors.New("remote_id is required")
	case id.MaxOutputTokens <= 0:
		return fmt.Errorf("max_output_tokens must be positive, got %d", id.MaxOutputTokens)
	case id.MaxInputTokens < 0:
		return fmt.Errorf("max_input_tokens must not be negative, got %d", id.MaxInputTokens)
	case id.Temperature < 0 || id.Temperature > 2:
		return fmt.Errorf("temperature must be within [0, 2], got %g", id.Temperature)
	}
	return nil
}

// Identities returns the identities in declaration order.
// The returned slice is a copy.
func (c *Catalog) Identities() []Identity {
	out := make([]Identity, len(c.identities))
	copy(out, c.identities)
	return out
}

// Lookup returns the identity with the given key.
func (c *Catalog) Lookup(key string) (Identity, error) {
	i, ok := c.byKey[key]
	if !ok {
		return Identity{}, fmt.Errorf("%w: %s", ErrUnknownModel, key)
	}
	return c.identities[i], nil
}

// LookupTool resolves a tool name ("ask_<key>") to its identity.
func (c *Catalog) LookupTool(toolName string) (Identity, error) {
	key, ok := KeyFromToolName(toolName)
	if !ok {
		return Identity{}, fmt.Errorf("%w: %s", ErrUnknownModel, toolName)
	}
	return c.Lookup(key)
}

// Len returns the number of identities.
func (c *Catalog) Len() int {
	return len(c.identities)
}

// Keys returns the identity keys in declaration order.
func (c *Catalog) Keys() []string {
	keys := make([]string, len(c.identities))
	for i, id := range c.identities {
		keys[i] = id.Key
	}
	return keys
}
