// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package security holds secret redaction for anything written outside the
// protocol channel: log lines and the transcript.
package security

import "regexp"

// =============================================================================
// BUILT-IN SECRET PATTERNS
// =============================================================================

// secretPatterns defines patterns for common API keys and secrets.
// More specific prefixes come first.
var secretPatterns = []struct {
	name    string
	pattern *regexp.Regexp
	replace string
}{
	{"Anthropic", regexp.MustCompile(`sk-ant-[a-zA-Z0-9\-_]{20,}`), "[ANTHROPIC_KEY_REDACTED]"},
	{"OpenRouter", regexp.MustCompile(`sk-or-v1-[a-zA-Z0-9]{64}`), "[OPENROUTER_KEY_REDACTED]"},
	{"xAI", regexp.MustCompile(`xai-[a-zA-Z0-9]{20,}`), "[XAI_KEY_REDACTED]"},
	{"OpenAI", regexp.MustCompile(`sk-(?:proj-)?[a-zA-Z0-9\-_]{20,}`), "[OPENAI_KEY_REDACTED]"},
	{"Google", regexp.MustCompile(`AIza[0-9A-Za-z\-_]{35}`), "[GOOGLE_KEY_REDACTED]"},
	{"GitHub", regexp.MustCompile(`gh[pousr]_[a-zA-Z0-9]{36,}`), "[GITHUB_TOKEN_REDACTED]"},
	{"AWS", regexp.MustCompile(`AKIA[0-9A-Z]{16}`), "[AWS_KEY_REDACTED]"},
	{"Bearer", regexp.MustCompile(`Bearer\s+[a-zA-Z0-9\-_.]+`), "Bearer [TOKEN_REDACTED]"},
	{"Password", regexp.MustCompile(`(?i)(password|passwd|pwd)\s*[=:]\s*\S+`), "[PASSWORD_REDACTED]"},
	{"JWT", regexp.MustCompile(`eyJ[a-zA-Z0-9_-]*\.eyJ[a-zA-Z0-9_-]*\.[a-zA-Z0-9_-]*`), "[JWT_REDACTED]"},
}

// RedactSecrets replaces anything that looks like a credential.
func RedactSecrets(input string) string {
	result := input
	for _, sp := range secretPatterns {
		result = sp.pattern.ReplaceAllString(result, sp.replace)
	}
	return result
}

// ContainsSecret reports whether RedactSecrets would change input.
func ContainsSecret(input string) bool {
	for _, sp := range secretPatterns {
		if sp.pattern.MatchString(input) {
			return true
		}
	}
	return false
}
