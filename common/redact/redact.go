// Package redact strips credentials from text before it reaches a log line
// or a chat reply.
//
// The Telegram Bot API embeds the bot token in every request URL, so a
// transport error stringified verbatim leaks the token. Transports build a
// Redactor from their credentials once and pass every error through it.
package redact

import (
	"strings"
)

const placeholder = "[REDACTED]"

// minSecretLen is the shortest value that is ever redacted; shorter values
// would match common substrings.
const minSecretLen = 4

// String replaces every occurrence of each sensitive value in s with
// [REDACTED].
//
// Example:
//
//	safe := redact.String(logLine, botToken, apiKey)
func String(s string, sensitiveValues ...string) string {
	for _, v := range sensitiveValues {
		if len(v) < minSecretLen {
			continue
		}
		s = strings.ReplaceAll(s, v, placeholder)
	}
	return s
}

// Redactor remembers a fixed set of secrets.
type Redactor struct {
	secrets []string
}

// New returns a Redactor for the given secrets. Empty and short values are
// dropped.
func New(secrets ...string) *Redactor {
	kept := make([]string, 0, len(secrets))
	for _, s := range secrets {
		if len(s) >= minSecretLen {
			kept = append(kept, s)
		}
	}
	return &Redactor{secrets: kept}
}

// String redacts s. A nil Redactor returns s unchanged.
func (r *Redactor) String(s string) string {
	if r == nil {
		return s
	}
	return String(s, r.secrets...)
}

// Error returns the redacted message of err, or "" for a nil error.
func (r *Redactor) Error(err error) string {
	if err == nil {
		return ""
	}
	return r.String(err.Error())
}

// Map returns a shallow copy of m with values replaced by [REDACTED] for
// every key whose name suggests it contains a secret. Non-string values are
// left unchanged.
func Map(m map[string]any) map[string]any {
	out := make(map[string]any, len(m))
	for k, v := range m {
		if isSensitiveKey(k) {
			if str, ok := v.(string); ok && str != "" {
				out[k] = placeholder
				continue
			}
		}
		out[k] = v
	}
	return out
}

func isSensitiveKey(key string) bool {
	lower := strings.ToLower(key)
	for _, word := range []string{"password", "token", "secret", "key", "credential", "auth"} {
		if strings.Contains(lower, word) {
			return true
		}
	}
	return false
}
