// Package nlp provides the natural-language layer for Lumio.
//
// The layer sits between the raw chat message and the command router. It
// turns free-form sentences into structured values:
//   - Classifier: text → (Intent, args)
//   - Extractor:  text + reference time → event, reminder, or event patch
//
// Every value produced here comes from an untrusted text generator. The
// generator may wrap its JSON in prose or code fences, omit fields, or
// invent intents, so every result is recovered and validated locally and
// callers branch on an explicit outcome rather than trusting the shape.
package nlp

import (
	"context"
	"errors"
)

// ErrRateLimit is returned by a Provider when the upstream API reports a
// rate-limiting condition (HTTP 429).
var ErrRateLimit = errors.New("nlp: upstream rate limit exceeded")

// ErrProviderUnavailable is returned by a Provider when the call itself
// failed: network error, timeout, authentication, or an empty response.
var ErrProviderUnavailable = errors.New("nlp: provider unavailable")

// RateLimitMessage is the reply sent to senders who exceed the per-minute
// classifier limit.
const RateLimitMessage = "⏳ 訊息有點多，請稍等一下再試 🙏"

// ProviderFailureMessage is the reply used when a handler needs the
// provider and it cannot be reached.
const ProviderFailureMessage = "❌ 失敗: AI 服務暫時無法使用"

// CompletionRequest is a single text-generation call.
type CompletionRequest struct {
	// System is the instruction message. Optional.
	System string
	// User is the user turn.
	User string
	// Temperature controls sampling. Zero requests deterministic output.
	Temperature float32
	// MaxTokens caps the completion length. Zero leaves it to the provider.
	MaxTokens int
}

// Provider generates text for a prompt.
//
// Implementations must be safe for concurrent use and must wrap every
// failure in ErrRateLimit or ErrProviderUnavailable so callers can branch
// with errors.Is.
type Provider interface {
	Complete(ctx context.Context, req CompletionRequest) (string, error)
}

// ProviderFunc adapts a plain function to the Provider interface.
type ProviderFunc func(ctx context.Context, req CompletionRequest) (string, error)

// Complete implements Provider.
func (f ProviderFunc) Complete(ctx context.Context, req CompletionRequest) (string, error) {
	return f(ctx, req)
}
