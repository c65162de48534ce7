package nlp

import (
	"context"
	"log/slog"
	"strings"
)

// classifierMaxTokens bounds the classifier completion; the expected answer
// is a single small JSON object.
const classifierMaxTokens = 256

// Classifier turns free text into a Classification using a Provider.
//
// Malformed provider output is never an error: it is recovered in place to
// {CHAT, original text}. Classify only fails when the provider call itself
// fails, and callers treat that as "fall back to conversation".
type Classifier struct {
	provider Provider
	prompt   string
}

// NewClassifier returns a Classifier that sends cat's classifier prompt to
// provider. A nil cat uses DefaultCatalogue.
func NewClassifier(provider Provider, cat *Catalogue) *Classifier {
	if cat == nil {
		cat = DefaultCatalogue()
	}
	return &Classifier{
		provider: provider,
		prompt:   cat.ClassifierPrompt(),
	}
}

// classifierReply is the loosely typed shape the provider is asked to emit.
// Args is decoded as any because models return numbers and lists as well.
type classifierReply struct {
	Intent *string `json:"intent"`
	Args   any     `json:"args"`
}

// Classify returns the Classification for text. See ClassifyDetailed.
func (c *Classifier) Classify(ctx context.Context, text string) (Classification, error) {
	res, err := c.ClassifyDetailed(ctx, text)
	if err != nil {
		return Classification{}, err
	}
	return res.Classification, nil
}

// ClassifyDetailed calls the provider once and recovers its output.
//
// The provider error is returned unchanged (wrapping ErrRateLimit or
// ErrProviderUnavailable). Otherwise the result is Recovered when a JSON
// object with a known intent was found and Malformed (CHAT with the
// original text as args) in every other case.
func (c *Classifier) ClassifyDetailed(ctx context.Context, text string) (Result, error) {
	raw, err := c.provider.Complete(ctx, CompletionRequest{
		System:      c.prompt,
		User:        text,
		Temperature: 0,
		MaxTokens:   classifierMaxTokens,
	})
	if err != nil {
		return Result{}, err
	}
	return recoverClassification(raw, text), nil
}

// recoverClassification applies brace-scanning recovery to raw. It is a pure
// function so identical provider output always yields identical results.
func recoverClassification(raw, text string) Result {
	fallback := Result{
		Classification: Classification{Intent: IntentChat, Args: text},
		Outcome:        OutcomeMalformed,
		Raw:            raw,
	}

	var reply classifierReply
	if err := RecoverObject(raw, &reply); err != nil {
		slog.Debug("nlp: classifier output not recoverable", "err", err, "raw", truncate(raw, 120))
		return fallback
	}
	if reply.Intent == nil {
		slog.Debug("nlp: classifier output has no intent", "raw", truncate(raw, 120))
		return fallback
	}
	intent, ok := ParseIntent(*reply.Intent)
	if !ok {
		slog.Debug("nlp: classifier produced unknown intent", "intent", *reply.Intent)
		return fallback
	}

	args := text
	if reply.Args != nil {
		args = strings.TrimSpace(stringify(reply.Args))
	}
	return Result{
		Classification: Classification{Intent: intent, Args: args},
		Outcome:        OutcomeRecovered,
		Raw:            raw,
	}
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n]) + "..."
}
