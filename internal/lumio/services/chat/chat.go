// Package chat produces the conversational reply used for small talk and
// as the router's fallback.
package chat

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/bdobrica/Lumio/internal/lumio/nlp"
)

// FailureMessage is returned when the provider cannot answer.
const FailureMessage = "腦袋運轉中... 請稍後再試 🥺"

const persona = `You are Lumio (盧米奧), an advanced AI assistant with a sweet personality.
🕒 Time: %s (週%s) | Location: Taipei%s

🎯 **MODES**:
1. **❤️ Sweet Girlfriend** (Default): Chat, daily life, feelings. Use emojis.
2. **🧠 Professional Assistant** (Tasks): Edit, Translate, Analyze. Be precise, less emojis.

🌍 Language: Traditional Chinese (Taiwan).`

// weekdays is indexed by time.Weekday.
var weekdays = [...]string{"日", "一", "二", "三", "四", "五", "六"}

// Weather supplies a one-line weather report for the persona prompt.
type Weather interface {
	Current(ctx context.Context, location string) string
}

// Responder answers free text in the assistant's persona.
type Responder struct {
	provider nlp.Provider
	weather  Weather
	loc      *time.Location
	now      func() time.Time
}

// New returns a Responder. weather may be nil.
func New(provider nlp.Provider, weather Weather, loc *time.Location) *Responder {
	return &Responder{provider: provider, weather: weather, loc: loc, now: time.Now}
}

// SystemPrompt renders the persona for the current time. Weather is
// looked up only when text asks about it.
func (r *Responder) SystemPrompt(ctx context.Context, text string) string {
	now := r.now().In(r.loc)
	weather := ""
	if r.weather != nil && (strings.Contains(text, "天氣") || strings.Contains(strings.ToLower(text), "weather")) {
		weather = fmt.Sprintf(" [Taipei Weather: %s]", r.weather.Current(ctx, "Taipei"))
	}
	return fmt.Sprintf(persona, now.Format("2006-01-02 15:04"), weekdays[now.Weekday()], weather)
}

// Reply answers text. It never fails; provider errors become
// FailureMessage.
func (r *Responder) Reply(ctx context.Context, text string) string {
	out, err := r.provider.Complete(ctx, nlp.CompletionRequest{
		System:      r.SystemPrompt(ctx, text),
		User:        text,
		Temperature: 0.7,
	})
	if err != nil || strings.TrimSpace(out) == "" {
		slog.Warn("chat reply failed", "err", err)
		return FailureMessage
	}
	return out
}
