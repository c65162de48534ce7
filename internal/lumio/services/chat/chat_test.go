package chat_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bdobrica/Lumio/internal/lumio/nlp"
	"github.com/bdobrica/Lumio/internal/lumio/services/chat"
)

type fixedWeather struct{ calls int }

func (w *fixedWeather) Current(context.Context, string) string {
	w.calls++
	return "Taipei: ☀️ +28°C (70%)"
}

var taipei = time.FixedZone("UTC+8", 8*60*60)

func TestReply(t *testing.T) {
	var req nlp.CompletionRequest
	provider := nlp.ProviderFunc(func(_ context.Context, r nlp.CompletionRequest) (string, error) {
		req = r
		return "早安呀 ☀️", nil
	})
	w := &fixedWeather{}
	r := chat.New(provider, w, taipei)
	// 2026-03-09 is a Monday.
	r.SetNow(func() time.Time { return time.Date(2026, 3, 9, 0, 30, 0, 0, time.UTC) })

	got := r.Reply(context.Background(), "早安")
	assert.Equal(t, "早安呀 ☀️", got)
	assert.Equal(t, "早安", req.User)
	assert.Contains(t, req.System, "🕒 Time: 2026-03-09 08:30 (週一)")
	assert.NotContains(t, req.System, "Weather:")
	assert.Zero(t, w.calls)

	r.Reply(context.Background(), "今天天氣如何")
	assert.Contains(t, req.System, "[Taipei Weather: Taipei: ☀️ +28°C (70%)]")
	assert.Equal(t, 1, w.calls)
}

func TestReply_Failure(t *testing.T) {
	provider := nlp.ProviderFunc(func(context.Context, nlp.CompletionRequest) (string, error) {
		return "", errors.New("timeout")
	})
	r := chat.New(provider, nil, taipei)
	require.Equal(t, chat.FailureMessage, r.Reply(context.Background(), "hi"))
	assert.Equal(t, "腦袋運轉中... 請稍後再試 🥺", chat.FailureMessage)
}
