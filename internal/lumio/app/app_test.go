package app_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bdobrica/Lumio/common/spec/envelope"
	"github.com/bdobrica/Lumio/internal/lumio/app"
	"github.com/bdobrica/Lumio/internal/lumio/config"
	"github.com/bdobrica/Lumio/internal/lumio/nlp"
	"github.com/bdobrica/Lumio/internal/lumio/store"
)

func testConfig() config.Config {
	return config.Config{
		DatabasePath:     store.MemoryPath,
		Timezone:         "Asia/Taipei",
		ReminderInterval: time.Minute,
		NLPRateLimit:     20,
		OpenAI:           config.OpenAI{APIKey: "sk-test"},
		LINE: config.LINE{
			AccessToken: "tok",
			Secret:      "secret",
			APIBase:     "http://127.0.0.1:1",
			WebhookPath: "/callback",
		},
	}
}

func fixedReply(reply string) nlp.Provider {
	return nlp.ProviderFunc(func(context.Context, nlp.CompletionRequest) (string, error) {
		return reply, nil
	})
}

func TestNew_DryRunRoutes(t *testing.T) {
	ctx := context.Background()
	a, err := app.New(ctx, testConfig(), app.Options{
		DryRun:   true,
		Provider: fixedReply(`{"intent":"SPEND","args":"80 咖啡"}`),
	})
	require.NoError(t, err)
	t.Cleanup(func() { a.Close() })

	msg := envelope.InboundMessage{Platform: envelope.PlatformLINE, UserID: "U1", ChatID: "U1"}

	msg.Text = "/spend 100 午餐"
	assert.Equal(t, "💸 已記帳: 午餐 $100", a.Router().Route(ctx, msg))

	msg.Text = "剛剛喝咖啡 80"
	assert.Equal(t, "💸 已記帳: 咖啡 $80", a.Router().Route(ctx, msg))

	msg.Text = "/report"
	assert.Contains(t, a.Router().Route(ctx, msg), "💰 總支出：$180")

	msg.Text = "/remind 明天八點吃藥"
	assert.Equal(t, "⚠️ LINE 暫不支援主動提醒，請改用 Telegram", a.Router().Route(ctx, msg))
}

func TestNew_WithoutGoogleCredentials(t *testing.T) {
	cfg := testConfig()
	cfg.Google.CredentialsFile = t.TempDir() + "/missing.json"

	ctx := context.Background()
	a, err := app.New(ctx, cfg, app.Options{Provider: fixedReply(`{"intent":"CHAT"}`)})
	require.NoError(t, err)
	t.Cleanup(func() { a.Close() })

	msg := envelope.InboundMessage{Text: "/today", Platform: envelope.PlatformLINE, UserID: "U1", ChatID: "U1"}
	assert.Equal(t, "❌ 未設定 Google Calendar", a.Router().Route(ctx, msg))
}

func TestRun_StopsOnCancel(t *testing.T) {
	cfg := testConfig()
	cfg.HTTPAddr = "127.0.0.1:0"

	a, err := app.New(context.Background(), cfg, app.Options{DryRun: true, Provider: fixedReply("")})
	require.NoError(t, err)
	t.Cleanup(func() { a.Close() })

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- a.Run(ctx) }()

	time.Sleep(50 * time.Millisecond)
	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("Run did not return after cancel")
	}
}
