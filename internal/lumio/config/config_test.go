package config_test

import (
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bdobrica/Lumio/internal/lumio/config"
)

func TestLoad_BareNamesAndDefaults(t *testing.T) {
	t.Setenv("OPENAI_API_KEY", "sk-test")
	t.Setenv("TELEGRAM_TOKEN", "123:abc")

	cfg, err := config.Load()
	require.NoError(t, err)

	assert.Equal(t, "sk-test", cfg.OpenAI.APIKey)
	assert.Equal(t, "123:abc", cfg.Telegram.Token)
	assert.Equal(t, "gpt-4o", cfg.OpenAI.Model)
	assert.Equal(t, "primary", cfg.Google.CalendarID)
	assert.Equal(t, "records", cfg.Google.Worksheet)
	assert.Equal(t, "Taipei", cfg.Services.WeatherLocation)
	assert.Equal(t, time.Minute, cfg.ReminderInterval)
	assert.Equal(t, 20, cfg.NLPRateLimit)
	assert.True(t, cfg.TelegramEnabled())
	assert.False(t, cfg.LINEEnabled())
}

func TestLoad_PrefixedNameWins(t *testing.T) {
	t.Setenv("OPENAI_API_KEY", "sk-bare")
	t.Setenv("LUMIO_OPENAI_API_KEY", "sk-prefixed")
	t.Setenv("TELEGRAM_TOKEN", "123:abc")

	cfg, err := config.Load()
	require.NoError(t, err)
	assert.Equal(t, "sk-prefixed", cfg.OpenAI.APIKey)
}

func TestValidate(t *testing.T) {
	valid := func() config.Config {
		return config.Config{
			HTTPAddr:         ":5000",
			Timezone:         "Asia/Taipei",
			ReminderInterval: time.Minute,
			OpenAI:           config.OpenAI{APIKey: "sk"},
			Telegram:         config.Telegram{Token: "t0ken"},
		}
	}

	tests := []struct {
		name    string
		mutate  func(*config.Config)
		wantErr string
	}{
		{"valid", func(*config.Config) {}, ""},
		{"no openai key", func(c *config.Config) { c.OpenAI.APIKey = "" }, "OPENAI_API_KEY"},
		{"no transport", func(c *config.Config) { c.Telegram.Token = "" }, "at least one of"},
		{"line without secret", func(c *config.Config) { c.LINE.AccessToken = "x" }, "LINE_CHANNEL_SECRET"},
		{"line without http", func(c *config.Config) {
			c.LINE = config.LINE{AccessToken: "x", Secret: "y"}
			c.HTTPAddr = ""
		}, "HTTP_ADDR"},
		{"partial matrix", func(c *config.Config) { c.Matrix.Homeserver = "https://m.org" }, "MATRIX_HOMESERVER"},
		{"zero interval", func(c *config.Config) { c.ReminderInterval = 0 }, "REMINDER_INTERVAL"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := valid()
			tt.mutate(&cfg)
			err := cfg.Validate()
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestLocation_OffsetIsUTC8(t *testing.T) {
	cfg := config.Config{Timezone: "Asia/Taipei"}
	ref := time.Date(2026, 1, 15, 0, 0, 0, 0, time.UTC)
	_, offset := ref.In(cfg.Location()).Zone()
	assert.Equal(t, 8*60*60, offset)
}

func TestLogValue_OmitsSecrets(t *testing.T) {
	cfg := config.Config{OpenAI: config.OpenAI{APIKey: "sk-very-secret"}}
	v := cfg.LogValue()
	assert.Equal(t, slog.KindGroup, v.Kind())
	assert.NotContains(t, v.String(), "sk-very-secret")
}
