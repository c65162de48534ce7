// Package config loads the immutable process configuration for Lumio.
//
// Configuration is read from the environment exactly once at startup by
// Load and then passed by value into every constructor. Nothing else in
// the process reads environment variables.
//
// Every variable is looked up as LUMIO_<NAME> first and then as the bare
// <NAME>, so deployments that export TELEGRAM_TOKEN or OPENAI_API_KEY
// directly keep working.
package config

import (
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/kelseyhightower/envconfig"
)

// Prefix is the envconfig prefix applied to every variable.
const Prefix = "LUMIO"

// Config is the complete process configuration.
type Config struct {
	// LogLevel is one of debug, info, warn, error.
	LogLevel string `envconfig:"LOG_LEVEL" default:"info"`
	// LogFormat is text or json.
	LogFormat string `envconfig:"LOG_FORMAT" default:"text"`

	// HTTPAddr is the listen address of the health/metrics/webhook server.
	// Empty disables the server (and with it the LINE webhook).
	HTTPAddr string `envconfig:"HTTP_ADDR" default:":5000"`

	// DatabasePath is the SQLite file holding reminders, todos and
	// transport cursors.
	DatabasePath string `envconfig:"DATABASE_PATH" default:"./lumio.db"`

	// Timezone is the civil zone used for "today", ledger dates and for
	// extracted times that carry no explicit offset.
	Timezone string `envconfig:"TIMEZONE" default:"Asia/Taipei"`

	// ReminderInterval is the period of the reminder sweep.
	ReminderInterval time.Duration `envconfig:"REMINDER_INTERVAL" default:"60s"`

	// NLPRateLimit is the number of classifier calls allowed per sender per
	// minute before the router falls back to a plain chat reply.
	NLPRateLimit int `envconfig:"NLP_RATE_LIMIT" default:"20"`

	OpenAI
	Google
	Telegram
	LINE
	Matrix
	Services
}

// OpenAI configures the text-generation provider.
type OpenAI struct {
	APIKey  string        `envconfig:"OPENAI_API_KEY"`
	BaseURL string        `envconfig:"OPENAI_BASE_URL"`
	Model   string        `envconfig:"OPENAI_MODEL" default:"gpt-4o"`
	Timeout time.Duration `envconfig:"OPENAI_TIMEOUT" default:"30s"`
}

// Google configures the Calendar and Sheets collaborators. Either
// CredentialsJSON or CredentialsFile must point at a service-account key.
type Google struct {
	CalendarID      string `envconfig:"GOOGLE_CALENDAR_ID" default:"primary"`
	CredentialsJSON string `envconfig:"GOOGLE_JSON_KEY"`
	CredentialsFile string `envconfig:"GOOGLE_CREDENTIALS_FILE" default:"google_secret.json"`
	SpreadsheetID   string `envconfig:"GOOGLE_SPREADSHEET_ID"`
	Worksheet       string `envconfig:"GOOGLE_WORKSHEET" default:"records"`
}

// Telegram configures the Telegram Bot API transport.
type Telegram struct {
	Token       string        `envconfig:"TELEGRAM_TOKEN"`
	APIBase     string        `envconfig:"TELEGRAM_API_BASE" default:"https://api.telegram.org"`
	PollTimeout time.Duration `envconfig:"TELEGRAM_POLL_TIMEOUT" default:"30s"`
}

// LINE configures the LINE Messaging API transport.
type LINE struct {
	AccessToken string `envconfig:"LINE_CHANNEL_ACCESS_TOKEN"`
	Secret      string `envconfig:"LINE_CHANNEL_SECRET"`
	APIBase     string `envconfig:"LINE_API_BASE" default:"https://api.line.me"`
	WebhookPath string `envconfig:"LINE_WEBHOOK_PATH" default:"/callback"`
}

// Matrix configures the optional Matrix transport.
type Matrix struct {
	Homeserver  string   `envconfig:"MATRIX_HOMESERVER"`
	UserID      string   `envconfig:"MATRIX_USER_ID"`
	AccessToken string   `envconfig:"MATRIX_ACCESS_TOKEN"`
	Rooms       []string `envconfig:"MATRIX_ROOMS"`
}

// Services configures the lookup adapters.
type Services struct {
	WeatherBaseURL  string `envconfig:"WEATHER_API_BASE" default:"https://wttr.in"`
	WeatherLocation string `envconfig:"WEATHER_DEFAULT_LOCATION" default:"Taipei"`
	StockBaseURL    string `envconfig:"STOCK_API_BASE" default:"https://query1.finance.yahoo.com"`
	SearchBaseURL   string `envconfig:"SEARCH_API_BASE" default:"https://api.duckduckgo.com"`
}

// Load reads the configuration from the environment and validates it.
func Load() (Config, error) {
	var cfg Config
	if err := envconfig.Process(Prefix, &cfg); err != nil {
		return Config{}, fmt.Errorf("config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate reports every missing or inconsistent setting at once.
func (c Config) Validate() error {
	var errs []error
	if c.OpenAI.APIKey == "" {
		errs = append(errs, errors.New("OPENAI_API_KEY is required"))
	}
	if !c.TelegramEnabled() && !c.LINEEnabled() && !c.MatrixEnabled() {
		errs = append(errs, errors.New("at least one of TELEGRAM_TOKEN, LINE_CHANNEL_ACCESS_TOKEN or MATRIX_ACCESS_TOKEN is required"))
	}
	if c.LINE.AccessToken != "" && c.LINE.Secret == "" {
		errs = append(errs, errors.New("LINE_CHANNEL_SECRET is required when LINE_CHANNEL_ACCESS_TOKEN is set"))
	}
	if c.LINEEnabled() && c.HTTPAddr == "" {
		errs = append(errs, errors.New("HTTP_ADDR is required to receive LINE webhooks"))
	}
	m := c.Matrix
	if set := countSet(m.Homeserver, m.UserID, m.AccessToken); set != 0 && set != 3 {
		errs = append(errs, errors.New("MATRIX_HOMESERVER, MATRIX_USER_ID and MATRIX_ACCESS_TOKEN must be set together"))
	}
	if _, err := time.LoadLocation(c.Timezone); err != nil && c.Timezone != "Asia/Taipei" {
		errs = append(errs, fmt.Errorf("TIMEZONE %q: %w", c.Timezone, err))
	}
	if c.ReminderInterval <= 0 {
		errs = append(errs, errors.New("REMINDER_INTERVAL must be positive"))
	}
	return errors.Join(errs...)
}

// TelegramEnabled reports whether the Telegram transport should run.
func (c Config) TelegramEnabled() bool { return c.Telegram.Token != "" }

// LINEEnabled reports whether the LINE transport should run.
func (c Config) LINEEnabled() bool { return c.LINE.AccessToken != "" }

// MatrixEnabled reports whether the Matrix transport should run.
func (c Config) MatrixEnabled() bool { return c.Matrix.AccessToken != "" }

// Location resolves Timezone. Hosts without tzdata fall back to a fixed
// UTC+8 zone, the offset of the default Asia/Taipei.
func (c Config) Location() *time.Location {
	if loc, err := time.LoadLocation(c.Timezone); err == nil {
		return loc
	}
	return time.FixedZone("UTC+8", 8*60*60)
}

// Secrets returns every credential value, for log redaction.
func (c Config) Secrets() []string {
	return []string{
		c.OpenAI.APIKey,
		c.Telegram.Token,
		c.LINE.AccessToken,
		c.LINE.Secret,
		c.Matrix.AccessToken,
	}
}

// LogValue implements slog.LogValuer and never includes credentials.
func (c Config) LogValue() slog.Value {
	return slog.GroupValue(
		slog.String("http_addr", c.HTTPAddr),
		slog.String("database", c.DatabasePath),
		slog.String("timezone", c.Timezone),
		slog.String("model", c.OpenAI.Model),
		slog.Bool("telegram", c.TelegramEnabled()),
		slog.Bool("line", c.LINEEnabled()),
		slog.Bool("matrix", c.MatrixEnabled()),
		slog.Bool("calendar", c.Google.hasCredentials()),
		slog.Bool("ledger", c.Google.hasCredentials() && c.Google.SpreadsheetID != ""),
	)
}

func (g Google) hasCredentials() bool {
	return g.CredentialsJSON != "" || g.CredentialsFile != ""
}

func countSet(values ...string) int {
	n := 0
	for _, v := range values {
		if v != "" {
			n++
		}
	}
	return n
}
