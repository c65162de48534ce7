// Package telegram runs the Telegram Bot API transport: long-polls
// getUpdates, routes each text message and replies with sendMessage.
package telegram

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/go-resty/resty/v2"

	"github.com/bdobrica/Lumio/common/redact"
	"github.com/bdobrica/Lumio/common/retry"
	"github.com/bdobrica/Lumio/common/spec/envelope"
	"github.com/bdobrica/Lumio/common/trace"
	"github.com/bdobrica/Lumio/common/version"
	"github.com/bdobrica/Lumio/internal/lumio/reminders"
	"github.com/bdobrica/Lumio/internal/lumio/store"
)

// offsetKey is the store.State key holding the next update offset.
const offsetKey = "telegram.offset"

// maxMessageRunes is the Bot API limit for one message.
const maxMessageRunes = 4096

// sendTimeout bounds one sendMessage call.
const sendTimeout = 10 * time.Second

// Router produces the reply for one inbound message.
type Router interface {
	Route(ctx context.Context, msg envelope.InboundMessage) string
}

// Config configures the bot.
type Config struct {
	Token string
	// APIBase is the Bot API root, normally https://api.telegram.org.
	APIBase string
	// PollTimeout is the long-poll timeout passed to getUpdates.
	PollTimeout time.Duration
}

// Bot is a Telegram transport. It also delivers reminders.
type Bot struct {
	client      *resty.Client
	router      Router
	state       store.State
	pollTimeout time.Duration
	redactor    *redact.Redactor
	wg          sync.WaitGroup
}

// apiResponse is the Bot API response envelope.
type apiResponse[T any] struct {
	OK          bool   `json:"ok"`
	Result      T      `json:"result"`
	ErrorCode   int    `json:"error_code"`
	Description string `json:"description"`
}

type update struct {
	UpdateID int64    `json:"update_id"`
	Message  *message `json:"message"`
}

type message struct {
	MessageID int64  `json:"message_id"`
	Text      string `json:"text"`
	From      *user  `json:"from"`
	Chat      chat   `json:"chat"`
}

type user struct {
	ID    int64 `json:"id"`
	IsBot bool  `json:"is_bot"`
}

type chat struct {
	ID int64 `json:"id"`
}

type sendRequest struct {
	ChatID    string `json:"chat_id"`
	Text      string `json:"text"`
	ParseMode string `json:"parse_mode,omitempty"`
}

// APIError is a Bot API call that returned ok=false.
type APIError struct {
	Method      string
	Code        int
	Description string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("telegram: %s: %d %s", e.Method, e.Code, e.Description)
}

// New returns a Bot. state persists the update offset across restarts and
// may be nil.
func New(cfg Config, router Router, state store.State) *Bot {
	if cfg.PollTimeout <= 0 {
		cfg.PollTimeout = 30 * time.Second
	}
	client := resty.New().
		SetBaseURL(strings.TrimRight(cfg.APIBase, "/")+"/bot"+cfg.Token).
		SetHeader("Content-Type", "application/json").
		SetHeader("User-Agent", version.UserAgent()).
		// The HTTP timeout must outlive the long poll.
		SetTimeout(cfg.PollTimeout + 10*time.Second)
	return &Bot{
		client:      client,
		router:      router,
		state:       state,
		pollTimeout: cfg.PollTimeout,
		redactor:    redact.New(cfg.Token),
	}
}

// Run polls until ctx is cancelled. Poll failures are retried with
// exponential backoff. Run waits for in-flight messages before returning.
func (b *Bot) Run(ctx context.Context) error {
	defer b.wg.Wait()
	slog.Info("telegram: polling started")

	offset := b.loadOffset(ctx)
	err := retry.Do(ctx, retry.ReconnectConfig, func() error {
		for {
			next, err := b.PollOnce(ctx, offset)
			if err != nil {
				if ctx.Err() != nil {
					return nil
				}
				slog.Warn("telegram: poll failed", "err", b.redactor.Error(err))
				return err
			}
			offset = next
			if ctx.Err() != nil {
				return nil
			}
		}
	})
	if ctx.Err() != nil {
		slog.Info("telegram: polling stopped")
		return nil
	}
	return err
}

// PollOnce fetches one batch of updates starting at offset, dispatches each
// text message on its own goroutine and returns the next offset.
func (b *Bot) PollOnce(ctx context.Context, offset int64) (int64, error) {
	var out apiResponse[[]update]
	resp, err := b.client.R().
		SetContext(ctx).
		SetQueryParams(map[string]string{
			"offset":          strconv.FormatInt(offset, 10),
			"timeout":         strconv.Itoa(int(b.pollTimeout / time.Second)),
			"allowed_updates": `["message"]`,
		}).
		SetResult(&out).
		SetError(&out).
		Get("/getUpdates")
	if err != nil {
		return offset, fmt.Errorf("telegram: getUpdates: %w", err)
	}
	if !out.OK {
		return offset, &APIError{Method: "getUpdates", Code: resp.StatusCode(), Description: out.Description}
	}

	next := offset
	for _, u := range out.Result {
		if u.UpdateID >= next {
			next = u.UpdateID + 1
		}
		msg, ok := toInbound(u)
		if !ok {
			continue
		}
		b.wg.Add(1)
		go func() {
			defer b.wg.Done()
			b.handle(ctx, msg)
		}()
	}
	if next != offset {
		b.saveOffset(ctx, next)
	}
	return next, nil
}

func toInbound(u update) (envelope.InboundMessage, bool) {
	m := u.Message
	if m == nil || m.Text == "" || m.From == nil || m.From.IsBot {
		return envelope.InboundMessage{}, false
	}
	return envelope.InboundMessage{
		Text:     m.Text,
		Platform: envelope.PlatformTelegram,
		UserID:   strconv.FormatInt(m.From.ID, 10),
		ChatID:   strconv.FormatInt(m.Chat.ID, 10),
	}, true
}

func (b *Bot) handle(ctx context.Context, msg envelope.InboundMessage) {
	ctx = trace.WithTraceID(ctx, trace.GenerateID())
	reply := b.router.Route(ctx, msg)
	if reply == "" {
		return
	}
	// Command replies are rendered as Markdown, plain conversation is not.
	parseMode := ""
	if strings.HasPrefix(strings.TrimSpace(msg.Text), "/") {
		parseMode = "Markdown"
	}
	if err := b.Send(ctx, msg.ChatID, reply, parseMode); err != nil {
		slog.Error("telegram: reply failed", "chat_id", msg.ChatID, "trace_id", trace.FromContext(ctx), "err", b.redactor.Error(err))
	}
}

// Send posts text to chatID. A Markdown message the API refuses to parse
// is resent as plain text.
func (b *Bot) Send(ctx context.Context, chatID, text, parseMode string) error {
	ctx, cancel := context.WithTimeout(ctx, sendTimeout)
	defer cancel()

	err := b.send(ctx, sendRequest{ChatID: chatID, Text: truncate(text), ParseMode: parseMode})
	var apiErr *APIError
	if parseMode != "" && errors.As(err, &apiErr) && apiErr.Code == http.StatusBadRequest {
		slog.Debug("telegram: markdown rejected, resending as plain text", "description", apiErr.Description)
		err = b.send(ctx, sendRequest{ChatID: chatID, Text: truncate(text)})
	}
	return err
}

func (b *Bot) send(ctx context.Context, req sendRequest) error {
	var out apiResponse[struct{}]
	resp, err := b.client.R().
		SetContext(ctx).
		SetBody(req).
		SetResult(&out).
		SetError(&out).
		Post("/sendMessage")
	if err != nil {
		return fmt.Errorf("telegram: sendMessage: %w", err)
	}
	if !out.OK {
		return &APIError{Method: "sendMessage", Code: resp.StatusCode(), Description: out.Description}
	}
	return nil
}

// Notify delivers a due reminder. A chat that blocked the bot or no longer
// exists reports reminders.ErrUndeliverable.
func (b *Bot) Notify(ctx context.Context, r reminders.Reminder) error {
	err := b.Send(ctx, r.ChatID, r.Message(), "")
	var apiErr *APIError
	if errors.As(err, &apiErr) && apiErr.Code == http.StatusForbidden {
		return fmt.Errorf("%w: %w", reminders.ErrUndeliverable, err)
	}
	return err
}

var _ reminders.Notifier = (*Bot)(nil)

func (b *Bot) loadOffset(ctx context.Context) int64 {
	if b.state == nil {
		return 0
	}
	v, err := b.state.Get(ctx, offsetKey)
	if err != nil {
		if !errors.Is(err, store.ErrNotFound) {
			slog.Warn("telegram: load offset", "err", err)
		}
		return 0
	}
	n, err := strconv.ParseInt(v, 10, 64)
	if err != nil {
		slog.Warn("telegram: ignoring corrupt offset", "value", v)
		return 0
	}
	return n
}

func (b *Bot) saveOffset(ctx context.Context, offset int64) {
	if b.state == nil {
		return
	}
	if err := b.state.Set(ctx, offsetKey, strconv.FormatInt(offset, 10)); err != nil {
		slog.Warn("telegram: save offset", "err", err)
	}
}

func truncate(s string) string {
	r := []rune(s)
	if len(r) <= maxMessageRunes {
		return s
	}
	return string(r[:maxMessageRunes-1]) + "…"
}
