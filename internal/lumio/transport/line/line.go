// Package line implements the LINE Messaging API transport.
//
// LINE delivers messages to a webhook:
//
//	POST {WebhookPath}
//
// The body is authenticated with the X-Line-Signature header, an
// HMAC-SHA256 of the raw body keyed by the channel secret, base64 encoded.
// Each text message event is routed and answered through the reply API
// using its single-use reply token. LINE cannot deliver reminders, because
// push messages are not available to this bot.
package line

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/go-resty/resty/v2"

	"github.com/bdobrica/Lumio/common/redact"
	"github.com/bdobrica/Lumio/common/spec/envelope"
	"github.com/bdobrica/Lumio/common/trace"
	"github.com/bdobrica/Lumio/common/version"
	"github.com/bdobrica/Lumio/internal/lumio/reminders"
)

// maxBodyBytes caps webhook request bodies.
const maxBodyBytes = 1 << 20

// maxTextRunes is the LINE limit for one text message.
const maxTextRunes = 5000

// replyTimeout bounds routing plus the reply call. Reply tokens expire
// shortly after delivery.
const replyTimeout = 50 * time.Second

// ErrBadSignature is returned when X-Line-Signature does not match the body.
var ErrBadSignature = errors.New("line: signature mismatch")

// Router produces the reply for one inbound message.
type Router interface {
	Route(ctx context.Context, msg envelope.InboundMessage) string
}

// Config configures the channel.
type Config struct {
	AccessToken string
	Secret      string
	// APIBase is the Messaging API root, normally https://api.line.me.
	APIBase string
}

// Bot is the LINE transport.
type Bot struct {
	client   *resty.Client
	router   Router
	secret   []byte
	redactor *redact.Redactor
	wg       sync.WaitGroup
}

type webhookBody struct {
	Destination string  `json:"destination"`
	Events      []event `json:"events"`
}

type event struct {
	Type       string     `json:"type"`
	ReplyToken string     `json:"replyToken"`
	Source     source     `json:"source"`
	Message    *inMessage `json:"message"`
}

type source struct {
	Type    string `json:"type"`
	UserID  string `json:"userId"`
	GroupID string `json:"groupId"`
	RoomID  string `json:"roomId"`
}

type inMessage struct {
	Type string `json:"type"`
	Text string `json:"text"`
}

type replyRequest struct {
	ReplyToken string       `json:"replyToken"`
	Messages   []outMessage `json:"messages"`
}

type outMessage struct {
	Type string `json:"type"`
	Text string `json:"text"`
}

type apiError struct {
	Message string `json:"message"`
}

// New returns a Bot.
func New(cfg Config, router Router) *Bot {
	client := resty.New().
		SetBaseURL(strings.TrimRight(cfg.APIBase, "/")).
		SetAuthToken(cfg.AccessToken).
		SetHeader("Content-Type", "application/json").
		SetHeader("User-Agent", version.UserAgent()).
		SetTimeout(10 * time.Second)
	return &Bot{
		client:   client,
		router:   router,
		secret:   []byte(cfg.Secret),
		redactor: redact.New(cfg.AccessToken, cfg.Secret),
	}
}

// ServeHTTP handles one webhook delivery. The request is acknowledged as
// soon as the signature is verified; events are processed asynchronously.
func (b *Bot) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	body, err := io.ReadAll(io.LimitReader(r.Body, maxBodyBytes))
	if err != nil {
		slog.Warn("line: failed to read webhook body", "err", err)
		http.Error(w, "failed to read request body", http.StatusBadRequest)
		return
	}
	if err := b.Verify(body, r.Header.Get("X-Line-Signature")); err != nil {
		slog.Info("line: rejected webhook", "err", err)
		http.Error(w, "invalid signature", http.StatusBadRequest)
		return
	}

	var payload webhookBody
	if err := json.Unmarshal(body, &payload); err != nil {
		slog.Warn("line: malformed webhook body", "err", err)
		http.Error(w, "malformed body", http.StatusBadRequest)
		return
	}

	// The reply outlives the webhook request.
	ctx := context.WithoutCancel(r.Context())
	for _, ev := range payload.Events {
		msg, ok := toInbound(ev)
		if !ok {
			continue
		}
		b.wg.Add(1)
		go func(token string) {
			defer b.wg.Done()
			b.handle(ctx, token, msg)
		}(ev.ReplyToken)
	}
	_, _ = io.WriteString(w, "OK")
}

// Wait blocks until every in-flight event has been answered.
func (b *Bot) Wait() { b.wg.Wait() }

// Verify checks signature against body.
func (b *Bot) Verify(body []byte, signature string) error {
	if signature == "" {
		return fmt.Errorf("line: missing X-Line-Signature header")
	}
	provided, err := base64.StdEncoding.DecodeString(signature)
	if err != nil {
		return fmt.Errorf("line: invalid base64 in X-Line-Signature: %w", err)
	}
	if !hmac.Equal(Sign(b.secret, body), provided) {
		return ErrBadSignature
	}
	return nil
}

// Sign returns the raw HMAC-SHA256 of body keyed by secret.
func Sign(secret, body []byte) []byte {
	mac := hmac.New(sha256.New, secret)
	mac.Write(body)
	return mac.Sum(nil)
}

// toInbound maps a text message event. LINE has no separate conversation
// id for one-to-one chats, so the sender id doubles as the chat id there.
func toInbound(ev event) (envelope.InboundMessage, bool) {
	if ev.Type != "message" || ev.Message == nil || ev.Message.Type != "text" || ev.ReplyToken == "" {
		return envelope.InboundMessage{}, false
	}
	chatID := ev.Source.UserID
	switch {
	case ev.Source.GroupID != "":
		chatID = ev.Source.GroupID
	case ev.Source.RoomID != "":
		chatID = ev.Source.RoomID
	}
	return envelope.InboundMessage{
		Text:     ev.Message.Text,
		Platform: envelope.PlatformLINE,
		UserID:   ev.Source.UserID,
		ChatID:   chatID,
	}, true
}

func (b *Bot) handle(ctx context.Context, replyToken string, msg envelope.InboundMessage) {
	ctx, cancel := context.WithTimeout(trace.WithTraceID(ctx, trace.GenerateID()), replyTimeout)
	defer cancel()

	reply := b.router.Route(ctx, msg)
	if reply == "" {
		return
	}
	if err := b.Reply(ctx, replyToken, reply); err != nil {
		slog.Error("line: reply failed", "user_id", msg.UserID, "trace_id", trace.FromContext(ctx), "err", b.redactor.Error(err))
	}
}

// Reply answers a webhook event.
func (b *Bot) Reply(ctx context.Context, replyToken, text string) error {
	var apiErr apiError
	resp, err := b.client.R().
		SetContext(ctx).
		SetBody(replyRequest{
			ReplyToken: replyToken,
			Messages:   []outMessage{{Type: "text", Text: truncate(text)}},
		}).
		SetError(&apiErr).
		Post("/v2/bot/message/reply")
	if err != nil {
		return fmt.Errorf("line: reply: %w", err)
	}
	if resp.IsError() {
		return fmt.Errorf("line: reply: %d %s", resp.StatusCode(), apiErr.Message)
	}
	return nil
}

// Notify always fails with reminders.ErrUnsupported.
func (b *Bot) Notify(context.Context, reminders.Reminder) error {
	return reminders.ErrUnsupported
}

var _ reminders.Notifier = (*Bot)(nil)

func truncate(s string) string {
	r := []rune(s)
	if len(r) <= maxTextRunes {
		return s
	}
	return string(r[:maxTextRunes-1]) + "…"
}
