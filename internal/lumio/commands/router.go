// Package commands turns one inbound chat message into one reply.
//
// Messages that start with the command prefix and name a known command are
// dispatched directly (fast path). Everything else is classified by the
// language model and dispatched by intent (slow path), with a keyword
// safety net for expenses. Every failure becomes a reply string; Route
// never returns an error and never panics.
package commands

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"runtime/debug"
	"strings"

	"github.com/bdobrica/Lumio/common/spec/envelope"
	"github.com/bdobrica/Lumio/common/trace"
	"github.com/bdobrica/Lumio/internal/lumio/nlp"
	"github.com/bdobrica/Lumio/internal/lumio/observability"
)

// DefaultPrefix starts every fast-path command.
const DefaultPrefix = "/"

// internalErrorMessage is returned when a handler panics.
const internalErrorMessage = "❌ 發生錯誤，請稍後再試"

// Command is a parsed fast-path command.
type Command struct {
	// Name is lower-cased with the prefix and any @botname suffix removed.
	Name string
	Args []string
	// RawText is the original message text.
	RawText string
}

// ArgString joins the arguments with single spaces.
func (c *Command) ArgString() string {
	return strings.Join(c.Args, " ")
}

// ErrNotACommand is returned by Parse when the text does not start with the
// prefix.
var ErrNotACommand = errors.New("not a command (missing prefix)")

// Handler handles one fast-path command.
type Handler func(ctx context.Context, cmd *Command, msg envelope.InboundMessage) string

// Classifier maps free text to an intent.
type Classifier interface {
	ClassifyDetailed(ctx context.Context, text string) (nlp.Result, error)
}

// Router routes messages to handlers.
type Router struct {
	prefix     string
	handlers   map[string]Handler
	classifier Classifier
	limiter    *nlp.RateLimiter
	h          *Handlers
}

// Option customises a Router.
type Option func(*Router)

// WithPrefix replaces DefaultPrefix.
func WithPrefix(prefix string) Option {
	return func(r *Router) { r.prefix = prefix }
}

// WithRateLimiter guards classifier calls with a per-sender limit.
func WithRateLimiter(l *nlp.RateLimiter) Option {
	return func(r *Router) { r.limiter = l }
}

// NewRouter returns a Router with the standard command table registered.
func NewRouter(classifier Classifier, h *Handlers, opts ...Option) *Router {
	r := &Router{
		prefix:     DefaultPrefix,
		handlers:   make(map[string]Handler),
		classifier: classifier,
		h:          h,
	}
	for _, opt := range opts {
		opt(r)
	}
	r.registerDefaults()
	return r
}

// Register registers a fast-path command handler. Names are
// case-insensitive.
func (r *Router) Register(name string, handler Handler) {
	r.handlers[strings.ToLower(name)] = handler
}

// Commands returns the registered command names.
func (r *Router) Commands() []string {
	names := make([]string, 0, len(r.handlers))
	for name := range r.handlers {
		names = append(names, name)
	}
	return names
}

// Parse splits a prefixed message into a Command.
func (r *Router) Parse(text string) (*Command, error) {
	trimmed := strings.TrimSpace(text)
	if !strings.HasPrefix(trimmed, r.prefix) {
		return nil, ErrNotACommand
	}
	parts := strings.Fields(strings.TrimPrefix(trimmed, r.prefix))
	if len(parts) == 0 {
		return nil, fmt.Errorf("empty command")
	}
	name := strings.ToLower(parts[0])
	if at := strings.IndexByte(name, '@'); at >= 0 {
		name = name[:at]
	}
	if name == "" {
		return nil, fmt.Errorf("empty command")
	}
	return &Command{Name: name, Args: parts[1:], RawText: text}, nil
}

// Route produces the reply for msg. Only empty text yields an empty reply;
// whitespace is classified like any other message.
func (r *Router) Route(ctx context.Context, msg envelope.InboundMessage) string {
	ctx = trace.Ensure(ctx)
	logger := observability.WithTrace(ctx).With("platform", string(msg.Platform), "user_id", msg.UserID)

	if msg.Text == "" {
		observability.RouterMessages.WithLabelValues(observability.PathEmpty).Inc()
		return ""
	}

	if cmd, err := r.Parse(msg.Text); err == nil {
		if handler, ok := r.handlers[cmd.Name]; ok {
			observability.RouterMessages.WithLabelValues(observability.PathFast).Inc()
			logger.Info("routing command", "command", cmd.Name)
			return r.safely(ctx, logger, cmd.Name, func() string {
				return handler(ctx, cmd, msg)
			})
		}
		logger.Debug("unknown command, classifying instead", "command", cmd.Name)
	}

	return r.routeNatural(ctx, logger, msg)
}

func (r *Router) routeNatural(ctx context.Context, logger *slog.Logger, msg envelope.InboundMessage) string {
	if r.limiter != nil && !r.limiter.Allow(msg.UserID) {
		observability.RouterMessages.WithLabelValues(observability.PathFallback).Inc()
		if mentionsSpend(msg.Text) {
			logger.Warn("classifier rate limit exceeded, recording spend by keyword")
			return r.safely(ctx, logger, "spend", func() string {
				return r.h.SpendText(ctx, msg.Text, msg.Text)
			})
		}
		logger.Warn("classifier rate limit exceeded")
		return nlp.RateLimitMessage
	}

	res, err := r.classifier.ClassifyDetailed(ctx, msg.Text)
	if err != nil {
		observability.RouterMessages.WithLabelValues(observability.PathFallback).Inc()
		logger.Warn("classifier unavailable, falling back to chat", "err", err)
		return r.safely(ctx, logger, "chat", func() string {
			return r.h.Chat(ctx, msg.Text)
		})
	}

	observability.RouterIntents.WithLabelValues(string(res.Intent), res.Outcome.String()).Inc()
	switch res.Outcome {
	case nlp.OutcomeMalformed:
		logger.Debug("classifier output unusable, treating as chat", "raw", observability.Truncate(res.Raw, 120))
	case nlp.OutcomeRecovered:
		logger.Info("classified message", "intent", string(res.Intent))
	}

	intent, args := res.Intent, res.Args
	if intent == nlp.IntentChat && mentionsSpend(msg.Text) {
		logger.Info("spend keyword present, overriding chat intent")
		intent, args = nlp.IntentSpend, msg.Text
	}

	observability.RouterMessages.WithLabelValues(observability.PathSlow).Inc()
	return r.safely(ctx, logger, strings.ToLower(string(intent)), func() string {
		return r.dispatch(ctx, intent, args, msg)
	})
}

// dispatch runs the handler for intent. Event creation and reminders get
// the full original text so the extractor sees every time expression.
func (r *Router) dispatch(ctx context.Context, intent nlp.Intent, args string, msg envelope.InboundMessage) string {
	switch intent {
	case nlp.IntentAddEvent:
		return r.h.AddEvent(ctx, msg.Text)
	case nlp.IntentRemind:
		return r.h.Remind(ctx, msg, msg.Text)
	case nlp.IntentDeleteEvent:
		return r.h.DeleteEvent(ctx, args)
	case nlp.IntentUpdateEvent:
		return r.h.UpdateEvent(ctx, args, msg.Text)
	case nlp.IntentListEvents:
		return r.h.ListEvents(ctx, ResolveListDays(args))
	case nlp.IntentSpend:
		return r.h.SpendText(ctx, args, msg.Text)
	case nlp.IntentReport:
		return r.h.Report(ctx)
	case nlp.IntentStock:
		return r.h.Stock(ctx, args)
	case nlp.IntentWeather:
		return r.h.Weather(ctx, args)
	case nlp.IntentSearch:
		return r.h.Search(ctx, args)
	default:
		return r.h.Chat(ctx, msg.Text)
	}
}

// safely runs fn and converts a panic into internalErrorMessage.
func (r *Router) safely(ctx context.Context, logger *slog.Logger, name string, fn func() string) (reply string) {
	defer func() {
		if p := recover(); p != nil {
			observability.HandlerPanics.WithLabelValues(name).Inc()
			logger.Error("handler panicked", "handler", name, "panic", p, "stack", string(debug.Stack()))
			reply = internalErrorMessage
		}
	}()
	return fn()
}

// mentionsSpend reports whether text carries an expense keyword.
func mentionsSpend(text string) bool {
	return strings.Contains(text, "記帳") || strings.Contains(strings.ToLower(text), "spend")
}

// ResolveListDays maps list-events args to a day count: 7 when they
// mention a week, otherwise 1.
func ResolveListDays(args string) int {
	lower := strings.ToLower(args)
	for _, k := range []string{"7", "七", "week", "週"} {
		if strings.Contains(lower, k) {
			return 7
		}
	}
	return 1
}

func (r *Router) registerDefaults() {
	h := r.h
	r.Register("start", func(context.Context, *Command, envelope.InboundMessage) string {
		return StartMessage
	})
	r.Register("help", func(context.Context, *Command, envelope.InboundMessage) string {
		return HelpMessage
	})
	r.Register("add", func(ctx context.Context, cmd *Command, _ envelope.InboundMessage) string {
		return h.AddEvent(ctx, cmd.ArgString())
	})
	r.Register("delete", func(ctx context.Context, cmd *Command, _ envelope.InboundMessage) string {
		return h.DeleteEvent(ctx, cmd.ArgString())
	})
	r.Register("update", func(ctx context.Context, cmd *Command, _ envelope.InboundMessage) string {
		query, instruction := SplitUpdate(cmd.ArgString())
		return h.UpdateEvent(ctx, query, instruction)
	})
	r.Register("today", func(ctx context.Context, _ *Command, _ envelope.InboundMessage) string {
		return h.ListEvents(ctx, 1)
	})
	r.Register("week", func(ctx context.Context, _ *Command, _ envelope.InboundMessage) string {
		return h.ListEvents(ctx, 7)
	})
	r.Register("spend", func(ctx context.Context, cmd *Command, _ envelope.InboundMessage) string {
		return h.SpendCommand(ctx, cmd.Args)
	})
	r.Register("report", func(ctx context.Context, _ *Command, _ envelope.InboundMessage) string {
		return h.Report(ctx)
	})
	r.Register("stock", func(ctx context.Context, cmd *Command, _ envelope.InboundMessage) string {
		return h.Stock(ctx, cmd.ArgString())
	})
	r.Register("weather", func(ctx context.Context, cmd *Command, _ envelope.InboundMessage) string {
		return h.Weather(ctx, cmd.ArgString())
	})
	r.Register("s", func(ctx context.Context, cmd *Command, _ envelope.InboundMessage) string {
		return h.Search(ctx, cmd.ArgString())
	})
	r.Register("remind", func(ctx context.Context, cmd *Command, msg envelope.InboundMessage) string {
		return h.Remind(ctx, msg, cmd.ArgString())
	})
	r.Register("todo", func(ctx context.Context, cmd *Command, msg envelope.InboundMessage) string {
		return h.Todo(ctx, msg, cmd.ArgString())
	})
	r.Register("done", func(ctx context.Context, cmd *Command, msg envelope.InboundMessage) string {
		return h.Done(ctx, msg, cmd.ArgString())
	})
}

// updateSeparators split "/update <query> 改成 <instruction>".
var updateSeparators = []string{" to ", "改成", "改到"}

// SplitUpdate splits /update arguments into the event query and the change
// instruction. Without a separator the whole text is both.
func SplitUpdate(args string) (query, instruction string) {
	args = strings.TrimSpace(args)
	lower := strings.ToLower(args)
	for _, sep := range updateSeparators {
		if i := strings.Index(lower, sep); i >= 0 {
			q := strings.TrimSpace(args[:i])
			in := strings.TrimSpace(args[i+len(sep):])
			if q != "" && in != "" {
				return q, in
			}
		}
	}
	return args, args
}
