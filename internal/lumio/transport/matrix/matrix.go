// Package matrix provides the Matrix transport for Lumio.
package matrix

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"sync"
	"time"

	"maunium.net/go/mautrix"
	"maunium.net/go/mautrix/event"
	"maunium.net/go/mautrix/id"

	"github.com/bdobrica/Lumio/common/redact"
	"github.com/bdobrica/Lumio/common/retry"
	"github.com/bdobrica/Lumio/common/spec/envelope"
	"github.com/bdobrica/Lumio/common/trace"
	"github.com/bdobrica/Lumio/internal/lumio/reminders"
	"github.com/bdobrica/Lumio/internal/lumio/store"
)

// sendTimeout bounds one outgoing message.
const sendTimeout = 30 * time.Second

// Router produces the reply for one inbound message.
type Router interface {
	Route(ctx context.Context, msg envelope.InboundMessage) string
}

// Config holds Matrix client configuration.
type Config struct {
	Homeserver  string
	UserID      string
	AccessToken string
	// Rooms are joined at startup. When non-empty, messages from other
	// rooms are ignored.
	Rooms []string
}

// Client wraps the mautrix client.
type Client struct {
	client   *mautrix.Client
	config   Config
	router   Router
	redactor *redact.Redactor
	started  time.Time
	wg       sync.WaitGroup
}

// New creates a Matrix client. state persists the sync position so a
// restart does not replay room history; it may be nil.
func New(cfg Config, router Router, state store.State) (*Client, error) {
	client, err := mautrix.NewClient(cfg.Homeserver, id.UserID(cfg.UserID), cfg.AccessToken)
	if err != nil {
		return nil, fmt.Errorf("matrix: create client: %w", err)
	}
	if state != nil {
		client.Store = newStateSyncStore(state)
	} else {
		slog.Warn("matrix: no state store configured, history will replay on restart")
	}
	return &Client{
		client:   client,
		config:   cfg,
		router:   router,
		redactor: redact.New(cfg.AccessToken),
		started:  time.Now(),
	}, nil
}

// Run joins the configured rooms and syncs until ctx is cancelled,
// reconnecting with exponential backoff.
func (c *Client) Run(ctx context.Context) error {
	defer c.wg.Wait()

	// E2EE is not implemented; encrypted rooms are not readable.
	syncer := c.client.Syncer.(*mautrix.DefaultSyncer)
	syncer.OnEventType(event.EventMessage, c.handleMessage)

	for _, roomID := range c.config.Rooms {
		if err := c.joinRoom(ctx, id.RoomID(roomID)); err != nil {
			return fmt.Errorf("matrix: join room %s: %w", roomID, err)
		}
	}

	slog.Info("matrix: sync started", "user_id", c.config.UserID, "rooms", len(c.config.Rooms))
	err := retry.Do(ctx, retry.ReconnectConfig, func() error {
		err := c.client.SyncWithContext(ctx)
		if ctx.Err() != nil {
			return nil
		}
		if err != nil {
			slog.Error("matrix: sync stopped, reconnecting", "err", c.redactor.Error(err))
		}
		return err
	})
	if ctx.Err() != nil {
		slog.Info("matrix: sync stopped")
		return nil
	}
	return err
}

// handleMessage routes one room message on its own goroutine.
func (c *Client) handleMessage(ctx context.Context, evt *event.Event) {
	msg, ok := c.toInbound(evt)
	if !ok {
		return
	}
	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		ctx := trace.WithTraceID(context.WithoutCancel(ctx), trace.GenerateID())
		reply := c.router.Route(ctx, msg)
		if reply == "" {
			return
		}
		if err := c.Send(ctx, msg.ChatID, reply); err != nil {
			slog.Error("matrix: reply failed", "room", msg.ChatID, "trace_id", trace.FromContext(ctx), "err", c.redactor.Error(err))
		}
	}()
}

// toInbound keeps text messages from other users in accepted rooms that
// were sent after the client started.
func (c *Client) toInbound(evt *event.Event) (envelope.InboundMessage, bool) {
	if evt.Sender == id.UserID(c.config.UserID) {
		return envelope.InboundMessage{}, false
	}
	content := evt.Content.AsMessage()
	if content == nil || content.MsgType != event.MsgText {
		return envelope.InboundMessage{}, false
	}
	if len(c.config.Rooms) > 0 && !slices.Contains(c.config.Rooms, evt.RoomID.String()) {
		return envelope.InboundMessage{}, false
	}
	if evt.Timestamp > 0 && time.UnixMilli(evt.Timestamp).Before(c.started) {
		return envelope.InboundMessage{}, false
	}
	return envelope.InboundMessage{
		Text:     content.Body,
		Platform: envelope.PlatformMatrix,
		UserID:   evt.Sender.String(),
		ChatID:   evt.RoomID.String(),
	}, true
}

// Send posts a plain-text message to roomID.
func (c *Client) Send(ctx context.Context, roomID, text string) error {
	ctx, cancel := context.WithTimeout(ctx, sendTimeout)
	defer cancel()
	if _, err := c.client.SendText(ctx, id.RoomID(roomID), text); err != nil {
		return fmt.Errorf("matrix: send message: %w", err)
	}
	return nil
}

// Notify delivers a due reminder to its room.
func (c *Client) Notify(ctx context.Context, r reminders.Reminder) error {
	err := c.Send(ctx, r.ChatID, r.Message())
	if errors.Is(err, mautrix.MForbidden) {
		return fmt.Errorf("%w: %w", reminders.ErrUndeliverable, err)
	}
	return err
}

var _ reminders.Notifier = (*Client)(nil)

func (c *Client) joinRoom(ctx context.Context, roomID id.RoomID) error {
	_, err := c.client.JoinRoomByID(ctx, roomID)
	if err != nil {
		// Homeservers answer M_FORBIDDEN when the bot is already a member.
		if errors.Is(err, mautrix.MForbidden) {
			slog.Warn("matrix: already a member or access denied, continuing", "room", roomID)
			return nil
		}
		return err
	}
	return nil
}
