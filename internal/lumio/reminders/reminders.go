// Package reminders stores reminders and todos and delivers due reminders
// through the transports that can push messages.
package reminders

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/bdobrica/Lumio/common/spec/envelope"
)

// ErrUnsupported is returned by a Notifier whose platform cannot push
// unsolicited messages.
var ErrUnsupported = errors.New("reminders: platform cannot deliver reminders")

// ErrUndeliverable is wrapped by a Notifier when the chat will never accept
// the reminder, for example because the user blocked the bot. Such
// reminders are not retried.
var ErrUndeliverable = errors.New("reminders: chat refuses delivery")

// ErrNotFound is returned when a todo index or reminder id does not exist.
var ErrNotFound = errors.New("reminders: not found")

// Status is the delivery state of a reminder.
type Status string

const (
	StatusPending Status = "pending"
	StatusSent    Status = "sent"
	StatusFailed  Status = "failed"
)

// Reminder is a scheduled one-shot notification.
type Reminder struct {
	ID       uuid.UUID
	UserID   string
	ChatID   string
	Platform envelope.Platform
	RemindAt time.Time
	Task     string
	Status   Status
	// Attempts counts failed deliveries so far.
	Attempts int
}

// Message is the text delivered when the reminder fires.
func (r Reminder) Message() string {
	return "⏰ 提醒: " + r.Task
}

// Todo is an open or completed todo item.
type Todo struct {
	ID        uuid.UUID
	UserID    string
	Task      string
	Done      bool
	CreatedAt time.Time
}

// Notifier delivers a reminder to its chat.
type Notifier interface {
	Notify(ctx context.Context, r Reminder) error
}

// NotifierFunc adapts a function to Notifier.
type NotifierFunc func(ctx context.Context, r Reminder) error

func (f NotifierFunc) Notify(ctx context.Context, r Reminder) error { return f(ctx, r) }
