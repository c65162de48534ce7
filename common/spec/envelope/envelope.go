// Package envelope defines the normalised inbound message that every chat
// transport hands to the command router. Transports translate their native
// update shapes into an InboundMessage and translate the returned text back
// into their own send call, so no transport type ever reaches the router.
package envelope

import (
	"fmt"
	"strings"
)

// Platform identifies the transport a message arrived on.
type Platform string

const (
	// PlatformTelegram is the Telegram Bot API transport.
	PlatformTelegram Platform = "telegram"
	// PlatformLINE is the LINE Messaging API transport.
	PlatformLINE Platform = "line"
	// PlatformMatrix is the Matrix client-server transport.
	PlatformMatrix Platform = "matrix"
)

// ParsePlatform maps a case-insensitive platform name onto a Platform.
func ParsePlatform(s string) (Platform, error) {
	switch p := Platform(strings.ToLower(strings.TrimSpace(s))); p {
	case PlatformTelegram, PlatformLINE, PlatformMatrix:
		return p, nil
	default:
		return "", fmt.Errorf("unknown platform %q", s)
	}
}

// SupportsProactive reports whether the platform can push messages that
// were not a direct reply to an inbound message (e.g. reminders).
// LINE reply tokens are single-use and short-lived, so it cannot.
func (p Platform) SupportsProactive() bool {
	return p == PlatformTelegram || p == PlatformMatrix
}

// InboundMessage is one user message as seen by the router. It is created
// per incoming event and discarded after a single routing pass.
type InboundMessage struct {
	// Text is the raw message body.
	Text string
	// Platform is the transport the message arrived on.
	Platform Platform
	// UserID is the platform-specific opaque sender id.
	UserID string
	// ChatID is the platform-specific opaque conversation id that replies
	// and reminders are delivered to.
	ChatID string
}

// Validate checks the structural invariants of an InboundMessage. Empty
// text is allowed; the router treats it as a no-op.
func (m InboundMessage) Validate() error {
	if m.Platform == "" {
		return fmt.Errorf("platform must not be empty")
	}
	if m.UserID == "" {
		return fmt.Errorf("user id must not be empty")
	}
	if m.ChatID == "" {
		return fmt.Errorf("chat id must not be empty")
	}
	return nil
}
