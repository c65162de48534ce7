// Package weather fetches one-line weather reports from wttr.in.
package weather

import (
	"context"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
)

const (
	// DefaultLocation is used when the user names none.
	DefaultLocation = "Taipei"

	timeout = 5 * time.Second
	// format renders "Taipei: ⛅️ +22°C (78%)".
	format = "%l: %c %t (%h)"

	unavailableMessage = "⚠️ 暫時無法取得天氣"
	connectionMessage  = "❌ 連線失敗"
)

// Client queries wttr.in.
type Client struct {
	http            *resty.Client
	defaultLocation string
}

// New returns a Client for baseURL (https://wttr.in in production).
func New(baseURL, defaultLocation string) *Client {
	if defaultLocation == "" {
		defaultLocation = DefaultLocation
	}
	c := resty.New().
		SetBaseURL(strings.TrimRight(baseURL, "/")).
		SetHeader("User-Agent", "Mozilla/5.0").
		SetTimeout(timeout)
	return &Client{http: c, defaultLocation: defaultLocation}
}

// Current returns the one-line report for location, or a short failure
// message.
func (c *Client) Current(ctx context.Context, location string) string {
	location = strings.TrimSpace(location)
	if location == "" {
		location = c.defaultLocation
	}

	resp, err := c.http.R().
		SetContext(ctx).
		SetPathParam("location", location).
		SetQueryParam("format", format).
		Get("/{location}")
	if err != nil {
		slog.Warn("weather request failed", "location", location, "err", err)
		return connectionMessage
	}
	if resp.StatusCode() != http.StatusOK {
		slog.Warn("weather request rejected", "location", location, "status", resp.StatusCode())
		return unavailableMessage
	}
	return strings.TrimSpace(resp.String())
}
