// Package search answers web-search requests from the DuckDuckGo instant
// answer API, falling back to the language model's own knowledge.
package search

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"

	"github.com/bdobrica/Lumio/internal/lumio/nlp"
)

const (
	// MaxResults is how many links a reply lists.
	MaxResults = 3

	timeout = 10 * time.Second

	emptyQueryMessage = "請輸入關鍵字"
	failedMessage     = "❌ 搜尋功能暫時失效"
	fallbackPrompt    = "Search '%s' failed. Provide a short summary based on knowledge."
)

// Result is one search hit.
type Result struct {
	Title string
	URL   string
}

// Client searches the web.
type Client struct {
	http     *resty.Client
	provider nlp.Provider
}

// New returns a Client. provider answers when the search engine has
// nothing; nil disables the fallback.
func New(baseURL string, provider nlp.Provider) *Client {
	c := resty.New().
		SetBaseURL(strings.TrimRight(baseURL, "/")).
		SetHeader("User-Agent", "Mozilla/5.0").
		SetTimeout(timeout)
	return &Client{http: c, provider: provider}
}

type topic struct {
	Text     string  `json:"Text"`
	FirstURL string  `json:"FirstURL"`
	Topics   []topic `json:"Topics"`
}

type instantAnswer struct {
	Heading       string  `json:"Heading"`
	AbstractURL   string  `json:"AbstractURL"`
	Results       []topic `json:"Results"`
	RelatedTopics []topic `json:"RelatedTopics"`
}

// Lookup returns up to MaxResults hits for q.
func (c *Client) Lookup(ctx context.Context, q string) ([]Result, error) {
	resp, err := c.http.R().
		SetContext(ctx).
		SetQueryParams(map[string]string{
			"q":             q,
			"format":        "json",
			"no_html":       "1",
			"skip_disambig": "1",
		}).
		Get("/")
	if err != nil {
		return nil, fmt.Errorf("search: %w", err)
	}
	if resp.StatusCode() != http.StatusOK {
		return nil, fmt.Errorf("search: status %d", resp.StatusCode())
	}

	// The API answers with a javascript content type, so decode by hand.
	var ia instantAnswer
	if err := json.Unmarshal(resp.Body(), &ia); err != nil {
		return nil, fmt.Errorf("search: decode: %w", err)
	}

	var out []Result
	seen := make(map[string]bool)
	add := func(title, url string) {
		if len(out) == MaxResults || url == "" || seen[url] {
			return
		}
		if title == "" {
			title = url
		}
		seen[url] = true
		out = append(out, Result{Title: title, URL: url})
	}

	for _, r := range ia.Results {
		add(r.Text, r.FirstURL)
	}
	if ia.AbstractURL != "" {
		add(ia.Heading, ia.AbstractURL)
	}
	var walk func([]topic)
	walk = func(ts []topic) {
		for _, t := range ts {
			if len(t.Topics) > 0 {
				walk(t.Topics)
				continue
			}
			add(t.Text, t.FirstURL)
		}
	}
	walk(ia.RelatedTopics)
	return out, nil
}

// Answer is the reply for a search request.
func (c *Client) Answer(ctx context.Context, q string) string {
	q = strings.TrimSpace(q)
	if q == "" {
		return emptyQueryMessage
	}

	results, err := c.Lookup(ctx, q)
	if err != nil {
		slog.Warn("web search failed", "err", err)
	}
	if len(results) > 0 {
		var b strings.Builder
		b.WriteString("🔍 **搜尋結果**:")
		for _, r := range results {
			fmt.Fprintf(&b, "\n- [%s](%s)", r.Title, r.URL)
		}
		return b.String()
	}

	if c.provider == nil {
		return failedMessage
	}
	summary, err := c.provider.Complete(ctx, nlp.CompletionRequest{
		User:        fmt.Sprintf(fallbackPrompt, q),
		Temperature: 0.7,
	})
	if err != nil || strings.TrimSpace(summary) == "" {
		slog.Warn("search fallback failed", "err", err)
		return failedMessage
	}
	return "⚠️ 搜尋無回應，AI 補充:\n\n" + strings.TrimSpace(summary)
}
