// Package stock reports the latest close of a ticker with a short analyst
// comment.
package stock

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"
	"unicode"

	"github.com/go-resty/resty/v2"

	"github.com/bdobrica/Lumio/internal/lumio/nlp"
)

const (
	timeout = 10 * time.Second

	emptySymbolMessage = "請輸入代號"
	failureMessage     = "❌ 查詢失敗"

	analystPrompt = `Stock: %s (%s).
Role: Financial Analyst (Traditional Chinese).
Task: Short analysis (max 80 words).`
)

// Quote is the last two daily closes of a symbol.
type Quote struct {
	Symbol string
	Price  float64
	// Previous is zero when only one close is available.
	Previous float64
}

// Status renders "🔺 $612.00 (+12.00 / +2.00%)", or just the price when no
// previous close is known.
func (q Quote) Status() string {
	if q.Previous == 0 {
		return fmt.Sprintf("$%.2f", q.Price)
	}
	change := q.Price - q.Previous
	pct := change / q.Previous * 100
	arrow, sign := "➖", ""
	switch {
	case change > 0:
		arrow, sign = "🔺", "+"
	case change < 0:
		arrow = "🔻"
	}
	return fmt.Sprintf("%s $%.2f (%s%.2f / %s%.2f%%)", arrow, q.Price, sign, change, sign, pct)
}

// Client fetches quotes from the Yahoo Finance chart API.
type Client struct {
	http     *resty.Client
	provider nlp.Provider
}

// New returns a Client. provider writes the analyst comment; nil skips it.
func New(baseURL string, provider nlp.Provider) *Client {
	c := resty.New().
		SetBaseURL(strings.TrimRight(baseURL, "/")).
		SetHeader("User-Agent", "Mozilla/5.0").
		SetTimeout(timeout)
	return &Client{http: c, provider: provider}
}

type chartResponse struct {
	Chart struct {
		Result []struct {
			Meta struct {
				Symbol string `json:"symbol"`
			} `json:"meta"`
			Indicators struct {
				Quote []struct {
					Close []*float64 `json:"close"`
				} `json:"quote"`
			} `json:"indicators"`
		} `json:"result"`
	} `json:"chart"`
}

// ErrNoData means the symbol is unknown or has no recent closes.
var ErrNoData = errors.New("stock: no data")

// Normalize upper-cases a symbol and maps bare Taiwan stock codes (2330)
// to their Yahoo form (2330.TW).
func Normalize(symbol string) string {
	s := strings.ToUpper(strings.TrimSpace(symbol))
	if s == "" {
		return ""
	}
	for _, r := range s {
		if !unicode.IsDigit(r) {
			return s
		}
	}
	return s + ".TW"
}

// Fetch returns the last two closes over the past five days.
func (c *Client) Fetch(ctx context.Context, symbol string) (Quote, error) {
	resp, err := c.http.R().
		SetContext(ctx).
		SetPathParam("symbol", symbol).
		SetQueryParams(map[string]string{"range": "5d", "interval": "1d"}).
		Get("/v8/finance/chart/{symbol}")
	if err != nil {
		return Quote{}, fmt.Errorf("stock: fetch %s: %w", symbol, err)
	}
	if resp.StatusCode() == http.StatusNotFound {
		return Quote{}, ErrNoData
	}
	if resp.StatusCode() != http.StatusOK {
		return Quote{}, fmt.Errorf("stock: fetch %s: status %d", symbol, resp.StatusCode())
	}

	var chart chartResponse
	if err := json.Unmarshal(resp.Body(), &chart); err != nil {
		return Quote{}, fmt.Errorf("stock: decode %s: %w", symbol, err)
	}
	if len(chart.Chart.Result) == 0 || len(chart.Chart.Result[0].Indicators.Quote) == 0 {
		return Quote{}, ErrNoData
	}
	var closes []float64
	for _, v := range chart.Chart.Result[0].Indicators.Quote[0].Close {
		if v != nil {
			closes = append(closes, *v)
		}
	}
	if len(closes) == 0 {
		return Quote{}, ErrNoData
	}
	q := Quote{Symbol: symbol, Price: closes[len(closes)-1]}
	if len(closes) > 1 {
		q.Previous = closes[len(closes)-2]
	}
	return q, nil
}

// Report is the reply for a stock lookup. It never fails; errors become
// short messages.
func (c *Client) Report(ctx context.Context, symbol string) string {
	display := strings.ToUpper(strings.TrimSpace(symbol))
	if display == "" {
		return emptySymbolMessage
	}
	q, err := c.Fetch(ctx, Normalize(symbol))
	if errors.Is(err, ErrNoData) {
		return "❌ 找不到 " + display
	}
	if err != nil {
		slog.Warn("stock lookup failed", "symbol", display, "err", err)
		return failureMessage
	}

	head := fmt.Sprintf("📈 **%s**: %s", display, q.Status())
	if c.provider == nil {
		return head
	}
	analysis, err := c.provider.Complete(ctx, nlp.CompletionRequest{
		User:        fmt.Sprintf(analystPrompt, display, q.Status()),
		Temperature: 0.7,
	})
	if err != nil || strings.TrimSpace(analysis) == "" {
		slog.Debug("stock analysis unavailable", "symbol", display, "err", err)
		return head
	}
	return head + "\n\n" + strings.TrimSpace(analysis)
}
