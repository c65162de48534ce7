package stock_test

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bdobrica/Lumio/internal/lumio/nlp"
	"github.com/bdobrica/Lumio/internal/lumio/services/stock"
)

func chartServer(t *testing.T) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "5d", r.URL.Query().Get("range"))
		w.Header().Set("Content-Type", "application/json")
		switch r.URL.Path {
		case "/v8/finance/chart/2330.TW":
			_, _ = w.Write([]byte(`{"chart":{"result":[{"meta":{"symbol":"2330.TW"},"indicators":{"quote":[{"close":[590.0,null,600.0,612.0]}]}}],"error":null}}`))
		case "/v8/finance/chart/AAPL":
			_, _ = w.Write([]byte(`{"chart":{"result":[{"meta":{"symbol":"AAPL"},"indicators":{"quote":[{"close":[200.0,190.0]}]}}],"error":null}}`))
		case "/v8/finance/chart/FLAT":
			_, _ = w.Write([]byte(`{"chart":{"result":[{"meta":{"symbol":"FLAT"},"indicators":{"quote":[{"close":[10.0,10.0]}]}}],"error":null}}`))
		case "/v8/finance/chart/EMPTY":
			_, _ = w.Write([]byte(`{"chart":{"result":[{"meta":{"symbol":"EMPTY"},"indicators":{"quote":[{"close":[null]}]}}],"error":null}}`))
		case "/v8/finance/chart/BROKEN":
			w.WriteHeader(http.StatusBadGateway)
		default:
			w.WriteHeader(http.StatusNotFound)
			_, _ = w.Write([]byte(`{"chart":{"result":null,"error":{"code":"Not Found"}}}`))
		}
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestQuoteStatus(t *testing.T) {
	assert.Equal(t, "🔺 $612.00 (+12.00 / +2.00%)", stock.Quote{Price: 612, Previous: 600}.Status())
	assert.Equal(t, "🔻 $190.00 (-10.00 / -5.00%)", stock.Quote{Price: 190, Previous: 200}.Status())
	assert.Equal(t, "➖ $10.00 (0.00 / 0.00%)", stock.Quote{Price: 10, Previous: 10}.Status())
	assert.Equal(t, "$10.00", stock.Quote{Price: 10}.Status())
}

func TestNormalize(t *testing.T) {
	assert.Equal(t, "2330.TW", stock.Normalize(" 2330 "))
	assert.Equal(t, "AAPL", stock.Normalize("aapl"))
	assert.Equal(t, "2330.TW", stock.Normalize("2330.tw"))
	assert.Empty(t, stock.Normalize(""))
}

func TestReport(t *testing.T) {
	srv := chartServer(t)
	var prompt string
	provider := nlp.ProviderFunc(func(_ context.Context, req nlp.CompletionRequest) (string, error) {
		prompt = req.User
		return "  台積電走勢穩健。 ", nil
	})
	c := stock.New(srv.URL, provider)
	ctx := context.Background()

	got := c.Report(ctx, "2330")
	assert.Equal(t, "📈 **2330**: 🔺 $612.00 (+12.00 / +2.00%)\n\n台積電走勢穩健。", got)
	assert.Contains(t, prompt, "Stock: 2330 (🔺 $612.00")

	assert.Equal(t, "請輸入代號", c.Report(ctx, "  "))
	assert.Equal(t, "❌ 找不到 ZZZZ", c.Report(ctx, "zzzz"))
	assert.Equal(t, "❌ 找不到 EMPTY", c.Report(ctx, "empty"))
	assert.Equal(t, "❌ 查詢失敗", c.Report(ctx, "broken"))
}

func TestReport_AnalysisFailureKeepsQuote(t *testing.T) {
	srv := chartServer(t)
	provider := nlp.ProviderFunc(func(context.Context, nlp.CompletionRequest) (string, error) {
		return "", errors.Join(nlp.ErrProviderUnavailable, errors.New("down"))
	})

	got := stock.New(srv.URL, provider).Report(context.Background(), "aapl")
	assert.Equal(t, "📈 **AAPL**: 🔻 $190.00 (-10.00 / -5.00%)", got)
}

func TestFetch(t *testing.T) {
	srv := chartServer(t)
	q, err := stock.New(srv.URL, nil).Fetch(context.Background(), "FLAT")
	require.NoError(t, err)
	assert.Equal(t, 10.0, q.Price)
	assert.Equal(t, 10.0, q.Previous)
}
