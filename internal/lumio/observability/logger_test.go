package observability_test

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bdobrica/Lumio/common/trace"
	"github.com/bdobrica/Lumio/internal/lumio/observability"
)

func TestParseLevel(t *testing.T) {
	assert.Equal(t, slog.LevelDebug, observability.ParseLevel("DEBUG"))
	assert.Equal(t, slog.LevelWarn, observability.ParseLevel("warning"))
	assert.Equal(t, slog.LevelError, observability.ParseLevel("error"))
	assert.Equal(t, slog.LevelInfo, observability.ParseLevel("verbose"))
}

func TestNewLogger_JSON(t *testing.T) {
	var buf bytes.Buffer
	logger := observability.NewLogger(&buf, "info", "json")
	logger.Debug("hidden")
	logger.Info("routed", "path", "fast")

	var line map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &line))
	assert.Equal(t, "routed", line["msg"])
	assert.Equal(t, "fast", line["path"])
}

func TestWithTrace(t *testing.T) {
	var buf bytes.Buffer
	prev := slog.Default()
	slog.SetDefault(observability.NewLogger(&buf, "info", "text"))
	t.Cleanup(func() { slog.SetDefault(prev) })

	ctx := trace.WithTraceID(context.Background(), "t_abc")
	observability.WithTrace(ctx).Info("hello")
	assert.Contains(t, buf.String(), "trace_id=t_abc")
}

func TestTruncate(t *testing.T) {
	assert.Equal(t, "abc", observability.Truncate("abc", 5))
	assert.Equal(t, "明天開...", observability.Truncate("明天開會討論", 3))
}
