package calendar_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/api/option"

	"github.com/bdobrica/Lumio/internal/lumio/calendar"
	"github.com/bdobrica/Lumio/internal/lumio/nlp"
)

func newGoogle(t *testing.T, h http.HandlerFunc) *calendar.Google {
	t.Helper()
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)

	loc := time.FixedZone("UTC+8", 8*60*60)
	g, err := calendar.NewGoogle(context.Background(), "primary", loc,
		option.WithEndpoint(srv.URL+"/"),
		option.WithoutAuthentication(),
	)
	require.NoError(t, err)
	return g
}

func TestGoogle_Upcoming(t *testing.T) {
	g := newGoogle(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodGet, r.Method)
		assert.True(t, strings.HasSuffix(r.URL.Path, "/calendars/primary/events"), r.URL.Path)
		assert.Equal(t, "20", r.URL.Query().Get("maxResults"))
		assert.Equal(t, "startTime", r.URL.Query().Get("orderBy"))
		assert.Equal(t, "true", r.URL.Query().Get("singleEvents"))

		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"items": [
			{"id": "a", "summary": "牙醫", "start": {"dateTime": "2026-03-10T14:00:00+08:00"}, "end": {"dateTime": "2026-03-10T15:00:00+08:00"}},
			{"id": "b", "summary": "連假", "start": {"date": "2026-03-15"}, "end": {"date": "2026-03-16"}},
			{"id": "c", "summary": "broken"}
		]}`))
	})

	events, err := g.Upcoming(context.Background(), time.Now(), calendar.MaxCandidates)
	require.NoError(t, err)
	require.Len(t, events, 2)
	assert.Equal(t, "牙醫", events[0].Summary)
	assert.False(t, events[0].AllDay)
	assert.Equal(t, time.Hour, events[0].End.Sub(events[0].Start))
	assert.True(t, events[1].AllDay)
}

func TestGoogle_Insert(t *testing.T) {
	var body map[string]any
	g := newGoogle(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"id": "new", "summary": "開會", "start": {"dateTime": "2026-03-10T14:00:00+08:00"}, "end": {"dateTime": "2026-03-10T15:30:00+08:00"}}`))
	})

	loc := time.FixedZone("UTC+8", 8*60*60)
	ev, err := g.Insert(context.Background(), nlp.ExtractedEvent{
		Summary:         "開會",
		Start:           time.Date(2026, 3, 10, 14, 0, 0, 0, loc),
		DurationMinutes: 90,
	})
	require.NoError(t, err)
	assert.Equal(t, "new", ev.ID)

	assert.Equal(t, "開會", body["summary"])
	start := body["start"].(map[string]any)
	end := body["end"].(map[string]any)
	assert.Equal(t, "2026-03-10T14:00:00+08:00", start["dateTime"])
	assert.Equal(t, "2026-03-10T15:30:00+08:00", end["dateTime"])
}

func TestGoogle_DeleteError(t *testing.T) {
	g := newGoogle(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodDelete, r.Method)
		assert.True(t, strings.HasSuffix(r.URL.Path, "/events/gone"), r.URL.Path)
		http.Error(w, `{"error": {"code": 404, "message": "Not Found"}}`, http.StatusNotFound)
	})

	err := g.Delete(context.Background(), "gone")
	assert.ErrorContains(t, err, "calendar: delete gone")
}
