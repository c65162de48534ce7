package nlp_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bdobrica/Lumio/internal/lumio/nlp"
)

var taipei = time.FixedZone("UTC+8", 8*60*60)

func refTime() time.Time {
	return time.Date(2026, 3, 9, 10, 0, 0, 0, taipei)
}

func TestExtract_Event(t *testing.T) {
	tests := []struct {
		name      string
		reply     string
		wantStart time.Time
		wantDur   int
	}{
		{
			name:      "local time defaults to reference zone",
			reply:     `{"summary": "開會", "start_time": "2026-03-10T14:00:00", "duration_minutes": 90}`,
			wantStart: time.Date(2026, 3, 10, 14, 0, 0, 0, taipei),
			wantDur:   90,
		},
		{
			name:      "explicit zone is honoured",
			reply:     `{"summary": "開會", "start_time": "2026-03-10T06:00:00Z"}`,
			wantStart: time.Date(2026, 3, 10, 6, 0, 0, 0, time.UTC),
			wantDur:   60,
		},
		{
			name:      "fenced output and non-positive duration",
			reply:     "```json\n{\"summary\": \"開會\", \"start_time\": \"2026-03-10 14:00\", \"duration_minutes\": 0}\n```",
			wantStart: time.Date(2026, 3, 10, 14, 0, 0, 0, taipei),
			wantDur:   60,
		},
		{
			name:      "string duration",
			reply:     `Here: {"summary": "開會", "start_time": "2026-03-10T14:00", "duration_minutes": "30"}`,
			wantStart: time.Date(2026, 3, 10, 14, 0, 0, 0, taipei),
			wantDur:   30,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			x := nlp.NewExtractor(&stubProvider{reply: tt.reply}, nil, taipei)
			ev, err := x.Extract(context.Background(), "明天下午兩點開會", refTime())
			require.NoError(t, err)
			assert.Equal(t, "開會", ev.Summary)
			assert.True(t, tt.wantStart.Equal(ev.Start), "start %v", ev.Start)
			assert.Equal(t, tt.wantDur, ev.DurationMinutes)
			assert.True(t, ev.End().Equal(ev.Start.Add(time.Duration(tt.wantDur)*time.Minute)))
		})
	}
}

func TestExtract_Failures(t *testing.T) {
	long := "抱歉，我無法從這句話中判斷出任何行程資訊，請提供更明確的時間與事件名稱，謝謝您的耐心與配合"
	tests := []struct {
		name  string
		reply string
	}{
		{"no json", long},
		{"missing summary", `{"start_time": "2026-03-10T14:00:00"}`},
		{"missing start", `{"summary": "開會"}`},
		{"blank summary", `{"summary": "  ", "start_time": "2026-03-10T14:00:00"}`},
		{"bad timestamp", `{"summary": "開會", "start_time": "next tuesday"}`},
		{"wrong type", `{"summary": 42, "start_time": "2026-03-10T14:00:00"}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			x := nlp.NewExtractor(&stubProvider{reply: tt.reply}, nil, taipei)
			_, err := x.Extract(context.Background(), "???", refTime())

			var xerr *nlp.ExtractionError
			require.ErrorAs(t, err, &xerr)
			assert.Equal(t, tt.reply, xerr.Raw)
			assert.LessOrEqual(t, len([]rune(xerr.Snippet())), 50)
			assert.Contains(t, xerr.UserMessage(), "❌ AI 無法理解: ")
		})
	}
}

func TestExtract_SnippetIsFirst50Runes(t *testing.T) {
	reply := "一二三四五六七八九十一二三四五六七八九十一二三四五六七八九十一二三四五六七八九十一二三四五六七八九十EXTRA"
	x := nlp.NewExtractor(&stubProvider{reply: reply}, nil, taipei)
	_, err := x.Extract(context.Background(), "x", refTime())

	var xerr *nlp.ExtractionError
	require.ErrorAs(t, err, &xerr)
	assert.Equal(t, []rune(reply)[:50], []rune(xerr.Snippet()))
	assert.NotContains(t, xerr.UserMessage(), "EXTRA")
}

func TestExtract_ProviderFailure(t *testing.T) {
	x := nlp.NewExtractor(&stubProvider{err: errors.Join(nlp.ErrProviderUnavailable, errors.New("boom"))}, nil, taipei)
	_, err := x.Extract(context.Background(), "明天開會", refTime())

	var xerr *nlp.ExtractionError
	require.ErrorAs(t, err, &xerr)
	assert.ErrorIs(t, err, nlp.ErrProviderUnavailable)
	assert.Equal(t, nlp.ProviderFailureMessage, xerr.UserMessage())
}

func TestExtract_PromptCarriesReferenceAndZone(t *testing.T) {
	p := &stubProvider{reply: `{"summary":"a","start_time":"2026-03-10T09:00"}`}
	loc, err := time.LoadLocation("Asia/Taipei")
	if err != nil {
		t.Skip("tzdata unavailable")
	}
	x := nlp.NewExtractor(p, nil, loc)
	_, err = x.Extract(context.Background(), "明天九點晨跑", refTime())
	require.NoError(t, err)

	require.Len(t, p.calls, 1)
	assert.Contains(t, p.calls[0].User, "明天九點晨跑")
	assert.Contains(t, p.calls[0].User, "2026-03-09")
	assert.Contains(t, p.calls[0].User, "Asia/Taipei")
}

func TestExtractReminder(t *testing.T) {
	x := nlp.NewExtractor(&stubProvider{reply: `{"task": "吃藥", "remind_time": "2026-03-10T08:00"}`}, nil, taipei)
	r, err := x.ExtractReminder(context.Background(), "提醒我明天八點吃藥", refTime())
	require.NoError(t, err)
	assert.Equal(t, "吃藥", r.Task)
	assert.True(t, r.RemindAt.Equal(time.Date(2026, 3, 10, 8, 0, 0, 0, taipei)))
}

func TestExtractPatch(t *testing.T) {
	current := nlp.ExtractedEvent{
		Summary:         "開會",
		Start:           time.Date(2026, 3, 10, 14, 0, 0, 0, taipei),
		DurationMinutes: 90,
	}

	p := &stubProvider{reply: `{"start_time": "2026-03-10T15:00"}`}
	x := nlp.NewExtractor(p, nil, taipei)
	patch, err := x.ExtractPatch(context.Background(), "改到下午三點", current, refTime())
	require.NoError(t, err)

	updated := patch.Apply(current)
	assert.Equal(t, "開會", updated.Summary)
	assert.True(t, updated.Start.Equal(time.Date(2026, 3, 10, 15, 0, 0, 0, taipei)))
	assert.Equal(t, 90, updated.DurationMinutes, "duration kept when not patched")
	assert.Contains(t, p.calls[0].User, "開會, 2026-03-10T14:00, 90 minutes")
}

func TestExtractPatch_EmptyIsFailure(t *testing.T) {
	x := nlp.NewExtractor(&stubProvider{reply: `{"summary": null}`}, nil, taipei)
	_, err := x.ExtractPatch(context.Background(), "隨便", nlp.ExtractedEvent{Summary: "a"}, refTime())
	var xerr *nlp.ExtractionError
	assert.ErrorAs(t, err, &xerr)
}

func TestParseTimestamp(t *testing.T) {
	got, err := nlp.ParseTimestamp("2026-03-10", taipei)
	require.NoError(t, err)
	assert.True(t, got.Equal(time.Date(2026, 3, 10, 0, 0, 0, 0, taipei)))

	got, err = nlp.ParseTimestamp("2026-03-10T14:00:00+09:00", taipei)
	require.NoError(t, err)
	_, offset := got.Zone()
	assert.Equal(t, 9*60*60, offset)

	_, err = nlp.ParseTimestamp("tomorrow", taipei)
	assert.Error(t, err)
}

func TestParseTimestamp_ExplicitZoneVariants(t *testing.T) {
	want := time.Date(2026, 3, 10, 15, 0, 0, 0, taipei)
	tests := []struct {
		in         string
		wantOffset int
	}{
		{"2026-03-10T15:00+08:00", 8 * 60 * 60},
		{"2026-03-10T15:00:00+0800", 8 * 60 * 60},
		{"2026-03-10T15:00+0800", 8 * 60 * 60},
		{"2026-03-10T07:00Z", 0},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := nlp.ParseTimestamp(tt.in, time.UTC)
			require.NoError(t, err)
			assert.True(t, want.Equal(got), "got %v", got)
			_, offset := got.Zone()
			assert.Equal(t, tt.wantOffset, offset)
		})
	}
}
