package calendar_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/bdobrica/Lumio/internal/lumio/calendar"
)

func TestFormatListing(t *testing.T) {
	loc := time.FixedZone("UTC+8", 8*60*60)
	events := []calendar.Event{
		// 2026-03-09 is a Monday.
		{Summary: "晨會", Start: time.Date(2026, 3, 9, 1, 30, 0, 0, time.UTC)},
		{Summary: "連假", Start: time.Date(2026, 3, 15, 0, 0, 0, 0, loc), AllDay: true},
	}

	got := calendar.FormatListing(events, 7, loc)
	assert.Equal(t, "📅 **未來 7 天行程**:\n• 03/09 09:30 (一) 晨會\n• 03/15 (全天) (日) 連假", got)

	assert.Equal(t, "📅 未來 1 天無行程", calendar.FormatListing(nil, 1, loc))
}

func TestStamp(t *testing.T) {
	loc := time.FixedZone("UTC+8", 8*60*60)
	assert.Equal(t, "03/10 22:05", calendar.Stamp(time.Date(2026, 3, 10, 14, 5, 0, 0, time.UTC), loc))
}
