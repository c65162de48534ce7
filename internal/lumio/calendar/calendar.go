// Package calendar reads and writes the user's calendar and resolves
// free-text references ("取消 牙醫") to a concrete upcoming event.
package calendar

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/bdobrica/Lumio/internal/lumio/nlp"
)

// MaxCandidates is how many upcoming events Find considers.
const MaxCandidates = 20

// Event is a calendar entry as seen by the router.
type Event struct {
	ID      string
	Summary string
	Start   time.Time
	End     time.Time
	// AllDay events carry a date but no time of day.
	AllDay bool
}

// Service is the calendar collaborator. Implementations must be safe for
// concurrent use.
type Service interface {
	// List returns events starting in [from, to), ordered by start.
	List(ctx context.Context, from, to time.Time) ([]Event, error)
	// Upcoming returns at most max events starting at or after from,
	// ordered by start.
	Upcoming(ctx context.Context, from time.Time, max int) ([]Event, error)
	Insert(ctx context.Context, ev nlp.ExtractedEvent) (Event, error)
	Update(ctx context.Context, id string, ev nlp.ExtractedEvent) (Event, error)
	Delete(ctx context.Context, id string) error
}

// weekdays is indexed by time.Weekday (Sunday first).
var weekdays = [...]string{"日", "一", "二", "三", "四", "五", "六"}

// Weekday returns the single-character Chinese weekday name.
func Weekday(d time.Weekday) string {
	return weekdays[d]
}

// Stamp renders t as MM/DD HH:MM in loc.
func Stamp(t time.Time, loc *time.Location) string {
	return t.In(loc).Format("01/02 15:04")
}

// FormatListing renders the reply for a list of upcoming events.
func FormatListing(events []Event, days int, loc *time.Location) string {
	if len(events) == 0 {
		return fmt.Sprintf("📅 未來 %d 天無行程", days)
	}
	var b strings.Builder
	fmt.Fprintf(&b, "📅 **未來 %d 天行程**:\n", days)
	for _, ev := range events {
		start := ev.Start.In(loc)
		when := start.Format("01/02 15:04")
		if ev.AllDay {
			when = start.Format("01/02") + " (全天)"
		}
		fmt.Fprintf(&b, "• %s (%s) %s\n", when, Weekday(start.Weekday()), ev.Summary)
	}
	return strings.TrimRight(b.String(), "\n")
}
