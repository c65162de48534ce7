package calendar

import (
	"context"
	"regexp"
	"sort"
	"strings"
	"time"
)

// maxSuggestions bounds NotFoundError.Suggestions.
const maxSuggestions = 5

var (
	annotationRe = regexp.MustCompile(`\([^)]*\)|（[^）]*）`)
	triggerRe    = regexp.MustCompile(`(?i)刪除|取消|delete|cancel|remove|更改|修改|update`)
	spaceRe      = regexp.MustCompile(`\s+`)
)

// NotFoundError reports that no upcoming event matched a query.
type NotFoundError struct {
	// Query is the normalized query that was searched for.
	Query string
	// Suggestions are up to five upcoming event titles.
	Suggestions []string
}

func (e *NotFoundError) Error() string {
	return "calendar: no event matches " + `"` + e.Query + `"`
}

// UserMessage is the reply shown to the user.
func (e *NotFoundError) UserMessage() string {
	msg := "❌ 找不到 '" + e.Query + "'"
	if len(e.Suggestions) == 0 {
		return msg
	}
	var b strings.Builder
	b.WriteString(msg)
	b.WriteString("\n💡 近期行程:")
	for _, s := range e.Suggestions {
		b.WriteString("\n• ")
		b.WriteString(s)
	}
	return b.String()
}

// Normalize strips parenthesized annotations (ASCII and full-width) and the
// delete/update trigger words from a query and collapses whitespace.
func Normalize(query string) string {
	q := annotationRe.ReplaceAllString(query, " ")
	q = triggerRe.ReplaceAllString(q, " ")
	q = spaceRe.ReplaceAllString(q, " ")
	return strings.TrimSpace(q)
}

// Match picks the event a query refers to. An event matches when the
// normalized query is a case-insensitive substring of its title or the
// title is a substring of the query. A sole exact (case-insensitive) title
// match wins; otherwise the earliest-starting match does.
func Match(events []Event, query string) (Event, error) {
	q := Normalize(query)
	if q != "" {
		lq := strings.ToLower(q)
		var matches []Event
		for _, ev := range events {
			title := strings.ToLower(strings.TrimSpace(ev.Summary))
			if title == "" {
				continue
			}
			if strings.Contains(title, lq) || strings.Contains(lq, title) {
				matches = append(matches, ev)
			}
		}
		if len(matches) > 0 {
			var exact []Event
			for _, ev := range matches {
				if strings.EqualFold(strings.TrimSpace(ev.Summary), q) {
					exact = append(exact, ev)
				}
			}
			if len(exact) == 1 {
				return exact[0], nil
			}
			sort.SliceStable(matches, func(i, j int) bool {
				return matches[i].Start.Before(matches[j].Start)
			})
			return matches[0], nil
		}
	}
	return Event{}, &NotFoundError{Query: q, Suggestions: suggestions(events)}
}

func suggestions(events []Event) []string {
	out := make([]string, 0, maxSuggestions)
	for _, ev := range events {
		if len(out) == maxSuggestions {
			break
		}
		if ev.Summary != "" {
			out = append(out, ev.Summary)
		}
	}
	return out
}

// Find looks query up among the next MaxCandidates events after now.
func Find(ctx context.Context, svc Service, query string, now time.Time) (Event, error) {
	events, err := svc.Upcoming(ctx, now, MaxCandidates)
	if err != nil {
		return Event{}, err
	}
	return Match(events, query)
}
