package calendar

import (
	"context"
	"fmt"
	"strings"
	"time"

	gcal "google.golang.org/api/calendar/v3"
	"google.golang.org/api/option"

	"github.com/bdobrica/Lumio/internal/lumio/nlp"
)

// callTimeout bounds every Calendar API call.
const callTimeout = 30 * time.Second

// Google is the Google Calendar v3 implementation of Service.
type Google struct {
	svc        *gcal.Service
	calendarID string
	loc        *time.Location
}

// NewGoogle returns a Service for calendarID. opts carry credentials
// (option.WithCredentials) or, in tests, an endpoint override.
func NewGoogle(ctx context.Context, calendarID string, loc *time.Location, opts ...option.ClientOption) (*Google, error) {
	svc, err := gcal.NewService(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("calendar: new service: %w", err)
	}
	if calendarID == "" {
		calendarID = "primary"
	}
	return &Google{svc: svc, calendarID: calendarID, loc: loc}, nil
}

func (g *Google) List(ctx context.Context, from, to time.Time) ([]Event, error) {
	ctx, cancel := context.WithTimeout(ctx, callTimeout)
	defer cancel()

	res, err := g.svc.Events.List(g.calendarID).
		TimeMin(from.Format(time.RFC3339)).
		TimeMax(to.Format(time.RFC3339)).
		SingleEvents(true).
		OrderBy("startTime").
		Context(ctx).
		Do()
	if err != nil {
		return nil, fmt.Errorf("calendar: list: %w", err)
	}
	return g.convert(res.Items), nil
}

func (g *Google) Upcoming(ctx context.Context, from time.Time, max int) ([]Event, error) {
	ctx, cancel := context.WithTimeout(ctx, callTimeout)
	defer cancel()

	res, err := g.svc.Events.List(g.calendarID).
		TimeMin(from.Format(time.RFC3339)).
		MaxResults(int64(max)).
		SingleEvents(true).
		OrderBy("startTime").
		Context(ctx).
		Do()
	if err != nil {
		return nil, fmt.Errorf("calendar: upcoming: %w", err)
	}
	return g.convert(res.Items), nil
}

func (g *Google) Insert(ctx context.Context, ev nlp.ExtractedEvent) (Event, error) {
	ctx, cancel := context.WithTimeout(ctx, callTimeout)
	defer cancel()

	created, err := g.svc.Events.Insert(g.calendarID, g.body(ev)).Context(ctx).Do()
	if err != nil {
		return Event{}, fmt.Errorf("calendar: insert: %w", err)
	}
	return g.single(created, ev), nil
}

// Update replaces the summary, start and end of event id.
func (g *Google) Update(ctx context.Context, id string, ev nlp.ExtractedEvent) (Event, error) {
	ctx, cancel := context.WithTimeout(ctx, callTimeout)
	defer cancel()

	patched, err := g.svc.Events.Patch(g.calendarID, id, g.body(ev)).Context(ctx).Do()
	if err != nil {
		return Event{}, fmt.Errorf("calendar: update %s: %w", id, err)
	}
	return g.single(patched, ev), nil
}

func (g *Google) Delete(ctx context.Context, id string) error {
	ctx, cancel := context.WithTimeout(ctx, callTimeout)
	defer cancel()

	if err := g.svc.Events.Delete(g.calendarID, id).Context(ctx).Do(); err != nil {
		return fmt.Errorf("calendar: delete %s: %w", id, err)
	}
	return nil
}

func (g *Google) body(ev nlp.ExtractedEvent) *gcal.Event {
	zone := ""
	if name := g.loc.String(); strings.Contains(name, "/") {
		zone = name
	}
	return &gcal.Event{
		Summary: ev.Summary,
		Start:   &gcal.EventDateTime{DateTime: ev.Start.In(g.loc).Format(time.RFC3339), TimeZone: zone},
		End:     &gcal.EventDateTime{DateTime: ev.End().In(g.loc).Format(time.RFC3339), TimeZone: zone},
	}
}

// single converts an API response, falling back to the request values when
// the response omits them.
func (g *Google) single(item *gcal.Event, ev nlp.ExtractedEvent) Event {
	if out, ok := g.toEvent(item); ok {
		return out
	}
	return Event{ID: item.Id, Summary: ev.Summary, Start: ev.Start, End: ev.End()}
}

func (g *Google) convert(items []*gcal.Event) []Event {
	out := make([]Event, 0, len(items))
	for _, it := range items {
		if ev, ok := g.toEvent(it); ok {
			out = append(out, ev)
		}
	}
	return out
}

func (g *Google) toEvent(it *gcal.Event) (Event, bool) {
	if it == nil || it.Start == nil {
		return Event{}, false
	}
	start, allDay, ok := g.parseWhen(it.Start)
	if !ok {
		return Event{}, false
	}
	ev := Event{ID: it.Id, Summary: it.Summary, Start: start, End: start, AllDay: allDay}
	if it.End != nil {
		if end, _, ok := g.parseWhen(it.End); ok {
			ev.End = end
		}
	}
	return ev, true
}

func (g *Google) parseWhen(dt *gcal.EventDateTime) (time.Time, bool, bool) {
	if dt.DateTime != "" {
		t, err := time.Parse(time.RFC3339, dt.DateTime)
		return t, false, err == nil
	}
	if dt.Date != "" {
		t, err := time.ParseInLocation("2006-01-02", dt.Date, g.loc)
		return t, true, err == nil
	}
	return time.Time{}, false, false
}
