package calendar

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/bdobrica/Lumio/internal/lumio/nlp"
)

// Memory is an in-process Service. It backs the calendar when no Google
// credentials are configured and serves as a fake in tests.
type Memory struct {
	mu     sync.Mutex
	loc    *time.Location
	events map[string]Event
	err    error
}

// NewMemory returns an empty in-process calendar.
func NewMemory(loc *time.Location) *Memory {
	return &Memory{loc: loc, events: make(map[string]Event)}
}

// Seed stores ev as is.
func (m *Memory) Seed(ev Event) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if ev.ID == "" {
		ev.ID = uuid.NewString()
	}
	m.events[ev.ID] = ev
}

// FailWith makes every subsequent call return err. nil restores normal
// behaviour.
func (m *Memory) FailWith(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.err = err
}

// Get returns the stored event with id.
func (m *Memory) Get(id string) (Event, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	ev, ok := m.events[id]
	return ev, ok
}

func (m *Memory) List(_ context.Context, from, to time.Time) ([]Event, error) {
	return m.filter(func(ev Event) bool {
		return !ev.Start.Before(from) && ev.Start.Before(to)
	}, 0)
}

func (m *Memory) Upcoming(_ context.Context, from time.Time, max int) ([]Event, error) {
	return m.filter(func(ev Event) bool { return !ev.Start.Before(from) }, max)
}

func (m *Memory) Insert(_ context.Context, ev nlp.ExtractedEvent) (Event, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return Event{}, m.err
	}
	out := Event{ID: uuid.NewString(), Summary: ev.Summary, Start: ev.Start, End: ev.End()}
	m.events[out.ID] = out
	return out, nil
}

func (m *Memory) Update(_ context.Context, id string, ev nlp.ExtractedEvent) (Event, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return Event{}, m.err
	}
	if _, ok := m.events[id]; !ok {
		return Event{}, &NotFoundError{Query: id}
	}
	out := Event{ID: id, Summary: ev.Summary, Start: ev.Start, End: ev.End()}
	m.events[id] = out
	return out, nil
}

func (m *Memory) Delete(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return m.err
	}
	if _, ok := m.events[id]; !ok {
		return &NotFoundError{Query: id}
	}
	delete(m.events, id)
	return nil
}

func (m *Memory) filter(keep func(Event) bool, max int) ([]Event, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return nil, m.err
	}
	var out []Event
	for _, ev := range m.events {
		if keep(ev) {
			out = append(out, ev)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Start.Equal(out[j].Start) {
			return out[i].ID < out[j].ID
		}
		return out[i].Start.Before(out[j].Start)
	})
	if max > 0 && len(out) > max {
		out = out[:max]
	}
	return out, nil
}
