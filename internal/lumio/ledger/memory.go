package ledger

import (
	"context"
	"sync"
)

// Memory is an in-process Ledger used when no spreadsheet is configured
// and as a fake in tests.
type Memory struct {
	mu      sync.Mutex
	entries []SpendEntry
	err     error
}

// NewMemory returns an empty ledger.
func NewMemory() *Memory { return &Memory{} }

// FailWith makes every later call return err; nil restores normal behaviour.
func (m *Memory) FailWith(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.err = err
}

// Entries returns a copy of everything appended so far.
func (m *Memory) Entries() []SpendEntry {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]SpendEntry(nil), m.entries...)
}

func (m *Memory) Append(_ context.Context, e SpendEntry) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return m.err
	}
	m.entries = append(m.entries, e)
	return nil
}

func (m *Memory) Records(_ context.Context) ([]Record, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return nil, m.err
	}
	out := make([]Record, len(m.entries))
	for i, e := range m.entries {
		out[i] = Record{Date: e.DateString(), Category: e.Category, Amount: e.Amount}
	}
	return out, nil
}
