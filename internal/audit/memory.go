package audit

import (
	"context"
	"sync"
)

// MemorySink keeps entries in process.
type MemorySink struct {
	mu      sync.RWMutex
	entries []Entry
}

// NewMemorySink creates an empty sink.
func NewMemorySink() *MemorySink {
	return &MemorySink{}
}

func (m *MemorySink) Append(ctx context.Context, e Entry) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.entries = append(m.entries, e)
	return nil
}

func (m *MemorySink) List(ctx context.Context, q Query) ([]Entry, error) {
	limit := normalizeLimit(q.Limit)
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]Entry, 0, limit)
	for i := len(m.entries) - 1; i >= 0 && len(out) < limit; i-- {
		e := m.entries[i]
		if q.Before != "" && e.ID >= q.Before {
			continue
		}
		if q.Action != "" && e.Action != q.Action {
			continue
		}
		if q.AccountID != "" && e.AccountID != q.AccountID {
			continue
		}
		if q.ResourceID != "" && e.ResourceID != q.ResourceID {
			continue
		}
		out = append(out, e)
	}
	return out, nil
}
