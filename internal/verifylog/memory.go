package verifylog

import (
	"context"
	"sync"
	"time"
)

// MemoryStore is an in-memory Store.
type MemoryStore struct {
	mu      sync.RWMutex
	entries []*Entry
	now     func() time.Time
}

// NewMemoryStore creates an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{now: time.Now}
}

// Append implements Store.
func (s *MemoryStore) Append(_ context.Context, e *Entry) error {
	c := *e
	s.mu.Lock()
	s.entries = append(s.entries, &c)
	s.mu.Unlock()
	return nil
}

// Recent implements Store.
func (s *MemoryStore) Recent(_ context.Context, limit int) ([]*Entry, error) {
	return s.latest(clampLimit(limit), func(*Entry) bool { return true }), nil
}

// ForgeryAlerts implements Store.
func (s *MemoryStore) ForgeryAlerts(_ context.Context, limit int) ([]*Entry, error) {
	return s.latest(clampLimit(limit), func(e *Entry) bool { return e.Status == StatusInvalid }), nil
}

// latest walks entries newest first. Entries are appended in time order.
func (s *MemoryStore) latest(limit int, keep func(*Entry) bool) []*Entry {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*Entry, 0, limit)
	for i := len(s.entries) - 1; i >= 0 && len(out) < limit; i-- {
		if keep(s.entries[i]) {
			c := *s.entries[i]
			out = append(out, &c)
		}
	}
	return out
}

// Stats implements Store.
func (s *MemoryStore) Stats(_ context.Context, days int) (*Stats, error) {
	now := s.now()
	st, byDay := newStats(now, days)

	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, e := range s.entries {
		st.add(e.Status, 1)
		if d, ok := byDay[e.Timestamp.UTC().Format(dayLayout)]; ok {
			d.add(e.Status, 1)
		}
	}
	return st, nil
}
