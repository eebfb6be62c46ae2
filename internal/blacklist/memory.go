package blacklist

import (
	"context"
	"strings"
	"sync"
	"time"
)

// MemoryStore is an in-memory Store.
type MemoryStore struct {
	mu      sync.RWMutex
	entries []*Entry
}

// NewMemoryStore creates an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{}
}

// Add implements Store.
func (s *MemoryStore) Add(_ context.Context, entityID, reason string) (*Entry, error) {
	e, err := newEntry(entityID, reason)
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.activeLocked(e.EntityID) != nil {
		return nil, ErrAlreadyBlacklisted
	}
	s.entries = append(s.entries, e)
	c := *e
	return &c, nil
}

// Revoke implements Store.
func (s *MemoryStore) Revoke(_ context.Context, entityID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	e := s.activeLocked(strings.TrimSpace(entityID))
	if e == nil {
		return ErrNotBlacklisted
	}
	now := time.Now().UTC()
	e.Status = StatusRevoked
	e.RevokedAt = &now
	return nil
}

// IsBlacklisted implements Store.
func (s *MemoryStore) IsBlacklisted(_ context.Context, entityID string) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.activeLocked(entityID) != nil, nil
}

// List implements Store.
func (s *MemoryStore) List(_ context.Context, status Status) ([]*Entry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*Entry, 0, len(s.entries))
	for i := len(s.entries) - 1; i >= 0; i-- {
		e := s.entries[i]
		if status != "" && e.Status != status {
			continue
		}
		c := *e
		out = append(out, &c)
	}
	return out, nil
}

func (s *MemoryStore) activeLocked(entityID string) *Entry {
	for _, e := range s.entries {
		if e.EntityID == entityID && e.Status == StatusActive {
			return e
		}
	}
	return nil
}
