package webhooks

import (
	"context"
	"sync"

	"github.com/google/uuid"
)

// MemoryStore is an in-memory Store.
type MemoryStore struct {
	mu         sync.RWMutex
	subs       []*Subscription
	deliveries []*Delivery
}

// NewMemoryStore creates an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{}
}

// Create implements Store.
func (m *MemoryStore) Create(_ context.Context, sub *Subscription) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	c := *sub
	m.subs = append(m.subs, &c)
	return nil
}

// GetByID implements Store.
func (m *MemoryStore) GetByID(_ context.Context, id uuid.UUID) (*Subscription, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, s := range m.subs {
		if s.ID == id {
			c := *s
			return &c, nil
		}
	}
	return nil, ErrNotFound
}

// List implements Store.
func (m *MemoryStore) List(_ context.Context) ([]*Subscription, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]*Subscription, 0, len(m.subs))
	for i := len(m.subs) - 1; i >= 0; i-- {
		c := *m.subs[i]
		out = append(out, &c)
	}
	return out, nil
}

// ListByEvent implements Store.
func (m *MemoryStore) ListByEvent(_ context.Context, eventType string) ([]*Subscription, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []*Subscription
	for _, s := range m.subs {
		if s.listensFor(eventType) {
			c := *s
			out = append(out, &c)
		}
	}
	return out, nil
}

// Delete implements Store.
func (m *MemoryStore) Delete(_ context.Context, id uuid.UUID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i, s := range m.subs {
		if s.ID == id {
			m.subs = append(m.subs[:i], m.subs[i+1:]...)
			return nil
		}
	}
	return ErrNotFound
}

// RecordDelivery implements Store.
func (m *MemoryStore) RecordDelivery(_ context.Context, d *Delivery) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	c := *d
	m.deliveries = append(m.deliveries, &c)
	return nil
}

// ListDeliveries implements Store.
func (m *MemoryStore) ListDeliveries(_ context.Context, subID uuid.UUID) ([]*Delivery, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []*Delivery
	for i := len(m.deliveries) - 1; i >= 0; i-- {
		if d := m.deliveries[i]; d.SubscriptionID == subID {
			c := *d
			out = append(out, &c)
		}
	}
	return out, nil
}
