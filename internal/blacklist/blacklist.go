// Package blacklist records institutions whose certificates must no longer
// verify, regardless of their cryptographic validity.
package blacklist

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Status is the lifecycle state of a blacklist entry.
type Status string

const (
	StatusActive  Status = "active"
	StatusRevoked Status = "revoked"
)

var (
	// ErrAlreadyBlacklisted is returned when the entity already has an active entry.
	ErrAlreadyBlacklisted = errors.New("entity is already blacklisted")

	// ErrNotBlacklisted is returned by Revoke when there is no active entry.
	ErrNotBlacklisted = errors.New("entity is not blacklisted")

	// ErrInvalidEntity is returned for an empty entity id.
	ErrInvalidEntity = errors.New("entity id is required")
)

// DefaultReason is recorded when an administrator gives none.
const DefaultReason = "Blacklisted by admin"

// Entry is one blacklisting decision.
type Entry struct {
	ID        uuid.UUID  `json:"id"`
	EntityID  string     `json:"entityId"`
	Reason    string     `json:"reason"`
	Status    Status     `json:"status"`
	CreatedAt time.Time  `json:"timestamp"`
	RevokedAt *time.Time `json:"revokedAt,omitempty"`
}

// Store persists blacklist entries. At most one entry per entity is active.
type Store interface {
	Add(ctx context.Context, entityID, reason string) (*Entry, error)
	Revoke(ctx context.Context, entityID string) error
	IsBlacklisted(ctx context.Context, entityID string) (bool, error)
	// List returns entries newest first. An empty status returns all entries.
	List(ctx context.Context, status Status) ([]*Entry, error)
}

func newEntry(entityID, reason string) (*Entry, error) {
	entityID = strings.TrimSpace(entityID)
	if entityID == "" {
		return nil, ErrInvalidEntity
	}
	if strings.TrimSpace(reason) == "" {
		reason = DefaultReason
	}
	return &Entry{
		ID:        uuid.New(),
		EntityID:  entityID,
		Reason:    reason,
		Status:    StatusActive,
		CreatedAt: time.Now().UTC(),
	}, nil
}
