package blacklist

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PostgresStore persists entries in the blacklist table. A partial unique
// index on active rows enforces one active entry per entity.
type PostgresStore struct {
	db *pgxpool.Pool
}

// NewPostgresStore creates a PostgresStore.
func NewPostgresStore(db *pgxpool.Pool) *PostgresStore {
	return &PostgresStore{db: db}
}

// Add implements Store.
func (s *PostgresStore) Add(ctx context.Context, entityID, reason string) (*Entry, error) {
	e, err := newEntry(entityID, reason)
	if err != nil {
		return nil, err
	}

	query := `
		INSERT INTO blacklist (id, entity_id, reason, status, created_at)
		VALUES ($1, $2, $3, $4, $5)`

	_, err = s.db.Exec(ctx, query, e.ID, e.EntityID, e.Reason, e.Status, e.CreatedAt)
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == "23505" {
		return nil, ErrAlreadyBlacklisted
	}
	if err != nil {
		return nil, fmt.Errorf("insert blacklist entry: %w", err)
	}
	return e, nil
}

// Revoke implements Store.
func (s *PostgresStore) Revoke(ctx context.Context, entityID string) error {
	tag, err := s.db.Exec(ctx,
		`UPDATE blacklist SET status = $2, revoked_at = $3 WHERE entity_id = $1 AND status = 'active'`,
		strings.TrimSpace(entityID), StatusRevoked, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("revoke blacklist entry: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotBlacklisted
	}
	return nil
}

// IsBlacklisted implements Store.
func (s *PostgresStore) IsBlacklisted(ctx context.Context, entityID string) (bool, error) {
	var exists bool
	err := s.db.QueryRow(ctx,
		`SELECT EXISTS (SELECT 1 FROM blacklist WHERE entity_id = $1 AND status = 'active')`,
		entityID).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("check blacklist: %w", err)
	}
	return exists, nil
}

// List implements Store.
func (s *PostgresStore) List(ctx context.Context, status Status) ([]*Entry, error) {
	query := `SELECT id, entity_id, reason, status, created_at, revoked_at
	          FROM blacklist
	          WHERE ($1 = '' OR status = $1)
	          ORDER BY created_at DESC`

	rows, err := s.db.Query(ctx, query, string(status))
	if err != nil {
		return nil, fmt.Errorf("list blacklist: %w", err)
	}
	defer rows.Close()

	var out []*Entry
	for rows.Next() {
		e := &Entry{}
		if err := rows.Scan(&e.ID, &e.EntityID, &e.Reason, &e.Status, &e.CreatedAt, &e.RevokedAt); err != nil {
			return nil, fmt.Errorf("scan blacklist row: %w", err)
		}
		out = append(out, e)
	}
	return out, rows.Err()
}
