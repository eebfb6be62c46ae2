package webhooks

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// ErrNotFound is returned when a webhook subscription is not found.
var ErrNotFound = errors.New("webhook subscription not found")

// Store persists subscriptions and delivery attempts.
type Store interface {
	Create(ctx context.Context, sub *Subscription) error
	GetByID(ctx context.Context, id uuid.UUID) (*Subscription, error)
	List(ctx context.Context) ([]*Subscription, error)
	ListByEvent(ctx context.Context, eventType string) ([]*Subscription, error)
	Delete(ctx context.Context, id uuid.UUID) error
	RecordDelivery(ctx context.Context, d *Delivery) error
	ListDeliveries(ctx context.Context, subID uuid.UUID) ([]*Delivery, error)
}

// PostgresStore keeps subscriptions in the webhook_subscriptions table.
type PostgresStore struct {
	db *pgxpool.Pool
}

// NewPostgresStore creates a PostgresStore.
func NewPostgresStore(db *pgxpool.Pool) *PostgresStore {
	return &PostgresStore{db: db}
}

const subscriptionColumns = `id, url, events, secret, created_by, created_at`

func scanSubscription(row pgx.Row) (*Subscription, error) {
	var sub Subscription
	if err := row.Scan(&sub.ID, &sub.URL, &sub.Events, &sub.Secret, &sub.CreatedBy, &sub.CreatedAt); err != nil {
		return nil, err
	}
	return &sub, nil
}

// Create implements Store.
func (s *PostgresStore) Create(ctx context.Context, sub *Subscription) error {
	query := `INSERT INTO webhook_subscriptions (` + subscriptionColumns + `)
	          VALUES ($1, $2, $3, $4, $5, $6)`
	_, err := s.db.Exec(ctx, query, sub.ID, sub.URL, sub.Events, sub.Secret, sub.CreatedBy, sub.CreatedAt)
	if err != nil {
		return fmt.Errorf("insert webhook subscription: %w", err)
	}
	return nil
}

// GetByID implements Store.
func (s *PostgresStore) GetByID(ctx context.Context, id uuid.UUID) (*Subscription, error) {
	row := s.db.QueryRow(ctx, `SELECT `+subscriptionColumns+` FROM webhook_subscriptions WHERE id = $1`, id)
	sub, err := scanSubscription(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get webhook subscription: %w", err)
	}
	return sub, nil
}

// List implements Store.
func (s *PostgresStore) List(ctx context.Context) ([]*Subscription, error) {
	return s.query(ctx, `SELECT `+subscriptionColumns+` FROM webhook_subscriptions ORDER BY created_at DESC`)
}

// ListByEvent implements Store.
func (s *PostgresStore) ListByEvent(ctx context.Context, eventType string) ([]*Subscription, error) {
	return s.query(ctx, `SELECT `+subscriptionColumns+` FROM webhook_subscriptions
	                     WHERE $1 = ANY(events) ORDER BY created_at`, eventType)
}

func (s *PostgresStore) query(ctx context.Context, query string, args ...any) ([]*Subscription, error) {
	rows, err := s.db.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list webhook subscriptions: %w", err)
	}
	defer rows.Close()

	var subs []*Subscription
	for rows.Next() {
		sub, err := scanSubscription(rows)
		if err != nil {
			return nil, err
		}
		subs = append(subs, sub)
	}
	return subs, rows.Err()
}

// Delete implements Store.
func (s *PostgresStore) Delete(ctx context.Context, id uuid.UUID) error {
	tag, err := s.db.Exec(ctx, `DELETE FROM webhook_subscriptions WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete webhook subscription: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// RecordDelivery implements Store.
func (s *PostgresStore) RecordDelivery(ctx context.Context, d *Delivery) error {
	query := `INSERT INTO webhook_deliveries
	          (id, subscription_id, event_type, status_code, attempt, success, error_message, delivered_at)
	          VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`
	_, err := s.db.Exec(ctx, query,
		d.ID, d.SubscriptionID, d.EventType, d.StatusCode, d.Attempt, d.Success, d.ErrorMessage, d.DeliveredAt,
	)
	return err
}

// ListDeliveries implements Store.
func (s *PostgresStore) ListDeliveries(ctx context.Context, subID uuid.UUID) ([]*Delivery, error) {
	rows, err := s.db.Query(ctx, `
		SELECT id, subscription_id, event_type, status_code, attempt, success, error_message, delivered_at
		FROM webhook_deliveries WHERE subscription_id = $1
		ORDER BY delivered_at DESC LIMIT 100`, subID)
	if err != nil {
		return nil, fmt.Errorf("list webhook deliveries: %w", err)
	}
	defer rows.Close()

	var out []*Delivery
	for rows.Next() {
		var d Delivery
		if err := rows.Scan(&d.ID, &d.SubscriptionID, &d.EventType, &d.StatusCode,
			&d.Attempt, &d.Success, &d.ErrorMessage, &d.DeliveredAt); err != nil {
			return nil, err
		}
		out = append(out, &d)
	}
	return out, rows.Err()
}
